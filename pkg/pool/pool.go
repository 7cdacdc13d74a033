// Package pool manages established remote sessions, keyed by host and
// authentication identity, and hands them out as exclusive leases. It is the
// only resource shared by all concurrent task executions; access is
// serialized through the acquire/release discipline.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flotilla-run/flotilla/pkg/inventory"
)

// Connection is the abstract remote-session contract a backend implements.
type Connection interface {
	// Run executes a command on the remote side.
	Run(ctx context.Context, cmd string) (*RunOutput, error)

	// Upload writes content to a remote path with the given mode.
	Upload(ctx context.Context, remotePath string, content []byte, mode uint32) error

	// Close tears the session down. The returned error is never silently
	// dropped by the pool.
	Close() error
}

// RunOutput is the result of one remote command.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Dialer establishes connections for the pool.
type Dialer interface {
	// Dial connects to host. Errors should be returned as-is; the pool
	// applies its own bounded retry with backoff.
	Dial(ctx context.Context, host *inventory.Host) (Connection, error)

	// Multiplexed reports whether the backend supports concurrent sessions
	// over one host connection. When false the pool enforces strict
	// mutual exclusion per key regardless of the configured size.
	Multiplexed() bool
}

// Key identifies a pool slot: host identity plus authentication identity.
type Key struct {
	Host string
	User string
}

func (k Key) String() string {
	if k.User == "" {
		return k.Host
	}
	return k.User + "@" + k.Host
}

// KeyFor derives the pool key for a host.
func KeyFor(host *inventory.Host) Key {
	return Key{Host: host.Name, User: host.User}
}

// Lease is an exclusively held handle to a live connection. It must be
// returned through Release or Invalidate, never both.
type Lease struct {
	ID   string
	Key  Key
	Conn Connection

	pool *Pool
	done bool
	mu   sync.Mutex
}

// Config controls pool behavior.
type Config struct {
	// MaxPerKey bounds concurrent leases per key when the backend is
	// multiplexed. Non-multiplexed backends are always capped at 1.
	MaxPerKey int

	// IdleTimeout evicts connections unused for this long. Zero disables
	// proactive eviction.
	IdleTimeout time.Duration

	// DialRetries bounds reconnect attempts before a dial error surfaces.
	DialRetries int

	// DialBackoff is the base delay between dial attempts; it doubles per
	// attempt.
	DialBackoff time.Duration

	// Observer, when set, receives dial and lease lifecycle events. Must be
	// safe for concurrent use.
	Observer Observer
}

// Observer receives pool lifecycle notifications.
type Observer interface {
	RecordDial(status string)
	LeaseAcquired()
	LeaseReleased()
}

// DefaultConfig returns the pool defaults: strict per-host exclusivity, ten
// minute idle eviction, two retries with one second base backoff.
func DefaultConfig() Config {
	return Config{
		MaxPerKey:   1,
		IdleTimeout: 10 * time.Minute,
		DialRetries: 2,
		DialBackoff: time.Second,
	}
}

type idleConn struct {
	conn     Connection
	lastUsed time.Time
}

type keyState struct {
	slots chan struct{} // capacity = per-key limit
	mu    sync.Mutex
	idle  []idleConn
	// closeErr is the most recent close failure for this key; surfaced to
	// the next acquirer rather than dropped.
	closeErr error
}

// Pool is the process-wide connection cache.
type Pool struct {
	dialer Dialer
	cfg    Config

	mu   sync.Mutex
	keys map[Key]*keyState

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a pool around dialer. A janitor goroutine evicts idle
// connections when IdleTimeout is set; Close stops it.
func New(dialer Dialer, cfg Config) *Pool {
	if cfg.MaxPerKey <= 0 {
		cfg.MaxPerKey = 1
	}
	p := &Pool{
		dialer: dialer,
		cfg:    cfg,
		keys:   make(map[Key]*keyState),
		stop:   make(chan struct{}),
	}
	if cfg.IdleTimeout > 0 {
		go p.janitor()
	}
	return p
}

func (p *Pool) limit() int {
	if !p.dialer.Multiplexed() {
		return 1
	}
	return p.cfg.MaxPerKey
}

func (p *Pool) state(key Key) *keyState {
	p.mu.Lock()
	defer p.mu.Unlock()

	ks, ok := p.keys[key]
	if !ok {
		ks = &keyState{slots: make(chan struct{}, p.limit())}
		p.keys[key] = ks
	}
	return ks
}

// Acquire blocks until a lease for the host's key is available, creating a
// connection if none is idle. Dial failures are retried up to DialRetries
// with doubling backoff before surfacing.
func (p *Pool) Acquire(ctx context.Context, host *inventory.Host) (*Lease, error) {
	key := KeyFor(host)
	ks := p.state(key)

	select {
	case ks.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ks.mu.Lock()
	if err := ks.closeErr; err != nil {
		ks.closeErr = nil
		log.Warn().Str("key", key.String()).Err(err).Msg("previous connection for key closed with error")
	}
	var conn Connection
	if n := len(ks.idle); n > 0 {
		conn = ks.idle[n-1].conn
		ks.idle = ks.idle[:n-1]
	}
	ks.mu.Unlock()

	if conn == nil {
		dialed, err := p.dialWithRetry(ctx, host)
		if err != nil {
			<-ks.slots
			return nil, err
		}
		conn = dialed
	}

	if p.cfg.Observer != nil {
		p.cfg.Observer.LeaseAcquired()
	}
	return &Lease{
		ID:   uuid.New().String(),
		Key:  key,
		Conn: conn,
		pool: p,
	}, nil
}

func (p *Pool) dialWithRetry(ctx context.Context, host *inventory.Host) (Connection, error) {
	backoff := p.cfg.DialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.DialRetries; attempt++ {
		conn, err := p.dialer.Dial(ctx, host)
		if err == nil {
			if p.cfg.Observer != nil {
				p.cfg.Observer.RecordDial("ok")
			}
			return conn, nil
		}
		lastErr = err

		if attempt < p.cfg.DialRetries {
			log.Debug().
				Str("host", host.Name).
				Int("attempt", attempt+1).
				Err(err).
				Msg("dial failed, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}
	if p.cfg.Observer != nil {
		p.cfg.Observer.RecordDial("error")
	}
	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w",
		host.Name, p.cfg.DialRetries+1, lastErr)
}

// Release returns the lease's connection to the pool for reuse by a future
// acquire on the same key.
func (p *Pool) Release(lease *Lease) {
	if lease == nil || !lease.finish() {
		return
	}
	ks := p.state(lease.Key)
	ks.mu.Lock()
	ks.idle = append(ks.idle, idleConn{conn: lease.Conn, lastUsed: time.Now()})
	ks.mu.Unlock()
	<-ks.slots
	if p.cfg.Observer != nil {
		p.cfg.Observer.LeaseReleased()
	}
}

// Invalidate discards the lease's connection instead of returning it: the
// session is closed and will never be handed out again; the next acquire for
// the key dials fresh. Close errors are surfaced to the next acquirer.
func (p *Pool) Invalidate(lease *Lease) {
	if lease == nil || !lease.finish() {
		return
	}
	ks := p.state(lease.Key)
	err := lease.Conn.Close()
	ks.mu.Lock()
	if err != nil {
		ks.closeErr = err
	}
	ks.mu.Unlock()
	<-ks.slots
	if p.cfg.Observer != nil {
		p.cfg.Observer.LeaseReleased()
	}
}

func (l *Lease) finish() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return false
	}
	l.done = true
	return true
}

// Finished reports whether the lease was already released or invalidated.
func (l *Lease) Finished() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// janitor proactively closes idle connections beyond the configured age.
func (p *Pool) janitor() {
	interval := p.cfg.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.evictIdle(time.Now().Add(-p.cfg.IdleTimeout))
		}
	}
}

func (p *Pool) evictIdle(cutoff time.Time) {
	p.mu.Lock()
	states := make([]*keyState, 0, len(p.keys))
	keys := make([]Key, 0, len(p.keys))
	for k, ks := range p.keys {
		states = append(states, ks)
		keys = append(keys, k)
	}
	p.mu.Unlock()

	for i, ks := range states {
		ks.mu.Lock()
		kept := ks.idle[:0]
		for _, ic := range ks.idle {
			if ic.lastUsed.Before(cutoff) {
				if err := ic.conn.Close(); err != nil {
					log.Warn().Str("key", keys[i].String()).Err(err).Msg("error closing evicted idle connection")
				}
				continue
			}
			kept = append(kept, ic)
		}
		ks.idle = kept
		ks.mu.Unlock()
	}
}

// Close shuts down the janitor and closes every idle connection. Held leases
// remain valid until released or invalidated.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.evictIdle(time.Now().Add(time.Hour))
}
