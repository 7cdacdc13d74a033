package ssh

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/flotilla-run/flotilla/pkg/inventory"
	"github.com/flotilla-run/flotilla/pkg/pool"
)

// Host variables recognized by the dialer. Inventory entries may override the
// defaults per host.
const (
	varAuthMethod    = "ssh_auth_method"
	varPassword      = "ssh_password"
	varPrivateKey    = "ssh_private_key_file"
	varKeyPassphrase = "ssh_key_passphrase"
)

// Dialer builds SSH connections from inventory hosts. It satisfies
// pool.Dialer; the zero Defaults field means every host uses DefaultConfig
// semantics.
type Dialer struct {
	// Defaults seeds each per-host config. Host fields and ssh_* inventory
	// variables override it.
	Defaults *Config
}

// NewDialer returns a Dialer around the given defaults. A nil defaults uses
// key auth with the user's known_hosts.
func NewDialer(defaults *Config) *Dialer {
	return &Dialer{Defaults: defaults}
}

// Multiplexed reports that one SSH connection carries concurrent sessions,
// so the pool may hand out more than one lease per key.
func (d *Dialer) Multiplexed() bool { return true }

// Dial connects to host and returns a ready Client.
func (d *Dialer) Dial(ctx context.Context, host *inventory.Host) (pool.Connection, error) {
	cfg := d.configFor(host)
	if err := cfg.Validate(); err != nil {
		return nil, &TransportError{
			Op:          "dial",
			Err:         fmt.Errorf("invalid config for %s: %w", host.Name, err),
			IsAuthError: true,
		}
	}

	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{
			Op:          "dial",
			Err:         err,
			IsAuthError: true,
		}
	}

	address := cfg.Address()
	log.Debug().Str("host", host.Name).Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return nil, &TransportError{
			Op:          "dial",
			Err:         ctx.Err(),
			IsTemporary: true,
		}
	case err := <-errChan:
		return nil, &TransportError{
			Op:          "dial",
			Err:         err,
			IsTemporary: true,
		}
	case client := <-connChan:
		log.Info().Str("host", host.Name).Str("address", address).Msg("SSH connection established")
		return &Client{config: cfg, client: client}, nil
	}
}

// configFor merges the dialer defaults with the host's fields and ssh_*
// inventory variables.
func (d *Dialer) configFor(host *inventory.Host) *Config {
	address := host.Address
	if address == "" {
		address = host.Name
	}

	var cfg Config
	if d.Defaults != nil {
		cfg = *d.Defaults
	} else {
		cfg = *DefaultConfig(address, host.User)
	}
	cfg.Host = address
	if host.Port > 0 {
		cfg.Port = host.Port
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if host.User != "" {
		cfg.User = host.User
	}

	if v, ok := stringVar(host, varAuthMethod); ok {
		cfg.AuthMethod = AuthMethod(v)
	}
	if v, ok := stringVar(host, varPassword); ok {
		cfg.Password = v
		if cfg.AuthMethod == "" {
			cfg.AuthMethod = AuthMethodPassword
		}
	}
	if v, ok := stringVar(host, varPrivateKey); ok {
		cfg.PrivateKeyPath = v
	}
	if v, ok := stringVar(host, varKeyPassphrase); ok {
		cfg.PrivateKeyPassphrase = v
	}
	if cfg.AuthMethod == "" {
		cfg.AuthMethod = AuthMethodKey
	}

	return &cfg
}

func stringVar(host *inventory.Host, name string) (string, bool) {
	v, ok := host.Vars[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
