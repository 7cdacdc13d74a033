package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/flotilla-run/flotilla/pkg/include"
	"github.com/flotilla-run/flotilla/pkg/inventory"
	"github.com/flotilla-run/flotilla/pkg/play"
	"github.com/flotilla-run/flotilla/pkg/pool"
	"github.com/flotilla-run/flotilla/pkg/telemetry"
)

// Strategy names accepted by plays.
const (
	StrategyLinear     = "linear"
	StrategyFree       = "free"
	StrategyHostPinned = "host_pinned"
)

// Scheduler drives a play across its hosts under the play's strategy,
// bounded by Forks concurrent module invocations.
type Scheduler struct {
	Executor *Executor

	// Forks bounds concurrent task executions across all hosts.
	Forks int

	// OnResult, when set, receives every task result as it is produced.
	// Calls are serialized.
	OnResult func(*TaskResult)

	// Metrics, when set, receives task and play tallies.
	Metrics *telemetry.Metrics
}

// handlerSet collects notified handler names. Notification is a set: a
// handler notified many times in one play still runs once per host.
type handlerSet struct {
	mu       sync.Mutex
	notified map[string]bool
}

func newHandlerSet() *handlerSet {
	return &handlerSet{notified: make(map[string]bool)}
}

func (h *handlerSet) Notify(names []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range names {
		h.notified[n] = true
	}
}

func (h *handlerSet) Notified(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.notified[name]
}

// activeHosts tracks which hosts are still in the play.
type activeHosts struct {
	mu     sync.Mutex
	active map[string]bool
}

func newActiveHosts(hosts []*inventory.Host) *activeHosts {
	a := &activeHosts{active: make(map[string]bool, len(hosts))}
	for _, h := range hosts {
		a.active[h.Name] = true
	}
	return a
}

func (a *activeHosts) Remove(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, name)
}

func (a *activeHosts) Active(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active[name]
}

func (a *activeHosts) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

// playRun bundles the per-play state shared by the strategies.
type playRun struct {
	pl       *play.Play
	hosts    []*inventory.Host
	stores   *hostStores
	tasks    []play.Task
	handlers *handlerSet
	active   *activeHosts
	recap    *Recap
	sem      *semaphore.Weighted

	emitMu sync.Mutex
	abort  context.CancelFunc
}

// RunPlay validates and executes one play, returning the per-host recap.
// Task failures are reported through the recap; the returned error covers
// failures that prevent the play from running at all.
func (s *Scheduler) RunPlay(ctx context.Context, pl *play.Play, loader include.Loader, extraVars map[string]interface{}) (*Recap, error) {
	known := func(name string) bool { return s.Executor.Registry.Known(name) }
	if err := play.Validate(pl, known); err != nil {
		return nil, classify(err)
	}

	hosts, err := s.Executor.Inventory.Select(pl.Hosts)
	if err != nil {
		return nil, NewPermanentError(CodeValidation,
			fmt.Sprintf("host pattern %q", pl.Hosts), err)
	}
	if len(hosts) == 0 {
		log.Warn().Str("pattern", pl.Hosts).Msg("no hosts matched play")
		return NewRecap(), nil
	}

	stores, err := newHostStores(s.Executor.Inventory, pl, loader, extraVars)
	if err != nil {
		return nil, err
	}

	// Merged imports are expanded once, before any host runs; their
	// parameters persist in every host store.
	tasks, importParams, err := s.Executor.Includer.ExpandImports(pl.Tasks, nil)
	if err != nil {
		return nil, classify(err)
	}
	stores.setImportParams(importParams)

	if pl.GatherFacts {
		tasks = append([]play.Task{{
			Name:   "Gathering facts",
			Module: "setup",
		}}, tasks...)
	}

	forks := s.Forks
	if forks <= 0 {
		forks = 5
	}

	runCtx, abort := context.WithCancel(ctx)
	defer abort()

	run := &playRun{
		pl:       pl,
		hosts:    hosts,
		stores:   stores,
		tasks:    tasks,
		handlers: newHandlerSet(),
		active:   newActiveHosts(hosts),
		recap:    NewRecap(),
		sem:      semaphore.NewWeighted(int64(forks)),
		abort:    abort,
	}

	started := time.Now()
	log.Info().
		Str("play", pl.Name).
		Str("strategy", pl.StrategyName()).
		Int("hosts", len(hosts)).
		Int("tasks", len(tasks)).
		Int("forks", forks).
		Bool("plan", s.Executor.Plan).
		Msg("starting play")

	switch pl.StrategyName() {
	case StrategyFree:
		s.runFree(runCtx, run, nil)
	case StrategyHostPinned:
		s.runHostPinned(runCtx, run)
	default:
		s.runLinear(runCtx, run)
	}

	if ctx.Err() == nil {
		s.runHandlers(runCtx, run)
	}

	if s.Metrics != nil {
		status := "ok"
		if run.recap.Failed() {
			status = "failed"
		}
		s.Metrics.RecordPlay(status, time.Since(started))
	}
	return run.recap, ctx.Err()
}

// emit records a result, notifies handlers on change, and forwards to the
// observer under the serialization lock.
func (s *Scheduler) emit(run *playRun, task *play.Task, res *TaskResult) {
	run.emitMu.Lock()
	defer run.emitMu.Unlock()

	run.recap.Record(res)
	if res.Status == StatusChanged && len(task.Notify) > 0 {
		run.handlers.Notify(task.Notify)
		if s.Metrics != nil {
			s.Metrics.RecordNotification()
		}
	}
	if s.Metrics != nil {
		s.Metrics.RecordTask(res.Module, string(res.Status), res.Duration)
	}
	if s.OnResult != nil {
		s.OnResult(res)
	}
}

// runOnHost executes one task (and anything it includes) for one host,
// updating active-host state. Returns false when the play must abort.
func (s *Scheduler) runOnHost(ctx context.Context, run *playRun, task *play.Task, host *inventory.Host, pinned *pool.Lease) bool {
	emit := func(res *TaskResult) {
		s.emit(run, task, res)
	}

	ok := s.Executor.RunTask(ctx, task, host, run.stores, rootScope(), pinned, emit)
	if !ok && ctx.Err() == nil {
		run.active.Remove(host.Name)
		log.Warn().Str("host", host.Name).Str("task", task.DisplayName()).Msg("host removed from play")
		if run.pl.AnyErrorsFatal {
			log.Error().Str("play", run.pl.Name).Msg("aborting play: any_errors_fatal")
			run.abort()
			return false
		}
	}
	return true
}

// runLinear runs each task across every active host and waits for all of
// them before moving to the next task.
func (s *Scheduler) runLinear(ctx context.Context, run *playRun) {
	for i := range run.tasks {
		if ctx.Err() != nil || run.active.Count() == 0 {
			return
		}
		task := &run.tasks[i]

		var wg sync.WaitGroup
		for _, host := range run.hosts {
			if !run.active.Active(host.Name) {
				continue
			}
			if err := run.sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(h *inventory.Host) {
				defer wg.Done()
				defer run.sem.Release(1)
				s.runOnHost(ctx, run, task, h, nil)
			}(host)
		}
		wg.Wait()
	}
}

// runFree lets every host advance through the task list at its own pace.
// The pinned map, when non-nil, supplies a session-affine lease per host.
func (s *Scheduler) runFree(ctx context.Context, run *playRun, pinned map[string]*pool.Lease) {
	var wg sync.WaitGroup
	for _, host := range run.hosts {
		if !run.active.Active(host.Name) {
			continue
		}
		wg.Add(1)
		go func(h *inventory.Host) {
			defer wg.Done()
			lease := pinned[h.Name]
			for i := range run.tasks {
				if ctx.Err() != nil || !run.active.Active(h.Name) {
					return
				}
				if err := run.sem.Acquire(ctx, 1); err != nil {
					return
				}
				cont := s.runOnHost(ctx, run, &run.tasks[i], h, lease)
				run.sem.Release(1)
				// The executor invalidates a pinned lease on module error;
				// a finished lease must not be offered to later tasks.
				if lease != nil && lease.Finished() {
					lease = nil
				}
				if !cont {
					return
				}
			}
		}(host)
	}
	wg.Wait()
}

// runHostPinned is the free strategy with session affinity: each host leases
// one connection up front and every connection-bound task of that host runs
// on it.
func (s *Scheduler) runHostPinned(ctx context.Context, run *playRun) {
	pinned := make(map[string]*pool.Lease, len(run.hosts))
	if !s.Executor.Plan {
		for _, host := range run.hosts {
			lease, err := s.Executor.Pool.Acquire(ctx, host)
			if err != nil {
				res := &TaskResult{
					Host:     host.Name,
					Task:     "pin connection",
					ExecHost: host.Name,
					Status:   StatusFailed,
					Err: NewTransientError(CodeConnectionFailed,
						fmt.Sprintf("failed to pin connection to %s", host.Name), err).WithHost(host.Name),
				}
				res.Msg = res.Err.Error()
				s.emit(run, &play.Task{}, res)
				run.active.Remove(host.Name)
				continue
			}
			pinned[host.Name] = lease
		}
	}
	defer func() {
		for _, lease := range pinned {
			s.Executor.Pool.Release(lease)
		}
	}()

	s.runFree(ctx, run, pinned)
}

// runHandlers executes notified handlers in declaration order on every host
// still in the play, one handler at a time across hosts.
func (s *Scheduler) runHandlers(ctx context.Context, run *playRun) {
	for i := range run.pl.Handlers {
		handler := &run.pl.Handlers[i]
		if !run.handlers.Notified(handler.DisplayName()) {
			continue
		}
		if ctx.Err() != nil || run.active.Count() == 0 {
			return
		}

		log.Info().Str("handler", handler.DisplayName()).Msg("running handler")

		var wg sync.WaitGroup
		for _, host := range run.hosts {
			if !run.active.Active(host.Name) {
				continue
			}
			if err := run.sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(h *inventory.Host) {
				defer wg.Done()
				defer run.sem.Release(1)
				s.runOnHost(ctx, run, handler, h, nil)
			}(host)
		}
		wg.Wait()
	}
}
