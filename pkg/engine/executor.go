package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flotilla-run/flotilla/pkg/include"
	"github.com/flotilla-run/flotilla/pkg/inventory"
	"github.com/flotilla-run/flotilla/pkg/modules"
	"github.com/flotilla-run/flotilla/pkg/play"
	"github.com/flotilla-run/flotilla/pkg/pool"
	"github.com/flotilla-run/flotilla/pkg/vars"
)

// Executor runs single tasks on single hosts. It owns the per-task contract:
// guard evaluation before any lease, delegation rebinding, argument
// resolution, fact and register placement, and lease hygiene on timeout.
type Executor struct {
	Pool       *pool.Pool
	Registry   *modules.Registry
	Inventory  inventory.Provider
	Conditions *ConditionEvaluator
	Includer   *include.Includer

	// Plan skips connection leasing and module invocation while resolving
	// everything else identically to a real run.
	Plan bool

	// TaskTimeout bounds one module invocation. Zero means no bound.
	TaskTimeout time.Duration
}

// taskScope carries dynamic-include state down recursive task execution.
type taskScope struct {
	// params are include parameters visible to tasks in this scope only.
	params map[string]interface{}

	// chain is the active include chain for cycle detection.
	chain include.Chain
}

// child derives a scope for an included file, layering params over the
// parent's.
func (s *taskScope) child(params map[string]interface{}, chain include.Chain) *taskScope {
	merged := make(map[string]interface{}, len(s.params)+len(params))
	for k, v := range s.params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return &taskScope{params: merged, chain: chain}
}

func rootScope() *taskScope {
	return &taskScope{}
}

// RunTask executes one task on one host, emitting one result per executed
// task (includes expand to their contained tasks). It returns false when the
// host must be removed from the remainder of the play.
func (e *Executor) RunTask(ctx context.Context, task *play.Task, host *inventory.Host, stores *hostStores, scope *taskScope, pinned *pool.Lease, emit func(*TaskResult)) bool {
	if task.IsInclude() {
		return e.runInclude(ctx, task, host, stores, scope, pinned, emit)
	}

	res := e.execute(ctx, task, host, stores, scope, pinned)
	emit(res)

	if res.Status == StatusFailed && !task.IgnoreErrors {
		return false
	}
	return true
}

// execute performs the full single-task contract and returns its result.
func (e *Executor) execute(ctx context.Context, task *play.Task, host *inventory.Host, stores *hostStores, scope *taskScope, pinned *pool.Lease) *TaskResult {
	res := &TaskResult{
		Host:      host.Name,
		Task:      task.DisplayName(),
		Module:    task.Module,
		ExecHost:  host.Name,
		StartedAt: time.Now(),
		Planned:   e.Plan,
	}
	defer func() { res.Duration = time.Since(res.StartedAt) }()

	view, err := e.buildView(host, stores, scope, task)
	if err != nil {
		return e.fail(res, classify(err))
	}

	// Guard first: a false guard skips the task without touching the pool.
	if task.When != "" {
		ok, err := e.Conditions.Eval(ctx, task.When, view)
		if err != nil {
			var undef *vars.UndefinedVariableError
			if errors.As(err, &undef) {
				return e.fail(res, NewPermanentError(CodeUndefinedVariable,
					fmt.Sprintf("guard references undefined variable %q", undef.Name), err))
			}
			return e.fail(res, NewPermanentError(CodeValidation, "guard evaluation failed", err))
		}
		if !ok {
			res.Status = StatusSkipped
			return res
		}
	}

	// Delegation rebinds execution and variable resolution to the delegate.
	execHost := host
	delegated := false
	if task.DelegateTo != "" {
		name, err := view.Resolve(task.DelegateTo)
		if err != nil {
			return e.fail(res, classify(err))
		}
		delegate, found := e.Inventory.Lookup(fmt.Sprintf("%v", name))
		if !found {
			return e.fail(res, NewPermanentError(CodeValidation,
				fmt.Sprintf("delegate host %v not in inventory", name), nil))
		}
		execHost = delegate
		delegated = true
		res.ExecHost = delegate.Name

		view, err = e.buildView(delegate, stores, scope, task)
		if err != nil {
			return e.fail(res, classify(err))
		}
	}

	args, err := resolveArgs(task.Args, view)
	if err != nil {
		return e.fail(res, classify(err))
	}

	module, err := e.Registry.Lookup(task.Module)
	if err != nil {
		return e.fail(res, NewPermanentError(CodeValidation, "unknown module", err))
	}

	taskCtx := ctx
	if e.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, e.TaskTimeout)
		defer cancel()
	}

	mc := &modules.Context{Host: execHost, Vars: view}

	var lease *pool.Lease
	if module.NeedsConnection() && !e.Plan {
		// The pinned lease belongs to the scheduled host; a delegated task
		// must run on the delegate's connection, not the pinned one.
		if pinned != nil && pinned.Key == pool.KeyFor(execHost) {
			lease = pinned
		}
		if lease == nil {
			acquired, err := e.Pool.Acquire(taskCtx, execHost)
			if err != nil {
				return e.fail(res, NewTransientError(CodeConnectionFailed,
					fmt.Sprintf("failed to acquire connection to %s", execHost.Name), err))
			}
			lease = acquired
		}
		mc.Conn = lease.Conn
	}

	if e.Plan && module.NeedsConnection() {
		// Everything above resolved exactly as a real run would; only the
		// remote invocation is withheld.
		res.Status = StatusOK
		res.Msg = fmt.Sprintf("would run %s on %s", task.Module, execHost.Name)
		res.Data = args
		e.place(res, task, host, execHost, delegated, stores, nil)
		return res
	}

	out, err := module.Run(taskCtx, mc, args)
	if err != nil {
		if lease != nil {
			// A timed-out session may still be executing remotely; the
			// connection must not be handed to another task. That holds
			// for a pinned lease too: the scheduler's final Release then
			// no-ops and the next acquire dials fresh.
			e.Pool.Invalidate(lease)
			lease = nil
		}
		if taskCtx.Err() == context.DeadlineExceeded {
			return e.fail(res, NewTransientError(CodeTimeout,
				fmt.Sprintf("task timed out after %s", e.TaskTimeout), err))
		}
		return e.fail(res, NewTransientError(CodeConnectionFailed, "transport failure", err))
	}

	if lease != nil && lease != pinned {
		e.Pool.Release(lease)
	}

	res.Msg = out.Msg
	res.Data = out.Data
	switch {
	case out.Failed:
		res.Status = StatusFailed
		res.Err = NewPermanentError(CodeModuleFailure, out.Msg, nil).
			WithHost(host.Name).WithTask(res.Task)
	case out.Changed:
		res.Status = StatusChanged
	default:
		res.Status = StatusOK
	}

	e.place(res, task, host, execHost, delegated, stores, out)
	return res
}

// place applies the fact and register placement rules: facts land on the
// delegate only when delegate_facts is set, registered results always land on
// the original host.
func (e *Executor) place(res *TaskResult, task *play.Task, host, execHost *inventory.Host, delegated bool, stores *hostStores, out *modules.Result) {
	if out != nil && len(out.Facts) > 0 {
		factHost := host
		if delegated && task.DelegateFacts {
			factHost = execHost
		}
		stores.SetFacts(factHost, out.Facts)
		res.FactHost = factHost.Name
	}

	if task.Register != "" {
		stores.Register(host, task.Register, registeredValue(res, out))
	}
}

// registeredValue is the map stored under a task's register name.
func registeredValue(res *TaskResult, out *modules.Result) map[string]interface{} {
	value := map[string]interface{}{
		"changed": res.Status == StatusChanged,
		"failed":  res.Status == StatusFailed,
		"skipped": res.Status == StatusSkipped,
		"msg":     res.Msg,
	}
	if out != nil {
		for k, v := range out.Data {
			value[k] = v
		}
	}
	return value
}

func (e *Executor) fail(res *TaskResult, err *RunError) *TaskResult {
	err.WithHost(res.Host).WithTask(res.Task)
	res.Status = StatusFailed
	res.Err = err
	res.Msg = err.Error()

	log.Debug().
		Str("host", res.Host).
		Str("task", res.Task).
		Str("code", err.Code).
		Msg("task failed")
	return res
}

// buildView assembles the variable view a task resolves against: the host
// store, the active include parameters, then the task's own vars.
func (e *Executor) buildView(host *inventory.Host, stores *hostStores, scope *taskScope, task *play.Task) (*vars.Store, error) {
	view := stores.Get(host).Clone()
	for k, v := range scope.params {
		view.Set(k, v, vars.PrecedenceIncludeParams)
	}
	for k, v := range task.Vars {
		resolved, err := view.ResolveValue(v)
		if err != nil {
			return nil, err
		}
		view.Set(k, resolved, vars.PrecedenceTaskVars)
	}
	return view, nil
}

// resolveArgs resolves templating in a task's argument tree.
func resolveArgs(args map[string]interface{}, view *vars.Store) (map[string]interface{}, error) {
	if args == nil {
		return nil, nil
	}
	resolved := make(map[string]interface{}, len(args))
	for k, v := range args {
		rv, err := view.ResolveValue(v)
		if err != nil {
			return nil, err
		}
		resolved[k] = rv
	}
	return resolved, nil
}

// runInclude handles the engine-level include forms. Scoped task includes
// run their contents inline for this host; vars-file includes write into the
// host store at included-vars precedence.
func (e *Executor) runInclude(ctx context.Context, task *play.Task, host *inventory.Host, stores *hostStores, scope *taskScope, pinned *pool.Lease, emit func(*TaskResult)) bool {
	res := &TaskResult{
		Host:      host.Name,
		Task:      task.DisplayName(),
		Module:    task.Module,
		ExecHost:  host.Name,
		StartedAt: time.Now(),
		Planned:   e.Plan,
	}

	view, err := e.buildView(host, stores, scope, task)
	if err != nil {
		emit(e.fail(res, classify(err)))
		return task.IgnoreErrors
	}

	file, ok := task.IncludeFile()
	if !ok {
		emit(e.fail(res, NewPermanentError(CodeValidation, "include without file argument", nil)))
		return task.IgnoreErrors
	}
	resolvedFile, err := view.Resolve(file)
	if err != nil {
		emit(e.fail(res, classify(err)))
		return task.IgnoreErrors
	}
	path := fmt.Sprintf("%v", resolvedFile)

	if task.Module == play.ModuleIncludeVars {
		if err := e.Includer.IncludeVarsFile(path, stores.Get(host), vars.PrecedenceIncludedVarsFile); err != nil {
			var notFound *include.NotFoundError
			if errors.As(err, &notFound) {
				emit(e.fail(res, NewPermanentError(CodeVarsFileNotFound,
					fmt.Sprintf("vars file %s not found", path), err)))
			} else {
				emit(e.fail(res, classify(err)))
			}
			return task.IgnoreErrors
		}
		res.Status = StatusOK
		res.Msg = fmt.Sprintf("included vars from %s", path)
		res.Duration = time.Since(res.StartedAt)
		emit(res)
		return true
	}

	// include_tasks and any import_tasks reached dynamically: load the
	// file, flatten nested imports, and run the contents inline.
	tasks, chain, err := e.Includer.LoadTasks(path, scope.chain)
	if err != nil {
		emit(e.fail(res, classify(err)))
		return task.IgnoreErrors
	}
	tasks, importParams, err := e.Includer.ExpandImports(tasks, chain)
	if err != nil {
		emit(e.fail(res, classify(err)))
		return task.IgnoreErrors
	}

	params, err := resolveArgs(task.IncludeParams(), view)
	if err != nil {
		emit(e.fail(res, classify(err)))
		return task.IgnoreErrors
	}
	for _, p := range importParams {
		if params == nil {
			params = make(map[string]interface{})
		}
		params[p.Name] = p.Value
	}

	res.Status = StatusOK
	res.Msg = fmt.Sprintf("included %d tasks from %s", len(tasks), path)
	res.Duration = time.Since(res.StartedAt)
	emit(res)

	sub := scope.child(params, chain)
	for i := range tasks {
		if ctx.Err() != nil {
			return false
		}
		if !e.RunTask(ctx, &tasks[i], host, stores, sub, pinned, emit) {
			return false
		}
	}
	return true
}
