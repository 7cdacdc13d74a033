// Package modules defines the task module contract and the builtin modules.
// A module receives fully resolved arguments and an optional connection
// lease; it reports its outcome through Result rather than errors, which are
// reserved for transport-level trouble.
package modules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flotilla-run/flotilla/pkg/inventory"
	"github.com/flotilla-run/flotilla/pkg/pool"
	"github.com/flotilla-run/flotilla/pkg/vars"
)

// Context carries the per-invocation environment for a module run.
type Context struct {
	// Host is the host the module acts on. Under delegation this is the
	// delegate, not the host the task was scheduled for.
	Host *inventory.Host

	// Vars is the variable view the module may read. Argument resolution
	// has already happened; this is for modules that inspect state.
	Vars *vars.Store

	// Conn is a leased connection to Host. Nil when the module declared it
	// needs no connection.
	Conn pool.Connection
}

// Result is the outcome of one module invocation.
type Result struct {
	// Changed reports whether the module altered remote state.
	Changed bool

	// Failed marks the invocation as failed without a transport error.
	Failed bool

	// Msg is a human-readable summary, set on failure and by modules whose
	// point is output.
	Msg string

	// Data is the module's structured output, stored verbatim under a
	// task's register name.
	Data map[string]interface{}

	// Facts are variables to place at fact precedence on the fact host.
	Facts map[string]interface{}
}

// Module is one executable task type.
type Module interface {
	// Name is the identifier tasks use to select the module.
	Name() string

	// NeedsConnection reports whether Run requires a leased connection.
	NeedsConnection() bool

	// Run executes the module with resolved arguments.
	Run(ctx context.Context, mc *Context, args map[string]interface{}) (*Result, error)
}

// Registry maps module names to implementations.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry returns a registry preloaded with the builtin modules.
func NewRegistry() *Registry {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range []Module{
		&commandModule{},
		&shellModule{},
		&setFactModule{},
		&debugModule{},
		&setupModule{},
		&copyModule{},
	} {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a module by name.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name()] = m
}

// Lookup returns the module for name.
func (r *Registry) Lookup(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", name)
	}
	return m, nil
}

// Known reports whether name is registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[name]
	return ok
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// failure builds a failed result with a formatted message.
func failure(format string, args ...interface{}) *Result {
	return &Result{Failed: true, Msg: fmt.Sprintf(format, args...)}
}

// stringArg extracts a required string argument.
func stringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string, got %T", name, v)
	}
	return s, nil
}

// optionalStringArg extracts an optional string argument.
func optionalStringArg(args map[string]interface{}, name string) (string, bool, error) {
	v, ok := args[name]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("argument %s must be a string, got %T", name, v)
	}
	return s, true, nil
}
