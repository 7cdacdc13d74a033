package include

import (
	"fmt"
	"strings"

	"github.com/flotilla-run/flotilla/pkg/play"
	"github.com/flotilla-run/flotilla/pkg/vars"
)

// CycleError reports an inclusion cycle: a file that includes itself,
// directly or transitively. Always fatal, never truncated.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic include: %s", strings.Join(e.Chain, " -> "))
}

// Chain tracks the resolved paths of the inclusion stack currently being
// expanded. A zero Chain is valid.
type Chain []string

// extend appends a resolved path, failing with CycleError if the path is
// already on the stack.
func (c Chain) extend(resolved string) (Chain, error) {
	for _, p := range c {
		if p == resolved {
			return nil, &CycleError{Chain: append(append(Chain{}, c...), resolved)}
		}
	}
	return append(append(Chain{}, c...), resolved), nil
}

// Includer loads task lists and variable files through a Loader, applying the
// scoped and merged inclusion contracts.
type Includer struct {
	loader Loader
}

// NewIncluder creates an includer backed by loader.
func NewIncluder(loader Loader) *Includer {
	return &Includer{loader: loader}
}

// LoadTasks loads a task-list file, extending chain for cycle detection. The
// returned chain must be threaded through any nested inclusion triggered by
// the loaded tasks.
func (i *Includer) LoadTasks(path string, chain Chain) ([]play.Task, Chain, error) {
	resolved, err := i.loader.Resolve(path)
	if err != nil {
		return nil, nil, err
	}
	next, err := chain.extend(resolved)
	if err != nil {
		return nil, nil, err
	}

	var tasks []play.Task
	if err := i.loader.LoadInto(path, &tasks); err != nil {
		return nil, nil, err
	}
	return tasks, next, nil
}

// Scoped performs dynamic inclusion: the include parameters are written into
// a clone of parent at include-params precedence, and the clone is visible
// only to the returned tasks. Nothing defined inside leaks to sibling tasks;
// the caller discards the clone when the included tasks finish.
func (i *Includer) Scoped(task *play.Task, parent *vars.Store, chain Chain) ([]play.Task, *vars.Store, Chain, error) {
	file, ok := task.IncludeFile()
	if !ok {
		return nil, nil, nil, fmt.Errorf("include task %q has no file argument", task.DisplayName())
	}

	tasks, next, err := i.LoadTasks(file, chain)
	if err != nil {
		return nil, nil, nil, err
	}

	scope := parent.Clone()
	scope.SetAll(task.IncludeParams(), vars.PrecedenceIncludeParams)
	return tasks, scope, next, nil
}

// ImportParam is a variable contributed by a merged (static) import; it is
// applied to every host's store at include-params precedence and persists for
// the remainder of the play.
type ImportParam struct {
	Name  string
	Value interface{}
}

// ExpandImports resolves every import_tasks entry in tasks before execution
// begins, recursively, returning the flattened task list and the parameters
// the imports contributed. Scoped includes (include_tasks) and vars-file
// includes are left in place for the engine to handle at execution time.
func (i *Includer) ExpandImports(tasks []play.Task, chain Chain) ([]play.Task, []ImportParam, error) {
	var out []play.Task
	var params []ImportParam

	for _, task := range tasks {
		if task.Module != play.ModuleImportTasks {
			out = append(out, task)
			continue
		}

		file, ok := task.IncludeFile()
		if !ok {
			return nil, nil, fmt.Errorf("import task %q has no file argument", task.DisplayName())
		}
		imported, next, err := i.LoadTasks(file, chain)
		if err != nil {
			return nil, nil, err
		}
		for name, value := range task.IncludeParams() {
			params = append(params, ImportParam{Name: name, Value: value})
		}

		expanded, nested, err := i.ExpandImports(imported, next)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, expanded...)
		params = append(params, nested...)
	}
	return out, params, nil
}

// IncludeVarsFile loads a structured file of top-level key/value pairs into
// store at the given precedence level, unconditionally overriding lower
// levels already present.
func (i *Includer) IncludeVarsFile(path string, store *vars.Store, precedence vars.Precedence) error {
	var values map[string]interface{}
	if err := i.loader.LoadInto(path, &values); err != nil {
		return err
	}
	store.SetAll(values, precedence)
	return nil
}
