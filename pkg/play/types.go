// Package play defines the declarative data model a playbook is built from:
// plays, tasks, and handlers. Tasks are immutable once loaded; the engine
// reads them many times and never mutates them.
package play

// Play binds a set of target hosts to an ordered task list.
type Play struct {
	// Name is the human-readable play name.
	Name string `yaml:"name" json:"name"`

	// Hosts is the inventory pattern selecting target hosts
	// (host name, group name, "all", or a comma-separated mix).
	Hosts string `yaml:"hosts" json:"hosts" validate:"required"`

	// Strategy selects the cross-host ordering policy: linear (default),
	// free, or host_pinned.
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty" validate:"omitempty,oneof=linear free host_pinned"`

	// Vars are play-level variables.
	Vars map[string]interface{} `yaml:"vars,omitempty" json:"vars,omitempty"`

	// VarsFiles are structured files loaded into every host's store at
	// play-vars-files precedence.
	VarsFiles []string `yaml:"vars_files,omitempty" json:"vars_files,omitempty"`

	// GatherFacts runs the setup module against every host before the task
	// list. Defaults to false.
	GatherFacts bool `yaml:"gather_facts,omitempty" json:"gather_facts,omitempty"`

	// AnyErrorsFatal aborts the whole play when any host fails fatally.
	AnyErrorsFatal bool `yaml:"any_errors_fatal,omitempty" json:"any_errors_fatal,omitempty"`

	// Tasks is the ordered task list.
	Tasks []Task `yaml:"tasks" json:"tasks"`

	// Handlers are tasks run after the task list, only when notified.
	Handlers []Task `yaml:"handlers,omitempty" json:"handlers,omitempty"`
}

// StrategyName returns the play's strategy, defaulting to linear.
func (p *Play) StrategyName() string {
	if p.Strategy == "" {
		return "linear"
	}
	return p.Strategy
}

// Task is one declarative unit of work: a module name plus its arguments,
// with optional delegation, registration, guarding, and notification.
type Task struct {
	// Name is the human-readable task name. Falls back to the module name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Module names the module to invoke. Must be known to the registry, or
	// one of the include forms handled by the engine itself.
	Module string `yaml:"module" json:"module" validate:"required"`

	// Args are the module arguments, possibly templated.
	Args map[string]interface{} `yaml:"args,omitempty" json:"args,omitempty"`

	// Vars are task-level variables, layered at task-vars precedence for
	// this invocation only.
	Vars map[string]interface{} `yaml:"vars,omitempty" json:"vars,omitempty"`

	// DelegateTo redirects execution to another host. May be templated.
	DelegateTo string `yaml:"delegate_to,omitempty" json:"delegate_to,omitempty"`

	// DelegateFacts places gathered facts on the delegate host instead of
	// the original host. Only meaningful together with DelegateTo.
	DelegateFacts bool `yaml:"delegate_facts,omitempty" json:"delegate_facts,omitempty"`

	// Register names a variable that receives the task result, always on
	// the original host.
	Register string `yaml:"register,omitempty" json:"register,omitempty"`

	// When is a guard expression; when it evaluates false the task is
	// skipped without leasing a connection.
	When string `yaml:"when,omitempty" json:"when,omitempty"`

	// Notify lists handler names to trigger when the task reports changed.
	Notify []string `yaml:"notify,omitempty" json:"notify,omitempty"`

	// IgnoreErrors records a failure without removing the host from the
	// remainder of the play.
	IgnoreErrors bool `yaml:"ignore_errors,omitempty" json:"ignore_errors,omitempty"`
}

// Include module names handled by the engine rather than the module registry.
const (
	ModuleIncludeTasks = "include_tasks" // scoped (dynamic) inclusion
	ModuleImportTasks  = "import_tasks"  // merged (static) inclusion
	ModuleIncludeVars  = "include_vars"  // variable-file inclusion
)

// IsInclude reports whether the task is one of the engine-handled include
// forms.
func (t *Task) IsInclude() bool {
	switch t.Module {
	case ModuleIncludeTasks, ModuleImportTasks, ModuleIncludeVars:
		return true
	}
	return false
}

// DisplayName returns the task name, falling back to the module name.
func (t *Task) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Module
}

// IncludeFile returns the file argument of an include-form task.
func (t *Task) IncludeFile() (string, bool) {
	if t.Args == nil {
		return "", false
	}
	f, ok := t.Args["file"].(string)
	return f, ok
}

// IncludeParams returns every include argument except the file path. These
// are written at include-params precedence.
func (t *Task) IncludeParams() map[string]interface{} {
	params := make(map[string]interface{}, len(t.Args))
	for k, v := range t.Args {
		if k == "file" {
			continue
		}
		params[k] = v
	}
	return params
}
