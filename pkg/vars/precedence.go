package vars

// Precedence ranks a variable source. When several sources define the same
// name, the definition from the numerically highest level wins; writes at the
// same level are resolved last-write-wins. The ordering below is an external
// contract consumed by the includer, the executor, and the scheduler.
// Changing it is a breaking change.
type Precedence int

const (
	// PrecedenceRoleDefaults is the lowest level: defaults shipped with a role.
	PrecedenceRoleDefaults Precedence = iota

	// PrecedenceGroupVars covers inventory group variables.
	PrecedenceGroupVars

	// PrecedenceHostVars covers inventory host variables.
	PrecedenceHostVars

	// PrecedencePlayVars covers the vars block of a play.
	PrecedencePlayVars

	// PrecedencePlayVarsFiles covers files listed under a play's vars_files.
	PrecedencePlayVarsFiles

	// PrecedenceRoleVars covers a role's vars (not its defaults).
	PrecedenceRoleVars

	// PrecedenceBlockVars covers variables attached to a block of tasks.
	PrecedenceBlockVars

	// PrecedenceTaskVars covers variables attached to a single task.
	PrecedenceTaskVars

	// PrecedenceIncludedVarsFile covers keys loaded by an include_vars task.
	PrecedenceIncludedVarsFile

	// PrecedenceHostFacts covers set_fact output and registered results.
	PrecedenceHostFacts

	// PrecedenceIncludeParams covers parameters passed to an include or import.
	PrecedenceIncludeParams

	// PrecedenceExtraVars is the highest level: command-line overrides.
	PrecedenceExtraVars
)

var precedenceNames = map[Precedence]string{
	PrecedenceRoleDefaults:     "role_defaults",
	PrecedenceGroupVars:        "group_vars",
	PrecedenceHostVars:         "host_vars",
	PrecedencePlayVars:         "play_vars",
	PrecedencePlayVarsFiles:    "play_vars_files",
	PrecedenceRoleVars:         "role_vars",
	PrecedenceBlockVars:        "block_vars",
	PrecedenceTaskVars:         "task_vars",
	PrecedenceIncludedVarsFile: "included_vars_file",
	PrecedenceHostFacts:        "host_facts",
	PrecedenceIncludeParams:    "include_params",
	PrecedenceExtraVars:        "extra_vars",
}

// String returns the canonical name of the precedence level.
func (p Precedence) String() string {
	if name, ok := precedenceNames[p]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether p is one of the defined levels.
func (p Precedence) Valid() bool {
	_, ok := precedenceNames[p]
	return ok
}
