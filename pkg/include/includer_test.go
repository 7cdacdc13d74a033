package include

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flotilla-run/flotilla/pkg/play"
	"github.com/flotilla-run/flotilla/pkg/vars"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestLoadTasks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tasks.yml", `
- name: first
  module: command
  args:
    cmd: "true"
- name: second
  module: debug
`)

	inc := NewIncluder(NewYAMLLoader(dir))
	tasks, _, err := inc.LoadTasks("tasks.yml", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Module != "command" || tasks[1].Name != "second" {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestLoadTasks_FileNotFound(t *testing.T) {
	inc := NewIncluder(NewYAMLLoader(t.TempDir()))
	_, _, err := inc.LoadTasks("missing.yml", nil)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestLoadTasks_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yml", "{{ not valid yaml: [")

	inc := NewIncluder(NewYAMLLoader(dir))
	_, _, err := inc.LoadTasks("bad.yml", nil)
	var parseErr *ParseFailure
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseFailure, got %v", err)
	}
}

func TestResolve_RejectsEscape(t *testing.T) {
	loader := NewYAMLLoader(t.TempDir())
	if _, err := loader.Resolve("../outside.yml"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
	var escape *EscapeError
	_, err := loader.Resolve("/etc/passwd")
	if !errors.As(err, &escape) {
		t.Fatalf("expected EscapeError for absolute path, got %v", err)
	}
}

func TestResolve_AllowsEscapeWhenConfigured(t *testing.T) {
	loader := &YAMLLoader{BaseDir: t.TempDir(), AllowOutsideBase: true}
	if _, err := loader.Resolve("/etc/hosts"); err != nil {
		t.Fatalf("expected absolute path to be honored: %v", err)
	}
}

func TestScoped_ParamsInvisibleToParent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sub.yml", `
- name: inner
  module: debug
`)

	parent := vars.NewStore()
	parent.Set("existing", "yes", vars.PrecedencePlayVars)

	inc := NewIncluder(NewYAMLLoader(dir))
	task := &play.Task{
		Module: play.ModuleIncludeTasks,
		Args:   map[string]interface{}{"file": "sub.yml", "pkg": "nginx"},
	}
	tasks, scope, _, err := inc.Scoped(task, parent, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 included task, got %d", len(tasks))
	}

	if got, _ := scope.Get("pkg"); got != "nginx" {
		t.Errorf("expected param visible in scope, got %v", got)
	}
	if got, _ := scope.Get("existing"); got != "yes" {
		t.Errorf("expected parent vars visible in scope, got %v", got)
	}
	if _, ok := parent.Get("pkg"); ok {
		t.Error("scoped include param leaked into the parent store")
	}
}

func TestExpandImports_MergesAndFlattens(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.yml", `
- name: imported
  module: command
  args:
    cmd: "uptime"
`)

	inc := NewIncluder(NewYAMLLoader(dir))
	tasks := []play.Task{
		{Name: "before", Module: "debug"},
		{Module: play.ModuleImportTasks, Args: map[string]interface{}{"file": "common.yml", "env": "prod"}},
		{Name: "after", Module: "debug"},
	}
	expanded, params, err := inc.ExpandImports(tasks, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expanded) != 3 {
		t.Fatalf("expected 3 tasks after expansion, got %d", len(expanded))
	}
	if expanded[1].Name != "imported" {
		t.Errorf("import not expanded in place: %+v", expanded[1])
	}
	if len(params) != 1 || params[0].Name != "env" || params[0].Value != "prod" {
		t.Errorf("unexpected import params: %+v", params)
	}
}

func TestExpandImports_DetectsCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yml", `
- module: import_tasks
  args:
    file: b.yml
`)
	writeFile(t, dir, "b.yml", `
- module: import_tasks
  args:
    file: a.yml
`)

	inc := NewIncluder(NewYAMLLoader(dir))
	tasks := []play.Task{
		{Module: play.ModuleImportTasks, Args: map[string]interface{}{"file": "a.yml"}},
	}
	_, _, err := inc.ExpandImports(tasks, nil)
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(cycle.Chain) < 3 {
		t.Errorf("expected the full chain in the error, got %v", cycle.Chain)
	}
}

func TestIncludeVarsFile_OverridesLowerLevels(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vars.yml", "port: 9090\nname: loaded\n")

	store := vars.NewStore()
	store.Set("port", 80, vars.PrecedencePlayVars)
	store.Set("name", "fixed", vars.PrecedenceExtraVars)

	inc := NewIncluder(NewYAMLLoader(dir))
	if err := inc.IncludeVarsFile("vars.yml", store, vars.PrecedenceIncludedVarsFile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := store.Get("port"); got != 9090 {
		t.Errorf("expected vars file to override play vars, got %v", got)
	}
	if got, _ := store.Get("name"); got != "fixed" {
		t.Errorf("expected extra vars to survive, got %v", got)
	}
}
