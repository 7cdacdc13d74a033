package play

import (
	"strings"
	"testing"
)

func knownModules(name string) bool {
	switch name {
	case "command", "debug", "set_fact":
		return true
	}
	return false
}

func TestValidate_OK(t *testing.T) {
	p := &Play{
		Name:  "web",
		Hosts: "webservers",
		Tasks: []Task{
			{Name: "ping", Module: "command", Args: map[string]interface{}{"cmd": "true"}},
		},
	}
	if err := Validate(p, knownModules); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownModule(t *testing.T) {
	p := &Play{
		Name:  "web",
		Hosts: "all",
		Tasks: []Task{{Module: "does_not_exist"}},
	}
	err := Validate(p, knownModules)
	if err == nil {
		t.Fatal("expected unknown module to fail validation")
	}
	if !strings.Contains(err.Error(), "unknown module") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestValidate_DelegateFactsWithoutDelegateTo(t *testing.T) {
	p := &Play{
		Name:  "web",
		Hosts: "all",
		Tasks: []Task{{Module: "set_fact", DelegateFacts: true}},
	}
	err := Validate(p, knownModules)
	if err == nil {
		t.Fatal("expected delegate_facts without delegate_to to fail")
	}
}

func TestValidate_MissingHosts(t *testing.T) {
	p := &Play{Name: "web", Tasks: []Task{{Module: "command"}}}
	if err := Validate(p, knownModules); err == nil {
		t.Fatal("expected missing hosts pattern to fail")
	}
}

func TestValidate_IncludeWithoutFile(t *testing.T) {
	p := &Play{
		Name:  "web",
		Hosts: "all",
		Tasks: []Task{{Module: ModuleIncludeTasks}},
	}
	if err := Validate(p, knownModules); err == nil {
		t.Fatal("expected include without file to fail")
	}
}

func TestValidate_IncludeFormsNeedNoRegistryEntry(t *testing.T) {
	p := &Play{
		Name:  "web",
		Hosts: "all",
		Tasks: []Task{
			{Module: ModuleIncludeTasks, Args: map[string]interface{}{"file": "sub.yml"}},
		},
	}
	if err := Validate(p, knownModules); err != nil {
		t.Fatalf("include form should not require registry entry: %v", err)
	}
}

func TestTask_IncludeParamsExcludesFile(t *testing.T) {
	task := Task{
		Module: ModuleIncludeTasks,
		Args:   map[string]interface{}{"file": "sub.yml", "pkg": "nginx"},
	}
	params := task.IncludeParams()
	if _, ok := params["file"]; ok {
		t.Error("file argument leaked into include params")
	}
	if params["pkg"] != "nginx" {
		t.Errorf("expected pkg param, got %v", params)
	}
}
