package vars

import (
	"errors"
	"reflect"
	"testing"
)

func TestResolve_BareReferencePreservesType(t *testing.T) {
	s := NewStore()
	s.Set("port", 8080, PrecedenceHostVars)

	got, err := s.Resolve("{{ port }}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 8080 {
		t.Errorf("expected int 8080, got %v (%T)", got, got)
	}
}

func TestResolve_Interpolation(t *testing.T) {
	s := NewStore()
	s.Set("host", "db01", PrecedenceHostVars)
	s.Set("port", 5432, PrecedenceHostVars)

	got, err := s.Resolve("{{ host }}:{{ port }}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "db01:5432" {
		t.Errorf("expected db01:5432, got %v", got)
	}
}

func TestResolve_RecursiveLookup(t *testing.T) {
	s := NewStore()
	s.Set("base_url", "https://{{ host }}", PrecedencePlayVars)
	s.Set("host", "api.example.com", PrecedenceHostVars)

	got, err := s.Resolve("{{ base_url }}/v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://api.example.com/v1" {
		t.Errorf("unexpected resolution: %v", got)
	}
}

func TestResolve_UndefinedVariable(t *testing.T) {
	s := NewStore()

	_, err := s.Resolve("{{ nope }}")
	if err == nil {
		t.Fatal("expected an error for an undefined reference")
	}
	var undef *UndefinedVariableError
	if !errors.As(err, &undef) {
		t.Fatalf("expected UndefinedVariableError, got %T", err)
	}
	if undef.Name != "nope" {
		t.Errorf("expected name nope, got %q", undef.Name)
	}
}

func TestResolve_DottedPath(t *testing.T) {
	s := NewStore()
	s.Set("db", map[string]interface{}{
		"conn": map[string]interface{}{"port": 5432},
	}, PrecedenceGroupVars)

	got, err := s.Resolve("{{ db.conn.port }}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5432 {
		t.Errorf("expected 5432, got %v", got)
	}
}

func TestResolve_SelfReferenceFailsInsteadOfLooping(t *testing.T) {
	s := NewStore()
	s.Set("a", "{{ b }}", PrecedencePlayVars)
	s.Set("b", "{{ a }}", PrecedencePlayVars)

	if _, err := s.Resolve("{{ a }}"); err == nil {
		t.Fatal("expected mutually recursive templates to fail")
	}
}

func TestResolveValue_WalksTrees(t *testing.T) {
	s := NewStore()
	s.Set("name", "web01", PrecedenceHostVars)

	in := map[string]interface{}{
		"cmd":  "hostname {{ name }}",
		"list": []interface{}{"{{ name }}", "static"},
		"n":    3,
	}
	got, err := s.ResolveValue(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]interface{}{
		"cmd":  "hostname web01",
		"list": []interface{}{"web01", "static"},
		"n":    3,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected resolved tree: %v", got)
	}
}
