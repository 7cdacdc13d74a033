package vars

import (
	"reflect"
	"testing"
)

func TestStore_HigherPrecedenceWins(t *testing.T) {
	s := NewStore()
	s.Set("port", 80, PrecedenceRoleDefaults)
	s.Set("port", 443, PrecedenceExtraVars)

	got, ok := s.Get("port")
	if !ok {
		t.Fatal("expected port to be defined")
	}
	if got != 443 {
		t.Errorf("expected 443, got %v", got)
	}
}

func TestStore_HigherPrecedenceWinsRegardlessOfWriteOrder(t *testing.T) {
	s := NewStore()
	s.Set("port", 443, PrecedenceExtraVars)
	s.Set("port", 80, PrecedenceRoleDefaults)

	got, _ := s.Get("port")
	if got != 443 {
		t.Errorf("expected extra vars to win, got %v", got)
	}

	prec, _ := s.PrecedenceOf("port")
	if prec != PrecedenceExtraVars {
		t.Errorf("expected precedence %s, got %s", PrecedenceExtraVars, prec)
	}
}

func TestStore_LastWriteWinsWithinLevel(t *testing.T) {
	s := NewStore()
	s.Set("state", "first", PrecedenceHostFacts)
	s.Set("state", "second", PrecedenceHostFacts)

	got, _ := s.Get("state")
	if got != "second" {
		t.Errorf("expected last write within a level to win, got %v", got)
	}
}

func TestStore_GetUndefined(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("missing"); ok {
		t.Error("expected missing variable to be undefined")
	}
}

func TestStore_CloneIsIndependent(t *testing.T) {
	s := NewStore()
	s.Set("nested", map[string]interface{}{"key": "original"}, PrecedencePlayVars)

	clone := s.Clone()
	clone.Set("nested", map[string]interface{}{"key": "mutated"}, PrecedenceExtraVars)
	clone.Set("added", true, PrecedencePlayVars)

	if _, ok := s.Get("added"); ok {
		t.Error("clone mutation leaked a new name into the original")
	}
	got, _ := s.Get("nested")
	want := map[string]interface{}{"key": "original"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("clone mutation affected original: %v", got)
	}
}

func TestStore_CloneDeepCopiesStructuredValues(t *testing.T) {
	s := NewStore()
	s.Set("list", []interface{}{"a", "b"}, PrecedencePlayVars)

	clone := s.Clone()
	cloned, _ := clone.Get("list")
	cloned.([]interface{})[0] = "mutated"

	original, _ := s.Get("list")
	if original.([]interface{})[0] != "a" {
		t.Error("mutating a cloned list affected the original store")
	}
}

func TestStore_MergeIntoObeysPrecedence(t *testing.T) {
	parent := NewStore()
	parent.Set("a", "parent-high", PrecedenceExtraVars)
	parent.Set("b", "parent-low", PrecedenceRoleDefaults)

	child := NewStore()
	child.Set("a", "child-low", PrecedencePlayVars)
	child.Set("b", "child-high", PrecedencePlayVars)
	child.Set("c", "child-only", PrecedenceTaskVars)

	child.MergeInto(parent)

	if got, _ := parent.Get("a"); got != "parent-high" {
		t.Errorf("merge overwrote a higher-precedence entry: %v", got)
	}
	if got, _ := parent.Get("b"); got != "child-high" {
		t.Errorf("merge failed to overwrite a lower-precedence entry: %v", got)
	}
	if got, _ := parent.Get("c"); got != "child-only" {
		t.Errorf("merge dropped a new entry: %v", got)
	}
}

func TestStore_Flatten(t *testing.T) {
	s := NewStore()
	s.Set("a", 1, PrecedenceRoleDefaults)
	s.Set("a", 2, PrecedenceHostVars)
	s.Set("b", "x", PrecedencePlayVars)

	flat := s.Flatten()
	if flat["a"] != 2 || flat["b"] != "x" {
		t.Errorf("unexpected flattened view: %v", flat)
	}
}
