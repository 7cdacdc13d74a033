package play

import (
	"os"
	"path/filepath"
	"testing"
)

func writePlaybook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write playbook: %v", err)
	}
	return path
}

func TestLoadPlaybook(t *testing.T) {
	path := writePlaybook(t, `
- name: webservers
  hosts: web
  strategy: free
  tasks:
    - name: Install nginx
      module: command
      args:
        cmd: apt-get install -y nginx
- name: databases
  hosts: db
  tasks:
    - name: Ping
      module: command
      args:
        cmd: "true"
`)

	plays, err := LoadPlaybook(path)
	if err != nil {
		t.Fatalf("LoadPlaybook: %v", err)
	}
	if len(plays) != 2 {
		t.Fatalf("expected 2 plays, got %d", len(plays))
	}
	if plays[0].Name != "webservers" || plays[0].StrategyName() != "free" {
		t.Errorf("unexpected first play: %+v", plays[0])
	}
	if plays[1].StrategyName() != "linear" {
		t.Errorf("expected default strategy linear, got %s", plays[1].StrategyName())
	}
	if len(plays[0].Tasks) != 1 || plays[0].Tasks[0].Module != "command" {
		t.Errorf("unexpected tasks in first play: %+v", plays[0].Tasks)
	}
}

func TestLoadPlaybookMissing(t *testing.T) {
	if _, err := LoadPlaybook(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing playbook")
	}
}

func TestLoadPlaybookMalformed(t *testing.T) {
	path := writePlaybook(t, "hosts: [unterminated")
	if _, err := LoadPlaybook(path); err == nil {
		t.Fatal("expected error for malformed playbook")
	}
}

func TestLoadPlaybookEmpty(t *testing.T) {
	path := writePlaybook(t, "[]")
	if _, err := LoadPlaybook(path); err == nil {
		t.Fatal("expected error for empty playbook")
	}
}
