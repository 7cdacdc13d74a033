package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/flotilla-run/flotilla/pkg/inventory"
)

// writeTestKey generates a PEM-encoded ED25519 key at path. An empty
// passphrase leaves the key unencrypted.
func writeTestKey(t *testing.T, path, passphrase string) {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	var pemBlock *pem.Block
	if passphrase == "" {
		pemBlock, err = ssh.MarshalPrivateKey(privKey, "")
	} else {
		pemBlock, err = ssh.MarshalPrivateKeyWithPassphrase(privKey, "", []byte(passphrase))
	}
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("failed to create key dir: %v", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(pemBlock), 0600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
}

func TestValidateDiscoversDefaultKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	keyPath := filepath.Join(home, ".ssh", "id_ed25519")
	writeTestKey(t, keyPath, "")

	config := DefaultConfig("web1", "deploy")
	if err := config.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.PrivateKeyPath != keyPath {
		t.Errorf("expected discovered key '%s', got '%s'", keyPath, config.PrivateKeyPath)
	}
}

func TestValidateFailsWithoutAnyKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	config := DefaultConfig("web1", "deploy")
	err := config.Validate()
	if err == nil {
		t.Fatal("expected error when no key exists anywhere")
	}
	if !strings.Contains(err.Error(), "no default key found") {
		t.Errorf("unexpected error: %v", err)
	}
}

// Inventory-driven configs go through the same Validate path; a host whose
// ssh_* vars are incomplete must be rejected before the pool dials it.
func TestValidateRejectsBadHostVars(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	d := NewDialer(nil)

	t.Run("password auth without password", func(t *testing.T) {
		cfg := d.configFor(&inventory.Host{
			Name: "web1",
			User: "deploy",
			Vars: map[string]interface{}{varAuthMethod: "password"},
		})
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for password auth without password")
		}
	})

	t.Run("unsupported auth method", func(t *testing.T) {
		cfg := d.configFor(&inventory.Host{
			Name: "web1",
			User: "deploy",
			Vars: map[string]interface{}{varAuthMethod: "agent"},
		})
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "unsupported auth method") {
			t.Fatalf("expected unsupported auth method error, got %v", err)
		}
	})

	t.Run("key var pointing at missing file", func(t *testing.T) {
		cfg := d.configFor(&inventory.Host{
			Name: "web1",
			User: "deploy",
			Vars: map[string]interface{}{varPrivateKey: "/nonexistent/deploy_key"},
		})
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "private key file not found") {
			t.Fatalf("expected missing key error, got %v", err)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		cfg := d.configFor(&inventory.Host{Name: "web1"})
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "user is required") {
			t.Fatalf("expected missing user error, got %v", err)
		}
	})
}

func TestBuildClientConfigFromHostVars(t *testing.T) {
	defaults := DefaultConfig("", "fallback")
	defaults.StrictHostKeyChecking = false
	d := NewDialer(defaults)

	cfg := d.configFor(&inventory.Host{
		Name: "web1",
		User: "deploy",
		Vars: map[string]interface{}{
			varAuthMethod: "password",
			varPassword:   "secret",
		},
	})

	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if clientConfig.User != "deploy" {
		t.Errorf("expected user 'deploy', got '%s'", clientConfig.User)
	}

	// Password plus keyboard-interactive fallback.
	if len(clientConfig.Auth) != 2 {
		t.Errorf("expected 2 auth methods, got %d", len(clientConfig.Auth))
	}

	if clientConfig.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", clientConfig.Timeout)
	}
}

func TestBuildClientConfigPassphraseKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "deploy_key")
	writeTestKey(t, keyPath, "hunter2")

	d := NewDialer(nil)
	host := &inventory.Host{
		Name: "web1",
		User: "deploy",
		Vars: map[string]interface{}{
			varPrivateKey:    keyPath,
			varKeyPassphrase: "hunter2",
		},
	}

	cfg := d.configFor(host)
	cfg.StrictHostKeyChecking = false

	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clientConfig.Auth) != 1 {
		t.Errorf("expected 1 auth method, got %d", len(clientConfig.Auth))
	}

	cfg.PrivateKeyPassphrase = "wrong"
	if _, err := cfg.BuildSSHClientConfig(); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestHostKeyCheckingModes(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeTestKey(t, filepath.Join(home, ".ssh", "id_ed25519"), "")

	t.Run("strict requires readable known_hosts", func(t *testing.T) {
		config := DefaultConfig("web1", "deploy")
		if err := config.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// DefaultConfig points at $HOME/.ssh/known_hosts, which does not
		// exist yet.
		if _, err := config.BuildSSHClientConfig(); err == nil {
			t.Fatal("expected error for missing known_hosts under strict checking")
		}

		knownHosts := filepath.Join(home, ".ssh", "known_hosts")
		if err := os.WriteFile(knownHosts, nil, 0600); err != nil {
			t.Fatalf("failed to write known_hosts: %v", err)
		}

		clientConfig, err := config.BuildSSHClientConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if clientConfig.HostKeyCallback == nil {
			t.Error("expected host key callback")
		}
	})

	t.Run("disabled strictness ignores known_hosts", func(t *testing.T) {
		config := DefaultConfig("web1", "deploy")
		config.StrictHostKeyChecking = false
		config.KnownHostsPath = "/nonexistent/known_hosts"
		if err := config.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := config.BuildSSHClientConfig(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestConfigAddress(t *testing.T) {
	config := DefaultConfig("web1", "deploy")
	config.Port = 2222

	if address := config.Address(); address != "web1:2222" {
		t.Errorf("expected address 'web1:2222', got '%s'", address)
	}
}
