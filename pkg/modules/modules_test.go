package modules

import (
	"context"
	"strings"
	"testing"

	"github.com/flotilla-run/flotilla/pkg/inventory"
	"github.com/flotilla-run/flotilla/pkg/pool"
	"github.com/flotilla-run/flotilla/pkg/vars"
)

// fakeConn records commands and uploads and replies from a script.
type fakeConn struct {
	commands []string
	uploads  map[string][]byte
	output   *pool.RunOutput
	runErr   error
}

func (f *fakeConn) Run(ctx context.Context, cmd string) (*pool.RunOutput, error) {
	f.commands = append(f.commands, cmd)
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.output != nil {
		return f.output, nil
	}
	return &pool.RunOutput{}, nil
}

func (f *fakeConn) Upload(ctx context.Context, remotePath string, content []byte, mode uint32) error {
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[remotePath] = content
	return nil
}

func (f *fakeConn) Close() error { return nil }

func testContext(conn pool.Connection) *Context {
	return &Context{
		Host: &inventory.Host{Name: "web1"},
		Vars: vars.NewStore(),
		Conn: conn,
	}
}

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"command", "shell", "set_fact", "debug", "setup", "copy"} {
		if !r.Known(name) {
			t.Errorf("expected builtin module %q to be registered", name)
		}
	}

	if _, err := r.Lookup("no_such_module"); err == nil {
		t.Error("expected error for unknown module")
	}

	names := r.Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("expected sorted names, got %v", names)
		}
	}
}

func TestCommandModule(t *testing.T) {
	r := NewRegistry()
	m, _ := r.Lookup("command")

	t.Run("success", func(t *testing.T) {
		conn := &fakeConn{output: &pool.RunOutput{Stdout: "ok"}}
		res, err := m.Run(context.Background(), testContext(conn), map[string]interface{}{"cmd": "uptime"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Failed {
			t.Errorf("expected success, got failure: %s", res.Msg)
		}
		if !res.Changed {
			t.Error("expected changed result")
		}
		if res.Data["stdout"] != "ok" {
			t.Errorf("expected stdout 'ok', got %v", res.Data["stdout"])
		}
		if len(conn.commands) != 1 || conn.commands[0] != "uptime" {
			t.Errorf("expected command 'uptime' to be run, got %v", conn.commands)
		}
	})

	t.Run("non-zero exit fails", func(t *testing.T) {
		conn := &fakeConn{output: &pool.RunOutput{ExitCode: 2, Stderr: "boom"}}
		res, err := m.Run(context.Background(), testContext(conn), map[string]interface{}{"cmd": "false"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Failed {
			t.Error("expected failed result")
		}
		if res.Data["rc"] != 2 {
			t.Errorf("expected rc 2, got %v", res.Data["rc"])
		}
	})

	t.Run("missing cmd argument", func(t *testing.T) {
		res, err := m.Run(context.Background(), testContext(&fakeConn{}), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Failed {
			t.Error("expected failure for missing argument")
		}
	})
}

func TestShellModuleWrapsCommand(t *testing.T) {
	r := NewRegistry()
	m, _ := r.Lookup("shell")

	conn := &fakeConn{}
	_, err := m.Run(context.Background(), testContext(conn), map[string]interface{}{"cmd": "echo hi | wc -l"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conn.commands) != 1 {
		t.Fatalf("expected one command, got %d", len(conn.commands))
	}
	if !strings.HasPrefix(conn.commands[0], "/bin/sh -c ") {
		t.Errorf("expected shell wrapper, got %q", conn.commands[0])
	}
	if !strings.Contains(conn.commands[0], "echo hi | wc -l") {
		t.Errorf("expected original command preserved, got %q", conn.commands[0])
	}
}

func TestSetFactModule(t *testing.T) {
	r := NewRegistry()
	m, _ := r.Lookup("set_fact")

	if m.NeedsConnection() {
		t.Error("set_fact should not need a connection")
	}

	res, err := m.Run(context.Background(), testContext(nil), map[string]interface{}{
		"app_version": "1.2.3",
		"replicas":    3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Facts["app_version"] != "1.2.3" {
		t.Errorf("expected fact app_version, got %v", res.Facts)
	}
	if res.Facts["replicas"] != 3 {
		t.Errorf("expected fact replicas, got %v", res.Facts)
	}
	if res.Changed {
		t.Error("set_fact should not report changed")
	}
}

func TestDebugModule(t *testing.T) {
	r := NewRegistry()
	m, _ := r.Lookup("debug")

	t.Run("msg", func(t *testing.T) {
		res, err := m.Run(context.Background(), testContext(nil), map[string]interface{}{"msg": "hello"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Msg != "hello" {
			t.Errorf("expected msg 'hello', got %q", res.Msg)
		}
	})

	t.Run("var defined", func(t *testing.T) {
		mc := testContext(nil)
		mc.Vars.Set("region", "eu-west-1", vars.PrecedencePlayVars)
		res, err := m.Run(context.Background(), mc, map[string]interface{}{"var": "region"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(res.Msg, "eu-west-1") {
			t.Errorf("expected value in output, got %q", res.Msg)
		}
	})

	t.Run("var undefined", func(t *testing.T) {
		res, err := m.Run(context.Background(), testContext(nil), map[string]interface{}{"var": "missing"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(res.Msg, "NOT DEFINED") {
			t.Errorf("expected undefined marker, got %q", res.Msg)
		}
	})
}

func TestSetupModule(t *testing.T) {
	r := NewRegistry()
	m, _ := r.Lookup("setup")

	conn := &fakeConn{output: &pool.RunOutput{
		Stdout: "Linux\nx86_64\n6.8.0\nweb1\nweb1.example.com",
	}}
	res, err := m.Run(context.Background(), testContext(conn), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"system":       "Linux",
		"architecture": "x86_64",
		"kernel":       "6.8.0",
		"hostname":     "web1",
		"fqdn":         "web1.example.com",
	}
	for k, v := range want {
		if res.Facts[k] != v {
			t.Errorf("expected fact %s=%q, got %v", k, v, res.Facts[k])
		}
	}
}

func TestCopyModule(t *testing.T) {
	r := NewRegistry()
	m, _ := r.Lookup("copy")

	t.Run("inline content", func(t *testing.T) {
		conn := &fakeConn{}
		res, err := m.Run(context.Background(), testContext(conn), map[string]interface{}{
			"content": "hello\n",
			"dest":    "/etc/motd",
			"mode":    "0600",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Failed {
			t.Fatalf("expected success, got: %s", res.Msg)
		}
		if string(conn.uploads["/etc/motd"]) != "hello\n" {
			t.Errorf("expected upload content, got %q", conn.uploads["/etc/motd"])
		}
	})

	t.Run("content and src exclusive", func(t *testing.T) {
		res, err := m.Run(context.Background(), testContext(&fakeConn{}), map[string]interface{}{
			"content": "x",
			"src":     "/tmp/x",
			"dest":    "/tmp/y",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Failed {
			t.Error("expected failure for conflicting arguments")
		}
	})

	t.Run("missing dest", func(t *testing.T) {
		res, err := m.Run(context.Background(), testContext(&fakeConn{}), map[string]interface{}{"content": "x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Failed {
			t.Error("expected failure for missing dest")
		}
	})
}
