package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/flotilla-run/flotilla/pkg/pool"
)

// commandModule runs a remote command without shell interpretation.
type commandModule struct{}

func (m *commandModule) Name() string          { return "command" }
func (m *commandModule) NeedsConnection() bool { return true }

func (m *commandModule) Run(ctx context.Context, mc *Context, args map[string]interface{}) (*Result, error) {
	cmd, err := stringArg(args, "cmd")
	if err != nil {
		return failure("%v", err), nil
	}
	return runRemote(ctx, mc.Conn, cmd)
}

// shellModule runs a remote command through /bin/sh, so pipes, redirection
// and variable expansion work.
type shellModule struct{}

func (m *shellModule) Name() string          { return "shell" }
func (m *shellModule) NeedsConnection() bool { return true }

func (m *shellModule) Run(ctx context.Context, mc *Context, args map[string]interface{}) (*Result, error) {
	cmd, err := stringArg(args, "cmd")
	if err != nil {
		return failure("%v", err), nil
	}
	wrapped := fmt.Sprintf("/bin/sh -c %s", shellQuote(cmd))
	return runRemote(ctx, mc.Conn, wrapped)
}

func runRemote(ctx context.Context, conn pool.Connection, cmd string) (*Result, error) {
	out, err := conn.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Changed: true,
		Data: map[string]interface{}{
			"stdout": out.Stdout,
			"stderr": out.Stderr,
			"rc":     out.ExitCode,
		},
	}
	if out.ExitCode != 0 {
		res.Failed = true
		res.Msg = fmt.Sprintf("non-zero return code %d", out.ExitCode)
	}
	return res, nil
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
