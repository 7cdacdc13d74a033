package modules

import (
	"context"
	"strings"
)

// setFactModule places its arguments as facts on the fact host.
type setFactModule struct{}

func (m *setFactModule) Name() string          { return "set_fact" }
func (m *setFactModule) NeedsConnection() bool { return false }

func (m *setFactModule) Run(ctx context.Context, mc *Context, args map[string]interface{}) (*Result, error) {
	facts := make(map[string]interface{}, len(args))
	for k, v := range args {
		facts[k] = v
	}
	return &Result{Facts: facts}, nil
}

// setupModule gathers baseline facts about the remote system.
type setupModule struct{}

func (m *setupModule) Name() string          { return "setup" }
func (m *setupModule) NeedsConnection() bool { return true }

// One round trip: each probe prints a single line, in a fixed order.
const factProbe = "uname -s; uname -m; uname -r; hostname; hostname -f 2>/dev/null || hostname"

func (m *setupModule) Run(ctx context.Context, mc *Context, args map[string]interface{}) (*Result, error) {
	out, err := mc.Conn.Run(ctx, factProbe)
	if err != nil {
		return nil, err
	}
	if out.ExitCode != 0 {
		return failure("fact gathering exited with code %d: %s", out.ExitCode, out.Stderr), nil
	}

	lines := strings.Split(out.Stdout, "\n")
	get := func(i int) string {
		if i < len(lines) {
			return strings.TrimSpace(lines[i])
		}
		return ""
	}

	return &Result{
		Facts: map[string]interface{}{
			"system":       get(0),
			"architecture": get(1),
			"kernel":       get(2),
			"hostname":     get(3),
			"fqdn":         get(4),
		},
	}, nil
}
