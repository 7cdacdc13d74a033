package modules

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// copyModule writes content to a remote path. Either inline content or a
// local source file must be given.
type copyModule struct{}

func (m *copyModule) Name() string          { return "copy" }
func (m *copyModule) NeedsConnection() bool { return true }

func (m *copyModule) Run(ctx context.Context, mc *Context, args map[string]interface{}) (*Result, error) {
	dest, err := stringArg(args, "dest")
	if err != nil {
		return failure("%v", err), nil
	}

	content, hasContent, err := optionalStringArg(args, "content")
	if err != nil {
		return failure("%v", err), nil
	}
	src, hasSrc, err := optionalStringArg(args, "src")
	if err != nil {
		return failure("%v", err), nil
	}

	var payload []byte
	switch {
	case hasContent && hasSrc:
		return failure("content and src are mutually exclusive"), nil
	case hasContent:
		payload = []byte(content)
	case hasSrc:
		payload, err = os.ReadFile(src)
		if err != nil {
			return failure("failed to read source file: %v", err), nil
		}
	default:
		return failure("either content or src is required"), nil
	}

	mode, err := fileMode(args)
	if err != nil {
		return failure("%v", err), nil
	}

	if err := mc.Conn.Upload(ctx, dest, payload, mode); err != nil {
		return nil, err
	}

	return &Result{
		Changed: true,
		Data: map[string]interface{}{
			"dest": dest,
			"size": len(payload),
		},
	}, nil
}

// fileMode parses the optional mode argument, accepting an octal string like
// "0644" or an integer.
func fileMode(args map[string]interface{}) (uint32, error) {
	v, ok := args["mode"]
	if !ok {
		return 0o644, nil
	}
	switch m := v.(type) {
	case string:
		parsed, err := strconv.ParseUint(m, 8, 32)
		if err != nil {
			return 0, err
		}
		return uint32(parsed), nil
	case int:
		return uint32(m), nil
	default:
		return 0, fmt.Errorf("mode must be an octal string or integer, got %T", v)
	}
}
