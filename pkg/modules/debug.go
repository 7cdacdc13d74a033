package modules

import (
	"context"
	"fmt"
)

// debugModule prints a message or the value of a variable.
type debugModule struct{}

func (m *debugModule) Name() string          { return "debug" }
func (m *debugModule) NeedsConnection() bool { return false }

func (m *debugModule) Run(ctx context.Context, mc *Context, args map[string]interface{}) (*Result, error) {
	if msg, ok, err := optionalStringArg(args, "msg"); err != nil {
		return failure("%v", err), nil
	} else if ok {
		return &Result{Msg: msg}, nil
	}

	if name, ok, err := optionalStringArg(args, "var"); err != nil {
		return failure("%v", err), nil
	} else if ok {
		v, found := mc.Vars.Get(name)
		if !found {
			return &Result{Msg: fmt.Sprintf("%s: VARIABLE IS NOT DEFINED", name)}, nil
		}
		return &Result{Msg: fmt.Sprintf("%s: %v", name, v)}, nil
	}

	return &Result{Msg: "Hello world!"}, nil
}
