package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/flotilla-run/flotilla/pkg/vars"
)

// ConditionEvaluator executes task guard expressions. Expressions are
// Starlark, evaluated against the host's flattened variable view; any value
// is accepted and judged by Python truthiness.
type ConditionEvaluator struct {
	timeout time.Duration
}

// NewConditionEvaluator creates an evaluator. A zero timeout defaults to
// five seconds per expression.
func NewConditionEvaluator(timeout time.Duration) *ConditionEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &ConditionEvaluator{timeout: timeout}
}

// Eval evaluates expr against store and returns its truthiness. References
// to variables the store does not hold surface as
// vars.UndefinedVariableError.
func (ce *ConditionEvaluator) Eval(ctx context.Context, expr string, store *vars.Store) (bool, error) {
	evalCtx, cancel := context.WithTimeout(ctx, ce.timeout)
	defer cancel()

	resultCh := make(chan bool, 1)
	errCh := make(chan error, 1)

	go func() {
		ok, err := ce.evalSync(expr, store)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- ok
	}()

	select {
	case <-evalCtx.Done():
		return false, fmt.Errorf("condition evaluation timeout: %s", expr)
	case err := <-errCh:
		return false, err
	case ok := <-resultCh:
		return ok, nil
	}
}

func (ce *ConditionEvaluator) evalSync(expr string, store *vars.Store) (bool, error) {
	thread := &starlark.Thread{
		Name: "condition",
		Print: func(_ *starlark.Thread, _ string) {
			// Guards are expressions; print output is dropped.
		},
	}

	predeclared := starlark.StringDict{}
	for name, val := range store.Flatten() {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return false, fmt.Errorf("failed to convert variable %s: %w", name, err)
		}
		predeclared[name] = starlarkVal
	}

	v, err := starlark.Eval(thread, "condition.star", expr, predeclared)
	if err != nil {
		if name, ok := undefinedName(err); ok {
			return false, &vars.UndefinedVariableError{Name: name}
		}
		return false, fmt.Errorf("condition evaluation failed: %w", err)
	}

	return bool(v.Truth()), nil
}

// undefinedName extracts the variable name from a Starlark resolve error for
// an unbound identifier.
func undefinedName(err error) (string, bool) {
	msg := err.Error()
	idx := strings.Index(msg, "undefined: ")
	if idx < 0 {
		return "", false
	}
	name := msg[idx+len("undefined: "):]
	if cut := strings.IndexAny(name, " \n"); cut >= 0 {
		name = name[:cut]
	}
	return name, name != ""
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			starlarkVal, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
