package vars

import (
	"fmt"
	"regexp"
	"strings"
)

// maxResolveDepth bounds recursive template lookup so mutually referencing
// variables fail instead of spinning.
const maxResolveDepth = 16

var templateRef = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// UndefinedVariableError reports a template or guard reference to a name the
// store does not define.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("undefined variable %q", e.Name)
}

// IsTemplated reports whether s contains at least one {{ ... }} reference.
func IsTemplated(s string) bool {
	return templateRef.MatchString(s)
}

// Resolve evaluates a string expression that may reference other variables by
// name. A bare reference ("{{ name }}") yields the referenced value with its
// original type; mixed text interpolates string representations. Referenced
// values that are themselves templated strings are resolved recursively up to
// maxResolveDepth. Unknown names fail with UndefinedVariableError.
func (s *Store) Resolve(expression string) (interface{}, error) {
	return s.resolve(expression, 0)
}

// ResolveValue walks a JSON-like tree and resolves every templated string
// inside it, returning a new tree. Used to resolve module arguments.
func (s *Store) ResolveValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		if !IsTemplated(v) {
			return v, nil
		}
		return s.resolve(v, 0)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			resolved, err := s.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := s.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func (s *Store) resolve(expression string, depth int) (interface{}, error) {
	if depth >= maxResolveDepth {
		return nil, fmt.Errorf("template resolution exceeded depth %d for %q", maxResolveDepth, expression)
	}

	// A bare reference preserves the value's type.
	if m := templateRef.FindStringSubmatch(expression); m != nil && strings.TrimSpace(expression) == m[0] {
		value, err := s.lookup(strings.TrimSpace(m[1]))
		if err != nil {
			return nil, err
		}
		if str, ok := value.(string); ok && IsTemplated(str) {
			return s.resolve(str, depth+1)
		}
		return value, nil
	}

	var resolveErr error
	result := templateRef.ReplaceAllStringFunc(expression, func(match string) string {
		if resolveErr != nil {
			return match
		}
		name := strings.TrimSpace(templateRef.FindStringSubmatch(match)[1])
		value, err := s.lookup(name)
		if err != nil {
			resolveErr = err
			return match
		}
		if str, ok := value.(string); ok && IsTemplated(str) {
			nested, err := s.resolve(str, depth+1)
			if err != nil {
				resolveErr = err
				return match
			}
			value = nested
		}
		return fmt.Sprintf("%v", value)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return result, nil
}

// lookup supports dotted paths ("host.port") into nested maps.
func (s *Store) lookup(name string) (interface{}, error) {
	parts := strings.Split(name, ".")
	value, ok := s.Get(parts[0])
	if !ok {
		return nil, &UndefinedVariableError{Name: parts[0]}
	}
	for _, part := range parts[1:] {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, &UndefinedVariableError{Name: name}
		}
		value, ok = m[part]
		if !ok {
			return nil, &UndefinedVariableError{Name: name}
		}
	}
	return value, nil
}
