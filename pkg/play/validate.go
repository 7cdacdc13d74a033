package play

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports a structurally invalid play or task, detected
// before any execution begins.
type ValidationError struct {
	Play    string
	Task    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("play %q task %q: %s", e.Play, e.Task, e.Message)
	}
	return fmt.Sprintf("play %q: %s", e.Play, e.Message)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a play against the struct tags and the engine's semantic
// rules. known reports whether a module name is resolvable by the registry;
// include forms are always accepted. Returns the first problem found.
func Validate(p *Play, known func(name string) bool) error {
	if err := validate.Struct(p); err != nil {
		return &ValidationError{Play: p.Name, Message: err.Error()}
	}

	if len(p.Tasks) == 0 {
		return &ValidationError{Play: p.Name, Message: "play declares no tasks"}
	}

	for i := range p.Tasks {
		if err := validateTask(p, &p.Tasks[i], known); err != nil {
			return err
		}
	}
	for i := range p.Handlers {
		h := &p.Handlers[i]
		if h.Name == "" {
			return &ValidationError{Play: p.Name, Message: "handler declares no name"}
		}
		if err := validateTask(p, h, known); err != nil {
			return err
		}
	}
	return nil
}

func validateTask(p *Play, t *Task, known func(string) bool) error {
	if t.Module == "" {
		return &ValidationError{Play: p.Name, Task: t.Name, Message: "task declares no module"}
	}
	if t.DelegateFacts && t.DelegateTo == "" {
		return &ValidationError{
			Play: p.Name, Task: t.DisplayName(),
			Message: "delegate_facts requires delegate_to",
		}
	}
	if t.IsInclude() {
		if _, ok := t.IncludeFile(); !ok {
			return &ValidationError{
				Play: p.Name, Task: t.DisplayName(),
				Message: fmt.Sprintf("%s requires a file argument", t.Module),
			}
		}
		return nil
	}
	if known != nil && !known(t.Module) {
		return &ValidationError{
			Play: p.Name, Task: t.DisplayName(),
			Message: fmt.Sprintf("unknown module %q", t.Module),
		}
	}
	return nil
}
