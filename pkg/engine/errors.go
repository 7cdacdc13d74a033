// Package engine runs plays against inventory hosts: it seeds per-host
// variable stores, schedules tasks under a strategy, leases connections from
// the pool, and collects results and the final recap.
package engine

import (
	"errors"
	"fmt"

	"github.com/flotilla-run/flotilla/pkg/include"
	"github.com/flotilla-run/flotilla/pkg/play"
	"github.com/flotilla-run/flotilla/pkg/vars"
)

// ErrorClass represents the classification of an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed
	// on retry. Examples: connection failures, timeouts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: parse errors, undefined variables, cyclic includes.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes for programmatic handling.
const (
	CodeParse             = "PARSE_ERROR"
	CodeFileNotFound      = "FILE_NOT_FOUND"
	CodeVarsFileNotFound  = "VARS_FILE_NOT_FOUND"
	CodeUndefinedVariable = "UNDEFINED_VARIABLE"
	CodeConnectionFailed  = "CONNECTION_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodeModuleFailure     = "MODULE_FAILURE"
	CodeCyclicInclude     = "CYCLIC_INCLUDE"
	CodeValidation        = "VALIDATION_ERROR"
)

// RunError represents a classified error with host and task context.
type RunError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Code identifies the failure category.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Host is the host the failure is attributed to, if any.
	Host string `json:"host,omitempty"`

	// Task is the task display name, if the failure happened inside one.
	Task string `json:"task,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	if e.Host != "" && e.Task != "" {
		return fmt.Sprintf("[%s] %s (host=%s, task=%s)", e.Code, msg, e.Host, e.Task)
	}
	if e.Host != "" {
		return fmt.Sprintf("[%s] %s (host=%s)", e.Code, msg, e.Host)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *RunError) Is(target error) bool {
	t, ok := target.(*RunError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(code, message string, err error) *RunError {
	return &RunError{
		Class:   ErrorClassTransient,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(code, message string, err error) *RunError {
	return &RunError{
		Class:   ErrorClassPermanent,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithHost adds host context to an error.
func (e *RunError) WithHost(host string) *RunError {
	e.Host = host
	return e
}

// WithTask adds task context to an error.
func (e *RunError) WithTask(task string) *RunError {
	e.Task = task
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *RunError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *RunError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// CodeOf extracts the error code, or "" for unclassified errors.
func CodeOf(err error) string {
	var e *RunError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// classify maps lower-layer errors onto the engine taxonomy. Already
// classified errors pass through unchanged.
func classify(err error) *RunError {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr
	}

	var cycleErr *include.CycleError
	if errors.As(err, &cycleErr) {
		return NewPermanentError(CodeCyclicInclude, "include cycle detected", err)
	}

	var notFound *include.NotFoundError
	if errors.As(err, &notFound) {
		return NewPermanentError(CodeFileNotFound, "included file not found", err)
	}

	var parseFail *include.ParseFailure
	if errors.As(err, &parseFail) {
		return NewPermanentError(CodeParse, "failed to parse included file", err)
	}

	var escape *include.EscapeError
	if errors.As(err, &escape) {
		return NewPermanentError(CodeValidation, "include path escapes base directory", err)
	}

	var undef *vars.UndefinedVariableError
	if errors.As(err, &undef) {
		return NewPermanentError(CodeUndefinedVariable, "undefined variable", err)
	}

	var invalid *play.ValidationError
	if errors.As(err, &invalid) {
		return NewPermanentError(CodeValidation, "play validation failed", err)
	}

	return NewPermanentError(CodeModuleFailure, "task failed", err)
}
