// Package include loads task lists and variable files from storage, producing
// either a scoped or merged variable delta, and guards against inclusion
// cycles.
package include

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// NotFoundError reports a missing include target.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("include file not found: %s", e.Path)
}

// ParseFailure reports malformed structured content in an include target.
type ParseFailure struct {
	Path string
	Err  error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// EscapeError reports a path that resolves outside the permitted base
// directory while escapes are disallowed.
type EscapeError struct {
	Path string
	Base string
}

func (e *EscapeError) Error() string {
	return fmt.Sprintf("path %s escapes base directory %s", e.Path, e.Base)
}

// Loader is the structured file loader contract: it resolves a path against a
// base directory and decodes YAML content into out.
type Loader interface {
	// LoadInto decodes the file at path into out. Missing files surface as
	// NotFoundError, malformed content as ParseFailure.
	LoadInto(path string, out interface{}) error

	// Resolve returns the absolute path the loader would read for path,
	// applying the base-directory policy.
	Resolve(path string) (string, error)
}

// YAMLLoader loads YAML files relative to a base directory.
type YAMLLoader struct {
	// BaseDir anchors relative paths.
	BaseDir string

	// AllowOutsideBase permits absolute paths and ".." escapes. When false
	// (the default), any path resolving outside BaseDir is rejected.
	AllowOutsideBase bool
}

// NewYAMLLoader creates a loader anchored at baseDir.
func NewYAMLLoader(baseDir string) *YAMLLoader {
	return &YAMLLoader{BaseDir: baseDir}
}

// Resolve implements Loader.
func (l *YAMLLoader) Resolve(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(l.BaseDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	if !l.AllowOutsideBase {
		base, err := filepath.Abs(l.BaseDir)
		if err != nil {
			return "", err
		}
		abs, err := filepath.Abs(resolved)
		if err != nil {
			return "", err
		}
		rel, err := filepath.Rel(base, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", &EscapeError{Path: path, Base: l.BaseDir}
		}
	}
	return resolved, nil
}

// LoadInto implements Loader.
func (l *YAMLLoader) LoadInto(path string, out interface{}) error {
	resolved, err := l.Resolve(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{Path: resolved}
		}
		return fmt.Errorf("failed to read %s: %w", resolved, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return &ParseFailure{Path: resolved, Err: err}
	}
	return nil
}
