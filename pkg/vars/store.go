// Package vars implements the precedence-tagged variable store that backs
// per-host variable resolution. Values are JSON-like trees (scalars, lists,
// nested maps). Each entry remembers the precedence level that wrote it, so
// low-precedence sources never clobber explicit configuration.
package vars

import (
	"sort"
	"sync"
)

type entry struct {
	value      interface{}
	precedence Precedence
}

// Store is a concurrency-safe mapping from variable name to value, where each
// entry carries the precedence level of its source. One Store instance exists
// per (play, host); scoped includes and delegated executions work on clones.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStore creates an empty variable store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
	}
}

// Set stores value under name if precedence is at least the level of the
// current entry. A lower-precedence write to an already-higher-precedence
// name is silently ignored; a write at the same level overwrites (last write
// wins within a level).
func (s *Store) Set(name string, value interface{}, precedence Precedence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[name]; ok && precedence < existing.precedence {
		return
	}
	s.entries[name] = entry{value: value, precedence: precedence}
}

// SetAll stores every key of values at the given precedence level.
func (s *Store) SetAll(values map[string]interface{}, precedence Precedence) {
	for name, value := range values {
		s.Set(name, value, precedence)
	}
}

// Get returns the effective value for name, or false if it is undefined.
func (s *Store) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// PrecedenceOf returns the precedence level of the effective entry for name.
func (s *Store) PrecedenceOf(name string) (Precedence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return 0, false
	}
	return e.precedence, true
}

// Clone produces an independent copy of the store. Values are deep-copied, so
// mutating the clone (or structured values reached through it) never affects
// the original. Used for scoped includes and delegated execution contexts.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := NewStore()
	for name, e := range s.entries {
		clone.entries[name] = entry{
			value:      deepCopyValue(e.value),
			precedence: e.precedence,
		}
	}
	return clone
}

// MergeInto overlays this store's entries onto other, obeying the same
// precedence rule as Set.
func (s *Store) MergeInto(other *Store) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for name, e := range s.entries {
		other.Set(name, deepCopyValue(e.value), e.precedence)
	}
}

// Flatten returns the effective variable environment as a plain map: for each
// name, the highest-precedence value. The map is a deep copy and safe to hand
// to template or guard evaluation.
func (s *Store) Flatten() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{}, len(s.entries))
	for name, e := range s.entries {
		out[name] = deepCopyValue(e.value)
	}
	return out
}

// Names returns all defined variable names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of defined variables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// deepCopyValue copies JSON-like trees. Scalars are returned as-is.
func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}
