// Package tracking holds the persisted data and the pending diff of one
// entity instance. Writes accumulate in the diff until a save commits them.
package tracking

import (
	"reflect"
	"sync"
	"time"
)

// FieldChange represents a pending change to a single field
type FieldChange struct {
	Field    string
	OldValue interface{}
	NewValue interface{}
}

// State is the persisted data of an entity plus its uncommitted writes.
// Diff entries keep the order in which fields were first written.
type State struct {
	mu        sync.RWMutex
	persisted map[string]interface{}
	diff      map[string]interface{}
	order     []string
}

// NewState creates a state whose persisted data is a copy of persisted
func NewState(persisted map[string]interface{}) *State {
	return &State{
		persisted: deepCopyMap(persisted),
		diff:      make(map[string]interface{}),
	}
}

// deepCopyMap creates a deep copy of a map
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

// deepCopyValue copies the containers JSON columns decode into
func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case map[string]interface{}:
		return deepCopyMap(val)
	case []byte:
		return append([]byte(nil), val...)
	default:
		return v
	}
}

// deepEqual compares two values for equality, handling nil and time values
func deepEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// Get returns the current value of a field: the pending write if any,
// otherwise the persisted value
func (s *State) Get(field string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.diff[field]; ok {
		return v, true
	}
	v, ok := s.persisted[field]
	return v, ok
}

// Persisted returns the last known database value of a field
func (s *State) Persisted(field string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.persisted[field]
	return v, ok
}

// Set records a write. Writing back the persisted value removes the field
// from the diff.
func (s *State) Set(field string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, had := s.persisted[field]
	if had && deepEqual(old, value) {
		if _, pending := s.diff[field]; pending {
			delete(s.diff, field)
			s.removeOrder(field)
		}
		return
	}

	if _, pending := s.diff[field]; !pending {
		s.order = append(s.order, field)
	}
	s.diff[field] = deepCopyValue(value)
}

func (s *State) removeOrder(field string) {
	for i, f := range s.order {
		if f == field {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Changed returns true if the specified field has a pending write
func (s *State) Changed(field string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.diff[field]
	return ok
}

// ChangedFields returns the fields with pending writes in write order
func (s *State) ChangedFields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// HasChanges returns true if any field has a pending write
func (s *State) HasChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.diff) > 0
}

// Changes returns the pending writes in write order
func (s *State) Changes() []FieldChange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := make([]FieldChange, 0, len(s.order))
	for _, field := range s.order {
		changes = append(changes, FieldChange{
			Field:    field,
			OldValue: s.persisted[field],
			NewValue: s.diff[field],
		})
	}
	return changes
}

// ChangedTo returns true if the field has a pending write of value
func (s *State) ChangedTo(field string, value interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.diff[field]
	return ok && deepEqual(v, value)
}

// ChangedFrom returns true if the field has a pending write and was value before
func (s *State) ChangedFrom(field string, value interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.diff[field]; !ok {
		return false
	}
	return deepEqual(s.persisted[field], value)
}

// Commit merges the diff and any values produced by the save itself
// (generated key, timestamps) into the persisted data and clears the diff
func (s *State) Commit(produced map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for field, v := range s.diff {
		s.persisted[field] = v
	}
	for field, v := range produced {
		s.persisted[field] = deepCopyValue(v)
	}
	s.diff = make(map[string]interface{})
	s.order = nil
}

// Discard drops all pending writes
func (s *State) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diff = make(map[string]interface{})
	s.order = nil
}

// Forget removes a field from both the persisted data and the diff
func (s *State) Forget(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.persisted, field)
	if _, ok := s.diff[field]; ok {
		delete(s.diff, field)
		s.removeOrder(field)
	}
}

// Apply records values written to the database outside the diff, such as a
// deletion mark, leaving other pending writes in place
func (s *State) Apply(values map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for field, v := range values {
		s.persisted[field] = deepCopyValue(v)
		if _, ok := s.diff[field]; ok {
			delete(s.diff, field)
			s.removeOrder(field)
		}
	}
}

// Snapshot returns a copy of the current values of all fields
func (s *State) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := deepCopyMap(s.persisted)
	for field, v := range s.diff {
		out[field] = deepCopyValue(v)
	}
	return out
}
