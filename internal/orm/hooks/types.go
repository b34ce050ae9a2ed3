// Package hooks runs per-entity-type callbacks around save, delete and
// restore. Before-hooks may veto an operation by returning an error; nothing
// is written in that case.
package hooks

import (
	"fmt"
	"sync"
)

// Kind identifies the lifecycle point a hook runs at
type Kind int

const (
	BeforeSave Kind = iota
	AfterSave
	BeforeCreate
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
	AfterRestore
)

// String returns the string representation of the hook kind
func (k Kind) String() string {
	switch k {
	case BeforeSave:
		return "before_save"
	case AfterSave:
		return "after_save"
	case BeforeCreate:
		return "before_create"
	case AfterCreate:
		return "after_create"
	case BeforeUpdate:
		return "before_update"
	case AfterUpdate:
		return "after_update"
	case BeforeDelete:
		return "before_delete"
	case AfterDelete:
		return "after_delete"
	case AfterRestore:
		return "after_restore"
	default:
		return fmt.Sprintf("hook(%d)", int(k))
	}
}

// Record is the view of an entity instance a hook works with
type Record interface {
	EntityType() string
	IsNew() bool
	Get(name string) (interface{}, error)
	Set(name string, value interface{}) error
	Changed(name string) bool
	Snapshot() map[string]interface{}
}

// HookFunc represents a hook function that can be executed
type HookFunc func(ctx *Context, record Record) error

// Hook represents a registered lifecycle hook
type Hook struct {
	Kind Kind
	Fn   HookFunc
	// Async hooks run on the executor's queue against a read-only snapshot
	// after the operation; their errors are logged, never returned
	Async bool
}

// Registry manages the hooks of all entity types
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]map[Kind][]*Hook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[string]map[Kind][]*Hook),
	}
}

// Register adds a hook for an entity type
func (r *Registry) Register(entity string, kind Kind, hook *Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hook.Kind = kind
	if r.hooks[entity] == nil {
		r.hooks[entity] = make(map[Kind][]*Hook)
	}
	r.hooks[entity][kind] = append(r.hooks[entity][kind], hook)
}

// On registers a synchronous hook function
func (r *Registry) On(entity string, kind Kind, fn HookFunc) {
	r.Register(entity, kind, &Hook{Fn: fn})
}

// GetHooks returns all hooks of an entity type for a given kind
func (r *Registry) GetHooks(entity string, kind Kind) []*Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Hook(nil), r.hooks[entity][kind]...)
}

// HasHooks returns true if there are any hooks registered for the given kind
func (r *Registry) HasHooks(entity string, kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[entity][kind]) > 0
}
