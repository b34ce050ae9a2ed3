package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/tracking"
)

// Entity is one row of an entity type plus its resolved relations. Column
// values live in a tracking.State; writes stay pending until Save.
type Entity struct {
	session *Session
	md      *schema.Metadata
	state   *tracking.State

	// related holds resolved one-to-one targets; a nil value means the
	// relation resolved to nothing
	related     map[string]*Entity
	collections map[string]*Collection
	resolved    map[string]bool

	// saving is set while Save runs; afterWrite holds key back-fills queued
	// by targets that were saved before this entity had a key
	saving     bool
	afterWrite []func(context.Context) error
}

func newEntity(s *Session, md *schema.Metadata, persisted map[string]interface{}) *Entity {
	return &Entity{
		session:     s,
		md:          md,
		state:       tracking.NewState(persisted),
		related:     make(map[string]*Entity),
		collections: make(map[string]*Collection),
		resolved:    make(map[string]bool),
	}
}

// EntityType returns the entity type name
func (e *Entity) EntityType() string { return e.md.Name() }

// Metadata returns the entity type metadata
func (e *Entity) Metadata() *schema.Metadata { return e.md }

// Key returns the primary key value, nil for a new entity
func (e *Entity) Key() interface{} {
	v, _ := e.state.Persisted(e.md.PrimaryKey())
	return v
}

// IsNew reports whether the entity has never been saved
func (e *Entity) IsNew() bool {
	return e.Key() == nil
}

// IsDeleted reports whether the entity carries a soft-deletion mark
func (e *Entity) IsDeleted() bool {
	if !e.md.SoftDelete() {
		return false
	}
	v, _ := e.state.Persisted(schema.DeletedAtColumn)
	return v != nil
}

// Dirty reports whether Save would write anything
func (e *Entity) Dirty() bool {
	if e.IsNew() || e.state.HasChanges() {
		return true
	}
	for name, target := range e.related {
		if target != nil && target.IsNew() && e.resolved[name] {
			return true
		}
	}
	return false
}

// Get returns a column value, or a resolved relation value. Relations that
// have not been loaded yet fail; use Related or Collection to load them.
func (e *Entity) Get(name string) (interface{}, error) {
	if e.md.HasColumn(name) {
		v, _ := e.state.Get(name)
		return v, nil
	}
	rel, ok := e.md.Relation(name)
	if !ok {
		_, err := e.md.PropertyType(name)
		return nil, fmt.Errorf("%w: %w", ErrProperty, err)
	}
	if !e.resolved[name] {
		return nil, propertyError(e.md, name, "is not loaded")
	}
	if rel.IsCollection() {
		return e.collections[name], nil
	}
	return e.related[name], nil
}

// Set writes a property. Column values are cast to the column type; a
// one-to-one relation accepts an *Entity of the target type or nil.
// Collections are changed through their Collection.
func (e *Entity) Set(name string, value interface{}) error {
	if e.md.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, e.md.Name())
	}

	if rel, ok := e.md.Relation(name); ok {
		if rel.IsCollection() {
			return propertyError(e.md, name, "is a collection, change it with Collection")
		}
		if value == nil {
			return e.SetRelated(name, nil)
		}
		target, ok := value.(*Entity)
		if !ok {
			return fmt.Errorf("%w: %s.%s expects a %s entity, got %T",
				ErrWrongType, e.md.Name(), name, rel.TargetName(), value)
		}
		return e.SetRelated(name, target)
	}

	cast, err := e.md.Cast(name, value)
	if err != nil {
		if _, undefined := e.md.PropertyType(name); undefined != nil {
			return fmt.Errorf("%w: %w", ErrProperty, err)
		}
		return err
	}
	if name == e.md.PrimaryKey() && !e.IsNew() {
		return propertyError(e.md, name, "is the key of a persisted entity")
	}
	e.state.Set(name, cast)
	return nil
}

// SetRelated assigns a one-to-one relation. The foreign key is written
// immediately when the target is persisted; an unsaved target is saved
// first when the owner is saved.
func (e *Entity) SetRelated(name string, target *Entity) error {
	if e.md.ReadOnly() {
		return fmt.Errorf("%w: %s", ErrReadOnly, e.md.Name())
	}
	rel, ok := e.md.Relation(name)
	if !ok || rel.IsCollection() {
		return propertyError(e.md, name, "is not a one-to-one relation")
	}

	if target == nil {
		e.state.Set(rel.ForeignKey(), nil)
	} else {
		if target.md.Name() != rel.TargetName() {
			return fmt.Errorf("%w: %s.%s expects %s, got %s",
				ErrWrongType, e.md.Name(), name, rel.TargetName(), target.md.Name())
		}
		if !target.IsNew() {
			v, _ := target.state.Get(rel.BindingKey())
			e.state.Set(rel.ForeignKey(), v)
		}
	}
	e.related[name] = target
	e.resolved[name] = true
	return nil
}

// Changed reports whether a column has a pending write
func (e *Entity) Changed(name string) bool {
	return e.state.Changed(name)
}

// Changes returns the pending column writes in write order
func (e *Entity) Changes() []tracking.FieldChange {
	return e.state.Changes()
}

// Snapshot returns the current column values
func (e *Entity) Snapshot() map[string]interface{} {
	return e.state.Snapshot()
}

// Discard drops pending column writes
func (e *Entity) Discard() {
	e.state.Discard()
}

// Value returns a column value as T. A nil value yields the zero T.
func Value[T any](e *Entity, name string) (T, error) {
	var zero T
	v, err := e.Get(name)
	if err != nil || v == nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s is %T, not %T", ErrWrongType, e.md.Name(), name, v, zero)
	}
	return typed, nil
}

// String returns a string column, or "" when unset or not a string
func (e *Entity) String(name string) string {
	v, _ := Value[string](e, name)
	return v
}

// Int returns an int column, or 0 when unset or not an int
func (e *Entity) Int(name string) int64 {
	v, _ := Value[int64](e, name)
	return v
}

// Float returns a float column, or 0 when unset or not a float
func (e *Entity) Float(name string) float64 {
	v, _ := Value[float64](e, name)
	return v
}

// Bool returns a bool column, or false when unset or not a bool
func (e *Entity) Bool(name string) bool {
	v, _ := Value[bool](e, name)
	return v
}

// Time returns a date or datetime column, or the zero time
func (e *Entity) Time(name string) time.Time {
	v, _ := Value[time.Time](e, name)
	return v
}
