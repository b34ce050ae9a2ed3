package entity

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

var (
	// ErrProperty is returned for access to an undeclared property or a
	// property that cannot be used the way it was asked for
	ErrProperty = errors.New("invalid property access")

	// ErrReadOnly is returned when writing to an instance of a read-only type
	ErrReadOnly = errors.New("entity type is read-only")

	// ErrWrongType is returned when an entity of the wrong type is assigned
	// to a relation or collection
	ErrWrongType = fmt.Errorf("%w: wrong entity type", schema.ErrValue)

	// ErrRelationCycle is returned when a self-referencing many-to-many add
	// would close a cycle
	ErrRelationCycle = fmt.Errorf("%w: relation cycle", schema.ErrValue)

	// ErrNotFound is returned when a lookup by key matches no row
	ErrNotFound = errors.New("entity not found")

	// ErrNotPersisted is returned when deleting or restoring a new entity
	ErrNotPersisted = errors.New("entity is not persisted")

	// ErrNotDeleted is returned when restoring an entity that is not soft-deleted
	ErrNotDeleted = errors.New("entity is not deleted")

	// ErrAlreadyDeleted is returned when soft-deleting an entity twice
	ErrAlreadyDeleted = errors.New("entity is already deleted")
)

func propertyError(md *schema.Metadata, name, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s.%s %s", ErrProperty, md.Name(), name, fmt.Sprintf(format, args...))
}
