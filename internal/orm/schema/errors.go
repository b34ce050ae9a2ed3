package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrDefinition is the kind of every error raised while turning a definition into metadata
	ErrDefinition = errors.New("invalid entity definition")

	// ErrNotDefined is returned when a property name is not declared on an entity type
	ErrNotDefined = errors.New("property not defined")

	// ErrValue is returned when a value cannot be cast to its declared column type
	ErrValue = errors.New("invalid value")

	// ErrUnknownEntity is returned when an entity type was never registered
	ErrUnknownEntity = errors.New("unknown entity type")
)

// DefinitionError describes a metadata-definition problem on one entity type
type DefinitionError struct {
	Entity string
	Detail string
}

// Error implements the error interface
func (e *DefinitionError) Error() string {
	return fmt.Sprintf("entity %s: %s", e.Entity, e.Detail)
}

// Unwrap lets errors.Is match ErrDefinition
func (e *DefinitionError) Unwrap() error {
	return ErrDefinition
}

func definitionErrorf(entity, format string, args ...interface{}) error {
	return &DefinitionError{Entity: entity, Detail: fmt.Sprintf(format, args...)}
}

// ValueError reports a value that does not fit a column type
type ValueError struct {
	Entity   string
	Property string
	Type     Type
	Err      error
}

// Error implements the error interface
func (e *ValueError) Error() string {
	return fmt.Sprintf("%s.%s (%s): %v", e.Entity, e.Property, e.Type, e.Err)
}

// Unwrap lets errors.Is match ErrValue
func (e *ValueError) Unwrap() []error {
	return []error{ErrValue, e.Err}
}
