package hooks

import (
	"context"
)

// Context wraps the standard context with the hook's invocation details
type Context struct {
	context.Context
	kind   Kind
	entity string
}

// NewContext creates a new hook context
func NewContext(ctx context.Context, kind Kind, entity string) *Context {
	return &Context{
		Context: ctx,
		kind:    kind,
		entity:  entity,
	}
}

// Kind returns the lifecycle point being run
func (c *Context) Kind() Kind {
	return c.kind
}

// Entity returns the entity type name
func (c *Context) Entity() string {
	return c.entity
}
