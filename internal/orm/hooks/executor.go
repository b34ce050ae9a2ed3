package hooks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrReadOnlySnapshot is returned when an async hook writes to its record
var ErrReadOnlySnapshot = errors.New("async hook records are read-only")

// Executor executes lifecycle hooks
type Executor struct {
	registry   *Registry
	asyncQueue *AsyncQueue
	logger     *zap.Logger
}

// NewExecutor creates a new hook executor. asyncQueue may be nil when no
// async hooks are registered.
func NewExecutor(registry *Registry, asyncQueue *AsyncQueue, logger *zap.Logger) *Executor {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry:   registry,
		asyncQueue: asyncQueue,
		logger:     logger,
	}
}

// Run executes all hooks of the record's entity type for kind, in
// registration order. The first synchronous failure stops the run.
func (e *Executor) Run(ctx context.Context, kind Kind, record Record) error {
	entity := record.EntityType()
	hooks := e.registry.GetHooks(entity, kind)
	if len(hooks) == 0 {
		return nil
	}

	hookCtx := NewContext(ctx, kind, entity)
	for _, hook := range hooks {
		if hook.Async {
			if err := e.enqueueAsyncHook(hookCtx, hook, record); err != nil {
				e.logger.Warn("failed to enqueue async hook",
					zap.String("entity", entity), zap.Stringer("hook", kind), zap.Error(err))
			}
			continue
		}
		if err := hook.Fn(hookCtx, record); err != nil {
			return fmt.Errorf("%s hook %s failed: %w", entity, kind, err)
		}
	}
	return nil
}

// enqueueAsyncHook queues an async hook against a snapshot of the record
func (e *Executor) enqueueAsyncHook(hookCtx *Context, hook *Hook, record Record) error {
	if e.asyncQueue == nil {
		return fmt.Errorf("async queue not configured")
	}

	snap := &snapshot{entity: record.EntityType(), isNew: record.IsNew(), values: record.Snapshot()}
	task := AsyncTask{
		Name: fmt.Sprintf("%s_%s_hook", snap.entity, hook.Kind),
		Fn: func(ctx context.Context) error {
			return hook.Fn(NewContext(ctx, hookCtx.kind, hookCtx.entity), snap)
		},
	}
	return e.asyncQueue.Enqueue(task)
}

// HasHooks returns true if there are any hooks registered for the given kind
func (e *Executor) HasHooks(entity string, kind Kind) bool {
	return e.registry.HasHooks(entity, kind)
}

// Registry returns the hook registry
func (e *Executor) Registry() *Registry {
	return e.registry
}

// snapshot is the read-only record handed to async hooks
type snapshot struct {
	entity string
	isNew  bool
	values map[string]interface{}
}

func (s *snapshot) EntityType() string { return s.entity }
func (s *snapshot) IsNew() bool        { return s.isNew }
func (s *snapshot) Changed(string) bool {
	return false
}
func (s *snapshot) Snapshot() map[string]interface{} { return s.values }

func (s *snapshot) Get(name string) (interface{}, error) {
	v, ok := s.values[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s is not in the snapshot", s.entity, name)
	}
	return v, nil
}

func (s *snapshot) Set(string, interface{}) error {
	return ErrReadOnlySnapshot
}
