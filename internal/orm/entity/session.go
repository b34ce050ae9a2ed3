// Package entity turns query results into entity graphs and entity changes
// into statements. A Session ties the metadata registry to an executor; every
// entity it produces carries the session for lazy loading and saving.
package entity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/hooks"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/transaction"
)

// ErrNoTransactions is returned by Session.Transaction when the executor
// cannot begin transactions
var ErrNoTransactions = errors.New("executor does not support transactions")

// Session is the composition root of the mapping engine
type Session struct {
	registry     *schema.Registry
	exec         database.Executor
	transactions *transaction.Manager
	hooks        *hooks.Executor
	asyncQueue   *hooks.AsyncQueue
	asyncWorkers int
	logger       *zap.Logger
	clock        func() time.Time
	newKey       func() string
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger used for lazy loads and saves
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithHooks runs lifecycle hooks around save, delete and restore
func WithHooks(executor *hooks.Executor) Option {
	return func(s *Session) { s.hooks = executor }
}

// WithAsyncHooks runs hooks registered with Async on a pool of workers
// owned by the session; Close drains it. It has no effect together with
// WithHooks.
func WithAsyncHooks(workers int) Option {
	return func(s *Session) { s.asyncWorkers = workers }
}

// WithClock replaces the time source used for timestamps and deletion marks
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithTransactions sets the transaction manager used by Session.Transaction.
// It defaults to a manager over the executor when that is a *database.DB.
func WithTransactions(manager *transaction.Manager) Option {
	return func(s *Session) { s.transactions = manager }
}

// NewSession creates a session over a registry and an executor
func NewSession(registry *schema.Registry, exec database.Executor, opts ...Option) *Session {
	s := &Session{
		registry: registry,
		exec:     exec,
		logger:   zap.NewNop(),
		clock:    time.Now,
		newKey:   func() string { return uuid.NewString() },
	}
	if db, ok := exec.(*database.DB); ok {
		s.transactions = transaction.NewManager(db)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.hooks == nil {
		if s.asyncWorkers > 0 {
			s.asyncQueue = hooks.NewAsyncQueue(s.asyncWorkers, s.logger)
			s.asyncQueue.Start()
		}
		s.hooks = hooks.NewExecutor(nil, s.asyncQueue, s.logger)
	}
	return s
}

// Close waits for queued async hooks to finish. Sessions without
// WithAsyncHooks have nothing to close.
func (s *Session) Close() {
	if s.asyncQueue != nil {
		s.asyncQueue.Shutdown()
	}
}

// Registry returns the metadata registry
func (s *Session) Registry() *schema.Registry { return s.registry }

// Hooks returns the hook registry of the session
func (s *Session) Hooks() *hooks.Registry { return s.hooks.Registry() }

// Repository returns the accessors of one entity type
func (s *Session) Repository(name string) (*Repository, error) {
	md, err := s.registry.Metadata(name)
	if err != nil {
		return nil, err
	}
	return &Repository{session: s, md: md}, nil
}

// MustRepository is like Repository but panics on error
func (s *Session) MustRepository(name string) *Repository {
	repo, err := s.Repository(name)
	if err != nil {
		panic(err)
	}
	return repo
}

// Transaction runs fn atomically. Every statement issued with the context
// handed to fn runs in the same transaction; an error or panic rolls all of
// them back. Nested calls use savepoints.
func (s *Session) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.transactions == nil {
		return ErrNoTransactions
	}
	return s.transactions.WithTransaction(ctx, fn)
}

// executor returns the transaction bound to ctx, if any, or the session executor
func (s *Session) executor(ctx context.Context) database.Executor {
	return transaction.Executor(ctx, s.exec)
}

// now returns the current time at the precision datetime columns store
func (s *Session) now() time.Time {
	return s.clock().UTC().Truncate(time.Second)
}

func (s *Session) runHooks(ctx context.Context, kind hooks.Kind, e *Entity) error {
	return s.hooks.Run(ctx, kind, e)
}
