package transaction

import (
	"context"

	"github.com/conduit-lang/ormkit/internal/orm/database"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// contextKeyTransaction is the key for storing a transaction in context
	contextKeyTransaction contextKey = "ormkit:transaction"
)

// FromContext retrieves a transaction from the context
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(contextKeyTransaction).(*Transaction)
	return tx, ok
}

// WithContext returns a new context with the transaction embedded
func WithContext(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, contextKeyTransaction, tx)
}

// Executor returns the executor of the transaction carried by ctx, or
// fallback when there is none
func Executor(ctx context.Context, fallback database.Executor) database.Executor {
	if tx, ok := FromContext(ctx); ok {
		return tx.Executor()
	}
	return fallback
}
