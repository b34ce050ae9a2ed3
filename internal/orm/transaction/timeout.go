package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs WithTransaction under a deadline. A transaction still
// running when it expires is rolled back.
func (m *Manager) WithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.WithTransaction(timeoutCtx, fn)
	if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: transaction exceeded %v: %w", ErrTransactionTimeout, timeout, err)
	}
	return err
}

// BeginWithTimeout starts a transaction that must be committed or rolled
// back within timeout
func (m *Manager) BeginWithTimeout(ctx context.Context, timeout time.Duration) (*Transaction, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)

	tx, err := m.Begin(timeoutCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	tx.cancelFunc = cancel
	return tx, nil
}
