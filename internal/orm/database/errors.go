package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrExecution is the root of every failure reported by the database
	ErrExecution = errors.New("statement execution failed")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrRetryable marks deadlocks, serialization failures and busy databases
	ErrRetryable = errors.New("transient database conflict")
)

// ExecutionError wraps a driver failure with the SQL that caused it
type ExecutionError struct {
	SQL string
	Err error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", ErrExecution, e.Err)
}

// Unwrap exposes both ErrExecution and the classified driver error
func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

func executionError(sql string, err error) error {
	return &ExecutionError{SQL: sql, Err: ConvertDBError(err)}
}

// ConvertDBError classifies driver errors from pgx, lib/pq and go-sqlite3
// into the constraint sentinels above. Unknown errors pass through.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(err, pgErr.Code, pgErr.Detail, pgErr.ColumnName)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(err, string(pqErr.Code), pqErr.Detail, pqErr.Column)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
		case sqlite3.ErrConstraintNotNull:
			return fmt.Errorf("%w: %w", ErrNotNullViolation, err)
		case sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %w", ErrCheckViolation, err)
		}
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %w", ErrRetryable, err)
		}
	}

	return err
}

func classifyPostgres(err error, code, detail, column string) error {
	switch code {
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s: %w", ErrUniqueViolation, detail, err)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %s: %w", ErrForeignKeyViolation, detail, err)
	case "23514": // check_violation
		return fmt.Errorf("%w: %s: %w", ErrCheckViolation, detail, err)
	case "23502": // not_null_violation
		return fmt.Errorf("%w: column %s: %w", ErrNotNullViolation, column, err)
	case "40P01", "40001": // deadlock_detected, serialization_failure
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	return err
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsForeignKeyViolation returns true if the error is ErrForeignKeyViolation
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsRetryable returns true for deadlocks and serialization failures
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
