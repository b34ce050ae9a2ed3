// Package database executes rendered statements through database/sql. It
// is the single place where named placeholders become driver arguments and
// where driver errors are classified.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

// Row is one result row keyed by output column name
type Row map[string]interface{}

// Result describes the effect of a write
type Result struct {
	RowsAffected int64
	// GeneratedKey is the database generated primary key of an INSERT, or
	// nil when none was produced
	GeneratedKey interface{}
}

// Executor runs statements. Query returns every row; an empty result is
// not an error.
type Executor interface {
	Query(ctx context.Context, stmt statement.Statement) ([]Row, error)
	Exec(ctx context.Context, stmt statement.Statement) (Result, error)
}

// conn is the subset of *sql.DB and *sql.Tx used for execution
type conn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DB is an Executor over a database/sql pool or transaction
type DB struct {
	db      *sql.DB
	conn    conn
	dialect Dialect
	logger  *zap.Logger
}

// Open opens a pool for a registered driver ("pgx", "postgres" or "sqlite3")
func Open(driver, url string, logger *zap.Logger) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return New(sqlDB, dialect, logger), nil
}

// New wraps an existing pool
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{db: db, conn: db, dialect: dialect, logger: logger}
}

// WithTx returns an executor that runs every statement inside tx
func (d *DB) WithTx(tx *sql.Tx) *DB {
	return &DB{db: d.db, conn: tx, dialect: d.dialect, logger: d.logger}
}

// SQL returns the underlying pool
func (d *DB) SQL() *sql.DB { return d.db }

// Dialect returns the dialect statements are bound for
func (d *DB) Dialect() Dialect { return d.dialect }

// Logger returns the statement logger
func (d *DB) Logger() *zap.Logger { return d.logger }

// Ping verifies the connection
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return executionError("ping", err)
	}
	return nil
}

// Close closes the pool
func (d *DB) Close() error {
	return d.db.Close()
}

// Query runs a statement and scans every row
func (d *DB) Query(ctx context.Context, stmt statement.Statement) ([]Row, error) {
	sqlText, args, err := statement.Compile(stmt, d.dialect.Style)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := d.conn.QueryContext(ctx, sqlText, args...)
	d.log(sqlText, args, start, err)
	if err != nil {
		return nil, executionError(sqlText, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, executionError(sqlText, err)
	}
	return out, nil
}

// Exec runs a write. For an INSERT with a returning column the generated key
// is read with RETURNING or LastInsertId depending on the dialect.
func (d *DB) Exec(ctx context.Context, stmt statement.Statement) (Result, error) {
	if ins, ok := stmt.(*statement.Insert); ok && ins.ReturningColumn() != "" {
		if d.dialect.Returning {
			return d.insertReturning(ctx, ins)
		}
		stmt = ins.WithoutReturning()
		return d.exec(ctx, stmt, true)
	}
	return d.exec(ctx, stmt, false)
}

func (d *DB) exec(ctx context.Context, stmt statement.Statement, wantID bool) (Result, error) {
	sqlText, args, err := statement.Compile(stmt, d.dialect.Style)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	res, err := d.conn.ExecContext(ctx, sqlText, args...)
	d.log(sqlText, args, start, err)
	if err != nil {
		return Result{}, executionError(sqlText, err)
	}

	var out Result
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return Result{}, executionError(sqlText, err)
	}
	if wantID {
		id, err := res.LastInsertId()
		if err != nil {
			return Result{}, executionError(sqlText, err)
		}
		out.GeneratedKey = id
	}
	return out, nil
}

func (d *DB) insertReturning(ctx context.Context, ins *statement.Insert) (Result, error) {
	sqlText, args, err := statement.Compile(ins, d.dialect.Style)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	rows, err := d.conn.QueryContext(ctx, sqlText, args...)
	d.log(sqlText, args, start, err)
	if err != nil {
		return Result{}, executionError(sqlText, err)
	}
	defer rows.Close()

	scanned, err := scanRows(rows)
	if err != nil {
		return Result{}, executionError(sqlText, err)
	}
	if len(scanned) == 0 {
		return Result{}, executionError(sqlText, fmt.Errorf("insert returned no rows"))
	}
	return Result{RowsAffected: int64(len(scanned)), GeneratedKey: scanned[0][ins.ReturningColumn()]}, nil
}

func (d *DB) log(sqlText string, args []interface{}, start time.Time, err error) {
	if ce := d.logger.Check(zap.DebugLevel, "sql"); ce != nil {
		ce.Write(
			zap.String("sql", sqlText),
			zap.Any("params", args),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}
}

// scanRows scans every row into a map keyed by column name
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Row, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		results = append(results, record)
	}
	return results, rows.Err()
}
