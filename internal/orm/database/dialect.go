package database

import (
	"fmt"

	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

// Dialect captures the few places where supported databases differ
type Dialect struct {
	Name string
	// Style is the positional placeholder syntax of the driver
	Style statement.Style
	// Returning reports whether generated keys are read with INSERT ... RETURNING
	// instead of the driver's LastInsertId
	Returning bool
}

var (
	// Postgres serves both the pgx and lib/pq drivers
	Postgres = Dialect{Name: "postgres", Style: statement.Dollar, Returning: true}

	// SQLite serves the go-sqlite3 driver
	SQLite = Dialect{Name: "sqlite", Style: statement.Question}
)

// DialectFor maps a database/sql driver name to its dialect
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}
