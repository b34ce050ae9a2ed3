package entity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// blogRegistry declares the types the session tests run against
func blogRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	for _, def := range []schema.Definition{
		{
			Name:       "User",
			Table:      "users",
			Columns:    []schema.Column{schema.Col("name", "string"), schema.Col("age", "int"), schema.Col("role", "string")},
			Timestamps: true,
			SoftDelete: true,
			Relations: []schema.RelationDefinition{
				{Name: "posts", Target: "Post", Kind: "one_to_many"},
			},
		},
		{
			Name:  "Post",
			Table: "posts",
			Columns: []schema.Column{
				schema.Col("title", "string"),
				schema.Col("user_id", "int"),
				schema.Col("published", "bool"),
				schema.Col("published_on", "date"),
				schema.Col("meta", "json"),
			},
			Relations: []schema.RelationDefinition{
				{Name: "user", Target: "User", Loading: "lazy"},
				{Name: "tags", Target: "Tag", Kind: "many_to_many", Junction: "post_tags"},
			},
		},
		{
			Name:    "Tag",
			Table:   "tags",
			Columns: []schema.Column{schema.Col("name", "string")},
		},
		{
			Name:    "Role",
			Table:   "roles",
			Columns: []schema.Column{schema.Col("name", "string"), schema.Col("permissions", "json")},
			Relations: []schema.RelationDefinition{
				{Name: "parents", Target: "Role", Kind: "many_to_many", Junction: "role_hierarchy",
					ForeignKey: "role_id", BindingKey: "parent_id"},
			},
		},
		{
			Name:    "ApiKey",
			Table:   "api_keys",
			KeyType: "string",
			Columns: []schema.Column{schema.Col("label", "string")},
		},
		{
			Name:     "Country",
			Table:    "countries",
			Columns:  []schema.Column{schema.Col("code", "string")},
			ReadOnly: true,
		},
	} {
		require.NoError(t, reg.Register(def))
	}
	require.NoError(t, reg.ValidateAll())
	return reg
}

const blogDDL = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	age INTEGER,
	role TEXT,
	created_at DATETIME,
	updated_at DATETIME,
	deleted_at DATETIME
);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	user_id INTEGER REFERENCES users(id),
	published BOOLEAN,
	published_on DATE,
	meta TEXT
);
CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE);
CREATE TABLE post_tags (post_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, PRIMARY KEY (post_id, tag_id));
CREATE TABLE roles (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, permissions TEXT);
CREATE TABLE role_hierarchy (role_id INTEGER NOT NULL, parent_id INTEGER NOT NULL, PRIMARY KEY (role_id, parent_id));
CREATE TABLE api_keys (id TEXT PRIMARY KEY, label TEXT);
CREATE TABLE countries (id INTEGER PRIMARY KEY, code TEXT);
INSERT INTO countries (id, code) VALUES (1, 'NZ');
`

// newSQLiteSession opens a temporary database file with the blog tables
func newSQLiteSession(t *testing.T, opts ...Option) (*Session, *database.DB) {
	t.Helper()

	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "blog.db"), nil)
	require.NoError(t, err)
	db.SQL().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL().ExecContext(context.Background(), blogDDL)
	require.NoError(t, err)

	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewSession(blogRegistry(t), db, opts...), db
}

// newMockSession runs the session against sqlmock with SQLite placeholders
func newMockSession(t *testing.T) (*Session, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db := database.New(sqlDB, database.SQLite, nil)
	return NewSession(blogRegistry(t), db, WithClock(fixedClock)), mock
}
