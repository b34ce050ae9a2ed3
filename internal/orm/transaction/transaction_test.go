package transaction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	// a file database survives database/sql discarding a connection after
	// a cancelled transaction
	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "tx.db"), nil)
	require.NoError(t, err)
	db.SQL().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL().Exec(`CREATE TABLE records (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func insertRecord(ctx context.Context, exec database.Executor, name string) error {
	_, err := exec.Exec(ctx, statement.NewInsert("records").Set("name", name, schema.TypeString))
	return err
}

func countRecords(t *testing.T, db *database.DB) int64 {
	t.Helper()
	rows, err := db.Query(context.Background(), statement.NewSelect("records", "").CountAll("count"))
	require.NoError(t, err)
	return rows[0]["count"].(int64)
}

func TestManager_WithTransaction(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db := setupTestDB(t)
		mgr := NewManager(db)

		err := mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
			for i := 0; i < 3; i++ {
				if err := insertRecord(ctx, Executor(ctx, db), fmt.Sprintf("r%d", i)); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), countRecords(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := setupTestDB(t)
		mgr := NewManager(db)
		boom := errors.New("boom")

		err := mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
			require.NoError(t, insertRecord(ctx, Executor(ctx, db), "lost"))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(0), countRecords(t, db))
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		db := setupTestDB(t)
		mgr := NewManager(db)

		assert.Panics(t, func() {
			_ = mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
				require.NoError(t, insertRecord(ctx, Executor(ctx, db), "lost"))
				panic("test panic")
			})
		})
		assert.Equal(t, int64(0), countRecords(t, db))
	})

	t.Run("constraint failures roll back earlier statements", func(t *testing.T) {
		db := setupTestDB(t)
		mgr := NewManager(db)

		err := mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
			exec := Executor(ctx, db)
			if err := insertRecord(ctx, exec, "first"); err != nil {
				return err
			}
			return insertRecord(ctx, exec, "")
		})
		require.NoError(t, err, "an empty name is not NULL")

		err = mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
			exec := Executor(ctx, db)
			if err := insertRecord(ctx, exec, "lost"); err != nil {
				return err
			}
			_, err := exec.Exec(ctx, statement.NewInsert("records").Set("name", nil, schema.TypeString))
			return err
		})
		assert.ErrorIs(t, err, database.ErrNotNullViolation)
		assert.Equal(t, int64(2), countRecords(t, db))
	})
}

func TestManager_NestedTransactions(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)

	err := mgr.WithTransaction(context.Background(), func(ctx context.Context) error {
		outer, ok := FromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, 0, outer.Level())

		require.NoError(t, insertRecord(ctx, Executor(ctx, db), "outer"))

		inner := mgr.WithTransaction(ctx, func(ctx context.Context) error {
			tx, _ := FromContext(ctx)
			assert.Equal(t, 1, tx.Level())
			require.NoError(t, insertRecord(ctx, Executor(ctx, db), "inner"))
			return errors.New("undo inner")
		})
		assert.Error(t, inner)

		return mgr.WithTransaction(ctx, func(ctx context.Context) error {
			return insertRecord(ctx, Executor(ctx, db), "inner kept")
		})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), countRecords(t, db))
}

func TestTransaction_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)

	tx, err := mgr.BeginWithIsolation(context.Background(), Serializable)
	require.NoError(t, err)
	assert.Equal(t, Serializable, tx.IsolationLevel())
	assert.NotNil(t, tx.Tx())

	require.NoError(t, tx.Commit())
	assert.True(t, tx.IsCommitted())
	assert.ErrorIs(t, tx.Commit(), ErrFinished)
	assert.ErrorIs(t, tx.Rollback(), ErrFinished)

	tx, err = mgr.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())
	assert.True(t, tx.IsRolledBack())

	_, err = (&Transaction{}).BeginNested(context.Background())
	assert.ErrorIs(t, err, ErrNestedTransactionNotSupported)
}

func TestExecutor_Fallback(t *testing.T) {
	db := setupTestDB(t)
	assert.Same(t, db, Executor(context.Background(), db))

	tx, err := NewManager(db).Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	assert.Same(t, tx.Executor(), Executor(tx.Context(), db))
}

func TestIsolationLevel(t *testing.T) {
	assert.Equal(t, "SERIALIZABLE", Serializable.String())
	assert.Equal(t, "DEFAULT", Default.String())
	assert.Nil(t, Default.ToSQLOptions())
	assert.NotNil(t, RepeatableRead.ToSQLOptions())
}

func TestManager_WithTimeout(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)

	err := mgr.WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTransactionTimeout)

	err = mgr.WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return insertRecord(ctx, Executor(ctx, db), "fast")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countRecords(t, db))
}
