package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/query"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

func TestSQLite_SaveThenGetRoundTrip(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()
	posts := session.MustRepository("Post")

	published := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	post, err := posts.New(map[string]interface{}{
		"title":        "leap day",
		"published":    true,
		"published_on": "2024-02-29",
		"meta":         map[string]interface{}{"words": float64(120), "tags": []interface{}{"go"}},
	})
	require.NoError(t, err)
	require.NoError(t, post.Save(ctx))
	require.False(t, post.IsNew())

	fetched, err := posts.Get(ctx, post.Key())
	require.NoError(t, err)
	assert.Equal(t, post.Snapshot()["title"], fetched.String("title"))
	assert.True(t, fetched.Bool("published"))
	assert.True(t, published.Equal(fetched.Time("published_on")))
	assert.Equal(t, post.Snapshot()["meta"], fetched.Snapshot()["meta"])
	assert.Nil(t, fetched.Snapshot()["user_id"])

	_, err = posts.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("json numbers compare equal after a reload", func(t *testing.T) {
		post, err := posts.New(map[string]interface{}{"title": "counts", "meta": []interface{}{1, 2}})
		require.NoError(t, err)
		require.NoError(t, post.Save(ctx))

		fetched, err := posts.Get(ctx, post.Key())
		require.NoError(t, err)
		assert.Equal(t, post.Snapshot()["meta"], fetched.Snapshot()["meta"])

		require.NoError(t, fetched.Set("meta", []interface{}{1, 2}))
		assert.False(t, fetched.Dirty())
	})
}

func TestSQLite_StringKeysAreGenerated(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()
	keys := session.MustRepository("ApiKey")

	k, err := keys.New(map[string]interface{}{"label": "ci"})
	require.NoError(t, err)
	require.NoError(t, k.Save(ctx))

	id, ok := k.Key().(string)
	require.True(t, ok)
	assert.Len(t, id, 36)

	fetched, err := keys.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ci", fetched.String("label"))
}

func TestSQLite_SoftDeletion(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()
	users := session.MustRepository("User")

	var ann *Entity
	for _, name := range []string{"ann", "bob"} {
		u, err := users.New(map[string]interface{}{"name": name, "age": 30})
		require.NoError(t, err)
		require.NoError(t, u.Save(ctx))
		if name == "ann" {
			ann = u
		}
	}
	assert.Equal(t, fixedNow, ann.Time("created_at"))

	require.NoError(t, ann.Delete(ctx, false))
	assert.True(t, ann.IsDeleted())
	assert.ErrorIs(t, ann.Delete(ctx, false), ErrAlreadyDeleted)

	live, err := users.All(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "bob", live[0].String("name"))

	count, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	everyone, err := users.Query().ShowDeleted(true).OrderBy("name", "asc").All(ctx)
	require.NoError(t, err)
	assert.Len(t, everyone, 2)

	byKey, err := users.Get(ctx, ann.Key())
	require.NoError(t, err, "deleted rows stay reachable by key")
	assert.True(t, byKey.IsDeleted())

	require.NoError(t, byKey.Restore(ctx))
	assert.False(t, byKey.IsDeleted())
	assert.ErrorIs(t, byKey.Restore(ctx), ErrNotDeleted)

	live, err = users.All(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 2)

	t.Run("hard delete removes the row", func(t *testing.T) {
		key := byKey.Key()
		require.NoError(t, byKey.Delete(ctx, true))
		assert.True(t, byKey.IsNew())

		_, err := users.Get(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSQLite_RestoreOfMissingRow(t *testing.T) {
	session, db := newSQLiteSession(t)
	ctx := context.Background()

	u, err := session.MustRepository("User").New(map[string]interface{}{"name": "ann"})
	require.NoError(t, err)
	require.NoError(t, u.Save(ctx))
	require.NoError(t, u.Delete(ctx, false))

	_, err = db.SQL().ExecContext(ctx, "DELETE FROM users")
	require.NoError(t, err)

	assert.ErrorIs(t, u.Restore(ctx), ErrNotFound)
	assert.True(t, u.IsDeleted(), "the deletion mark stays when nothing was restored")
}

func TestSQLite_Filters(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()
	users := session.MustRepository("User")

	for _, u := range []struct {
		name string
		age  int
		role string
	}{{"ann", 34, "admin"}, {"bob", 15, "member"}, {"cid", 22, "member"}, {"dee", 17, "admin"}} {
		e, err := users.New(map[string]interface{}{"name": u.name, "age": u.age, "role": u.role})
		require.NoError(t, err)
		require.NoError(t, e.Save(ctx))
	}

	adults := func(l *query.List) *query.List { return l.Where("age", ">=", 18) }
	found, err := users.All(ctx, adults)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = users.Query().
		Where("age", ">=", 18).
		OrWhere(query.F("role", "=", "admin"), query.F("age", "<", 18)).
		OrderBy("name", "desc").
		All(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ann", found[0].String("name"))

	page, err := users.Query().OrderBy("name", "asc").Limit(2).Offset(1).All(ctx)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "bob", page[0].String("name"))

	members := users.Query().Where("role", "=", "member").OrderBy("name", "asc")
	first, err := members.First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob", first.String("name"))
	all, err := members.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "First leaves the query unlimited")

	n, err := users.Query().WhereIn("name", "ann", "dee").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = users.Query().Where("shoe_size", "=", 9).All(ctx)
	assert.Error(t, err)
}

func TestSQLite_OneToManyCollection(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()

	user, err := session.MustRepository("User").New(map[string]interface{}{"name": "ann"})
	require.NoError(t, err)
	posts, err := user.Collection(ctx, "posts")
	require.NoError(t, err)

	first, err := session.MustRepository("Post").New(map[string]interface{}{"title": "first"})
	require.NoError(t, err)
	require.NoError(t, posts.Add(ctx, first), "adding to a new owner saves the owner first")
	assert.False(t, user.IsNew())
	assert.Equal(t, user.Key(), first.Snapshot()["user_id"])

	second, err := session.MustRepository("Post").New(map[string]interface{}{"title": "second"})
	require.NoError(t, err)
	require.NoError(t, posts.Add(ctx, second))
	require.NoError(t, posts.Add(ctx, second))
	assert.Equal(t, 2, posts.Len())

	tag, err := session.MustRepository("Tag").New(map[string]interface{}{"name": "go"})
	require.NoError(t, err)
	assert.ErrorIs(t, posts.Add(ctx, tag), ErrWrongType)

	reloaded, err := session.MustRepository("User").Get(ctx, user.Key())
	require.NoError(t, err)
	loaded, err := reloaded.Collection(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, keysOf(posts.Items()), keysOf(loaded.Items()))

	require.NoError(t, loaded.Remove(ctx, first))
	assert.Equal(t, 1, loaded.Len())
	_, err = session.MustRepository("Post").Get(ctx, first.Key())
	assert.ErrorIs(t, err, ErrNotFound, "posts have no soft deletion, removal deletes the row")
}

func TestSQLite_OneToManyAddReplacesOwner(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()
	users := session.MustRepository("User")

	ann, err := users.New(map[string]interface{}{"name": "ann"})
	require.NoError(t, err)
	bob, err := users.New(map[string]interface{}{"name": "bob"})
	require.NoError(t, err)

	post, err := session.MustRepository("Post").New(map[string]interface{}{"title": "moved"})
	require.NoError(t, err)
	require.NoError(t, post.SetRelated("user", ann))

	bobsPosts, err := bob.Collection(ctx, "posts")
	require.NoError(t, err)
	require.NoError(t, bobsPosts.Add(ctx, post))
	assert.True(t, bobsPosts.Contains(post))
	assert.True(t, ann.IsNew(), "the replaced owner is not saved")

	owner, err := post.Related(ctx, "user")
	require.NoError(t, err)
	assert.Same(t, bob, owner)

	stored, err := session.MustRepository("Post").Get(ctx, post.Key())
	require.NoError(t, err)
	assert.Equal(t, bob.Key(), stored.Snapshot()["user_id"])

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_ManyToManyCollection(t *testing.T) {
	session, db := newSQLiteSession(t)
	ctx := context.Background()
	tags := session.MustRepository("Tag")

	post, err := session.MustRepository("Post").New(map[string]interface{}{"title": "hello"})
	require.NoError(t, err)
	members, err := post.Collection(ctx, "tags")
	require.NoError(t, err)

	var all []*Entity
	for _, name := range []string{"go", "sql", "orm"} {
		tag, err := tags.New(map[string]interface{}{"name": name})
		require.NoError(t, err)
		all = append(all, tag)
	}

	require.NoError(t, members.Add(ctx, all[0]))
	require.NoError(t, members.Add(ctx, all[1]))
	require.NoError(t, members.Add(ctx, all[1]), "adding a member twice is a no-op")
	assert.False(t, post.IsNew())
	assert.False(t, all[1].IsNew())

	require.NoError(t, members.Set(ctx, []*Entity{all[1], all[2]}))
	assert.Equal(t, keysOf([]*Entity{all[1], all[2]}), keysOf(members.Items()))

	junctionRows, err := db.Query(ctx, countStatement("post_tags"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), junctionRows[0]["count"])

	require.NoError(t, members.Remove(ctx, all[1]))
	_, err = tags.Get(ctx, all[1].Key())
	assert.NoError(t, err, "removal only deletes the junction row")

	reloaded, err := session.MustRepository("Post").Get(ctx, post.Key())
	require.NoError(t, err)
	loaded, err := reloaded.Collection(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"orm"}, names(loaded.Items()))
}

func TestSQLite_RoleHierarchy(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()
	roles := session.MustRepository("Role")

	a, err := roles.New(map[string]interface{}{"name": "A", "permissions": []interface{}{"read"}})
	require.NoError(t, err)
	b, err := roles.New(map[string]interface{}{"name": "B", "permissions": []interface{}{"read", "write"}})
	require.NoError(t, err)
	c, err := roles.New(map[string]interface{}{"name": "C"})
	require.NoError(t, err)

	aParents, err := a.Collection(ctx, "parents")
	require.NoError(t, err)
	require.NoError(t, aParents.Add(ctx, b))

	reloaded, err := roles.Get(ctx, a.Key())
	require.NoError(t, err)
	parents, err := reloaded.Collection(ctx, "parents")
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, names(parents.Items()))
	assert.Equal(t, []interface{}{"read", "write"}, parents.Items()[0].Snapshot()["permissions"])

	bParents, err := b.Collection(ctx, "parents")
	require.NoError(t, err)
	err = bParents.Add(ctx, a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRelationCycle)
	assert.Equal(t, 0, bParents.Len())

	t.Run("longer cycles and self membership are rejected", func(t *testing.T) {
		cParents, err := c.Collection(ctx, "parents")
		require.NoError(t, err)
		require.NoError(t, cParents.Add(ctx, a)) // C -> A -> B

		err = bParents.Add(ctx, c)
		assert.ErrorIs(t, err, ErrRelationCycle)

		err = cParents.Add(ctx, c)
		assert.ErrorIs(t, err, ErrRelationCycle)

		require.NoError(t, bParents.Add(ctx, mustNewRole(t, roles, "D")), "unrelated parents are fine")
	})
}

func TestSQLite_ReadOnlyTypes(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()

	nz, err := session.MustRepository("Country").Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "NZ", nz.String("code"))

	assert.ErrorIs(t, nz.Set("code", "AU"), ErrReadOnly)
	assert.ErrorIs(t, nz.Save(ctx), ErrReadOnly)
	assert.ErrorIs(t, nz.Delete(ctx, true), ErrReadOnly)
}

func TestSQLite_Transaction(t *testing.T) {
	session, _ := newSQLiteSession(t)
	ctx := context.Background()
	users := session.MustRepository("User")

	boom := errors.New("boom")
	err := session.Transaction(ctx, func(ctx context.Context) error {
		u, err := users.New(map[string]interface{}{"name": "ann"})
		if err != nil {
			return err
		}
		if err := u.Save(ctx); err != nil {
			return err
		}
		inside, err := users.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), inside)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "the insert was rolled back")

	err = session.Transaction(ctx, func(ctx context.Context) error {
		u, err := users.New(map[string]interface{}{"name": "bob"})
		if err != nil {
			return err
		}
		return u.Save(ctx)
	})
	require.NoError(t, err)
	count, err = users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	noTx := NewSession(session.Registry(), database.Executor(nil))
	assert.ErrorIs(t, noTx.Transaction(ctx, func(context.Context) error { return nil }), ErrNoTransactions)
}

func mustNewRole(t *testing.T, roles *Repository, name string) *Entity {
	t.Helper()
	r, err := roles.New(map[string]interface{}{"name": name})
	require.NoError(t, err)
	return r
}

func names(entities []*Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.String("name")
	}
	return out
}

func countStatement(table string) *statement.Select {
	return statement.NewSelect(table, "").CountAll(query.CountColumn)
}
