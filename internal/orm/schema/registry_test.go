package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blogDefinitions() []Definition {
	return []Definition{
		{
			Name:       "User",
			Table:      "users",
			Columns:    []Column{Col("name", "string"), Col("age", "int"), Col("role", "string")},
			Timestamps: true,
			SoftDelete: true,
			Relations: []RelationDefinition{
				{Name: "posts", Target: "Post", Kind: "one_to_many"},
			},
		},
		{
			Name:    "Post",
			Table:   "posts",
			Columns: []Column{Col("title", "string"), Col("user_id", "int")},
			Relations: []RelationDefinition{
				{Name: "user", Target: "User", Loading: "lazy"},
				{Name: "comments", Target: "Comment", Kind: "one_to_many", Loading: "eager"},
				{Name: "tags", Target: "Tag", Kind: "many_to_many", Junction: "post_tags", Loading: "eager"},
			},
		},
		{
			Name:    "Comment",
			Table:   "comments",
			Columns: []Column{Col("body", "string"), Col("post_id", "int")},
			Relations: []RelationDefinition{
				{Name: "post", Target: "Post", Loading: "lazy"},
			},
		},
		{
			Name:    "Tag",
			Table:   "tags",
			Columns: []Column{Col("name", "string")},
		},
	}
}

func newBlogRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, def := range blogDefinitions() {
		require.NoError(t, reg.Register(def))
	}
	return reg
}

func TestRegistry(t *testing.T) {
	t.Run("builds metadata with injected columns", func(t *testing.T) {
		reg := newBlogRegistry(t)

		md, err := reg.Metadata("User")
		require.NoError(t, err)

		assert.Equal(t, "users", md.Table())
		assert.Equal(t, "id", md.PrimaryKey())
		assert.Equal(t, []string{"id", "name", "age", "role", "created_at", "updated_at", "deleted_at"}, md.ColumnNames())
		assert.True(t, md.Timestamps())
		assert.True(t, md.SoftDelete())

		typ, err := md.PropertyType("age")
		require.NoError(t, err)
		assert.Equal(t, TypeInt, typ)
	})

	t.Run("unknown property is not defined", func(t *testing.T) {
		reg := newBlogRegistry(t)
		md := reg.MustMetadata("User")

		_, err := md.PropertyType("nickname")
		assert.ErrorIs(t, err, ErrNotDefined)
		assert.Contains(t, err.Error(), "User.nickname")
	})

	t.Run("duplicate registration", func(t *testing.T) {
		reg := newBlogRegistry(t)
		err := reg.Register(Definition{Name: "User", Table: "users"})
		assert.ErrorIs(t, err, ErrDefinition)
	})

	t.Run("unknown entity type", func(t *testing.T) {
		reg := newBlogRegistry(t)
		_, err := reg.Metadata("Invoice")
		assert.ErrorIs(t, err, ErrUnknownEntity)
	})

	t.Run("metadata is shared", func(t *testing.T) {
		reg := newBlogRegistry(t)
		a := reg.MustMetadata("Post")
		b := reg.MustMetadata("Post")
		assert.Same(t, a, b)
	})

	t.Run("concurrent first access builds once", func(t *testing.T) {
		reg := newBlogRegistry(t)

		const workers = 32
		results := make([]*Metadata, workers)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				md, err := reg.Metadata("Post")
				assert.NoError(t, err)
				results[i] = md
			}(i)
		}
		close(start)
		wg.Wait()

		for _, md := range results {
			assert.Same(t, results[0], md)
		}
		assert.Equal(t, int64(1), reg.builds.Load())
	})

	t.Run("validate all", func(t *testing.T) {
		reg := newBlogRegistry(t)
		require.NoError(t, reg.ValidateAll())
		assert.Equal(t, []string{"Comment", "Post", "Tag", "User"}, reg.Names())
		assert.Equal(t, 4, reg.Count())
	})

	t.Run("mutually referencing types both build", func(t *testing.T) {
		reg := newBlogRegistry(t)

		post := reg.MustMetadata("Post")
		rel, ok := post.Relation("user")
		require.True(t, ok)

		user, err := rel.Target()
		require.NoError(t, err)
		assert.Equal(t, "User", user.Name())

		posts, ok := user.Relation("posts")
		require.True(t, ok)
		back, err := posts.Target()
		require.NoError(t, err)
		assert.Same(t, post, back)
	})
}

func TestStructuralValidation(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		message string
	}{
		{
			name:    "unrecognized column type",
			def:     Definition{Name: "User", Table: "users", Columns: []Column{Col("age", "integer64")}},
			message: `column age has unrecognized type "integer64"`,
		},
		{
			name:    "primary key declared as column",
			def:     Definition{Name: "User", Table: "users", Columns: []Column{Col("id", "int")}},
			message: "column id is the primary key",
		},
		{
			name:    "timestamp declared as column",
			def:     Definition{Name: "User", Table: "users", Timestamps: true, Columns: []Column{Col("created_at", "datetime")}},
			message: "column created_at is a timestamp column",
		},
		{
			name:    "soft deletion column declared",
			def:     Definition{Name: "User", Table: "users", Columns: []Column{Col("deleted_at", "datetime")}},
			message: "soft-deletion column",
		},
		{
			name:    "bad table identifier",
			def:     Definition{Name: "User", Table: "users; drop table users"},
			message: "not a valid identifier",
		},
		{
			name:    "duplicate column",
			def:     Definition{Name: "User", Table: "users", Columns: []Column{Col("name", "string"), Col("name", "string")}},
			message: "declared twice",
		},
		{
			name: "relation colliding with column",
			def: Definition{Name: "User", Table: "users", Columns: []Column{Col("posts", "int")},
				Relations: []RelationDefinition{{Name: "posts", Target: "Post"}}},
			message: "collides",
		},
		{
			name:    "unsupported key type",
			def:     Definition{Name: "User", Table: "users", KeyType: "decimal"},
			message: "unsupported primary key type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDefinition)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestStringKeys(t *testing.T) {
	reg := NewRegistry().MustRegister(Definition{Name: "Session", Table: "sessions", KeyType: "uuid"})
	md := reg.MustMetadata("Session")
	assert.True(t, md.GeneratesKey())
	assert.Equal(t, TypeString, md.KeyType())
}

func TestMetadataCast(t *testing.T) {
	reg := newBlogRegistry(t)
	md := reg.MustMetadata("User")

	v, err := md.Cast("age", "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = md.Cast("age", "forty-two")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValue)

	var valueErr *ValueError
	require.True(t, errors.As(err, &valueErr))
	assert.Equal(t, "age", valueErr.Property)
	assert.Equal(t, TypeInt, valueErr.Type)

	_, err = md.Cast("nickname", "x")
	assert.ErrorIs(t, err, ErrNotDefined)
}
