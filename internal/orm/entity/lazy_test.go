package entity

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userByKey = "SELECT t_0.id AS id_0, t_0.name AS name_0, t_0.age AS age_0, t_0.role AS role_0, " +
		"t_0.created_at AS created_at_0, t_0.updated_at AS updated_at_0, t_0.deleted_at AS deleted_at_0 " +
		"FROM users AS t_0 WHERE t_0.id = ?"
	postsOfUser = "SELECT t_0.id AS id_0, t_0.title AS title_0, t_0.user_id AS user_id_0, " +
		"t_0.published AS published_0, t_0.published_on AS published_on_0, t_0.meta AS meta_0 " +
		"FROM posts AS t_0 WHERE t_0.user_id = ?"
	tagsOfPost = "SELECT t_0.id AS id_0, t_0.name AS name_0 FROM tags AS t_0 " +
		"INNER JOIN post_tags AS j_0 ON j_0.tag_id = t_0.id WHERE j_0.post_id = ?"
)

var (
	userColumns = []string{"id_0", "name_0", "age_0", "role_0", "created_at_0", "updated_at_0", "deleted_at_0"}
	postColumns = []string{"id_0", "title_0", "user_id_0", "published_0", "published_on_0", "meta_0"}
)

func expectUser(mock sqlmock.Sqlmock, id int64, name string) {
	mock.ExpectQuery(regexp.QuoteMeta(userByKey)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(id, name, int64(30), "admin", fixedNow, fixedNow, nil))
}

func TestLazy_OneToManyLoadsOnFirstAccess(t *testing.T) {
	session, mock := newMockSession(t)
	ctx := context.Background()

	expectUser(mock, 1, "ann")
	user, err := session.MustRepository("User").Get(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "no statement before the relation is read")

	_, err = user.Get("posts")
	assert.ErrorIs(t, err, ErrProperty, "unloaded relations are not readable without a context")

	mock.ExpectQuery(regexp.QuoteMeta(postsOfUser)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(postColumns).
			AddRow(int64(10), "first", int64(1), int64(1), nil, `{"draft":false}`).
			AddRow(int64(11), "second", int64(1), int64(0), nil, nil))

	posts, err := user.Collection(ctx, "posts")
	require.NoError(t, err)
	require.Equal(t, 2, posts.Len())
	assert.Equal(t, "first", posts.Items()[0].String("title"))
	assert.True(t, posts.Items()[0].Bool("published"))
	meta, err := Value[map[string]interface{}](posts.Items()[0], "meta")
	require.NoError(t, err)
	assert.Equal(t, false, meta["draft"])

	again, err := user.Collection(ctx, "posts")
	require.NoError(t, err)
	assert.Same(t, posts, again)

	assert.NoError(t, mock.ExpectationsWereMet(), "exactly one list query")
}

func TestLazy_OneToOneAndManyToMany(t *testing.T) {
	session, mock := newMockSession(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(postsOfUser+" ORDER BY t_0.id ASC LIMIT ?")).
		WithArgs(int64(1), int64(1)).
		WillReturnRows(sqlmock.NewRows(postColumns).AddRow(int64(10), "first", int64(1), int64(1), nil, nil))
	post, err := session.MustRepository("Post").Query().Where("user_id", "=", 1).First(ctx)
	require.NoError(t, err)
	require.NotNil(t, post)

	expectUser(mock, 1, "ann")
	user, err := post.Related(ctx, "user")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ann", user.String("name"))

	cached, err := post.Related(ctx, "user")
	require.NoError(t, err)
	assert.Same(t, user, cached)

	mock.ExpectQuery(regexp.QuoteMeta(tagsOfPost)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id_0", "name_0"}).AddRow(int64(3), "go").AddRow(int64(4), "sql"))
	tags, err := post.Collection(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, keysOf(tags.Items()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLazy_NewEntitiesDoNotQuery(t *testing.T) {
	session, mock := newMockSession(t)
	ctx := context.Background()

	user, err := session.MustRepository("User").New(map[string]interface{}{"name": "ann"})
	require.NoError(t, err)

	posts, err := user.Collection(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 0, posts.Len())

	post, err := session.MustRepository("Post").New(map[string]interface{}{"title": "draft"})
	require.NoError(t, err)
	owner, err := post.Related(ctx, "user")
	require.NoError(t, err)
	assert.Nil(t, owner)

	_, err = post.Related(ctx, "tags")
	assert.ErrorIs(t, err, ErrProperty)
	_, err = post.Collection(ctx, "user")
	assert.ErrorIs(t, err, ErrProperty)

	assert.NoError(t, mock.ExpectationsWereMet())
}
