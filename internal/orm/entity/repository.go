package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/conduit-lang/ormkit/internal/orm/query"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

// Repository holds the type-level accessors of one entity type
type Repository struct {
	session *Session
	md      *schema.Metadata
}

// Metadata returns the entity type metadata
func (r *Repository) Metadata() *schema.Metadata { return r.md }

// New creates an unsaved entity from values. Keys are column or one-to-one
// relation names; every value goes through Set.
func (r *Repository) New(values map[string]interface{}) (*Entity, error) {
	if r.md.ReadOnly() {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, r.md.Name())
	}
	e := newEntity(r.session, r.md, nil)

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.Set(name, values[name]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Get fetches one entity by primary key, including soft-deleted ones
func (r *Repository) Get(ctx context.Context, key interface{}) (*Entity, error) {
	plan, err := query.ByKey(r.md, key)
	if err != nil {
		return nil, err
	}
	found, err := r.run(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, r.md.Name(), key)
	}
	return found[0], nil
}

// All lists every live entity, narrowed by scopes
func (r *Repository) All(ctx context.Context, scopes ...query.Scope) ([]*Entity, error) {
	return r.Query().Scope(scopes...).All(ctx)
}

// Count counts live entities
func (r *Repository) Count(ctx context.Context) (int64, error) {
	return r.Query().Count(ctx)
}

// Query starts a fluent listing
func (r *Repository) Query() *Query {
	return &Query{repo: r, list: query.NewList(r.md)}
}

func (r *Repository) find(ctx context.Context, list *query.List) ([]*Entity, error) {
	plan, err := list.Plan()
	if err != nil {
		return nil, err
	}
	return r.run(ctx, plan)
}

func (r *Repository) run(ctx context.Context, plan *query.Plan) ([]*Entity, error) {
	rows, err := r.session.executor(ctx).Query(ctx, plan.Statement)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.md.Name(), err)
	}
	return NewMapper(r.session, plan).Map(rows)
}

// Query is a fluent listing bound to a repository
type Query struct {
	repo *Repository
	list *query.List
}

// Where adds a filter that must hold, e.g. Where("age", ">=", 18)
func (q *Query) Where(col, op string, value interface{}) *Query {
	q.list.Where(col, op, value)
	return q
}

// OrWhere adds a group of filters of which one must hold
func (q *Query) OrWhere(filters ...query.Filter) *Query {
	q.list.OrWhere(filters...)
	return q
}

// WhereIn restricts a column to a list of values
func (q *Query) WhereIn(col string, values ...interface{}) *Query {
	q.list.WhereIn(col, values...)
	return q
}

// WhereNull restricts a column to NULL
func (q *Query) WhereNull(col string) *Query {
	q.list.WhereNull(col)
	return q
}

// WhereNotNull restricts a column to non-NULL values
func (q *Query) WhereNotNull(col string) *Query {
	q.list.WhereNotNull(col)
	return q
}

// OrderBy sorts by a column, direction "asc" or "desc"
func (q *Query) OrderBy(col, direction string) *Query {
	q.list.OrderBy(col, direction)
	return q
}

// Limit caps the number of entities returned
func (q *Query) Limit(n int) *Query {
	q.list.Limit(n)
	return q
}

// Offset skips entities
func (q *Query) Offset(n int) *Query {
	q.list.Offset(n)
	return q
}

// ShowDeleted includes soft-deleted entities
func (q *Query) ShowDeleted(show bool) *Query {
	q.list.ShowDeleted(show)
	return q
}

// Scope applies reusable list fragments
func (q *Query) Scope(scopes ...query.Scope) *Query {
	q.list.Scope(scopes...)
	return q
}

// List returns the underlying listing
func (q *Query) List() *query.List { return q.list }

// All runs the listing
func (q *Query) All(ctx context.Context) ([]*Entity, error) {
	return q.repo.find(ctx, q.list)
}

// First returns the first entity of the listing, or nil when there is none
func (q *Query) First(ctx context.Context) (*Entity, error) {
	found, err := q.repo.find(ctx, q.list.Clone().Limit(1))
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// Count counts the entities the listing would return, ignoring pagination
func (q *Query) Count(ctx context.Context) (int64, error) {
	sel, err := q.list.CountStatement()
	if err != nil {
		return 0, err
	}
	rows, err := q.repo.session.executor(ctx).Query(ctx, sel)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.repo.md.Name(), err)
	}
	if len(rows) == 0 {
		return 0, errors.New("count returned no rows")
	}
	n, err := schema.Cast(schema.TypeInt, rows[0][query.CountColumn])
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.repo.md.Name(), err)
	}
	return n.(int64), nil
}
