package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

// CountColumn is the output name of the aggregate selected by count queries
const CountColumn = "count"

// Filter is one comparison on a root property, e.g. F("age", ">=", 18)
type Filter struct {
	Column string
	Op     string
	Value  interface{}
}

// F creates a Filter
func F(col, op string, value interface{}) Filter {
	return Filter{Column: col, Op: op, Value: value}
}

// Scope is a reusable list fragment
type Scope func(*List) *List

type sortKey struct {
	column string
	desc   bool
}

type junctionFilter struct {
	rel      *schema.Relation
	ownerKey interface{}
	ownerMD  *schema.Metadata
}

// List builds a filtered, sorted, paginated listing of one entity type.
// Filters name root properties; they are validated and cast against the
// metadata, and the first failure is reported by Plan or CountStatement.
type List struct {
	md          *schema.Metadata
	where       []statement.Expr
	order       []sortKey
	limit       *int
	offset      *int
	showDeleted bool
	via         *junctionFilter
	err         error
}

// NewList starts a listing of md
func NewList(md *schema.Metadata) *List {
	return &List{md: md}
}

// Clone returns an independent copy; changes to either do not affect the other
func (l *List) Clone() *List {
	c := *l
	c.where = append([]statement.Expr(nil), l.where...)
	c.order = append([]sortKey(nil), l.order...)
	if l.limit != nil {
		n := *l.limit
		c.limit = &n
	}
	if l.offset != nil {
		n := *l.offset
		c.offset = &n
	}
	return &c
}

// Metadata returns the listed entity type
func (l *List) Metadata() *schema.Metadata { return l.md }

// Where adds a filter that must hold
func (l *List) Where(col, op string, value interface{}) *List {
	expr, err := l.condition(F(col, op, value))
	if err != nil {
		return l.fail(err)
	}
	l.where = append(l.where, expr)
	return l
}

// OrWhere adds a group of filters of which at least one must hold
func (l *List) OrWhere(filters ...Filter) *List {
	exprs := make([]statement.Expr, 0, len(filters))
	for _, f := range filters {
		expr, err := l.condition(f)
		if err != nil {
			return l.fail(err)
		}
		exprs = append(exprs, expr)
	}
	l.where = append(l.where, statement.Or(exprs...))
	return l
}

// WhereIn restricts a property to a set of values
func (l *List) WhereIn(col string, values ...interface{}) *List {
	return l.Where(col, "in", values)
}

// WhereNull restricts a property to NULL
func (l *List) WhereNull(col string) *List {
	return l.Where(col, "is null", nil)
}

// WhereNotNull restricts a property to non-NULL values
func (l *List) WhereNotNull(col string) *List {
	return l.Where(col, "is not null", nil)
}

// OrderBy sorts by a property; direction is "asc" or "desc"
func (l *List) OrderBy(col, direction string) *List {
	if _, err := l.md.PropertyType(col); err != nil {
		return l.fail(err)
	}
	switch strings.ToLower(direction) {
	case "", "asc":
		l.order = append(l.order, sortKey{column: col})
	case "desc":
		l.order = append(l.order, sortKey{column: col, desc: true})
	default:
		return l.fail(fmt.Errorf("invalid sort direction %q", direction))
	}
	return l
}

// Limit caps the number of entities returned
func (l *List) Limit(n int) *List {
	if n < 0 {
		return l.fail(fmt.Errorf("negative limit: %d", n))
	}
	l.limit = &n
	return l
}

// Offset skips entities
func (l *List) Offset(n int) *List {
	if n < 0 {
		return l.fail(fmt.Errorf("negative offset: %d", n))
	}
	l.offset = &n
	return l
}

// ShowDeleted includes soft-deleted rows
func (l *List) ShowDeleted(show bool) *List {
	l.showDeleted = show
	return l
}

// Scope applies reusable fragments in order
func (l *List) Scope(scopes ...Scope) *List {
	for _, scope := range scopes {
		l = scope(l)
	}
	return l
}

// Err returns the first error recorded while building
func (l *List) Err() error { return l.err }

func (l *List) fail(err error) *List {
	if l.err == nil {
		l.err = fmt.Errorf("%s query: %w", l.md.Name(), err)
	}
	return l
}

// condition validates a filter against the metadata and casts its value
func (l *List) condition(f Filter) (statement.Expr, error) {
	typ, err := l.md.PropertyType(f.Column)
	if err != nil {
		return nil, err
	}
	op, err := statement.ParseOperator(f.Op)
	if err != nil {
		return nil, err
	}
	ref := statement.Qualify(AliasName(0), f.Column)

	switch op {
	case statement.OpIsNull, statement.OpIsNotNull:
		return statement.Cond(ref, op, nil), nil

	case statement.OpIn, statement.OpNotIn:
		raw, ok := f.Value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s %s requires a list of values", f.Column, op)
		}
		values := make([]interface{}, len(raw))
		for i, v := range raw {
			if values[i], err = l.md.Cast(f.Column, v); err != nil {
				return nil, err
			}
		}
		return statement.TypedCond(ref, op, values, typ), nil

	case statement.OpLike:
		return statement.TypedCond(ref, op, fmt.Sprint(f.Value), schema.TypeString), nil

	default:
		value, err := l.md.Cast(f.Column, f.Value)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, fmt.Errorf("%s %s requires a value, use WhereNull", f.Column, op)
		}
		return statement.TypedCond(ref, op, value, typ), nil
	}
}

// filters returns the root filters including the soft-deletion default
func (l *List) filters() []statement.Expr {
	exprs := append([]statement.Expr(nil), l.where...)
	if l.md.SoftDelete() && !l.showDeleted {
		exprs = append(exprs, statement.IsNull(statement.Qualify(AliasName(0), schema.DeletedAtColumn)))
	}
	return exprs
}

// restrict applies the root filters, the junction join and sorting to sel
func (l *List) restrict(sel *statement.Select) {
	l.joinJunction(sel)
	sel.Where(l.filters()...)
	for _, o := range l.order {
		sel.OrderBy(statement.Qualify(AliasName(0), o.column), o.desc)
	}
}

// joinJunction restricts a many-to-many listing to the owner's members
func (l *List) joinJunction(sel *statement.Select) {
	if l.via == nil {
		return
	}
	junction := JunctionAlias(0)
	rel := l.via.rel
	sel.Join(statement.InnerJoin, rel.Junction(), junction,
		statement.ColumnsEqual(statement.Qualify(junction, rel.BindingKey()), statement.Qualify(AliasName(0), l.md.PrimaryKey())))
	sel.Where(statement.TypedCond(statement.Qualify(junction, rel.ForeignKey()), statement.OpEqual,
		l.via.ownerKey, l.via.ownerMD.KeyType()))
}

func (l *List) paginate(sel *statement.Select) {
	if l.limit == nil && l.offset == nil {
		return
	}
	if len(l.order) == 0 {
		// stable pages need a total order
		sel.OrderBy(statement.Qualify(AliasName(0), l.md.PrimaryKey()), false)
	}
	if l.limit != nil {
		sel.Limit(*l.limit)
	}
	if l.offset != nil {
		sel.Offset(*l.offset)
	}
}

// Plan compiles the listing with all eager joins. When pagination meets a
// to-many join, the page is selected over root keys in a sub-select so the
// limit counts entities rather than joined rows.
func (l *List) Plan() (*Plan, error) {
	if l.err != nil {
		return nil, l.err
	}
	c, err := compose(l.md)
	if err != nil {
		return nil, err
	}

	paginated := l.limit != nil || l.offset != nil
	if paginated && c.toMany {
		pk := statement.Qualify(AliasName(0), l.md.PrimaryKey())
		sub := statement.NewSelect(l.md.Table(), AliasName(0)).Column(pk, "")
		l.restrict(sub)
		l.paginate(sub)

		c.sel.Where(statement.InSelect(pk, sub))
		for _, o := range l.order {
			c.sel.OrderBy(statement.Qualify(AliasName(0), o.column), o.desc)
		}
		if len(l.order) == 0 {
			c.sel.OrderBy(pk, false)
		}
	} else {
		l.restrict(c.sel)
		l.paginate(c.sel)
	}

	return &Plan{Statement: c.sel, Aliases: c.aliases}, nil
}

// CountStatement compiles SELECT COUNT(*) over the root table with the root
// filters only; eager joins never change the entity count.
func (l *List) CountStatement() (*statement.Select, error) {
	if l.err != nil {
		return nil, l.err
	}
	sel := statement.NewSelect(l.md.Table(), AliasName(0)).CountAll(CountColumn)
	l.joinJunction(sel)
	sel.Where(l.filters()...)
	return sel, nil
}

// ByKey compiles a lookup of one entity by primary key. Soft-deleted rows
// are included so a deleted entity stays reachable by its key.
func ByKey(md *schema.Metadata, key interface{}) (*Plan, error) {
	cast, err := md.Cast(md.PrimaryKey(), key)
	if err != nil {
		return nil, err
	}
	if cast == nil {
		return nil, fmt.Errorf("%s lookup by key: key is nil", md.Name())
	}

	c, err := compose(md)
	if err != nil {
		return nil, err
	}
	c.sel.Where(statement.TypedCond(statement.Qualify(AliasName(0), md.PrimaryKey()), statement.OpEqual, cast, md.KeyType()))
	return &Plan{Statement: c.sel, Aliases: c.aliases}, nil
}

// ManyToMany starts a listing of the members of a many-to-many relation of
// the owner identified by ownerKey
func ManyToMany(rel *schema.Relation, owner *schema.Metadata, ownerKey interface{}) (*List, error) {
	if rel.Kind() != schema.ManyToMany {
		return nil, fmt.Errorf("relation %s.%s is %s, not many_to_many", rel.Owner(), rel.Name(), rel.Kind())
	}
	target, err := rel.Target()
	if err != nil {
		return nil, err
	}
	key, err := owner.Cast(owner.PrimaryKey(), ownerKey)
	if err != nil {
		return nil, err
	}

	l := NewList(target)
	l.via = &junctionFilter{rel: rel, ownerKey: key, ownerMD: owner}
	return l, nil
}
