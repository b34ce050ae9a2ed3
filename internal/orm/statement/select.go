package statement

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

// JoinKind represents the type of SQL join
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// String returns the SQL keyword of the join
func (j JoinKind) String() string {
	if j == LeftJoin {
		return "LEFT JOIN"
	}
	return "INNER JOIN"
}

// Join is one join clause
type Join struct {
	Kind  JoinKind
	Table string
	Alias string
	On    []Expr
}

type selectColumn struct {
	ref   string
	as    string
	count bool
}

type order struct {
	column string
	desc   bool
}

// Select builds a SELECT statement
type Select struct {
	table    string
	alias    string
	distinct bool
	columns  []selectColumn
	joins    []Join
	where    []Expr
	groupBy  []string
	orderBy  []order
	limit    *int
	offset   *int
}

// NewSelect starts a SELECT from table, optionally aliased
func NewSelect(table, alias string) *Select {
	return &Select{table: table, alias: alias}
}

// Alias returns the alias of the FROM table
func (s *Select) Alias() string { return s.alias }

// Column selects a column reference under an optional output name
func (s *Select) Column(ref, as string) *Select {
	s.columns = append(s.columns, selectColumn{ref: ref, as: as})
	return s
}

// Columns selects several column references without renaming them
func (s *Select) Columns(refs ...string) *Select {
	for _, ref := range refs {
		s.Column(ref, "")
	}
	return s
}

// CountAll selects COUNT(*) under the given output name
func (s *Select) CountAll(as string) *Select {
	s.columns = append(s.columns, selectColumn{count: true, as: as})
	return s
}

// Distinct makes the statement SELECT DISTINCT
func (s *Select) Distinct() *Select {
	s.distinct = true
	return s
}

// Join adds a join clause; the ON expressions are combined with AND
func (s *Select) Join(kind JoinKind, table, alias string, on ...Expr) *Select {
	s.joins = append(s.joins, Join{Kind: kind, Table: table, Alias: alias, On: on})
	return s
}

// Where adds expressions that must all hold
func (s *Select) Where(exprs ...Expr) *Select {
	s.where = append(s.where, exprs...)
	return s
}

// OrWhere adds a group of alternatives, at least one of which must hold
func (s *Select) OrWhere(exprs ...Expr) *Select {
	s.where = append(s.where, Or(exprs...))
	return s
}

// GroupBy adds GROUP BY columns
func (s *Select) GroupBy(refs ...string) *Select {
	s.groupBy = append(s.groupBy, refs...)
	return s
}

// OrderBy adds a sort column
func (s *Select) OrderBy(ref string, desc bool) *Select {
	s.orderBy = append(s.orderBy, order{column: ref, desc: desc})
	return s
}

// Limit caps the number of rows
func (s *Select) Limit(n int) *Select {
	s.limit = &n
	return s
}

// Offset skips rows
func (s *Select) Offset(n int) *Select {
	s.offset = &n
	return s
}

// HasPagination reports whether a limit or offset is set
func (s *Select) HasPagination() bool {
	return s.limit != nil || s.offset != nil
}

// ToSQL renders the statement
func (s *Select) ToSQL() (string, []Param, error) {
	r := &renderer{}
	sql, err := s.render(r)
	if err != nil {
		return "", nil, err
	}
	return sql, r.params, nil
}

func (s *Select) render(r *renderer) (string, error) {
	var b strings.Builder

	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}

	if len(s.columns) == 0 {
		b.WriteString("*")
	}
	for i, col := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if col.count {
			b.WriteString("COUNT(*)")
		} else {
			ref, err := column(col.ref)
			if err != nil {
				return "", err
			}
			b.WriteString(ref)
		}
		if col.as != "" {
			as, err := identifier(col.as)
			if err != nil {
				return "", err
			}
			b.WriteString(" AS " + as)
		}
	}

	table, err := identifier(s.table)
	if err != nil {
		return "", err
	}
	b.WriteString(" FROM " + table)
	if s.alias != "" {
		alias, err := identifier(s.alias)
		if err != nil {
			return "", err
		}
		b.WriteString(" AS " + alias)
	}

	for _, join := range s.joins {
		sql, err := renderJoin(r, join)
		if err != nil {
			return "", err
		}
		b.WriteString(" " + sql)
	}

	where, err := renderWhere(r, s.where)
	if err != nil {
		return "", err
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}

	if len(s.groupBy) > 0 {
		refs := make([]string, len(s.groupBy))
		for i, g := range s.groupBy {
			if refs[i], err = column(g); err != nil {
				return "", err
			}
		}
		b.WriteString(" GROUP BY " + strings.Join(refs, ", "))
	}

	if len(s.orderBy) > 0 {
		parts := make([]string, len(s.orderBy))
		for i, o := range s.orderBy {
			ref, err := column(o.column)
			if err != nil {
				return "", err
			}
			dir := "ASC"
			if o.desc {
				dir = "DESC"
			}
			parts[i] = ref + " " + dir
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	if s.limit != nil {
		if *s.limit < 0 {
			return "", fmt.Errorf("negative limit: %d", *s.limit)
		}
		b.WriteString(" LIMIT " + r.bind(int64(*s.limit), schema.TypeInt))
	}
	if s.offset != nil {
		if *s.offset < 0 {
			return "", fmt.Errorf("negative offset: %d", *s.offset)
		}
		b.WriteString(" OFFSET " + r.bind(int64(*s.offset), schema.TypeInt))
	}

	return b.String(), nil
}

func renderJoin(r *renderer, join Join) (string, error) {
	table, err := identifier(join.Table)
	if err != nil {
		return "", err
	}
	sql := join.Kind.String() + " " + table
	if join.Alias != "" {
		alias, err := identifier(join.Alias)
		if err != nil {
			return "", err
		}
		sql += " AS " + alias
	}

	on, err := renderWhere(r, join.On)
	if err != nil {
		return "", err
	}
	if on == "" {
		return "", fmt.Errorf("join on %s has no condition", join.Table)
	}
	return sql + " ON " + on, nil
}
