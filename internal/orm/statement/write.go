package statement

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

type assignment struct {
	column string
	value  interface{}
	typ    schema.Type
}

func renderAssignments(r *renderer, sets []assignment) ([]string, []string, error) {
	cols := make([]string, len(sets))
	placeholders := make([]string, len(sets))
	for i, set := range sets {
		col, err := identifier(set.column)
		if err != nil {
			return nil, nil, err
		}
		cols[i] = col
		placeholders[i] = r.bind(set.value, set.typ)
	}
	return cols, placeholders, nil
}

// Insert builds an INSERT statement
type Insert struct {
	table     string
	sets      []assignment
	returning string
}

// NewInsert starts an INSERT into table
func NewInsert(table string) *Insert {
	return &Insert{table: table}
}

// Set adds a column value
func (i *Insert) Set(col string, value interface{}, typ schema.Type) *Insert {
	i.sets = append(i.sets, assignment{column: col, value: value, typ: typ})
	return i
}

// Returning asks the database to return a column of the inserted row
func (i *Insert) Returning(col string) *Insert {
	i.returning = col
	return i
}

// ReturningColumn returns the column set with Returning, if any
func (i *Insert) ReturningColumn() string { return i.returning }

// WithoutReturning returns a copy without the RETURNING clause, for
// databases that report generated keys out of band
func (i *Insert) WithoutReturning() *Insert {
	cp := *i
	cp.returning = ""
	return &cp
}

// ToSQL renders the statement
func (i *Insert) ToSQL() (string, []Param, error) {
	r := &renderer{}

	table, err := identifier(i.table)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("INSERT INTO " + table)

	if len(i.sets) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		cols, placeholders, err := renderAssignments(r, i.sets)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&b, " (%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	}

	if i.returning != "" {
		col, err := identifier(i.returning)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" RETURNING " + col)
	}

	return b.String(), r.params, nil
}

// Update builds an UPDATE statement
type Update struct {
	table string
	sets  []assignment
	where []Expr
}

// NewUpdate starts an UPDATE of table
func NewUpdate(table string) *Update {
	return &Update{table: table}
}

// Set adds a column assignment
func (u *Update) Set(col string, value interface{}, typ schema.Type) *Update {
	u.sets = append(u.sets, assignment{column: col, value: value, typ: typ})
	return u
}

// Where adds expressions that must all hold
func (u *Update) Where(exprs ...Expr) *Update {
	u.where = append(u.where, exprs...)
	return u
}

// ToSQL renders the statement
func (u *Update) ToSQL() (string, []Param, error) {
	r := &renderer{}

	table, err := identifier(u.table)
	if err != nil {
		return "", nil, err
	}
	if len(u.sets) == 0 {
		return "", nil, fmt.Errorf("update %s: %w", table, ErrEmptyStatement)
	}

	cols, placeholders, err := renderAssignments(r, u.sets)
	if err != nil {
		return "", nil, err
	}
	assignments := make([]string, len(cols))
	for i := range cols {
		assignments[i] = cols[i] + " = " + placeholders[i]
	}

	where, err := renderWhere(r, u.where)
	if err != nil {
		return "", nil, err
	}
	if where == "" {
		return "", nil, fmt.Errorf("update %s: %w", table, ErrUnfilteredWrite)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(assignments, ", "), where)
	return sql, r.params, nil
}

// Delete builds a DELETE statement
type Delete struct {
	table string
	where []Expr
}

// NewDelete starts a DELETE from table
func NewDelete(table string) *Delete {
	return &Delete{table: table}
}

// Where adds expressions that must all hold
func (d *Delete) Where(exprs ...Expr) *Delete {
	d.where = append(d.where, exprs...)
	return d
}

// ToSQL renders the statement
func (d *Delete) ToSQL() (string, []Param, error) {
	r := &renderer{}

	table, err := identifier(d.table)
	if err != nil {
		return "", nil, err
	}

	where, err := renderWhere(r, d.where)
	if err != nil {
		return "", nil, err
	}
	if where == "" {
		return "", nil, fmt.Errorf("delete from %s: %w", table, ErrUnfilteredWrite)
	}

	return fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), r.params, nil
}
