// Package statement builds parameterized SELECT, INSERT, UPDATE and DELETE
// text. Every statement numbers its placeholders :p0, :p1, ... with a private
// counter in rendering order, and validates each identifier against an
// allow-list before it is written into the SQL.
package statement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

var (
	// ErrInvalidIdentifier is returned when a table, alias or column name is not allow-listed
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrUnfilteredWrite is returned for an UPDATE or DELETE without a WHERE clause
	ErrUnfilteredWrite = errors.New("refusing to write without a filter")

	// ErrEmptyStatement is returned for an UPDATE without assignments
	ErrEmptyStatement = errors.New("statement has nothing to write")
)

// Param is one bound statement parameter
type Param struct {
	// Name is the placeholder name without the leading colon, e.g. "p0"
	Name  string
	Value interface{}
	Type  schema.Type
}

// Placeholder returns the placeholder as it appears in the SQL text
func (p Param) Placeholder() string {
	return ":" + p.Name
}

// Statement is anything that renders to SQL with named parameters
type Statement interface {
	ToSQL() (string, []Param, error)
}

// renderer carries the placeholder counter of one statement. Sub-selects
// render through their parent's renderer so numbering never restarts.
type renderer struct {
	params []Param
}

func (r *renderer) bind(value interface{}, typ schema.Type) string {
	if typ == schema.TypeUnspecified && value != nil {
		typ = schema.TypeOf(value)
	}
	p := Param{Name: fmt.Sprintf("p%d", len(r.params)), Value: value, Type: typ}
	r.params = append(r.params, p)
	return p.Placeholder()
}

// identifier validates a bare name
func identifier(name string) (string, error) {
	if !schema.IsIdentifier(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return name, nil
}

// column validates a bare or alias-qualified column reference ("t_0.name")
func column(ref string) (string, error) {
	parts := strings.Split(ref, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, ref)
	}
	for _, part := range parts {
		if !schema.IsIdentifier(part) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, ref)
		}
	}
	return ref, nil
}

// Qualify prefixes a column with an alias
func Qualify(alias, col string) string {
	if alias == "" {
		return col
	}
	return alias + "." + col
}

func renderWhere(r *renderer, exprs []Expr) (string, error) {
	parts := make([]string, 0, len(exprs))
	for _, expr := range exprs {
		sql, err := expr.render(r)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, sql)
		}
	}
	return strings.Join(parts, " AND "), nil
}
