package statement

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpLike
	OpIn
	OpNotIn
	OpIsNull
	OpIsNotNull
)

// String returns the SQL spelling of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpLike:
		return "LIKE"
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "UNKNOWN"
	}
}

// ParseOperator converts a user supplied operator string
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "=", "==":
		return OpEqual, nil
	case "!=", "<>":
		return OpNotEqual, nil
	case ">":
		return OpGreaterThan, nil
	case ">=":
		return OpGreaterThanOrEqual, nil
	case "<":
		return OpLessThan, nil
	case "<=":
		return OpLessThanOrEqual, nil
	case "like":
		return OpLike, nil
	case "in":
		return OpIn, nil
	case "not in":
		return OpNotIn, nil
	case "is null":
		return OpIsNull, nil
	case "is not null":
		return OpIsNotNull, nil
	default:
		return 0, fmt.Errorf("unsupported operator: %q", s)
	}
}

// Expr is one node of a WHERE or ON filter tree
type Expr interface {
	render(r *renderer) (string, error)
}

// Condition compares a column with a bound value
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
	// Type tags the bound parameter; inferred from Value when unspecified
	Type schema.Type
}

// Cond creates a condition with an inferred parameter type
func Cond(col string, op Operator, value interface{}) Condition {
	return Condition{Column: col, Operator: op, Value: value}
}

// TypedCond creates a condition with an explicit parameter type
func TypedCond(col string, op Operator, value interface{}, typ schema.Type) Condition {
	return Condition{Column: col, Operator: op, Value: value, Type: typ}
}

// Eq is shorthand for an equality condition
func Eq(col string, value interface{}) Condition {
	return Cond(col, OpEqual, value)
}

// IsNull is shorthand for an IS NULL condition
func IsNull(col string) Condition {
	return Cond(col, OpIsNull, nil)
}

// IsNotNull is shorthand for an IS NOT NULL condition
func IsNotNull(col string) Condition {
	return Cond(col, OpIsNotNull, nil)
}

func (c Condition) render(r *renderer) (string, error) {
	col, err := column(c.Column)
	if err != nil {
		return "", err
	}

	switch c.Operator {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", col, c.Operator), nil

	case OpIn, OpNotIn:
		values, ok := c.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("%s operator on %s requires []interface{} value, got %T", c.Operator, col, c.Value)
		}
		if len(values) == 0 {
			// IN () matches nothing, NOT IN () matches everything
			if c.Operator == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = r.bind(v, c.Type)
		}
		return fmt.Sprintf("%s %s (%s)", col, c.Operator, strings.Join(placeholders, ", ")), nil

	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpLike:
		if c.Value == nil {
			return "", fmt.Errorf("operator %s on %s requires a value, use IS NULL instead", c.Operator, col)
		}
		return fmt.Sprintf("%s %s %s", col, c.Operator, r.bind(c.Value, c.Type)), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", c.Operator)
	}
}

// Group combines expressions with AND or OR. Groups of more than one member
// render parenthesized.
type Group struct {
	or    bool
	exprs []Expr
}

// And groups expressions that must all hold
func And(exprs ...Expr) Group {
	return Group{exprs: exprs}
}

// Or groups alternatives
func Or(exprs ...Expr) Group {
	return Group{or: true, exprs: exprs}
}

func (g Group) render(r *renderer) (string, error) {
	parts := make([]string, 0, len(g.exprs))
	for _, expr := range g.exprs {
		sql, err := expr.render(r)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, sql)
		}
	}

	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	}

	connector := " AND "
	if g.or {
		connector = " OR "
	}
	return "(" + strings.Join(parts, connector) + ")", nil
}

type columnsEqual struct {
	left, right string
}

// ColumnsEqual compares two column references, as in a join condition
func ColumnsEqual(left, right string) Expr {
	return columnsEqual{left: left, right: right}
}

func (c columnsEqual) render(*renderer) (string, error) {
	left, err := column(c.left)
	if err != nil {
		return "", err
	}
	right, err := column(c.right)
	if err != nil {
		return "", err
	}
	return left + " = " + right, nil
}

type inSelect struct {
	column string
	sub    *Select
}

// InSelect restricts a column to the rows of a sub-select. The sub-select
// shares the placeholder counter of the enclosing statement.
func InSelect(col string, sub *Select) Expr {
	return inSelect{column: col, sub: sub}
}

func (c inSelect) render(r *renderer) (string, error) {
	col, err := column(c.column)
	if err != nil {
		return "", err
	}
	sub, err := c.sub.render(r)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s IN (%s)", col, sub), nil
}
