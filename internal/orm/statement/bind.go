package statement

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

// Style is the positional placeholder syntax of a database driver
type Style int

const (
	// Dollar numbers placeholders $1, $2, ... (PostgreSQL)
	Dollar Style = iota
	// Question uses ? for every placeholder (SQLite, MySQL)
	Question
)

var placeholderPattern = regexp.MustCompile(`:p[0-9]+`)

// Bind rewrites named placeholders into the driver's positional style and
// returns the driver arguments in order. Values are converted with
// schema.ToDB according to each parameter's type tag.
func Bind(sql string, params []Param, style Style) (string, []interface{}, error) {
	byName := make(map[string]int, len(params))
	for i, p := range params {
		byName[p.Placeholder()] = i
	}

	values := make([]interface{}, len(params))
	for i, p := range params {
		v, err := schema.ToDB(p.Type, p.Value)
		if err != nil {
			return "", nil, fmt.Errorf("bind %s: %w", p.Placeholder(), err)
		}
		values[i] = v
	}

	var (
		bindErr error
		args    []interface{}
	)
	if style == Dollar {
		args = values
	}

	out := placeholderPattern.ReplaceAllStringFunc(sql, func(name string) string {
		idx, ok := byName[name]
		if !ok {
			if bindErr == nil {
				bindErr = fmt.Errorf("placeholder %s has no parameter", name)
			}
			return name
		}
		if style == Dollar {
			return "$" + strconv.Itoa(idx+1)
		}
		args = append(args, values[idx])
		return "?"
	})
	if bindErr != nil {
		return "", nil, bindErr
	}

	return out, args, nil
}

// Compile renders a statement and binds it in one step
func Compile(stmt Statement, style Style) (string, []interface{}, error) {
	sql, params, err := stmt.ToSQL()
	if err != nil {
		return "", nil, err
	}
	return Bind(sql, params, style)
}
