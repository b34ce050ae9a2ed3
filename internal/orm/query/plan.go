// Package query compiles entity metadata into SELECT statements. A single
// statement selects every eagerly reachable column through a tree of
// aliased joins; the returned Plan records which relation produced each
// alias so rows can be mapped back into an object graph.
package query

import (
	"fmt"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

// RootParent is the parent index of the root alias
const RootParent = -1

// Alias records one table occurrence in a plan
type Alias struct {
	Index int
	// Parent is the alias the relation was followed from, RootParent for t_0
	Parent int
	// Relation produced the alias; nil for the root
	Relation *schema.Relation
	Metadata *schema.Metadata
}

// Name returns the SQL alias, e.g. t_2
func (a Alias) Name() string {
	return AliasName(a.Index)
}

// Column returns the alias-qualified reference of a column
func (a Alias) Column(col string) string {
	return statement.Qualify(a.Name(), col)
}

// Output returns the result-set name of a column at this alias
func (a Alias) Output(col string) string {
	return OutputColumn(col, a.Index)
}

// AliasName returns the table alias of an index
func AliasName(idx int) string {
	return fmt.Sprintf("t_%d", idx)
}

// JunctionAlias returns the alias of the junction table joined for idx
func JunctionAlias(idx int) string {
	return fmt.Sprintf("j_%d", idx)
}

// OutputColumn returns the disambiguated result column name, e.g. name_1
func OutputColumn(col string, idx int) string {
	return fmt.Sprintf("%s_%d", col, idx)
}

// Plan is a compiled SELECT plus its alias map
type Plan struct {
	Statement *statement.Select
	Aliases   []Alias
}

// Root returns the root alias
func (p *Plan) Root() Alias {
	return p.Aliases[0]
}

// Children returns the aliases joined directly from parent, in join order
func (p *Plan) Children(parent int) []Alias {
	var out []Alias
	for _, a := range p.Aliases {
		if a.Parent == parent && a.Index != 0 {
			out = append(out, a)
		}
	}
	return out
}

// ToSQL renders the plan's statement
func (p *Plan) ToSQL() (string, []statement.Param, error) {
	return p.Statement.ToSQL()
}
