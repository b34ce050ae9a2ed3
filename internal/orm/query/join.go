package query

import (
	"fmt"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

// maxJoinDepth bounds recursion should an eager cycle ever slip past
// metadata validation
const maxJoinDepth = 64

// composer walks the eager relation graph and builds the join tree
type composer struct {
	sel     *statement.Select
	aliases []Alias
	toMany  bool
}

// compose selects every column of md at t_0 and joins all eagerly
// reachable relations below it
func compose(md *schema.Metadata) (*composer, error) {
	c := &composer{sel: statement.NewSelect(md.Table(), AliasName(0))}
	c.add(Alias{Index: 0, Parent: RootParent, Metadata: md})
	if err := c.join(0, md, 0); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *composer) add(a Alias) {
	c.aliases = append(c.aliases, a)
	for _, col := range a.Metadata.ColumnNames() {
		c.sel.Column(a.Column(col), a.Output(col))
	}
}

func (c *composer) join(parentIdx int, md *schema.Metadata, depth int) error {
	if depth > maxJoinDepth {
		return fmt.Errorf("eager joins of %s nest deeper than %d levels", md.Name(), maxJoinDepth)
	}
	parent := c.aliases[parentIdx]

	// Lazy one-to-one foreign keys are owner columns and therefore already
	// part of the projection; lazy collections are not joined at all.
	for _, rel := range md.EagerRelations() {
		target, err := rel.Target()
		if err != nil {
			return err
		}

		idx := len(c.aliases)
		child := Alias{Index: idx, Parent: parentIdx, Relation: rel, Metadata: target}

		var on []statement.Expr
		switch rel.Kind() {
		case schema.OneToOne, schema.OneToMany:
			on = append(on, statement.ColumnsEqual(child.Column(rel.BindingKey()), parent.Column(rel.ForeignKey())))
		case schema.ManyToMany:
			junction := JunctionAlias(idx)
			c.sel.Join(statement.LeftJoin, rel.Junction(), junction,
				statement.ColumnsEqual(statement.Qualify(junction, rel.ForeignKey()), parent.Column(md.PrimaryKey())))
			on = append(on, statement.ColumnsEqual(child.Column(target.PrimaryKey()), statement.Qualify(junction, rel.BindingKey())))
		}
		if target.SoftDelete() {
			on = append(on, statement.IsNull(child.Column(schema.DeletedAtColumn)))
		}

		c.sel.Join(statement.LeftJoin, target.Table(), child.Name(), on...)
		c.add(child)
		if rel.IsCollection() {
			c.toMany = true
		}

		if err := c.join(idx, target, depth+1); err != nil {
			return err
		}
	}
	return nil
}
