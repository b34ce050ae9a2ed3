package entity

import (
	"context"
	"fmt"

	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

// Collection is the resolved value of a one-to-many or many-to-many
// relation. Every mutation is written to the database before it returns.
// Children reference their owner only through key columns.
type Collection struct {
	owner  *Entity
	rel    *schema.Relation
	target *schema.Metadata
	items  []*Entity
}

func newCollection(owner *Entity, rel *schema.Relation, target *schema.Metadata, items []*Entity) *Collection {
	return &Collection{owner: owner, rel: rel, target: target, items: items}
}

// Relation returns the relation the collection resolves
func (c *Collection) Relation() *schema.Relation { return c.rel }

// Items returns the members in order
func (c *Collection) Items() []*Entity {
	return append([]*Entity(nil), c.items...)
}

// Len returns the number of members
func (c *Collection) Len() int { return len(c.items) }

// Contains reports membership by primary key; unsaved entities are compared
// by identity
func (c *Collection) Contains(child *Entity) bool {
	return c.index(child) >= 0
}

func (c *Collection) index(child *Entity) int {
	for i, item := range c.items {
		if sameEntity(item, child) {
			return i
		}
	}
	return -1
}

func sameEntity(a, b *Entity) bool {
	if a == b {
		return true
	}
	if a.md.Name() != b.md.Name() || a.IsNew() || b.IsNew() {
		return false
	}
	return fmt.Sprint(a.Key()) == fmt.Sprint(b.Key())
}

func (c *Collection) check(child *Entity) error {
	if child == nil {
		return fmt.Errorf("%w: nil member for %s.%s", schema.ErrValue, c.rel.Owner(), c.rel.Name())
	}
	if child.md.Name() != c.target.Name() {
		return fmt.Errorf("%w: %s.%s holds %s, got %s",
			ErrWrongType, c.rel.Owner(), c.rel.Name(), c.target.Name(), child.md.Name())
	}
	return nil
}

// Add makes child a member. A one-to-many child gets the owner's key in its
// binding column and is saved. A many-to-many add saves unsaved owner and
// child, then inserts the junction row; adding a member twice is a no-op.
func (c *Collection) Add(ctx context.Context, child *Entity) error {
	if err := c.check(child); err != nil {
		return err
	}
	if c.rel.Kind() == schema.ManyToMany {
		return c.addMember(ctx, child)
	}
	return c.addChild(ctx, child)
}

func (c *Collection) addChild(ctx context.Context, child *Entity) error {
	if c.owner.IsNew() {
		if err := c.owner.Save(ctx); err != nil {
			return err
		}
	}
	if reverse := c.reverse(); reverse != nil {
		if err := child.SetRelated(reverse.Name(), c.owner); err != nil {
			return err
		}
	} else {
		ownerKey, _ := c.owner.state.Get(c.rel.ForeignKey())
		if err := child.Set(c.rel.BindingKey(), ownerKey); err != nil {
			return err
		}
	}
	if err := child.Save(ctx); err != nil {
		return err
	}
	if !c.Contains(child) {
		c.items = append(c.items, child)
	}
	return nil
}

// reverse returns the child's one-to-one relation back to the owner, with
// the keys of the collection swapped
func (c *Collection) reverse() *schema.Relation {
	for _, rel := range c.target.Relations() {
		if rel.Kind() == schema.OneToOne && rel.TargetName() == c.rel.Owner() &&
			rel.ForeignKey() == c.rel.BindingKey() && rel.BindingKey() == c.rel.ForeignKey() {
			return rel
		}
	}
	return nil
}

func (c *Collection) addMember(ctx context.Context, child *Entity) error {
	if c.Contains(child) {
		return nil
	}
	if c.rel.Owner() == c.rel.TargetName() {
		if err := c.checkCycle(ctx, child); err != nil {
			return err
		}
	}

	if c.owner.IsNew() {
		if err := c.owner.Save(ctx); err != nil {
			return err
		}
	}
	if child.IsNew() {
		if err := child.Save(ctx); err != nil {
			return err
		}
	}

	ins := statement.NewInsert(c.rel.Junction()).
		Set(c.rel.ForeignKey(), c.owner.Key(), c.owner.md.KeyType()).
		Set(c.rel.BindingKey(), child.Key(), c.target.KeyType())
	if _, err := c.owner.session.executor(ctx).Exec(ctx, ins); err != nil {
		return fmt.Errorf("add %s to %s.%s: %w", c.target.Name(), c.rel.Owner(), c.rel.Name(), err)
	}
	c.items = append(c.items, child)
	return nil
}

// checkCycle rejects an add that would make the owner reachable from itself
// through the relation. Edges are read from the junction table.
func (c *Collection) checkCycle(ctx context.Context, child *Entity) error {
	if sameEntity(c.owner, child) {
		return fmt.Errorf("%w: %s cannot be a member of its own %s", ErrRelationCycle, c.target.Name(), c.rel.Name())
	}
	if c.owner.IsNew() || child.IsNew() {
		return nil
	}

	target := fmt.Sprint(c.owner.Key())
	visited := map[string]bool{}
	frontier := []interface{}{child.Key()}
	for len(frontier) > 0 {
		sel := statement.NewSelect(c.rel.Junction(), "").
			Column(c.rel.BindingKey(), "").
			Where(statement.TypedCond(c.rel.ForeignKey(), statement.OpIn, frontier, c.target.KeyType()))
		rows, err := c.owner.session.executor(ctx).Query(ctx, sel)
		if err != nil {
			return fmt.Errorf("check %s.%s for cycles: %w", c.rel.Owner(), c.rel.Name(), err)
		}

		frontier = nil
		for _, row := range rows {
			key, err := schema.FromDB(c.target.KeyType(), row[c.rel.BindingKey()])
			if err != nil {
				return err
			}
			k := fmt.Sprint(key)
			if k == target {
				return fmt.Errorf("%w: adding %s %v to %s.%s of %v closes a cycle",
					ErrRelationCycle, c.target.Name(), child.Key(), c.rel.Owner(), c.rel.Name(), c.owner.Key())
			}
			if !visited[k] {
				visited[k] = true
				frontier = append(frontier, key)
			}
		}
	}
	return nil
}

// Remove drops child from the collection. A one-to-many child is deleted,
// softly when its type supports it; a many-to-many removal deletes only the
// junction row. Removing a non-member is a no-op.
func (c *Collection) Remove(ctx context.Context, child *Entity) error {
	if err := c.check(child); err != nil {
		return err
	}
	idx := c.index(child)
	if idx < 0 {
		return nil
	}
	member := c.items[idx]

	if c.rel.Kind() == schema.ManyToMany {
		del := statement.NewDelete(c.rel.Junction()).Where(
			statement.TypedCond(c.rel.ForeignKey(), statement.OpEqual, c.owner.Key(), c.owner.md.KeyType()),
			statement.TypedCond(c.rel.BindingKey(), statement.OpEqual, member.Key(), c.target.KeyType()),
		)
		if _, err := c.owner.session.executor(ctx).Exec(ctx, del); err != nil {
			return fmt.Errorf("remove %s from %s.%s: %w", c.target.Name(), c.rel.Owner(), c.rel.Name(), err)
		}
	} else if !member.IsNew() {
		if err := member.Delete(ctx, false); err != nil {
			return err
		}
	}

	c.items = append(c.items[:idx], c.items[idx+1:]...)
	return nil
}

// Set replaces the members with children, removing members that are not
// listed and adding listed entities that are not members
func (c *Collection) Set(ctx context.Context, children []*Entity) error {
	for _, child := range children {
		if err := c.check(child); err != nil {
			return err
		}
	}

	var removals []*Entity
	for _, item := range c.items {
		keep := false
		for _, child := range children {
			if sameEntity(item, child) {
				keep = true
				break
			}
		}
		if !keep {
			removals = append(removals, item)
		}
	}
	for _, item := range removals {
		if err := c.Remove(ctx, item); err != nil {
			return err
		}
	}

	for _, child := range children {
		if c.Contains(child) {
			continue
		}
		if err := c.Add(ctx, child); err != nil {
			return err
		}
	}

	ordered := make([]*Entity, 0, len(children))
	for _, child := range children {
		idx := c.index(child)
		if idx < 0 {
			continue
		}
		dup := false
		for _, o := range ordered {
			if sameEntity(o, c.items[idx]) {
				dup = true
				break
			}
		}
		if !dup {
			ordered = append(ordered, c.items[idx])
		}
	}
	c.items = ordered
	return nil
}
