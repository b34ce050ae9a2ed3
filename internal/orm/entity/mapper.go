package entity

import (
	"fmt"

	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/query"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

// compositeKey identifies one entity occurrence in a joined row set
type compositeKey struct {
	alias int
	key   string
}

// node is one distinct entity at one alias plus the ordered distinct keys of
// its children per child alias
type node struct {
	entity   *Entity
	alias    int
	children map[int][]string
	seen     map[int]map[string]bool
}

func (n *node) addChild(alias int, key string) {
	if n.seen[alias] == nil {
		n.seen[alias] = make(map[string]bool)
	}
	if n.seen[alias][key] {
		return
	}
	n.seen[alias][key] = true
	n.children[alias] = append(n.children[alias], key)
}

// Mapper rebuilds entity graphs from the flat rows of a query plan. Joined
// rows repeat every parent once per combination of its children; the mapper
// builds one entity per (alias, key) pair and one collection member per
// distinct child key, in first-arrival order.
type Mapper struct {
	session *Session
	plan    *query.Plan
}

// NewMapper creates a mapper for the rows of plan
func NewMapper(s *Session, plan *query.Plan) *Mapper {
	return &Mapper{session: s, plan: plan}
}

// Map returns one root entity per distinct root key
func (m *Mapper) Map(rows []database.Row) ([]*Entity, error) {
	var (
		nodes = make(map[compositeKey]*node)
		order []*node
		roots []*Entity
	)

	keys := make([]string, len(m.plan.Aliases))
	present := make([]bool, len(m.plan.Aliases))

	for _, row := range rows {
		for _, a := range m.plan.Aliases {
			present[a.Index] = false

			raw := row[a.Output(a.Metadata.PrimaryKey())]
			if raw == nil {
				continue
			}
			if a.Parent != query.RootParent && !present[a.Parent] {
				continue
			}
			key, err := schema.FromDB(a.Metadata.KeyType(), raw)
			if err != nil {
				return nil, fmt.Errorf("map %s key: %w", a.Name(), err)
			}
			keys[a.Index] = fmt.Sprint(key)
			present[a.Index] = true

			ck := compositeKey{alias: a.Index, key: keys[a.Index]}
			if _, ok := nodes[ck]; !ok {
				e, err := m.hydrate(a, row)
				if err != nil {
					return nil, err
				}
				n := &node{entity: e, alias: a.Index, children: make(map[int][]string), seen: make(map[int]map[string]bool)}
				nodes[ck] = n
				order = append(order, n)
				if a.Parent == query.RootParent {
					roots = append(roots, e)
				}
			}

			if a.Parent != query.RootParent {
				parent := nodes[compositeKey{alias: a.Parent, key: keys[a.Parent]}]
				parent.addChild(a.Index, keys[a.Index])
			}
		}
	}

	for _, n := range order {
		for _, child := range m.plan.Children(n.alias) {
			members := make([]*Entity, 0, len(n.children[child.Index]))
			for _, key := range n.children[child.Index] {
				members = append(members, nodes[compositeKey{alias: child.Index, key: key}].entity)
			}
			attach(n.entity, child.Relation, child.Metadata, members)
		}
	}

	return roots, nil
}

// hydrate builds a persisted entity from the columns of one alias
func (m *Mapper) hydrate(a query.Alias, row database.Row) (*Entity, error) {
	values := make(map[string]interface{}, len(a.Metadata.Columns()))
	for _, col := range a.Metadata.Columns() {
		v, err := schema.FromDB(col.Type, row[a.Output(col.Name)])
		if err != nil {
			return nil, fmt.Errorf("map %s.%s: %w", a.Metadata.Name(), col.Name, err)
		}
		values[col.Name] = v
	}
	return newEntity(m.session, a.Metadata, values), nil
}

// attach stores a resolved relation value on its owner
func attach(owner *Entity, rel *schema.Relation, target *schema.Metadata, members []*Entity) {
	owner.resolved[rel.Name()] = true
	if !rel.IsCollection() {
		var value *Entity
		if len(members) > 0 {
			value = members[0]
		}
		owner.related[rel.Name()] = value
		return
	}
	owner.collections[rel.Name()] = newCollection(owner, rel, target, members)
}
