package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// definitionLookup finds a registered definition by entity type name
type definitionLookup func(name string) (*Definition, bool)

// parseRelation validates one declared relation and resolves its defaults
func parseRelation(owner *Definition, decl RelationDefinition, lookup definitionLookup, resolver Resolver) (*Relation, error) {
	if decl.Name == "" {
		return nil, definitionErrorf(owner.Name, "relation without a name")
	}
	if !IsIdentifier(decl.Name) {
		return nil, definitionErrorf(owner.Name, "relation name %q is not a valid identifier", decl.Name)
	}
	if decl.Target == "" {
		return nil, definitionErrorf(owner.Name, "relation %s has no target type", decl.Name)
	}
	target, ok := lookup(decl.Target)
	if !ok {
		return nil, definitionErrorf(owner.Name, "relation %s targets unknown entity type %s", decl.Name, decl.Target)
	}

	kind := OneToOne
	if decl.Kind != "" {
		k, err := ParseRelationKind(decl.Kind)
		if err != nil {
			return nil, definitionErrorf(owner.Name, "relation %s: %v", decl.Name, err)
		}
		kind = k
	}

	loading := Lazy
	if kind == OneToOne {
		loading = Eager
	}
	if decl.Loading != "" {
		l, err := ParseLoading(decl.Loading)
		if err != nil {
			return nil, definitionErrorf(owner.Name, "relation %s: %v", decl.Name, err)
		}
		loading = l
	}

	rel := &Relation{
		name:       decl.Name,
		owner:      owner.Name,
		kind:       kind,
		loading:    loading,
		foreignKey: decl.ForeignKey,
		bindingKey: decl.BindingKey,
		target:     target.Name,
		resolver:   resolver,
	}

	switch kind {
	case OneToOne:
		if rel.foreignKey == "" {
			rel.foreignKey = decl.Name + "_id"
		}
		if rel.bindingKey == "" {
			rel.bindingKey = target.primaryKey()
		}
		if !owner.hasColumn(rel.foreignKey) {
			return nil, definitionErrorf(owner.Name, "relation %s: foreign key %s is not a column of %s",
				decl.Name, rel.foreignKey, owner.Name)
		}
		if !target.hasColumn(rel.bindingKey) {
			return nil, definitionErrorf(owner.Name, "relation %s: binding key %s is not a column of %s",
				decl.Name, rel.bindingKey, target.Name)
		}

	case OneToMany:
		if rel.foreignKey == "" {
			rel.foreignKey = owner.primaryKey()
		}
		if rel.bindingKey == "" {
			rel.bindingKey = junctionColumn(owner.Table)
		}
		if !owner.hasColumn(rel.foreignKey) {
			return nil, definitionErrorf(owner.Name, "relation %s: foreign key %s is not a column of %s",
				decl.Name, rel.foreignKey, owner.Name)
		}
		if !target.hasColumn(rel.bindingKey) {
			return nil, definitionErrorf(owner.Name, "relation %s: binding key %s is not a column of %s",
				decl.Name, rel.bindingKey, target.Name)
		}

	case ManyToMany:
		if decl.Junction == "" {
			return nil, definitionErrorf(owner.Name, "many-to-many relation %s requires a junction table", decl.Name)
		}
		if !IsIdentifier(decl.Junction) {
			return nil, definitionErrorf(owner.Name, "relation %s: junction %q is not a valid identifier", decl.Name, decl.Junction)
		}
		rel.junction = decl.Junction
		if rel.foreignKey == "" {
			rel.foreignKey = junctionColumn(owner.Table)
		}
		if rel.bindingKey == "" {
			rel.bindingKey = junctionColumn(target.Table)
		}
		if rel.foreignKey == rel.bindingKey {
			return nil, definitionErrorf(owner.Name, "relation %s: junction columns must differ, both are %s",
				decl.Name, rel.foreignKey)
		}
	}

	for _, key := range []string{rel.foreignKey, rel.bindingKey} {
		if !IsIdentifier(key) {
			return nil, definitionErrorf(owner.Name, "relation %s: key %q is not a valid identifier", decl.Name, key)
		}
	}

	return rel, nil
}

// junctionColumn derives "<singular table>_id", e.g. users -> user_id
func junctionColumn(table string) string {
	return inflection.Singular(table) + "_id"
}

// isEagerDecl resolves only the loading default of a declaration
func isEagerDecl(decl RelationDefinition) bool {
	if decl.Loading != "" {
		return strings.EqualFold(decl.Loading, "eager")
	}
	if decl.Kind == "" {
		return true
	}
	kind, err := ParseRelationKind(decl.Kind)
	return err == nil && kind == OneToOne
}

// checkReverse verifies that a one-to-many relation has a one-to-one
// counterpart on its target with the keys swapped
func checkReverse(owner *Definition, rel *Relation, lookup definitionLookup) error {
	target, ok := lookup(rel.target)
	if !ok {
		return definitionErrorf(owner.Name, "relation %s targets unknown entity type %s", rel.name, rel.target)
	}

	for _, decl := range target.Relations {
		if decl.Target != owner.Name {
			continue
		}
		back, err := parseRelation(target, decl, lookup, nil)
		if err != nil {
			continue
		}
		if back.kind == OneToOne && back.foreignKey == rel.bindingKey && back.bindingKey == rel.foreignKey {
			return nil
		}
	}

	return definitionErrorf(owner.Name,
		"one-to-many relation %s requires a one-to-one relation on %s to %s with foreign key %s and binding key %s",
		rel.name, target.Name, owner.Name, rel.bindingKey, rel.foreignKey)
}

// EagerGraph is the dependency graph formed by eager relations between entity types
type EagerGraph struct {
	nodes []string
	edges map[string][]string // entity -> eager targets, in declaration order
}

// NewEagerGraph builds the eager-loading graph over a set of definitions
func NewEagerGraph(defs map[string]*Definition) *EagerGraph {
	g := &EagerGraph{edges: make(map[string][]string)}
	for name := range defs {
		g.nodes = append(g.nodes, name)
	}
	sort.Strings(g.nodes)

	for _, name := range g.nodes {
		for _, decl := range defs[name].Relations {
			if isEagerDecl(decl) && decl.Target != "" {
				g.edges[name] = append(g.edges[name], decl.Target)
			}
		}
	}
	return g
}

// CycleFrom returns the first eager cycle reachable from start, or nil
func (g *EagerGraph) CycleFrom(start string) []string {
	onStack := make(map[string]bool)
	done := make(map[string]bool)

	var dfs func(node string, path []string) []string
	dfs = func(node string, path []string) []string {
		onStack[node] = true
		path = append(path, node)

		for _, next := range g.edges[node] {
			if onStack[next] {
				for i, n := range path {
					if n == next {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						return cycle
					}
				}
			}
			if done[next] {
				continue
			}
			if cycle := dfs(next, path); cycle != nil {
				return cycle
			}
		}

		onStack[node] = false
		done[node] = true
		return nil
	}

	return dfs(start, nil)
}

// DetectCycles returns every distinct eager cycle in the graph
func (g *EagerGraph) DetectCycles() [][]string {
	var cycles [][]string
	seen := make(map[string]bool)
	for _, node := range g.nodes {
		cycle := g.CycleFrom(node)
		if cycle == nil {
			continue
		}
		key := canonicalCycle(cycle)
		if seen[key] {
			continue
		}
		seen[key] = true
		cycles = append(cycles, cycle)
	}
	return cycles
}

// TopologicalSort orders entity types so that every eager target precedes
// the types that join it
func (g *EagerGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int, len(g.nodes))
	reverse := make(map[string][]string)
	for _, node := range g.nodes {
		outDegree[node] = len(g.edges[node])
		for _, target := range g.edges[node] {
			reverse[target] = append(reverse[target], node)
		}
	}

	queue := make([]string, 0)
	for _, node := range g.nodes {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dependent := range reverse[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("eager relation cycle detected:\n%s", FormatCycles(g.DetectCycles()))
	}
	return result, nil
}

// Dependencies returns the eager targets of an entity type
func (g *EagerGraph) Dependencies(name string) []string {
	return g.edges[name]
}

// FormatCycles renders cycles as "A -> B -> A" lines
func FormatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  cycle %d: %s -> %s", i+1, strings.Join(cycle, " -> "), cycle[0])
	}
	return b.String()
}

// canonicalCycle rotates a cycle to start at its smallest member
func canonicalCycle(cycle []string) string {
	min := 0
	for i := range cycle {
		if cycle[i] < cycle[min] {
			min = i
		}
	}
	rotated := append(append([]string{}, cycle[min:]...), cycle[:min]...)
	return strings.Join(rotated, ">")
}
