package schema

import "strings"

// Builder turns a registered Definition into Metadata. Every check that needs
// to see other entity types happens here, so a broken definition fails the
// first time its metadata is requested and never at query time.
type Builder struct {
	lookup   definitionLookup
	resolver Resolver
	graph    func() *EagerGraph
}

// Build parses and validates def into immutable metadata
func (b *Builder) Build(def *Definition) (*Metadata, error) {
	if err := ValidateStructural(def); err != nil {
		return nil, err
	}

	keyType, err := def.keyType()
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		name:          def.Name,
		table:         def.Table,
		primaryKey:    def.primaryKey(),
		keyType:       keyType,
		columnIndex:   make(map[string]int),
		relationIndex: make(map[string]*Relation),
		timestamps:    def.Timestamps,
		softDelete:    def.SoftDelete,
		readOnly:      def.ReadOnly,
	}

	md.addColumn(md.primaryKey, keyType)
	for _, col := range def.Columns {
		typ, err := ParseType(col.Type)
		if err != nil {
			return nil, definitionErrorf(def.Name, "column %s has unrecognized type %q", col.Name, col.Type)
		}
		md.addColumn(col.Name, typ)
	}
	if def.Timestamps {
		md.addColumn(CreatedAtColumn, TypeDateTime)
		md.addColumn(UpdatedAtColumn, TypeDateTime)
	}
	if def.SoftDelete {
		md.addColumn(DeletedAtColumn, TypeDateTime)
	}

	if cycle := b.graph().CycleFrom(def.Name); cycle != nil {
		return nil, definitionErrorf(def.Name, "eager relations form a cycle: %s -> %s",
			strings.Join(cycle, " -> "), cycle[0])
	}

	for _, decl := range def.Relations {
		rel, err := parseRelation(def, decl, b.lookup, b.resolver)
		if err != nil {
			return nil, err
		}
		md.relations = append(md.relations, rel)
		md.relationIndex[rel.name] = rel
	}

	for _, rel := range md.relations {
		if rel.kind != OneToMany {
			continue
		}
		if err := checkReverse(def, rel, b.lookup); err != nil {
			return nil, err
		}
	}

	return md, nil
}

func (m *Metadata) addColumn(name string, typ Type) {
	m.columnIndex[name] = len(m.columns)
	m.columns = append(m.columns, ColumnInfo{Name: name, Type: typ})
}
