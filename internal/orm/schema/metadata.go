package schema

import (
	"fmt"
)

// ColumnInfo is one typed column of an entity type
type ColumnInfo struct {
	Name string
	Type Type
}

// Metadata is the parsed, validated and immutable descriptor of an entity type.
// It is built once per type by the Registry and shared by every instance.
type Metadata struct {
	name       string
	table      string
	primaryKey string
	keyType    Type

	columns     []ColumnInfo
	columnIndex map[string]int

	relations     []*Relation
	relationIndex map[string]*Relation

	timestamps bool
	softDelete bool
	readOnly   bool
}

// Name returns the entity type name
func (m *Metadata) Name() string { return m.name }

// Table returns the backing table
func (m *Metadata) Table() string { return m.table }

// PrimaryKey returns the primary key column
func (m *Metadata) PrimaryKey() string { return m.primaryKey }

// KeyType returns the type of the primary key
func (m *Metadata) KeyType() Type { return m.keyType }

// GeneratesKey reports whether keys are generated client side on insert
func (m *Metadata) GeneratesKey() bool { return m.keyType == TypeString }

// Timestamps reports whether created_at/updated_at are tracked
func (m *Metadata) Timestamps() bool { return m.timestamps }

// SoftDelete reports whether deletions are recorded in deleted_at
func (m *Metadata) SoftDelete() bool { return m.softDelete }

// ReadOnly reports whether instances reject writes
func (m *Metadata) ReadOnly() bool { return m.readOnly }

// Columns returns all columns in select order: primary key, declared
// columns, then injected timestamp and soft-deletion columns
func (m *Metadata) Columns() []ColumnInfo {
	out := make([]ColumnInfo, len(m.columns))
	copy(out, m.columns)
	return out
}

// ColumnNames returns the column names in select order
func (m *Metadata) ColumnNames() []string {
	names := make([]string, len(m.columns))
	for i, col := range m.columns {
		names[i] = col.Name
	}
	return names
}

// HasColumn reports whether name is a column of the entity type
func (m *Metadata) HasColumn(name string) bool {
	_, ok := m.columnIndex[name]
	return ok
}

// PropertyType returns the type of a column property. Unknown names fail
// with ErrNotDefined; this guards every dynamic property access.
func (m *Metadata) PropertyType(name string) (Type, error) {
	idx, ok := m.columnIndex[name]
	if !ok {
		return TypeUnspecified, fmt.Errorf("%w: %s.%s", ErrNotDefined, m.name, name)
	}
	return m.columns[idx].Type, nil
}

// Cast converts v to the canonical representation of column name
func (m *Metadata) Cast(name string, v interface{}) (interface{}, error) {
	typ, err := m.PropertyType(name)
	if err != nil {
		return nil, err
	}
	cast, err := Cast(typ, v)
	if err != nil {
		return nil, &ValueError{Entity: m.name, Property: name, Type: typ, Err: err}
	}
	return cast, nil
}

// IsProperty reports whether name is a column or a relation
func (m *Metadata) IsProperty(name string) bool {
	if m.HasColumn(name) {
		return true
	}
	_, ok := m.relationIndex[name]
	return ok
}

// Relation returns a relation by property name
func (m *Metadata) Relation(name string) (*Relation, bool) {
	rel, ok := m.relationIndex[name]
	return rel, ok
}

// Relations returns the relations in declaration order
func (m *Metadata) Relations() []*Relation {
	out := make([]*Relation, len(m.relations))
	copy(out, m.relations)
	return out
}

// EagerRelations returns the eager relations in declaration order
func (m *Metadata) EagerRelations() []*Relation {
	var out []*Relation
	for _, rel := range m.relations {
		if rel.IsEager() {
			out = append(out, rel)
		}
	}
	return out
}
