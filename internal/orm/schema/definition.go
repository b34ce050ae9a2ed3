package schema

// Columns injected by feature flags. Definitions may not declare them.
const (
	DefaultPrimaryKey = "id"
	CreatedAtColumn   = "created_at"
	UpdatedAtColumn   = "updated_at"
	DeletedAtColumn   = "deleted_at"
)

// Definition is the raw, declarative description of one entity type as it is
// registered at program initialization (or decoded from configuration).
type Definition struct {
	// Name identifies the entity type in the registry and in relation targets
	Name string `mapstructure:"name" yaml:"name"`
	// Table is the backing table
	Table string `mapstructure:"table" yaml:"table"`
	// PrimaryKey defaults to "id"
	PrimaryKey string `mapstructure:"primary_key" yaml:"primary_key"`
	// KeyType is "int" (generated by the database, default) or "string"
	// (UUID generated on insert)
	KeyType string `mapstructure:"key_type" yaml:"key_type"`

	Columns   []Column             `mapstructure:"columns" yaml:"columns"`
	Relations []RelationDefinition `mapstructure:"relations" yaml:"relations"`

	Timestamps bool `mapstructure:"timestamps" yaml:"timestamps"`
	SoftDelete bool `mapstructure:"soft_delete" yaml:"soft_delete"`
	ReadOnly   bool `mapstructure:"read_only" yaml:"read_only"`
}

// Column declares one typed column
type Column struct {
	Name string `mapstructure:"name" yaml:"name"`
	Type string `mapstructure:"type" yaml:"type"`
}

// RelationDefinition declares one relation before defaults are resolved
type RelationDefinition struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Target     string `mapstructure:"target" yaml:"target"`
	Kind       string `mapstructure:"kind" yaml:"kind"`
	Loading    string `mapstructure:"loading" yaml:"loading"`
	ForeignKey string `mapstructure:"foreign_key" yaml:"foreign_key"`
	BindingKey string `mapstructure:"binding_key" yaml:"binding_key"`
	Junction   string `mapstructure:"junction" yaml:"junction"`
}

// Col is shorthand for declaring a column in Go code
func Col(name, typ string) Column {
	return Column{Name: name, Type: typ}
}

func (d *Definition) primaryKey() string {
	if d.PrimaryKey == "" {
		return DefaultPrimaryKey
	}
	return d.PrimaryKey
}

func (d *Definition) keyType() (Type, error) {
	switch d.KeyType {
	case "", "int", "integer":
		return TypeInt, nil
	case "string", "uuid":
		return TypeString, nil
	default:
		return TypeUnspecified, definitionErrorf(d.Name, "unsupported primary key type %q", d.KeyType)
	}
}

// hasColumn reports whether name is the primary key or a declared column
func (d *Definition) hasColumn(name string) bool {
	if name == d.primaryKey() {
		return true
	}
	for _, col := range d.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}
