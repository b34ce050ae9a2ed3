package schema

import (
	"fmt"
	"strings"
)

// RelationKind is the cardinality of a relation
type RelationKind int

const (
	OneToOne RelationKind = iota
	OneToMany
	ManyToMany
)

// String returns the string representation of the relation kind
func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// ParseRelationKind converts a definition string to a RelationKind
func ParseRelationKind(s string) (RelationKind, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "one_to_one", "has_one", "belongs_to":
		return OneToOne, nil
	case "one_to_many", "has_many":
		return OneToMany, nil
	case "many_to_many":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown relation kind: %s", s)
	}
}

// Loading is the loading mode of a relation
type Loading int

const (
	Eager Loading = iota
	Lazy
)

// String returns the string representation of the loading mode
func (l Loading) String() string {
	if l == Lazy {
		return "lazy"
	}
	return "eager"
}

// ParseLoading converts a definition string to a Loading
func ParseLoading(s string) (Loading, error) {
	switch strings.ToLower(s) {
	case "eager":
		return Eager, nil
	case "lazy":
		return Lazy, nil
	default:
		return 0, fmt.Errorf("unknown loading mode: %s", s)
	}
}

// Resolver looks up entity metadata by type name
type Resolver interface {
	Metadata(name string) (*Metadata, error)
}

// Relation is the immutable, resolved description of one declared relation.
// The target type is referenced by name and resolved on first use so that two
// entity types may reference each other.
type Relation struct {
	name       string
	owner      string
	kind       RelationKind
	loading    Loading
	foreignKey string
	bindingKey string
	junction   string
	target     string
	resolver   Resolver
}

// Name is the property name of the relation on its owner
func (r *Relation) Name() string { return r.name }

// Owner is the entity type declaring the relation
func (r *Relation) Owner() string { return r.owner }

// Kind returns the relation cardinality
func (r *Relation) Kind() RelationKind { return r.kind }

// Loading returns the loading mode
func (r *Relation) Loading() Loading { return r.loading }

// IsEager reports whether the relation is joined into its owner's queries
func (r *Relation) IsEager() bool { return r.loading == Eager }

// IsCollection reports whether the relation resolves to a collection
func (r *Relation) IsCollection() bool { return r.kind != OneToOne }

// ForeignKey is the owner-side column (the junction's owner column for many-to-many)
func (r *Relation) ForeignKey() string { return r.foreignKey }

// BindingKey is the target-side column (the junction's target column for many-to-many)
func (r *Relation) BindingKey() string { return r.bindingKey }

// Junction is the junction table of a many-to-many relation
func (r *Relation) Junction() string { return r.junction }

// TargetName is the entity type name of the target
func (r *Relation) TargetName() string { return r.target }

// Target resolves the target type metadata
func (r *Relation) Target() (*Metadata, error) {
	if r.resolver == nil {
		return nil, fmt.Errorf("relation %s.%s has no resolver", r.owner, r.name)
	}
	md, err := r.resolver.Metadata(r.target)
	if err != nil {
		return nil, fmt.Errorf("resolve target of %s.%s: %w", r.owner, r.name, err)
	}
	return md, nil
}

// String renders the relation for diagnostics
func (r *Relation) String() string {
	s := fmt.Sprintf("%s.%s %s %s -> %s (%s = %s)",
		r.owner, r.name, r.kind, r.loading, r.target, r.foreignKey, r.bindingKey)
	if r.junction != "" {
		s += " via " + r.junction
	}
	return s
}
