package schema

import (
	"regexp"
)

// identifierPattern is the allow-list for table, column and relation names
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is a safe, unqualified SQL identifier
func IsIdentifier(s string) bool {
	return len(s) <= 63 && identifierPattern.MatchString(s)
}

// reservedColumns returns the columns a definition may not declare itself
func reservedColumns(def *Definition) map[string]string {
	return map[string]string{
		def.primaryKey(): "the primary key",
		CreatedAtColumn:  "a timestamp column",
		UpdatedAtColumn:  "a timestamp column",
		DeletedAtColumn:  "the soft-deletion column",
	}
}

// ValidateStructural checks a single definition without looking at other
// entity types. Cross-type checks (targets, cycles, reverse relations) run
// when metadata is built, so forward references are allowed at registration.
func ValidateStructural(def *Definition) error {
	if def.Name == "" {
		return definitionErrorf("<unnamed>", "entity type has no name")
	}
	if def.Table == "" {
		return definitionErrorf(def.Name, "no table name")
	}
	if !IsIdentifier(def.Table) {
		return definitionErrorf(def.Name, "table %q is not a valid identifier", def.Table)
	}
	if !IsIdentifier(def.primaryKey()) {
		return definitionErrorf(def.Name, "primary key %q is not a valid identifier", def.primaryKey())
	}
	if _, err := def.keyType(); err != nil {
		return err
	}

	reserved := reservedColumns(def)
	seen := make(map[string]bool, len(def.Columns))
	for _, col := range def.Columns {
		if !IsIdentifier(col.Name) {
			return definitionErrorf(def.Name, "column %q is not a valid identifier", col.Name)
		}
		if what, ok := reserved[col.Name]; ok {
			return definitionErrorf(def.Name, "column %s is %s and is added automatically", col.Name, what)
		}
		if seen[col.Name] {
			return definitionErrorf(def.Name, "column %s is declared twice", col.Name)
		}
		seen[col.Name] = true

		if _, err := ParseType(col.Type); err != nil {
			return definitionErrorf(def.Name, "column %s has unrecognized type %q", col.Name, col.Type)
		}
	}

	relNames := make(map[string]bool, len(def.Relations))
	for _, rel := range def.Relations {
		if seen[rel.Name] || rel.Name == def.primaryKey() {
			return definitionErrorf(def.Name, "relation %s collides with a column of the same name", rel.Name)
		}
		if relNames[rel.Name] {
			return definitionErrorf(def.Name, "relation %s is declared twice", rel.Name)
		}
		relNames[rel.Name] = true
	}

	return nil
}
