package query

import (
	"strings"
)

// DefaultTableNamer resolves table references using PostgreSQL identifier rules:
// unquoted identifiers fold to lower case and an optional schema prefix is split off.
type DefaultTableNamer struct{}

// NewTableNamer creates a new table namer.
func NewTableNamer() *DefaultTableNamer {
	return &DefaultTableNamer{}
}

// ParseTableReference parses a table reference into schema and table components.
// Handles formats: table, schema.table
//
// Examples:
//   - ParseTableReference("Users") -> "", "users"
//   - ParseTableReference("public.budgets") -> "public", "budgets"
func (n *DefaultTableNamer) ParseTableReference(ref string) (schema, table string) {
	ref = strings.TrimSpace(ref)
	parts := strings.Split(ref, ".")

	switch len(parts) {
	case 1:
		return "", strings.ToLower(parts[0])
	case 2:
		return strings.ToLower(parts[0]), strings.ToLower(parts[1])
	default:
		// For invalid formats, use the last component
		return "", strings.ToLower(parts[len(parts)-1])
	}
}

// defaultTableNamer is the package-level instance for convenience functions.
var defaultTableNamer = NewTableNamer()

// ParseTableRef is a convenience function that uses the default table namer.
func ParseTableRef(ref string) (schema, table string) {
	return defaultTableNamer.ParseTableReference(ref)
}
