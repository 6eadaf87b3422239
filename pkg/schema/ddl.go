package schema

import (
	"fmt"
	"strings"
)

// Dialect selects the native DDL flavour.
type Dialect string

// Supported dialects.
const (
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) typeName(t Type) string {
	switch t {
	case TypeFloat:
		if d == DialectPostgres {
			return "DOUBLE PRECISION"
		}
		return "DOUBLE"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "VARCHAR"
	}
}

func literalSQL(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return fmt.Sprint(x)
	}
}

// CreateStatement renders CREATE TABLE IF NOT EXISTS for t.
// DuckDB has no ON DELETE CASCADE, so the reference is omitted there and
// ownership cascades are left to the caller.
func (t *Table) CreateStatement(d Dialect) string {
	var defs []string
	for _, c := range t.Columns {
		def := fmt.Sprintf("%s %s", c.Name, d.typeName(c.Type))
		if c.Name == t.PrimaryKey {
			def += " PRIMARY KEY"
		} else if !c.Nullable {
			def += " NOT NULL"
		}
		switch {
		case c.Generated:
			def += " DEFAULT gen_random_uuid()::VARCHAR"
		case c.DefaultNow:
			def += " DEFAULT CURRENT_TIMESTAMP"
		case c.Default != nil:
			def += " DEFAULT " + literalSQL(c.Default)
		}
		defs = append(defs, def)
	}

	for _, key := range t.Unique {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(key, ", ")))
	}
	if t.Reference != nil && d == DialectPostgres {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE CASCADE",
			t.Reference.Column, t.Reference.Table, t.Reference.RefColumn))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t"))
}

// CreateStatements renders the DDL for every table, parents first.
func CreateStatements(d Dialect) []string {
	tables := Tables()
	stmts := make([]string, len(tables))
	for i, t := range tables {
		stmts[i] = t.CreateStatement(d)
	}
	return stmts
}
