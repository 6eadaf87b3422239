// Package schema declares the entity tables served by the gateway: columns,
// defaults, unique keys and the user_id ownership cascade. The same declarations
// drive the in-memory store, the table-store emulator and the native bootstrap DDL.
package schema

import (
	"sort"
	"strings"
	"time"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
)

// Type is a column storage type.
type Type int

// Column types.
const (
	TypeText Type = iota
	TypeFloat
	TypeBool
	TypeTimestamp
)

// Column describes one table column.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
	// Generated columns receive a fresh row identifier when omitted.
	Generated bool
	// DefaultNow columns receive the statement time when omitted.
	DefaultNow bool
	// Default is the literal default, nil for none.
	Default query.Value
}

// ForeignKey is a reference to a parent table. Deleting the parent row deletes
// the referencing rows.
type ForeignKey struct {
	Column    string
	Table     string
	RefColumn string
}

// Table describes one entity table.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey string
	// Unique lists the unique keys other than the primary key.
	Unique    [][]string
	Reference *ForeignKey
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table declares name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// UniqueKeys returns every unique key, the primary key first.
func (t *Table) UniqueKeys() [][]string {
	keys := [][]string{{t.PrimaryKey}}
	return append(keys, t.Unique...)
}

// IsUniqueKey reports whether cols, in any order, form a declared unique key.
func (t *Table) IsUniqueKey(cols []string) bool {
	want := sortedCopy(cols)
	for _, key := range t.UniqueKeys() {
		if strings.Join(sortedCopy(key), ",") == strings.Join(want, ",") {
			return true
		}
	}
	return false
}

// ApplyDefaults returns a copy of row with every omitted column filled in from
// its default. newID is called for omitted generated columns.
func (t *Table) ApplyDefaults(row query.Row, now time.Time, newID func() string) query.Row {
	out := make(query.Row, len(t.Columns))
	for _, c := range t.Columns {
		if v, ok := row[c.Name]; ok {
			out[c.Name] = v
			continue
		}
		switch {
		case c.Generated:
			out[c.Name] = newID()
		case c.DefaultNow:
			out[c.Name] = now
		default:
			out[c.Name] = c.Default
		}
	}
	return out
}

// MissingRequired returns the first non-nullable column holding NULL in row, or "".
func (t *Table) MissingRequired(row query.Row) string {
	for _, c := range t.Columns {
		if !c.Nullable && query.IsNull(row[c.Name]) {
			return c.Name
		}
	}
	return ""
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// Table names.
const (
	Users         = "users"
	Transactions  = "transactions"
	Savings       = "savings"
	Subscriptions = "subscriptions"
	Budgets       = "budgets"
)

func ownedBy() *ForeignKey {
	return &ForeignKey{Column: "user_id", Table: Users, RefColumn: "id"}
}

func idColumn() Column {
	return Column{Name: "id", Type: TypeText, Generated: true}
}

// Tables returns fresh declarations of every entity table, parents first.
func Tables() []*Table {
	return []*Table{
		{
			Name: Users,
			Columns: []Column{
				idColumn(),
				{Name: "name", Type: TypeText, Nullable: true},
				{Name: "email", Type: TypeText},
				{Name: "password_hash", Type: TypeText},
				{Name: "created_at", Type: TypeTimestamp, Nullable: true, DefaultNow: true},
			},
			PrimaryKey: "id",
			Unique:     [][]string{{"email"}},
		},
		{
			Name: Transactions,
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: TypeText},
				{Name: "amount", Type: TypeFloat},
				{Name: "rounded_diff", Type: TypeFloat, Nullable: true, Default: float64(0)},
				{Name: "merchant", Type: TypeText, Nullable: true},
				{Name: "description", Type: TypeText, Nullable: true},
				{Name: "category", Type: TypeText, Nullable: true},
				{Name: "created_at", Type: TypeTimestamp, Nullable: true, DefaultNow: true},
			},
			PrimaryKey: "id",
			Reference:  ownedBy(),
		},
		{
			Name: Savings,
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: TypeText},
				{Name: "current", Type: TypeFloat, Nullable: true, Default: float64(0)},
				{Name: "goal", Type: TypeFloat, Nullable: true, Default: float64(10000)},
				{Name: "weekly_contribution", Type: TypeFloat, Nullable: true, Default: float64(50)},
				{Name: "ghost_mode", Type: TypeBool, Nullable: true, Default: false},
			},
			PrimaryKey: "id",
			Reference:  ownedBy(),
		},
		{
			Name: Subscriptions,
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: TypeText},
				{Name: "name", Type: TypeText},
				{Name: "cost", Type: TypeFloat},
				{Name: "last_used", Type: TypeTimestamp, Nullable: true},
				{Name: "suggest_cancel", Type: TypeBool, Nullable: true, Default: false},
			},
			PrimaryKey: "id",
			Reference:  ownedBy(),
		},
		{
			Name: Budgets,
			Columns: []Column{
				idColumn(),
				{Name: "user_id", Type: TypeText},
				{Name: "category", Type: TypeText},
				{Name: "monthly_limit", Type: TypeFloat},
				{Name: "created_at", Type: TypeTimestamp, Nullable: true, DefaultNow: true},
			},
			PrimaryKey: "id",
			Unique:     [][]string{{"user_id", "category"}},
			Reference:  ownedBy(),
		},
	}
}

// Lookup returns the declaration of the named table.
func Lookup(name string) (*Table, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// SeedShapes lists the tables that accept multi-row inserts and the exact
// column list such an insert must name.
var SeedShapes = map[string][]string{
	Subscriptions: {"user_id", "name", "cost", "last_used", "suggest_cancel"},
}

// MatchesSeedShape reports whether a multi-row insert into table naming cols is allowed.
func MatchesSeedShape(table string, cols []string) bool {
	shape, ok := SeedShapes[table]
	if !ok || len(shape) != len(cols) {
		return false
	}
	for i := range shape {
		if shape[i] != cols[i] {
			return false
		}
	}
	return true
}
