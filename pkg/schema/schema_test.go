package schema

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{Users, Transactions, Savings, Subscriptions, Budgets} {
		tbl, ok := Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) not found", name)
		}
		if tbl.PrimaryKey != "id" {
			t.Errorf("%s primary key = %q", name, tbl.PrimaryKey)
		}
	}
	if _, ok := Lookup("accounts"); ok {
		t.Error("Lookup(accounts) should not be found")
	}
}

func TestTables_ReturnsFreshCopies(t *testing.T) {
	a := Tables()
	a[0].Name = "mutated"
	if b := Tables(); b[0].Name != Users {
		t.Errorf("Tables() shares state: %q", b[0].Name)
	}
}

func TestTable_IsUniqueKey(t *testing.T) {
	budgets, _ := Lookup(Budgets)
	tests := []struct {
		cols []string
		want bool
	}{
		{[]string{"user_id", "category"}, true},
		{[]string{"category", "user_id"}, true},
		{[]string{"id"}, true},
		{[]string{"category"}, false},
		{[]string{"user_id", "category", "id"}, false},
	}
	for _, tt := range tests {
		if got := budgets.IsUniqueKey(tt.cols); got != tt.want {
			t.Errorf("IsUniqueKey(%v) = %v, want %v", tt.cols, got, tt.want)
		}
	}
}

func TestTable_ApplyDefaults(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	savings, _ := Lookup(Savings)

	got := savings.ApplyDefaults(query.Row{"user_id": "u1", "goal": float64(500)}, now, func() string { return "abcd1234" })
	want := query.Row{
		"id":                  "abcd1234",
		"user_id":             "u1",
		"current":             float64(0),
		"goal":                float64(500),
		"weekly_contribution": float64(50),
		"ghost_mode":          false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ApplyDefaults() mismatch (-want +got):\n%s", diff)
	}

	users, _ := Lookup(Users)
	row := users.ApplyDefaults(query.Row{"email": "a@b.c"}, now, func() string { return "x" })
	if row["created_at"] != now {
		t.Errorf("created_at = %v, want %v", row["created_at"], now)
	}
	if col := users.MissingRequired(row); col != "password_hash" {
		t.Errorf("MissingRequired() = %q, want password_hash", col)
	}
}

func TestMatchesSeedShape(t *testing.T) {
	if !MatchesSeedShape(Subscriptions, []string{"user_id", "name", "cost", "last_used", "suggest_cancel"}) {
		t.Error("expected subscriptions seed shape to match")
	}
	if MatchesSeedShape(Subscriptions, []string{"user_id", "name"}) {
		t.Error("partial column list should not match")
	}
	if MatchesSeedShape(Transactions, []string{"user_id", "amount"}) {
		t.Error("transactions has no seed shape")
	}
}

func TestCreateStatement(t *testing.T) {
	budgets, _ := Lookup(Budgets)

	duck := budgets.CreateStatement(DialectDuckDB)
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS budgets",
		"id VARCHAR PRIMARY KEY DEFAULT gen_random_uuid()::VARCHAR",
		"monthly_limit DOUBLE NOT NULL",
		"created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP",
		"UNIQUE (user_id, category)",
	} {
		if !strings.Contains(duck, want) {
			t.Errorf("duckdb DDL missing %q:\n%s", want, duck)
		}
	}
	if strings.Contains(duck, "REFERENCES") {
		t.Errorf("duckdb DDL should not declare references:\n%s", duck)
	}

	pg := budgets.CreateStatement(DialectPostgres)
	if !strings.Contains(pg, "REFERENCES users(id) ON DELETE CASCADE") {
		t.Errorf("postgres DDL missing cascade:\n%s", pg)
	}
	if !strings.Contains(pg, "monthly_limit DOUBLE PRECISION NOT NULL") {
		t.Errorf("postgres DDL float type:\n%s", pg)
	}

	savings, _ := Lookup(Savings)
	if s := savings.CreateStatement(DialectDuckDB); !strings.Contains(s, "ghost_mode BOOLEAN DEFAULT FALSE") ||
		!strings.Contains(s, "goal DOUBLE DEFAULT 10000") {
		t.Errorf("savings defaults:\n%s", s)
	}
}

func TestCreateStatements_ParentsFirst(t *testing.T) {
	stmts := CreateStatements(DialectPostgres)
	if len(stmts) != 5 || !strings.Contains(stmts[0], "TABLE IF NOT EXISTS users") {
		t.Errorf("unexpected order: %v", stmts)
	}
}

func TestColumn_Coerce(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		col     Column
		in      query.Value
		want    query.Value
		wantErr bool
	}{
		{"FloatFromString", Column{Name: "amount", Type: TypeFloat}, "12.50", 12.5, false},
		{"FloatFromInt", Column{Name: "amount", Type: TypeFloat}, 7, 7.0, false},
		{"FloatInvalid", Column{Name: "amount", Type: TypeFloat}, "abc", nil, true},
		{"BoolFromString", Column{Name: "ghost_mode", Type: TypeBool}, "true", true, false},
		{"BoolInvalid", Column{Name: "ghost_mode", Type: TypeBool}, "maybe", nil, true},
		{"TimestampFromString", Column{Name: "created_at", Type: TypeTimestamp}, "2026-01-02T03:04:05Z", ts, false},
		{"TextFromInt", Column{Name: "name", Type: TypeText}, int64(42), "42", false},
		{"Null", Column{Name: "name", Type: TypeText}, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.col.Coerce(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Coerce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Coerce() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTable_CoerceRow_UnknownColumn(t *testing.T) {
	users, _ := Lookup(Users)
	if _, err := users.CoerceRow(query.Row{"nickname": "x"}); err == nil {
		t.Error("expected unknown column error")
	}
}
