package query

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// TestParse_Insert tests INSERT parsing, including the upsert and seed shapes.
func TestParse_Insert(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected Intent
	}{
		{
			name: "RegisterUser",
			sql:  "INSERT INTO users(name, email, password_hash) VALUES($1, $2, $3) RETURNING id",
			expected: &InsertIntent{
				Table:     "users",
				Columns:   []string{"name", "email", "password_hash"},
				Rows:      [][]Expr{{ParamRef{1}, ParamRef{2}, ParamRef{3}}},
				Returning: &Returning{Columns: []string{"id"}},
			},
		},
		{
			name: "DefaultSavingsWithLiterals",
			sql: `
				INSERT INTO savings (user_id, current, goal, weekly_contribution, ghost_mode)
				VALUES ($1, 0, 10000, 50, false)
				RETURNING *
			`,
			expected: &InsertIntent{
				Table:   "savings",
				Columns: []string{"user_id", "current", "goal", "weekly_contribution", "ghost_mode"},
				Rows: [][]Expr{{
					ParamRef{1}, Literal{int64(0)}, Literal{int64(10000)}, Literal{int64(50)}, Literal{false},
				}},
				Returning: &Returning{Star: true},
			},
		},
		{
			name: "SeedSubscriptions",
			sql: `INSERT INTO subscriptions (user_id, name, cost, last_used, suggest_cancel)
				VALUES
				  ($1, 'Knetflex', 15.99, NOW() - INTERVAL '2 days', false),
				  ($1, 'Gym Membership', 50.00, NOW() - INTERVAL '45 days', true)
				RETURNING *`,
			expected: &InsertIntent{
				Table:   "subscriptions",
				Columns: []string{"user_id", "name", "cost", "last_used", "suggest_cancel"},
				Rows: [][]Expr{
					{ParamRef{1}, Literal{"Knetflex"}, Literal{15.99}, Now{Minus: 48 * time.Hour}, Literal{false}},
					{ParamRef{1}, Literal{"Gym Membership"}, Literal{50.0}, Now{Minus: 45 * 24 * time.Hour}, Literal{true}},
				},
				Returning: &Returning{Star: true},
			},
		},
		{
			name: "BudgetUpsert",
			sql: `INSERT INTO budgets (user_id, category, monthly_limit) VALUES ($1, $2, $3)
				ON CONFLICT (user_id, category) DO UPDATE SET monthly_limit = $3, created_at = NOW()
				RETURNING *`,
			expected: &InsertIntent{
				Table:   "budgets",
				Columns: []string{"user_id", "category", "monthly_limit"},
				Rows:    [][]Expr{{ParamRef{1}, ParamRef{2}, ParamRef{3}}},
				Conflict: &ConflictClause{
					Columns: []string{"user_id", "category"},
					Set: []Assignment{
						{Column: "monthly_limit", Value: ParamRef{3}},
						{Column: "created_at", Value: Now{}},
					},
				},
				Returning: &Returning{Star: true},
			},
		},
		{
			name: "SeedUserExcluded",
			sql: `INSERT INTO users (email, password_hash) VALUES ($1, $2)
				ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash
				RETURNING id`,
			expected: &InsertIntent{
				Table:   "users",
				Columns: []string{"email", "password_hash"},
				Rows:    [][]Expr{{ParamRef{1}, ParamRef{2}}},
				Conflict: &ConflictClause{
					Columns: []string{"email"},
					Set:     []Assignment{{Column: "password_hash", Value: ExcludedRef{Column: "password_hash"}}},
				},
				Returning: &Returning{Columns: []string{"id"}},
			},
		},
		{
			name: "DoNothing",
			sql:  "INSERT INTO users (email) VALUES ($1) ON CONFLICT (email) DO NOTHING;",
			expected: &InsertIntent{
				Table:    "users",
				Columns:  []string{"email"},
				Rows:     [][]Expr{{ParamRef{1}}},
				Conflict: &ConflictClause{Columns: []string{"email"}, DoNothing: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.expected, intent); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestParse_Select tests SELECT parsing.
func TestParse_Select(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected Intent
	}{
		{
			name:     "Star",
			sql:      "SELECT * FROM users WHERE email = $1",
			expected: &SelectIntent{Table: "users", Star: true, Where: []Predicate{{"email", OpEq, ParamRef{1}}}},
		},
		{
			name: "ProjectionWithAlias",
			sql:  "SELECT id, name AS full_name FROM users WHERE id = $1",
			expected: &SelectIntent{
				Table:   "users",
				Columns: []SelectItem{{Column: "id"}, {Column: "name", Alias: "full_name"}},
				Where:   []Predicate{{"id", OpEq, ParamRef{1}}},
			},
		},
		{
			name: "FilteredPage",
			sql: `SELECT id, amount, category FROM transactions
				WHERE user_id = $1 AND category = $2 AND created_at >= $3 AND created_at <= $4
				ORDER BY created_at DESC LIMIT $5 OFFSET $6`,
			expected: &SelectIntent{
				Table:   "transactions",
				Columns: []SelectItem{{Column: "id"}, {Column: "amount"}, {Column: "category"}},
				Where: []Predicate{
					{"user_id", OpEq, ParamRef{1}},
					{"category", OpEq, ParamRef{2}},
					{"created_at", OpGte, ParamRef{3}},
					{"created_at", OpLte, ParamRef{4}},
				},
				OrderBy: &OrderBy{Column: "created_at", Descending: true},
				Limit:   &ParamRef{5},
				Offset:  &ParamRef{6},
			},
		},
		{
			name: "OffsetBeforeLimitAscDefault",
			sql:  "SELECT * FROM budgets WHERE user_id = $1 ORDER BY category OFFSET $3 LIMIT $2",
			expected: &SelectIntent{
				Table:   "budgets",
				Star:    true,
				Where:   []Predicate{{"user_id", OpEq, ParamRef{1}}},
				OrderBy: &OrderBy{Column: "category"},
				Limit:   &ParamRef{2},
				Offset:  &ParamRef{3},
			},
		},
		{
			name: "SpendingSummary",
			sql: `SELECT
				category,
				COUNT(*) as transaction_count,
				SUM(ABS(amount)) as total_spent,
				SUM(rounded_diff) as total_round_up
			FROM transactions
			WHERE user_id = $1
			GROUP BY category
			ORDER BY total_spent DESC`,
			expected: &SelectIntent{
				Table:   "transactions",
				Columns: []SelectItem{{Column: "category"}},
				Where:   []Predicate{{"user_id", OpEq, ParamRef{1}}},
				OrderBy: &OrderBy{Column: "total_spent", Descending: true},
				Aggregation: &Aggregation{
					GroupBy: "category",
					Columns: []SelectItem{{Column: "category"}},
					Count:   &CountItem{Alias: "transaction_count"},
					Sums: []SumItem{
						{Column: "amount", Abs: true, Alias: "total_spent"},
						{Column: "rounded_diff", Alias: "total_round_up"},
					},
					Order: []string{"category", "transaction_count", "total_spent", "total_round_up"},
				},
			},
		},
		{
			name: "CountWithoutGroup",
			sql:  "SELECT COUNT(*) FROM transactions WHERE user_id = $1",
			expected: &SelectIntent{
				Table: "transactions",
				Where: []Predicate{{"user_id", OpEq, ParamRef{1}}},
				Aggregation: &Aggregation{
					Count: &CountItem{Alias: "count"},
					Order: []string{"count"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.expected, intent); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestParse_UpdateDelete tests SET and WHERE parsing for writes.
func TestParse_UpdateDelete(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected Intent
	}{
		{
			name: "GhostMode",
			sql:  "UPDATE savings SET ghost_mode = $1 WHERE user_id = $2",
			expected: &UpdateIntent{
				Table: "savings",
				Set:   []Assignment{{Column: "ghost_mode", Value: ParamRef{1}}},
				Where: []Predicate{{"user_id", OpEq, ParamRef{2}}},
			},
		},
		{
			name: "CoalesceEdit",
			sql: `UPDATE transactions
				SET category = COALESCE($1, category), merchant = COALESCE($2, merchant), description = $3
				WHERE id = $4 AND user_id = $5
				RETURNING *`,
			expected: &UpdateIntent{
				Table: "transactions",
				Set: []Assignment{
					{Column: "category", Value: Coalesce{Param: ParamRef{1}, Column: "category"}},
					{Column: "merchant", Value: Coalesce{Param: ParamRef{2}, Column: "merchant"}},
					{Column: "description", Value: ParamRef{3}},
				},
				Where:     []Predicate{{"id", OpEq, ParamRef{4}}, {"user_id", OpEq, ParamRef{5}}},
				Returning: &Returning{Star: true},
			},
		},
		{
			name: "DeleteReturning",
			sql:  "DELETE FROM budgets WHERE id = $1 AND user_id = $2 RETURNING *",
			expected: &DeleteIntent{
				Table:     "budgets",
				Where:     []Predicate{{"id", OpEq, ParamRef{1}}, {"user_id", OpEq, ParamRef{2}}},
				Returning: &Returning{Star: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.expected, intent); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestParse_DialectErrors tests that unsupported shapes are rejected, not guessed.
func TestParse_DialectErrors(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"UpdateWithoutSet", "UPDATE savings ghost_mode = $1 WHERE user_id = $2"},
		{"UpdateWithoutWhere", "UPDATE savings SET ghost_mode = $1"},
		{"DeleteWithoutWhere", "DELETE FROM budgets"},
		{"OrPredicate", "SELECT * FROM users WHERE id = $1 OR email = $2"},
		{"NestedPredicate", "SELECT * FROM users WHERE (id = $1)"},
		{"LiteralPredicate", "SELECT * FROM users WHERE id = 5"},
		{"NotEqual", "SELECT * FROM users WHERE id <> $1"},
		{"LiteralLimit", "SELECT * FROM users LIMIT 10"},
		{"InsertWithoutColumns", "INSERT INTO users VALUES ($1, $2)"},
		{"TupleArity", "INSERT INTO users (name, email) VALUES ($1)"},
		{"CoalesceOtherColumn", "UPDATE t SET a = COALESCE($1, b) WHERE id = $2"},
		{"ExcludedOutsideConflict", "UPDATE t SET a = EXCLUDED.a WHERE id = $1"},
		{"GroupWithoutAggregate", "SELECT category FROM transactions GROUP BY category"},
		{"UngroupedColumn", "SELECT merchant, COUNT(*) FROM transactions GROUP BY category"},
		{"UnknownFunction", "SELECT MAX(amount) FROM transactions"},
		{"TrailingGarbage", "SELECT * FROM users WHERE id = $1 FOR UPDATE"},
		{"ZeroParam", "SELECT * FROM users WHERE id = $0"},
		{"BadInterval", "INSERT INTO s (a) VALUES (NOW() - INTERVAL '2 fortnights')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.sql)
			if !errors.Is(err, apierror.ErrClauseParse) {
				t.Fatalf("Parse() error = %v, want ClauseParseError", err)
			}
			var gwErr *apierror.Error
			if errors.As(err, &gwErr) && gwErr.Statement != tt.sql {
				t.Errorf("error statement = %q, want offending text", gwErr.Statement)
			}
		})
	}
}
