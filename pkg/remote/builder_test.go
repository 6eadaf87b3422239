package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/tablestore"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func prepare(t *testing.T, text string, params ...query.Value) *query.Prepared {
	t.Helper()
	p, err := query.Prepare(text, params)
	require.NoError(t, err, text)
	return p
}

func ptr[T any](v T) *T { return &v }

func TestBuilder_Select(t *testing.T) {
	b := NewBuilder(func() time.Time { return testNow })
	tests := []struct {
		name   string
		text   string
		params []query.Value
		want   Call
	}{
		{
			name:   "FilteredPage",
			text:   "SELECT id, amount FROM transactions WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
			params: []query.Value{"u1", "2026-03-01", 10, 20},
			want: Call{Op: OpSelect, Table: "transactions", Query: tablestore.Query{
				Filters: []query.Condition{
					{Column: "user_id", Op: query.OpEq, Value: "u1"},
					{Column: "created_at", Op: query.OpGte, Value: "2026-03-01"},
				},
				Order:   &query.OrderBy{Column: "created_at", Descending: true},
				Limit:   ptr(int64(10)),
				Offset:  20,
				Columns: []string{"id", "amount"},
			}},
		},
		{
			name:   "NullOperandMakesNoCall",
			text:   "SELECT * FROM users WHERE id = $1",
			params: []query.Value{nil},
			want:   Call{Op: OpNone, Table: "users"},
		},
		{
			name: "AggregationFetchesInputsOnly",
			text: `SELECT category, COUNT(*) AS n, SUM(ABS(amount)) AS total FROM transactions
				WHERE user_id = $1 GROUP BY category LIMIT $2`,
			params: []query.Value{"u1", 5},
			want: Call{Op: OpSelect, Table: "transactions", Query: tablestore.Query{
				Filters: []query.Condition{{Column: "user_id", Op: query.OpEq, Value: "u1"}},
				Columns: []string{"category", "amount"},
			}},
		},
		{
			name:   "CountOnly",
			text:   "SELECT COUNT(*) AS n FROM budgets WHERE user_id = $1",
			params: []query.Value{"u1"},
			want: Call{Op: OpSelect, Table: "budgets", Query: tablestore.Query{
				Filters: []query.Condition{{Column: "user_id", Op: query.OpEq, Value: "u1"}},
				Columns: []string{"id"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prepare(t, tt.text, tt.params...)
			got, err := b.Select(p, p.Intent.(*query.SelectIntent))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuilder_Update(t *testing.T) {
	b := NewBuilder(func() time.Time { return testNow })
	tests := []struct {
		name   string
		text   string
		params []query.Value
		want   Call
	}{
		{
			name:   "Write",
			text:   "UPDATE savings SET ghost_mode = $1 WHERE user_id = $2",
			params: []query.Value{true, "u1"},
			want: Call{Op: OpUpdate, Table: "savings",
				Query:  tablestore.Query{Filters: []query.Condition{{Column: "user_id", Op: query.OpEq, Value: "u1"}}},
				Values: query.Row{"ghost_mode": true}},
		},
		{
			name:   "CoalesceNullWithReturningSelects",
			text:   "UPDATE users SET name = COALESCE($1, name) WHERE id = $2 RETURNING id, name",
			params: []query.Value{nil, "u1"},
			want: Call{Op: OpSelect, Table: "users",
				Query: tablestore.Query{Filters: []query.Condition{{Column: "id", Op: query.OpEq, Value: "u1"}}}},
		},
		{
			name:   "CoalesceNullWithoutReturningIsNoOp",
			text:   "UPDATE users SET name = COALESCE($1, name) WHERE id = $2",
			params: []query.Value{nil, "u1"},
			want:   Call{Op: OpNone, Table: "users"},
		},
		{
			name:   "PartialCoalesce",
			text:   "UPDATE users SET name = COALESCE($1, name), email = COALESCE($2, email) WHERE id = $3 RETURNING *",
			params: []query.Value{nil, "new@example.com", "u1"},
			want: Call{Op: OpUpdate, Table: "users",
				Query:     tablestore.Query{Filters: []query.Condition{{Column: "id", Op: query.OpEq, Value: "u1"}}},
				Values:    query.Row{"email": "new@example.com"},
				Returning: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prepare(t, tt.text, tt.params...)
			got := b.Update(p, p.Intent.(*query.UpdateIntent))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuilder_InsertAndDelete(t *testing.T) {
	b := NewBuilder(func() time.Time { return testNow })

	p := prepare(t, `INSERT INTO subscriptions (user_id, name, cost, last_used, suggest_cancel)
		VALUES ($1, 'Spotify', 9.99, NOW() - INTERVAL '1 day', false), ($1, 'Hulu', 12.99, NOW(), true) RETURNING *`, "u1")
	call, err := b.Insert(p, p.Intent.(*query.InsertIntent))
	require.NoError(t, err)
	assert.Equal(t, OpInsert, call.Op)
	assert.True(t, call.Returning)
	assert.Equal(t, []query.Row{
		{"user_id": "u1", "name": "Spotify", "cost": 9.99, "last_used": testNow.AddDate(0, 0, -1), "suggest_cancel": false},
		{"user_id": "u1", "name": "Hulu", "cost": 12.99, "last_used": testNow, "suggest_cancel": true},
	}, call.Rows)

	p = prepare(t, "INSERT INTO budgets (user_id, category, monthly_limit) VALUES ($1, 'A', 1), ($1, 'B', 2)", "u1")
	_, err = b.Insert(p, p.Intent.(*query.InsertIntent))
	assert.ErrorIs(t, err, apierror.ErrClauseParse)

	p = prepare(t, "DELETE FROM budgets WHERE id = $1 AND user_id = $2 RETURNING *", "b1", "u1")
	assert.Equal(t, Call{Op: OpDelete, Table: "budgets", Returning: true, Query: tablestore.Query{Filters: []query.Condition{
		{Column: "id", Op: query.OpEq, Value: "b1"},
		{Column: "user_id", Op: query.OpEq, Value: "u1"},
	}}}, b.Delete(p, p.Intent.(*query.DeleteIntent)))

	p = prepare(t, "DELETE FROM budgets WHERE id = $1", nil)
	assert.Equal(t, OpNone, b.Delete(p, p.Intent.(*query.DeleteIntent)).Op)
}

func TestBuilder_Conflict(t *testing.T) {
	b := NewBuilder(func() time.Time { return testNow })
	p := prepare(t, `INSERT INTO budgets (user_id, category, monthly_limit) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, category) DO UPDATE SET monthly_limit = EXCLUDED.monthly_limit, created_at = NOW()`, "u1", "Food", 350)
	ins := p.Intent.(*query.InsertIntent)
	proposed := p.InsertRows(ins, testNow)[0]

	lookup := b.ConflictLookup(ins, proposed)
	assert.Equal(t, OpSelect, lookup.Op)
	assert.Equal(t, []query.Condition{
		{Column: "user_id", Op: query.OpEq, Value: "u1"},
		{Column: "category", Op: query.OpEq, Value: "Food"},
	}, lookup.Query.Filters)

	update := b.ConflictUpdate(p, ins, lookup, query.Row{"monthly_limit": 200.0}, proposed)
	assert.Equal(t, OpUpdate, update.Op)
	assert.Equal(t, query.Row{"monthly_limit": int64(350), "created_at": testNow}, update.Values)

	proposed["category"] = nil
	assert.Equal(t, OpNone, b.ConflictLookup(ins, proposed).Op)
}

func TestBuilder_CheckUpsert(t *testing.T) {
	b := NewBuilder(func() time.Time { return testNow })
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"UniqueKey", "INSERT INTO users (email, password_hash) VALUES ($1, $1) ON CONFLICT (email) DO NOTHING", nil},
		{"UniqueKeyAnyOrder", "INSERT INTO budgets (user_id, category, monthly_limit) VALUES ($1, $1, 1) ON CONFLICT (category, user_id) DO NOTHING", nil},
		{"PrimaryKey", "INSERT INTO savings (user_id) VALUES ($1) ON CONFLICT (id) DO NOTHING", nil},
		{"NotUnique", "INSERT INTO transactions (user_id, amount) VALUES ($1, 1) ON CONFLICT (user_id) DO UPDATE SET amount = $1", apierror.ErrBackendCall},
		{"SeedShapeMultiRow", `INSERT INTO subscriptions (user_id, name, cost, last_used, suggest_cancel)
			VALUES ($1, 'A', 1, NOW(), false), ($1, 'B', 2, NOW(), false) ON CONFLICT (id) DO NOTHING`, nil},
		{"OtherMultiRow", "INSERT INTO budgets (user_id, category, monthly_limit) VALUES ($1, 'A', 1), ($1, 'B', 2) ON CONFLICT (id) DO NOTHING", apierror.ErrClauseParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prepare(t, tt.text, "u1")
			err := b.CheckUpsert(p, p.Intent.(*query.InsertIntent))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOp_String(t *testing.T) {
	for op, want := range map[Op]string{OpNone: "none", OpSelect: "select", OpInsert: "insert", OpUpdate: "update", OpDelete: "delete"} {
		assert.Equal(t, want, op.String())
	}
}
