package gateway_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yeoleshweta/PocketSaver/pkg/config"
	"github.com/yeoleshweta/PocketSaver/pkg/gateway"
	"github.com/yeoleshweta/PocketSaver/pkg/memstore"
	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/schema"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
	"github.com/yeoleshweta/PocketSaver/server/handlers"
)

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

// newEmulator serves the table store API over a fresh store.
func newEmulator(t *testing.T, apiKey string) string {
	t.Helper()
	r := chi.NewRouter()
	handlers.NewTableStoreHandler(memstore.NewStore(schema.Tables()), apiKey, quietLogger()).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL
}

// newGateways returns one gateway per adapter.
func newGateways(t *testing.T) map[string]*gateway.Gateway {
	t.Helper()

	memory := config.Default()

	native := config.Default()
	native.Adapter = config.AdapterNative

	remote := config.Default()
	remote.Adapter = config.AdapterRemote
	remote.Remote.URL = newEmulator(t, "anon-key")
	remote.Remote.APIKey = "anon-key"

	out := map[string]*gateway.Gateway{}
	for _, cfg := range []config.Config{memory, native, remote} {
		gw, err := gateway.New(context.Background(), cfg, quietLogger())
		require.NoError(t, err, cfg.Adapter)
		t.Cleanup(func() { assert.NoError(t, gw.Close()) })
		assert.Equal(t, cfg.Adapter, gw.Adapter())
		out[cfg.Adapter] = gw
	}
	return out
}

func TestNew_UnknownAdapter(t *testing.T) {
	cfg := config.Default()
	cfg.Adapter = "mongo"
	_, err := gateway.New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestNew_RemoteRequiresValidURL(t *testing.T) {
	cfg := config.Default()
	cfg.Adapter = config.AdapterRemote
	cfg.Remote.URL = "ftp://store"
	_, err := gateway.New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

// TestAdapters_Substitutable runs the same statements on every adapter.
func TestAdapters_Substitutable(t *testing.T) {
	for name, gw := range newGateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := func(text string, params ...query.Value) query.RowSet {
				t.Helper()
				rows, err := gw.Execute(ctx, text, params...)
				require.NoError(t, err, text)
				return rows
			}

			created := run("INSERT INTO users(name, email, password_hash) VALUES($1, $2, $3) RETURNING id", "Ann", "ann@example.com", "h")
			require.Len(t, created, 1)
			userID := created[0]["id"]

			_, err := gw.Execute(ctx, "INSERT INTO users(name, email, password_hash) VALUES($1, $2, $3) RETURNING id", "Bob", "ann@example.com", "h")
			assert.ErrorIs(t, err, apierror.ErrUniqueViolation)

			run("UPDATE users SET name = COALESCE($1, name) WHERE id = $2", nil, userID)
			assert.Equal(t, query.RowSet{{"name": "Ann"}}, run("SELECT name FROM users WHERE id = $1", userID))

			run("INSERT INTO savings (user_id) VALUES ($1)", userID)
			savings := run("SELECT current, goal, weekly_contribution, ghost_mode FROM savings WHERE user_id = $1", userID)
			assert.Equal(t, query.RowSet{{"current": 0.0, "goal": 10000.0, "weekly_contribution": 50.0, "ghost_mode": false}}, savings)

			for _, tx := range []struct {
				cat          string
				amount, diff float64
			}{{"Food", 10, 0.5}, {"Food", 5, 0.25}, {"Gas", 20, 0}} {
				run("INSERT INTO transactions (user_id, amount, rounded_diff, category) VALUES ($1, $2, $3, $4)",
					userID, tx.amount, tx.diff, tx.cat)
			}
			summary := run(`SELECT category, COUNT(*) as transaction_count, SUM(ABS(amount)) as total_spent,
				SUM(rounded_diff) as total_round_up FROM transactions WHERE user_id = $1
				GROUP BY category ORDER BY total_spent DESC`, userID)
			assert.Equal(t, query.RowSet{
				{"category": "Gas", "transaction_count": int64(1), "total_spent": 20.0, "total_round_up": 0.0},
				{"category": "Food", "transaction_count": int64(2), "total_spent": 15.0, "total_round_up": 0.75},
			}, summary)

			page := run("SELECT amount FROM transactions WHERE user_id = $1 ORDER BY amount ASC LIMIT $2 OFFSET $3", userID, 2, 1)
			assert.Equal(t, query.RowSet{{"amount": 10.0}, {"amount": 20.0}}, page)

			const upsert = `INSERT INTO budgets (user_id, category, monthly_limit) VALUES ($1, $2, $3)
				ON CONFLICT (user_id, category) DO UPDATE SET monthly_limit = EXCLUDED.monthly_limit RETURNING *`
			run(upsert, userID, "Food", 200.0)
			run(upsert, userID, "Food", 350.0)
			assert.Equal(t, query.RowSet{{"monthly_limit": 350.0}},
				run("SELECT monthly_limit FROM budgets WHERE user_id = $1", userID))

			assert.Empty(t, run("DELETE FROM budgets WHERE id = $1 AND user_id = $2 RETURNING *", "missing", userID))

			// a conflict target that is not a unique key is rejected before any write
			_, err = gw.Execute(ctx, "INSERT INTO transactions (user_id, amount) VALUES ($1, $2) ON CONFLICT (user_id) DO UPDATE SET amount = $2 RETURNING amount",
				userID, 9.0)
			require.Error(t, err)
			if name != config.AdapterNative {
				assert.ErrorIs(t, err, apierror.ErrBackendCall)
			}
			assert.Len(t, run("SELECT id FROM transactions WHERE user_id = $1", userID), 3)

			// multi-row upsert of the seed shape
			run(`INSERT INTO subscriptions (user_id, name, cost, last_used, suggest_cancel)
				VALUES ($1, 'A', 1, NOW(), false), ($1, 'B', 2, NOW(), false) ON CONFLICT (id) DO NOTHING`, userID)
			assert.Equal(t, query.RowSet{{"name": "A"}, {"name": "B"}},
				run("SELECT name FROM subscriptions WHERE user_id = $1 ORDER BY name", userID))

			// uncategorized rows form their own NULL group
			run("INSERT INTO transactions (user_id, amount) VALUES ($1, $2)", userID, 1.0)
			summary = run(`SELECT category, COUNT(*) as transaction_count, SUM(ABS(amount)) as total_spent
				FROM transactions WHERE user_id = $1 GROUP BY category ORDER BY total_spent DESC`, userID)
			assert.Equal(t, query.RowSet{
				{"category": "Gas", "transaction_count": int64(1), "total_spent": 20.0},
				{"category": "Food", "transaction_count": int64(2), "total_spent": 15.0},
				{"category": nil, "transaction_count": int64(1), "total_spent": 1.0},
			}, summary)
		})
	}
}

func TestSeedDemo(t *testing.T) {
	for name, gw := range newGateways(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := gateway.SeedDemo(ctx, gw, gateway.DemoEmail, gateway.DemoPassword)
			require.NoError(t, err)
			second, err := gateway.SeedDemo(ctx, gw, gateway.DemoEmail, "changed")
			require.NoError(t, err)
			assert.Equal(t, first, second)

			subs, err := gw.Execute(ctx, "SELECT name FROM subscriptions WHERE user_id = $1", first)
			require.NoError(t, err)
			assert.Len(t, subs, 4)

			users, err := gw.Execute(ctx, "SELECT password_hash FROM users WHERE email = $1", gateway.DemoEmail)
			require.NoError(t, err)
			require.Len(t, users, 1)
			hash, _ := users[0]["password_hash"].(string)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("changed")))
		})
	}
}

type stubExecutor struct {
	rows query.RowSet
	err  error
}

func (s stubExecutor) Execute(context.Context, string, ...query.Value) (query.RowSet, error) {
	return s.rows, s.err
}

func TestWithLogging(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel logrus.Level
		wantText  bool
	}{
		{"Success", nil, logrus.DebugLevel, false},
		{"ParseError", apierror.NewClauseParseError("OR is not supported"), logrus.WarnLevel, true},
		{"UniqueViolation", apierror.NewUniqueViolationError("users", nil, nil), logrus.DebugLevel, false},
		{"Canceled", context.Canceled, logrus.InfoLevel, false},
		{"BackendError", apierror.NewBackendCallError("users", "select", errors.New("connection refused")), logrus.ErrorLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			logger.SetLevel(logrus.DebugLevel)
			exec := gateway.WithLogging(stubExecutor{rows: query.RowSet{{"id": "a"}}, err: tt.err}, logrus.NewEntry(logger))

			_, err := exec.Execute(context.Background(), "SELECT * FROM users WHERE id = $1 OR id = $2", "a", "b")
			assert.Equal(t, tt.err, err)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.wantLevel, entry.Level)
			_, hasText := entry.Data["statement"]
			assert.Equal(t, tt.wantText, hasText)
		})
	}
}
