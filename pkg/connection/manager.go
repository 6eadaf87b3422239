// Package connection wraps the database/sql handle of the native adapter.
package connection

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Supported database/sql driver names.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "pgx"
)

// Manager guards a *sql.DB.
//
// Reads run concurrently. Writes and transactions share one mutex, which keeps
// embedded DuckDB free of write-write conflicts between gateway calls.
type Manager struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewManager creates a manager for db.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Open opens and pings a database. For DuckDB an empty dsn is an in-memory database.
func Open(ctx context.Context, driver, dsn string) (*Manager, error) {
	switch driver {
	case DriverDuckDB, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return NewManager(db), nil
}

// Query runs a statement returning rows. Queries may run concurrently.
func (m *Manager) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return m.db.QueryContext(ctx, query, args...)
}

// QueryRow runs a statement expected to return at most one row.
func (m *Manager) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return m.db.QueryRowContext(ctx, query, args...)
}

// QueryWrite runs a writing statement that returns rows (INSERT ... RETURNING)
// under the write lock, reading every row before the lock is released.
func (m *Manager) QueryWrite(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scan(rows)
}

// Exec runs a write. Writes are serialized.
func (m *Manager) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.db.ExecContext(ctx, query, args...)
}

// ExecTx runs fn in a transaction under the write lock. The transaction is
// rolled back when fn returns an error.
func (m *Manager) ExecTx(ctx context.Context, fn func(*sql.Tx) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// DB returns the underlying handle.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close closes the database.
func (m *Manager) Close() error {
	return m.db.Close()
}
