// Package native executes gateway statements unchanged on a relational
// database through database/sql.
package native

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yeoleshweta/PocketSaver/pkg/connection"
	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/schema"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// Adapter passes statement text and parameters to the database. The database
// accepts the full dialect, so nothing is parsed beyond deciding whether the
// statement returns rows.
type Adapter struct {
	conn    *connection.Manager
	dialect schema.Dialect
}

// NewAdapter creates an adapter over conn. dialect selects the DDL used by Bootstrap.
func NewAdapter(conn *connection.Manager, dialect schema.Dialect) *Adapter {
	return &Adapter{conn: conn, dialect: dialect}
}

// DialectFor returns the DDL dialect of a connection driver name.
func DialectFor(driver string) schema.Dialect {
	if driver == connection.DriverPostgres {
		return schema.DialectPostgres
	}
	return schema.DialectDuckDB
}

// Execute runs one statement. SELECTs and writes with RETURNING yield their
// rows; other statements yield an empty RowSet.
func (a *Adapter) Execute(ctx context.Context, text string, params ...query.Value) (query.RowSet, error) {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = query.NormalizeValue(p)
	}

	var (
		rows query.RowSet
		err  error
	)
	switch {
	case query.IsQuery(text):
		rows, err = a.query(ctx, text, args)
	case query.ReturnsRows(text):
		err = a.conn.QueryWrite(ctx, text, args, func(r *sql.Rows) error {
			var scanErr error
			rows, scanErr = scanRows(r)
			return scanErr
		})
	default:
		_, err = a.conn.Exec(ctx, text, args...)
		rows = query.RowSet{}
	}
	if err != nil {
		return nil, mapError(text, err)
	}
	return rows, nil
}

func (a *Adapter) query(ctx context.Context, text string, args []any) (query.RowSet, error) {
	r, err := a.conn.Query(ctx, text, args...)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return scanRows(r)
}

// Bootstrap creates the entity tables that do not exist yet.
func (a *Adapter) Bootstrap(ctx context.Context) error {
	err := a.conn.ExecTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema.CreateStatements(a.dialect) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return apierror.NewNativeDriverError(err)
	}
	return nil
}

// Seed runs fn in one transaction. It is meant for privileged bulk loading
// and is not part of the statement contract.
func (a *Adapter) Seed(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := a.conn.ExecTx(ctx, fn); err != nil {
		return mapError("", err)
	}
	return nil
}

// Close closes the database.
func (a *Adapter) Close() error {
	return a.conn.Close()
}

func scanRows(r *sql.Rows) (query.RowSet, error) {
	cols, err := r.Columns()
	if err != nil {
		return nil, err
	}

	out := query.RowSet{}
	for r.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(query.Row, len(cols))
		for i, col := range cols {
			row[col] = query.NormalizeValue(values[i])
		}
		out = append(out, row)
	}
	return out, r.Err()
}

// mapError classifies a driver error. Duplicate keys become
// UniqueConstraintViolation; everything else is a NativeDriverError.
func mapError(text string, err error) error {
	if !isUniqueViolation(err) {
		return apierror.NewNativeDriverError(err).WithStatement(text)
	}

	var (
		table string
		op    = "insert"
	)
	if res, cerr := query.Classify(text); cerr == nil {
		table = res.Table
		op = res.Kind.Operation()
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.TableName != "" {
		table = pgErr.TableName
	}
	verr := apierror.NewUniqueViolationError(table, nil, err)
	verr.Operation = op
	return verr.WithStatement(text)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == apierror.SQLStateUniqueViolation
	}
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		return duckErr.Type == duckdb.ErrorTypeConstraint && strings.Contains(strings.ToLower(duckErr.Msg), "duplicate key")
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}
