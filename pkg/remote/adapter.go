package remote

import (
	"context"
	"errors"

	"github.com/yeoleshweta/PocketSaver/pkg/aggregate"
	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/schema"
	"github.com/yeoleshweta/PocketSaver/pkg/tablestore"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// Backend is the row-oriented API of the table store. *tablestore.Client implements it.
type Backend interface {
	Select(ctx context.Context, table string, q tablestore.Query) (query.RowSet, error)
	Insert(ctx context.Context, table string, rows []query.Row, returning bool) (query.RowSet, error)
	Update(ctx context.Context, table string, q tablestore.Query, values query.Row, returning bool) (query.RowSet, error)
	Delete(ctx context.Context, table string, q tablestore.Query, returning bool) (query.RowSet, error)
}

// Adapter executes statements against a Backend.
//
// Upserts (lookup then insert or update), aggregations (fetch then reduce) and
// no-op updates (select instead of write) take more than one backend call and
// are not atomic: concurrent callers touching the same rows may interleave.
// Calls already sent are not undone when ctx is canceled.
type Adapter struct {
	backend Backend
	builder *Builder
}

// NewAdapter creates an adapter over backend.
func NewAdapter(backend Backend, builder *Builder) *Adapter {
	if builder == nil {
		builder = NewBuilder(nil)
	}
	return &Adapter{backend: backend, builder: builder}
}

// Execute runs one statement.
func (a *Adapter) Execute(ctx context.Context, text string, params ...query.Value) (query.RowSet, error) {
	p, err := query.Prepare(text, params)
	if err != nil {
		return nil, err
	}

	switch it := p.Intent.(type) {
	case *query.InsertIntent:
		if it.Conflict != nil {
			return a.upsert(ctx, p, it)
		}
		call, err := a.builder.Insert(p, it)
		if err != nil {
			return nil, err
		}
		rows, err := a.run(ctx, call)
		if err != nil {
			return nil, err
		}
		return it.Returning.Apply(rows), nil

	case *query.SelectIntent:
		return a.selectRows(ctx, p, it)

	case *query.UpdateIntent:
		rows, err := a.run(ctx, a.builder.Update(p, it))
		if err != nil {
			return nil, err
		}
		return it.Returning.Apply(rows), nil

	case *query.DeleteIntent:
		rows, err := a.run(ctx, a.builder.Delete(p, it))
		if err != nil {
			return nil, err
		}
		return it.Returning.Apply(rows), nil
	}
	return nil, apierror.NewUnrecognizedStatementError(text)
}

func (a *Adapter) selectRows(ctx context.Context, p *query.Prepared, sel *query.SelectIntent) (query.RowSet, error) {
	call, err := a.builder.Select(p, sel)
	if err != nil {
		return nil, err
	}
	if sel.Aggregation != nil {
		// LIMIT/OFFSET apply to groups, so they are checked here and not sent
		limit, offset, err := p.LimitOffset(sel)
		if err != nil {
			return nil, err
		}
		rows, err := a.run(ctx, call)
		if err != nil {
			return nil, err
		}
		return query.Paginate(aggregate.Reduce(rows, sel.Aggregation, sel.OrderBy), limit, offset), nil
	}

	rows, err := a.run(ctx, call)
	if err != nil {
		return nil, err
	}
	if sel.Star {
		return rows, nil
	}
	out := make(query.RowSet, len(rows))
	for i, row := range rows {
		r := make(query.Row, len(sel.Columns))
		for _, c := range sel.Columns {
			r[c.OutputName()] = row[c.Column]
		}
		out[i] = r
	}
	return out, nil
}

func (a *Adapter) upsert(ctx context.Context, p *query.Prepared, ins *query.InsertIntent) (query.RowSet, error) {
	if err := a.builder.CheckUpsert(p, ins); err != nil {
		return nil, err
	}

	// each tuple is looked up and written on its own
	result := query.RowSet{}
	for _, proposed := range p.InsertRows(ins, a.builder.now()) {
		rows, err := a.upsertRow(ctx, p, ins, proposed)
		if err != nil {
			return nil, relabel(err, "upsert")
		}
		result = append(result, rows...)
	}
	return ins.Returning.Apply(result), nil
}

func (a *Adapter) upsertRow(ctx context.Context, p *query.Prepared, ins *query.InsertIntent, proposed query.Row) (query.RowSet, error) {
	lookup := a.builder.ConflictLookup(ins, proposed)
	existing, err := a.run(ctx, lookup)
	if err != nil {
		return nil, err
	}
	switch {
	case len(existing) == 0:
		return a.run(ctx, Call{Op: OpInsert, Table: ins.Table, Rows: []query.Row{proposed}, Returning: ins.Returning != nil})
	case ins.Conflict.DoNothing:
		return query.RowSet{}, nil
	default:
		return a.run(ctx, a.builder.ConflictUpdate(p, ins, lookup, existing[0], proposed))
	}
}

// run performs one call and normalizes the returned rows to the table's
// declared column types.
func (a *Adapter) run(ctx context.Context, call Call) (query.RowSet, error) {
	var (
		rows query.RowSet
		err  error
	)
	switch call.Op {
	case OpNone:
		return query.RowSet{}, nil
	case OpSelect:
		rows, err = a.backend.Select(ctx, call.Table, call.Query)
	case OpInsert:
		rows, err = a.backend.Insert(ctx, call.Table, call.Rows, call.Returning)
	case OpUpdate:
		rows, err = a.backend.Update(ctx, call.Table, call.Query, call.Values, call.Returning)
	case OpDelete:
		rows, err = a.backend.Delete(ctx, call.Table, call.Query, call.Returning)
	}
	if err != nil {
		return nil, mapError(call, err)
	}
	if rows == nil {
		rows = query.RowSet{}
	}
	return normalize(call.Table, rows), nil
}

func mapError(call Call, err error) error {
	var apiErr *tablestore.APIError
	if errors.As(err, &apiErr) && apiErr.IsUniqueViolation() {
		verr := apierror.NewUniqueViolationError(call.Table, nil, err)
		verr.Operation = call.Op.String()
		return verr
	}
	return apierror.NewBackendCallError(call.Table, call.Op.String(), err)
}

func relabel(err error, op string) error {
	var gwErr *apierror.Error
	if errors.As(err, &gwErr) && gwErr.Kind == apierror.KindBackendCall {
		gwErr.Operation = op
	}
	return err
}

// normalize coerces declared columns so rows compare equal to those of the
// other adapters (timestamps as time.Time, numerics as float64).
func normalize(table string, rows query.RowSet) query.RowSet {
	def, ok := schema.Lookup(table)
	if !ok {
		return rows
	}
	for _, row := range rows {
		for name, v := range row {
			col, ok := def.Column(name)
			if !ok {
				continue
			}
			if cv, err := col.Coerce(v); err == nil {
				row[name] = cv
			}
		}
	}
	return rows
}

var _ Backend = (*tablestore.Client)(nil)
