package memstore

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/yeoleshweta/PocketSaver/pkg/aggregate"
	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/schema"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// entity is the per-table dispatch entry: which insert shapes a table accepts.
type entity struct {
	def *schema.Table
	// seed is the column list of the multi-row insert the table accepts, if any.
	seed []string
}

// Adapter executes statements against a Store. It parses with query.Prepare,
// so predicates are extracted exactly as the remote adapter extracts them.
type Adapter struct {
	store    *Store
	entities map[string]entity
	latency  time.Duration
	now      func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLatency adds an artificial delay to every call.
func WithLatency(d time.Duration) Option {
	return func(a *Adapter) {
		a.latency = d
	}
}

// WithClock overrides the statement clock used for NOW() and defaults.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
		a.store.now = now
	}
}

// NewAdapter creates an adapter over store. The dispatch table is built from
// the store's table declarations.
func NewAdapter(store *Store, opts ...Option) *Adapter {
	a := &Adapter{
		store:    store,
		entities: make(map[string]entity),
		now:      time.Now,
	}
	for name, t := range store.tables {
		a.entities[name] = entity{def: t.def, seed: schema.SeedShapes[name]}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs one statement. Every call yields to the scheduler before
// touching the store, so callers must not assume synchronous completion.
func (a *Adapter) Execute(ctx context.Context, text string, params ...query.Value) (query.RowSet, error) {
	if err := a.yield(ctx); err != nil {
		return nil, err
	}

	p, err := query.Prepare(text, params)
	if err != nil {
		return nil, err
	}
	ent, ok := a.entities[p.Intent.TableName()]
	if !ok {
		return nil, apierror.NewBackendCallError(p.Intent.TableName(), p.Intent.Kind().Operation(),
			fmt.Errorf("%w: %q", ErrUnknownTable, p.Intent.TableName()))
	}

	var out query.RowSet
	err = a.store.Atomically(func(tx *Tx) error {
		var err error
		switch it := p.Intent.(type) {
		case *query.InsertIntent:
			out, err = a.insert(tx, ent, p, it)
		case *query.SelectIntent:
			out, err = a.selectRows(tx, p, it)
		case *query.UpdateIntent:
			out, err = a.update(tx, p, it)
		case *query.DeleteIntent:
			out, err = a.delete(tx, p, it)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) yield(ctx context.Context) error {
	runtime.Gosched()
	if a.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(a.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Adapter) insert(tx *Tx, ent entity, p *query.Prepared, ins *query.InsertIntent) (query.RowSet, error) {
	if ins.MultiRow() && (ent.seed == nil || !slices.Equal(ent.seed, ins.Columns)) {
		return nil, apierror.NewClauseParseError("multi-row insert into %s is not supported for columns %v", ins.Table, ins.Columns).
			WithStatement(p.Statement.Text)
	}

	now := a.now()
	rows := p.InsertRows(ins, now)
	if ins.Conflict == nil {
		stored, err := tx.Insert(ins.Table, rows)
		if err != nil {
			return nil, err
		}
		return ins.Returning.Apply(stored), nil
	}

	if !ent.def.IsUniqueKey(ins.Conflict.Columns) {
		return nil, apierror.NewBackendCallError(ins.Table, "upsert", fmt.Errorf("%w: %v", ErrNoConstraint, ins.Conflict.Columns))
	}
	result := query.RowSet{}
	for _, proposed := range rows {
		written, err := a.upsertRow(tx, p, ins, proposed, now)
		if err != nil {
			return nil, err
		}
		result = append(result, written...)
	}
	return ins.Returning.Apply(result), nil
}

func (a *Adapter) upsertRow(tx *Tx, p *query.Prepared, ins *query.InsertIntent, proposed query.Row, now time.Time) (query.RowSet, error) {
	conds := make([]query.Condition, len(ins.Conflict.Columns))
	for i, col := range ins.Conflict.Columns {
		conds[i] = query.Condition{Column: col, Op: query.OpEq, Value: proposed[col]}
	}
	existing, err := tx.Select(ins.Table, Query{Conditions: conds})
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 || query.HasNullOperand(conds) {
		return tx.Insert(ins.Table, []query.Row{proposed})
	}
	if ins.Conflict.DoNothing {
		return query.RowSet{}, nil
	}

	values := p.Assignments(ins.Conflict.Set, existing[0], proposed, now)
	return tx.Update(ins.Table, Query{Conditions: conds}, values)
}

func (a *Adapter) selectRows(tx *Tx, p *query.Prepared, sel *query.SelectIntent) (query.RowSet, error) {
	limit, offset, err := p.LimitOffset(sel)
	if err != nil {
		return nil, err
	}
	def, err := tx.Definition(sel.Table)
	if err != nil {
		return nil, err
	}
	if err := checkProjection(def, sel); err != nil {
		return nil, err
	}

	q := Query{Conditions: p.Conditions(sel.Where)}
	if sel.Aggregation != nil {
		rows, err := tx.Select(sel.Table, q)
		if err != nil {
			return nil, err
		}
		grouped := aggregate.Reduce(rows, sel.Aggregation, sel.OrderBy)
		return query.Paginate(grouped, limit, offset), nil
	}

	q.Order, q.Limit, q.Offset = sel.OrderBy, limit, offset
	rows, err := tx.Select(sel.Table, q)
	if err != nil {
		return nil, err
	}
	return project(rows, sel), nil
}

func (a *Adapter) update(tx *Tx, p *query.Prepared, upd *query.UpdateIntent) (query.RowSet, error) {
	values := p.Assignments(upd.Set, nil, nil, a.now())
	rows, err := tx.Update(upd.Table, Query{Conditions: p.Conditions(upd.Where)}, values)
	if err != nil {
		return nil, err
	}
	return upd.Returning.Apply(rows), nil
}

func (a *Adapter) delete(tx *Tx, p *query.Prepared, del *query.DeleteIntent) (query.RowSet, error) {
	rows, err := tx.Delete(del.Table, Query{Conditions: p.Conditions(del.Where)})
	if err != nil {
		return nil, err
	}
	return del.Returning.Apply(rows), nil
}

func checkProjection(def *schema.Table, sel *query.SelectIntent) error {
	cols := make([]string, 0, len(sel.Columns))
	for _, c := range sel.Columns {
		cols = append(cols, c.Column)
	}
	if sel.Aggregation != nil {
		for _, s := range sel.Aggregation.Sums {
			cols = append(cols, s.Column)
		}
		if sel.Aggregation.GroupBy != "" {
			cols = append(cols, sel.Aggregation.GroupBy)
		}
	}
	for _, c := range cols {
		if !def.HasColumn(c) {
			return apierror.NewBackendCallError(def.Name, "select", fmt.Errorf("%w: %q", ErrUnknownColumn, c))
		}
	}
	return nil
}

func project(rows query.RowSet, sel *query.SelectIntent) query.RowSet {
	if sel.Star {
		return rows
	}
	out := make(query.RowSet, len(rows))
	for i, row := range rows {
		r := make(query.Row, len(sel.Columns))
		for _, c := range sel.Columns {
			r[c.OutputName()] = row[c.Column]
		}
		out[i] = r
	}
	return out
}
