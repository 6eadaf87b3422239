// Package remote executes gateway statements against the hosted table store.
// Each statement is parsed once and translated into one or more row-oriented
// backend calls.
package remote

import (
	"fmt"
	"time"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
	"github.com/yeoleshweta/PocketSaver/pkg/schema"
	"github.com/yeoleshweta/PocketSaver/pkg/tablestore"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// Op is a backend call kind.
type Op int

// Backend call kinds. OpNone means the result is known to be empty without a call.
const (
	OpNone Op = iota
	OpSelect
	OpInsert
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpSelect:
		return "select"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "none"
	}
}

// Call is one backend request derived from a statement.
type Call struct {
	Op        Op
	Table     string
	Query     tablestore.Query
	Rows      []query.Row
	Values    query.Row
	Returning bool
}

// Builder translates prepared statements into backend calls.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a builder using now for NOW() expressions.
func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// Insert builds the call for an INSERT without ON CONFLICT. Multi-row inserts
// are accepted only for tables with a registered seed shape.
func (b *Builder) Insert(p *query.Prepared, ins *query.InsertIntent) (Call, error) {
	if ins.MultiRow() && !schema.MatchesSeedShape(ins.Table, ins.Columns) {
		return Call{}, apierror.NewClauseParseError("multi-row insert into %s is not supported for columns %v", ins.Table, ins.Columns).
			WithStatement(p.Statement.Text)
	}
	return Call{
		Op:        OpInsert,
		Table:     ins.Table,
		Rows:      p.InsertRows(ins, b.now()),
		Returning: ins.Returning != nil,
	}, nil
}

// CheckUpsert validates an INSERT ... ON CONFLICT before any call is made:
// multi-row upserts need a registered seed shape, and the conflict columns
// must form a declared unique key of the table.
func (b *Builder) CheckUpsert(p *query.Prepared, ins *query.InsertIntent) error {
	if ins.MultiRow() && !schema.MatchesSeedShape(ins.Table, ins.Columns) {
		return apierror.NewClauseParseError("multi-row insert into %s is not supported for columns %v", ins.Table, ins.Columns).
			WithStatement(p.Statement.Text)
	}
	def, ok := schema.Lookup(ins.Table)
	if ok && !def.IsUniqueKey(ins.Conflict.Columns) {
		return apierror.NewBackendCallError(ins.Table, "upsert", fmt.Errorf("%w: %v", schema.ErrNoConstraint, ins.Conflict.Columns))
	}
	return nil
}

// ConflictLookup builds the select that finds the row an upsert of proposed
// would collide with. It is OpNone when a key value is NULL, since NULLs never collide.
func (b *Builder) ConflictLookup(ins *query.InsertIntent, proposed query.Row) Call {
	conds := make([]query.Condition, len(ins.Conflict.Columns))
	for i, col := range ins.Conflict.Columns {
		conds[i] = query.Condition{Column: col, Op: query.OpEq, Value: proposed[col]}
	}
	if query.HasNullOperand(conds) {
		return Call{Op: OpNone, Table: ins.Table}
	}
	return Call{Op: OpSelect, Table: ins.Table, Query: tablestore.Query{Filters: conds}}
}

// ConflictUpdate builds the DO UPDATE call for an existing row, with
// EXCLUDED.column resolved from proposed.
func (b *Builder) ConflictUpdate(p *query.Prepared, ins *query.InsertIntent, lookup Call, existing, proposed query.Row) Call {
	return Call{
		Op:        OpUpdate,
		Table:     ins.Table,
		Query:     lookup.Query,
		Values:    p.Assignments(ins.Conflict.Set, existing, proposed, b.now()),
		Returning: ins.Returning != nil,
	}
}

// Select builds the call for a non-aggregated SELECT, or the unaggregated
// fetch of an aggregated one.
func (b *Builder) Select(p *query.Prepared, sel *query.SelectIntent) (Call, error) {
	conds := p.Conditions(sel.Where)
	if query.HasNullOperand(conds) {
		return Call{Op: OpNone, Table: sel.Table}, nil
	}
	call := Call{Op: OpSelect, Table: sel.Table, Query: tablestore.Query{Filters: conds}}

	if sel.Aggregation != nil {
		call.Query.Columns = aggregateInputs(sel.Aggregation)
		return call, nil
	}

	limit, offset, err := p.LimitOffset(sel)
	if err != nil {
		return Call{}, err
	}
	call.Query.Order = sel.OrderBy
	call.Query.Limit, call.Query.Offset = limit, offset
	if !sel.Star {
		for _, c := range sel.Columns {
			call.Query.Columns = append(call.Query.Columns, c.Column)
		}
	}
	return call, nil
}

func aggregateInputs(agg *query.Aggregation) []string {
	var cols []string
	seen := map[string]bool{}
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	add(agg.GroupBy)
	for _, s := range agg.Sums {
		add(s.Column)
	}
	if len(cols) == 0 {
		// COUNT(*) alone still needs one column per row
		add("id")
	}
	return cols
}

// Update builds the call for an UPDATE. COALESCE assignments with a NULL
// parameter are dropped; when nothing is left to write the statement is a
// select of the target rows (with RETURNING) or a no-op.
func (b *Builder) Update(p *query.Prepared, upd *query.UpdateIntent) Call {
	conds := p.Conditions(upd.Where)
	if query.HasNullOperand(conds) {
		return Call{Op: OpNone, Table: upd.Table}
	}
	values := p.Assignments(upd.Set, nil, nil, b.now())
	q := tablestore.Query{Filters: conds}
	switch {
	case len(values) > 0:
		return Call{Op: OpUpdate, Table: upd.Table, Query: q, Values: values, Returning: upd.Returning != nil}
	case upd.Returning != nil:
		return Call{Op: OpSelect, Table: upd.Table, Query: q}
	default:
		return Call{Op: OpNone, Table: upd.Table}
	}
}

// Delete builds the call for a DELETE.
func (b *Builder) Delete(p *query.Prepared, del *query.DeleteIntent) Call {
	conds := p.Conditions(del.Where)
	if query.HasNullOperand(conds) {
		return Call{Op: OpNone, Table: del.Table}
	}
	return Call{Op: OpDelete, Table: del.Table, Query: tablestore.Query{Filters: conds}, Returning: del.Returning != nil}
}
