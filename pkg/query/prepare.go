package query

import (
	"time"

	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

// Prepared is a parsed statement bound to its parameters.
type Prepared struct {
	Statement Statement
	Intent    Intent
}

// Prepare parses text and checks every parameter reference against params.
// An out-of-range $n is a ClauseParseError.
func Prepare(text string, params []Value) (*Prepared, error) {
	intent, err := Parse(text)
	if err != nil {
		return nil, err
	}

	normalized := make([]Value, len(params))
	for i, v := range params {
		normalized[i] = NormalizeValue(v)
	}

	p := &Prepared{Statement: Statement{Text: text, Params: normalized}, Intent: intent}
	for _, ref := range paramRefs(intent) {
		if ref.Index < 1 || ref.Index > len(params) {
			return nil, apierror.NewClauseParseError("parameter $%d out of range: %d parameters bound", ref.Index, len(params)).WithStatement(text)
		}
	}
	if sel, ok := intent.(*SelectIntent); ok {
		if _, _, err := p.LimitOffset(sel); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func paramRefs(intent Intent) []ParamRef {
	var refs []ParamRef
	addExpr := func(e Expr) {
		switch v := e.(type) {
		case ParamRef:
			refs = append(refs, v)
		case Coalesce:
			refs = append(refs, v.Param)
		}
	}
	addPreds := func(preds []Predicate) {
		for _, pr := range preds {
			refs = append(refs, pr.Param)
		}
	}

	switch it := intent.(type) {
	case *InsertIntent:
		for _, row := range it.Rows {
			for _, e := range row {
				addExpr(e)
			}
		}
		if it.Conflict != nil {
			for _, a := range it.Conflict.Set {
				addExpr(a.Value)
			}
		}
	case *SelectIntent:
		addPreds(it.Where)
		if it.Limit != nil {
			refs = append(refs, *it.Limit)
		}
		if it.Offset != nil {
			refs = append(refs, *it.Offset)
		}
	case *UpdateIntent:
		for _, a := range it.Set {
			addExpr(a.Value)
		}
		addPreds(it.Where)
	case *DeleteIntent:
		addPreds(it.Where)
	}
	return refs
}

// Param returns the value bound to ref. Prepare guarantees the index is in range.
func (p *Prepared) Param(ref ParamRef) Value {
	return p.Statement.Params[ref.Index-1]
}

// Conditions binds predicates to their parameter values.
func (p *Prepared) Conditions(preds []Predicate) []Condition {
	conds := make([]Condition, len(preds))
	for i, pr := range preds {
		conds[i] = Condition{Column: pr.Column, Op: pr.Op, Value: p.Param(pr.Param)}
	}
	return conds
}

// LimitOffset resolves LIMIT/OFFSET parameters. limit is nil when absent.
func (p *Prepared) LimitOffset(sel *SelectIntent) (limit *int64, offset int64, err error) {
	if sel.Limit != nil {
		n, ok := ToInt(p.Param(*sel.Limit))
		if !ok || n < 0 {
			return nil, 0, apierror.NewClauseParseError("LIMIT $%d must bind a non-negative integer", sel.Limit.Index).WithStatement(p.Statement.Text)
		}
		limit = &n
	}
	if sel.Offset != nil {
		n, ok := ToInt(p.Param(*sel.Offset))
		if !ok || n < 0 {
			return nil, 0, apierror.NewClauseParseError("OFFSET $%d must bind a non-negative integer", sel.Offset.Index).WithStatement(p.Statement.Text)
		}
		offset = n
	}
	return limit, offset, nil
}

// Eval evaluates a value expression. current supplies ColumnRef values and
// excluded supplies EXCLUDED.column values. apply is false when the expression
// resolves to "keep the current value" (COALESCE with a null parameter).
func (p *Prepared) Eval(e Expr, current, excluded Row, now time.Time) (v Value, apply bool) {
	switch x := e.(type) {
	case ParamRef:
		return p.Param(x), true
	case Literal:
		return x.Value, true
	case Now:
		return now.Add(-x.Minus), true
	case ColumnRef:
		return current[x.Name], true
	case ExcludedRef:
		return excluded[x.Column], true
	case Coalesce:
		val := p.Param(x.Param)
		if IsNull(val) {
			return current[x.Column], false
		}
		return val, true
	}
	return nil, false
}

// InsertRows evaluates every VALUES tuple of ins into a row.
func (p *Prepared) InsertRows(ins *InsertIntent, now time.Time) []Row {
	rows := make([]Row, len(ins.Rows))
	for i, tuple := range ins.Rows {
		row := make(Row, len(ins.Columns))
		for j, col := range ins.Columns {
			row[col], _ = p.Eval(tuple[j], nil, nil, now)
		}
		rows[i] = row
	}
	return rows
}

// Assignments evaluates SET entries into the column values to write.
// COALESCE entries whose parameter is null are left out.
func (p *Prepared) Assignments(set []Assignment, current, excluded Row, now time.Time) Row {
	out := make(Row, len(set))
	for _, a := range set {
		if v, apply := p.Eval(a.Value, current, excluded, now); apply {
			out[a.Column] = v
		}
	}
	return out
}
