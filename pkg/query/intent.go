package query

import (
	"time"
)

// Kind is the statement kind derived from the leading keyword.
type Kind int

// Statement kinds.
const (
	KindUnknown Kind = iota
	KindInsert
	KindSelect
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "INSERT"
	case KindSelect:
		return "SELECT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Operation returns the lower-case verb used to label backend calls.
func (k Kind) Operation() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "select"
	}
}

// Operator is a WHERE comparison operator.
type Operator string

// Supported operators.
const (
	OpEq  Operator = "="
	OpGte Operator = ">="
	OpLte Operator = "<="
	OpGt  Operator = ">"
	OpLt  Operator = "<"
)

// Holds reports whether cmp (the result of Compare(column, value)) satisfies the operator.
func (o Operator) Holds(cmp int) bool {
	switch o {
	case OpEq:
		return cmp == 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpLt:
		return cmp < 0
	default:
		return false
	}
}

// Intent is the parsed form of one statement. Implementations are
// *InsertIntent, *SelectIntent, *UpdateIntent and *DeleteIntent.
type Intent interface {
	Kind() Kind
	TableName() string
	intent()
}

// Expr is a value expression allowed by the dialect.
type Expr interface {
	expr()
}

// ParamRef references bound parameter $Index (1-based).
type ParamRef struct {
	Index int
}

// Literal is a constant in the statement text.
type Literal struct {
	Value Value
}

// Now is NOW() optionally shifted back by an INTERVAL.
type Now struct {
	Minus time.Duration
}

// ColumnRef refers to the current value of a column.
type ColumnRef struct {
	Name string
}

// ExcludedRef is EXCLUDED.column inside ON CONFLICT DO UPDATE.
type ExcludedRef struct {
	Column string
}

// Coalesce is COALESCE($n, column): the parameter when non-null, otherwise the column.
type Coalesce struct {
	Param  ParamRef
	Column string
}

func (ParamRef) expr()    {}
func (Literal) expr()     {}
func (Now) expr()         {}
func (ColumnRef) expr()   {}
func (ExcludedRef) expr() {}
func (Coalesce) expr()    {}

// Predicate is one WHERE comparison; predicates are conjunctive.
type Predicate struct {
	Column string
	Op     Operator
	Param  ParamRef
}

// Assignment is one SET entry.
type Assignment struct {
	Column string
	Value  Expr
}

// Conditional reports whether the assignment is COALESCE-wrapped.
func (a Assignment) Conditional() bool {
	_, ok := a.Value.(Coalesce)
	return ok
}

// OrderBy is a single-column sort.
type OrderBy struct {
	Column     string
	Descending bool
}

// ConflictClause is ON CONFLICT (columns) DO UPDATE SET ... | DO NOTHING.
type ConflictClause struct {
	Columns   []string
	DoNothing bool
	Set       []Assignment
}

// Returning is the RETURNING clause. A nil *Returning means absent.
type Returning struct {
	Star    bool
	Columns []string
}

// Apply projects rows per the RETURNING list.
func (r *Returning) Apply(rows RowSet) RowSet {
	if r == nil {
		return RowSet{}
	}
	if r.Star {
		return rows
	}
	out := make(RowSet, len(rows))
	for i, row := range rows {
		out[i] = row.Project(r.Columns)
	}
	return out
}

// InsertIntent is INSERT INTO table (columns) VALUES (...)[, (...)].
type InsertIntent struct {
	Table     string
	Columns   []string
	Rows      [][]Expr
	Conflict  *ConflictClause
	Returning *Returning
}

// MultiRow reports whether the statement carries more than one VALUES tuple.
func (i *InsertIntent) MultiRow() bool {
	return len(i.Rows) > 1
}

// SelectItem is one projected column or aggregate.
type SelectItem struct {
	Column string
	Alias  string
}

// OutputName returns the alias or the column name.
func (s SelectItem) OutputName() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Column
}

// CountItem is COUNT(*) in a projection.
type CountItem struct {
	Alias string
}

// SumItem is SUM(col) or SUM(ABS(col)) in a projection.
type SumItem struct {
	Column string
	Abs    bool
	Alias  string
}

// Aggregation is the supported GROUP BY / COUNT / SUM shape.
type Aggregation struct {
	GroupBy string
	// Columns are the plain projected columns; only the group column is allowed.
	Columns []SelectItem
	Count   *CountItem
	Sums    []SumItem
	// Order lists output names in projection order.
	Order []string
}

// SelectIntent is SELECT ... FROM table [WHERE] [GROUP BY] [ORDER BY] [LIMIT] [OFFSET].
type SelectIntent struct {
	Table       string
	Star        bool
	Columns     []SelectItem
	Where       []Predicate
	Aggregation *Aggregation
	OrderBy     *OrderBy
	Limit       *ParamRef
	Offset      *ParamRef
}

// UpdateIntent is UPDATE table SET ... WHERE ... [RETURNING].
type UpdateIntent struct {
	Table     string
	Set       []Assignment
	Where     []Predicate
	Returning *Returning
}

// DeleteIntent is DELETE FROM table WHERE ... [RETURNING].
type DeleteIntent struct {
	Table     string
	Where     []Predicate
	Returning *Returning
}

func (*InsertIntent) Kind() Kind { return KindInsert }
func (*SelectIntent) Kind() Kind { return KindSelect }
func (*UpdateIntent) Kind() Kind { return KindUpdate }
func (*DeleteIntent) Kind() Kind { return KindDelete }

func (i *InsertIntent) TableName() string { return i.Table }
func (s *SelectIntent) TableName() string { return s.Table }
func (u *UpdateIntent) TableName() string { return u.Table }
func (d *DeleteIntent) TableName() string { return d.Table }

func (*InsertIntent) intent() {}
func (*SelectIntent) intent() {}
func (*UpdateIntent) intent() {}
func (*DeleteIntent) intent() {}
