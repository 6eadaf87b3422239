package query

import (
	"sort"
)

// Condition is a predicate bound to its parameter value. It is the filter
// vocabulary shared by every backend.
type Condition struct {
	Column string
	Op     Operator
	Value  Value
}

// Matches reports whether row satisfies the condition. A NULL on either side never matches.
func (c Condition) Matches(row Row) bool {
	cmp, ok := Compare(row[c.Column], c.Value)
	return ok && c.Op.Holds(cmp)
}

// MatchAll reports whether row satisfies every condition.
func MatchAll(row Row, conds []Condition) bool {
	for _, c := range conds {
		if !c.Matches(row) {
			return false
		}
	}
	return true
}

// HasNullOperand reports whether any condition compares against NULL, which
// makes the whole conjunction unsatisfiable.
func HasNullOperand(conds []Condition) bool {
	for _, c := range conds {
		if IsNull(c.Value) {
			return true
		}
	}
	return false
}

// SortRows sorts rows in place, stable, by one column. NULLs sort as the largest
// value: last ascending, first descending.
func SortRows(rows RowSet, order *OrderBy) {
	if order == nil {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareNullsLast(rows[i][order.Column], rows[j][order.Column])
		if order.Descending {
			return c > 0
		}
		return c < 0
	})
}

func compareNullsLast(a, b Value) int {
	switch {
	case IsNull(a) && IsNull(b):
		return 0
	case IsNull(a):
		return 1
	case IsNull(b):
		return -1
	}
	c, ok := Compare(a, b)
	if !ok {
		return 0
	}
	return c
}

// Paginate applies OFFSET then LIMIT.
func Paginate(rows RowSet, limit *int64, offset int64) RowSet {
	if offset >= int64(len(rows)) {
		return RowSet{}
	}
	rows = rows[offset:]
	if limit != nil && *limit < int64(len(rows)) {
		rows = rows[:*limit]
	}
	return rows
}
