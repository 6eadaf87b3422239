// Package query provides the statement model of the persistence gateway: values,
// rows, the dialect parser and the parsed statement intents.
package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a scalar cell value: nil, string, int64, float64, bool or time.Time.
type Value = any

// Row maps column names to values.
type Row map[string]Value

// RowSet is the ordered result of a statement.
type RowSet []Row

// Statement is statement text plus its positional parameters ($1..$n).
type Statement struct {
	Text   string
	Params []Value
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Project returns a row restricted to columns. Missing columns project as nil.
func (r Row) Project(columns []string) Row {
	out := make(Row, len(columns))
	for _, c := range columns {
		out[c] = r[c]
	}
	return out
}

// Columns returns the column names of the first row, or nil for an empty set.
func (rs RowSet) Columns() []string {
	if len(rs) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rs[0]))
	for k := range rs[0] {
		cols = append(cols, k)
	}
	return cols
}

// NormalizeValue converts driver and decoder values into the Value set.
func NormalizeValue(val any) Value {
	if val == nil {
		return nil
	}

	switch v := val.(type) {
	case []byte:
		return string(v)
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	case float64:
		return v
	case bool, string, time.Time:
		return v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	case interface{ Float64() float64 }:
		// decimal types
		return v.Float64()
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

// IsNull reports whether v is SQL NULL.
func IsNull(v Value) bool {
	return v == nil
}

// ToFloat converts numeric values and numeric strings to float64.
func ToFloat(v Value) (float64, bool) {
	switch n := NormalizeValue(v).(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToInt converts integral values and integer strings to int64.
func ToInt(v Value) (int64, bool) {
	switch n := NormalizeValue(v).(type) {
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ToTime converts time values and timestamp strings to time.Time.
func ToTime(v Value) (time.Time, bool) {
	switch t := NormalizeValue(v).(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// Compare orders two non-null values. ok is false when the values are not comparable.
// Numbers compare numerically (numeric strings included), times chronologically
// (timestamp strings included), booleans false < true and strings lexically.
func Compare(a, b Value) (int, bool) {
	a, b = NormalizeValue(a), NormalizeValue(b)
	if a == nil || b == nil {
		return 0, false
	}

	_, aTime := a.(time.Time)
	_, bTime := b.(time.Time)
	if aTime || bTime {
		at, okA := ToTime(a)
		bt, okB := ToTime(b)
		if !okA || !okB {
			return 0, false
		}
		return at.Compare(bt), true
	}

	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ab == bb:
			return 0, true
		case !ab:
			return -1, true
		default:
			return 1, true
		}
	}

	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}

	af, okA := ToFloat(a)
	bf, okB := ToFloat(b)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

// Equal reports SQL equality of two values; NULL equals nothing.
func Equal(a, b Value) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}
