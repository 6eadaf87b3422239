package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
)

// Write validation errors.
var (
	ErrUnknownColumn = errors.New("column does not exist")
	ErrInvalidInput  = errors.New("invalid input syntax")
	ErrNoConstraint  = errors.New("no unique constraint matches the ON CONFLICT specification")
)

// Coerce converts v to the storage representation of c, the way a relational
// store casts an untyped parameter on write. NULL stays NULL.
func (c Column) Coerce(v query.Value) (query.Value, error) {
	v = query.NormalizeValue(v)
	if v == nil {
		return nil, nil
	}

	switch c.Type {
	case TypeFloat:
		if f, ok := query.ToFloat(v); ok {
			return f, nil
		}
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed, nil
			}
		case int64:
			return b != 0, nil
		}
	case TypeTimestamp:
		if t, ok := query.ToTime(v); ok {
			return t, nil
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("%w for column %s: %v", ErrInvalidInput, c.Name, v)
}

// CoerceRow coerces every value of row that names a declared column.
// Unknown columns are reported as an error.
func (t *Table) CoerceRow(row query.Row) (query.Row, error) {
	out := make(query.Row, len(row))
	for name, v := range row {
		col, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q of relation %q", ErrUnknownColumn, name, t.Name)
		}
		cv, err := col.Coerce(v)
		if err != nil {
			return nil, err
		}
		out[name] = cv
	}
	return out, nil
}
