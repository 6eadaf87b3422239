// Package aggregate reduces fetched rows into GROUP BY / COUNT / SUM results
// for backends that can only filter, sort and page rows.
package aggregate

import (
	"math"

	"github.com/samber/lo"

	"github.com/yeoleshweta/PocketSaver/pkg/query"
)

// Reduce groups rows by agg.GroupBy in first-seen order and computes the
// projected count and sums per group. Without a group column the whole input
// is one group and the result always has one row.
//
// Ordering follows order when given (it must name an output column), otherwise
// the first sum descending. Sums over no non-null numeric value are NULL.
func Reduce(rows query.RowSet, agg *query.Aggregation, order *query.OrderBy) query.RowSet {
	groups, keys := group(rows, agg.GroupBy)

	out := lo.Map(keys, func(key query.Value, _ int) query.Row {
		return reduceGroup(groups[key], agg, key)
	})
	if agg.GroupBy == "" && len(out) == 0 {
		out = []query.Row{reduceGroup(nil, agg, nil)}
	}

	result := query.RowSet(out)
	switch {
	case order != nil:
		query.SortRows(result, order)
	case len(agg.Sums) > 0:
		query.SortRows(result, &query.OrderBy{Column: agg.Sums[0].Alias, Descending: true})
	}
	return result
}

// group buckets rows by column in first-seen order. NULL keys form one group
// keyed nil, as SQL GROUP BY does.
func group(rows query.RowSet, column string) (map[query.Value][]query.Row, []query.Value) {
	keyOf := func(r query.Row) query.Value {
		if column == "" {
			return nil
		}
		return query.NormalizeValue(r[column])
	}
	groups := lo.GroupBy([]query.Row(rows), keyOf)
	keys := lo.Uniq(lo.Map([]query.Row(rows), func(r query.Row, _ int) query.Value {
		return keyOf(r)
	}))
	return groups, keys
}

func reduceGroup(rows []query.Row, agg *query.Aggregation, key query.Value) query.Row {
	out := make(query.Row, len(agg.Order))
	for _, c := range agg.Columns {
		out[c.OutputName()] = key
	}
	if agg.Count != nil {
		out[agg.Count.Alias] = int64(len(rows))
	}
	for _, s := range agg.Sums {
		out[s.Alias] = sum(rows, s)
	}
	return out
}

func sum(rows []query.Row, item query.SumItem) query.Value {
	values := lo.FilterMap(rows, func(r query.Row, _ int) (float64, bool) {
		f, ok := query.ToFloat(r[item.Column])
		if ok && item.Abs {
			f = math.Abs(f)
		}
		return f, ok
	})
	if len(values) == 0 {
		return nil
	}
	return lo.Sum(values)
}
