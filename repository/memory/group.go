/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/tomoncle/modelrepo/query"
)

type group struct {
	keys []any
	rows []any
}

// GroupBy evaluates the aggregates in process. COUNT counts non-null
// values, AVG is a float64 and SUM, MIN and MAX keep the field type.
// Attributes carried by where are ignored, as in the SQL statement.
func (r *RepositoryMemory[T]) GroupBy(
	ctx context.Context,
	selects []query.GroupBy[T],
	groupBy []query.Ref[T],
	where query.ModelQuery[T],
	orderBy *query.OrderByDescriptor[T],
	limit *int,
) ([][]any, error) {
	table := r.snapshot()
	rows := table
	if where != nil {
		rows = nil
		for _, row := range table {
			ok, err := r.match(table, row, where)
			if err != nil {
				return nil, err
			}
			if ok {
				rows = append(rows, row)
			}
		}
	}

	var groups []*group
	index := map[string]*group{}
	for _, row := range rows {
		keys := make([]any, len(groupBy))
		id := ""
		for i, f := range groupBy {
			keys[i] = r.value(row, f)
			id += keyOf(keys[i]) + "\x1f"
		}
		g, ok := index[id]
		if !ok {
			g = &group{keys: keys}
			index[id] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}

	result := make([][]any, 0, len(groups))
	for _, g := range groups {
		out := append([]any{}, g.keys...)
		for _, s := range selects {
			values := make([]any, 0, len(g.rows))
			for _, row := range g.rows {
				values = append(values, r.model.Get(row, s.Field.Info()))
			}
			agg, err := aggregate(s.Operator, values)
			if err != nil {
				return nil, fmt.Errorf("%s(%s): %w", s.Operator, s.Field.Name(), err)
			}
			out = append(out, agg)
		}
		result = append(result, out)
	}

	if orderBy != nil {
		position := map[string]int{}
		for i, f := range groupBy {
			position[f.Name()] = i
		}
		sort.SliceStable(result, func(i, j int) bool {
			for _, o := range orderBy.List {
				p, ok := position[o.Field.Name()]
				if !ok {
					continue
				}
				c, _ := compareValues(result[i][p], result[j][p])
				if c != 0 {
					return (c < 0) == o.Ascending
				}
			}
			return false
		})
	}
	if limit != nil && *limit >= 0 && *limit < len(result) {
		result = result[:*limit]
	}
	return result, nil
}

func aggregate(op query.Aggregate, values []any) (any, error) {
	var present []any
	for _, v := range values {
		if !isNull(v) {
			present = append(present, deref(v))
		}
	}
	switch op {
	case query.Count:
		return int64(len(present)), nil
	case query.Min, query.Max:
		var best any
		for _, v := range present {
			if best == nil {
				best = v
				continue
			}
			c, ok := compareValues(v, best)
			if !ok {
				return nil, fmt.Errorf("values of type %T are not ordered", v)
			}
			if (op == query.Min && c < 0) || (op == query.Max && c > 0) {
				best = v
			}
		}
		return best, nil
	case query.Sum, query.Avg:
		if len(present) == 0 {
			return nil, nil
		}
		var sum any
		for _, v := range present {
			if !isNumber(reflect.ValueOf(v)) {
				return nil, fmt.Errorf("cannot sum %T", v)
			}
			if sum == nil {
				sum = v
				continue
			}
			next, err := increment(sum, v)
			if err != nil {
				sum = toFloat(reflect.ValueOf(sum)) + toFloat(reflect.ValueOf(v))
				continue
			}
			sum = next
		}
		if op == query.Avg {
			return toFloat(reflect.ValueOf(sum)) / float64(len(present)), nil
		}
		return sum, nil
	}
	return nil, fmt.Errorf("unknown aggregate %q", op)
}
