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

package query

// OrderBy sorts on one field.
type OrderBy[T any] struct {
	Field     Ref[T]
	Ascending bool
}

// OrderByDescriptor is an ordered list of sort keys. Earlier keys decide
// first; ties fall through to later keys.
type OrderByDescriptor[T any] struct {
	List []OrderBy[T]
}

func (d *OrderByDescriptor[T]) then(field Ref[T], asc bool) *OrderByDescriptor[T] {
	list := make([]OrderBy[T], 0, len(d.List)+1)
	list = append(list, d.List...)
	return &OrderByDescriptor[T]{List: append(list, OrderBy[T]{Field: field, Ascending: asc})}
}

func (d *OrderByDescriptor[T]) ThenAsc(field Ref[T]) *OrderByDescriptor[T] {
	return d.then(field, true)
}

func (d *OrderByDescriptor[T]) ThenDesc(field Ref[T]) *OrderByDescriptor[T] {
	return d.then(field, false)
}

// Aggregate is a SQL aggregation function.
type Aggregate string

const (
	Count Aggregate = "COUNT"
	Avg   Aggregate = "AVG"
	Sum   Aggregate = "SUM"
	Min   Aggregate = "MIN"
	Max   Aggregate = "MAX"
)

// GroupBy pairs a field with the aggregate computed over it.
type GroupBy[T any] struct {
	Field    Ref[T]
	Operator Aggregate
}

// Assignment is one entry of an atomic update.
type Assignment[T any] struct {
	Field Ref[T]
	Value any
}
