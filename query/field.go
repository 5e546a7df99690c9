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

import (
	"fmt"
	"reflect"

	"github.com/tomoncle/modelrepo/schema"
)

// Ref is an untyped reference to a field of T.
type Ref[T any] interface {
	Name() string
	Info() *schema.Field
	Model() *schema.Model
}

// Field is a typed handle to the field of T holding values of type V.
// Handles are usually declared once as package variables.
type Field[T any, V any] struct {
	model *schema.Model
	info  *schema.Field
}

// LookupField resolves the field name (model name or Go name) of T and
// checks that it holds values of type V. V may be an interface the field
// type implements, such as any.
func LookupField[T any, V any](name string) (Field[T, V], error) {
	m, err := schema.Lookup(reflect.TypeFor[T]())
	if err != nil {
		return Field[T, V]{}, err
	}
	info, ok := m.Field(name)
	if !ok {
		return Field[T, V]{}, fmt.Errorf("model %s has no field %q", m.Name, name)
	}
	vt := reflect.TypeFor[V]()
	if vt != info.Type && !(vt.Kind() == reflect.Interface && info.Type.Implements(vt)) {
		return Field[T, V]{}, fmt.Errorf("field %s.%s holds %s, not %s", m.Name, info.Name, info.Type, vt)
	}
	return Field[T, V]{model: m, info: info}, nil
}

// NewField is LookupField that panics on error.
func NewField[T any, V any](name string) Field[T, V] {
	f, err := LookupField[T, V](name)
	if err != nil {
		panic(fmt.Sprintf("query: %v", err))
	}
	return f
}

func (f Field[T, V]) Name() string         { return f.info.Name }
func (f Field[T, V]) Info() *schema.Field  { return f.info }
func (f Field[T, V]) Model() *schema.Model { return f.model }

// Get reads the field from t.
func (f Field[T, V]) Get(t T) V {
	v, _ := f.model.Get(t, f.info).(V)
	return v
}

func (f Field[T, V]) binop(op Op, v any) ModelQuery[T] {
	return &FieldBinop[T]{Field: f, Op: op, Value: normalize(v)}
}

func (f Field[T, V]) Eq(v V) ModelQuery[T]  { return f.binop(OpEq, v) }
func (f Field[T, V]) Neq(v V) ModelQuery[T] { return f.binop(OpNeq, v) }
func (f Field[T, V]) Gt(v V) ModelQuery[T]  { return f.binop(OpGt, v) }
func (f Field[T, V]) Gte(v V) ModelQuery[T] { return f.binop(OpGte, v) }
func (f Field[T, V]) Lt(v V) ModelQuery[T]  { return f.binop(OpLt, v) }
func (f Field[T, V]) Lte(v V) ModelQuery[T] { return f.binop(OpLte, v) }

// Like matches values containing pattern, ignoring case in SQL. The memory
// backend tests plain substring containment.
func (f Field[T, V]) Like(pattern string) ModelQuery[T] { return f.binop(OpLike, pattern) }

func (f Field[T, V]) IsNull() ModelQuery[T] { return &FieldIsNull[T]{Field: f} }

func (f Field[T, V]) Within(values ...V) ModelQuery[T] {
	return &FieldWithin[T]{Field: f, Values: toAny(values)}
}

func (f Field[T, V]) WithinComplex(values ...V) ModelQuery[T] {
	return &FieldWithinComplex[T]{Field: f, Values: toAny(values)}
}

// WithinQuery matches rows whose field value appears in the rows matched by sub.
func (f Field[T, V]) WithinQuery(sub ModelQuery[T]) ModelQuery[T] {
	return &FieldWithinSubselect[T]{Field: f, Sub: sub}
}

func (f Field[T, V]) Asc() *OrderByDescriptor[T] {
	return &OrderByDescriptor[T]{List: []OrderBy[T]{{Field: f, Ascending: true}}}
}

func (f Field[T, V]) Desc() *OrderByDescriptor[T] {
	return &OrderByDescriptor[T]{List: []OrderBy[T]{{Field: f, Ascending: false}}}
}

func (f Field[T, V]) Count() GroupBy[T] { return GroupBy[T]{Field: f, Operator: Count} }
func (f Field[T, V]) Avg() GroupBy[T]   { return GroupBy[T]{Field: f, Operator: Avg} }
func (f Field[T, V]) Sum() GroupBy[T]   { return GroupBy[T]{Field: f, Operator: Sum} }
func (f Field[T, V]) Min() GroupBy[T]   { return GroupBy[T]{Field: f, Operator: Min} }
func (f Field[T, V]) Max() GroupBy[T]   { return GroupBy[T]{Field: f, Operator: Max} }

// Set is an atomic update assignment: field = v.
func (f Field[T, V]) Set(v V) Assignment[T] { return Assignment[T]{Field: f, Value: normalize(v)} }

// Incr is an atomic update increment: field = field + n.
func (f Field[T, V]) Incr(n V) Assignment[T] { return Assignment[T]{Field: f, Value: n} }

func toAny[V any](values []V) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = normalize(v)
	}
	return out
}
