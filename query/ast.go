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

// Package query holds the immutable predicate tree evaluated by every
// repository backend.
//
// A query is built from typed field handles:
//
//	var (
//		Name = query.NewField[User, string]("name")
//		Age  = query.NewField[User, int]("age")
//	)
//
//	q := query.And(Name.Eq("Mike"), Age.Gte(18))
//
// The set of node types is closed: backends switch over it exhaustively and
// report anything else as malformed.
package query

import "reflect"

// ModelQuery is a predicate over models of type T.
type ModelQuery[T any] interface {
	isModelQuery(T)
}

// Op is a binary comparison operator, spelled the way SQL spells it.
type Op string

const (
	OpEq   Op = "="
	OpNeq  Op = "<>"
	OpGt   Op = ">"
	OpGte  Op = ">="
	OpLt   Op = "<"
	OpLte  Op = "<="
	OpLike Op = "ILIKE"
)

// FieldBinop compares a field with a value.
type FieldBinop[T any] struct {
	Field Ref[T]
	Op    Op
	Value any
}

// FieldIsNull holds when the field has no value.
type FieldIsNull[T any] struct {
	Field Ref[T]
}

// FieldWithin holds when the field equals one of Values.
type FieldWithin[T any] struct {
	Field  Ref[T]
	Values []any
}

// FieldWithinComplex is FieldWithin for composite values, which are
// serialized before comparison.
type FieldWithinComplex[T any] struct {
	Field  Ref[T]
	Values []any
}

// FieldWithinSubselect holds when the field value is among the values of
// the same field in the rows matched by Sub.
type FieldWithinSubselect[T any] struct {
	Field Ref[T]
	Sub   ModelQuery[T]
}

type AndQuery[T any] struct {
	Left, Right ModelQuery[T]
}

type OrQuery[T any] struct {
	Left, Right ModelQuery[T]
}

// Unop applies a unary logic operator, rendered as OP(inner).
type Unop[T any] struct {
	Op  string
	Exp ModelQuery[T]
}

// Attributed adds paging and ordering to Base. Only the outermost Attributed
// of a tree is honoured.
type Attributed[T any] struct {
	Base    ModelQuery[T]
	Skip    int64
	Limit   *int
	OrderBy *OrderByDescriptor[T]
}

// Decorated wraps Base without changing its meaning.
type Decorated[T any] struct {
	Base ModelQuery[T]
}

func (*FieldBinop[T]) isModelQuery(T)           {}
func (*FieldIsNull[T]) isModelQuery(T)          {}
func (*FieldWithin[T]) isModelQuery(T)          {}
func (*FieldWithinComplex[T]) isModelQuery(T)   {}
func (*FieldWithinSubselect[T]) isModelQuery(T) {}
func (*AndQuery[T]) isModelQuery(T)             {}
func (*OrQuery[T]) isModelQuery(T)              {}
func (*Unop[T]) isModelQuery(T)                 {}
func (*Attributed[T]) isModelQuery(T)           {}
func (*Decorated[T]) isModelQuery(T)            {}

func And[T any](left, right ModelQuery[T]) ModelQuery[T] {
	return &AndQuery[T]{Left: left, Right: right}
}

func Or[T any](left, right ModelQuery[T]) ModelQuery[T] {
	return &OrQuery[T]{Left: left, Right: right}
}

// AllOf joins queries with AND, left to right. It returns nil for no queries.
func AllOf[T any](queries ...ModelQuery[T]) ModelQuery[T] {
	var q ModelQuery[T]
	for _, next := range queries {
		if q == nil {
			q = next
			continue
		}
		q = And(q, next)
	}
	return q
}

func Not[T any](exp ModelQuery[T]) ModelQuery[T] {
	return &Unop[T]{Op: "NOT", Exp: exp}
}

// Attribute decorates q with skip, an optional limit and an optional ordering.
func Attribute[T any](q ModelQuery[T], skip int64, limit *int, orderBy *OrderByDescriptor[T]) ModelQuery[T] {
	if skip < 0 {
		skip = 0
	}
	return &Attributed[T]{Base: q, Skip: skip, Limit: limit, OrderBy: orderBy}
}

func Decorate[T any](q ModelQuery[T]) ModelQuery[T] {
	return &Decorated[T]{Base: q}
}

// Limit returns a limit value for Attribute.
func Limit(n int) *int { return &n }

// Outer returns the outermost Attributed of q, looking through Decorated
// wrappers, or nil when q carries no attributes.
func Outer[T any](q ModelQuery[T]) *Attributed[T] {
	for {
		switch n := q.(type) {
		case *Attributed[T]:
			return n
		case *Decorated[T]:
			q = n.Base
		default:
			return nil
		}
	}
}

// normalize turns typed nils (nil pointers, maps, slices) into an untyped nil
// so that Eq(nil) and IsNull agree.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}
