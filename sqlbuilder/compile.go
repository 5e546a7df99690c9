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

package sqlbuilder

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repoerr"
	"github.com/tomoncle/modelrepo/schema"
)

// ValueMode selects how values are rendered inside SQL text.
type ValueMode int

const (
	// Literal renders values inline, escaped.
	Literal ValueMode = iota
	// Slot renders every value as a "?" placeholder.
	Slot
)

// ToSql compiles the predicate of q. Attributes of Attributed nodes are not
// part of the predicate and are ignored here.
func (b *ModelSqlBuilder[T]) ToSql(q query.ModelQuery[T], mode ValueMode) (string, error) {
	switch n := q.(type) {
	case *query.FieldIsNull[T]:
		return n.Field.Info().Column + " IS NULL", nil
	case *query.FieldWithin[T]:
		return b.within(n.Field, n.Values, mode)
	case *query.FieldWithinComplex[T]:
		return b.within(n.Field, n.Values, mode)
	case *query.FieldBinop[T]:
		if n.Value == nil {
			switch n.Op {
			case query.OpEq:
				return n.Field.Info().Column + " IS NULL", nil
			case query.OpNeq:
				return n.Field.Info().Column + " IS NOT NULL", nil
			}
		}
		v, err := b.renderValue(n.Field.Info(), n.Value, mode)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", n.Field.Info().Column, n.Op, v), nil
	case *query.Unop[T]:
		inner, err := b.ToSql(n.Exp, mode)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", n.Op, inner), nil
	case *query.AndQuery[T]:
		return b.binary("AND", n.Left, n.Right, mode)
	case *query.OrQuery[T]:
		return b.binary("OR", n.Left, n.Right, mode)
	case *query.FieldWithinSubselect[T]:
		col := n.Field.Info().Column
		where, err := b.ToSql(n.Sub, mode)
		if err != nil {
			return "", err
		}
		sub := b.withAttributes(fmt.Sprintf("SELECT %s FROM %s WHERE %s", col, b.table, where), n.Sub)
		return fmt.Sprintf("%s IN (%s)", col, sub), nil
	case *query.Attributed[T]:
		return b.ToSql(n.Base, mode)
	case *query.Decorated[T]:
		return b.ToSql(n.Base, mode)
	}
	return "", repoerr.Malformed(q)
}

func (b *ModelSqlBuilder[T]) binary(op string, left, right query.ModelQuery[T], mode ValueMode) (string, error) {
	l, err := b.ToSql(left, mode)
	if err != nil {
		return "", err
	}
	r, err := b.ToSql(right, mode)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s) %s (%s)", l, op, r), nil
}

func (b *ModelSqlBuilder[T]) within(field query.Ref[T], values []any, mode ValueMode) (string, error) {
	rendered := make([]string, len(values))
	for i, v := range values {
		r, err := b.renderValue(field.Info(), v, mode)
		if err != nil {
			return "", err
		}
		rendered[i] = r
	}
	return fmt.Sprintf("%s IN (%s)", field.Info().Column, csv(rendered)), nil
}

func (b *ModelSqlBuilder[T]) renderValue(f *schema.Field, v any, mode ValueMode) (string, error) {
	if mode == Slot {
		return "?", nil
	}
	return b.toSqlValue(f, v)
}

// QueryValues lists the values bound by the placeholders ToSql(q, Slot)
// renders, in the same order.
func (b *ModelSqlBuilder[T]) QueryValues(q query.ModelQuery[T]) ([]any, error) {
	switch n := q.(type) {
	case *query.FieldIsNull[T]:
		return nil, nil
	case *query.FieldWithin[T]:
		return b.dbValues(n.Field.Info(), n.Values)
	case *query.FieldWithinComplex[T]:
		return b.dbValues(n.Field.Info(), n.Values)
	case *query.FieldBinop[T]:
		if n.Value == nil && (n.Op == query.OpEq || n.Op == query.OpNeq) {
			return nil, nil
		}
		v, err := b.toDb(n.Field.Info(), n.Value)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	case *query.Unop[T]:
		return b.QueryValues(n.Exp)
	case *query.AndQuery[T]:
		return b.binaryValues(n.Left, n.Right)
	case *query.OrQuery[T]:
		return b.binaryValues(n.Left, n.Right)
	case *query.FieldWithinSubselect[T]:
		return b.QueryValues(n.Sub)
	case *query.Attributed[T]:
		return b.QueryValues(n.Base)
	case *query.Decorated[T]:
		return b.QueryValues(n.Base)
	}
	return nil, repoerr.Malformed(q)
}

func (b *ModelSqlBuilder[T]) binaryValues(left, right query.ModelQuery[T]) ([]any, error) {
	l, err := b.QueryValues(left)
	if err != nil {
		return nil, err
	}
	r, err := b.QueryValues(right)
	if err != nil {
		return nil, err
	}
	return append(l, r...), nil
}

func (b *ModelSqlBuilder[T]) dbValues(f *schema.Field, values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		db, err := b.toDb(f, v)
		if err != nil {
			return nil, err
		}
		out[i] = db
	}
	return out, nil
}

// toSqlValue serializes v for f and renders it as an SQL literal.
func (b *ModelSqlBuilder[T]) toSqlValue(f *schema.Field, v any) (string, error) {
	db, err := b.toDb(f, v)
	if err != nil {
		return "", err
	}
	return Literalize(db)
}

// Literalize renders a database value as SQL text: NULL, booleans and numbers
// verbatim, anything else as a single-quoted string with quotes doubled.
func Literalize(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return quote(x), nil
	case []byte:
		return quote(string(x)), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case fmt.Stringer:
		return quote(x.String()), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return "", err
		}
		return Literalize(dv)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	return quote(fmt.Sprint(v)), nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
