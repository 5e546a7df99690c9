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
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/tomoncle/modelrepo/types"
)

// isNull reports whether v is nil or a nil pointer, slice or map.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// deref follows non-nil pointers that are not identifiers.
func deref(v any) any {
	for {
		if _, ok := v.(types.Id); ok {
			return v
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return v
		}
		v = rv.Elem().Interface()
	}
}

// equalValues compares a field value with a query value. Identifiers compare
// by their strings and numbers across kinds.
func equalValues(a, b any) bool {
	if isNull(a) || isNull(b) {
		return isNull(a) && isNull(b)
	}
	a, b = deref(a), deref(b)
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two non-null values. ok is false when they have no
// common ordering.
func compareValues(a, b any) (int, bool) {
	if isNull(a) || isNull(b) {
		return 0, false
	}
	a, b = deref(a), deref(b)

	if ida, ok := a.(types.Id); ok {
		if idb, ok := b.(types.Id); ok {
			return strings.Compare(ida.ID(), idb.ID()), true
		}
		if s, ok := b.(string); ok {
			return strings.Compare(ida.ID(), s), true
		}
		return 0, false
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb), true
		}
		return 0, false
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if c, ok := compareMethod(ra, rb); ok {
		return c, true
	}
	switch {
	case isNumber(ra) && isNumber(rb):
		return compareNumbers(ra, rb), true
	case ra.Kind() == reflect.String && rb.Kind() == reflect.String:
		return strings.Compare(ra.String(), rb.String()), true
	case ra.Kind() == reflect.Bool && rb.Kind() == reflect.Bool:
		return boolRank(ra.Bool()) - boolRank(rb.Bool()), true
	}
	return 0, false
}

// compareMethod uses a `Compare(T) int` method, as types.LocalDate has.
func compareMethod(a, b reflect.Value) (int, bool) {
	if a.Type() != b.Type() {
		return 0, false
	}
	m := a.MethodByName("Compare")
	if !m.IsValid() {
		return 0, false
	}
	mt := m.Type()
	if mt.NumIn() != 1 || mt.In(0) != b.Type() || mt.NumOut() != 1 || mt.Out(0).Kind() != reflect.Int {
		return 0, false
	}
	return int(m.Call([]reflect.Value{b})[0].Int()), true
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNumber(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isFloat(v reflect.Value) bool {
	return v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

func isUnsigned(v reflect.Value) bool {
	return v.CanUint()
}

func compareNumbers(a, b reflect.Value) int {
	switch {
	case isFloat(a) || isFloat(b):
		return cmp.Compare(toFloat(a), toFloat(b))
	case isUnsigned(a) && isUnsigned(b):
		return cmp.Compare(a.Uint(), b.Uint())
	case isUnsigned(a):
		if b.Int() < 0 {
			return 1
		}
		return cmp.Compare(a.Uint(), uint64(b.Int()))
	case isUnsigned(b):
		if a.Int() < 0 {
			return -1
		}
		return cmp.Compare(uint64(a.Int()), b.Uint())
	}
	return cmp.Compare(a.Int(), b.Int())
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isFloat(v):
		return v.Float()
	case isUnsigned(v):
		return float64(v.Uint())
	}
	return float64(v.Int())
}

// textOf is the string a Like predicate searches in.
func textOf(v any) (string, bool) {
	v = deref(v)
	switch x := v.(type) {
	case types.Id:
		return x.ID(), true
	case fmt.Stringer:
		return x.String(), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

// keyOf renders a group-by value as a map key.
func keyOf(v any) string {
	if isNull(v) {
		return "\x00null"
	}
	v = deref(v)
	if id, ok := v.(types.Id); ok {
		return "id:" + id.ID()
	}
	return fmt.Sprintf("%T:%v", v, v)
}
