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

package types

import (
	"reflect"
	"strings"
)

// IllegalName is the symbolic name reported by undeclared enum values.
const IllegalName = "unknown"

// BaseEnum is implemented by enumerated field types. Name is the symbolic
// constant name stored in the database.
type BaseEnum interface {
	Name() string
}

// Enum is a BaseEnum that can list every declared constant, so a stored
// name can be turned back into a value.
type Enum interface {
	BaseEnum
	Constants() []BaseEnum
}

var enumType = reflect.TypeFor[Enum]()

// IsEnumType reports whether t stores as a symbolic name.
func IsEnumType(t reflect.Type) bool {
	return t != nil && t.Implements(enumType)
}

// EnumByName returns the constant of enum type t named name. Surrounding
// blanks and double quotes are ignored and matching is case-sensitive.
func EnumByName(t reflect.Type, name string) (any, bool) {
	if !IsEnumType(t) {
		return nil, false
	}
	name = strings.ReplaceAll(strings.TrimSpace(name), `"`, "")
	zero := reflect.Zero(t).Interface().(Enum)
	for _, c := range zero.Constants() {
		if c.Name() == name {
			v := reflect.ValueOf(c)
			if v.Type() != t {
				if !v.Type().ConvertibleTo(t) {
					continue
				}
				v = v.Convert(t)
			}
			return v.Interface(), true
		}
	}
	return nil, false
}
