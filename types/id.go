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
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Id is implemented by identifier wrapper types. Two identifiers are equal
// when their underlying strings are equal, so wrappers are declared as
// `type UserId string` or as a struct with a single string field.
type Id interface {
	ID() string
}

var idType = reflect.TypeFor[Id]()

// IsIdType reports whether values of t are identifier wrappers.
func IsIdType(t reflect.Type) bool {
	return t != nil && t.Implements(idType)
}

// IdFromString builds a value of the identifier type t holding s.
func IdFromString(t reflect.Type, s string) (reflect.Value, error) {
	if !IsIdType(t) {
		return reflect.Value{}, fmt.Errorf("%s is not an identifier type", t)
	}
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(s).Convert(t), nil
	case reflect.Struct:
		v := reflect.New(t).Elem()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() && f.Type.Kind() == reflect.String {
				v.Field(i).SetString(s)
				return v, nil
			}
		}
	case reflect.Pointer:
		inner, err := IdFromString(t.Elem(), s)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	return reflect.Value{}, fmt.Errorf("identifier type %s has no string representation to set", t)
}

// RandomID returns a new random identifier string.
func RandomID() string {
	return uuid.NewString()
}
