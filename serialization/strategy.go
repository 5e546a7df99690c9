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

// Package serialization converts model field values to the scalars stored in
// database columns and back.
package serialization

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/schema"
	"github.com/tomoncle/modelrepo/types"
)

// Strategy is the bidirectional converter between field values and database
// values. A nil result from FromDatabaseValue means the field has no value
// and stays at its zero value.
type Strategy interface {
	ToDatabaseValue(value any, field *schema.Field) (any, error)
	FromDatabaseValue(field *schema.Field, raw any) (any, error)
}

var (
	emailType         = reflect.TypeFor[types.Email]()
	uuidType          = reflect.TypeFor[uuid.UUID]()
	timeType          = reflect.TypeFor[time.Time]()
	localDateType     = reflect.TypeFor[types.LocalDate]()
	localDateTimeType = reflect.TypeFor[types.LocalDateTime]()
)

// timeLayouts are tried in order when a time.Time column comes back as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// DefaultStrategy handles identifiers, emails, dates, enums, arrays and JSON.
// The extension hooks run first and claim a value by returning true.
type DefaultStrategy struct {
	ToExtension   func(value any, field *schema.Field) (any, bool)
	FromExtension func(field *schema.Field, raw any) (any, bool)
	Logger        database.Logger
}

func NewDefaultStrategy() *DefaultStrategy {
	return &DefaultStrategy{}
}

func (s *DefaultStrategy) logger() database.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return database.GetLogger()
}

// ToDatabaseValue converts a field value to a scalar the driver can store.
func (s *DefaultStrategy) ToDatabaseValue(value any, field *schema.Field) (any, error) {
	if s.ToExtension != nil {
		if v, ok := s.ToExtension(value, field); ok {
			return v, nil
		}
	}
	if value == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}

	switch v := value.(type) {
	case types.Id:
		if field != nil && field.NumericID {
			n, err := strconv.ParseInt(v.ID(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("numeric id %q: %w", v.ID(), err)
			}
			return n, nil
		}
		return v.ID(), nil
	case types.Email:
		return v.Normalized(), nil
	case types.LocalDate:
		if v.IsZero() {
			return nil, nil
		}
		return v.String(), nil
	case types.LocalDateTime:
		if v.IsZero() {
			return nil, nil
		}
		return v.String(), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case uuid.UUID:
		return v, nil
	case types.BaseEnum:
		return v.Name(), nil
	case []byte:
		return v, nil
	case driver.Valuer:
		return v, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return s.ToDatabaseValue(rv.Elem().Interface(), field)
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Type().PkgPath() == "" {
			return value, nil
		}
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Type().PkgPath() == "" {
			return value, nil
		}
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		if rv.Type().PkgPath() == "" {
			return value, nil
		}
		return rv.Float(), nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if field != nil && field.AsArray {
			return pq.Array(value).Value()
		}
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %T as json: %w", value, err)
	}
	return string(data), nil
}

// FromDatabaseValue converts a raw column value to the type of field.
func (s *DefaultStrategy) FromDatabaseValue(field *schema.Field, raw any) (any, error) {
	if s.FromExtension != nil {
		if v, ok := s.FromExtension(field, raw); ok {
			return v, nil
		}
	}
	if raw == nil {
		return nil, nil
	}
	return s.decode(field.Type, field, raw)
}

func (s *DefaultStrategy) decode(t reflect.Type, field *schema.Field, raw any) (any, error) {
	if t.Kind() == reflect.Pointer && !types.IsIdType(t) {
		v, err := s.decode(t.Elem(), field, raw)
		if err != nil || v == nil {
			return nil, err
		}
		p := reflect.New(t.Elem())
		if err := schema.Assign(p.Elem(), v); err != nil {
			return nil, err
		}
		return p.Interface(), nil
	}
	if reflect.TypeOf(raw) == t && t.Kind() != reflect.String && !isTextual(raw) {
		return raw, nil
	}

	switch {
	case types.IsIdType(t):
		v, err := types.IdFromString(t, stringOf(raw))
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	case types.IsEnumType(t):
		v, ok := types.EnumByName(t, stringOf(raw))
		if !ok {
			s.logger().Debug("unknown enum constant", "type", t.String(), "value", stringOf(raw))
			return nil, nil
		}
		return v, nil
	case t == emailType:
		return types.NewEmail(stringOf(raw)), nil
	case t == uuidType:
		return decodeUUID(raw)
	case t == timeType:
		return decodeTime(raw)
	case t == localDateType:
		if tm, ok := raw.(time.Time); ok {
			return types.LocalDateOf(tm), nil
		}
		return types.ParseLocalDate(stringOf(raw))
	case t == localDateTimeType:
		if tm, ok := raw.(time.Time); ok {
			return types.LocalDateTimeOf(tm), nil
		}
		return types.ParseLocalDateTime(stringOf(raw))
	}

	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(stringOf(raw)).Convert(t).Interface(), nil
	case reflect.Bool:
		return decodeBool(t, raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return decodeNumber(t, raw)
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return reflect.ValueOf([]byte(stringOf(raw))).Convert(t).Interface(), nil
		}
		if field != nil && field.AsArray && isTextual(raw) {
			dst := reflect.New(t)
			if err := pq.Array(dst.Interface()).Scan(raw); err != nil {
				return nil, fmt.Errorf("scan array into %s: %w", t, err)
			}
			return dst.Elem().Interface(), nil
		}
	}

	if reflect.TypeOf(raw).AssignableTo(t) {
		return raw, nil
	}
	dst := reflect.New(t)
	if err := json.Unmarshal([]byte(stringOf(raw)), dst.Interface()); err != nil {
		s.logger().Error("cannot decode json column",
			"type", t.String(), "value", stringOf(raw), "error", err.Error())
		return nil, nil
	}
	return dst.Elem().Interface(), nil
}

func isTextual(raw any) bool {
	switch raw.(type) {
	case string, []byte:
		return true
	}
	return false
}

func stringOf(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case types.Id:
		return v.ID()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(raw)
}

func decodeUUID(raw any) (any, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	}
	return uuid.Parse(stringOf(raw))
}

func decodeTime(raw any) (any, error) {
	if tm, ok := raw.(time.Time); ok {
		return tm, nil
	}
	text := strings.TrimSpace(stringOf(raw))
	for _, layout := range timeLayouts {
		if tm, err := time.Parse(layout, text); err == nil {
			return tm, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as time", text)
}

func decodeBool(t reflect.Type, raw any) (any, error) {
	var b bool
	switch v := raw.(type) {
	case bool:
		b = v
	case int64:
		b = v != 0
	case int:
		b = v != 0
	default:
		parsed, err := strconv.ParseBool(strings.TrimSpace(stringOf(raw)))
		if err != nil {
			return nil, fmt.Errorf("cannot convert %v (%T) to %s", raw, raw, t)
		}
		b = parsed
	}
	return reflect.ValueOf(b).Convert(t).Interface(), nil
}

// decodeNumber widens or narrows any numeric raw value to the exact kind of t.
func decodeNumber(t reflect.Type, raw any) (any, error) {
	src := reflect.ValueOf(raw)
	if isTextual(raw) {
		text := strings.TrimSpace(stringOf(raw))
		var err error
		switch t.Kind() {
		case reflect.Float32, reflect.Float64:
			var f float64
			f, err = strconv.ParseFloat(text, 64)
			src = reflect.ValueOf(f)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			var u uint64
			u, err = strconv.ParseUint(text, 10, 64)
			src = reflect.ValueOf(u)
		default:
			var i int64
			i, err = strconv.ParseInt(text, 10, 64)
			src = reflect.ValueOf(i)
		}
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to %s: %w", text, t, err)
		}
	}

	dst := reflect.New(t).Elem()
	switch src.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := src.Int()
		switch {
		case dst.CanInt():
			if dst.OverflowInt(n) {
				return nil, fmt.Errorf("value %d overflows %s", n, t)
			}
			dst.SetInt(n)
		case dst.CanUint():
			if n < 0 || dst.OverflowUint(uint64(n)) {
				return nil, fmt.Errorf("value %d overflows %s", n, t)
			}
			dst.SetUint(uint64(n))
		default:
			dst.SetFloat(float64(n))
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := src.Uint()
		switch {
		case dst.CanInt():
			if n > 1<<63-1 || dst.OverflowInt(int64(n)) {
				return nil, fmt.Errorf("value %d overflows %s", n, t)
			}
			dst.SetInt(int64(n))
		case dst.CanUint():
			if dst.OverflowUint(n) {
				return nil, fmt.Errorf("value %d overflows %s", n, t)
			}
			dst.SetUint(n)
		default:
			dst.SetFloat(float64(n))
		}
	case reflect.Float32, reflect.Float64:
		f := src.Float()
		switch {
		case dst.CanInt():
			dst.SetInt(int64(f))
		case dst.CanUint():
			dst.SetUint(uint64(f))
		default:
			dst.SetFloat(f)
		}
	default:
		return nil, fmt.Errorf("cannot convert %v (%T) to %s", raw, raw, t)
	}
	return dst.Interface(), nil
}
