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

package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

// TagName is the struct tag read for field options:
//
//	UserID types.Id `repo:"userId,autoincrement,numericid"`
//	Tags   []string `repo:",array"`
//	Cache  string   `repo:"-"`
const TagName = "repo"

// Field describes one persisted field of a model.
type Field struct {
	// Name is the model field name, e.g. "companyName".
	Name string
	// GoName is the struct field name, e.g. "CompanyName".
	GoName string
	// Column is the snake_case column name, e.g. "company_name".
	Column string
	// Index is the position of the field in the struct.
	Index int
	Type  reflect.Type

	AutoIncrement bool
	NumericID     bool
	AsArray       bool
}

func (f *Field) String() string { return f.Name }

// Model is the descriptor of a model type: its ordered fields and how to
// read, build and copy values of it.
type Model struct {
	Name string
	// Type is the struct type. When Pointer is set the model values are *Type.
	Type    reflect.Type
	Pointer bool
	Fields  []*Field

	byName   map[string]*Field
	copySafe bool
}

// DescribeType builds the descriptor of t, which must be a struct or a pointer to a struct.
func DescribeType(t reflect.Type) (*Model, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot describe nil type")
	}
	m := &Model{byName: map[string]*Field{}}
	if t.Kind() == reflect.Pointer {
		m.Pointer = true
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model type %s is not a struct", t)
	}
	m.Type = t
	m.Name = t.Name()

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		f := &Field{GoName: sf.Name, Index: i, Type: sf.Type}
		parts := strings.Split(tag, ",")
		f.Name = strings.TrimSpace(parts[0])
		if f.Name == "" {
			f.Name = LowerCamel(sf.Name)
		}
		for _, opt := range parts[1:] {
			switch strings.TrimSpace(opt) {
			case "autoincrement":
				f.AutoIncrement = true
			case "numericid":
				f.NumericID = true
			case "array":
				f.AsArray = true
			case "":
			default:
				return nil, fmt.Errorf("model %s field %s: unknown option %q", m.Name, sf.Name, opt)
			}
		}
		f.Column = SnakeCase(f.Name)
		if _, dup := m.byName[f.Name]; dup {
			return nil, fmt.Errorf("model %s: duplicated field name %q", m.Name, f.Name)
		}
		m.Fields = append(m.Fields, f)
		m.byName[f.Name] = f
		m.byName[f.GoName] = f
	}
	if len(m.Fields) == 0 {
		return nil, fmt.Errorf("model %s has no exported fields", m.Name)
	}
	m.copySafe = valueSafe(t, map[reflect.Type]bool{})
	return m, nil
}

// Field looks a field up by model name or Go name.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Columns returns every column in declaration order.
func (m *Model) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// InsertFields are the fields written by INSERT: every field not marked autoincrement.
func (m *Model) InsertFields() []*Field {
	fields := make([]*Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if !f.AutoIncrement {
			fields = append(fields, f)
		}
	}
	return fields
}

func (m *Model) AutoIncrementFields() []*Field {
	var fields []*Field
	for _, f := range m.Fields {
		if f.AutoIncrement {
			fields = append(fields, f)
		}
	}
	return fields
}

// CopySafe reports whether a plain value copy of the struct shares no
// mutable memory with the original.
func (m *Model) CopySafe() bool { return m.copySafe }

func (m *Model) structValue(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("model %s: nil entity", m.Name)
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("model %s: nil entity", m.Name)
		}
		v = v.Elem()
	}
	if v.Type() != m.Type {
		return reflect.Value{}, fmt.Errorf("model %s: unexpected entity type %T", m.Name, entity)
	}
	return v, nil
}

// Get returns the value of f in entity, or nil for a nil entity.
func (m *Model) Get(entity any, f *Field) any {
	v, err := m.structValue(entity)
	if err != nil {
		return nil
	}
	return v.Field(f.Index).Interface()
}

// Values returns the field values of entity in declaration order.
func (m *Model) Values(entity any) []any {
	out := make([]any, len(m.Fields))
	v, err := m.structValue(entity)
	if err != nil {
		return out
	}
	for i, f := range m.Fields {
		out[i] = v.Field(f.Index).Interface()
	}
	return out
}

func (m *Model) wrap(v reflect.Value) any {
	if m.Pointer {
		p := reflect.New(m.Type)
		p.Elem().Set(v)
		return p.Interface()
	}
	return v.Interface()
}

// Build constructs a model value from values given in field order. A nil
// value leaves the field at its zero value.
func (m *Model) Build(values []any) (any, error) {
	if len(values) != len(m.Fields) {
		return nil, fmt.Errorf("model %s expects %d values, got %d", m.Name, len(m.Fields), len(values))
	}
	v := reflect.New(m.Type).Elem()
	for i, f := range m.Fields {
		if err := Assign(v.Field(f.Index), values[i]); err != nil {
			return nil, fmt.Errorf("model %s field %s: %w", m.Name, f.Name, err)
		}
	}
	return m.wrap(v), nil
}

// Copy returns a structural copy of entity. Reference-typed fields are
// shared with the original unless CopySafe reports true.
func (m *Model) Copy(entity any) (any, error) {
	v, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	c := reflect.New(m.Type).Elem()
	c.Set(v)
	return m.wrap(c), nil
}

// With returns a copy of entity whose field f holds value.
func (m *Model) With(entity any, f *Field, value any) (any, error) {
	v, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	c := reflect.New(m.Type).Elem()
	c.Set(v)
	if err := Assign(c.Field(f.Index), value); err != nil {
		return nil, fmt.Errorf("model %s field %s: %w", m.Name, f.Name, err)
	}
	return m.wrap(c), nil
}

// Assign stores value into dst, converting between compatible kinds.
// A nil value resets dst to its zero value.
func Assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.SetZero()
		return nil
	}
	src := reflect.ValueOf(value)
	dt := dst.Type()
	switch {
	case src.Type().AssignableTo(dt):
		dst.Set(src)
	case compatible(src.Type(), dt):
		dst.Set(src.Convert(dt))
	case dt.Kind() == reflect.Pointer && (src.Type().AssignableTo(dt.Elem()) || compatible(src.Type(), dt.Elem())):
		p := reflect.New(dt.Elem())
		if err := Assign(p.Elem(), value); err != nil {
			return err
		}
		dst.Set(p)
	case src.Kind() == reflect.Pointer && !src.IsNil():
		return Assign(dst, src.Elem().Interface())
	default:
		return fmt.Errorf("cannot assign %T to %s", value, dt)
	}
	return nil
}

func compatible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	switch {
	case isNumberKind(from.Kind()) && isNumberKind(to.Kind()):
		return true
	case from.Kind() == to.Kind() && from.Kind() != reflect.Struct:
		return true
	}
	return false
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

var timeType = reflect.TypeFor[time.Time]()

func valueSafe(t reflect.Type, seen map[reflect.Type]bool) bool {
	if t == timeType {
		return true
	}
	if done, ok := seen[t]; ok {
		return done
	}
	seen[t] = true
	safe := true
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		safe = false
	case reflect.Array:
		safe = valueSafe(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField() && safe; i++ {
			safe = valueSafe(t.Field(i).Type, seen)
		}
	}
	seen[t] = safe
	return safe
}

// SnakeCase inserts '_' before every upper-case letter and lower-cases it:
// "companyName" becomes "company_name".
func SnakeCase(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LowerCamel turns a Go field name into a model field name, folding
// acronyms: "CompanyName" -> "companyName", "UserID" -> "userId", "ID" -> "id".
func LowerCamel(goName string) string {
	words := splitWords(goName)
	var b strings.Builder
	for i, w := range words {
		lw := strings.ToLower(w)
		if i == 0 {
			b.WriteString(lw)
			continue
		}
		rs := []rune(lw)
		rs[0] = unicode.ToUpper(rs[0])
		b.WriteString(string(rs))
	}
	return b.String()
}

func splitWords(s string) []string {
	rs := []rune(s)
	var words []string
	start := 0
	for i := 1; i < len(rs); i++ {
		prev, cur := rs[i-1], rs[i]
		boundary := unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev))
		if unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(rs) && unicode.IsLower(rs[i+1]) {
			boundary = true
		}
		if boundary {
			words = append(words, string(rs[start:i]))
			start = i
		}
	}
	return append(words, string(rs[start:]))
}
