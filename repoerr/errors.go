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

// Package repoerr defines the errors returned by query compilation,
// serialization and repositories.
package repoerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedQuery marks a query node no compiler or evaluator understands.
	ErrMalformedQuery = errors.New("malformed query")

	// ErrMapping marks a row that could not be turned into a model.
	ErrMapping = errors.New("row mapping failed")

	// ErrUpsertCardinality marks an upsert whose key matched more than one row.
	ErrUpsertCardinality = errors.New("UPSERT operation returned MORE than 1 result ==> CHECK PRIMARY KEY")

	// ErrNotFound marks a required lookup that matched nothing.
	ErrNotFound = errors.New("entity not found")

	// ErrUnsupportedIncrement marks an atomic increment on a non-incrementable field.
	ErrUnsupportedIncrement = errors.New("unsupported incrementable type")

	// ErrQuery marks a statement the database rejected.
	ErrQuery = errors.New("query failed")
)

// Malformed returns an ErrMalformedQuery for node.
func Malformed(node any) error {
	return fmt.Errorf("%w: no implementation for %T", ErrMalformedQuery, node)
}

// NotFound returns an ErrNotFound describing what was looked up.
func NotFound(what string, key any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, what, key)
}

// MappingError reports a row that failed to become a model, with every raw
// value and its runtime type.
type MappingError struct {
	Model     string
	Parameter string
	Value     any
	Values    []any
	Err       error
}

func (e *MappingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot build %s: parameter %q value %v (%T)", e.Model, e.Parameter, e.Value, e.Value)
	b.WriteString(" values [")
	for i, v := range e.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v (%T)", v, v)
	}
	b.WriteString("]")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *MappingError) Unwrap() error { return e.Err }

func (e *MappingError) Is(target error) bool { return target == ErrMapping }

// QueryError carries the statement that failed, its values and the driver
// classification of the failure.
type QueryError struct {
	Op     string
	SQL    string
	Values []any
	Kind   string
	Err    error
}

func (e *QueryError) Error() string {
	msg := fmt.Sprintf("%s failed: %v [sql=%s", e.Op, e.Err, e.SQL)
	if len(e.Values) > 0 {
		msg += fmt.Sprintf(" values=%v", e.Values)
	}
	if e.Kind != "" {
		msg += " kind=" + e.Kind
	}
	return msg + "]"
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsMalformedQuery reports whether err is or wraps ErrMalformedQuery.
func IsMalformedQuery(err error) bool { return errors.Is(err, ErrMalformedQuery) }
