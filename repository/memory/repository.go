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

// Package memory is the in-process backend: a table of models guarded by a
// mutex, queried by evaluating the predicate tree directly. Results follow
// the SQL backend semantics, except Like, which tests substring containment.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repoerr"
	"github.com/tomoncle/modelrepo/repository"
	"github.com/tomoncle/modelrepo/schema"
	"github.com/tomoncle/modelrepo/types"
)

// Cloner is implemented by models that know how to deep-copy themselves.
type Cloner[T any] interface {
	Clone() T
}

type Option[T any] func(*RepositoryMemory[T])

// WithCloneFunc sets the function used to copy rows in and out of the table.
func WithCloneFunc[T any](fn func(T) T) Option[T] {
	return func(r *RepositoryMemory[T]) { r.cloneFn = fn }
}

func WithLogger[T any](logger database.Logger) Option[T] {
	return func(r *RepositoryMemory[T]) { r.logger = logger }
}

// WithRows fills the table with rows as they are. Autoincrement fields are
// not stamped.
func WithRows[T any](rows []T) Option[T] {
	return func(r *RepositoryMemory[T]) { r.seed = rows }
}

// RepositoryMemory implements repository.Repository over a slice.
type RepositoryMemory[T any] struct {
	model *schema.Model

	mu          sync.Mutex
	table       []T
	counters    map[*schema.Field]int
	initialized bool

	cloneFn  func(T) T
	logger   database.Logger
	warnOnce sync.Once
	seed     []T
}

var _ repository.Repository[struct{}] = (*RepositoryMemory[struct{}])(nil)

func NewRepositoryMemory[T any](opts ...Option[T]) *RepositoryMemory[T] {
	r := &RepositoryMemory[T]{model: schema.Describe[T]()}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = database.GetLogger()
	}
	if r.seed != nil {
		r.table = r.cloneAll(r.seed)
		r.seed = nil
	}
	return r
}

func (r *RepositoryMemory[T]) Model() *schema.Model { return r.model }

// Init sets every autoincrement counter to 0 on first call.
func (r *RepositoryMemory[T]) Init(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked()
	return nil
}

func (r *RepositoryMemory[T]) initLocked() {
	if r.initialized {
		return
	}
	r.initialized = true
	r.counters = make(map[*schema.Field]int)
	for _, f := range r.model.AutoIncrementFields() {
		r.counters[f] = 0
	}
}

// clone returns a copy of t that shares no memory with the table. Models
// that cannot be copied safely are returned as is, after a single warning.
func (r *RepositoryMemory[T]) clone(t T) T {
	if r.cloneFn != nil {
		return r.cloneFn(t)
	}
	if c, ok := any(t).(Cloner[T]); ok {
		return c.Clone()
	}
	if r.model.CopySafe() {
		if !r.model.Pointer {
			return t
		}
		if c, err := r.model.Copy(t); err == nil {
			return c.(T)
		}
		return t
	}
	r.warnOnce.Do(func() {
		r.logger.Warn("cannot clone model, rows are shared with the table and must not be modified",
			"model", r.model.Name)
	})
	return t
}

func (r *RepositoryMemory[T]) cloneAll(rows []T) []T {
	out := make([]T, len(rows))
	for i, row := range rows {
		out[i] = r.clone(row)
	}
	return out
}

func (r *RepositoryMemory[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked()
	return slices.Clone(r.table)
}

func (r *RepositoryMemory[T]) GetAll(ctx context.Context) ([]T, error) {
	return r.cloneAll(r.snapshot()), nil
}

func (r *RepositoryMemory[T]) Count(ctx context.Context, q query.ModelQuery[T]) (int, error) {
	rows := r.snapshot()
	n := 0
	for _, row := range rows {
		ok, err := r.match(rows, row, q)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (r *RepositoryMemory[T]) FindBy(ctx context.Context, q query.ModelQuery[T]) ([]T, error) {
	found, err := r.find(r.snapshot(), q)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(found))
	for i, f := range found {
		out[i] = r.clone(f.row)
	}
	return out, nil
}

type indexedRow[T any] struct {
	index int
	row   T
}

// find evaluates q over rows, either a snapshot or the table itself under
// r.mu. The outermost attributes select, order and page the matches.
func (r *RepositoryMemory[T]) find(rows []T, q query.ModelQuery[T]) ([]indexedRow[T], error) {
	attrs := query.Outer(q)

	if attrs != nil && attrs.OrderBy == nil && attrs.Limit != nil && *attrs.Limit == 1 && attrs.Skip == 0 {
		for i, row := range rows {
			ok, err := r.match(rows, row, q)
			if err != nil {
				return nil, err
			}
			if ok {
				return []indexedRow[T]{{i, row}}, nil
			}
		}
		return nil, nil
	}

	var matches []indexedRow[T]
	for i, row := range rows {
		ok, err := r.match(rows, row, q)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, indexedRow[T]{i, row})
		}
	}
	if attrs == nil {
		return matches, nil
	}
	if attrs.OrderBy != nil && len(attrs.OrderBy.List) > 0 {
		sort.SliceStable(matches, func(i, j int) bool {
			return r.compareRows(matches[i].row, matches[j].row, attrs.OrderBy) < 0
		})
	}
	if attrs.Skip > 0 {
		if attrs.Skip >= int64(len(matches)) {
			matches = nil
		} else {
			matches = matches[attrs.Skip:]
		}
	}
	if attrs.Limit != nil && *attrs.Limit >= 0 && *attrs.Limit < len(matches) {
		matches = matches[:*attrs.Limit]
	}
	return matches, nil
}

// compareRows orders by the first key that differs. Null sorts first.
func (r *RepositoryMemory[T]) compareRows(a, b T, orderBy *query.OrderByDescriptor[T]) int {
	for _, o := range orderBy.List {
		va, vb := r.model.Get(a, o.Field.Info()), r.model.Get(b, o.Field.Info())
		c := 0
		switch {
		case isNull(va) && isNull(vb):
		case isNull(va):
			c = -1
		case isNull(vb):
			c = 1
		default:
			c, _ = compareValues(va, vb)
		}
		if c != 0 {
			if o.Ascending {
				return c
			}
			return -c
		}
	}
	return 0
}

func (r *RepositoryMemory[T]) value(row T, f query.Ref[T]) any {
	return r.model.Get(row, f.Info())
}

// truth is a SQL truth value. A comparison involving null is unknown, and
// a row matches only when its predicate is true.
type truth int8

const (
	falsy truth = iota
	truthy
	unknown
)

func truthOf(b bool) truth {
	if b {
		return truthy
	}
	return falsy
}

func (t truth) not() truth {
	switch t {
	case truthy:
		return falsy
	case falsy:
		return truthy
	}
	return unknown
}

// match reports whether row satisfies q. Subselects are evaluated over rows.
func (r *RepositoryMemory[T]) match(rows []T, row T, q query.ModelQuery[T]) (bool, error) {
	t, err := r.eval(rows, row, q)
	return t == truthy, err
}

func (r *RepositoryMemory[T]) eval(rows []T, row T, q query.ModelQuery[T]) (truth, error) {
	switch n := q.(type) {
	case *query.FieldIsNull[T]:
		return truthOf(isNull(r.value(row, n.Field))), nil
	case *query.FieldBinop[T]:
		return r.evalBinop(row, n)
	case *query.FieldWithin[T]:
		return r.within(row, n.Field, n.Values), nil
	case *query.FieldWithinComplex[T]:
		return r.within(row, n.Field, n.Values), nil
	case *query.FieldWithinSubselect[T]:
		sub, err := r.find(rows, n.Sub)
		if err != nil {
			return falsy, err
		}
		values := make([]any, len(sub))
		for i, s := range sub {
			values[i] = r.value(s.row, n.Field)
		}
		return r.within(row, n.Field, values), nil
	case *query.Unop[T]:
		if n.Op != "NOT" {
			return falsy, repoerr.Malformed(n)
		}
		t, err := r.eval(rows, row, n.Exp)
		return t.not(), err
	case *query.AndQuery[T]:
		left, err := r.eval(rows, row, n.Left)
		if err != nil || left == falsy {
			return falsy, err
		}
		right, err := r.eval(rows, row, n.Right)
		if err != nil || right == falsy {
			return falsy, err
		}
		if left == unknown || right == unknown {
			return unknown, nil
		}
		return truthy, nil
	case *query.OrQuery[T]:
		left, err := r.eval(rows, row, n.Left)
		if err != nil || left == truthy {
			return left, err
		}
		right, err := r.eval(rows, row, n.Right)
		if err != nil || right == truthy {
			return right, err
		}
		if left == unknown || right == unknown {
			return unknown, nil
		}
		return falsy, nil
	case *query.Attributed[T]:
		return r.eval(rows, row, n.Base)
	case *query.Decorated[T]:
		return r.eval(rows, row, n.Base)
	}
	return falsy, repoerr.Malformed(q)
}

func (r *RepositoryMemory[T]) evalBinop(row T, n *query.FieldBinop[T]) (truth, error) {
	v := r.value(row, n.Field)
	if n.Value == nil {
		switch n.Op {
		case query.OpEq:
			return truthOf(isNull(v)), nil
		case query.OpNeq:
			return truthOf(!isNull(v)), nil
		}
		return unknown, nil
	}
	if isNull(v) {
		return unknown, nil
	}
	switch n.Op {
	case query.OpEq:
		return truthOf(equalValues(v, n.Value)), nil
	case query.OpNeq:
		return truthOf(!equalValues(v, n.Value)), nil
	case query.OpLike:
		text, ok := textOf(v)
		pattern, pok := n.Value.(string)
		if !ok || !pok {
			return falsy, nil
		}
		return truthOf(strings.Contains(text, strings.Trim(pattern, "%"))), nil
	}
	c, ok := compareValues(v, n.Value)
	if !ok {
		return falsy, nil
	}
	switch n.Op {
	case query.OpGt:
		return truthOf(c > 0), nil
	case query.OpGte:
		return truthOf(c >= 0), nil
	case query.OpLt:
		return truthOf(c < 0), nil
	case query.OpLte:
		return truthOf(c <= 0), nil
	}
	return falsy, repoerr.Malformed(n)
}

// within is IN: true on an equal candidate, unknown for a null value or a
// null candidate, false otherwise.
func (r *RepositoryMemory[T]) within(row T, f query.Ref[T], values []any) truth {
	v := r.value(row, f)
	if len(values) == 0 {
		return falsy
	}
	if isNull(v) {
		return unknown
	}
	result := falsy
	for _, candidate := range values {
		if isNull(candidate) {
			result = unknown
			continue
		}
		if equalValues(v, candidate) {
			return truthy
		}
	}
	return result
}

// Insert stamps the autoincrement fields of t from their counters and
// appends it to the table.
func (r *RepositoryMemory[T]) Insert(ctx context.Context, t T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked()

	row := t
	for _, f := range r.model.AutoIncrementFields() {
		next := r.counters[f]
		v, err := counterValue(f, next)
		if err != nil {
			return t, err
		}
		stamped, err := r.model.With(row, f, v)
		if err != nil {
			return t, err
		}
		row = stamped.(T)
		r.counters[f] = next + 1
	}
	r.table = append(r.table, r.clone(row))
	return row, nil
}

func counterValue(f *schema.Field, n int) (any, error) {
	if types.IsIdType(f.Type) {
		v, err := types.IdFromString(f.Type, strconv.Itoa(n))
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}
	return n, nil
}

func (r *RepositoryMemory[T]) InsertMany(ctx context.Context, ts []T) (int, error) {
	for i, t := range ts {
		if _, err := r.Insert(ctx, t); err != nil {
			return i, err
		}
	}
	return len(ts), nil
}

// AtomicUpdate overwrites the set fields, then adds the increments, on every
// row matching where. Matching and writing happen under one lock.
func (r *RepositoryMemory[T]) AtomicUpdate(ctx context.Context, set, incr []query.Assignment[T], where query.ModelQuery[T]) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked()

	found, err := r.find(r.table, where)
	if err != nil {
		return 0, err
	}
	updated := make([]indexedRow[T], 0, len(found))
	for _, f := range found {
		row, err := r.assign(f.row, set, incr)
		if err != nil {
			return 0, err
		}
		updated = append(updated, indexedRow[T]{f.index, row})
	}
	for _, u := range updated {
		r.table[u.index] = u.row
	}
	return len(updated), nil
}

func (r *RepositoryMemory[T]) assign(row T, set, incr []query.Assignment[T]) (T, error) {
	var current any = row
	var err error
	for _, a := range set {
		if current, err = r.model.With(current, a.Field.Info(), a.Value); err != nil {
			return row, err
		}
	}
	for _, a := range incr {
		sum, err := increment(r.model.Get(current, a.Field.Info()), a.Value)
		if err != nil {
			return row, fmt.Errorf("field %s: %w", a.Field.Name(), err)
		}
		if current, err = r.model.With(current, a.Field.Info(), sum); err != nil {
			return row, err
		}
	}
	return current.(T), nil
}

// increment adds delta to an int, int32, int64 or float64 field value.
func increment(current, delta any) (any, error) {
	d := reflect.ValueOf(delta)
	if !isNumber(d) {
		return nil, fmt.Errorf("%w: increment by %T", repoerr.ErrUnsupportedIncrement, delta)
	}
	switch c := current.(type) {
	case int:
		return c + int(toFloatOrInt(d)), nil
	case int32:
		return c + int32(toFloatOrInt(d)), nil
	case int64:
		return c + toFloatOrInt(d), nil
	case float64:
		return c + toFloat(d), nil
	}
	return nil, fmt.Errorf("%w: %T", repoerr.ErrUnsupportedIncrement, current)
}

func toFloatOrInt(v reflect.Value) int64 {
	switch {
	case isFloat(v):
		return int64(v.Float())
	case isUnsigned(v):
		return int64(v.Uint())
	}
	return v.Int()
}

func (r *RepositoryMemory[T]) DeleteBy(ctx context.Context, q query.ModelQuery[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked()

	remove := make([]bool, len(r.table))
	for i, row := range r.table {
		ok, err := r.match(r.table, row, q)
		if err != nil {
			return err
		}
		remove[i] = ok
	}
	kept := make([]T, 0, len(r.table))
	for i, row := range r.table {
		if !remove[i] {
			kept = append(kept, row)
		}
	}
	r.table = kept
	return nil
}

// FindProjectionBy builds projection values from the fields the projection
// shares by name with T. Missing fields stay at their zero value.
func (r *RepositoryMemory[T]) FindProjectionBy(
	ctx context.Context,
	projection *schema.Model,
	where query.ModelQuery[T],
	limit *int,
	orderBy *query.OrderByDescriptor[T],
) ([]any, error) {
	found, err := r.find(r.snapshot(), query.Attribute(where, 0, limit, orderBy))
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(found))
	for _, f := range found {
		values := make([]any, len(projection.Fields))
		for i, pf := range projection.Fields {
			if src, ok := r.model.Field(pf.Name); ok {
				values[i] = r.model.Get(f.row, src)
			}
		}
		p, err := projection.Build(values)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
