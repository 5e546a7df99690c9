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

package patterns

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tomoncle/modelrepo/cache"
	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repoerr"
	"github.com/tomoncle/modelrepo/repository"
	"github.com/tomoncle/modelrepo/repository/memory"
	"github.com/tomoncle/modelrepo/types"
)

type cachedOptions struct {
	local  bool
	logger database.Logger
}

type CachedOption func(*cachedOptions)

// WithLocalCache puts an in-process memo in front of the cache. Concurrent
// misses on one key then load it once.
func WithLocalCache() CachedOption {
	return func(o *cachedOptions) { o.local = true }
}

func WithCacheLogger(logger database.Logger) CachedOption {
	return func(o *cachedOptions) { o.logger = logger }
}

// CachedModelRepository is a read-through cache over a ModelRepository.
// Cache entries hold every row sharing one value of the cache field, keyed
// by that value as a string. FindBy serves queries that pin the cache field
// with an equality; everything else goes to the wrapped repository.
type CachedModelRepository[I comparable, T any] struct {
	*Decorator[I, T]

	cache      cache.Cache[[]T]
	cacheField query.Ref[T]
	local      *cache.InmemoryCache[string, []T]
	logger     database.Logger
}

var _ repository.ModelRepository[string, struct{}] = (*CachedModelRepository[string, struct{}])(nil)

func NewCachedModelRepository[I comparable, T any](
	repo repository.ModelRepository[I, T],
	c cache.Cache[[]T],
	cacheField query.Ref[T],
	opts ...CachedOption,
) *CachedModelRepository[I, T] {
	o := cachedOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	r := &CachedModelRepository[I, T]{
		Decorator:  NewDecorator(repo),
		cache:      c,
		cacheField: cacheField,
		logger:     o.logger,
	}
	if o.local {
		r.local = cache.NewInmemoryCache[string, []T]()
	}
	return r
}

// Cached caches repo by its identifier field.
func Cached[I comparable, T any](repo repository.ModelRepository[I, T], c cache.Cache[[]T], opts ...CachedOption) *CachedModelRepository[I, T] {
	return NewCachedModelRepository(repo, c, query.Ref[T](repo.IDField()), opts...)
}

// cacheKey renders a cache field value the same way for queries and rows.
func cacheKey(v any) string {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "<nil>"
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return "<nil>"
	}
	switch x := rv.Interface().(type) {
	case types.Id:
		return x.ID()
	case types.BaseEnum:
		return x.Name()
	default:
		return fmt.Sprint(x)
	}
}

func (r *CachedModelRepository[I, T]) keyOf(t T) string {
	return cacheKey(r.cacheField.Model().Get(t, r.cacheField.Info()))
}

// cacheQuery finds an equality on the cache field that constrains the whole
// of q: q itself, one side of an And, or the base of a wrapper.
func (r *CachedModelRepository[I, T]) cacheQuery(q query.ModelQuery[T]) *query.FieldBinop[T] {
	switch n := q.(type) {
	case *query.FieldBinop[T]:
		if n.Op == query.OpEq && n.Value != nil && n.Field.Info() == r.cacheField.Info() {
			return n
		}
	case *query.AndQuery[T]:
		if eq := r.cacheQuery(n.Left); eq != nil {
			return eq
		}
		return r.cacheQuery(n.Right)
	case *query.Attributed[T]:
		return r.cacheQuery(n.Base)
	case *query.Decorated[T]:
		return r.cacheQuery(n.Base)
	}
	return nil
}

func (r *CachedModelRepository[I, T]) FindBy(ctx context.Context, q query.ModelQuery[T]) ([]T, error) {
	eq := r.cacheQuery(q)
	if eq == nil {
		return r.Repo.FindBy(ctx, q)
	}
	key := cacheKey(eq.Value)
	load := func(ctx context.Context) ([]T, error) { return r.subset(ctx, key, eq.Value) }
	var (
		rows []T
		err  error
	)
	if r.local != nil {
		rows, err = r.local.Get(ctx, key, load)
	} else {
		rows, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	sub := memory.NewModelRepositoryMemory(r.IDField(),
		memory.WithRows(rows),
		memory.WithCloneFunc(func(t T) T { return t }),
		memory.WithLogger[T](r.logger))
	return sub.FindBy(ctx, q)
}

// subset returns every row whose cache field equals value, from the cache
// or else from the wrapped repository. Cache failures are logged and the
// repository answers instead.
func (r *CachedModelRepository[I, T]) subset(ctx context.Context, key string, value any) ([]T, error) {
	rows, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if ok {
		return rows, nil
	}
	rows, err = r.Repo.FindBy(ctx, &query.FieldBinop[T]{Field: r.cacheField, Op: query.OpEq, Value: value})
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(ctx, key, rows); err != nil {
		r.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return rows, nil
}

func (r *CachedModelRepository[I, T]) FindByID(ctx context.Context, id I) (*T, error) {
	return repository.FindByID[I, T](ctx, r, r.IDField(), id)
}

func (r *CachedModelRepository[I, T]) invalidate(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if r.local != nil {
			r.local.Invalidate(key)
		}
		if err := r.cache.Remove(ctx, key); err != nil {
			return fmt.Errorf("invalidate cache key %s: %w", key, err)
		}
	}
	return nil
}

func (r *CachedModelRepository[I, T]) invalidateAll(ctx context.Context) error {
	if r.local != nil {
		r.local.InvalidateAll()
	}
	if err := r.cache.RemoveAll(ctx); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

// invalidateStored drops the keys of ts and of the stored rows sharing
// their identifiers, which may hold another cache field value.
func (r *CachedModelRepository[I, T]) invalidateStored(ctx context.Context, ts ...T) error {
	keys := make([]string, 0, 2*len(ts))
	ids := make([]I, 0, len(ts))
	for _, t := range ts {
		keys = append(keys, r.keyOf(t))
		ids = append(ids, r.IDField().Get(t))
	}
	stored, err := r.Repo.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, t := range stored {
		keys = append(keys, r.keyOf(t))
	}
	return r.invalidate(ctx, keys...)
}

func (r *CachedModelRepository[I, T]) Insert(ctx context.Context, t T) (T, error) {
	if err := r.invalidate(ctx, r.keyOf(t)); err != nil {
		return t, err
	}
	return r.Repo.Insert(ctx, t)
}

func (r *CachedModelRepository[I, T]) InsertMany(ctx context.Context, ts []T) (int, error) {
	keys := make([]string, len(ts))
	for i, t := range ts {
		keys[i] = r.keyOf(t)
	}
	if err := r.invalidate(ctx, keys...); err != nil {
		return 0, err
	}
	return r.Repo.InsertMany(ctx, ts)
}

func (r *CachedModelRepository[I, T]) Update(ctx context.Context, t T) (T, error) {
	if err := r.invalidateStored(ctx, t); err != nil {
		return t, err
	}
	return r.Repo.Update(ctx, t)
}

func (r *CachedModelRepository[I, T]) Upsert(ctx context.Context, t T) (T, error) {
	if err := r.invalidateStored(ctx, t); err != nil {
		return t, err
	}
	return r.Repo.Upsert(ctx, t)
}

func (r *CachedModelRepository[I, T]) UpdateMany(ctx context.Context, ts []T) error {
	if err := r.invalidateStored(ctx, ts...); err != nil {
		return err
	}
	return r.Repo.UpdateMany(ctx, ts)
}

// Delete fails with repoerr.ErrNotFound when no row has the identifier id.
func (r *CachedModelRepository[I, T]) Delete(ctx context.Context, id I) error {
	t, err := r.Repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return repoerr.NotFound(r.IDField().Model().Name, id)
	}
	if err := r.invalidate(ctx, r.keyOf(*t)); err != nil {
		return err
	}
	return r.Repo.Delete(ctx, id)
}

func (r *CachedModelRepository[I, T]) UpdateBy(ctx context.Context, t T, q query.ModelQuery[T]) (T, error) {
	if err := r.invalidateAll(ctx); err != nil {
		return t, err
	}
	return r.Repo.UpdateBy(ctx, t, q)
}

func (r *CachedModelRepository[I, T]) UpdateManyBy(ctx context.Context, ts []T, where func(T) query.ModelQuery[T]) error {
	if err := r.invalidateAll(ctx); err != nil {
		return err
	}
	return r.Repo.UpdateManyBy(ctx, ts, where)
}

func (r *CachedModelRepository[I, T]) AtomicUpdate(ctx context.Context, set, incr []query.Assignment[T], where query.ModelQuery[T]) (int, error) {
	if err := r.invalidateAll(ctx); err != nil {
		return 0, err
	}
	return r.Repo.AtomicUpdate(ctx, set, incr, where)
}

func (r *CachedModelRepository[I, T]) DeleteBy(ctx context.Context, q query.ModelQuery[T]) error {
	if err := r.invalidateAll(ctx); err != nil {
		return err
	}
	return r.Repo.DeleteBy(ctx, q)
}
