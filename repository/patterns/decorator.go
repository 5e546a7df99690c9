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

// Package patterns holds ModelRepository decorators. Each one forwards the
// whole contract to the wrapped repository and overrides only the methods
// it changes.
package patterns

import (
	"context"

	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repository"
	"github.com/tomoncle/modelrepo/schema"
)

// Decorator forwards every ModelRepository method to Repo. Decorators embed
// it and redefine what they intercept.
type Decorator[I comparable, T any] struct {
	Repo repository.ModelRepository[I, T]
}

var _ repository.ModelRepository[string, struct{}] = (*Decorator[string, struct{}])(nil)

func NewDecorator[I comparable, T any](repo repository.ModelRepository[I, T]) *Decorator[I, T] {
	return &Decorator[I, T]{Repo: repo}
}

func (d *Decorator[I, T]) Init(ctx context.Context) error { return d.Repo.Init(ctx) }

func (d *Decorator[I, T]) GetAll(ctx context.Context) ([]T, error) { return d.Repo.GetAll(ctx) }

func (d *Decorator[I, T]) Count(ctx context.Context, q query.ModelQuery[T]) (int, error) {
	return d.Repo.Count(ctx, q)
}

func (d *Decorator[I, T]) GroupBy(
	ctx context.Context,
	selects []query.GroupBy[T],
	groupBy []query.Ref[T],
	where query.ModelQuery[T],
	orderBy *query.OrderByDescriptor[T],
	limit *int,
) ([][]any, error) {
	return d.Repo.GroupBy(ctx, selects, groupBy, where, orderBy, limit)
}

func (d *Decorator[I, T]) FindBy(ctx context.Context, q query.ModelQuery[T]) ([]T, error) {
	return d.Repo.FindBy(ctx, q)
}

func (d *Decorator[I, T]) FindProjectionBy(
	ctx context.Context,
	projection *schema.Model,
	where query.ModelQuery[T],
	limit *int,
	orderBy *query.OrderByDescriptor[T],
) ([]any, error) {
	return d.Repo.FindProjectionBy(ctx, projection, where, limit, orderBy)
}

func (d *Decorator[I, T]) Insert(ctx context.Context, t T) (T, error) { return d.Repo.Insert(ctx, t) }

func (d *Decorator[I, T]) InsertMany(ctx context.Context, ts []T) (int, error) {
	return d.Repo.InsertMany(ctx, ts)
}

func (d *Decorator[I, T]) AtomicUpdate(ctx context.Context, set, incr []query.Assignment[T], where query.ModelQuery[T]) (int, error) {
	return d.Repo.AtomicUpdate(ctx, set, incr, where)
}

func (d *Decorator[I, T]) DeleteBy(ctx context.Context, q query.ModelQuery[T]) error {
	return d.Repo.DeleteBy(ctx, q)
}

func (d *Decorator[I, T]) IDField() query.Field[T, I] { return d.Repo.IDField() }

func (d *Decorator[I, T]) FindByID(ctx context.Context, id I) (*T, error) {
	return d.Repo.FindByID(ctx, id)
}

func (d *Decorator[I, T]) FindByIDs(ctx context.Context, ids []I) ([]T, error) {
	return d.Repo.FindByIDs(ctx, ids)
}

func (d *Decorator[I, T]) UpdateBy(ctx context.Context, t T, q query.ModelQuery[T]) (T, error) {
	return d.Repo.UpdateBy(ctx, t, q)
}

func (d *Decorator[I, T]) Update(ctx context.Context, t T) (T, error) { return d.Repo.Update(ctx, t) }

func (d *Decorator[I, T]) Upsert(ctx context.Context, t T) (T, error) { return d.Repo.Upsert(ctx, t) }

func (d *Decorator[I, T]) Delete(ctx context.Context, id I) error { return d.Repo.Delete(ctx, id) }

func (d *Decorator[I, T]) UpdateMany(ctx context.Context, ts []T) error {
	return d.Repo.UpdateMany(ctx, ts)
}

func (d *Decorator[I, T]) UpdateManyBy(ctx context.Context, ts []T, where func(T) query.ModelQuery[T]) error {
	return d.Repo.UpdateManyBy(ctx, ts, where)
}
