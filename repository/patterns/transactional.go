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

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repository"
)

// TransactionalModelRepository runs every write of the wrapped repository
// in its own transaction, or in the one already bound to the context.
type TransactionalModelRepository[I comparable, T any] struct {
	*Decorator[I, T]
	tx database.TxRunner
}

var _ repository.ModelRepository[string, struct{}] = (*TransactionalModelRepository[string, struct{}])(nil)

func NewTransactionalModelRepository[I comparable, T any](repo repository.ModelRepository[I, T], tx database.TxRunner) *TransactionalModelRepository[I, T] {
	return &TransactionalModelRepository[I, T]{Decorator: NewDecorator(repo), tx: tx}
}

func inTx[R any](ctx context.Context, tx database.TxRunner, fn func(ctx context.Context) (R, error)) (R, error) {
	var out R
	err := tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (r *TransactionalModelRepository[I, T]) Insert(ctx context.Context, t T) (T, error) {
	return inTx(ctx, r.tx, func(ctx context.Context) (T, error) { return r.Repo.Insert(ctx, t) })
}

func (r *TransactionalModelRepository[I, T]) InsertMany(ctx context.Context, ts []T) (int, error) {
	return inTx(ctx, r.tx, func(ctx context.Context) (int, error) { return r.Repo.InsertMany(ctx, ts) })
}

func (r *TransactionalModelRepository[I, T]) AtomicUpdate(ctx context.Context, set, incr []query.Assignment[T], where query.ModelQuery[T]) (int, error) {
	return inTx(ctx, r.tx, func(ctx context.Context) (int, error) { return r.Repo.AtomicUpdate(ctx, set, incr, where) })
}

func (r *TransactionalModelRepository[I, T]) DeleteBy(ctx context.Context, q query.ModelQuery[T]) error {
	return r.tx.InTransaction(ctx, func(ctx context.Context) error { return r.Repo.DeleteBy(ctx, q) })
}

func (r *TransactionalModelRepository[I, T]) UpdateBy(ctx context.Context, t T, q query.ModelQuery[T]) (T, error) {
	return inTx(ctx, r.tx, func(ctx context.Context) (T, error) { return r.Repo.UpdateBy(ctx, t, q) })
}

func (r *TransactionalModelRepository[I, T]) Update(ctx context.Context, t T) (T, error) {
	return inTx(ctx, r.tx, func(ctx context.Context) (T, error) { return r.Repo.Update(ctx, t) })
}

func (r *TransactionalModelRepository[I, T]) Upsert(ctx context.Context, t T) (T, error) {
	return inTx(ctx, r.tx, func(ctx context.Context) (T, error) { return r.Repo.Upsert(ctx, t) })
}

func (r *TransactionalModelRepository[I, T]) Delete(ctx context.Context, id I) error {
	return r.tx.InTransaction(ctx, func(ctx context.Context) error { return r.Repo.Delete(ctx, id) })
}

func (r *TransactionalModelRepository[I, T]) UpdateMany(ctx context.Context, ts []T) error {
	return r.tx.InTransaction(ctx, func(ctx context.Context) error { return r.Repo.UpdateMany(ctx, ts) })
}

func (r *TransactionalModelRepository[I, T]) UpdateManyBy(ctx context.Context, ts []T, where func(T) query.ModelQuery[T]) error {
	return r.tx.InTransaction(ctx, func(ctx context.Context) error { return r.Repo.UpdateManyBy(ctx, ts, where) })
}
