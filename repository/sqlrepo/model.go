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

package sqlrepo

import (
	"context"
	"fmt"

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repoerr"
	"github.com/tomoncle/modelrepo/repository"
	"github.com/tomoncle/modelrepo/schema"
	"github.com/tomoncle/modelrepo/sqlbuilder"
)

// ModelRepository is a Repository whose rows are identified by idField.
type ModelRepository[I comparable, T any] struct {
	*Repository[T]
	idField query.Field[T, I]
}

var _ repository.ModelRepository[string, struct{ ID string }] = (*ModelRepository[string, struct{ ID string }])(nil)

func NewModelRepository[I comparable, T any](exec database.Executor, table string, idField query.Field[T, I], opts ...Option) *ModelRepository[I, T] {
	return &ModelRepository[I, T]{
		Repository: NewRepository[T](exec, table, opts...),
		idField:    idField,
	}
}

func (r *ModelRepository[I, T]) IDField() query.Field[T, I] { return r.idField }

func (r *ModelRepository[I, T]) FindByID(ctx context.Context, id I) (*T, error) {
	return repository.FindByID(ctx, r, r.idField, id)
}

func (r *ModelRepository[I, T]) FindByIDs(ctx context.Context, ids []I) ([]T, error) {
	return repository.FindByIDs(ctx, r, r.idField, ids)
}

func (r *ModelRepository[I, T]) UpdateBy(ctx context.Context, t T, q query.ModelQuery[T]) (T, error) {
	_, err := r.updateBy(ctx, t, q)
	return t, err
}

func (r *ModelRepository[I, T]) updateBy(ctx context.Context, t T, q query.ModelQuery[T]) (int64, error) {
	ps, err := r.builder.UpdatePreparedSql(t, q)
	rs, err := r.prepared(ctx, "update", ps, err)
	if err != nil {
		return 0, err
	}
	return rs.RowsAffected, nil
}

func (r *ModelRepository[I, T]) Update(ctx context.Context, t T) (T, error) {
	return repository.Update[I, T](ctx, r, t)
}

// Upsert inserts t or replaces the row with its identifier. The statement
// form depends on the database: ON CONFLICT with RETURNING, ON DUPLICATE
// KEY, or an update by identifier followed by an insert when nothing matched.
func (r *ModelRepository[I, T]) Upsert(ctx context.Context, t T) (T, error) {
	switch {
	case r.opts.caps.OnConflict:
		ps, err := r.builder.UpsertPreparedSql(t, r.idField)
		rs, err := r.prepared(ctx, "upsert", ps, err)
		if err != nil {
			return t, err
		}
		if len(rs.Rows) == 0 {
			return t, nil
		}
		return r.splice(t, []*schema.Field{r.idField.Info()}, rs.Rows[0])
	case r.opts.caps.OnDuplicateKey:
		ps, err := r.builder.UpsertDuplicateKeyPreparedSql(t, r.idField)
		_, err = r.prepared(ctx, "upsert", ps, err)
		return t, err
	}

	result := t
	err := r.inTx(ctx, func(ctx context.Context) error {
		updated, err := r.updateBy(ctx, t, repository.ByID(r.idField, t))
		if err != nil {
			return err
		}
		switch {
		case updated == 0:
			result, err = r.Insert(ctx, t)
			return err
		case updated > 1:
			return fmt.Errorf("%w at %s that should be in field %s",
				repoerr.ErrUpsertCardinality, r.builder.Table(), r.idField.Name())
		}
		return nil
	})
	return result, err
}

func (r *ModelRepository[I, T]) Delete(ctx context.Context, id I) error {
	return repository.Delete[I, T](ctx, r, id)
}

func (r *ModelRepository[I, T]) UpdateMany(ctx context.Context, ts []T) error {
	return r.UpdateManyBy(ctx, ts, func(t T) query.ModelQuery[T] { return repository.ByID(r.idField, t) })
}

// UpdateManyBy sends literal UPDATE batches of the configured chunk size in
// one transaction.
func (r *ModelRepository[I, T]) UpdateManyBy(ctx context.Context, ts []T, where func(T) query.ModelQuery[T]) error {
	if len(ts) == 0 {
		return nil
	}
	return r.inTx(ctx, func(ctx context.Context) error {
		for _, chunk := range chunks(ts, r.opts.chunkSize) {
			updates := make([]sqlbuilder.Update[T], len(chunk))
			for i, t := range chunk {
				updates[i] = sqlbuilder.Update[T]{Entity: t, Where: where(t)}
			}
			sql, err := r.builder.UpdateManySql(updates)
			if _, err := r.literal(ctx, "update many", sql, err); err != nil {
				return err
			}
		}
		return nil
	})
}
