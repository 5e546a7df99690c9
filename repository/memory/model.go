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

package memory

import (
	"context"

	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repository"
)

// ModelRepositoryMemory is a RepositoryMemory whose rows are identified by
// an identifier field.
type ModelRepositoryMemory[I comparable, T any] struct {
	*RepositoryMemory[T]
	idField query.Field[T, I]
}

var _ repository.ModelRepository[string, struct{ ID string }] = (*ModelRepositoryMemory[string, struct{ ID string }])(nil)

func NewModelRepositoryMemory[I comparable, T any](idField query.Field[T, I], opts ...Option[T]) *ModelRepositoryMemory[I, T] {
	return &ModelRepositoryMemory[I, T]{
		RepositoryMemory: NewRepositoryMemory(opts...),
		idField:          idField,
	}
}

func (r *ModelRepositoryMemory[I, T]) IDField() query.Field[T, I] { return r.idField }

func (r *ModelRepositoryMemory[I, T]) FindByID(ctx context.Context, id I) (*T, error) {
	return repository.FindByID(ctx, r, r.idField, id)
}

func (r *ModelRepositoryMemory[I, T]) FindByIDs(ctx context.Context, ids []I) ([]T, error) {
	return repository.FindByIDs(ctx, r, r.idField, ids)
}

// indexOf returns the position of the row with the identifier of t, or -1.
// The caller holds r.mu.
func (r *ModelRepositoryMemory[I, T]) indexOf(t T) int {
	id := r.model.Get(t, r.idField.Info())
	for i, row := range r.table {
		if equalValues(r.model.Get(row, r.idField.Info()), id) {
			return i
		}
	}
	return -1
}

// UpdateBy replaces the row with the identifier of t when q matches any
// row. Rows matched by q keep their own identifiers.
func (r *ModelRepositoryMemory[I, T]) UpdateBy(ctx context.Context, t T, q query.ModelQuery[T]) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked()

	found, err := r.find(r.table, q)
	if err != nil || len(found) == 0 {
		return t, err
	}
	if i := r.indexOf(t); i >= 0 {
		r.table[i] = r.clone(t)
	}
	return t, nil
}

// Update replaces the row with the identifier of t. It does nothing when no
// such row exists.
func (r *ModelRepositoryMemory[I, T]) Update(ctx context.Context, t T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked()
	if i := r.indexOf(t); i >= 0 {
		r.table[i] = r.clone(t)
	}
	return t, nil
}

// Upsert replaces the row with the identifier of t in place, or appends t.
func (r *ModelRepositoryMemory[I, T]) Upsert(ctx context.Context, t T) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked()
	if i := r.indexOf(t); i >= 0 {
		r.table[i] = r.clone(t)
	} else {
		r.table = append(r.table, r.clone(t))
	}
	return t, nil
}

func (r *ModelRepositoryMemory[I, T]) Delete(ctx context.Context, id I) error {
	return repository.Delete[I, T](ctx, r, id)
}

func (r *ModelRepositoryMemory[I, T]) UpdateMany(ctx context.Context, ts []T) error {
	for _, t := range ts {
		if _, err := r.Update(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *ModelRepositoryMemory[I, T]) UpdateManyBy(ctx context.Context, ts []T, where func(T) query.ModelQuery[T]) error {
	for _, t := range ts {
		if _, err := r.UpdateBy(ctx, t, where(t)); err != nil {
			return err
		}
	}
	return nil
}
