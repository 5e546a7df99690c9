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

package repository

import (
	"context"

	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/schema"
)

// QueryRepository defines the read operations over models of type T.
type QueryRepository[T any] interface {
	GetAll(ctx context.Context) ([]T, error)

	Count(ctx context.Context, q query.ModelQuery[T]) (int, error)

	// GroupBy returns one row per group: the groupBy values followed by the
	// aggregates, in that order. where, orderBy and limit are optional.
	GroupBy(
		ctx context.Context,
		selects []query.GroupBy[T],
		groupBy []query.Ref[T],
		where query.ModelQuery[T],
		orderBy *query.OrderByDescriptor[T],
		limit *int,
	) ([][]any, error)

	// FindBy returns the models matching q, honouring the skip, limit and
	// ordering of the outermost query.Attributed.
	FindBy(ctx context.Context, q query.ModelQuery[T]) ([]T, error)

	// FindProjectionBy returns values of the projection model built from the
	// fields it shares, by name, with T.
	FindProjectionBy(
		ctx context.Context,
		projection *schema.Model,
		where query.ModelQuery[T],
		limit *int,
		orderBy *query.OrderByDescriptor[T],
	) ([]any, error)
}

// WriteRepository defines the write operations over models of type T.
type WriteRepository[T any] interface {
	// Insert stores t and returns it as stored, with generated fields set.
	Insert(ctx context.Context, t T) (T, error)

	InsertMany(ctx context.Context, ts []T) (int, error)

	// AtomicUpdate applies the set assignments, then the increments, to every
	// row matching where and returns the number of rows touched.
	AtomicUpdate(ctx context.Context, set, incr []query.Assignment[T], where query.ModelQuery[T]) (int, error)

	DeleteBy(ctx context.Context, q query.ModelQuery[T]) error
}

// Repository is a table of models of type T.
type Repository[T any] interface {
	// Init prepares the repository. Calling it more than once has no further effect.
	Init(ctx context.Context) error

	QueryRepository[T]
	WriteRepository[T]
}

// ModelRepository is a Repository whose rows are identified by the field IDField.
type ModelRepository[I comparable, T any] interface {
	Repository[T]

	IDField() query.Field[T, I]

	FindByID(ctx context.Context, id I) (*T, error)

	FindByIDs(ctx context.Context, ids []I) ([]T, error)

	// UpdateBy replaces every column of the rows matching q with t.
	UpdateBy(ctx context.Context, t T, q query.ModelQuery[T]) (T, error)

	// Update replaces the row with the identifier of t.
	Update(ctx context.Context, t T) (T, error)

	// Upsert inserts t, or replaces the row with its identifier.
	Upsert(ctx context.Context, t T) (T, error)

	Delete(ctx context.Context, id I) error

	UpdateMany(ctx context.Context, ts []T) error

	// UpdateManyBy replaces, for every t, the rows matched by where(t).
	UpdateManyBy(ctx context.Context, ts []T, where func(T) query.ModelQuery[T]) error
}
