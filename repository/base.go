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
	"fmt"

	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repoerr"
	"github.com/tomoncle/modelrepo/schema"
	"github.com/tomoncle/modelrepo/types"
)

// FindWith wraps q with paging and ordering and finds the matching models.
func FindWith[T any](
	ctx context.Context,
	r QueryRepository[T],
	q query.ModelQuery[T],
	skip int64,
	limit *int,
	orderBy *query.OrderByDescriptor[T],
) ([]T, error) {
	return r.FindBy(ctx, query.Attribute(q, skip, limit, orderBy))
}

// FindOneBy returns the first model matching q, or nil. Ordering and skip
// carried by q are kept.
func FindOneBy[T any](ctx context.Context, r QueryRepository[T], q query.ModelQuery[T]) (*T, error) {
	limited := query.Attribute(q, 0, query.Limit(1), nil)
	if attrs := query.Outer(q); attrs != nil {
		limited = query.Attribute(attrs.Base, attrs.Skip, query.Limit(1), attrs.OrderBy)
	}
	rows, err := r.FindBy(ctx, limited)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// FindByID returns the model whose idField equals id, or nil.
func FindByID[I comparable, T any](ctx context.Context, r QueryRepository[T], idField query.Field[T, I], id I) (*T, error) {
	return FindOneBy(ctx, r, idField.Eq(id))
}

// FindByIDs returns the models whose idField is one of ids.
func FindByIDs[I comparable, T any](ctx context.Context, r QueryRepository[T], idField query.Field[T, I], ids []I) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	return r.FindBy(ctx, idField.Within(ids...))
}

// ByID is the predicate selecting the row of t.
func ByID[I comparable, T any](idField query.Field[T, I], t T) query.ModelQuery[T] {
	return idField.Eq(idField.Get(t))
}

// Update replaces the row with the identifier of t.
func Update[I comparable, T any](ctx context.Context, r ModelRepository[I, T], t T) (T, error) {
	return r.UpdateBy(ctx, t, ByID(r.IDField(), t))
}

// Delete removes the row identified by id.
func Delete[I comparable, T any](ctx context.Context, r ModelRepository[I, T], id I) error {
	return r.DeleteBy(ctx, r.IDField().Eq(id))
}

// UpdateEach applies updater to every model matching q and stores the results.
func UpdateEach[I comparable, T any](ctx context.Context, r ModelRepository[I, T], q query.ModelQuery[T], updater func(T) T) ([]T, error) {
	rows, err := r.FindBy(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		updated, err := r.Update(ctx, updater(row))
		if err != nil {
			return out, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// UpdateOne applies updater to the first model matching q and stores it.
// It fails with repoerr.ErrNotFound when nothing matches.
func UpdateOne[I comparable, T any](ctx context.Context, r ModelRepository[I, T], q query.ModelQuery[T], updater func(T) T) (T, error) {
	row, err := FindOneBy(ctx, r, q)
	if err != nil {
		var zero T
		return zero, err
	}
	if row == nil {
		var zero T
		return zero, repoerr.NotFound(schema.Describe[T]().Name, "matching query")
	}
	return r.Update(ctx, updater(*row))
}

// FindProjection returns the fields of the models matching where as values of P.
func FindProjection[P any, T any](
	ctx context.Context,
	r QueryRepository[T],
	where query.ModelQuery[T],
	limit *int,
	orderBy *query.OrderByDescriptor[T],
) ([]P, error) {
	rows, err := r.FindProjectionBy(ctx, schema.Describe[P](), where, limit, orderBy)
	if err != nil {
		return nil, err
	}
	out := make([]P, len(rows))
	for i, row := range rows {
		p, ok := row.(P)
		if !ok {
			return nil, fmt.Errorf("projection row %d is %T, not the requested type", i, row)
		}
		out[i] = p
	}
	return out, nil
}

// Page counts the models matching where and loads the requested page of them.
func Page[T any](
	ctx context.Context,
	r QueryRepository[T],
	where query.ModelQuery[T],
	page *types.PageRequest,
	orderBy *query.OrderByDescriptor[T],
) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewPageRequest(1, 10)
	}
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := r.Count(ctx, where)
	if err != nil || total == 0 {
		return pagination, err
	}
	items, err := FindWith(ctx, r, where, page.GetOffset(), query.Limit(page.GetPageSize()), orderBy)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}
