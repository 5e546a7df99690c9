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

// Package modelrepo exposes typed model repositories as services. The
// default Service runs over the global database of package database.
package modelrepo

import (
	"context"
	"errors"
	"sync"

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repository"
	"github.com/tomoncle/modelrepo/repository/sqlrepo"
	"github.com/tomoncle/modelrepo/types"
)

// ErrDatabaseNotInitialized is returned by services used before database.InitDB.
var ErrDatabaseNotInitialized = errors.New("database not initialized")

type Service[I comparable, T any] interface {
	// Get returns a single entity by its identifier, or nil.
	Get(ctx context.Context, id I) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]T, error)

	// List returns entities that match the provided query.
	List(ctx context.Context, q query.ModelQuery[T]) ([]T, error)

	// Count returns the number of entities that match the provided query.
	Count(ctx context.Context, q query.ModelQuery[T]) (int, error)

	// Page returns a paginated list of the entities matching where.
	Page(ctx context.Context, where query.ModelQuery[T], page *types.PageRequest, orderBy *query.OrderByDescriptor[T]) (*types.Pagination[T], error)

	// Save inserts a new entity and returns it with generated fields set.
	Save(ctx context.Context, model T) (T, error)

	// SaveAll inserts entities in chunks, within one transaction.
	SaveAll(ctx context.Context, models []T) (int, error)

	// SaveOrUpdate upserts an entity by its identifier.
	SaveOrUpdate(ctx context.Context, model T) (T, error)

	// Update modifies an existing entity.
	Update(ctx context.Context, model T) (T, error)

	// UpdateAll modifies existing entities in chunks, within one transaction.
	UpdateAll(ctx context.Context, models []T) error

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id I) error

	// Repository returns the repository behind the service.
	Repository(ctx context.Context) (repository.ModelRepository[I, T], error)
}

type baseServiceImpl[I comparable, T any] struct {
	mu      sync.Mutex
	repo    repository.ModelRepository[I, T]
	newRepo func() (repository.ModelRepository[I, T], error)
}

// NewService returns a default Service implementation using the SQL
// repository of table, backed by the global database connection. The
// repository is built on first use.
func NewService[I comparable, T any](table string, idField query.Field[T, I], opts ...sqlrepo.Option) Service[I, T] {
	return &baseServiceImpl[I, T]{newRepo: func() (repository.ModelRepository[I, T], error) {
		exec := database.GetExecutor()
		if exec == nil {
			return nil, ErrDatabaseNotInitialized
		}
		all := append([]sqlrepo.Option{sqlrepo.WithConfig(database.GetRepositoryConfig())}, opts...)
		return sqlrepo.NewModelRepository(exec, table, idField, all...), nil
	}}
}

// NewRepositoryService returns a Service over repo.
func NewRepositoryService[I comparable, T any](repo repository.ModelRepository[I, T]) Service[I, T] {
	return &baseServiceImpl[I, T]{repo: repo}
}

func (s *baseServiceImpl[I, T]) baseRepo(ctx context.Context) (repository.ModelRepository[I, T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil {
		repo, err := s.newRepo()
		if err != nil {
			return nil, err
		}
		s.repo = repo
	}
	if err := s.repo.Init(ctx); err != nil {
		return nil, err
	}
	return s.repo, nil
}

func (s *baseServiceImpl[I, T]) Repository(ctx context.Context) (repository.ModelRepository[I, T], error) {
	return s.baseRepo(ctx)
}

func (s *baseServiceImpl[I, T]) Get(ctx context.Context, id I) (*T, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.FindByID(ctx, id)
}

func (s *baseServiceImpl[I, T]) All(ctx context.Context) ([]T, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetAll(ctx)
}

func (s *baseServiceImpl[I, T]) List(ctx context.Context, q query.ModelQuery[T]) ([]T, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repo.FindBy(ctx, q)
}

func (s *baseServiceImpl[I, T]) Count(ctx context.Context, q query.ModelQuery[T]) (int, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, q)
}

func (s *baseServiceImpl[I, T]) Page(ctx context.Context, where query.ModelQuery[T], page *types.PageRequest, orderBy *query.OrderByDescriptor[T]) (*types.Pagination[T], error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return nil, err
	}
	return repository.Page(ctx, repo, where, page, orderBy)
}

func (s *baseServiceImpl[I, T]) Save(ctx context.Context, model T) (T, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return model, err
	}
	return repo.Insert(ctx, model)
}

func (s *baseServiceImpl[I, T]) SaveAll(ctx context.Context, models []T) (int, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return 0, err
	}
	return repo.InsertMany(ctx, models)
}

func (s *baseServiceImpl[I, T]) SaveOrUpdate(ctx context.Context, model T) (T, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return model, err
	}
	return repo.Upsert(ctx, model)
}

func (s *baseServiceImpl[I, T]) Update(ctx context.Context, model T) (T, error) {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return model, err
	}
	return repo.Update(ctx, model)
}

func (s *baseServiceImpl[I, T]) UpdateAll(ctx context.Context, models []T) error {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return err
	}
	return repo.UpdateMany(ctx, models)
}

func (s *baseServiceImpl[I, T]) Delete(ctx context.Context, id I) error {
	repo, err := s.baseRepo(ctx)
	if err != nil {
		return err
	}
	return repo.Delete(ctx, id)
}
