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

package modelrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repository/memory"
	"github.com/tomoncle/modelrepo/types"
)

type Book struct {
	ID     string
	Title  string
	Author string
	Pages  int
}

var (
	bookID     = query.NewField[Book, string]("id")
	bookAuthor = query.NewField[Book, string]("author")
	bookPages  = query.NewField[Book, int]("pages")
)

const createBook = `CREATE TABLE book (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT,
	pages INTEGER
)`

func books() []Book {
	return []Book{
		{ID: "b1", Title: "Dune", Author: "Herbert", Pages: 412},
		{ID: "b2", Title: "Emma", Author: "Austen", Pages: 474},
		{ID: "b3", Title: "Persuasion", Author: "Austen", Pages: 249},
		{ID: "b4", Title: "Ubik", Author: "Dick", Pages: 202},
	}
}

// exerciseService runs the same scenario against any backend.
func exerciseService(t *testing.T, s Service[string, Book]) {
	ctx := context.Background()

	n, err := s.SaveAll(ctx, books())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	saved, err := s.Save(ctx, Book{ID: "b5", Title: "Sense and Sensibility", Author: "Austen", Pages: 409})
	require.NoError(t, err)
	assert.Equal(t, "b5", saved.ID)

	book, err := s.Get(ctx, "b2")
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Equal(t, "Emma", book.Title)

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	austen, err := s.List(ctx, bookAuthor.Eq("Austen"))
	require.NoError(t, err)
	assert.Len(t, austen, 3)

	page, err := s.Page(ctx, bookAuthor.Eq("Austen"), types.NewPageRequest(1, 2), bookPages.Desc())
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "b2", page.Items[0].ID)
	assert.Equal(t, "b5", page.Items[1].ID)

	empty, err := s.Page(ctx, bookAuthor.Eq("Tolstoy"), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)

	_, err = s.Update(ctx, Book{ID: "b4", Title: "Ubik", Author: "Dick", Pages: 224})
	require.NoError(t, err)
	_, err = s.SaveOrUpdate(ctx, Book{ID: "b6", Title: "Valis", Author: "Dick", Pages: 271})
	require.NoError(t, err)
	require.NoError(t, s.UpdateAll(ctx, []Book{{ID: "b6", Title: "VALIS", Author: "Dick", Pages: 271}}))

	dick, err := s.List(ctx, query.Attribute(bookAuthor.Eq("Dick"), 0, nil, bookID.Asc()))
	require.NoError(t, err)
	assert.Equal(t, []Book{
		{ID: "b4", Title: "Ubik", Author: "Dick", Pages: 224},
		{ID: "b6", Title: "VALIS", Author: "Dick", Pages: 271},
	}, dick)

	require.NoError(t, s.Delete(ctx, "b1"))
	count, err := s.Count(ctx, bookPages.Gt(0))
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	repo, err := s.Repository(ctx)
	require.NoError(t, err)
	assert.Equal(t, bookID, repo.IDField())
}

func TestServiceBeforeInitDB(t *testing.T) {
	s := NewService[string, Book]("book", bookID)
	_, err := s.All(context.Background())
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
}

func TestServiceOverMemory(t *testing.T) {
	exerciseService(t, NewRepositoryService[string, Book](memory.NewModelRepositoryMemory(bookID)))
}

func TestServiceOverGlobalDatabase(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DSN = "file::memory:?cache=shared"
	cfg.ConnectionConfig.MaxOpenConns = 1
	cfg.ConnectionConfig.MaxIdleConns = 1
	cfg.RepositoryConfig.ChunkSize = 2

	db, err := database.InitDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })
	_, err = db.ExecContext(context.Background(), createBook)
	require.NoError(t, err)

	exerciseService(t, NewService[string, Book]("book", bookID))
}
