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
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/modelrepo/cache"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repoerr"
)

func cachedByOwner(t *testing.T, c cache.Cache[[]Account], opts ...CachedOption) (*CachedModelRepository[string, Account], *countingRepo) {
	t.Helper()
	counting := &countingRepo{Decorator: NewDecorator[string, Account](seededAccounts(t))}
	return NewCachedModelRepository[string, Account](counting, c, accountOwner, opts...), counting
}

func ids(rows []Account) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestCachedFindByServesCacheFieldEquality(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache[[]Account]()
	repo, counting := cachedByOwner(t, mc)

	rows, err := repo.FindBy(ctx, accountOwner.Eq("mike"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids(rows))
	assert.Equal(t, int32(1), counting.finds.Load())
	assert.Equal(t, 1, mc.Len())

	rows, err = repo.FindBy(ctx, query.And(accountBalance.Gt(15), accountOwner.Eq("mike")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(rows))

	rows, err = repo.FindBy(ctx, query.Attribute(query.Decorate(accountOwner.Eq("mike")), 0, query.Limit(1), accountBalance.Desc()))
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(rows))
	assert.Equal(t, int32(1), counting.finds.Load())

	rows, err = repo.FindBy(ctx, query.Or(accountOwner.Eq("mike"), accountOwner.Eq("anna")))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, int32(2), counting.finds.Load())
}

func TestCachedInvalidatesOnWrites(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache[[]Account]()
	repo, counting := cachedByOwner(t, mc)
	mike := accountOwner.Eq("mike")
	anna := accountOwner.Eq("anna")

	_, err := repo.FindBy(ctx, mike)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, Account{ID: "a4", Owner: "mike", Balance: 1})
	require.NoError(t, err)
	rows, err := repo.FindBy(ctx, mike)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, int32(2), counting.finds.Load())

	_, err = repo.FindBy(ctx, anna)
	require.NoError(t, err)
	_, err = repo.Update(ctx, Account{ID: "a3", Owner: "mike", Balance: 20})
	require.NoError(t, err)
	rows, err = repo.FindBy(ctx, anna)
	require.NoError(t, err)
	assert.Empty(t, rows)
	rows, err = repo.FindBy(ctx, mike)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	require.NoError(t, repo.Delete(ctx, "a1"))
	rows, err = repo.FindBy(ctx, mike)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = repo.Upsert(ctx, Account{ID: "a9", Owner: "anna"})
	require.NoError(t, err)
	rows, err = repo.FindBy(ctx, anna)
	require.NoError(t, err)
	assert.Equal(t, []string{"a9"}, ids(rows))

	_, err = repo.AtomicUpdate(ctx, []query.Assignment[Account]{accountOwner.Set("anna")}, nil, accountID.Eq("a2"))
	require.NoError(t, err)
	assert.Zero(t, mc.Len())
	rows, err = repo.FindBy(ctx, anna)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a2", "a9"}, ids(rows))

	require.NoError(t, repo.DeleteBy(ctx, anna))
	assert.Zero(t, mc.Len())
}

func TestCachedDeleteMissing(t *testing.T) {
	repo, _ := cachedByOwner(t, cache.NewMemoryCache[[]Account]())
	err := repo.Delete(context.Background(), "nope")
	assert.True(t, repoerr.IsNotFound(err))
}

func TestCachedByID(t *testing.T) {
	ctx := context.Background()
	counting := &countingRepo{Decorator: NewDecorator[string, Account](seededAccounts(t))}
	repo := Cached[string, Account](counting, cache.NewMemoryCache[[]Account]())

	for i := 0; i < 3; i++ {
		found, err := repo.FindByID(ctx, "a2")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, 30, found.Balance)
	}
	assert.Equal(t, int32(1), counting.finds.Load())

	missing, err := repo.FindByID(ctx, "zz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCachedOverRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo, counting := cachedByOwner(t, cache.NewRedisCache[[]Account](client, "accounts:", 0))

	for i := 0; i < 2; i++ {
		rows, err := repo.FindBy(ctx, accountOwner.Eq("mike"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a1", "a2"}, ids(rows))
	}
	assert.Equal(t, int32(1), counting.finds.Load())
	assert.True(t, mr.Exists("accounts:mike"))

	_, err := repo.Insert(ctx, Account{ID: "a4", Owner: "mike"})
	require.NoError(t, err)
	assert.False(t, mr.Exists("accounts:mike"))
}

func TestCachedLocalMemo(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache[[]Account]()
	repo, counting := cachedByOwner(t, mc, WithLocalCache())

	_, err := repo.FindBy(ctx, accountOwner.Eq("anna"))
	require.NoError(t, err)
	require.NoError(t, mc.RemoveAll(ctx))

	rows, err := repo.FindBy(ctx, accountOwner.Eq("anna"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a3"}, ids(rows))
	assert.Equal(t, int32(1), counting.finds.Load())

	_, err = repo.Insert(ctx, Account{ID: "a4", Owner: "anna"})
	require.NoError(t, err)
	rows, err = repo.FindBy(ctx, accountOwner.Eq("anna"))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, int32(2), counting.finds.Load())
}

type brokenCache struct{}

var errBroken = errors.New("cache down")

func (brokenCache) Get(context.Context, string) ([]Account, bool, error) {
	return nil, false, errBroken
}

func (brokenCache) Put(context.Context, string, []Account) error { return errBroken }
func (brokenCache) Remove(context.Context, string) error         { return errBroken }
func (brokenCache) RemoveAll(context.Context) error              { return errBroken }

func TestCachedSurvivesCacheReadFailures(t *testing.T) {
	ctx := context.Background()
	repo, _ := cachedByOwner(t, brokenCache{})

	rows, err := repo.FindBy(ctx, accountOwner.Eq("mike"))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = repo.Insert(ctx, Account{ID: "a4", Owner: "mike"})
	assert.ErrorIs(t, err, errBroken)
}
