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
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repository"
	"github.com/tomoncle/modelrepo/repository/memory"
)

type Account struct {
	ID      string
	Owner   string
	Balance int
}

type AccountOwner struct {
	Owner string
}

var (
	accountID      = query.NewField[Account, string]("ID")
	accountOwner   = query.NewField[Account, string]("Owner")
	accountBalance = query.NewField[Account, int]("Balance")
)

func seededAccounts(t *testing.T) *memory.ModelRepositoryMemory[string, Account] {
	t.Helper()
	return memory.NewModelRepositoryMemory(accountID, memory.WithRows([]Account{
		{ID: "a1", Owner: "mike", Balance: 10},
		{ID: "a2", Owner: "mike", Balance: 30},
		{ID: "a3", Owner: "anna", Balance: 20},
	}))
}

// countingRepo counts the queries that reach the wrapped repository.
type countingRepo struct {
	*Decorator[string, Account]
	finds atomic.Int32
}

func (c *countingRepo) FindBy(ctx context.Context, q query.ModelQuery[Account]) ([]Account, error) {
	c.finds.Add(1)
	return c.Repo.FindBy(ctx, q)
}

func TestDecoratorForwards(t *testing.T) {
	ctx := context.Background()
	inner := seededAccounts(t)
	var d repository.ModelRepository[string, Account] = NewDecorator[string, Account](inner)

	require.NoError(t, d.Init(ctx))
	assert.Equal(t, accountID, d.IDField())

	all, err := d.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := d.Count(ctx, accountOwner.Eq("mike"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := d.FindByID(ctx, "a3")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "anna", found.Owner)

	byIDs, err := d.FindByIDs(ctx, []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 2)

	groups, err := d.GroupBy(ctx, []query.GroupBy[Account]{accountBalance.Sum()},
		[]query.Ref[Account]{accountOwner}, nil, accountOwner.Asc(), nil)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"anna", 20}, {"mike", 40}}, groups)

	owners, err := repository.FindProjection[AccountOwner](ctx, d, accountBalance.Gt(15), nil, accountOwner.Asc())
	require.NoError(t, err)
	assert.Equal(t, []AccountOwner{{Owner: "anna"}, {Owner: "mike"}}, owners)

	inserted, err := d.Insert(ctx, Account{ID: "a4", Owner: "zoe"})
	require.NoError(t, err)
	assert.Equal(t, "a4", inserted.ID)

	touched, err := d.AtomicUpdate(ctx, nil, []query.Assignment[Account]{accountBalance.Incr(5)}, accountOwner.Eq("zoe"))
	require.NoError(t, err)
	assert.Equal(t, 1, touched)

	_, err = d.Update(ctx, Account{ID: "a4", Owner: "zoe", Balance: 100})
	require.NoError(t, err)
	_, err = d.Upsert(ctx, Account{ID: "a5", Owner: "yan"})
	require.NoError(t, err)
	require.NoError(t, d.UpdateMany(ctx, []Account{{ID: "a5", Owner: "yan", Balance: 1}}))
	require.NoError(t, d.UpdateManyBy(ctx, []Account{{ID: "a5", Owner: "yan", Balance: 2}},
		func(a Account) query.ModelQuery[Account] { return accountID.Eq(a.ID) }))
	_, err = d.UpdateBy(ctx, Account{ID: "a4", Owner: "zoe", Balance: 7}, accountID.Eq("a4"))
	require.NoError(t, err)

	require.NoError(t, d.Delete(ctx, "a5"))
	require.NoError(t, d.DeleteBy(ctx, accountOwner.Eq("zoe")))

	n, err = inner.Count(ctx, accountBalance.Gte(0))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
