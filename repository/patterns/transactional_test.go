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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/modelrepo/query"
)

type txMarker struct{}

type fakeTx struct {
	begun, failed int
}

func (f *fakeTx) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.begun++
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		f.failed++
		return err
	}
	return nil
}

// txCheckingRepo fails every call made outside a transaction.
type txCheckingRepo struct {
	*Decorator[string, Account]
	outside []string
}

func (r *txCheckingRepo) check(ctx context.Context, op string) {
	if ctx.Value(txMarker{}) == nil {
		r.outside = append(r.outside, op)
	}
}

func (r *txCheckingRepo) Insert(ctx context.Context, t Account) (Account, error) {
	r.check(ctx, "insert")
	return r.Repo.Insert(ctx, t)
}

func (r *txCheckingRepo) FindBy(ctx context.Context, q query.ModelQuery[Account]) ([]Account, error) {
	r.check(ctx, "find")
	return r.Repo.FindBy(ctx, q)
}

func (r *txCheckingRepo) DeleteBy(ctx context.Context, q query.ModelQuery[Account]) error {
	r.check(ctx, "delete by")
	return r.Repo.DeleteBy(ctx, q)
}

func (r *txCheckingRepo) UpdateMany(ctx context.Context, ts []Account) error {
	r.check(ctx, "update many")
	return errors.New("update many failed")
}

func TestTransactionalWrapsWrites(t *testing.T) {
	ctx := context.Background()
	inner := &txCheckingRepo{Decorator: NewDecorator[string, Account](seededAccounts(t))}
	tx := &fakeTx{}
	repo := NewTransactionalModelRepository[string, Account](inner, tx)

	inserted, err := repo.Insert(ctx, Account{ID: "a4", Owner: "zoe", Balance: 3})
	require.NoError(t, err)
	assert.Equal(t, "a4", inserted.ID)

	require.NoError(t, repo.DeleteBy(ctx, accountOwner.Eq("zoe")))

	_, err = repo.AtomicUpdate(ctx, nil, []query.Assignment[Account]{accountBalance.Incr(1)}, accountOwner.Eq("mike"))
	require.NoError(t, err)
	_, err = repo.Update(ctx, Account{ID: "a1", Owner: "mike", Balance: 1})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, Account{ID: "a5", Owner: "yan"})
	require.NoError(t, err)
	_, err = repo.UpdateBy(ctx, Account{ID: "a5", Owner: "yan", Balance: 2}, accountID.Eq("a5"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateManyBy(ctx, []Account{{ID: "a5", Owner: "yan", Balance: 4}},
		func(a Account) query.ModelQuery[Account] { return accountID.Eq(a.ID) }))
	n, err := repo.InsertMany(ctx, []Account{{ID: "a6"}, {ID: "a7"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, repo.Delete(ctx, "a6"))

	rows, err := repo.FindBy(ctx, accountOwner.Eq("mike"))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	err = repo.UpdateMany(ctx, []Account{{ID: "a1"}})
	assert.EqualError(t, err, "update many failed")

	assert.Equal(t, 10, tx.begun)
	assert.Equal(t, 1, tx.failed)
	assert.Equal(t, []string{"find"}, inner.outside)
}
