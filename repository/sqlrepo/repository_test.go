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
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repoerr"
	"github.com/tomoncle/modelrepo/repository"
)

type User struct {
	Name    string
	Age     int
	Married bool
}

var (
	userName = query.NewField[User, string]("name")
	userAge  = query.NewField[User, int]("age")
)

type UserName struct {
	Name string
}

type UserId string

func (u UserId) ID() string { return string(u) }

type Counter struct {
	ID   UserId `repo:"id,autoincrement"`
	Name string
	Age  int
}

var (
	counterID   = query.NewField[Counter, UserId]("id")
	counterName = query.NewField[Counter, string]("name")
)

type call struct {
	sql      string
	values   []any
	prepared bool
	inTx     bool
}

type txMarker struct{}

// fakeExecutor records every statement and answers with respond.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []call
	caps    database.Capabilities
	respond func(sql string, values []any) (*database.ResultSet, error)

	txs, commits, rollbacks int
}

func (e *fakeExecutor) record(ctx context.Context, sql string, values []any, prepared bool) (*database.ResultSet, error) {
	e.mu.Lock()
	e.calls = append(e.calls, call{sql: sql, values: values, prepared: prepared, inTx: ctx.Value(txMarker{}) != nil})
	e.mu.Unlock()
	if e.respond != nil {
		return e.respond(sql, values)
	}
	return &database.ResultSet{}, nil
}

func (e *fakeExecutor) Execute(ctx context.Context, sql string) (*database.ResultSet, error) {
	return e.record(ctx, sql, nil, false)
}

func (e *fakeExecutor) ExecutePrepared(ctx context.Context, sql string, values []any) (*database.ResultSet, error) {
	return e.record(ctx, sql, values, true)
}

func (e *fakeExecutor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	e.txs++
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		e.rollbacks++
		return err
	}
	e.commits++
	return nil
}

func (e *fakeExecutor) Capabilities() database.Capabilities { return e.caps }

func (e *fakeExecutor) statements() []string {
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.sql
	}
	return out
}

var noSchemaCheck = WithConfig(database.RepositoryConfig{ChunkSize: 100})

func TestInitChecksSchemaOnce(t *testing.T) {
	ctx := context.Background()
	fail := true
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		if strings.HasSuffix(sql, "LIMIT 1") && fail {
			return nil, errors.New("no such table: user")
		}
		return &database.ResultSet{Rows: [][]any{{int64(0)}}}, nil
	}}
	r := NewRepository[User](exec, "user", WithConfig(database.RepositoryConfig{CheckSchemaOnInit: true}))

	err := r.Init(ctx)
	var qe *repoerr.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "no_table", qe.Kind)

	fail = false
	require.NoError(t, r.Init(ctx))
	_, err = r.Count(ctx, userAge.Gt(1))
	require.NoError(t, err)
	require.NoError(t, r.Init(ctx))

	assert.Equal(t, []string{
		"SELECT name, age, married FROM user LIMIT 1",
		"SELECT name, age, married FROM user LIMIT 1",
		"SELECT COUNT(*) FROM user WHERE age > ?",
	}, exec.statements())
}

func TestFindByMapsRows(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		return &database.ResultSet{Rows: [][]any{
			{"Mike", int64(30), true},
			{[]byte("Anna"), int64(25), int64(0)},
		}}, nil
	}}
	r := NewRepository[User](exec, "user", noSchemaCheck)

	users, err := repository.FindWith(ctx, r, userAge.Gte(18), 0, query.Limit(10), userName.Asc())
	require.NoError(t, err)
	assert.Equal(t, []User{{"Mike", 30, true}, {"Anna", 25, false}}, users)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "SELECT name, age, married FROM user WHERE age >= ? ORDER BY name ASC LIMIT 10", exec.calls[0].sql)
	assert.Equal(t, []any{18}, exec.calls[0].values)
}

func TestFindByReportsMappingErrors(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		return &database.ResultSet{Rows: [][]any{{"Mike", int64(30)}}}, nil
	}}
	r := NewRepository[User](exec, "user", noSchemaCheck)

	_, err := r.GetAll(ctx)
	assert.True(t, errors.Is(err, repoerr.ErrMapping))
}

func TestCountParsesFirstCell(t *testing.T) {
	ctx := context.Background()
	for _, cell := range []any{int64(3), []byte("3"), "3", 3} {
		exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
			return &database.ResultSet{Rows: [][]any{{cell}}}, nil
		}}
		n, err := NewRepository[User](exec, "user", noSchemaCheck).Count(ctx, userName.Eq("Mike"))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	}

	empty := &fakeExecutor{}
	n, err := NewRepository[User](empty, "user", noSchemaCheck).Count(ctx, userName.Eq("Mike"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestQueryErrorsAreClassified(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		return nil, &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
	}}
	r := NewRepository[User](exec, "user", noSchemaCheck)

	_, err := r.Insert(ctx, User{Name: "Mike"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repoerr.ErrQuery))

	var qe *repoerr.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "insert", qe.Op)
	assert.Equal(t, "duplicate_key", qe.Kind)
	assert.Equal(t, "INSERT INTO user (name, age, married) VALUES (?, ?, ?)", qe.SQL)
	assert.Equal(t, []any{"Mike", 0, false}, qe.Values)
}

func TestInsertReturningSplicesGeneratedId(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{
		caps: database.Capabilities{Returning: true},
		respond: func(sql string, values []any) (*database.ResultSet, error) {
			return &database.ResultSet{Rows: [][]any{{int64(7)}}}, nil
		},
	}
	r := NewModelRepository(exec, "counter", counterID, noSchemaCheck)

	c, err := r.Insert(ctx, Counter{ID: "-1", Name: "Mike", Age: 3})
	require.NoError(t, err)
	assert.Equal(t, UserId("7"), c.ID)
	assert.Equal(t, "INSERT INTO counter (name, age) VALUES (?, ?) RETURNING id", exec.calls[0].sql)

	plain := &fakeExecutor{}
	c, err = NewModelRepository(plain, "counter", counterID, noSchemaCheck).Insert(ctx, Counter{ID: "-1", Name: "Mike"})
	require.NoError(t, err)
	assert.Equal(t, UserId("-1"), c.ID)
	assert.Equal(t, "INSERT INTO counter (name, age) VALUES (?, ?)", plain.calls[0].sql)
}

func TestInsertManyIsChunkedInOneTransaction(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		return &database.ResultSet{RowsAffected: int64(strings.Count(sql, "(")) - 1}, nil
	}}
	r := NewRepository[User](exec, "user", WithConfig(database.RepositoryConfig{ChunkSize: 2}))

	users := []User{{"a", 1, false}, {"b", 2, false}, {"c", 3, true}, {"d", 4, false}, {"e", 5, false}}
	n, err := r.InsertMany(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, 1, exec.txs)
	assert.Equal(t, 1, exec.commits)
	assert.Equal(t, []string{
		"INSERT INTO user (name, age, married) VALUES ('a', 1, false), ('b', 2, false)",
		"INSERT INTO user (name, age, married) VALUES ('c', 3, true), ('d', 4, false)",
		"INSERT INTO user (name, age, married) VALUES ('e', 5, false)",
	}, exec.statements())
	for _, c := range exec.calls {
		assert.True(t, c.inTx)
		assert.False(t, c.prepared)
	}

	n, err = r.InsertMany(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, exec.txs)
}

func TestInsertManyRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	calls := 0
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("UNIQUE constraint failed: user.name")
		}
		return &database.ResultSet{RowsAffected: 1}, nil
	}}
	r := NewRepository[User](exec, "user", WithConfig(database.RepositoryConfig{ChunkSize: 1}))

	_, err := r.InsertMany(ctx, []User{{Name: "a"}, {Name: "a"}, {Name: "b"}})
	var qe *repoerr.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "duplicate_key", qe.Kind)
	assert.Equal(t, 1, exec.rollbacks)
	assert.Len(t, exec.calls, 2)
}

func TestUpsertFallback(t *testing.T) {
	ctx := context.Background()
	affected := int64(0)
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		if strings.HasPrefix(sql, "UPDATE") {
			return &database.ResultSet{RowsAffected: affected}, nil
		}
		return &database.ResultSet{RowsAffected: 1}, nil
	}}
	r := NewModelRepository(exec, "counter", counterID, noSchemaCheck)

	_, err := r.Upsert(ctx, Counter{ID: "1", Name: "Mike"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"UPDATE counter SET id = ?, name = ?, age = ? WHERE id = ?",
		"INSERT INTO counter (name, age) VALUES (?, ?)",
	}, exec.statements())

	exec.calls = nil
	affected = 1
	_, err = r.Upsert(ctx, Counter{ID: "1", Name: "Mike"})
	require.NoError(t, err)
	assert.Len(t, exec.calls, 1)

	affected = 2
	_, err = r.Upsert(ctx, Counter{ID: "1", Name: "Mike"})
	assert.True(t, errors.Is(err, repoerr.ErrUpsertCardinality))
	assert.Equal(t, 1, exec.rollbacks)
}

func TestUpsertOnConflict(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{
		caps: database.Capabilities{OnConflict: true, Returning: true},
		respond: func(sql string, values []any) (*database.ResultSet, error) {
			return &database.ResultSet{Rows: [][]any{{"42"}}}, nil
		},
	}
	r := NewModelRepository(exec, "user_names", query.NewField[UserName, string]("name"), noSchemaCheck)

	u, err := r.Upsert(ctx, UserName{Name: "Mike"})
	require.NoError(t, err)
	assert.Equal(t, "42", u.Name)
	assert.Equal(t, "INSERT INTO user_names (name)\nVALUES (?)\nON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name\nRETURNING name",
		exec.calls[0].sql)
}

func TestUpsertOnDuplicateKey(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{caps: database.Capabilities{OnDuplicateKey: true}}
	r := NewModelRepository(exec, "user_names", query.NewField[UserName, string]("name"), noSchemaCheck)

	_, err := r.Upsert(ctx, UserName{Name: "Mike"})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO user_names (name) VALUES (?) ON DUPLICATE KEY UPDATE name = VALUES(name)", exec.calls[0].sql)
	assert.Equal(t, []any{"Mike"}, exec.calls[0].values)
}

func TestUpdateManyIsChunked(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	r := NewModelRepository(exec, "counter", counterID, WithConfig(database.RepositoryConfig{ChunkSize: 2}))

	err := r.UpdateMany(ctx, []Counter{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"UPDATE counter SET id = '1', name = 'a', age = 0 WHERE id = '1'; UPDATE counter SET id = '2', name = 'b', age = 0 WHERE id = '2';",
		"UPDATE counter SET id = '3', name = 'c', age = 0 WHERE id = '3';",
	}, exec.statements())
	assert.Equal(t, 1, exec.commits)

	exec.calls = nil
	err = r.UpdateManyBy(ctx, []Counter{{ID: "9", Name: "z"}}, func(c Counter) query.ModelQuery[Counter] {
		return counterName.Eq(c.Name)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"UPDATE counter SET id = '9', name = 'z', age = 0 WHERE name = 'z';"}, exec.statements())

	require.NoError(t, r.UpdateMany(ctx, nil))
	assert.Equal(t, 2, exec.txs)
}

func TestWritesWithoutTxRunner(t *testing.T) {
	ctx := context.Background()
	var recorded []string
	exec := executorFunc(func(sql string) { recorded = append(recorded, sql) })
	r := NewRepository[User](exec, "user", noSchemaCheck)

	n, err := r.InsertMany(ctx, []User{{Name: "a"}})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, recorded, 1)
}

type executorFunc func(sql string)

func (f executorFunc) Execute(_ context.Context, sql string) (*database.ResultSet, error) {
	f(sql)
	return &database.ResultSet{}, nil
}

func (f executorFunc) ExecutePrepared(_ context.Context, sql string, _ []any) (*database.ResultSet, error) {
	f(sql)
	return &database.ResultSet{}, nil
}

func TestAtomicUpdateDeleteAndGroupBy(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		switch {
		case strings.HasPrefix(sql, "UPDATE"):
			return &database.ResultSet{RowsAffected: 2}, nil
		case strings.Contains(sql, "GROUP BY"):
			return &database.ResultSet{Rows: [][]any{{"Mike", int64(2)}}}, nil
		}
		return &database.ResultSet{}, nil
	}}
	r := NewRepository[User](exec, "user", noSchemaCheck)

	n, err := r.AtomicUpdate(ctx,
		[]query.Assignment[User]{userName.Set("Mike")},
		[]query.Assignment[User]{userAge.Incr(3)},
		userName.Eq("mike"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "UPDATE user SET name = ?, age = age + ? WHERE name = ?", exec.calls[0].sql)
	assert.Equal(t, []any{"Mike", 3, "mike"}, exec.calls[0].values)

	require.NoError(t, r.DeleteBy(ctx, userAge.Lt(18)))
	assert.Equal(t, "DELETE FROM user WHERE age < ?", exec.calls[1].sql)

	rows, err := r.GroupBy(ctx, []query.GroupBy[User]{userAge.Count()}, []query.Ref[User]{userName}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Mike", int64(2)}}, rows)
	assert.Equal(t, "SELECT name, COUNT(age) FROM user GROUP BY name", exec.calls[2].sql)
}

func TestFindProjectionAppliesLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{respond: func(sql string, values []any) (*database.ResultSet, error) {
		return &database.ResultSet{Rows: [][]any{{"Mike"}, {"Anna"}}}, nil
	}}
	r := NewRepository[User](exec, "user", noSchemaCheck)

	names, err := repository.FindProjection[UserName](ctx, r, userAge.Gt(1), query.Limit(2), userAge.Desc())
	require.NoError(t, err)
	assert.Equal(t, []UserName{{"Mike"}, {"Anna"}}, names)
	assert.Equal(t, "SELECT name FROM user WHERE age > ? ORDER BY age DESC LIMIT 2", exec.calls[0].sql)
}

func TestChunks(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunks([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1, 2}}, chunks([]int{1, 2}, 2))
	assert.Equal(t, [][]int{{1}}, chunks([]int{1}, 10))
}
