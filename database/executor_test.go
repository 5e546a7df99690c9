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

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func newMockExecutor(t *testing.T) (*BunExecutor, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewBunExecutor(db), mock
}

func TestExecutePreparedCollectsRows(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectQuery("SELECT id, name FROM person WHERE name = 'Mike'").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("p1", "Mike").AddRow("p2", "Mike"))

	rs, err := exec.ExecutePrepared(context.Background(), "SELECT id, name FROM person WHERE name = ?", []any{"Mike"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	assert.Equal(t, [][]any{{"p1", "Mike"}, {"p2", "Mike"}}, rs.Rows)
	assert.Equal(t, int64(2), rs.RowsAffected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteReportsRowsAffected(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectExec("UPDATE person SET age = 3").WillReturnResult(sqlmock.NewResult(0, 2))

	rs, err := exec.Execute(context.Background(), "UPDATE person SET age = 3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rs.RowsAffected)
	assert.Empty(t, rs.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteReturnsDriverErrors(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectExec("INSERT INTO person (id) VALUES ('p1')").WillReturnError(&pq.Error{Code: "23505"})

	_, err := exec.Execute(context.Background(), "INSERT INTO person (id) VALUES ('p1')")
	require.Error(t, err)
	is, kind := IsSqlError(err)
	assert.True(t, is)
	assert.Equal(t, DuplicateKeyErr, kind)
}

func TestInTransactionCommits(t *testing.T) {
	ctx := context.Background()
	exec, mock := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM person").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM pet").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	err := exec.InTransaction(ctx, func(ctx context.Context) error {
		_, bound := TxFromContext(ctx)
		assert.True(t, bound)
		if _, err := exec.Execute(ctx, "DELETE FROM person"); err != nil {
			return err
		}
		return exec.InTransaction(ctx, func(ctx context.Context) error {
			_, err := exec.Execute(ctx, "DELETE FROM pet")
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	exec, mock := newMockExecutor(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM person").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := exec.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := exec.Execute(ctx, "DELETE FROM person"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransactionKeepsCauseWhenRollbackFails(t *testing.T) {
	ctx := context.Background()
	exec, mock := newMockExecutor(t)
	exec.SetLogger(NewDefaultLogger("test"))
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

	boom := errors.New("boom")
	err := exec.InTransaction(ctx, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransactionBeginFailure(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := exec.InTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "failed to begin transaction")
	assert.False(t, called)
}

func TestPostgresCapabilities(t *testing.T) {
	exec, _ := newMockExecutor(t)
	caps := exec.Capabilities()
	assert.True(t, caps.Returning)
	assert.True(t, caps.OnConflict)
	assert.False(t, caps.OnDuplicateKey)
}

func TestReturnsRows(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":                                        true,
		"  select * from person":                          true,
		"WITH x AS (SELECT 1) SELECT * FROM x":            true,
		"INSERT INTO person (id) VALUES ('p1')":           false,
		"INSERT INTO person (id) VALUES (?) RETURNING id": true,
		"UPDATE person SET age = 1":                       false,
		"DELETE FROM person":                              false,
		"PRAGMA table_info(person)":                       true,
	}
	for q, want := range cases {
		assert.Equal(t, want, ReturnsRows(q), q)
	}
}
