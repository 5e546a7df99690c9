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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
connection:
  type: postgres
  host: db.internal
  port: 5432
  slow_query_time: 500ms
repository:
  chunk_size: 0
  check_schema_on_init: false
`))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, "db.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, 5432, cfg.ConnectionConfig.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns)
	assert.Equal(t, DefaultChunkSize, cfg.RepositoryConfig.ChunkSize)
	assert.False(t, cfg.RepositoryConfig.CheckSchemaOnInit)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repository:\n  chunk_size: 7\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RepositoryConfig.ChunkSize)
	assert.True(t, cfg.RepositoryConfig.CheckSchemaOnInit)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("connection: ["))
	assert.Error(t, err)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")
	t.Setenv("DB_SLOW_QUERY_TIME", "1s")
	t.Setenv("REPO_CHUNK_SIZE", "25")
	t.Setenv("REPO_CHECK_SCHEMA_ON_INIT", "false")

	conn := DefaultConnectionConfig()
	OverrideFromEnv(conn)
	assert.Equal(t, "10.0.0.5", conn.Host)
	assert.Equal(t, 6543, conn.Port)
	assert.True(t, conn.EnableQueryLog)
	assert.Equal(t, time.Second, conn.SlowQueryTime)

	repo := DefaultRepositoryConfig()
	OverrideRepositoryFromEnv(&repo)
	assert.Equal(t, RepositoryConfig{ChunkSize: 25, CheckSchemaOnInit: false}, repo)
}

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		err  error
		is   bool
		kind SQLError
	}{
		{nil, false, UnknownErr},
		{sql.ErrNoRows, true, NoRowsErr},
		{fmt.Errorf("find: %w", sql.ErrNoRows), true, NoRowsErr},
		{&mysql.MySQLError{Number: 1062}, true, DuplicateKeyErr},
		{&mysql.MySQLError{Number: 1146}, true, NoTableErr},
		{&mysql.MySQLError{Number: 9999}, true, UnknownErr},
		{&pq.Error{Code: "23502"}, true, NotNullViolationErr},
		{&pq.Error{Code: "42P01"}, true, NoTableErr},
		{errors.New("SQL logic error: no such table: person (1)"), true, NoTableErr},
		{errors.New("constraint failed: UNIQUE constraint failed: person.id (1555)"), true, DuplicateKeyErr},
		{errors.New(`ERROR: syntax error at or near "FORM"`), true, SyntaxErr},
		{errors.New("connection refused"), false, UnknownErr},
	}
	for _, c := range cases {
		is, kind := IsSqlError(c.err)
		assert.Equal(t, c.is, is, "%v", c.err)
		assert.Equal(t, c.kind, kind, "%v", c.err)
	}
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", SQLError(99).String())
}
