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
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

// ResultSet is the raw outcome of a statement: rows in SELECT column order
// plus the number of rows affected.
type ResultSet struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
}

// Executor runs SQL text. Execute takes fully literal SQL, ExecutePrepared
// takes SQL with "?" placeholders matched positionally by values.
type Executor interface {
	Execute(ctx context.Context, sql string) (*ResultSet, error)
	ExecutePrepared(ctx context.Context, sql string, values []any) (*ResultSet, error)
}

// TxRunner runs fn inside one transaction bound to the context passed to fn.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Capabilities describes the statement forms a backend understands.
type Capabilities struct {
	Returning      bool
	OnConflict     bool
	OnDuplicateKey bool
}

// CapabilityReporter is implemented by executors that know their dialect.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

type txKey struct{}

// WithTx binds tx to the returned context; executors built on the same
// database run their statements through it.
func WithTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction bound by WithTx, if any.
func TxFromContext(ctx context.Context) (bun.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(bun.Tx)
	return tx, ok
}

// RunInTx begins a transaction, runs fn with the transaction bound to ctx,
// commits on success and rolls back on failure. A rollback failure is logged
// and the original error is returned. When ctx already carries a transaction
// fn joins it.
func RunInTx(ctx context.Context, db *bun.DB, logger Logger, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}
	if logger == nil {
		logger = GetLogger()
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn("transaction rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// BunExecutor is the Executor, TxRunner and CapabilityReporter over a bun database.
type BunExecutor struct {
	db     *bun.DB
	logger Logger
}

var (
	_ Executor           = (*BunExecutor)(nil)
	_ TxRunner           = (*BunExecutor)(nil)
	_ CapabilityReporter = (*BunExecutor)(nil)
)

func NewBunExecutor(db *bun.DB) *BunExecutor {
	return &BunExecutor{db: db, logger: GetLogger()}
}

// SetLogger replaces the logger used for SQL errors and rollback failures.
func (e *BunExecutor) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

func (e *BunExecutor) DB() *bun.DB { return e.db }

func (e *BunExecutor) Capabilities() Capabilities {
	return Capabilities{
		Returning:      e.db.HasFeature(feature.InsertReturning),
		OnConflict:     e.db.HasFeature(feature.InsertOnConflict),
		OnDuplicateKey: e.db.HasFeature(feature.InsertOnDuplicateKey),
	}
}

func (e *BunExecutor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, e.db, e.logger, fn)
}

func (e *BunExecutor) Execute(ctx context.Context, query string) (*ResultSet, error) {
	return e.run(ctx, query, nil)
}

func (e *BunExecutor) ExecutePrepared(ctx context.Context, query string, values []any) (*ResultSet, error) {
	return e.run(ctx, query, values)
}

func (e *BunExecutor) conn(ctx context.Context) bun.IConn {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return e.db
}

func (e *BunExecutor) run(ctx context.Context, query string, values []any) (*ResultSet, error) {
	rs, err := e.send(ctx, query, values)
	if err != nil {
		e.logger.Error("SQL ERROR", "sql", query, "values", values, "error", err)
		return nil, err
	}
	return rs, nil
}

func (e *BunExecutor) send(ctx context.Context, query string, values []any) (*ResultSet, error) {
	conn := e.conn(ctx)
	if !ReturnsRows(query) {
		res, err := conn.ExecContext(ctx, query, values...)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		return &ResultSet{RowsAffected: affected}, nil
	}
	rows, err := conn.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func collectRows(rows *sql.Rows) (*ResultSet, error) {
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rs.RowsAffected = int64(len(rs.Rows))
	return rs, nil
}

// ReturnsRows reports whether a statement produces a row set.
func ReturnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "VALUES", "PRAGMA"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return strings.Contains(q, " RETURNING ") || strings.Contains(q, "\nRETURNING ")
}
