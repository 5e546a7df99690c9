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

// Package sqlrepo implements the repository contracts over a
// database.Executor, compiling every operation with sqlbuilder and mapping
// rows back to models through a serialization strategy.
package sqlrepo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repoerr"
	"github.com/tomoncle/modelrepo/repository"
	"github.com/tomoncle/modelrepo/schema"
	"github.com/tomoncle/modelrepo/serialization"
	"github.com/tomoncle/modelrepo/sqlbuilder"
)

// Repository stores models of type T in one table.
type Repository[T any] struct {
	exec    database.Executor
	builder *sqlbuilder.ModelSqlBuilder[T]
	opts    options

	mu          sync.Mutex
	initialized bool
}

var _ repository.Repository[struct{ ID string }] = (*Repository[struct{ ID string }])(nil)

// NewRepository builds a repository for T over table. Options default to
// database.GetRepositoryConfig().
func NewRepository[T any](exec database.Executor, table string, opts ...Option) *Repository[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.strategy == nil {
		o.strategy = serialization.NewDefaultStrategy()
	}
	if o.chunkSize <= 0 {
		o.chunkSize = database.DefaultChunkSize
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	if o.tx == nil {
		if tx, ok := exec.(database.TxRunner); ok {
			o.tx = tx
		}
	}
	if o.caps == nil {
		caps := database.Capabilities{}
		if cr, ok := exec.(database.CapabilityReporter); ok {
			caps = cr.Capabilities()
		}
		o.caps = &caps
	}
	return &Repository[T]{
		exec:    exec,
		builder: sqlbuilder.NewModelSqlBuilder[T](table, o.strategy),
		opts:    o,
	}
}

func (r *Repository[T]) Builder() *sqlbuilder.ModelSqlBuilder[T] { return r.builder }

// Init checks once that the table answers a select of every column. A
// failed check is returned and retried on the next call.
func (r *Repository[T]) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	if r.opts.checkSchema {
		sql := r.builder.CheckTableSchema()
		if _, err := r.exec.Execute(ctx, sql); err != nil {
			return r.queryError("check table schema", sql, nil, err)
		}
	}
	r.initialized = true
	return nil
}

func (r *Repository[T]) queryError(op, sql string, values []any, err error) error {
	qe := &repoerr.QueryError{Op: op, SQL: sql, Values: values, Err: err}
	if is, kind := database.IsSqlError(err); is {
		qe.Kind = kind.String()
	}
	return qe
}

func (r *Repository[T]) prepared(ctx context.Context, op string, ps sqlbuilder.PreparedSql, err error) (*database.ResultSet, error) {
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	rs, err := r.exec.ExecutePrepared(ctx, ps.SQL, ps.Values)
	if err != nil {
		return nil, r.queryError(op, ps.SQL, ps.Values, err)
	}
	return rs, nil
}

func (r *Repository[T]) literal(ctx context.Context, op, sql string, err error) (*database.ResultSet, error) {
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.Init(ctx); err != nil {
		return nil, err
	}
	rs, err := r.exec.Execute(ctx, sql)
	if err != nil {
		return nil, r.queryError(op, sql, nil, err)
	}
	return rs, nil
}

// inTx runs fn in one transaction when a runner is available.
func (r *Repository[T]) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.opts.tx == nil {
		return fn(ctx)
	}
	return r.opts.tx.InTransaction(ctx, fn)
}

func (r *Repository[T]) toModels(rs *database.ResultSet) ([]T, error) {
	out := make([]T, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		m, err := serialization.ModelFromValues(r.opts.strategy, r.builder.Model(), row)
		if err != nil {
			return nil, err
		}
		out = append(out, m.(T))
	}
	return out, nil
}

func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	rs, err := r.literal(ctx, "get all", r.builder.SelectAll(), nil)
	if err != nil {
		return nil, err
	}
	return r.toModels(rs)
}

// Count ignores skip, limit and ordering.
func (r *Repository[T]) Count(ctx context.Context, q query.ModelQuery[T]) (int, error) {
	ps, err := r.builder.CountPreparedSql(q)
	rs, err := r.prepared(ctx, "count", ps, err)
	if err != nil {
		return 0, err
	}
	if len(rs.Rows) == 0 || len(rs.Rows[0]) == 0 {
		return 0, nil
	}
	return parseCount(rs.Rows[0][0])
}

func parseCount(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(n)))
	}
	return strconv.Atoi(strings.TrimSpace(fmt.Sprint(v)))
}

// GroupBy returns the raw rows: group columns first, then the aggregates.
func (r *Repository[T]) GroupBy(
	ctx context.Context,
	selects []query.GroupBy[T],
	groupBy []query.Ref[T],
	where query.ModelQuery[T],
	orderBy *query.OrderByDescriptor[T],
	limit *int,
) ([][]any, error) {
	ps, err := r.builder.GroupByPreparedSql(selects, groupBy, where, orderBy, limit)
	rs, err := r.prepared(ctx, "group by", ps, err)
	if err != nil {
		return nil, err
	}
	if rs.Rows == nil {
		return [][]any{}, nil
	}
	return rs.Rows, nil
}

func (r *Repository[T]) FindBy(ctx context.Context, q query.ModelQuery[T]) ([]T, error) {
	ps, err := r.builder.SelectPreparedSql(q)
	rs, err := r.prepared(ctx, "find", ps, err)
	if err != nil {
		return nil, err
	}
	return r.toModels(rs)
}

func (r *Repository[T]) FindProjectionBy(
	ctx context.Context,
	projection *schema.Model,
	where query.ModelQuery[T],
	limit *int,
	orderBy *query.OrderByDescriptor[T],
) ([]any, error) {
	ps, err := r.builder.SelectProjectionPreparedSql(query.Attribute(where, 0, limit, orderBy), projection)
	rs, err := r.prepared(ctx, "find projection", ps, err)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		p, err := serialization.ModelFromValues(r.opts.strategy, projection, row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Insert stores t. When the model has autoincrement fields and the database
// supports RETURNING, the generated values are set on the returned model.
func (r *Repository[T]) Insert(ctx context.Context, t T) (T, error) {
	model := r.builder.Model()
	auto := model.AutoIncrementFields()
	if len(auto) == 0 || !r.opts.caps.Returning {
		ps, err := r.builder.InsertPreparedSql(t)
		_, err = r.prepared(ctx, "insert", ps, err)
		return t, err
	}

	ps, err := r.builder.InsertReturningPreparedSql(t)
	rs, err := r.prepared(ctx, "insert", ps, err)
	if err != nil {
		return t, err
	}
	if len(rs.Rows) == 0 {
		return t, nil
	}
	return r.splice(t, auto, rs.Rows[0])
}

// splice sets fields from the raw values of a RETURNING row.
func (r *Repository[T]) splice(t T, fields []*schema.Field, raw []any) (T, error) {
	model := r.builder.Model()
	var current any = t
	for i, f := range fields {
		if i >= len(raw) {
			break
		}
		v, err := r.opts.strategy.FromDatabaseValue(f, raw[i])
		if err != nil {
			return t, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if current, err = model.With(current, f, v); err != nil {
			return t, err
		}
	}
	return current.(T), nil
}

// InsertMany inserts ts in chunks of the configured size, all in one transaction.
func (r *Repository[T]) InsertMany(ctx context.Context, ts []T) (int, error) {
	if len(ts) == 0 {
		return 0, nil
	}
	total := 0
	err := r.inTx(ctx, func(ctx context.Context) error {
		total = 0
		for _, chunk := range chunks(ts, r.opts.chunkSize) {
			sql, err := r.builder.InsertManySql(chunk)
			rs, err := r.literal(ctx, "insert many", sql, err)
			if err != nil {
				return err
			}
			total += int(rs.RowsAffected)
		}
		return nil
	})
	return total, err
}

func (r *Repository[T]) AtomicUpdate(ctx context.Context, set, incr []query.Assignment[T], where query.ModelQuery[T]) (int, error) {
	ps, err := r.builder.PreparedAtomicUpdateSql(set, incr, where)
	rs, err := r.prepared(ctx, "atomic update", ps, err)
	if err != nil {
		return 0, err
	}
	return int(rs.RowsAffected), nil
}

func (r *Repository[T]) DeleteBy(ctx context.Context, q query.ModelQuery[T]) error {
	ps, err := r.builder.DeletePreparedSql(q)
	_, err = r.prepared(ctx, "delete", ps, err)
	return err
}

func chunks[T any](ts []T, size int) [][]T {
	var out [][]T
	for size < len(ts) {
		ts, out = ts[size:], append(out, ts[:size:size])
	}
	return append(out, ts)
}
