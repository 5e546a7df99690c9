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

// Package sqlbuilder compiles model queries into SQL text.
//
// Every statement comes in a prepared form, with "?" placeholders matched
// positionally by PreparedSql.Values, and most also in a literal form where
// values are rendered inline and escaped. The two forms are never mixed in
// one statement.
package sqlbuilder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/schema"
	"github.com/tomoncle/modelrepo/serialization"
)

// PreparedSql is SQL text with "?" placeholders and the values bound to them.
type PreparedSql struct {
	SQL    string
	Values []any
}

// Update pairs an entity with the predicate selecting the rows it replaces.
type Update[T any] struct {
	Entity T
	Where  query.ModelQuery[T]
}

// ModelSqlBuilder renders statements for model T stored in one table.
type ModelSqlBuilder[T any] struct {
	model    *schema.Model
	table    string
	strategy serialization.Strategy

	selectBase    string
	insertSQL     string
	updateColumns string
}

// NewModelSqlBuilder builds the compiler for T over tableName. A nil
// strategy selects serialization.DefaultStrategy.
func NewModelSqlBuilder[T any](tableName string, strategy serialization.Strategy) *ModelSqlBuilder[T] {
	if strategy == nil {
		strategy = serialization.NewDefaultStrategy()
	}
	b := &ModelSqlBuilder[T]{
		model:    schema.Describe[T](),
		table:    QuoteTable(tableName),
		strategy: strategy,
	}

	b.selectBase = fmt.Sprintf("SELECT %s FROM %s", csv(b.model.Columns()), b.table)

	insertFields := b.model.InsertFields()
	cols := make([]string, len(insertFields))
	slots := make([]string, len(insertFields))
	for i, f := range insertFields {
		cols[i] = f.Column
		slots[i] = "?"
	}
	b.insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", b.table, csv(cols), csv(slots))

	sets := make([]string, len(b.model.Fields))
	for i, f := range b.model.Fields {
		sets[i] = f.Column + " = ?"
	}
	b.updateColumns = csv(sets)
	return b
}

// QuoteTable prefixes the schema and quotes a table name containing upper-case letters.
func QuoteTable(name string) string {
	if name != strings.ToLower(name) {
		return fmt.Sprintf(`public."%s"`, name)
	}
	return name
}

func (b *ModelSqlBuilder[T]) Table() string                    { return b.table }
func (b *ModelSqlBuilder[T]) Model() *schema.Model             { return b.model }
func (b *ModelSqlBuilder[T]) Strategy() serialization.Strategy { return b.strategy }

// SelectSql renders a literal SELECT of every column.
func (b *ModelSqlBuilder[T]) SelectSql(q query.ModelQuery[T]) (string, error) {
	where, err := b.ToSql(q, Literal)
	if err != nil {
		return "", err
	}
	return b.withAttributes(b.selectBase+" WHERE "+where, q), nil
}

func (b *ModelSqlBuilder[T]) SelectAll() string { return b.selectBase }

// CheckTableSchema selects at most one row, failing when a column is missing.
func (b *ModelSqlBuilder[T]) CheckTableSchema() string { return b.selectBase + " LIMIT 1" }

func (b *ModelSqlBuilder[T]) SelectPreparedSql(q query.ModelQuery[T]) (PreparedSql, error) {
	return b.selectPrepared(b.selectBase, q)
}

// SelectProjectionPreparedSql selects only the columns of projection.
func (b *ModelSqlBuilder[T]) SelectProjectionPreparedSql(q query.ModelQuery[T], projection *schema.Model) (PreparedSql, error) {
	return b.selectPrepared(fmt.Sprintf("SELECT %s FROM %s", csv(projection.Columns()), b.table), q)
}

func (b *ModelSqlBuilder[T]) selectPrepared(selectClause string, q query.ModelQuery[T]) (PreparedSql, error) {
	where, err := b.ToSql(q, Slot)
	if err != nil {
		return PreparedSql{}, err
	}
	values, err := b.QueryValues(q)
	if err != nil {
		return PreparedSql{}, err
	}
	return PreparedSql{SQL: b.withAttributes(selectClause+" WHERE "+where, q), Values: values}, nil
}

// withAttributes appends ORDER BY, OFFSET and LIMIT of the outermost
// attributes of q, in that order.
func (b *ModelSqlBuilder[T]) withAttributes(sql string, q query.ModelQuery[T]) string {
	attrs := query.Outer(q)
	if attrs == nil {
		return sql
	}
	var extra []string
	if attrs.OrderBy != nil && len(attrs.OrderBy.List) > 0 {
		extra = append(extra, orderByClause(attrs.OrderBy))
	}
	if attrs.Skip > 0 {
		extra = append(extra, fmt.Sprintf("OFFSET %d", attrs.Skip))
	}
	if attrs.Limit != nil {
		extra = append(extra, fmt.Sprintf("LIMIT %d", *attrs.Limit))
	}
	if len(extra) == 0 {
		return sql
	}
	return sql + " " + strings.Join(extra, " ")
}

func orderByClause[T any](d *query.OrderByDescriptor[T]) string {
	parts := make([]string, len(d.List))
	for i, o := range d.List {
		dir := "DESC"
		if o.Ascending {
			dir = "ASC"
		}
		parts[i] = o.Field.Info().Column + " " + dir
	}
	return "ORDER BY " + csv(parts)
}

// InsertSql is the prepared INSERT text; autoincrement columns are left out.
func (b *ModelSqlBuilder[T]) InsertSql() string { return b.insertSQL }

func (b *ModelSqlBuilder[T]) InsertPreparedSql(t T) (PreparedSql, error) {
	values, err := b.valuesOf(t, b.model.InsertFields())
	if err != nil {
		return PreparedSql{}, err
	}
	return PreparedSql{SQL: b.insertSQL, Values: values}, nil
}

// InsertReturningPreparedSql inserts t and returns the generated autoincrement columns.
func (b *ModelSqlBuilder[T]) InsertReturningPreparedSql(t T) (PreparedSql, error) {
	ps, err := b.InsertPreparedSql(t)
	if err != nil {
		return ps, err
	}
	auto := b.model.AutoIncrementFields()
	if len(auto) == 0 {
		return ps, nil
	}
	cols := make([]string, len(auto))
	for i, f := range auto {
		cols[i] = f.Column
	}
	ps.SQL += " RETURNING " + csv(cols)
	return ps, nil
}

// InsertManySql renders one literal multi-row INSERT.
func (b *ModelSqlBuilder[T]) InsertManySql(ts []T) (string, error) {
	fields := b.model.InsertFields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
	}
	rows := make([]string, len(ts))
	for i, t := range ts {
		lits, err := b.literalsOf(t, fields)
		if err != nil {
			return "", err
		}
		rows[i] = "(" + csv(lits) + ")"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", b.table, csv(cols), csv(rows)), nil
}

// UpdateSql renders a literal UPDATE setting every column of the rows matched by q.
func (b *ModelSqlBuilder[T]) UpdateSql(t T, q query.ModelQuery[T]) (string, error) {
	lits, err := b.literalsOf(t, b.model.Fields)
	if err != nil {
		return "", err
	}
	sets := make([]string, len(lits))
	for i, f := range b.model.Fields {
		sets[i] = f.Column + " = " + lits[i]
	}
	where, err := b.ToSql(q, Literal)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", b.table, csv(sets), where), nil
}

// UpdatePreparedSql sets every column, not only the changed ones.
func (b *ModelSqlBuilder[T]) UpdatePreparedSql(t T, q query.ModelQuery[T]) (PreparedSql, error) {
	values, err := b.valuesOf(t, b.model.Fields)
	if err != nil {
		return PreparedSql{}, err
	}
	where, err := b.ToSql(q, Slot)
	if err != nil {
		return PreparedSql{}, err
	}
	whereValues, err := b.QueryValues(q)
	if err != nil {
		return PreparedSql{}, err
	}
	return PreparedSql{
		SQL:    fmt.Sprintf("UPDATE %s SET %s WHERE %s", b.table, b.updateColumns, where),
		Values: append(values, whereValues...),
	}, nil
}

// UpdateManySql renders literal UPDATE statements, each terminated by ';'.
func (b *ModelSqlBuilder[T]) UpdateManySql(updates []Update[T]) (string, error) {
	stmts := make([]string, len(updates))
	for i, u := range updates {
		sql, err := b.UpdateSql(u.Entity, u.Where)
		if err != nil {
			return "", err
		}
		stmts[i] = sql + ";"
	}
	return strings.Join(stmts, " "), nil
}

// PreparedAtomicUpdateSql renders `col = ?` for every set entry followed by
// `col = col + ?` for every incr entry.
func (b *ModelSqlBuilder[T]) PreparedAtomicUpdateSql(set, incr []query.Assignment[T], where query.ModelQuery[T]) (PreparedSql, error) {
	clauses := make([]string, 0, len(set)+len(incr))
	values := make([]any, 0, len(set)+len(incr))
	for _, a := range set {
		v, err := b.toDb(a.Field.Info(), a.Value)
		if err != nil {
			return PreparedSql{}, err
		}
		clauses = append(clauses, a.Field.Info().Column+" = ?")
		values = append(values, v)
	}
	for _, a := range incr {
		v, err := b.toDb(a.Field.Info(), a.Value)
		if err != nil {
			return PreparedSql{}, err
		}
		col := a.Field.Info().Column
		clauses = append(clauses, col+" = "+col+" + ?")
		values = append(values, v)
	}
	whereSql, err := b.ToSql(where, Slot)
	if err != nil {
		return PreparedSql{}, err
	}
	whereValues, err := b.QueryValues(where)
	if err != nil {
		return PreparedSql{}, err
	}
	return PreparedSql{
		SQL:    fmt.Sprintf("UPDATE %s SET %s WHERE %s", b.table, csv(clauses), whereSql),
		Values: append(values, whereValues...),
	}, nil
}

func (b *ModelSqlBuilder[T]) DeleteSql(q query.ModelQuery[T]) (string, error) {
	where, err := b.ToSql(q, Literal)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", b.table, where), nil
}

func (b *ModelSqlBuilder[T]) DeletePreparedSql(q query.ModelQuery[T]) (PreparedSql, error) {
	return b.prepared(fmt.Sprintf("DELETE FROM %s WHERE ", b.table), q)
}

func (b *ModelSqlBuilder[T]) CountPreparedSql(q query.ModelQuery[T]) (PreparedSql, error) {
	return b.prepared(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE ", b.table), q)
}

func (b *ModelSqlBuilder[T]) prepared(prefix string, q query.ModelQuery[T]) (PreparedSql, error) {
	where, err := b.ToSql(q, Slot)
	if err != nil {
		return PreparedSql{}, err
	}
	values, err := b.QueryValues(q)
	if err != nil {
		return PreparedSql{}, err
	}
	return PreparedSql{SQL: prefix + where, Values: values}, nil
}

// GroupByPreparedSql selects the groupBy columns followed by the aggregates.
// where, orderBy and limit are optional.
func (b *ModelSqlBuilder[T]) GroupByPreparedSql(
	selects []query.GroupBy[T],
	groupBy []query.Ref[T],
	where query.ModelQuery[T],
	orderBy *query.OrderByDescriptor[T],
	limit *int,
) (PreparedSql, error) {
	groupCols := make([]string, len(groupBy))
	for i, g := range groupBy {
		groupCols[i] = g.Info().Column
	}
	selectList := append([]string{}, groupCols...)
	for _, s := range selects {
		selectList = append(selectList, fmt.Sprintf("%s(%s)", s.Operator, s.Field.Info().Column))
	}

	parts := []string{"SELECT " + csv(selectList), "FROM " + b.table}
	values := []any{}
	if where != nil {
		sql, err := b.ToSql(where, Slot)
		if err != nil {
			return PreparedSql{}, err
		}
		if values, err = b.QueryValues(where); err != nil {
			return PreparedSql{}, err
		}
		parts = append(parts, "WHERE "+sql)
	}
	if len(groupCols) > 0 {
		parts = append(parts, "GROUP BY "+csv(groupCols))
	}
	if orderBy != nil && len(orderBy.List) > 0 {
		parts = append(parts, orderByClause(orderBy))
	}
	if limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d", *limit))
	}
	return PreparedSql{SQL: strings.Join(parts, " "), Values: values}, nil
}

// upsertFields are the insert fields, plus the identifier when it is
// autoincrement and t already carries a value for it. Without that value an
// upsert of a stored row could never collide.
func (b *ModelSqlBuilder[T]) upsertFields(t T, idField *schema.Field) []*schema.Field {
	if !idField.AutoIncrement {
		return b.model.InsertFields()
	}
	if v := b.model.Get(t, idField); v == nil || reflect.ValueOf(v).IsZero() {
		return b.model.InsertFields()
	}
	fields := make([]*schema.Field, 0, len(b.model.Fields))
	for _, f := range b.model.Fields {
		if !f.AutoIncrement || f.Column == idField.Column {
			fields = append(fields, f)
		}
	}
	return fields
}

// UpsertPreparedSql inserts t or, when idField collides, overwrites the row,
// returning the identifier column either way.
func (b *ModelSqlBuilder[T]) UpsertPreparedSql(t T, idField query.Ref[T]) (PreparedSql, error) {
	fields := b.upsertFields(t, idField.Info())
	cols := make([]string, len(fields))
	slots := make([]string, len(fields))
	sets := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
		slots[i] = "?"
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", f.Column, f.Column)
	}
	values, err := b.valuesOf(t, fields)
	if err != nil {
		return PreparedSql{}, err
	}
	idCol := idField.Info().Column
	sql := strings.Join([]string{
		fmt.Sprintf("INSERT INTO %s (%s)", b.table, csv(cols)),
		fmt.Sprintf("VALUES (%s)", csv(slots)),
		fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", idCol, csv(sets)),
		"RETURNING " + idCol,
	}, "\n")
	return PreparedSql{SQL: sql, Values: values}, nil
}

// UpsertDuplicateKeyPreparedSql is the MySQL form of an upsert. It returns
// no rows, so the identifier is the one already carried by t.
func (b *ModelSqlBuilder[T]) UpsertDuplicateKeyPreparedSql(t T, idField query.Ref[T]) (PreparedSql, error) {
	fields := b.upsertFields(t, idField.Info())
	cols := make([]string, len(fields))
	slots := make([]string, len(fields))
	sets := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
		slots[i] = "?"
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", f.Column, f.Column)
	}
	values, err := b.valuesOf(t, fields)
	if err != nil {
		return PreparedSql{}, err
	}
	return PreparedSql{
		SQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
			b.table, csv(cols), csv(slots), csv(sets)),
		Values: values,
	}, nil
}

// ValuesOf returns the database values of every field of t, in column order.
func (b *ModelSqlBuilder[T]) ValuesOf(t T) ([]any, error) {
	return b.valuesOf(t, b.model.Fields)
}

func (b *ModelSqlBuilder[T]) valuesOf(t T, fields []*schema.Field) ([]any, error) {
	values := make([]any, len(fields))
	for i, f := range fields {
		v, err := b.toDb(f, b.model.Get(t, f))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (b *ModelSqlBuilder[T]) literalsOf(t T, fields []*schema.Field) ([]string, error) {
	lits := make([]string, len(fields))
	for i, f := range fields {
		lit, err := b.toSqlValue(f, b.model.Get(t, f))
		if err != nil {
			return nil, err
		}
		lits[i] = lit
	}
	return lits, nil
}

func (b *ModelSqlBuilder[T]) toDb(f *schema.Field, v any) (any, error) {
	db, err := b.strategy.ToDatabaseValue(v, f)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	return db, nil
}

func csv(items []string) string { return strings.Join(items, ", ") }
