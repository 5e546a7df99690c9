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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomoncle/modelrepo/query"
	"github.com/tomoncle/modelrepo/repository"
	"github.com/tomoncle/modelrepo/schema"
)

// Metrics are the collectors shared by instrumented repositories. All of
// them are labelled by model and operation.
type Metrics struct {
	Calls    *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics registers the repository collectors with reg under namespace.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"model", "operation"}
	return &Metrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_operations_total",
			Help:      "Total number of repository operations",
		}, labels),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_operation_errors_total",
			Help:      "Total number of failed repository operations",
		}, labels),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repository_operation_duration_seconds",
			Help:      "Repository operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, labels),
	}
}

// InstrumentedModelRepository records a call, its duration and its failure
// for every operation of the wrapped repository.
type InstrumentedModelRepository[I comparable, T any] struct {
	*Decorator[I, T]
	metrics *Metrics
	model   string
}

var _ repository.ModelRepository[string, struct{}] = (*InstrumentedModelRepository[string, struct{}])(nil)

func NewInstrumentedModelRepository[I comparable, T any](repo repository.ModelRepository[I, T], metrics *Metrics) *InstrumentedModelRepository[I, T] {
	return &InstrumentedModelRepository[I, T]{
		Decorator: NewDecorator(repo),
		metrics:   metrics,
		model:     schema.Describe[T]().Name,
	}
}

func (r *InstrumentedModelRepository[I, T]) record(op string, start time.Time, err error) {
	r.metrics.Calls.WithLabelValues(r.model, op).Inc()
	r.metrics.Duration.WithLabelValues(r.model, op).Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.Errors.WithLabelValues(r.model, op).Inc()
	}
}

func observe[R any](record func(string, time.Time, error), op string, fn func() (R, error)) (R, error) {
	start := time.Now()
	out, err := fn()
	record(op, start, err)
	return out, err
}

func (r *InstrumentedModelRepository[I, T]) observeErr(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.record(op, start, err)
	return err
}

func (r *InstrumentedModelRepository[I, T]) Init(ctx context.Context) error {
	return r.observeErr("init", func() error { return r.Repo.Init(ctx) })
}

func (r *InstrumentedModelRepository[I, T]) GetAll(ctx context.Context) ([]T, error) {
	return observe(r.record, "get_all", func() ([]T, error) { return r.Repo.GetAll(ctx) })
}

func (r *InstrumentedModelRepository[I, T]) Count(ctx context.Context, q query.ModelQuery[T]) (int, error) {
	return observe(r.record, "count", func() (int, error) { return r.Repo.Count(ctx, q) })
}

func (r *InstrumentedModelRepository[I, T]) GroupBy(
	ctx context.Context,
	selects []query.GroupBy[T],
	groupBy []query.Ref[T],
	where query.ModelQuery[T],
	orderBy *query.OrderByDescriptor[T],
	limit *int,
) ([][]any, error) {
	return observe(r.record, "group_by", func() ([][]any, error) {
		return r.Repo.GroupBy(ctx, selects, groupBy, where, orderBy, limit)
	})
}

func (r *InstrumentedModelRepository[I, T]) FindBy(ctx context.Context, q query.ModelQuery[T]) ([]T, error) {
	return observe(r.record, "find_by", func() ([]T, error) { return r.Repo.FindBy(ctx, q) })
}

func (r *InstrumentedModelRepository[I, T]) FindProjectionBy(
	ctx context.Context,
	projection *schema.Model,
	where query.ModelQuery[T],
	limit *int,
	orderBy *query.OrderByDescriptor[T],
) ([]any, error) {
	return observe(r.record, "find_projection_by", func() ([]any, error) {
		return r.Repo.FindProjectionBy(ctx, projection, where, limit, orderBy)
	})
}

func (r *InstrumentedModelRepository[I, T]) Insert(ctx context.Context, t T) (T, error) {
	return observe(r.record, "insert", func() (T, error) { return r.Repo.Insert(ctx, t) })
}

func (r *InstrumentedModelRepository[I, T]) InsertMany(ctx context.Context, ts []T) (int, error) {
	return observe(r.record, "insert_many", func() (int, error) { return r.Repo.InsertMany(ctx, ts) })
}

func (r *InstrumentedModelRepository[I, T]) AtomicUpdate(ctx context.Context, set, incr []query.Assignment[T], where query.ModelQuery[T]) (int, error) {
	return observe(r.record, "atomic_update", func() (int, error) { return r.Repo.AtomicUpdate(ctx, set, incr, where) })
}

func (r *InstrumentedModelRepository[I, T]) DeleteBy(ctx context.Context, q query.ModelQuery[T]) error {
	return r.observeErr("delete_by", func() error { return r.Repo.DeleteBy(ctx, q) })
}

func (r *InstrumentedModelRepository[I, T]) FindByID(ctx context.Context, id I) (*T, error) {
	return observe(r.record, "find_by_id", func() (*T, error) { return r.Repo.FindByID(ctx, id) })
}

func (r *InstrumentedModelRepository[I, T]) FindByIDs(ctx context.Context, ids []I) ([]T, error) {
	return observe(r.record, "find_by_ids", func() ([]T, error) { return r.Repo.FindByIDs(ctx, ids) })
}

func (r *InstrumentedModelRepository[I, T]) UpdateBy(ctx context.Context, t T, q query.ModelQuery[T]) (T, error) {
	return observe(r.record, "update_by", func() (T, error) { return r.Repo.UpdateBy(ctx, t, q) })
}

func (r *InstrumentedModelRepository[I, T]) Update(ctx context.Context, t T) (T, error) {
	return observe(r.record, "update", func() (T, error) { return r.Repo.Update(ctx, t) })
}

func (r *InstrumentedModelRepository[I, T]) Upsert(ctx context.Context, t T) (T, error) {
	return observe(r.record, "upsert", func() (T, error) { return r.Repo.Upsert(ctx, t) })
}

func (r *InstrumentedModelRepository[I, T]) Delete(ctx context.Context, id I) error {
	return r.observeErr("delete", func() error { return r.Repo.Delete(ctx, id) })
}

func (r *InstrumentedModelRepository[I, T]) UpdateMany(ctx context.Context, ts []T) error {
	return r.observeErr("update_many", func() error { return r.Repo.UpdateMany(ctx, ts) })
}

func (r *InstrumentedModelRepository[I, T]) UpdateManyBy(ctx context.Context, ts []T, where func(T) query.ModelQuery[T]) error {
	return r.observeErr("update_many_by", func() error { return r.Repo.UpdateManyBy(ctx, ts, where) })
}
