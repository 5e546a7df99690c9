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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/modelrepo/cache"
	"github.com/tomoncle/modelrepo/repoerr"
)

func TestInstrumentedRecordsOperations(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")
	repo := NewInstrumentedModelRepository[string, Account](seededAccounts(t), metrics)

	_, err := repo.Insert(ctx, Account{ID: "a4", Owner: "zoe"})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = repo.FindBy(ctx, accountOwner.Eq("mike"))
		require.NoError(t, err)
	}
	_, err = repo.Count(ctx, nil)
	assert.True(t, repoerr.IsMalformedQuery(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Calls.WithLabelValues("Account", "insert")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Calls.WithLabelValues("Account", "find_by")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("Account", "count")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Errors.WithLabelValues("Account", "find_by")))
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.Duration))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_repository_operations_total")
	assert.Contains(t, names, "test_repository_operation_duration_seconds")
}

func TestInstrumentedOverCache(t *testing.T) {
	ctx := context.Background()
	metrics := NewMetrics(nil, "")
	counting := &countingRepo{Decorator: NewDecorator[string, Account](seededAccounts(t))}
	repo := NewInstrumentedModelRepository[string, Account](
		Cached[string, Account](counting, cache.NewMemoryCache[[]Account]()), metrics)

	for i := 0; i < 2; i++ {
		found, err := repo.FindByID(ctx, "a1")
		require.NoError(t, err)
		require.NotNil(t, found)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Calls.WithLabelValues("Account", "find_by_id")))
	assert.Equal(t, int32(1), counting.finds.Load())
}
