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

package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// InmemoryCache memoizes the value built for each key. Concurrent callers of
// Get for one key share a single build; failed builds are not stored.
type InmemoryCache[K comparable, V any] struct {
	mu     sync.Mutex
	values map[K]V
	gen    map[K]uint64
	epoch  uint64
	group  singleflight.Group
}

func NewInmemoryCache[K comparable, V any]() *InmemoryCache[K, V] {
	return &InmemoryCache[K, V]{values: make(map[K]V), gen: make(map[K]uint64)}
}

// flightKey names the build of key for one generation of the key and of the
// whole cache, so requests after an invalidation never join an older build.
func flightKey[K comparable](key K, gen, epoch uint64) string {
	return fmt.Sprintf("%d/%d/%T:%#v", epoch, gen, key, key)
}

// Get returns the memoized value of key, calling build when there is none.
// A caller whose ctx ends stops waiting; the build goes on for the others
// and keeps the values of ctx but not its cancellation.
func (c *InmemoryCache[K, V]) Get(ctx context.Context, key K, build func(ctx context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.values[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	gen, epoch := c.gen[key], c.epoch
	c.mu.Unlock()

	ch := c.group.DoChan(flightKey(key, gen, epoch), func() (any, error) {
		v, err := build(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.gen[key] == gen && c.epoch == epoch {
			c.values[key] = v
		}
		c.mu.Unlock()
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Invalidate drops the value of key. A build already running for key is
// not joined by later calls and its result is not stored.
func (c *InmemoryCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	c.gen[key]++
}

// InvalidateAll drops every value. Builds already running are not joined
// by later calls and their results are not stored.
func (c *InmemoryCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.values)
	c.epoch++
}

func (c *InmemoryCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
