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

// Package cache provides the cache collaborators used by the cached
// repository decorator, plus a memoizing cache that builds each value once.
package cache

import (
	"context"
	"sync"
)

// Cache stores values by string key. A miss is reported by ok == false,
// not by an error.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (value V, ok bool, err error)
	Put(ctx context.Context, key string, value V) error
	Remove(ctx context.Context, key string) error
	RemoveAll(ctx context.Context) error
}

// MemoryCache is a Cache over a map guarded by a mutex.
type MemoryCache[V any] struct {
	mu     sync.Mutex
	values map[string]V
}

var _ Cache[int] = (*MemoryCache[int])(nil)

func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{values: make(map[string]V)}
}

func (c *MemoryCache[V]) Get(_ context.Context, key string) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *MemoryCache[V]) Put(_ context.Context, key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *MemoryCache[V]) Remove(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *MemoryCache[V]) RemoveAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.values)
	return nil
}

func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}
