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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const scanBatch = 100

// RedisCache is a Cache whose values are msgpack-encoded under a key prefix.
type RedisCache[V any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Cache[int] = (*RedisCache[int])(nil)

// NewRedisCache stores values under prefix + key. A zero ttl keeps entries
// until they are removed.
func NewRedisCache[V any](client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache[V] {
	return &RedisCache[V]{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache[V]) key(key string) string { return c.prefix + key }

func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var v V
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("redis get %s: %w", c.key(key), err)
	}
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode cached %s: %w", c.key(key), err)
	}
	return v, true, nil
}

func (c *RedisCache[V]) Put(ctx context.Context, key string, value V) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", c.key(key), err)
	}
	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key(key), err)
	}
	return nil
}

func (c *RedisCache[V]) Remove(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", c.key(key), err)
	}
	return nil
}

// RemoveAll deletes every key under the prefix. Keys are collected by a
// full scan first, since deleting moves the scan cursor, then removed in
// batches.
func (c *RedisCache[V]) RemoveAll(ctx context.Context) error {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s*: %w", c.prefix, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	for chunk := range slices.Chunk(keys, scanBatch) {
		if err := c.client.Del(ctx, chunk...).Err(); err != nil {
			return fmt.Errorf("redis del %s*: %w", c.prefix, err)
		}
	}
	return nil
}
