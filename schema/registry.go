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

package schema

import (
	"fmt"
	"reflect"
	"sync"
)

var registry = struct {
	sync.RWMutex
	models map[reflect.Type]*Model
	order  []*Model
}{models: map[reflect.Type]*Model{}}

// Lookup returns the cached descriptor of t, describing it on first use.
func Lookup(t reflect.Type) (*Model, error) {
	registry.RLock()
	m, ok := registry.models[t]
	registry.RUnlock()
	if ok {
		return m, nil
	}

	m, err := DescribeType(t)
	if err != nil {
		return nil, err
	}
	registry.Lock()
	defer registry.Unlock()
	if existing, ok := registry.models[t]; ok {
		return existing, nil
	}
	registry.models[t] = m
	registry.order = append(registry.order, m)
	return m, nil
}

// Describe returns the descriptor of T. It panics when T is not a struct or
// pointer to struct, like regexp.MustCompile does for a bad pattern.
func Describe[T any]() *Model {
	m, err := Lookup(reflect.TypeFor[T]())
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return m
}

// Register describes T eagerly, typically from an init function.
func Register[T any]() (*Model, error) {
	return Lookup(reflect.TypeFor[T]())
}

// Registered lists the described models in registration order.
func Registered() []*Model {
	registry.RLock()
	defer registry.RUnlock()
	out := make([]*Model, len(registry.order))
	copy(out, registry.order)
	return out
}
