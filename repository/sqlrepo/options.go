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

package sqlrepo

import (
	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/serialization"
)

type options struct {
	strategy    serialization.Strategy
	chunkSize   int
	checkSchema bool
	logger      database.Logger
	tx          database.TxRunner
	caps        *database.Capabilities
}

func defaultOptions() options {
	cfg := database.GetRepositoryConfig()
	return options{chunkSize: cfg.ChunkSize, checkSchema: cfg.CheckSchemaOnInit}
}

// Option configures a SQL repository.
type Option func(*options)

// WithStrategy sets the serialization strategy. The default is serialization.DefaultStrategy.
func WithStrategy(s serialization.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithConfig applies the chunk size and schema check of cfg.
func WithConfig(cfg database.RepositoryConfig) Option {
	return func(o *options) {
		o.chunkSize = cfg.ChunkSize
		o.checkSchema = cfg.CheckSchemaOnInit
	}
}

func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

func WithLogger(logger database.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTxRunner sets the transaction runner used by batch writes and upserts.
// Executors that are themselves a database.TxRunner need not set it.
func WithTxRunner(tx database.TxRunner) Option {
	return func(o *options) { o.tx = tx }
}

// WithCapabilities overrides the statement forms reported by the executor.
func WithCapabilities(caps database.Capabilities) Option {
	return func(o *options) { o.caps = &caps }
}
