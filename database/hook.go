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
	"errors"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var (
	selectColor = color.New(color.FgGreen)
	insertColor = color.New(color.FgBlue)
	updateColor = color.New(color.FgYellow)
	deleteColor = color.New(color.FgMagenta)
	otherColor  = color.New(color.FgRed)
	slowColor   = color.New(color.BgYellow, color.FgBlack)
)

// QueryLogHook writes every statement at debug level and warns when a
// statement takes longer than SlowTime.
type QueryLogHook struct {
	logger   Logger
	slowTime time.Duration
}

var _ bun.QueryHook = (*QueryLogHook)(nil)

func NewQueryLogHook(logger Logger, slowTime time.Duration) *QueryLogHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &QueryLogHook{logger: logger, slowTime: slowTime}
}

func (h *QueryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) && !errors.Is(event.Err, sql.ErrTxDone) {
		h.logger.Debug("query failed",
			"duration", duration.Round(time.Microsecond),
			"query", colorizeOperation(event),
			"error", event.Err)
		return
	}
	if h.slowTime > 0 && duration > h.slowTime {
		h.logger.Warn(slowColor.Sprint("Database slow query detected"),
			"duration", duration.Round(time.Microsecond),
			"slow_threshold", h.slowTime,
			"query", event.Query)
		return
	}
	h.logger.Debug("query",
		"duration", duration.Round(time.Microsecond),
		"query", colorizeOperation(event))
}

func colorizeOperation(event *bun.QueryEvent) string {
	switch event.Operation() {
	case "SELECT":
		return selectColor.Sprint(event.Query)
	case "INSERT":
		return insertColor.Sprint(event.Query)
	case "UPDATE":
		return updateColor.Sprint(event.Query)
	case "DELETE":
		return deleteColor.Sprint(event.Query)
	default:
		return otherColor.Sprint(event.Query)
	}
}
