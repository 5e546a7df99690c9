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

package serialization

import (
	"fmt"

	"github.com/tomoncle/modelrepo/database"
	"github.com/tomoncle/modelrepo/repoerr"
	"github.com/tomoncle/modelrepo/schema"
)

// ModelFromValues converts raw column values, given in the field order of
// target, and builds a target value from them. A conversion or construction
// failure is logged with every raw value and returned as a *repoerr.MappingError.
func ModelFromValues(strategy Strategy, target *schema.Model, raw []any) (any, error) {
	if len(raw) != len(target.Fields) {
		err := &repoerr.MappingError{
			Model:  target.Name,
			Values: raw,
			Err:    fmt.Errorf("expected %d values, got %d", len(target.Fields), len(raw)),
		}
		logMappingError("row shape mismatch", err)
		return nil, err
	}

	values := make([]any, len(raw))
	for i, f := range target.Fields {
		v, err := strategy.FromDatabaseValue(f, raw[i])
		if err != nil {
			merr := &repoerr.MappingError{Model: target.Name, Parameter: f.Name, Value: raw[i], Values: raw, Err: err}
			logMappingError("row mapping error", merr)
			return nil, merr
		}
		values[i] = v
	}

	model, err := target.Build(values)
	if err != nil {
		merr := &repoerr.MappingError{Model: target.Name, Values: raw, Err: err}
		logMappingError("model building error", merr)
		return nil, merr
	}
	return model, nil
}

func logMappingError(msg string, err *repoerr.MappingError) {
	fields := []interface{}{
		"model", err.Model,
		"parameter", err.Parameter,
		"value", fmt.Sprintf("%v", err.Value),
		"valueType", fmt.Sprintf("%T", err.Value),
		"error", err.Err.Error(),
	}
	for i, v := range err.Values {
		fields = append(fields, fmt.Sprintf("value[%d]", i), fmt.Sprintf("%T: %v", v, v))
	}
	database.GetLogger().Error(msg, fields...)
}
