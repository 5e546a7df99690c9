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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(level logrus.Level, msg string, data logrus.Fields) *logrus.Entry {
	return &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC),
		Level:   level,
		Message: msg,
		Data:    data,
	}
}

func TestLog4jFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "repository", NameWidth: 6}
	out, err := f.Format(entry(logrus.WarnLevel, "cannot clone model", logrus.Fields{"model": "User", "count": 2}))
	require.NoError(t, err)

	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2025-03-04 05:06:07.008 WARNING "), line)
	assert.Contains(t, line, " - [main] reposi : cannot clone model count=2 model=User\n")
}

func TestJSONFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "database"}
	out, err := f.Format(entry(logrus.ErrorLevel, "SQL ERROR", logrus.Fields{"error": errors.New("boom")}))
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "database", rec["model"])
	assert.Equal(t, "SQL ERROR", rec["message"])
	assert.Equal(t, map[string]any{"error": "boom"}, rec["fields"])
}

func TestLoggerRegistry(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	l := NewLogger("registry-test")
	assert.Same(t, l, NewLogger("registry-test"))

	assert.True(t, SetLoggerLevel("registry-test", "debug"))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("never-created", "debug"))

	l.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" Warning "))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("verbose"))
	assert.Equal(t, logrus.TraceLevel, ParseLogLevel("trace"))
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("MODELREPO_TEST_INT", " 12 ")
	t.Setenv("MODELREPO_TEST_DURATION", "3")
	t.Setenv("MODELREPO_TEST_BAD", "x")

	assert.Equal(t, 12, EnvDefaultInt("MODELREPO_TEST_INT", 1))
	assert.Equal(t, 5, EnvDefaultInt("MODELREPO_TEST_BAD", 5))
	assert.Equal(t, 3*time.Second, EnvDefaultDuration("MODELREPO_TEST_DURATION", time.Second))
	assert.Equal(t, time.Minute, EnvDefaultDuration("MODELREPO_TEST_BAD", time.Minute))
	assert.Equal(t, "fallback", EnvDefaultString("MODELREPO_TEST_UNSET", "fallback"))
	assert.False(t, EnvDefaultBool("MODELREPO_TEST_BAD", true))
}
