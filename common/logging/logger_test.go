// Copyright 2023 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("debug")
	assert.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLogLevel("WARN")
	assert.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLogLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLevelFlag(t *testing.T) {
	level := slog.LevelInfo
	f := LevelFlag{Level: &level}

	assert.NoError(t, f.Set("error"))
	assert.Equal(t, slog.LevelError, level)
	assert.Equal(t, "error", f.String())
	assert.Equal(t, "level", f.Type())

	assert.Error(t, f.Set("nope"))
	assert.Equal(t, slog.LevelError, level)
}

func TestNewLoggerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(buf, slog.LevelInfo, true)

	log.Debug("hidden")
	log.Info("claimed", slog.Int64("number", 42), slog.String("shard", "shard-0"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	entry := map[string]any{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "claimed", entry["message"])
	assert.Equal(t, "shard-0", entry["shard"])
	assert.EqualValues(t, 42, entry["number"])
}
