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

package main

import (
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/streamnative/numpool/common/logging"
)

func TestLogLevelFlag(t *testing.T) {
	for _, test := range []struct {
		name          string
		level         string
		expectedErr   bool
		expectedLevel slog.Level
	}{
		{"debug", "debug", false, slog.LevelDebug},
		{"info", "info", false, slog.LevelInfo},
		{"warn", "warn", false, slog.LevelWarn},
		{"error", "ERROR", false, slog.LevelError},
		{"junk", "junk", true, slog.LevelInfo},
	} {
		t.Run(test.name, func(t *testing.T) {
			logging.LogLevel = logging.DefaultLogLevel
			rootCmd.SetArgs([]string{"--log-level", test.level})
			rootCmd.RunE = func(*cobra.Command, []string) error {
				assert.Equal(t, test.expectedLevel, logging.LogLevel)
				return nil
			}

			err := rootCmd.Execute()
			if test.expectedErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, test.expectedLevel, logging.LogLevel)
		})
	}
}
