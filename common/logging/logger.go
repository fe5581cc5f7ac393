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
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

const DefaultLogLevel = slog.LevelInfo

var (
	// LogLevel Used for flags.
	LogLevel = DefaultLogLevel
	// LogJSON Used for flags.
	LogJSON bool
)

func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch {
	case strings.EqualFold(levelStr, slog.LevelDebug.String()):
		return slog.LevelDebug, nil
	case strings.EqualFold(levelStr, slog.LevelInfo.String()):
		return slog.LevelInfo, nil
	case strings.EqualFold(levelStr, slog.LevelWarn.String()):
		return slog.LevelWarn, nil
	case strings.EqualFold(levelStr, slog.LevelError.String()):
		return slog.LevelError, nil
	}

	return slog.LevelInfo, fmt.Errorf("unknown level string: '%s', defaulting to LevelInfo", levelStr)
}

// LevelFlag adapts a slog.Level to the pflag.Value interface, so the log
// level can be passed as `--log-level debug`.
type LevelFlag struct {
	Level *slog.Level
}

func (l LevelFlag) String() string {
	if l.Level == nil {
		return DefaultLogLevel.String()
	}
	return strings.ToLower(l.Level.String())
}

func (l LevelFlag) Set(s string) error {
	level, err := ParseLogLevel(s)
	if err != nil {
		return err
	}
	*l.Level = level
	return nil
}

func (LevelFlag) Type() string {
	return "level"
}

func ConfigureLogger() {
	slog.SetDefault(NewLogger(os.Stdout, LogLevel, LogJSON))
}

// NewLogger builds a slog logger that writes through zerolog.
func NewLogger(out io.Writer, level slog.Level, json bool) *slog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	//nolint
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	zerologLogger := zerolog.New(out).
		With().
		Timestamp().
		Stack().
		Logger()

	if !json {
		zerologLogger = zerologLogger.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.StampMicro,
		})
	}

	return slog.New(
		slogzerolog.Option{
			Level:  level,
			Logger: &zerologLogger,
		}.NewZerologHandler(),
	)
}
