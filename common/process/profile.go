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

package process

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec
	"os"
	"time"

	"github.com/pkg/errors"
)

var (
	PprofEnable      bool
	PprofBindAddress string
)

func RunProfiling() io.Closer {
	s := &http.Server{
		Addr:              PprofBindAddress,
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: time.Second,
	}

	if !PprofEnable {
		// Do not start pprof server
		return s
	}

	slog.Info("Starting pprof server", slog.String("address", s.Addr))
	slog.Info(fmt.Sprintf("  use http://%s/debug/pprof to access the browser", s.Addr))
	slog.Info(fmt.Sprintf("  use `go tool pprof http://%s/debug/pprof/heap` to get inuse_space file", s.Addr))

	go DoWithLabels(map[string]string{
		"numpool": "pprof",
	}, func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(
				"Unable to start debug profiling server",
				slog.Any("error", err),
				slog.String("component", "pprof"),
			)
			os.Exit(1)
		}
	})

	return s
}
