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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/streamnative/numpool/cmd/allocate"
	"github.com/streamnative/numpool/cmd/health"
	"github.com/streamnative/numpool/cmd/serve"
	"github.com/streamnative/numpool/cmd/stats"
	"github.com/streamnative/numpool/common/logging"
	"github.com/streamnative/numpool/common/process"
)

var (
	rootCmd = &cobra.Command{
		Use:               "numpool",
		Short:             "Sharded unique number allocator",
		Long:              `Hands out unique random integers from a pool split across independent storage shards`,
		PersistentPreRunE: configureLogging,
	}
)

func init() {
	rootCmd.PersistentFlags().Var(logging.LevelFlag{Level: &logging.LogLevel}, "log-level", "Set logging level [debug|info|warn|error]")
	rootCmd.PersistentFlags().BoolVarP(&logging.LogJSON, "log-json", "j", false, "Print logs in JSON format")
	rootCmd.PersistentFlags().BoolVar(&process.PprofEnable, "profile", false, "Enable pprof profiler")
	rootCmd.PersistentFlags().StringVar(&process.PprofBindAddress, "profile-bind-address", "127.0.0.1:6060", "Bind address for pprof")

	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(health.Cmd)
	rootCmd.AddCommand(allocate.Cmd)
	rootCmd.AddCommand(stats.Cmd)
}

func configureLogging(*cobra.Command, []string) error {
	logging.ConfigureLogger()
	return nil
}

func main() {
	process.DoWithLabels(map[string]string{
		"numpool": "main",
	}, func() {
		if _, err := maxprocs.Set(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := rootCmd.Execute(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	})
}
