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

package flag

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamnative/numpool/registry"
	"github.com/streamnative/numpool/server"
)

func PublicAddr(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVarP(conf, "public-addr", "p", fmt.Sprintf("0.0.0.0:%d", server.DefaultPublicPort), "Public HTTP service bind address")
}

func InternalAddr(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVarP(conf, "internal-addr", "i", fmt.Sprintf("0.0.0.0:%d", server.DefaultInternalPort), "Internal grpc service bind address")
}

func MetricsAddr(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVarP(conf, "metrics-addr", "m", fmt.Sprintf("0.0.0.0:%d", server.DefaultMetricsPort), "Metrics service bind address")
}

func ConfigFile(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVarP(conf, "conf", "f", "", "Pool config file")
}

func DataDir(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVar(conf, "data-dir", "./data", "Base directory for relative pebble storage targets")
}

func OpenTimeout(cmd *cobra.Command, conf *time.Duration) {
	cmd.Flags().DurationVar(conf, "open-timeout", registry.DefaultOpenTimeout, "Max time to wait for each shard store to open")
}
