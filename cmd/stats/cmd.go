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

package stats

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/streamnative/numpool/cmd/flag"
	"github.com/streamnative/numpool/cmd/poolconfig"
	"github.com/streamnative/numpool/registry"
)

type Config struct {
	ConfigFile  string
	DataDir     string
	OpenTimeout time.Duration
	Timeout     time.Duration
}

func NewConfig() Config {
	return Config{
		OpenTimeout: registry.DefaultOpenTimeout,
		Timeout:     10 * time.Second,
	}
}

var (
	config = NewConfig()

	Cmd = &cobra.Command{
		Use:   "stats",
		Short: "Print the pool usage",
		Long:  `Open the pool shards in-process and print how many numbers each shard has handed out`,
		Args:  cobra.NoArgs,
		RunE:  exec,
	}
)

func init() {
	flag.ConfigFile(Cmd, &config.ConfigFile)
	flag.DataDir(Cmd, &config.DataDir)
	flag.OpenTimeout(Cmd, &config.OpenTimeout)
	Cmd.Flags().DurationVar(&config.Timeout, "timeout", config.Timeout, "Max duration of the usage query")
	Cmd.SilenceUsage = true
}

func exec(cmd *cobra.Command, _ []string) (err error) {
	pc, err := poolconfig.Load(poolconfig.NewViper(config.ConfigFile))
	if err != nil {
		return err
	}

	a, closer, err := poolconfig.OpenAllocator(cmd.Context(), pc, config.DataDir, config.OpenTimeout)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closer.Close())
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), config.Timeout)
	defer cancel()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SHARD\tRANGE\tSIZE\tUSED\tERROR")

	var used int64
	for _, u := range a.Usage(ctx) {
		errStr := ""
		if u.Err != nil {
			errStr = u.Err.Error()
		} else {
			used += u.Used
		}
		_, _ = fmt.Fprintf(w, "%s\t%v\t%d\t%d\t%s\n", u.Id, u.Range, u.Range.Size(), u.Used, errStr)
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t\t%d\t%d\t\n", a.PoolSize(), used)
	return w.Flush()
}
