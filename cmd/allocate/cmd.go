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

package allocate

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
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
	Count       int
	Timeout     time.Duration
}

func NewConfig() Config {
	return Config{
		OpenTimeout: registry.DefaultOpenTimeout,
		Count:       1,
		Timeout:     5 * time.Second,
	}
}

var (
	config = NewConfig()

	Cmd = &cobra.Command{
		Use:   "allocate",
		Short: "Allocate numbers from the pool",
		Long:  `Open the pool shards in-process, allocate unique numbers and print them, one per line`,
		Args:  cobra.NoArgs,
		RunE:  exec,
	}
)

func init() {
	flag.ConfigFile(Cmd, &config.ConfigFile)
	flag.DataDir(Cmd, &config.DataDir)
	flag.OpenTimeout(Cmd, &config.OpenTimeout)
	Cmd.Flags().IntVarP(&config.Count, "count", "n", config.Count, "Number of numbers to allocate")
	Cmd.Flags().DurationVar(&config.Timeout, "timeout", config.Timeout, "Max duration of each allocation")
	Cmd.SilenceUsage = true
}

func exec(cmd *cobra.Command, _ []string) (err error) {
	if config.Count <= 0 {
		return errors.Errorf("invalid count: %d", config.Count)
	}

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

	for i := 0; i < config.Count; i++ {
		ctx, cancel := context.WithTimeout(cmd.Context(), config.Timeout)
		n, err := a.Allocate(ctx)
		cancel()
		if err != nil {
			return errors.Wrapf(err, "allocated %d of %d numbers", i, config.Count)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}
