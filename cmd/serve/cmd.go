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

package serve

import (
	"io"
	"log/slog"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamnative/numpool/cmd/flag"
	"github.com/streamnative/numpool/cmd/poolconfig"
	"github.com/streamnative/numpool/common/process"
	"github.com/streamnative/numpool/model"
	"github.com/streamnative/numpool/server"
)

var (
	conf       = server.NewConfig()
	configFile string

	Cmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the numpool server",
		Long:  `Start the HTTP allocation service over the shards listed in the pool config`,
		RunE:  exec,
	}
)

func init() {
	Cmd.Flags().SortFlags = false

	flag.ConfigFile(Cmd, &configFile)
	flag.PublicAddr(Cmd, &conf.PublicServiceAddr)
	flag.InternalAddr(Cmd, &conf.InternalServiceAddr)
	flag.MetricsAddr(Cmd, &conf.MetricsServiceAddr)
	flag.DataDir(Cmd, &conf.DataDir)
	flag.OpenTimeout(Cmd, &conf.OpenTimeout)
	Cmd.Flags().Int64Var(&conf.DbBlockCacheMB, "db-cache-size-mb", conf.DbBlockCacheMB, "Max size of the shared pebble cache")
	Cmd.Flags().DurationVar(&conf.RequestTimeout, "request-timeout", conf.RequestTimeout, "Max duration of a single allocation request")
}

func loadConfig() (*viper.Viper, error) {
	v := poolconfig.NewViper(configFile)
	pc, err := poolconfig.Load(v)
	if err != nil {
		return nil, err
	}
	conf.Pool = pc
	return v, nil
}

// The shard layout cannot change while the server runs: a moved range could
// hand out numbers twice. Changes on disk are only reported.
func watchConfig(v *viper.Viper, current model.PoolConfig) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := poolconfig.Load(v)
		if err != nil {
			slog.Warn(
				"Pool config changed on disk and is invalid",
				slog.String("file", e.Name),
				slog.Any("error", err),
			)
			return
		}

		if !reflect.DeepEqual(updated, current) {
			slog.Warn(
				"Pool config changed on disk, restart the server to apply it",
				slog.String("file", e.Name),
				slog.String("op", e.Op.String()),
			)
		}
	})
	v.WatchConfig()
}

func exec(*cobra.Command, []string) error {
	v, err := loadConfig()
	if err != nil {
		return err
	}
	watchConfig(v, conf.Pool)

	process.RunProcess(func() (io.Closer, error) {
		return server.New(conf)
	})
	return nil
}
