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

package poolconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/streamnative/numpool/model"
)

const EnvPrefix = "NUMPOOL"

// Layout describes a pool whose range is split evenly across a number of
// shards, instead of listing every shard.
type Layout struct {
	Shards  int
	Range   model.Range
	Storage string
}

type document struct {
	MaxAttemptsPerShard int
	Shards              []model.ShardConfig
	Generate            *Layout
}

// NewViper prepares a viper instance reading the pool config from the given
// file, or from `pool.yaml` in the default locations, with `NUMPOOL_*`
// environment overrides.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"maxAttemptsPerShard",
		"generate.shards",
		"generate.range",
		"generate.storage",
	} {
		_ = v.BindEnv(key)
	}
	v.SetDefault("maxAttemptsPerShard", model.DefaultMaxAttemptsPerShard)

	if configFile == "" {
		v.SetConfigName("pool")
		v.AddConfigPath("/numpool/conf")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(configFile)
	}
	return v
}

// Load reads and validates the pool config.
func Load(v *viper.Viper) (model.PoolConfig, error) {
	pc := model.PoolConfig{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return pc, errors.Wrap(err, "failed to read pool config")
		}
		slog.Debug("No pool config file found, using the environment only")
	}

	doc := document{}
	if err := v.Unmarshal(&doc, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		model.RangeViperHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return pc, errors.Wrap(err, "failed to load pool config")
	}

	pc.MaxAttemptsPerShard = doc.MaxAttemptsPerShard
	pc.Shards = doc.Shards

	if len(pc.Shards) == 0 && doc.Generate != nil && doc.Generate.Shards > 0 {
		shards, err := model.GenerateShards(doc.Generate.Shards, doc.Generate.Range, doc.Generate.Storage)
		if err != nil {
			return pc, errors.Wrap(err, "failed to generate the shards layout")
		}
		pc.Shards = shards
	}

	applyStorageOverrides(pc.Shards)

	if err := pc.Validate(); err != nil {
		return pc, err
	}
	return pc, nil
}

// The storage target of shard i can be replaced with NUMPOOL_SHARD_<i>_STORAGE.
func applyStorageOverrides(shards []model.ShardConfig) {
	for i := range shards {
		env := fmt.Sprintf("%s_SHARD_%d_STORAGE", EnvPrefix, i)
		if target, ok := os.LookupEnv(env); ok && target != "" {
			slog.Info(
				"Overriding shard storage from environment",
				slog.String("shard", shards[i].Id),
				slog.String("env", env),
			)
			shards[i].Storage = target
		}
	}
}
