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

package server

import (
	"fmt"
	"time"

	"github.com/streamnative/numpool/model"
	"github.com/streamnative/numpool/registry"
	"github.com/streamnative/numpool/storage"
)

const (
	DefaultPublicPort   = 8080
	DefaultInternalPort = 6649
	DefaultMetricsPort  = 8081

	DefaultRequestTimeout = 5 * time.Second
)

type Config struct {
	PublicServiceAddr   string
	InternalServiceAddr string
	MetricsServiceAddr  string

	DataDir        string
	DbBlockCacheMB int64
	InMemory       bool

	RequestTimeout time.Duration
	OpenTimeout    time.Duration

	Pool model.PoolConfig
}

func NewConfig() Config {
	return Config{
		PublicServiceAddr:   fmt.Sprintf("0.0.0.0:%d", DefaultPublicPort),
		InternalServiceAddr: fmt.Sprintf("0.0.0.0:%d", DefaultInternalPort),
		MetricsServiceAddr:  fmt.Sprintf("0.0.0.0:%d", DefaultMetricsPort),
		DataDir:             "./data",
		DbBlockCacheMB:      storage.DefaultFactoryOptions.CacheSizeMB,
		RequestTimeout:      DefaultRequestTimeout,
		OpenTimeout:         registry.DefaultOpenTimeout,
		Pool: model.PoolConfig{
			MaxAttemptsPerShard: model.DefaultMaxAttemptsPerShard,
		},
	}
}
