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
	"context"
	"io"
	"time"

	"go.uber.org/multierr"

	"github.com/streamnative/numpool/allocator"
	"github.com/streamnative/numpool/model"
	"github.com/streamnative/numpool/registry"
	"github.com/streamnative/numpool/storage"
)

type localPool struct {
	registry *registry.Registry
	factory  storage.Factory
}

func (l *localPool) Close() error {
	return multierr.Combine(
		l.registry.Close(),
		l.factory.Close(),
	)
}

// OpenAllocator opens every shard of the pool in-process and returns an
// allocator over them. The returned closer releases the shard stores.
func OpenAllocator(ctx context.Context, pc model.PoolConfig, dataDir string, openTimeout time.Duration) (*allocator.Allocator, io.Closer, error) {
	factory := storage.NewFactory(&storage.FactoryOptions{
		DataDir:     dataDir,
		CacheSizeMB: storage.DefaultFactoryOptions.CacheSizeMB,
	})

	r, err := registry.New(ctx, pc, factory, registry.Options{OpenTimeout: openTimeout})
	if err != nil {
		return nil, nil, multierr.Append(err, factory.Close())
	}

	a := allocator.New(r, allocator.WithMaxAttemptsPerShard(pc.MaxAttemptsPerShard))
	return a, &localPool{registry: r, factory: factory}, nil
}
