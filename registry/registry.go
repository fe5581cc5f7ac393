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

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	time2 "github.com/streamnative/numpool/common/time"
	"github.com/streamnative/numpool/model"
	"github.com/streamnative/numpool/storage"
)

var ErrShardConfiguration = errors.New("numpool: shard configuration error")

const DefaultOpenTimeout = 30 * time.Second

// Shard is a resolved shard descriptor: the configured range together with
// the open store holding the numbers claimed in it.
type Shard struct {
	Id    string
	Range model.Range
	Store storage.ClaimStore
}

type Options struct {
	// OpenTimeout bounds the time spent retrying to open a shard store
	OpenTimeout time.Duration
}

// Registry is the static table of shards. It is built once at startup and
// never changes afterwards, so it can be shared by any number of goroutines.
type Registry struct {
	shards   []Shard
	poolSize int64
	log      *slog.Logger
}

// New validates the pool configuration, opens the store of every shard and
// initializes its schema. Any failure is reported as ErrShardConfiguration
// and leaves no store open.
func New(ctx context.Context, config model.PoolConfig, factory storage.Factory, options Options) (*Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShardConfiguration, err)
	}

	if options.OpenTimeout <= 0 {
		options.OpenTimeout = DefaultOpenTimeout
	}

	r := &Registry{
		shards:   make([]Shard, 0, len(config.Shards)),
		poolSize: config.PoolSize(),
		log: slog.With(
			slog.String("component", "shard-registry"),
		),
	}

	for _, sc := range config.Shards {
		store, err := r.openShard(ctx, sc, factory, options)
		if err != nil {
			return nil, multierr.Append(
				fmt.Errorf("%w: shard %q: %w", ErrShardConfiguration, sc.Id, err),
				r.Close(),
			)
		}

		r.shards = append(r.shards, Shard{
			Id:    sc.Id,
			Range: sc.Range,
			Store: store,
		})
	}

	r.log.Info(
		"Shard registry resolved",
		slog.Int("shards", len(r.shards)),
		slog.Int64("pool-size", r.poolSize),
	)
	return r, nil
}

func (r *Registry) openShard(ctx context.Context, sc model.ShardConfig, factory storage.Factory, options Options) (storage.ClaimStore, error) {
	ctx, cancel := context.WithTimeout(ctx, options.OpenTimeout)
	defer cancel()

	var store storage.ClaimStore
	var lastErr error
	err := backoff.RetryNotify(func() error {
		s, err := factory.NewClaimStore(sc.Id, sc.Storage)
		if errors.Is(err, storage.ErrUnsupportedTarget) {
			return backoff.Permanent(err)
		} else if err != nil {
			return err
		}

		if err := s.InitSchema(ctx); err != nil {
			_ = s.Close()
			if errors.Is(err, storage.ErrSchemaMismatch) {
				return backoff.Permanent(err)
			}
			return err
		}

		store = s
		return nil
	}, time2.NewBackOff(ctx), func(err error, duration time.Duration) {
		lastErr = err
		r.log.Warn(
			"Failed to open shard store, retrying later",
			slog.String("shard", sc.Id),
			slog.String("storage", sc.Storage),
			slog.Any("error", err),
			slog.Duration("retry-after", duration),
		)
	})
	if err != nil {
		if lastErr != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(lastErr, "timed out opening the shard store")
		}
		return nil, err
	}

	r.log.Info(
		"Opened shard",
		slog.String("shard", sc.Id),
		slog.String("storage", sc.Storage),
		slog.Any("range", sc.Range),
	)
	return store, nil
}

// Resolve returns the shards in configuration order. The slice is a copy.
func (r *Registry) Resolve() []Shard {
	res := make([]Shard, len(r.shards))
	copy(res, r.shards)
	return res
}

// PoolSize is the total count of numbers across all the shards.
func (r *Registry) PoolSize() int64 {
	return r.poolSize
}

func (r *Registry) Close() error {
	var err error
	for _, s := range r.shards {
		err = multierr.Append(err, s.Store.Close())
	}
	return err
}
