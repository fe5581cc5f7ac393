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

package allocator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/streamnative/numpool/model"
)

type ShardUsage struct {
	Id    string
	Range model.Range
	Used  int64
	Err   error
}

// Usage reads the used count of every shard concurrently. A failed read is
// reported in the Err field of its shard.
func (a *Allocator) Usage(ctx context.Context) []ShardUsage {
	return a.usage(ctx)
}

func (a *Allocator) usage(ctx context.Context) []ShardUsage {
	usage := make([]ShardUsage, len(a.shards))

	var g errgroup.Group
	for i, s := range a.shards {
		usage[i] = ShardUsage{Id: s.Id, Range: s.Range}
		g.Go(func() error {
			usage[i].Used, usage[i].Err = s.Store.UsedCount(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for _, u := range usage {
		if u.Err != nil {
			a.countFailures.Inc()
		}
	}
	return usage
}

// PoolSize is the total count of numbers across all the shards.
func (a *Allocator) PoolSize() int64 {
	return a.poolSize
}
