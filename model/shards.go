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

package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// GenerateShards splits [start, end] into numShards contiguous ranges. The
// storage target of each shard is obtained by formatting storagePattern with
// the shard index, eg: "pebble://data/shard-%d".
func GenerateShards(numShards int, r Range, storagePattern string) ([]ShardConfig, error) {
	if numShards <= 0 {
		return nil, errors.Errorf("invalid number of shards: %d", numShards)
	}
	size := r.Size()
	if size < int64(numShards) {
		return nil, errors.Errorf("range %v is too small for %d shards", r, numShards)
	}

	bucketSize := size / int64(numShards)
	shards := make([]ShardConfig, numShards)
	for i := 0; i < numShards; i++ {
		lowerBound := r.Start + int64(i)*bucketSize
		upperBound := lowerBound + bucketSize - 1
		if i == numShards-1 {
			upperBound = r.End
		}
		shards[i] = ShardConfig{
			Id:      fmt.Sprintf("shard-%d", i),
			Storage: fmt.Sprintf(storagePattern, i),
			Range: Range{
				Start: lowerBound,
				End:   upperBound,
			},
		}
	}
	return shards, nil
}
