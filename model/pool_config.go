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
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const DefaultMaxAttemptsPerShard = 10

// Range is an inclusive interval of integers.
type Range struct {
	Start int64 `json:"start" yaml:"start"`
	End   int64 `json:"end" yaml:"end"`
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// Size is the number of integers in the range. Ranges wider than
// math.MaxInt64 are rejected by validation, so the result never overflows
// for a validated range.
func (r Range) Size() int64 {
	if r.End < r.Start {
		return 0
	}
	return int64(uint64(r.End) - uint64(r.Start) + 1)
}

func (r Range) Contains(n int64) bool {
	return n >= r.Start && n <= r.End
}

func (r Range) Overlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r Range) tooWide() bool {
	return r.End >= r.Start && uint64(r.End)-uint64(r.Start) >= math.MaxInt64
}

type ShardConfig struct {
	Id      string `json:"id" yaml:"id"`
	Storage string `json:"storage" yaml:"storage"`
	Range   Range  `json:"range" yaml:"range"`
}

type PoolConfig struct {
	MaxAttemptsPerShard int           `json:"maxAttemptsPerShard" yaml:"maxAttemptsPerShard"`
	Shards              []ShardConfig `json:"shards" yaml:"shards"`
}

func (c PoolConfig) PoolSize() int64 {
	var size int64
	for _, s := range c.Shards {
		size += s.Range.Size()
	}
	return size
}

// Validate checks every shard descriptor and reports all the problems found.
func (c PoolConfig) Validate() error {
	var errs []string

	if c.MaxAttemptsPerShard <= 0 {
		errs = append(errs, fmt.Sprintf("maxAttemptsPerShard must be > 0, got %d", c.MaxAttemptsPerShard))
	}

	if len(c.Shards) == 0 {
		errs = append(errs, "at least one shard must be configured")
	}

	ids := make(map[string]bool)
	var total uint64
	overflow := false
	for i, s := range c.Shards {
		switch {
		case s.Id == "":
			errs = append(errs, fmt.Sprintf("shards[%d].id must be specified", i))
		case ids[s.Id]:
			errs = append(errs, fmt.Sprintf("shards[%d].id %q is duplicated", i, s.Id))
		}
		ids[s.Id] = true

		if s.Storage == "" {
			errs = append(errs, fmt.Sprintf("shards[%d].storage must be specified", i))
		}

		if s.Range.End < s.Range.Start {
			errs = append(errs, fmt.Sprintf("shards[%d].range %v is empty", i, s.Range))
			continue
		}
		if s.Range.tooWide() {
			errs = append(errs, fmt.Sprintf("shards[%d].range %v is too wide", i, s.Range))
			continue
		}
		if total += uint64(s.Range.Size()); total > math.MaxInt64 {
			overflow = true
			total = 0
		}
	}

	if overflow {
		errs = append(errs, "the total pool size overflows int64")
	}

	for _, o := range overlapping(c.Shards) {
		errs = append(errs, fmt.Sprintf("shard %q range %v overlaps shard %q range %v",
			o[0].Id, o[0].Range, o[1].Id, o[1].Range))
	}

	if len(errs) > 0 {
		return errors.Errorf("invalid pool config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// overlapping returns the pairs of neighbouring shards, ordered by range
// start, whose ranges intersect.
func overlapping(shards []ShardConfig) [][2]ShardConfig {
	sorted := make([]ShardConfig, 0, len(shards))
	for _, s := range shards {
		if s.Range.End >= s.Range.Start {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Range.Start < sorted[j].Range.Start
	})

	var res [][2]ShardConfig
	maxEnd := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[maxEnd].Range.Overlaps(sorted[i].Range) {
			res = append(res, [2]ShardConfig{sorted[maxEnd], sorted[i]})
		}
		if sorted[i].Range.End > sorted[maxEnd].Range.End {
			maxEnd = i
		}
	}
	return res
}
