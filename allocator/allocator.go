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
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/streamnative/numpool/common/metrics"
	"github.com/streamnative/numpool/model"
	"github.com/streamnative/numpool/registry"
)

var (
	// ErrPoolExhausted is returned when the claimed numbers already cover the
	// whole pool.
	ErrPoolExhausted = errors.New("numpool: pool exhausted")

	// ErrAllocationUnavailable is returned when no number could be claimed
	// within the attempt budget, either because the pool is nearly full or
	// because the shards are failing.
	ErrAllocationUnavailable = errors.New("numpool: allocation unavailable")
)

// ShardResolver gives the allocator the static list of shards.
type ShardResolver interface {
	Resolve() []registry.Shard
	PoolSize() int64
}

// Rand is the source for shard and candidate selection. It must be safe for
// concurrent use.
type Rand interface {
	IntN(n int) int
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) IntN(n int) int {
	return rand.IntN(n)
}

func (globalRand) Int64N(n int64) int64 {
	return rand.Int64N(n)
}

type Option func(*Allocator)

// WithMaxAttemptsPerShard sets K: a call makes at most K * shardCount claim
// attempts.
func WithMaxAttemptsPerShard(k int) Option {
	return func(a *Allocator) {
		if k > 0 {
			a.maxAttemptsPerShard = k
		}
	}
}

func WithRand(r Rand) Option {
	return func(a *Allocator) {
		a.rand = r
	}
}

// Allocator hands out numbers that were never handed out before.
//
// It holds no mutable state: concurrent Allocate calls only meet in the
// shard stores, whose uniqueness check decides which call wins a number.
type Allocator struct {
	shards              []registry.Shard
	poolSize            int64
	maxAttemptsPerShard int
	maxAttempts         int
	rand                Rand
	log                 *slog.Logger

	latency       metrics.LatencyHistogram
	attemptsHisto metrics.Histogram
	allocated     metrics.Counter
	exhausted     metrics.Counter
	unavailable   metrics.Counter
	collisions    metrics.Counter
	faults        metrics.Counter
	countFailures metrics.Counter
}

func New(resolver ShardResolver, options ...Option) *Allocator {
	a := &Allocator{
		shards:              resolver.Resolve(),
		poolSize:            resolver.PoolSize(),
		maxAttemptsPerShard: model.DefaultMaxAttemptsPerShard,
		rand:                globalRand{},
		log: slog.With(
			slog.String("component", "allocator"),
		),

		latency: metrics.NewLatencyHistogram("numpool_allocator_allocate_latency",
			"The latency of an allocate call", nil),
		attemptsHisto: metrics.NewCountHistogram("numpool_allocator_attempts",
			"The number of claim attempts made by an allocate call", nil),
		allocated: metrics.NewCounter("numpool_allocator_allocations",
			"The count of allocate calls by outcome", "count", map[string]any{"outcome": "allocated"}),
		exhausted: metrics.NewCounter("numpool_allocator_allocations",
			"The count of allocate calls by outcome", "count", map[string]any{"outcome": "pool_exhausted"}),
		unavailable: metrics.NewCounter("numpool_allocator_allocations",
			"The count of allocate calls by outcome", "count", map[string]any{"outcome": "unavailable"}),
		collisions: metrics.NewCounter("numpool_allocator_collisions",
			"The count of claim attempts on an already claimed number", "count", nil),
		faults: metrics.NewCounter("numpool_allocator_claim_faults",
			"The count of claim attempts that failed with a storage error", "count", nil),
		countFailures: metrics.NewCounter("numpool_allocator_count_failures",
			"The count of shard used-count reads that failed", "count", nil),
	}

	for _, opt := range options {
		opt(a)
	}
	a.maxAttempts = a.maxAttemptsPerShard * len(a.shards)
	return a
}

// Allocate claims a random unused number from the pool.
//
// It fails with ErrPoolExhausted when the shard counts show that every number
// is taken, and with ErrAllocationUnavailable when no claim succeeded within
// the attempt budget. A number claimed by a call whose caller has gone away
// stays claimed.
func (a *Allocator) Allocate(ctx context.Context) (int64, error) {
	timer := a.latency.Timer()
	defer timer.Done()

	if err := a.checkExhausted(ctx); err != nil {
		a.countOutcome(err)
		return 0, err
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		shard := a.shards[a.rand.IntN(len(a.shards))]
		candidate := shard.Range.Start + a.rand.Int64N(shard.Range.Size())

		a.log.Debug(
			"Trying number",
			slog.Int("attempt", attempt),
			slog.Int64("number", candidate),
			slog.String("shard", shard.Id),
		)

		claimed, err := shard.Store.TryClaim(ctx, candidate)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			a.faults.Inc()
			a.log.Warn(
				"Failed to claim number, trying another one",
				slog.Int("attempt", attempt),
				slog.Int64("number", candidate),
				slog.String("shard", shard.Id),
				slog.Any("error", err),
			)

		case claimed:
			a.attemptsHisto.Record(attempt)
			a.allocated.Inc()
			a.log.Debug(
				"Claimed number",
				slog.Int64("number", candidate),
				slog.String("shard", shard.Id),
			)
			return candidate, nil

		default:
			a.collisions.Inc()
			a.log.Debug(
				"Collision, retrying",
				slog.Int64("number", candidate),
				slog.String("shard", shard.Id),
			)
		}
	}

	a.attemptsHisto.Record(a.maxAttempts)
	a.unavailable.Inc()
	a.log.Error(
		"Failed to allocate a number",
		slog.Int("attempts", a.maxAttempts),
	)
	return 0, errors.Wrapf(ErrAllocationUnavailable, "no free number found after %d attempts", a.maxAttempts)
}

// checkExhausted compares the claimed numbers across the shards with the
// pool size.
//
// Shards whose count cannot be read are left out: the claim loop may still
// succeed on the others. If every read fails, or the readable shards are all
// full, the call is unavailable.
func (a *Allocator) checkExhausted(ctx context.Context) error {
	usage := a.usage(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	var used, readableSize int64
	var failed []ShardUsage
	for _, u := range usage {
		if u.Err != nil {
			failed = append(failed, u)
			continue
		}
		used += u.Used
		readableSize += u.Range.Size()
	}

	switch {
	case len(failed) == 0 && used >= a.poolSize:
		a.log.Warn(
			"Number pool is exhausted based on count check",
			slog.Int64("used", used),
			slog.Int64("pool-size", a.poolSize),
		)
		return errors.Wrapf(ErrPoolExhausted, "all the %d numbers have been used", a.poolSize)

	case len(failed) == len(usage):
		a.log.Error(
			"Failed to count the used numbers on every shard",
			slog.Any("error", failed[0].Err),
		)
		return fmt.Errorf("%w: failed to count the used numbers: %w", ErrAllocationUnavailable, failed[0].Err)

	case len(failed) > 0 && used >= readableSize:
		a.log.Warn(
			"Readable shards are full and the others cannot be counted",
			slog.Int("unreadable-shards", len(failed)),
			slog.Any("error", failed[0].Err),
		)
		return fmt.Errorf("%w: shard %q cannot be counted: %w", ErrAllocationUnavailable, failed[0].Id, failed[0].Err)
	}

	return nil
}

func (a *Allocator) countOutcome(err error) {
	switch {
	case errors.Is(err, ErrPoolExhausted):
		a.exhausted.Inc()
	case errors.Is(err, ErrAllocationUnavailable):
		a.unavailable.Inc()
	}
}
