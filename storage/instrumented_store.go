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

package storage

import (
	"context"
	"sync/atomic"

	"github.com/streamnative/numpool/common/metrics"
)

type instrumentedStore struct {
	ClaimStore

	lastUsedCount atomic.Int64

	claimLatency metrics.LatencyHistogram
	claims       metrics.Counter
	collisions   metrics.Counter
	claimErrors  metrics.Counter
	countErrors  metrics.Counter
	usedGauge    metrics.Gauge
}

func newInstrumentedStore(shardId string, store ClaimStore) ClaimStore {
	labels := metrics.LabelsForShard(shardId)
	s := &instrumentedStore{
		ClaimStore: store,

		claimLatency: metrics.NewLatencyHistogram("numpool_storage_claim_latency",
			"The latency of a claim attempt on the shard store", labels),
		claims: metrics.NewCounter("numpool_storage_claims",
			"The count of numbers successfully claimed", "count", labels),
		collisions: metrics.NewCounter("numpool_storage_claim_collisions",
			"The count of claims rejected because the number was already claimed", "count", labels),
		claimErrors: metrics.NewCounter("numpool_storage_claim_errors",
			"The count of claims that failed with a storage error", "count", labels),
		countErrors: metrics.NewCounter("numpool_storage_count_errors",
			"The count of used-count reads that failed", "count", labels),
	}

	s.usedGauge = metrics.NewGauge("numpool_storage_used_numbers",
		"The last observed count of claimed numbers on the shard",
		"count", labels, s.lastUsedCount.Load)
	return s
}

func (s *instrumentedStore) TryClaim(ctx context.Context, number int64) (bool, error) {
	timer := s.claimLatency.Timer()
	defer timer.Done()

	claimed, err := s.ClaimStore.TryClaim(ctx, number)
	switch {
	case err != nil:
		s.claimErrors.Inc()
	case claimed:
		s.claims.Inc()
		s.lastUsedCount.Add(1)
	default:
		s.collisions.Inc()
	}
	return claimed, err
}

func (s *instrumentedStore) UsedCount(ctx context.Context) (int64, error) {
	count, err := s.ClaimStore.UsedCount(ctx)
	if err != nil {
		s.countErrors.Inc()
		return 0, err
	}
	s.lastUsedCount.Store(count)
	return count, nil
}

func (s *instrumentedStore) Close() error {
	s.usedGauge.Unregister()
	return s.ClaimStore.Close()
}
