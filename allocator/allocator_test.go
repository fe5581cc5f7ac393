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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/numpool/model"
	"github.com/streamnative/numpool/registry"
	"github.com/streamnative/numpool/storage"
)

var errUnreachable = errors.New("dial tcp 127.0.0.1:5436: connect: connection refused")

type staticResolver struct {
	shards []registry.Shard
}

func (r *staticResolver) Resolve() []registry.Shard {
	return r.shards
}

func (r *staticResolver) PoolSize() int64 {
	var size int64
	for _, s := range r.shards {
		size += s.Range.Size()
	}
	return size
}

// testStore wraps a store to inject faults and count the calls.
type testStore struct {
	storage.ClaimStore

	claims     atomic.Int64
	counts     atomic.Int64
	claimErr   error
	countErr   error
	alwaysFull bool
}

func (s *testStore) TryClaim(ctx context.Context, number int64) (bool, error) {
	s.claims.Add(1)
	if s.claimErr != nil {
		return false, s.claimErr
	}
	if s.alwaysFull {
		return false, nil
	}
	return s.ClaimStore.TryClaim(ctx, number)
}

func (s *testStore) UsedCount(ctx context.Context) (int64, error) {
	s.counts.Add(1)
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.ClaimStore.UsedCount(ctx)
}

func newTestStore(t *testing.T, factory storage.Factory, name string) *testStore {
	t.Helper()
	store, err := factory.NewClaimStore(name, "memory://"+name)
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(context.Background()))
	return &testStore{ClaimStore: store}
}

func newRegistry(t *testing.T, shards ...model.ShardConfig) *registry.Registry {
	t.Helper()
	factory := storage.NewFactory(&storage.FactoryOptions{InMemory: true})
	r, err := registry.New(context.Background(), model.PoolConfig{
		MaxAttemptsPerShard: model.DefaultMaxAttemptsPerShard,
		Shards:              shards,
	}, factory, registry.Options{})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, r.Close())
		assert.NoError(t, factory.Close())
	})
	return r
}

// sequenceRand returns the queued values in order, then zeroes.
type sequenceRand struct {
	sync.Mutex
	values []int64
}

func (r *sequenceRand) next() int64 {
	r.Lock()
	defer r.Unlock()
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[0]
	r.values = r.values[1:]
	return v
}

func (*sequenceRand) IntN(int) int {
	return 0
}

func (r *sequenceRand) Int64N(int64) int64 {
	return r.next()
}

func TestAllocateSingleShardExhaustion(t *testing.T) {
	r := newRegistry(t, model.ShardConfig{Id: "shard-0", Storage: "memory://shard-0", Range: model.Range{Start: 1, End: 2}})
	a := New(r)
	ctx := context.Background()

	n1, err := a.Allocate(ctx)
	assert.NoError(t, err)
	n2, err := a.Allocate(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, []int64{n1, n2})

	n3, err := a.Allocate(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.EqualValues(t, 0, n3)
}

func TestAllocateConcurrentTwoShards(t *testing.T) {
	r := newRegistry(t,
		model.ShardConfig{Id: "shard-0", Storage: "memory://shard-0", Range: model.Range{Start: 1, End: 500_000}},
		model.ShardConfig{Id: "shard-1", Storage: "memory://shard-1", Range: model.Range{Start: 500_001, End: 1_000_000}},
	)
	a := New(r)

	const calls = 10
	results := make([]int64, calls)
	wg := sync.WaitGroup{}
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := a.Allocate(context.Background())
			assert.NoError(t, err)
			results[i] = n
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, n := range results {
		assert.False(t, seen[n], "number %d returned twice", n)
		seen[n] = true
		assert.True(t, n >= 1 && n <= 1_000_000)
	}

	var used int64
	for _, u := range a.Usage(context.Background()) {
		assert.NoError(t, u.Err)
		used += u.Used
	}
	assert.EqualValues(t, calls, used)
}

func TestAllocateWholePoolConcurrently(t *testing.T) {
	shards := []model.ShardConfig{
		{Id: "shard-0", Storage: "memory://shard-0", Range: model.Range{Start: -50, End: 49}},
		{Id: "shard-1", Storage: "memory://shard-1", Range: model.Range{Start: 100, End: 199}},
		{Id: "shard-2", Storage: "memory://shard-2", Range: model.Range{Start: 1000, End: 1099}},
	}
	r := newRegistry(t, shards...)
	a := New(r, WithMaxAttemptsPerShard(50))
	require.EqualValues(t, 300, a.PoolSize())

	var mu sync.Mutex
	var allocated []int64
	wg := sync.WaitGroup{}
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n, err := a.Allocate(context.Background())
				if errors.Is(err, ErrPoolExhausted) {
					return
				}
				if errors.Is(err, ErrAllocationUnavailable) {
					continue
				}
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				allocated = append(allocated, n)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, allocated, 300)
	seen := map[int64]bool{}
	for _, n := range allocated {
		assert.False(t, seen[n], "number %d returned twice", n)
		seen[n] = true

		inRange := false
		for _, s := range shards {
			inRange = inRange || s.Range.Contains(n)
		}
		assert.True(t, inRange, "number %d is outside the pool", n)
	}

	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	factory := storage.NewFactory(&storage.FactoryOptions{InMemory: true})
	defer factory.Close()
	store := newTestStore(t, factory, "shard-0")

	ctx := context.Background()
	for _, n := range []int64{10, 11} {
		claimed, err := store.TryClaim(ctx, n)
		require.NoError(t, err)
		require.True(t, claimed)
	}
	store.claims.Store(0)

	rnd := &sequenceRand{values: []int64{0, 1, 0, 2}}
	a := New(&staticResolver{shards: []registry.Shard{
		{Id: "shard-0", Range: model.Range{Start: 10, End: 13}, Store: store},
	}}, WithRand(rnd))

	n, err := a.Allocate(ctx)
	assert.NoError(t, err)
	assert.EqualValues(t, 12, n)
	assert.EqualValues(t, 4, store.claims.Load())
}

func TestAllocateAttemptBudget(t *testing.T) {
	factory := storage.NewFactory(&storage.FactoryOptions{InMemory: true})
	defer factory.Close()

	s0 := newTestStore(t, factory, "shard-0")
	s0.alwaysFull = true
	s1 := newTestStore(t, factory, "shard-1")
	s1.alwaysFull = true

	a := New(&staticResolver{shards: []registry.Shard{
		{Id: "shard-0", Range: model.Range{Start: 1, End: 100}, Store: s0},
		{Id: "shard-1", Range: model.Range{Start: 101, End: 200}, Store: s1},
	}}, WithMaxAttemptsPerShard(7))

	// The counts say there is room, but every claim collides
	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, ErrAllocationUnavailable)
	assert.NotErrorIs(t, err, ErrPoolExhausted)
	assert.EqualValues(t, 14, s0.claims.Load()+s1.claims.Load())
}

func TestAllocateDefaultAttemptBudget(t *testing.T) {
	factory := storage.NewFactory(&storage.FactoryOptions{InMemory: true})
	defer factory.Close()

	s0 := newTestStore(t, factory, "shard-0")
	s0.claimErr = errUnreachable

	a := New(&staticResolver{shards: []registry.Shard{
		{Id: "shard-0", Range: model.Range{Start: 1, End: 100}, Store: s0},
	}})

	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, ErrAllocationUnavailable)
	assert.EqualValues(t, model.DefaultMaxAttemptsPerShard, s0.claims.Load())
}

func TestAllocateWithUnreachableShard(t *testing.T) {
	factory := storage.NewFactory(&storage.FactoryOptions{InMemory: true})
	defer factory.Close()

	down := newTestStore(t, factory, "shard-0")
	down.claimErr = errUnreachable
	down.countErr = errUnreachable
	up := newTestStore(t, factory, "shard-1")

	a := New(&staticResolver{shards: []registry.Shard{
		{Id: "shard-0", Range: model.Range{Start: 1, End: 500_000}, Store: down},
		{Id: "shard-1", Range: model.Range{Start: 500_001, End: 1_000_000}, Store: up},
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	successes := 0
	for i := 0; i < 20; i++ {
		n, err := a.Allocate(ctx)
		if err != nil {
			assert.ErrorIs(t, err, ErrAllocationUnavailable)
			continue
		}
		successes++
		assert.True(t, n >= 500_001 && n <= 1_000_000)
	}
	assert.Positive(t, successes)
	assert.NoError(t, ctx.Err())

	count, err := up.UsedCount(context.Background())
	assert.NoError(t, err)
	assert.EqualValues(t, successes, count)
}

func TestAllocateWithClosedShard(t *testing.T) {
	r := newRegistry(t,
		model.ShardConfig{Id: "shard-0", Storage: "memory://shard-0", Range: model.Range{Start: 1, End: 1000}},
		model.ShardConfig{Id: "shard-1", Storage: "memory://shard-1", Range: model.Range{Start: 1001, End: 2000}},
	)
	a := New(r)

	// The first shard becomes unreachable after startup
	require.NoError(t, r.Resolve()[0].Store.Close())

	successes := 0
	for i := 0; i < 10; i++ {
		n, err := a.Allocate(context.Background())
		if err != nil {
			assert.ErrorIs(t, err, ErrAllocationUnavailable)
			continue
		}
		successes++
		assert.True(t, n >= 1001 && n <= 2000)
	}
	assert.Positive(t, successes)
}

func TestAllocateCountFailure(t *testing.T) {
	factory := storage.NewFactory(&storage.FactoryOptions{InMemory: true})
	defer factory.Close()

	s0 := newTestStore(t, factory, "shard-0")
	s0.countErr = errUnreachable

	a := New(&staticResolver{shards: []registry.Shard{
		{Id: "shard-0", Range: model.Range{Start: 1, End: 100}, Store: s0},
	}})

	n, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, ErrAllocationUnavailable)
	assert.ErrorIs(t, err, errUnreachable)
	assert.EqualValues(t, 0, n)

	// No claim was attempted
	assert.EqualValues(t, 0, s0.claims.Load())
}

func TestAllocateReadableShardsFull(t *testing.T) {
	factory := storage.NewFactory(&storage.FactoryOptions{InMemory: true})
	defer factory.Close()

	full := newTestStore(t, factory, "shard-0")
	for _, n := range []int64{1, 2} {
		claimed, err := full.TryClaim(context.Background(), n)
		require.NoError(t, err)
		require.True(t, claimed)
	}
	full.claims.Store(0)

	down := newTestStore(t, factory, "shard-1")
	down.countErr = errUnreachable

	a := New(&staticResolver{shards: []registry.Shard{
		{Id: "shard-0", Range: model.Range{Start: 1, End: 2}, Store: full},
		{Id: "shard-1", Range: model.Range{Start: 3, End: 4}, Store: down},
	}})

	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, ErrAllocationUnavailable)
	assert.NotErrorIs(t, err, ErrPoolExhausted)
	assert.EqualValues(t, 0, full.claims.Load()+down.claims.Load())
}

func TestAllocateContextCancelled(t *testing.T) {
	r := newRegistry(t, model.ShardConfig{Id: "shard-0", Storage: "memory://shard-0", Range: model.Range{Start: 1, End: 10}})
	a := New(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Allocate(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	count, err := r.Resolve()[0].Store.UsedCount(context.Background())
	assert.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestUsage(t *testing.T) {
	factory := storage.NewFactory(&storage.FactoryOptions{InMemory: true})
	defer factory.Close()

	s0 := newTestStore(t, factory, "shard-0")
	s1 := newTestStore(t, factory, "shard-1")
	s1.countErr = errUnreachable

	claimed, err := s0.TryClaim(context.Background(), 3)
	require.NoError(t, err)
	require.True(t, claimed)

	a := New(&staticResolver{shards: []registry.Shard{
		{Id: "shard-0", Range: model.Range{Start: 1, End: 10}, Store: s0},
		{Id: "shard-1", Range: model.Range{Start: 11, End: 20}, Store: s1},
	}})

	usage := a.Usage(context.Background())
	require.Len(t, usage, 2)
	assert.Equal(t, "shard-0", usage[0].Id)
	assert.EqualValues(t, 1, usage[0].Used)
	assert.NoError(t, usage[0].Err)
	assert.Equal(t, "shard-1", usage[1].Id)
	assert.ErrorIs(t, usage[1].Err, errUnreachable)
	assert.EqualValues(t, 20, a.PoolSize())
}
