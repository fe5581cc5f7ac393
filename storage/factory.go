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
	"io"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/streamnative/numpool/common/metrics"
)

type FactoryOptions struct {
	// DataDir is the base directory for relative pebble locations
	DataDir     string
	CacheSizeMB int64

	// Keep the pebble databases on an in-memory filesystem. Used for unit-tests
	InMemory bool
}

var DefaultFactoryOptions = &FactoryOptions{
	DataDir:     "",
	CacheSizeMB: 64,
	InMemory:    false,
}

// Factory opens the claim store of a shard from its storage target.
type Factory interface {
	io.Closer

	NewClaimStore(shardId string, target string) (ClaimStore, error)
}

type factory struct {
	sync.Mutex

	options *FactoryOptions
	cache   *pebble.Cache
	fs      vfs.FS

	memoryTables map[string]*memoryTable

	gaugeCacheSize metrics.Gauge
}

func NewFactory(options *FactoryOptions) Factory {
	if options == nil {
		options = DefaultFactoryOptions
	}
	cacheSizeMB := options.CacheSizeMB
	if cacheSizeMB == 0 {
		cacheSizeMB = DefaultFactoryOptions.CacheSizeMB
	}

	f := &factory{
		options: options,

		// Share a single cache instance across the databases for all the shards
		cache: pebble.NewCache(cacheSizeMB * 1024 * 1024),
		fs:    vfs.Default,

		memoryTables: make(map[string]*memoryTable),
	}
	if options.InMemory {
		f.fs = vfs.NewMem()
	}

	f.gaugeCacheSize = metrics.NewGauge("numpool_storage_pebble_max_cache_size",
		"The max size configured for the Pebble block cache in bytes",
		metrics.Bytes, map[string]any{}, func() int64 {
			return cacheSizeMB * 1024 * 1024
		})
	return f
}

func (f *factory) NewClaimStore(shardId string, target string) (ClaimStore, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	var store ClaimStore
	switch t.Scheme {
	case SchemePebble:
		if store, err = newPebbleStore(f, shardId, f.pebblePath(t.Location)); err != nil {
			return nil, err
		}
	case SchemeMemory:
		store = newMemoryStore(f.memoryTable(t.Location))
	}

	return newInstrumentedStore(shardId, store), nil
}

func (f *factory) pebblePath(location string) string {
	if filepath.IsAbs(location) || f.options.DataDir == "" {
		return location
	}
	return filepath.Join(f.options.DataDir, location)
}

// memoryTable returns the table backing a memory target. Stores opened on
// the same name share it, which lets a store be reopened with its data.
func (f *factory) memoryTable(name string) *memoryTable {
	f.Lock()
	defer f.Unlock()

	t, ok := f.memoryTables[name]
	if !ok {
		t = newMemoryTable()
		f.memoryTables[name] = t
	}
	return t
}

func (f *factory) Close() error {
	f.gaugeCacheSize.Unregister()
	f.cache.Unref()
	return nil
}
