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
	"sync"
	"sync/atomic"
	"time"
)

type memoryTable struct {
	sync.Mutex

	initialized bool
	numbers     map[int64]int64
}

func newMemoryTable() *memoryTable {
	return &memoryTable{numbers: make(map[int64]int64)}
}

// memoryStore is a non-durable ClaimStore with the same semantics as the
// pebble one. The data lives in the factory, so closing a store and opening
// it again keeps the claimed numbers.
type memoryStore struct {
	table  *memoryTable
	closed atomic.Bool
}

func newMemoryStore(table *memoryTable) ClaimStore {
	return &memoryStore{table: table}
}

func (m *memoryStore) InitSchema(ctx context.Context) error {
	if err := m.check(ctx); err != nil {
		return err
	}

	m.table.Lock()
	defer m.table.Unlock()
	m.table.initialized = true
	return nil
}

func (m *memoryStore) TryClaim(ctx context.Context, number int64) (bool, error) {
	if err := m.check(ctx); err != nil {
		return false, err
	}

	m.table.Lock()
	defer m.table.Unlock()

	if !m.table.initialized {
		return false, ErrSchemaNotInitialized
	}
	if _, ok := m.table.numbers[number]; ok {
		return false, nil
	}
	m.table.numbers[number] = time.Now().UnixMilli()
	return true, nil
}

func (m *memoryStore) UsedCount(ctx context.Context) (int64, error) {
	if err := m.check(ctx); err != nil {
		return 0, err
	}

	m.table.Lock()
	defer m.table.Unlock()

	if !m.table.initialized {
		return 0, ErrSchemaNotInitialized
	}
	return int64(len(m.table.numbers)), nil
}

func (m *memoryStore) check(ctx context.Context) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}
	return ctx.Err()
}

func (m *memoryStore) Close() error {
	m.closed.Store(true)
	return nil
}
