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
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

const schemaVersion int64 = 1

var (
	schemaVersionKey = []byte("meta/schema-version")
	usedCountKey     = []byte("meta/used-count")
	numberKeyPrefix  = []byte("n/")
)

// pebbleStore keeps the claimed numbers of a shard in its own pebble
// database. Each number is a key; the row count is persisted next to them
// and updated in the same batch as the insert.
type pebbleStore struct {
	sync.RWMutex

	shardId string
	dbPath  string
	db      *pebble.DB
	closed  bool
	log     *slog.Logger
}

func newPebbleStore(f *factory, shardId string, dbPath string) (ClaimStore, error) {
	log := slog.With(
		slog.String("component", "pebble-claim-store"),
		slog.String("shard", shardId),
		slog.String("path", dbPath),
	)

	pbOptions := &pebble.Options{
		Cache:        f.cache,
		MemTableSize: 4 * 1024 * 1024,
		FS:           f.fs,
		Logger: &pebbleLogger{
			log.With(slog.String("component", "pebble")),
		},

		FormatMajorVersion: pebble.FormatNewest,
	}

	db, err := pebble.Open(dbPath, pbOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	log.Info("Opened claim store")
	return &pebbleStore{
		shardId: shardId,
		dbPath:  dbPath,
		db:      db,
		log:     log,
	}, nil
}

func (p *pebbleStore) InitSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()

	if p.closed {
		return ErrStoreClosed
	}

	version, err := p.getInt64(schemaVersionKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		b := p.db.NewBatch()
		defer b.Close()

		if err := b.Set(schemaVersionKey, encodeInt64(schemaVersion), nil); err != nil {
			return err
		}
		if err := b.Set(usedCountKey, encodeInt64(0), nil); err != nil {
			return err
		}
		if err := b.Commit(pebble.Sync); err != nil {
			return errors.Wrap(err, "failed to initialize schema")
		}
		p.log.Info("Initialized schema", slog.Int64("schema-version", schemaVersion))
		return nil

	case err != nil:
		return errors.Wrap(err, "failed to read schema version")

	case version != schemaVersion:
		return errors.Wrapf(ErrSchemaMismatch, "found version %d, expected %d", version, schemaVersion)
	}

	p.log.Debug("Schema already initialized", slog.Int64("schema-version", version))
	return nil
}

func (p *pebbleStore) TryClaim(ctx context.Context, number int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	// Check-and-insert is serialized per shard, that is what makes the
	// number unique.
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return false, ErrStoreClosed
	}

	count, err := p.usedCount()
	if err != nil {
		return false, err
	}

	key := numberKey(number)
	_, closer, err := p.db.Get(key)
	if err == nil {
		_ = closer.Close()
		return false, nil
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return false, errors.Wrapf(err, "failed to read number %d", number)
	}

	b := p.db.NewBatch()
	defer b.Close()

	if err := b.Set(key, encodeInt64(time.Now().UnixMilli()), nil); err != nil {
		return false, err
	}
	if err := b.Set(usedCountKey, encodeInt64(count+1), nil); err != nil {
		return false, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return false, errors.Wrapf(err, "failed to claim number %d", number)
	}
	return true, nil
}

func (p *pebbleStore) UsedCount(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.RLock()
	defer p.RUnlock()

	if p.closed {
		return 0, ErrStoreClosed
	}
	return p.usedCount()
}

func (p *pebbleStore) usedCount() (int64, error) {
	count, err := p.getInt64(usedCountKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, ErrSchemaNotInitialized
	} else if err != nil {
		return 0, errors.Wrap(err, "failed to read used count")
	}
	return count, nil
}

func (p *pebbleStore) getInt64(key []byte) (int64, error) {
	value, closer, err := p.db.Get(key)
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(value) != 8 {
		return 0, errors.Errorf("invalid value for key %q: %d bytes", key, len(value))
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

func (p *pebbleStore) Close() error {
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.db.Close(); err != nil {
		return errors.Wrapf(err, "failed to close database at %s", p.dbPath)
	}
	p.log.Info("Closed claim store")
	return nil
}

func encodeInt64(v int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(v))
}

// numberKey flips the sign bit so that the keys sort in numeric order.
func numberKey(n int64) []byte {
	key := make([]byte, 0, len(numberKeyPrefix)+8)
	key = append(key, numberKeyPrefix...)
	return binary.BigEndian.AppendUint64(key, uint64(n)^(1<<63))
}
