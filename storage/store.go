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
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrStoreClosed          = errors.New("numpool: store is closed")
	ErrUnsupportedTarget    = errors.New("numpool: unsupported storage target")
	ErrSchemaMismatch       = errors.New("numpool: schema version mismatch")
	ErrSchemaNotInitialized = errors.New("numpool: schema not initialized")
)

// ClaimStore is the durable set of the numbers already claimed on a shard.
//
// The store is the only arbiter of concurrent claims: for a given number at
// most one TryClaim call ever returns true, no matter how many callers race
// on it.
type ClaimStore interface {
	io.Closer

	// InitSchema creates the claimed-number set if it does not exist yet.
	// It is safe to call on every startup and never alters existing data.
	InitSchema(ctx context.Context) error

	// TryClaim durably inserts the number. It returns false, with no error,
	// when the number was already claimed.
	TryClaim(ctx context.Context, number int64) (bool, error)

	// UsedCount returns the number of claimed numbers.
	UsedCount(ctx context.Context) (int64, error)
}

const (
	SchemePebble = "pebble"
	SchemeMemory = "memory"
)

// Target is a parsed storage connection target, eg: "pebble://data/shard-0".
type Target struct {
	Scheme   string
	Location string
}

func (t Target) String() string {
	return t.Scheme + "://" + t.Location
}

func ParseTarget(target string) (Target, error) {
	scheme, location, found := strings.Cut(target, "://")
	if !found {
		return Target{}, errors.Wrapf(ErrUnsupportedTarget, "missing scheme in %q", target)
	}

	switch scheme {
	case SchemePebble, SchemeMemory:
	default:
		return Target{}, errors.Wrapf(ErrUnsupportedTarget, "unknown scheme %q", scheme)
	}

	if location == "" {
		return Target{}, errors.Wrapf(ErrUnsupportedTarget, "missing location in %q", target)
	}

	return Target{Scheme: scheme, Location: location}, nil
}
