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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/numpool/allocator"
	"github.com/streamnative/numpool/model"
)

type fakeAllocator struct {
	number int64
	err    error
	usage  []allocator.ShardUsage
}

func (f *fakeAllocator) Allocate(ctx context.Context) (int64, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("missing request deadline")
	}
	return f.number, f.err
}

func (f *fakeAllocator) Usage(context.Context) []allocator.ShardUsage {
	return f.usage
}

func (*fakeAllocator) PoolSize() int64 {
	return 20
}

func get(t *testing.T, a numberAllocator, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := newRouter(a, time.Second)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRandomHandler(t *testing.T) {
	w := get(t, &fakeAllocator{number: 42}, RestURLRandom)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"number":42}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIdHeader))
}

func TestRandomHandlerErrors(t *testing.T) {
	for _, test := range []struct {
		name         string
		err          error
		expectedCode int
	}{
		{"exhausted", allocator.ErrPoolExhausted, http.StatusConflict},
		{"unavailable", errors.Wrap(allocator.ErrAllocationUnavailable, "no free number found after 20 attempts"), http.StatusConflict},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	} {
		t.Run(test.name, func(t *testing.T) {
			w := get(t, &fakeAllocator{err: test.err}, RestURLRandom)
			assert.Equal(t, test.expectedCode, w.Code)

			res := ErrorResponse{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, test.err.Error(), res.Detail)
		})
	}
}

func TestRequestIdPropagation(t *testing.T) {
	router := newRouter(&fakeAllocator{number: 1}, time.Second)
	req := httptest.NewRequest(http.MethodGet, RestURLRandom, nil)
	req.Header.Set(requestIdHeader, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(requestIdHeader))
}

func TestHealthHandler(t *testing.T) {
	w := get(t, &fakeAllocator{}, RestURLHealth)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatsHandler(t *testing.T) {
	w := get(t, &fakeAllocator{usage: []allocator.ShardUsage{
		{Id: "shard-0", Range: model.Range{Start: 1, End: 10}, Used: 4},
		{Id: "shard-1", Range: model.Range{Start: 11, End: 20}, Err: errors.New("unreachable")},
	}}, RestURLStats)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"poolSize": 20,
		"used": 4,
		"shards": [
			{"id": "shard-0", "start": 1, "end": 10, "size": 10, "used": 4},
			{"id": "shard-1", "start": 11, "end": 20, "size": 10, "used": 0, "error": "unreachable"}
		]
	}`, w.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	w := get(t, &fakeAllocator{}, "/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
