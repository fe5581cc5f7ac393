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
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/unrolled/render"

	"github.com/streamnative/numpool/allocator"
)

const (
	RestURLRandom = "/random"
	RestURLHealth = "/health"
	RestURLStats  = "/stats"

	requestIdHeader = "X-Request-Id"
)

type numberAllocator interface {
	Allocate(ctx context.Context) (int64, error)
	Usage(ctx context.Context) []allocator.ShardUsage
	PoolSize() int64
}

type NumberResponse struct {
	Number int64 `json:"number"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ShardStats struct {
	Id    string `json:"id"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Size  int64  `json:"size"`
	Used  int64  `json:"used"`
	Error string `json:"error,omitempty"`
}

type StatsResponse struct {
	Shards   []ShardStats `json:"shards"`
	PoolSize int64        `json:"poolSize"`
	Used     int64        `json:"used"`
}

type restHandlers struct {
	allocator      numberAllocator
	requestTimeout time.Duration
	log            *slog.Logger
}

func newRouter(a numberAllocator, requestTimeout time.Duration) *mux.Router {
	h := &restHandlers{
		allocator:      a,
		requestTimeout: requestTimeout,
		log:            slog.With(slog.String("component", "rest")),
	}
	formatter := render.New(render.Options{IndentJSON: false})

	router := mux.NewRouter()
	router.Use(h.requestIdMiddleware)
	router.HandleFunc(RestURLRandom, h.randomHandler(formatter)).Methods(http.MethodGet)
	router.HandleFunc(RestURLHealth, h.healthHandler(formatter)).Methods(http.MethodGet)
	router.HandleFunc(RestURLStats, h.statsHandler(formatter)).Methods(http.MethodGet)
	return router
}

func (h *restHandlers) requestIdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestId := req.Header.Get(requestIdHeader)
		if requestId == "" {
			requestId = uuid.NewString()
		}
		w.Header().Set(requestIdHeader, requestId)
		next.ServeHTTP(w, req.WithContext(withRequestId(req.Context(), requestId)))
	})
}

func (h *restHandlers) randomHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), h.requestTimeout)
		defer cancel()

		number, err := h.allocator.Allocate(ctx)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, allocator.ErrPoolExhausted) || errors.Is(err, allocator.ErrAllocationUnavailable) {
				status = http.StatusConflict
			}
			h.log.Warn(
				"Failed to allocate a number",
				slog.String("request-id", requestIdFrom(ctx)),
				slog.Int("status", status),
				slog.Any("error", err),
			)
			_ = formatter.JSON(w, status, ErrorResponse{Detail: err.Error()})
			return
		}

		h.log.Debug(
			"Allocated number",
			slog.String("request-id", requestIdFrom(ctx)),
			slog.Int64("number", number),
		)
		_ = formatter.JSON(w, http.StatusOK, NumberResponse{Number: number})
	}
}

func (*restHandlers) healthHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = formatter.JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

func (h *restHandlers) statsHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), h.requestTimeout)
		defer cancel()

		stats := StatsResponse{PoolSize: h.allocator.PoolSize()}
		for _, u := range h.allocator.Usage(ctx) {
			s := ShardStats{
				Id:    u.Id,
				Start: u.Range.Start,
				End:   u.Range.End,
				Size:  u.Range.Size(),
				Used:  u.Used,
			}
			if u.Err != nil {
				s.Error = u.Err.Error()
			} else {
				stats.Used += u.Used
			}
			stats.Shards = append(stats.Shards, s)
		}

		_ = formatter.JSON(w, http.StatusOK, stats)
	}
}

type requestIdKey struct{}

func withRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIdKey{}, id)
}

func requestIdFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey{}).(string)
	return id
}
