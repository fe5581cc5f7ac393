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
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/streamnative/numpool/allocator"
	"github.com/streamnative/numpool/common/metrics"
	"github.com/streamnative/numpool/common/process"
	"github.com/streamnative/numpool/common/rpc"
	"github.com/streamnative/numpool/registry"
	"github.com/streamnative/numpool/storage"
)

type Server struct {
	factory      storage.Factory
	registry     *registry.Registry
	allocator    *allocator.Allocator
	httpServer   *http.Server
	publicPort   int
	grpcServer   rpc.GrpcServer
	healthServer *health.Server
	metrics      *metrics.PrometheusMetrics
	log          *slog.Logger
}

func New(config Config) (*Server, error) {
	b, _ := json.Marshal(config)
	slog.Info("Starting numpool server", slog.String("config", string(b)))

	s := &Server{
		log: slog.With(slog.String("component", "server")),
		factory: storage.NewFactory(&storage.FactoryOptions{
			DataDir:     config.DataDir,
			CacheSizeMB: config.DbBlockCacheMB,
			InMemory:    config.InMemory,
		}),
	}

	var err error
	s.registry, err = registry.New(context.Background(), config.Pool, s.factory, registry.Options{
		OpenTimeout: config.OpenTimeout,
	})
	if err != nil {
		return nil, multierr.Append(err, s.factory.Close())
	}

	s.allocator = allocator.New(s.registry, allocator.WithMaxAttemptsPerShard(config.Pool.MaxAttemptsPerShard))

	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	if err = s.startHttpServer(config.PublicServiceAddr, requestTimeout); err != nil {
		return nil, multierr.Append(err, s.Close())
	}

	s.healthServer = health.NewServer()
	s.grpcServer, err = rpc.Default.StartGrpcServer("internal", config.InternalServiceAddr, func(registrar grpc.ServiceRegistrar) {
		grpc_health_v1.RegisterHealthServer(registrar, s.healthServer)
	})
	if err != nil {
		return nil, multierr.Append(err, s.Close())
	}

	if config.MetricsServiceAddr != "" {
		s.metrics, err = metrics.Start(config.MetricsServiceAddr)
		if err != nil {
			return nil, multierr.Append(err, s.Close())
		}
	}

	s.log.Info(
		"Numpool server started",
		slog.Int("shards", len(s.registry.Resolve())),
		slog.Int64("pool-size", s.registry.PoolSize()),
		slog.Int("public-port", s.publicPort),
		slog.Int("internal-port", s.grpcServer.Port()),
	)
	return s, nil
}

func (s *Server) startHttpServer(bindAddress string, requestTimeout time.Duration) error {
	listener, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return errors.Wrap(err, "failed to listen on the public address")
	}

	s.publicPort = listener.Addr().(*net.TCPAddr).Port
	s.httpServer = &http.Server{
		Handler:           newRouter(s.allocator, requestTimeout),
		ReadHeaderTimeout: time.Second,
	}

	go process.DoWithLabels(map[string]string{
		"numpool": "public",
		"bind":    listener.Addr().String(),
	}, func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Failed to serve http requests", slog.Any("error", err))
			os.Exit(1)
		}
	})
	return nil
}

func (s *Server) PublicPort() int {
	return s.publicPort
}

func (s *Server) InternalPort() int {
	return s.grpcServer.Port()
}

func (s *Server) Allocator() *allocator.Allocator {
	return s.allocator
}

func (s *Server) Close() error {
	var err error
	if s.healthServer != nil {
		s.healthServer.Shutdown()
	}
	if s.grpcServer != nil {
		err = multierr.Append(err, s.grpcServer.Close())
	}
	if s.httpServer != nil {
		err = multierr.Append(err, s.httpServer.Close())
	}
	if s.metrics != nil {
		err = multierr.Append(err, s.metrics.Close())
	}
	return multierr.Combine(
		err,
		s.registry.Close(),
		s.factory.Close(),
	)
}
