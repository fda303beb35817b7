// Copyright 2025 Quantstamp, Inc.
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

// Package api serves the audit market over a JSON REST interface
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
)

const DefaultListenAddress = ":8080"

var ErrAlreadyStarted = errors.New("server already started")

type Config struct {
	ListenAddress string
	// PromGatherer backs the /metrics endpoint. It is omitted when nil.
	PromGatherer prometheus.Gatherer
	// Tracing wraps the handler with OpenTelemetry HTTP spans
	Tracing bool
	// MaxRequestsPerIP caps concurrent requests per client address. Zero
	// means unlimited.
	MaxRequestsPerIP int
}

// Server is the market REST API server
type Server struct {
	config     Config
	logger     *slog.Logger
	market     *market.Market
	limiter    *ipLimiter
	httpServer *http.Server
	addr       net.Addr
	mu         sync.Mutex
}

func New(cfg Config, m *market.Market, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	s := &Server{
		config: cfg,
		logger: logger,
		market: m,
	}
	if cfg.MaxRequestsPerIP > 0 {
		s.limiter = newIPLimiter(cfg.MaxRequestsPerIP)
	}
	return s
}

// Handler returns the full route table wrapped in the server middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	var h http.Handler = mux
	if s.config.Tracing {
		h = otelhttp.NewHandler(h, "qsp-api")
	}
	return s.withRequestID(s.withIPLimit(h))
}

// Start binds the listener and serves in a background goroutine. The server
// shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	s.httpServer = server
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	s.logger.Info(
		"API listener started",
		"address", ln.Addr().String(),
	)

	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			30*time.Second,
		)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

// Addr returns the bound listener address once started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
