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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	qsp "github.com/quantstamp/qsp-protocol-audit-contract-sub000"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/internal/config"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// NodeOptions translates the loaded config into node options
func NodeOptions(cfg *config.Config, logger *slog.Logger) ([]qsp.ConfigOptionFunc, error) {
	params, err := cfg.MarketParams()
	if err != nil {
		return nil, err
	}
	funding, err := cfg.DevFundingAmounts()
	if err != nil {
		return nil, err
	}
	genesis, err := cfg.Genesis()
	if err != nil {
		return nil, err
	}
	blockInterval, err := cfg.BlockIntervalDuration()
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	apiAddress := ""
	if cfg.ApiPort > 0 {
		apiAddress = net.JoinHostPort(cfg.BindAddr, strconv.FormatUint(uint64(cfg.ApiPort), 10))
	}
	opts := []qsp.ConfigOptionFunc{
		qsp.WithLogger(logger),
		qsp.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		qsp.WithPrometheusGatherer(prometheus.DefaultGatherer),
		qsp.WithDatabasePath(cfg.DatabasePath),
		qsp.WithMetadataBackend(cfg.MetadataBackend, cfg.MetadataDsn),
		qsp.WithBlobCacheSize(cfg.BlobCacheSize),
		qsp.WithOwner(types.Address(cfg.Owner)),
		qsp.WithAccounts(
			types.Address(cfg.EscrowAccount),
			types.Address(cfg.StakeAccount),
			types.Address(cfg.TreasuryAccount),
		),
		qsp.WithMarketParams(params),
		qsp.WithBlockClock(genesis, blockInterval),
		qsp.WithDevFunding(funding),
		qsp.WithAPIListenAddress(apiAddress),
		qsp.WithAPIMaxRequestsPerIP(cfg.ApiMaxRequestsPerIp),
		qsp.WithTracing(cfg.Tracing),
		qsp.WithTracingStdout(cfg.TracingStdout),
		qsp.WithShutdownTimeout(shutdownTimeout),
	}
	return opts, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	opts, err := NodeOptions(cfg, logger)
	if err != nil {
		return err
	}
	d, err := qsp.New(qsp.NewConfig(opts...))
	if err != nil {
		return err
	}
	shutdownTimeout, _ := cfg.ShutdownTimeoutDuration()
	// Metrics listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		metricsAddr := net.JoinHostPort(cfg.BindAddr, strconv.FormatUint(uint64(cfg.MetricsPort), 10))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "node",
		)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "node",
				)
			}
		}()
	}
	shutdownMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := d.Start(); err != nil {
		logger.Error("node error", "error", err)
		if stopErr := d.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error", stopErr,
			)
		}
		shutdownMetrics()
		return err
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()
	<-signalCtx.Done()
	logger.Info("signal received, initiating graceful shutdown")
	shutdownMetrics()
	if err := d.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
