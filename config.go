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

package qsp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/clock"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/token"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

type Config struct {
	promRegistry    prometheus.Registerer
	promGatherer    prometheus.Gatherer
	logger          *slog.Logger
	ledger          token.Ledger
	clock           clock.Clock
	dataDir         string
	metadataBackend string
	metadataDSN     string
	blobCacheSize   uint64
	owner           types.Address
	escrowAccount   types.Address
	stakeAccount    types.Address
	treasuryAccount types.Address
	params          market.Params
	// Market API listen address (empty = disabled)
	apiListenAddress    string
	apiMaxRequestsPerIP int
	genesisTime         time.Time
	blockInterval       time.Duration
	// Balances minted on the in-memory ledger at startup
	devFunding      map[types.Address]currency.Amount
	tracing         bool
	tracingStdout   bool
	shutdownTimeout time.Duration
}

func (c *Config) validate() error {
	if c.owner.IsZero() {
		return errors.New("no market owner defined")
	}
	if c.escrowAccount.IsZero() || c.stakeAccount.IsZero() || c.treasuryAccount.IsZero() {
		return errors.New("escrow, stake and treasury accounts must all be defined")
	}
	if c.params != (market.Params{}) {
		if err := c.params.Validate(); err != nil {
			return err
		}
	}
	if len(c.devFunding) > 0 && c.ledger != nil {
		return fmt.Errorf("dev funding requires the in-memory ledger, got %T", c.ledger)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new node config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		escrowAccount:   "escrow",
		stakeAccount:    "stake",
		treasuryAccount: "treasury",
		blockInterval:   time.Second,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. The default discards all logs
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
		if g, ok := registry.(prometheus.Gatherer); ok && c.promGatherer == nil {
			c.promGatherer = g
		}
	}
}

// WithPrometheusGatherer specifies the source of the API /metrics endpoint. It defaults to the registry from
// WithPrometheusRegistry when that also implements prometheus.Gatherer
func WithPrometheusGatherer(gatherer prometheus.Gatherer) ConfigOptionFunc {
	return func(c *Config) {
		c.promGatherer = gatherer
	}
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithMetadataBackend selects the journal backend (sqlite, postgres or mysql) and its connection string. The DSN is
// ignored by sqlite
func WithMetadataBackend(backend string, dsn string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataBackend = backend
		c.metadataDSN = dsn
	}
}

// WithBlobCacheSize specifies the report blob store block cache size in bytes
func WithBlobCacheSize(size uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.blobCacheSize = size
	}
}

// WithOwner specifies the market administrator
func WithOwner(owner types.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.owner = owner
	}
}

// WithAccounts specifies the ledger accounts holding request escrow, auditor stakes and collected fees
func WithAccounts(escrow, stake, treasury types.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.escrowAccount = escrow
		c.stakeAccount = stake
		c.treasuryAccount = treasury
	}
}

// WithMarketParams specifies the initial market parameters. The default is market.DefaultParams()
func WithMarketParams(params market.Params) ConfigOptionFunc {
	return func(c *Config) {
		c.params = params
	}
}

// WithLedger specifies the token ledger. The default is an in-memory ledger
func WithLedger(ledger token.Ledger) ConfigOptionFunc {
	return func(c *Config) {
		c.ledger = ledger
	}
}

// WithClock specifies the height source. It overrides WithBlockClock
func WithClock(clk clock.Clock) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clk
	}
}

// WithBlockClock derives heights from the wall clock, one per interval since genesis. A zero genesis means node start
func WithBlockClock(genesis time.Time, interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.genesisTime = genesis
		c.blockInterval = interval
	}
}

// WithDevFunding mints the given balances on the in-memory ledger at startup and approves the escrow and stake
// accounts to spend them
func WithDevFunding(funding map[types.Address]currency.Amount) ConfigOptionFunc {
	return func(c *Config) {
		c.devFunding = funding
	}
}

// WithAPIListenAddress specifies the listen address for the market REST API. An empty value disables it
func WithAPIListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = addr
	}
}

// WithAPIMaxRequestsPerIP caps concurrent API requests per client address. Zero means unlimited
func WithAPIMaxRequestsPerIP(limit int) ConfigOptionFunc {
	return func(c *Config) {
		c.apiMaxRequestsPerIP = limit
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
