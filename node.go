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
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/api"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/clock"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/token"
)

var ErrAlreadyStarted = errors.New("node already started")

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	recorder      *database.Recorder
	ledger        token.Ledger
	market        *market.Market
	api           *api.Server
	apiCancel     context.CancelFunc
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	started       bool
	mu            sync.Mutex
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := &Node{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	return n, nil
}

// Run starts the node and blocks until Stop is called
func (n *Node) Run() error {
	if err := n.Start(); err != nil {
		return err
	}
	// Wait for shutdown signal
	<-n.done
	return nil
}

// Start brings up the journal, the market and the API without blocking
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return ErrAlreadyStarted
	}
	n.started = true
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:         n.config.dataDir,
		MetadataBackend: n.config.metadataBackend,
		MetadataDSN:     n.config.metadataDSN,
		BlobCacheSize:   n.config.blobCacheSize,
		Logger:          n.config.logger,
		PromRegistry:    n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Mirror market events into the journal
	n.recorder = database.NewRecorder(database.RecorderConfig{
		Database:     n.db,
		EventBus:     n.eventBus,
		Logger:       n.config.logger,
		PromRegistry: n.config.promRegistry,
	})
	if err := n.recorder.Start(); err != nil {
		return fmt.Errorf("failed to start journal recorder: %w", err)
	}
	// Token ledger
	n.ledger = n.config.ledger
	if n.ledger == nil {
		memLedger := token.NewMemoryLedger(token.MemoryLedgerConfig{
			Logger:   n.config.logger,
			EventBus: n.eventBus,
		})
		if err := n.fundDevAccounts(memLedger); err != nil {
			return err
		}
		n.ledger = memLedger
	}
	clk := n.config.clock
	if clk == nil {
		clk = clock.NewBlockClock(clock.BlockClockConfig{
			Genesis:       n.config.genesisTime,
			BlockInterval: n.config.blockInterval,
		})
	}
	// Load market
	m, err := market.New(market.Config{
		Owner:           n.config.owner,
		EscrowAccount:   n.config.escrowAccount,
		StakeAccount:    n.config.stakeAccount,
		TreasuryAccount: n.config.treasuryAccount,
		Ledger:          n.ledger,
		Clock:           clk,
		Reports:         n.db.Blob(),
		Params:          n.config.params,
		EventBus:        n.eventBus,
		Logger:          n.config.logger,
		PromRegistry:    n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to load market: %w", err)
	}
	n.market = m
	n.config.logger.Info(
		"market ready",
		"component", "node",
		"owner", n.config.owner,
		"height", m.Height(),
	)
	// Configure market API
	if n.config.apiListenAddress != "" {
		n.api = api.New(
			api.Config{
				ListenAddress:    n.config.apiListenAddress,
				PromGatherer:     n.config.promGatherer,
				Tracing:          n.config.tracing,
				MaxRequestsPerIP: n.config.apiMaxRequestsPerIP,
			},
			n.market,
			n.config.logger,
		)
		apiCtx, apiCancel := context.WithCancel(context.Background())
		n.apiCancel = apiCancel
		if err := n.api.Start(apiCtx); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}
	return nil
}

func (n *Node) fundDevAccounts(l *token.MemoryLedger) error {
	for _, addr := range slices.Sorted(maps.Keys(n.config.devFunding)) {
		amount := n.config.devFunding[addr]
		if err := l.Mint(addr, amount); err != nil {
			return fmt.Errorf("failed to fund dev account %s: %w", addr, err)
		}
		l.Approve(addr, n.config.escrowAccount, amount)
		l.Approve(addr, n.config.stakeAccount, amount)
		n.config.logger.Debug(
			"funded dev account",
			"component", "node",
			"address", addr,
			"amount", amount,
		)
	}
	return nil
}

// Market returns the running market, or nil before Start
func (n *Node) Market() *market.Market {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market
}

// Ledger returns the token ledger in use, or nil before Start
func (n *Node) Ledger() token.Ledger {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger
}

// Database returns the journal database, or nil before Start
func (n *Node) Database() *database.Database {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.db
}

// EventBus returns the node event bus
func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

// API returns the REST API server, or nil when it is disabled
func (n *Node) API() *api.Server {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.api
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	n.mu.Lock()
	defer n.mu.Unlock()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting new work
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}
	if n.apiCancel != nil {
		n.apiCancel()
	}

	// Phase 2: Deliver pending events to the journal
	n.eventBus.Close()

	// Phase 3: Close database
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}
