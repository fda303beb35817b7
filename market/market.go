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

// Package market is the audit request state machine. It composes the price
// queue, stake escrow, assignment tracker, police rotation and settlement
// engine behind one sequencer lock, so every public operation is applied
// as a single atomic step.
package market

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/assignment"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/clock"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/police"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/pricequeue"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/report"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/settlement"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/stake"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/token"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/whitelist"
)

var (
	ErrZeroPrice        = errors.New("price must be greater than zero")
	ErrInvalidCount     = errors.New("request count out of range")
	ErrInvalidResult    = errors.New("report result must be completed or error")
	ErrMissingLedger    = errors.New("market requires a token ledger")
	ErrMissingOwner     = errors.New("market requires an owner")
	ErrMissingAccount   = errors.New("market requires escrow, stake and treasury accounts")
	ErrDuplicateAccount = errors.New("escrow, stake and treasury accounts must differ")
)

type Config struct {
	Owner types.Address
	// EscrowAccount holds request prices until settlement
	EscrowAccount types.Address
	// StakeAccount holds auditor stakes
	StakeAccount types.Address
	// TreasuryAccount collects transaction fees and division remainders
	TreasuryAccount types.Address
	Ledger          token.Ledger
	Clock           clock.Clock
	Reports         report.Store
	Params          Params
	EventBus        *event.EventBus
	Logger          *slog.Logger
	PromRegistry    prometheus.Registerer
}

type Market struct {
	// mu is the sequencer: each public operation holds it for its whole run
	mu       sync.Mutex
	config   Config
	logger   *slog.Logger
	params   Params
	nextID   types.RequestID
	requests map[types.RequestID]*Request
	// rewards lists each auditor's completed requests awaiting payout,
	// sorted ascending
	rewards      map[types.Address][]types.RequestID
	claimCursors map[types.Address]types.RequestID

	auditors   *whitelist.Registry
	police     *whitelist.Registry
	queue      *pricequeue.Queue
	escrow     *stake.Escrow
	tracker    *assignment.Tracker
	rotation   *police.Rotation
	settlement *settlement.Engine

	metrics struct {
		requests prometheus.Counter
		outcomes *prometheus.CounterVec
		payouts  prometheus.Counter
	}
}

func New(cfg Config) (*Market, error) {
	if cfg.Ledger == nil {
		return nil, ErrMissingLedger
	}
	if cfg.Owner.IsZero() {
		return nil, ErrMissingOwner
	}
	accounts := []types.Address{cfg.EscrowAccount, cfg.StakeAccount, cfg.TreasuryAccount}
	if slices.Contains(accounts, "") {
		return nil, ErrMissingAccount
	}
	slices.Sort(accounts)
	if len(slices.Compact(accounts)) != 3 {
		return nil, ErrDuplicateAccount
	}
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewBlockClock(clock.BlockClockConfig{})
	}
	if cfg.Reports == nil {
		cfg.Reports = report.NewMemoryStore()
	}
	m := &Market{
		config:       cfg,
		params:       cfg.Params,
		nextID:       1,
		requests:     make(map[types.RequestID]*Request),
		rewards:      make(map[types.Address][]types.RequestID),
		claimCursors: make(map[types.Address]types.RequestID),
	}
	if cfg.Logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		m.logger = cfg.Logger
	}
	p := cfg.Params
	m.auditors = whitelist.New(whitelist.Config{
		Name:         "auditors",
		Owner:        cfg.Owner,
		EventBus:     cfg.EventBus,
		Logger:       m.logger,
		PromRegistry: cfg.PromRegistry,
	})
	m.police = whitelist.New(whitelist.Config{
		Name:         "police",
		Owner:        cfg.Owner,
		EventBus:     cfg.EventBus,
		Logger:       m.logger,
		PromRegistry: cfg.PromRegistry,
	})
	m.queue = pricequeue.New(pricequeue.Config{PromRegistry: cfg.PromRegistry})
	m.escrow = stake.NewEscrow(stake.Config{
		Account:      cfg.StakeAccount,
		Ledger:       cfg.Ledger,
		MinStake:     p.MinStake,
		EventBus:     cfg.EventBus,
		Logger:       m.logger,
		PromRegistry: cfg.PromRegistry,
	})
	m.tracker = assignment.NewTracker(assignment.Config{
		Auditors:     m.auditors,
		Stake:        m.escrow,
		Queue:        m.queue,
		Limits:       limitsFor(p),
		Logger:       m.logger,
		PromRegistry: cfg.PromRegistry,
	})
	m.rotation = police.NewRotation(police.Config{
		Nodes:          m.police,
		Reports:        cfg.Reports,
		NodesPerReport: p.PoliceNodesPerReport,
		Timeout:        p.PoliceTimeout,
		EventBus:       cfg.EventBus,
		Logger:         m.logger,
		PromRegistry:   cfg.PromRegistry,
	})
	engine, err := settlement.NewEngine(settlement.Config{
		EscrowAccount:                 cfg.EscrowAccount,
		Treasury:                      cfg.TreasuryAccount,
		Ledger:                        cfg.Ledger,
		Slashing:                      m.escrow,
		ReportProcessingFeePercentage: p.ReportProcessingFeePercentage,
		SlashPercentage:               p.SlashPercentage,
		EventBus:                      cfg.EventBus,
		Logger:                        m.logger,
		PromRegistry:                  cfg.PromRegistry,
	})
	if err != nil {
		return nil, err
	}
	m.settlement = engine
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		m.metrics.requests = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_audit_requests_total",
			Help: "total audit requests submitted",
		})
		m.metrics.outcomes = promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qsp_market_outcomes_total",
				Help: "total market operation outcomes by operation and reason",
			},
			[]string{"operation", "reason"},
		)
		m.metrics.payouts = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_rewards_paid_total",
			Help: "total auditor rewards paid",
		})
	}
	return m, nil
}

func limitsFor(p Params) assignment.Limits {
	return assignment.Limits{
		MaxAssignedRequests: p.MaxAssignedRequests,
		AuditTimeout:        p.AuditTimeout,
		LockWindow:          p.PoliceTimeout,
	}
}

func (m *Market) checkOwner(caller types.Address) error {
	if caller != m.config.Owner {
		return fmt.Errorf("%w: %s is not the market owner", types.ErrUnauthorized, caller)
	}
	return nil
}

func (m *Market) checkAuditor(caller types.Address) error {
	if !m.auditors.IsMember(caller) {
		return fmt.Errorf("%w: %s is not a whitelisted auditor", types.ErrUnauthorized, caller)
	}
	return nil
}

// request returns the stored request, or a StateNone placeholder for ids
// that were never created
func (m *Market) request(id types.RequestID) (*Request, bool) {
	req, ok := m.requests[id]
	if !ok {
		return &Request{ID: id, State: StateNone}, false
	}
	return req, true
}

func (m *Market) now() types.Height {
	return m.config.Clock.Height()
}

func (m *Market) publish(evtType event.EventType, data any) {
	if m.config.EventBus == nil {
		return
	}
	m.config.EventBus.PublishAsync(evtType, event.NewEvent(evtType, data))
}

func (m *Market) publishRequest(evtType event.EventType, req *Request, now types.Height) {
	m.publish(evtType, RequestEvent{Request: *req, Height: now})
}

// reject builds a recoverable outcome, logs it and publishes evtType
func (m *Market) reject(
	op string,
	evtType event.EventType,
	caller types.Address,
	id types.RequestID,
	state State,
	reason Reason,
	now types.Height,
) Outcome {
	m.countOutcome(op, reason)
	m.logger.Debug(
		"operation rejected",
		"component", "market",
		"operation", op,
		"request_id", id,
		"caller", caller,
		"reason", reason,
		"state", state,
	)
	m.publish(evtType, ErrorEvent{
		RequestID: id,
		Caller:    caller,
		Reason:    reason,
		State:     state,
		Height:    now,
	})
	return Outcome{Reason: reason, RequestID: id, State: state}
}

func (m *Market) countOutcome(op string, reason Reason) {
	if m.metrics.outcomes == nil {
		return
	}
	label := string(reason)
	if label == "" {
		label = "ok"
	}
	m.metrics.outcomes.WithLabelValues(op, label).Inc()
}

// reclaimExpired sweeps assignments past their audit window. It runs at the
// start of assignment and report submission.
func (m *Market) reclaimExpired(now types.Height) {
	for _, a := range m.tracker.ReclaimExpired(now, m.params.ReclaimBudget) {
		req, ok := m.requests[a.ID]
		if !ok || req.State != StateAssigned {
			continue
		}
		req.Expired = true
		if m.params.ExpiredPolicy == ExpiredPolicyRequeue {
			if err := m.queue.Enqueue(req.ID, req.Price); err != nil {
				m.logger.Error(
					"failed to requeue expired request",
					"component", "market",
					"request_id", req.ID,
					"error", err,
				)
				continue
			}
			req.State = StateQueued
			req.Auditor = ""
			req.AssignedAt = 0
			req.Expired = false
		}
		m.logger.Info(
			"assignment expired",
			"component", "market",
			"request_id", a.ID,
			"auditor", a.Auditor,
			"policy", m.params.ExpiredPolicy,
		)
		m.publishRequest(ExpiredEventType, req, now)
	}
}

func insertSorted(ids []types.RequestID, id types.RequestID) []types.RequestID {
	pos, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, pos, id)
}

func removeSorted(ids []types.RequestID, id types.RequestID) []types.RequestID {
	pos, found := slices.BinarySearch(ids, id)
	if !found {
		return ids
	}
	return slices.Delete(ids, pos, pos+1)
}
