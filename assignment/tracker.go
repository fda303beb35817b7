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

// Package assignment bounds how many requests each auditor holds at once,
// gates assignment on stake and reclaims assignments whose audit window has
// passed without a report
package assignment

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/internal/linkedset"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/pricequeue"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// Membership answers whether an address is a whitelisted auditor
type Membership interface {
	IsMember(addr types.Address) bool
}

// StakeGate is the subset of the stake escrow used for admission
type StakeGate interface {
	HasMinimumStake(auditor types.Address) bool
	ExtendLock(auditor types.Address, until types.Height)
}

// Limits are the admission parameters. They may change between calls.
type Limits struct {
	MaxAssignedRequests int
	AuditTimeout        types.Height
	// LockWindow is added to the assignment height to lock the auditor's stake
	LockWindow types.Height
}

type Config struct {
	Auditors     Membership
	Stake        StakeGate
	Queue        *pricequeue.Queue
	Limits       Limits
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Assignment is an outstanding request held by an auditor
type Assignment struct {
	ID         types.RequestID
	Auditor    types.Address
	Price      currency.Amount
	AssignedAt types.Height
}

// Deadline is the last height at which a report is accepted
func (a Assignment) Deadline(timeout types.Height) types.Height {
	return a.AssignedAt.Add(timeout)
}

// PriceStats summarizes the advertised auditor minimum prices
type PriceStats struct {
	Sum   currency.Amount
	Count int
	Min   currency.Amount
	Max   currency.Amount
}

type Tracker struct {
	sync.RWMutex
	config      Config
	logger      *slog.Logger
	limits      Limits
	assignments map[types.RequestID]Assignment
	byAuditor   map[types.Address]*linkedset.Set[types.RequestID]
	// order lists outstanding assignments by assignment height, oldest first
	order     *linkedset.Set[types.RequestID]
	minPrices map[types.Address]currency.Amount
	metrics   struct {
		assigned  prometheus.Gauge
		total     prometheus.Counter
		reclaimed prometheus.Counter
	}
}

func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		config:      cfg,
		limits:      cfg.Limits,
		assignments: make(map[types.RequestID]Assignment),
		byAuditor:   make(map[types.Address]*linkedset.Set[types.RequestID]),
		order:       linkedset.New[types.RequestID](),
		minPrices:   make(map[types.Address]currency.Amount),
	}
	if cfg.Logger == nil {
		t.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		t.logger = cfg.Logger
	}
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		t.metrics.assigned = promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "qsp_assignments_outstanding",
			Help: "current count of assigned requests awaiting a report",
		})
		t.metrics.total = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_assignments_total",
			Help: "total requests assigned to auditors",
		})
		t.metrics.reclaimed = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_assignments_reclaimed_total",
			Help: "total assignments reclaimed after the audit timeout",
		})
	}
	return t
}

func (t *Tracker) SetLimits(limits Limits) error {
	if limits.MaxAssignedRequests <= 0 {
		return ErrInvalidLimit
	}
	t.Lock()
	defer t.Unlock()
	t.limits = limits
	return nil
}

func (t *Tracker) Limits() Limits {
	t.RLock()
	defer t.RUnlock()
	return t.limits
}

// TryAssign hands the best queued request to auditor. The checks run in a
// fixed order: whitelist, stake, concurrency, queue, advertised price.
func (t *Tracker) TryAssign(auditor types.Address, now types.Height) (Assignment, error) {
	if !t.config.Auditors.IsMember(auditor) {
		return Assignment{}, fmt.Errorf(
			"%w: %s is not a whitelisted auditor",
			types.ErrUnauthorized,
			auditor,
		)
	}
	if !t.config.Stake.HasMinimumStake(auditor) {
		return Assignment{}, ErrUnderstaked
	}
	t.Lock()
	defer t.Unlock()
	if count := t.countFor(auditor); count >= t.limits.MaxAssignedRequests {
		return Assignment{}, &ExceededMaxAssignedError{
			Auditor:  auditor,
			Assigned: count,
			Max:      t.limits.MaxAssignedRequests,
		}
	}
	_, price, ok := t.config.Queue.PeekBest()
	if !ok {
		return Assignment{}, ErrQueueEmpty
	}
	if minPrice := t.minPrices[auditor]; price < minPrice {
		return Assignment{}, &PriceTooLowError{
			Auditor:  auditor,
			Price:    price,
			MinPrice: minPrice,
		}
	}
	id, price, _ := t.config.Queue.DequeueBest()
	a := Assignment{
		ID:         id,
		Auditor:    auditor,
		Price:      price,
		AssignedAt: now,
	}
	t.assignments[id] = a
	t.order.PushBack(id)
	set, ok := t.byAuditor[auditor]
	if !ok {
		set = linkedset.New[types.RequestID]()
		t.byAuditor[auditor] = set
	}
	set.PushBack(id)
	t.config.Stake.ExtendLock(
		auditor,
		now.Add(t.limits.AuditTimeout).Add(t.limits.LockWindow),
	)
	if t.metrics.total != nil {
		t.metrics.total.Inc()
		t.metrics.assigned.Set(float64(len(t.assignments)))
	}
	t.logger.Debug(
		"request assigned",
		"component", "assignment",
		"request_id", id,
		"auditor", auditor,
		"price", price,
	)
	return a, nil
}

// Get returns the outstanding assignment for id
func (t *Tracker) Get(id types.RequestID) (Assignment, bool) {
	t.RLock()
	defer t.RUnlock()
	a, ok := t.assignments[id]
	return a, ok
}

// Release frees the auditor slot held by id
func (t *Tracker) Release(id types.RequestID) (Assignment, error) {
	t.Lock()
	defer t.Unlock()
	a, ok := t.assignments[id]
	if !ok {
		return Assignment{}, ErrNotAssigned
	}
	t.release(a)
	return a, nil
}

// ReclaimExpired releases, oldest first, up to budget assignments whose
// deadline is before now and returns them. The caller decides whether each
// request is re-queued or left refundable.
func (t *Tracker) ReclaimExpired(now types.Height, budget int) []Assignment {
	t.Lock()
	defer t.Unlock()
	var ret []Assignment
	for len(ret) < budget {
		id, ok := t.order.Front()
		if !ok {
			break
		}
		a := t.assignments[id]
		if a.Deadline(t.limits.AuditTimeout) >= now {
			break
		}
		t.release(a)
		ret = append(ret, a)
	}
	if len(ret) > 0 {
		if t.metrics.reclaimed != nil {
			t.metrics.reclaimed.Add(float64(len(ret)))
		}
		t.logger.Info(
			"reclaimed expired assignments",
			"component", "assignment",
			"count", len(ret),
		)
	}
	return ret
}

// CountFor returns the number of requests the auditor currently holds
func (t *Tracker) CountFor(auditor types.Address) int {
	t.RLock()
	defer t.RUnlock()
	return t.countFor(auditor)
}

// AssignedTo returns the auditor's outstanding requests, oldest first
func (t *Tracker) AssignedTo(auditor types.Address) []types.RequestID {
	t.RLock()
	defer t.RUnlock()
	if set, ok := t.byAuditor[auditor]; ok {
		return set.Keys()
	}
	return nil
}

// SetMinPrice records the lowest price the auditor accepts. MaxAmount
// withdraws the advertisement.
func (t *Tracker) SetMinPrice(auditor types.Address, price currency.Amount) {
	t.Lock()
	defer t.Unlock()
	t.minPrices[auditor] = price
}

func (t *Tracker) MinPrice(auditor types.Address) currency.Amount {
	t.RLock()
	defer t.RUnlock()
	return t.minPrices[auditor]
}

// MinPriceStats aggregates advertised prices of whitelisted auditors,
// skipping the MaxAmount sentinel. Sum saturates at MaxAmount.
func (t *Tracker) MinPriceStats() PriceStats {
	t.RLock()
	defer t.RUnlock()
	var stats PriceStats
	for auditor, price := range t.minPrices {
		if price == currency.MaxAmount || !t.config.Auditors.IsMember(auditor) {
			continue
		}
		sum, err := stats.Sum.Add(price)
		if err != nil {
			sum = currency.MaxAmount
		}
		stats.Sum = sum
		if stats.Count == 0 || price < stats.Min {
			stats.Min = price
		}
		if price > stats.Max {
			stats.Max = price
		}
		stats.Count++
	}
	return stats
}

func (t *Tracker) countFor(auditor types.Address) int {
	if set, ok := t.byAuditor[auditor]; ok {
		return set.Len()
	}
	return 0
}

func (t *Tracker) release(a Assignment) {
	delete(t.assignments, a.ID)
	t.order.Remove(a.ID)
	if set, ok := t.byAuditor[a.Auditor]; ok {
		set.Remove(a.ID)
		if set.Len() == 0 {
			delete(t.byAuditor, a.Auditor)
		}
	}
	if t.metrics.assigned != nil {
		t.metrics.assigned.Set(float64(len(t.assignments)))
	}
}
