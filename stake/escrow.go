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

// Package stake escrows auditor bonds, enforces lock windows and applies
// slashing
package stake

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/token"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

const (
	StakedEventType   event.EventType = "stake.staked"
	UnstakedEventType event.EventType = "stake.unstaked"
	SlashedEventType  event.EventType = "stake.slashed"
)

// ChangeEvent is published for every change to an auditor's stake
type ChangeEvent struct {
	Auditor types.Address
	Amount  currency.Amount
	Balance currency.Amount
	Height  types.Height
}

// Record is the staked amount and lock window of an auditor
type Record struct {
	Amount      currency.Amount
	LockedUntil types.Height
}

type Config struct {
	// Account holds escrowed stakes on the ledger. Auditors approve it as a
	// spender before staking.
	Account      types.Address
	Ledger       token.Ledger
	MinStake     currency.Amount
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

type Escrow struct {
	sync.RWMutex
	config   Config
	logger   *slog.Logger
	minStake currency.Amount
	records  map[types.Address]*Record
	// slashed tokens stay on the escrow account until Release moves them
	slashed currency.Amount
	metrics struct {
		staked  prometheus.Gauge
		slashes prometheus.Counter
		slashed prometheus.Counter
	}
}

func NewEscrow(cfg Config) *Escrow {
	e := &Escrow{
		config:   cfg,
		minStake: cfg.MinStake,
		records:  make(map[types.Address]*Record),
	}
	if cfg.Logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		e.logger = cfg.Logger
	}
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		e.metrics.staked = promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "qsp_stake_escrowed_total",
			Help: "current amount of escrowed auditor stake",
		})
		e.metrics.slashes = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_stake_slashes_total",
			Help: "total slash events applied",
		})
		e.metrics.slashed = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_stake_slashed_amount_total",
			Help: "total amount of stake forfeited by slashing",
		})
	}
	return e
}

// Stake moves amount from auditor into escrow
func (e *Escrow) Stake(auditor types.Address, amount currency.Amount, now types.Height) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	e.Lock()
	defer e.Unlock()
	rec := e.record(auditor)
	balance, err := rec.Amount.Add(amount)
	if err != nil {
		return err
	}
	if !e.config.Ledger.TransferFrom(e.config.Account, auditor, e.config.Account, amount) {
		return fmt.Errorf("stake %d from %s: %w", amount, auditor, ErrTransferFailed)
	}
	rec.Amount = balance
	e.adjustGauge(float64(amount))
	e.logger.Info(
		"stake deposited",
		"component", "stake",
		"auditor", auditor,
		"amount", amount,
		"balance", balance,
	)
	e.publish(StakedEventType, ChangeEvent{auditor, amount, balance, now})
	return nil
}

// Unstake returns the full balance to auditor once no lock is active
func (e *Escrow) Unstake(auditor types.Address, now types.Height) (currency.Amount, error) {
	e.Lock()
	defer e.Unlock()
	rec, ok := e.records[auditor]
	if !ok || rec.Amount == 0 {
		return 0, ErrNothingStaked
	}
	if rec.LockedUntil > now {
		return 0, &FundsLockedError{
			Auditor:     auditor,
			LockedUntil: rec.LockedUntil,
			Now:         now,
		}
	}
	amount := rec.Amount
	if !e.config.Ledger.Transfer(e.config.Account, auditor, amount) {
		return 0, fmt.Errorf("unstake %d to %s: %w", amount, auditor, ErrTransferFailed)
	}
	rec.Amount = 0
	e.adjustGauge(-float64(amount))
	e.logger.Info(
		"stake withdrawn",
		"component", "stake",
		"auditor", auditor,
		"amount", amount,
	)
	e.publish(UnstakedEventType, ChangeEvent{auditor, amount, 0, now})
	return amount, nil
}

// Slash forfeits floor(minStake * percentage / 100) of the auditor's stake,
// capped at the balance. The forfeited amount joins the slashed pool; the
// caller distributes it with Release.
func (e *Escrow) Slash(auditor types.Address, percentage uint64, now types.Height) (currency.Amount, error) {
	if percentage > 100 {
		return 0, ErrInvalidPercent
	}
	e.Lock()
	defer e.Unlock()
	rec := e.record(auditor)
	amount := currency.Min(e.minStake.Percent(percentage), rec.Amount)
	if amount == 0 {
		return 0, nil
	}
	pool, err := e.slashed.Add(amount)
	if err != nil {
		return 0, err
	}
	rec.Amount -= amount
	e.slashed = pool
	e.adjustGauge(-float64(amount))
	if e.metrics.slashes != nil {
		e.metrics.slashes.Inc()
		e.metrics.slashed.Add(float64(amount))
	}
	e.logger.Warn(
		"stake slashed",
		"component", "stake",
		"auditor", auditor,
		"amount", amount,
		"balance", rec.Amount,
	)
	e.publish(SlashedEventType, ChangeEvent{auditor, amount, rec.Amount, now})
	return amount, nil
}

// Release moves amount out of the slashed pool to the given address
func (e *Escrow) Release(to types.Address, amount currency.Amount) error {
	e.Lock()
	defer e.Unlock()
	pool, err := e.slashed.Sub(amount)
	if err != nil {
		return ErrPoolExhausted
	}
	if !e.config.Ledger.Transfer(e.config.Account, to, amount) {
		return fmt.Errorf("release %d to %s: %w", amount, to, ErrTransferFailed)
	}
	e.slashed = pool
	return nil
}

// ExtendLock moves the auditor's lock forward to at least until
func (e *Escrow) ExtendLock(auditor types.Address, until types.Height) {
	e.Lock()
	defer e.Unlock()
	rec := e.record(auditor)
	if until > rec.LockedUntil {
		rec.LockedUntil = until
	}
}

func (e *Escrow) HasMinimumStake(auditor types.Address) bool {
	e.RLock()
	defer e.RUnlock()
	rec, ok := e.records[auditor]
	if !ok {
		return e.minStake == 0
	}
	return rec.Amount >= e.minStake
}

func (e *Escrow) TotalStakedFor(auditor types.Address) currency.Amount {
	e.RLock()
	defer e.RUnlock()
	if rec, ok := e.records[auditor]; ok {
		return rec.Amount
	}
	return 0
}

// Record returns a copy of the auditor's stake record
func (e *Escrow) Record(auditor types.Address) Record {
	e.RLock()
	defer e.RUnlock()
	if rec, ok := e.records[auditor]; ok {
		return *rec
	}
	return Record{}
}

func (e *Escrow) MinStake() currency.Amount {
	e.RLock()
	defer e.RUnlock()
	return e.minStake
}

func (e *Escrow) SetMinStake(amount currency.Amount) {
	e.Lock()
	defer e.Unlock()
	e.minStake = amount
}

// SlashAmount returns what Slash would take from a fully staked auditor
func (e *Escrow) SlashAmount(percentage uint64) currency.Amount {
	e.RLock()
	defer e.RUnlock()
	return e.minStake.Percent(percentage)
}

// SlashedPool returns the slashed amount not yet released
func (e *Escrow) SlashedPool() currency.Amount {
	e.RLock()
	defer e.RUnlock()
	return e.slashed
}

func (e *Escrow) record(auditor types.Address) *Record {
	rec, ok := e.records[auditor]
	if !ok {
		rec = &Record{}
		e.records[auditor] = rec
	}
	return rec
}

func (e *Escrow) adjustGauge(delta float64) {
	if e.metrics.staked != nil {
		e.metrics.staked.Add(delta)
	}
}

func (e *Escrow) publish(evtType event.EventType, evt ChangeEvent) {
	if e.config.EventBus == nil {
		return
	}
	e.config.EventBus.PublishAsync(evtType, event.NewEvent(evtType, evt))
}
