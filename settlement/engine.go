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

// Package settlement moves request funds between requestors, auditors,
// police nodes and the treasury. Every movement attributable to a request
// is published as a TransferEvent.
package settlement

import (
	"errors"
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

const TransferEventType event.EventType = "settlement.transfer"

var (
	ErrAlreadySettled    = errors.New("request is already settled")
	ErrTransferFailed    = errors.New("token transfer failed")
	ErrInsufficientFunds = errors.New("escrow account cannot cover the settlement")
	ErrInvalidPercent    = errors.New("percentage must be between 0 and 100")
)

// Kind classifies a token movement
type Kind string

const (
	KindDeposit        Kind = "deposit"
	KindTransactionFee Kind = "transaction_fee"
	KindAuditorPayment Kind = "auditor_payment"
	KindVerifierFee    Kind = "verifier_fee"
	KindSlashShare     Kind = "slash_share"
	KindRemainder      Kind = "remainder"
	KindRefund         Kind = "refund"
	KindResolution     Kind = "resolution"
)

type TransferEvent struct {
	RequestID types.RequestID
	Kind      Kind
	From      types.Address
	To        types.Address
	Amount    currency.Amount
	Height    types.Height
}

// SlashPool is the part of the stake escrow that forfeits auditor stake
type SlashPool interface {
	Slash(auditor types.Address, percentage uint64, now types.Height) (currency.Amount, error)
	Release(to types.Address, amount currency.Amount) error
}

type Config struct {
	// EscrowAccount holds the price of every open request
	EscrowAccount types.Address
	// Treasury receives transaction fees and division remainders
	Treasury                      types.Address
	Ledger                        token.Ledger
	Slashing                      SlashPool
	ReportProcessingFeePercentage uint64
	SlashPercentage               uint64
	EventBus                      *event.EventBus
	Logger                        *slog.Logger
	PromRegistry                  prometheus.Registerer
}

// Payout itemizes a settlement
type Payout struct {
	Auditor   currency.Amount
	PerNode   currency.Amount
	Nodes     []types.Address
	Remainder currency.Amount
	Slashed   currency.Amount
}

type Engine struct {
	sync.Mutex
	config  Config
	logger  *slog.Logger
	feePct  uint64
	slash   uint64
	settled map[types.RequestID]Kind
	metrics struct {
		transfers *prometheus.CounterVec
		amounts   *prometheus.CounterVec
	}
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReportProcessingFeePercentage > 100 || cfg.SlashPercentage > 100 {
		return nil, ErrInvalidPercent
	}
	e := &Engine{
		config:  cfg,
		feePct:  cfg.ReportProcessingFeePercentage,
		slash:   cfg.SlashPercentage,
		settled: make(map[types.RequestID]Kind),
	}
	if cfg.Logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		e.logger = cfg.Logger
	}
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		e.metrics.transfers = promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qsp_settlement_transfers_total",
				Help: "total settlement transfers by kind",
			},
			[]string{"kind"},
		)
		e.metrics.amounts = promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qsp_settlement_amount_total",
				Help: "total amount moved by settlement kind",
			},
			[]string{"kind"},
		)
	}
	return e, nil
}

// SetPercentages updates the verifier fee and slash percentages
func (e *Engine) SetPercentages(feePct, slashPct uint64) error {
	if feePct > 100 || slashPct > 100 {
		return ErrInvalidPercent
	}
	e.Lock()
	defer e.Unlock()
	e.feePct = feePct
	e.slash = slashPct
	return nil
}

// ComputeShares splits price into the auditor share and the verifier fee
// total, floor(price * fee% / 100)
func (e *Engine) ComputeShares(price currency.Amount) (auditorShare, verifierFee currency.Amount) {
	e.Lock()
	defer e.Unlock()
	return e.computeShares(price)
}

func (e *Engine) computeShares(price currency.Amount) (currency.Amount, currency.Amount) {
	fee := price.Percent(e.feePct)
	return price - fee, fee
}

// IsSettled reports whether a final payout was made for id
func (e *Engine) IsSettled(id types.RequestID) (Kind, bool) {
	e.Lock()
	defer e.Unlock()
	kind, ok := e.settled[id]
	return kind, ok
}

// Deposit pulls price plus the flat transaction fee for every id from the
// requestor in one transfer and then sweeps the fees into the treasury.
// Nothing moves and nothing is recorded unless the whole batch is covered.
func (e *Engine) Deposit(
	ids []types.RequestID,
	requestor types.Address,
	price, fee currency.Amount,
	now types.Height,
) error {
	if len(ids) == 0 {
		return nil
	}
	e.Lock()
	defer e.Unlock()
	perRequest, err := price.Add(fee)
	if err != nil {
		return err
	}
	total, err := perRequest.MulUint64(uint64(len(ids)))
	if err != nil {
		return err
	}
	fees, err := fee.MulUint64(uint64(len(ids)))
	if err != nil {
		return err
	}
	ledger := e.config.Ledger
	escrow := e.config.EscrowAccount
	if balance := ledger.BalanceOf(requestor); balance < total {
		return fmt.Errorf(
			"requestor %s balance %d cannot cover %d: %w",
			requestor,
			balance,
			total,
			ErrTransferFailed,
		)
	}
	if requestor != escrow {
		if allowed := ledger.Allowance(requestor, escrow); allowed < total {
			return fmt.Errorf(
				"requestor %s allowance %d cannot cover %d: %w",
				requestor,
				allowed,
				total,
				ErrTransferFailed,
			)
		}
	}
	if !ledger.TransferFrom(escrow, requestor, escrow, total) {
		return fmt.Errorf("deposit of %d from %s: %w", total, requestor, ErrTransferFailed)
	}
	if fees > 0 && !ledger.Transfer(escrow, e.config.Treasury, fees) {
		// the pull landed, so escrow can hand the whole batch back
		ledger.Transfer(escrow, requestor, total)
		return fmt.Errorf("transaction fees of %d: %w", fees, ErrTransferFailed)
	}
	for _, id := range ids {
		e.record(id, KindDeposit, requestor, escrow, price, now)
		if fee > 0 {
			e.record(id, KindTransactionFee, requestor, e.config.Treasury, fee, now)
		}
	}
	return nil
}

// PayAuditor pays the auditor share and splits the verifier fee evenly
// across the assigned police nodes. With no police nodes the auditor
// receives the whole price.
func (e *Engine) PayAuditor(
	id types.RequestID,
	auditor types.Address,
	price currency.Amount,
	nodes []types.Address,
	now types.Height,
) (Payout, error) {
	e.Lock()
	defer e.Unlock()
	if err := e.checkOpen(id, price); err != nil {
		return Payout{}, err
	}
	auditorShare, fee := e.computeShares(price)
	if len(nodes) == 0 {
		auditorShare, fee = price, 0
	}
	payout := Payout{Auditor: auditorShare, Nodes: nodes}
	if err := e.transfer(id, KindAuditorPayment, auditor, auditorShare, now); err != nil {
		return Payout{}, err
	}
	if fee > 0 {
		perNode, rem, err := e.distribute(id, KindVerifierFee, fee, nodes, now)
		if err != nil {
			return Payout{}, err
		}
		payout.PerNode, payout.Remainder = perNode, rem
	}
	e.settled[id] = KindAuditorPayment
	e.logger.Info(
		"auditor paid",
		"component", "settlement",
		"request_id", id,
		"auditor", auditor,
		"amount", auditorShare,
		"verifier_fee", fee,
	)
	return payout, nil
}

// SlashAndDistribute forfeits part of the auditor's stake and splits it,
// together with the request price the auditor no longer earns, across the
// assigned police nodes
func (e *Engine) SlashAndDistribute(
	id types.RequestID,
	auditor types.Address,
	price currency.Amount,
	nodes []types.Address,
	now types.Height,
) (Payout, error) {
	e.Lock()
	defer e.Unlock()
	if err := e.checkOpen(id, price); err != nil {
		return Payout{}, err
	}
	slashed, err := e.config.Slashing.Slash(auditor, e.slash, now)
	if err != nil {
		return Payout{}, err
	}
	if slashed > 0 {
		if err := e.config.Slashing.Release(e.config.EscrowAccount, slashed); err != nil {
			return Payout{}, err
		}
	}
	total, err := price.Add(slashed)
	if err != nil {
		return Payout{}, err
	}
	payout := Payout{Nodes: nodes, Slashed: slashed}
	if len(nodes) == 0 {
		if err := e.transfer(id, KindRemainder, e.config.Treasury, total, now); err != nil {
			return Payout{}, err
		}
		payout.Remainder = total
	} else {
		perNode, rem, err := e.distribute(id, KindSlashShare, total, nodes, now)
		if err != nil {
			return Payout{}, err
		}
		payout.PerNode, payout.Remainder = perNode, rem
	}
	e.settled[id] = KindSlashShare
	e.logger.Warn(
		"auditor slashed",
		"component", "settlement",
		"request_id", id,
		"auditor", auditor,
		"slashed", slashed,
		"distributed", total,
	)
	return payout, nil
}

// Refund returns the escrowed price to the requestor
func (e *Engine) Refund(
	id types.RequestID,
	requestor types.Address,
	price currency.Amount,
	now types.Height,
) error {
	e.Lock()
	defer e.Unlock()
	if err := e.checkOpen(id, price); err != nil {
		return err
	}
	if err := e.transfer(id, KindRefund, requestor, price, now); err != nil {
		return err
	}
	e.settled[id] = KindRefund
	return nil
}

// Resolve pays the full price of an arbitrated error report to recipient
func (e *Engine) Resolve(
	id types.RequestID,
	recipient types.Address,
	price currency.Amount,
	now types.Height,
) error {
	e.Lock()
	defer e.Unlock()
	if err := e.checkOpen(id, price); err != nil {
		return err
	}
	if err := e.transfer(id, KindResolution, recipient, price, now); err != nil {
		return err
	}
	e.settled[id] = KindResolution
	return nil
}

// CanSettle reports the error a final payout of amount for id would fail
// with before anything is moved
func (e *Engine) CanSettle(id types.RequestID, amount currency.Amount) error {
	e.Lock()
	defer e.Unlock()
	return e.checkOpen(id, amount)
}

func (e *Engine) checkOpen(id types.RequestID, needed currency.Amount) error {
	if kind, ok := e.settled[id]; ok {
		return fmt.Errorf("request %d settled by %s: %w", id, kind, ErrAlreadySettled)
	}
	if e.config.Ledger.BalanceOf(e.config.EscrowAccount) < needed {
		return ErrInsufficientFunds
	}
	return nil
}

// distribute splits amount evenly across nodes. The remainder of the
// integer division goes to the treasury.
func (e *Engine) distribute(
	id types.RequestID,
	kind Kind,
	amount currency.Amount,
	nodes []types.Address,
	now types.Height,
) (currency.Amount, currency.Amount, error) {
	perNode, rem, err := amount.Divide(len(nodes))
	if err != nil {
		return 0, 0, err
	}
	if perNode > 0 {
		for _, node := range nodes {
			if err := e.transfer(id, kind, node, perNode, now); err != nil {
				return 0, 0, err
			}
		}
	}
	if rem > 0 {
		if err := e.transfer(id, KindRemainder, e.config.Treasury, rem, now); err != nil {
			return 0, 0, err
		}
	}
	return perNode, rem, nil
}

func (e *Engine) transfer(
	id types.RequestID,
	kind Kind,
	to types.Address,
	amount currency.Amount,
	now types.Height,
) error {
	if amount == 0 {
		return nil
	}
	if !e.config.Ledger.Transfer(e.config.EscrowAccount, to, amount) {
		return fmt.Errorf("%s of %d to %s: %w", kind, amount, to, ErrTransferFailed)
	}
	e.record(id, kind, e.config.EscrowAccount, to, amount, now)
	return nil
}

func (e *Engine) record(
	id types.RequestID,
	kind Kind,
	from, to types.Address,
	amount currency.Amount,
	now types.Height,
) {
	if e.metrics.transfers != nil {
		e.metrics.transfers.WithLabelValues(string(kind)).Inc()
		e.metrics.amounts.WithLabelValues(string(kind)).Add(float64(amount))
	}
	if e.config.EventBus == nil {
		return
	}
	e.config.EventBus.PublishAsync(
		TransferEventType,
		event.NewEvent(TransferEventType, TransferEvent{
			RequestID: id,
			Kind:      kind,
			From:      from,
			To:        to,
			Amount:    amount,
			Height:    now,
		}),
	)
}
