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

// Package token defines the fungible token ledger the market settles against
package token

import (
	"io"
	"log/slog"
	"sync"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

const TransferEventType event.EventType = "token.transfer"

type TransferEvent struct {
	From   types.Address
	To     types.Address
	Amount currency.Amount
}

// Ledger is the balance and transfer service the market treats as opaque.
// Transfer and TransferFrom report success with a boolean and leave balances
// untouched on failure.
type Ledger interface {
	BalanceOf(addr types.Address) currency.Amount
	Allowance(owner, spender types.Address) currency.Amount
	Transfer(from, to types.Address, amount currency.Amount) bool
	TransferFrom(
		spender, from, to types.Address,
		amount currency.Amount,
	) bool
}

type allowanceKey struct {
	owner   types.Address
	spender types.Address
}

type MemoryLedgerConfig struct {
	Logger   *slog.Logger
	EventBus *event.EventBus
}

// MemoryLedger is an in-process Ledger used by the dev node and tests
type MemoryLedger struct {
	sync.Mutex
	logger     *slog.Logger
	eventBus   *event.EventBus
	balances   map[types.Address]currency.Amount
	allowances map[allowanceKey]currency.Amount
	supply     currency.Amount
}

func NewMemoryLedger(cfg MemoryLedgerConfig) *MemoryLedger {
	l := &MemoryLedger{
		eventBus:   cfg.EventBus,
		balances:   make(map[types.Address]currency.Amount),
		allowances: make(map[allowanceKey]currency.Amount),
	}
	if cfg.Logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		l.logger = cfg.Logger
	}
	return l
}

// Mint creates new tokens for addr
func (l *MemoryLedger) Mint(addr types.Address, amount currency.Amount) error {
	l.Lock()
	defer l.Unlock()
	supply, err := l.supply.Add(amount)
	if err != nil {
		return err
	}
	bal, err := l.balances[addr].Add(amount)
	if err != nil {
		return err
	}
	l.supply = supply
	l.balances[addr] = bal
	l.logger.Debug(
		"minted tokens",
		"component", "token",
		"address", addr,
		"amount", amount,
	)
	l.publish(TransferEvent{To: addr, Amount: amount})
	return nil
}

func (l *MemoryLedger) BalanceOf(addr types.Address) currency.Amount {
	l.Lock()
	defer l.Unlock()
	return l.balances[addr]
}

func (l *MemoryLedger) TotalSupply() currency.Amount {
	l.Lock()
	defer l.Unlock()
	return l.supply
}

// Approve sets the amount spender may move out of owner's balance
func (l *MemoryLedger) Approve(owner, spender types.Address, amount currency.Amount) {
	l.Lock()
	defer l.Unlock()
	l.allowances[allowanceKey{owner, spender}] = amount
}

func (l *MemoryLedger) Allowance(owner, spender types.Address) currency.Amount {
	l.Lock()
	defer l.Unlock()
	return l.allowances[allowanceKey{owner, spender}]
}

func (l *MemoryLedger) Transfer(from, to types.Address, amount currency.Amount) bool {
	l.Lock()
	defer l.Unlock()
	return l.transfer(from, to, amount)
}

func (l *MemoryLedger) TransferFrom(
	spender, from, to types.Address,
	amount currency.Amount,
) bool {
	l.Lock()
	defer l.Unlock()
	key := allowanceKey{from, spender}
	allowed := l.allowances[key]
	if spender != from && allowed < amount {
		return false
	}
	if !l.transfer(from, to, amount) {
		return false
	}
	if spender != from {
		l.allowances[key] = allowed - amount
	}
	return true
}

func (l *MemoryLedger) transfer(from, to types.Address, amount currency.Amount) bool {
	if amount == 0 {
		return true
	}
	fromBal, err := l.balances[from].Sub(amount)
	if err != nil {
		return false
	}
	if from == to {
		return true
	}
	toBal, err := l.balances[to].Add(amount)
	if err != nil {
		return false
	}
	l.balances[from] = fromBal
	l.balances[to] = toBal
	l.publish(TransferEvent{From: from, To: to, Amount: amount})
	return true
}

func (l *MemoryLedger) publish(evt TransferEvent) {
	if l.eventBus == nil {
		return
	}
	l.eventBus.PublishAsync(
		TransferEventType,
		event.NewEvent(TransferEventType, evt),
	)
}
