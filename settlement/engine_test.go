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

package settlement

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/stake"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/token"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

const (
	escrowAccount types.Address = "escrow"
	stakeAccount  types.Address = "stake"
	treasury      types.Address = "treasury"
	requestor     types.Address = "requestor"
	auditor       types.Address = "auditor"
)

type fixture struct {
	engine *Engine
	ledger *token.MemoryLedger
	escrow *stake.Escrow
}

func newFixture(t *testing.T, feePct, slashPct uint64) *fixture {
	t.Helper()
	ledger := token.NewMemoryLedger(token.MemoryLedgerConfig{})
	require.NoError(t, ledger.Mint(requestor, 100000))
	require.NoError(t, ledger.Mint(auditor, 1000))
	ledger.Approve(requestor, escrowAccount, 100000)
	ledger.Approve(auditor, stakeAccount, 1000)
	escrow := stake.NewEscrow(stake.Config{
		Account:  stakeAccount,
		Ledger:   ledger,
		MinStake: 100,
	})
	require.NoError(t, escrow.Stake(auditor, 100, 0))
	engine, err := NewEngine(Config{
		EscrowAccount:                 escrowAccount,
		Treasury:                      treasury,
		Ledger:                        ledger,
		Slashing:                      escrow,
		ReportProcessingFeePercentage: feePct,
		SlashPercentage:               slashPct,
		PromRegistry:                  prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return &fixture{engine: engine, ledger: ledger, escrow: escrow}
}

func nodeList(n int) []types.Address {
	ret := make([]types.Address, n)
	for i := range n {
		ret[i] = types.Address(fmt.Sprintf("police-%d", i))
	}
	return ret
}

func TestComputeShares(t *testing.T) {
	f := newFixture(t, 5, 0)
	share, fee := f.engine.ComputeShares(123)
	assert.Equal(t, currency.Amount(117), share)
	assert.Equal(t, currency.Amount(6), fee)
}

func TestInvalidPercent(t *testing.T) {
	_, err := NewEngine(Config{ReportProcessingFeePercentage: 101})
	require.ErrorIs(t, err, ErrInvalidPercent)
	f := newFixture(t, 5, 0)
	require.ErrorIs(t, f.engine.SetPercentages(5, 101), ErrInvalidPercent)
}

func TestPayAuditorConservation(t *testing.T) {
	prices := []currency.Amount{1, 7, 100, 123, 997, 1001}
	for _, price := range prices {
		for _, n := range []int{0, 1, 2, 3, 7} {
			t.Run(fmt.Sprintf("price=%d/nodes=%d", price, n), func(t *testing.T) {
				f := newFixture(t, 13, 0)
				require.NoError(t, f.engine.Deposit([]types.RequestID{1}, requestor, price, 0, 0))
				nodes := nodeList(n)
				payout, err := f.engine.PayAuditor(1, auditor, price, nodes, 1)
				require.NoError(t, err)

				var verifierTotal currency.Amount
				for _, node := range nodes {
					assert.Equal(t, payout.PerNode, f.ledger.BalanceOf(node))
					verifierTotal += f.ledger.BalanceOf(node)
				}
				auditorPaid := f.ledger.BalanceOf(auditor) - 900
				retained := f.ledger.BalanceOf(treasury)
				assert.Equal(t, price, auditorPaid+verifierTotal+retained)
				assert.Equal(t, payout.Auditor, auditorPaid)
				assert.Equal(t, payout.Remainder, retained)
				assert.Equal(t, currency.Amount(0), f.ledger.BalanceOf(escrowAccount))
				if n == 0 {
					assert.Equal(t, price, auditorPaid)
				}
			})
		}
	}
}

func TestPayAuditorOnce(t *testing.T) {
	f := newFixture(t, 5, 0)
	require.NoError(t, f.engine.Deposit([]types.RequestID{1}, requestor, 100, 0, 0))
	require.NoError(t, f.engine.Deposit([]types.RequestID{2}, requestor, 100, 0, 0))
	_, err := f.engine.PayAuditor(1, auditor, 100, nodeList(1), 1)
	require.NoError(t, err)
	_, err = f.engine.PayAuditor(1, auditor, 100, nodeList(1), 1)
	require.ErrorIs(t, err, ErrAlreadySettled)
	require.ErrorIs(t, f.engine.Refund(1, requestor, 100, 1), ErrAlreadySettled)
	kind, ok := f.engine.IsSettled(1)
	require.True(t, ok)
	assert.Equal(t, KindAuditorPayment, kind)
	assert.Equal(t, currency.Amount(100), f.ledger.BalanceOf(escrowAccount))
}

func TestSlashAndDistribute(t *testing.T) {
	f := newFixture(t, 5, 30)
	require.NoError(t, f.engine.Deposit([]types.RequestID{1}, requestor, 100, 0, 0))
	nodes := nodeList(3)
	payout, err := f.engine.SlashAndDistribute(1, auditor, 100, nodes, 1)
	require.NoError(t, err)
	// 100 price + 30 slashed split three ways, 1 left for the treasury
	assert.Equal(t, currency.Amount(30), payout.Slashed)
	assert.Equal(t, currency.Amount(43), payout.PerNode)
	assert.Equal(t, currency.Amount(1), payout.Remainder)
	for _, node := range nodes {
		assert.Equal(t, currency.Amount(43), f.ledger.BalanceOf(node))
	}
	assert.Equal(t, currency.Amount(1), f.ledger.BalanceOf(treasury))
	assert.Equal(t, currency.Amount(70), f.escrow.TotalStakedFor(auditor))
	assert.Equal(t, currency.Amount(70), f.ledger.BalanceOf(stakeAccount))
	assert.Equal(t, currency.Amount(0), f.ledger.BalanceOf(escrowAccount))
	assert.Equal(t, currency.Amount(900), f.ledger.BalanceOf(auditor))
}

func TestRefundAndResolve(t *testing.T) {
	f := newFixture(t, 5, 0)
	require.NoError(t, f.engine.Deposit([]types.RequestID{1}, requestor, 100, 0, 0))
	require.NoError(t, f.engine.Deposit([]types.RequestID{2}, requestor, 50, 0, 0))
	require.NoError(t, f.engine.Refund(1, requestor, 100, 1))
	assert.Equal(t, currency.Amount(99950), f.ledger.BalanceOf(requestor))

	require.NoError(t, f.engine.Resolve(2, auditor, 50, 2))
	require.ErrorIs(t, f.engine.Resolve(2, requestor, 50, 2), ErrAlreadySettled)
	assert.Equal(t, currency.Amount(950), f.ledger.BalanceOf(auditor))
}

func TestDepositWithFee(t *testing.T) {
	f := newFixture(t, 5, 0)
	require.NoError(t, f.engine.Deposit([]types.RequestID{1}, requestor, 100, 3, 0))
	assert.Equal(t, currency.Amount(100), f.ledger.BalanceOf(escrowAccount))
	assert.Equal(t, currency.Amount(3), f.ledger.BalanceOf(treasury))

	err := f.engine.Deposit([]types.RequestID{2}, "nobody", 100, 3, 0)
	require.ErrorIs(t, err, ErrTransferFailed)

	// price fits the allowance but the fee does not: nothing moves
	f.ledger.Approve(requestor, escrowAccount, 100)
	err = f.engine.Deposit([]types.RequestID{3}, requestor, 100, 3, 0)
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, currency.Amount(100000-103), f.ledger.BalanceOf(requestor))
	assert.Equal(t, currency.Amount(100), f.ledger.Allowance(requestor, escrowAccount))
	assert.Equal(t, currency.Amount(3), f.ledger.BalanceOf(treasury))
}

func TestDepositBatch(t *testing.T) {
	f := newFixture(t, 5, 0)
	ids := []types.RequestID{1, 2, 3}
	require.NoError(t, f.engine.Deposit(ids, requestor, 10, 2, 0))
	assert.Equal(t, currency.Amount(30), f.ledger.BalanceOf(escrowAccount))
	assert.Equal(t, currency.Amount(6), f.ledger.BalanceOf(treasury))
	assert.Equal(t, currency.Amount(100000-36), f.ledger.Allowance(requestor, escrowAccount))
	require.NoError(t, f.engine.Deposit(nil, requestor, 10, 2, 0))
}

func TestDepositRejectedLeavesNoTrace(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Close()
	var transfers []TransferEvent
	_, ch := eb.Subscribe(TransferEventType)
	ledger := token.NewMemoryLedger(token.MemoryLedgerConfig{})
	require.NoError(t, ledger.Mint(requestor, 1000))
	// covers two of three requests of price 10
	ledger.Approve(requestor, escrowAccount, 20)
	engine, err := NewEngine(Config{
		EscrowAccount: escrowAccount,
		Treasury:      treasury,
		Ledger:        ledger,
		EventBus:      eb,
	})
	require.NoError(t, err)

	err = engine.Deposit([]types.RequestID{1, 2, 3}, requestor, 10, 0, 0)
	require.ErrorIs(t, err, ErrTransferFailed)
	err = engine.Deposit([]types.RequestID{4}, requestor, 15, 10, 0)
	require.ErrorIs(t, err, ErrTransferFailed)

	eb.Flush()
	for len(ch) > 0 {
		transfers = append(transfers, (<-ch).Data.(TransferEvent))
	}
	assert.Empty(t, transfers)
	assert.Equal(t, currency.Amount(1000), ledger.BalanceOf(requestor))
	assert.Equal(t, currency.Amount(0), ledger.BalanceOf(escrowAccount))
	assert.Equal(t, currency.Amount(20), ledger.Allowance(requestor, escrowAccount))
}

func TestInsufficientEscrow(t *testing.T) {
	f := newFixture(t, 5, 0)
	err := f.engine.Refund(9, requestor, 10, 0)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.ErrorIs(t, f.engine.CanSettle(9, 10), ErrInsufficientFunds)
}

func TestCanSettle(t *testing.T) {
	f := newFixture(t, 5, 0)
	require.NoError(t, f.engine.Deposit([]types.RequestID{1}, requestor, 100, 0, 0))
	require.NoError(t, f.engine.CanSettle(1, 100))
	require.NoError(t, f.engine.Refund(1, requestor, 100, 0))
	require.ErrorIs(t, f.engine.CanSettle(1, 0), ErrAlreadySettled)
}
