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

package market

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/clock"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/police"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/settlement"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/token"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

const (
	owner         types.Address = "owner"
	escrowAccount types.Address = "escrow"
	stakeAccount  types.Address = "stake"
	treasury      types.Address = "treasury"
	requestor     types.Address = "requestor"
	auditor1      types.Address = "auditor-1"
	auditor2      types.Address = "auditor-2"
)

const testURI = "http://www.quantstamp.com/contract.sol"

type harness struct {
	m      *Market
	ledger *token.MemoryLedger
	clock  *clock.ManualClock
	reg    *prometheus.Registry
}

// newHarness builds a market with two staked auditors and no police nodes
func newHarness(t *testing.T, mutate func(*Params)) *harness {
	t.Helper()
	ledger := token.NewMemoryLedger(token.MemoryLedgerConfig{})
	require.NoError(t, ledger.Mint(requestor, 1_000_000))
	ledger.Approve(requestor, escrowAccount, 1_000_000)
	for _, a := range []types.Address{auditor1, auditor2} {
		require.NoError(t, ledger.Mint(a, 1000))
		ledger.Approve(a, stakeAccount, 1000)
	}
	params := DefaultParams()
	params.MinStake = 100
	params.AuditTimeout = 10
	params.PoliceTimeout = 20
	if mutate != nil {
		mutate(&params)
	}
	clk := clock.NewManualClock(1)
	reg := prometheus.NewRegistry()
	m, err := New(Config{
		Owner:           owner,
		EscrowAccount:   escrowAccount,
		StakeAccount:    stakeAccount,
		TreasuryAccount: treasury,
		Ledger:          ledger,
		Clock:           clk,
		Params:          params,
		PromRegistry:    reg,
	})
	require.NoError(t, err)
	h := &harness{m: m, ledger: ledger, clock: clk, reg: reg}
	for _, a := range []types.Address{auditor1, auditor2} {
		require.NoError(t, m.AddAddressToWhitelist(owner, a))
		require.NoError(t, m.Stake(a, 100))
	}
	return h
}

func (h *harness) addPolice(t *testing.T, nodes ...types.Address) {
	t.Helper()
	for _, n := range nodes {
		require.NoError(t, h.m.AddPoliceNode(owner, n))
	}
}

func (h *harness) request(t *testing.T, prices ...currency.Amount) []types.RequestID {
	t.Helper()
	ids := make([]types.RequestID, 0, len(prices))
	for _, p := range prices {
		id, err := h.m.RequestAudit(requestor, testURI, p)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func (h *harness) assign(t *testing.T, auditor types.Address) types.RequestID {
	t.Helper()
	out, err := h.m.GetNextAuditRequest(auditor)
	require.NoError(t, err)
	require.True(t, out.OK(), "assignment failed: %s", out.Reason)
	return out.RequestID
}

func (h *harness) complete(t *testing.T, auditor types.Address, id types.RequestID) {
	t.Helper()
	out, err := h.m.SubmitReport(auditor, id, ResultCompleted, []byte("report"), "ipfs://report")
	require.NoError(t, err)
	require.True(t, out.OK(), "submit failed: %s", out.Reason)
}

func TestNewValidation(t *testing.T) {
	ledger := token.NewMemoryLedger(token.MemoryLedgerConfig{})
	_, err := New(Config{Owner: owner})
	require.ErrorIs(t, err, ErrMissingLedger)
	_, err = New(Config{Ledger: ledger})
	require.ErrorIs(t, err, ErrMissingOwner)
	_, err = New(Config{Ledger: ledger, Owner: owner, EscrowAccount: "a", StakeAccount: "b"})
	require.ErrorIs(t, err, ErrMissingAccount)
	_, err = New(Config{Ledger: ledger, Owner: owner, EscrowAccount: "a", StakeAccount: "a", TreasuryAccount: "b"})
	require.ErrorIs(t, err, ErrDuplicateAccount)
	m, err := New(Config{Ledger: ledger, Owner: owner, EscrowAccount: "a", StakeAccount: "b", TreasuryAccount: "c"})
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), m.Params())
}

func TestAssignmentOrdering(t *testing.T) {
	tests := []struct {
		prices []currency.Amount
		want   []types.RequestID
	}{
		{prices: []currency.Amount{124, 123, 123}, want: []types.RequestID{1, 2, 3}},
		{prices: []currency.Amount{123, 124}, want: []types.RequestID{2, 1}},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.prices), func(t *testing.T) {
			h := newHarness(t, nil)
			h.request(t, tc.prices...)
			assert.Equal(t, len(tc.prices), h.m.QueueLength())
			var got []types.RequestID
			for range tc.prices {
				got = append(got, h.assign(t, auditor1))
			}
			assert.Equal(t, tc.want, got)
			out, err := h.m.GetNextAuditRequest(auditor1)
			require.NoError(t, err)
			assert.Equal(t, ReasonQueueEmpty, out.Reason)
		})
	}
}

func TestAdmissionBound(t *testing.T) {
	for _, k := range []int{1, 3} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			h := newHarness(t, func(p *Params) { p.MaxAssignedRequests = k })
			for range k + 2 {
				h.request(t, 50)
			}
			for range k {
				h.assign(t, auditor1)
			}
			out, err := h.m.GetNextAuditRequest(auditor1)
			require.NoError(t, err)
			assert.Equal(t, ReasonExceededMaxAssignedRequests, out.Reason)
			assert.Equal(t, k, h.m.AssignedCount(auditor1))
			assert.Equal(t, 2, h.m.QueueLength())
		})
	}
}

func TestStakeGating(t *testing.T) {
	h := newHarness(t, nil)
	const poor types.Address = "poor-auditor"
	require.NoError(t, h.ledger.Mint(poor, 1000))
	h.ledger.Approve(poor, stakeAccount, 1000)
	require.NoError(t, h.m.AddAddressToWhitelist(owner, poor))
	h.request(t, 10)

	require.NoError(t, h.m.Stake(poor, 99))
	out, err := h.m.GetNextAuditRequest(poor)
	require.NoError(t, err)
	assert.Equal(t, ReasonUnderstaked, out.Reason)
	assert.False(t, h.m.HasEnoughStake(poor))

	require.NoError(t, h.m.Stake(poor, 1))
	assert.True(t, h.m.HasEnoughStake(poor))
	assert.Equal(t, currency.Amount(100), h.m.TotalStakedFor(poor))
	out, err = h.m.GetNextAuditRequest(poor)
	require.NoError(t, err)
	assert.True(t, out.OK())
}

func TestUnauthorizedAuditor(t *testing.T) {
	h := newHarness(t, nil)
	h.request(t, 10)
	_, err := h.m.GetNextAuditRequest("stranger")
	require.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Equal(t, 1, h.m.QueueLength())

	require.ErrorIs(t, h.m.AddAddressToWhitelist("stranger", "x"), types.ErrUnauthorized)
	require.ErrorIs(t, h.m.AddPoliceNode("stranger", "x"), types.ErrUnauthorized)
	require.ErrorIs(t, h.m.SetMinAuditPrice("stranger", 1), types.ErrUnauthorized)
}

func TestRefundQueued(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.request(t, 100, 200)
	before := h.ledger.BalanceOf(requestor)

	out, err := h.m.Refund(requestor, ids[0])
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, StateRefunded, out.State)
	assert.Equal(t, before+100, h.ledger.BalanceOf(requestor))
	assert.Equal(t, 1, h.m.QueueLength())

	// refunding twice is an invalid state
	out, err = h.m.Refund(requestor, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidState, out.Reason)
	assert.Equal(t, StateRefunded, out.State)

	out, err = h.m.Refund("someone-else", ids[1])
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidRequestor, out.Reason)
	assert.Equal(t, 1, h.m.QueueLength())
}

func TestRefundUnknownRequest(t *testing.T) {
	h := newHarness(t, nil)
	before := h.ledger.BalanceOf(requestor)
	out, err := h.m.Refund(requestor, 123456)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidState, out.Reason)
	assert.Equal(t, StateNone, out.State)
	assert.Equal(t, before, h.ledger.BalanceOf(requestor))
	assert.Equal(t, StateNone, h.m.State(123456))
	_, ok := h.m.Request(123456)
	assert.False(t, ok)
}

func TestRefundAssigned(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.request(t, 100)
	h.assign(t, auditor1)

	out, err := h.m.Refund(requestor, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ReasonFundsLocked, out.Reason)

	// the audit window is assignedAt + 10
	h.clock.Advance(10)
	out, err = h.m.Refund(requestor, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ReasonFundsLocked, out.Reason)

	h.clock.Advance(1)
	out, err = h.m.Refund(requestor, ids[0])
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, currency.Amount(1_000_000), h.ledger.BalanceOf(requestor))
	assert.Equal(t, 0, h.m.AssignedCount(auditor1))

	sub, err := h.m.SubmitReport(auditor1, ids[0], ResultCompleted, nil, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidState, sub.Reason)
}

func TestSubmitReportValidation(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.request(t, 100, 100)
	h.assign(t, auditor1)

	_, err := h.m.SubmitReport("stranger", ids[0], ResultCompleted, nil, "")
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = h.m.SubmitReport(auditor1, ids[0], ReportResult(42), nil, "")
	require.ErrorIs(t, err, ErrInvalidResult)

	out, err := h.m.SubmitReport(auditor2, ids[0], ResultCompleted, nil, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidAuditor, out.Reason)

	out, err = h.m.SubmitReport(auditor1, ids[1], ResultCompleted, nil, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidState, out.Reason)
	assert.Equal(t, StateQueued, out.State)

	h.clock.Advance(11)
	out, err = h.m.SubmitReport(auditor1, ids[0], ResultCompleted, nil, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonSubmissionPeriodExceeded, out.Reason)
	assert.False(t, h.m.IsAuditFinished(ids[0]))
}

func TestSubmitReportStored(t *testing.T) {
	h := newHarness(t, nil)
	h.request(t, 100)
	id := h.assign(t, auditor1)
	h.complete(t, auditor1, id)
	assert.True(t, h.m.IsAuditFinished(id))
	assert.Equal(t, 0, h.m.AssignedCount(auditor1))
	data, err := h.m.Report(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("report"), data)
	req, ok := h.m.Request(id)
	require.True(t, ok)
	assert.Equal(t, "ipfs://report", req.ReportURI)
	assert.Equal(t, StateCompleted, req.State)
}

func TestConservation(t *testing.T) {
	for _, price := range []currency.Amount{1, 100, 101, 997, 12345} {
		t.Run(fmt.Sprintf("price=%d", price), func(t *testing.T) {
			h := newHarness(t, func(p *Params) {
				p.PoliceNodesPerReport = 3
				p.ReportProcessingFeePercentage = 7
			})
			h.addPolice(t, "p1", "p2", "p3")
			h.request(t, price)
			id := h.assign(t, auditor1)
			h.complete(t, auditor1, id)
			for _, n := range []types.Address{"p1", "p2", "p3"} {
				out, err := h.m.SubmitPoliceReport(n, id, []byte("ok"), true)
				require.NoError(t, err)
				require.True(t, out.OK())
			}
			assert.Equal(t, police.VerdictValid, h.m.Verdict(id))

			out, err := h.m.ClaimReward(auditor1, id)
			require.NoError(t, err)
			assert.Equal(t, ReasonNotClaimable, out.Reason)

			h.clock.Advance(21)
			out, err = h.m.ClaimReward(auditor1, id)
			require.NoError(t, err)
			require.True(t, out.OK(), "claim failed: %s", out.Reason)

			auditorPaid := h.ledger.BalanceOf(auditor1) - 900
			var fees currency.Amount
			for _, n := range []types.Address{"p1", "p2", "p3"} {
				fees += h.ledger.BalanceOf(n)
			}
			retained := h.ledger.BalanceOf(treasury)
			assert.Equal(t, price, auditorPaid+fees+retained)
			assert.Equal(t, out.Amount, auditorPaid)
			assert.Equal(t, currency.Amount(0), h.ledger.BalanceOf(escrowAccount))
		})
	}
}

func TestRotationFairness(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.PoliceNodesPerReport = 1 })
	h.addPolice(t, "A", "B", "C")
	h.request(t, 10, 10, 10, 10, 10, 10)
	var got []types.Address
	for i := range 6 {
		if i == 3 {
			require.NoError(t, h.m.RemovePoliceNode(owner, "B"))
		}
		id := h.assign(t, auditor1)
		h.complete(t, auditor1, id)
		got = append(got, h.m.PoliceNodesFor(id)...)
	}
	assert.Equal(t, []types.Address{"A", "B", "C", "A", "C", "A"}, got)
}

func TestSlashTerminality(t *testing.T) {
	h := newHarness(t, func(p *Params) {
		p.PoliceNodesPerReport = 2
		p.SlashPercentage = 50
	})
	h.addPolice(t, "A", "B")
	h.request(t, 101)
	id := h.assign(t, auditor1)
	h.complete(t, auditor1, id)
	assert.True(t, h.m.IsPoliceAssigned(id, "A"))

	out, err := h.m.SubmitPoliceReport("A", id, []byte("bad"), false)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, police.VerdictInvalid, out.Verdict)
	assert.Equal(t, currency.Amount(50), out.Amount)
	assert.Equal(t, currency.Amount(50), h.m.TotalStakedFor(auditor1))
	// 101 price + 50 slashed across two nodes, 1 retained
	assert.Equal(t, currency.Amount(75), h.ledger.BalanceOf("A"))
	assert.Equal(t, currency.Amount(75), h.ledger.BalanceOf("B"))
	assert.Equal(t, currency.Amount(1), h.ledger.BalanceOf(treasury))

	out, err = h.m.SubmitPoliceReport("B", id, []byte("fine"), true)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyResolved, out.Reason)
	assert.Equal(t, police.VerdictInvalid, out.Verdict)
	assert.Equal(t, police.VerdictInvalid, h.m.Verdict(id))

	h.clock.Advance(100)
	claim, err := h.m.ClaimReward(auditor1, id)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyResolved, claim.Reason)
	assert.False(t, h.m.HasAvailableRewards(auditor1))
	assert.Equal(t, currency.Amount(900), h.ledger.BalanceOf(auditor1))
}

func TestNegativeReportNeedsSettlement(t *testing.T) {
	h := newHarness(t, func(p *Params) {
		p.PoliceNodesPerReport = 1
		p.SlashPercentage = 50
	})
	h.addPolice(t, "A")
	h.request(t, 100)
	id := h.assign(t, auditor1)
	h.complete(t, auditor1, id)

	// escrow drained elsewhere: the slash cannot settle
	require.True(t, h.ledger.Transfer(escrowAccount, "elsewhere", 100))
	_, err := h.m.SubmitPoliceReport("A", id, []byte("bad"), false)
	require.ErrorIs(t, err, settlement.ErrInsufficientFunds)
	assert.Equal(t, police.VerdictUnverified, h.m.Verdict(id))
	assert.True(t, h.m.IsPoliceAssigned(id, "A"))
	_, err = h.m.PoliceReport(id, "A")
	require.Error(t, err)
	assert.Equal(t, currency.Amount(100), h.m.TotalStakedFor(auditor1))

	require.True(t, h.ledger.Transfer("elsewhere", escrowAccount, 100))
	out, err := h.m.SubmitPoliceReport("A", id, []byte("bad"), false)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, police.VerdictInvalid, out.Verdict)
	assert.Equal(t, currency.Amount(50), h.m.TotalStakedFor(auditor1))
}

func TestPoliceReportErrors(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.PoliceNodesPerReport = 1 })
	h.addPolice(t, "A", "B")
	h.request(t, 10)
	id := h.assign(t, auditor1)
	h.complete(t, auditor1, id)

	_, err := h.m.SubmitPoliceReport("stranger", id, nil, true)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	out, err := h.m.SubmitPoliceReport("B", id, nil, true)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotAssigned, out.Reason)

	h.clock.Advance(21)
	out, err = h.m.SubmitPoliceReport("A", id, nil, false)
	require.NoError(t, err)
	assert.Equal(t, ReasonSubmissionPeriodExceeded, out.Reason)
	assert.Equal(t, police.VerdictExpired, out.Verdict)
	assert.Equal(t, currency.Amount(100), h.m.TotalStakedFor(auditor1))
}

func TestPoliceAssignmentDiscovery(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.PoliceNodesPerReport = 1 })
	h.addPolice(t, "A")
	h.request(t, 10, 20)
	first := h.assign(t, auditor1)
	second := h.assign(t, auditor1)
	h.complete(t, auditor1, second)
	h.complete(t, auditor1, first)

	p, ok := h.m.GetNextPoliceAssignment("A", 0)
	require.True(t, ok)
	assert.Equal(t, types.RequestID(1), p.ID)
	assert.Equal(t, currency.Amount(10), p.Price)
	assert.Equal(t, "ipfs://report", p.URI)
	p, ok = h.m.GetNextPoliceAssignment("A", p.ID)
	require.True(t, ok)
	assert.Equal(t, types.RequestID(2), p.ID)
	_, ok = h.m.GetNextPoliceAssignment("A", p.ID)
	assert.False(t, ok)

	_, err := h.m.SubmitPoliceReport("A", 1, []byte("ok"), true)
	require.NoError(t, err)
	data, err := h.m.PoliceReport(1, "A")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)
	p, ok = h.m.GetNextPoliceAssignment("A", 0)
	require.True(t, ok)
	assert.Equal(t, types.RequestID(2), p.ID)
}

func TestClaimAfterPoliceWindow(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.PoliceNodesPerReport = 1 })
	h.addPolice(t, "A")
	h.request(t, 100)
	id := h.assign(t, auditor1)
	h.complete(t, auditor1, id)

	out, err := h.m.ClaimReward(auditor1, id)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotClaimable, out.Reason)
	assert.False(t, h.m.HasAvailableRewards(auditor1))

	out, err = h.m.ClaimReward(auditor2, id)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidAuditor, out.Reason)

	h.clock.Advance(21)
	assert.True(t, h.m.HasAvailableRewards(auditor1))
	next, ok := h.m.GetNextAvailableReward(auditor1, 0)
	require.True(t, ok)
	assert.Equal(t, id, next)

	out, err = h.m.ClaimReward(auditor1, id)
	require.NoError(t, err)
	require.True(t, out.OK())
	// 5% of 100 goes to the single police node
	assert.Equal(t, currency.Amount(95), out.Amount)
	assert.Equal(t, currency.Amount(5), h.ledger.BalanceOf("A"))

	out, err = h.m.ClaimReward(auditor1, id)
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyResolved, out.Reason)
	assert.InDelta(t, 1, testutil.ToFloat64(h.m.metrics.payouts), 0)
}

func TestClaimRewardsResumable(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.ClaimBudget = 2 })
	h.request(t, 10, 10, 10, 10, 10)
	for range 5 {
		id := h.assign(t, auditor1)
		h.complete(t, auditor1, id)
	}
	// no police nodes, so every reward is claimable right away
	var claimed []types.RequestID
	var calls int
	for {
		out, err := h.m.ClaimRewards(auditor1)
		require.NoError(t, err)
		calls++
		claimed = append(claimed, out.Claimed...)
		if !out.More {
			break
		}
		require.Len(t, out.Claimed, 2)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, []types.RequestID{1, 2, 3, 4, 5}, claimed)
	assert.Equal(t, currency.Amount(900+50), h.ledger.BalanceOf(auditor1))

	out, err := h.m.ClaimRewards(auditor1)
	require.NoError(t, err)
	assert.Empty(t, out.Claimed)
	assert.False(t, out.More)
}

func TestResolveErrorReport(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.request(t, 100, 100)
	for _, want := range ids {
		id := h.assign(t, auditor1)
		require.Equal(t, want, id)
		out, err := h.m.SubmitReport(auditor1, id, ResultError, []byte("cannot compile"), "")
		require.NoError(t, err)
		require.True(t, out.OK())
		assert.Equal(t, StateError, out.State)
	}

	_, err := h.m.ResolveErrorReport(auditor1, ids[0], true)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	before := h.ledger.BalanceOf(requestor)
	out, err := h.m.ResolveErrorReport(owner, ids[0], true)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, before+100, h.ledger.BalanceOf(requestor))

	out, err = h.m.ResolveErrorReport(owner, ids[0], false)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidResolutionCall, out.Reason)
	assert.Equal(t, before+100, h.ledger.BalanceOf(requestor))
	assert.Equal(t, currency.Amount(900), h.ledger.BalanceOf(auditor1))

	out, err = h.m.ResolveErrorReport(owner, ids[1], false)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, currency.Amount(1000), h.ledger.BalanceOf(auditor1))

	// resolved requests are not claimable as rewards
	claim, err := h.m.ClaimReward(auditor1, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyResolved, claim.Reason)

	out, err = h.m.ResolveErrorReport(owner, 123456, true)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidResolutionCall, out.Reason)
	assert.Equal(t, StateNone, out.State)
}

func TestExpiredRequeue(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.ExpiredPolicy = ExpiredPolicyRequeue })
	h.request(t, 100)
	id := h.assign(t, auditor1)
	h.clock.Advance(11)

	again := h.assign(t, auditor2)
	assert.Equal(t, id, again)
	req, _ := h.m.Request(id)
	assert.Equal(t, auditor2, req.Auditor)
	assert.Equal(t, 0, h.m.AssignedCount(auditor1))

	out, err := h.m.SubmitReport(auditor1, id, ResultCompleted, nil, "")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidAuditor, out.Reason)
}

func TestExpiredRefundPolicy(t *testing.T) {
	h := newHarness(t, nil)
	h.request(t, 100)
	id := h.assign(t, auditor1)
	h.clock.Advance(11)

	out, err := h.m.GetNextAuditRequest(auditor2)
	require.NoError(t, err)
	assert.Equal(t, ReasonQueueEmpty, out.Reason)
	req, _ := h.m.Request(id)
	assert.True(t, req.Expired)
	assert.Equal(t, StateAssigned, req.State)
	assert.Equal(t, 0, h.m.AssignedCount(auditor1))

	refund, err := h.m.Refund(requestor, id)
	require.NoError(t, err)
	assert.True(t, refund.OK())
}

func TestUnstakeLocked(t *testing.T) {
	h := newHarness(t, nil)
	h.request(t, 100)
	h.assign(t, auditor1)

	out, err := h.m.Unstake(auditor1)
	require.NoError(t, err)
	assert.Equal(t, ReasonFundsLocked, out.Reason)

	// locked until assignedAt + audit timeout + police timeout
	assert.Equal(t, types.Height(31), h.m.StakeRecord(auditor1).LockedUntil)
	h.clock.Set(31)
	out, err = h.m.Unstake(auditor1)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, currency.Amount(100), out.Amount)
	assert.Equal(t, currency.Amount(1000), h.ledger.BalanceOf(auditor1))

	out, err = h.m.Unstake(auditor1)
	require.NoError(t, err)
	assert.Equal(t, ReasonNothingStaked, out.Reason)
}

func TestMinAuditPrice(t *testing.T) {
	h := newHarness(t, nil)
	h.request(t, 50)
	require.NoError(t, h.m.SetMinAuditPrice(auditor1, 60))
	require.NoError(t, h.m.SetMinAuditPrice(auditor2, currency.MaxAmount))

	out, err := h.m.GetNextAuditRequest(auditor1)
	require.NoError(t, err)
	assert.Equal(t, ReasonPriceTooLow, out.Reason)
	assert.Equal(t, 1, h.m.QueueLength())

	stats := h.m.MinAuditPriceStats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, currency.Amount(60), stats.Sum)
	assert.Equal(t, currency.Amount(60), stats.Min)
	assert.Equal(t, currency.Amount(60), stats.Max)
	assert.Equal(t, currency.Amount(60), h.m.MinAuditPrice(auditor1))
}

func TestMultiRequestAudit(t *testing.T) {
	h := newHarness(t, func(p *Params) {
		p.TransactionFee = 2
		p.MaxMultiRequest = 3
	})
	ids, err := h.m.MultiRequestAudit(requestor, testURI, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, []types.RequestID{1, 2, 3}, ids)
	assert.Equal(t, currency.Amount(6), h.ledger.BalanceOf(treasury))
	assert.Equal(t, currency.Amount(30), h.ledger.BalanceOf(escrowAccount))
	assert.Equal(t, []types.RequestID{1, 2, 3}, h.m.QueuedRequests())

	_, err = h.m.MultiRequestAudit(requestor, testURI, 10, 4)
	require.ErrorIs(t, err, ErrInvalidCount)
	_, err = h.m.RequestAudit(requestor, testURI, 0)
	require.ErrorIs(t, err, ErrZeroPrice)
	_, err = h.m.RequestAudit("broke", testURI, 10)
	require.Error(t, err)
	assert.Equal(t, 3, h.m.QueueLength())

	// the transaction fee is not refunded
	out, err := h.m.Refund(requestor, 1)
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, currency.Amount(6), h.ledger.BalanceOf(treasury))
}

func TestMultiRequestAuditAllOrNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.ledger.Approve(requestor, escrowAccount, 20)
	before := h.ledger.BalanceOf(requestor)

	_, err := h.m.MultiRequestAudit(requestor, testURI, 10, 3)
	require.ErrorIs(t, err, settlement.ErrTransferFailed)
	assert.Equal(t, 0, h.m.QueueLength())
	assert.Equal(t, before, h.ledger.BalanceOf(requestor))
	assert.Equal(t, currency.Amount(0), h.ledger.BalanceOf(escrowAccount))
	assert.Equal(t, currency.Amount(20), h.ledger.Allowance(requestor, escrowAccount))
	_, ok := h.m.Request(1)
	assert.False(t, ok)

	// the ids of the failed batch are not consumed
	ids, err := h.m.MultiRequestAudit(requestor, testURI, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []types.RequestID{1, 2}, ids)
}

func TestRequestAuditFeeNotCovered(t *testing.T) {
	h := newHarness(t, func(p *Params) { p.TransactionFee = 5 })
	h.ledger.Approve(requestor, escrowAccount, 10)

	_, err := h.m.RequestAudit(requestor, testURI, 10)
	require.ErrorIs(t, err, settlement.ErrTransferFailed)
	assert.Equal(t, currency.Amount(10), h.ledger.Allowance(requestor, escrowAccount))
	assert.Equal(t, currency.Amount(0), h.ledger.BalanceOf(treasury))
	assert.Equal(t, 0, h.m.QueueLength())
}

func TestSetParams(t *testing.T) {
	h := newHarness(t, nil)
	p := h.m.Params()
	p.MaxAssignedRequests = 1
	require.ErrorIs(t, h.m.SetParams(auditor1, p), types.ErrUnauthorized)

	bad := p
	bad.SlashPercentage = 101
	var paramsErr *InvalidParamsError
	require.ErrorAs(t, h.m.SetParams(owner, bad), &paramsErr)
	assert.Equal(t, "slashPercentage", paramsErr.Field)

	require.NoError(t, h.m.SetParams(owner, p))
	h.request(t, 1, 1)
	h.assign(t, auditor1)
	out, err := h.m.GetNextAuditRequest(auditor1)
	require.NoError(t, err)
	assert.Equal(t, ReasonExceededMaxAssignedRequests, out.Reason)

	p.MinStake = 500
	require.NoError(t, h.m.SetParams(owner, p))
	assert.False(t, h.m.HasEnoughStake(auditor2))
	assert.Equal(t, currency.Amount(150), h.m.SlashAmount())
}

func TestOutcomeMetrics(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Refund(requestor, 99)
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(
		h.m.metrics.outcomes.WithLabelValues("refund", string(ReasonInvalidState)),
	), 0)
}
