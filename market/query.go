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
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/assignment"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/report"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/stake"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

func (m *Market) Owner() types.Address {
	return m.config.Owner
}

func (m *Market) Params() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// Height returns the current block height seen by the market
func (m *Market) Height() types.Height {
	return m.now()
}

// Request returns a snapshot of the request. The second result is false for
// ids that were never created.
func (m *Market) Request(id types.RequestID) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.request(id)
	return *req, ok
}

// State returns the request state, StateNone for unknown ids
func (m *Market) State(id types.RequestID) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, _ := m.request(id)
	return req.State
}

// IsAuditFinished reports whether an auditor report was submitted for id
func (m *Market) IsAuditFinished(id types.RequestID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, _ := m.request(id)
	return req.State == StateCompleted || req.State == StateError
}

// Report returns the report the auditor submitted for id
func (m *Market) Report(id types.RequestID) ([]byte, error) {
	return m.config.Reports.Get(report.AuditKey(id))
}

func (m *Market) QueueLength() int {
	return m.queue.Len()
}

// QueuedRequests returns the queued request ids in assignment order
func (m *Market) QueuedRequests() []types.RequestID {
	return m.queue.Snapshot()
}

func (m *Market) AssignedCount(auditor types.Address) int {
	return m.tracker.CountFor(auditor)
}

func (m *Market) MinAuditPrice(auditor types.Address) currency.Amount {
	return m.tracker.MinPrice(auditor)
}

// MinAuditPriceStats aggregates the advertised minimum prices of the
// whitelisted auditors
func (m *Market) MinAuditPriceStats() assignment.PriceStats {
	return m.tracker.MinPriceStats()
}

func (m *Market) HasEnoughStake(auditor types.Address) bool {
	return m.escrow.HasMinimumStake(auditor)
}

func (m *Market) TotalStakedFor(auditor types.Address) currency.Amount {
	return m.escrow.TotalStakedFor(auditor)
}

func (m *Market) StakeRecord(auditor types.Address) stake.Record {
	return m.escrow.Record(auditor)
}

// SlashAmount returns what one slash takes from a fully staked auditor
func (m *Market) SlashAmount() currency.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrow.SlashAmount(m.params.SlashPercentage)
}

func (m *Market) IsAuditor(addr types.Address) bool {
	return m.auditors.IsMember(addr)
}

func (m *Market) IsPoliceNode(addr types.Address) bool {
	return m.police.IsMember(addr)
}

func (m *Market) Auditors() []types.Address {
	return m.auditors.Members()
}

func (m *Market) PoliceNodes() []types.Address {
	return m.police.Members()
}

// ComputeShares splits a price into the auditor share and the verifier fee
func (m *Market) ComputeShares(price currency.Amount) (currency.Amount, currency.Amount) {
	return m.settlement.ComputeShares(price)
}
