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
	"errors"
	"fmt"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/police"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// SubmitPoliceReport records a police node's check of a completed report.
// The first negative report slashes the auditor and distributes the
// request price and the slashed stake to the assigned police nodes.
func (m *Market) SubmitPoliceReport(
	caller types.Address,
	id types.RequestID,
	data []byte,
	verified bool,
) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	req, _ := m.request(id)
	if !verified {
		// a negative report must be able to settle before the verdict is committed
		if pre, err := m.rotation.Check(id, caller, now); err == nil {
			if err := m.settlement.CanSettle(id, pre.Price); err != nil {
				return Outcome{}, fmt.Errorf("slash request %d: %w", id, err)
			}
		}
	}
	res, err := m.rotation.Submit(id, caller, data, verified, now)
	if err != nil {
		var reason Reason
		switch {
		case errors.Is(err, types.ErrUnauthorized):
			return Outcome{}, err
		case errors.Is(err, police.ErrNotAssigned):
			reason = ReasonNotAssigned
		case errors.Is(err, police.ErrAlreadySubmitted):
			reason = ReasonAlreadySubmitted
		case errors.Is(err, police.ErrSubmissionExpired):
			reason = ReasonSubmissionPeriodExceeded
		case errors.Is(err, police.ErrVerdictFinal):
			reason = ReasonAlreadyResolved
		default:
			return Outcome{}, err
		}
		out := m.reject("police_report", PoliceErrorEventType, caller, id, req.State, reason, now)
		out.Verdict, _ = m.rotation.Verdict(id, now)
		return out, nil
	}
	out := Outcome{RequestID: id, State: req.State, Verdict: res.Verdict}
	if res.Slash {
		payout, err := m.settlement.SlashAndDistribute(id, res.Auditor, res.Price, res.Nodes, now)
		if err != nil {
			return Outcome{}, fmt.Errorf("slash request %d: %w", id, err)
		}
		req.Slashed = true
		m.rewards[res.Auditor] = removeSorted(m.rewards[res.Auditor], id)
		out.Amount = payout.Slashed
		m.logger.Warn(
			"audit report rejected by police",
			"component", "market",
			"request_id", id,
			"police", caller,
			"auditor", res.Auditor,
			"slashed", payout.Slashed,
		)
	}
	m.countOutcome("police_report", "")
	m.publishRequest(PoliceFinishedEventType, req, now)
	return out, nil
}

// GetNextPoliceAssignment returns the first report after afterID the node
// still has to check
func (m *Market) GetNextPoliceAssignment(
	node types.Address,
	afterID types.RequestID,
) (police.Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotation.NextAssignment(node, afterID, m.now())
}

// IsPoliceAssigned reports whether node was picked to check id
func (m *Market) IsPoliceAssigned(id types.RequestID, node types.Address) bool {
	return m.rotation.IsAssigned(id, node)
}

// PoliceNodesFor returns the police nodes picked to check id
func (m *Market) PoliceNodesFor(id types.RequestID) []types.Address {
	return m.rotation.Nodes(id)
}

// Verdict returns the police verdict of id. Requests never sent to the
// police are Unverified.
func (m *Market) Verdict(id types.RequestID) police.Verdict {
	v, _ := m.rotation.Verdict(id, m.now())
	return v
}

// PoliceReport returns the report a police node submitted for id
func (m *Market) PoliceReport(id types.RequestID, node types.Address) ([]byte, error) {
	return m.rotation.Report(id, node)
}
