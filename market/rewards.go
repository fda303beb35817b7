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
	"slices"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/settlement"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// ClaimReward pays the caller's reward for one completed request once the
// police window allows it
func (m *Market) ClaimReward(caller types.Address, id types.RequestID) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	req, _ := m.request(id)
	if req.State != StateCompleted {
		return m.reject("claim_reward", RewardErrorEventType, caller, id, req.State, ReasonInvalidState, now), nil
	}
	if req.Auditor != caller {
		return m.reject("claim_reward", RewardErrorEventType, caller, id, req.State, ReasonInvalidAuditor, now), nil
	}
	if req.Paid || req.Resolved || req.Slashed {
		return m.reject("claim_reward", RewardErrorEventType, caller, id, req.State, ReasonAlreadyResolved, now), nil
	}
	if !m.rotation.CanClaim(id, now) {
		return m.reject("claim_reward", RewardErrorEventType, caller, id, req.State, ReasonNotClaimable, now), nil
	}
	amount, err := m.payReward(req, now)
	if err != nil {
		return Outcome{}, err
	}
	m.countOutcome("claim_reward", "")
	return Outcome{RequestID: id, State: req.State, Amount: amount, Claimed: []types.RequestID{id}}, nil
}

// ClaimRewards pays every claimable reward of the caller, inspecting at most
// ClaimBudget pending requests per call. When the budget runs out the
// outcome has More set, and the next call resumes after the last request
// inspected.
func (m *Market) ClaimRewards(caller types.Address) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	pending := slices.Clone(m.rewards[caller])
	cursor := m.claimCursors[caller]
	budget := m.params.ClaimBudget
	var (
		out       Outcome
		inspected int
		lastSeen  types.RequestID
	)
	for _, id := range pending {
		if id <= cursor {
			continue
		}
		if inspected == budget {
			out.More = true
			break
		}
		inspected++
		lastSeen = id
		if !m.rotation.CanClaim(id, now) {
			continue
		}
		amount, err := m.payReward(m.requests[id], now)
		if err != nil {
			return Outcome{}, err
		}
		out.Claimed = append(out.Claimed, id)
		sum, err := out.Amount.Add(amount)
		if err != nil {
			sum = currency.MaxAmount
		}
		out.Amount = sum
	}
	if out.More {
		m.claimCursors[caller] = lastSeen
		m.publish(RewardMoreEventType, RewardMoreEvent{
			Auditor: caller,
			Cursor:  lastSeen,
			Height:  now,
		})
	} else {
		delete(m.claimCursors, caller)
	}
	m.countOutcome("claim_rewards", "")
	return out, nil
}

// HasAvailableRewards reports whether the auditor has a reward to claim now
func (m *Market) HasAvailableRewards(auditor types.Address) bool {
	_, ok := m.GetNextAvailableReward(auditor, 0)
	return ok
}

// GetNextAvailableReward returns the first claimable request after afterID
func (m *Market) GetNextAvailableReward(
	auditor types.Address,
	afterID types.RequestID,
) (types.RequestID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, id := range m.rewards[auditor] {
		if id > afterID && m.rotation.CanClaim(id, now) {
			return id, true
		}
	}
	return 0, false
}

func (m *Market) payReward(req *Request, now types.Height) (currency.Amount, error) {
	payout, err := m.settlement.PayAuditor(
		req.ID,
		req.Auditor,
		req.Price,
		m.rotation.Nodes(req.ID),
		now,
	)
	if err != nil && !errors.Is(err, settlement.ErrAlreadySettled) {
		return 0, err
	}
	req.Paid = true
	m.rewards[req.Auditor] = removeSorted(m.rewards[req.Auditor], req.ID)
	if err != nil {
		return 0, nil
	}
	if m.metrics.payouts != nil {
		m.metrics.payouts.Inc()
	}
	m.logger.Info(
		"reward claimed",
		"component", "market",
		"request_id", req.ID,
		"auditor", req.Auditor,
		"amount", payout.Auditor,
	)
	m.publish(RewardClaimedEventType, RewardEvent{
		RequestID: req.ID,
		Auditor:   req.Auditor,
		Amount:    payout.Auditor,
		Height:    now,
	})
	return payout.Auditor, nil
}
