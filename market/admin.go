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

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/stake"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// AddAddressToWhitelist authorizes an auditor. Owner only.
func (m *Market) AddAddressToWhitelist(caller, addr types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auditors.Add(caller, addr)
}

// RemoveAddressFromWhitelist revokes an auditor. Owner only. Requests the
// auditor already holds stay assigned until reported or expired.
func (m *Market) RemoveAddressFromWhitelist(caller, addr types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auditors.Remove(caller, addr)
}

// AddPoliceNode authorizes a police node. Owner only.
func (m *Market) AddPoliceNode(caller, addr types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.police.Add(caller, addr)
}

// RemovePoliceNode revokes a police node. Owner only. The rotation resumes
// from the node that followed it.
func (m *Market) RemovePoliceNode(caller, addr types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.police.Remove(caller, addr)
}

// SetParams replaces the market parameters. Owner only. Outstanding
// assignments and police windows are measured against the new timeouts.
func (m *Market) SetParams(caller types.Address, p Params) error {
	if err := m.checkOwner(caller); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.settlement.SetPercentages(p.ReportProcessingFeePercentage, p.SlashPercentage); err != nil {
		return err
	}
	if err := m.tracker.SetLimits(limitsFor(p)); err != nil {
		return err
	}
	if err := m.rotation.SetNodesPerReport(p.PoliceNodesPerReport); err != nil {
		return err
	}
	m.rotation.SetTimeout(p.PoliceTimeout)
	m.escrow.SetMinStake(p.MinStake)
	m.params = p
	now := m.now()
	m.logger.Info(
		"market parameters updated",
		"component", "market",
		"params", p,
	)
	m.publish(ParamsUpdatedEventType, ParamsUpdatedEvent{Params: p, Height: now})
	return nil
}

// ResolveErrorReport arbitrates a request in the Error state, paying the
// full price to the requestor or the auditor. Owner only. A request can be
// resolved once; resolved requests are never claimable as rewards.
func (m *Market) ResolveErrorReport(
	caller types.Address,
	id types.RequestID,
	favorRequestor bool,
) (Outcome, error) {
	if err := m.checkOwner(caller); err != nil {
		return Outcome{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	req, _ := m.request(id)
	if req.State != StateError || req.Resolved {
		return m.reject("resolve", ResolutionErrorEventType, caller, id, req.State, ReasonInvalidResolutionCall, now), nil
	}
	recipient := req.Auditor
	if favorRequestor {
		recipient = req.Requestor
	}
	if err := m.settlement.Resolve(id, recipient, req.Price, now); err != nil {
		return Outcome{}, err
	}
	req.State = StateCompleted
	req.Resolved = true
	m.countOutcome("resolve", "")
	m.logger.Info(
		"error report resolved",
		"component", "market",
		"request_id", id,
		"recipient", recipient,
		"amount", req.Price,
	)
	m.publishRequest(ResolvedEventType, req, now)
	return Outcome{RequestID: id, State: req.State, Amount: req.Price}, nil
}

// SetMinAuditPrice advertises the lowest price the calling auditor accepts.
// currency.MaxAmount withdraws the advertisement.
func (m *Market) SetMinAuditPrice(caller types.Address, price currency.Amount) error {
	if err := m.checkAuditor(caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracker.SetMinPrice(caller, price)
	return nil
}

// Stake escrows amount from the caller. The caller must first approve the
// stake account as a spender on the ledger.
func (m *Market) Stake(caller types.Address, amount currency.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrow.Stake(caller, amount, m.now())
}

// Unstake returns the caller's whole stake once no assignment lock is active
func (m *Market) Unstake(caller types.Address) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	amount, err := m.escrow.Unstake(caller, now)
	if err != nil {
		var locked *stake.FundsLockedError
		switch {
		case errors.As(err, &locked):
			return m.reject("unstake", StakeErrorEventType, caller, 0, StateNone, ReasonFundsLocked, now), nil
		case errors.Is(err, stake.ErrNothingStaked):
			return m.reject("unstake", StakeErrorEventType, caller, 0, StateNone, ReasonNothingStaked, now), nil
		}
		return Outcome{}, err
	}
	m.countOutcome("unstake", "")
	return Outcome{Amount: amount}, nil
}
