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

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/assignment"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/police"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/report"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// RequestAudit escrows price from the caller and queues a new request
func (m *Market) RequestAudit(
	caller types.Address,
	uri string,
	price currency.Amount,
) (types.RequestID, error) {
	ids, err := m.MultiRequestAudit(caller, uri, price, 1)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// MultiRequestAudit queues count identical requests. Either every request
// is created and funded or the call fails with no effect.
func (m *Market) MultiRequestAudit(
	caller types.Address,
	uri string,
	price currency.Amount,
	count int,
) ([]types.RequestID, error) {
	if price == 0 {
		return nil, ErrZeroPrice
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if count <= 0 || count > m.params.MaxMultiRequest {
		return nil, fmt.Errorf(
			"%w: %d not in 1..%d",
			ErrInvalidCount,
			count,
			m.params.MaxMultiRequest,
		)
	}
	fee := m.params.TransactionFee
	now := m.now()
	ids := make([]types.RequestID, count)
	for i := range ids {
		ids[i] = m.nextID + types.RequestID(i)
	}
	for i, id := range ids {
		if err := m.queue.Enqueue(id, price); err != nil {
			m.unqueue(ids[:i])
			return nil, err
		}
	}
	if err := m.settlement.Deposit(ids, caller, price, fee, now); err != nil {
		m.unqueue(ids)
		return nil, err
	}
	m.nextID += types.RequestID(count)
	for _, id := range ids {
		req := &Request{
			ID:             id,
			Requestor:      caller,
			Price:          price,
			TransactionFee: fee,
			URI:            uri,
			State:          StateQueued,
			RequestedAt:    now,
		}
		m.requests[id] = req
		m.countOutcome("request_audit", "")
		if m.metrics.requests != nil {
			m.metrics.requests.Inc()
		}
		m.logger.Info(
			"audit requested",
			"component", "market",
			"request_id", id,
			"requestor", caller,
			"price", price,
		)
		m.publishRequest(RequestedEventType, req, now)
	}
	return ids, nil
}

func (m *Market) unqueue(ids []types.RequestID) {
	for _, id := range ids {
		m.queue.Remove(id)
	}
}

// GetNextAuditRequest assigns the best queued request to the caller
func (m *Market) GetNextAuditRequest(caller types.Address) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.reclaimExpired(now)
	a, err := m.tracker.TryAssign(caller, now)
	if err != nil {
		var (
			reason   Reason
			exceeded *assignment.ExceededMaxAssignedError
			tooLow   *assignment.PriceTooLowError
		)
		switch {
		case errors.Is(err, types.ErrUnauthorized):
			return Outcome{}, err
		case errors.Is(err, assignment.ErrUnderstaked):
			reason = ReasonUnderstaked
		case errors.As(err, &exceeded):
			reason = ReasonExceededMaxAssignedRequests
		case errors.Is(err, assignment.ErrQueueEmpty):
			reason = ReasonQueueEmpty
		case errors.As(err, &tooLow):
			reason = ReasonPriceTooLow
		default:
			return Outcome{}, err
		}
		return m.reject("assign", AssignmentErrorEventType, caller, 0, StateNone, reason, now), nil
	}
	req := m.requests[a.ID]
	req.State = StateAssigned
	req.Auditor = caller
	req.AssignedAt = now
	m.countOutcome("assign", "")
	m.logger.Info(
		"audit assigned",
		"component", "market",
		"request_id", req.ID,
		"auditor", caller,
		"price", req.Price,
	)
	m.publishRequest(AssignedEventType, req, now)
	return Outcome{RequestID: req.ID, State: req.State, Amount: req.Price}, nil
}

// SubmitReport records the auditor's report for an assigned request. A
// completed report goes to the police; an error report waits for
// arbitration.
func (m *Market) SubmitReport(
	caller types.Address,
	id types.RequestID,
	result ReportResult,
	data []byte,
	reportURI string,
) (Outcome, error) {
	if result != ResultCompleted && result != ResultError {
		return Outcome{}, ErrInvalidResult
	}
	if err := m.checkAuditor(caller); err != nil {
		return Outcome{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.reclaimExpired(now)
	req, _ := m.request(id)
	if req.State != StateAssigned {
		return m.reject("submit_report", SubmissionErrorEventType, caller, id, req.State, ReasonInvalidState, now), nil
	}
	if req.Auditor != caller {
		return m.reject("submit_report", SubmissionErrorEventType, caller, id, req.State, ReasonInvalidAuditor, now), nil
	}
	if now > req.AssignedAt.Add(m.params.AuditTimeout) {
		return m.reject("submit_report", SubmissionErrorEventType, caller, id, req.State, ReasonSubmissionPeriodExceeded, now), nil
	}
	if err := m.config.Reports.Put(report.AuditKey(id), data); err != nil {
		return Outcome{}, fmt.Errorf("store audit report: %w", err)
	}
	if result == ResultCompleted {
		pending := police.Pending{
			ID:      id,
			Auditor: caller,
			Price:   req.Price,
			URI:     reportURI,
		}
		if _, err := m.rotation.Assign(pending, now); err != nil {
			return Outcome{}, err
		}
		req.State = StateCompleted
		m.rewards[caller] = insertSorted(m.rewards[caller], id)
	} else {
		req.State = StateError
	}
	// the slot may already be gone if the sweep released it
	_, _ = m.tracker.Release(id)
	req.ReportedAt = now
	req.ReportURI = reportURI
	m.countOutcome("submit_report", "")
	m.logger.Info(
		"audit report submitted",
		"component", "market",
		"request_id", id,
		"auditor", caller,
		"result", result,
	)
	m.publishRequest(FinishedEventType, req, now)
	return Outcome{RequestID: id, State: req.State}, nil
}

// Refund returns the price of a queued request, or of an assigned request
// whose audit window passed without a report, to its requestor
func (m *Market) Refund(caller types.Address, id types.RequestID) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	req, _ := m.request(id)
	switch req.State {
	case StateQueued, StateAssigned:
	default:
		return m.reject("refund", RefundErrorEventType, caller, id, req.State, ReasonInvalidState, now), nil
	}
	if req.Requestor != caller {
		return m.reject("refund", RefundErrorEventType, caller, id, req.State, ReasonInvalidRequestor, now), nil
	}
	if req.State == StateAssigned && now <= req.AssignedAt.Add(m.params.AuditTimeout) {
		return m.reject("refund", RefundErrorEventType, caller, id, req.State, ReasonFundsLocked, now), nil
	}
	if err := m.settlement.Refund(id, req.Requestor, req.Price, now); err != nil {
		return Outcome{}, err
	}
	if req.State == StateQueued {
		m.queue.Remove(id)
	} else {
		_, _ = m.tracker.Release(id)
		req.Expired = true
	}
	req.State = StateRefunded
	m.countOutcome("refund", "")
	m.logger.Info(
		"audit refunded",
		"component", "market",
		"request_id", id,
		"requestor", caller,
		"amount", req.Price,
	)
	m.publishRequest(RefundedEventType, req, now)
	return Outcome{RequestID: id, State: req.State, Amount: req.Price}, nil
}
