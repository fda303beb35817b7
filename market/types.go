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
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/police"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// State is the lifecycle state of an audit request. Ids that were never
// created are in StateNone.
type State int

const (
	StateNone State = iota
	StateQueued
	StateAssigned
	StateRefunded
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateQueued:
		return "queued"
	case StateAssigned:
		return "assigned"
	case StateRefunded:
		return "refunded"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ReportResult is the outcome an auditor reports for a request
type ReportResult int

const (
	ResultCompleted ReportResult = iota + 1
	ResultError
)

func (r ReportResult) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultError:
		return "error"
	default:
		return "unknown"
	}
}

// Request is a snapshot of an audit request
type Request struct {
	ID             types.RequestID `json:"id"`
	Requestor      types.Address   `json:"requestor"`
	Price          currency.Amount `json:"price"`
	TransactionFee currency.Amount `json:"transactionFee"`
	URI            string          `json:"uri"`
	State          State           `json:"state"`
	Auditor        types.Address   `json:"auditor,omitempty"`
	RequestedAt    types.Height    `json:"requestedAt"`
	AssignedAt     types.Height    `json:"assignedAt,omitempty"`
	ReportedAt     types.Height    `json:"reportedAt,omitempty"`
	ReportURI      string          `json:"reportUri,omitempty"`
	// Expired is set when the audit window passed without a report
	Expired bool `json:"expired,omitempty"`
	// Resolved is set once an error report was arbitrated
	Resolved bool `json:"resolved,omitempty"`
	// Paid is set once the auditor reward was paid out
	Paid bool `json:"paid,omitempty"`
	// Slashed is set once a police node rejected the report
	Slashed bool `json:"slashed,omitempty"`
}

// Reason names a recoverable state-transition violation
type Reason string

const (
	ReasonInvalidState                Reason = "InvalidState"
	ReasonInvalidAuditor              Reason = "InvalidAuditor"
	ReasonInvalidRequestor            Reason = "InvalidRequestor"
	ReasonFundsLocked                 Reason = "FundsLocked"
	ReasonUnderstaked                 Reason = "Understaked"
	ReasonExceededMaxAssignedRequests Reason = "ExceededMaxAssignedRequests"
	ReasonSubmissionPeriodExceeded    Reason = "SubmissionPeriodExceeded"
	ReasonAlreadyResolved             Reason = "AlreadyResolved"
	ReasonQueueEmpty                  Reason = "QueueEmpty"
	ReasonPriceTooLow                 Reason = "PriceTooLow"
	ReasonInvalidResolutionCall       Reason = "InvalidResolutionCall"
	ReasonNothingStaked               Reason = "NothingStaked"
	ReasonNotAssigned                 Reason = "NotAssigned"
	ReasonAlreadySubmitted            Reason = "AlreadySubmitted"
	ReasonNotClaimable                Reason = "NotClaimable"
)

// Outcome is the structured result of a market operation. A zero Reason
// means the operation took effect.
type Outcome struct {
	Reason    Reason            `json:"reason,omitempty"`
	RequestID types.RequestID   `json:"requestId,omitempty"`
	State     State             `json:"state"`
	Amount    currency.Amount   `json:"amount,omitempty"`
	Verdict   police.Verdict    `json:"verdict"`
	Claimed   []types.RequestID `json:"claimed,omitempty"`
	// More is set when a bounded call stopped with work left
	More bool `json:"more,omitempty"`
}

func (o Outcome) OK() bool {
	return o.Reason == ""
}
