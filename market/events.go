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
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

const (
	RequestedEventType       event.EventType = "audit.requested"
	AssignedEventType        event.EventType = "audit.assigned"
	AssignmentErrorEventType event.EventType = "audit.assignment_error"
	ExpiredEventType         event.EventType = "audit.expired"
	FinishedEventType        event.EventType = "audit.finished"
	SubmissionErrorEventType event.EventType = "audit.submission_error"
	RefundedEventType        event.EventType = "audit.refunded"
	RefundErrorEventType     event.EventType = "audit.refund_error"
	ResolvedEventType        event.EventType = "audit.resolved"
	ResolutionErrorEventType event.EventType = "audit.resolution_error"
	PoliceFinishedEventType  event.EventType = "police.finished"
	PoliceErrorEventType     event.EventType = "police.error"
	RewardClaimedEventType   event.EventType = "reward.claimed"
	RewardErrorEventType     event.EventType = "reward.error"
	RewardMoreEventType      event.EventType = "reward.more"
	StakeErrorEventType      event.EventType = "stake.error"
	ParamsUpdatedEventType   event.EventType = "market.params_updated"
)

// RequestEvent carries the request snapshot after a state change
type RequestEvent struct {
	Request Request
	Height  types.Height
}

// ErrorEvent describes a rejected operation
type ErrorEvent struct {
	RequestID types.RequestID
	Caller    types.Address
	Reason    Reason
	State     State
	Height    types.Height
}

// RewardEvent describes a paid auditor reward
type RewardEvent struct {
	RequestID types.RequestID
	Auditor   types.Address
	Amount    currency.Amount
	Height    types.Height
}

// RewardMoreEvent is published when ClaimRewards ran out of budget
type RewardMoreEvent struct {
	Auditor types.Address
	Cursor  types.RequestID
	Height  types.Height
}

type ParamsUpdatedEvent struct {
	Params Params
	Height types.Height
}
