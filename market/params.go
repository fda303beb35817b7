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

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// ExpiredPolicy decides what happens to an assignment whose audit window
// passed without a report
type ExpiredPolicy string

const (
	// ExpiredPolicyRefund frees the auditor slot and leaves the request
	// Assigned, where only a refund can move it
	ExpiredPolicyRefund ExpiredPolicy = "refund"
	// ExpiredPolicyRequeue puts the request back in the queue at its price
	ExpiredPolicyRequeue ExpiredPolicy = "requeue"
)

const (
	DefaultMaxAssignedRequests           = 10
	DefaultPoliceNodesPerReport          = 3
	DefaultAuditTimeout                  = types.Height(50)
	DefaultPoliceTimeout                 = types.Height(100)
	DefaultMaxMultiRequest               = 5
	DefaultReclaimBudget                 = 16
	DefaultClaimBudget                   = 32
	DefaultSlashPercentage               = 30
	DefaultReportProcessingFeePercentage = 5
)

// Params are the administrator-settable market parameters
type Params struct {
	MaxAssignedRequests           int             `json:"maxAssignedRequests"`
	MinStake                      currency.Amount `json:"minStake"`
	SlashPercentage               uint64          `json:"slashPercentage"`
	ReportProcessingFeePercentage uint64          `json:"reportProcessingFeePercentage"`
	PoliceNodesPerReport          int             `json:"policeNodesPerReport"`
	AuditTimeout                  types.Height    `json:"auditTimeout"`
	PoliceTimeout                 types.Height    `json:"policeTimeout"`
	TransactionFee                currency.Amount `json:"transactionFee"`
	MaxMultiRequest               int             `json:"maxMultiRequest"`
	ReclaimBudget                 int             `json:"reclaimBudget"`
	ClaimBudget                   int             `json:"claimBudget"`
	ExpiredPolicy                 ExpiredPolicy   `json:"expiredPolicy"`
}

func DefaultParams() Params {
	return Params{
		MaxAssignedRequests:           DefaultMaxAssignedRequests,
		SlashPercentage:               DefaultSlashPercentage,
		ReportProcessingFeePercentage: DefaultReportProcessingFeePercentage,
		PoliceNodesPerReport:          DefaultPoliceNodesPerReport,
		AuditTimeout:                  DefaultAuditTimeout,
		PoliceTimeout:                 DefaultPoliceTimeout,
		MaxMultiRequest:               DefaultMaxMultiRequest,
		ReclaimBudget:                 DefaultReclaimBudget,
		ClaimBudget:                   DefaultClaimBudget,
		ExpiredPolicy:                 ExpiredPolicyRefund,
	}
}

type InvalidParamsError struct {
	Field  string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid market parameter %s: %s", e.Field, e.Reason)
}

func (p Params) Validate() error {
	switch {
	case p.MaxAssignedRequests <= 0:
		return &InvalidParamsError{"maxAssignedRequests", "must be greater than zero"}
	case p.SlashPercentage > 100:
		return &InvalidParamsError{"slashPercentage", "must be at most 100"}
	case p.ReportProcessingFeePercentage > 100:
		return &InvalidParamsError{"reportProcessingFeePercentage", "must be at most 100"}
	case p.PoliceNodesPerReport <= 0:
		return &InvalidParamsError{"policeNodesPerReport", "must be greater than zero"}
	case p.AuditTimeout == 0:
		return &InvalidParamsError{"auditTimeout", "must be greater than zero"}
	case p.PoliceTimeout == 0:
		return &InvalidParamsError{"policeTimeout", "must be greater than zero"}
	case p.MaxMultiRequest <= 0:
		return &InvalidParamsError{"maxMultiRequest", "must be greater than zero"}
	case p.ReclaimBudget <= 0:
		return &InvalidParamsError{"reclaimBudget", "must be greater than zero"}
	case p.ClaimBudget <= 0:
		return &InvalidParamsError{"claimBudget", "must be greater than zero"}
	}
	switch p.ExpiredPolicy {
	case ExpiredPolicyRefund, ExpiredPolicyRequeue:
	default:
		return &InvalidParamsError{"expiredPolicy", fmt.Sprintf("unknown policy %q", p.ExpiredPolicy)}
	}
	return nil
}
