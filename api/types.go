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

package api

import (
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/police"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// ErrorResponse is the body of every non-2xx response that is not an
// operation outcome
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Owner   string `json:"owner"`
}

type HealthResponse struct {
	IsHealthy bool         `json:"is_healthy"`
	Height    types.Height `json:"height"`
}

type AuditRequestBody struct {
	URI   string          `json:"uri"`
	Price currency.Amount `json:"price"`
	// Count queues several identical requests. Zero means one.
	Count int `json:"count,omitempty"`
}

type AuditRequestResponse struct {
	IDs []types.RequestID `json:"ids"`
}

type SubmitReportBody struct {
	Result    string `json:"result"`
	Report    []byte `json:"report"`
	ReportURI string `json:"reportUri,omitempty"`
}

type PoliceReportBody struct {
	Verified bool   `json:"verified"`
	Report   []byte `json:"report"`
}

type ResolveBody struct {
	FavorRequestor bool `json:"favorRequestor"`
}

type AmountBody struct {
	Amount currency.Amount `json:"amount"`
}

type AuditResponse struct {
	Request     market.Request  `json:"request"`
	Verdict     police.Verdict  `json:"verdict"`
	PoliceNodes []types.Address `json:"policeNodes"`
	Finished    bool            `json:"finished"`
}

type QueueResponse struct {
	Length int               `json:"length"`
	IDs    []types.RequestID `json:"ids"`
}

type NextResponse struct {
	Found bool            `json:"found"`
	ID    types.RequestID `json:"id,omitempty"`
}

type PoliceAssignmentResponse struct {
	Found    bool            `json:"found"`
	ID       types.RequestID `json:"id,omitempty"`
	Auditor  types.Address   `json:"auditor,omitempty"`
	Price    currency.Amount `json:"price,omitempty"`
	URI      string          `json:"uri,omitempty"`
	Deadline types.Height    `json:"deadline,omitempty"`
}

type StakeResponse struct {
	Auditor        types.Address   `json:"auditor"`
	Amount         currency.Amount `json:"amount"`
	LockedUntil    types.Height    `json:"lockedUntil"`
	HasEnoughStake bool            `json:"hasEnoughStake"`
	AssignedCount  int             `json:"assignedCount"`
	MinAuditPrice  currency.Amount `json:"minAuditPrice"`
}

type PriceStatsResponse struct {
	Sum   currency.Amount `json:"sum"`
	Count int             `json:"count"`
	Min   currency.Amount `json:"min"`
	Max   currency.Amount `json:"max"`
}

type MembersResponse struct {
	Auditors    []types.Address `json:"auditors"`
	PoliceNodes []types.Address `json:"policeNodes"`
}
