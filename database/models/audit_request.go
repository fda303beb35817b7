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

package models

import (
	"errors"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/types"
)

var ErrAuditRequestNotFound = errors.New("audit request not found")

// AuditRequest is the latest known snapshot of a request
type AuditRequest struct {
	Requestor      string       `gorm:"index;size:128"`
	Auditor        string       `gorm:"index;size:128"`
	URI            string
	ReportURI      string
	State          string       `gorm:"index;size:16"`
	LastEvent      string       `gorm:"size:64"`
	Price          types.Uint64 `gorm:"not null"`
	TransactionFee types.Uint64 `gorm:"not null"`
	ID             uint64       `gorm:"primarykey;autoIncrement:false"`
	RequestedAt    uint64
	AssignedAt     uint64
	ReportedAt     uint64
	LastHeight     uint64 `gorm:"index"`
	Expired        bool
	Resolved       bool
	Paid           bool
	Slashed        bool
}

func (AuditRequest) TableName() string {
	return "audit_request"
}
