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

import "github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/types"

// Settlement is one token movement made by the settlement engine
type Settlement struct {
	Kind      string       `gorm:"index;size:32"`
	From      string       `gorm:"column:from_addr;size:128"`
	To        string       `gorm:"column:to_addr;index;size:128"`
	Amount    types.Uint64 `gorm:"not null"`
	ID        uint         `gorm:"primarykey"`
	RequestID uint64       `gorm:"index"`
	Height    uint64       `gorm:"index"`
}

func (Settlement) TableName() string {
	return "settlement"
}

// StakeChange records a stake, unstake or slash of an auditor
type StakeChange struct {
	Auditor string       `gorm:"index;size:128"`
	Type    string       `gorm:"size:32"`
	Amount  types.Uint64 `gorm:"not null"`
	Balance types.Uint64 `gorm:"not null"`
	ID      uint         `gorm:"primarykey"`
	Height  uint64       `gorm:"index"`
}

func (StakeChange) TableName() string {
	return "stake_change"
}

// PoliceReport is the check a police node submitted for a request
type PoliceReport struct {
	Node      string `gorm:"uniqueIndex:idx_police_report_request_node;size:128"`
	Verdict   string `gorm:"size:16"`
	ID        uint   `gorm:"primarykey"`
	RequestID uint64 `gorm:"uniqueIndex:idx_police_report_request_node"`
	Height    uint64
	Verified  bool
}

func (PoliceReport) TableName() string {
	return "police_report"
}
