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

package database

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/models"
)

// SaveAuditRequest inserts or replaces the snapshot of a request
func (d *Database) SaveAuditRequest(req *models.AuditRequest) error {
	result := d.metadata.DB().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(req)
	return result.Error
}

// GetAuditRequest returns the latest snapshot of a request
func (d *Database) GetAuditRequest(id uint64) (*models.AuditRequest, error) {
	var ret models.AuditRequest
	result := d.metadata.DB().First(&ret, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrAuditRequestNotFound
		}
		return nil, result.Error
	}
	return &ret, nil
}

// AuditRequestsByState returns every request in the given state ordered by id
func (d *Database) AuditRequestsByState(state string) ([]models.AuditRequest, error) {
	var ret []models.AuditRequest
	result := d.metadata.DB().
		Where("state = ?", state).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AuditRequestsByAuditor returns every request assigned to auditor
func (d *Database) AuditRequestsByAuditor(auditor string) ([]models.AuditRequest, error) {
	var ret []models.AuditRequest
	result := d.metadata.DB().
		Where("auditor = ?", auditor).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (d *Database) AddSettlement(s *models.Settlement) error {
	return d.metadata.DB().Create(s).Error
}

// SettlementsForRequest returns the token movements of a request in the
// order they were made
func (d *Database) SettlementsForRequest(id uint64) ([]models.Settlement, error) {
	var ret []models.Settlement
	result := d.metadata.DB().
		Where("request_id = ?", id).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (d *Database) AddStakeChange(c *models.StakeChange) error {
	return d.metadata.DB().Create(c).Error
}

func (d *Database) StakeChangesFor(auditor string) ([]models.StakeChange, error) {
	var ret []models.StakeChange
	result := d.metadata.DB().
		Where("auditor = ?", auditor).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// SavePoliceReport records a police check, replacing an earlier row for the
// same request and node
func (d *Database) SavePoliceReport(r *models.PoliceReport) error {
	result := d.metadata.DB().Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "request_id"}, {Name: "node"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{"verified", "verdict", "height"},
		),
	}).Create(r)
	return result.Error
}

func (d *Database) PoliceReportsFor(id uint64) ([]models.PoliceReport, error) {
	var ret []models.PoliceReport
	result := d.metadata.DB().
		Where("request_id = ?", id).
		Order("node").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
