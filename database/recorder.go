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
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/models"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/types"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/police"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/settlement"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/stake"
)

var ErrRecorderConfig = errors.New("recorder requires a database and an event bus")

type RecorderConfig struct {
	Database     *Database
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Recorder mirrors market events into the metadata journal. It registers
// itself as a bus subscriber, so events are written by the bus worker in
// publish order.
type Recorder struct {
	config  RecorderConfig
	logger  *slog.Logger
	subId   event.EventSubscriberId
	mu      sync.Mutex
	running bool
	metrics struct {
		recorded prometheus.Counter
		errors   prometheus.Counter
	}
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	r := &Recorder{config: cfg}
	if cfg.Logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		r.logger = cfg.Logger
	}
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		r.metrics.recorded = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_database_recorder_events_total",
			Help: "total events written to the journal",
		})
		r.metrics.errors = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_database_recorder_errors_total",
			Help: "total events that could not be written to the journal",
		})
	}
	return r
}

// Start subscribes to every event type on the bus
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	if r.config.Database == nil || r.config.EventBus == nil {
		return ErrRecorderConfig
	}
	r.subId = r.config.EventBus.RegisterSubscriber(event.AllEventTypes, r)
	r.running = true
	return nil
}

// Stop unsubscribes from the bus. Events still queued are dropped.
func (r *Recorder) Stop() {
	r.mu.Lock()
	running := r.running
	r.running = false
	r.mu.Unlock()
	if running {
		r.config.EventBus.Unsubscribe(event.AllEventTypes, r.subId)
	}
}

// Deliver implements event.Subscriber. Write failures are logged and
// counted; they never unsubscribe the recorder.
func (r *Recorder) Deliver(evt event.Event) error {
	written, err := r.record(evt)
	if err != nil {
		r.logger.Error(
			"failed to record event",
			"component", "database",
			"type", evt.Type,
			"error", err,
		)
		if r.metrics.errors != nil {
			r.metrics.errors.Inc()
		}
		return nil
	}
	if written && r.metrics.recorded != nil {
		r.metrics.recorded.Inc()
	}
	return nil
}

// Close implements event.Subscriber
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
}

func (r *Recorder) record(evt event.Event) (bool, error) {
	db := r.config.Database
	switch data := evt.Data.(type) {
	case market.RequestEvent:
		return true, db.SaveAuditRequest(auditRequestModel(data, evt.Type))
	case market.RewardEvent:
		req, err := db.GetAuditRequest(uint64(data.RequestID))
		if err != nil {
			return false, err
		}
		req.Paid = true
		req.LastEvent = string(evt.Type)
		req.LastHeight = uint64(data.Height)
		return true, db.SaveAuditRequest(req)
	case settlement.TransferEvent:
		return true, db.AddSettlement(&models.Settlement{
			RequestID: uint64(data.RequestID),
			Kind:      string(data.Kind),
			From:      string(data.From),
			To:        string(data.To),
			Amount:    types.Uint64(data.Amount),
			Height:    uint64(data.Height),
		})
	case stake.ChangeEvent:
		return true, db.AddStakeChange(&models.StakeChange{
			Auditor: string(data.Auditor),
			Type:    strings.TrimPrefix(string(evt.Type), "stake."),
			Amount:  types.Uint64(data.Amount),
			Balance: types.Uint64(data.Balance),
			Height:  uint64(data.Height),
		})
	case police.SubmittedEvent:
		return true, db.SavePoliceReport(&models.PoliceReport{
			RequestID: uint64(data.RequestID),
			Node:      string(data.Node),
			Verified:  data.Verified,
			Verdict:   data.Verdict.String(),
			Height:    uint64(data.Height),
		})
	}
	return false, nil
}

func auditRequestModel(evt market.RequestEvent, evtType event.EventType) *models.AuditRequest {
	req := evt.Request
	return &models.AuditRequest{
		ID:             uint64(req.ID),
		Requestor:      string(req.Requestor),
		Auditor:        string(req.Auditor),
		URI:            req.URI,
		ReportURI:      req.ReportURI,
		State:          req.State.String(),
		LastEvent:      string(evtType),
		Price:          types.Uint64(req.Price),
		TransactionFee: types.Uint64(req.TransactionFee),
		RequestedAt:    uint64(req.RequestedAt),
		AssignedAt:     uint64(req.AssignedAt),
		ReportedAt:     uint64(req.ReportedAt),
		LastHeight:     uint64(evt.Height),
		Expired:        req.Expired,
		Resolved:       req.Resolved,
		Paid:           req.Paid,
		Slashed:        req.Slashed,
	}
}
