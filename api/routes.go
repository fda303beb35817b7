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
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/internal/version"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/report"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.config.PromGatherer != nil {
		mux.Handle(
			"GET /metrics",
			promhttp.HandlerFor(s.config.PromGatherer, promhttp.HandlerOpts{}),
		)
	}

	// Administration
	mux.HandleFunc("GET /api/v0/params", s.handleGetParams)
	mux.HandleFunc("PUT /api/v0/params", s.handleSetParams)
	mux.HandleFunc("GET /api/v0/members", s.handleMembers)
	mux.HandleFunc("PUT /api/v0/auditors/{address}", s.handleAddAuditor)
	mux.HandleFunc("DELETE /api/v0/auditors/{address}", s.handleRemoveAuditor)
	mux.HandleFunc("PUT /api/v0/police/{address}", s.handleAddPolice)
	mux.HandleFunc("DELETE /api/v0/police/{address}", s.handleRemovePolice)

	// Audit lifecycle
	mux.HandleFunc("POST /api/v0/audits", s.handleRequestAudit)
	mux.HandleFunc("POST /api/v0/audits/next", s.handleNextAudit)
	mux.HandleFunc("GET /api/v0/audits/{id}", s.handleGetAudit)
	mux.HandleFunc("GET /api/v0/audits/{id}/report", s.handleGetReport)
	mux.HandleFunc("POST /api/v0/audits/{id}/report", s.handleSubmitReport)
	mux.HandleFunc("POST /api/v0/audits/{id}/refund", s.handleRefund)
	mux.HandleFunc("POST /api/v0/audits/{id}/resolve", s.handleResolve)
	mux.HandleFunc("POST /api/v0/audits/{id}/claim", s.handleClaimReward)
	mux.HandleFunc("GET /api/v0/audits/{id}/police/{node}", s.handleGetPoliceReport)
	mux.HandleFunc("POST /api/v0/audits/{id}/police", s.handleSubmitPoliceReport)
	mux.HandleFunc("GET /api/v0/queue", s.handleQueue)

	// Auditor and police worklists
	mux.HandleFunc("GET /api/v0/rewards/next", s.handleNextReward)
	mux.HandleFunc("POST /api/v0/rewards/claim", s.handleClaimRewards)
	mux.HandleFunc("GET /api/v0/police/assignments/next", s.handleNextPoliceAssignment)

	// Stake and prices
	mux.HandleFunc("POST /api/v0/stake", s.handleStake)
	mux.HandleFunc("DELETE /api/v0/stake", s.handleUnstake)
	mux.HandleFunc("GET /api/v0/stake/{address}", s.handleGetStake)
	mux.HandleFunc("PUT /api/v0/min-price", s.handleSetMinPrice)
	mux.HandleFunc("GET /api/v0/min-price/stats", s.handleMinPriceStats)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Name:    "qsp-audit",
		Version: version.GetVersionString(),
		Owner:   s.market.Owner().String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
		Height:    s.market.Height(),
	})
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Params())
}

// handleSetParams applies the body over the current parameters, so
// omitted fields keep their value
func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	params := s.market.Params()
	if !decodeBody(w, r, &params) {
		return
	}
	if err := s.market.SetParams(caller, params); err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.market.Params())
}

func (s *Server) handleMembers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MembersResponse{
		Auditors:    s.market.Auditors(),
		PoliceNodes: s.market.PoliceNodes(),
	})
}

// membership wraps one of the owner-only whitelist operations
func (s *Server) membership(
	op func(caller, addr types.Address) error,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			s.writeOpError(w, r, err)
			return
		}
		if err := op(caller, types.Address(r.PathValue("address"))); err != nil {
			s.writeOpError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAddAuditor(w http.ResponseWriter, r *http.Request) {
	s.membership(s.market.AddAddressToWhitelist)(w, r)
}

func (s *Server) handleRemoveAuditor(w http.ResponseWriter, r *http.Request) {
	s.membership(s.market.RemoveAddressFromWhitelist)(w, r)
}

func (s *Server) handleAddPolice(w http.ResponseWriter, r *http.Request) {
	s.membership(s.market.AddPoliceNode)(w, r)
}

func (s *Server) handleRemovePolice(w http.ResponseWriter, r *http.Request) {
	s.membership(s.market.RemovePoliceNode)(w, r)
}

func (s *Server) handleRequestAudit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	var body AuditRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Count == 0 {
		body.Count = 1
	}
	ids, err := s.market.MultiRequestAudit(caller, body.URI, body.Price, body.Count)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuditRequestResponse{IDs: ids})
}

func (s *Server) handleNextAudit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	out, err := s.market.GetNextAuditRequest(caller)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDFrom(r, "id")
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	req, ok := s.market.Request(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found", "The requested component has not been found.")
		return
	}
	writeJSON(w, http.StatusOK, AuditResponse{
		Request:     req,
		Verdict:     s.market.Verdict(id),
		PoliceNodes: s.market.PoliceNodesFor(id),
		Finished:    s.market.IsAuditFinished(id),
	})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDFrom(r, "id")
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	s.writeBlob(w, r, func() ([]byte, error) { return s.market.Report(id) })
}

func (s *Server) handleGetPoliceReport(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDFrom(r, "id")
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	node := types.Address(r.PathValue("node"))
	s.writeBlob(w, r, func() ([]byte, error) { return s.market.PoliceReport(id, node) })
}

func (s *Server) writeBlob(
	w http.ResponseWriter,
	r *http.Request,
	get func() ([]byte, error),
) {
	data, err := get()
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not Found", "The requested component has not been found.")
			return
		}
		s.writeOpError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write(data)
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	id, err := requestIDFrom(r, "id")
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	var body SubmitReportBody
	if !decodeBody(w, r, &body) {
		return
	}
	var result market.ReportResult
	switch body.Result {
	case market.ResultCompleted.String():
		result = market.ResultCompleted
	case market.ResultError.String():
		result = market.ResultError
	}
	out, err := s.market.SubmitReport(caller, id, result, body.Report, body.ReportURI)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeOutcome(w, out)
}

// idOperation wraps the operations that take only the caller and a path id
func (s *Server) idOperation(
	op func(caller types.Address, id types.RequestID) (market.Outcome, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFrom(r)
		if err != nil {
			s.writeOpError(w, r, err)
			return
		}
		id, err := requestIDFrom(r, "id")
		if err != nil {
			s.writeOpError(w, r, err)
			return
		}
		out, err := op(caller, id)
		if err != nil {
			s.writeOpError(w, r, err)
			return
		}
		writeOutcome(w, out)
	}
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	s.idOperation(s.market.Refund)(w, r)
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	s.idOperation(s.market.ClaimReward)(w, r)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body ResolveBody
	if !decodeBody(w, r, &body) {
		return
	}
	s.idOperation(func(caller types.Address, id types.RequestID) (market.Outcome, error) {
		return s.market.ResolveErrorReport(caller, id, body.FavorRequestor)
	})(w, r)
}

func (s *Server) handleSubmitPoliceReport(w http.ResponseWriter, r *http.Request) {
	var body PoliceReportBody
	if !decodeBody(w, r, &body) {
		return
	}
	s.idOperation(func(caller types.Address, id types.RequestID) (market.Outcome, error) {
		return s.market.SubmitPoliceReport(caller, id, body.Report, body.Verified)
	})(w, r)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	ids := s.market.QueuedRequests()
	SetPaginationHeaders(w, len(ids), params)
	writeJSON(w, http.StatusOK, QueueResponse{
		Length: len(ids),
		IDs:    Paginate(ids, params),
	})
}

func (s *Server) handleNextReward(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	after, err := afterFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	id, ok := s.market.GetNextAvailableReward(caller, after)
	writeJSON(w, http.StatusOK, NextResponse{Found: ok, ID: id})
}

func (s *Server) handleClaimRewards(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	out, err := s.market.ClaimRewards(caller)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handleNextPoliceAssignment(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	after, err := afterFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	p, ok := s.market.GetNextPoliceAssignment(caller, after)
	if !ok {
		writeJSON(w, http.StatusOK, PoliceAssignmentResponse{})
		return
	}
	writeJSON(w, http.StatusOK, PoliceAssignmentResponse{
		Found:    true,
		ID:       p.ID,
		Auditor:  p.Auditor,
		Price:    p.Price,
		URI:      p.URI,
		Deadline: p.Deadline,
	})
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	var body AmountBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.market.Stake(caller, body.Amount); err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stakeResponse(caller))
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	out, err := s.market.Unstake(caller)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handleGetStake(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stakeResponse(types.Address(r.PathValue("address"))))
}

func (s *Server) stakeResponse(auditor types.Address) StakeResponse {
	rec := s.market.StakeRecord(auditor)
	return StakeResponse{
		Auditor:        auditor,
		Amount:         rec.Amount,
		LockedUntil:    rec.LockedUntil,
		HasEnoughStake: s.market.HasEnoughStake(auditor),
		AssignedCount:  s.market.AssignedCount(auditor),
		MinAuditPrice:  s.market.MinAuditPrice(auditor),
	}
}

func (s *Server) handleSetMinPrice(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		s.writeOpError(w, r, err)
		return
	}
	var body AmountBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.market.SetMinAuditPrice(caller, body.Amount); err != nil {
		s.writeOpError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMinPriceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.market.MinAuditPriceStats()
	writeJSON(w, http.StatusOK, PriceStatsResponse{
		Sum:   stats.Sum,
		Count: stats.Count,
		Min:   stats.Min,
		Max:   stats.Max,
	})
}
