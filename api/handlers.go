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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/settlement"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/stake"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/whitelist"
)

const (
	HeaderCaller    = "X-Caller-Address"
	HeaderRequestID = "X-Request-Id"

	maxBodyBytes = 4 << 20
)

var (
	errMissingCaller = errors.New("missing " + HeaderCaller + " header")
	errInvalidID     = errors.New("invalid request id")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errStr string, message string) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      errStr,
		Message:    message,
	})
}

// writeOutcome answers 200 for an applied operation and 409 for a
// recoverable rejection, with the outcome as the body either way
func writeOutcome(w http.ResponseWriter, o market.Outcome) {
	status := http.StatusOK
	if !o.OK() {
		status = http.StatusConflict
	}
	writeJSON(w, status, o)
}

// writeOpError maps an operation error onto an HTTP status
func (s *Server) writeOpError(w http.ResponseWriter, r *http.Request, err error) {
	var paramsErr *market.InvalidParamsError
	switch {
	case errors.Is(err, types.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, errMissingCaller):
		writeError(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.As(err, &paramsErr),
		errors.Is(err, errInvalidID),
		errors.Is(err, market.ErrZeroPrice),
		errors.Is(err, market.ErrInvalidCount),
		errors.Is(err, market.ErrInvalidResult),
		errors.Is(err, stake.ErrZeroAmount),
		errors.Is(err, whitelist.ErrZeroAddress):
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, stake.ErrTransferFailed),
		errors.Is(err, settlement.ErrTransferFailed):
		writeError(w, http.StatusUnprocessableEntity, "Transfer Failed", err.Error())
	default:
		s.logger.Error(
			"operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"An unexpected response was received from the backend.",
		)
	}
}

// withRequestID tags every response with a request id, reusing the one
// the client sent
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		s.logger.Debug(
			"request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", id,
		)
		next.ServeHTTP(w, r)
	})
}

func callerFrom(r *http.Request) (types.Address, error) {
	caller := strings.TrimSpace(r.Header.Get(HeaderCaller))
	if caller == "" {
		return "", errMissingCaller
	}
	return types.Address(caller), nil
}

func requestIDFrom(r *http.Request, name string) (types.RequestID, error) {
	id, err := types.ParseRequestID(r.PathValue(name))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidID, r.PathValue(name))
	}
	return id, nil
}

// afterFrom parses the optional "after" query cursor
func afterFrom(r *http.Request) (types.RequestID, error) {
	v := r.URL.Query().Get("after")
	if v == "" {
		return 0, nil
	}
	id, err := types.ParseRequestID(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidID, v)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
		return false
	}
	return true
}
