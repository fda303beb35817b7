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

package police

import (
	"errors"
	"fmt"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

var (
	ErrNotAssigned       = errors.New("police node is not assigned to the request")
	ErrAlreadySubmitted  = errors.New("police node already submitted a report")
	ErrVerdictFinal      = errors.New("request verdict is already final")
	ErrAlreadyAssigned   = errors.New("police nodes are already assigned to the request")
	ErrInvalidPerReport  = errors.New("police nodes per report must be greater than zero")
	ErrUnknownRequest    = errors.New("request was never sent to police")
	ErrSubmissionExpired = errors.New("police submission window has passed")
)

// SubmissionExpiredError reports a police submission after the deadline
type SubmissionExpiredError struct {
	ID       types.RequestID
	Node     types.Address
	Deadline types.Height
	Now      types.Height
}

func (e *SubmissionExpiredError) Error() string {
	return fmt.Sprintf(
		"police report from %s for request %d is past deadline %d (current height %d)",
		e.Node,
		e.ID,
		e.Deadline,
		e.Now,
	)
}

func (e *SubmissionExpiredError) Unwrap() error {
	return ErrSubmissionExpired
}
