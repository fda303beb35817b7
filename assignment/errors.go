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

package assignment

import (
	"errors"
	"fmt"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

var (
	ErrUnderstaked  = errors.New("auditor does not hold the minimum stake")
	ErrQueueEmpty   = errors.New("no audit requests are queued")
	ErrNotAssigned  = errors.New("request is not assigned")
	ErrInvalidLimit = errors.New("max assigned requests must be greater than zero")
)

type ExceededMaxAssignedError struct {
	Auditor  types.Address
	Assigned int
	Max      int
}

func (e *ExceededMaxAssignedError) Error() string {
	return fmt.Sprintf(
		"auditor %s holds %d of %d allowed assignments",
		e.Auditor,
		e.Assigned,
		e.Max,
	)
}

type PriceTooLowError struct {
	Auditor  types.Address
	Price    currency.Amount
	MinPrice currency.Amount
}

func (e *PriceTooLowError) Error() string {
	return fmt.Sprintf(
		"best queued price %d is below the minimum %d of auditor %s",
		e.Price,
		e.MinPrice,
		e.Auditor,
	)
}
