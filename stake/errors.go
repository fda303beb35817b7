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

package stake

import (
	"errors"
	"fmt"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

var (
	ErrZeroAmount     = errors.New("stake amount must be greater than zero")
	ErrNothingStaked  = errors.New("nothing staked")
	ErrTransferFailed = errors.New("token transfer failed")
	ErrInvalidPercent = errors.New("percentage must be between 0 and 100")
	ErrPoolExhausted  = errors.New("slashed pool has insufficient funds")
)

// FundsLockedError is returned by Unstake while an assignment lock is active
type FundsLockedError struct {
	Auditor     types.Address
	LockedUntil types.Height
	Now         types.Height
}

func (e *FundsLockedError) Error() string {
	return fmt.Sprintf(
		"stake of %s is locked until height %d (current height %d)",
		e.Auditor,
		e.LockedUntil,
		e.Now,
	)
}
