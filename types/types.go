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

// Package types holds the identifiers shared by every market component.
package types

import (
	"errors"
	"strconv"
)

// ErrUnauthorized is returned when the caller is not allowed to invoke an
// operation. It aborts the operation with no state change.
var ErrUnauthorized = errors.New("unauthorized")

// Address identifies a participant as reported by the caller-identity layer
type Address string

// IsZero reports whether the address is empty
func (a Address) IsZero() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

// RequestID identifies an audit request. IDs start at 1; 0 means "none".
type RequestID uint64

func (id RequestID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseRequestID parses the decimal form of a request ID
func ParseRequestID(s string) (RequestID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return RequestID(v), nil
}

// Height is a block height used for every timeout and lock window
type Height uint64

// Add returns h+n, saturating at the maximum height
func (h Height) Add(n Height) Height {
	sum := h + n
	if sum < h {
		return ^Height(0)
	}
	return sum
}
