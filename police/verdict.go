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

// Verdict is the policing outcome of a submitted audit report
type Verdict int

const (
	VerdictUnverified Verdict = iota
	VerdictValid
	VerdictInvalid
	VerdictExpired
)

func (v Verdict) String() string {
	switch v {
	case VerdictUnverified:
		return "unverified"
	case VerdictValid:
		return "valid"
	case VerdictInvalid:
		return "invalid"
	case VerdictExpired:
		return "expired"
	default:
		return "unknown"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
