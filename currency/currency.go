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

package currency

import (
	"errors"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the token precision assumed for human readable amounts
const DefaultDecimals = 6

var (
	// ErrNegativeValue is returned when parsing a negative amount
	ErrNegativeValue = errors.New("negative amount")
	// ErrTooManyDecimals is returned when a value has more decimal places than the token
	ErrTooManyDecimals = errors.New("too many decimal places")
	// ErrTooLarge is returned when a value does not fit in an Amount
	ErrTooLarge = errors.New("amount is too large")
	// ErrAddOverflow is returned when an addition overflows
	ErrAddOverflow = errors.New("amount addition overflow")
	// ErrSubUnderflow is returned when a subtraction would go negative
	ErrSubUnderflow = errors.New("amount subtraction underflow")
	// ErrMultOverflow is returned when a multiplication overflows
	ErrMultOverflow = errors.New("amount multiplication overflow")
	// ErrDivideByZero is returned when dividing an amount into zero parts
	ErrDivideByZero = errors.New("amount divided by zero")
)

// Amount is a quantity of tokens in the lowest denomination
type Amount uint64

// MaxAmount is the largest representable amount. It doubles as the
// "no price advertised" sentinel for auditor minimum prices.
const MaxAmount = Amount(math.MaxUint64)

var (
	maxDecimal     = decimal.NewFromUint64(math.MaxUint64)
	hundredDecimal = decimal.NewFromInt(100)
)

// ParseAmount converts a human readable token value into minor units
func ParseAmount(s string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.Sign() == -1 {
		return 0, ErrNegativeValue
	}
	if d.Exponent() < -decimals {
		return 0, ErrTooManyDecimals
	}
	e := d.Shift(decimals)
	if e.GreaterThan(maxDecimal) {
		return 0, ErrTooLarge
	}
	return Amount(e.BigInt().Uint64()), nil
}

// Format renders the amount in whole token units
func (a Amount) Format(decimals int32) string {
	return a.decimal().Shift(-decimals).String()
}

func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Add returns a+b, or an error if the sum overflows
func (a Amount) Add(b Amount) (Amount, error) {
	sum := a + b
	if sum < a {
		return 0, ErrAddOverflow
	}
	return sum, nil
}

// Sub returns a-b, or an error if b is larger than a
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, ErrSubUnderflow
	}
	return a - b, nil
}

// MulUint64 multiplies the amount by b, returning an error on overflow
func (a Amount) MulUint64(b uint64) (Amount, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := uint64(a) * b
	if p/b != uint64(a) {
		return 0, ErrMultOverflow
	}
	return Amount(p), nil
}

// Percent returns floor(a * pct / 100) without intermediate overflow
func (a Amount) Percent(pct uint64) Amount {
	r := a.decimal().
		Mul(decimal.NewFromUint64(pct)).
		Div(hundredDecimal).
		Floor()
	if r.GreaterThan(maxDecimal) {
		return MaxAmount
	}
	return Amount(r.BigInt().Uint64())
}

func (a Amount) decimal() decimal.Decimal {
	return decimal.NewFromUint64(uint64(a))
}

// Divide splits the amount into n equal shares and returns the share and
// the undistributed remainder
func (a Amount) Divide(n int) (share, remainder Amount, err error) {
	if n <= 0 {
		return 0, 0, ErrDivideByZero
	}
	d := Amount(n)
	return a / d, a % d, nil
}

// Min returns the smaller of a and b
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}
