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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals int32
		want     Amount
		wantErr  error
	}{
		{name: "whole", input: "12", decimals: 2, want: 1200},
		{name: "fraction", input: "0.05", decimals: 2, want: 5},
		{name: "too many decimals", input: "0.001", decimals: 2, wantErr: ErrTooManyDecimals},
		{name: "negative", input: "-1", decimals: 2, wantErr: ErrNegativeValue},
		{name: "too large", input: "18446744073709551616", decimals: 0, wantErr: ErrTooLarge},
		{name: "max", input: "18446744073709551615", decimals: 0, want: MaxAmount},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.input, tc.decimals)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseAmountInvalid(t *testing.T) {
	_, err := ParseAmount("abc", 2)
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "12.5", Amount(1250).Format(2))
	assert.Equal(t, "0", Amount(0).Format(18))
}

func TestArithmetic(t *testing.T) {
	sum, err := Amount(5).Add(7)
	require.NoError(t, err)
	assert.Equal(t, Amount(12), sum)

	_, err = MaxAmount.Add(1)
	require.ErrorIs(t, err, ErrAddOverflow)

	_, err = Amount(1).Sub(2)
	require.ErrorIs(t, err, ErrSubUnderflow)

	p, err := Amount(123).MulUint64(3)
	require.NoError(t, err)
	assert.Equal(t, Amount(369), p)

	_, err = MaxAmount.MulUint64(2)
	require.ErrorIs(t, err, ErrMultOverflow)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, Amount(6), Amount(123).Percent(5))
	assert.Equal(t, Amount(0), Amount(19).Percent(5))
	// No intermediate overflow for large values
	assert.Equal(t, MaxAmount/2, MaxAmount.Percent(50))
	assert.Equal(t, MaxAmount, MaxAmount.Percent(100))
	assert.Equal(t, MaxAmount, Amount(1000).Percent(math.MaxUint64))
	assert.Equal(t, Amount(0), MaxAmount.Percent(0))
}

func TestDivide(t *testing.T) {
	share, rem, err := Amount(100).Divide(3)
	require.NoError(t, err)
	assert.Equal(t, Amount(33), share)
	assert.Equal(t, Amount(1), rem)

	_, _, err = Amount(100).Divide(0)
	require.ErrorIs(t, err, ErrDivideByZero)
}
