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

package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
)

func TestMintAndTransfer(t *testing.T) {
	l := NewMemoryLedger(MemoryLedgerConfig{})
	require.NoError(t, l.Mint("alice", 100))
	assert.Equal(t, currency.Amount(100), l.TotalSupply())

	assert.True(t, l.Transfer("alice", "bob", 40))
	assert.Equal(t, currency.Amount(60), l.BalanceOf("alice"))
	assert.Equal(t, currency.Amount(40), l.BalanceOf("bob"))

	assert.False(t, l.Transfer("alice", "bob", 61))
	assert.Equal(t, currency.Amount(60), l.BalanceOf("alice"))

	// zero transfers always succeed
	assert.True(t, l.Transfer("carol", "bob", 0))
	assert.Equal(t, currency.Amount(100), l.TotalSupply())
}

func TestMintOverflow(t *testing.T) {
	l := NewMemoryLedger(MemoryLedgerConfig{})
	require.NoError(t, l.Mint("alice", currency.MaxAmount))
	require.ErrorIs(t, l.Mint("bob", 1), currency.ErrAddOverflow)
	assert.Equal(t, currency.Amount(0), l.BalanceOf("bob"))
}

func TestTransferFromAllowance(t *testing.T) {
	l := NewMemoryLedger(MemoryLedgerConfig{})
	require.NoError(t, l.Mint("alice", 100))

	assert.False(t, l.TransferFrom("escrow", "alice", "escrow", 10))

	l.Approve("alice", "escrow", 30)
	assert.True(t, l.TransferFrom("escrow", "alice", "escrow", 20))
	assert.Equal(t, currency.Amount(10), l.Allowance("alice", "escrow"))
	assert.Equal(t, currency.Amount(20), l.BalanceOf("escrow"))

	assert.False(t, l.TransferFrom("escrow", "alice", "escrow", 11))
	assert.Equal(t, currency.Amount(10), l.Allowance("alice", "escrow"))

	// insufficient balance leaves the allowance intact
	l.Approve("alice", "escrow", 1000)
	assert.False(t, l.TransferFrom("escrow", "alice", "escrow", 500))
	assert.Equal(t, currency.Amount(1000), l.Allowance("alice", "escrow"))
}
