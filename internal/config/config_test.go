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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qsp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigParams(t *testing.T) {
	cfg := DefaultConfig()
	params, err := cfg.MarketParams()
	require.NoError(t, err)
	assert.Equal(t, market.DefaultParams(), params)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, `
databasePath: /var/lib/qsp
owner: admin
apiPort: 9000
tokenDecimals: 2
devFunding:
  alice: "10.5"
market:
  minStake: "100"
  transactionFee: "0.25"
  slashPercentage: 50
  auditTimeout: 20
  expiredPolicy: requeue
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/qsp", cfg.DatabasePath)
	assert.Equal(t, "admin", cfg.Owner)
	assert.Equal(t, uint(9000), cfg.ApiPort)
	// Unset keys keep their defaults
	assert.Equal(t, "escrow", cfg.EscrowAccount)

	params, err := cfg.MarketParams()
	require.NoError(t, err)
	assert.Equal(t, currency.Amount(10000), params.MinStake)
	assert.Equal(t, currency.Amount(25), params.TransactionFee)
	assert.Equal(t, uint64(50), params.SlashPercentage)
	assert.Equal(t, types.Height(20), params.AuditTimeout)
	assert.Equal(t, market.ExpiredPolicyRequeue, params.ExpiredPolicy)
	assert.Equal(t, market.DefaultPoliceTimeout, params.PoliceTimeout)

	funding, err := cfg.DevFundingAmounts()
	require.NoError(t, err)
	assert.Equal(t, map[types.Address]currency.Amount{"alice": 1050}, funding)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "owner: file-owner\nmarket:\n  slashPercentage: 10\n")
	t.Setenv("QSP_OWNER", "env-owner")
	t.Setenv("QSP_API_PORT", "0")
	t.Setenv("QSP_MARKET_SLASH_PERCENTAGE", "40")
	t.Setenv("QSP_METADATA_DSN", "host=db")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-owner", cfg.Owner)
	assert.Equal(t, uint(0), cfg.ApiPort)
	assert.Equal(t, uint64(40), cfg.Market.SlashPercentage)
	assert.Equal(t, "host=db", cfg.MetadataDsn)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "owner: [unterminated"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "market:\n  slashPercentage: 101\n"))
	var paramsErr *market.InvalidParamsError
	require.ErrorAs(t, err, &paramsErr)
	assert.Equal(t, "slashPercentage", paramsErr.Field)

	_, err = LoadConfig(writeConfig(t, "tokenDecimals: 0\nmarket:\n  minStake: \"1.5\"\n"))
	require.ErrorIs(t, err, currency.ErrTooManyDecimals)
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	d, err := cfg.BlockIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)
	d, err = cfg.ShutdownTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	cfg.BlockInterval = "0s"
	_, err = cfg.BlockIntervalDuration()
	require.Error(t, err)

	g, err := cfg.Genesis()
	require.NoError(t, err)
	assert.True(t, g.IsZero())
	cfg.GenesisTime = "2024-01-02T03:04:05Z"
	g, err = cfg.Genesis()
	require.NoError(t, err)
	assert.Equal(t, 2024, g.Year())
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
