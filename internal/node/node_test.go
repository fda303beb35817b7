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

package node

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qsp "github.com/quantstamp/qsp-protocol-audit-contract-sub000"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestNodeOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Owner = "admin"
	cfg.DatabasePath = ""
	cfg.DevFunding = map[string]string{"alice": "1"}
	opts, err := NodeOptions(cfg, testLogger())
	require.NoError(t, err)
	n, err := qsp.New(qsp.NewConfig(opts...))
	require.NoError(t, err)
	require.NotNil(t, n)
	require.NoError(t, n.Stop())
}

func TestNodeOptionsMissingOwner(t *testing.T) {
	cfg := config.DefaultConfig()
	opts, err := NodeOptions(cfg, testLogger())
	require.NoError(t, err)
	_, err = qsp.New(qsp.NewConfig(opts...))
	require.Error(t, err)
}

func TestNodeOptionsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"block interval", func(c *config.Config) { c.BlockInterval = "soon" }},
		{"shutdown timeout", func(c *config.Config) { c.ShutdownTimeout = "later" }},
		{"genesis", func(c *config.Config) { c.GenesisTime = "yesterday" }},
		{"dev funding", func(c *config.Config) { c.DevFunding = map[string]string{"a": "-1"} }},
		{"params", func(c *config.Config) { c.Market.ExpiredPolicy = "forget" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Owner = "admin"
			tc.mutate(cfg)
			_, err := NodeOptions(cfg, testLogger())
			assert.Error(t, err)
		})
	}
}
