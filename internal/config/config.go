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
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/market"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

type ctxKey string

const configContextKey ctxKey = "qsp.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultBlockInterval   = "15s"
	// EnvPrefix is prepended to every environment variable name
	EnvPrefix = "qsp"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DatabasePath    string `yaml:"databasePath"    split_words:"true"`
	MetadataBackend string `yaml:"metadataBackend" split_words:"true"`
	MetadataDsn     string `yaml:"metadataDsn"     split_words:"true"`
	BlobCacheSize   uint64 `yaml:"blobCacheSize"   split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	// ApiPort of 0 disables the REST API
	ApiPort             uint   `yaml:"apiPort"             split_words:"true"`
	ApiMaxRequestsPerIp int    `yaml:"apiMaxRequestsPerIp" split_words:"true"`
	MetricsPort         uint   `yaml:"metricsPort"         split_words:"true"`
	ShutdownTimeout     string `yaml:"shutdownTimeout"     split_words:"true"`
	Owner               string `yaml:"owner"`
	EscrowAccount       string `yaml:"escrowAccount"       split_words:"true"`
	StakeAccount        string `yaml:"stakeAccount"        split_words:"true"`
	TreasuryAccount     string `yaml:"treasuryAccount"     split_words:"true"`
	// GenesisTime is RFC 3339. Empty means node start.
	GenesisTime   string `yaml:"genesisTime"   split_words:"true"`
	BlockInterval string `yaml:"blockInterval" split_words:"true"`
	TokenDecimals int32  `yaml:"tokenDecimals" split_words:"true"`
	// DevFunding maps addresses to human token amounts minted on the
	// in-memory ledger at startup
	DevFunding    map[string]string `yaml:"devFunding"    split_words:"true"`
	Tracing       bool              `yaml:"tracing"`
	TracingStdout bool              `yaml:"tracingStdout" split_words:"true"`
	Market        MarketConfig      `yaml:"market"`
}

// MarketConfig holds the initial market parameters. Amounts are human
// token units.
type MarketConfig struct {
	MaxAssignedRequests           int    `yaml:"maxAssignedRequests"           split_words:"true"`
	MinStake                      string `yaml:"minStake"                      split_words:"true"`
	SlashPercentage               uint64 `yaml:"slashPercentage"               split_words:"true"`
	ReportProcessingFeePercentage uint64 `yaml:"reportProcessingFeePercentage" split_words:"true"`
	PoliceNodesPerReport          int    `yaml:"policeNodesPerReport"          split_words:"true"`
	AuditTimeout                  uint64 `yaml:"auditTimeout"                  split_words:"true"`
	PoliceTimeout                 uint64 `yaml:"policeTimeout"                 split_words:"true"`
	TransactionFee                string `yaml:"transactionFee"                split_words:"true"`
	MaxMultiRequest               int    `yaml:"maxMultiRequest"               split_words:"true"`
	ReclaimBudget                 int    `yaml:"reclaimBudget"                 split_words:"true"`
	ClaimBudget                   int    `yaml:"claimBudget"                   split_words:"true"`
	ExpiredPolicy                 string `yaml:"expiredPolicy"                 split_words:"true"`
}

func DefaultConfig() *Config {
	p := market.DefaultParams()
	return &Config{
		DatabasePath:        ".qsp",
		MetadataBackend:     "sqlite",
		BindAddr:            "127.0.0.1",
		ApiPort:             8080,
		ApiMaxRequestsPerIp: 32,
		MetricsPort:         12799,
		ShutdownTimeout:     DefaultShutdownTimeout,
		Owner:               "",
		EscrowAccount:       "escrow",
		StakeAccount:        "stake",
		TreasuryAccount:     "treasury",
		BlockInterval:       DefaultBlockInterval,
		TokenDecimals:       currency.DefaultDecimals,
		Market: MarketConfig{
			MaxAssignedRequests:           p.MaxAssignedRequests,
			MinStake:                      "0",
			SlashPercentage:               p.SlashPercentage,
			ReportProcessingFeePercentage: p.ReportProcessingFeePercentage,
			PoliceNodesPerReport:          p.PoliceNodesPerReport,
			AuditTimeout:                  uint64(p.AuditTimeout),
			PoliceTimeout:                 uint64(p.PoliceTimeout),
			TransactionFee:                "0",
			MaxMultiRequest:               p.MaxMultiRequest,
			ReclaimBudget:                 p.ReclaimBudget,
			ClaimBudget:                   p.ClaimBudget,
			ExpiredPolicy:                 string(p.ExpiredPolicy),
		},
	}
}

// LoadConfig builds the effective config from the defaults, the YAML file
// and then the environment. An empty configFile looks in ~/.qsp/qsp.yaml
// and then /etc/qsp/qsp.yaml.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".qsp", "qsp.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		if configFile == "" {
			systemPath := "/etc/qsp/qsp.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if _, err := cfg.MarketParams(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MarketParams converts the market section into validated parameters
func (c *Config) MarketParams() (market.Params, error) {
	minStake, err := currency.ParseAmount(c.Market.MinStake, c.TokenDecimals)
	if err != nil {
		return market.Params{}, fmt.Errorf("invalid market.minStake %q: %w", c.Market.MinStake, err)
	}
	fee, err := currency.ParseAmount(c.Market.TransactionFee, c.TokenDecimals)
	if err != nil {
		return market.Params{}, fmt.Errorf("invalid market.transactionFee %q: %w", c.Market.TransactionFee, err)
	}
	p := market.Params{
		MaxAssignedRequests:           c.Market.MaxAssignedRequests,
		MinStake:                      minStake,
		SlashPercentage:               c.Market.SlashPercentage,
		ReportProcessingFeePercentage: c.Market.ReportProcessingFeePercentage,
		PoliceNodesPerReport:          c.Market.PoliceNodesPerReport,
		AuditTimeout:                  types.Height(c.Market.AuditTimeout),
		PoliceTimeout:                 types.Height(c.Market.PoliceTimeout),
		TransactionFee:                fee,
		MaxMultiRequest:               c.Market.MaxMultiRequest,
		ReclaimBudget:                 c.Market.ReclaimBudget,
		ClaimBudget:                   c.Market.ClaimBudget,
		ExpiredPolicy:                 market.ExpiredPolicy(c.Market.ExpiredPolicy),
	}
	if err := p.Validate(); err != nil {
		return market.Params{}, err
	}
	return p, nil
}

// DevFundingAmounts parses the dev funding table into minor units
func (c *Config) DevFundingAmounts() (map[types.Address]currency.Amount, error) {
	if len(c.DevFunding) == 0 {
		return nil, nil
	}
	ret := make(map[types.Address]currency.Amount, len(c.DevFunding))
	for _, addr := range slices.Sorted(maps.Keys(c.DevFunding)) {
		amount, err := currency.ParseAmount(c.DevFunding[addr], c.TokenDecimals)
		if err != nil {
			return nil, fmt.Errorf("invalid dev funding for %s: %w", addr, err)
		}
		ret[types.Address(addr)] = amount
	}
	return ret, nil
}

// Genesis parses GenesisTime, returning the zero time when unset
func (c *Config) Genesis() (time.Time, error) {
	if c.GenesisTime == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.GenesisTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime: %w", err)
	}
	return t, nil
}

func (c *Config) BlockIntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.BlockInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid blockInterval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid blockInterval: %s must be positive", c.BlockInterval)
	}
	return d, nil
}

func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout: %w", err)
	}
	return d, nil
}
