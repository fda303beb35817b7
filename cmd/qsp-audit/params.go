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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// paramsCommand prints the market parameters the node would start with
func paramsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Print the effective market parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromCommand(cmd)
			params, err := cfg.MarketParams()
			if err != nil {
				return err
			}
			out := map[string]any{
				"maxAssignedRequests":           params.MaxAssignedRequests,
				"minStake":                      params.MinStake.Format(cfg.TokenDecimals),
				"slashPercentage":               params.SlashPercentage,
				"reportProcessingFeePercentage": params.ReportProcessingFeePercentage,
				"policeNodesPerReport":          params.PoliceNodesPerReport,
				"auditTimeout":                  uint64(params.AuditTimeout),
				"policeTimeout":                 uint64(params.PoliceTimeout),
				"transactionFee":                params.TransactionFee.Format(cfg.TokenDecimals),
				"maxMultiRequest":               params.MaxMultiRequest,
				"reclaimBudget":                 params.ReclaimBudget,
				"claimBudget":                   params.ClaimBudget,
				"expiredPolicy":                 string(params.ExpiredPolicy),
			}
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("failed to encode params: %w", err)
			}
			return nil
		},
	}
	return cmd
}
