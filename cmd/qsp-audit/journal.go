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
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/database/models"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/internal/config"
)

// journalCommand lists audit requests recorded in the journal of a stopped
// node
func journalCommand() *cobra.Command {
	var state, auditor string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List audit requests recorded in the journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromCommand(cmd)
			if state == "" && auditor == "" {
				return errors.New("one of --state or --auditor is required")
			}
			return listJournal(cfg, state, auditor)
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "only show requests in this state")
	cmd.Flags().StringVar(&auditor, "auditor", "", "only show requests assigned to this auditor")
	return cmd
}

func listJournal(cfg *config.Config, state, auditor string) error {
	db, err := database.New(&database.Config{
		DataDir:         cfg.DatabasePath,
		MetadataBackend: cfg.MetadataBackend,
		MetadataDSN:     cfg.MetadataDsn,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	var rows []models.AuditRequest
	if auditor != "" {
		rows, err = db.AuditRequestsByAuditor(auditor)
	} else {
		rows, err = db.AuditRequestsByState(state)
	}
	if err != nil {
		return fmt.Errorf("querying journal: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tREQUESTOR\tAUDITOR\tPRICE\tLAST EVENT\tHEIGHT")
	for _, r := range rows {
		if state != "" && r.State != state {
			continue
		}
		fmt.Fprintf(
			w,
			"%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID,
			r.State,
			r.Requestor,
			r.Auditor,
			currency.Amount(r.Price).Format(cfg.TokenDecimals),
			r.LastEvent,
			r.LastHeight,
		)
	}
	return w.Flush()
}
