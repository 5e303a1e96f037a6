// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one index reconciliation sweep and exit",
		Long:  "Remove vector index entries whose record is gone or forgotten, and re-embed live records the index is missing.",
		RunE:  runReconcile,
	}
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := wireCore(cfg)
	if err != nil {
		return fmt.Errorf("wiring subsystems: %w", err)
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			slog.Warn("error closing subsystems", "error", cerr)
		}
	}()

	report, err := app.Reconciler.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("reconciliation sweep: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale entries, reindexed %d records, %d failures\n",
		report.Removed, report.Reindexed, report.Failed)
	return err
}
