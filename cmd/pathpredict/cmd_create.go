// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pathpredict/services/predict/analysis"
	"github.com/AleutianAI/pathpredict/services/predict/predictor"
)

type createOptions struct {
	size    int
	workers int
	binary  string
}

func newCreateCmd(a *app) *cobra.Command {
	var o createOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Run the native predictor to write result tables",
		Long: `create streams each task's decompressed trace into

  <predictor> <L> <target-hex32>

and writes its output to the task's result table. A failed run leaves no
table behind and does not stop the other tasks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, a, o)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.size, "size", 0, "history size L (default from config)")
	f.IntVar(&o.workers, "workers", 0, "concurrent predictor runs (default from config create_workers)")
	f.StringVar(&o.binary, "predictor", "", "predictor binary (default from config)")
	return cmd
}

func runCreate(cmd *cobra.Command, a *app, o createOptions) error {
	level := a.cfg.HistorySize
	if cmd.Flags().Changed("size") {
		level = o.size
	}
	workers := a.cfg.CreateWorkers
	if cmd.Flags().Changed("workers") {
		workers = o.workers
	}
	binary := a.cfg.Predictor.Binary
	if o.binary != "" {
		binary = o.binary
	}

	w, err := a.writer(cmd)
	if err != nil {
		return err
	}
	tasks, err := a.tasks()
	if err != nil {
		return err
	}

	start := time.Now()
	a.logger.Info("create started", "tasks", len(tasks), "level", level, "predictor", binary, "workers", workers)
	outs := analysis.NewAnalyzer(a.logger.Slog(), analysis.WithMetrics(a.metrics)).
		RunCreate(cmd.Context(), tasks, level, predictor.NewExecRunner(), binary, workers)
	logSummary(a, "create finished", statuses(outs, func(o analysis.CreateOutcome) analysis.Status { return o.Status }), time.Since(start))
	return w.Create(outs)
}
