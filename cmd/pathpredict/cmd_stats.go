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
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pathpredict/services/predict/analysis"
	"github.com/AleutianAI/pathpredict/services/predict/watch"
)

type statsOptions struct {
	size     int
	workers  int
	watch    bool
	debounce time.Duration
}

func newStatsCmd(a *app) *cobra.Command {
	var o statsOptions
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Score predictor result tables for every task",
		Long: `stats reads <results_dir>/<name>-prediction-level<L>.csv for each task
and reports the heaviest-weighted history that starts with the target:

  name,num_histories,total_entries,predicted,ratio,weight,<history ids>,<next ids>

Tasks whose table is missing or empty are skipped. With --watch, stats keeps
running and re-reports tasks as their tables are written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, a, o)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.size, "size", 0, "history size L of the result tables (default from config)")
	f.IntVar(&o.workers, "workers", 0, "concurrent tasks (default from config)")
	f.BoolVar(&o.watch, "watch", false, "keep running and re-evaluate tables as they are written")
	f.DurationVar(&o.debounce, "debounce", watch.DefaultDebounce, "quiet period before a written table is evaluated")
	return cmd
}

func runStats(cmd *cobra.Command, a *app, o statsOptions) error {
	level := a.cfg.HistorySize
	if cmd.Flags().Changed("size") {
		level = o.size
	}
	workers := a.cfg.Workers
	if cmd.Flags().Changed("workers") {
		workers = o.workers
	}

	w, err := a.writer(cmd)
	if err != nil {
		return err
	}
	tasks, err := a.tasks()
	if err != nil {
		return err
	}
	an := analysis.NewAnalyzer(a.logger.Slog(), analysis.WithMetrics(a.metrics))

	start := time.Now()
	outs := an.RunStats(cmd.Context(), tasks, level, workers)
	logSummary(a, "stats finished", statuses(outs, func(o analysis.StatsOutcome) analysis.Status { return o.Status }), time.Since(start))
	if err := w.Stats(outs); err != nil {
		return err
	}
	if !o.watch {
		return nil
	}

	byPath := make(map[string]analysis.Task, len(tasks))
	dirs := make(map[string]struct{})
	for _, t := range tasks {
		p, err := filepath.Abs(t.ResultPath(level))
		if err != nil {
			return err
		}
		byPath[p] = t
		dirs[filepath.Dir(p)] = struct{}{}
	}
	if len(dirs) != 1 {
		// Every task shares cfg.Paths.ResultsDir, so this only trips on an
		// empty task list.
		a.logger.Warn("nothing to watch", "tasks", len(tasks))
		return nil
	}
	var dir string
	for d := range dirs {
		dir = d
	}

	watcher, err := watch.New(dir, watch.Options{
		Debounce: o.debounce,
		Match: func(p string) bool {
			_, ok := byPath[p]
			return ok
		},
		Logger: a.logger.Slog(),
	})
	if err != nil {
		return err
	}
	a.logger.Info("watching result tables", "dir", dir, "level", level)

	return watcher.Run(cmd.Context(), func(ctx context.Context, paths []string) {
		changed := make([]analysis.Task, 0, len(paths))
		for _, p := range paths {
			changed = append(changed, byPath[p])
		}
		outs := an.RunStats(ctx, changed, level, workers)
		if err := w.Stats(outs); err != nil {
			a.logger.Error("write records", "error", err.Error())
		}
	})
}
