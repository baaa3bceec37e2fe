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
	cachestore "github.com/AleutianAI/pathpredict/services/predict/storage/badger"
)

type pipOptions struct {
	size              int
	cap               int
	threshold         uint64
	workers           int
	cacheDir          string
	recordUncataloged bool
	progress          time.Duration
}

func newPipCmd(a *app) *cobra.Command {
	var o pipOptions
	cmd := &cobra.Command{
		Use:   "pip",
		Short: "Replay traces and select offload histories for every task",
		Long: `pip replays each task's path trace, counts which L-block histories
precede each path once the target has been seen, and offloads up to --cap of
the histories that most often lead into the target.

One record per task is printed in task order:

  name,offloaded,total_hits,good_offloads,total_offloads,precision,recall

A failed task prints its best-effort record; details are in the logs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPip(cmd, a, o)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.size, "size", 0, "history size L in blocks (default from config)")
	f.IntVar(&o.cap, "cap", 0, "maximum offload set size (default from config)")
	f.Uint64Var(&o.threshold, "threshold", 0, "post-tracking occurrences to process, 0 for all (default from config)")
	f.IntVar(&o.workers, "workers", 0, "concurrent tasks (default from config)")
	f.StringVar(&o.cacheDir, "cache-dir", "", "reuse completed outcomes stored in this directory")
	f.BoolVar(&o.recordUncataloged, "record-uncataloged", false, "also record transitions into uncataloged paths")
	f.DurationVar(&o.progress, "progress", 30*time.Second, "interval between replay progress logs")
	return cmd
}

func runPip(cmd *cobra.Command, a *app, o pipOptions) error {
	flags := cmd.Flags()
	params := analysis.PipParams{
		HistorySize:       a.cfg.HistorySize,
		Cap:               a.cfg.OffloadCap,
		Threshold:         a.cfg.Threshold,
		RecordUncataloged: a.cfg.RecordUncataloged,
		ProgressInterval:  o.progress,
	}
	if flags.Changed("size") {
		params.HistorySize = o.size
	}
	if flags.Changed("cap") {
		params.Cap = o.cap
	}
	if flags.Changed("threshold") {
		params.Threshold = o.threshold
	}
	if flags.Changed("record-uncataloged") {
		params.RecordUncataloged = o.recordUncataloged
	}
	workers := a.cfg.Workers
	if flags.Changed("workers") {
		workers = o.workers
	}
	cacheDir := a.cfg.Cache.Dir
	if o.cacheDir != "" {
		cacheDir = o.cacheDir
	}

	w, err := a.writer(cmd)
	if err != nil {
		return err
	}
	tasks, err := a.tasks()
	if err != nil {
		return err
	}

	opts := []analysis.Option{analysis.WithMetrics(a.metrics)}
	if cacheDir != "" {
		cfg := cachestore.DefaultConfig(cacheDir)
		cfg.Logger = a.logger.Slog()
		db, err := cachestore.Open(cfg)
		if err != nil {
			return err
		}
		a.onClose(db.Close)
		cache := cachestore.NewResultCache(db, cachestore.DefaultNamespace)
		if n, err := cache.Len(cmd.Context()); err == nil {
			a.logger.Info("result cache opened", "dir", cacheDir, "entries", n)
		}
		opts = append(opts, analysis.WithCache(cache))
	}

	start := time.Now()
	a.logger.Info("pip started",
		"tasks", len(tasks),
		"history_size", params.HistorySize,
		"cap", params.Cap,
		"threshold", params.Threshold,
		"workers", workers)

	outs := analysis.NewAnalyzer(a.logger.Slog(), opts...).RunPip(cmd.Context(), tasks, params, workers)
	logSummary(a, "pip finished", statuses(outs, func(o analysis.Outcome) analysis.Status { return o.Status }), time.Since(start))
	return w.Pip(outs)
}

// statuses counts outcomes by status.
func statuses[T any](outs []T, status func(T) analysis.Status) map[analysis.Status]int {
	counts := make(map[analysis.Status]int)
	for _, o := range outs {
		counts[status(o)]++
	}
	return counts
}

func logSummary(a *app, msg string, counts map[analysis.Status]int, d time.Duration) {
	args := []any{"duration", d.Round(time.Millisecond).String()}
	for _, s := range []analysis.Status{analysis.StatusComplete, analysis.StatusPartial, analysis.StatusFailed, analysis.StatusNotComputed} {
		if n := counts[s]; n > 0 {
			args = append(args, s.String(), n)
		}
	}
	if counts[analysis.StatusPartial]+counts[analysis.StatusFailed] > 0 {
		a.logger.Warn(msg, args...)
		return
	}
	a.logger.Info(msg, args...)
}
