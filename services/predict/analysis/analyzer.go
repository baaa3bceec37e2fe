// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis runs predictability tasks and owns the task boundary.
//
// Every task is independent: it loads its own catalog, replays its own trace
// or reads its own result table, and returns an outcome value. Errors and
// panics inside a task are caught here, logged with the task identity and a
// stack trace, and turned into a best-effort outcome whose Status says how
// much of the record can be trusted. A failing task never aborts a batch.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/dispatch"
	"github.com/AleutianAI/pathpredict/services/predict/offload"
	"github.com/AleutianAI/pathpredict/services/predict/replay"
	cachestore "github.com/AleutianAI/pathpredict/services/predict/storage/badger"
	"github.com/AleutianAI/pathpredict/services/predict/telemetry"
	"github.com/AleutianAI/pathpredict/services/predict/transition"
)

// SpanName is the span opened around every task.
const SpanName = "pathpredict.task"

// Cache stores completed outcomes across runs.
type Cache interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Put(ctx context.Context, key string, v any) error
}

// PipParams are the live-path parameters shared by every task of a run.
type PipParams struct {
	// HistorySize is the window length L in blocks.
	HistorySize int

	// Cap is the maximum offload set size.
	Cap int

	// Threshold caps post-tracking occurrences. Zero means no cap.
	Threshold uint64

	// RecordUncataloged records uncataloged successors too.
	RecordUncataloged bool

	// ProgressInterval rate-limits replay progress logs.
	ProgressInterval time.Duration
}

// Analyzer runs tasks. It holds no per-task state and is safe for concurrent
// use.
type Analyzer struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
	cache   Cache
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMetrics records task metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithCache serves and stores completed live-path outcomes.
func WithCache(c Cache) Option {
	return func(a *Analyzer) { a.cache = c }
}

// NewAnalyzer creates an Analyzer. A nil logger discards logs.
func NewAnalyzer(logger *slog.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Analyzer{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type cachedOutcome struct {
	Record offload.Record `json:"record"`
	Replay replay.Stats   `json:"replay"`
}

func (a *Analyzer) startTask(ctx context.Context, command string, task Task) (context.Context, trace.Span, *slog.Logger) {
	ctx, span := telemetry.StartSpan(ctx, SpanName,
		attribute.String("command", command),
		attribute.String("task", task.Name),
		attribute.String("target", task.Target.Hex32()),
	)
	logger := telemetry.LoggerWithTrace(ctx, a.logger).With(task.LogAttrs()...)
	return ctx, span, logger
}

func (a *Analyzer) finishTask(ctx context.Context, span trace.Span, command string, status Status, err error, d time.Duration) {
	span.SetAttributes(attribute.String("status", status.String()))
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetSpanOK(span)
	}
	span.End()
	a.metrics.RecordTask(ctx, command, status.String(), d)
}

// AnalyzeTrace replays one task's trace and selects its offload set.
//
// # Description
//
// Loads the task's catalog, replays the trace into a fresh transition table,
// and selects up to params.Cap offloads. On an error or panic the outcome is
// built from the partial table when it holds any history (StatusPartial), or
// is the all-zero record (StatusFailed). Only complete outcomes are cached.
//
// # Outputs
//
//   - Outcome: Always populated; Err is set for Partial and Failed.
//
// # Thread Safety
//
// Safe to call concurrently for different tasks.
func (a *Analyzer) AnalyzeTrace(ctx context.Context, task Task, params PipParams) (out Outcome) {
	start := time.Now()
	ctx, span, logger := a.startTask(ctx, "pip", task)

	var tbl *transition.Table
	out = Outcome{Task: task, Record: offload.ZeroRecord(task.Name), Status: StatusFailed}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", ErrPartialFailure, r)
			logger.Error("task panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			out = a.bestEffort(out, tbl, params, err)
		}
		out.Duration = time.Since(start)
		a.finishTask(ctx, span, "pip", out.Status, out.Err, out.Duration)
	}()

	fail := func(err error) Outcome {
		err = fmt.Errorf("%w: %w", ErrPartialFailure, err)
		out = a.bestEffort(out, tbl, params, err)
		logger.Error("task failed",
			slog.String("status", out.Status.String()),
			slog.String("error", err.Error()),
			slog.String("stack", string(debug.Stack())))
		return out
	}

	tracePath, err := task.ResolveTrace()
	if err != nil {
		return fail(fmt.Errorf("resolve trace: %w", err))
	}
	profilePath, err := task.ResolveProfile()
	if err != nil {
		return fail(fmt.Errorf("resolve profile: %w", err))
	}

	key := ""
	if a.cache != nil {
		key, err = cacheKey(task, tracePath, profilePath, params)
		if err != nil {
			logger.Warn("cache key unavailable", slog.String("error", err.Error()))
		} else {
			var hit cachedOutcome
			found, err := a.cache.Get(ctx, key, &hit)
			if err != nil {
				logger.Warn("cache lookup failed", slog.String("error", err.Error()))
			} else if found {
				a.metrics.RecordCacheHit(ctx)
				logger.Info("served from cache")
				out.Record, out.Replay = hit.Record, hit.Replay
				out.Record.Name = task.Name
				out.Status, out.Cached = StatusComplete, true
				return out
			}
		}
	}

	cat, err := catalog.Load(profilePath)
	if err != nil {
		return fail(err)
	}
	rc, err := replay.OpenTrace(tracePath)
	if err != nil {
		return fail(err)
	}
	defer rc.Close()

	logger.Info("replay started",
		slog.String("trace", tracePath),
		slog.Int("paths", cat.Len()),
		slog.Int("blocks", cat.NumBlocks()),
		slog.Int("history_size", params.HistorySize))

	tbl = transition.NewTable(task.Target)
	st, err := replay.Replay(ctx, rc, cat, replay.Config{
		WindowLength:      params.HistorySize,
		Target:            task.Target,
		Threshold:         params.Threshold,
		RecordUncataloged: params.RecordUncataloged,
		Logger:            logger,
		ProgressInterval:  params.ProgressInterval,
	}, tbl)
	out.Replay = st
	a.metrics.RecordReplay(ctx, st.Events, st.Recorded)
	if err != nil {
		return fail(fmt.Errorf("replay %s: %w", tracePath, err))
	}
	if !st.TrackingStarted {
		logger.Warn("target never observed in trace")
	}

	sel := offload.Select(tbl, params.Cap)
	out.Record = offload.NewRecord(task.Name, sel)
	out.Status = StatusComplete
	for rank, o := range sel.Offloaded {
		logger.Debug("offloaded history",
			slog.Int("rank", rank),
			slog.String("blocks", blockLabels(cat, o.History)),
			slog.Uint64("hits", o.Hits),
			slog.Uint64("total", o.Total))
	}

	logger.Info("task complete",
		slog.Int("histories", tbl.Len()),
		slog.Int("candidates", sel.Candidates),
		slog.Int("offloaded", len(sel.Offloaded)),
		slog.Uint64("total_hits", sel.TotalHits))

	if key != "" {
		if err := a.cache.Put(ctx, key, cachedOutcome{Record: out.Record, Replay: st}); err != nil {
			logger.Warn("cache store failed", slog.String("error", err.Error()))
		}
	}
	return out
}

// blockLabels renders h with the profile's block labels, oldest first.
func blockLabels(cat *catalog.Catalog, h transition.History) string {
	labels := make([]string, h.Len())
	for i := range labels {
		if l, ok := cat.Label(h.At(i)); ok {
			labels[i] = l
		} else {
			labels[i] = "?"
		}
	}
	return strings.Join(labels, " ")
}

// bestEffort fills out from whatever the partial table holds.
func (a *Analyzer) bestEffort(out Outcome, tbl *transition.Table, params PipParams, err error) Outcome {
	out.Err = err
	if tbl != nil && tbl.Len() > 0 {
		out.Record = offload.NewRecord(out.Task.Name, offload.Select(tbl, params.Cap))
		out.Status = StatusPartial
		return out
	}
	out.Record = offload.ZeroRecord(out.Task.Name)
	out.Status = StatusFailed
	return out
}

// RunPip analyzes every task on a pool of workers and returns the outcomes in
// task order.
func (a *Analyzer) RunPip(ctx context.Context, tasks []Task, params PipParams, workers int) []Outcome {
	return dispatch.Map(ctx, workers, len(tasks), func(ctx context.Context, i int) Outcome {
		return a.AnalyzeTrace(ctx, tasks[i], params)
	})
}

// cacheKey fingerprints everything the outcome depends on.
func cacheKey(task Task, tracePath, profilePath string, params PipParams) (string, error) {
	parts := []string{
		task.Name,
		task.Target.Hex32(),
		strconv.Itoa(params.HistorySize),
		strconv.Itoa(params.Cap),
		strconv.FormatUint(params.Threshold, 10),
		strconv.FormatBool(params.RecordUncataloged),
	}
	for _, p := range []string{tracePath, profilePath} {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", err
		}
		parts = append(parts, abs,
			strconv.FormatInt(info.Size(), 10),
			strconv.FormatInt(info.ModTime().UnixNano(), 10))
	}
	return cachestore.Fingerprint(parts...), nil
}
