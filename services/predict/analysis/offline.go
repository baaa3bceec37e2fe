// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/discover"
	"github.com/AleutianAI/pathpredict/services/predict/dispatch"
	"github.com/AleutianAI/pathpredict/services/predict/predictability"
	"github.com/AleutianAI/pathpredict/services/predict/predictor"
)

// EvaluateResult scores the task's predictor result table for history size
// level.
//
// A missing or empty table yields StatusNotComputed with no error. Any other
// failure yields StatusFailed with the error and an empty Stats.
func (a *Analyzer) EvaluateResult(ctx context.Context, task Task, level int) (out StatsOutcome) {
	start := time.Now()
	ctx, span, logger := a.startTask(ctx, "stats", task)
	out = StatsOutcome{Task: task, Stats: predictability.Stats{Name: task.Name}, Status: StatusFailed}

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: panic: %v", ErrPartialFailure, r)
			out.Status = StatusFailed
			out.Stats = predictability.Stats{Name: task.Name}
			logger.Error("task panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
		out.Duration = time.Since(start)
		a.finishTask(ctx, span, "stats", out.Status, out.Err, out.Duration)
	}()

	path := task.ResultPath(level)
	if !discover.NonEmpty(path) {
		logger.Debug("result table not computed", slog.String("path", path))
		out.Status = StatusNotComputed
		return out
	}

	fail := func(err error) StatsOutcome {
		out.Err = fmt.Errorf("%w: %w", ErrPartialFailure, err)
		logger.Error("task failed",
			slog.String("status", out.Status.String()),
			slog.String("error", err.Error()),
			slog.String("stack", string(debug.Stack())))
		return out
	}

	profilePath, err := task.ResolveProfile()
	if err != nil {
		return fail(fmt.Errorf("resolve profile: %w", err))
	}
	cat, err := catalog.Load(profilePath)
	if err != nil {
		return fail(err)
	}
	st, err := predictability.EvaluateFile(task.Name, task.Target, path, cat, logger)
	if err != nil {
		return fail(err)
	}
	a.metrics.RecordSkippedRows(ctx, st.Skipped)

	out.Stats = st
	out.Status = StatusComplete
	logger.Info("result table evaluated",
		slog.String("path", path),
		slog.Int("rows", st.Rows),
		slog.Int("retained", st.Retained),
		slog.String("ratio", st.Ratio.String()))
	return out
}

// RunStats evaluates every task's result table and returns the outcomes in
// task order.
func (a *Analyzer) RunStats(ctx context.Context, tasks []Task, level, workers int) []StatsOutcome {
	return dispatch.Map(ctx, workers, len(tasks), func(ctx context.Context, i int) StatsOutcome {
		return a.EvaluateResult(ctx, tasks[i], level)
	})
}

// CreateResult runs the predictor for one task and history size, writing the
// task's result table.
func (a *Analyzer) CreateResult(ctx context.Context, task Task, level int, runner predictor.Runner, binary string) (out CreateOutcome) {
	start := time.Now()
	ctx, span, logger := a.startTask(ctx, "create", task)
	out = CreateOutcome{Task: task, ResultPath: task.ResultPath(level), Status: StatusFailed}

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: panic: %v", ErrPartialFailure, r)
			out.Status = StatusFailed
			logger.Error("task panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
		out.Duration = time.Since(start)
		a.metrics.RecordPredictorRun(ctx, out.Status.String())
		a.finishTask(ctx, span, "create", out.Status, out.Err, out.Duration)
	}()

	tracePath, err := task.ResolveTrace()
	if err != nil {
		out.Err = fmt.Errorf("resolve trace: %w", err)
		logger.Error("task failed", slog.String("error", out.Err.Error()))
		return out
	}

	logger.Info("predictor started",
		slog.String("trace", tracePath),
		slog.String("result", out.ResultPath),
		slog.Int("level", level))

	err = runner.Run(ctx, predictor.Invocation{
		Binary:     binary,
		Level:      level,
		Target:     task.Target,
		TracePath:  tracePath,
		ResultPath: out.ResultPath,
	})
	if err != nil {
		out.Err = err
		logger.Error("predictor failed", slog.String("error", err.Error()))
		return out
	}

	out.Status = StatusComplete
	logger.Info("predictor finished", slog.String("result", out.ResultPath))
	return out
}

// RunCreate runs the predictor for every task and returns the outcomes in
// task order.
func (a *Analyzer) RunCreate(ctx context.Context, tasks []Task, level int, runner predictor.Runner, binary string, workers int) []CreateOutcome {
	return dispatch.Map(ctx, workers, len(tasks), func(ctx context.Context, i int) CreateOutcome {
		return a.CreateResult(ctx, tasks[i], level, runner, binary)
	})
}
