// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the counters and histograms recorded by a run.
//
// Description:
//
//	All metrics use the "pathpredict_" prefix. A nil *Metrics is valid and
//	records nothing, so library code can take one unconditionally.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// TasksTotal counts finished tasks by command and outcome status.
	TasksTotal metric.Int64Counter

	// TaskDuration records per-task wall time in seconds.
	TaskDuration metric.Float64Histogram

	// TraceEventsTotal counts trace events read by the replayer.
	TraceEventsTotal metric.Int64Counter

	// TransitionsTotal counts (history, next) transitions recorded.
	TransitionsTotal metric.Int64Counter

	// RowsSkippedTotal counts result-table rows skipped as non-acceleratable.
	RowsSkippedTotal metric.Int64Counter

	// CacheHitsTotal counts pip outcomes served from the result cache.
	CacheHitsTotal metric.Int64Counter

	// PredictorRunsTotal counts external predictor invocations by status.
	PredictorRunsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance.
//	error - Non-nil if metric registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TasksTotal, err = meter.Int64Counter(
		"pathpredict_tasks_total",
		metric.WithDescription("Finished analysis tasks"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tasks_total: %w", err)
	}

	m.TaskDuration, err = meter.Float64Histogram(
		"pathpredict_task_duration_seconds",
		metric.WithDescription("Analysis task duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600),
	)
	if err != nil {
		return nil, fmt.Errorf("create task_duration: %w", err)
	}

	m.TraceEventsTotal, err = meter.Int64Counter(
		"pathpredict_trace_events_total",
		metric.WithDescription("Trace events read"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace_events_total: %w", err)
	}

	m.TransitionsTotal, err = meter.Int64Counter(
		"pathpredict_transitions_total",
		metric.WithDescription("History transitions recorded"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transitions_total: %w", err)
	}

	m.RowsSkippedTotal, err = meter.Int64Counter(
		"pathpredict_rows_skipped_total",
		metric.WithDescription("Result rows skipped as non-acceleratable"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rows_skipped_total: %w", err)
	}

	m.CacheHitsTotal, err = meter.Int64Counter(
		"pathpredict_cache_hits_total",
		metric.WithDescription("Outcomes served from the result cache"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache_hits_total: %w", err)
	}

	m.PredictorRunsTotal, err = meter.Int64Counter(
		"pathpredict_predictor_runs_total",
		metric.WithDescription("External predictor invocations"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create predictor_runs_total: %w", err)
	}

	return m, nil
}

// RecordTask records one finished task.
func (m *Metrics) RecordTask(ctx context.Context, command, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", status),
	)
	m.TasksTotal.Add(ctx, 1, attrs)
	m.TaskDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordReplay records the volume of one trace replay.
func (m *Metrics) RecordReplay(ctx context.Context, events, transitions uint64) {
	if m == nil {
		return
	}
	m.TraceEventsTotal.Add(ctx, int64(events))
	m.TransitionsTotal.Add(ctx, int64(transitions))
}

// RecordSkippedRows records rows rejected by the acceleratable check.
func (m *Metrics) RecordSkippedRows(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RowsSkippedTotal.Add(ctx, int64(n))
}

// RecordCacheHit records one result cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Add(ctx, 1)
}

// RecordPredictorRun records one external predictor invocation.
func (m *Metrics) RecordPredictorRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.PredictorRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
