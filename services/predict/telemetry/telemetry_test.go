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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg := DefaultConfig()
	assert.Equal(t, "pathpredict", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterNone, cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	assert.Equal(t, "stdout", DefaultConfig().TraceExporter)
}

func TestInit_NilContext(t *testing.T) {
	//lint:ignore SA1012 exercising the nil guard
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_Noop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ""

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"

	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)

	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = "otlp"
	_, err = Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestPrometheusMetricsFile(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterPrometheus
	cfg.Registerer = reg

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	defer shutdown(context.Background())

	m, err := NewMetrics(otel.Meter(InstrumentationName))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordTask(ctx, "pip", "complete", 1500*time.Millisecond)
	m.RecordReplay(ctx, 10, 7)
	m.RecordSkippedRows(ctx, 2)
	m.RecordCacheHit(ctx)
	m.RecordPredictorRun(ctx, "ok")

	path := filepath.Join(t.TempDir(), "pathpredict.prom")
	require.NoError(t, WriteMetricsFile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "pathpredict_tasks_total")
	assert.Contains(t, text, "pathpredict_transitions_total")
	assert.Contains(t, text, `status="complete"`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTask(context.Background(), "pip", "failed", time.Second)
		m.RecordReplay(context.Background(), 1, 1)
		m.RecordSkippedRows(context.Background(), 1)
		m.RecordCacheHit(context.Background())
		m.RecordPredictorRun(context.Background(), "failed")
	})
}

func TestSpanHelpers(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, span := StartSpan(context.Background(), "pathpredict.task")
	defer span.End()
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)

	id := TraceID(ctx)
	assert.Len(t, id, 32)
	assert.Empty(t, TraceID(context.Background()))

	var buf bytes.Buffer
	logger := LoggerWithTrace(ctx, slog.New(slog.NewJSONHandler(&buf, nil)))
	logger.Info("hello")
	assert.Contains(t, buf.String(), id)

	buf.Reset()
	LoggerWithTrace(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil))).Info("plain")
	assert.NotContains(t, buf.String(), "trace_id")
	assert.NotNil(t, LoggerWithTrace(ctx, nil))
}
