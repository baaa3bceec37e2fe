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
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// InstrumentationName is the tracer and meter name used by pathpredict.
const InstrumentationName = "pathpredict"

// Exporter names accepted in Config.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// Config controls telemetry behavior.
//
// All fields have defaults via DefaultConfig().
type Config struct {
	// ServiceName identifies this program in traces and metrics.
	ServiceName string `yaml:"service_name" json:"service_name"`

	// ServiceVersion is the version string reported with telemetry.
	ServiceVersion string `yaml:"service_version" json:"service_version"`

	// Environment identifies the deployment environment.
	Environment string `yaml:"environment" json:"environment"`

	// TraceExporter selects the trace exporter: "otlp", "stdout", or "none".
	TraceExporter string `yaml:"trace_exporter" json:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// MetricExporter selects the metric exporter: "prometheus", "stdout", or "none".
	MetricExporter string `yaml:"metric_exporter" json:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`

	// OTLPEndpoint is the OTLP receiver endpoint for traces.
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool `yaml:"otlp_insecure" json:"otlp_insecure"`

	// Registerer receives the Prometheus collector. Nil uses
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer `yaml:"-" json:"-"`
}

// DefaultConfig returns the configuration for a batch run: no exporters
// unless the standard OTEL_* variables ask for them.
//
// Variables read:
//   - PATHPREDICT_ENV: Environment
//   - OTEL_TRACES_EXPORTER: TraceExporter
//   - OTEL_METRICS_EXPORTER: MetricExporter
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLPEndpoint
func DefaultConfig() Config {
	return Config{
		ServiceName:    InstrumentationName,
		ServiceVersion: "1.0.0",
		Environment:    envOr("PATHPREDICT_ENV", "development"),
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", ExporterNone),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", ExporterNone),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// Init installs the tracer and meter providers selected by cfg as the otel
// globals.
//
// Description:
//
//	An exporter set to "none" or "" keeps the global no-op provider, so
//	instrumented code costs almost nothing in a plain run. Spans are batched
//	and always sampled; a run is short and every task span is wanted.
//
// Inputs:
//
//	ctx - Used while dialing the OTLP endpoint.
//	cfg - Exporter selection and resource attributes.
//
// Outputs:
//
//	shutdown - Flushes and stops whatever Init started. Always non-nil on
//	           success; call it once, after the last metric is read.
//	error - ErrNilContext, or a wrapped ErrUnknownExporter or exporter
//	        construction failure. Nothing is installed on error.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	var stops []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i](ctx))
		}
		return errors.Join(errs...)
	}

	var tp *trace.TracerProvider
	if enabled(cfg.TraceExporter) {
		exp, err := spanExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
		tp = trace.NewTracerProvider(
			trace.WithResource(res),
			trace.WithBatcher(exp),
			trace.WithSampler(trace.AlwaysSample()),
		)
		stops = append(stops, tp.Shutdown)
	}

	if enabled(cfg.MetricExporter) {
		reader, err := metricReader(cfg)
		if err != nil {
			if tp != nil {
				_ = tp.Shutdown(ctx)
			}
			return nil, fmt.Errorf("metric exporter: %w", err)
		}
		mp := metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader))
		otel.SetMeterProvider(mp)
		stops = append(stops, mp.Shutdown)
	}

	if tp != nil {
		otel.SetTracerProvider(tp)
	}
	return shutdown, nil
}

func enabled(exporter string) bool {
	return exporter != "" && exporter != ExporterNone
}

func spanExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.TraceExporter {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownExporter, cfg.TraceExporter)
	}
}

// metricReader returns a pull reader for prometheus, so the registry holds
// current values whenever WriteMetricsFile gathers it, and a periodic push
// reader for stdout.
func metricReader(cfg Config) (metric.Reader, error) {
	switch cfg.MetricExporter {
	case ExporterPrometheus:
		var opts []promexporter.Option
		if cfg.Registerer != nil {
			opts = append(opts, promexporter.WithRegisterer(cfg.Registerer))
		}
		return promexporter.New(opts...)
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		return metric.NewPeriodicReader(exp), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownExporter, cfg.MetricExporter)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
