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
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/pathpredict/cmd/pathpredict/config"
	"github.com/AleutianAI/pathpredict/pkg/logging"
	"github.com/AleutianAI/pathpredict/services/predict/analysis"
	"github.com/AleutianAI/pathpredict/services/predict/report"
	"github.com/AleutianAI/pathpredict/services/predict/telemetry"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath     string
	logLevel       string
	logDir         string
	logJSON        bool
	format         string
	header         bool
	traceExporter  string
	metricExporter string
	metricsFile    string
}

// app is the state shared by every command of one invocation. It is set up
// in the root PersistentPreRunE and torn down by close.
type app struct {
	opts rootOptions

	cfg     config.PathPredictConfig
	baseDir string
	runID   string

	logger   *logging.Logger
	metrics  *telemetry.Metrics
	shutdown func(context.Context) error

	closers []func() error
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "pathpredict",
		Short: "Path predictability and offload analysis",
		Long: `pathpredict replays path-profile traces to find which block histories
predict a hot target path, selects the histories worth offloading, and scores
the tables written by the native predictor.

Tasks, roots and defaults come from pathpredict.yaml (see "pathpredict init").
Flags override the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.opts.configPath, "config", config.DefaultFileName, "configuration file")
	pf.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.opts.logDir, "log-dir", "", "also write JSON logs to this directory")
	pf.BoolVar(&a.opts.logJSON, "log-json", false, "log JSON to stderr")
	pf.StringVar(&a.opts.format, "format", string(report.FormatAuto), "output format: auto, csv, table, json")
	pf.BoolVar(&a.opts.header, "header", false, "start CSV output with a header record")
	pf.StringVar(&a.opts.traceExporter, "trace-exporter", "", "trace exporter: none, stdout, otlp")
	pf.StringVar(&a.opts.metricExporter, "metric-exporter", "", "metric exporter: none, stdout, prometheus")
	pf.StringVar(&a.opts.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")

	root.AddCommand(
		newInitCmd(a),
		newTasksCmd(a),
		newPipCmd(a),
		newStatsCmd(a),
		newCreateCmd(a),
	)
	return root, a
}

// setup loads configuration and starts logging and telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	required := cmd.Flags().Changed("config")
	cfg, err := config.Load(a.opts.configPath, required)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.baseDir, err = filepath.Abs(filepath.Dir(a.opts.configPath)); err != nil {
		return fmt.Errorf("resolve config directory: %w", err)
	}

	if a.opts.logLevel != "" {
		a.cfg.Logging.Level = a.opts.logLevel
	}
	if a.opts.logDir != "" {
		a.cfg.Logging.Dir = a.opts.logDir
	}
	if a.opts.logJSON {
		a.cfg.Logging.JSON = true
	}
	level, err := logging.ParseLevel(a.cfg.Logging.Level)
	if err != nil {
		return err
	}

	a.runID = uuid.NewString()
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.cfg.Logging.Dir,
		Service: logging.DefaultService,
		JSON:    a.cfg.Logging.JSON,
	}).With("run_id", a.runID, "command", cmd.Name())

	tcfg := a.cfg.Telemetry
	if a.opts.traceExporter != "" {
		tcfg.TraceExporter = a.opts.traceExporter
	}
	if a.opts.metricExporter != "" {
		tcfg.MetricExporter = a.opts.metricExporter
	}
	if a.opts.metricsFile != "" && (tcfg.MetricExporter == "" || tcfg.MetricExporter == telemetry.ExporterNone) {
		tcfg.MetricExporter = telemetry.ExporterPrometheus
	}
	if a.shutdown, err = telemetry.Init(cmd.Context(), tcfg); err != nil {
		return err
	}
	if a.metrics, err = telemetry.NewMetrics(otel.Meter(telemetry.InstrumentationName)); err != nil {
		return err
	}

	a.logger.Debug("configuration loaded",
		"config", a.opts.configPath,
		"tasks", len(a.cfg.Tasks),
		"trace_exporter", tcfg.TraceExporter,
		"metric_exporter", tcfg.MetricExporter)
	return nil
}

// tasks resolves the configured task list.
func (a *app) tasks() ([]analysis.Task, error) {
	tasks, err := config.Resolve(a.cfg, a.baseDir)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		a.logger.Warn("no tasks configured", "config", a.opts.configPath)
	}
	return tasks, nil
}

func (a *app) writer(cmd *cobra.Command) (*report.Writer, error) {
	format, err := report.ParseFormat(a.opts.format)
	if err != nil {
		return nil, err
	}
	return report.NewWriter(cmd.OutOrStdout(), format, a.opts.header), nil
}

// onClose registers cleanup run by close in reverse order.
func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close writes the metrics file, then stops telemetry, then closes the
// logger. Metrics must be gathered before the meter provider shuts down.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if a.opts.metricsFile != "" && a.shutdown != nil {
		if err := telemetry.WriteMetricsFile(a.opts.metricsFile, nil); err != nil {
			errs = append(errs, err)
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
		a.shutdown = nil
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			errs = append(errs, err)
		}
		a.logger = nil
	}
	return errors.Join(errs...)
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(a.opts.configPath); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.opts.configPath)
			return err
		},
	}
}
