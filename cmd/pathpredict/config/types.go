// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"runtime"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/offload"
	"github.com/AleutianAI/pathpredict/services/predict/predictability"
	"github.com/AleutianAI/pathpredict/services/predict/predictor"
	"github.com/AleutianAI/pathpredict/services/predict/replay"
	"github.com/AleutianAI/pathpredict/services/predict/telemetry"
)

// DefaultFileName is the config file read when --config is not given.
const DefaultFileName = "pathpredict.yaml"

// DefaultCreateWorkers is the predictor pool size.
const DefaultCreateWorkers = 15

// PathPredictConfig is the whole configuration file.
type PathPredictConfig struct {
	// HistorySize is the window length L in blocks.
	HistorySize int `yaml:"history_size" validate:"min=1"`

	// OffloadCap is the maximum offload set size.
	OffloadCap int `yaml:"offload_cap" validate:"min=0"`

	// Threshold caps post-tracking occurrences. 0 means unlimited.
	Threshold uint64 `yaml:"threshold"`

	// RecordUncataloged records transitions into uncataloged paths.
	RecordUncataloged bool `yaml:"record_uncataloged"`

	// Workers sizes the pip and stats pool. 0 means runtime.NumCPU.
	Workers int `yaml:"workers" validate:"min=0"`

	// CreateWorkers sizes the predictor pool.
	CreateWorkers int `yaml:"create_workers" validate:"min=0"`

	Paths     PathsConfig     `yaml:"paths"`
	Predictor PredictorConfig `yaml:"predictor"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`

	Telemetry telemetry.Config `yaml:"telemetry"`

	Tasks []TaskConfig `yaml:"tasks" validate:"dive"`
}

// PathsConfig locates profiles, traces and result tables.
type PathsConfig struct {
	ProfileRoot   string `yaml:"profile_root"`
	ProfileFile   string `yaml:"profile_file" validate:"required"`
	TraceRoot     string `yaml:"trace_root"`
	TraceFile     string `yaml:"trace_file" validate:"required"`
	ResultsDir    string `yaml:"results_dir"`
	ResultPattern string `yaml:"result_pattern" validate:"required,resultpattern"`
}

// PredictorConfig names the native predictor binary.
type PredictorConfig struct {
	Binary string `yaml:"binary" validate:"required"`
}

// CacheConfig enables the pip result cache.
type CacheConfig struct {
	// Dir holds the badger store. Empty disables caching.
	Dir string `yaml:"dir"`
}

// LoggingConfig mirrors the logging flags.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TaskConfig is one (program, target) analysis.
type TaskConfig struct {
	Name string `yaml:"name" validate:"required"`

	// Program defaults to Name.
	Program string `yaml:"program"`

	// Target is a decimal path id or a 0x-prefixed hex one.
	Target string `yaml:"target" validate:"required,pathid"`

	// Trace is an explicit trace path. When empty the trace is discovered.
	Trace string `yaml:"trace"`
}

// DefaultConfig returns the built-in defaults. Tasks are empty.
func DefaultConfig() PathPredictConfig {
	return PathPredictConfig{
		HistorySize:   2,
		OffloadCap:    offload.DefaultCap,
		Threshold:     replay.DefaultThreshold,
		Workers:       runtime.NumCPU(),
		CreateWorkers: DefaultCreateWorkers,
		Paths: PathsConfig{
			ProfileRoot:   "profiles",
			ProfileFile:   catalog.DefaultFileName,
			TraceRoot:     "traces",
			TraceFile:     replay.DefaultTraceFileName,
			ResultsDir:    "results",
			ResultPattern: predictability.DefaultResultPattern,
		},
		Predictor: PredictorConfig{Binary: predictor.DefaultBinary},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
	}
}
