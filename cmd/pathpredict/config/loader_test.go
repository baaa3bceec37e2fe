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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pathpredict/services/predict/pathid"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2, cfg.HistorySize)
	assert.Equal(t, 8, cfg.OffloadCap)
	assert.Equal(t, uint64(100_000_000), cfg.Threshold)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, 15, cfg.CreateWorkers)
	assert.Equal(t, "epp-sequences.txt", cfg.Paths.ProfileFile)
	assert.Equal(t, "path-profile-trace.gz", cfg.Paths.TraceFile)
	assert.Equal(t, "%s-prediction-level%d.csv", cfg.Paths.ResultPattern)
	assert.Equal(t, "predictor", cfg.Predictor.Binary)
	assert.False(t, cfg.RecordUncataloged)
	assert.NoError(t, Validate(cfg))
}

func TestLoad_MissingOptionalFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().HistorySize, cfg.HistorySize)
}

func TestLoad_MissingRequiredFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
history_size: 4
offload_cap: 3
threshold: 0
paths:
  trace_root: /data/traces
tasks:
  - name: 181.mcf
    target: "123456789012345678901234567890"
  - name: 164.gzip
    program: gzip
    target: 0xABC
    trace: gzip.trace.gz
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.HistorySize)
	assert.Equal(t, 3, cfg.OffloadCap)
	assert.Zero(t, cfg.Threshold)
	assert.Equal(t, "/data/traces", cfg.Paths.TraceRoot)
	assert.Equal(t, "epp-sequences.txt", cfg.Paths.ProfileFile, "unset keys keep defaults")
	require.Len(t, cfg.Tasks, 2)

	tasks, err := Resolve(cfg, "/work")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	want, err := pathid.ParseDecimal("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, want, tasks[0].Target)
	assert.Equal(t, 0, tasks[0].Index)
	assert.Empty(t, tasks[0].TracePath)
	assert.Equal(t, "/data/traces", tasks[0].TraceRoot)
	assert.Equal(t, "/work/profiles", tasks[0].ProfileRoot)
	assert.Equal(t, "/work/results", tasks[0].ResultsDir)

	assert.Equal(t, 1, tasks[1].Index)
	assert.Equal(t, "gzip", tasks[1].Program)
	assert.Equal(t, pathid.From64(0xabc), tasks[1].Target)
	assert.Equal(t, "/work/gzip.trace.gz", tasks[1].TracePath)
	assert.Equal(t, "/work/results/164.gzip-prediction-level4.csv", tasks[1].ResultPath(4))
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""), true)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.HistorySize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "histroy_size: 3\n"},
		{"zero history", "history_size: 0\n"},
		{"negative cap", "offload_cap: -1\n"},
		{"bad yaml", "tasks: [\n"},
		{"bad target", "tasks:\n  - name: a\n    target: 0xZZ\n"},
		{"target too wide", "tasks:\n  - name: a\n    target: \"0x1" + "00000000000000000000000000000000\"\n"},
		{"missing name", "tasks:\n  - target: 1\n"},
		{"duplicate name", "tasks:\n  - name: a\n    target: 1\n  - name: a\n    target: 2\n"},
		{"bad pattern", "paths:\n  result_pattern: \"%s.csv\"\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad exporter", "telemetry:\n  trace_exporter: zipkin\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), true)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", DefaultFileName)
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.Len(t, cfg.Tasks, 1)
	assert.Equal(t, "164.gzip", cfg.Tasks[0].Name)
	assert.Zero(t, cfg.Workers)

	assert.Error(t, WriteDefault(path), "existing file is not overwritten")
}
