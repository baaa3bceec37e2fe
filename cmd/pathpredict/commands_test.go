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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pathpredict/cmd/pathpredict/config"
)

// Path 1 expands to blocks a b, path 2 to block c.
const testProfile = "1 10 0 5 a b\n2 10 0 3 c\n"

const testConfig = `history_size: 1
offload_cap: 8
workers: 2
paths:
  profile_root: profiles
  results_dir: results
tasks:
  - name: 164.gzip
    target: "0x1"
    trace: traces/gzip.trace
  - name: 181.mcf
    target: "1"
    trace: traces/missing.trace
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// workspace lays out a config with one runnable task and one whose trace
// is missing, and returns the config path.
func workspace(t *testing.T) string {
	t.Helper()
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")

	dir := t.TempDir()
	for _, name := range []string{"164.gzip", "181.mcf"} {
		writeFile(t, filepath.Join(dir, "profiles", name, "run1", "epp-sequences.txt"), testProfile)
	}
	writeFile(t, filepath.Join(dir, "traces", "gzip.trace"), "1 1\n2 1\n1 1\n2 1\n")
	path := filepath.Join(dir, config.DefaultFileName)
	writeFile(t, path, testConfig)
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, a := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	require.NoError(t, a.close(context.Background()))
	return out.String(), err
}

func TestPip(t *testing.T) {
	cfg := workspace(t)

	out, err := execute(t, "--config", cfg, "--format", "csv", "pip")
	require.NoError(t, err)
	assert.Equal(t,
		"164.gzip,1,1,1,1,1,1\n"+
			"181.mcf,0,0,0,0,undefined,undefined\n",
		out)
}

func TestPip_FlagsOverrideConfig(t *testing.T) {
	cfg := workspace(t)

	out, err := execute(t, "--config", cfg, "--format", "csv", "--header", "pip", "--cap", "0")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "name,"))
	assert.Equal(t, "164.gzip,0,1,0,0,undefined,0", lines[1])
}

func TestPip_CacheDir(t *testing.T) {
	cfg := workspace(t)
	cacheDir := filepath.Join(t.TempDir(), "cache")

	cached := func(out string) map[string]bool {
		got := make(map[string]bool)
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			var rec struct {
				Name   string `json:"name"`
				Cached bool   `json:"cached"`
			}
			require.NoError(t, json.Unmarshal([]byte(line), &rec))
			got[rec.Name] = rec.Cached
		}
		return got
	}

	first, err := execute(t, "--config", cfg, "--format", "json", "pip", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"164.gzip": false, "181.mcf": false}, cached(first))

	// Only complete outcomes are stored.
	second, err := execute(t, "--config", cfg, "--format", "json", "pip", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"164.gzip": true, "181.mcf": false}, cached(second))

	third, err := execute(t, "--config", cfg, "--format", "json", "pip", "--cache-dir", cacheDir, "--size", "2")
	require.NoError(t, err)
	assert.False(t, cached(third)["164.gzip"], "history size is part of the key")
}

func TestPip_MetricsFile(t *testing.T) {
	cfg := workspace(t)
	metrics := filepath.Join(t.TempDir(), "run.prom")

	_, err := execute(t, "--config", cfg, "--format", "csv", "--metrics-file", metrics, "pip")
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pathpredict_tasks_total")
}

func TestStats_SkipsMissingTables(t *testing.T) {
	cfg := workspace(t)

	out, err := execute(t, "--config", cfg, "--format", "csv", "stats")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTasks(t *testing.T) {
	cfg := workspace(t)

	out, err := execute(t, "--config", cfg, "--format", "csv", "tasks", "--size", "3")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "164.gzip,"))
	assert.Contains(t, lines[0], filepath.Join("results", "164.gzip-prediction-level3.csv"))
	assert.True(t, strings.HasPrefix(lines[1], "181.mcf,"))
}

func TestCreate_MissingPredictorDoesNotFail(t *testing.T) {
	cfg := workspace(t)

	out, err := execute(t, "--config", cfg, "--format", "csv", "create",
		"--predictor", filepath.Join(t.TempDir(), "no-such-predictor"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cfg), "results", "164.gzip-prediction-level1.csv"))
}

func TestSetupErrors(t *testing.T) {
	t.Run("missing explicit config", func(t *testing.T) {
		_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "pip")
		assert.Error(t, err)
	})

	t.Run("bad format", func(t *testing.T) {
		cfg := workspace(t)
		_, err := execute(t, "--config", cfg, "--format", "xml", "pip")
		assert.Error(t, err)
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := workspace(t)
		root, a := newRootCmd()
		root.SetOut(io.Discard)
		root.SetArgs([]string{"--config", cfg, "--log-level", "loud", "tasks"})
		assert.Error(t, root.ExecuteContext(context.Background()))
		assert.NoError(t, a.close(context.Background()))
	})
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", config.DefaultFileName)

	out, err := execute(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path, true)
	require.NoError(t, err)
	require.Len(t, cfg.Tasks, 1)

	_, err = execute(t, "--config", path, "init")
	assert.Error(t, err, "init does not overwrite")
}
