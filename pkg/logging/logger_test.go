// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{" Warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevel_SlogRoundTrip(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		assert.Equal(t, l, fromSlogLevel(l.toSlogLevel()))
	}
	assert.Equal(t, slog.LevelInfo, Level(42).toSlogLevel())
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Service: "pathpredict"})
	logger.Info("task complete", "task", "164.gzip")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "msg=\"task complete\"")
	assert.Contains(t, out, "task=164.gzip")
	assert.Contains(t, out, "service=pathpredict")
	assert.NotContains(t, out, "hidden")
}

func TestNew_ZeroLevelIsInfo(t *testing.T) {
	var zero Level
	assert.Equal(t, LevelInfo, zero)
	assert.Equal(t, slog.LevelInfo, zero.toSlogLevel())

	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})
	logger.Debug("dropped")
	logger.Slog().Debug("dropped too")
	logger.Info("kept")
	assert.Equal(t, []string{"kept"}, exp.Messages())
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, JSON: true, Level: LevelWarn})
	logger.Info("filtered")
	logger.Warn("cache lookup failed", "error", "boom")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "cache lookup failed", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNew_QuietWithoutSinksDiscards(t *testing.T) {
	logger := New(Config{Quiet: true})
	logger.Error("nowhere")
	assert.NoError(t, logger.Close())
}

func TestNew_LogFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(Config{Quiet: true, LogDir: dir, Service: "pathpredict"})
	logger.Info("run started", "run_id", "abc")
	require.NoError(t, logger.Close())

	name := "pathpredict_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "run started", rec["msg"])
	assert.Equal(t, "abc", rec["run_id"])
}

func TestNew_LogFileDefaultService(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Quiet: true, LogDir: dir})
	logger.Info("x")
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(dir, DefaultService+"_*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestNew_UnwritableLogDirIsSkipped(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	var buf bytes.Buffer
	logger := New(Config{Output: &buf, LogDir: filepath.Join(blocker, "logs")})
	logger.Info("still logging")
	assert.Nil(t, logger.file)
	assert.Contains(t, buf.String(), "still logging")
}

func TestLogger_ExporterSeesSlogRecords(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Service: "pathpredict", Exporter: exp})

	// Library code logs through the slog.Logger, not the wrapper.
	lib := logger.Slog().With("task", "181.mcf")
	lib.Info("replay started", slog.Int("paths", 12))
	lib.WithGroup("replay").Warn("slow", slog.Int("lines", 3))
	logger.Debug("below level")

	entries := exp.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "replay started", entries[0].Message)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, "pathpredict", entries[0].Service)
	assert.Equal(t, "181.mcf", entries[0].Attrs["task"])
	assert.Equal(t, int64(12), entries[0].Attrs["paths"])

	assert.Equal(t, LevelWarn, entries[1].Level)
	assert.Equal(t, int64(3), entries[1].Attrs["replay.lines"])
	assert.Equal(t, "181.mcf", entries[1].Attrs["task"])
}

func TestLogger_With(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})
	child := logger.With("run_id", "r1")

	child.Info("child")
	logger.Info("parent")

	entries := exp.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "r1", entries[0].Attrs["run_id"])
	assert.NotContains(t, entries[1].Attrs, "run_id")
	assert.Equal(t, []string{"child", "parent"}, exp.Messages())
}

func TestLogger_LevelFiltering(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Level: LevelWarn, Exporter: exp})
	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")
	assert.Equal(t, []string{"w", "e"}, exp.Messages())
}

type failingExporter struct {
	flushErr, closeErr error
	closed             bool
}

func (f *failingExporter) Export(context.Context, LogEntry) error { return errors.New("export failed") }
func (f *failingExporter) Flush(context.Context) error            { return f.flushErr }
func (f *failingExporter) Close() error                           { f.closed = true; return f.closeErr }

func TestLogger_ExportErrorDoesNotBreakConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Exporter: &failingExporter{}})
	logger.Info("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLogger_Close(t *testing.T) {
	exp := &failingExporter{flushErr: errors.New("flush"), closeErr: errors.New("close")}
	logger := New(Config{Quiet: true, Exporter: exp})

	err := logger.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush exporter")
	assert.True(t, exp.closed)

	// Second close is a no-op.
	assert.NoError(t, logger.Close())
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := logger.With("worker", i)
			for j := 0; j < 50; j++ {
				child.Info("tick")
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, exp.Entries(), 400)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".pathpredict/logs"), expandPath("~/.pathpredict/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "rel/path", expandPath("rel/path"))
}

func TestMultiHandler_ContinuesAfterError(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		errHandler{},
		slog.NewTextHandler(&buf, nil),
	}}
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "both", 0))
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "both")
}

type errHandler struct{}

func (errHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (errHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }
func (h errHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h errHandler) WithGroup(string) slog.Handler           { return h }
