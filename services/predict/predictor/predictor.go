// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package predictor runs the external native predictor that produces result
// tables.
//
// The predictor reads a decompressed trace on stdin and writes a result table
// on stdout. It is invoked as:
//
//	predictor <history-size> <target-hex32>
package predictor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/pathpredict/services/predict/pathid"
	"github.com/AleutianAI/pathpredict/services/predict/replay"
)

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "predictor"

// ErrPredictorFailed wraps a non-zero exit or a failed start.
var ErrPredictorFailed = errors.New("predictor failed")

const maxStderr = 8 * 1024

// Invocation describes one predictor run.
type Invocation struct {
	Binary     string
	Level      int
	Target     pathid.ID
	TracePath  string
	ResultPath string
}

// Args returns the predictor's command-line arguments.
func (inv Invocation) Args() []string {
	return []string{strconv.Itoa(inv.Level), inv.Target.Hex32()}
}

// Runner produces a result table for one invocation.
//
// # Description
//
// Implementations must leave no file at ResultPath when they fail, so a
// partial table is never mistaken for a computed one.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecRunner runs the predictor as a child process.
type ExecRunner struct{}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run streams the trace into the predictor and writes its output to
// ResultPath through a temporary file that is renamed on success.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	binary := inv.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	trace, err := replay.OpenTrace(inv.TracePath)
	if err != nil {
		return err
	}
	defer trace.Close()

	if err := os.MkdirAll(filepath.Dir(inv.ResultPath), 0o755); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}
	out, err := os.CreateTemp(filepath.Dir(inv.ResultPath), filepath.Base(inv.ResultPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	tmpPath := out.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	cmd := exec.CommandContext(ctx, binary, inv.Args()...)
	cmd.Stdin = trace
	cmd.Stdout = out
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	runErr := cmd.Run()
	closeErr := out.Close()
	if runErr != nil {
		cleanup()
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s: %v: %s", ErrPredictorFailed, binary, runErr, msg)
		}
		return fmt.Errorf("%w: %s: %v", ErrPredictorFailed, binary, runErr)
	}
	if closeErr != nil {
		cleanup()
		return fmt.Errorf("write result file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, inv.ResultPath); err != nil {
		cleanup()
		return fmt.Errorf("finalize result file: %w", err)
	}
	return nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
