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
	"log/slog"
	"path/filepath"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
	"github.com/AleutianAI/pathpredict/services/predict/predictability"
	"github.com/AleutianAI/pathpredict/services/predict/replay"
)

// Task is one (program, target path) analysis.
//
// Tasks are plain values built from configuration; nothing in this package
// keeps a global task list.
type Task struct {
	// Index is the task's position in the configured list. Batch results are
	// returned in Index order.
	Index int

	// Name labels output rows and result files.
	Name string

	// Program selects the profile and trace directories. Defaults to Name.
	Program string

	// Target is the path whose predictability is measured.
	Target pathid.ID

	// TracePath is an explicit trace file. When empty the trace is
	// discovered under TraceRoot.
	TracePath string
	TraceRoot string
	TraceFile string

	ProfileRoot string
	ProfileFile string

	ResultsDir    string
	ResultPattern string
}

func (t Task) program() string {
	if t.Program != "" {
		return t.Program
	}
	return t.Name
}

// ResolveTrace returns TracePath, or discovers the unique trace under
// TraceRoot/Program/*/TraceFile.
func (t Task) ResolveTrace() (string, error) {
	if t.TracePath != "" {
		return t.TracePath, nil
	}
	return replay.DiscoverTrace(t.TraceRoot, t.program(), t.TraceFile)
}

// ResolveProfile discovers the unique profile description for the program.
func (t Task) ResolveProfile() (string, error) {
	return catalog.Discover(t.ProfileRoot, t.program(), t.ProfileFile)
}

// ResultPath returns the predictor result table for history size level.
func (t Task) ResultPath(level int) string {
	return filepath.Join(t.ResultsDir, predictability.ResultFileName(t.ResultPattern, t.Name, level))
}

// LogAttrs identifies the task in log lines.
func (t Task) LogAttrs() []any {
	return []any{
		slog.String("task", t.Name),
		slog.String("program", t.program()),
		slog.String("target", t.Target.Hex32()),
	}
}
