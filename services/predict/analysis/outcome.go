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
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/pathpredict/services/predict/offload"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
	"github.com/AleutianAI/pathpredict/services/predict/predictability"
	"github.com/AleutianAI/pathpredict/services/predict/replay"
)

var (
	// ErrData is the data error sentinel shared by every predict package.
	ErrData = pathid.ErrData

	// ErrPartialFailure wraps every error or panic that ends a pip or stats
	// task early, whether or not aggregates were produced. The Outcome still
	// carries a best-effort record.
	ErrPartialFailure = errors.New("partial failure")
)

// Status says how much of a task's record can be trusted.
type Status int

const (
	// StatusComplete means the record covers the whole analysis.
	StatusComplete Status = iota

	// StatusPartial means the task failed part-way and the record was built
	// from the aggregates gathered before the failure.
	StatusPartial

	// StatusFailed means no aggregates exist and the record is all-zero.
	StatusFailed

	// StatusNotComputed means the input the task needs does not exist yet,
	// e.g. a result table the predictor has not written.
	StatusNotComputed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	case StatusNotComputed:
		return "not_computed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	for _, c := range []Status{StatusComplete, StatusPartial, StatusFailed, StatusNotComputed} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Outcome is the result of one live-path task.
type Outcome struct {
	Task     Task
	Record   offload.Record
	Status   Status
	Err      error
	Replay   replay.Stats
	Duration time.Duration
	Cached   bool
}

// StatsOutcome is the result of one result-table evaluation.
type StatsOutcome struct {
	Task     Task
	Stats    predictability.Stats
	Status   Status
	Err      error
	Duration time.Duration
}

// CreateOutcome is the result of one predictor invocation.
type CreateOutcome struct {
	Task       Task
	ResultPath string
	Status     Status
	Err        error
	Duration   time.Duration
}
