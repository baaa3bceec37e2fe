// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package replay streams a path trace through a sliding block window.
//
// A trace has one event per line:
//
//	<path-id-hex> <repeat-count>
//
// Events are consumed strictly in file order. The window holds the last L
// blocks executed. Until the target path is first seen the replayer only
// seeds the window; from that event on, every occurrence is handed to a Sink
// together with the window contents that preceded it.
package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
	"github.com/AleutianAI/pathpredict/services/predict/transition"
)

// DefaultThreshold caps the occurrences processed after tracking begins.
const DefaultThreshold = 100_000_000

const ctxCheckEvery = 4096

// Sink receives (history, next) observations.
type Sink interface {
	Record(h transition.History, next pathid.ID)
}

// Config controls one replay.
type Config struct {
	// WindowLength is L, the number of blocks in a history.
	WindowLength int

	// Target starts tracking the first time it appears.
	Target pathid.ID

	// Threshold is the hard cap on occurrences processed after tracking
	// begins. Zero means no cap.
	Threshold uint64

	// RecordUncataloged also records occurrences of paths missing from the
	// catalog as successors. They never enter the window either way.
	RecordUncataloged bool

	// Logger receives progress and summary lines. Nil disables logging.
	Logger *slog.Logger

	// ProgressInterval rate-limits progress logs. Zero uses 30s.
	ProgressInterval time.Duration
}

// Stats summarizes a replay.
type Stats struct {
	Lines            uint64 `json:"lines"`
	Events           uint64 `json:"events"`
	Tracked          uint64 `json:"tracked"`
	Recorded         uint64 `json:"recorded"`
	Uncataloged      uint64 `json:"uncataloged"`
	TrackingStarted  bool   `json:"tracking_started"`
	ThresholdReached bool   `json:"threshold_reached"`
}

type event struct {
	id    pathid.ID
	count uint64
}

// Replay feeds r through the window and reports observations to sink.
//
// # Description
//
// For every occurrence after tracking begins, in order:
//
//  1. The window is snapshotted as the history preceding the occurrence.
//  2. If the window holds exactly L blocks, sink.Record(history, id) is called.
//  3. The occurrence's blocks are appended when the path is in the catalog.
//  4. The processed count is incremented; reaching Threshold stops the replay
//     at once, even in the middle of a repeated event, and no further line is
//     read.
//
// # Outputs
//
//   - Stats: Counters for the portion of the trace that was consumed.
//   - error: Wraps pathid.ErrData for malformed lines, or ctx.Err().
//
// # Thread Safety
//
// A replay is single-threaded. The caller owns r, the sink and the window
// state for the whole call.
func Replay(ctx context.Context, r io.Reader, cat *catalog.Catalog, cfg Config, sink Sink) (Stats, error) {
	var st Stats
	if cfg.WindowLength < 1 {
		return st, fmt.Errorf("%w: window length %d must be >= 1", pathid.ErrData, cfg.WindowLength)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	progress := rate.Sometimes{Interval: interval}

	win := NewWindow(cfg.WindowLength)
	tracking := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		st.Lines++
		if st.Lines%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}

		ev, ok, err := parseEvent(scanner.Text())
		if err != nil {
			return st, fmt.Errorf("trace line %d: %w", st.Lines, err)
		}
		if !ok {
			continue
		}
		st.Events++
		progress.Do(func() {
			logger.Info("replay progress",
				slog.String("lines", humanize.Comma(int64(st.Lines))),
				slog.String("tracked", humanize.Comma(int64(st.Tracked))))
		})

		blocks, known := cat.Blocks(ev.id)
		if !tracking && ev.id == cfg.Target {
			tracking = true
			st.TrackingStarted = true
			logger.Debug("tracking started",
				slog.Uint64("line", st.Lines),
				slog.String("target", cfg.Target.Hex32()))
		}

		if !tracking {
			if known {
				win.PushRepeated(blocks, ev.count)
			}
			continue
		}

		for i := uint64(0); i < ev.count; i++ {
			if win.Full() && (known || cfg.RecordUncataloged) {
				sink.Record(win.Snapshot(), ev.id)
				st.Recorded++
			}
			if known {
				win.Push(blocks...)
			} else {
				st.Uncataloged++
			}
			st.Tracked++
			if cfg.Threshold > 0 && st.Tracked >= cfg.Threshold {
				st.ThresholdReached = true
				logger.Info("threshold reached",
					slog.String("processed", humanize.Comma(int64(st.Tracked))),
					slog.Uint64("line", st.Lines))
				return st, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return st, fmt.Errorf("%w: read trace: %v", pathid.ErrData, err)
	}
	return st, nil
}

func parseEvent(line string) (event, bool, error) {
	cols := strings.Fields(line)
	if len(cols) == 0 {
		return event{}, false, nil
	}
	if len(cols) != 2 {
		return event{}, false, fmt.Errorf("%w: want 2 columns, got %d", pathid.ErrData, len(cols))
	}
	id, err := pathid.ParseHex(cols[0])
	if err != nil {
		return event{}, false, err
	}
	count, err := strconv.ParseUint(cols[1], 10, 64)
	if err != nil {
		return event{}, false, fmt.Errorf("%w: repeat count %q: %v", pathid.ErrData, cols[1], err)
	}
	if count == 0 {
		return event{}, false, fmt.Errorf("%w: repeat count must be >= 1", pathid.ErrData)
	}
	return event{id: id, count: count}, true, nil
}
