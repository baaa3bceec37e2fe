// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reports result tables as the predictor writes them.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must be quiet before it is reported.
const DefaultDebounce = 250 * time.Millisecond

// Handler receives the absolute paths of result files that settled, sorted
// and deduplicated. It runs on the watcher goroutine.
type Handler func(ctx context.Context, paths []string)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is delivered.
	Debounce time.Duration

	// Match selects the files of interest by absolute path. Nil matches all
	// regular files.
	Match func(path string) bool

	// Logger receives watcher errors. Nil discards them.
	Logger *slog.Logger
}

// Watcher watches one directory for created, written or renamed-in files.
//
// # Description
//
// Events are batched: every event restarts the debounce timer, and when it
// fires the batch of matching paths is handed to the handler once. The
// predictor writes through a temporary file that is renamed on success, so
// the rename into place is the event that usually matters. Removals are not
// reported.
//
// The directory is created if missing so a watch can start before the first
// predictor run.
type Watcher struct {
	dir      string
	debounce time.Duration
	match    func(string) bool
	logger   *slog.Logger
}

// New creates a Watcher for dir.
func New(dir string, opts Options) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("watch directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve watch directory: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{dir: abs, debounce: opts.Debounce, match: opts.Match, logger: opts.Logger}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run blocks until ctx is done, delivering batches to h. A pending batch is
// flushed before Run returns. The returned error is nil on cancellation.
func (w *Watcher) Run(ctx context.Context, h Handler) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	return w.loop(ctx, fw.Events, fw.Errors, h)
}

func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, h Handler) error {
	pending := make(map[string]struct{})
	// Reset discards stale expirations, so the timer is never drained.
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		clear(pending)
		h(ctx, paths)
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			flush(context.WithoutCancel(ctx))
			return nil

		case ev, ok := <-events:
			if !ok {
				flush(ctx)
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.relevant(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("watch error", slog.String("dir", w.dir), slog.String("error", err.Error()))

		case <-timer.C:
			flush(ctx)
		}
	}
}

func (w *Watcher) relevant(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return w.match == nil || w.match(path)
}
