// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger persists analysis results in an embedded BadgerDB.
//
// Replaying a large trace is the slowest step of a run, and its outcome
// depends only on the trace file and the analysis parameters. The result
// cache stores completed outcomes under a fingerprint of those inputs so a
// repeated run with the same cache directory skips the replay.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNoDir is returned by Open for an on-disk store without a directory.
var ErrNoDir = errors.New("cache directory is required")

// gcDiscardRatio is the discardable fraction of a value log file that makes
// it worth rewriting.
const gcDiscardRatio = 0.5

// Config describes where the result store lives.
type Config struct {
	// Dir holds the store files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the store in RAM only.
	InMemory bool

	// Logger receives BadgerDB's own messages at debug level and above.
	// Nil silences them.
	Logger *slog.Logger

	// GCInterval is the value log GC period. Zero disables GC.
	GCInterval time.Duration
}

// DefaultConfig returns the store configuration for an on-disk cache in dir.
//
// Outcomes can always be recomputed, so commits are not fsynced. GC only
// matters for long stats --watch sessions that share a pip cache.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, GCInterval: 10 * time.Minute}
}

// slogAdapter routes BadgerDB's printf-style logger into slog.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Errorf(f string, args ...any)   { a.l.Error(fmt.Sprintf(f, args...)) }
func (a slogAdapter) Warningf(f string, args ...any) { a.l.Warn(fmt.Sprintf(f, args...)) }
func (a slogAdapter) Infof(f string, args ...any)    { a.l.Debug(fmt.Sprintf(f, args...)) }
func (a slogAdapter) Debugf(f string, args ...any)   { a.l.Debug(fmt.Sprintf(f, args...)) }

// DB is an open result store.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	db *badger.DB

	stopGC context.CancelFunc
	gcDone sync.WaitGroup
}

// Open opens the store described by cfg, creating its directory if needed.
//
// # Outputs
//
//   - *DB: The open store. The caller must Close it.
//   - error: ErrNoDir, or a wrapped BadgerDB open failure such as a
//     directory locked by another process.
func Open(cfg Config) (*DB, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Dir == "":
		return nil, ErrNoDir
	default:
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Dir, err)
		}
	}
	opts = opts.WithSyncWrites(false).WithNumVersionsToKeep(1).WithLogger(nil)
	if cfg.Logger != nil {
		opts = opts.WithLogger(slogAdapter{cfg.Logger.With(slog.String("component", "badger"))})
	}

	raw, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result cache %s: %w", cfg.Dir, err)
	}
	d := &DB{db: raw, stopGC: func() {}}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ctx, cancel := context.WithCancel(context.Background())
		d.stopGC = cancel
		d.gcDone.Add(1)
		go d.collect(ctx, cfg.GCInterval, cfg.Logger)
	}
	return d, nil
}

// OpenInMemory opens a throwaway store. Its contents vanish on Close.
func OpenInMemory() (*DB, error) {
	return Open(Config{InMemory: true})
}

// Close stops GC and closes the store.
func (d *DB) Close() error {
	d.stopGC()
	d.gcDone.Wait()
	return d.db.Close()
}

// view runs fn in a read-only transaction unless ctx is already done.
func (d *DB) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// update runs fn in a read-write transaction unless ctx is already done.
func (d *DB) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

func (d *DB) collect(ctx context.Context, every time.Duration, logger *slog.Logger) {
	defer d.gcDone.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite: nothing to collect.
			if err := d.db.RunValueLogGC(gcDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("result cache GC failed", slog.String("error", err.Error()))
			}
		}
	}
}
