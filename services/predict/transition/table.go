// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transition counts which path follows each observed history.
//
// The Table is sparse: only (history, successor) pairs that were actually
// recorded exist, and every query for an absent pair returns zero without
// creating it. Counts only grow.
//
// The Table also tracks the target history set, the histories that were
// immediately followed by the designated target path at least once. That
// set is exactly { h : HitsOn(h, target) > 0 }.
package transition

import (
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
)

// Table is a history -> successor frequency table for one target path.
//
// Thread Safety: not safe for concurrent use. A Table belongs to a single
// analysis task.
type Table struct {
	target  pathid.ID
	counts  map[History]map[pathid.ID]uint64
	totals  map[History]uint64
	targets map[History]struct{}
	records uint64
}

// NewTable returns an empty table for target.
func NewTable(target pathid.ID) *Table {
	return &Table{
		target:  target,
		counts:  make(map[History]map[pathid.ID]uint64),
		totals:  make(map[History]uint64),
		targets: make(map[History]struct{}),
	}
}

// Target returns the path the table tracks.
func (t *Table) Target() pathid.ID { return t.target }

// Record counts one occurrence of next following h.
func (t *Table) Record(h History, next pathid.ID) {
	succ, ok := t.counts[h]
	if !ok {
		succ = make(map[pathid.ID]uint64, 1)
		t.counts[h] = succ
	}
	succ[next]++
	t.totals[h]++
	t.records++
	if next == t.target {
		t.targets[h] = struct{}{}
	}
}

// HitsOn returns how many times id followed h.
func (t *Table) HitsOn(h History, id pathid.ID) uint64 {
	return t.counts[h][id]
}

// TotalAt returns how many times any path followed h.
func (t *Table) TotalAt(h History) uint64 {
	return t.totals[h]
}

// TargetHistories returns the target history set in unspecified order.
func (t *Table) TargetHistories() []History {
	out := make([]History, 0, len(t.targets))
	for h := range t.targets {
		out = append(out, h)
	}
	return out
}

// isTargetHistory reports whether h has preceded the target.
func (t *Table) isTargetHistory(h History) bool {
	_, ok := t.targets[h]
	return ok
}

// successors returns a copy of the successor counts recorded for h.
func (t *Table) successors(h History) map[pathid.ID]uint64 {
	src := t.counts[h]
	out := make(map[pathid.ID]uint64, len(src))
	for id, n := range src {
		out[id] = n
	}
	return out
}

// histories returns every recorded history in unspecified order.
func (t *Table) histories() []History {
	out := make([]History, 0, len(t.counts))
	for h := range t.counts {
		out = append(out, h)
	}
	return out
}

// Len returns the number of distinct histories.
func (t *Table) Len() int { return len(t.counts) }

// Records returns the number of Record calls.
func (t *Table) Records() uint64 { return t.records }
