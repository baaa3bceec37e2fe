// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package offload picks the history contexts worth accelerating for a target
// path and scores the choice.
//
// Candidates are the target history set of a transition.Table. They are
// ranked by how often they were followed by the target, with ties broken by
// descending lexicographic order of the history tokens, so a ranking is a
// deterministic total order and reruns give identical output.
package offload

import (
	"slices"
	"strconv"

	"github.com/AleutianAI/pathpredict/services/predict/transition"
)

// DefaultCap is the default number of offloaded histories.
const DefaultCap = 8

// Offload is one selected history.
type Offload struct {
	History transition.History
	// Hits is how often the target followed History.
	Hits uint64
	// Total is how often any path followed History.
	Total uint64
}

// Selection is the capped offload set and its aggregates.
type Selection struct {
	Candidates    int
	Offloaded     []Offload
	TotalHits     uint64
	GoodOffloads  uint64
	TotalOffloads uint64
}

// Precision is good_offloads / total_offloads.
func (s Selection) Precision() Ratio {
	return Ratio{Num: s.GoodOffloads, Den: s.TotalOffloads}
}

// Recall is good_offloads / total_hits.
func (s Selection) Recall() Ratio {
	return Ratio{Num: s.GoodOffloads, Den: s.TotalHits}
}

// Rank orders the target history set of t, best first.
func Rank(t *transition.Table) []transition.History {
	target := t.Target()
	ranked := t.TargetHistories()
	slices.SortFunc(ranked, func(a, b transition.History) int {
		ha, hb := t.HitsOn(a, target), t.HitsOn(b, target)
		switch {
		case ha > hb:
			return -1
		case ha < hb:
			return 1
		}
		return b.Compare(a)
	})
	return ranked
}

// Select offloads the top limit histories of t.
//
// # Description
//
// total_hits sums target hits over the whole target history set. The top
// min(limit, candidates) histories by Rank are offloaded; good_offloads sums
// their target hits and total_offloads sums every successor count, so
// mispredictions are included. All sums come from the table alone.
//
// # Inputs
//
//   - t: The transition table for one target.
//   - limit: Maximum offload set size. Negative is treated as 0.
//
// # Outputs
//
//   - Selection: An empty table yields an empty selection.
func Select(t *transition.Table, limit int) Selection {
	target := t.Target()
	ranked := Rank(t)

	sel := Selection{Candidates: len(ranked)}
	for _, h := range ranked {
		sel.TotalHits += t.HitsOn(h, target)
	}

	n := min(max(limit, 0), len(ranked))
	sel.Offloaded = make([]Offload, 0, n)
	for _, h := range ranked[:n] {
		o := Offload{History: h, Hits: t.HitsOn(h, target), Total: t.TotalAt(h)}
		sel.Offloaded = append(sel.Offloaded, o)
		sel.GoodOffloads += o.Hits
		sel.TotalOffloads += o.Total
	}
	return sel
}

// RecordHeader names the Record fields in output order.
var RecordHeader = []string{
	"name", "offloaded", "total_hits", "good_offloads", "total_offloads", "precision", "recall",
}

// Record is the per-target output row of the live path.
type Record struct {
	Name          string `json:"name"`
	Offloaded     int    `json:"offloaded"`
	TotalHits     uint64 `json:"total_hits"`
	GoodOffloads  uint64 `json:"good_offloads"`
	TotalOffloads uint64 `json:"total_offloads"`
	Precision     Ratio  `json:"precision"`
	Recall        Ratio  `json:"recall"`
}

// NewRecord builds the output row for a selection.
func NewRecord(name string, sel Selection) Record {
	return Record{
		Name:          name,
		Offloaded:     len(sel.Offloaded),
		TotalHits:     sel.TotalHits,
		GoodOffloads:  sel.GoodOffloads,
		TotalOffloads: sel.TotalOffloads,
		Precision:     sel.Precision(),
		Recall:        sel.Recall(),
	}
}

// ZeroRecord is the row emitted when a task produced nothing usable.
func ZeroRecord(name string) Record {
	return Record{Name: name}
}

// Fields returns the row in RecordHeader order.
func (r Record) Fields() []string {
	return []string{
		r.Name,
		strconv.Itoa(r.Offloaded),
		strconv.FormatUint(r.TotalHits, 10),
		strconv.FormatUint(r.GoodOffloads, 10),
		strconv.FormatUint(r.TotalOffloads, 10),
		r.Precision.String(),
		r.Recall.String(),
	}
}
