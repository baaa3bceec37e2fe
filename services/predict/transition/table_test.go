// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transition

import (
	"math/rand"
	"testing"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_RoundTripAndOrder(t *testing.T) {
	h := NewHistory(1, 70000, 3)
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []catalog.BlockToken{1, 70000, 3}, h.Tokens())
	assert.Equal(t, "(1, 70000, 3)", h.String())

	assert.Equal(t, -1, NewHistory(1, 2).Compare(NewHistory(1, 3)))
	assert.Equal(t, 1, NewHistory(256).Compare(NewHistory(255)), "compares values, not bytes of decimal text")
	assert.Equal(t, -1, NewHistory(1).Compare(NewHistory(1, 0)), "prefix sorts first")
	assert.Equal(t, 0, NewHistory(4, 4).Compare(NewHistory(4, 4)))
	assert.Equal(t, "()", NewHistory().String())
}

func TestTable_RecordAndQuery(t *testing.T) {
	target := pathid.From64(1)
	tbl := NewTable(target)

	h1 := NewHistory(5)
	h2 := NewHistory(6)
	tbl.Record(h1, target)
	tbl.Record(h1, target)
	tbl.Record(h1, pathid.From64(2))
	tbl.Record(h2, pathid.From64(2))

	assert.Equal(t, uint64(2), tbl.HitsOn(h1, target))
	assert.Equal(t, uint64(1), tbl.HitsOn(h1, pathid.From64(2)))
	assert.Equal(t, uint64(3), tbl.TotalAt(h1))
	assert.Equal(t, uint64(1), tbl.TotalAt(h2))
	assert.Equal(t, uint64(4), tbl.Records())
	assert.Equal(t, 2, tbl.Len())

	assert.ElementsMatch(t, []History{h1}, tbl.TargetHistories())
	assert.True(t, tbl.isTargetHistory(h1))
	assert.False(t, tbl.isTargetHistory(h2))
}

func TestTable_AbsentEntriesAreNotMaterialized(t *testing.T) {
	tbl := NewTable(pathid.From64(1))
	missing := NewHistory(9, 9)

	assert.Zero(t, tbl.HitsOn(missing, pathid.From64(1)))
	assert.Zero(t, tbl.TotalAt(missing))
	assert.Empty(t, tbl.successors(missing))
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_SuccessorCountsAreCopied(t *testing.T) {
	tbl := NewTable(pathid.From64(1))
	h := NewHistory(1)
	tbl.Record(h, pathid.From64(3))

	succ := tbl.successors(h)
	succ[pathid.From64(3)] = 100
	assert.Equal(t, uint64(1), tbl.HitsOn(h, pathid.From64(3)))
}

// The target set must equal { h : HitsOn(h, target) > 0 } for any sequence
// of records.
func TestTable_TargetSetMatchesHits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	target := pathid.From64(3)
	tbl := NewTable(target)

	for i := 0; i < 5000; i++ {
		h := NewHistory(catalog.BlockToken(rng.Intn(20)), catalog.BlockToken(rng.Intn(4)))
		tbl.Record(h, pathid.From64(uint64(rng.Intn(6))))
	}

	want := map[History]bool{}
	for _, h := range tbl.histories() {
		if tbl.HitsOn(h, target) > 0 {
			want[h] = true
		}
		var sum uint64
		for _, n := range tbl.successors(h) {
			sum += n
		}
		require.Equal(t, sum, tbl.TotalAt(h))
	}

	got := map[History]bool{}
	for _, h := range tbl.TargetHistories() {
		got[h] = true
	}
	assert.Equal(t, want, got)
}
