// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package offload

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
	"github.com/AleutianAI/pathpredict/services/predict/transition"
)

var (
	target = pathid.From64(1)
	other  = pathid.From64(2)
)

func record(tbl *transition.Table, h transition.History, next pathid.ID, n int) {
	for i := 0; i < n; i++ {
		tbl.Record(h, next)
	}
}

func scenarioD() (*transition.Table, []transition.History) {
	tbl := transition.NewTable(target)
	hs := []transition.History{
		transition.NewHistory(5, 0),
		transition.NewHistory(2, 7),
		transition.NewHistory(3, 1),
		transition.NewHistory(9, 9),
		transition.NewHistory(4, 4),
	}
	for i, hits := range []int{10, 8, 8, 3, 1} {
		record(tbl, hs[i], target, hits)
	}
	record(tbl, hs[0], other, 4)
	record(tbl, hs[2], other, 1)
	record(tbl, transition.NewHistory(8, 8), other, 50)
	return tbl, hs
}

func TestSelect_ScenarioD(t *testing.T) {
	tbl, hs := scenarioD()

	sel := Select(tbl, 2)
	require.Len(t, sel.Offloaded, 2)
	assert.Equal(t, hs[0], sel.Offloaded[0].History)
	assert.Equal(t, hs[2], sel.Offloaded[1].History, "(3, 1) beats (2, 7) on the descending tie-break")

	assert.Equal(t, 5, sel.Candidates)
	assert.Equal(t, uint64(30), sel.TotalHits)
	assert.Equal(t, uint64(18), sel.GoodOffloads)
	assert.Equal(t, uint64(14+9), sel.TotalOffloads, "mispredictions count toward total_offloads")

	p, err := sel.Precision().Value()
	require.NoError(t, err)
	assert.InDelta(t, 18.0/23.0, p, 1e-12)
	r, err := sel.Recall().Value()
	require.NoError(t, err)
	assert.InDelta(t, 18.0/30.0, r, 1e-12)
}

func TestSelect_CapLargerThanCandidates(t *testing.T) {
	tbl, _ := scenarioD()
	sel := Select(tbl, 100)
	assert.Len(t, sel.Offloaded, 5)
	assert.Equal(t, sel.TotalHits, sel.GoodOffloads)

	assert.Empty(t, Select(tbl, 0).Offloaded)
	assert.Empty(t, Select(tbl, -3).Offloaded)
}

func TestSelect_EmptyTableIsUndefined(t *testing.T) {
	sel := Select(transition.NewTable(target), DefaultCap)
	assert.Empty(t, sel.Offloaded)

	_, err := sel.Precision().Value()
	assert.ErrorIs(t, err, ErrUndefinedMetric)
	_, err = sel.Recall().Value()
	assert.ErrorIs(t, err, ErrUndefinedMetric)

	rec := NewRecord("empty", sel)
	assert.Equal(t, []string{"empty", "0", "0", "0", "0", "undefined", "undefined"}, rec.Fields())
}

func TestSelect_InvariantsAndDeterminism(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for round := 0; round < 50; round++ {
		tbl := transition.NewTable(target)
		for i := 0; i < 300; i++ {
			h := transition.NewHistory(catalog.BlockToken(rng.Intn(6)), catalog.BlockToken(rng.Intn(6)))
			tbl.Record(h, pathid.From64(uint64(rng.Intn(3)+1)))
		}
		limit := rng.Intn(10)

		first := Select(tbl, limit)
		assert.LessOrEqual(t, first.GoodOffloads, first.TotalOffloads)
		assert.LessOrEqual(t, first.GoodOffloads, first.TotalHits)
		assert.LessOrEqual(t, len(first.Offloaded), min(limit, len(tbl.TargetHistories())))

		for rerun := 0; rerun < 3; rerun++ {
			assert.Equal(t, first, Select(tbl, limit))
		}
	}
}

func TestRank_TotalOrder(t *testing.T) {
	tbl, hs := scenarioD()
	assert.Equal(t, []transition.History{hs[0], hs[2], hs[1], hs[3], hs[4]}, Rank(tbl))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, "0.5", Ratio{Num: 1, Den: 2}.String())
	assert.Equal(t, "0", Ratio{Num: 0, Den: 7}.String(), "a computed zero is defined")
	assert.Equal(t, UndefinedText, Ratio{}.String())
	assert.True(t, Ratio{Den: 1}.Defined())
	assert.False(t, Ratio{Num: 3}.Defined())
}

func TestZeroRecord(t *testing.T) {
	assert.Equal(t, []string{"x", "0", "0", "0", "0", "undefined", "undefined"}, ZeroRecord("x").Fields())
	assert.Len(t, RecordHeader, len(ZeroRecord("x").Fields()))
}
