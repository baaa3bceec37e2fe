// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMap_PreservesIndexOrder(t *testing.T) {
	got := Map(context.Background(), 4, 20, func(_ context.Context, i int) int {
		// Later indices finish first.
		time.Sleep(time.Duration(20-i) * time.Millisecond)
		return i * i
	})
	for i, v := range got {
		assert.Equal(t, i*i, v)
	}
}

func TestMap_RespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	Map(context.Background(), 3, 30, func(_ context.Context, _ int) struct{} {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}
	})
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestMap_DefaultWorkersAndEmpty(t *testing.T) {
	assert.Empty(t, Map(context.Background(), 0, 0, func(context.Context, int) int { return 1 }))
	assert.Equal(t, []int{1, 1}, Map(context.Background(), -1, 2, func(context.Context, int) int { return 1 }))
}
