// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch runs independent analysis tasks on a bounded worker pool.
package dispatch

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Map calls fn for every index in [0, n) with at most workers calls in
// flight, and returns the results in index order.
//
// # Description
//
// Tasks are independent: fn never returns an error, so a failing task cannot
// cancel or abort its siblings. Completion order is unspecified; writing each
// result to its own slot fixes the output order after collection.
//
// fn must observe ctx itself. Once ctx is done, tasks that have not started
// yet still run, and see the cancelled ctx.
//
// # Inputs
//
//   - workers: Pool size. Values < 1 use runtime.NumCPU().
func Map[T any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) T) []T {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	results := make([]T, n)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			results[i] = fn(gCtx, i)
			return nil // tasks report failure in T, never here
		})
	}
	_ = g.Wait()
	return results
}
