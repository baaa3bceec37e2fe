// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pathpredict measures how predictable hot program paths are and
// which preceding histories are worth offloading.
//
// Usage:
//
//	pathpredict init                      # write ./pathpredict.yaml
//	pathpredict tasks                     # show resolved tasks
//	pathpredict pip --size 2 --cap 8      # replay traces, select offloads
//	pathpredict create --size 2           # run the native predictor
//	pathpredict stats --size 2 --watch    # score predictor result tables
//
// Records go to stdout: CSV when piped, a table on a terminal. Logs go to
// stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := a.close(closeCtx); cerr != nil {
		fmt.Fprintf(os.Stderr, "pathpredict: %v\n", cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pathpredict: %v\n", err)
		os.Exit(1)
	}
}
