// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package replay

import (
	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/transition"
)

// Window is a fixed-capacity FIFO of block tokens. Pushing into a full window
// evicts the oldest token.
type Window struct {
	buf   []catalog.BlockToken
	start int
	n     int
}

// NewWindow returns an empty window holding at most size tokens.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]catalog.BlockToken, size)}
}

// Cap returns the window length L.
func (w *Window) Cap() int { return len(w.buf) }

// Len returns the number of tokens currently held.
func (w *Window) Len() int { return w.n }

// Full reports whether the window holds L tokens.
func (w *Window) Full() bool { return w.n == len(w.buf) }

// Push appends tokens in order.
func (w *Window) Push(tokens ...catalog.BlockToken) {
	for _, tok := range tokens {
		if w.n < len(w.buf) {
			w.buf[(w.start+w.n)%len(w.buf)] = tok
			w.n++
			continue
		}
		w.buf[w.start] = tok
		w.start = (w.start + 1) % len(w.buf)
	}
}

// PushRepeated appends tokens count times. Only the last L tokens can
// survive, so the work is bounded by the window size.
func (w *Window) PushRepeated(tokens []catalog.BlockToken, count uint64) {
	if len(tokens) == 0 || count == 0 {
		return
	}
	need := uint64((len(w.buf) + len(tokens) - 1) / len(tokens))
	if count > need {
		count = need
	}
	for i := uint64(0); i < count; i++ {
		w.Push(tokens...)
	}
}

// Snapshot returns the current contents, oldest first.
func (w *Window) Snapshot() transition.History {
	tokens := make([]catalog.BlockToken, w.n)
	for i := range tokens {
		tokens[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return transition.NewHistory(tokens...)
}
