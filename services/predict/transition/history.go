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
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
)

const tokenBytes = 4

// History is an immutable tuple of block tokens, oldest first.
//
// Tokens are packed big-endian at a fixed width, so History is usable as a map
// key and byte order equals element-wise lexicographic order, with a proper
// prefix sorting before any longer tuple.
type History string

// NewHistory packs tokens into a History.
func NewHistory(tokens ...catalog.BlockToken) History {
	buf := make([]byte, len(tokens)*tokenBytes)
	for i, tok := range tokens {
		binary.BigEndian.PutUint32(buf[i*tokenBytes:], uint32(tok))
	}
	return History(buf)
}

// Len returns the number of tokens.
func (h History) Len() int {
	return len(h) / tokenBytes
}

// At returns the i-th token.
func (h History) At(i int) catalog.BlockToken {
	return catalog.BlockToken(binary.BigEndian.Uint32([]byte(h[i*tokenBytes : (i+1)*tokenBytes])))
}

// Tokens unpacks the history.
func (h History) Tokens() []catalog.BlockToken {
	out := make([]catalog.BlockToken, h.Len())
	for i := range out {
		out[i] = h.At(i)
	}
	return out
}

// Compare orders histories lexicographically by token value.
func (h History) Compare(other History) int {
	return strings.Compare(string(h), string(other))
}

// String renders the tuple as "(a, b, c)".
func (h History) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < h.Len(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatUint(uint64(h.At(i)), 10))
	}
	sb.WriteByte(')')
	return sb.String()
}
