// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog loads the static description of a program's profiled paths.
//
// A profile description has one line per path:
//
//	<path-id> <frequency> <unused> <weight> <block-label> <block-label> ...
//
// The path id and weight are decimal. Block labels are opaque strings. A path
// that appears in the catalog is "acceleratable"; any other path id seen in a
// trace or a result table is excluded from analysis.
//
// # Block Tokens
//
// Block labels are interned into dense integer tokens in order of first
// appearance. The intern table belongs to the Catalog returned by Load, so two
// loads of the same file produce identical, independent token assignments.
// Tokens carry no meaning outside the catalog that issued them.
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/pathpredict/services/predict/discover"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
)

// DefaultFileName is the profile description written by the path profiler.
const DefaultFileName = "epp-sequences.txt"

const (
	colID     = 0
	colWeight = 3
	colBlocks = 4
)

// Weight is the number of elementary operations along one traversal of a path.
type Weight uint64

// BlockToken is the interned form of one basic-block label.
type BlockToken uint32

type entry struct {
	weight Weight
	blocks []BlockToken
}

// Catalog maps path ids to their weight and block sequence.
//
// Thread Safety: immutable after Load/Parse returns; safe for concurrent reads.
type Catalog struct {
	source  string
	paths   map[pathid.ID]entry
	labels  map[string]BlockToken
	ordered []string
}

// Discover finds the profile description for program under root.
//
// Zero or multiple matches wrap pathid.ErrData.
func Discover(root, program, fileName string) (string, error) {
	if fileName == "" {
		fileName = DefaultFileName
	}
	return discover.Unique(root, program, fileName)
}

// Load reads a profile description from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open profile %s: %v", pathid.ErrData, path, err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	c.source = path
	return c, nil
}

// Parse reads a profile description from r.
//
// # Description
//
// Blank lines are skipped. Every other line must have at least four
// whitespace-separated columns with a decimal path id in column 0 and a
// decimal weight in column 3. A path id may appear only once.
//
// # Outputs
//
//   - *Catalog: The parsed catalog with its own block intern table.
//   - error: Wraps pathid.ErrData for malformed or duplicate lines.
func Parse(r io.Reader) (*Catalog, error) {
	c := &Catalog{
		paths:  make(map[pathid.ID]entry),
		labels: make(map[string]BlockToken),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		cols := strings.Fields(scanner.Text())
		if len(cols) == 0 {
			continue
		}
		if len(cols) < colBlocks {
			return nil, fmt.Errorf("%w: line %d has %d columns, need at least %d",
				pathid.ErrData, lineNo, len(cols), colBlocks)
		}

		id, err := pathid.ParseDecimal(cols[colID])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if _, dup := c.paths[id]; dup {
			return nil, fmt.Errorf("%w: line %d repeats path %s", pathid.ErrData, lineNo, id)
		}

		w, err := strconv.ParseUint(cols[colWeight], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d weight %q: %v", pathid.ErrData, lineNo, cols[colWeight], err)
		}

		blocks := make([]BlockToken, 0, len(cols)-colBlocks)
		for _, label := range cols[colBlocks:] {
			blocks = append(blocks, c.intern(label))
		}
		c.paths[id] = entry{weight: Weight(w), blocks: blocks}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read profile: %v", pathid.ErrData, err)
	}
	return c, nil
}

func (c *Catalog) intern(label string) BlockToken {
	if tok, ok := c.labels[label]; ok {
		return tok
	}
	tok := BlockToken(len(c.ordered))
	c.labels[label] = tok
	c.ordered = append(c.ordered, label)
	return tok
}

// Source returns the file the catalog was loaded from, or "" for Parse.
func (c *Catalog) Source() string { return c.source }

// Len returns the number of paths.
func (c *Catalog) Len() int { return len(c.paths) }

// Contains reports whether id is acceleratable.
func (c *Catalog) Contains(id pathid.ID) bool {
	_, ok := c.paths[id]
	return ok
}

// Weight returns the weight of id. The second result is false for paths
// outside the catalog; callers must exclude those rather than treat them as 0.
func (c *Catalog) Weight(id pathid.ID) (Weight, bool) {
	e, ok := c.paths[id]
	return e.weight, ok
}

// Blocks returns the block-token sequence of id. The slice is shared and must
// not be modified.
func (c *Catalog) Blocks(id pathid.ID) ([]BlockToken, bool) {
	e, ok := c.paths[id]
	return e.blocks, ok
}

// Acceleratable reports whether every id is in the catalog.
func (c *Catalog) Acceleratable(ids ...pathid.ID) bool {
	for _, id := range ids {
		if !c.Contains(id) {
			return false
		}
	}
	return true
}

// TotalWeight sums the weights of ids. It returns false if any id is absent.
func (c *Catalog) TotalWeight(ids ...pathid.ID) (Weight, bool) {
	var sum Weight
	for _, id := range ids {
		w, ok := c.Weight(id)
		if !ok {
			return 0, false
		}
		sum += w
	}
	return sum, true
}

// token returns the token assigned to a block label.
func (c *Catalog) token(label string) (BlockToken, bool) {
	tok, ok := c.labels[label]
	return tok, ok
}

// Label returns the block label behind tok.
func (c *Catalog) Label(tok BlockToken) (string, bool) {
	if int(tok) >= len(c.ordered) {
		return "", false
	}
	return c.ordered[tok], true
}

// NumBlocks returns the number of distinct block labels interned.
func (c *Catalog) NumBlocks() int { return len(c.ordered) }
