// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package predictability scores a target path from a predictor result table.
//
// A result table starts with a free-form header line whose last token is the
// number of distinct histories the predictor saw. Every following line is a
// four-column CSV record:
//
//	<history-hex>,<predicted>,<total>,<next-hex>
//
// Both hex columns are concatenations of 32-digit path ids.
package predictability

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/pathpredict/services/predict/catalog"
	"github.com/AleutianAI/pathpredict/services/predict/offload"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
)

// DefaultResultPattern names a task's result table for a history size.
const DefaultResultPattern = "%s-prediction-level%d.csv"

// ResultFileName returns the result table name for task name at level.
func ResultFileName(pattern, name string, level int) string {
	if pattern == "" {
		pattern = DefaultResultPattern
	}
	return fmt.Sprintf(pattern, name, level)
}

// Header names the fixed leading Stats fields in output order. History and
// next-path ids follow them.
var Header = []string{
	"name", "num_histories", "total_entries", "predicted", "ratio", "weight",
}

// Stats is the outcome of evaluating one result table.
type Stats struct {
	Name string `json:"name"`

	// NumHistories is the count from the header line.
	NumHistories uint64 `json:"num_histories"`

	// TotalEntries sums TotalCount over retained rows, or 1 if none.
	TotalEntries uint64 `json:"total_entries"`

	// Predicted is the winner's PredictedCount.
	Predicted uint64 `json:"predicted"`

	// Ratio is Predicted over the retained TotalCount sum. Undefined when no
	// row was retained.
	Ratio offload.Ratio `json:"ratio"`

	// Weight is the summed weight of the winner's paths.
	Weight catalog.Weight `json:"weight"`

	History []pathid.ID `json:"-"`
	Next    []pathid.ID `json:"-"`

	Rows     int `json:"rows"`
	Retained int `json:"retained"`
	Skipped  int `json:"skipped"`
}

// Fields returns the output record: Header fields, then the winner's
// history and next-path ids in decimal.
func (s Stats) Fields() []string {
	out := []string{
		s.Name,
		strconv.FormatUint(s.NumHistories, 10),
		strconv.FormatUint(s.TotalEntries, 10),
		strconv.FormatUint(s.Predicted, 10),
		s.Ratio.String(),
		strconv.FormatUint(uint64(s.Weight), 10),
	}
	for _, id := range s.History {
		out = append(out, id.String())
	}
	for _, id := range s.Next {
		out = append(out, id.String())
	}
	return out
}

type row struct {
	history   []pathid.ID
	predicted uint64
	total     uint64
	next      []pathid.ID
	weight    catalog.Weight
}

// score is predicted*weight as an exact 128-bit product.
func (r row) score() (hi, lo uint64) {
	return bits.Mul64(r.predicted, uint64(r.weight))
}

func (r row) beats(other row) bool {
	ah, al := r.score()
	bh, bl := other.score()
	return ah > bh || (ah == bh && al > bl)
}

// EvaluateFile evaluates the result table at path.
//
// A missing or empty file wraps pathid.ErrData. Batch callers that treat
// such files as not yet computed should check discover.NonEmpty first.
func EvaluateFile(name string, target pathid.ID, path string, cat *catalog.Catalog, logger *slog.Logger) (Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: result table %s: %v", pathid.ErrData, path, err)
	}
	if info.Size() == 0 {
		return Stats{}, fmt.Errorf("%w: result table %s is empty", pathid.ErrData, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: open result table %s: %v", pathid.ErrData, path, err)
	}
	defer f.Close()

	st, err := Evaluate(name, target, f, cat, logger)
	if err != nil {
		return st, fmt.Errorf("result table %s: %w", path, err)
	}
	return st, nil
}

// Evaluate selects the heaviest-weighted retained row of a result table.
//
// # Description
//
// A row is retained only when its history starts with target and every id in
// its history and next path is in cat. Rows starting with another path are
// ignored. Rows starting with target that name an uncataloged path are
// skipped, logged, and counted in Stats.Skipped.
//
// The winner maximizes PredictedCount * (sum of weights over history and next
// path). The first row in file order wins a tie.
//
// # Outputs
//
//   - Stats: With no retained rows TotalEntries is 1, Ratio is undefined, and
//     the winner fields are zero or empty.
//   - error: Wraps pathid.ErrData for an empty source, a bad header, or a row
//     that cannot be decoded. One bad row fails the whole table.
func Evaluate(name string, target pathid.ID, r io.Reader, cat *catalog.Catalog, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	st := Stats{Name: name}

	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return st, fmt.Errorf("%w: read header: %v", pathid.ErrData, err)
	}
	tokens := strings.Fields(header)
	if len(tokens) == 0 {
		return st, fmt.Errorf("%w: missing header line", pathid.ErrData)
	}
	st.NumHistories, err = strconv.ParseUint(tokens[len(tokens)-1], 10, 64)
	if err != nil {
		return st, fmt.Errorf("%w: header history count %q: %v", pathid.ErrData, tokens[len(tokens)-1], err)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = 4
	cr.ReuseRecord = true

	var (
		best  row
		found bool
		sum   uint64
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("%w: %v", pathid.ErrData, err)
		}
		st.Rows++
		line, _ := cr.FieldPos(0)

		rw, err := parseRow(rec)
		if err != nil {
			return st, fmt.Errorf("line %d: %w", line, err)
		}
		if rw.history[0] != target {
			continue
		}

		all := append(append(make([]pathid.ID, 0, len(rw.history)+len(rw.next)), rw.history...), rw.next...)
		w, ok := cat.TotalWeight(all...)
		if !ok {
			st.Skipped++
			logger.Debug("skip non-acceleratable row",
				slog.Int("line", line),
				slog.String("history", pathid.EncodeChunks(rw.history)),
				slog.String("next", pathid.EncodeChunks(rw.next)))
			continue
		}
		rw.weight = w
		st.Retained++
		sum += rw.total
		if !found || rw.beats(best) {
			best = rw
			found = true
		}
	}

	if st.Skipped > 0 {
		logger.Info("skipped non-acceleratable rows",
			slog.String("task", name),
			slog.Int("skipped", st.Skipped),
			slog.Int("rows", st.Rows))
	}

	if !found {
		st.TotalEntries = 1
		return st, nil
	}
	st.TotalEntries = sum
	st.Predicted = best.predicted
	st.Ratio = offload.Ratio{Num: best.predicted, Den: sum}
	st.Weight = best.weight
	st.History = best.history
	st.Next = best.next
	return st, nil
}

func parseRow(rec []string) (row, error) {
	var rw row
	var err error
	if rw.history, err = pathid.DecodeChunks(rec[0]); err != nil {
		return rw, fmt.Errorf("history: %w", err)
	}
	if rw.predicted, err = strconv.ParseUint(strings.TrimSpace(rec[1]), 10, 64); err != nil {
		return rw, fmt.Errorf("%w: predicted count %q: %v", pathid.ErrData, rec[1], err)
	}
	if rw.total, err = strconv.ParseUint(strings.TrimSpace(rec[2]), 10, 64); err != nil {
		return rw, fmt.Errorf("%w: total count %q: %v", pathid.ErrData, rec[2], err)
	}
	if rw.next, err = pathid.DecodeChunks(rec[3]); err != nil {
		return rw, fmt.Errorf("next path: %w", err)
	}
	return rw, nil
}
