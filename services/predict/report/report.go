// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders batch outcomes as CSV records, JSON lines, or a
// terminal table.
//
// CSV is the machine format: one comma-joined record per task, fields in the
// fixed order of offload.RecordHeader or predictability.Header, no status
// column. Tasks whose input is not computed yet produce no record.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/pathpredict/services/predict/analysis"
	"github.com/AleutianAI/pathpredict/services/predict/offload"
	"github.com/AleutianAI/pathpredict/services/predict/predictability"
)

// Format selects the output rendering.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV, FormatTable, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want auto, csv, table or json)", s)
	}
}

// Resolve turns FormatAuto into FormatTable for terminals and FormatCSV
// otherwise.
func (f Format) Resolve(w io.Writer) Format {
	if f != FormatAuto && f != "" {
		return f
	}
	if file, ok := w.(*os.File); ok {
		fd := file.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return FormatTable
		}
	}
	return FormatCSV
}

var (
	colorTeal  = lipgloss.Color("#2CD7C7")
	colorDeep  = lipgloss.Color("#16858E")
	colorGold  = lipgloss.Color("#F4D03F")
	colorRed   = lipgloss.Color("#E74C3C")
	colorSlate = lipgloss.Color("#2C4A54")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTeal).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func statusStyle(s analysis.Status) lipgloss.Style {
	switch s {
	case analysis.StatusComplete:
		return cellStyle.Foreground(colorTeal)
	case analysis.StatusPartial:
		return cellStyle.Foreground(colorGold)
	case analysis.StatusFailed:
		return cellStyle.Foreground(colorRed)
	default:
		return cellStyle.Foreground(colorSlate)
	}
}

// Writer renders outcomes to one destination.
type Writer struct {
	w      io.Writer
	format Format
	header bool
}

// NewWriter creates a Writer. FormatAuto is resolved against w. With header
// set, CSV output starts with a header record.
func NewWriter(w io.Writer, format Format, header bool) *Writer {
	return &Writer{w: w, format: format.Resolve(w), header: header}
}

// Format returns the resolved format.
func (rw *Writer) Format() Format { return rw.format }

type row struct {
	status analysis.Status
	fields []string
	json   any

	// cells overrides fields in the table rendering.
	cells []string
}

// Pip writes one record per live-path outcome.
func (rw *Writer) Pip(outs []analysis.Outcome) error {
	rows := make([]row, 0, len(outs))
	for _, o := range outs {
		rows = append(rows, row{
			status: o.Status,
			fields: o.Record.Fields(),
			json: struct {
				offload.Record
				Status analysis.Status `json:"status"`
				Cached bool            `json:"cached"`
				Error  string          `json:"error,omitempty"`
			}{o.Record, o.Status, o.Cached, errString(o.Err)},
		})
	}
	return rw.write(offload.RecordHeader, rows)
}

// Stats writes one record per evaluated result table. Not-computed tables
// are skipped.
func (rw *Writer) Stats(outs []analysis.StatsOutcome) error {
	header := append(append([]string{}, predictability.Header...), "history", "next")
	rows := make([]row, 0, len(outs))
	var numHistory, numNext int
	for _, o := range outs {
		if o.Status == analysis.StatusNotComputed {
			continue
		}
		numHistory = max(numHistory, len(o.Stats.History))
		numNext = max(numNext, len(o.Stats.Next))
		fields := o.Stats.Fields()
		rows = append(rows, row{
			status: o.Status,
			fields: fields,
			cells: append(fields[:len(predictability.Header):len(predictability.Header)],
				strings.Join(idStrings(o.Stats.History), " "),
				strings.Join(idStrings(o.Stats.Next), " ")),
			json: struct {
				predictability.Stats
				HistoryIDs []string        `json:"history"`
				NextIDs    []string        `json:"next"`
				Status     analysis.Status `json:"status"`
				Error      string          `json:"error,omitempty"`
			}{o.Stats, idStrings(o.Stats.History), idStrings(o.Stats.Next), o.Status, errString(o.Err)},
		})
	}
	return rw.writeWith(header, statsCSVHeader(numHistory, numNext), rows)
}

// statsCSVHeader names one column per history and next-path id, so the
// header is as wide as the widest record.
func statsCSVHeader(numHistory, numNext int) []string {
	h := append([]string{}, predictability.Header...)
	for i := range numHistory {
		h = append(h, fmt.Sprintf("history_%d", i))
	}
	for i := range numNext {
		h = append(h, fmt.Sprintf("next_%d", i))
	}
	return h
}

// Create writes one record per predictor invocation.
func (rw *Writer) Create(outs []analysis.CreateOutcome) error {
	rows := make([]row, 0, len(outs))
	for _, o := range outs {
		rows = append(rows, row{
			status: o.Status,
			fields: []string{o.Task.Name, o.ResultPath, o.Status.String(), errString(o.Err)},
			json: struct {
				Name   string          `json:"name"`
				Result string          `json:"result"`
				Status analysis.Status `json:"status"`
				Error  string          `json:"error,omitempty"`
			}{o.Task.Name, o.ResultPath, o.Status, errString(o.Err)},
		})
	}
	return rw.write([]string{"name", "result", "status", "error"}, rows)
}

// Tasks writes the resolved task list. Traces that cannot be resolved show
// the resolution error instead of a path.
func (rw *Writer) Tasks(tasks []analysis.Task, level int) error {
	rows := make([]row, 0, len(tasks))
	for _, t := range tasks {
		trace, err := t.ResolveTrace()
		status := analysis.StatusComplete
		if err != nil {
			trace, status = err.Error(), analysis.StatusFailed
		}
		program := t.Program
		if program == "" {
			program = t.Name
		}
		rows = append(rows, row{
			status: status,
			fields: []string{t.Name, program, t.Target.Hex32(), trace, t.ResultPath(level)},
			json: struct {
				Name    string `json:"name"`
				Program string `json:"program"`
				Target  string `json:"target"`
				Trace   string `json:"trace"`
				Result  string `json:"result"`
			}{t.Name, program, t.Target.Hex32(), trace, t.ResultPath(level)},
		})
	}
	return rw.write([]string{"name", "program", "target", "trace", "result"}, rows)
}

func (rw *Writer) write(header []string, rows []row) error {
	return rw.writeWith(header, header, rows)
}

// writeWith is write with a separate CSV header for records whose width
// varies.
func (rw *Writer) writeWith(header, csvHeader []string, rows []row) error {
	switch rw.format {
	case FormatJSON:
		enc := json.NewEncoder(rw.w)
		for _, r := range rows {
			if err := enc.Encode(r.json); err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
		}
		return nil
	case FormatTable:
		return rw.table(header, rows)
	default:
		cw := csv.NewWriter(rw.w)
		if rw.header {
			if err := cw.Write(csvHeader); err != nil {
				return err
			}
		}
		for _, r := range rows {
			if err := cw.Write(r.fields); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
}

// table renders a bordered table with a trailing status column.
func (rw *Writer) table(header []string, rows []row) error {
	cols := len(header)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDeep)).
		Headers(append(append([]string{}, header...), "status")...)

	for _, r := range rows {
		src := r.fields
		if r.cells != nil {
			src = r.cells
		}
		cells := make([]string, cols+1)
		copy(cells, src)
		cells[cols] = r.status.String()
		t.Row(cells...)
	}

	t.StyleFunc(func(i, col int) lipgloss.Style {
		if i == table.HeaderRow {
			return headerStyle
		}
		if col == cols && i >= 0 && i < len(rows) {
			return statusStyle(rows[i].status)
		}
		return cellStyle
	})

	_, err := fmt.Fprintln(rw.w, t.Render())
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func idStrings[T fmt.Stringer](ids []T) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
