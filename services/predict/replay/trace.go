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
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/AleutianAI/pathpredict/services/predict/discover"
	"github.com/AleutianAI/pathpredict/services/predict/pathid"
)

// DefaultTraceFileName is the compressed trace written by the tracer.
const DefaultTraceFileName = "path-profile-trace.gz"

var gzipMagic = []byte{0x1f, 0x8b}

// DiscoverTrace finds the trace for program under root.
func DiscoverTrace(root, program, fileName string) (string, error) {
	if fileName == "" {
		fileName = DefaultTraceFileName
	}
	return discover.Unique(root, program, fileName)
}

type traceReader struct {
	io.Reader
	closers []io.Closer
}

func (t *traceReader) Close() error {
	var first error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenTrace opens a trace file, decompressing it when it starts with the gzip
// magic bytes. Plain-text traces are returned as is.
func OpenTrace(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open trace %s: %v", pathid.ErrData, path, err)
	}
	return NewTraceReader(f)
}

// NewTraceReader wraps rc like OpenTrace. Closing the result closes rc.
func NewTraceReader(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(rc, 256*1024)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		rc.Close()
		return nil, fmt.Errorf("%w: read trace header: %v", pathid.ErrData, err)
	}
	if !bytes.Equal(head, gzipMagic) {
		return &traceReader{Reader: br, closers: []io.Closer{rc}}, nil
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%w: gzip trace: %v", pathid.ErrData, err)
	}
	return &traceReader{Reader: zr, closers: []io.Closer{rc, zr}}, nil
}
