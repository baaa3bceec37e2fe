// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discover locates per-program input files laid out as
// root/program/<run>/file by the profiling framework.
package discover

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/pathpredict/services/predict/pathid"
)

// Pattern returns the glob used to find file for program under root.
func Pattern(root, program, file string) string {
	return filepath.Join(root, program, "*", file)
}

// Unique resolves root/program/*/file to exactly one path.
//
// # Outputs
//
//   - string: The single matching path.
//   - error: Wraps pathid.ErrData when the glob matches zero files or more
//     than one file, or when the pattern itself is malformed.
func Unique(root, program, file string) (string, error) {
	pattern := Pattern(root, program, file)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("%w: bad pattern %s: %v", pathid.ErrData, pattern, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no file matches %s", pathid.ErrData, pattern)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %d files match %s, expected one", pathid.ErrData, len(matches), pattern)
	}
}

// NonEmpty reports whether path names an existing regular file with data.
// Missing and zero-length files are "not yet produced".
func NonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}
