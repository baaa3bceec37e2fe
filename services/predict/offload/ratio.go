// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package offload

import (
	"errors"
	"strconv"
)

// ErrUndefinedMetric is returned for a ratio whose denominator is zero.
var ErrUndefinedMetric = errors.New("undefined metric: zero denominator")

// UndefinedText is how an undefined ratio is printed.
const UndefinedText = "undefined"

// Ratio is an exact num/den pair. A zero denominator is undefined, which is
// distinct from a computed zero.
type Ratio struct {
	Num uint64 `json:"num"`
	Den uint64 `json:"den"`
}

// Defined reports whether the denominator is non-zero.
func (r Ratio) Defined() bool { return r.Den != 0 }

// Value returns Num/Den, or ErrUndefinedMetric.
func (r Ratio) Value() (float64, error) {
	if r.Den == 0 {
		return 0, ErrUndefinedMetric
	}
	return float64(r.Num) / float64(r.Den), nil
}

// String formats the value with the shortest exact representation, or
// "undefined".
func (r Ratio) String() string {
	v, err := r.Value()
	if err != nil {
		return UndefinedText
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
