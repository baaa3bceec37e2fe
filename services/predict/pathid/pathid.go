// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathid defines the 128-bit path identifier shared by every
// pathpredict component, plus its textual encodings.
//
// Path identifiers are assigned by the path profiler and routinely exceed
// 64 bits, so the type is backed by a full 128-bit unsigned integer. Three
// encodings are in use:
//
//   - decimal, in profile descriptions and in report output
//   - free-width hexadecimal, in trace streams
//   - fixed 32-digit hexadecimal, in predictor arguments and result tables
package pathid

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"lukechampine.com/uint128"
)

// HexWidth is the number of hex digits in one fixed-width path id chunk.
const HexWidth = 32

// ErrData marks input that is missing, empty, ambiguous, or cannot be decoded.
//
// Every package that reads external data wraps this sentinel so callers can
// test for it with errors.Is regardless of which reader failed.
var ErrData = errors.New("data error")

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ID identifies one statically determined acyclic path.
//
// The zero value is path 0, which is a valid identifier. ID is comparable and
// may be used as a map key.
type ID struct {
	v uint128.Uint128
}

// New builds an ID from its high and low 64-bit halves.
func New(hi, lo uint64) ID {
	return ID{v: uint128.New(lo, hi)}
}

// From64 builds an ID that fits in 64 bits.
func From64(x uint64) ID {
	return ID{v: uint128.From64(x)}
}

// Hi returns the upper 64 bits.
func (id ID) Hi() uint64 { return id.v.Hi }

// Lo returns the lower 64 bits.
func (id ID) Lo() uint64 { return id.v.Lo }

// Cmp compares two ids numerically, returning -1, 0 or +1.
func (id ID) Cmp(other ID) int {
	return id.v.Cmp(other.v)
}

// String returns the decimal form, matching profile descriptions.
func (id ID) String() string {
	return id.v.String()
}

// Hex32 returns the id as exactly 32 lowercase hex digits, left-padded with
// zeros. This is the form the external predictor expects for its target.
func (id ID) Hex32() string {
	return fmt.Sprintf("%016x%016x", id.v.Hi, id.v.Lo)
}

// ParseHex parses a hexadecimal id of 1 to 32 digits.
//
// Case is ignored and an optional "0x" prefix is accepted. Errors wrap ErrData.
func ParseHex(s string) (ID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" || len(s) > HexWidth {
		return ID{}, fmt.Errorf("%w: hex path id %q must have 1-%d digits", ErrData, s, HexWidth)
	}
	padded := strings.Repeat("0", HexWidth-len(s)) + s
	hi, err := strconv.ParseUint(padded[:16], 16, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: hex path id %q: %v", ErrData, s, err)
	}
	lo, err := strconv.ParseUint(padded[16:], 16, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: hex path id %q: %v", ErrData, s, err)
	}
	return New(hi, lo), nil
}

// ParseDecimal parses a non-negative base-10 id that fits in 128 bits.
// Errors wrap ErrData.
func ParseDecimal(s string) (ID, error) {
	s = strings.TrimSpace(s)
	// Some upstream generators append a long-literal suffix.
	s = strings.TrimSuffix(strings.TrimSuffix(s, "L"), "l")
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || s == "" || s[0] == '+' {
		return ID{}, fmt.Errorf("%w: decimal path id %q", ErrData, s)
	}
	if b.Sign() < 0 || b.Cmp(maxUint128) > 0 {
		return ID{}, fmt.Errorf("%w: decimal path id %q out of 128-bit range", ErrData, s)
	}
	mask := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(b, mask).Uint64()
	hi := new(big.Int).Rsh(b, 64).Uint64()
	return New(hi, lo), nil
}

// Parse accepts either a "0x"-prefixed hex id or a decimal id. It is the
// form used in task configuration.
func Parse(s string) (ID, error) {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X") {
		return ParseHex(t)
	}
	return ParseDecimal(t)
}

// DecodeChunks splits a concatenation of 32-digit hex ids into its parts.
//
// Surrounding whitespace is ignored. An empty string, or one whose length is
// not a whole number of chunks, wraps ErrData.
func DecodeChunks(s string) ([]ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty path id sequence", ErrData)
	}
	if len(s)%HexWidth != 0 {
		return nil, fmt.Errorf("%w: path id sequence of %d digits is not a multiple of %d",
			ErrData, len(s), HexWidth)
	}
	ids := make([]ID, 0, len(s)/HexWidth)
	for i := 0; i < len(s); i += HexWidth {
		id, err := ParseHex(s[i : i+HexWidth])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EncodeChunks is the inverse of DecodeChunks.
func EncodeChunks(ids []ID) string {
	var sb strings.Builder
	sb.Grow(len(ids) * HexWidth)
	for _, id := range ids {
		sb.WriteString(id.Hex32())
	}
	return sb.String()
}
