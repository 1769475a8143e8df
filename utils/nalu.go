// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import "bytes"

var (
	startCode3 = []byte{0x0, 0x0, 0x1}
	startCode4 = []byte{0x0, 0x0, 0x0, 0x1}
)

// EBSPToRBSP makes a copy of a NAL unit with the emulation prevention
// bytes (0x000003) removed.
func EBSPToRBSP(from []byte) []byte {
	from = RemoveNaluSeparator(from)
	to := make([]byte, 0, len(from))
	zeros := 0
	for _, b := range from {
		if zeros >= 2 && b == 3 {
			zeros = 0
			continue
		}
		to = append(to, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return to
}

// RemoveNaluSeparator 移除 NALU 分隔符 0x00000001 或 0x000001
func RemoveNaluSeparator(nalu []byte) []byte {
	if bytes.HasPrefix(nalu, startCode4) {
		return nalu[4:]
	}
	if bytes.HasPrefix(nalu, startCode3) {
		return nalu[3:]
	}
	return nalu
}

// SplitAnnexB splits an in-memory Annex-B byte stream into NAL units.
// The units keep their emulation prevention bytes; trailing zero bytes
// of a unit are dropped and empty units are skipped.
func SplitAnnexB(buf []byte) [][]byte {
	var units [][]byte
	start := -1
	for i := 0; i+2 < len(buf); {
		if buf[i+2] > 1 {
			i += 3
			continue
		}
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			if start >= 0 {
				if unit := trimTrailingZeros(buf[start:i]); len(unit) > 0 {
					units = append(units, unit)
				}
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(buf) {
		if unit := trimTrailingZeros(buf[start:]); len(unit) > 0 {
			units = append(units, unit)
		}
	}
	return units
}

func trimTrailingZeros(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}
