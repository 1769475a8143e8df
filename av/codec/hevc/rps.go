// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"github.com/cnotch/h265dec/utils/bits"
	"github.com/pkg/errors"
)

// RefPic is one entry of a short-term reference picture set.
type RefPic struct {
	DeltaPOC int // relative to the current picture
	Used     bool
}

// ShortTermRPS is a st_ref_pic_set in its derived form: S0 holds the
// negative deltas in decreasing order, S1 the positive ones in increasing order.
type ShortTermRPS struct {
	S0 []RefPic
	S1 []RefPic
}

// NumDeltaPOCs .
func (rps *ShortTermRPS) NumDeltaPOCs() int { return len(rps.S0) + len(rps.S1) }

// decode parses st_ref_pic_set(idx). sets holds all the sets of the SPS,
// so idx equals len(sets) only for a set coded in a slice header.
func (rps *ShortTermRPS) decode(r *bits.Reader, idx int, sets []ShortTermRPS) error {
	rps.S0, rps.S1 = rps.S0[:0], rps.S1[:0]

	interPrediction := false
	if idx != 0 {
		interPrediction = r.ReadBool()
	}

	if !interPrediction {
		numNegative := int(r.ReadUe())
		numPositive := int(r.ReadUe())
		if numNegative > MaxDpbSize || numPositive > MaxDpbSize-numNegative {
			return errors.Wrapf(ErrInvalidNALUnit, "short-term rps %d: %d+%d pictures", idx, numNegative, numPositive)
		}
		poc := 0
		for i := 0; i < numNegative; i++ {
			poc -= int(r.ReadUe()) + 1
			rps.S0 = append(rps.S0, RefPic{DeltaPOC: poc, Used: r.ReadBool()})
		}
		poc = 0
		for i := 0; i < numPositive; i++ {
			poc += int(r.ReadUe()) + 1
			rps.S1 = append(rps.S1, RefPic{DeltaPOC: poc, Used: r.ReadBool()})
		}
		return nil
	}

	deltaIdx := 1
	if idx == len(sets) {
		deltaIdx += int(r.ReadUe()) // delta_idx_minus1
	}
	refIdx := idx - deltaIdx
	if refIdx < 0 || refIdx >= idx {
		return errors.Wrapf(ErrInvalidNALUnit, "short-term rps %d predicts from %d", idx, refIdx)
	}
	ref := &sets[refIdx]

	sign := int(r.ReadBit())
	deltaRps := (1 - 2*sign) * (int(r.ReadUe()) + 1)

	n := ref.NumDeltaPOCs()
	used := make([]bool, n+1)
	useDelta := make([]bool, n+1)
	for j := 0; j <= n; j++ {
		used[j] = r.ReadBool()
		useDelta[j] = true
		if !used[j] {
			useDelta[j] = r.ReadBool()
		}
	}

	// entries 0..len(S0)-1 refer to ref.S0, then ref.S1, then the reference picture itself
	neg := len(ref.S0)
	for j := len(ref.S1) - 1; j >= 0; j-- {
		if d := ref.S1[j].DeltaPOC + deltaRps; d < 0 && useDelta[neg+j] {
			rps.S0 = append(rps.S0, RefPic{d, used[neg+j]})
		}
	}
	if deltaRps < 0 && useDelta[n] {
		rps.S0 = append(rps.S0, RefPic{deltaRps, used[n]})
	}
	for j := 0; j < neg; j++ {
		if d := ref.S0[j].DeltaPOC + deltaRps; d < 0 && useDelta[j] {
			rps.S0 = append(rps.S0, RefPic{d, used[j]})
		}
	}

	for j := neg - 1; j >= 0; j-- {
		if d := ref.S0[j].DeltaPOC + deltaRps; d > 0 && useDelta[j] {
			rps.S1 = append(rps.S1, RefPic{d, used[j]})
		}
	}
	if deltaRps > 0 && useDelta[n] {
		rps.S1 = append(rps.S1, RefPic{deltaRps, used[n]})
	}
	for j := 0; j < len(ref.S1); j++ {
		if d := ref.S1[j].DeltaPOC + deltaRps; d > 0 && useDelta[neg+j] {
			rps.S1 = append(rps.S1, RefPic{d, used[neg+j]})
		}
	}

	if rps.NumDeltaPOCs() > MaxDpbSize {
		return errors.Wrapf(ErrInvalidNALUnit, "short-term rps %d contains too many pictures", idx)
	}
	return nil
}
