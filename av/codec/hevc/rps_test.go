// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"testing"

	"github.com/cnotch/h265dec/utils/bits"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExplicitSet(w *bits.Writer) {
	// S0 = {-1, -3}, S1 = {+2 unused}
	w.WriteUe(2)
	w.WriteUe(1)
	w.WriteUe(0)
	w.WriteBit(1)
	w.WriteUe(1)
	w.WriteBit(1)
	w.WriteUe(1)
	w.WriteBit(0)
}

func TestShortTermRPS_Explicit(t *testing.T) {
	w := &bits.Writer{}
	writeExplicitSet(w)
	w.WriteTrailingBits()

	sets := make([]ShortTermRPS, 1)
	require.NoError(t, sets[0].decode(bits.NewReader(w.Bytes()), 0, sets))
	assert.Equal(t, []RefPic{{-1, true}, {-3, true}}, sets[0].S0)
	assert.Equal(t, []RefPic{{2, false}}, sets[0].S1)
	assert.Equal(t, 3, sets[0].NumDeltaPOCs())
}

func TestShortTermRPS_InterPrediction(t *testing.T) {
	w := &bits.Writer{}
	writeExplicitSet(w)

	// set 1 predicted from set 0 with deltaRps = -1
	w.WriteBit(1) // inter_ref_pic_set_prediction_flag
	w.WriteBit(1) // delta_rps_sign
	w.WriteUe(0)  // abs_delta_rps_minus1
	w.WriteBit(1)
	w.WriteBit(1)
	w.WriteBit(0) // entry +2 not used by the current picture
	w.WriteBit(1) // but kept
	w.WriteBit(1)

	// a slice set predicted from set 0 with deltaRps = +1
	w.WriteBit(1)
	w.WriteUe(1) // delta_idx_minus1
	w.WriteBit(0)
	w.WriteUe(0)
	for i := 0; i < 4; i++ {
		w.WriteBit(1)
	}
	w.WriteTrailingBits()

	r := bits.NewReader(w.Bytes())
	sets := make([]ShortTermRPS, 2)
	require.NoError(t, sets[0].decode(r, 0, sets))
	require.NoError(t, sets[1].decode(r, 1, sets))
	assert.Equal(t, []RefPic{{-1, true}, {-2, true}, {-4, true}}, sets[1].S0)
	assert.Equal(t, []RefPic{{1, false}}, sets[1].S1)

	var inSlice ShortTermRPS
	require.NoError(t, inSlice.decode(r, 2, sets))
	assert.Equal(t, []RefPic{{-2, true}}, inSlice.S0)
	assert.Equal(t, []RefPic{{1, true}, {3, true}}, inSlice.S1)
}

func TestShortTermRPS_TooManyPictures(t *testing.T) {
	w := &bits.Writer{}
	w.WriteUe(MaxDpbSize)
	w.WriteUe(1)
	w.WriteTrailingBits()

	var rps ShortTermRPS
	err := rps.decode(bits.NewReader(w.Bytes()), 0, nil)
	assert.Equal(t, ErrInvalidNALUnit, errors.Cause(err))
}
