// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc_test

import (
	"testing"

	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/h265dec/av/codec/hevc/hevctest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSets(t *testing.T, seq *hevctest.Sequence) *hevc.ParameterSets {
	sets := &hevc.ParameterSets{}
	for _, unit := range [][]byte{seq.VPS(), seq.SPS(), seq.PPS()} {
		_, err := sets.Put(unit)
		require.NoError(t, err)
	}
	return sets
}

func TestParameterSets_RoundTrip(t *testing.T) {
	seq := hevctest.DefaultSequence()
	seq.MaxSubLayers = 3
	seq.RPS = [][]int{{-1}, {-1, -2, 3}}
	seq.ConfWindow = hevc.Window{Right: 4, Bottom: 2}
	seq.FieldSeq = true
	seq.DefaultDisplay = hevc.Window{Left: 1, Top: 1}
	seq.TileColumns, seq.TileRows = 2, 2
	seq.LoopFilterAcrossTiles = false
	sets := newSets(t, &seq)

	vps := sets.VPS(0)
	require.NotNil(t, vps)
	assert.Equal(t, uint8(2), vps.MaxSubLayersMinus1)
	assert.Equal(t, uint8(2), vps.MaxNumReorderPics[2])

	sps := sets.SPS(0)
	require.NotNil(t, sps)
	assert.Equal(t, 64, sps.Width())
	assert.Equal(t, 64, sps.Height())
	assert.Equal(t, 16, sps.CtbSize())
	assert.Equal(t, 16, sps.PicSizeInCtbs())
	assert.Equal(t, 3, sps.MaxSubLayers())
	assert.Equal(t, 5, sps.MaxDecPicBuffering(-1))
	assert.Equal(t, 2, sps.NumReorderPics(1))
	assert.Equal(t, 8, sps.BitDepthLuma)
	assert.Equal(t, 8, sps.Log2MaxPOCLsb)
	assert.True(t, sps.SAOEnabled)
	assert.True(t, sps.FieldSeq())
	assert.Equal(t, hevc.Window{Right: 8, Bottom: 4}, sps.ConformanceWindow())
	assert.Equal(t, hevc.Window{Left: 2, Top: 2}, sps.DefaultDisplayWindow())
	require.Len(t, sps.ShortTermRPS, 2)
	assert.Equal(t, []hevc.RefPic{{DeltaPOC: -1, Used: true}, {DeltaPOC: -2, Used: true}}, sps.ShortTermRPS[1].S0)
	assert.Equal(t, []hevc.RefPic{{DeltaPOC: 3, Used: true}}, sps.ShortTermRPS[1].S1)

	pps := sets.PPS(0)
	require.NotNil(t, pps)
	assert.True(t, pps.TilesEnabled)
	assert.Equal(t, 2, pps.NumTileColumns)
	assert.False(t, pps.LoopFilterAcrossTiles)
	assert.True(t, pps.LoopFilterAcrossSlices)

	assert.Nil(t, sets.SPS(1))
	assert.Nil(t, sets.PPS(-1))
}

func TestParameterSets_PutRejectsSlices(t *testing.T) {
	seq := hevctest.DefaultSequence()
	sets := &hevc.ParameterSets{}
	_, err := sets.Put(seq.Slice(hevctest.Slice{NALType: hevc.NalIdrNLp, First: true, SliceType: hevc.SliceI}))
	assert.Equal(t, hevc.ErrInvalidNALUnit, errors.Cause(err))
}

func TestSliceHeader_Decode(t *testing.T) {
	seq := hevctest.DefaultSequence()
	seq.RPS = [][]int{{-1}, {-2, -4}}
	seq.DependentSlices = true
	seq.OutputFlagPresent = true
	sets := newSets(t, &seq)

	t.Run("idr", func(t *testing.T) {
		var sh hevc.SliceHeader
		unit := seq.Slice(hevctest.Slice{NALType: hevc.NalIdrWRadl, First: true, SliceType: hevc.SliceI,
			PicOutput: true, NoOutputOfPriorPics: true, SAOLuma: true})
		require.NoError(t, sh.Decode(unit, sets, nil))
		assert.True(t, sh.FirstSliceInPic)
		assert.True(t, sh.NoOutputOfPriorPics)
		assert.True(t, sh.PicOutput)
		assert.Equal(t, hevc.SliceI, sh.SliceType)
		assert.Equal(t, 0, sh.POCLsb)
		assert.Nil(t, sh.ShortTermRPS)
		assert.True(t, sh.SAOLuma)
		assert.False(t, sh.SAOChroma)
	})

	t.Run("inline rps", func(t *testing.T) {
		var sh hevc.SliceHeader
		unit := seq.Slice(hevctest.Slice{NALType: hevc.NalTrailR, First: true, SliceType: hevc.SliceB,
			POC: 300, RPS: []int{-1, 2}, SAOChroma: true})
		require.NoError(t, sh.Decode(unit, sets, nil))
		assert.Equal(t, 300&255, sh.POCLsb)
		assert.Equal(t, -1, sh.RPSIdx)
		require.NotNil(t, sh.ShortTermRPS)
		assert.Equal(t, []hevc.RefPic{{DeltaPOC: -1, Used: true}}, sh.ShortTermRPS.S0)
		assert.Equal(t, []hevc.RefPic{{DeltaPOC: 2, Used: true}}, sh.ShortTermRPS.S1)
		assert.False(t, sh.PicOutput)
		assert.True(t, sh.SAOChroma)
	})

	t.Run("sps rps and dependent segment", func(t *testing.T) {
		var first, dep hevc.SliceHeader
		unit := seq.Slice(hevctest.Slice{NALType: hevc.NalTrailN, TemporalID: 0, First: true,
			SliceType: hevc.SliceP, POC: 7, UseSPSRPS: true, RPSIdx: 1, PicOutput: true, SAOLuma: true})
		require.NoError(t, first.Decode(unit, sets, nil))
		assert.Equal(t, 1, first.RPSIdx)
		assert.Len(t, first.ShortTermRPS.S0, 2)

		unit = seq.Slice(hevctest.Slice{NALType: hevc.NalTrailN, Address: 5, Dependent: true})
		require.NoError(t, dep.Decode(unit, sets, &first))
		assert.False(t, dep.FirstSliceInPic)
		assert.True(t, dep.Dependent)
		assert.Equal(t, 5, dep.SegmentAddress)
		assert.Equal(t, 7, dep.POCLsb)
		assert.Equal(t, hevc.SliceP, dep.SliceType)
		assert.True(t, dep.SAOLuma)
		assert.Equal(t, first.ShortTermRPS, dep.ShortTermRPS)
	})

	t.Run("missing pps", func(t *testing.T) {
		var sh hevc.SliceHeader
		unit := seq.Slice(hevctest.Slice{NALType: hevc.NalTrailR, First: true, POC: 1})
		err := sh.Decode(unit, &hevc.ParameterSets{}, nil)
		assert.Equal(t, hevc.ErrInvalidNALUnit, errors.Cause(err))
	})
}

func TestSliceHeader_LoopFilterAcrossSlices(t *testing.T) {
	tests := []struct {
		name      string
		pps       bool
		noAcross  bool
		sliceType int
		want      bool
	}{
		{"pps default", true, false, hevc.SliceI, true},
		{"slice clears", true, true, hevc.SliceI, false},
		{"slice clears p", true, true, hevc.SliceP, false},
		{"slice clears b", true, true, hevc.SliceB, false},
		{"pps clears", false, false, hevc.SliceB, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := hevctest.DefaultSequence()
			seq.LoopFilterAcrossSlices = tt.pps
			seq.DependentSlices = true
			sets := newSets(t, &seq)

			nalType := uint8(hevc.NalTrailR)
			if tt.sliceType == hevc.SliceI {
				nalType = hevc.NalIdrNLp
			}
			var first, dep hevc.SliceHeader
			unit := seq.Slice(hevctest.Slice{NALType: nalType, First: true, SliceType: tt.sliceType,
				POC: 4, RPS: []int{-1}, SAOLuma: true, NoFilterAcrossSlices: tt.noAcross})
			require.NoError(t, first.Decode(unit, sets, nil))
			assert.Equal(t, tt.want, first.LoopFilterAcrossSlices)
			assert.False(t, first.DeblockingDisabled)
			if tt.sliceType != hevc.SliceI {
				assert.Equal(t, 1, first.NumRefIdx[0])
			}

			unit = seq.Slice(hevctest.Slice{NALType: nalType, Address: 3, Dependent: true})
			require.NoError(t, dep.Decode(unit, sets, &first))
			assert.Equal(t, tt.want, dep.LoopFilterAcrossSlices)
		})
	}
}

func TestSlicePPSID(t *testing.T) {
	seq := hevctest.DefaultSequence()
	tests := []struct {
		name string
		unit []byte
	}{
		{"idr", seq.Slice(hevctest.Slice{NALType: hevc.NalIdrNLp, First: true, SliceType: hevc.SliceI})},
		{"trail", seq.Slice(hevctest.Slice{NALType: hevc.NalTrailR, First: true, SliceType: hevc.SliceP, POC: 3})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := hevc.SlicePPSID(tt.unit)
			require.NoError(t, err)
			assert.Equal(t, 0, id)
		})
	}

	_, err := hevc.SlicePPSID([]byte{hevc.NalTrailR << 1, 1})
	assert.Equal(t, hevc.ErrInvalidNALUnit, errors.Cause(err))
	_, err = hevc.SlicePPSID(seq.SPS())
	assert.Equal(t, hevc.ErrInvalidNALUnit, errors.Cause(err))
}
