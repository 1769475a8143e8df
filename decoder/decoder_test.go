// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"testing"

	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/h265dec/av/codec/hevc/hevctest"
	"github.com/cnotch/h265dec/av/output"
	"github.com/cnotch/h265dec/av/picture"
	"github.com/cnotch/h265dec/av/sao"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder keeps the POCs and two luma samples of every output, read
// when the picture is written since the picture is recycled afterwards.
type recorder struct {
	pocs    [][]int
	samples [][2]uint16
	crops   []picture.Window
}

func (r *recorder) WritePicture(out output.Output) error {
	r.pocs = append(r.pocs, out.POCs())
	luma := &out.Picture.Planes[0]
	r.samples = append(r.samples, [2]uint16{luma.At(0, 0), luma.At(luma.Width-1, luma.Height-1)})
	r.crops = append(r.crops, out.Crop)
	return nil
}

func (r *recorder) flat() []int {
	var pocs []int
	for _, p := range r.pocs {
		pocs = append(pocs, p...)
	}
	return pocs
}

func decodeAll(t *testing.T, d *Decoder, units ...[]byte) {
	t.Helper()
	for _, unit := range units {
		require.NoError(t, d.Decode(unit))
	}
	require.NoError(t, d.Close())
}

func header(seq *hevctest.Sequence) [][]byte {
	return [][]byte{seq.VPS(), seq.SPS(), seq.PPS()}
}

func idr(seq *hevctest.Sequence) []byte {
	return seq.Slice(hevctest.Slice{NALType: hevc.NalIdrWRadl, First: true, SliceType: hevc.SliceI})
}

func trail(seq *hevctest.Sequence, poc int, rps ...int) []byte {
	return seq.Slice(hevctest.Slice{NALType: hevc.NalTrailR, First: true, SliceType: hevc.SliceB,
		POC: poc, RPS: rps})
}

func TestDecoder_OutputOrder(t *testing.T) {
	seq := hevctest.DefaultSequence()
	rec := &recorder{}
	var infos []PictureInfo
	d := New(rec, WithPictureHook(func(info PictureInfo) { infos = append(infos, info) }))

	units := append(header(&seq),
		idr(&seq),
		trail(&seq, 4, -4),
		trail(&seq, 2, -2, 2),
		trail(&seq, 1, -1, 1, 3),
		trail(&seq, 3, -1, 1),
		trail(&seq, 8, -4),
		trail(&seq, 6, -2, 2),
		trail(&seq, 5, -1, 1, 3),
		trail(&seq, 7, -1, 1),
	)
	decodeAll(t, d, units...)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, rec.flat())
	require.Len(t, infos, 9)
	assert.Equal(t, 4, infos[1].POC)
	assert.Equal(t, 2, infos[1].DecodeOrder)
	assert.Equal(t, uint8(hevc.NalIdrWRadl), infos[0].NALType)

	sample := d.Stats()
	assert.EqualValues(t, 9, sample.Decoded)
	assert.EqualValues(t, 9, sample.Emitted)
	assert.Zero(t, sample.Pending())
	assert.NotNil(t, d.ActiveSPS())
	assert.Zero(t, d.Pictures())
}

func TestDecoder_ReferenceMarking(t *testing.T) {
	seq := hevctest.DefaultSequence()
	seq.NumReorderPics = 0
	seq.MaxDecPicBuffering = 3
	d := New(&recorder{})

	for _, unit := range append(header(&seq), idr(&seq), trail(&seq, 1, -1)) {
		require.NoError(t, d.Decode(unit))
	}
	// POC 0 is no longer referenced by POC 2
	require.NoError(t, d.Decode(trail(&seq, 2, -1)))
	assert.Equal(t, 2, d.Pictures())

	// an empty set releases every picture
	require.NoError(t, d.Decode(trail(&seq, 3)))
	require.NoError(t, d.Close())
	assert.Zero(t, d.Pictures())
}

func TestDecoder_RASLSkipped(t *testing.T) {
	seq := hevctest.DefaultSequence()
	rec := &recorder{}
	var skipped []int
	d := New(rec, WithPictureHook(func(info PictureInfo) {
		if info.Skipped {
			skipped = append(skipped, info.DecodeOrder)
		}
	}))

	units := append(header(&seq),
		seq.Slice(hevctest.Slice{NALType: hevc.NalCraNut, First: true, SliceType: hevc.SliceI, POC: 8}),
		seq.Slice(hevctest.Slice{NALType: hevc.NalRaslN, First: true, SliceType: hevc.SliceB, POC: 6, RPS: []int{-2, 2}}),
		seq.Slice(hevctest.Slice{NALType: hevc.NalRaslN, First: true, SliceType: hevc.SliceB, POC: 7, RPS: []int{-1, 1}}),
		trail(&seq, 9, -1),
	)
	decodeAll(t, d, units...)

	assert.Equal(t, []int{8, 9}, rec.flat())
	assert.Equal(t, []int{2, 3}, skipped)
	assert.EqualValues(t, 2, d.Stats().Skipped)
}

func TestDecoder_BeforeFirstIRAP(t *testing.T) {
	seq := hevctest.DefaultSequence()
	rec := &recorder{}
	d := New(rec)

	// no parameter sets yet
	require.NoError(t, d.Decode(trail(&seq, 3)))
	for _, unit := range header(&seq) {
		require.NoError(t, d.Decode(unit))
	}
	// parameter sets known but no random access point
	require.NoError(t, d.Decode(trail(&seq, 4)))
	decodeAll(t, d, idr(&seq), trail(&seq, 1, -1))

	assert.Equal(t, []int{0, 1}, rec.flat())
	assert.EqualValues(t, 1, d.Stats().Skipped)
}

func TestDecoder_EndOfSequence(t *testing.T) {
	seq := hevctest.DefaultSequence()
	rec := &recorder{}
	d := New(rec)

	units := append(header(&seq),
		idr(&seq),
		trail(&seq, 2, -2),
		trail(&seq, 1, -1, 1),
		hevctest.EOS(),
		// the CRA after an end of sequence starts a new sequence
		seq.Slice(hevctest.Slice{NALType: hevc.NalCraNut, First: true, SliceType: hevc.SliceI, POC: 16}),
		seq.Slice(hevctest.Slice{NALType: hevc.NalRaslR, First: true, SliceType: hevc.SliceB, POC: 14, RPS: []int{-2, 2}}),
		trail(&seq, 17, -1),
	)
	decodeAll(t, d, units...)

	assert.Equal(t, []int{0, 1, 2, 16, 17}, rec.flat())
	assert.EqualValues(t, 1, d.Stats().Skipped)
}

func TestDecoder_NoOutputOfPriorPics(t *testing.T) {
	seq := hevctest.DefaultSequence()
	rec := &recorder{}
	d := New(rec)

	units := append(header(&seq),
		idr(&seq),
		trail(&seq, 2, -2),
		trail(&seq, 1, -1, 1),
		seq.Slice(hevctest.Slice{NALType: hevc.NalIdrNLp, First: true, SliceType: hevc.SliceI, NoOutputOfPriorPics: true}),
	)
	decodeAll(t, d, units...)

	assert.Equal(t, []int{0, 0}, rec.flat())
	assert.EqualValues(t, 2, d.Stats().Discarded)
}

func TestDecoder_MaxTemporalLayer(t *testing.T) {
	seq := hevctest.DefaultSequence()
	seq.MaxSubLayers = 2
	rec := &recorder{}
	d := New(rec, WithMaxTemporalLayer(0))

	units := append(header(&seq),
		idr(&seq),
		seq.Slice(hevctest.Slice{NALType: hevc.NalTrailR, First: true, SliceType: hevc.SliceB, POC: 2, RPS: []int{-2}}),
		seq.Slice(hevctest.Slice{NALType: hevc.NalTrailN, TemporalID: 1, First: true, SliceType: hevc.SliceB, POC: 1, RPS: []int{-1, 1}}),
		seq.Slice(hevctest.Slice{NALType: hevc.NalTrailR, First: true, SliceType: hevc.SliceB, POC: 4, RPS: []int{-2}}),
	)
	decodeAll(t, d, units...)

	assert.Equal(t, []int{0, 2, 4}, rec.flat())
	assert.EqualValues(t, 3, d.Stats().Decoded)
}

func TestDecoder_CropWindow(t *testing.T) {
	seq := hevctest.DefaultSequence()
	seq.ConfWindow = hevc.Window{Bottom: 2}   // 4 luma rows
	seq.DefaultDisplay = hevc.Window{Left: 4} // 8 luma columns

	tests := []struct {
		name    string
		respect bool
		want    picture.Window
	}{
		{"conformance", false, picture.Window{Bottom: 4}},
		{"display", true, picture.Window{Left: 8, Bottom: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			d := New(rec, WithDefaultDisplayWindow(tt.respect))
			decodeAll(t, d, append(header(&seq), idr(&seq))...)
			require.Len(t, rec.crops, 1)
			assert.Equal(t, tt.want, rec.crops[0])
		})
	}
}

// bandRec paints every picture with 100 and gives unit 0 of the luma a
// band offset of +3 on the band of 100.
func bandRec(sh *hevc.SliceHeader, unit []byte, pic *picture.Picture, params *sao.Params) error {
	if sh.FirstSliceInPic {
		for c := 0; c < pic.NumPlanes(); c++ {
			pic.Planes[c].Fill(100)
		}
	}
	if sh.SegmentAddress == 0 {
		u := params.Unit(0, 0)
		u.Type = sao.TypeBO
		u.BandPosition = 100 >> 3
		u.Length = 4
		u.Offsets = [sao.MaxOffsets]int{3}
	}
	return nil
}

func TestDecoder_SAO(t *testing.T) {
	tests := []struct {
		name        string
		crossSlices bool
		tiles       int
		enabled     bool
		want        [2]uint16
	}{
		{"whole picture", true, 1, true, [2]uint16{103, 100}},
		{"slice borders", false, 1, true, [2]uint16{103, 100}},
		{"tile borders", true, 2, true, [2]uint16{103, 100}},
		{"disabled", true, 1, false, [2]uint16{100, 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := hevctest.DefaultSequence()
			seq.LoopFilterAcrossSlices = tt.crossSlices
			seq.TileColumns = tt.tiles
			seq.TileRows = tt.tiles
			seq.LoopFilterAcrossTiles = false

			rec := &recorder{}
			d := New(rec, WithReconstructor(ReconstructorFunc(bandRec)))
			units := append(header(&seq),
				seq.Slice(hevctest.Slice{NALType: hevc.NalIdrNLp, First: true, SliceType: hevc.SliceI,
					SAOLuma: tt.enabled}),
				seq.Slice(hevctest.Slice{NALType: hevc.NalIdrNLp, Address: 8, SliceType: hevc.SliceI,
					SAOLuma: tt.enabled}),
			)
			decodeAll(t, d, units...)
			require.Len(t, rec.samples, 1)
			assert.Equal(t, tt.want, rec.samples[0])
		})
	}
}

// edgeRec paints every picture with 100 but the first row of the second
// slice row with 50, and gives every luma unit a vertical edge offset of +6
// on local minima.
func edgeRec(sh *hevc.SliceHeader, unit []byte, pic *picture.Picture, params *sao.Params) error {
	if sh.FirstSliceInPic {
		for c := 0; c < pic.NumPlanes(); c++ {
			pic.Planes[c].Fill(100)
		}
		row := pic.Planes[0].Row(32)
		for x := range row {
			row[x] = 50
		}
	}
	for addr := range params.Units[0] {
		u := params.Unit(0, addr)
		u.Type, u.Length, u.Offsets = sao.TypeEO1, 4, [sao.MaxOffsets]int{6}
	}
	return nil
}

func TestDecoder_SliceFilterAcross(t *testing.T) {
	tests := []struct {
		name       string
		pps        bool // pps_loop_filter_across_slices_enabled_flag
		noAcross   bool // cleared slice_loop_filter_across_slices_enabled_flag of the second slice
		wantBorder uint16
	}{
		{"pps and slice allow", true, false, 56},
		{"slice forbids", true, true, 50},
		{"pps forbids", false, false, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := hevctest.DefaultSequence()
			seq.LoopFilterAcrossSlices = tt.pps

			var border, inside []uint16
			w := output.WriterFunc(func(out output.Output) error {
				luma := &out.Picture.Planes[0]
				border = append(border, luma.At(5, 32))
				inside = append(inside, luma.At(5, 31))
				return nil
			})
			d := New(w, WithReconstructor(ReconstructorFunc(edgeRec)))
			units := append(header(&seq),
				seq.Slice(hevctest.Slice{NALType: hevc.NalIdrNLp, First: true, SliceType: hevc.SliceI,
					SAOLuma: true}),
				seq.Slice(hevctest.Slice{NALType: hevc.NalIdrNLp, Address: 8, SliceType: hevc.SliceI,
					SAOLuma: true, NoFilterAcrossSlices: tt.noAcross}),
			)
			decodeAll(t, d, units...)
			require.Len(t, border, 1)
			assert.Equal(t, tt.wantBorder, border[0], "first row of the second slice")
			assert.Equal(t, uint16(100), inside[0])
		})
	}
}

func TestDecoder_Errors(t *testing.T) {
	d := New(&recorder{})
	err := d.Decode([]byte{0x40})
	assert.Error(t, err)

	// a layer above the base is ignored
	assert.NoError(t, d.Decode([]byte{hevc.NalTrailR << 1, 1<<3 | 1, 0x80}))

	seq := hevctest.DefaultSequence()
	for _, unit := range header(&seq) {
		require.NoError(t, d.Decode(unit))
	}
	require.NoError(t, d.Decode(idr(&seq)))
	require.NoError(t, d.Close())
	// a segment without the first slice of its picture is dropped
	assert.NoError(t, d.Decode(seq.Slice(hevctest.Slice{NALType: hevc.NalTrailR, Address: 3, SliceType: hevc.SliceB, POC: 1})))
	assert.NoError(t, d.Close())
	assert.EqualValues(t, 1, d.Stats().Decoded)
}
