// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hevctest writes small synthetic H.265 parameter sets and slice
// headers for tests. Slices carry no slice data.
package hevctest

import (
	"sort"

	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/h265dec/utils/bits"
)

// Sequence describes the VPS, SPS and PPS the builder writes.
type Sequence struct {
	Width              int
	Height             int
	ChromaFormatIDC    int
	BitDepth           int
	Log2CtbSize        int
	Log2MaxPOCLsb      int
	MaxSubLayers       int
	MaxDecPicBuffering int
	NumReorderPics     int
	SAO                bool
	ConfWindow         hevc.Window // chroma units
	DefaultDisplay     hevc.Window // chroma units
	FieldSeq           bool
	RPS                [][]int // short-term sets of the SPS, all entries used
	LongTermRefs       bool
	TemporalMVP        bool

	TileColumns            int
	TileRows               int
	LoopFilterAcrossTiles  bool
	LoopFilterAcrossSlices bool
	OutputFlagPresent      bool
	DependentSlices        bool
}

// DefaultSequence returns a 4:2:0 8-bit 64x64 sequence with 16x16 CTBs.
func DefaultSequence() Sequence {
	return Sequence{
		Width:                  64,
		Height:                 64,
		ChromaFormatIDC:        1,
		BitDepth:               8,
		Log2CtbSize:            4,
		Log2MaxPOCLsb:          8,
		MaxSubLayers:           1,
		MaxDecPicBuffering:     5,
		NumReorderPics:         2,
		SAO:                    true,
		TileColumns:            1,
		TileRows:               1,
		LoopFilterAcrossTiles:  true,
		LoopFilterAcrossSlices: true,
	}
}

func header(w *bits.Writer, nalType uint8, tid int) {
	w.WriteBit(0)
	w.Write(uint64(nalType), 6)
	w.Write(0, 6)
	w.Write(uint64(tid+1), 3)
}

func (s *Sequence) ptl(w *bits.Writer) {
	w.Write(0, 2)           // profile_space
	w.Write(0, 1)           // tier
	w.Write(1, 5)           // Main
	w.Write(0x60000000, 32) // compatible with Main and Main 10
	w.Write(0x9, 4)         // progressive, frame only
	w.Write(0, 43)
	w.Write(0, 1)
	w.Write(93, 8) // level 3.1
	for i := 0; i < s.MaxSubLayers-1; i++ {
		w.Write(0, 2)
	}
	if s.MaxSubLayers > 1 {
		for i := s.MaxSubLayers - 1; i < 8; i++ {
			w.Write(0, 2)
		}
	}
}

func (s *Sequence) orderingInfo(w *bits.Writer) {
	w.WriteBit(1)
	for i := 0; i < s.MaxSubLayers; i++ {
		w.WriteUe(uint32(s.MaxDecPicBuffering - 1))
		w.WriteUe(uint32(s.NumReorderPics))
		w.WriteUe(0)
	}
}

// VPS returns the video parameter set NAL unit.
func (s *Sequence) VPS() []byte {
	w := &bits.Writer{}
	header(w, hevc.NalVps, 0)
	w.Write(0, 4)
	w.Write(3, 2) // base layer internal and available
	w.Write(0, 6)
	w.Write(uint64(s.MaxSubLayers-1), 3)
	w.WriteBit(1)
	w.Write(0xffff, 16)
	s.ptl(w)
	s.orderingInfo(w)
	w.Write(0, 6) // vps_max_layer_id
	w.WriteUe(0)  // vps_num_layer_sets_minus1
	w.WriteBit(0) // vps_timing_info_present_flag
	w.WriteBit(0) // vps_extension_flag
	w.WriteTrailingBits()
	return ToEBSP(w.Bytes())
}

func writeRPS(w *bits.Writer, idx int, deltas []int) {
	if idx != 0 {
		w.WriteBit(0) // inter_ref_pic_set_prediction_flag
	}
	var neg, pos []int
	for _, d := range deltas {
		if d < 0 {
			neg = append(neg, d)
		} else {
			pos = append(pos, d)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(neg)))
	sort.Ints(pos)
	w.WriteUe(uint32(len(neg)))
	w.WriteUe(uint32(len(pos)))
	prev := 0
	for _, d := range neg {
		w.WriteUe(uint32(prev - d - 1))
		w.WriteBit(1)
		prev = d
	}
	prev = 0
	for _, d := range pos {
		w.WriteUe(uint32(d - prev - 1))
		w.WriteBit(1)
		prev = d
	}
}

// SPS returns the sequence parameter set NAL unit.
func (s *Sequence) SPS() []byte {
	w := &bits.Writer{}
	header(w, hevc.NalSps, 0)
	w.Write(0, 4)
	w.Write(uint64(s.MaxSubLayers-1), 3)
	w.WriteBit(1)
	s.ptl(w)
	w.WriteUe(0)
	w.WriteUe(uint32(s.ChromaFormatIDC))
	if s.ChromaFormatIDC == 3 {
		w.WriteBit(0)
	}
	w.WriteUe(uint32(s.Width))
	w.WriteUe(uint32(s.Height))
	if s.ConfWindow.IsZero() {
		w.WriteBit(0)
	} else {
		w.WriteBit(1)
		writeWindow(w, s.ConfWindow)
	}
	w.WriteUe(uint32(s.BitDepth - 8))
	w.WriteUe(uint32(s.BitDepth - 8))
	w.WriteUe(uint32(s.Log2MaxPOCLsb - 4))
	s.orderingInfo(w)
	w.WriteUe(0) // min cb 8x8
	w.WriteUe(uint32(s.Log2CtbSize - 3))
	w.WriteUe(0) // min tb 4x4
	w.WriteUe(1)
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteBit(0) // scaling_list_enabled_flag
	w.WriteBit(0) // amp_enabled_flag
	w.WriteBool(s.SAO)
	w.WriteBit(0) // pcm_enabled_flag
	w.WriteUe(uint32(len(s.RPS)))
	for i, set := range s.RPS {
		writeRPS(w, i, set)
	}
	w.WriteBool(s.LongTermRefs)
	if s.LongTermRefs {
		w.WriteUe(0) // num_long_term_ref_pics_sps
	}
	w.WriteBool(s.TemporalMVP)
	w.WriteBit(0) // strong_intra_smoothing_enabled_flag
	if s.FieldSeq || !s.DefaultDisplay.IsZero() {
		w.WriteBit(1)
		w.Write(0, 4) // aspect ratio, overscan, video signal, chroma loc
		w.WriteBit(0) // neutral_chroma_indication_flag
		w.WriteBool(s.FieldSeq)
		w.WriteBool(s.FieldSeq) // frame_field_info_present_flag
		if s.DefaultDisplay.IsZero() {
			w.WriteBit(0)
		} else {
			w.WriteBit(1)
			writeWindow(w, s.DefaultDisplay)
		}
		w.WriteBit(0) // vui_timing_info_present_flag
		w.WriteBit(0) // bitstream_restriction_flag
	} else {
		w.WriteBit(0)
	}
	w.WriteBit(0) // sps_extension_present_flag
	w.WriteTrailingBits()
	return ToEBSP(w.Bytes())
}

func writeWindow(w *bits.Writer, win hevc.Window) {
	w.WriteUe(uint32(win.Left))
	w.WriteUe(uint32(win.Right))
	w.WriteUe(uint32(win.Top))
	w.WriteUe(uint32(win.Bottom))
}

// PPS returns the picture parameter set NAL unit.
func (s *Sequence) PPS() []byte {
	w := &bits.Writer{}
	header(w, hevc.NalPps, 0)
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteBool(s.DependentSlices)
	w.WriteBool(s.OutputFlagPresent)
	w.Write(0, 3)
	w.Write(0, 2) // sign data hiding, cabac init present
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteSe(0)
	w.Write(0, 3) // constrained intra, transform skip, cu qp delta
	w.WriteSe(0)
	w.WriteSe(0)
	w.Write(0, 4) // chroma qp offsets, weighted pred/bipred, transquant bypass
	tiles := s.TileColumns > 1 || s.TileRows > 1
	w.WriteBool(tiles)
	w.WriteBit(0) // entropy_coding_sync_enabled_flag
	if tiles {
		w.WriteUe(uint32(s.TileColumns - 1))
		w.WriteUe(uint32(s.TileRows - 1))
		w.WriteBit(1) // uniform_spacing_flag
		w.WriteBool(s.LoopFilterAcrossTiles)
	}
	w.WriteBool(s.LoopFilterAcrossSlices)
	w.WriteBit(0) // deblocking_filter_control_present_flag
	w.WriteBit(0) // pps_scaling_list_data_present_flag
	w.WriteBit(0) // lists_modification_present_flag
	w.WriteUe(0)
	w.WriteBit(0) // slice_segment_header_extension_present_flag
	w.WriteBit(0) // pps_extension_present_flag
	w.WriteTrailingBits()
	return ToEBSP(w.Bytes())
}

// Slice describes one slice segment header.
type Slice struct {
	NALType             uint8
	TemporalID          int
	First               bool
	Address             int
	Dependent           bool
	SliceType           int
	PicOutput           bool // written when the PPS has output_flag_present_flag
	POC                 int  // only the lsb is written
	UseSPSRPS           bool
	RPSIdx              int
	RPS                 []int // inline set when UseSPSRPS is false
	NoOutputOfPriorPics bool
	SAOLuma             bool
	SAOChroma           bool

	// clears slice_loop_filter_across_slices_enabled_flag when the PPS enables it
	NoFilterAcrossSlices bool
}

// Slice returns the slice segment NAL unit.
func (s *Sequence) Slice(sl Slice) []byte {
	w := &bits.Writer{}
	header(w, sl.NALType, sl.TemporalID)
	w.WriteBool(sl.First)
	if sl.NALType >= hevc.NalBlaWLp && sl.NALType <= hevc.NalIrapVcl23 {
		w.WriteBool(sl.NoOutputOfPriorPics)
	}
	w.WriteUe(0)
	if !sl.First {
		if s.DependentSlices {
			w.WriteBool(sl.Dependent)
		}
		w.Write(uint64(sl.Address), ceilLog2(s.picSizeInCtbs()))
	}
	if !sl.Dependent {
		w.WriteUe(uint32(sl.SliceType))
		if s.OutputFlagPresent {
			w.WriteBool(sl.PicOutput)
		}
		if sl.NALType != hevc.NalIdrWRadl && sl.NALType != hevc.NalIdrNLp {
			w.Write(uint64(sl.POC&(1<<uint(s.Log2MaxPOCLsb)-1)), s.Log2MaxPOCLsb)
			w.WriteBool(sl.UseSPSRPS)
			if sl.UseSPSRPS {
				if len(s.RPS) > 1 {
					w.Write(uint64(sl.RPSIdx), ceilLog2(len(s.RPS)))
				}
			} else {
				writeRPS(w, len(s.RPS), sl.RPS)
			}
			if s.LongTermRefs {
				w.WriteUe(0) // num_long_term_pics
			}
			if s.TemporalMVP {
				w.WriteBit(0)
			}
		}
		if s.SAO {
			w.WriteBool(sl.SAOLuma)
			if s.ChromaFormatIDC != 0 {
				w.WriteBool(sl.SAOChroma)
			}
		}
		if sl.SliceType != hevc.SliceI {
			w.WriteBit(0) // num_ref_idx_active_override_flag
			if sl.SliceType == hevc.SliceB {
				w.WriteBit(0) // mvd_l1_zero_flag
			}
			w.WriteUe(0) // five_minus_max_num_merge_cand
		}
		w.WriteSe(0) // slice_qp_delta
		if s.LoopFilterAcrossSlices {
			w.WriteBool(!sl.NoFilterAcrossSlices)
		}
	}
	w.WriteTrailingBits()
	return ToEBSP(w.Bytes())
}

// EOS returns an end of sequence NAL unit.
func EOS() []byte { return []byte{hevc.NalEosNut << 1, 1} }

func (s *Sequence) picSizeInCtbs() int {
	ctb := 1 << uint(s.Log2CtbSize)
	return ((s.Width + ctb - 1) / ctb) * ((s.Height + ctb - 1) / ctb)
}

func ceilLog2(n int) int {
	l := 0
	for (1 << uint(l)) < n {
		l++
	}
	return l
}

// ToEBSP inserts emulation prevention bytes.
func ToEBSP(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/64+1)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// AnnexB joins units with four byte start codes.
func AnnexB(units ...[]byte) []byte {
	var out []byte
	for _, u := range units {
		out = append(out, 0, 0, 0, 1)
		out = append(out, u...)
	}
	return out
}
