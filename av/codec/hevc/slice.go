// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"github.com/cnotch/h265dec/utils"
	"github.com/cnotch/h265dec/utils/bits"
	"github.com/pkg/errors"
)

// LongTermRef is one long-term picture signalled in a slice header.
type LongTermRef struct {
	POCLsb        int
	Used          bool
	MsbPresent    bool
	DeltaMsbCycle int // DeltaPocMsbCycleLt, already accumulated
}

// SliceHeader is the slice_segment_header up to
// slice_loop_filter_across_slices_enabled_flag.
type SliceHeader struct {
	NAL NALHeader

	FirstSliceInPic     bool
	NoOutputOfPriorPics bool
	PPSID               uint8
	Dependent           bool
	SegmentAddress      int

	SliceType    int
	PicOutput    bool
	ColourPlane  int
	POCLsb       int
	ShortTermRPS *ShortTermRPS // inline set or one of the SPS sets
	RPSIdx       int           // -1 for an inline set
	LongTerm     []LongTermRef

	TemporalMVPEnabled bool
	SAOLuma            bool
	SAOChroma          bool

	NumRefIdx              [2]int // active entries of list 0 and 1
	QPDelta                int
	DeblockingDisabled     bool
	LoopFilterAcrossSlices bool // in-loop filters may cross the top and left slice borders

	PPS *PPS
	SPS *SPS

	inlineRPS ShortTermRPS
}

// Decode parses the slice segment header of a VCL NAL unit. Dependent
// slice segments take the fields following the segment address from prev,
// the previous independent header of the picture.
func (sh *SliceHeader) Decode(unit []byte, sets *ParameterSets, prev *SliceHeader) (err error) {
	defer recoverDecode("slice header", &err)

	rbsp := utils.EBSPToRBSP(unit)
	if len(rbsp) < 3 {
		return errors.Wrap(ErrInvalidNALUnit, "slice: the data is not enough")
	}
	r := bits.NewReader(rbsp)
	if err = sh.NAL.decode(r); err != nil {
		return
	}
	if !sh.NAL.IsVCL() {
		return errors.Wrapf(ErrInvalidNALUnit, "%s is not a slice", NALTypeName(sh.NAL.Type))
	}

	sh.FirstSliceInPic = r.ReadBool()
	sh.NoOutputOfPriorPics = false
	if sh.NAL.Type >= NalBlaWLp && sh.NAL.Type <= NalIrapVcl23 {
		sh.NoOutputOfPriorPics = r.ReadBool()
	}

	ppsID := int(r.ReadUe())
	pps := sets.PPS(ppsID)
	if pps == nil {
		return errors.Wrapf(ErrInvalidNALUnit, "slice refers to missing pps %d", ppsID)
	}
	sps := sets.SPS(int(pps.SPSID))
	if sps == nil {
		return errors.Wrapf(ErrInvalidNALUnit, "pps %d refers to missing sps %d", ppsID, pps.SPSID)
	}
	sh.PPSID, sh.PPS, sh.SPS = uint8(ppsID), pps, sps

	sh.Dependent = false
	sh.SegmentAddress = 0
	if !sh.FirstSliceInPic {
		if pps.DependentSliceSegmentsEnabled {
			sh.Dependent = r.ReadBool()
		}
		sh.SegmentAddress = int(r.ReadUint32(ceilLog2(sps.PicSizeInCtbs())))
		if sh.SegmentAddress >= sps.PicSizeInCtbs() {
			return errors.Wrapf(ErrInvalidNALUnit, "slice_segment_address %d out of picture", sh.SegmentAddress)
		}
	}

	if sh.Dependent {
		if prev == nil {
			return errors.Wrap(ErrInvalidNALUnit, "dependent slice segment without a preceding slice")
		}
		sh.inherit(prev)
		return nil
	}

	r.Skip(pps.NumExtraSliceHeaderBits) // slice_reserved_flag
	sh.SliceType = int(r.ReadUe())
	if sh.SliceType > SliceI {
		return errors.Wrapf(ErrInvalidNALUnit, "slice_type = %d", sh.SliceType)
	}
	sh.PicOutput = true
	if pps.OutputFlagPresent {
		sh.PicOutput = r.ReadBool()
	}
	sh.ColourPlane = 0
	if sps.SeparateColourPlane {
		sh.ColourPlane = int(r.ReadUint8(2))
	}

	sh.POCLsb = 0
	sh.ShortTermRPS = nil
	sh.RPSIdx = -1
	sh.LongTerm = sh.LongTerm[:0]
	sh.TemporalMVPEnabled = false
	if !sh.NAL.IsIDR() {
		sh.POCLsb = int(r.ReadUint32(sps.Log2MaxPOCLsb))
		if err = sh.decodeRPS(r, sps); err != nil {
			return
		}
		if sps.TemporalMVPEnabled {
			sh.TemporalMVPEnabled = r.ReadBool()
		}
	}

	sh.SAOLuma, sh.SAOChroma = false, false
	if sps.SAOEnabled {
		sh.SAOLuma = r.ReadBool()
		if sps.ChromaArrayType() != 0 {
			sh.SAOChroma = r.ReadBool()
		}
	}

	sh.NumRefIdx = [2]int{}
	sh.QPDelta = 0
	sh.DeblockingDisabled = pps.DeblockingDisabled
	sh.LoopFilterAcrossSlices = pps.LoopFilterAcrossSlices
	if sps.SCCExtension || pps.OtherExtensions {
		// the remaining syntax depends on extensions not parsed here
		return
	}
	return sh.decodeFilterControl(r, sps, pps)
}

// decodeFilterControl parses the header from num_ref_idx_active_override_flag
// to slice_loop_filter_across_slices_enabled_flag.
func (sh *SliceHeader) decodeFilterControl(r *bits.Reader, sps *SPS, pps *PPS) error {
	if sh.SliceType != SliceI {
		lists := 1
		sh.NumRefIdx = [2]int{pps.NumRefIdxL0DefaultActive, 0}
		if sh.SliceType == SliceB {
			lists = 2
			sh.NumRefIdx[1] = pps.NumRefIdxL1DefaultActive
		}
		if r.ReadBool() { // num_ref_idx_active_override_flag
			for l := 0; l < lists; l++ {
				sh.NumRefIdx[l] = int(r.ReadUe()) + 1
			}
		}
		for l := 0; l < lists; l++ {
			if sh.NumRefIdx[l] > MaxRefIdxActive {
				return errors.Wrapf(ErrInvalidNALUnit, "num_ref_idx_l%d_active = %d", l, sh.NumRefIdx[l])
			}
		}

		if total := sh.numPicTotalCurr(); pps.ListsModificationPresent && total > 1 {
			n := ceilLog2(total)
			for l := 0; l < lists; l++ {
				if r.ReadBool() { // ref_pic_list_modification_flag_lX
					r.Skip(n * sh.NumRefIdx[l]) // list_entry_lX
				}
			}
		}
		if sh.SliceType == SliceB {
			r.Skip(1) // mvd_l1_zero_flag
		}
		if pps.CabacInitPresent {
			r.Skip(1) // cabac_init_flag
		}
		if sh.TemporalMVPEnabled {
			fromL0 := true
			if sh.SliceType == SliceB {
				fromL0 = r.ReadBool()
			}
			if (fromL0 && sh.NumRefIdx[0] > 1) || (!fromL0 && sh.NumRefIdx[1] > 1) {
				r.ReadUe() // collocated_ref_idx
			}
		}
		if (pps.WeightedPred && sh.SliceType == SliceP) || (pps.WeightedBipred && sh.SliceType == SliceB) {
			skipPredWeightTable(r, sps.ChromaArrayType() != 0, sh.NumRefIdx[:lists])
		}
		if n := r.ReadUe(); n > 4 {
			return errors.Wrapf(ErrInvalidNALUnit, "five_minus_max_num_merge_cand = %d", n)
		}
	}

	sh.QPDelta = int(r.ReadSe())
	if pps.SliceChromaQPOffsetsPresent {
		r.ReadSe() // slice_cb_qp_offset
		r.ReadSe() // slice_cr_qp_offset
	}
	if pps.ChromaQPOffsetListEnabled {
		r.Skip(1) // cu_chroma_qp_offset_enabled_flag
	}

	override := false
	if pps.DeblockingOverrideEnabled {
		override = r.ReadBool()
	}
	if override {
		sh.DeblockingDisabled = r.ReadBool()
		if !sh.DeblockingDisabled {
			r.ReadSe() // slice_beta_offset_div2
			r.ReadSe() // slice_tc_offset_div2
		}
	}
	if pps.LoopFilterAcrossSlices && (sh.SAOLuma || sh.SAOChroma || !sh.DeblockingDisabled) {
		sh.LoopFilterAcrossSlices = r.ReadBool()
	}
	return nil
}

// numPicTotalCurr counts the references used by the current picture.
func (sh *SliceHeader) numPicTotalCurr() int {
	n := 0
	if rps := sh.ShortTermRPS; rps != nil {
		for _, set := range [][]RefPic{rps.S0, rps.S1} {
			for _, ref := range set {
				if ref.Used {
					n++
				}
			}
		}
	}
	for _, lt := range sh.LongTerm {
		if lt.Used {
			n++
		}
	}
	return n
}

func skipPredWeightTable(r *bits.Reader, chroma bool, numRefIdx []int) {
	r.ReadUe() // luma_log2_weight_denom
	if chroma {
		r.ReadSe() // delta_chroma_log2_weight_denom
	}
	for _, n := range numRefIdx {
		var lumaFlags, chromaFlags [MaxRefIdxActive]bool
		for i := 0; i < n; i++ {
			lumaFlags[i] = r.ReadBool()
		}
		if chroma {
			for i := 0; i < n; i++ {
				chromaFlags[i] = r.ReadBool()
			}
		}
		for i := 0; i < n; i++ {
			if lumaFlags[i] {
				r.ReadSe() // delta_luma_weight
				r.ReadSe() // luma_offset
			}
			if chromaFlags[i] {
				for j := 0; j < 4; j++ {
					r.ReadSe() // delta_chroma_weight, delta_chroma_offset of Cb and Cr
				}
			}
		}
	}
}

// SlicePPSID returns slice_pic_parameter_set_id of a slice segment NAL
// unit without decoding the rest of the header.
func SlicePPSID(unit []byte) (id int, err error) {
	defer recoverDecode("slice header", &err)

	r := bits.NewReader(utils.EBSPToRBSP(unit))
	var h NALHeader
	if err = h.decode(r); err != nil {
		return
	}
	if !h.IsVCL() {
		return 0, errors.Wrapf(ErrInvalidNALUnit, "%s is not a slice", NALTypeName(h.Type))
	}
	r.Skip(1) // first_slice_segment_in_pic_flag
	if h.Type >= NalBlaWLp && h.Type <= NalIrapVcl23 {
		r.Skip(1) // no_output_of_prior_pics_flag
	}
	id = int(r.ReadUe())
	if id >= MaxPPSCount {
		return 0, errors.Wrapf(ErrInvalidNALUnit, "slice_pic_parameter_set_id = %d", id)
	}
	return
}

func (sh *SliceHeader) decodeRPS(r *bits.Reader, sps *SPS) error {
	numSets := len(sps.ShortTermRPS)
	if !r.ReadBool() { // short_term_ref_pic_set_sps_flag
		if err := sh.inlineRPS.decode(r, numSets, sps.ShortTermRPS); err != nil {
			return err
		}
		sh.ShortTermRPS = &sh.inlineRPS
	} else {
		if numSets == 0 {
			return errors.Wrap(ErrInvalidNALUnit, "slice selects a sps rps but the sps has none")
		}
		idx := 0
		if numSets > 1 {
			idx = int(r.ReadUint32(ceilLog2(numSets)))
		}
		if idx >= numSets {
			return errors.Wrapf(ErrInvalidNALUnit, "short_term_ref_pic_set_idx = %d", idx)
		}
		sh.RPSIdx = idx
		sh.ShortTermRPS = &sps.ShortTermRPS[idx]
	}

	if !sps.LongTermRefPicsPresent {
		return nil
	}
	numLtSps := 0
	if len(sps.LtRefPicPOCLsb) > 0 {
		numLtSps = int(r.ReadUe())
		if numLtSps > len(sps.LtRefPicPOCLsb) {
			return errors.Wrapf(ErrInvalidNALUnit, "num_long_term_sps = %d", numLtSps)
		}
	}
	numLtPics := int(r.ReadUe())
	if numLtSps+numLtPics > MaxDpbSize {
		return errors.Wrapf(ErrInvalidNALUnit, "%d long-term pictures", numLtSps+numLtPics)
	}

	for i := 0; i < numLtSps+numLtPics; i++ {
		var lt LongTermRef
		if i < numLtSps {
			idx := 0
			if len(sps.LtRefPicPOCLsb) > 1 {
				idx = int(r.ReadUint32(ceilLog2(len(sps.LtRefPicPOCLsb))))
			}
			if idx >= len(sps.LtRefPicPOCLsb) {
				return errors.Wrapf(ErrInvalidNALUnit, "lt_idx_sps = %d", idx)
			}
			lt.POCLsb = sps.LtRefPicPOCLsb[idx]
			lt.Used = sps.UsedByCurrPicLt[idx]
		} else {
			lt.POCLsb = int(r.ReadUint32(sps.Log2MaxPOCLsb))
			lt.Used = r.ReadBool()
		}
		lt.MsbPresent = r.ReadBool()
		if lt.MsbPresent {
			lt.DeltaMsbCycle = int(r.ReadUe())
		}
		// the delta accumulates within each of the two groups
		if i != 0 && i != numLtSps {
			lt.DeltaMsbCycle += sh.LongTerm[i-1].DeltaMsbCycle
		}
		sh.LongTerm = append(sh.LongTerm, lt)
	}
	return nil
}

func (sh *SliceHeader) inherit(prev *SliceHeader) {
	sh.SliceType = prev.SliceType
	sh.PicOutput = prev.PicOutput
	sh.ColourPlane = prev.ColourPlane
	sh.POCLsb = prev.POCLsb
	sh.RPSIdx = prev.RPSIdx
	if prev.ShortTermRPS == &prev.inlineRPS {
		sh.inlineRPS.S0 = append(sh.inlineRPS.S0[:0], prev.inlineRPS.S0...)
		sh.inlineRPS.S1 = append(sh.inlineRPS.S1[:0], prev.inlineRPS.S1...)
		sh.ShortTermRPS = &sh.inlineRPS
	} else {
		sh.ShortTermRPS = prev.ShortTermRPS
	}
	sh.LongTerm = append(sh.LongTerm[:0], prev.LongTerm...)
	sh.TemporalMVPEnabled = prev.TemporalMVPEnabled
	sh.SAOLuma = prev.SAOLuma
	sh.SAOChroma = prev.SAOChroma
	sh.NumRefIdx = prev.NumRefIdx
	sh.QPDelta = prev.QPDelta
	sh.DeblockingDisabled = prev.DeblockingDisabled
	sh.LoopFilterAcrossSlices = prev.LoopFilterAcrossSlices
}
