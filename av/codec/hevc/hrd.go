// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import "github.com/cnotch/h265dec/utils/bits"

// SubLayerHRD holds the CPB specifications of one sub-layer.
type SubLayerHRD struct {
	BitRateValueMinus1 []uint32
	CpbSizeValueMinus1 []uint32
	CbrFlag            []bool
}

func (s *SubLayerHRD) decode(r *bits.Reader, subPicParamsPresent bool, cpbCnt int) {
	s.BitRateValueMinus1 = make([]uint32, cpbCnt)
	s.CpbSizeValueMinus1 = make([]uint32, cpbCnt)
	s.CbrFlag = make([]bool, cpbCnt)
	for i := 0; i < cpbCnt; i++ {
		s.BitRateValueMinus1[i] = r.ReadUe()
		s.CpbSizeValueMinus1[i] = r.ReadUe()
		if subPicParamsPresent {
			r.ReadUe() // cpb_size_du_value_minus1
			r.ReadUe() // bit_rate_du_value_minus1
		}
		s.CbrFlag[i] = r.ReadBool()
	}
}

// HRD is the hrd_parameters syntax structure.
type HRD struct {
	NalParamsPresent    bool
	VclParamsPresent    bool
	SubPicParamsPresent bool

	BitRateScale uint8
	CpbSizeScale uint8

	InitialCpbRemovalDelayLengthMinus1 uint8
	AuCpbRemovalDelayLengthMinus1      uint8
	DpbOutputDelayLengthMinus1         uint8

	FixedPicRateGeneral         [MaxSubLayers]bool
	FixedPicRateWithinCvs       [MaxSubLayers]bool
	ElementalDurationInTcMinus1 [MaxSubLayers]uint16
	LowDelay                    [MaxSubLayers]bool
	CpbCntMinus1                [MaxSubLayers]uint8
	Nal                         [MaxSubLayers]SubLayerHRD
	Vcl                         [MaxSubLayers]SubLayerHRD
}

func (hrd *HRD) decode(r *bits.Reader, commonInfPresent bool, maxSubLayersMinus1 int) {
	if commonInfPresent {
		hrd.NalParamsPresent = r.ReadBool()
		hrd.VclParamsPresent = r.ReadBool()
		if hrd.NalParamsPresent || hrd.VclParamsPresent {
			hrd.SubPicParamsPresent = r.ReadBool()
			if hrd.SubPicParamsPresent {
				r.Skip(8) // tick_divisor_minus2
				r.Skip(5) // du_cpb_removal_delay_increment_length_minus1
				r.Skip(1) // sub_pic_cpb_params_in_pic_timing_sei_flag
				r.Skip(5) // dpb_output_delay_du_length_minus1
			}
			hrd.BitRateScale = r.ReadUint8(4)
			hrd.CpbSizeScale = r.ReadUint8(4)
			if hrd.SubPicParamsPresent {
				r.Skip(4) // cpb_size_du_scale
			}
			hrd.InitialCpbRemovalDelayLengthMinus1 = r.ReadUint8(5)
			hrd.AuCpbRemovalDelayLengthMinus1 = r.ReadUint8(5)
			hrd.DpbOutputDelayLengthMinus1 = r.ReadUint8(5)
		} else {
			hrd.InitialCpbRemovalDelayLengthMinus1 = 23
			hrd.AuCpbRemovalDelayLengthMinus1 = 23
			hrd.DpbOutputDelayLengthMinus1 = 23
		}
	}

	for i := 0; i <= maxSubLayersMinus1; i++ {
		hrd.FixedPicRateGeneral[i] = r.ReadBool()
		hrd.FixedPicRateWithinCvs[i] = true
		if !hrd.FixedPicRateGeneral[i] {
			hrd.FixedPicRateWithinCvs[i] = r.ReadBool()
		}

		hrd.LowDelay[i] = false
		if hrd.FixedPicRateWithinCvs[i] {
			hrd.ElementalDurationInTcMinus1[i] = r.ReadUe16()
		} else {
			hrd.LowDelay[i] = r.ReadBool()
		}

		hrd.CpbCntMinus1[i] = 0
		if !hrd.LowDelay[i] {
			hrd.CpbCntMinus1[i] = r.ReadUe8()
		}

		if hrd.NalParamsPresent {
			hrd.Nal[i].decode(r, hrd.SubPicParamsPresent, int(hrd.CpbCntMinus1[i])+1)
		}
		if hrd.VclParamsPresent {
			hrd.Vcl[i].decode(r, hrd.SubPicParamsPresent, int(hrd.CpbCntMinus1[i])+1)
		}
	}
}
