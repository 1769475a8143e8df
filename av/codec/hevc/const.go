// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

/**
 * Table 7-1 – NAL unit type codes and NAL unit type classes in
 * T-REC-H.265-201802
 */
const (
	NalTrailN    = 0
	NalTrailR    = 1
	NalTsaN      = 2
	NalTsaR      = 3
	NalStsaN     = 4
	NalStsaR     = 5
	NalRadlN     = 6
	NalRadlR     = 7
	NalRaslN     = 8
	NalRaslR     = 9
	NalVclN10    = 10
	NalVclR11    = 11
	NalVclN12    = 12
	NalVclR13    = 13
	NalVclN14    = 14
	NalVclR15    = 15
	NalBlaWLp    = 16
	NalBlaWRadl  = 17
	NalBlaNLp    = 18
	NalIdrWRadl  = 19
	NalIdrNLp    = 20
	NalCraNut    = 21
	NalIrapVcl22 = 22
	NalIrapVcl23 = 23
	NalRsvVcl24  = 24
	NalRsvVcl25  = 25
	NalRsvVcl26  = 26
	NalRsvVcl27  = 27
	NalRsvVcl28  = 28
	NalRsvVcl29  = 29
	NalRsvVcl30  = 30
	NalRsvVcl31  = 31
	NalVps       = 32
	NalSps       = 33
	NalPps       = 34
	NalAud       = 35
	NalEosNut    = 36
	NalEobNut    = 37
	NalFdNut     = 38
	NalSeiPrefix = 39
	NalSeiSuffix = 40
	NalRsvNvcl41 = 41
	NalRsvNvcl42 = 42
	NalRsvNvcl43 = 43
	NalRsvNvcl44 = 44
	NalRsvNvcl45 = 45
	NalRsvNvcl46 = 46
	NalRsvNvcl47 = 47
	NalUnspec48  = 48
	NalUnspec49  = 49
	NalUnspec50  = 50
	NalUnspec51  = 51
	NalUnspec52  = 52
	NalUnspec53  = 53
	NalUnspec54  = 54
	NalUnspec55  = 55
	NalUnspec56  = 56
	NalUnspec57  = 57
	NalUnspec58  = 58
	NalUnspec59  = 59
	NalUnspec60  = 60
	NalUnspec61  = 61
	NalUnspec62  = 62
	NalUnspec63  = 63

	// RTP 中扩展 (RFC 7798)
	NalApInRtp   = 48
	NalFuInRtp   = 49
	NalPaciInRtp = 50
)

// HEVC(h265) 的图像片类型
const (
	SliceB = 0
	SliceP = 1
	SliceI = 2
)

// Syntax limits from the H.265 level and range constraints.
const (
	// vps_max_sub_layers_minus1 is in [0, 6].
	MaxSubLayers = 7
	// vps_video_parameter_set_id is u(4).
	MaxVPSCount = 16
	// sps_seq_parameter_set_id is in [0, 15].
	MaxSPSCount = 16
	// pps_pic_parameter_set_id is in [0, 63].
	MaxPPSCount = 64

	// MaxDpbSize is bounded above by 16.
	MaxDpbSize = 16
	// MaxRefIdxActive bounds num_ref_idx_lX_active_minus1 + 1.
	MaxRefIdxActive = 15

	// num_short_term_ref_pic_sets is in [0, 64].
	MaxShortTermRefPicSets = 64
	// num_long_term_ref_pics_sps is in [0, 32].
	MaxLongTermRefPics = 32

	// all profiles require that CtbLog2SizeY is in [4, 6].
	MinLog2CtbSize = 4
	MaxLog2CtbSize = 6

	// cpb_cnt_minus1[i] is in [0, 31].
	MaxCpbCnt = 32

	// pic_width/height_in_luma_samples are bounded by sqrt(8 * MaxLumaPs).
	MaxWidth  = 16888
	MaxHeight = 16888

	// table A.6 allows at most 22 tile rows and 20 tile columns.
	MaxTileRows    = 22
	MaxTileColumns = 20
)
