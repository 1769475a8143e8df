// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"encoding/base64"

	"github.com/cnotch/h265dec/utils"
	"github.com/cnotch/h265dec/utils/bits"
	"github.com/pkg/errors"
)

// Window is a crop window. Offsets count luma samples once returned by
// the SPS accessors.
type Window struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// IsZero .
func (w Window) IsZero() bool { return w == Window{} }

// Add returns the sum of both windows.
func (w Window) Add(o Window) Window {
	return Window{w.Left + o.Left, w.Right + o.Right, w.Top + o.Top, w.Bottom + o.Bottom}
}

func (w *Window) decode(r *bits.Reader) {
	w.Left = int(r.ReadUe())
	w.Right = int(r.ReadUe())
	w.Top = int(r.ReadUe())
	w.Bottom = int(r.ReadUe())
}

// skipScalingListData skips scaling_list_data().
func skipScalingListData(r *bits.Reader) {
	for sizeID := 0; sizeID < 4; sizeID++ {
		step := 1
		if sizeID == 3 {
			step = 3
		}
		for matrixID := 0; matrixID < 6; matrixID += step {
			if !r.ReadBool() { // scaling_list_pred_mode_flag
				r.ReadUe() // scaling_list_pred_matrix_id_delta
				continue
			}
			n := 1 << uint(4+(sizeID<<1))
			if n > 64 {
				n = 64
			}
			if sizeID > 1 {
				r.ReadSe() // scaling_list_dc_coef_minus8
			}
			for i := 0; i < n; i++ {
				r.ReadSe() // scaling_list_delta_coef
			}
		}
	}
}

// VUI is the part of vui_parameters the picture output path uses.
type VUI struct {
	AspectRatioIDC uint8
	SarWidth       uint16
	SarHeight      uint16

	VideoFormat             uint8
	FullRange               bool
	ColourPrimaries         uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8

	FieldSeq             bool
	FrameFieldInfo       bool
	DefaultDisplayWindow Window // chroma units

	TimingInfoPresent bool
	NumUnitsInTick    uint32
	TimeScale         uint32
	HRDPresent        bool
	HRD               HRD

	BitstreamRestriction bool
}

func (vui *VUI) setDefault() {
	*vui = VUI{
		VideoFormat:             5,
		ColourPrimaries:         2,
		TransferCharacteristics: 2,
		MatrixCoefficients:      2,
	}
}

func (vui *VUI) decode(r *bits.Reader, sps *SPS) {
	vui.setDefault()

	if r.ReadBool() { // aspect_ratio_info_present_flag
		vui.AspectRatioIDC = r.ReadUint8(8)
		if vui.AspectRatioIDC == 255 {
			vui.SarWidth = r.ReadUint16(16)
			vui.SarHeight = r.ReadUint16(16)
		}
	}

	if r.ReadBool() { // overscan_info_present_flag
		r.Skip(1) // overscan_appropriate_flag
	}

	if r.ReadBool() { // video_signal_type_present_flag
		vui.VideoFormat = r.ReadUint8(3)
		vui.FullRange = r.ReadBool()
		if r.ReadBool() { // colour_description_present_flag
			vui.ColourPrimaries = r.ReadUint8(8)
			vui.TransferCharacteristics = r.ReadUint8(8)
			vui.MatrixCoefficients = r.ReadUint8(8)
		}
	}

	if r.ReadBool() { // chroma_loc_info_present_flag
		r.ReadUe() // chroma_sample_loc_type_top_field
		r.ReadUe() // chroma_sample_loc_type_bottom_field
	}

	r.Skip(1) // neutral_chroma_indication_flag
	vui.FieldSeq = r.ReadBool()
	vui.FrameFieldInfo = r.ReadBool()

	if r.ReadBool() { // default_display_window_flag
		vui.DefaultDisplayWindow.decode(r)
	}

	vui.TimingInfoPresent = r.ReadBool()
	if vui.TimingInfoPresent {
		vui.NumUnitsInTick = r.ReadUint32(32)
		vui.TimeScale = r.ReadUint32(32)
		if r.ReadBool() { // vui_poc_proportional_to_timing_flag
			r.ReadUe() // vui_num_ticks_poc_diff_one_minus1
		}
		vui.HRDPresent = r.ReadBool()
		if vui.HRDPresent {
			vui.HRD.decode(r, true, int(sps.MaxSubLayersMinus1))
		}
	}

	vui.BitstreamRestriction = r.ReadBool()
	if vui.BitstreamRestriction {
		r.Skip(3)  // tiles_fixed_structure, motion_vectors_over_pic_boundaries, restricted_ref_pic_lists
		r.ReadUe() // min_spatial_segmentation_idc
		r.ReadUe() // max_bytes_per_pic_denom
		r.ReadUe() // max_bits_per_min_cu_denom
		r.ReadUe() // log2_max_mv_length_horizontal
		r.ReadUe() // log2_max_mv_length_vertical
	}
}

// SPS is a sequence parameter set.
type SPS struct {
	NAL NALHeader

	VPSID              uint8
	MaxSubLayersMinus1 uint8
	TemporalIDNesting  bool
	PTL                ProfileTierLevel
	ID                 uint8

	ChromaFormatIDC     uint8
	SeparateColourPlane bool
	PicWidth            int    // pic_width_in_luma_samples
	PicHeight           int    // pic_height_in_luma_samples
	ConfWindow          Window // chroma units

	BitDepthLuma   int
	BitDepthChroma int

	Log2MaxPOCLsb int

	SubLayerOrderingInfo     bool
	MaxDecPicBufferingMinus1 [MaxSubLayers]int
	MaxNumReorderPics        [MaxSubLayers]int
	MaxLatencyIncreasePlus1  [MaxSubLayers]uint32

	Log2MinCbSize               int
	Log2CtbSize                 int
	Log2MinTbSize               int
	Log2MaxTbSize               int
	MaxTransformHierarchyInter  int
	MaxTransformHierarchyIntra  int
	ScalingListEnabled          bool
	AMPEnabled                  bool
	SAOEnabled                  bool
	PCMEnabled                  bool
	PCMLoopFilterDisabled       bool
	ShortTermRPS                []ShortTermRPS
	LongTermRefPicsPresent      bool
	LtRefPicPOCLsb              []int
	UsedByCurrPicLt             []bool
	TemporalMVPEnabled          bool
	StrongIntraSmoothingEnabled bool

	VUIPresent bool
	VUI        VUI

	ExtensionPresent bool
	RangeExtension   bool
	SCCExtension     bool
}

// Width 视频宽度（像素）
func (sps *SPS) Width() int { return sps.PicWidth }

// Height 视频高度（像素）
func (sps *SPS) Height() int { return sps.PicHeight }

// FrameRate Video frame rate
func (sps *SPS) FrameRate() float64 {
	if sps.VUI.NumUnitsInTick == 0 {
		return 0.0
	}
	return float64(sps.VUI.TimeScale) / float64(sps.VUI.NumUnitsInTick)
}

// MaxSubLayers returns sps_max_sub_layers_minus1 + 1.
func (sps *SPS) MaxSubLayers() int { return int(sps.MaxSubLayersMinus1) + 1 }

// HighestTid maps a requested temporal layer to the one whose limits apply;
// a negative or too large value selects the highest sub-layer.
func (sps *SPS) HighestTid(tid int) int {
	if tid < 0 || tid >= sps.MaxSubLayers() {
		return sps.MaxSubLayers() - 1
	}
	return tid
}

// MaxDecPicBuffering returns sps_max_dec_pic_buffering_minus1[tid] + 1.
func (sps *SPS) MaxDecPicBuffering(tid int) int {
	return sps.MaxDecPicBufferingMinus1[sps.HighestTid(tid)] + 1
}

// NumReorderPics returns sps_max_num_reorder_pics[tid].
func (sps *SPS) NumReorderPics(tid int) int {
	return sps.MaxNumReorderPics[sps.HighestTid(tid)]
}

// ChromaArrayType is 0 for monochrome and separate colour planes.
func (sps *SPS) ChromaArrayType() int {
	if sps.SeparateColourPlane {
		return 0
	}
	return int(sps.ChromaFormatIDC)
}

// SubWidthC .
func (sps *SPS) SubWidthC() int {
	if sps.ChromaFormatIDC == 1 || sps.ChromaFormatIDC == 2 {
		return 2
	}
	return 1
}

// SubHeightC .
func (sps *SPS) SubHeightC() int {
	if sps.ChromaFormatIDC == 1 {
		return 2
	}
	return 1
}

// CtbSize returns CtbSizeY.
func (sps *SPS) CtbSize() int { return 1 << uint(sps.Log2CtbSize) }

// PicWidthInCtbs .
func (sps *SPS) PicWidthInCtbs() int { return (sps.PicWidth + sps.CtbSize() - 1) >> uint(sps.Log2CtbSize) }

// PicHeightInCtbs .
func (sps *SPS) PicHeightInCtbs() int {
	return (sps.PicHeight + sps.CtbSize() - 1) >> uint(sps.Log2CtbSize)
}

// PicSizeInCtbs .
func (sps *SPS) PicSizeInCtbs() int { return sps.PicWidthInCtbs() * sps.PicHeightInCtbs() }

func (sps *SPS) scaled(w Window) Window {
	sx, sy := sps.SubWidthC(), sps.SubHeightC()
	return Window{w.Left * sx, w.Right * sx, w.Top * sy, w.Bottom * sy}
}

// ConformanceWindow returns the conformance window in luma samples.
func (sps *SPS) ConformanceWindow() Window { return sps.scaled(sps.ConfWindow) }

// DefaultDisplayWindow returns the VUI default display window in luma samples.
func (sps *SPS) DefaultDisplayWindow() Window { return sps.scaled(sps.VUI.DefaultDisplayWindow) }

// FieldSeq reports whether pictures are coded as fields.
func (sps *SPS) FieldSeq() bool { return sps.VUI.FieldSeq }

// DecodeString 从 base64 字串解码 sps NAL
func (sps *SPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return sps.Decode(data)
}

// Decode 从字节序列中解码 sps NAL
func (sps *SPS) Decode(data []byte) (err error) {
	defer recoverDecode("sps", &err)

	rbsp := utils.EBSPToRBSP(data)
	if len(rbsp) < 4 {
		return errors.Wrap(ErrInvalidNALUnit, "sps: the data is not enough")
	}

	r := bits.NewReader(rbsp)
	if err = sps.NAL.decode(r); err != nil {
		return
	}
	if sps.NAL.Type != NalSps {
		return errors.Wrapf(ErrInvalidNALUnit, "%s is not a sps", NALTypeName(sps.NAL.Type))
	}

	sps.VPSID = r.ReadUint8(4)
	sps.MaxSubLayersMinus1 = r.ReadUint8(3)
	if sps.MaxSubLayersMinus1 >= MaxSubLayers {
		return errors.Wrapf(ErrInvalidNALUnit, "sps_max_sub_layers_minus1 = %d", sps.MaxSubLayersMinus1)
	}
	sps.TemporalIDNesting = r.ReadBool()
	sps.PTL.decode(r, true, int(sps.MaxSubLayersMinus1))

	id := r.ReadUe()
	if id >= MaxSPSCount {
		return errors.Wrapf(ErrInvalidNALUnit, "sps_seq_parameter_set_id = %d", id)
	}
	sps.ID = uint8(id)

	sps.ChromaFormatIDC = r.ReadUe8()
	if sps.ChromaFormatIDC > 3 {
		return errors.Wrapf(ErrInvalidNALUnit, "chroma_format_idc = %d", sps.ChromaFormatIDC)
	}
	if sps.ChromaFormatIDC == 3 {
		sps.SeparateColourPlane = r.ReadBool()
	}

	sps.PicWidth = int(r.ReadUe())
	sps.PicHeight = int(r.ReadUe())
	if sps.PicWidth == 0 || sps.PicHeight == 0 || sps.PicWidth > MaxWidth || sps.PicHeight > MaxHeight {
		return errors.Wrapf(ErrInvalidNALUnit, "invalid picture size %dx%d", sps.PicWidth, sps.PicHeight)
	}

	if r.ReadBool() { // conformance_window_flag
		sps.ConfWindow.decode(r)
	}

	sps.BitDepthLuma = int(r.ReadUe()) + 8
	sps.BitDepthChroma = int(r.ReadUe()) + 8
	if sps.BitDepthLuma > 16 || sps.BitDepthChroma > 16 {
		return errors.Wrapf(ErrUnsupported, "bit depth %d/%d", sps.BitDepthLuma, sps.BitDepthChroma)
	}

	sps.Log2MaxPOCLsb = int(r.ReadUe()) + 4
	if sps.Log2MaxPOCLsb > 16 {
		return errors.Wrapf(ErrInvalidNALUnit, "log2_max_pic_order_cnt_lsb = %d", sps.Log2MaxPOCLsb)
	}

	sps.SubLayerOrderingInfo = r.ReadBool()
	top := int(sps.MaxSubLayersMinus1)
	i := top
	if sps.SubLayerOrderingInfo {
		i = 0
	}
	for ; i <= top; i++ {
		sps.MaxDecPicBufferingMinus1[i] = int(r.ReadUe())
		sps.MaxNumReorderPics[i] = int(r.ReadUe())
		sps.MaxLatencyIncreasePlus1[i] = r.ReadUe()
		if sps.MaxDecPicBufferingMinus1[i] >= MaxDpbSize {
			return errors.Wrapf(ErrInvalidNALUnit, "sps_max_dec_pic_buffering_minus1[%d] = %d", i, sps.MaxDecPicBufferingMinus1[i])
		}
	}
	if !sps.SubLayerOrderingInfo {
		for i := 0; i < top; i++ {
			sps.MaxDecPicBufferingMinus1[i] = sps.MaxDecPicBufferingMinus1[top]
			sps.MaxNumReorderPics[i] = sps.MaxNumReorderPics[top]
			sps.MaxLatencyIncreasePlus1[i] = sps.MaxLatencyIncreasePlus1[top]
		}
	}

	sps.Log2MinCbSize = int(r.ReadUe()) + 3
	sps.Log2CtbSize = sps.Log2MinCbSize + int(r.ReadUe())
	if sps.Log2CtbSize < MinLog2CtbSize || sps.Log2CtbSize > MaxLog2CtbSize {
		return errors.Wrapf(ErrUnsupported, "CtbLog2SizeY = %d", sps.Log2CtbSize)
	}
	minCbSize := 1 << uint(sps.Log2MinCbSize)
	if sps.PicWidth%minCbSize != 0 || sps.PicHeight%minCbSize != 0 {
		return errors.Wrapf(ErrInvalidNALUnit, "invalid dimensions: %dx%d not divisible by MinCbSizeY = %d",
			sps.PicWidth, sps.PicHeight, minCbSize)
	}

	sps.Log2MinTbSize = int(r.ReadUe()) + 2
	sps.Log2MaxTbSize = sps.Log2MinTbSize + int(r.ReadUe())
	sps.MaxTransformHierarchyInter = int(r.ReadUe())
	sps.MaxTransformHierarchyIntra = int(r.ReadUe())

	sps.ScalingListEnabled = r.ReadBool()
	if sps.ScalingListEnabled {
		if r.ReadBool() { // sps_scaling_list_data_present_flag
			skipScalingListData(r)
		}
	}

	sps.AMPEnabled = r.ReadBool()
	sps.SAOEnabled = r.ReadBool()

	sps.PCMEnabled = r.ReadBool()
	if sps.PCMEnabled {
		r.Skip(4)  // pcm_sample_bit_depth_luma_minus1
		r.Skip(4)  // pcm_sample_bit_depth_chroma_minus1
		r.ReadUe() // log2_min_pcm_luma_coding_block_size_minus3
		r.ReadUe() // log2_diff_max_min_pcm_luma_coding_block_size
		sps.PCMLoopFilterDisabled = r.ReadBool()
	}

	numRps := int(r.ReadUe())
	if numRps > MaxShortTermRefPicSets {
		return errors.Wrapf(ErrInvalidNALUnit, "num_short_term_ref_pic_sets = %d", numRps)
	}
	sps.ShortTermRPS = make([]ShortTermRPS, numRps)
	for i := 0; i < numRps; i++ {
		if err = sps.ShortTermRPS[i].decode(r, i, sps.ShortTermRPS); err != nil {
			return
		}
	}

	sps.LongTermRefPicsPresent = r.ReadBool()
	if sps.LongTermRefPicsPresent {
		n := int(r.ReadUe())
		if n > MaxLongTermRefPics {
			return errors.Wrapf(ErrInvalidNALUnit, "num_long_term_ref_pics_sps = %d", n)
		}
		sps.LtRefPicPOCLsb = make([]int, n)
		sps.UsedByCurrPicLt = make([]bool, n)
		for i := 0; i < n; i++ {
			sps.LtRefPicPOCLsb[i] = int(r.ReadUint32(sps.Log2MaxPOCLsb))
			sps.UsedByCurrPicLt[i] = r.ReadBool()
		}
	}

	sps.TemporalMVPEnabled = r.ReadBool()
	sps.StrongIntraSmoothingEnabled = r.ReadBool()

	sps.VUIPresent = r.ReadBool()
	if sps.VUIPresent {
		sps.VUI.decode(r, sps)
	} else {
		sps.VUI.setDefault()
	}

	sps.ExtensionPresent = r.ReadBool()
	sps.RangeExtension, sps.SCCExtension = false, false
	if sps.ExtensionPresent {
		sps.RangeExtension = r.ReadBool()
		r.Skip(2) // sps_multilayer_extension_flag, sps_3d_extension_flag
		sps.SCCExtension = r.ReadBool()
		// the extension data itself is not used here
	}
	return
}
