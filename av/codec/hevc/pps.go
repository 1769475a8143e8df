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

// PPS is a picture parameter set, parsed up to the range extension.
type PPS struct {
	NAL NALHeader

	ID    uint8
	SPSID uint8

	DependentSliceSegmentsEnabled bool
	OutputFlagPresent             bool
	NumExtraSliceHeaderBits       int
	SignDataHidingEnabled         bool
	CabacInitPresent              bool
	NumRefIdxL0DefaultActive      int
	NumRefIdxL1DefaultActive      int
	InitQP                        int
	ConstrainedIntraPred          bool
	TransformSkipEnabled          bool
	CuQPDeltaEnabled              bool
	DiffCuQPDeltaDepth            int
	CbQPOffset                    int
	CrQPOffset                    int
	SliceChromaQPOffsetsPresent   bool
	WeightedPred                  bool
	WeightedBipred                bool
	TransquantBypassEnabled       bool
	TilesEnabled                  bool
	EntropyCodingSyncEnabled      bool

	NumTileColumns         int
	NumTileRows            int
	UniformSpacing         bool
	ColumnWidths           []int // in CTBs, only when not uniform
	RowHeights             []int
	LoopFilterAcrossTiles  bool
	LoopFilterAcrossSlices bool

	DeblockingControlPresent    bool
	DeblockingOverrideEnabled   bool
	DeblockingDisabled          bool
	BetaOffsetDiv2              int
	TcOffsetDiv2                int
	ListsModificationPresent    bool
	Log2ParallelMergeLevel      int
	SliceHeaderExtensionPresent bool

	ExtensionPresent          bool
	RangeExtension            bool
	OtherExtensions           bool // multilayer, 3d or scc, not parsed
	ChromaQPOffsetListEnabled bool
	Log2SAOOffsetScaleLuma    int
	Log2SAOOffsetScaleChroma  int
}

// DecodeString 从 base64 字串解码 pps NAL
func (pps *PPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return pps.Decode(data)
}

// Decode 从字节序列中解码 pps NAL
func (pps *PPS) Decode(data []byte) (err error) {
	defer recoverDecode("pps", &err)

	rbsp := utils.EBSPToRBSP(data)
	if len(rbsp) < 3 {
		return errors.Wrap(ErrInvalidNALUnit, "pps: the data is not enough")
	}

	r := bits.NewReader(rbsp)
	if err = pps.NAL.decode(r); err != nil {
		return
	}
	if pps.NAL.Type != NalPps {
		return errors.Wrapf(ErrInvalidNALUnit, "%s is not a pps", NALTypeName(pps.NAL.Type))
	}

	id, spsID := r.ReadUe(), r.ReadUe()
	if id >= MaxPPSCount || spsID >= MaxSPSCount {
		return errors.Wrapf(ErrInvalidNALUnit, "pps id %d refers to sps id %d", id, spsID)
	}
	pps.ID, pps.SPSID = uint8(id), uint8(spsID)

	pps.DependentSliceSegmentsEnabled = r.ReadBool()
	pps.OutputFlagPresent = r.ReadBool()
	pps.NumExtraSliceHeaderBits = int(r.ReadUint8(3))
	pps.SignDataHidingEnabled = r.ReadBool()
	pps.CabacInitPresent = r.ReadBool()
	pps.NumRefIdxL0DefaultActive = int(r.ReadUe()) + 1
	pps.NumRefIdxL1DefaultActive = int(r.ReadUe()) + 1
	pps.InitQP = 26 + int(r.ReadSe())
	pps.ConstrainedIntraPred = r.ReadBool()
	pps.TransformSkipEnabled = r.ReadBool()
	pps.CuQPDeltaEnabled = r.ReadBool()
	if pps.CuQPDeltaEnabled {
		pps.DiffCuQPDeltaDepth = int(r.ReadUe())
	}
	pps.CbQPOffset = int(r.ReadSe())
	pps.CrQPOffset = int(r.ReadSe())
	pps.SliceChromaQPOffsetsPresent = r.ReadBool()
	pps.WeightedPred = r.ReadBool()
	pps.WeightedBipred = r.ReadBool()
	pps.TransquantBypassEnabled = r.ReadBool()
	pps.TilesEnabled = r.ReadBool()
	pps.EntropyCodingSyncEnabled = r.ReadBool()

	pps.NumTileColumns, pps.NumTileRows = 1, 1
	pps.UniformSpacing = true
	pps.LoopFilterAcrossTiles = true
	if pps.TilesEnabled {
		pps.NumTileColumns = int(r.ReadUe()) + 1
		pps.NumTileRows = int(r.ReadUe()) + 1
		if pps.NumTileColumns > MaxTileColumns || pps.NumTileRows > MaxTileRows {
			return errors.Wrapf(ErrInvalidNALUnit, "%dx%d tiles", pps.NumTileColumns, pps.NumTileRows)
		}
		pps.UniformSpacing = r.ReadBool()
		if !pps.UniformSpacing {
			pps.ColumnWidths = make([]int, pps.NumTileColumns-1)
			for i := range pps.ColumnWidths {
				pps.ColumnWidths[i] = int(r.ReadUe()) + 1
			}
			pps.RowHeights = make([]int, pps.NumTileRows-1)
			for i := range pps.RowHeights {
				pps.RowHeights[i] = int(r.ReadUe()) + 1
			}
		}
		pps.LoopFilterAcrossTiles = r.ReadBool()
	}
	pps.LoopFilterAcrossSlices = r.ReadBool()

	pps.DeblockingControlPresent = r.ReadBool()
	if pps.DeblockingControlPresent {
		pps.DeblockingOverrideEnabled = r.ReadBool()
		pps.DeblockingDisabled = r.ReadBool()
		if !pps.DeblockingDisabled {
			pps.BetaOffsetDiv2 = int(r.ReadSe())
			pps.TcOffsetDiv2 = int(r.ReadSe())
		}
	}

	if r.ReadBool() { // pps_scaling_list_data_present_flag
		skipScalingListData(r)
	}
	pps.ListsModificationPresent = r.ReadBool()
	pps.Log2ParallelMergeLevel = int(r.ReadUe()) + 2
	pps.SliceHeaderExtensionPresent = r.ReadBool()

	pps.ExtensionPresent = r.ReadBool()
	pps.RangeExtension, pps.OtherExtensions = false, false
	pps.ChromaQPOffsetListEnabled = false
	pps.Log2SAOOffsetScaleLuma, pps.Log2SAOOffsetScaleChroma = 0, 0
	if !pps.ExtensionPresent {
		return
	}
	pps.RangeExtension = r.ReadBool()
	multilayer, ext3d, scc := r.ReadBool(), r.ReadBool(), r.ReadBool()
	pps.OtherExtensions = multilayer || ext3d || scc
	r.Skip(4) // pps_extension_4bits
	if pps.RangeExtension {
		err = pps.decodeRangeExtension(r)
	}
	return
}

func (pps *PPS) decodeRangeExtension(r *bits.Reader) error {
	if pps.TransformSkipEnabled {
		r.ReadUe() // log2_max_transform_skip_block_size_minus2
	}
	r.Skip(1) // cross_component_prediction_enabled_flag
	pps.ChromaQPOffsetListEnabled = r.ReadBool()
	if pps.ChromaQPOffsetListEnabled {
		r.ReadUe() // diff_cu_chroma_qp_offset_depth
		n := int(r.ReadUe()) + 1
		if n > 6 {
			return errors.Wrapf(ErrInvalidNALUnit, "chroma_qp_offset_list_len_minus1 = %d", n-1)
		}
		for i := 0; i < n; i++ {
			r.ReadSe() // cb_qp_offset_list
			r.ReadSe() // cr_qp_offset_list
		}
	}
	pps.Log2SAOOffsetScaleLuma = int(r.ReadUe())
	pps.Log2SAOOffsetScaleChroma = int(r.ReadUe())
	return nil
}

// TileLayout is the CTB to tile mapping of one picture (6.5.1).
type TileLayout struct {
	ColBd  []int // column boundaries in CTBs, len = columns+1
	RowBd  []int
	RsToTs []int // raster scan to tile scan CTB address
	TsToRs []int
	TileID []int // indexed by raster scan address
}

// TileLayout derives the tile layout of pictures using this PPS with sps.
func (pps *PPS) TileLayout(sps *SPS) (*TileLayout, error) {
	w, h := sps.PicWidthInCtbs(), sps.PicHeightInCtbs()
	cols, err := tileSizes(pps.NumTileColumns, w, pps.UniformSpacing, pps.ColumnWidths)
	if err != nil {
		return nil, err
	}
	rows, err := tileSizes(pps.NumTileRows, h, pps.UniformSpacing, pps.RowHeights)
	if err != nil {
		return nil, err
	}

	tl := &TileLayout{
		ColBd:  boundaries(cols),
		RowBd:  boundaries(rows),
		RsToTs: make([]int, w*h),
		TsToRs: make([]int, w*h),
		TileID: make([]int, w*h),
	}
	for rs := 0; rs < w*h; rs++ {
		tbX, tbY := rs%w, rs/w
		tileX, tileY := 0, 0
		for i := range cols {
			if tbX >= tl.ColBd[i] {
				tileX = i
			}
		}
		for j := range rows {
			if tbY >= tl.RowBd[j] {
				tileY = j
			}
		}
		ts := 0
		for i := 0; i < tileX; i++ {
			ts += rows[tileY] * cols[i]
		}
		for j := 0; j < tileY; j++ {
			ts += w * rows[j]
		}
		ts += (tbY-tl.RowBd[tileY])*cols[tileX] + tbX - tl.ColBd[tileX]
		tl.RsToTs[rs] = ts
		tl.TsToRs[ts] = rs
		tl.TileID[rs] = tileY*len(cols) + tileX
	}
	return tl, nil
}

func tileSizes(n, total int, uniform bool, explicit []int) ([]int, error) {
	sizes := make([]int, n)
	if uniform {
		for i := range sizes {
			sizes[i] = ((i+1)*total)/n - (i*total)/n
		}
		return sizes, nil
	}
	last := total
	for i, s := range explicit {
		sizes[i] = s
		last -= s
	}
	if last <= 0 {
		return nil, errors.Wrapf(ErrInvalidNALUnit, "tile sizes exceed %d CTBs", total)
	}
	sizes[n-1] = last
	return sizes, nil
}

func boundaries(sizes []int) []int {
	bd := make([]int, len(sizes)+1)
	for i, s := range sizes {
		bd[i+1] = bd[i] + s
	}
	return bd
}
