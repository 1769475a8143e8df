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

// VPS is a video parameter set. Only the base layer part is kept.
type VPS struct {
	NAL NALHeader

	ID                   uint8
	BaseLayerInternal    bool
	BaseLayerAvailable   bool
	MaxLayersMinus1      uint8
	MaxSubLayersMinus1   uint8
	TemporalIDNesting    bool
	PTL                  ProfileTierLevel
	SubLayerOrderingInfo bool

	MaxDecPicBufferingMinus1 [MaxSubLayers]uint8
	MaxNumReorderPics        [MaxSubLayers]uint8
	MaxLatencyIncreasePlus1  [MaxSubLayers]uint32

	MaxLayerID         uint8
	NumLayerSetsMinus1 uint16

	TimingInfoPresent bool
	NumUnitsInTick    uint32
	TimeScale         uint32
	HRD               []HRD
	ExtensionFlag     bool
}

// DecodeString 从 base64 字串解码 vps NAL
func (vps *VPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return vps.Decode(data)
}

// Decode 从字节序列中解码 vps NAL
func (vps *VPS) Decode(data []byte) (err error) {
	defer recoverDecode("vps", &err)

	rbsp := utils.EBSPToRBSP(data)
	if len(rbsp) < 4 {
		return errors.Wrap(ErrInvalidNALUnit, "vps: the data is not enough")
	}

	r := bits.NewReader(rbsp)
	if err = vps.NAL.decode(r); err != nil {
		return
	}
	if vps.NAL.Type != NalVps {
		return errors.Wrapf(ErrInvalidNALUnit, "%s is not a vps", NALTypeName(vps.NAL.Type))
	}

	vps.ID = r.ReadUint8(4)
	vps.BaseLayerInternal = r.ReadBool()
	vps.BaseLayerAvailable = r.ReadBool()
	vps.MaxLayersMinus1 = r.ReadUint8(6)
	vps.MaxSubLayersMinus1 = r.ReadUint8(3)
	vps.TemporalIDNesting = r.ReadBool()
	if vps.MaxSubLayersMinus1 >= MaxSubLayers {
		return errors.Wrapf(ErrInvalidNALUnit, "vps_max_sub_layers_minus1 = %d", vps.MaxSubLayersMinus1)
	}
	if vps.MaxSubLayersMinus1 == 0 && !vps.TemporalIDNesting {
		return errors.Wrap(ErrInvalidNALUnit, "vps_temporal_id_nesting_flag must be 1 if vps_max_sub_layers_minus1 is 0")
	}

	r.Skip(16) // vps_reserved_0xffff_16bits
	vps.PTL.decode(r, true, int(vps.MaxSubLayersMinus1))

	vps.SubLayerOrderingInfo = r.ReadBool()
	i := vps.MaxSubLayersMinus1
	if vps.SubLayerOrderingInfo {
		i = 0
	}
	for ; i <= vps.MaxSubLayersMinus1; i++ {
		vps.MaxDecPicBufferingMinus1[i] = r.ReadUe8()
		vps.MaxNumReorderPics[i] = r.ReadUe8()
		vps.MaxLatencyIncreasePlus1[i] = r.ReadUe()
	}
	if !vps.SubLayerOrderingInfo {
		top := vps.MaxSubLayersMinus1
		for i := uint8(0); i < top; i++ {
			vps.MaxDecPicBufferingMinus1[i] = vps.MaxDecPicBufferingMinus1[top]
			vps.MaxNumReorderPics[i] = vps.MaxNumReorderPics[top]
			vps.MaxLatencyIncreasePlus1[i] = vps.MaxLatencyIncreasePlus1[top]
		}
	}

	vps.MaxLayerID = r.ReadUint8(6)
	vps.NumLayerSetsMinus1 = r.ReadUe16()
	// layer_id_included_flag[i][j]
	r.Skip(int(vps.NumLayerSetsMinus1) * (int(vps.MaxLayerID) + 1))

	vps.TimingInfoPresent = r.ReadBool()
	if vps.TimingInfoPresent {
		vps.NumUnitsInTick = r.ReadUint32(32)
		vps.TimeScale = r.ReadUint32(32)
		if r.ReadBool() { // vps_poc_proportional_to_timing_flag
			r.ReadUe() // vps_num_ticks_poc_diff_one_minus1
		}
		numHrd := int(r.ReadUe())
		vps.HRD = make([]HRD, numHrd)
		for i := 0; i < numHrd; i++ {
			r.ReadUe() // hrd_layer_set_idx
			cprmsPresent := true
			if i > 0 {
				cprmsPresent = r.ReadBool()
			}
			vps.HRD[i].decode(r, cprmsPresent, int(vps.MaxSubLayersMinus1))
		}
	}

	vps.ExtensionFlag = r.ReadBool()
	return
}
