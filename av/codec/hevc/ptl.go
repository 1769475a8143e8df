// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import "github.com/cnotch/h265dec/utils/bits"

// Profile is the profile part of profile_tier_level, general or per sub-layer.
type Profile struct {
	Space              uint8
	Tier               uint8
	IDC                uint8
	CompatibilityFlags uint32
	Progressive        bool
	Interlaced         bool
	NonPacked          bool
	FrameOnly          bool
	// 43 bits of constraint flags, their meaning depends on the profile.
	ConstraintFlags uint64
	Inbld           bool
}

// Compatible reports whether the profile is idc or declares compatibility with it.
func (p *Profile) Compatible(idc uint8) bool {
	return p.IDC == idc || (idc < 32 && p.CompatibilityFlags&(1<<(31-idc)) != 0)
}

func (p *Profile) decode(r *bits.Reader) {
	p.Space = r.ReadUint8(2)
	p.Tier = r.ReadBit()
	p.IDC = r.ReadUint8(5)
	p.CompatibilityFlags = r.ReadUint32(32)
	p.Progressive = r.ReadBool()
	p.Interlaced = r.ReadBool()
	p.NonPacked = r.ReadBool()
	p.FrameOnly = r.ReadBool()
	p.ConstraintFlags = r.ReadUint64(43)
	p.Inbld = r.ReadBool()
}

// ProfileTierLevel is the profile_tier_level syntax structure.
type ProfileTierLevel struct {
	General  Profile
	LevelIDC uint8

	SubLayerProfilePresent [MaxSubLayers]bool
	SubLayerLevelPresent   [MaxSubLayers]bool
	SubLayer               [MaxSubLayers]Profile
	SubLayerLevelIDC       [MaxSubLayers]uint8
}

func (ptl *ProfileTierLevel) decode(r *bits.Reader, profilePresent bool, maxSubLayersMinus1 int) {
	if profilePresent {
		ptl.General.decode(r)
	}
	ptl.LevelIDC = r.ReadUint8(8)

	for i := 0; i < maxSubLayersMinus1; i++ {
		ptl.SubLayerProfilePresent[i] = r.ReadBool()
		ptl.SubLayerLevelPresent[i] = r.ReadBool()
	}
	if maxSubLayersMinus1 > 0 {
		for i := maxSubLayersMinus1; i < 8; i++ {
			r.Skip(2) // reserved_zero_2bits
		}
	}

	for i := 0; i < maxSubLayersMinus1; i++ {
		if ptl.SubLayerProfilePresent[i] {
			ptl.SubLayer[i].decode(r)
		}
		if ptl.SubLayerLevelPresent[i] {
			ptl.SubLayerLevelIDC[i] = r.ReadUint8(8)
		}
	}
}
