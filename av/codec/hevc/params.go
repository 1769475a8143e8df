// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"github.com/cnotch/h265dec/utils"
	"github.com/pkg/errors"
)

// ParameterSets holds the most recent VPS, SPS and PPS of every id.
type ParameterSets struct {
	vps [MaxVPSCount]*VPS
	sps [MaxSPSCount]*SPS
	pps [MaxPPSCount]*PPS
}

// Put decodes a parameter set NAL unit and stores it. Other unit types
// are rejected.
func (ps *ParameterSets) Put(unit []byte) (NALHeader, error) {
	h, err := ParseNALHeader(utils.RemoveNaluSeparator(unit))
	if err != nil {
		return h, err
	}

	switch h.Type {
	case NalVps:
		vps := new(VPS)
		if err = vps.Decode(unit); err == nil {
			ps.vps[vps.ID] = vps
		}
	case NalSps:
		sps := new(SPS)
		if err = sps.Decode(unit); err == nil {
			ps.sps[sps.ID] = sps
		}
	case NalPps:
		pps := new(PPS)
		if err = pps.Decode(unit); err == nil {
			ps.pps[pps.ID] = pps
		}
	default:
		err = errors.Wrapf(ErrInvalidNALUnit, "%s is not a parameter set", NALTypeName(h.Type))
	}
	return h, err
}

// VPS returns the video parameter set id or nil.
func (ps *ParameterSets) VPS(id int) *VPS {
	if id < 0 || id >= MaxVPSCount {
		return nil
	}
	return ps.vps[id]
}

// SPS returns the sequence parameter set id or nil.
func (ps *ParameterSets) SPS(id int) *SPS {
	if id < 0 || id >= MaxSPSCount {
		return nil
	}
	return ps.sps[id]
}

// PPS returns the picture parameter set id or nil.
func (ps *ParameterSets) PPS(id int) *PPS {
	if id < 0 || id >= MaxPPSCount {
		return nil
	}
	return ps.pps[id]
}
