// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"fmt"

	"github.com/cnotch/h265dec/utils/bits"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidNALUnit is the cause of every malformed or truncated syntax structure.
	ErrInvalidNALUnit = errors.New("hevc: invalid NAL unit")
	// ErrUnsupported is returned for legal syntax this package does not handle.
	ErrUnsupported = errors.New("hevc: unsupported syntax")
)

// NALHeader is the two byte nal_unit_header.
type NALHeader struct {
	Type       uint8
	LayerID    uint8
	TemporalID uint8
}

// ParseNALHeader parses the header of a NAL unit given without start code.
func ParseNALHeader(unit []byte) (h NALHeader, err error) {
	if len(unit) < 2 {
		return h, errors.Wrapf(ErrInvalidNALUnit, "nal unit too short (%d bytes)", len(unit))
	}
	return h, h.decode(bits.NewReader(unit[:2]))
}

func (h *NALHeader) decode(r *bits.Reader) error {
	if r.ReadBit() != 0 {
		return errors.Wrap(ErrInvalidNALUnit, "forbidden_zero_bit is set")
	}
	h.Type = r.ReadUint8(6)
	h.LayerID = r.ReadUint8(6)
	tid := r.ReadUint8(3)
	if tid == 0 {
		return errors.Wrap(ErrInvalidNALUnit, "nuh_temporal_id_plus1 is zero")
	}
	h.TemporalID = tid - 1
	return nil
}

// IsVCL reports whether the unit carries slice data.
func (h NALHeader) IsVCL() bool { return h.Type < NalVps }

// IsIRAP reports whether the unit belongs to an intra random access point picture.
func (h NALHeader) IsIRAP() bool { return h.Type >= NalBlaWLp && h.Type <= NalIrapVcl23 }

// IsIDR .
func (h NALHeader) IsIDR() bool { return h.Type == NalIdrWRadl || h.Type == NalIdrNLp }

// IsBLA .
func (h NALHeader) IsBLA() bool { return h.Type >= NalBlaWLp && h.Type <= NalBlaNLp }

// IsCRA .
func (h NALHeader) IsCRA() bool { return h.Type == NalCraNut }

// IsRASL .
func (h NALHeader) IsRASL() bool { return h.Type == NalRaslN || h.Type == NalRaslR }

// IsRADL .
func (h NALHeader) IsRADL() bool { return h.Type == NalRadlN || h.Type == NalRadlR }

// IsSubLayerNonReference reports the _N VCL types that are not used for
// reference by pictures of the same sub-layer.
func (h NALHeader) IsSubLayerNonReference() bool {
	return h.Type <= NalVclR15 && h.Type&1 == 0
}

// IsReserved reports the reserved VCL types a decoder ignores.
func (h NALHeader) IsReserved() bool {
	return (h.Type >= NalVclN10 && h.Type <= NalVclR15) ||
		(h.Type >= NalRsvVcl24 && h.Type <= NalRsvVcl31)
}

func (h NALHeader) String() string {
	return fmt.Sprintf("%s(tid=%d,layer=%d)", NALTypeName(h.Type), h.TemporalID, h.LayerID)
}

var nalTypeNames = map[uint8]string{
	NalTrailN: "TRAIL_N", NalTrailR: "TRAIL_R",
	NalTsaN: "TSA_N", NalTsaR: "TSA_R",
	NalStsaN: "STSA_N", NalStsaR: "STSA_R",
	NalRadlN: "RADL_N", NalRadlR: "RADL_R",
	NalRaslN: "RASL_N", NalRaslR: "RASL_R",
	NalBlaWLp: "BLA_W_LP", NalBlaWRadl: "BLA_W_RADL", NalBlaNLp: "BLA_N_LP",
	NalIdrWRadl: "IDR_W_RADL", NalIdrNLp: "IDR_N_LP",
	NalCraNut: "CRA",
	NalVps: "VPS", NalSps: "SPS", NalPps: "PPS",
	NalAud: "AUD", NalEosNut: "EOS", NalEobNut: "EOB", NalFdNut: "FD",
	NalSeiPrefix: "SEI_PREFIX", NalSeiSuffix: "SEI_SUFFIX",
}

// NALTypeName returns the mnemonic of a nal_unit_type.
func NALTypeName(t uint8) string {
	if name, ok := nalTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("RSV_%d", t)
}

// recoverDecode turns a bit reader overrun into an error. It must be
// deferred directly by the public Decode methods.
func recoverDecode(what string, err *error) {
	if r := recover(); r != nil {
		*err = errors.Wrapf(ErrInvalidNALUnit, "%s decode panic; r = %v", what, r)
	}
}

func ceilLog2(n int) int {
	l := 0
	for (1 << uint(l)) < n {
		l++
	}
	return l
}
