// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

// POCState derives PicOrderCntVal across the pictures of a bitstream.
type POCState struct {
	prevTid0POC int
}

// Derive returns the picture order count of the picture whose first slice
// header is sh. noRaslOutput is NoRaslOutputFlag of an IRAP picture.
func (s *POCState) Derive(sh *SliceHeader, noRaslOutput bool) int {
	maxLsb := 1 << uint(sh.SPS.Log2MaxPOCLsb)
	lsb := sh.POCLsb

	msb := 0
	if !(sh.NAL.IsIRAP() && noRaslOutput) {
		prevLsb := s.prevTid0POC & (maxLsb - 1)
		prevMsb := s.prevTid0POC - prevLsb
		switch {
		case lsb < prevLsb && prevLsb-lsb >= maxLsb/2:
			msb = prevMsb + maxLsb
		case lsb > prevLsb && lsb-prevLsb > maxLsb/2:
			msb = prevMsb - maxLsb
		default:
			msb = prevMsb
		}
	}
	poc := msb + lsb

	nal := sh.NAL
	if nal.TemporalID == 0 && !nal.IsRASL() && !nal.IsRADL() && !nal.IsSubLayerNonReference() {
		s.prevTid0POC = poc
	}
	return poc
}

// Reset forgets the previous Tid0 picture.
func (s *POCState) Reset() { s.prevTid0POC = 0 }
