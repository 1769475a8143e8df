// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/h265dec/av/picture"
	"github.com/cnotch/h265dec/av/sao"
)

// Reconstructor turns the slice data of one slice segment into samples.
type Reconstructor interface {
	// DecodeSlice reconstructs the coding tree units of the segment into pic
	// and sets their SAO parameters in params. Units a reconstructor does
	// not touch keep SAO disabled.
	DecodeSlice(sh *hevc.SliceHeader, unit []byte, pic *picture.Picture, params *sao.Params) error
}

// ReconstructorFunc adapts a function to Reconstructor.
type ReconstructorFunc func(sh *hevc.SliceHeader, unit []byte, pic *picture.Picture, params *sao.Params) error

// DecodeSlice calls f.
func (f ReconstructorFunc) DecodeSlice(sh *hevc.SliceHeader, unit []byte, pic *picture.Picture, params *sao.Params) error {
	return f(sh, unit, pic, params)
}

// NullReconstructor paints every picture mid-grey and leaves SAO disabled.
// It lets the picture management run without slice data decoding.
type NullReconstructor struct{}

// DecodeSlice .
func (NullReconstructor) DecodeSlice(sh *hevc.SliceHeader, unit []byte, pic *picture.Picture, params *sao.Params) error {
	if !sh.FirstSliceInPic {
		return nil
	}
	for c := 0; c < pic.NumPlanes(); c++ {
		pic.Planes[c].Fill(uint16(1) << uint(pic.BitDepth(c)-1))
	}
	return nil
}
