// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sao

import (
	"github.com/cnotch/h265dec/av/picture"
	"github.com/pkg/errors"
)

// Filter applies SAO to pictures of one geometry. Its history buffers are
// reused from picture to picture, so a Filter is not safe for concurrent use.
//
// Samples are addressed as base offset plus y*stride+x into the plane slice;
// the sign buffers carry one extra slot on each side, indexed with x+1.
type Filter struct {
	geo Geometry

	// signs of the row above, ping-ponged within a unit
	upBuff1 []int
	upBufft []int

	// unfiltered column right of the previous unit (unit height + 1 rows)
	tmpL1 []uint16
	tmpL2 []uint16
	// unfiltered last row of the previous and the current unit row
	tmpU1 []uint16
	tmpU2 []uint16

	// tables of the unit last built
	built       int
	offsetEo    [maxEdge]int
	offsetBo    []uint16
	maxValue    int
	bitDepth    int
	bitIncrease uint

	snapshot [3]picture.Plane
}

// NewFilter returns a filter for pictures of geo.
func NewFilter(geo Geometry) (*Filter, error) {
	if err := geo.validate(); err != nil {
		return nil, err
	}
	f := &Filter{geo: geo}
	f.upBuff1 = make([]int, geo.Width+2)
	f.upBufft = make([]int, geo.Width+2)
	f.tmpL1 = make([]uint16, geo.UnitHeight+1)
	f.tmpL2 = make([]uint16, geo.UnitHeight+1)
	f.tmpU1 = make([]uint16, geo.Width)
	f.tmpU2 = make([]uint16, geo.Width)
	return f, nil
}

// Geometry returns the geometry the filter was created for.
func (f *Filter) Geometry() Geometry { return f.geo }

// ApplyInLoopFiltering filters pic in place with params. When blocks is
// nil units are filtered across every boundary; otherwise each block only
// reads the neighbours its availability vector allows. Running it twice on
// the same picture applies the offsets twice.
func ApplyInLoopFiltering(pic *picture.Picture, params *Params, blocks Blocks) error {
	f, err := NewFilter(params.Geometry)
	if err != nil {
		return err
	}
	return f.ApplyInLoop(pic, params, blocks)
}

// ApplyInLoop is ApplyInLoopFiltering on a filter reused across pictures.
func (f *Filter) ApplyInLoop(pic *picture.Picture, params *Params, blocks Blocks) error {
	if blocks != nil {
		return f.ApplyBlocks(pic, params, blocks)
	}
	return f.Apply(pic, params)
}

func (f *Filter) check(pic *picture.Picture, params *Params) error {
	if params.Geometry != f.geo {
		return errors.Wrap(ErrInvalidParams, "parameters were allocated for another geometry")
	}
	if pic.Width() != f.geo.Width || pic.Height() != f.geo.Height || pic.Format != f.geo.Format {
		return errors.Wrapf(ErrInvalidParams, "picture %dx%d %s does not match %dx%d %s",
			pic.Width(), pic.Height(), pic.Format, f.geo.Width, f.geo.Height, f.geo.Format)
	}
	return params.Validate()
}

// Apply filters every enabled component of pic in place, streaming the
// units in raster order. Classification always sees unfiltered samples:
// neighbours in units already filtered are read from the history buffers.
func (f *Filter) Apply(pic *picture.Picture, params *Params) error {
	if err := f.check(pic, params); err != nil {
		return err
	}
	for c := 0; c < f.geo.NumComponents(); c++ {
		if params.Enabled[c] {
			f.applyComponent(pic, params, c)
		}
	}
	return nil
}

// unitRect is the plane rectangle of one unit, clipped to the plane.
type unitRect struct {
	x, y           int // top-left sample
	w, h           int // clipped size
	fullW, fullH   int
	planeW, planeH int
}

func (f *Filter) rect(pic *picture.Picture, c, rx, ry int) unitRect {
	sx, sy := f.geo.Format.ShiftX(c), f.geo.Format.ShiftY(c)
	pl := &pic.Planes[c]
	r := unitRect{
		fullW:  f.geo.UnitWidth >> sx,
		fullH:  f.geo.UnitHeight >> sy,
		planeW: pl.Width,
		planeH: pl.Height,
	}
	r.x, r.y = rx*r.fullW, ry*r.fullH
	r.w, r.h = r.fullW, r.fullH
	if r.x+r.w > pl.Width {
		r.w = pl.Width - r.x
	}
	if r.y+r.h > pl.Height {
		r.h = pl.Height - r.y
	}
	return r
}

func (f *Filter) applyComponent(pic *picture.Picture, params *Params, c int) {
	pl := &pic.Planes[c]
	units := params.Units[c]
	wide, high := f.geo.UnitsWide(), f.geo.UnitsHigh()

	f.setBitDepth(pic.BitDepth(c))
	f.built = -1
	copy(f.tmpU1, pl.Row(0))

	for ry := 0; ry < high; ry++ {
		r := f.rect(pic, c, 0, ry)
		f.copyColumn(f.tmpL1, pl, 0, r.y, r.fullH+1)
		last := r.y + r.fullH - 1
		if last >= pl.Height {
			last = pl.Height - 1
		}
		copy(f.tmpU2, pl.Row(last))

		for rx := 0; rx < wide; rx++ {
			addr := ry*wide + rx
			r := f.rect(pic, c, rx, ry)
			src := params.source(c, addr)
			u := &units[src]
			if u.Type == TypeNone {
				if rx != wide-1 {
					f.copyColumn(f.tmpL1, pl, r.x+r.fullW-1, r.y, r.fullH+1)
				}
				continue
			}
			if f.built != src {
				f.buildTables(u)
				f.built = src
			}
			f.processUnit(pl, u.Type, r)
		}
		f.tmpU1, f.tmpU2 = f.tmpU2, f.tmpU1
	}
}

// copyColumn copies n samples of column x from row y down, repeating the
// last plane row past the bottom.
func (f *Filter) copyColumn(dst []uint16, pl *picture.Plane, x, y, n int) {
	if x >= pl.Width {
		x = pl.Width - 1
	}
	for i := 0; i < n; i++ {
		row := y + i
		if row >= pl.Height {
			row = pl.Height - 1
		}
		dst[i] = pl.Samples[row*pl.Stride+x]
	}
}

func (f *Filter) setBitDepth(bitDepth int) {
	f.bitDepth = bitDepth
	f.maxValue = 1<<uint(bitDepth) - 1
	inc := bitDepth - 10
	if inc < 0 {
		inc = 0
	}
	f.bitIncrease = uint(inc)
	if cap(f.offsetBo) < f.maxValue+1 {
		f.offsetBo = make([]uint16, f.maxValue+1)
	}
	f.offsetBo = f.offsetBo[:f.maxValue+1]
}

func (f *Filter) clip(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > f.maxValue {
		return uint16(f.maxValue)
	}
	return uint16(v)
}

// buildTables derives the per class offsets of u. Its cost depends on the
// number of classes and sample values, never on the unit size.
func (f *Filter) buildTables(u *UnitParam) {
	var offset [numBands + 1]int
	if u.Type == TypeBO {
		for i := 0; i < u.Length; i++ {
			offset[(u.BandPosition+i)%numBands+1] = u.Offsets[i] << f.bitIncrease
		}
		shift := uint(f.bitDepth - bandBits)
		for v := range f.offsetBo {
			f.offsetBo[v] = f.clip(v + offset[1+v>>shift])
		}
		return
	}
	for i := 0; i < u.Length; i++ {
		offset[i+1] = u.Offsets[i] << f.bitIncrease
	}
	for e := range f.offsetEo {
		f.offsetEo[e] = offset[eoTable[e]]
	}
}

func (f *Filter) band(v uint16) uint16 {
	if int(v) > f.maxValue {
		v = uint16(f.maxValue)
	}
	return f.offsetBo[v]
}

func (f *Filter) edge(v uint16, e int) uint16 {
	return f.clip(int(v) + f.offsetEo[e])
}

// processUnit filters one unit in place.
func (f *Filter) processUnit(pl *picture.Plane, typ Type, r unitRect) {
	rec := pl.Samples
	stride := pl.Stride
	base := r.y*stride + r.x
	tmpL := f.tmpL1
	tmpU := f.tmpU1[r.x:]

	// the right column is saved before the unit changes
	f.copyColumn(f.tmpL2, pl, r.x+r.fullW-1, r.y, r.fullH+1)

	startX, endX := 0, r.w
	if r.x == 0 {
		startX = 1
	}
	if r.x+r.w == r.planeW {
		endX = r.w - 1
	}
	startY, endY := 0, r.h
	if r.y == 0 {
		startY = 1
	}
	if r.y+r.h == r.planeH {
		endY = r.h - 1
	}

	switch typ {
	case TypeEO0:
		for y := 0; y < r.h; y++ {
			row := base + y*stride
			signLeft := sign(int(rec[row+startX]) - int(tmpL[y]))
			for x := startX; x < endX; x++ {
				signRight := sign(int(rec[row+x]) - int(rec[row+x+1]))
				e := signRight + signLeft + 2
				signLeft = -signRight
				rec[row+x] = f.edge(rec[row+x], e)
			}
		}

	case TypeEO1:
		up := f.upBuff1
		first := base + startY*stride
		for x := 0; x < r.w; x++ {
			up[x+1] = sign(int(rec[first+x]) - int(tmpU[x]))
		}
		for y := startY; y < endY; y++ {
			row := base + y*stride
			for x := 0; x < r.w; x++ {
				signDown := sign(int(rec[row+x]) - int(rec[row+x+stride]))
				e := signDown + up[x+1] + 2
				up[x+1] = -signDown
				rec[row+x] = f.edge(rec[row+x], e)
			}
		}

	case TypeEO2:
		up, upt := f.upBuff1, f.upBufft
		first := base + startY*stride
		for x := startX; x < endX; x++ {
			// tmpU[x-1] lies left of the unit when x is 0
			up[x+1] = sign(int(rec[first+x]) - int(f.tmpU1[r.x+x-1]))
		}
		for y := startY; y < endY; y++ {
			row := base + y*stride
			signDown2 := sign(int(rec[row+stride+startX]) - int(tmpL[y]))
			for x := startX; x < endX; x++ {
				signDown1 := sign(int(rec[row+x]) - int(rec[row+x+stride+1]))
				e := signDown1 + up[x+1] + 2
				upt[x+2] = -signDown1
				rec[row+x] = f.edge(rec[row+x], e)
			}
			upt[startX+1] = signDown2
			up, upt = upt, up
		}

	case TypeEO3:
		if startX >= endX {
			break
		}
		up := f.upBuff1
		first := base + startY*stride
		for x := startX; x < endX; x++ {
			up[x+1] = sign(int(rec[first+x]) - int(tmpU[x+1]))
		}
		for y := startY; y < endY; y++ {
			row := base + y*stride
			x := startX
			signDown1 := sign(int(rec[row+x]) - int(tmpL[y+1]))
			e := signDown1 + up[x+1] + 2
			up[x] = -signDown1
			rec[row+x] = f.edge(rec[row+x], e)
			for x = startX + 1; x < endX; x++ {
				signDown1 = sign(int(rec[row+x]) - int(rec[row+x+stride-1]))
				e = signDown1 + up[x+1] + 2
				up[x] = -signDown1
				rec[row+x] = f.edge(rec[row+x], e)
			}
			up[endX] = sign(int(rec[row+endX-1+stride]) - int(rec[row+endX]))
		}

	case TypeBO:
		for y := 0; y < r.h; y++ {
			row := rec[base+y*stride : base+y*stride+r.w]
			for x, v := range row {
				row[x] = f.band(v)
			}
		}
	}

	f.tmpL1, f.tmpL2 = f.tmpL2, f.tmpL1
}
