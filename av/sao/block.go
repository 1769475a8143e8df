// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sao

import (
	"github.com/cnotch/h265dec/av/picture"
	"github.com/pkg/errors"
)

// Direction indexes the availability vector of a block.
type Direction int

// neighbour directions
const (
	Left Direction = iota
	Right
	Top
	Bottom
	TopLeft
	TopRight
	BottomLeft
	BottomRight
	numDirections
)

// Availability tells, per direction, whether the samples across that block
// border may be read.
type Availability [numDirections]bool

// AllAvailable .
var AllAvailable = Availability{true, true, true, true, true, true, true, true}

// Block is a filtering region in luma samples. It never crosses a slice or
// tile boundary.
type Block struct {
	X      int
	Y      int
	Width  int
	Height int
	Avail  Availability
}

// Blocks lists the blocks of every unit in raster order.
type Blocks [][]Block

// BuildFilterBlocks derives one block per unit. sliceAddr gives, per unit
// in raster order, the tile scan address of the first unit of its slice, so
// a later slice has a larger address. crossSlices holds, per unit, whether
// its slice may be filtered across its borders with earlier slices; a border
// between two slices follows the flag of the later one, and a nil
// crossSlices crosses none. tileID gives the tile index of each unit, nil
// meaning a single tile. Borders of the picture are never available.
func BuildFilterBlocks(geo Geometry, sliceAddr []int, crossSlices []bool, tileID []int, crossTiles bool) (Blocks, error) {
	if err := geo.validate(); err != nil {
		return nil, err
	}
	wide, high := geo.UnitsWide(), geo.UnitsHigh()
	n := wide * high
	if len(sliceAddr) != n || (crossSlices != nil && len(crossSlices) != n) ||
		(tileID != nil && len(tileID) != n) {
		return nil, errors.Wrapf(ErrInvalidParams, "%d units, %d slice addresses, %d slice flags, %d tile ids",
			n, len(sliceAddr), len(crossSlices), len(tileID))
	}

	offsets := [numDirections][2]int{
		Left:        {-1, 0},
		Right:       {1, 0},
		Top:         {0, -1},
		Bottom:      {0, 1},
		TopLeft:     {-1, -1},
		TopRight:    {1, -1},
		BottomLeft:  {-1, 1},
		BottomRight: {1, 1},
	}

	blocks := make(Blocks, n)
	for ry := 0; ry < high; ry++ {
		for rx := 0; rx < wide; rx++ {
			addr := ry*wide + rx
			b := Block{
				X:      rx * geo.UnitWidth,
				Y:      ry * geo.UnitHeight,
				Width:  geo.UnitWidth,
				Height: geo.UnitHeight,
			}
			if b.X+b.Width > geo.Width {
				b.Width = geo.Width - b.X
			}
			if b.Y+b.Height > geo.Height {
				b.Height = geo.Height - b.Y
			}
			for d, o := range offsets {
				nx, ny := rx+o[0], ry+o[1]
				if nx < 0 || ny < 0 || nx >= wide || ny >= high {
					continue
				}
				na := ny*wide + nx
				if sliceAddr[na] != sliceAddr[addr] {
					later := addr
					if sliceAddr[na] > sliceAddr[addr] {
						later = na
					}
					if crossSlices == nil || !crossSlices[later] {
						continue
					}
				}
				if !crossTiles && tileID != nil && tileID[na] != tileID[addr] {
					continue
				}
				b.Avail[d] = true
			}
			blocks[addr] = []Block{b}
		}
	}
	return blocks, nil
}

// covers reports whether the sample at (x, y), relative to a w x h block,
// is inside the block or across an available border.
func (a *Availability) covers(x, y, w, h int) bool {
	col, row := 0, 0
	if x < 0 {
		col = -1
	} else if x >= w {
		col = 1
	}
	if y < 0 {
		row = -1
	} else if y >= h {
		row = 1
	}
	switch {
	case row == 0 && col == 0:
		return true
	case row == 0:
		if col < 0 {
			return a[Left]
		}
		return a[Right]
	case col == 0:
		if row < 0 {
			return a[Top]
		}
		return a[Bottom]
	case row < 0:
		if col < 0 {
			return a[TopLeft]
		}
		return a[TopRight]
	}
	if col < 0 {
		return a[BottomLeft]
	}
	return a[BottomRight]
}

// neighbour offsets of each edge class: the sample is compared with
// (x-dx, y-dy) and (x+dx, y+dy)
var edgeDirs = [4][2]int{
	TypeEO0: {1, 0},
	TypeEO1: {0, 1},
	TypeEO2: {1, 1},
	TypeEO3: {1, -1},
}

// ApplyBlocks filters pic block by block. Every block reads a snapshot of the
// picture taken before filtering and writes the picture, so the result does
// not depend on the order the units are visited in.
func (f *Filter) ApplyBlocks(pic *picture.Picture, params *Params, blocks Blocks) error {
	return f.applyBlocks(pic, params, blocks, nil)
}

// applyBlocks visits the units in order, or in raster order when order is nil.
func (f *Filter) applyBlocks(pic *picture.Picture, params *Params, blocks Blocks, order []int) error {
	if err := f.check(pic, params); err != nil {
		return err
	}
	if len(blocks) != f.geo.NumUnits() {
		return errors.Wrapf(ErrInvalidParams, "%d block lists for %d units", len(blocks), f.geo.NumUnits())
	}
	if order == nil {
		order = make([]int, len(blocks))
		for i := range order {
			order[i] = i
		}
	}

	for c := 0; c < f.geo.NumComponents(); c++ {
		if !params.Enabled[c] {
			continue
		}
		pl := &pic.Planes[c]
		snap := &f.snapshot[c]
		if len(snap.Samples) != len(pl.Samples) {
			snap.Samples = make([]uint16, len(pl.Samples))
		}
		snap.Width, snap.Height, snap.Stride = pl.Width, pl.Height, pl.Stride
		snap.CopyFrom(pl)

		f.setBitDepth(pic.BitDepth(c))
		f.built = -1
		sx, sy := f.geo.Format.ShiftX(c), f.geo.Format.ShiftY(c)
		for _, addr := range order {
			src := params.source(c, addr)
			u := &params.Units[c][src]
			if u.Type == TypeNone {
				continue
			}
			if f.built != src {
				f.buildTables(u)
				f.built = src
			}
			for i := range blocks[addr] {
				b := &blocks[addr][i]
				f.processBlock(snap, pl, u.Type, b.X>>sx, b.Y>>sy, b.Width>>sx, b.Height>>sy, &b.Avail)
			}
		}
	}
	return nil
}

// processBlock filters the block at (bx, by) of dst, classifying samples of src.
func (f *Filter) processBlock(src, dst *picture.Plane, typ Type, bx, by, w, h int, avail *Availability) {
	if typ == TypeBO {
		for y := 0; y < h; y++ {
			s := src.Samples[(by+y)*src.Stride+bx:]
			d := dst.Samples[(by+y)*dst.Stride+bx:]
			for x := 0; x < w; x++ {
				d[x] = f.band(s[x])
			}
		}
		return
	}

	dx, dy := edgeDirs[typ][0], edgeDirs[typ][1]
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !avail.covers(x-dx, y-dy, w, h) || !avail.covers(x+dx, y+dy, w, h) {
				continue
			}
			ax, ay := bx+x-dx, by+y-dy
			cx, cy := bx+x+dx, by+y+dy
			if ax < 0 || ay < 0 || cx < 0 || cy < 0 ||
				ax >= src.Width || cx >= src.Width || ay >= src.Height || cy >= src.Height {
				continue
			}
			v := int(src.At(bx+x, by+y))
			e := sign(v-int(src.At(ax, ay))) + sign(v-int(src.At(cx, cy))) + 2
			dst.Set(bx+x, by+y, f.edge(uint16(v), e))
		}
	}
}
