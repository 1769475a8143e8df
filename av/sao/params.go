// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sao

import (
	"math"

	"github.com/pkg/errors"
)

// Part is one region of the parameter quadtree. Unit coordinates are inclusive.
type Part struct {
	Index  int
	Level  int
	Row    int
	Col    int
	Parent int

	StartX int
	EndX   int
	StartY int
	EndY   int

	Type         Type
	BandPosition int
	Length       int
	Offsets      [MaxOffsets]int

	Children  [4]int // TL, TR, BL, BR; -1 at the deepest level
	Split     bool
	Processed bool

	// rate-distortion bookkeeping
	MinCost float64
	MinDist int64
	MinRate int64
}

// IsLeaf .
func (p *Part) IsLeaf() bool { return p.Children[0] < 0 }

// Params holds the quadtree and the per-unit parameters of the three colour components.
type Params struct {
	Geometry
	MaxSplitLevel int

	// Enabled is the per component slice_sao_luma/chroma flag.
	Enabled [3]bool
	// OneUnit makes every unit of a component use the parameters of unit 0.
	OneUnit [3]bool

	Parts [3][]Part
	Units [3][]UnitParam
}

// NewParams allocates the quadtree and unit parameters for geo.
func NewParams(geo Geometry) (*Params, error) {
	if err := geo.validate(); err != nil {
		return nil, err
	}
	p := &Params{Geometry: geo}
	p.MaxSplitLevel = MaxSplitLevel(geo.UnitsWide(), geo.UnitsHigh())
	for c := 0; c < 3; c++ {
		p.Parts[c] = make([]Part, numCulPartsLevel[p.MaxSplitLevel])
		p.initPart(0, 0, 0, -1, 0, geo.UnitsWide()-1, 0, geo.UnitsHigh()-1, c)
		p.Units[c] = make([]UnitParam, geo.NumUnits())
	}
	p.Reset()
	return p, nil
}

// initPart assigns the unit rectangle of a part and recursively quarters it.
func (p *Params) initPart(level, row, col, parent, startX, endX, startY, endY, c int) {
	idx := PartIndex(level, row, col)
	part := &p.Parts[c][idx]
	*part = Part{
		Index:  idx,
		Level:  level,
		Row:    row,
		Col:    col,
		Parent: parent,
		StartX: startX,
		EndX:   endX,
		StartY: startY,
		EndY:   endY,
		Type:   TypeNone,
	}

	if level == p.MaxSplitLevel {
		part.Children = [4]int{-1, -1, -1, -1}
		return
	}

	numLeft := (endX - startX + 1) >> 1
	numTop := (endY - startY + 1) >> 1
	down := level + 1
	rows := [4]int{row << 1, row << 1, row<<1 + 1, row<<1 + 1}
	cols := [4]int{col << 1, col<<1 + 1, col << 1, col<<1 + 1}
	xs := [4][2]int{
		{startX, startX + numLeft - 1},
		{startX + numLeft, endX},
		{startX, startX + numLeft - 1},
		{startX + numLeft, endX},
	}
	ys := [4][2]int{
		{startY, startY + numTop - 1},
		{startY, startY + numTop - 1},
		{startY + numTop, endY},
		{startY + numTop, endY},
	}
	for i := 0; i < 4; i++ {
		part.Children[i] = PartIndex(down, rows[i], cols[i])
		p.initPart(down, rows[i], cols[i], idx, xs[i][0], xs[i][1], ys[i][0], ys[i][1], c)
	}
}

// Reset disables every part and unit. It is called once per picture before
// the parameters are derived again.
func (p *Params) Reset() {
	for c := 0; c < 3; c++ {
		p.Enabled[c] = false
		p.OneUnit[c] = false
		for i := range p.Parts[c] {
			part := &p.Parts[c][i]
			part.Type = TypeNone
			part.Length = 0
			part.BandPosition = 0
			part.Offsets = [MaxOffsets]int{}
			part.Split = false
			part.Processed = false
			part.MinCost = math.MaxFloat64
			part.MinDist = math.MaxInt64
			part.MinRate = math.MaxInt64
		}
		for i := range p.Units[c] {
			p.Units[c][i].reset()
		}
	}
}

// Unit returns the parameters of unit addr of component c.
func (p *Params) Unit(c, addr int) *UnitParam { return &p.Units[c][addr] }

// Part returns part idx of component c.
func (p *Params) Part(c, idx int) *Part { return &p.Parts[c][idx] }

// ProjectToUnits copies the parameters of the quadtree below part idx to
// the units they cover. A split part carries no parameters of its own; a
// split flag on a part of the deepest level is ignored.
func (p *Params) ProjectToUnits(idx, c int) {
	part := &p.Parts[c][idx]
	if !part.Split || part.IsLeaf() {
		p.projectPart(part, c)
		return
	}
	for _, child := range part.Children {
		p.ProjectToUnits(child, c)
	}
}

// Project projects the whole quadtree of every component.
func (p *Params) Project() {
	for c := 0; c < p.NumComponents(); c++ {
		p.ProjectToUnits(0, c)
	}
}

func (p *Params) projectPart(part *Part, c int) {
	w := p.UnitsWide()
	for y := part.StartY; y <= part.EndY; y++ {
		for x := part.StartX; x <= part.EndX; x++ {
			u := &p.Units[c][y*w+x]
			u.Part = part.Index
			u.Type = part.Type
			u.BandPosition = part.BandPosition
			if part.Type == TypeNone {
				u.Length = 0
				u.Offsets = [MaxOffsets]int{}
				continue
			}
			u.Length = part.Length
			u.Offsets = part.Offsets
		}
	}
}

// Validate checks every unit of the enabled components.
func (p *Params) Validate() error {
	for c := 0; c < p.NumComponents(); c++ {
		if !p.Enabled[c] {
			continue
		}
		if len(p.Units[c]) != p.NumUnits() {
			return errors.Wrapf(ErrInvalidParams, "component %d has %d units, want %d",
				c, len(p.Units[c]), p.NumUnits())
		}
		for addr := range p.Units[c] {
			if err := p.Units[c][addr].validate(); err != nil {
				return errors.WithMessagef(err, "component %d unit %d", c, addr)
			}
		}
	}
	return nil
}

// source follows merge flags back to the unit whose parameters addr uses.
func (p *Params) source(c, addr int) int {
	if p.OneUnit[c] {
		return 0
	}
	w := p.UnitsWide()
	for {
		u := &p.Units[c][addr]
		switch {
		case u.MergeLeft && addr%w > 0:
			addr--
		case u.MergeUp && addr >= w:
			addr -= w
		default:
			return addr
		}
	}
}
