// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sao implements the sample adaptive offset in-loop filter: the
// quadtree of region parameters, its projection onto coding tree units and
// the edge/band offset engine applied to reconstructed pictures.
package sao

import (
	"fmt"
	"math/bits"

	"github.com/cnotch/h265dec/av/picture"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidType is returned for a filter type outside the five known ones.
	ErrInvalidType = errors.New("sao: invalid filter type")
	// ErrInvalidParams is returned for parameters that do not fit the picture.
	ErrInvalidParams = errors.New("sao: invalid parameters")
)

// Type is the filter type of a region or unit.
type Type int8

// filter types
const (
	TypeNone Type = -1 // filtering disabled
	TypeEO0  Type = 0  // edge offset, horizontal
	TypeEO1  Type = 1  // edge offset, vertical
	TypeEO2  Type = 2  // edge offset, 135 degrees
	TypeEO3  Type = 3  // edge offset, 45 degrees
	TypeBO   Type = 4  // band offset
)

// IsValid reports whether t is TypeNone or one of the five filters.
func (t Type) IsValid() bool { return t >= TypeNone && t <= TypeBO }

// IsEdge reports whether t is one of the edge offset types.
func (t Type) IsEdge() bool { return t >= TypeEO0 && t <= TypeEO3 }

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeEO0:
		return "EO_0"
	case TypeEO1:
		return "EO_90"
	case TypeEO2:
		return "EO_135"
	case TypeEO3:
		return "EO_45"
	case TypeBO:
		return "BO"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

const (
	// MaxOffsets is the number of signalled offsets per region.
	MaxOffsets = 4
	// MaxDepth bounds the quadtree split level.
	MaxDepth = 4

	numBands = 32 // band offset classes
	bandBits = 5
	maxEdge  = 5
)

var (
	numPartsInRow    = [MaxDepth + 1]int{1, 2, 4, 8, 16}
	numPartsLevel    = [MaxDepth + 1]int{1, 4, 16, 64, 256}
	numCulPartsLevel = [MaxDepth + 1]int{1, 5, 21, 85, 341}

	// edge index (sum of both signs + 2) to offset class; class 0 is no change
	eoTable = [maxEdge]int{1, 2, 0, 3, 4}
)

// PartIndex converts a quadtree position to its index in the flat part array.
func PartIndex(level, row, col int) int {
	if level == 0 {
		return 0
	}
	return numCulPartsLevel[level-1] + row*numPartsInRow[level] + col
}

// PartPosition is the inverse of PartIndex.
func PartPosition(idx int) (level, row, col int) {
	for level = 0; level < MaxDepth && idx >= numCulPartsLevel[level]; level++ {
	}
	if level > 0 {
		idx -= numCulPartsLevel[level-1]
	}
	return level, idx / numPartsInRow[level], idx % numPartsInRow[level]
}

// MaxSplitLevel returns the deepest quadtree level for a grid of units.
func MaxSplitLevel(unitsWide, unitsHigh int) int {
	level := floorLog2(unitsWide)
	if l := floorLog2(unitsHigh); l < level {
		level = l
	}
	if level > MaxDepth {
		level = MaxDepth
	}
	return level
}

func floorLog2(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.Len(uint(n)) - 1
}

// UnitParam is the parameter set actually used to filter one coding tree unit.
type UnitParam struct {
	Type         Type
	BandPosition int
	Length       int // number of valid offsets
	Offsets      [MaxOffsets]int
	MergeLeft    bool
	MergeUp      bool
	Part         int // quadtree part projected here, -1 if none
}

func (u *UnitParam) reset() {
	*u = UnitParam{Type: TypeNone, Part: -1}
}

func (u *UnitParam) validate() error {
	if !u.Type.IsValid() {
		return errors.Wrapf(ErrInvalidType, "type %d", int(u.Type))
	}
	if u.Type == TypeNone {
		return nil
	}
	if u.Length < 0 || u.Length > MaxOffsets {
		return errors.Wrapf(ErrInvalidParams, "%d offsets", u.Length)
	}
	if u.Type == TypeBO && (u.BandPosition < 0 || u.BandPosition >= numBands) {
		return errors.Wrapf(ErrInvalidParams, "band position %d", u.BandPosition)
	}
	return nil
}

// Geometry describes the picture and coding tree unit sizes in luma samples.
type Geometry struct {
	Width      int
	Height     int
	UnitWidth  int
	UnitHeight int
	Format     picture.ChromaFormat
}

// UnitsWide returns the number of units in a row.
func (g Geometry) UnitsWide() int { return (g.Width + g.UnitWidth - 1) / g.UnitWidth }

// UnitsHigh returns the number of unit rows.
func (g Geometry) UnitsHigh() int { return (g.Height + g.UnitHeight - 1) / g.UnitHeight }

// NumUnits .
func (g Geometry) NumUnits() int { return g.UnitsWide() * g.UnitsHigh() }

// NumComponents returns 1 for monochrome pictures, 3 otherwise.
func (g Geometry) NumComponents() int { return g.Format.NumPlanes() }

func (g Geometry) validate() error {
	if g.Width <= 0 || g.Height <= 0 || g.UnitWidth <= 0 || g.UnitHeight <= 0 {
		return errors.Wrapf(ErrInvalidParams, "geometry %dx%d, unit %dx%d",
			g.Width, g.Height, g.UnitWidth, g.UnitHeight)
	}
	return nil
}

// GeometryOf returns the geometry of pic split into units of unitSize luma samples.
func GeometryOf(pic *picture.Picture, unitSize int) Geometry {
	return Geometry{
		Width:      pic.Width(),
		Height:     pic.Height(),
		UnitWidth:  unitSize,
		UnitHeight: unitSize,
		Format:     pic.Format,
	}
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
