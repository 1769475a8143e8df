// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package picture holds reconstructed pictures and the decoded picture buffer list.
package picture

import "fmt"

// ChromaFormat is chroma_format_idc.
type ChromaFormat int

// chroma formats
const (
	Chroma400 ChromaFormat = iota
	Chroma420
	Chroma422
	Chroma444
)

func (cf ChromaFormat) String() string {
	switch cf {
	case Chroma400:
		return "4:0:0"
	case Chroma420:
		return "4:2:0"
	case Chroma422:
		return "4:2:2"
	case Chroma444:
		return "4:4:4"
	}
	return fmt.Sprintf("ChromaFormat(%d)", int(cf))
}

// NumPlanes returns 1 for monochrome and 3 otherwise.
func (cf ChromaFormat) NumPlanes() int {
	if cf == Chroma400 {
		return 1
	}
	return 3
}

// ShiftX returns the horizontal subsampling shift of plane c.
func (cf ChromaFormat) ShiftX(c int) uint {
	if c > 0 && (cf == Chroma420 || cf == Chroma422) {
		return 1
	}
	return 0
}

// ShiftY returns the vertical subsampling shift of plane c.
func (cf ChromaFormat) ShiftY(c int) uint {
	if c > 0 && cf == Chroma420 {
		return 1
	}
	return 0
}

// Window is a crop window in luma samples.
type Window struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// Add returns the sum of both windows.
func (w Window) Add(o Window) Window {
	return Window{w.Left + o.Left, w.Right + o.Right, w.Top + o.Top, w.Bottom + o.Bottom}
}

// Plane is one sample array. Samples of row y start at y*Stride.
type Plane struct {
	Width   int
	Height  int
	Stride  int
	Samples []uint16
}

func newPlane(w, h int) Plane {
	return Plane{Width: w, Height: h, Stride: w, Samples: make([]uint16, w*h)}
}

// Row returns the samples of row y.
func (p *Plane) Row(y int) []uint16 {
	return p.Samples[y*p.Stride : y*p.Stride+p.Width]
}

// At returns the sample at (x, y).
func (p *Plane) At(x, y int) uint16 { return p.Samples[y*p.Stride+x] }

// Set sets the sample at (x, y).
func (p *Plane) Set(x, y int, v uint16) { p.Samples[y*p.Stride+x] = v }

// Fill sets every sample to v.
func (p *Plane) Fill(v uint16) {
	for i := range p.Samples {
		p.Samples[i] = v
	}
}

// CopyFrom copies the samples of src, which must have the same geometry.
func (p *Plane) CopyFrom(src *Plane) {
	copy(p.Samples, src.Samples)
}

// State is the lifecycle state of a picture.
type State int

// picture states
const (
	StateDecoding  State = iota // being reconstructed
	StatePending                // decoded, output pending
	StateDisplayed              // written out or never to be output
	StateFreed                  // returned to its pool
)

func (s State) String() string {
	switch s {
	case StateDecoding:
		return "decoding"
	case StatePending:
		return "pending"
	case StateDisplayed:
		return "displayed"
	case StateFreed:
		return "freed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Picture is a reconstructed picture and its output metadata.
type Picture struct {
	Planes         [3]Plane
	Format         ChromaFormat
	BitDepthLuma   int
	BitDepthChroma int

	POC           int
	TemporalID    int
	DecodeOrder   int
	IsField       bool
	TopField      bool
	ConfWindow    Window
	DisplayWindow Window

	// OutputPending is set when the picture is decoded with pic_output_flag
	// and cleared once it is written or discarded.
	OutputPending bool

	state State
	refs  int
}

// New allocates a picture of width x height luma samples.
func New(width, height int, format ChromaFormat, bitDepthLuma, bitDepthChroma int) *Picture {
	p := &Picture{
		Format:         format,
		BitDepthLuma:   bitDepthLuma,
		BitDepthChroma: bitDepthChroma,
	}
	p.Planes[0] = newPlane(width, height)
	for c := 1; c < format.NumPlanes(); c++ {
		p.Planes[c] = newPlane(width>>format.ShiftX(c), height>>format.ShiftY(c))
	}
	return p
}

// Width returns the luma width.
func (p *Picture) Width() int { return p.Planes[0].Width }

// Height returns the luma height.
func (p *Picture) Height() int { return p.Planes[0].Height }

// NumPlanes .
func (p *Picture) NumPlanes() int { return p.Format.NumPlanes() }

// BitDepth returns the bit depth of plane c.
func (p *Picture) BitDepth(c int) int {
	if c == 0 {
		return p.BitDepthLuma
	}
	return p.BitDepthChroma
}

// CropWindow returns the window applied when the picture is written.
func (p *Picture) CropWindow() Window { return p.ConfWindow.Add(p.DisplayWindow) }

// State returns the lifecycle state.
func (p *Picture) State() State { return p.state }

// SetState moves the picture to s.
func (p *Picture) SetState(s State) { p.state = s }

// Retain marks the picture as used for reference once more.
func (p *Picture) Retain() { p.refs++ }

// Release drops one reference and reports whether none is left.
func (p *Picture) Release() bool {
	if p.refs > 0 {
		p.refs--
	}
	return p.refs == 0
}

// ReleaseAll drops every reference.
func (p *Picture) ReleaseAll() { p.refs = 0 }

// Referenced reports whether the picture is still used for reference.
func (p *Picture) Referenced() bool { return p.refs > 0 }

// Reclaimable reports whether the picture is neither pending output nor referenced.
func (p *Picture) Reclaimable() bool {
	return p.state != StateDecoding && !p.OutputPending && p.refs == 0
}

// CopySamples copies the sample planes of src, which must share the geometry.
func (p *Picture) CopySamples(src *Picture) {
	for c := 0; c < p.NumPlanes(); c++ {
		p.Planes[c].CopyFrom(&src.Planes[c])
	}
}

// SameGeometry reports whether q can hold the samples of p.
func (p *Picture) SameGeometry(q *Picture) bool {
	return p.Width() == q.Width() && p.Height() == q.Height() && p.Format == q.Format &&
		p.BitDepthLuma == q.BitDepthLuma && p.BitDepthChroma == q.BitDepthChroma
}

func (p *Picture) reset() {
	p.POC = 0
	p.TemporalID = 0
	p.DecodeOrder = 0
	p.IsField, p.TopField = false, false
	p.ConfWindow, p.DisplayWindow = Window{}, Window{}
	p.OutputPending = false
	p.state = StateDecoding
	p.refs = 0
}

func (p *Picture) String() string {
	return fmt.Sprintf("POC %d (%s, refs %d)", p.POC, p.state, p.refs)
}
