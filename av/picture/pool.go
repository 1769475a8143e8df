// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package picture

// Pool recycles freed pictures. The zero value is ready to use.
type Pool struct {
	free []*Picture
	// Allocated counts the pictures created by Get.
	Allocated int
}

// Get returns a picture in StateDecoding with the requested geometry,
// recycling a freed one when possible. Samples of a recycled picture are stale.
func (pool *Pool) Get(width, height int, format ChromaFormat, bitDepthLuma, bitDepthChroma int) *Picture {
	for i := len(pool.free) - 1; i >= 0; i-- {
		p := pool.free[i]
		if p.Width() == width && p.Height() == height && p.Format == format &&
			p.BitDepthLuma == bitDepthLuma && p.BitDepthChroma == bitDepthChroma {
			pool.free = append(pool.free[:i], pool.free[i+1:]...)
			p.reset()
			return p
		}
	}
	pool.Allocated++
	return New(width, height, format, bitDepthLuma, bitDepthChroma)
}

// Put marks p freed and keeps it for reuse.
func (pool *Pool) Put(p *Picture) {
	p.state = StateFreed
	pool.free = append(pool.free, p)
}

// Drop forgets every freed picture whose geometry differs from the
// given one, typically after a new SPS is activated.
func (pool *Pool) Drop(width, height int, format ChromaFormat) {
	kept := pool.free[:0]
	for _, p := range pool.free {
		if p.Width() == width && p.Height() == height && p.Format == format {
			kept = append(kept, p)
		}
	}
	pool.free = kept
}

// Len returns the number of pictures ready for reuse.
func (pool *Pool) Len() int { return len(pool.free) }
