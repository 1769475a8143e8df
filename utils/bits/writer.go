// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bits

// Writer writes bits most significant bit first. It is the inverse of Reader
// and is used to assemble parameter sets and slice headers.
type Writer struct {
	buf    []byte
	offset int // bit base
}

// WriteBit writes the lowest bit of b.
func (w *Writer) WriteBit(b uint8) {
	if w.offset&0x7 == 0 {
		w.buf = append(w.buf, 0)
	}
	if b&1 == 1 {
		w.buf[len(w.buf)-1] |= 1 << uint(7-w.offset&0x7)
	}
	w.offset++
}

// WriteBool writes one bit.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

// Write writes the n low bits of v.
func (w *Writer) Write(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(uint8(v >> uint(i)))
	}
}

// WriteUe writes an unsigned Exp-Golomb code.
func (w *Writer) WriteUe(v uint32) {
	x := uint64(v) + 1
	n := 0
	for t := x; t > 1; t >>= 1 {
		n++
	}
	w.Write(0, n)
	w.Write(x, n+1)
}

// WriteSe writes a signed Exp-Golomb code.
func (w *Writer) WriteSe(v int32) {
	if v > 0 {
		w.WriteUe(uint32(2*v - 1))
	} else {
		w.WriteUe(uint32(-2 * v))
	}
}

// WriteTrailingBits writes rbsp_trailing_bits.
func (w *Writer) WriteTrailingBits() {
	w.WriteBit(1)
	for w.offset&0x7 != 0 {
		w.WriteBit(0)
	}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}
