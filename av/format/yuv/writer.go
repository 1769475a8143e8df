// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package yuv writes emitted pictures as raw planar YUV.
package yuv

import (
	"io"

	"github.com/cnotch/h265dec/av/output"
	"github.com/cnotch/h265dec/av/picture"
	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/xlog"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Compression names accepted by WithCompression.
const (
	CompressNone = ""
	CompressZstd = "zstd"
)

// ErrUnsupported is returned for an unknown compression or an invalid bit depth.
var ErrUnsupported = errors.New("yuv: unsupported option")

// Writer writes pictures plane by plane (Y, Cb, Cr), cropped, one byte per
// sample up to 8 bits and two little-endian bytes above. Field pairs are
// woven into one frame. It implements output.Writer.
type Writer struct {
	dst      io.Writer
	zw       *zstd.Encoder
	bitDepth int // 0 keeps the picture bit depth
	frames   int
	bytes    int64
	line     []byte
	flow     stats.Flow
	logger   *xlog.Logger
}

var _ output.Writer = (*Writer)(nil)

// Option configures a Writer.
type Option func(w *Writer) error

// WithBitDepth converts every sample to bitDepth bits.
func WithBitDepth(bitDepth int) Option {
	return func(w *Writer) error {
		if bitDepth != 0 && (bitDepth < 8 || bitDepth > 16) {
			return errors.Wrapf(ErrUnsupported, "output bit depth %d", bitDepth)
		}
		w.bitDepth = bitDepth
		return nil
	}
}

// WithCompression compresses the whole stream.
func WithCompression(name string) Option {
	return func(w *Writer) error {
		switch name {
		case CompressNone:
			return nil
		case CompressZstd:
			zw, err := zstd.NewWriter(w.dst, zstd.WithEncoderLevel(zstd.SpeedFastest))
			if err != nil {
				return errors.Wrap(err, "yuv: create zstd encoder")
			}
			w.zw = zw
			w.dst = zw
			return nil
		}
		return errors.Wrapf(ErrUnsupported, "compression %q", name)
	}
}

// WithFlow counts the bytes written.
func WithFlow(flow stats.Flow) Option {
	return func(w *Writer) error {
		w.flow = flow
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *xlog.Logger) Option {
	return func(w *Writer) error {
		w.logger = logger
		return nil
	}
}

// NewWriter returns a writer to dst. Close must be called to flush a
// compressed stream; it does not close dst.
func NewWriter(dst io.Writer, opts ...Option) (*Writer, error) {
	w := &Writer{dst: dst, logger: xlog.L()}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() int { return w.frames }

// Bytes returns the number of uncompressed bytes written.
func (w *Writer) Bytes() int64 { return w.bytes }

// WritePicture writes out.
func (w *Writer) WritePicture(out output.Output) error {
	top, bottom := out.Picture, out.Second
	if bottom != nil && !out.TopFieldFirst {
		top, bottom = bottom, top
	}
	if bottom != nil && !top.SameGeometry(bottom) {
		return errors.Wrapf(ErrUnsupported, "fields %d and %d differ in geometry", top.POC, bottom.POC)
	}

	for c := 0; c < top.NumPlanes(); c++ {
		if err := w.writePlane(top, bottom, c, out.Crop); err != nil {
			return errors.Wrapf(err, "yuv: write POC %d plane %d", top.POC, c)
		}
	}
	w.frames++
	return nil
}

func (w *Writer) writePlane(top, bottom *picture.Picture, c int, crop picture.Window) error {
	pl := &top.Planes[c]
	sx, sy := top.Format.ShiftX(c), top.Format.ShiftY(c)
	x0, x1 := crop.Left>>sx, pl.Width-crop.Right>>sx
	y0, y1 := crop.Top>>sy, pl.Height-crop.Bottom>>sy
	if x0 >= x1 || y0 >= y1 {
		return errors.Wrapf(ErrUnsupported, "crop window %+v empties a %dx%d plane", crop, pl.Width, pl.Height)
	}

	inDepth := top.BitDepth(c)
	outDepth := w.bitDepth
	if outDepth == 0 {
		outDepth = inDepth
	}
	size := 1
	if outDepth > 8 {
		size = 2
	}
	if cap(w.line) < (x1-x0)*size {
		w.line = make([]byte, (x1-x0)*size)
	}
	line := w.line[:(x1-x0)*size]

	for y := y0; y < y1; y++ {
		for _, field := range []*picture.Picture{top, bottom} {
			if field == nil {
				continue
			}
			row := field.Planes[c].Row(y)[x0:x1]
			convert(line, row, inDepth, outDepth, size)
			if err := w.write(line); err != nil {
				return err
			}
		}
	}
	return nil
}

// convert scales samples from one bit depth to another, rounding when
// bits are dropped.
func convert(dst []byte, src []uint16, inDepth, outDepth, size int) {
	maxValue := 1<<uint(outDepth) - 1
	for i, v := range src {
		s := int(v)
		switch {
		case outDepth > inDepth:
			s <<= uint(outDepth - inDepth)
		case outDepth < inDepth:
			shift := uint(inDepth - outDepth)
			s = (s + 1<<(shift-1)) >> shift
		}
		if s > maxValue {
			s = maxValue
		}
		if size == 1 {
			dst[i] = byte(s)
		} else {
			dst[2*i] = byte(s)
			dst[2*i+1] = byte(s >> 8)
		}
	}
}

func (w *Writer) write(b []byte) error {
	n, err := w.dst.Write(b)
	w.bytes += int64(n)
	if w.flow != nil {
		w.flow.AddOut(int64(n))
	}
	return err
}

// Close flushes the compressed stream.
func (w *Writer) Close() error {
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			return errors.Wrap(err, "yuv: flush zstd stream")
		}
		w.logger.Debugf("%d frames, %d bytes before compression", w.frames, w.bytes)
	}
	return nil
}
