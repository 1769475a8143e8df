// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package annexb reads NAL units from a byte stream framed with start codes.
package annexb

import (
	"bufio"
	"io"

	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// ErrNotAnnexB is returned when the stream does not begin with a start code.
var ErrNotAnnexB = errors.New("annexb: stream does not start with a start code")

const initialUnitSize = 4096

// Reader splits an Annex-B byte stream into NAL units. Returned units have
// no start code and keep their emulation prevention bytes.
type Reader struct {
	r       *bufio.Reader
	unit    []byte
	zeros   int   // consecutive zero bytes at the end of unit
	started bool  // first start code found
	offset  int64 // bytes consumed
	units   int
	flow    stats.Flow
	logger  *xlog.Logger
}

// Option configures a Reader.
type Option func(r *Reader)

// WithLogger sets the logger.
func WithLogger(logger *xlog.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

// WithFlow counts the units read.
func WithFlow(flow stats.Flow) Option {
	return func(r *Reader) { r.flow = flow }
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	reader := &Reader{
		r:      bufio.NewReaderSize(r, 64*1024),
		unit:   make([]byte, 0, initialUnitSize),
		logger: xlog.L(),
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// Offset returns the number of bytes consumed from the stream.
func (r *Reader) Offset() int64 { return r.offset }

// Units returns the number of NAL units returned so far.
func (r *Reader) Units() int { return r.units }

// ReadNAL returns the next NAL unit, or io.EOF after the last one.
func (r *Reader) ReadNAL() ([]byte, error) {
	if !r.started {
		if err := r.skipToStartCode(); err != nil {
			return nil, err
		}
		r.started = true
	}

	for {
		b, err := r.r.ReadByte()
		if err == io.EOF {
			unit := r.take(len(r.unit))
			if len(unit) == 0 {
				return nil, io.EOF
			}
			return r.emit(unit), nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "annexb: read at offset %d", r.offset)
		}
		r.offset++

		if b == 1 && r.zeros >= 2 {
			unit := r.take(len(r.unit) - r.zeros)
			if len(unit) == 0 {
				r.logger.Warnf("empty NAL unit at offset %d", r.offset)
				continue
			}
			return r.emit(unit), nil
		}
		if b == 0 {
			r.zeros++
		} else {
			r.zeros = 0
		}
		r.unit = append(r.unit, b)
	}
}

// take detaches the first n bytes of the pending unit without their
// trailing zero bytes and starts a new unit.
func (r *Reader) take(n int) []byte {
	unit := r.unit[:n]
	for len(unit) > 0 && unit[len(unit)-1] == 0 {
		unit = unit[:len(unit)-1]
	}
	r.unit = make([]byte, 0, initialUnitSize)
	r.zeros = 0
	return unit
}

func (r *Reader) emit(unit []byte) []byte {
	r.units++
	if r.flow != nil {
		r.flow.AddIn(int64(len(unit)))
	}
	return unit
}

// skipToStartCode consumes leading zero bytes and the first start code.
func (r *Reader) skipToStartCode() error {
	zeros := 0
	for {
		b, err := r.r.ReadByte()
		if err == io.EOF {
			if r.offset == 0 {
				return io.EOF
			}
			return ErrNotAnnexB
		}
		if err != nil {
			return errors.Wrap(err, "annexb: read start code")
		}
		r.offset++
		switch {
		case b == 0:
			zeros++
		case b == 1 && zeros >= 2:
			return nil
		default:
			return errors.Wrapf(ErrNotAnnexB, "byte 0x%02x at offset %d", b, r.offset-1)
		}
	}
}

// WriteNAL writes unit prefixed with a four byte start code.
func WriteNAL(w io.Writer, unit []byte) error {
	if _, err := w.Write([]byte{0, 0, 0, 1}); err != nil {
		return err
	}
	_, err := w.Write(unit)
	return err
}
