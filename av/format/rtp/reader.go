// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"bufio"
	"io"

	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/xlog"
)

// Reader returns the NAL units of the video channel of an interleaved
// capture. Packets of other channels are skipped.
type Reader struct {
	r       *bufio.Reader
	channel int
	dp      *Depacketizer
	pending [][]byte
	packets int
	skipped int
	flow    stats.Flow
	logger  *xlog.Logger
}

// Option configures a Reader.
type Option func(r *Reader)

// WithChannel selects the interleaved channel of the video track.
func WithChannel(channel int) Option {
	return func(r *Reader) { r.channel = channel }
}

// WithDONL tells that payloads carry decoding order numbers.
func WithDONL(donl bool) Option {
	return func(r *Reader) { r.dp.donl = donl }
}

// WithLogger sets the logger.
func WithLogger(logger *xlog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
		r.dp.logger = logger
	}
}

// WithFlow counts the units read.
func WithFlow(flow stats.Flow) Option {
	return func(r *Reader) { r.flow = flow }
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	reader := &Reader{
		r:       bufio.NewReaderSize(r, 64*1024),
		channel: ChannelVideo,
		logger:  xlog.L(),
	}
	reader.dp = NewDepacketizer(NALWriterFunc(reader.push), false, reader.logger)
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

func (r *Reader) push(unit []byte) error {
	r.pending = append(r.pending, unit)
	return nil
}

// ReadNAL returns the next NAL unit, or io.EOF once the capture is consumed.
func (r *Reader) ReadNAL() ([]byte, error) {
	for len(r.pending) == 0 {
		p, err := ReadPacket(r.r, r.channel)
		if err != nil {
			if err == io.EOF && r.dp.inFU {
				r.logger.Warn("capture ends inside a fragmented unit")
			}
			return nil, err
		}
		if int(p.Channel) != r.channel {
			r.skipped++
			continue
		}
		r.packets++
		if err = r.dp.Depacketize(p); err != nil {
			return nil, err
		}
	}

	unit := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	if r.flow != nil {
		r.flow.AddIn(int64(len(unit)))
	}
	return unit, nil
}

// Packets returns the video packets read and the packets of other channels skipped.
func (r *Reader) Packets() (video, skipped int) { return r.packets, r.skipped }

// Lost returns the number of sequence gaps seen on the video channel.
func (r *Reader) Lost() int { return r.dp.Lost() }
