// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// NALWriter receives the NAL units of a depacketized stream.
type NALWriter interface {
	WriteNAL(unit []byte) error
}

// NALWriterFunc adapts a function to NALWriter.
type NALWriterFunc func(unit []byte) error

// WriteNAL calls f(unit).
func (f NALWriterFunc) WriteNAL(unit []byte) error { return f(unit) }

// Depacketizer rebuilds H.265 NAL units from single NAL unit, aggregation
// and fragmentation packets. Fragmented units broken by a lost packet are
// dropped.
type Depacketizer struct {
	fragments []byte // 分片缓存
	inFU      bool
	lastSeq   uint16
	seqValid  bool
	donl      bool // sprop-max-don-diff > 0, units carry DONL/DOND
	lost      int
	w         NALWriter
	logger    *xlog.Logger
}

// NewDepacketizer returns a depacketizer writing to w. donl tells whether
// the session signals decoding order numbers in the payloads.
func NewDepacketizer(w NALWriter, donl bool, logger *xlog.Logger) *Depacketizer {
	if logger == nil {
		logger = xlog.L()
	}
	return &Depacketizer{
		fragments: make([]byte, 0, 64*1024),
		donl:      donl,
		w:         w,
		logger:    logger,
	}
}

// Lost returns the number of sequence gaps seen.
func (dp *Depacketizer) Lost() int { return dp.lost }

/*
 * the payload header is a NAL unit header:
 *
 *    0                   1
 *    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5
 *   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
 *   |F|   Type    |  LayerId  | TID |
 *   +-------------+-----------------+
 *
 * and the FU header that follows it in a fragmentation unit:
 *
 *     0 1 2 3 4 5 6 7
 *    +-+-+-+-+-+-+-+-+
 *    |S|E|  FuType   |
 *    +---------------+
 */

// Depacketize consumes one video packet.
func (dp *Depacketizer) Depacketize(p *Packet) error {
	if dp.seqValid && p.SequenceNumber != dp.lastSeq+1 {
		dp.lost++
		if dp.inFU {
			dp.logger.Warnf("packet loss before seq %d, fragmented unit dropped", p.SequenceNumber)
			dp.inFU = false
			dp.fragments = dp.fragments[:0]
		}
	}
	dp.lastSeq, dp.seqValid = p.SequenceNumber, true

	payload := p.Payload()
	if len(payload) < 3 {
		return errors.Wrapf(ErrInvalidPacket, "seq %d: payload of %d bytes", p.SequenceNumber, len(payload))
	}

	switch naluType := (payload[0] >> 1) & 0x3f; naluType {
	case hevc.NalApInRtp: // 聚合包
		return dp.depacketizeAp(p.SequenceNumber, payload)
	case hevc.NalFuInRtp: // 分片包
		return dp.depacketizeFu(p.SequenceNumber, payload)
	case hevc.NalPaciInRtp:
		dp.logger.Warnf("seq %d: PACI packet ignored", p.SequenceNumber)
		return nil
	default:
		unit := payload
		if dp.donl {
			if len(payload) < 5 {
				return errors.Wrapf(ErrInvalidPacket, "seq %d: single unit too short for DONL", p.SequenceNumber)
			}
			unit = make([]byte, len(payload)-2)
			copy(unit, payload[:2])
			copy(unit[2:], payload[4:])
		}
		return dp.write(unit)
	}
}

func (dp *Depacketizer) depacketizeAp(seq uint16, payload []byte) error {
	off := 2 // 跳过 AP NAL HDR
	first := true
	for off < len(payload) {
		if dp.donl {
			if first {
				off += 2 // DONL
			} else {
				off++ // DOND
			}
		}
		first = false
		if off+2 > len(payload) {
			return errors.Wrapf(ErrInvalidPacket, "seq %d: aggregation unit header truncated", seq)
		}
		size := int(payload[off])<<8 | int(payload[off+1])
		off += 2
		if size < 2 || off+size > len(payload) {
			return errors.Wrapf(ErrInvalidPacket, "seq %d: aggregated unit of %d bytes at %d", seq, size, off)
		}
		unit := make([]byte, size)
		copy(unit, payload[off:off+size])
		if err := dp.write(unit); err != nil {
			return err
		}
		off += size
	}
	return nil
}

func (dp *Depacketizer) depacketizeFu(seq uint16, payload []byte) error {
	fuHeader := payload[2]
	data := payload[3:]
	start, end := fuHeader&0x80 != 0, fuHeader&0x40 != 0

	if start {
		if dp.donl {
			if len(data) < 2 {
				return errors.Wrapf(ErrInvalidPacket, "seq %d: start fragment too short for DONL", seq)
			}
			data = data[2:]
		}
		if dp.inFU {
			dp.logger.Warnf("seq %d: fragmented unit restarted before its end", seq)
		}
		// rebuild the NAL unit header from the FU type
		dp.fragments = append(dp.fragments[:0], (payload[0]&0x81)|(fuHeader&0x3f)<<1, payload[1])
		dp.inFU = true
	} else if !dp.inFU {
		// start fragment lost
		return nil
	}

	dp.fragments = append(dp.fragments, data...)
	if !end {
		return nil
	}

	unit := make([]byte, len(dp.fragments))
	copy(unit, dp.fragments)
	dp.fragments = dp.fragments[:0]
	dp.inFU = false
	return dp.write(unit)
}

func (dp *Depacketizer) write(unit []byte) error {
	return dp.w.WriteNAL(unit)
}
