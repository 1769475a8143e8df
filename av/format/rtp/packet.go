// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rtp extracts H.265 NAL units from RTP packets (RFC 7798), read
// from an RTSP interleaved capture.
package rtp

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pion/rtp"
	"github.com/pkg/errors"
)

const (
	// TransferPrefix RTP 包网络传输时的前缀
	TransferPrefix = byte(0x24) // $
)

// Default interleaved channels of an RTSP session with one video track.
const (
	ChannelVideo        = 0
	ChannelVideoControl = 1
)

// ErrInvalidPacket is the cause of every malformed packet or payload.
var ErrInvalidPacket = errors.New("rtp: invalid packet")

// Packet is one interleaved packet: the channel it was sent on and its
// bytes. Header is decoded for media channels only.
type Packet struct {
	Channel    byte   // 通道
	Data       []byte // 数据
	rtp.Header        // media channel header
}

// ReadPacket reads one interleaved packet ('$', channel, 16 bit length,
// data) from r. Packets on mediaChannel get their RTP header decoded.
func ReadPacket(r *bufio.Reader, mediaChannel int) (*Packet, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrInvalidPacket, "truncated interleaved header")
		}
		return nil, err
	}
	if prefix[0] != TransferPrefix {
		return nil, errors.Wrapf(ErrInvalidPacket, "interleaved packet starts with 0x%02x, not '$'", prefix[0])
	}

	p := &Packet{
		Channel: prefix[1],
		Data:    make([]byte, binary.BigEndian.Uint16(prefix[2:])),
	}
	if _, err := io.ReadFull(r, p.Data); err != nil {
		return nil, errors.Wrapf(ErrInvalidPacket, "channel %d: %v", p.Channel, err)
	}
	if int(p.Channel) == mediaChannel {
		if err := p.Header.Unmarshal(p.Data); err != nil {
			return nil, errors.Wrapf(ErrInvalidPacket, "channel %d: %v", p.Channel, err)
		}
	}
	return p, nil
}

// Write writes p in interleaved framing.
func (p *Packet) Write(w io.Writer) error {
	if len(p.Data) > 0xffff {
		return errors.Wrapf(ErrInvalidPacket, "%d bytes do not fit an interleaved packet", len(p.Data))
	}
	var prefix [4]byte
	prefix[0] = TransferPrefix // 起始字节
	prefix[1] = p.Channel
	binary.BigEndian.PutUint16(prefix[2:], uint16(len(p.Data)))

	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(p.Data)
	return err
}

// Size 包在 RTP 中的传输总大小
func (p *Packet) Size() int {
	return len(p.Data) + 4
}

// Payload returns the RTP payload without padding. It is nil for packets
// whose header was not decoded.
func (p *Packet) Payload() []byte {
	if p.PayloadOffset == 0 {
		return nil
	}
	end := len(p.Data)
	if p.Padding && end > p.PayloadOffset {
		end -= int(p.Data[end-1])
		if end < p.PayloadOffset {
			end = p.PayloadOffset
		}
	}
	return p.Data[p.PayloadOffset:end]
}
