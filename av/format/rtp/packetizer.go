// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/pion/rtp"
)

// Packetizer splits NAL units into single NAL unit and fragmentation
// packets no larger than MTU bytes of payload.
type Packetizer struct {
	MTU         int
	PayloadType uint8
	SSRC        uint32
	Channel     byte
	seq         uint16
}

// NewPacketizer returns a packetizer whose first packet has sequence number seq.
func NewPacketizer(mtu int, payloadType uint8, ssrc uint32, seq uint16) *Packetizer {
	return &Packetizer{MTU: mtu, PayloadType: payloadType, SSRC: ssrc, Channel: ChannelVideo, seq: seq}
}

// Packetize returns the packets of unit. marker is set on the last packet
// when the unit ends an access unit.
func (pz *Packetizer) Packetize(unit []byte, timestamp uint32, marker bool) ([]*Packet, error) {
	var payloads [][]byte
	if len(unit) <= pz.MTU {
		payloads = [][]byte{unit}
	} else {
		hdr0 := unit[0]&0x81 | hevc.NalFuInRtp<<1
		fuType := (unit[0] >> 1) & 0x3f
		data := unit[2:]
		max := pz.MTU - 3
		for first := true; len(data) > 0; first = false {
			n := len(data)
			if n > max {
				n = max
			}
			fu := fuType
			if first {
				fu |= 0x80
			}
			if n == len(data) {
				fu |= 0x40
			}
			payload := make([]byte, 3+n)
			payload[0], payload[1], payload[2] = hdr0, unit[1], fu
			copy(payload[3:], data[:n])
			payloads = append(payloads, payload)
			data = data[n:]
		}
	}

	packets := make([]*Packet, 0, len(payloads))
	for i, payload := range payloads {
		rp := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         marker && i == len(payloads)-1,
				PayloadType:    pz.PayloadType,
				SequenceNumber: pz.seq,
				Timestamp:      timestamp,
				SSRC:           pz.SSRC,
			},
			Payload: payload,
		}
		pz.seq++
		data, err := rp.Marshal()
		if err != nil {
			return nil, err
		}
		p := &Packet{Channel: pz.Channel, Data: data}
		if err = p.Header.Unmarshal(data); err != nil {
			return nil, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}
