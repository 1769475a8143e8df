// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtp

import (
	"bufio"
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/cnotch/h265dec/stats"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUnits(rnd *rand.Rand) [][]byte {
	sizes := []int{20, 30, 4, 1400, 5000, 3, 900}
	units := make([][]byte, len(sizes))
	for i, n := range sizes {
		unit := make([]byte, n)
		rnd.Read(unit)
		unit[0] = byte(i) << 1
		unit[1] = 1
		units[i] = unit
	}
	return units
}

func capture(t *testing.T, units [][]byte, mtu int) (*bytes.Buffer, []*Packet) {
	var buf bytes.Buffer
	var all []*Packet
	pz := NewPacketizer(mtu, 96, 0x1234, 65530) // wraps around
	for i, unit := range units {
		packets, err := pz.Packetize(unit, uint32(i*3000), true)
		require.NoError(t, err)
		for _, p := range packets {
			require.NoError(t, p.Write(&buf))
			// an RTCP packet between media packets
			rtcp := &Packet{Channel: ChannelVideoControl, Data: []byte{0x80, 0xc8, 0x00, 0x00}}
			require.NoError(t, rtcp.Write(&buf))
		}
		all = append(all, packets...)
	}
	return &buf, all
}

func TestReader_RoundTrip(t *testing.T) {
	units := testUnits(rand.New(rand.NewSource(1)))
	buf, packets := capture(t, units, 1200)
	assert.True(t, len(packets) > len(units))

	flow := stats.NewFlow()
	r := NewReader(buf, WithFlow(flow))
	for i, want := range units {
		got, err := r.ReadNAL()
		require.NoError(t, err, "unit %d", i)
		assert.Equal(t, want, got, "unit %d", i)
	}
	_, err := r.ReadNAL()
	assert.Equal(t, io.EOF, err)

	video, skipped := r.Packets()
	assert.Equal(t, len(packets), video)
	assert.Equal(t, len(packets), skipped)
	assert.Zero(t, r.Lost())
	assert.EqualValues(t, len(units), flow.GetSample().InUnits)
}

func TestDepacketizer_Aggregation(t *testing.T) {
	a := []byte{0x40, 0x01, 0x0c, 0x01}
	b := []byte{0x42, 0x01, 0x01}
	c := []byte{0x44, 0x01, 0xc1, 0x72}

	tests := []struct {
		name    string
		donl    bool
		payload []byte
	}{
		{"plain", false, concat([]byte{0x60, 0x01}, []byte{0, 4}, a, []byte{0, 3}, b, []byte{0, 4}, c)},
		{"donl", true, concat([]byte{0x60, 0x01}, []byte{0, 9, 0, 4}, a, []byte{0, 0, 3}, b, []byte{0, 0, 4}, c)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][]byte
			dp := NewDepacketizer(NALWriterFunc(func(unit []byte) error {
				got = append(got, unit)
				return nil
			}), tt.donl, nil)
			require.NoError(t, dp.Depacketize(packet(t, 10, tt.payload)))
			assert.Equal(t, [][]byte{a, b, c}, got)
		})
	}
}

func TestDepacketizer_Loss(t *testing.T) {
	unit := make([]byte, 3000)
	rand.New(rand.NewSource(2)).Read(unit)
	unit[0], unit[1] = 0x26, 0x01
	small := []byte{0x02, 0x01, 0xd0}

	pz := NewPacketizer(1000, 96, 1, 100)
	frags, err := pz.Packetize(unit, 0, true)
	require.NoError(t, err)
	require.Len(t, frags, 4)
	assert.Equal(t, byte(49<<1), frags[0].Payload()[0]&0x7e)
	assert.Equal(t, byte(0x80|0x13), frags[0].Payload()[2])
	assert.Equal(t, byte(0x40|0x13), frags[3].Payload()[2])
	single, err := pz.Packetize(small, 3000, true)
	require.NoError(t, err)

	var got [][]byte
	dp := NewDepacketizer(NALWriterFunc(func(unit []byte) error {
		got = append(got, unit)
		return nil
	}), false, nil)
	for i, p := range append(frags, single...) {
		if i == 2 {
			continue // lost
		}
		require.NoError(t, dp.Depacketize(p))
	}
	assert.Equal(t, [][]byte{small}, got)
	assert.Equal(t, 1, dp.Lost())
}

func TestReadPacket_Errors(t *testing.T) {
	_, err := ReadPacket(bufio.NewReader(bytes.NewReader([]byte{'#', 0, 0, 1, 0})), ChannelVideo)
	assert.Equal(t, ErrInvalidPacket, errors.Cause(err))

	_, err = ReadPacket(bufio.NewReader(bytes.NewReader([]byte{'$', 0, 0, 8, 0x80})), ChannelVideo)
	assert.Equal(t, ErrInvalidPacket, errors.Cause(err))

	_, err = ReadPacket(bufio.NewReader(bytes.NewReader([]byte{'$', 0})), ChannelVideo)
	assert.Equal(t, ErrInvalidPacket, errors.Cause(err))

	_, err = ReadPacket(bufio.NewReader(bytes.NewReader(nil)), ChannelVideo)
	assert.Equal(t, io.EOF, err)

	dp := NewDepacketizer(NALWriterFunc(func([]byte) error { return nil }), false, nil)
	err = dp.Depacketize(packet(t, 1, []byte{0x60, 0x01, 0x00, 0x09, 0x40}))
	assert.Equal(t, ErrInvalidPacket, errors.Cause(err))
}

func concat(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

func packet(t *testing.T, seq uint16, payload []byte) *Packet {
	rp := rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: seq},
		Payload: payload,
	}
	data, err := rp.Marshal()
	require.NoError(t, err)
	p := &Packet{Data: data}
	require.NoError(t, p.Header.Unmarshal(data))
	return p
}
