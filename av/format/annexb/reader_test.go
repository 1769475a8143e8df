// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package annexb

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/h265dec/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) [][]byte {
	var units [][]byte
	for {
		unit, err := r.ReadNAL()
		if err == io.EOF {
			return units
		}
		require.NoError(t, err)
		units = append(units, unit)
	}
}

func TestReader(t *testing.T) {
	stream := []byte{
		0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0x0c,
		0x00, 0x00, 0x01, 0x42, 0x01,
		0x00, 0x00, 0x01, // empty unit
		0x00, 0x00, 0x01, 0x26, 0x01, 0xaf, 0x00, 0x00, 0x03, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01, 0x4a, 0x01,
	}
	flow := stats.NewFlow()
	r := NewReader(iotest.OneByteReader(bytes.NewReader(stream)), WithFlow(flow))
	units := readAll(t, r)
	require.Len(t, units, 4)
	assert.Equal(t, []byte{0x40, 0x01, 0x0c}, units[0])
	assert.Equal(t, []byte{0x42, 0x01}, units[1])
	assert.Equal(t, []byte{0x26, 0x01, 0xaf, 0x00, 0x00, 0x03, 0x01}, units[2])
	assert.Equal(t, []byte{0x4a, 0x01}, units[3])
	assert.Equal(t, int64(len(stream)), r.Offset())
	assert.Equal(t, 4, r.Units())
	assert.EqualValues(t, 4, flow.GetSample().InUnits)
	assert.EqualValues(t, 14, flow.GetSample().InBytes)

	_, err := r.ReadNAL()
	assert.Equal(t, io.EOF, err)
}

func TestReader_MatchesSplit(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	var stream bytes.Buffer
	for i := 0; i < 50; i++ {
		unit := make([]byte, 2+rnd.Intn(300))
		rnd.Read(unit)
		unit[0] = byte(rnd.Intn(41)) << 1
		unit[1] = 1
		// no start code emulation and no trailing zero
		for j := 2; j < len(unit); j++ {
			if unit[j] < 4 {
				unit[j] = 4
			}
		}
		require.NoError(t, WriteNAL(&stream, unit))
	}

	want := utils.SplitAnnexB(stream.Bytes())
	got := readAll(t, NewReader(bytes.NewReader(stream.Bytes())))
	assert.Equal(t, want, got)
}

func TestReader_Errors(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil)).ReadNAL()
	assert.Equal(t, io.EOF, err)

	_, err = NewReader(bytes.NewReader([]byte{0x00, 0x00})).ReadNAL()
	assert.Equal(t, ErrNotAnnexB, err)

	_, err = NewReader(bytes.NewReader([]byte{0x00, 0x47, 0x00, 0x00, 0x01})).ReadNAL()
	assert.Equal(t, ErrNotAnnexB, errors.Cause(err))

	_, err = NewReader(iotest.TimeoutReader(bytes.NewReader([]byte{0x00, 0x00, 0x01, 0x40, 0x01}))).ReadNAL()
	assert.Error(t, err)
}
