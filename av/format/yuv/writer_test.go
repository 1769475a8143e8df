// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package yuv

import (
	"bytes"
	"io/ioutil"
	"testing"

	"github.com/cnotch/h265dec/av/output"
	"github.com/cnotch/h265dec/av/picture"
	"github.com/cnotch/h265dec/stats"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradient fills every sample with base + x + 16*y.
func gradient(w, h int, format picture.ChromaFormat, bitDepth int, base int) *picture.Picture {
	p := picture.New(w, h, format, bitDepth, bitDepth)
	for c := 0; c < p.NumPlanes(); c++ {
		pl := &p.Planes[c]
		for y := 0; y < pl.Height; y++ {
			for x := 0; x < pl.Width; x++ {
				pl.Set(x, y, uint16(base+x+16*y))
			}
		}
	}
	return p
}

func TestWriter_Crop(t *testing.T) {
	var buf bytes.Buffer
	flow := stats.NewFlow()
	w, err := NewWriter(&buf, WithFlow(flow))
	require.NoError(t, err)

	pic := gradient(8, 4, picture.Chroma420, 8, 0)
	crop := picture.Window{Left: 2, Right: 2, Top: 2}
	require.NoError(t, w.WritePicture(output.Output{Picture: pic, Crop: crop}))

	want := []byte{
		34, 35, 36, 37, 50, 51, 52, 53, // Y rows 2 and 3, columns 2..5
		17, 18, // Cb row 1, columns 1..2
		17, 18, // Cr
	}
	assert.Equal(t, want, buf.Bytes())
	assert.Equal(t, 1, w.Frames())
	assert.EqualValues(t, len(want), w.Bytes())
	assert.EqualValues(t, len(want), flow.GetSample().OutBytes)
	assert.NoError(t, w.Close())
}

func TestWriter_FieldPair(t *testing.T) {
	top := gradient(2, 2, picture.Chroma400, 8, 0)
	bottom := gradient(2, 2, picture.Chroma400, 8, 100)

	tests := []struct {
		name          string
		first, second *picture.Picture
		topFirst      bool
	}{
		{"top first", top, bottom, true},
		{"bottom first", bottom, top, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf)
			require.NoError(t, err)
			out := output.Output{Picture: tt.first, Second: tt.second, TopFieldFirst: tt.topFirst}
			require.NoError(t, w.WritePicture(out))
			assert.Equal(t, []byte{0, 1, 100, 101, 16, 17, 116, 117}, buf.Bytes())
		})
	}
}

func TestWriter_BitDepth(t *testing.T) {
	tests := []struct {
		name     string
		in, out  int
		sample   uint16
		expected []byte
	}{
		{"10 to 8 rounds", 10, 8, 514, []byte{129}},
		{"10 to 8 clips", 10, 8, 1023, []byte{255}},
		{"8 to 10", 8, 10, 200, []byte{0x20, 0x03}},
		{"10 kept", 10, 0, 0x2ab, []byte{0xab, 0x02}},
		{"8 kept", 8, 0, 77, []byte{77}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, WithBitDepth(tt.out))
			require.NoError(t, err)
			pic := picture.New(1, 1, picture.Chroma400, tt.in, tt.in)
			pic.Planes[0].Set(0, 0, tt.sample)
			require.NoError(t, w.WritePicture(output.Output{Picture: pic}))
			assert.Equal(t, tt.expected, buf.Bytes())
		})
	}
}

func TestWriter_Zstd(t *testing.T) {
	var plain, packed bytes.Buffer
	pw, err := NewWriter(&plain)
	require.NoError(t, err)
	zw, err := NewWriter(&packed, WithCompression(CompressZstd))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		pic := gradient(64, 32, picture.Chroma422, 8, i)
		out := output.Output{Picture: pic, Crop: picture.Window{Bottom: 8}}
		require.NoError(t, pw.WritePicture(out))
		require.NoError(t, zw.WritePicture(out))
	}
	require.NoError(t, zw.Close())
	assert.Equal(t, int64(plain.Len()), zw.Bytes())
	assert.True(t, packed.Len() < plain.Len())

	zr, err := zstd.NewReader(&packed)
	require.NoError(t, err)
	defer zr.Close()
	got, err := ioutil.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, plain.Bytes(), got)
}

func TestWriter_Errors(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, WithCompression("lz4"))
	assert.Equal(t, ErrUnsupported, errors.Cause(err))
	_, err = NewWriter(&bytes.Buffer{}, WithBitDepth(7))
	assert.Equal(t, ErrUnsupported, errors.Cause(err))

	w, err := NewWriter(&bytes.Buffer{})
	require.NoError(t, err)
	pic := picture.New(4, 4, picture.Chroma420, 8, 8)
	err = w.WritePicture(output.Output{Picture: pic, Crop: picture.Window{Left: 2, Right: 2}})
	assert.Equal(t, ErrUnsupported, errors.Cause(err))

	other := picture.New(8, 4, picture.Chroma420, 8, 8)
	err = w.WritePicture(output.Output{Picture: pic, Second: other, TopFieldFirst: true})
	assert.Equal(t, ErrUnsupported, errors.Cause(err))
}
