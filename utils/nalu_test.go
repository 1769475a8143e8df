// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEBSPToRBSP(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"plain", []byte{0x40, 0x01, 0x0c}, []byte{0x40, 0x01, 0x0c}},
		{"emulation", []byte{0x00, 0x00, 0x03, 0x01}, []byte{0x00, 0x00, 0x01}},
		{"start code", []byte{0x00, 0x00, 0x01, 0x42, 0x00, 0x00, 0x03, 0x00}, []byte{0x42, 0x00, 0x00, 0x00}},
		{"double", []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03}, []byte{0x00, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EBSPToRBSP(tt.in))
		})
	}
}

func TestSplitAnnexB(t *testing.T) {
	stream := []byte{
		0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0x0c,
		0x00, 0x00, 0x01, 0x42, 0x01,
		0x00, 0x00, 0x01, // empty unit
		0x00, 0x00, 0x01, 0x26, 0x01, 0xaf, 0x00, 0x00,
	}
	units := SplitAnnexB(stream)
	if assert.Len(t, units, 3) {
		assert.Equal(t, []byte{0x40, 0x01, 0x0c}, units[0])
		assert.Equal(t, []byte{0x42, 0x01}, units[1])
		assert.Equal(t, []byte{0x26, 0x01, 0xaf}, units[2])
	}
}
