// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestParseNALHeader(t *testing.T) {
	tests := []struct {
		name    string
		unit    []byte
		want    NALHeader
		wantErr bool
	}{
		{"vps", []byte{0x40, 0x01, 0x0c}, NALHeader{Type: NalVps}, false},
		{"idr", []byte{0x26, 0x01}, NALHeader{Type: NalIdrWRadl}, false},
		{"trail tid 2", []byte{0x02, 0x03}, NALHeader{Type: NalTrailR, TemporalID: 2}, false},
		{"forbidden bit", []byte{0x80, 0x01}, NALHeader{}, true},
		{"tid zero", []byte{0x02, 0x00}, NALHeader{}, true},
		{"short", []byte{0x02}, NALHeader{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNALHeader(tt.unit)
			if tt.wantErr {
				assert.Equal(t, ErrInvalidNALUnit, errors.Cause(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNALHeader_Classes(t *testing.T) {
	tests := []struct {
		typ                                          uint8
		vcl, irap, idr, bla, cra, rasl, radl, nonRef bool
	}{
		{NalTrailN, true, false, false, false, false, false, false, true},
		{NalTrailR, true, false, false, false, false, false, false, false},
		{NalRadlN, true, false, false, false, false, false, true, true},
		{NalRaslR, true, false, false, false, false, true, false, false},
		{NalBlaWLp, true, true, false, true, false, false, false, false},
		{NalIdrNLp, true, true, true, false, false, false, false, false},
		{NalCraNut, true, true, false, false, true, false, false, false},
		{NalSps, false, false, false, false, false, false, false, false},
		{NalEosNut, false, false, false, false, false, false, false, false},
	}
	for _, tt := range tests {
		h := NALHeader{Type: tt.typ}
		name := NALTypeName(tt.typ)
		assert.Equal(t, tt.vcl, h.IsVCL(), name)
		assert.Equal(t, tt.irap, h.IsIRAP(), name)
		assert.Equal(t, tt.idr, h.IsIDR(), name)
		assert.Equal(t, tt.bla, h.IsBLA(), name)
		assert.Equal(t, tt.cra, h.IsCRA(), name)
		assert.Equal(t, tt.rasl, h.IsRASL(), name)
		assert.Equal(t, tt.radl, h.IsRADL(), name)
		assert.Equal(t, tt.nonRef, h.IsSubLayerNonReference(), name)
	}
	assert.Equal(t, "RSV_45", NALTypeName(45))
}
