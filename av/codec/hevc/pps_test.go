// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPPS_TileLayout(t *testing.T) {
	sps := &SPS{PicWidth: 64, PicHeight: 48, Log2CtbSize: 4}

	t.Run("single tile", func(t *testing.T) {
		pps := &PPS{NumTileColumns: 1, NumTileRows: 1, UniformSpacing: true}
		tl, err := pps.TileLayout(sps)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 4}, tl.ColBd)
		assert.Equal(t, []int{0, 3}, tl.RowBd)
		for rs := 0; rs < 12; rs++ {
			assert.Equal(t, rs, tl.RsToTs[rs])
			assert.Equal(t, 0, tl.TileID[rs])
		}
	})

	t.Run("uniform 2x2", func(t *testing.T) {
		pps := &PPS{NumTileColumns: 2, NumTileRows: 2, UniformSpacing: true}
		tl, err := pps.TileLayout(sps)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 4}, tl.ColBd)
		assert.Equal(t, []int{0, 1, 3}, tl.RowBd)
		assert.Equal(t, []int{0, 0, 1, 1, 2, 2, 3, 3, 2, 2, 3, 3}, tl.TileID)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 8, 9, 6, 7, 10, 11}, tl.RsToTs)
		for rs, ts := range tl.RsToTs {
			assert.Equal(t, rs, tl.TsToRs[ts])
		}
	})

	t.Run("explicit columns", func(t *testing.T) {
		pps := &PPS{NumTileColumns: 2, NumTileRows: 1, ColumnWidths: []int{1}}
		tl, err := pps.TileLayout(sps)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 4}, tl.ColBd)
	})

	t.Run("columns overflow", func(t *testing.T) {
		pps := &PPS{NumTileColumns: 2, NumTileRows: 1, ColumnWidths: []int{4}}
		_, err := pps.TileLayout(sps)
		assert.Error(t, err)
	})
}
