// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/h265dec/av/codec/hevc/hevctest"
	"github.com/cnotch/h265dec/av/format/annexb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unitList struct {
	units [][]byte
	err   error
}

func (l *unitList) ReadNAL() ([]byte, error) {
	if len(l.units) == 0 {
		if l.err != nil {
			return nil, l.err
		}
		return nil, io.EOF
	}
	unit := l.units[0]
	l.units = l.units[1:]
	return unit, nil
}

// blocking never returns a unit.
type blocking struct{}

func (blocking) ReadNAL() ([]byte, error) {
	select {}
}

func TestPipeline_AnnexB(t *testing.T) {
	seq := hevctest.DefaultSequence()
	var units [][]byte
	units = append(units, header(&seq)...)
	units = append(units, idr(&seq))
	for poc := 1; poc < 40; poc++ {
		units = append(units, trail(&seq, poc, -1))
	}

	rec := &recorder{}
	src := annexb.NewReader(bytes.NewReader(hevctest.AnnexB(units...)))
	p := NewPipeline(src, New(rec), 4)
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, rec.pocs, 40)
	for i, pocs := range rec.pocs {
		assert.Equal(t, []int{i}, pocs)
	}
	assert.Equal(t, len(units), src.Units())
	assert.Zero(t, p.Corrupt())
}

func TestPipeline_CorruptUnit(t *testing.T) {
	seq := hevctest.DefaultSequence()
	src := &unitList{units: append(header(&seq),
		[]byte{hevc.NalPps << 1, 1}, // truncated PPS
		idr(&seq),
	)}

	rec := &recorder{}
	p := NewPipeline(src, New(rec), 0)
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []int{0}, rec.flat())
	assert.EqualValues(t, 1, p.Corrupt())
}

func TestPipeline_ReadError(t *testing.T) {
	seq := hevctest.DefaultSequence()
	readErr := errors.New("broken pipe")
	src := &unitList{units: append(header(&seq), idr(&seq)), err: readErr}

	p := NewPipeline(src, New(&recorder{}), 0)
	assert.Equal(t, readErr, p.Run(context.Background()))
}

func TestPipeline_Cancel(t *testing.T) {
	p := NewPipeline(blocking{}, New(&recorder{}), 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, p.Run(ctx))
}

func TestPipeline_CancelStopsQueuedUnits(t *testing.T) {
	seq := hevctest.DefaultSequence()
	units := append(header(&seq), idr(&seq))
	for poc := 1; poc < 20; poc++ {
		units = append(units, trail(&seq, poc, -1))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := 0
	d := New(&recorder{}, WithPictureHook(func(PictureInfo) {
		started++
		cancel()
	}))
	p := NewPipeline(&unitList{units: units}, d, 0)
	assert.Equal(t, context.Canceled, p.Run(ctx))
	assert.Equal(t, 1, started, "units queued before the cancellation were decoded")
}
