// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlow(t *testing.T) {
	totalFlow := NewFlow()
	sub1 := NewChildFlow(totalFlow)
	sub2 := NewChildFlow(totalFlow)

	sub1.AddIn(100)
	sample := sub1.GetSample()
	assert.Equal(t, int64(100), sample.InBytes)
	assert.Equal(t, int64(1), sample.InUnits)

	sub2.AddIn(200)
	sub2.AddOut(4096)
	sample = totalFlow.GetSample()
	assert.Equal(t, int64(300), sample.InBytes)
	assert.Equal(t, int64(2), sample.InUnits)
	assert.Equal(t, int64(4096), sample.OutBytes)

	var sum FlowSample
	sum.Add(sub1.GetSample())
	sum.Add(sub2.GetSample())
	assert.Equal(t, sample, sum)
}

func TestPictures(t *testing.T) {
	p := NewPictures()
	for i := 0; i < 5; i++ {
		p.AddDecoded()
	}
	p.AddEmitted(3)
	p.AddDiscarded(1)
	p.AddFreed(2)
	p.AddSkipped()

	s := p.GetSample()
	assert.Equal(t, PicturesSample{Decoded: 5, Emitted: 3, Freed: 2, Discarded: 1, Skipped: 1}, s)
	assert.Equal(t, int64(1), s.Pending())
}

func TestChildPictures(t *testing.T) {
	total := NewPictures()
	a, b := NewChildPictures(total), NewChildPictures(total)
	a.AddDecoded()
	a.AddEmitted(1)
	b.AddDecoded()
	b.AddSkipped()
	b.AddDiscarded(1)

	assert.Equal(t, PicturesSample{Decoded: 1, Emitted: 1}, a.GetSample())
	assert.Equal(t, PicturesSample{Decoded: 2, Emitted: 1, Discarded: 1, Skipped: 1}, total.GetSample())
}

func TestMeasureUsage(t *testing.T) {
	u := MeasureUsage()
	assert.True(t, u.Goroutines > 0)
	assert.True(t, u.HeapAlloc >= 0)
	assert.True(t, u.Uptime > 0)
	assert.Contains(t, u.String(), "goroutines")
}
