// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// PicturesSample 图像计数采样
type PicturesSample struct {
	Decoded   int64 `json:"decoded"`
	Emitted   int64 `json:"emitted"`
	Freed     int64 `json:"freed"`
	Discarded int64 `json:"discarded"`
	Skipped   int64 `json:"skipped"` // RASL pictures never decoded
}

// Pictures counts pictures through the decoded picture buffer.
type Pictures interface {
	AddDecoded()
	AddEmitted(n int)
	AddFreed(n int)
	AddDiscarded(n int)
	AddSkipped()
	GetSample() PicturesSample
}

func (s *PicturesSample) clone() PicturesSample {
	return PicturesSample{
		Decoded:   atomic.LoadInt64(&s.Decoded),
		Emitted:   atomic.LoadInt64(&s.Emitted),
		Freed:     atomic.LoadInt64(&s.Freed),
		Discarded: atomic.LoadInt64(&s.Discarded),
		Skipped:   atomic.LoadInt64(&s.Skipped),
	}
}

// Pending returns the pictures decoded but neither emitted nor discarded.
func (s PicturesSample) Pending() int64 {
	return s.Decoded - s.Emitted - s.Discarded
}

type pictures struct {
	sample PicturesSample
}

// NewPictures 新建图像计数
func NewPictures() Pictures {
	return &pictures{}
}

func (p *pictures) AddDecoded() {
	atomic.AddInt64(&p.sample.Decoded, 1)
}

func (p *pictures) AddEmitted(n int) {
	atomic.AddInt64(&p.sample.Emitted, int64(n))
}

func (p *pictures) AddFreed(n int) {
	atomic.AddInt64(&p.sample.Freed, int64(n))
}

func (p *pictures) AddDiscarded(n int) {
	atomic.AddInt64(&p.sample.Discarded, int64(n))
}

func (p *pictures) AddSkipped() {
	atomic.AddInt64(&p.sample.Skipped, 1)
}

func (p *pictures) GetSample() PicturesSample {
	return p.sample.clone()
}

type childPictures struct {
	pictures
	parent Pictures
}

// NewChildPictures 创建子图像计数，它会把自己的计数Add到parent上
func NewChildPictures(parent Pictures) Pictures {
	return &childPictures{parent: parent}
}

func (p *childPictures) AddDecoded() {
	p.pictures.AddDecoded()
	p.parent.AddDecoded()
}

func (p *childPictures) AddEmitted(n int) {
	p.pictures.AddEmitted(n)
	p.parent.AddEmitted(n)
}

func (p *childPictures) AddFreed(n int) {
	p.pictures.AddFreed(n)
	p.parent.AddFreed(n)
}

func (p *childPictures) AddDiscarded(n int) {
	p.pictures.AddDiscarded(n)
	p.parent.AddDiscarded(n)
}

func (p *childPictures) AddSkipped() {
	p.pictures.AddSkipped()
	p.parent.AddSkipped()
}
