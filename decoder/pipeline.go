// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync/atomic"

	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/queue"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// NALReader returns the NAL units of a bitstream one by one, io.EOF at the end.
type NALReader interface {
	ReadNAL() ([]byte, error)
}

// DefaultQueueLimit is the number of units read ahead of the decoder.
const DefaultQueueLimit = 64

// Pipeline reads NAL units in its own goroutine and decodes them in the
// goroutine calling Run.
type Pipeline struct {
	src     NALReader
	dec     *Decoder
	recv    *queue.SyncQueue // 接收 NAL 单元的队列
	slots   chan struct{}
	corrupt int64
	logger  *xlog.Logger
}

type endOfInput struct {
	err error
}

// NewPipeline returns a pipeline from src to dec reading at most limit
// units ahead. limit <= 0 uses DefaultQueueLimit.
func NewPipeline(src NALReader, dec *Decoder, limit int) *Pipeline {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Pipeline{
		src:    src,
		dec:    dec,
		recv:   queue.NewSyncQueue(),
		slots:  make(chan struct{}, limit),
		logger: dec.logger,
	}
}

// Corrupt returns the number of units dropped because they could not be parsed.
func (p *Pipeline) Corrupt() int64 { return atomic.LoadInt64(&p.corrupt) }

// Run decodes the whole input and closes the decoder. Units that fail to
// parse are logged and dropped; any other error stops the pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closed int32
	go p.read(runCtx)
	go func() {
		<-runCtx.Done()
		atomic.StoreInt32(&closed, 1)
		p.recv.Push(endOfInput{err: runCtx.Err()})
		p.recv.Signal()
	}()
	defer p.recv.Reset()

	for {
		item := p.recv.Pop()
		if item == nil {
			if atomic.LoadInt32(&closed) == 1 {
				return ctx.Err()
			}
			p.logger.Warn("pipeline: receive nil unit")
			continue
		}

		switch v := item.(type) {
		case []byte:
			<-p.slots
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.dec.Decode(v); err != nil {
				if !recoverable(err) {
					return err
				}
				atomic.AddInt64(&p.corrupt, 1)
				p.logger.Warnf("pipeline: drop unit: %v", err)
			}
		case endOfInput:
			if v.err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return v.err
			}
			return p.dec.Close()
		}
	}
}

func recoverable(err error) bool {
	cause := errors.Cause(err)
	return cause == hevc.ErrInvalidNALUnit || cause == hevc.ErrUnsupported
}

func (p *Pipeline) read(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("pipeline: read routine panic；r = %v \n %s", r, debug.Stack())
			p.recv.Push(endOfInput{err: fmt.Errorf("pipeline: read panic: %v", r)})
		}
	}()

	for {
		unit, err := p.src.ReadNAL()
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			p.recv.Push(endOfInput{err: err})
			return
		}

		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		p.recv.Push(unit)
	}
}
