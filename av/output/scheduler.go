// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package output implements the bumping process: it decides when decoded
// pictures leave the decoded picture buffer, writes them in display order
// and recycles the ones no longer needed.
package output

import (
	"math"

	"github.com/cnotch/h265dec/av/picture"
	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// NoPOC is the last displayed POC before any output and after each flush.
const NoPOC = -math.MaxInt32

// Sequence supplies the output limits of the active sequence parameter set.
type Sequence interface {
	MaxSubLayers() int
	NumReorderPics(tid int) int
	MaxDecPicBuffering(tid int) int
}

// Output is one emitted frame or field pair.
type Output struct {
	Picture *picture.Picture // frame, or first field of a pair
	Second  *picture.Picture // second field of a pair, nil for frames
	Crop    picture.Window   // luma samples removed on each side
	// TopFieldFirst tells whether Picture is the top field.
	TopFieldFirst bool
}

// IsFieldPair .
func (o Output) IsFieldPair() bool { return o.Second != nil }

// POCs returns the POC of each emitted picture.
func (o Output) POCs() []int {
	if o.Second != nil {
		return []int{o.Picture.POC, o.Second.POC}
	}
	return []int{o.Picture.POC}
}

// Writer receives the emitted pictures in display order.
type Writer interface {
	WritePicture(out Output) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(out Output) error

// WritePicture calls f(out).
func (f WriterFunc) WritePicture(out Output) error { return f(out) }

// Option configures a Scheduler.
type Option func(s *Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *xlog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMaxTemporalLayer limits the sub-layer whose limits apply; -1 selects the highest.
func WithMaxTemporalLayer(tid int) Option {
	return func(s *Scheduler) { s.maxTemporalLayer = tid }
}

// WithDefaultDisplayWindow adds the VUI default display window to the crop window.
func WithDefaultDisplayWindow(respect bool) Option {
	return func(s *Scheduler) { s.respectDisplayWindow = respect }
}

// WithStats counts the pictures emitted, freed and discarded.
func WithStats(counter stats.Pictures) Option {
	return func(s *Scheduler) { s.counter = counter }
}

// Scheduler runs the bumping process over a decoded picture buffer. The
// decode path adds pictures to the buffer and reconstructs them; only the
// scheduler moves them to displayed or freed. It is not safe for concurrent use.
type Scheduler struct {
	dpb  *picture.List
	pool *picture.Pool
	w    Writer
	seq  Sequence

	maxTemporalLayer     int
	respectDisplayWindow bool
	lastPOC              int

	counter stats.Pictures
	logger  *xlog.Logger // 日志对象
}

// NewScheduler returns a scheduler emitting the pictures of dpb to w.
// Freed pictures go back to pool when it is not nil.
func NewScheduler(dpb *picture.List, pool *picture.Pool, w Writer, opts ...Option) *Scheduler {
	s := &Scheduler{
		dpb:              dpb,
		pool:             pool,
		w:                w,
		maxTemporalLayer: -1,
		lastPOC:          NoPOC,
		counter:          stats.NewPictures(),
		logger:           xlog.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSequence activates the limits of seq.
func (s *Scheduler) SetSequence(seq Sequence) { s.seq = seq }

// LastPOC returns the POC of the last emitted picture or NoPOC.
func (s *Scheduler) LastPOC() int { return s.lastPOC }

// Stats returns the picture counters.
func (s *Scheduler) Stats() stats.PicturesSample { return s.counter.GetSample() }

// Limits returns num_reorder_pics and the decoded picture buffer size of
// the target sub-layer. Both are zero before a sequence is active.
func (s *Scheduler) Limits() (numReorder, maxDecPicBuffering int) {
	if s.seq == nil {
		return 0, 0
	}
	tid := s.seq.MaxSubLayers() - 1
	if s.maxTemporalLayer >= 0 && s.maxTemporalLayer < s.seq.MaxSubLayers() {
		tid = s.maxTemporalLayer
	}
	return s.seq.NumReorderPics(tid), s.seq.MaxDecPicBuffering(tid)
}

// NotifyNewPicture is called once pic is fully decoded. It makes pic
// available for output, emits whatever the limits force out and frees
// what is neither pending nor referenced.
func (s *Scheduler) NotifyNewPicture(pic *picture.Picture, tid int) error {
	if pic != nil {
		pic.TemporalID = tid
		if pic.OutputPending {
			pic.SetState(picture.StatePending)
		} else {
			pic.SetState(picture.StateDisplayed)
		}
		if !s.dpb.Contains(pic) {
			s.dpb.Add(pic)
		}
		s.counter.AddDecoded()
		s.logger.Debugf("picture POC %d decoded (tid %d, output %t)", pic.POC, tid, pic.OutputPending)
	}
	if err := s.bump(); err != nil {
		return err
	}
	s.Collect()
	return nil
}

// NotifyRandomAccessPoint is called before an IDR or BLA picture is decoded.
func (s *Scheduler) NotifyRandomAccessPoint() error { return s.Flush() }

// NotifyEndOfSequence is called on an end of sequence NAL unit, after the
// last picture of the sequence was notified.
func (s *Scheduler) NotifyEndOfSequence() error {
	if err := s.bump(); err != nil {
		return err
	}
	return s.Flush()
}

// NotifyEndOfStream emits every pending picture.
func (s *Scheduler) NotifyEndOfStream() error { return s.Flush() }

// DiscardPending drops every pending picture without writing it, as
// no_output_of_prior_pics_flag requires.
func (s *Scheduler) DiscardPending() {
	n := 0
	for _, p := range s.dpb.Pictures() {
		if p.State() == picture.StateDecoding || !p.OutputPending {
			continue
		}
		p.OutputPending = false
		p.SetState(picture.StateDisplayed)
		n++
	}
	if n > 0 {
		s.counter.AddDiscarded(n)
		s.logger.Debugf("%d pending pictures discarded", n)
	}
	s.Collect()
}

// Collect frees the pictures that are neither pending nor referenced.
func (s *Scheduler) Collect() int {
	n := s.dpb.Sweep(s.free)
	if n > 0 {
		s.counter.AddFreed(n)
	}
	return n
}

func (s *Scheduler) free(p *picture.Picture) {
	s.logger.Debugf("picture POC %d freed", p.POC)
	if s.pool != nil {
		s.pool.Put(p)
		return
	}
	p.SetState(picture.StateFreed)
}

// counts returns the pictures waiting for output and the pictures occupying
// the buffer, which are those plus the referenced ones.
func (s *Scheduler) counts() (notDisplayed, fullness int) {
	for _, p := range s.dpb.Pictures() {
		if p.State() == picture.StateDecoding {
			continue
		}
		if p.OutputPending && p.POC > s.lastPOC {
			notDisplayed++
			fullness++
		} else if p.Referenced() {
			fullness++
		}
	}
	return
}

// decoded returns the decoded pictures by increasing POC.
func (s *Scheduler) decoded() []*picture.Picture {
	pics := s.dpb.ByPOC()
	n := 0
	for _, p := range pics {
		if p.State() != picture.StateDecoding {
			pics[n] = p
			n++
		}
	}
	return pics[:n]
}

func fieldMode(pics []*picture.Picture) bool {
	return len(pics) > 0 && pics[0].IsField
}

func isFieldPair(first, second *picture.Picture) bool {
	return first.OutputPending && second.OutputPending &&
		first.POC%2 == 0 && second.POC == first.POC+1
}

func (s *Scheduler) bump() error {
	if s.seq == nil {
		return nil
	}
	numReorder, maxDec := s.Limits()
	notDisplayed, fullness := s.counts()
	over := func() bool { return notDisplayed > numReorder || fullness > maxDec }

	pics := s.decoded()
	if fieldMode(pics) {
		for i := 0; i+1 < len(pics) && over(); i++ {
			first, second := pics[i], pics[i+1]
			if !isFieldPair(first, second) || (first.POC != s.lastPOC+1 && s.lastPOC >= 0) {
				continue
			}
			notDisplayed -= 2
			for _, p := range []*picture.Picture{first, second} {
				if !p.Referenced() {
					fullness--
				}
			}
			if err := s.emit(Output{Picture: first, Second: second, TopFieldFirst: first.TopField}); err != nil {
				return err
			}
			i++
		}
		return nil
	}

	for _, p := range pics {
		if !over() {
			break
		}
		if !p.OutputPending || p.POC <= s.lastPOC {
			continue
		}
		notDisplayed--
		if !p.Referenced() {
			fullness--
		}
		if err := s.emit(Output{Picture: p}); err != nil {
			return err
		}
	}
	return nil
}

// Flush emits every pending picture by increasing POC, frees all decoded
// pictures whether referenced or not and resets the last displayed POC.
// Fields without a pair are discarded. Pictures still being decoded are kept.
func (s *Scheduler) Flush() error {
	pics := s.decoded()
	if fieldMode(pics) {
		lone := 0
		for i := 0; i < len(pics); i++ {
			p := pics[i]
			if !p.OutputPending {
				continue
			}
			if i+1 < len(pics) && isFieldPair(p, pics[i+1]) {
				if err := s.emit(Output{Picture: p, Second: pics[i+1], TopFieldFirst: p.TopField}); err != nil {
					return err
				}
				i++
				continue
			}
			s.logger.Warnf("field POC %d has no pair, discarded", p.POC)
			p.OutputPending = false
			p.SetState(picture.StateDisplayed)
			lone++
		}
		if lone > 0 {
			s.counter.AddDiscarded(lone)
		}
	} else {
		for _, p := range pics {
			if !p.OutputPending {
				continue
			}
			if err := s.emit(Output{Picture: p}); err != nil {
				return err
			}
		}
	}

	for _, p := range pics {
		p.ReleaseAll()
	}
	s.Collect()
	s.lastPOC = NoPOC
	return nil
}

func (s *Scheduler) emit(out Output) error {
	out.Crop = out.Picture.ConfWindow
	if s.respectDisplayWindow {
		out.Crop = out.Picture.CropWindow()
	}
	if s.w != nil {
		if err := s.w.WritePicture(out); err != nil {
			return errors.WithMessagef(err, "write POC %v", out.POCs())
		}
	}

	n := 0
	for _, p := range []*picture.Picture{out.Picture, out.Second} {
		if p == nil {
			continue
		}
		p.OutputPending = false
		p.SetState(picture.StateDisplayed)
		s.lastPOC = p.POC
		n++
	}
	s.counter.AddEmitted(n)
	s.logger.Debugf("emitted POC %v", out.POCs())
	return nil
}
