// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package decoder drives the decoding of an H.265 NAL unit stream: it
// activates parameter sets, derives picture order counts, marks reference
// pictures, runs SAO on every reconstructed picture and hands the pictures
// to the output scheduler.
package decoder

import (
	"time"

	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/h265dec/av/output"
	"github.com/cnotch/h265dec/av/picture"
	"github.com/cnotch/h265dec/av/sao"
	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/xlog"
	"github.com/kelindar/rate"
	"github.com/pkg/errors"
)

// errors returned by Decode
var (
	ErrNoActiveSPS = errors.New("decoder: no active sequence parameter set")
	ErrNoActivePPS = errors.New("decoder: no active picture parameter set")
)

// PictureInfo describes a picture when its decoding starts.
type PictureInfo struct {
	POC         int
	DecodeOrder int
	NALType     uint8
	TemporalID  int
	SliceType   int
	Output      bool
	Skipped     bool // RASL or leading picture that is not decoded
}

// Option configures a Decoder.
type Option func(d *Decoder)

// WithLogger sets the logger.
func WithLogger(logger *xlog.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
		d.schedOpts = append(d.schedOpts, output.WithLogger(logger))
	}
}

// WithMaxTemporalLayer drops the units of higher sub-layers and applies the
// output limits of that sub-layer. -1 keeps every sub-layer.
func WithMaxTemporalLayer(tid int) Option {
	return func(d *Decoder) {
		d.maxTemporalLayer = tid
		d.schedOpts = append(d.schedOpts, output.WithMaxTemporalLayer(tid))
	}
}

// WithDefaultDisplayWindow crops the output with the VUI default display
// window as well as the conformance window.
func WithDefaultDisplayWindow(respect bool) Option {
	return func(d *Decoder) {
		d.schedOpts = append(d.schedOpts, output.WithDefaultDisplayWindow(respect))
	}
}

// WithStats counts the pictures of the stream.
func WithStats(counter stats.Pictures) Option {
	return func(d *Decoder) {
		d.counter = counter
		d.schedOpts = append(d.schedOpts, output.WithStats(counter))
	}
}

// WithReconstructor sets the sample reconstruction. The default is NullReconstructor.
func WithReconstructor(rec Reconstructor) Option {
	return func(d *Decoder) { d.rec = rec }
}

// WithProgressRate logs at most n progress lines per second; 0 disables them.
func WithProgressRate(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.progress = rate.New(n, time.Second)
		}
	}
}

// WithPictureHook calls fn whenever a picture starts.
func WithPictureHook(fn func(PictureInfo)) Option {
	return func(d *Decoder) { d.onPicture = fn }
}

type segment struct {
	ts           int  // first CTB in tile scan
	sliceTs      int  // first CTB of its slice in tile scan
	filterAcross bool // slice_loop_filter_across_slices_enabled_flag of its slice
}

// Decoder consumes the NAL units of one bitstream. It is not safe for
// concurrent use.
type Decoder struct {
	sets     hevc.ParameterSets
	poc      hevc.POCState
	sps      *hevc.SPS
	pps      *hevc.PPS
	tiles    *hevc.TileLayout
	tilesFor *hevc.PPS

	dpb       picture.List
	pool      picture.Pool
	sched     *output.Scheduler
	schedOpts []output.Option
	rec       Reconstructor

	params *sao.Params
	filter *sao.Filter

	cur          *picture.Picture
	curNAL       hevc.NALHeader
	prev         *hevc.SliceHeader // last independent segment header of cur
	segments     []segment
	saoUsed      bool
	skipping     bool
	seenIRAP     bool
	afterEOS     bool
	noRaslOutput bool // NoRaslOutputFlag of the last IRAP picture
	decodeOrder  int

	maxTemporalLayer int
	counter          stats.Pictures
	progress         *rate.Limiter
	onPicture        func(PictureInfo)
	logger           *xlog.Logger // 日志对象
}

// New returns a decoder writing the pictures in output order to w.
func New(w output.Writer, opts ...Option) *Decoder {
	d := &Decoder{
		rec:              NullReconstructor{},
		maxTemporalLayer: -1,
		counter:          stats.NewPictures(),
		logger:           xlog.L(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sched = output.NewScheduler(&d.dpb, &d.pool, w, d.schedOpts...)
	return d
}

// ActiveSPS returns the active sequence parameter set or nil.
func (d *Decoder) ActiveSPS() *hevc.SPS { return d.sps }

// Scheduler returns the output scheduler.
func (d *Decoder) Scheduler() *output.Scheduler { return d.sched }

// Pictures returns the number of pictures held in the decoded picture buffer.
func (d *Decoder) Pictures() int { return d.dpb.Len() }

// Stats returns the picture counters.
func (d *Decoder) Stats() stats.PicturesSample { return d.counter.GetSample() }

// Decode consumes one NAL unit given without start code.
func (d *Decoder) Decode(unit []byte) error {
	h, err := hevc.ParseNALHeader(unit)
	if err != nil {
		return err
	}
	if h.LayerID > 0 {
		d.logger.Debugf("%s of layer %d ignored", h, h.LayerID)
		return nil
	}
	if h.IsVCL() {
		return d.decodeSlice(h, unit)
	}

	switch h.Type {
	case hevc.NalVps, hevc.NalSps, hevc.NalPps:
		if _, err = d.sets.Put(unit); err != nil {
			return err
		}
		d.logger.Debugf("%s stored", h)
	case hevc.NalEosNut, hevc.NalEobNut:
		return d.endOfSequence()
	default:
		d.logger.Debugf("%s ignored", h)
	}
	return nil
}

// Close completes the last picture and writes every pending picture.
func (d *Decoder) Close() error {
	if err := d.finishPicture(); err != nil {
		return err
	}
	if err := d.sched.NotifyEndOfStream(); err != nil {
		return err
	}
	sample := d.counter.GetSample()
	d.logger.Infof("stream done: %d pictures decoded, %d emitted, %d discarded, %d skipped",
		sample.Decoded, sample.Emitted, sample.Discarded, sample.Skipped)
	return nil
}

func (d *Decoder) endOfSequence() error {
	if err := d.finishPicture(); err != nil {
		return err
	}
	if err := d.sched.NotifyEndOfSequence(); err != nil {
		return err
	}
	d.afterEOS = true
	d.poc.Reset()
	d.logger.Debug("end of sequence")
	return nil
}

// checkParameterSets reports whether the parameter sets of a slice are
// available. Slices before the first random access point are skipped when
// they are not.
func (d *Decoder) checkParameterSets(unit []byte) (bool, error) {
	id, err := hevc.SlicePPSID(unit)
	if err != nil {
		return false, err
	}
	pps := d.sets.PPS(id)
	if pps == nil {
		if !d.seenIRAP {
			return false, nil
		}
		return false, errors.Wrapf(ErrNoActivePPS, "slice refers to pps %d", id)
	}
	if d.sets.SPS(int(pps.SPSID)) == nil {
		if !d.seenIRAP {
			return false, nil
		}
		return false, errors.Wrapf(ErrNoActiveSPS, "pps %d refers to sps %d", id, pps.SPSID)
	}
	return true, nil
}

func (d *Decoder) decodeSlice(h hevc.NALHeader, unit []byte) error {
	if h.IsReserved() {
		d.logger.Warnf("reserved %s ignored", h)
		return nil
	}
	if d.maxTemporalLayer >= 0 && int(h.TemporalID) > d.maxTemporalLayer {
		return nil
	}
	ok, err := d.checkParameterSets(unit)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Warnf("%s before parameter sets skipped", h)
		return nil
	}

	var prev *hevc.SliceHeader
	if d.cur != nil {
		prev = d.prev
	}
	sh := new(hevc.SliceHeader)
	if err = sh.Decode(unit, &d.sets, prev); err != nil {
		return err
	}

	if sh.FirstSliceInPic {
		if err = d.finishPicture(); err != nil {
			return err
		}
		if err = d.startPicture(sh); err != nil {
			return err
		}
	} else if d.cur == nil {
		if !d.skipping {
			d.logger.Warnf("%s without the first slice of its picture skipped", h)
		}
		return nil
	}
	if d.skipping {
		return nil
	}

	if !sh.Dependent {
		d.prev = sh
	}
	d.addSegment(sh)
	if sh.SAOLuma || sh.SAOChroma {
		d.saoUsed = true
		d.params.Enabled[0] = d.params.Enabled[0] || sh.SAOLuma
		for c := 1; c < d.params.NumComponents(); c++ {
			d.params.Enabled[c] = d.params.Enabled[c] || sh.SAOChroma
		}
	}
	return d.rec.DecodeSlice(sh, unit, d.cur, d.params)
}

// startPicture derives the state of a new picture from its first slice.
func (d *Decoder) startPicture(sh *hevc.SliceHeader) error {
	nal := sh.NAL
	d.skipping = false
	d.decodeOrder++

	if nal.IsIRAP() {
		d.noRaslOutput = nal.IsIDR() || nal.IsBLA() || !d.seenIRAP || d.afterEOS
	}
	info := PictureInfo{
		DecodeOrder: d.decodeOrder,
		NALType:     nal.Type,
		TemporalID:  int(nal.TemporalID),
		SliceType:   sh.SliceType,
		Output:      sh.PicOutput,
	}
	switch {
	case !d.seenIRAP && !nal.IsIRAP():
		d.logger.Warnf("%s before the first random access point skipped", nal)
		d.skip(info)
		return nil
	case nal.IsRASL() && d.noRaslOutput:
		d.logger.Debugf("%s associated with a random access point skipped", nal)
		d.skip(info)
		return nil
	}

	if err := d.activate(sh); err != nil {
		return err
	}
	poc := d.poc.Derive(sh, nal.IsIRAP() && d.noRaslOutput)
	info.POC = poc

	if nal.IsIRAP() && d.noRaslOutput {
		if d.seenIRAP && sh.NoOutputOfPriorPics {
			d.sched.DiscardPending()
		}
		for _, p := range d.dpb.Pictures() {
			p.ReleaseAll()
		}
		if nal.IsIDR() || nal.IsBLA() {
			if err := d.sched.NotifyRandomAccessPoint(); err != nil {
				return err
			}
		}
	} else {
		d.applyRPS(sh, poc)
		d.sched.Collect()
	}
	d.seenIRAP = true
	d.afterEOS = false

	sps := d.sps
	pic := d.pool.Get(sps.Width(), sps.Height(), picture.ChromaFormat(sps.ChromaArrayType()),
		sps.BitDepthLuma, sps.BitDepthChroma)
	pic.POC = poc
	pic.TemporalID = int(nal.TemporalID)
	pic.DecodeOrder = d.decodeOrder
	pic.IsField = sps.FieldSeq()
	pic.TopField = pic.IsField && poc%2 == 0
	pic.ConfWindow = window(sps.ConformanceWindow())
	pic.DisplayWindow = window(sps.DefaultDisplayWindow())
	pic.OutputPending = sh.PicOutput
	d.dpb.Add(pic)

	d.cur, d.curNAL = pic, nal
	d.prev = nil
	d.segments = d.segments[:0]
	d.saoUsed = false
	d.params.Reset()

	d.logger.Debugf("picture POC %d started (%s, decode order %d)", poc, nal, d.decodeOrder)
	if d.onPicture != nil {
		d.onPicture(info)
	}
	return nil
}

func (d *Decoder) skip(info PictureInfo) {
	d.skipping = true
	d.counter.AddSkipped()
	info.Skipped = true
	if d.onPicture != nil {
		d.onPicture(info)
	}
}

func window(w hevc.Window) picture.Window {
	return picture.Window{Left: w.Left, Right: w.Right, Top: w.Top, Bottom: w.Bottom}
}

// activate makes the parameter sets of sh active. A new SPS reallocates
// the SAO state and changes the output limits.
func (d *Decoder) activate(sh *hevc.SliceHeader) error {
	d.pps = sh.PPS
	if sh.SPS == d.sps {
		return nil
	}
	if d.sps != nil && sameSequence(d.sps, sh.SPS) {
		// repeated SPS
		d.sps = sh.SPS
		d.sched.SetSequence(sh.SPS)
		return nil
	}
	if d.sps != nil && !sh.NAL.IsIRAP() {
		return errors.Wrapf(hevc.ErrInvalidNALUnit, "sps %d activated by %s", sh.SPS.ID, sh.NAL)
	}

	sps := sh.SPS
	geo := sao.Geometry{
		Width:      sps.Width(),
		Height:     sps.Height(),
		UnitWidth:  sps.CtbSize(),
		UnitHeight: sps.CtbSize(),
		Format:     picture.ChromaFormat(sps.ChromaArrayType()),
	}
	params, err := sao.NewParams(geo)
	if err != nil {
		return err
	}
	filter, err := sao.NewFilter(geo)
	if err != nil {
		return err
	}
	d.sps, d.params, d.filter = sps, params, filter
	d.tiles, d.tilesFor = nil, nil
	d.sched.SetSequence(sps)
	d.pool.Drop(geo.Width, geo.Height, geo.Format)

	reorder, maxDec := d.sched.Limits()
	d.logger.Infof("sps %d active: %dx%d %s, %d bit, ctb %d, reorder %d, dpb %d, fields %t",
		sps.ID, sps.Width(), sps.Height(), geo.Format, sps.BitDepthLuma, sps.CtbSize(),
		reorder, maxDec, sps.FieldSeq())
	return nil
}

func sameSequence(a, b *hevc.SPS) bool {
	return a.Width() == b.Width() && a.Height() == b.Height() &&
		a.ChromaArrayType() == b.ChromaArrayType() && a.CtbSize() == b.CtbSize() &&
		a.BitDepthLuma == b.BitDepthLuma && a.BitDepthChroma == b.BitDepthChroma
}

func (d *Decoder) addSegment(sh *hevc.SliceHeader) {
	ts := sh.SegmentAddress
	if tl := d.tileLayout(); tl != nil {
		ts = tl.RsToTs[sh.SegmentAddress]
	}
	sliceTs := ts
	if sh.Dependent && len(d.segments) > 0 {
		sliceTs = d.segments[len(d.segments)-1].sliceTs
	}
	d.segments = append(d.segments, segment{ts: ts, sliceTs: sliceTs, filterAcross: sh.LoopFilterAcrossSlices})
}

// tileLayout returns the tile layout of the active PPS, nil without tiles.
func (d *Decoder) tileLayout() *hevc.TileLayout {
	if !d.pps.TilesEnabled {
		return nil
	}
	if d.tilesFor != d.pps {
		tl, err := d.pps.TileLayout(d.sps)
		if err != nil {
			d.logger.Warnf("pps %d: %v", d.pps.ID, err)
			return nil
		}
		d.tiles, d.tilesFor = tl, d.pps
	}
	return d.tiles
}

// filterBlocks returns nil when SAO may read across every unit border.
func (d *Decoder) filterBlocks() (sao.Blocks, error) {
	tl := d.tileLayout()
	// the first slice has no earlier slice to filter across
	crossSlices := true
	for i, seg := range d.segments {
		if i > 0 && !seg.filterAcross {
			crossSlices = false
		}
	}
	crossTiles := tl == nil || d.pps.LoopFilterAcrossTiles
	if crossSlices && crossTiles {
		return nil, nil
	}

	n := d.sps.PicSizeInCtbs()
	sliceAddr := make([]int, n)
	across := make([]bool, n)
	seg := 0
	for ts := 0; ts < n; ts++ {
		for seg+1 < len(d.segments) && d.segments[seg+1].ts <= ts {
			seg++
		}
		rs := ts
		if tl != nil {
			rs = tl.TsToRs[ts]
		}
		if len(d.segments) > 0 {
			sliceAddr[rs] = d.segments[seg].sliceTs
			across[rs] = d.segments[seg].filterAcross
		}
	}
	var tileID []int
	if tl != nil {
		tileID = tl.TileID
	}
	return sao.BuildFilterBlocks(d.params.Geometry, sliceAddr, across, tileID, crossTiles)
}

// finishPicture filters the current picture and hands it to the scheduler.
func (d *Decoder) finishPicture() error {
	pic := d.cur
	if pic == nil {
		return nil
	}
	d.cur = nil
	d.prev = nil

	if d.saoUsed {
		blocks, err := d.filterBlocks()
		if err != nil {
			return err
		}
		if err = d.filter.ApplyInLoop(pic, d.params, blocks); err != nil {
			return errors.WithMessagef(err, "sao of POC %d", pic.POC)
		}
	}

	pic.Retain() // used for reference until an RPS drops it
	if err := d.sched.NotifyNewPicture(pic, int(d.curNAL.TemporalID)); err != nil {
		return err
	}
	if d.progress != nil && !d.progress.Limit() {
		sample := d.counter.GetSample()
		d.logger.Infof("progress: %d pictures decoded, %d emitted, dpb %d",
			sample.Decoded, sample.Emitted, d.dpb.Len())
	}
	return nil
}

// applyRPS keeps the pictures of the reference picture set of sh marked
// as reference and releases every other picture (8.3.2).
func (d *Decoder) applyRPS(sh *hevc.SliceHeader, poc int) {
	keep := make(map[*picture.Picture]bool)
	mark := func(p *picture.Picture, refPOC int, long bool) {
		if p == nil {
			d.logger.Warnf("POC %d: %s reference POC %d is missing", poc, kind(long), refPOC)
			return
		}
		keep[p] = true
	}

	if rps := sh.ShortTermRPS; rps != nil {
		for _, set := range [][]hevc.RefPic{rps.S0, rps.S1} {
			for _, ref := range set {
				refPOC := poc + ref.DeltaPOC
				mark(d.findRef(refPOC), refPOC, false)
			}
		}
	}

	maxLsb := 1 << uint(sh.SPS.Log2MaxPOCLsb)
	for _, lt := range sh.LongTerm {
		if lt.MsbPresent {
			refPOC := poc - lt.DeltaMsbCycle*maxLsb - (sh.POCLsb - lt.POCLsb)
			mark(d.findRef(refPOC), refPOC, true)
			continue
		}
		var found *picture.Picture
		for _, p := range d.dpb.Pictures() {
			if p.Referenced() && p.POC&(maxLsb-1) == lt.POCLsb {
				found = p
				break
			}
		}
		mark(found, lt.POCLsb, true)
	}

	for _, p := range d.dpb.Pictures() {
		if p.Referenced() && !keep[p] {
			p.ReleaseAll()
		}
	}
}

// findRef returns the reference picture with the given POC or nil.
func (d *Decoder) findRef(poc int) *picture.Picture {
	for _, p := range d.dpb.Pictures() {
		if p.POC == poc && p.Referenced() {
			return p
		}
	}
	return nil
}

func kind(long bool) string {
	if long {
		return "long-term"
	}
	return "short-term"
}
