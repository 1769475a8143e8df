// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/h265dec/av/format/annexb"
	"github.com/cnotch/h265dec/av/format/rtp"
	"github.com/cnotch/h265dec/av/format/yuv"
	"github.com/cnotch/h265dec/av/output"
	"github.com/cnotch/h265dec/config"
	"github.com/cnotch/h265dec/decoder"
	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/h265dec/utils"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// input formats
const (
	formatAnnexB = "annexb"
	formatRTP    = "rtp"
)

type inputFlags struct {
	format  string
	channel int
	donl    bool
}

func (f *inputFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.format, "format", "", "Set the input format: annexb or rtp, by file extension when empty")
	fs.IntVar(&f.channel, "channel", rtp.ChannelVideo, "Set the interleaved channel of the video RTP packets")
	fs.BoolVar(&f.donl, "donl", false, "Determines if RTP payloads carry decoding order numbers")
}

// open returns the NAL unit reader of the file at path.
func (f *inputFlags) open(path string, flow stats.Flow) (decoder.NALReader, io.Closer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	format := f.format
	if format == "" {
		format = formatAnnexB
		if strings.HasSuffix(strings.ToLower(path), ".rtp") {
			format = formatRTP
		}
	}

	logger := xlog.L().With(xlog.Fields(xlog.F("input", path)))
	switch format {
	case formatAnnexB:
		return annexb.NewReader(file, annexb.WithLogger(logger), annexb.WithFlow(flow)), file, nil
	case formatRTP:
		return rtp.NewReader(file, rtp.WithChannel(f.channel), rtp.WithDONL(f.donl),
			rtp.WithLogger(logger), rtp.WithFlow(flow)), file, nil
	}
	file.Close()
	return nil, nil, errors.Errorf("unknown input format %q", format)
}

func decoderOptions(conf *config.Config) []decoder.Option {
	return []decoder.Option{
		decoder.WithLogger(xlog.L()),
		decoder.WithMaxTemporalLayer(conf.MaxTemporalLayer),
		decoder.WithDefaultDisplayWindow(conf.RespectDefaultDisplayWindow),
		decoder.WithStats(stats.NewChildPictures(stats.TotalPictures)),
		decoder.WithProgressRate(conf.ProgressRate),
	}
}

func probeCommand(conf *config.Config) *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "probe FILE",
		Short: "print the NAL units, parameter sets and picture orders of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, closer, err := in.open(args[0], stats.NewChildFlow(stats.TotalFlow))
			if err != nil {
				return err
			}
			defer closer.Close()
			return probe(src, conf, os.Stdout)
		},
	}
	in.bind(cmd.Flags())
	return cmd
}

func probe(src decoder.NALReader, conf *config.Config, out io.Writer) error {
	w := bufio.NewWriter(out)
	defer w.Flush()

	var display []int
	writer := output.WriterFunc(func(o output.Output) error {
		display = append(display, o.POCs()...)
		return nil
	})
	opts := append(decoderOptions(conf), decoder.WithPictureHook(func(info decoder.PictureInfo) {
		if info.Skipped {
			fmt.Fprintf(w, "        picture #%d %s skipped\n", info.DecodeOrder, hevc.NALTypeName(info.NALType))
			return
		}
		fmt.Fprintf(w, "        picture #%d POC %d %s tid %d output %t\n", info.DecodeOrder, info.POC,
			hevc.NALTypeName(info.NALType), info.TemporalID, info.Output)
	}))
	dec := decoder.New(writer, opts...)

	for n := 0; ; n++ {
		unit, err := src.ReadNAL()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		h, err := hevc.ParseNALHeader(unit)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%6d  %-10s layer %d tid %d size %d\n", n, hevc.NALTypeName(h.Type), h.LayerID, h.TemporalID, len(unit))
		if err = dec.Decode(unit); err != nil {
			return errors.WithMessagef(err, "unit %d", n)
		}
		if h.Type == hevc.NalSps {
			printSPS(w, unit)
		}
	}
	if err := dec.Close(); err != nil {
		return err
	}

	sample := dec.Stats()
	fmt.Fprintf(w, "display order: %v\n", display)
	fmt.Fprintf(w, "pictures: %d decoded, %d emitted, %d discarded, %d skipped\n",
		sample.Decoded, sample.Emitted, sample.Discarded, sample.Skipped)
	return nil
}

func printSPS(w io.Writer, unit []byte) {
	var sps hevc.SPS
	if err := sps.Decode(unit); err != nil {
		return
	}
	top := sps.MaxSubLayers() - 1
	fmt.Fprintf(w, "        sps %d: %dx%d chroma %d, %d/%d bit, ctb %d, sao %t, reorder %d, dpb %d, fields %t, conf %+v\n",
		sps.ID, sps.Width(), sps.Height(), sps.ChromaFormatIDC, sps.BitDepthLuma, sps.BitDepthChroma,
		sps.CtbSize(), sps.SAOEnabled, sps.NumReorderPics(top), sps.MaxDecPicBuffering(top),
		sps.FieldSeq(), sps.ConformanceWindow())
}

func orderCommand(conf *config.Config) *cobra.Command {
	var in inputFlags
	var outPath, reportPath string
	var quiet bool
	cmd := &cobra.Command{
		Use:   "order FILE",
		Short: "decode the picture management of a stream and print the output order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow := stats.NewChildFlow(stats.TotalFlow)
			src, closer, err := in.open(args[0], flow)
			if err != nil {
				return err
			}
			defer closer.Close()

			var dst io.Writer
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				dst = f
			}
			var stdout io.Writer = os.Stdout
			if quiet {
				stdout = nil
			}
			rep, err := order(src, dst, stdout, flow, conf)
			if err != nil {
				return err
			}
			if reportPath == "" {
				return nil
			}
			rep.Input = args[0]
			return utils.EncodeJSONFile(reportPath, rep)
		},
	}
	in.bind(cmd.Flags())
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the output pictures as raw YUV")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the output POCs")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the decode statistics as JSON")
	return cmd
}

// report 解码统计报告
type report struct {
	Input    string               `json:"input"`
	Flow     stats.FlowSample     `json:"flow"`
	Pictures stats.PicturesSample `json:"pictures"`
	Corrupt  int64                `json:"corrupt"` // NAL units dropped
	Usage    stats.Usage          `json:"usage"`
}

// order decodes src, prints the output POCs to stdout and writes the
// pictures to dst; either may be nil. flow counts the output bytes.
func order(src decoder.NALReader, dst, stdout io.Writer, flow stats.Flow, conf *config.Config) (*report, error) {
	ctx, cancel := signalContext()
	defer cancel()
	startRuntimeJob(conf.StatsInterval)
	defer stopJobs()

	var yw *yuv.Writer
	var bw *bufio.Writer
	if dst != nil {
		var err error
		bw = bufio.NewWriterSize(dst, 1<<20)
		yw, err = yuv.NewWriter(bw,
			yuv.WithBitDepth(conf.OutputBitDepth),
			yuv.WithCompression(conf.Compress),
			yuv.WithFlow(flow))
		if err != nil {
			return nil, err
		}
	}
	var printer *bufio.Writer
	if stdout != nil {
		printer = bufio.NewWriter(stdout)
		defer printer.Flush()
	}

	writer := output.WriterFunc(func(o output.Output) error {
		if printer != nil {
			fmt.Fprintln(printer, strings.Trim(fmt.Sprint(o.POCs()), "[]"))
		}
		if yw != nil {
			return yw.WritePicture(o)
		}
		return nil
	})

	dec := decoder.New(writer, decoderOptions(conf)...)
	p := decoder.NewPipeline(src, dec, conf.QueueLimit)
	if err := p.Run(ctx); err != nil {
		return nil, err
	}
	if yw != nil {
		if err := yw.Close(); err != nil {
			return nil, err
		}
		if err := bw.Flush(); err != nil {
			return nil, err
		}
	}
	if n := p.Corrupt(); n > 0 {
		xlog.Warnf("%d corrupt NAL units dropped", n)
	}
	return &report{
		Flow:     flow.GetSample(),
		Pictures: dec.Stats(),
		Corrupt:  p.Corrupt(),
		Usage:    stats.MeasureUsage(),
	}, nil
}

func packCommand() *cobra.Command {
	var mtu, pt int
	var ssrc uint32
	cmd := &cobra.Command{
		Use:   "pack SRC DST",
		Short: "packetize an Annex-B stream into an interleaved RTP capture",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()

			bw := bufio.NewWriter(out)
			pz := rtp.NewPacketizer(mtu, uint8(pt), ssrc, 0)
			if err = pack(annexb.NewReader(in), pz, bw); err != nil {
				return err
			}
			return bw.Flush()
		},
	}
	cmd.Flags().IntVar(&mtu, "mtu", 1400, "Set the maximum RTP payload size")
	cmd.Flags().IntVar(&pt, "pt", 96, "Set the RTP payload type")
	cmd.Flags().Uint32Var(&ssrc, "ssrc", 0x48323635, "Set the RTP synchronization source")
	return cmd
}

// pack writes every NAL unit of src as RTP packets. Units of one access
// unit share a timestamp; the last VCL unit of it carries the marker.
func pack(src decoder.NALReader, pz *rtp.Packetizer, w io.Writer) error {
	const ticksPerPicture = 3000 // 30 pictures per second at 90 kHz

	var timestamp uint32
	var prev []byte
	flush := func(next []byte) error {
		if prev == nil {
			return nil
		}
		marker := isVCL(prev) && (next == nil || !isVCL(next) || firstSlice(next))
		packets, err := pz.Packetize(prev, timestamp, marker)
		if err != nil {
			return err
		}
		for _, p := range packets {
			if err = p.Write(w); err != nil {
				return err
			}
		}
		if marker {
			timestamp += ticksPerPicture
		}
		return nil
	}

	for {
		unit, err := src.ReadNAL()
		if err == io.EOF {
			return flush(nil)
		}
		if err != nil {
			return err
		}
		if err = flush(unit); err != nil {
			return err
		}
		prev = unit
	}
}

func isVCL(unit []byte) bool {
	h, err := hevc.ParseNALHeader(unit)
	return err == nil && h.IsVCL()
}

func firstSlice(unit []byte) bool { return len(unit) > 2 && unit[2]&0x80 != 0 }
