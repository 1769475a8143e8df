// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cnotch/h265dec/av/codec/hevc"
	"github.com/cnotch/h265dec/av/codec/hevc/hevctest"
	"github.com/cnotch/h265dec/av/format/annexb"
	"github.com/cnotch/h265dec/av/format/rtp"
	"github.com/cnotch/h265dec/config"
	"github.com/cnotch/h265dec/stats"
	"github.com/cnotch/h265dec/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStream() []byte {
	seq := hevctest.DefaultSequence()
	units := [][]byte{seq.VPS(), seq.SPS(), seq.PPS(),
		seq.Slice(hevctest.Slice{NALType: hevc.NalIdrWRadl, First: true, SliceType: hevc.SliceI}),
	}
	pics := []struct {
		poc int
		rps []int
	}{{2, []int{-2}}, {1, []int{-1, 1}}, {4, []int{-2}}, {3, []int{-1, 1}}}
	for _, pic := range pics {
		units = append(units, seq.Slice(hevctest.Slice{NALType: hevc.NalTrailR, First: true,
			SliceType: hevc.SliceB, POC: pic.poc, RPS: pic.rps}))
	}
	return hevctest.AnnexB(units...)
}

func TestOrder(t *testing.T) {
	conf := config.Default()
	conf.ProgressRate = 0
	var yuvOut, printed bytes.Buffer
	flow := stats.NewFlow()
	src := annexb.NewReader(bytes.NewReader(testStream()), annexb.WithFlow(flow))
	rep, err := order(src, &yuvOut, &printed, flow, &conf)
	require.NoError(t, err)

	assert.Equal(t, "0\n1\n2\n3\n4\n", printed.String())
	assert.Equal(t, 5*64*64*3/2, yuvOut.Len())
	assert.EqualValues(t, 5, rep.Pictures.Emitted)
	assert.EqualValues(t, 8, rep.Flow.InUnits)
	assert.EqualValues(t, yuvOut.Len(), rep.Flow.OutBytes)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, utils.EncodeJSONFile(path, rep))
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"emitted": 5`)
}

func TestPackProbe(t *testing.T) {
	var capture bytes.Buffer
	pz := rtp.NewPacketizer(100, 96, 1, 65534)
	require.NoError(t, pack(annexb.NewReader(bytes.NewReader(testStream())), pz, &capture))

	conf := config.Default()
	conf.ProgressRate = 0
	var out bytes.Buffer
	require.NoError(t, probe(rtp.NewReader(&capture), &conf, &out))

	text := out.String()
	assert.Contains(t, text, "sps 0: 64x64")
	assert.Contains(t, text, "display order: [0 1 2 3 4]")
	assert.Equal(t, 5, strings.Count(text, "picture #"))
}
