// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"github.com/spf13/pflag"
)

// Config 解码配置
type Config struct {
	MaxTemporalLayer            int       `json:"max_temporal_layer"` // 解码的最高时域子层，-1 全部
	RespectDefaultDisplayWindow bool      `json:"default_display"`    // 输出时应用 VUI 默认显示窗口
	OutputBitDepth              int       `json:"output_bitdepth"`    // 输出位深，0 与码流一致
	Compress                    string    `json:"compress,omitempty"` // 输出压缩: "" | "zstd"
	QueueLimit                  int       `json:"queue_limit"`        // 预读的 NAL 单元数
	ProgressRate                int       `json:"progress_rate"`      // 每秒最多的进度日志条数，0 关闭
	StatsInterval               int       `json:"stats_interval"`     // 运行时统计日志间隔（秒），0 关闭
	Log                         LogConfig `json:"log"`                // 日志配置
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		MaxTemporalLayer: -1,
		QueueLimit:       64,
		ProgressRate:     1,
		Log:              defaultLog(),
	}
}

// BindFlags registers the command line flags of c on fs, with the current
// values of c as defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.MaxTemporalLayer, "max-tid", c.MaxTemporalLayer,
		"Set the highest temporal sub-layer to decode, -1 for all")
	fs.BoolVar(&c.RespectDefaultDisplayWindow, "display-window", c.RespectDefaultDisplayWindow,
		"Determines if the VUI default display window crops the output")
	fs.IntVar(&c.OutputBitDepth, "bitdepth", c.OutputBitDepth,
		"Set the output bit depth, 0 keeps the stream bit depth")
	fs.StringVar(&c.Compress, "compress", c.Compress, "Set the output compression (zstd)")
	fs.IntVar(&c.QueueLimit, "queue", c.QueueLimit, "Set the number of NAL units read ahead")
	fs.IntVar(&c.ProgressRate, "progress", c.ProgressRate,
		"Set the maximum number of progress lines per second, 0 disables them")
	fs.IntVar(&c.StatsInterval, "stats", c.StatsInterval,
		"Set the seconds between runtime statistics, 0 disables them")

	// 日志配置
	c.Log.bindFlags(fs)
}
