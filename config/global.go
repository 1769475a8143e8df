// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"strings"

	cfg "github.com/cnotch/loader"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// 程序名
const (
	Vendor  = "CAOHONGJU"
	Name    = "h265dec"
	Version = "V1.0.0"
)

// Load fills c from the JSON file at path, when path is not empty, then
// from the H265DEC_ environment variables. Flags the user set on fs win
// over both.
func (c *Config) Load(path string, fs *pflag.FlagSet) error {
	changed := make(map[string]string)
	if fs != nil {
		fs.Visit(func(f *pflag.Flag) {
			changed[f.Name] = f.Value.String()
		})
	}

	env := &cfg.EnvLoader{Prefix: strings.ToUpper(Name)}
	var err error
	if path != "" {
		err = cfg.Load(c, &cfg.JSONLoader{Path: path}, env)
	} else {
		err = cfg.Load(c, env)
	}
	if err != nil {
		return errors.Wrapf(err, "config: load %q", path)
	}

	for name, value := range changed {
		if err = fs.Set(name, value); err != nil {
			return errors.Wrapf(err, "config: flag --%s", name)
		}
	}
	return c.Validate()
}

// Validate checks the values a decode run depends on.
func (c *Config) Validate() error {
	if c.MaxTemporalLayer < -1 || c.MaxTemporalLayer > 6 {
		return errors.Errorf("config: max temporal layer %d out of [-1, 6]", c.MaxTemporalLayer)
	}
	if c.OutputBitDepth != 0 && (c.OutputBitDepth < 8 || c.OutputBitDepth > 16) {
		return errors.Errorf("config: output bit depth %d out of [8, 16]", c.OutputBitDepth)
	}
	if c.QueueLimit < 0 || c.ProgressRate < 0 || c.StatsInterval < 0 {
		return errors.New("config: queue, progress and stats must not be negative")
	}
	return nil
}
