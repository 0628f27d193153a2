/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * avplay
 * Copyright (C) 2025 e1z0 <e1z0@icloud.com>
 *
 * This file is part of avplay.
 *
 * avplay is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * avplay is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with avplay.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package config loads and saves the player settings file.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/e1z0/avplay/internal/decoder"
)

// Options is the YAML settings surface for the demo player and for
// hosts that want file-based configuration.
type Options struct {
	HwAccel      []string `yaml:"hwaccel,omitempty"`       // "nvdec","vaapi",... or "any"/"none"
	Loop         bool     `yaml:"loop,omitempty"`          // wrap playback at EOF
	Mute         bool     `yaml:"mute,omitempty"`          // skip audio decoding
	LogLevel     string   `yaml:"log_level,omitempty"`     // debug|info|warn|error
	Probesize    int64    `yaml:"probesize,omitempty"`     // demuxer probesize (bytes)
	FFmpegParams string   `yaml:"ffmpeg_params,omitempty"` // -fKEY=V / -cKEY=V tokens
}

// Load reads the settings file.
func Load(path string) (Options, error) {
	var opts Options
	b, err := os.ReadFile(path)
	if err != nil {
		return opts, err
	}
	if err := yaml.Unmarshal(b, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}

// Save writes the settings file atomically: write to tmp then rename.
func Save(path string, opts Options) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(&opts); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// DecoderOptions translates the file settings into worker options.
func (o Options) DecoderOptions() decoder.Options {
	fopts, copts := ParseFFmpegParams(o.FFmpegParams)
	if o.Probesize > 0 {
		fopts["probesize"] = fmt.Sprintf("%d", o.Probesize)
	}
	return decoder.Options{
		HardwareDecoders: decoder.ParseHardwareList(o.HwAccel),
		Looping:          o.Loop,
		Mute:             o.Mute,
		FormatOptions:    fopts,
		CodecOptions:     copts,
	}
}

// ParseFFmpegParams splits a params string into the demuxer and decoder
// option maps:
//
//	-fOPTION=value -> format options
//	-cOPTION=value -> codec options
func ParseFFmpegParams(s string) (fopts map[string]string, copts map[string]string) {
	fopts = make(map[string]string)
	copts = make(map[string]string)

	for _, tok := range strings.Fields(s) {
		if len(tok) < 3 || tok[0] != '-' {
			continue
		}
		prefix := tok[1] // 'f' or 'c'
		rest := tok[2:]  // OPTION=value
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 || eq == len(rest)-1 {
			continue // need both key and value
		}
		key := rest[:eq]
		val := rest[eq+1:]

		// strip matching quotes
		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') ||
				(val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		switch prefix {
		case 'f':
			fopts[key] = val
		case 'c':
			copts[key] = val
		}
	}
	return
}
