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

package main

import (
	"errors"
	"fmt"
	"time"

	astiav "github.com/asticode/go-astiav"
	"github.com/spf13/cobra"

	"github.com/e1z0/avplay/internal/logging"
)

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Open a media file and report its streams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := loadOptionsForCmd(cmd)
			logging.BindFFmpeg(logging.New(opts.LogLevel))
			return runProbe(args[0])
		},
	}
}

func runProbe(path string) error {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return errors.New("allocating format context")
	}
	defer fc.Free()

	if err := fc.OpenInput(path, nil, nil); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("finding stream info: %w", err)
	}

	duration := time.Duration(fc.Duration()) * time.Microsecond
	fmt.Printf("%s\n  duration: %s\n  streams: %d\n", path, duration, len(fc.Streams()))

	for _, s := range fc.Streams() {
		par := s.CodecParameters()
		name := "unknown"
		if c := astiav.FindDecoder(par.CodecID()); c != nil {
			name = c.Name()
		}
		switch par.MediaType() {
		case astiav.MediaTypeVideo:
			r := s.AvgFrameRate()
			fps := 0.0
			if r.Den() > 0 {
				fps = float64(r.Num()) / float64(r.Den())
			}
			fmt.Printf("  #%d video: %s %dx%d %s %.3f fps\n",
				s.Index(), name, par.Width(), par.Height(), par.PixelFormat().String(), fps)
		case astiav.MediaTypeAudio:
			fmt.Printf("  #%d audio: %s %d Hz %d ch\n",
				s.Index(), name, par.SampleRate(), par.ChannelLayout().Channels())
		default:
			fmt.Printf("  #%d %s: %s\n", s.Index(), par.MediaType().String(), name)
		}
	}
	return nil
}
