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
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/e1z0/avplay/internal/config"
	"github.com/e1z0/avplay/internal/logging"
	"github.com/e1z0/avplay/media"
	"github.com/e1z0/avplay/otoaudio"
	"github.com/e1z0/avplay/playback"
	"github.com/e1z0/avplay/sdlrender"
)

const seekStepSeconds = 5.0

func newPlayCommand() *cobra.Command {
	var loop bool
	var mute bool

	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play a video file in an SDL window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := loadOptionsForCmd(cmd)
			if loop {
				opts.Loop = true
			}
			if mute {
				opts.Mute = true
			}
			return runPlay(args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "loop playback")
	cmd.Flags().BoolVar(&mute, "mute", false, "disable audio")
	return cmd
}

func loadOptionsForCmd(cmd *cobra.Command) config.Options {
	level := flagLogLevel
	if level == "" {
		level = "info"
	}
	log := logging.New(level)
	opts := loadOptions(log)
	if flagLogLevel != "" {
		opts.LogLevel = flagLogLevel
	}
	if opts.LogLevel == "" {
		opts.LogLevel = level
	}
	return opts
}

func runPlay(path string, opts config.Options) error {
	log := logging.New(opts.LogLevel)
	logging.BindFFmpeg(log)

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("initializing SDL: %w", err)
	}
	defer sdl.Quit()

	stream, err := media.OpenFile(path)
	if err != nil {
		return err
	}
	defer stream.Close()

	window, err := sdl.CreateWindow("avplay — "+path,
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, 1280, 720,
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	defer window.Destroy()

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	defer renderer.Destroy()

	device := sdlrender.New(renderer)

	pb := playback.New(playback.Config{
		Device:  device,
		Looping: opts.Loop,
		Decoder: opts.DecoderOptions(),
		Logger:  log,
	})
	defer pb.Close()

	if err := pb.Load(stream); err != nil {
		return err
	}

	var sink *otoaudio.Sink
	if pb.ChannelCount() > 0 && !opts.Mute {
		sink, err = otoaudio.NewSink(pb.MixRate(), pb.ChannelCount(), log)
		if err != nil {
			log.Warn().Err(err).Msg("audio output unavailable, playing silent")
		} else {
			defer sink.Close()
			pb.SetMixer(sink)
		}
	}

	log.Info().Float64("duration_s", pb.DurationSeconds()).Msg("starting playback")
	pb.Play()

	last := time.Now()
	for {
		for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
			switch e := ev.(type) {
			case *sdl.QuitEvent:
				return nil
			case *sdl.KeyboardEvent:
				if e.Type != sdl.KEYDOWN {
					continue
				}
				switch e.Keysym.Sym {
				case sdl.K_ESCAPE, sdl.K_q:
					return nil
				case sdl.K_SPACE:
					pb.SetPaused(!pb.IsPaused())
				case sdl.K_LEFT:
					pb.Seek(maxf(pb.PositionSeconds()-seekStepSeconds, 0))
				case sdl.K_RIGHT:
					pb.Seek(minf(pb.PositionSeconds()+seekStepSeconds, pb.DurationSeconds()))
				case sdl.K_s:
					pb.Stop()
				case sdl.K_RETURN:
					if !pb.IsPlaying() {
						pb.Play()
					}
				}
			}
		}

		now := time.Now()
		delta := now.Sub(last).Seconds()
		last = now
		pb.Update(delta)

		renderer.SetDrawColor(0, 0, 0, 255)
		renderer.Clear()
		if tex := device.Texture(pb.CurrentTexture()); tex != nil {
			ww, wh := window.GetSize()
			renderer.Copy(tex, nil, fitRect(pb, ww, wh))
		}
		renderer.Present()
	}
}

// fitRect letterboxes the video into the window, keeping aspect.
func fitRect(pb *playback.Playback, ww, wh int32) *sdl.Rect {
	vw, vh := pb.VideoSize()
	if vw <= 0 || vh <= 0 {
		return &sdl.Rect{W: ww, H: wh}
	}
	scale := minf(float64(ww)/float64(vw), float64(wh)/float64(vh))
	dw := int32(float64(vw) * scale)
	dh := int32(float64(vh) * scale)
	return &sdl.Rect{X: (ww - dw) / 2, Y: (wh - dh) / 2, W: dw, H: dh}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
