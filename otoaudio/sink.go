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

// Package otoaudio adapts an Oto v2 player to the playback mixer
// contract.
package otoaudio

import (
	"encoding/binary"
	"io"

	"github.com/hajimehoshi/oto/v2"
	"github.com/rs/zerolog"
)

// Sink streams interleaved float32 PCM into an Oto player as signed
// 16-bit little endian.
type Sink struct {
	log    zerolog.Logger
	ctx    *oto.Context
	player oto.Player
	pw     *io.PipeWriter
	buf    []byte
}

// NewSink opens an audio context at the given rate/channel count and
// starts the player.
func NewSink(sampleRate, channels int, log zerolog.Logger) (*Sink, error) {
	ctx, ready, err := oto.NewContext(sampleRate, channels, 2)
	if err != nil {
		return nil, err
	}
	// consume readiness asynchronously; required on some platforms.
	go func() {
		<-ready
		log.Debug().Msg("audio context ready")
	}()

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()
	return &Sink{
		log:    log.With().Str("component", "audio").Logger(),
		ctx:    ctx,
		player: player,
		pw:     pw,
	}, nil
}

// Mix queues one PCM block. Fire-and-forget; back-pressure from the
// pipe briefly blocks the caller, which is fine at mix-block sizes.
func (s *Sink) Mix(samples []float32, frames int) {
	if len(samples) == 0 {
		return
	}
	s.buf = EncodeS16LE(s.buf[:0], samples)
	if _, err := s.pw.Write(s.buf); err != nil {
		s.log.Debug().Err(err).Msg("audio pipe write failed")
	}
}

// Close stops the player and tears the pipe down.
func (s *Sink) Close() error {
	err := s.player.Close()
	if cerr := s.pw.Close(); err == nil {
		err = cerr
	}
	return err
}

// EncodeS16LE appends samples clamped to [-1, 1] as signed 16-bit
// little-endian PCM.
func EncodeS16LE(dst []byte, samples []float32) []byte {
	for _, v := range samples {
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(v*32767.0)))
	}
	return dst
}
