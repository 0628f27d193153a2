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

package playback

import (
	"math"

	"github.com/e1z0/avplay/internal/decoder"
	"github.com/e1z0/avplay/media"
)

// LenienceMS is the sync tolerance: a buffered frame further than this
// from the playhead triggers a resync seek.
const LenienceMS = 2500.0

// frameSource is the slice of the decode worker the presentation side
// talks to. Satisfied by *decoder.Worker.
type frameSource interface {
	State() decoder.State
	IsRunning() bool
	Duration() float64
	LastDecodedFrameTime() float64
	Seek(targetMS float64, wait bool)
	DrainVideo() []*media.VideoFrame
	DrainAudio() []*media.AudioFrame
}

// seekIntoSync issues a resync seek to the current playhead and drops
// every locally buffered frame.
func (p *Playback) seekIntoSync() {
	p.source.Seek(p.playheadMS, false)
	for _, f := range p.videoFrames {
		f.Release()
	}
	p.videoFrames = p.videoFrames[:0]
	for _, f := range p.audioFrames {
		f.Release()
	}
	p.audioFrames = p.audioFrames[:0]
}

func (p *Playback) currentFrameTime() float64 {
	if p.currentFrame != nil {
		return p.currentFrame.Time
	}
	return 0
}

// checkNextFrameValid reports whether the buffered frame is due. While
// looping, lingering frames from the tail of the previous loop are
// still allowed through.
func (p *Playback) checkNextFrameValid(t float64) bool {
	if p.looping && math.Abs((t-p.source.Duration())-p.playheadMS) < LenienceMS {
		return true
	}
	return t <= p.playheadMS && math.Abs(t-p.playheadMS) < LenienceMS
}

// Update advances the playback clock by delta seconds, selects the
// frame that is now current, uploads it and feeds due audio to the
// mixer. Call once per host tick from the foreground.
func (p *Playback) Update(delta float64) {
	if p.paused || !p.playing {
		return
	}

	p.playheadMS += delta * 1000.0

	if p.source.State() == decoder.StateEndOfStream && len(p.videoFrames) == 0 {
		// at the end of the stream a playhead back inside a valid time
		// region needs a seek to get the decoder back on track.
		if p.playheadMS < p.source.LastDecodedFrameTime() {
			p.seekIntoSync()
		} else {
			p.playing = false
		}
	}

	// wrap the playhead once the head frame belongs to the next loop
	if p.looping {
		if d := p.source.Duration(); d > 0 && p.playheadMS >= d &&
			len(p.videoFrames) > 0 && p.videoFrames[0].Time < LenienceMS {
			p.playheadMS -= d
		}
	}

	if len(p.videoFrames) > 0 {
		peek := p.videoFrames[0]
		outOfSync := math.Abs(p.playheadMS-peek.Time) > LenienceMS
		if p.looping {
			outOfSync = outOfSync &&
				math.Abs(p.playheadMS-p.source.Duration()-peek.Time) > LenienceMS &&
				math.Abs(p.playheadMS+p.source.Duration()-peek.Time) > LenienceMS
		}
		if outOfSync {
			p.log.Debug().Float64("frame_ms", peek.Time).Float64("playhead_ms", p.playheadMS).Msg("video too far out of sync, reseeking")
			p.seekIntoSync()
		}
	}

	frameTime := p.currentFrameTime()

	gotNewFrame := false
	for len(p.videoFrames) > 0 && (p.checkNextFrameValid(p.videoFrames[0].Time) || p.justSeeked) {
		p.justSeeked = false
		if p.currentFrame != nil {
			p.currentFrame.Release()
		}
		p.currentFrame = p.videoFrames[0]
		p.videoFrames = p.videoFrames[1:]
		gotNewFrame = true
	}

	if gotNewFrame {
		p.uploadCurrentFrame()
	}

	if len(p.videoFrames) == 0 {
		p.videoFrames = append(p.videoFrames, p.source.DrainVideo()...)
	}

	if len(p.audioFrames) > 0 {
		peek := p.audioFrames[0]
		if math.Abs(p.playheadMS-peek.Time) > LenienceMS {
			// detected only; the audio stream moves with the video seek
			p.log.Debug().Float64("frame_ms", peek.Time).Float64("playhead_ms", p.playheadMS).Msg("audio out of sync")
		}
	}

	for len(p.audioFrames) > 0 && p.checkNextFrameValid(p.audioFrames[0].Time) {
		af := p.audioFrames[0]
		p.audioFrames = p.audioFrames[1:]
		if p.mixer != nil && p.channels > 0 {
			p.mixer.Mix(af.Samples, len(af.Samples)/p.channels)
		}
		af.Release()
	}
	if len(p.audioFrames) == 0 {
		p.audioFrames = append(p.audioFrames, p.source.DrainAudio()...)
	}

	p.buffering = p.source.IsRunning() && len(p.videoFrames) == 0

	if frameTime != p.currentFrameTime() {
		p.framesProcessed++
	}
}

// uploadCurrentFrame pushes the accepted frame at the renderer: YUV
// frames go through the compute converter, RGBA frames straight into
// the streaming texture.
func (p *Playback) uploadCurrentFrame() {
	f := p.currentFrame
	if f == nil {
		return
	}

	if f.Format.IsYUV() {
		if p.converter == nil {
			return
		}
		for i := 0; i < 3; i++ {
			if f.Planes[i] == nil {
				p.log.Error().Int("plane", i).Msg("decoded frame is missing a mandatory plane")
				return
			}
		}
		for i := 0; i < 4; i++ {
			if err := p.converter.SetPlaneImage(i, f.Planes[i]); err != nil {
				p.log.Error().Err(err).Msg("setting plane image failed")
				return
			}
		}
		p.converter.Convert()
		return
	}

	if p.device == nil {
		return
	}
	if p.texture != 0 {
		if tf, err := p.device.TextureGetFormat(p.texture); err != nil || tf.Width != f.Width || tf.Height != f.Height {
			// should never happen, but life has many doors ed-boy...
			p.device.FreeRID(p.texture)
			p.texture = 0
		}
	}
	if p.texture == 0 {
		tex, err := p.createRGBATexture(f.Width, f.Height)
		if err != nil {
			p.log.Error().Err(err).Msg("creating video texture failed")
			return
		}
		p.texture = tex
	}
	if err := p.device.TextureUpdate(p.texture, 0, f.Data); err != nil {
		p.log.Warn().Err(err).Msg("updating video texture failed")
	}
}
