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

// Package playback is the host-facing playback engine: load a stream,
// tick Update from the host loop, and read the current texture while
// PCM flows into the host mixer.
package playback

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/e1z0/avplay/internal/decoder"
	"github.com/e1z0/avplay/internal/yuv"
	"github.com/e1z0/avplay/media"
	"github.com/e1z0/avplay/render"
)

// ErrLoadFailed is returned when the stream cannot be opened or no
// usable video decoder exists for it.
var ErrLoadFailed = errors.New("playback: failed to open stream")

// Mixer receives decoded PCM. frames is the per-channel sample count of
// the block.
type Mixer interface {
	Mix(samples []float32, frames int)
}

// Config wires a Playback into its host.
type Config struct {
	// Device renders textures; nil runs the engine headless (decode
	// only, RGBA frames are selected but never uploaded).
	Device render.Device
	// Mixer receives decoded audio; nil discards it.
	Mixer Mixer
	// Looping wraps playback at EOF.
	Looping bool
	// Decoder carries codec selection and demuxer tuning.
	Decoder decoder.Options
	Logger  zerolog.Logger
}

// Playback is one video playback instance. All methods are foreground
// only.
type Playback struct {
	log    zerolog.Logger
	device render.Device
	mixer  Mixer

	source    frameSource
	worker    *decoder.Worker
	converter *yuv.Converter
	texture   render.RID
	decOpts   decoder.Options

	playheadMS      float64
	playing         bool
	paused          bool
	looping         bool
	buffering       bool
	justSeeked      bool
	framesProcessed int
	channels        int

	currentFrame *media.VideoFrame
	videoFrames  []*media.VideoFrame
	audioFrames  []*media.AudioFrame
}

// New builds an unloaded playback.
func New(cfg Config) *Playback {
	return &Playback{
		log:     cfg.Logger.With().Str("component", "playback").Logger(),
		device:  cfg.Device,
		mixer:   cfg.Mixer,
		looping: cfg.Looping,
		decOpts: cfg.Decoder,
	}
}

// Load opens the stream and spins up the decode worker. Playback does
// not start until Play.
func (p *Playback) Load(s media.Stream) error {
	opts := p.decOpts
	opts.Looping = p.looping
	opts.AllowYUV = p.device != nil && p.device.SupportsCompute()

	w := decoder.New(s, opts, p.log)
	w.Start()
	if w.State() == decoder.StateFaulted {
		w.Close()
		return ErrLoadFailed
	}
	p.worker = w
	p.source = w
	p.channels = w.AudioChannelCount()

	width, height := w.Size()
	if w.FrameFormat().IsYUV() {
		p.converter = yuv.New(p.device, p.log)
		if err := p.converter.SetFrameSize(width, height); err != nil {
			return err
		}
		p.converter.OutputTexture()
	} else if p.device != nil && width > 0 && height > 0 {
		tex, err := p.createRGBATexture(width, height)
		if err != nil {
			p.log.Error().Err(err).Msg("creating video texture failed")
		} else {
			p.texture = tex
		}
	}
	return nil
}

func (p *Playback) createRGBATexture(w, h int) (render.RID, error) {
	return p.device.TextureCreate(render.TextureFormat{
		Format:      render.DataFormatRGBA8Unorm,
		Width:       w,
		Height:      h,
		Depth:       1,
		ArrayLayers: 1,
		Mipmaps:     1,
		Usage:       render.UsageSampling | render.UsageCanUpdate,
	}, render.TextureView{})
}

// Play (re)starts playback from the beginning. A faulted playback stays
// stopped.
func (p *Playback) Play() {
	if p.source == nil || p.source.State() == decoder.StateFaulted {
		p.playing = false
		return
	}
	p.clear()
	p.playheadMS = 0
	p.source.Seek(0, true)
	p.justSeeked = true
	p.playing = true
}

// Stop halts playback, rewinds and releases the current picture.
func (p *Playback) Stop() {
	if p.playing {
		p.clear()
		p.playheadMS = 0
		p.source.Seek(0, true)
		p.justSeeked = true
		if p.texture != 0 && p.device != nil {
			// drop the texture so the next play reshapes cleanly
			p.device.FreeRID(p.texture)
			p.texture = 0
		}
	}
	if p.converter != nil {
		p.converter.ClearOutputTexture()
	}
	p.playing = false
}

// SetPaused freezes or resumes the clock without touching the decoder.
func (p *Playback) SetPaused(paused bool) { p.paused = paused }

// Seek jumps to the given position in seconds.
func (p *Playback) Seek(seconds float64) {
	if p.source == nil {
		return
	}
	targetMS := seconds * 1000.0
	p.source.Seek(targetMS, false)
	p.justSeeked = true
	for _, f := range p.videoFrames {
		f.Release()
	}
	p.videoFrames = p.videoFrames[:0]
	for _, f := range p.audioFrames {
		f.Release()
	}
	p.audioFrames = p.audioFrames[:0]
	p.playheadMS = targetMS
}

// clear drops the presentation state: current picture, local buffers
// and the processed-frame counter.
func (p *Playback) clear() {
	if p.currentFrame != nil {
		p.currentFrame.Release()
		p.currentFrame = nil
	}
	for _, f := range p.videoFrames {
		f.Release()
	}
	p.videoFrames = p.videoFrames[:0]
	for _, f := range p.audioFrames {
		f.Release()
	}
	p.audioFrames = p.audioFrames[:0]
	p.framesProcessed = 0
	p.playing = false
}

// IsPlaying reports whether the clock is advancing (pause keeps it
// true).
func (p *Playback) IsPlaying() bool { return p.playing }

// IsPaused reports the pause flag.
func (p *Playback) IsPaused() bool { return p.paused }

// IsBuffering reports that the decoder is running but no frame is
// locally available.
func (p *Playback) IsBuffering() bool { return p.buffering }

// DurationSeconds is the stream duration.
func (p *Playback) DurationSeconds() float64 {
	if p.source == nil {
		return 0
	}
	return p.source.Duration() / 1000.0
}

// PositionSeconds is the playhead position.
func (p *Playback) PositionSeconds() float64 { return p.playheadMS / 1000.0 }

// CurrentTexture returns the texture holding the current picture: the
// converter output for YUV streams, the streaming RGBA texture
// otherwise. Zero when no texture exists: without a device, or on the
// RGBA path after Stop until the next frame is uploaded.
func (p *Playback) CurrentTexture() render.RID {
	if p.converter != nil {
		return p.converter.OutputTexture()
	}
	return p.texture
}

// SetMixer attaches the audio sink. Typically called right after Load,
// once the mix rate and channel count are known.
func (p *Playback) SetMixer(m Mixer) { p.mixer = m }

// VideoSize is the intrinsic video size.
func (p *Playback) VideoSize() (int, int) {
	if p.worker == nil {
		return 0, 0
	}
	return p.worker.Size()
}

// FramesProcessed counts current-frame changes since the last Play;
// Stop resets it to zero.
func (p *Playback) FramesProcessed() int { return p.framesProcessed }

// MixRate is the audio codec's native sample rate, 0 without audio.
func (p *Playback) MixRate() int {
	if p.worker == nil {
		return 0
	}
	return p.worker.AudioMixRate()
}

// ChannelCount is the decoded audio channel count, 0 without audio.
func (p *Playback) ChannelCount() int { return p.channels }

// SetLooping toggles wrap-at-EOF.
func (p *Playback) SetLooping(loop bool) {
	p.looping = loop
	if p.worker != nil {
		p.worker.SetLooping(loop)
	}
}

// Close releases the playback: frame shares first, then the worker and
// the GPU resources.
func (p *Playback) Close() {
	p.clear()
	if p.worker != nil {
		p.worker.Close()
		p.worker = nil
		p.source = nil
	}
	if p.converter != nil {
		p.converter.Close()
		p.converter = nil
	}
	if p.texture != 0 && p.device != nil {
		p.device.FreeRID(p.texture)
		p.texture = 0
	}
}
