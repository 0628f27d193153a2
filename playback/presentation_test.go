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
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e1z0/avplay/internal/decoder"
	"github.com/e1z0/avplay/internal/testutil"
	"github.com/e1z0/avplay/media"
)

// fakeSource scripts a decode worker: it produces RGBA frames at a
// fixed rate from a bounded pool, honors the worker's back-pressure
// ceiling, and mimics seek/skip and loop semantics.
type fakeSource struct {
	mu          sync.Mutex
	state       decoder.State
	durationMS  float64
	intervalMS  float64
	nextMS      float64
	looping     bool
	lastDecoded float64
	queue       []*media.VideoFrame
	pool        *media.Pool[*media.VideoFrame]

	audioIntervalMS float64
	audioNextMS     float64
	audioQueue      []*media.AudioFrame
	audioPool       *media.Pool[*media.AudioFrame]
	channels        int
}

func newFakeSource(durationMS, fps float64) *fakeSource {
	return &fakeSource{
		state:      decoder.StateReady,
		durationMS: durationMS,
		intervalMS: 1000.0 / fps,
		pool:       media.NewVideoFramePool(64),
		audioPool:  media.NewAudioFramePool(64),
	}
}

func (s *fakeSource) withAudio(intervalMS float64, channels int) *fakeSource {
	s.audioIntervalMS = intervalMS
	s.channels = channels
	return s
}

// produce decodes ahead by at most MaxPendingFrames, like the worker.
func (s *fakeSource) produce() {
	for len(s.queue) < decoder.MaxPendingFrames {
		if s.nextMS >= s.durationMS {
			if s.looping {
				s.nextMS = 0
				s.lastDecoded = 0
				continue
			}
			s.state = decoder.StateEndOfStream
			return
		}
		f, ok := s.pool.Take()
		if !ok {
			return
		}
		f.Acquire()
		f.Time = s.nextMS
		f.Format = media.FormatRGBA8
		f.Width = 640
		f.Height = 480
		if len(f.Data) != 640*480*4 {
			f.Data = make([]byte, 640*480*4)
		}
		s.queue = append(s.queue, f)
		s.lastDecoded = s.nextMS
		s.nextMS += s.intervalMS
		s.state = decoder.StateRunning
	}
	if s.audioIntervalMS > 0 {
		for len(s.audioQueue) < 8 && s.audioNextMS < s.lastDecoded {
			af, ok := s.audioPool.Take()
			if !ok {
				break
			}
			af.Acquire()
			af.Time = s.audioNextMS
			n := int(s.audioIntervalMS/1000.0*48000.0) * s.channels
			if len(af.Samples) != n {
				af.Samples = make([]float32, n)
			}
			s.audioQueue = append(s.audioQueue, af)
			s.audioNextMS += s.audioIntervalMS
		}
	}
}

func (s *fakeSource) State() decoder.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.produce()
	return s.state
}

func (s *fakeSource) IsRunning() bool { return s.State() == decoder.StateRunning }

func (s *fakeSource) Duration() float64 { return s.durationMS }

func (s *fakeSource) LastDecodedFrameTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDecoded
}

func (s *fakeSource) Seek(targetMS float64, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.queue {
		f.Release()
	}
	s.queue = s.queue[:0]
	for _, f := range s.audioQueue {
		f.Release()
	}
	s.audioQueue = s.audioQueue[:0]
	// keyframe ≤ target plus the skip-until-target gate: the first
	// published frame is the first one at or past the target.
	s.nextMS = math.Ceil(targetMS/s.intervalMS) * s.intervalMS
	s.audioNextMS = s.nextMS
	s.lastDecoded = targetMS
	s.state = decoder.StateReady
}

func (s *fakeSource) DrainVideo() []*media.VideoFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.produce()
	if len(s.queue) == 0 {
		return nil
	}
	out := make([]*media.VideoFrame, len(s.queue))
	copy(out, s.queue)
	s.queue = s.queue[:0]
	return out
}

func (s *fakeSource) DrainAudio() []*media.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.audioQueue) == 0 {
		return nil
	}
	out := make([]*media.AudioFrame, len(s.audioQueue))
	copy(out, s.audioQueue)
	s.audioQueue = s.audioQueue[:0]
	return out
}

// newTestPlayback wires a playback directly onto a scripted source.
func newTestPlayback(src frameSource, dev *testutil.Device) *Playback {
	p := &Playback{
		log:    zerolog.Nop(),
		device: dev,
		source: src,
	}
	return p
}

type countingMixer struct {
	frames int
	blocks int
}

func (m *countingMixer) Mix(samples []float32, frames int) {
	m.blocks++
	m.frames += frames
}

func TestColdPlayTicksThroughStream(t *testing.T) {
	src := newFakeSource(10000, 30)
	dev := testutil.NewDevice()
	p := newTestPlayback(src, dev)

	p.Play()
	require.True(t, p.IsPlaying())

	bufferingTicks := 0
	lastFrameTime := -1.0
	for i := 0; i < 600; i++ {
		p.Update(1.0 / 60.0)
		if p.IsBuffering() && float64(i)/60.0 > 0.1 {
			bufferingTicks++
		}
		if p.currentFrame != nil {
			require.GreaterOrEqual(t, p.currentFrame.Time, lastFrameTime, "current frame time must be monotonic")
			lastFrameTime = p.currentFrame.Time
		}
	}

	assert.InDelta(t, 10.0, p.PositionSeconds(), 0.02)
	assert.GreaterOrEqual(t, p.FramesProcessed(), 290)
	assert.LessOrEqual(t, p.FramesProcessed(), 305)
	assert.LessOrEqual(t, bufferingTicks, 30, "buffering must be rare after startup")
	assert.NotZero(t, p.CurrentTexture(), "frames must have been uploaded")
}

func TestDurationConstantAcrossSession(t *testing.T) {
	src := newFakeSource(10000, 30)
	p := newTestPlayback(src, testutil.NewDevice())
	p.Play()
	d := p.DurationSeconds()
	for i := 0; i < 120; i++ {
		p.Update(1.0 / 60.0)
		assert.Equal(t, d, p.DurationSeconds())
	}
}

func TestSeekDuringPlayback(t *testing.T) {
	src := newFakeSource(10000, 30)
	p := newTestPlayback(src, testutil.NewDevice())
	p.Play()

	for i := 0; i < 120; i++ {
		p.Update(1.0 / 60.0)
	}
	require.InDelta(t, 2.0, p.PositionSeconds(), 0.05)

	p.Seek(8.0)
	assert.InDelta(t, 8.0, p.PositionSeconds(), 0.001)

	// within 300 ms of ticking the current frame must be near the target
	for i := 0; i < 18; i++ {
		p.Update(1.0 / 60.0)
	}
	require.NotNil(t, p.currentFrame)
	assert.InDelta(t, 8000.0, p.currentFrame.Time, LenienceMS)

	last := p.currentFrame.Time
	for i := 0; i < 60; i++ {
		p.Update(1.0 / 60.0)
		require.NotNil(t, p.currentFrame)
		assert.GreaterOrEqual(t, p.currentFrame.Time, last)
		last = p.currentFrame.Time
	}
}

func TestSeekDropsStaleFrames(t *testing.T) {
	src := newFakeSource(10000, 30)
	p := newTestPlayback(src, testutil.NewDevice())
	p.Play()
	for i := 0; i < 60; i++ {
		p.Update(1.0 / 60.0)
	}

	preSeek := p.currentFrame
	p.Seek(8.0)
	for i := 0; i < 120; i++ {
		p.Update(1.0 / 60.0)
		// the pre-seek picture may linger until the first new frame, but
		// no stale frame may ever become current again
		if p.currentFrame != nil && p.currentFrame != preSeek {
			assert.GreaterOrEqual(t, p.currentFrame.Time, 8000.0-LenienceMS,
				"no pre-seek frame may become current")
		}
	}
}

func TestLoopWrapAround(t *testing.T) {
	src := newFakeSource(3000, 30)
	src.looping = true
	p := newTestPlayback(src, testutil.NewDevice())
	p.looping = true
	p.Play()

	// warm up until the first frame is current
	for i := 0; i < 4; i++ {
		p.Update(1.0 / 60.0)
	}

	sawTail := false
	wrapped := false
	for i := 0; i < 600 && !wrapped; i++ {
		p.Update(1.0 / 60.0)
		require.NotNil(t, p.currentFrame, "current frame must never drop during the wrap")
		ft := p.currentFrame.Time
		if ft > 2900 {
			sawTail = true
		}
		if sawTail && ft <= 100 {
			wrapped = true
		}
	}
	require.True(t, sawTail, "playback must reach the end of the loop")
	assert.True(t, wrapped, "current frame must wrap to the start of the stream")
	assert.Less(t, p.PositionSeconds(), 3.1, "playhead wraps with the stream")
}

func TestEndOfStreamStopsPlaying(t *testing.T) {
	src := newFakeSource(1000, 30)
	p := newTestPlayback(src, testutil.NewDevice())
	p.Play()
	for i := 0; i < 120; i++ {
		p.Update(1.0 / 60.0)
	}
	assert.False(t, p.IsPlaying(), "playback stops once the stream ran out")
}

func TestPauseFreezesClockAndBuffers(t *testing.T) {
	src := newFakeSource(10000, 30)
	p := newTestPlayback(src, testutil.NewDevice())
	p.Play()
	for i := 0; i < 30; i++ {
		p.Update(1.0 / 60.0)
	}
	pos := p.PositionSeconds()
	frames := p.FramesProcessed()

	p.SetPaused(true)
	for i := 0; i < 120; i++ {
		p.Update(1.0 / 60.0)
	}
	assert.Equal(t, pos, p.PositionSeconds())
	assert.Equal(t, frames, p.FramesProcessed())

	// the source keeps decode-ahead bounded while nothing is consumed
	src.mu.Lock()
	pending := len(src.queue)
	src.mu.Unlock()
	assert.LessOrEqual(t, pending, decoder.MaxPendingFrames)

	p.SetPaused(false)
	p.Update(1.0 / 60.0)
	assert.Greater(t, p.PositionSeconds(), pos)
}

func TestStopRewindsAndDropsTexture(t *testing.T) {
	src := newFakeSource(10000, 30)
	dev := testutil.NewDevice()
	p := newTestPlayback(src, dev)
	p.Play()
	for i := 0; i < 60; i++ {
		p.Update(1.0 / 60.0)
	}
	require.NotZero(t, p.CurrentTexture())

	p.Stop()
	assert.False(t, p.IsPlaying())
	assert.Zero(t, p.PositionSeconds())
	assert.Zero(t, p.CurrentTexture(), "the RGBA texture is dropped on stop")
	assert.Zero(t, p.FramesProcessed())
}

func TestAudioFramesReachMixer(t *testing.T) {
	src := newFakeSource(10000, 30).withAudio(1000.0/30.0, 2)
	mixer := &countingMixer{}
	p := newTestPlayback(src, testutil.NewDevice())
	p.mixer = mixer
	p.channels = 2
	p.Play()

	for i := 0; i < 120; i++ {
		p.Update(1.0 / 60.0)
	}
	assert.Greater(t, mixer.blocks, 30, "due audio blocks must be mixed")
	assert.Greater(t, mixer.frames, 0)
}

func TestResyncSeekWhenFarOutOfSync(t *testing.T) {
	src := newFakeSource(60000, 30)
	p := newTestPlayback(src, testutil.NewDevice())
	p.Play()
	p.Update(1.0 / 60.0)

	// jump the clock way ahead of the buffered frames
	p.playheadMS += 10000

	p.Update(1.0 / 60.0)
	for i := 0; i < 18; i++ {
		p.Update(1.0 / 60.0)
	}
	require.NotNil(t, p.currentFrame)
	assert.InDelta(t, p.playheadMS, p.currentFrame.Time, LenienceMS,
		"a resync seek must bring the frames back to the playhead")
}
