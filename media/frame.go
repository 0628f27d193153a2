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

// Package media holds the frame carriers that travel between the decode
// worker and the presentation side, the bounded pools they are recycled
// through, and the host byte-stream contract the demuxer reads from.
package media

import "sync/atomic"

// PixelFormat tags the layout of a decoded video frame.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatRGBA8
	FormatYUV420P
	FormatYUVA420P
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatYUV420P:
		return "yuv420p"
	case FormatYUVA420P:
		return "yuva420p"
	}
	return "unknown"
}

// IsYUV reports whether the frame carries planes instead of packed RGBA.
func (f PixelFormat) IsYUV() bool {
	return f == FormatYUV420P || f == FormatYUVA420P
}

// ChromaDims returns the size of the subsampled U/V planes for a frame
// of the given size (half width/height, rounded up).
func ChromaDims(w, h int) (int, int) {
	return (w + 1) / 2, (h + 1) / 2
}

// PlaneDims returns the expected dimensions of plane idx (0=Y, 1=U,
// 2=V, 3=A) for a frame of the given size.
func PlaneDims(idx, w, h int) (int, int) {
	if idx == 1 || idx == 2 {
		return ChromaDims(w, h)
	}
	return w, h
}

// Plane is one tightly packed single-channel (R8) image.
type Plane struct {
	Width  int
	Height int
	Data   []byte
}

// VideoFrame is one decoded picture. For FormatRGBA8 the pixels live in
// Data as tightly packed RGBA; for the YUV formats they live in Planes
// (Y, U, V and optionally A).
//
// Frames are recycled through a Pool: whoever holds the last share must
// call Release, which hands the carrier back to its pool. Retain adds a
// share when a frame is handed across an ownership boundary.
type VideoFrame struct {
	Time   float64 // presentation time in milliseconds
	Format PixelFormat
	Width  int
	Height int
	Data   []byte
	Planes [4]*Plane

	refs    atomic.Int32
	release func(*VideoFrame)
}

// Acquire resets the carrier to a single share. The producer calls this
// right after taking the carrier from its pool.
func (f *VideoFrame) Acquire() { f.refs.Store(1) }

func (f *VideoFrame) Retain() { f.refs.Add(1) }

// Release drops one share. When the last share is gone the carrier goes
// back to its pool; its buffers are kept for reuse.
func (f *VideoFrame) Release() {
	if f.refs.Add(-1) == 0 && f.release != nil {
		f.release(f)
	}
}

// AudioFrame is one decoded PCM block: interleaved float32 samples at
// the codec's native rate. Consumed once by the presentation side and
// then released.
type AudioFrame struct {
	Time    float64 // presentation time in milliseconds
	Samples []float32

	refs    atomic.Int32
	release func(*AudioFrame)
}

// Acquire resets the carrier to a single share. The producer calls this
// right after taking the carrier from its pool.
func (f *AudioFrame) Acquire() { f.refs.Store(1) }

func (f *AudioFrame) Retain() { f.refs.Add(1) }

func (f *AudioFrame) Release() {
	if f.refs.Add(-1) == 0 && f.release != nil {
		f.release(f)
	}
}
