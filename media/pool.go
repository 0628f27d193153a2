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

package media

import "sync"

// Pool is a bounded pool of reusable carriers. Take hands out a free
// carrier, allocating a fresh one while the in-flight count allows; once
// the ceiling is reached it returns false and the producer is expected
// to back off. Put hands a carrier back.
//
// The pool owns its carriers; holders only borrow shares. Frame carriers
// wire their Release to Put so the last share returning closes the loop
// without the holder knowing about the pool.
type Pool[T any] struct {
	mu       sync.Mutex
	limit    int
	alloc    func() T
	free     []T
	inFlight int
}

// NewPool creates a pool with the given in-flight ceiling. alloc is
// called whenever the pool is empty but below the ceiling.
func NewPool[T any](limit int, alloc func() T) *Pool[T] {
	return &Pool[T]{limit: limit, alloc: alloc}
}

// Take returns a carrier, or false when the ceiling is reached.
func (p *Pool[T]) Take() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
		p.inFlight++
		return v, true
	}
	if p.inFlight < p.limit {
		p.inFlight++
		return p.alloc(), true
	}
	var zero T
	return zero, false
}

// Put returns a carrier to the pool. Never blocks.
func (p *Pool[T]) Put(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, v)
	if p.inFlight > 0 {
		p.inFlight--
	}
}

// InFlight reports how many carriers are currently handed out.
func (p *Pool[T]) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// NewVideoFramePool builds a bounded pool of video-frame carriers whose
// Release hands them back automatically.
func NewVideoFramePool(limit int) *Pool[*VideoFrame] {
	var p *Pool[*VideoFrame]
	p = NewPool(limit, func() *VideoFrame {
		f := &VideoFrame{}
		f.release = func(v *VideoFrame) { p.Put(v) }
		return f
	})
	return p
}

// NewAudioFramePool builds a bounded pool of audio-frame carriers whose
// Release hands them back automatically.
func NewAudioFramePool(limit int) *Pool[*AudioFrame] {
	var p *Pool[*AudioFrame]
	p = NewPool(limit, func() *AudioFrame {
		f := &AudioFrame{}
		f.release = func(v *AudioFrame) { p.Put(v) }
		return f
	})
	return p
}
