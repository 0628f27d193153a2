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

package decoder

import "sync"

// commandQueue is a FIFO of closures the worker runs between decode
// iterations. Producers are any goroutine, the worker itself included;
// the consumer is the worker thread only.
type commandQueue struct {
	mu   sync.Mutex
	cmds []queuedCommand
}

type queuedCommand struct {
	fn   func()
	done chan struct{} // nil for fire-and-forget
}

// push enqueues fn without waiting for it to run.
func (q *commandQueue) push(fn func()) {
	q.mu.Lock()
	q.cmds = append(q.cmds, queuedCommand{fn: fn})
	q.mu.Unlock()
}

// pushAndWait enqueues fn and blocks until the worker has executed it.
func (q *commandQueue) pushAndWait(fn func()) {
	done := make(chan struct{})
	q.mu.Lock()
	q.cmds = append(q.cmds, queuedCommand{fn: fn, done: done})
	q.mu.Unlock()
	<-done
}

// flush runs every pending command in enqueue order. Called from the
// worker thread only.
func (q *commandQueue) flush() {
	q.mu.Lock()
	pending := q.cmds
	q.cmds = nil
	q.mu.Unlock()

	for _, c := range pending {
		c.fn()
		if c.done != nil {
			close(c.done)
		}
	}
}
