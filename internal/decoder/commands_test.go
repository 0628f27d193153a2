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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueueRunsInOrder(t *testing.T) {
	var q commandQueue
	var got []int
	q.push(func() { got = append(got, 1) })
	q.push(func() { got = append(got, 2) })
	q.push(func() { got = append(got, 3) })

	q.flush()
	assert.Equal(t, []int{1, 2, 3}, got)

	q.flush()
	assert.Len(t, got, 3, "flush must not replay commands")
}

func TestCommandQueuePushAndWait(t *testing.T) {
	var q commandQueue

	stop := make(chan struct{})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for {
			select {
			case <-stop:
				q.flush()
				return
			default:
				q.flush()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	ran := false
	done := make(chan struct{})
	go func() {
		q.pushAndWait(func() { ran = true })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pushAndWait never returned")
	}
	require.True(t, ran, "pushAndWait returns only after the command ran")

	close(stop)
	<-workerDone
}

func TestCommandQueueInterleavedSyncAndAsync(t *testing.T) {
	var q commandQueue
	var got []string
	q.push(func() { got = append(got, "a") })

	done := make(chan struct{})
	go func() {
		q.pushAndWait(func() { got = append(got, "b") })
		close(done)
	}()

	// wait until both commands are enqueued before flushing
	for {
		q.mu.Lock()
		n := len(q.cmds)
		q.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	q.flush()
	<-done
	assert.Equal(t, []string{"a", "b"}, got)
}
