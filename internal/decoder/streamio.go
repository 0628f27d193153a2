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
	"errors"
	"io"

	astiav "github.com/asticode/go-astiav"

	"github.com/e1z0/avplay/media"
)

const ioBufferSize = 4096

// AVSEEK_SIZE: the demuxer probes the stream length through the seek
// callback with this whence value.
const avseekSize = 0x10000

// newIOContext wraps the host stream into an AVIO context. The callbacks
// run on the goroutine that calls Worker.Start while the input is opened
// and probed, and on the worker thread from then on.
func newIOContext(s media.Stream) (*astiav.IOContext, error) {
	read := func(b []byte) (int, error) {
		n, err := s.Read(b)
		if n > 0 {
			return n, nil
		}
		if err == nil || errors.Is(err, io.EOF) {
			return 0, astiav.ErrEof
		}
		return 0, err
	}
	seek := func(offset int64, whence int) (int64, error) {
		if whence == avseekSize {
			return s.Size(), nil
		}
		return s.Seek(offset, whence)
	}
	return astiav.AllocIOContext(ioBufferSize, false, read, seek, nil)
}
