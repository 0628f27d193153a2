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

import (
	"io"
	"os"
)

// Stream is the host-provided byte source the demuxer reads from. It is
// touched by the goroutine that starts the decode worker while the input
// is opened, and only from the decode worker thread after that.
type Stream interface {
	io.ReadSeeker
	Size() int64
}

// FileStream adapts an open file to the Stream contract.
type FileStream struct {
	f    *os.File
	size int64
}

// OpenFile opens path as a playback stream.
func OpenFile(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileStream{f: f, size: st.Size()}, nil
}

func (s *FileStream) Read(p []byte) (int, error) { return s.f.Read(p) }

func (s *FileStream) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

func (s *FileStream) Size() int64 { return s.size }

func (s *FileStream) Close() error { return s.f.Close() }
