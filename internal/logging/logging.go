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

// Package logging sets up the zerolog logger used across the engine and
// bridges FFmpeg's own log stream into it.
package logging

import (
	"os"
	"strings"
	"time"

	astiav "github.com/asticode/go-astiav"
	"github.com/rs/zerolog"
)

// New returns a console logger at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func New(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// BindFFmpeg routes libav* log lines through the given logger. Call
// once at startup, before any decoding begins.
func BindFFmpeg(l zerolog.Logger) {
	astiav.SetLogLevel(astiav.LogLevelWarning)
	astiav.SetLogCallback(func(c astiav.Classer, level astiav.LogLevel, fmt, msg string) {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return
		}
		ev := l.Debug()
		switch level {
		case astiav.LogLevelPanic, astiav.LogLevelFatal, astiav.LogLevelError:
			ev = l.Error()
		case astiav.LogLevelWarning:
			ev = l.Warn()
		}
		ev.Str("component", "ffmpeg").Msg(msg)
	})
}
