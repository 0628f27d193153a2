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

package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/e1z0/avplay/internal/config"
	"github.com/e1z0/avplay/internal/logging"
)

func init() {
	// SDL and the playback update loop must stay on the main thread.
	runtime.LockOSThread()
}

var (
	flagConfig   string
	flagLogLevel string
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "avplay", "settings.yml")
}

// loadOptions reads the settings file when present; a missing file is
// not an error, just defaults.
func loadOptions(log zerolog.Logger) config.Options {
	path := flagConfig
	if path == "" {
		path = defaultConfigPath()
	}
	opts, err := config.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Str("path", path).Err(err).Msg("reading settings failed")
		}
		return config.Options{}
	}
	return opts
}

func main() {
	root := &cobra.Command{
		Use:           "avplay",
		Short:         "avplay is a small FFmpeg-based video player and playback engine demo",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "settings file (default ~/.config/avplay/settings.yml)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log level (debug|info|warn|error)")

	root.AddCommand(newPlayCommand())
	root.AddCommand(newProbeCommand())

	if err := root.Execute(); err != nil {
		logging.New("error").Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
