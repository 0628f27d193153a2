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

package yuv

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e1z0/avplay/internal/testutil"
	"github.com/e1z0/avplay/media"
	"github.com/e1z0/avplay/render"
)

func plane(w, h int, fill byte) *media.Plane {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = fill
	}
	return &media.Plane{Width: w, Height: h, Data: data}
}

func loadPlanes(t *testing.T, c *Converter, w, h int, withAlpha bool) {
	t.Helper()
	cw, ch := media.ChromaDims(w, h)
	require.NoError(t, c.SetPlaneImage(0, plane(w, h, 128)))
	require.NoError(t, c.SetPlaneImage(1, plane(cw, ch, 128)))
	require.NoError(t, c.SetPlaneImage(2, plane(cw, ch, 128)))
	if withAlpha {
		require.NoError(t, c.SetPlaneImage(3, plane(w, h, 255)))
	}
}

func TestSetFrameSizeRejectsZero(t *testing.T) {
	c := New(testutil.NewDevice(), zerolog.Nop())
	assert.Error(t, c.SetFrameSize(0, 480))
	assert.Error(t, c.SetFrameSize(640, 0))
	assert.NoError(t, c.SetFrameSize(640, 480))
}

func TestSetPlaneImageChecksGeometry(t *testing.T) {
	c := New(testutil.NewDevice(), zerolog.Nop())
	require.NoError(t, c.SetFrameSize(33, 17))

	assert.NoError(t, c.SetPlaneImage(0, plane(33, 17, 0)))
	assert.NoError(t, c.SetPlaneImage(1, plane(17, 9, 0)))
	assert.Error(t, c.SetPlaneImage(1, plane(16, 8, 0)), "chroma planes round up")
	assert.Error(t, c.SetPlaneImage(0, plane(32, 17, 0)))
	assert.Error(t, c.SetPlaneImage(5, plane(1, 1, 0)))
	assert.NoError(t, c.SetPlaneImage(3, nil), "alpha plane is optional")
}

func TestConvertDispatchGeometry(t *testing.T) {
	dev := testutil.NewDevice()
	c := New(dev, zerolog.Nop())
	require.NoError(t, c.SetFrameSize(641, 481))
	loadPlanes(t, c, 641, 481, false)

	c.Convert()

	require.Len(t, dev.Dispatches, 1)
	d := dev.Dispatches[0]
	assert.Equal(t, [3]int{81, 61, 1}, d.Groups, "group counts are ceil(size/8)")
	assert.Len(t, d.Sets, 5, "4 plane sets plus the output set")
	require.Len(t, d.PushConstant, 16, "push constant padded to 16 bytes")
	assert.Equal(t, byte(0), d.PushConstant[0], "no alpha plane -> use_alpha=0")

	out := c.OutputTexture()
	require.NotZero(t, out)
	f, err := dev.TextureGetFormat(out)
	require.NoError(t, err)
	assert.Equal(t, 641, f.Width)
	assert.Equal(t, 481, f.Height)
	assert.Equal(t, render.DataFormatRGBA8Unorm, f.Format)
}

func TestConvertWithAlpha(t *testing.T) {
	dev := testutil.NewDevice()
	c := New(dev, zerolog.Nop())
	require.NoError(t, c.SetFrameSize(64, 64))
	loadPlanes(t, c, 64, 64, true)

	c.Convert()

	require.Len(t, dev.Dispatches, 1)
	assert.Equal(t, byte(1), dev.Dispatches[0].PushConstant[0])
}

func TestConvertSkipsUploadWithMissingPlane(t *testing.T) {
	dev := testutil.NewDevice()
	c := New(dev, zerolog.Nop())
	require.NoError(t, c.SetFrameSize(64, 64))
	require.NoError(t, c.SetPlaneImage(0, plane(64, 64, 0)))
	// U and V never set

	c.Convert()
	assert.Empty(t, dev.Dispatches, "missing mandatory plane must abort the dispatch")
}

func TestPlaneTextureGeometry(t *testing.T) {
	dev := testutil.NewDevice()
	c := New(dev, zerolog.Nop())
	require.NoError(t, c.SetFrameSize(33, 17))
	loadPlanes(t, c, 33, 17, false)

	c.Convert()

	var r8Sizes [][2]int
	for _, f := range dev.Formats {
		if f.Format == render.DataFormatR8Unorm {
			r8Sizes = append(r8Sizes, [2]int{f.Width, f.Height})
		}
	}
	assert.Contains(t, r8Sizes, [2]int{33, 17}, "luma and alpha planes at full size")
	assert.Contains(t, r8Sizes, [2]int{17, 9}, "chroma planes at rounded-up half size")
	assert.Len(t, r8Sizes, 4)
}

func TestConvertReusesPipeline(t *testing.T) {
	dev := testutil.NewDevice()
	c := New(dev, zerolog.Nop())
	require.NoError(t, c.SetFrameSize(64, 64))
	loadPlanes(t, c, 64, 64, false)

	c.Convert()
	loadPlanes(t, c, 64, 64, false)
	c.Convert()

	assert.Len(t, dev.Pipelines, 1, "pipeline is created once and cached")
	assert.Len(t, dev.Shaders, 1)
	assert.Len(t, dev.Dispatches, 2)
}

func TestClearOutputTexture(t *testing.T) {
	dev := testutil.NewDevice()
	c := New(dev, zerolog.Nop())
	require.NoError(t, c.SetFrameSize(64, 64))

	out := c.OutputTexture()
	require.NotZero(t, out)
	created := dev.Cleared[out]

	c.ClearOutputTexture()
	assert.Equal(t, created+1, dev.Cleared[out])
}

func TestCloseFreesEverything(t *testing.T) {
	dev := testutil.NewDevice()
	c := New(dev, zerolog.Nop())
	require.NoError(t, c.SetFrameSize(64, 64))
	loadPlanes(t, c, 64, 64, false)
	c.Convert()
	out := c.OutputTexture()

	c.Close()

	assert.Contains(t, dev.Freed, out)
	assert.NotEmpty(t, dev.Freed)
	// the pipeline and shader go last, after the textures they serve
	n := len(dev.Freed)
	assert.Equal(t, dev.Shaders[0], dev.Freed[n-1])
	assert.Equal(t, dev.Pipelines[0], dev.Freed[n-2])
}
