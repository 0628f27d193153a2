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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChromaDimsRoundUp(t *testing.T) {
	tests := []struct {
		w, h   int
		cw, ch int
	}{
		{640, 480, 320, 240},
		{641, 481, 321, 241},
		{1, 1, 1, 1},
		{2, 2, 1, 1},
		{1919, 1079, 960, 540},
	}
	for _, tc := range tests {
		cw, ch := ChromaDims(tc.w, tc.h)
		assert.Equal(t, tc.cw, cw)
		assert.Equal(t, tc.ch, ch)
	}
}

func TestPlaneDims(t *testing.T) {
	// Y and A at full size, U/V subsampled
	for _, idx := range []int{0, 3} {
		w, h := PlaneDims(idx, 33, 17)
		assert.Equal(t, 33, w)
		assert.Equal(t, 17, h)
	}
	for _, idx := range []int{1, 2} {
		w, h := PlaneDims(idx, 33, 17)
		assert.Equal(t, 17, w)
		assert.Equal(t, 9, h)
	}
}

func TestPixelFormatTags(t *testing.T) {
	assert.True(t, FormatYUV420P.IsYUV())
	assert.True(t, FormatYUVA420P.IsYUV())
	assert.False(t, FormatRGBA8.IsYUV())
	assert.Equal(t, "rgba8", FormatRGBA8.String())
	assert.Equal(t, "yuv420p", FormatYUV420P.String())
}
