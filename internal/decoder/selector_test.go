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

	astiav "github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
)

func TestParseHardwareList(t *testing.T) {
	assert.Equal(t, HWNone, ParseHardwareList(nil))
	assert.Equal(t, HWNone, ParseHardwareList([]string{"none"}))
	assert.Equal(t, HWAny, ParseHardwareList([]string{"any"}))
	assert.Equal(t, HWAny, ParseHardwareList([]string{"vaapi", "all"}))
	assert.Equal(t, HWNVDEC|HWVAAPI, ParseHardwareList([]string{"NVDEC", " vaapi "}))
	assert.Equal(t, HWQSV, ParseHardwareList([]string{"qsv", "notabackend"}))
}

func TestHardwareDecoderHas(t *testing.T) {
	assert.True(t, HWAny.Has(HWNVDEC))
	assert.True(t, (HWNVDEC | HWQSV).Has(HWQSV))
	assert.False(t, HWNVDEC.Has(HWQSV))
	assert.False(t, HWNone.Has(HWNone), "the empty flag is never allowed")
}

func TestSortCandidatesByScore(t *testing.T) {
	cands := []decoderCandidate{
		{deviceType: hwDeviceNone},
		{deviceType: astiav.HardwareDeviceTypeDXVA2},
		{deviceType: astiav.HardwareDeviceTypeCUDA},
		{deviceType: astiav.HardwareDeviceTypeQSV},
		{deviceType: astiav.HardwareDeviceTypeVDPAU},
	}
	sortCandidates(cands)

	scores := make([]int, len(cands))
	for i, c := range cands {
		scores[i] = hardwareScore(c.deviceType)
	}
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1], scores[i], "candidates must be in descending score order")
	}
	assert.Equal(t, hwDeviceNone, cands[len(cands)-1].deviceType, "software decoder is the final fallback")
	assert.Equal(t, astiav.HardwareDeviceTypeCUDA, cands[0].deviceType)
}

func TestSortCandidatesStableAmongEqualScores(t *testing.T) {
	cands := []decoderCandidate{
		{deviceType: astiav.HardwareDeviceTypeCUDA},
		{deviceType: astiav.HardwareDeviceTypeVDPAU},
		{deviceType: astiav.HardwareDeviceTypeMediaCodec},
	}
	sortCandidates(cands)
	assert.Equal(t, astiav.HardwareDeviceTypeCUDA, cands[0].deviceType)
	assert.Equal(t, astiav.HardwareDeviceTypeVDPAU, cands[1].deviceType)
	assert.Equal(t, astiav.HardwareDeviceTypeMediaCodec, cands[2].deviceType)
}
