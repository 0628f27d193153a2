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
	"math"
	"sort"
	"strings"

	astiav "github.com/asticode/go-astiav"
)

// AV_HWDEVICE_TYPE_NONE; the bindings only name the real device types.
const hwDeviceNone = astiav.HardwareDeviceType(0)

// HardwareDecoder is a bitfield of hardware decode backends the caller
// allows the selector to try.
type HardwareDecoder uint32

const (
	HWNone  HardwareDecoder = 0
	HWNVDEC HardwareDecoder = 1 << iota
	HWQSV
	HWDXVA2
	HWVDPAU
	HWVAAPI
	HWMediaCodec
	HWVideoToolbox
	HWAny HardwareDecoder = math.MaxUint32
)

// Has reports whether all bits of flag are allowed.
func (h HardwareDecoder) Has(flag HardwareDecoder) bool {
	return flag != 0 && h&flag == flag
}

func (h HardwareDecoder) String() string {
	if h == HWNone {
		return "none"
	}
	if h == HWAny {
		return "any"
	}
	var names []string
	for name, flag := range hardwareNames {
		if h.Has(flag) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

var hardwareNames = map[string]HardwareDecoder{
	"nvdec":        HWNVDEC,
	"qsv":          HWQSV,
	"dxva2":        HWDXVA2,
	"vdpau":        HWVDPAU,
	"vaapi":        HWVAAPI,
	"mediacodec":   HWMediaCodec,
	"videotoolbox": HWVideoToolbox,
}

// ParseHardwareList turns config strings ("nvdec", "vaapi", "any",
// "none") into a bitfield. Unknown names are ignored.
func ParseHardwareList(names []string) HardwareDecoder {
	var out HardwareDecoder
	for _, n := range names {
		switch n = strings.ToLower(strings.TrimSpace(n)); n {
		case "any", "all":
			return HWAny
		case "", "none":
		default:
			out |= hardwareNames[n]
		}
	}
	return out
}

func hardwareFromDeviceType(t astiav.HardwareDeviceType) HardwareDecoder {
	switch t {
	case astiav.HardwareDeviceTypeCUDA:
		return HWNVDEC
	case astiav.HardwareDeviceTypeQSV:
		return HWQSV
	case astiav.HardwareDeviceTypeDXVA2:
		return HWDXVA2
	case astiav.HardwareDeviceTypeVDPAU:
		return HWVDPAU
	case astiav.HardwareDeviceTypeVAAPI:
		return HWVAAPI
	case astiav.HardwareDeviceTypeMediaCodec:
		return HWMediaCodec
	case astiav.HardwareDeviceTypeVideoToolbox:
		return HWVideoToolbox
	}
	return HWNone
}

// hardwareScore ranks device types when several candidates can decode
// the same codec. Software (no device) ranks below everything.
func hardwareScore(t astiav.HardwareDeviceType) int {
	switch t {
	case astiav.HardwareDeviceTypeCUDA, astiav.HardwareDeviceTypeVDPAU, astiav.HardwareDeviceTypeMediaCodec:
		return 10
	case astiav.HardwareDeviceTypeVAAPI, astiav.HardwareDeviceTypeQSV:
		return 9
	case astiav.HardwareDeviceTypeDXVA2:
		return 8
	}
	return math.MinInt
}

// decoderCandidate is one (codec, hardware device) pair to try opening,
// in order.
type decoderCandidate struct {
	codec       *astiav.Codec
	deviceType  astiav.HardwareDeviceType
	pixelFormat astiav.PixelFormat
}

func sortCandidates(cands []decoderCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return hardwareScore(cands[i].deviceType) > hardwareScore(cands[j].deviceType)
	})
}

// availableDecoders returns the ordered candidate list for the codec
// id: one entry per allowed hardware device the decoder supports, then
// the plain software decoder as final fallback.
func availableDecoders(codecID astiav.CodecID, target HardwareDecoder) []decoderCandidate {
	codec := astiav.FindDecoder(codecID)
	if codec == nil {
		return nil
	}

	var cands []decoderCandidate
	if target != HWNone {
		for _, cfg := range codec.HardwareConfigs() {
			if !cfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) {
				continue
			}
			hw := hardwareFromDeviceType(cfg.HardwareDeviceType())
			if hw == HWNone || !target.Has(hw) {
				continue
			}
			cands = append(cands, decoderCandidate{
				codec:       codec,
				deviceType:  cfg.HardwareDeviceType(),
				pixelFormat: cfg.PixelFormat(),
			})
		}
	}

	// the software decoder always closes the list, so a playback never
	// fails just because every hardware backend refused to open.
	cands = append(cands, decoderCandidate{codec: codec, deviceType: hwDeviceNone})
	sortCandidates(cands)
	return cands
}
