// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codec

import "image/color"

// Supported input pixel formats, identified by bytes per pixel
const (
	Gray   = 1 // 8-bit luminance
	RGB565 = 2 // 16-bit big-endian 5:6:5
	RGB888 = 3 // 8-bit per channel
)

// expand5 and expand6 widen packed channels by replicating the high bits
func expand5(v uint16) uint8 { return uint8(v<<3 | v>>2) }
func expand6(v uint16) uint8 { return uint8(v<<2 | v>>4) }

// RGB565ToRGB unpacks a big-endian RGB565 pixel
func RGB565ToRGB(hi, lo byte) (r, g, b uint8) {
	v := uint16(hi)<<8 | uint16(lo)
	return expand5(v >> 11), expand6(v >> 5 & 0x3F), expand5(v & 0x1F)
}

// toYCbCr converts the pixel at pix[0:channels]
func toYCbCr(pix []byte, channels int) (y, cb, cr uint8) {
	switch channels {
	case Gray:
		return pix[0], 128, 128
	case RGB565:
		r, g, b := RGB565ToRGB(pix[0], pix[1])
		return color.RGBToYCbCr(r, g, b)
	default:
		return color.RGBToYCbCr(pix[0], pix[1], pix[2])
	}
}
