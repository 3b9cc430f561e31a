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

import (
	"fmt"
	"image"
)

// EncodeImage encodes m as RGB888 (or Gray for *image.Gray) band by band
func EncodeImage(sink Sink, m image.Image, quality int) error {
	b := m.Bounds()
	channels := RGB888
	gray, isGray := m.(*image.Gray)
	if isGray {
		channels = Gray
	}

	enc := NewEncoder(sink)
	if err := enc.Start(b.Dx(), b.Dy(), channels, quality); err != nil {
		return err
	}

	stride := b.Dx() * channels
	buf := make([]byte, enc.BandHeight()*stride)
	for more := true; more; {
		y0, rows := enc.NextRow(), enc.BandRows()
		for r := 0; r < rows; r++ {
			row := buf[r*stride : (r+1)*stride]
			sy := b.Min.Y + y0 + r
			if isGray {
				off := gray.PixOffset(b.Min.X, sy)
				copy(row, gray.Pix[off:off+stride])
				continue
			}
			for x := 0; x < b.Dx(); x++ {
				cr, cg, cb, _ := m.At(b.Min.X+x, sy).RGBA()
				row[3*x] = uint8(cr >> 8)
				row[3*x+1] = uint8(cg >> 8)
				row[3*x+2] = uint8(cb >> 8)
			}
		}

		var err error
		more, err = enc.AppendBand(PixelBlock{Pix: buf, Stride: stride, Y: y0, Rows: rows})
		if err != nil {
			return fmt.Errorf("encode image: %w", err)
		}
	}
	return enc.Finish()
}
