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

package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // registered for LoadImage
	_ "image/png"  // registered for LoadImage
	"os"
)

// FlatSource produces a uniform frame, one pixel value everywhere
type FlatSource struct {
	pixel  []byte
	format Format
}

// NewFlatSource returns a w×h source filled with pixel. The pixel length
// selects the format: 1 gray, 2 RGB565 (big-endian), 3 RGB888.
func NewFlatSource(width, height int, pixel ...byte) (*FlatSource, error) {
	if len(pixel) < Gray || len(pixel) > RGB888 {
		return nil, fmt.Errorf("flat source: unsupported pixel size %d", len(pixel))
	}
	return &FlatSource{
		format: Format{Width: width, Height: height, Channels: len(pixel)},
		pixel:  append([]byte(nil), pixel...),
	}, nil
}

// Format returns the frame format
func (s *FlatSource) Format() Format { return s.format }

// ReadRows fills dst with the flat pixel
func (s *FlatSource) ReadRows(ctx context.Context, dst []byte, y, rows int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRows(s.format, dst, y, rows); err != nil {
		return err
	}
	n := rows * s.format.Stride()
	for i := 0; i < n; i += len(s.pixel) {
		copy(dst[i:], s.pixel)
	}
	return nil
}

// GradientSource produces an RGB888 diagonal test pattern
type GradientSource struct {
	format Format
}

// NewGradientSource returns a w×h RGB888 gradient
func NewGradientSource(width, height int) *GradientSource {
	return &GradientSource{format: Format{Width: width, Height: height, Channels: RGB888}}
}

// Format returns the frame format
func (s *GradientSource) Format() Format { return s.format }

// ReadRows renders rows of the gradient
func (s *GradientSource) ReadRows(ctx context.Context, dst []byte, y, rows int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRows(s.format, dst, y, rows); err != nil {
		return err
	}
	w, h := s.format.Width, s.format.Height
	for r := 0; r < rows; r++ {
		row := dst[r*s.format.Stride():]
		yy := y + r
		for x := 0; x < w; x++ {
			row[3*x] = uint8(x * 255 / max(w-1, 1))
			row[3*x+1] = uint8(yy * 255 / max(h-1, 1))
			row[3*x+2] = uint8((x + yy) * 255 / max(w+h-2, 1))
		}
	}
	return nil
}

// ImageSource serves rows from a decoded image. *image.Gray is passed
// through as Gray, everything else becomes RGB888.
type ImageSource struct {
	img    image.Image
	format Format
}

// NewImageSource wraps img
func NewImageSource(img image.Image) *ImageSource {
	b := img.Bounds()
	channels := RGB888
	if _, ok := img.(*image.Gray); ok {
		channels = Gray
	}
	return &ImageSource{img: img, format: Format{Width: b.Dx(), Height: b.Dy(), Channels: channels}}
}

// LoadImage decodes a PNG or JPEG file into an ImageSource
func LoadImage(path string) (*ImageSource, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewImageSource(img), nil
}

// Format returns the frame format
func (s *ImageSource) Format() Format { return s.format }

// ReadRows converts rows of the image into dst
func (s *ImageSource) ReadRows(ctx context.Context, dst []byte, y, rows int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckRows(s.format, dst, y, rows); err != nil {
		return err
	}
	b := s.img.Bounds()
	stride := s.format.Stride()
	for r := 0; r < rows; r++ {
		row := dst[r*stride : (r+1)*stride]
		sy := b.Min.Y + y + r
		if gray, ok := s.img.(*image.Gray); ok {
			off := gray.PixOffset(b.Min.X, sy)
			copy(row, gray.Pix[off:off+stride])
			continue
		}
		for x := 0; x < s.format.Width; x++ {
			c := color.RGBAModel.Convert(s.img.At(b.Min.X+x, sy)).(color.RGBA)
			row[3*x], row[3*x+1], row[3*x+2] = c.R, c.G, c.B
		}
	}
	return nil
}
