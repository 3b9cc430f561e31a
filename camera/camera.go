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

// Package camera supplies image rows to the encoder. A RowSource blocks
// until the requested band is ready.
package camera

import (
	"context"
	"errors"
	"fmt"
)

// ErrRowsOutOfRange is returned when a band falls outside the frame or the
// destination is too small for it
var ErrRowsOutOfRange = errors.New("rows out of range")

// Pixel formats, by bytes per pixel
const (
	Gray   = 1
	RGB565 = 2
	RGB888 = 3
)

// Format describes the fixed sensor output
type Format struct {
	Width    int
	Height   int
	Channels int
}

// Stride is the number of bytes in one row
func (f Format) Stride() int {
	return f.Width * f.Channels
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d/%d", f.Width, f.Height, f.Channels)
}

// RowSource delivers rows [y, y+rows) packed at Stride into dst
type RowSource interface {
	Format() Format
	ReadRows(ctx context.Context, dst []byte, y, rows int) error
}

// CheckRows validates a ReadRows request against f
func CheckRows(f Format, dst []byte, y, rows int) error {
	if y < 0 || rows < 1 || y+rows > f.Height {
		return fmt.Errorf("%w: rows %d..%d of %d", ErrRowsOutOfRange, y, y+rows, f.Height)
	}
	if len(dst) < rows*f.Stride() {
		return fmt.Errorf("%w: buffer %d bytes, need %d", ErrRowsOutOfRange, len(dst), rows*f.Stride())
	}
	return nil
}
