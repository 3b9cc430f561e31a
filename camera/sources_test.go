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
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatSource(t *testing.T) {
	t.Parallel()

	src, err := NewFlatSource(4, 3, 0xF8, 0x00)
	require.NoError(t, err)
	assert.Equal(t, Format{Width: 4, Height: 3, Channels: RGB565}, src.Format())

	dst := make([]byte, 2*src.Format().Stride())
	require.NoError(t, src.ReadRows(context.Background(), dst, 1, 2))
	for i := 0; i < len(dst); i += 2 {
		assert.Equal(t, []byte{0xF8, 0x00}, dst[i:i+2])
	}

	_, err = NewFlatSource(4, 4)
	require.Error(t, err)
}

func TestCheckRows(t *testing.T) {
	t.Parallel()

	f := Format{Width: 2, Height: 4, Channels: RGB888}
	tests := []struct {
		name    string
		dstLen  int
		y, rows int
		wantErr bool
	}{
		{name: "first band", dstLen: 12, y: 0, rows: 2},
		{name: "last row", dstLen: 6, y: 3, rows: 1},
		{name: "past end", dstLen: 12, y: 3, rows: 2, wantErr: true},
		{name: "negative row", dstLen: 6, y: -1, rows: 1, wantErr: true},
		{name: "zero rows", dstLen: 6, y: 0, rows: 0, wantErr: true},
		{name: "short buffer", dstLen: 11, y: 0, rows: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckRows(f, make([]byte, tt.dstLen), tt.y, tt.rows)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrRowsOutOfRange)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGradientSource(t *testing.T) {
	t.Parallel()

	src := NewGradientSource(5, 5)
	dst := make([]byte, 5*src.Format().Stride())
	require.NoError(t, src.ReadRows(context.Background(), dst, 0, 5))
	assert.Equal(t, []byte{0, 0, 0}, dst[:3])
	last := dst[len(dst)-3:]
	assert.Equal(t, []byte{255, 255, 255}, last)
}

func TestImageSource(t *testing.T) {
	t.Parallel()

	m := image.NewNRGBA(image.Rect(10, 20, 12, 22))
	m.Set(11, 21, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	src := NewImageSource(m)
	assert.Equal(t, Format{Width: 2, Height: 2, Channels: RGB888}, src.Format())

	dst := make([]byte, src.Format().Stride())
	require.NoError(t, src.ReadRows(context.Background(), dst, 1, 1))
	assert.Equal(t, []byte{1, 2, 3}, dst[3:6])

	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.Pix = []byte{7, 8, 9}
	gs := NewImageSource(g)
	assert.Equal(t, Gray, gs.Format().Channels)
	gdst := make([]byte, 3)
	require.NoError(t, gs.ReadRows(context.Background(), gdst, 0, 1))
	assert.Equal(t, []byte{7, 8, 9}, gdst)
}

func TestSources_HonorContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewGradientSource(2, 2)
	require.ErrorIs(t, src.ReadRows(ctx, make([]byte, 12), 0, 2), context.Canceled)
}
