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

// Package codec is a band-oriented baseline JPEG encoder. Rows arrive in
// bands of 8 or 16 and compressed bytes leave through a Sink as soon as
// they are produced, so a whole frame is never held in memory.
package codec

import (
	"fmt"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/internal/bitpack"
)

// SubsampleThreshold is the highest quality that still uses 4:2:0 chroma
const SubsampleThreshold = 80

// MaxDimension is the largest width or height a SOF0 header can carry
const MaxDimension = 65535

// Sink receives encoded bytes. The slice is only valid during the call.
type Sink interface {
	Emit(p []byte) error
}

// PixelBlock is a read-only view of Rows rows starting at image row Y.
// Row r starts at Pix[r*Stride].
type PixelBlock struct {
	Pix    []byte
	Stride int
	Y      int
	Rows   int
}

// Encoder drives one image at a time from Start to Finish
type Encoder struct {
	w          *bitpack.Writer
	coder      entropyCoder
	div        [nQuantIndex]divisors
	quant      [nQuantIndex][blockSize]byte
	width      int
	height     int
	channels   int
	nextRow    int
	started    bool
	subsampled bool
}

// NewEncoder returns an encoder writing to sink
func NewEncoder(sink Sink) *Encoder {
	w := bitpack.NewWriter(sink)
	return &Encoder{w: w, coder: entropyCoder{w: w}}
}

// Start validates the frame parameters, derives the quantization tables and
// writes every header segment up to and including SOS.
func (e *Encoder) Start(width, height, channels, quality int) error {
	if e.w.Err() != nil {
		return fmt.Errorf("encoder sink failed earlier: %w", e.w.Err())
	}
	if width < 1 || width > MaxDimension || height < 1 || height > MaxDimension {
		return fmt.Errorf("%w: size %dx%d", snaplink.ErrInvalidParameter, width, height)
	}
	if channels != Gray && channels != RGB565 && channels != RGB888 {
		return fmt.Errorf("%w: %d channels", snaplink.ErrInvalidParameter, channels)
	}
	if quality < 0 || quality > 100 {
		return fmt.Errorf("%w: quality %d", snaplink.ErrInvalidParameter, quality)
	}

	e.width, e.height, e.channels = width, height, channels
	e.subsampled = quality <= SubsampleThreshold
	e.quant = scaledQuant(quality)
	for i := range e.quant {
		e.div[i] = newDivisors(&e.quant[i])
	}
	e.coder.reset()
	e.nextRow = 0
	e.started = true

	e.writeHeaders()
	e.w.Flush()
	if err := e.w.Err(); err != nil {
		e.started = false
		return fmt.Errorf("write headers: %w", err)
	}
	snaplink.Debugf("codec: start %dx%d ch=%d q=%d subsampled=%v", width, height, channels, quality, e.subsampled)
	return nil
}

// BandHeight is the number of rows AppendBand expects per call: 16 with
// chroma subsampling, 8 otherwise.
func (e *Encoder) BandHeight() int {
	if e.subsampled {
		return 16
	}
	return 8
}

// NextRow is the first image row of the band AppendBand expects next
func (e *Encoder) NextRow() int {
	return e.nextRow
}

// Subsampled reports whether the current image uses 4:2:0 chroma
func (e *Encoder) Subsampled() bool {
	return e.subsampled
}

// BandRows is the number of rows the next band must carry. The final band
// may be short.
func (e *Encoder) BandRows() int {
	return min(e.BandHeight(), e.height-e.nextRow)
}

// AppendBand encodes the next band of rows. It reports whether more bands
// are expected.
func (e *Encoder) AppendBand(band PixelBlock) (more bool, err error) {
	if !e.started {
		return false, snaplink.ErrEncoderNotStarted
	}
	if e.nextRow >= e.height {
		return false, snaplink.ErrNoBandsRemaining
	}
	if band.Y != e.nextRow {
		return true, fmt.Errorf("%w: got row %d, want %d", snaplink.ErrBandOutOfOrder, band.Y, e.nextRow)
	}
	rows := e.BandRows()
	rowBytes := e.width * e.channels
	if band.Rows < rows || band.Stride < rowBytes || len(band.Pix) < (rows-1)*band.Stride+rowBytes {
		return true, fmt.Errorf("%w: band at row %d has %d rows, stride %d, %d bytes",
			snaplink.ErrInvalidParameter, band.Y, band.Rows, band.Stride, len(band.Pix))
	}

	if e.subsampled {
		e.encodeBand420(band, rows)
	} else {
		e.encodeBand444(band, rows)
	}
	e.w.Flush()
	if err := e.w.Err(); err != nil {
		return false, fmt.Errorf("encode band at row %d: %w", band.Y, err)
	}

	e.nextRow += rows
	return e.nextRow < e.height, nil
}

// Finish pads the entropy-coded segment and writes EOI
func (e *Encoder) Finish() error {
	if !e.started {
		return snaplink.ErrEncoderNotStarted
	}
	if e.nextRow < e.height {
		return fmt.Errorf("%w: next row %d of %d", snaplink.ErrBandsPending, e.nextRow, e.height)
	}
	e.w.WriteRaw(0xff, markerEOI)
	e.started = false
	if err := e.w.Finalize(); err != nil {
		return fmt.Errorf("write EOI: %w", err)
	}
	return nil
}

// sample reads one pixel with coordinates clamped to the band's valid rows
// and the image width.
func (e *Encoder) sample(band PixelBlock, rows, x, y int) (yy, cb, cr uint8) {
	x = min(x, e.width-1)
	y = min(y, rows-1)
	off := y*band.Stride + x*e.channels
	return toYCbCr(band.Pix[off:off+e.channels], e.channels)
}

func (e *Encoder) encodeBand444(band PixelBlock, rows int) {
	var yBlk, cbBlk, crBlk block
	var zz [blockSize]int32
	for mx := 0; mx < e.width; mx += 8 {
		for j := 0; j < 8; j++ {
			for i := 0; i < 8; i++ {
				yy, cb, cr := e.sample(band, rows, mx+i, j)
				yBlk[8*j+i] = float64(yy) - 128
				cbBlk[8*j+i] = float64(cb) - 128
				crBlk[8*j+i] = float64(cr) - 128
			}
		}
		e.writeBlock(0, &yBlk, &zz)
		e.writeBlock(1, &cbBlk, &zz)
		e.writeBlock(2, &crBlk, &zz)
	}
}

func (e *Encoder) encodeBand420(band PixelBlock, rows int) {
	var yBlk [4]block
	var cbSum, crSum [blockSize]int
	var cbBlk, crBlk block
	var zz [blockSize]int32
	for mx := 0; mx < e.width; mx += 16 {
		cbSum, crSum = [blockSize]int{}, [blockSize]int{}
		for j := 0; j < 16; j++ {
			for i := 0; i < 16; i++ {
				yy, cb, cr := e.sample(band, rows, mx+i, j)
				yBlk[(j/8)*2+i/8][8*(j%8)+i%8] = float64(yy) - 128
				c := 8*(j/2) + i/2
				cbSum[c] += int(cb)
				crSum[c] += int(cr)
			}
		}
		for k := range cbSum {
			cbBlk[k] = float64((cbSum[k]+2)>>2) - 128
			crBlk[k] = float64((crSum[k]+2)>>2) - 128
		}
		for k := range yBlk {
			e.writeBlock(0, &yBlk[k], &zz)
		}
		e.writeBlock(1, &cbBlk, &zz)
		e.writeBlock(2, &crBlk, &zz)
	}
}

func (e *Encoder) writeBlock(ch int, b *block, zz *[blockSize]int32) {
	q := quantIndexLuminance
	if ch > 0 {
		q = quantIndexChrominance
	}
	quantize(b, &e.div[q], zz)
	e.coder.encodeBlock(ch, zz)
}
