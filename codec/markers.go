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

const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerAPP0 = 0xe0
	markerDQT  = 0xdb
	markerSOF0 = 0xc0
	markerDHT  = 0xc4
)

// jfifAPP0 is the APP0 payload: "JFIF\0", version 1.01, no density units,
// 1:1 aspect, no thumbnail.
var jfifAPP0 = []byte{'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00}

// sosHeaderYCbCr is SOS for three interleaved components: Y on tables 0/0,
// Cb and Cr on tables 1/1, then Ss=0 Se=63 Ah/Al=0 for a sequential scan.
var sosHeaderYCbCr = []byte{
	0xff, 0xda, 0x00, 0x0c, 0x03, 0x01, 0x00, 0x02,
	0x11, 0x03, 0x11, 0x00, 0x3f, 0x00,
}

func (e *Encoder) writeMarkerHeader(marker byte, length int) {
	e.w.WriteRaw(0xff, marker, byte(length>>8), byte(length))
}

func (e *Encoder) writeHeaders() {
	e.w.WriteRaw(0xff, markerSOI)

	e.writeMarkerHeader(markerAPP0, 2+len(jfifAPP0))
	e.w.WriteRaw(jfifAPP0...)

	e.writeDQT()
	e.writeSOF0()
	e.writeDHT()
	e.w.WriteRaw(sosHeaderYCbCr...)
}

func (e *Encoder) writeDQT() {
	e.writeMarkerHeader(markerDQT, 2+int(nQuantIndex)*(1+blockSize))
	for i := range e.quant {
		e.w.WriteRaw(byte(i))
		e.w.WriteRaw(e.quant[i][:]...)
	}
}

func (e *Encoder) writeSOF0() {
	const nComponent = 3
	e.writeMarkerHeader(markerSOF0, 8+3*nComponent)
	e.w.WriteRaw(
		8, // sample precision
		byte(e.height>>8), byte(e.height),
		byte(e.width>>8), byte(e.width),
		nComponent,
	)
	lumaSampling := byte(0x11)
	if e.subsampled {
		lumaSampling = 0x22
	}
	e.w.WriteRaw(
		1, lumaSampling, 0,
		2, 0x11, 1,
		3, 0x11, 1,
	)
}

func (e *Encoder) writeDHT() {
	length := 2
	for _, s := range theHuffmanSpec {
		length += 1 + 16 + len(s.value)
	}
	e.writeMarkerHeader(markerDHT, length)
	for i, s := range theHuffmanSpec {
		e.w.WriteRaw("\x00\x10\x01\x11"[i])
		e.w.WriteRaw(s.count[:]...)
		e.w.WriteRaw(s.value...)
	}
}
