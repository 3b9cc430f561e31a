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

// Package bitpack packs variable-length codes MSB-first into an
// entropy-coded byte stream with 0xFF byte stuffing.
package bitpack

import (
	"errors"
	"fmt"
)

// MaxBits is the widest value a single Write accepts
const MaxBits = 24

// scratchSize bounds how many bytes are staged before the sink sees them
const scratchSize = 64

// ErrTooManyBits is returned when Write is asked for more than MaxBits bits
var ErrTooManyBits = errors.New("bit count out of range")

// Sink receives packed bytes. The slice is only valid for the duration of
// the call.
type Sink interface {
	Emit(p []byte) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(p []byte) error

// Emit calls f(p)
func (f SinkFunc) Emit(p []byte) error {
	return f(p)
}

// Writer is a sticky-error bit writer. After the first sink error every
// call is a no-op and Err reports that error.
type Writer struct {
	sink    Sink
	err     error
	scratch [scratchSize]byte
	n       int
	bits    uint32
	nBits   uint32
}

// NewWriter returns a Writer that hands bytes to sink in batches
func NewWriter(sink Sink) *Writer {
	return &Writer{sink: sink}
}

// Err returns the first error seen by the writer
func (w *Writer) Err() error {
	return w.err
}

// Pending returns the number of bits not yet formed into a whole byte
func (w *Writer) Pending() int {
	return int(w.nBits)
}

// Write appends the low nbits bits of value, most significant first
func (w *Writer) Write(value uint32, nbits int) {
	if w.err != nil || nbits == 0 {
		return
	}
	if nbits < 0 || nbits > MaxBits {
		w.err = fmt.Errorf("%w: %d", ErrTooManyBits, nbits)
		return
	}

	n := uint32(nbits)
	value &= 1<<n - 1
	total := w.nBits + n
	acc := w.bits | value<<(32-total)
	for total >= 8 {
		b := byte(acc >> 24)
		w.put(b)
		if b == 0xFF {
			w.put(0x00)
		}
		acc <<= 8
		total -= 8
	}
	w.bits, w.nBits = acc, total
}

// WriteRaw byte-aligns the stream (padding with ones) and appends p
// verbatim, without stuffing. It is meant for markers.
func (w *Writer) WriteRaw(p ...byte) {
	w.align()
	for _, b := range p {
		w.put(b)
	}
}

// Finalize pads the remaining bits with ones to a byte boundary and hands
// every staged byte to the sink.
func (w *Writer) Finalize() error {
	w.align()
	w.Flush()
	return w.err
}

// Flush hands staged whole bytes to the sink. Partial bits stay pending.
func (w *Writer) Flush() {
	if w.err != nil || w.n == 0 {
		return
	}
	if err := w.sink.Emit(w.scratch[:w.n]); err != nil {
		w.err = err
	}
	w.n = 0
}

func (w *Writer) align() {
	if w.nBits%8 != 0 {
		pad := 8 - w.nBits%8
		w.Write(1<<pad-1, int(pad))
	}
}

func (w *Writer) put(b byte) {
	if w.err != nil {
		return
	}
	if w.n == len(w.scratch) {
		w.Flush()
		if w.err != nil {
			return
		}
	}
	w.scratch[w.n] = b
	w.n++
}
