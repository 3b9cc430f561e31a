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

// Package blob exposes pre-buffered payloads addressed by offset and
// length.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	snaplink "github.com/ZaparooProject/go-snaplink"
)

// ErrOutOfRange is returned when a window falls outside the blob
var ErrOutOfRange = snaplink.ErrBlobOutOfRange

// Reader is a sized random-access payload
type Reader interface {
	io.ReaderAt
	Size() int64
}

// CheckWindow validates [off, off+length) against r
func CheckWindow(r Reader, off, length int64) error {
	if off < 0 || length < 0 || off > r.Size() || length > r.Size()-off {
		return fmt.Errorf("%w: [%d,+%d) of %d", ErrOutOfRange, off, length, r.Size())
	}
	return nil
}

// Memory is an in-memory blob
type Memory struct {
	*bytes.Reader
}

// NewMemory wraps data without copying it
func NewMemory(data []byte) *Memory {
	return &Memory{Reader: bytes.NewReader(data)}
}

// File is a blob backed by an open file
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens path and records its size
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	return &File{f: f, size: info.Size()}, nil
}

// ReadAt reads from the file
func (b *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := b.f.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("read blob at %d: %w", off, err)
	}
	return n, err
}

// Size is the file size at open time
func (b *File) Size() int64 { return b.size }

// Name is the file's base path as opened
func (b *File) Name() string { return b.f.Name() }

// Close closes the file
func (b *File) Close() error { return b.f.Close() }
