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

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrShortHeader is returned when fewer bytes than the header needs are available
	ErrShortHeader = errors.New("frame header truncated")
	// ErrNameTooLong is returned when a name does not fit the length prefix
	ErrNameTooLong = errors.New("name longer than 255 bytes")
)

// HeaderLen returns the number of payload bytes the first frame spends on
// the size field and the length-prefixed name.
func HeaderLen(name string) int {
	return SizeLen + NameLenLen + len(name)
}

// AppendHeader appends the size field and the length-prefixed name to dst
func AppendHeader(dst []byte, size uint32, name string) ([]byte, error) {
	if len(name) > MaxNameLen {
		return dst, fmt.Errorf("%w: %d", ErrNameTooLong, len(name))
	}
	dst = binary.LittleEndian.AppendUint32(dst, size)
	dst = append(dst, byte(len(name)))
	return append(dst, name...), nil
}

// PutSize overwrites a size field in place
func PutSize(dst []byte, size uint32) {
	binary.LittleEndian.PutUint32(dst, size)
}

// ParseHeader decodes the size and name at the start of buf and returns the
// number of bytes consumed. It returns ErrShortHeader when buf ends early,
// which lets a receiver wait for the next frame.
func ParseHeader(buf []byte) (size uint32, name string, n int, err error) {
	if len(buf) < SizeLen+NameLenLen {
		return 0, "", 0, ErrShortHeader
	}
	size = binary.LittleEndian.Uint32(buf)
	nameLen := int(buf[SizeLen])
	end := SizeLen + NameLenLen + nameLen
	if len(buf) < end {
		return 0, "", 0, ErrShortHeader
	}
	return size, string(buf[SizeLen+NameLenLen : end]), end, nil
}

// FitsSingleFrame reports whether a payload of size bytes with the given
// name fits one frame of the given capacity, flag included.
func FitsSingleFrame(capacity int, name string, size int64) bool {
	return int64(FlagLen+HeaderLen(name))+size <= int64(capacity)
}

// PayloadFrames returns the number of frames a transfer of size payload
// bytes occupies at the given capacity.
func PayloadFrames(capacity int, name string, size int64) int64 {
	if FitsSingleFrame(capacity, name, size) {
		return 1
	}
	per := int64(capacity - FlagLen)
	total := int64(HeaderLen(name)) + size
	return (total + per - 1) / per
}
