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
	"errors"
	"fmt"
)

var (
	// ErrNoSOF is returned when a buffer holds no start-of-frame byte
	ErrNoSOF = errors.New("no start of frame")
	// ErrIncomplete is returned when more bytes are needed to finish a frame
	ErrIncomplete = errors.New("incomplete bridge frame")
	// ErrBadChecksum is returned when a bridge frame fails its checksum
	ErrBadChecksum = errors.New("bridge frame checksum mismatch")
	// ErrDataTooLong is returned when a bridge payload exceeds BridgeMaxData
	ErrDataTooLong = errors.New("bridge frame data too long")
)

// BridgeFrame is one decoded serial bridge frame
type BridgeFrame struct {
	Data []byte
	Cmd  byte
}

// BridgeCmdName names a bridge command byte for traces and logs
func BridgeCmdName(cmd byte) string {
	switch cmd {
	case BridgeCmdNotify:
		return "notify"
	case BridgeCmdQueryMTU:
		return "query-mtu"
	case BridgeCmdStatus:
		return "status"
	default:
		return fmt.Sprintf("cmd %#02x", cmd)
	}
}

// EncodeBridge builds SOF CMD LEN_L LEN_H DATA CHK. The checksum covers
// everything after SOF.
func EncodeBridge(cmd byte, data []byte) ([]byte, error) {
	if len(data) > BridgeMaxData {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLong, len(data))
	}
	out := make([]byte, 0, BridgeHeaderLen+len(data)+1)
	out = append(out, BridgeSOF, cmd, byte(len(data)), byte(len(data)>>8))
	out = append(out, data...)
	return append(out, CalculateChecksum(out[1:])), nil
}

// ParseBridge decodes the first bridge frame in buf. It skips noise before
// SOF and reports how many bytes of buf were consumed, including skipped
// noise, so a caller can advance its read buffer.
func ParseBridge(buf []byte) (BridgeFrame, int, error) {
	start := -1
	for i, b := range buf {
		if b == BridgeSOF {
			start = i
			break
		}
	}
	if start < 0 {
		return BridgeFrame{}, len(buf), ErrNoSOF
	}
	if len(buf)-start < BridgeHeaderLen {
		return BridgeFrame{}, start, ErrIncomplete
	}

	dataLen := int(buf[start+2]) | int(buf[start+3])<<8
	if dataLen > BridgeMaxData {
		// Not a real frame, drop the SOF so the caller resyncs past it
		return BridgeFrame{}, start + 1, fmt.Errorf("%w: %d bytes", ErrDataTooLong, dataLen)
	}
	end := start + BridgeHeaderLen + dataLen + 1
	if len(buf) < end {
		return BridgeFrame{}, start, ErrIncomplete
	}
	if ValidateFrameChecksum(buf, start+1, end) {
		return BridgeFrame{}, end, ErrBadChecksum
	}

	data := make([]byte, dataLen)
	copy(data, buf[start+BridgeHeaderLen:end-1])
	return BridgeFrame{Cmd: buf[start+1], Data: data}, end, nil
}

// ValidateFrameChecksum reports true when buf[start:end], checksum byte
// included, does not sum to zero. Out of range bounds count as invalid.
func ValidateFrameChecksum(buf []byte, start, end int) bool {
	if start < 0 || end < 0 || start > end || end > len(buf) {
		return true
	}

	chk := byte(0)
	for _, b := range buf[start:end] {
		chk += b
	}

	return chk != 0
}
