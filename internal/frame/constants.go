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

// Package frame holds the wire format shared by the packetizer, the
// receiver and the serial bridge transport.
package frame

// Flag is the first byte of every notify frame
type Flag byte

// Notify frame flags
const (
	FlagSmall  Flag = 0 // whole payload in one frame
	FlagStart  Flag = 1 // first of several, carries the header
	FlagMiddle Flag = 2 // raw payload only
	FlagEnd    Flag = 3 // raw payload only, final
)

func (f Flag) String() string {
	switch f {
	case FlagSmall:
		return "SMALL"
	case FlagStart:
		return "START"
	case FlagMiddle:
		return "MIDDLE"
	case FlagEnd:
		return "END"
	default:
		return "INVALID"
	}
}

// Valid reports whether f is one of the four defined flags
func (f Flag) Valid() bool {
	return f <= FlagEnd
}

// Terminal reports whether f ends a transfer
func (f Flag) Terminal() bool {
	return f == FlagSmall || f == FlagEnd
}

// Header layout of the first frame's payload
const (
	FlagLen    = 1   // flag byte at offset 0
	SizeLen    = 4   // total size, little-endian
	NameLenLen = 1   // name length prefix
	MaxNameLen = 255 // longest name the prefix can describe

	// SizeUnknown marks a transfer whose size was not known when the first
	// frame went out (streamed captures).
	SizeUnknown uint32 = 0xFFFFFFFF
	// MaxDeclaredSize is the largest size a transfer may declare.
	MaxDeclaredSize = int64(SizeUnknown) - 1
)

// MinCapacity is the smallest frame capacity accepted: flag plus one byte.
const MinCapacity = FlagLen + 1

// Serial bridge framing: SOF CMD LEN_L LEN_H DATA... CHK
const (
	BridgeSOF       = 0x7E
	BridgeHeaderLen = 4 // SOF + CMD + 16-bit length
	BridgeMaxData   = 1024
)

// Serial bridge commands (host to bridge)
const (
	BridgeCmdNotify   = 0x01
	BridgeCmdQueryMTU = 0x02
	BridgeCmdStatus   = 0x03
)

// Serial bridge status codes (bridge to host, in the CMD position)
const (
	BridgeStatusOK           = 0x00
	BridgeStatusBusy         = 0x01
	BridgeStatusNotConnected = 0x02
	BridgeStatusBadFrame     = 0x03
)
