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


package testing

import (
	"errors"
	"sync"

	"github.com/ZaparooProject/go-snaplink/internal/frame"
)

// notifyOverhead is the ATT opcode + handle prefix the radio adds.
const notifyOverhead = 3

// VirtualBridge simulates a serial-attached radio co-processor. Bytes the
// host writes are parsed as bridge frames; replies queue up for Read. Notify
// payloads accepted by the simulated link are recorded in order.
//
// Read never blocks: it returns 0 bytes when no reply is pending, the same
// way a serial port behaves when its read timeout elapses.
type VirtualBridge struct {
	rx             []byte
	tx             []byte
	noise          []byte
	notified       [][]byte
	commands       []byte
	mtu            int
	busyLeft       int
	dropAfter      int
	corruptReplies int
	mu             sync.Mutex
	connected      bool
	silent         bool
}

// NewVirtualBridge creates a bridge whose peer is connected at the given MTU.
func NewVirtualBridge(mtu int) *VirtualBridge {
	return &VirtualBridge{
		mtu:       mtu,
		connected: true,
		dropAfter: -1,
	}
}

// Write feeds host bytes to the bridge. Partial frames are kept until the
// rest arrives.
func (v *VirtualBridge) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rx = append(v.rx, p...)
	for len(v.rx) > 0 {
		f, n, err := frame.ParseBridge(v.rx)
		v.rx = v.rx[n:]
		switch {
		case err == nil:
			v.handle(f)
		case errors.Is(err, frame.ErrIncomplete):
			return len(p), nil
		case errors.Is(err, frame.ErrBadChecksum):
			v.commands = append(v.commands, 0)
			v.reply(frame.BridgeCmdStatus, []byte{frame.BridgeStatusBadFrame})
		}
	}
	return len(p), nil
}

// Read drains pending reply bytes.
func (v *VirtualBridge) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := copy(p, v.tx)
	v.tx = v.tx[n:]
	return n, nil
}

func (v *VirtualBridge) handle(f frame.BridgeFrame) {
	v.commands = append(v.commands, f.Cmd)
	switch f.Cmd {
	case frame.BridgeCmdNotify:
		v.reply(frame.BridgeCmdStatus, []byte{v.notify(f.Data)})
	case frame.BridgeCmdQueryMTU:
		link := byte(0)
		if v.connected {
			link = 1
		}
		v.reply(frame.BridgeCmdQueryMTU, []byte{byte(v.mtu), byte(v.mtu >> 8), link})
	default:
		v.reply(frame.BridgeCmdStatus, []byte{frame.BridgeStatusBadFrame})
	}
}

func (v *VirtualBridge) notify(data []byte) byte {
	if v.dropAfter >= 0 && len(v.notified) >= v.dropAfter {
		v.connected = false
	}
	switch {
	case !v.connected:
		return frame.BridgeStatusNotConnected
	case v.busyLeft > 0:
		v.busyLeft--
		return frame.BridgeStatusBusy
	case len(data) > v.mtu-notifyOverhead:
		return frame.BridgeStatusBadFrame
	}
	v.notified = append(v.notified, append([]byte(nil), data...))
	return frame.BridgeStatusOK
}

func (v *VirtualBridge) reply(cmd byte, data []byte) {
	if v.silent {
		return
	}
	enc, err := frame.EncodeBridge(cmd, data)
	if err != nil {
		return
	}
	if v.corruptReplies > 0 {
		v.corruptReplies--
		enc[len(enc)-1] ^= 0xFF
	}
	v.tx = append(v.tx, v.noise...)
	v.noise = nil
	v.tx = append(v.tx, enc...)
}

// Notified returns copies of every payload the link accepted.
func (v *VirtualBridge) Notified() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.notified))
	copy(out, v.notified)
	return out
}

// Commands returns the command byte of every frame received, with 0 for
// frames that failed their checksum.
func (v *VirtualBridge) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// SetBusy makes the next n notifies report a full TX queue.
func (v *VirtualBridge) SetBusy(n int) {
	v.mu.Lock()
	v.busyLeft = n
	v.mu.Unlock()
}

// SetConnected sets whether a central is subscribed.
func (v *VirtualBridge) SetConnected(connected bool) {
	v.mu.Lock()
	v.connected = connected
	v.mu.Unlock()
}

// DisconnectAfter drops the central once n payloads have been accepted.
func (v *VirtualBridge) DisconnectAfter(n int) {
	v.mu.Lock()
	v.dropAfter = n
	v.mu.Unlock()
}

// SetMTU changes the negotiated MTU reported to MTU queries.
func (v *VirtualBridge) SetMTU(mtu int) {
	v.mu.Lock()
	v.mtu = mtu
	v.mu.Unlock()
}

// CorruptReplies flips the checksum of the next n replies.
func (v *VirtualBridge) CorruptReplies(n int) {
	v.mu.Lock()
	v.corruptReplies = n
	v.mu.Unlock()
}

// SetSilent stops the bridge from replying at all.
func (v *VirtualBridge) SetSilent(silent bool) {
	v.mu.Lock()
	v.silent = silent
	v.mu.Unlock()
}

// InjectNoise prepends garbage to the next reply.
func (v *VirtualBridge) InjectNoise(b []byte) {
	v.mu.Lock()
	v.noise = append(v.noise, b...)
	v.mu.Unlock()
}
