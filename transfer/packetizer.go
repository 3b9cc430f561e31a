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

package transfer

import (
	"context"
	"fmt"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/internal/frame"
)

type packetizerState int

const (
	stateFirst packetizerState = iota
	stateContinuing
	stateFinalized
)

// Packetizer slices a byte stream into notify frames. Byte 0 of every
// frame is the flag; the buffer is flushed only when it is full and more
// bytes need room, so a payload that fits one frame is always sent SMALL.
type Packetizer struct {
	ctx       context.Context //nolint:containedctx // rebound per tick by the session
	transport snaplink.Transport
	onFlush   func(frame []byte)
	err       error
	buf       []byte
	n         int
	frames    int64
	flushed   int64
	headerLen int
	state     packetizerState
	sizeKnown bool
}

// NewPacketizer returns a packetizer writing frames of at most capacity
// bytes, flag included, to t.
func NewPacketizer(ctx context.Context, t snaplink.Transport, capacity int) (*Packetizer, error) {
	if capacity < frame.MinCapacity {
		return nil, fmt.Errorf("%w: capacity %d", snaplink.ErrMTUTooSmall, capacity)
	}
	return &Packetizer{
		ctx:       ctx,
		transport: t,
		buf:       make([]byte, capacity),
		n:         frame.FlagLen,
		sizeKnown: true,
	}, nil
}

// WriteHeader emits the size field and length-prefixed name. It must be
// the first thing written. SizeUnknown defers the size: if the transfer
// ends up in a single frame the real size is patched in before sending.
func (p *Packetizer) WriteHeader(size uint32, name string) error {
	hdr, err := p.StageHeader(size, name)
	if err != nil {
		return err
	}
	return p.Emit(hdr)
}

// StageHeader records the header and returns its bytes without emitting
// them. The caller must Emit them before any payload; a header longer than
// one frame can then be spread over several calls.
func (p *Packetizer) StageHeader(size uint32, name string) ([]byte, error) {
	if p.state != stateFirst || p.n != frame.FlagLen || p.headerLen > 0 {
		return nil, fmt.Errorf("%w: header after payload", snaplink.ErrInvalidParameter)
	}
	hdr, err := frame.AppendHeader(make([]byte, 0, frame.HeaderLen(name)), size, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", snaplink.ErrNameTooLong, err)
	}
	p.headerLen = len(hdr)
	p.sizeKnown = size != frame.SizeUnknown
	return hdr, nil
}

// Emit copies b into the current frame, flushing full frames as needed
func (p *Packetizer) Emit(b []byte) error {
	if p.state == stateFinalized {
		return snaplink.ErrSinkFinalized
	}
	if p.err != nil {
		return p.err
	}
	for len(b) > 0 {
		if p.n == len(p.buf) {
			flag := frame.FlagMiddle
			if p.state == stateFirst {
				flag = frame.FlagStart
			}
			if err := p.flush(flag); err != nil {
				return err
			}
		}
		c := copy(p.buf[p.n:], b)
		p.n += c
		b = b[c:]
	}
	return nil
}

// Finalize sends whatever is buffered as the terminal frame: SMALL when
// nothing was flushed yet, END otherwise. It always sends a frame.
func (p *Packetizer) Finalize() error {
	if p.state == stateFinalized {
		return snaplink.ErrSinkFinalized
	}
	if p.err != nil {
		return p.err
	}
	flag := frame.FlagEnd
	if p.state == stateFirst {
		flag = frame.FlagSmall
		if !p.sizeKnown && p.headerLen > 0 {
			frame.PutSize(p.buf[frame.FlagLen:], uint32(p.n-frame.FlagLen-p.headerLen))
		}
	}
	if err := p.flush(flag); err != nil {
		return err
	}
	p.state = stateFinalized
	return nil
}

func (p *Packetizer) flush(flag frame.Flag) error {
	p.buf[0] = byte(flag)
	out := p.buf[:p.n]
	if err := p.transport.Notify(p.ctx, out); err != nil {
		p.err = fmt.Errorf("notify %s frame %d: %w", flag, p.frames, err)
		return p.err
	}
	p.frames++
	p.flushed += int64(p.n - frame.FlagLen)
	if p.onFlush != nil {
		p.onFlush(out)
	}
	p.n = frame.FlagLen
	if p.state == stateFirst {
		p.state = stateContinuing
	}
	return nil
}

// Frames is the number of frames sent
func (p *Packetizer) Frames() int64 {
	return p.frames
}

// BytesSent is the number of payload bytes sent, header excluded
func (p *Packetizer) BytesSent() int64 {
	return max(p.flushed-int64(p.headerLen), 0)
}

// Buffered is the number of bytes waiting in the current frame
func (p *Packetizer) Buffered() int {
	return p.n - frame.FlagLen
}

// Room is the free space left in the current frame
func (p *Packetizer) Room() int {
	return len(p.buf) - p.n
}

// Capacity is the frame size, flag included
func (p *Packetizer) Capacity() int {
	return len(p.buf)
}

// Finalized reports whether the terminal frame was sent
func (p *Packetizer) Finalized() bool {
	return p.state == stateFinalized
}

func (p *Packetizer) bind(ctx context.Context) {
	p.ctx = ctx
}
