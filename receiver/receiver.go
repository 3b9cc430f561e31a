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

// Package receiver reassembles notify frames into named payloads on the
// host side of the link.
package receiver

import (
	"errors"
	"fmt"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/internal/frame"
)

var (
	// ErrEmptyFrame is returned for a frame without a flag byte
	ErrEmptyFrame = errors.New("empty frame")
	// ErrInvalidFlag is returned for a flag outside SMALL..END
	ErrInvalidFlag = errors.New("invalid frame flag")
	// ErrUnexpectedFrame is returned for MIDDLE or END with no transfer open
	ErrUnexpectedFrame = errors.New("frame outside a transfer")
	// ErrSizeMismatch is returned when the payload disagrees with the header
	ErrSizeMismatch = errors.New("payload size does not match header")
)

// Transfer is one reassembled payload
type Transfer struct {
	Name string
	Data []byte
	// Size is the declared size; frame.SizeUnknown for streamed captures
	Size     uint32
	Frames   int
	Complete bool
}

// ParseFrame splits a notify frame into its flag and payload
func ParseFrame(b []byte) (frame.Flag, []byte, error) {
	if len(b) < frame.FlagLen {
		return 0, nil, ErrEmptyFrame
	}
	flag := frame.Flag(b[0])
	if !flag.Valid() {
		return flag, nil, fmt.Errorf("%w: %#02x", ErrInvalidFlag, b[0])
	}
	return flag, b[frame.FlagLen:], nil
}

type partial struct {
	raw       []byte
	name      string
	size      uint32
	headerLen int
	frames    int
}

func (p *partial) parseHeader() bool {
	if p.headerLen > 0 {
		return true
	}
	size, name, n, err := frame.ParseHeader(p.raw)
	if err != nil {
		return false
	}
	p.size, p.name, p.headerLen = size, name, n
	return true
}

func (p *partial) transfer(complete bool) Transfer {
	t := Transfer{Name: p.name, Size: p.size, Frames: p.frames, Complete: complete}
	if p.headerLen > 0 {
		t.Data = p.raw[p.headerLen:]
	}
	return t
}

// Reassembler turns a frame sequence back into transfers. A transfer cut
// short by a new START or SMALL, or by Abort, is delivered incomplete.
type Reassembler struct {
	onTransfer func(Transfer)
	cur        *partial
}

// NewReassembler calls onTransfer for every finished or truncated transfer
func NewReassembler(onTransfer func(Transfer)) *Reassembler {
	return &Reassembler{onTransfer: onTransfer}
}

// InProgress reports whether a transfer is open
func (r *Reassembler) InProgress() bool {
	return r.cur != nil
}

// Abort delivers the open transfer, if any, as incomplete
func (r *Reassembler) Abort() {
	if r.cur == nil {
		return
	}
	t := r.cur.transfer(false)
	r.cur = nil
	snaplink.Debugf("receiver: %q truncated after %d frames", t.Name, t.Frames)
	r.onTransfer(t)
}

// Feed consumes one frame
func (r *Reassembler) Feed(b []byte) error {
	flag, payload, err := ParseFrame(b)
	if err != nil {
		return err
	}

	switch flag {
	case frame.FlagSmall, frame.FlagStart:
		r.Abort()
		r.cur = &partial{}
	case frame.FlagMiddle, frame.FlagEnd:
		if r.cur == nil {
			return fmt.Errorf("%w: %s", ErrUnexpectedFrame, flag)
		}
	}

	p := r.cur
	p.raw = append(p.raw, payload...)
	p.frames++
	hasHeader := p.parseHeader()

	if hasHeader && p.size != frame.SizeUnknown && int64(len(p.raw)-p.headerLen) > int64(p.size) {
		r.cur = nil
		return fmt.Errorf("%w: %q has more than %d bytes", ErrSizeMismatch, p.name, p.size)
	}
	if !flag.Terminal() {
		return nil
	}

	r.cur = nil
	if !hasHeader {
		return fmt.Errorf("%w: transfer ended inside its header", frame.ErrShortHeader)
	}
	t := p.transfer(true)
	if t.Size != frame.SizeUnknown && int64(len(t.Data)) != int64(t.Size) {
		return fmt.Errorf("%w: %q declared %d, got %d", ErrSizeMismatch, t.Name, t.Size, len(t.Data))
	}
	r.onTransfer(t)
	return nil
}
