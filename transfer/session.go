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
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/blob"
	"github.com/ZaparooProject/go-snaplink/camera"
	"github.com/ZaparooProject/go-snaplink/codec"
	"github.com/ZaparooProject/go-snaplink/internal/frame"
	"github.com/ZaparooProject/go-snaplink/internal/syncutil"
	"github.com/google/uuid"
)

// errStopped marks production abandoned because Stop was called
var errStopped = errors.New("transfer stopped")

// Request describes one transfer
type Request struct {
	// Source supplies rows for capture kinds
	Source camera.RowSource
	// Blob supplies bytes for KindBufferedBlob
	Blob blob.Reader
	// Name is sent in the header. Empty selects a generated name; for a
	// stream it is the base of every image name.
	Name string
	// Offset and Length select the blob window
	Offset int64
	Length int64
	Kind   Kind
}

// CaptureRequest asks for one encoded frame from src
func CaptureRequest(src camera.RowSource, name string) Request {
	return Request{Kind: KindCaptureOnce, Source: src, Name: name}
}

// StreamRequest asks for frames from src until stopped
func StreamRequest(src camera.RowSource, base string) Request {
	return Request{Kind: KindContinuousStream, Source: src, Name: base}
}

// BlobRequest asks for the whole of r
func BlobRequest(r blob.Reader, name string) Request {
	return Request{Kind: KindBufferedBlob, Blob: r, Name: name, Length: r.Size()}
}

// Status is a point-in-time view of the session manager
type Status struct {
	SessionID string
	Name      string
	Kind      Kind
	State     State
	// Total is the declared payload size, -1 while unknown
	Total     int64
	BytesSent int64
	Frames    int64
	Images    int64
	Active    bool
}

// Result is the terminal report of a session
type Result struct {
	Err       error
	SessionID string
	Name      string
	Outcome   Outcome
	BytesSent int64
	Frames    int64
	Images    int64
}

// Session is one transfer. Counters and the cancel flag are atomics so
// Status and Stop work while a capture holds the producing goroutine.
type Session struct {
	transport snaplink.Transport
	pkt       *Packetizer
	trace     *snaplink.TraceBuffer
	opCancel  context.CancelFunc
	name      atomic.Pointer[string]
	req       Request
	readBuf   []byte
	cfg       Config
	id        uuid.UUID
	offset    int64
	remaining int64
	bytesBase int64
	total     atomic.Int64
	bytesSent atomic.Int64
	frames    atomic.Int64
	images    atomic.Int64
	tickMu    syncutil.Mutex
	opMu      syncutil.Mutex
	state     atomic.Int32
	capacity  int
	cancel    atomic.Bool
	ticking   atomic.Bool
	done      bool
	headerOut bool
	hdrRest   []byte
}

func newSession(t snaplink.Transport, cfg Config, req Request) *Session {
	id := uuid.New()
	s := &Session{
		id:        id,
		req:       req,
		cfg:       cfg,
		transport: t,
		trace:     snaplink.NewTraceBuffer(string(t.Type()), id.String(), cfg.TraceDepth),
	}
	s.total.Store(-1)
	s.setName(req.Name)
	return s
}

// ID is the session's unique identifier
func (s *Session) ID() string {
	return s.id.String()
}

// State is the current state machine position
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		snaplink.Debugf("transfer %s: %s -> %s", s.id, old, st)
	}
}

func (s *Session) setName(name string) {
	s.name.Store(&name)
}

func (s *Session) currentName() string {
	if p := s.name.Load(); p != nil {
		return *p
	}
	return ""
}

// CancelRequested reports whether Stop was called
func (s *Session) CancelRequested() bool {
	return s.cancel.Load()
}

// requestStop sets the cancel flag and aborts any notify in flight
func (s *Session) requestStop() {
	if !s.cancel.Swap(true) {
		snaplink.Debugf("transfer %s: stop requested", s.id)
	}
	s.opMu.Lock()
	if s.opCancel != nil {
		s.opCancel()
	}
	s.opMu.Unlock()
}

// opContext derives the context for one capture or tick. Stop cancels it
// synchronously so no further frame leaves after Stop returns.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(ctx)
	s.opMu.Lock()
	s.opCancel = cancel
	s.opMu.Unlock()
	if s.cancel.Load() {
		cancel()
	}
	return opCtx, func() {
		s.opMu.Lock()
		s.opCancel = nil
		s.opMu.Unlock()
		cancel()
	}
}

func (s *Session) checkCancel(ctx context.Context) error {
	if s.cancel.Load() {
		return errStopped
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errStopped, err)
	}
	return nil
}

// fetchMetadata resolves name, size and send mode. It performs no I/O on
// the transport, so a rejected request sends nothing.
func (s *Session) fetchMetadata(defaultName string) error {
	s.setState(StateFetchMetadata)

	s.capacity = snaplink.FrameCapacity(s.transport.MTU())
	if s.capacity < frame.MinCapacity {
		return fmt.Errorf("%w: MTU %d", snaplink.ErrMTUTooSmall, s.transport.MTU())
	}

	name := s.req.Name
	if name == "" {
		name = defaultName
	}

	switch s.req.Kind {
	case KindCaptureOnce, KindContinuousStream:
		if s.req.Source == nil {
			return fmt.Errorf("%w: capture without a row source", snaplink.ErrInvalidParameter)
		}
		if s.req.Kind == KindContinuousStream {
			name = strings.TrimSuffix(name, filepath.Ext(name))
			if err := checkName(streamName(name, 1)); err != nil {
				return err
			}
		} else if err := checkName(name); err != nil {
			return err
		}
		if q := s.cfg.Quality; q < 0 || q > 100 {
			return fmt.Errorf("%w: quality %d", snaplink.ErrInvalidParameter, q)
		}
		s.setName(name)
		s.setState(StateChunkSend)

	case KindBufferedBlob:
		if s.req.Blob == nil {
			return fmt.Errorf("%w: blob transfer without a reader", snaplink.ErrInvalidParameter)
		}
		if err := checkName(name); err != nil {
			return err
		}
		if s.req.Length > frame.MaxDeclaredSize {
			return fmt.Errorf("%w: %d bytes", snaplink.ErrPayloadTooLarge, s.req.Length)
		}
		if err := blob.CheckWindow(s.req.Blob, s.req.Offset, s.req.Length); err != nil {
			return err
		}
		s.setName(name)
		s.total.Store(s.req.Length)
		s.offset, s.remaining = s.req.Offset, s.req.Length
		s.readBuf = make([]byte, s.capacity-frame.FlagLen)
		if frame.FitsSingleFrame(s.capacity, name, s.req.Length) {
			s.setState(StateSmallSend)
		} else {
			s.setState(StateChunkSend)
		}

	default:
		return fmt.Errorf("%w: kind %d", snaplink.ErrInvalidParameter, s.req.Kind)
	}

	snaplink.Debugf("transfer %s: %s %q total=%d capacity=%d",
		s.id, s.req.Kind, s.currentName(), s.total.Load(), s.capacity)
	return nil
}

func checkName(name string) error {
	if len(name) > frame.MaxNameLen {
		return fmt.Errorf("%w: %d bytes", snaplink.ErrNameTooLong, len(name))
	}
	return nil
}

func streamName(base string, n int) string {
	return fmt.Sprintf("%s_%04d.jpg", base, n)
}

// newPacketizer starts a framed transfer and writes its header
func (s *Session) newPacketizer(ctx context.Context, size uint32, name string) error {
	pkt, err := s.openPacketizer(ctx)
	if err != nil {
		return err
	}
	return pkt.WriteHeader(size, name)
}

// openPacketizer starts a framed transfer with progress accounting wired in
func (s *Session) openPacketizer(ctx context.Context) (*Packetizer, error) {
	pkt, err := NewPacketizer(ctx, s.transport, s.capacity)
	if err != nil {
		return nil, err
	}
	base := s.bytesBase
	pkt.onFlush = func(f []byte) {
		s.frames.Add(1)
		s.bytesSent.Store(base + pkt.BytesSent())
		s.trace.RecordTX(f, frame.Flag(f[0]).String())
	}
	s.pkt = pkt
	return pkt, nil
}

// runCapture encodes one image, or a stream of them, to completion
func (s *Session) runCapture(ctx context.Context) Result {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if s.req.Kind == KindCaptureOnce {
		return s.result(s.captureImage(opCtx, s.currentName()))
	}

	base := s.currentName()
	for i := 1; ; i++ {
		if err := s.captureImage(opCtx, streamName(base, i)); err != nil {
			return s.result(err)
		}
		if s.cfg.MaxStreamImages > 0 && i >= s.cfg.MaxStreamImages {
			return s.result(nil)
		}
		if err := s.pause(opCtx); err != nil {
			return s.result(err)
		}
	}
}

func (s *Session) pause(ctx context.Context) error {
	if s.cfg.StreamInterval <= 0 {
		return s.checkCancel(ctx)
	}
	timer := time.NewTimer(s.cfg.StreamInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return s.checkCancel(ctx)
	case <-timer.C:
		return s.checkCancel(ctx)
	}
}

func (s *Session) captureImage(ctx context.Context, name string) error {
	if err := s.checkCancel(ctx); err != nil {
		return err
	}
	s.setName(name)
	s.setState(StateChunkSend)
	if err := s.newPacketizer(ctx, frame.SizeUnknown, name); err != nil {
		return err
	}

	src := s.req.Source
	f := src.Format()
	enc := codec.NewEncoder(s.pkt)
	if err := enc.Start(f.Width, f.Height, f.Channels, s.cfg.Quality); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}

	stride := f.Stride()
	buf := make([]byte, enc.BandHeight()*stride)
	for more := true; more; {
		if err := s.checkCancel(ctx); err != nil {
			return err
		}
		y, rows := enc.NextRow(), enc.BandRows()
		band := buf[:rows*stride]
		if err := src.ReadRows(ctx, band, y, rows); err != nil {
			if cerr := s.checkCancel(ctx); cerr != nil {
				return cerr
			}
			return fmt.Errorf("read rows %d+%d: %w", y, rows, err)
		}
		var err error
		more, err = enc.AppendBand(codec.PixelBlock{Pix: band, Stride: stride, Y: y, Rows: rows})
		if err != nil {
			return err
		}
	}
	if err := s.checkCancel(ctx); err != nil {
		return err
	}
	if err := enc.Finish(); err != nil {
		return err
	}
	if err := s.pkt.Finalize(); err != nil {
		return err
	}

	s.bytesBase += s.pkt.BytesSent()
	s.images.Add(1)
	snaplink.Debugf("transfer %s: sent %q, %d bytes in %d frames",
		s.id, name, s.pkt.BytesSent(), s.pkt.Frames())
	return nil
}

// tick sends exactly one frame of a blob transfer. It reports the result
// once the session is over.
func (s *Session) tick(ctx context.Context) (Result, bool) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.done {
		return Result{}, false
	}

	s.ticking.Store(true)
	res, over := s.sendNextFrame(ctx)
	s.ticking.Store(false)
	// A Stop that raced with this tick saw ticking set and left the
	// session to us.
	if !over && s.cancel.Load() {
		return s.result(errStopped), true
	}
	return res, over
}

func (s *Session) sendNextFrame(ctx context.Context) (Result, bool) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.checkCancel(opCtx); err != nil {
		return s.result(err), true
	}
	// A blob header is staged and emitted like payload, so a long name
	// still costs one frame per tick.
	if !s.headerOut {
		pkt, err := s.openPacketizer(opCtx)
		if err != nil {
			return s.result(err), true
		}
		if s.hdrRest, err = pkt.StageHeader(uint32(s.req.Length), s.currentName()); err != nil {
			return s.result(err), true
		}
		s.headerOut = true
	}
	s.pkt.bind(opCtx)
	before := s.pkt.Frames()

	// Each Emit below is bounded by the frame's free space, so it flushes
	// at most one full frame.
	for s.pkt.Frames() == before {
		if len(s.hdrRest) > 0 {
			n := min(len(s.hdrRest), s.frameRoom())
			if err := s.pkt.Emit(s.hdrRest[:n]); err != nil {
				return s.emitFailed(opCtx, err), true
			}
			s.hdrRest = s.hdrRest[n:]
			continue
		}

		if s.remaining == 0 {
			if err := s.pkt.Finalize(); err != nil {
				return s.result(err), true
			}
			s.images.Add(1)
			return s.result(nil), true
		}

		chunk := s.readBuf[:min(s.remaining, int64(s.frameRoom()))]
		n, err := s.req.Blob.ReadAt(chunk, s.offset)
		if n < len(chunk) {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return s.result(fmt.Errorf("read blob at %d: %w", s.offset, err)), true
		}
		if err := s.pkt.Emit(chunk); err != nil {
			return s.emitFailed(opCtx, err), true
		}
		s.offset += int64(len(chunk))
		s.remaining -= int64(len(chunk))
	}
	return Result{}, false
}

// frameRoom is how much can be emitted without flushing more than one
// frame: the free space, or a whole frame when the current one is full.
func (s *Session) frameRoom() int {
	if room := s.pkt.Room(); room > 0 {
		return room
	}
	return s.pkt.Capacity() - frame.FlagLen
}

func (s *Session) emitFailed(ctx context.Context, err error) Result {
	if cerr := s.checkCancel(ctx); cerr != nil {
		return s.result(cerr)
	}
	return s.result(err)
}

// cancelIdle ends a blob session between ticks. A tick in progress
// observes the cancel flag itself, so nothing is done then.
func (s *Session) cancelIdle() (Result, bool) {
	if s.ticking.Load() {
		return Result{}, false
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.done {
		return Result{}, false
	}
	return s.result(errStopped), true
}

// result closes the session and classifies err
func (s *Session) result(err error) Result {
	s.done = true
	s.setState(StateIdle)

	res := Result{
		SessionID: s.ID(),
		Name:      s.currentName(),
		BytesSent: s.bytesSent.Load(),
		Frames:    s.frames.Load(),
		Images:    s.images.Load(),
	}
	switch {
	case err == nil:
		res.Outcome = OutcomeCompleted
	case errors.Is(err, errStopped), errors.Is(err, context.Canceled), s.cancel.Load():
		res.Outcome = OutcomeCancelled
	default:
		res.Outcome = OutcomeFailed
		res.Err = err
		if snaplink.GetTrace(err) == nil {
			res.Err = s.trace.WrapError(err)
		}
	}
	snaplink.Debugf("transfer %s: %s after %d frames, %d bytes (err=%v)",
		s.id, res.Outcome, res.Frames, res.BytesSent, err)
	return res
}

func (s *Session) status() Status {
	return Status{
		SessionID: s.ID(),
		Name:      s.currentName(),
		Kind:      s.req.Kind,
		State:     s.State(),
		Total:     s.total.Load(),
		BytesSent: s.bytesSent.Load(),
		Frames:    s.frames.Load(),
		Images:    s.images.Load(),
		Active:    true,
	}
}
