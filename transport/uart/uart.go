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


// Package uart sends notify frames through a serial-attached radio
// co-processor. Every host request is a bridge frame
//
//	SOF(0x7E) CMD LEN_L LEN_H DATA... CHK
//
// and the bridge answers each one before the next is sent: a Notify with a
// one-byte status, a QueryMTU with the negotiated MTU and link state.
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/internal/frame"
	"github.com/ZaparooProject/go-snaplink/internal/syncutil"
	"go.bug.st/serial"
)

// DefaultBaudRate is the bridge firmware's default line rate.
const DefaultBaudRate = 115200

// mtuReplyLen is MTU_L MTU_H LINK.
const mtuReplyLen = 3

// traceDepth is the number of requests and replies kept for diagnostics
const traceDepth = 16

// Transport implements snaplink.Transport over a serial bridge.
type Transport struct {
	port         serial.Port
	trace        *snaplink.TraceBuffer
	portName     string
	rx           []byte
	replyTimeout time.Duration
	mtu          atomic.Int32
	linked       atomic.Bool
	mu           syncutil.Mutex
	closed       bool
	stale        bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readTimeout is the per-Read poll interval. Windows USB-serial drivers
// need the longer value to return partial reads reliably.
func readTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName at DefaultBaudRate and queries the link MTU.
func New(portName string) (*Transport, error) {
	return NewWithBaud(portName, DefaultBaudRate)
}

// NewWithBaud opens portName at the given line rate and queries the link MTU.
func NewWithBaud(portName string, baud int) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already open port. It drops stale input and asks the
// bridge for the current MTU before returning.
func NewWithPort(port serial.Port, portName string) (*Transport, error) {
	t := &Transport{
		port:         port,
		portName:     portName,
		replyTimeout: snaplink.BridgeReplyTimeout,
		trace:        snaplink.NewTraceBuffer("uart", portName, traceDepth),
	}
	t.mtu.Store(snaplink.DefaultMTU)

	if err := port.ResetInputBuffer(); err != nil {
		snaplink.Debugf("uart %s: reset input buffer: %v", portName, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*t.replyTimeout)
	defer cancel()
	if _, err := t.QueryMTU(ctx); err != nil {
		return nil, fmt.Errorf("bridge on %s did not answer MTU query: %w", portName, err)
	}
	return t, nil
}

// SetReplyTimeout bounds how long a request waits for the bridge's answer.
func (t *Transport) SetReplyTimeout(timeout time.Duration) {
	t.mu.Lock()
	t.replyTimeout = timeout
	t.mu.Unlock()
}

// QueryMTU asks the bridge for the negotiated MTU and whether a central is
// subscribed. The answer also refreshes MTU().
func (t *Transport) QueryMTU(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	reply, err := t.exchange(ctx, frame.BridgeCmdQueryMTU, nil)
	if err != nil {
		return 0, err
	}
	if len(reply.Data) < mtuReplyLen {
		return 0, snaplink.NewInvalidResponseError("QueryMTU", t.portName)
	}

	mtu := int(reply.Data[0]) | int(reply.Data[1])<<8
	if mtu < snaplink.DefaultMTU || mtu > snaplink.MaxMTU {
		return 0, &snaplink.TransportError{
			Op: "QueryMTU", Port: t.portName,
			Err:  fmt.Errorf("%w: bridge reported %d", snaplink.ErrInvalidResponse, mtu),
			Type: snaplink.ErrorTypePermanent,
		}
	}
	t.mtu.Store(int32(mtu)) //nolint:gosec // bounded by MaxMTU above
	t.linked.Store(reply.Data[2] != 0)
	snaplink.Debugf("uart %s: MTU %d, linked=%v", t.portName, mtu, reply.Data[2] != 0)
	return mtu, nil
}

// Notify hands one frame to the bridge and maps its status reply.
func (t *Transport) Notify(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return snaplink.NewTransportError("Notify", t.portName, snaplink.ErrTransportClosed, snaplink.ErrorTypePermanent)
	}
	if capacity := snaplink.FrameCapacity(int(t.mtu.Load())); len(data) > capacity {
		return fmt.Errorf("frame of %d bytes exceeds capacity %d: %w", len(data), capacity, snaplink.ErrInvalidParameter)
	}

	reply, err := t.exchange(ctx, frame.BridgeCmdNotify, data)
	if err != nil {
		return t.trace.WrapError(ambiguous(err))
	}
	if len(reply.Data) < 1 {
		return t.trace.WrapError(snaplink.NewInvalidResponseError("Notify", t.portName))
	}

	switch reply.Data[0] {
	case frame.BridgeStatusOK:
		t.linked.Store(true)
		return nil
	case frame.BridgeStatusBusy:
		return snaplink.NewBusyError("Notify", t.portName)
	case frame.BridgeStatusNotConnected:
		t.linked.Store(false)
		return snaplink.NewNotConnectedError("Notify", t.portName)
	case frame.BridgeStatusBadFrame:
		// The bridge rejected the frame without sending it, so resending is safe
		return snaplink.NewFrameCorruptedError("Notify", t.portName)
	default:
		return t.trace.WrapError(snaplink.NewInvalidResponseError("Notify", t.portName))
	}
}

// ambiguous marks reply failures permanent: without a status the frame may
// already be on air, and a resend would duplicate it.
func ambiguous(err error) error {
	var te *snaplink.TransportError
	if errors.As(err, &te) && te.Retryable {
		return &snaplink.TransportError{
			Op: te.Op, Port: te.Port, Err: te.Err,
			Type: snaplink.ErrorTypePermanent,
		}
	}
	return err
}

// exchange writes one request and waits for the reply of the matching kind.
// Callers hold t.mu.
func (t *Transport) exchange(ctx context.Context, cmd byte, data []byte) (frame.BridgeFrame, error) {
	req, err := frame.EncodeBridge(cmd, data)
	if err != nil {
		return frame.BridgeFrame{}, fmt.Errorf("encode bridge frame: %w", err)
	}

	if t.stale {
		// A reply that missed its deadline may still arrive; drop it so it
		// is not taken as the answer to this request.
		if err := t.port.ResetInputBuffer(); err != nil {
			snaplink.Debugf("uart %s: reset input buffer: %v", t.portName, err)
		}
		t.rx = t.rx[:0]
		t.stale = false
	}

	t.trace.RecordTX(req, frame.BridgeCmdName(cmd))
	n, err := t.port.Write(req)
	if err != nil {
		return frame.BridgeFrame{}, fmt.Errorf("UART write failed: %w", err)
	} else if n != len(req) {
		return frame.BridgeFrame{}, snaplink.NewTransportError("write", t.portName,
			snaplink.ErrTransportWrite, snaplink.ErrorTypeTransient)
	}
	if err := t.drainWithRetry("request"); err != nil {
		return frame.BridgeFrame{}, err
	}

	want := byte(frame.BridgeCmdStatus)
	if cmd == frame.BridgeCmdQueryMTU {
		want = frame.BridgeCmdQueryMTU
	}
	reply, err := t.awaitReply(ctx, want)
	if err != nil {
		t.stale = true
	}
	return reply, err
}

func (t *Transport) awaitReply(ctx context.Context, want byte) (frame.BridgeFrame, error) {
	deadline := time.Now().Add(t.replyTimeout)
	buf := make([]byte, 256)

	for {
		reply, ok, err := t.takeFrame()
		if err != nil {
			return frame.BridgeFrame{}, err
		}
		if ok {
			t.trace.RecordRX(reply.Data, frame.BridgeCmdName(reply.Cmd))
			if reply.Cmd == want {
				return reply, nil
			}
			snaplink.Debugf("uart %s: dropping unexpected reply %#02x", t.portName, reply.Cmd)
			continue
		}

		if err := ctx.Err(); err != nil {
			return frame.BridgeFrame{}, fmt.Errorf("waiting for bridge reply: %w", err)
		}
		if time.Now().After(deadline) {
			return frame.BridgeFrame{}, snaplink.NewTimeoutError("awaitReply", t.portName)
		}

		n, err := t.port.Read(buf)
		if err != nil {
			return frame.BridgeFrame{}, snaplink.NewTransportError("read", t.portName,
				fmt.Errorf("%w: %w", snaplink.ErrTransportRead, err), snaplink.ErrorTypeTransient)
		}
		if n == 0 {
			// Read timeout elapsed without data
			continue
		}
		t.rx = append(t.rx, buf[:n]...)
	}
}

// takeFrame pops the next complete frame from the receive buffer, discarding
// line noise. ok is false when more bytes are needed.
func (t *Transport) takeFrame() (reply frame.BridgeFrame, ok bool, err error) {
	for len(t.rx) > 0 {
		f, n, parseErr := frame.ParseBridge(t.rx)
		t.rx = t.rx[n:]
		switch {
		case parseErr == nil:
			return f, true, nil
		case errors.Is(parseErr, frame.ErrIncomplete):
			return frame.BridgeFrame{}, false, nil
		case errors.Is(parseErr, frame.ErrBadChecksum):
			t.trace.RecordRX(nil, "bad checksum")
			return frame.BridgeFrame{}, false, snaplink.NewChecksumMismatchError("awaitReply", t.portName)
		}
	}
	return frame.BridgeFrame{}, false, nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for the request to leave the UART, retrying drains
// interrupted by signals.
func (t *Transport) drainWithRetry(operation string) error {
	baseDelay := 2 * time.Millisecond

	for attempt := range snaplink.BridgeDrainRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < snaplink.BridgeDrainRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}
		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, snaplink.BridgeDrainRetries)
}

// MTU returns the MTU reported by the last query
func (t *Transport) MTU() int {
	return int(t.mtu.Load())
}

// Linked reports whether the bridge last said a central was subscribed.
func (t *Transport) Linked() bool {
	return t.linked.Load()
}

// IsConnected returns true while the serial port is open. Whether a central
// is listening is reported per notify.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil && !t.closed
}

// Close closes the serial port
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() snaplink.TransportType {
	return snaplink.TransportUART
}

var _ snaplink.Transport = (*Transport)(nil)
