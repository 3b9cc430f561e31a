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

// Package snaplink holds the transport contract, error classification and
// retry policy shared by the camera-to-phone transfer stack.
package snaplink

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-snaplink/internal/syncutil"
)

// Transport is the notify channel towards the paired host.
// It can be implemented by a serial radio bridge, an MQTT bench bridge or a
// native radio stack.
type Transport interface {
	// Notify sends one frame. It returns an error wrapping ErrTransportBusy
	// when the link's TX queue is full and ErrNotConnected when no peer is
	// subscribed. Notify never splits a frame.
	Notify(ctx context.Context, frame []byte) error

	// MTU returns the currently negotiated ATT MTU
	MTU() int

	// IsConnected returns true if a peer is connected and subscribed
	IsConnected() bool

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents a serial-attached radio bridge.
	TransportUART TransportType = "uart"
	// TransportMQTT represents an MQTT bench bridge.
	TransportMQTT TransportType = "mqtt"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// FrameCapacity returns the usable frame size for a negotiated MTU,
// flag byte included.
func FrameCapacity(mtu int) int {
	return mtu - NotifyOverhead
}

// TransportWithRetry wraps a Transport and retries busy notifies
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = NotifyRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// Notify sends a frame, retrying while the link reports busy. Cancelling ctx
// ends the retry loop at the next backoff.
func (t *TransportWithRetry) Notify(ctx context.Context, frame []byte) error {
	err := RetryWithConfig(ctx, t.config, func() error {
		if !t.transport.IsConnected() {
			return NewNotConnectedError("Notify", string(t.transport.Type()))
		}
		err := t.transport.Notify(ctx, frame)
		if err == nil {
			return nil
		}
		return &TransportError{
			Op:        "Notify",
			Err:       err,
			Type:      classify(err),
			Retryable: IsRetryable(err),
		}
	})
	if err != nil {
		return fmt.Errorf("notify %d-byte frame: %w", len(frame), err)
	}
	return nil
}

func classify(err error) ErrorType {
	switch {
	case IsFatal(err):
		return ErrorTypePermanent
	case IsRetryable(err):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// MTU returns the MTU of the underlying transport
func (t *TransportWithRetry) MTU() int {
	return t.transport.MTU()
}

// Close closes the transport connection
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *TransportWithRetry) IsConnected() bool {
	return t.transport.IsConnected()
}

// Type returns the transport type
func (t *TransportWithRetry) Type() TransportType {
	return t.transport.Type()
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}

// MockTransport provides a mock implementation of Transport for testing
type MockTransport struct {
	frames    [][]byte
	notifyErr error
	hook      func(n int)
	mtu       int
	busyLeft  int
	failAfter int
	calls     int
	mu        syncutil.RWMutex
	connected bool
}

// NewMockTransport creates a connected mock transport with the given MTU
func NewMockTransport(mtu int) *MockTransport {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &MockTransport{
		connected: true,
		mtu:       mtu,
		failAfter: -1,
	}
}

// Notify implements Transport interface
func (m *MockTransport) Notify(ctx context.Context, frame []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	m.calls++
	if !m.connected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.notifyErr != nil {
		err := m.notifyErr
		m.mu.Unlock()
		return err
	}
	if m.busyLeft > 0 {
		m.busyLeft--
		m.mu.Unlock()
		return ErrTransportBusy
	}
	if m.failAfter >= 0 && len(m.frames) >= m.failAfter {
		m.connected = false
		m.mu.Unlock()
		return ErrNotConnected
	}
	if len(frame) > FrameCapacity(m.mtu) {
		m.mu.Unlock()
		return fmt.Errorf("frame of %d bytes exceeds capacity %d: %w", len(frame), FrameCapacity(m.mtu), ErrInvalidParameter)
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	m.frames = append(m.frames, cp)
	n := len(m.frames)
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// MTU implements Transport interface
func (m *MockTransport) MTU() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mtu
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// Frames returns copies of every frame accepted so far
func (m *MockTransport) Frames() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// Calls returns the number of Notify invocations, busy ones included
func (m *MockTransport) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// SetBusy makes the next n notifies report a full TX queue
func (m *MockTransport) SetBusy(n int) {
	m.mu.Lock()
	m.busyLeft = n
	m.mu.Unlock()
}

// SetError makes every notify return err until cleared with nil
func (m *MockTransport) SetError(err error) {
	m.mu.Lock()
	m.notifyErr = err
	m.mu.Unlock()
}

// DisconnectAfter drops the link once n frames have been accepted
func (m *MockTransport) DisconnectAfter(n int) {
	m.mu.Lock()
	m.failAfter = n
	m.mu.Unlock()
}

// SetConnected forces the connection state
func (m *MockTransport) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

// OnFrame registers a callback invoked after each accepted frame with the
// running frame count. It runs outside the mock's lock.
func (m *MockTransport) OnFrame(hook func(n int)) {
	m.mu.Lock()
	m.hook = hook
	m.mu.Unlock()
}

// Reset clears captured frames and error injection
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.frames = nil
	m.calls = 0
	m.busyLeft = 0
	m.failAfter = -1
	m.notifyErr = nil
	m.connected = true
	m.mu.Unlock()
}
