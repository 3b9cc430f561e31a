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

// Package transfer runs framed transfers over a notify transport: one
// session at a time, images encoded on the fly or stored blobs copied one
// frame per tick.
package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/internal/syncutil"
)

// Manager owns the single active transfer session. Its mutex guards only
// the active slot and is never held while frames are produced.
type Manager struct {
	transport snaplink.Transport
	active    *Session
	last      *Result
	cfg       Config
	mu        syncutil.Mutex
	seq       int
}

// NewManager returns a manager sending over t. Busy notifies are retried
// according to cfg.Retry.
func NewManager(t snaplink.Transport, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if _, ok := t.(*snaplink.TransportWithRetry); !ok {
		t = snaplink.NewTransportWithRetry(t, cfg.Retry)
	}
	return &Manager{transport: t, cfg: *cfg}
}

// SetQuality changes the encoder quality for later captures
func (m *Manager) SetQuality(quality int) error {
	if quality < 0 || quality > 100 {
		return fmt.Errorf("%w: quality %d", snaplink.ErrInvalidParameter, quality)
	}
	m.mu.Lock()
	m.cfg.Quality = quality
	m.mu.Unlock()
	return nil
}

// StartTransfer begins a session. Captures and streams run to completion
// on the calling goroutine; the returned error is the failure, if any.
// Blob transfers return once accepted and advance one frame per Tick.
// ErrSessionActive is returned while another session is running.
func (m *Manager) StartTransfer(ctx context.Context, req Request) error {
	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return snaplink.ErrSessionActive
	}
	m.seq++
	s := newSession(m.transport, m.cfg, req)
	if err := s.fetchMetadata(m.defaultName(req)); err != nil {
		s.setState(StateIdle)
		m.mu.Unlock()
		return fmt.Errorf("start %s transfer: %w", req.Kind, err)
	}
	m.active = s
	m.mu.Unlock()

	if req.Kind == KindBufferedBlob {
		return nil
	}

	res := s.runCapture(ctx)
	m.finish(s, res)
	if res.Outcome == OutcomeFailed {
		return res.Err
	}
	return nil
}

func (m *Manager) defaultName(req Request) string {
	switch req.Kind {
	case KindBufferedBlob:
		if named, ok := req.Blob.(interface{ Name() string }); ok {
			return filepath.Base(named.Name())
		}
		return fmt.Sprintf("BLOB_%04d.bin", m.seq)
	case KindContinuousStream:
		return m.cfg.NameBase
	default:
		return fmt.Sprintf("%s_%04d.jpg", m.cfg.NameBase, m.seq)
	}
}

// Tick advances an active blob transfer by exactly one frame. It reports
// whether a session is still active afterwards. Ticking while a capture
// runs is a no-op.
func (m *Manager) Tick(ctx context.Context) (bool, error) {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil {
		return false, snaplink.ErrNoActiveSession
	}
	if s.req.Kind != KindBufferedBlob {
		return true, nil
	}

	res, over := s.tick(ctx)
	if !over {
		return true, nil
	}
	m.finish(s, res)
	if res.Outcome == OutcomeFailed {
		return false, res.Err
	}
	return false, nil
}

// Drain ticks the active blob transfer until it ends, pausing every
// between ticks.
func (m *Manager) Drain(ctx context.Context, every time.Duration) error {
	for {
		active, err := m.Tick(ctx)
		if err != nil || !active {
			return err
		}
		if every <= 0 {
			continue
		}
		timer := time.NewTimer(every)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = m.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop cancels the active session. No terminal frame is sent and frames
// already sent are not retracted.
func (m *Manager) Stop() error {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil {
		return snaplink.ErrNoActiveSession
	}

	s.requestStop()
	if s.req.Kind == KindBufferedBlob {
		if res, over := s.cancelIdle(); over {
			m.finish(s, res)
		}
	}
	return nil
}

func (m *Manager) finish(s *Session, res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == s {
		m.active = nil
	}
	m.last = &res
}

// Active reports whether a session is running
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// Status returns a snapshot of the active session, or an idle status
func (m *Manager) Status() Status {
	m.mu.Lock()
	s := m.active
	m.mu.Unlock()
	if s == nil {
		return Status{State: StateIdle, Total: -1}
	}
	return s.status()
}

// LastResult returns the result of the most recently ended session
func (m *Manager) LastResult() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

// Transport returns the retrying transport the manager sends on
func (m *Manager) Transport() snaplink.Transport {
	return m.transport
}
