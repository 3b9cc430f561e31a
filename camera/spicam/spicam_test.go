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


package spicam

import (
	"context"
	"errors"
	"testing"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/camera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"
)

var errBusFault = errors.New("bus fault")

// MockArduChip implements spi.Conn with a register file and a frame FIFO.
type MockArduChip struct {
	regs       [256]byte
	frame      []byte
	fifo       []byte
	readyAfter int
	polls      int
	captures   int
	bursts     int
	fail       bool
	deaf       bool
}

func NewMockArduChip(frame []byte) *MockArduChip {
	return &MockArduChip{frame: frame}
}

func (m *MockArduChip) Tx(w, r []byte) error {
	if m.fail {
		return errBusFault
	}
	if len(w) == 0 {
		return nil
	}

	switch {
	case w[0] == cmdBurst:
		m.bursts++
		for i := 1; i < len(r); i++ {
			if len(m.fifo) == 0 {
				r[i] = 0
				continue
			}
			r[i] = m.fifo[0]
			m.fifo = m.fifo[1:]
		}
	case w[0]&writeBit != 0:
		m.write(w[0]&^writeBit, w[1])
	default:
		if len(r) > 1 {
			r[1] = m.read(w[0])
		}
	}
	return nil
}

func (m *MockArduChip) write(reg, val byte) {
	if m.deaf && reg == regTest {
		return
	}
	m.regs[reg] = val
	if reg != regFIFO {
		return
	}
	switch val {
	case fifoClear:
		m.fifo = nil
		m.regs[regTrigger] &^= captureDone
	case fifoStart:
		m.captures++
		m.polls = 0
		m.fifo = append([]byte(nil), m.frame...)
		n := len(m.fifo)
		m.regs[regFIFOSize] = byte(n)
		m.regs[regFIFOSize+1] = byte(n >> 8)
		m.regs[regFIFOSize+2] = byte(n >> 16)
	}
}

func (m *MockArduChip) read(reg byte) byte {
	if reg == regTrigger && m.regs[regFIFO] == fifoStart {
		m.polls++
		if m.polls > m.readyAfter {
			return captureDone
		}
		return 0
	}
	return m.regs[reg]
}

func (*MockArduChip) Duplex() conn.Duplex { return conn.Full }
func (*MockArduChip) String() string      { return "mock://spicam" }

func (m *MockArduChip) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := m.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

var _ spi.Conn = (*MockArduChip)(nil)

func rampFrame(n int) []byte {
	f := make([]byte, n)
	for i := range f {
		f[i] = byte(i * 7)
	}
	return f
}

func TestNew_ProbesTestRegister(t *testing.T) {
	t.Parallel()

	chip := NewMockArduChip(nil)
	cam, err := New(chip, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, camera.Format{Width: 4, Height: 2, Channels: camera.RGB565}, cam.Format())
	require.NoError(t, cam.Close())

	deaf := NewMockArduChip(nil)
	deaf.deaf = true
	_, err = New(deaf, 4, 2)
	require.ErrorIs(t, err, ErrNoCamera)

	_, err = New(chip, 0, 2)
	require.ErrorIs(t, err, snaplink.ErrInvalidParameter)
}

func TestReadRows_Bands(t *testing.T) {
	t.Parallel()

	const w, h = 5, 4
	frame := rampFrame(w * h * 2)
	chip := NewMockArduChip(frame)
	chip.readyAfter = 3
	cam, err := New(chip, w, h)
	require.NoError(t, err)

	stride := cam.Format().Stride()
	got := make([]byte, 0, len(frame))
	buf := make([]byte, 2*stride)
	for y := 0; y < h; y += 2 {
		require.NoError(t, cam.ReadRows(context.Background(), buf, y, 2))
		got = append(got, buf...)
	}

	assert.Equal(t, frame, got)
	assert.Equal(t, 1, chip.captures)
	assert.Equal(t, 4, chip.polls)
}

func TestReadRows_NewCaptureAtRowZero(t *testing.T) {
	t.Parallel()

	chip := NewMockArduChip(rampFrame(2 * 2 * 2))
	cam, err := New(chip, 2, 2)
	require.NoError(t, err)

	buf := make([]byte, 8)
	require.NoError(t, cam.ReadRows(context.Background(), buf, 0, 2))
	require.NoError(t, cam.ReadRows(context.Background(), buf, 0, 2))
	assert.Equal(t, 2, chip.captures)
	assert.Equal(t, rampFrame(8), buf)
}

func TestReadRows_LargeBandSplitsBursts(t *testing.T) {
	t.Parallel()

	const w, h = 1280, 4
	frame := rampFrame(w * h * 2)
	chip := NewMockArduChip(frame)
	cam, err := New(chip, w, h)
	require.NoError(t, err)

	buf := make([]byte, len(frame))
	require.NoError(t, cam.ReadRows(context.Background(), buf, 0, h))
	assert.Equal(t, frame, buf)
	assert.Equal(t, (len(frame)+maxBurst-1)/maxBurst, chip.bursts)
}

func TestReadRows_Errors(t *testing.T) {
	t.Parallel()

	t.Run("out of sequence", func(t *testing.T) {
		t.Parallel()
		cam, err := New(NewMockArduChip(rampFrame(4*4*2)), 4, 4)
		require.NoError(t, err)
		buf := make([]byte, 8)
		require.NoError(t, cam.ReadRows(context.Background(), buf, 0, 1))
		require.ErrorIs(t, cam.ReadRows(context.Background(), buf, 2, 1), ErrOutOfSequence)
	})

	t.Run("short fifo", func(t *testing.T) {
		t.Parallel()
		cam, err := New(NewMockArduChip(rampFrame(10)), 4, 4)
		require.NoError(t, err)
		require.ErrorIs(t, cam.ReadRows(context.Background(), make([]byte, 8), 0, 1), ErrShortFrame)
	})

	t.Run("rows out of range", func(t *testing.T) {
		t.Parallel()
		cam, err := New(NewMockArduChip(nil), 4, 4)
		require.NoError(t, err)
		require.ErrorIs(t, cam.ReadRows(context.Background(), make([]byte, 8), 4, 1), camera.ErrRowsOutOfRange)
	})

	t.Run("capture timeout", func(t *testing.T) {
		t.Parallel()
		chip := NewMockArduChip(rampFrame(32))
		chip.readyAfter = 1 << 30
		cam, err := New(chip, 4, 4)
		require.NoError(t, err)
		cam.SetTimeout(10 * time.Millisecond)
		require.ErrorIs(t, cam.ReadRows(context.Background(), make([]byte, 8), 0, 1), snaplink.ErrTransportTimeout)
	})

	t.Run("capture cancelled", func(t *testing.T) {
		t.Parallel()
		chip := NewMockArduChip(rampFrame(32))
		chip.readyAfter = 1 << 30
		cam, err := New(chip, 4, 4)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, cam.ReadRows(ctx, make([]byte, 8), 0, 1), context.Canceled)
	})

	t.Run("bus fault", func(t *testing.T) {
		t.Parallel()
		chip := NewMockArduChip(rampFrame(32))
		cam, err := New(chip, 4, 4)
		require.NoError(t, err)
		chip.fail = true
		require.ErrorIs(t, cam.ReadRows(context.Background(), make([]byte, 8), 0, 1), errBusFault)
	})
}
