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


// Package spicam reads frames from an SPI camera module with an on-board
// frame FIFO (ArduChip register map). The sensor is configured for RGB565
// output; a capture is triggered when row 0 is requested and later bands are
// burst-read from the FIFO in order.
package spicam

import (
	"context"
	"errors"
	"fmt"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/camera"
	"github.com/ZaparooProject/go-snaplink/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// ArduChip registers and commands
const (
	regTest     = 0x00
	regFIFO     = 0x04
	regTrigger  = 0x41
	regFIFOSize = 0x42 // three bytes, little-endian, 23 bits
	cmdBurst    = 0x3C
	writeBit    = 0x80

	fifoClear   = 0x01
	fifoStart   = 0x02
	captureDone = 0x08
	testPattern = 0x55

	defaultFreq = 8 * physic.MegaHertz
	mode        = spi.Mode0

	// maxBurst bounds a single SPI transaction; the FIFO read pointer
	// carries over between bursts.
	maxBurst = 4096
)

var (
	// ErrNoCamera is returned when the test register does not echo
	ErrNoCamera = errors.New("camera did not answer test register")
	// ErrShortFrame is returned when the FIFO holds less than one frame
	ErrShortFrame = errors.New("camera FIFO shorter than frame")
	// ErrOutOfSequence is returned when bands are not requested in order
	ErrOutOfSequence = errors.New("band requested out of sequence")
)

// Camera implements camera.RowSource over SPI
type Camera struct {
	conn    spi.Conn
	port    spi.PortCloser
	format  camera.Format
	timeout time.Duration
	poll    time.Duration
	next    int
	mu      syncutil.Mutex
}

// Open initializes the host, opens the SPI port and probes the camera.
func Open(portName string, width, height int) (*Camera, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	c, err := New(conn, width, height)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	c.port = port
	return c, nil
}

// New wraps an SPI connection and checks that a camera answers on it.
func New(conn spi.Conn, width, height int) (*Camera, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: %dx%d", snaplink.ErrInvalidParameter, width, height)
	}
	c := &Camera{
		conn:    conn,
		format:  camera.Format{Width: width, Height: height, Channels: camera.RGB565},
		timeout: 2 * time.Second,
		poll:    time.Millisecond,
	}

	if err := c.writeReg(regTest, testPattern); err != nil {
		return nil, err
	}
	got, err := c.readReg(regTest)
	if err != nil {
		return nil, err
	}
	if got != testPattern {
		return nil, fmt.Errorf("%w: read %#02x", ErrNoCamera, got)
	}
	return c, nil
}

// SetTimeout bounds how long a capture may take
func (c *Camera) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	c.timeout = timeout
	c.mu.Unlock()
}

// Format implements camera.RowSource
func (c *Camera) Format() camera.Format { return c.format }

// ReadRows implements camera.RowSource. Row 0 starts a new exposure.
func (c *Camera) ReadRows(ctx context.Context, dst []byte, y, rows int) error {
	if err := camera.CheckRows(c.format, dst, y, rows); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if y == 0 {
		if err := c.capture(ctx); err != nil {
			return err
		}
	} else if y != c.next {
		return fmt.Errorf("%w: want row %d, got %d", ErrOutOfSequence, c.next, y)
	}

	if err := c.burst(dst[:rows*c.format.Stride()]); err != nil {
		return err
	}
	c.next = y + rows
	return nil
}

func (c *Camera) capture(ctx context.Context) error {
	if err := c.writeReg(regFIFO, fifoClear); err != nil {
		return err
	}
	if err := c.writeReg(regFIFO, fifoStart); err != nil {
		return err
	}

	deadline := time.Now().Add(c.timeout)
	for {
		trig, err := c.readReg(regTrigger)
		if err != nil {
			return err
		}
		if trig&captureDone != 0 {
			break
		}
		if time.Now().After(deadline) {
			return snaplink.NewTimeoutError("capture", c.conn.String())
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("capture: %w", ctx.Err())
		case <-time.After(c.poll):
		}
	}

	size, err := c.fifoSize()
	if err != nil {
		return err
	}
	want := c.format.Height * c.format.Stride()
	if size < want {
		return fmt.Errorf("%w: %d bytes, need %d", ErrShortFrame, size, want)
	}
	snaplink.Debugf("spicam: captured %d bytes for %s", size, c.format)
	return nil
}

func (c *Camera) fifoSize() (int, error) {
	size := 0
	for i := range 3 {
		b, err := c.readReg(regFIFOSize + byte(i))
		if err != nil {
			return 0, err
		}
		size |= int(b) << (8 * i)
	}
	return size & 0x7FFFFF, nil
}

// burst fills dst from the FIFO. The first byte clocked out of each burst
// is the command echo and is dropped.
func (c *Camera) burst(dst []byte) error {
	w := make([]byte, min(len(dst), maxBurst)+1)
	r := make([]byte, len(w))
	w[0] = cmdBurst

	for off := 0; off < len(dst); {
		n := min(len(dst)-off, maxBurst)
		if err := c.conn.Tx(w[:n+1], r[:n+1]); err != nil {
			return fmt.Errorf("SPI burst read failed: %w", err)
		}
		copy(dst[off:], r[1:n+1])
		off += n
	}
	return nil
}

func (c *Camera) writeReg(reg, val byte) error {
	if err := c.conn.Tx([]byte{reg | writeBit, val}, nil); err != nil {
		return fmt.Errorf("SPI write register %#02x failed: %w", reg, err)
	}
	return nil
}

func (c *Camera) readReg(reg byte) (byte, error) {
	r := make([]byte, 2)
	if err := c.conn.Tx([]byte{reg, 0x00}, r); err != nil {
		return 0, fmt.Errorf("SPI read register %#02x failed: %w", reg, err)
	}
	return r[1], nil
}

// Close releases the SPI port when the camera was opened by name
func (c *Camera) Close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	if err != nil {
		return fmt.Errorf("failed to close SPI port: %w", err)
	}
	return nil
}

var _ camera.RowSource = (*Camera)(nil)
