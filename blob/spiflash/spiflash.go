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


// Package spiflash reads blobs stored on SPI NOR flash with the standard
// READ (0x03) command and a 24-bit address.
package spiflash

import (
	"fmt"
	"io"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/blob"
	"github.com/ZaparooProject/go-snaplink/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	cmdRead    = 0x03
	cmdJEDEC   = 0x9F
	addrSpace  = 1 << 24
	headerLen  = 4 // command + 24-bit address
	maxRead    = 4096
	defaultHz  = 10 * physic.MegaHertz
	defaultMod = spi.Mode0
)

// Flash is a window [base, base+size) of an SPI NOR device
type Flash struct {
	conn spi.Conn
	port spi.PortCloser
	name string
	base int64
	size int64
	mu   syncutil.Mutex
}

// Open initializes the host and opens the window on the named SPI port.
func Open(portName string, base, size int64) (*Flash, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultHz, defaultMod, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	f, err := New(conn, base, size)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	f.port = port
	return f, nil
}

// New wraps an SPI connection. The window must lie inside the 16 MiB
// addressable by 24-bit READ.
func New(conn spi.Conn, base, size int64) (*Flash, error) {
	if base < 0 || size < 0 || base+size > addrSpace {
		return nil, fmt.Errorf("%w: window [%#x,+%d) outside 24-bit flash", snaplink.ErrInvalidParameter, base, size)
	}
	return &Flash{conn: conn, base: base, size: size}, nil
}

// SetName sets the name used as the transfer's default file name
func (f *Flash) SetName(name string) { f.name = name }

// Name returns the name set with SetName, or a name built from the window
func (f *Flash) Name() string {
	if f.name != "" {
		return f.name
	}
	return fmt.Sprintf("FLASH_%06X.bin", f.base)
}

// Size implements blob.Reader
func (f *Flash) Size() int64 { return f.size }

// JEDECID returns the manufacturer and device identification bytes
func (f *Flash) JEDECID() ([3]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var id [3]byte
	r := make([]byte, 4)
	if err := f.conn.Tx([]byte{cmdJEDEC, 0, 0, 0}, r); err != nil {
		return id, fmt.Errorf("SPI JEDEC ID read failed: %w", err)
	}
	copy(id[:], r[1:])
	return id, nil
}

// ReadAt implements io.ReaderAt relative to the window base.
func (f *Flash) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", blob.ErrOutOfRange, off)
	}
	if off >= f.size {
		return 0, io.EOF
	}
	want := len(p)
	if int64(want) > f.size-off {
		p = p[:f.size-off]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	w := make([]byte, headerLen+min(len(p), maxRead))
	r := make([]byte, len(w))
	w[0] = cmdRead
	done := 0
	for done < len(p) {
		n := min(len(p)-done, maxRead)
		addr := f.base + off + int64(done)
		w[1], w[2], w[3] = byte(addr>>16), byte(addr>>8), byte(addr)
		clear(w[headerLen:])
		if err := f.conn.Tx(w[:headerLen+n], r[:headerLen+n]); err != nil {
			return done, fmt.Errorf("SPI flash read at %#06x failed: %w", addr, err)
		}
		copy(p[done:], r[headerLen:headerLen+n])
		done += n
	}

	if done < want {
		return done, io.EOF
	}
	return done, nil
}

// Close releases the SPI port when the flash was opened by name
func (f *Flash) Close() error {
	if f.port == nil {
		return nil
	}
	err := f.port.Close()
	f.port = nil
	if err != nil {
		return fmt.Errorf("failed to close SPI port: %w", err)
	}
	return nil
}

var _ blob.Reader = (*Flash)(nil)
