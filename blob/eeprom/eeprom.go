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


// Package eeprom reads blobs from 24Cxx I2C serial EEPROMs.
package eeprom

import (
	"fmt"
	"io"
	"strings"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/blob"
	"github.com/ZaparooProject/go-snaplink/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddr is the 7-bit address with A0..A2 tied low
	DefaultAddr = 0x50

	maxClockFreq = 400 * physic.KiloHertz

	// maxRead keeps transactions inside common I2C adapter buffers
	maxRead = 256
)

// Model describes one 24Cxx part
type Model struct {
	Name      string
	Size      int64
	AddrBytes int
}

// Supported parts. Parts up to 24C16 use one address byte and put the high
// address bits in the device address.
var (
	M24C02  = Model{Name: "24C02", Size: 256, AddrBytes: 1}
	M24C16  = Model{Name: "24C16", Size: 2048, AddrBytes: 1}
	M24C32  = Model{Name: "24C32", Size: 4096, AddrBytes: 2}
	M24C64  = Model{Name: "24C64", Size: 8192, AddrBytes: 2}
	M24C256 = Model{Name: "24C256", Size: 32768, AddrBytes: 2}
	M24C512 = Model{Name: "24C512", Size: 65536, AddrBytes: 2}
)

var models = []Model{M24C02, M24C16, M24C32, M24C64, M24C256, M24C512}

// LookupModel finds a supported part by name, with or without the M prefix
func LookupModel(name string) (Model, error) {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "M")
	for _, m := range models {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: unknown EEPROM model %q", snaplink.ErrInvalidParameter, name)
}

// EEPROM is a blob.Reader over a whole device
type EEPROM struct {
	bus   i2c.Bus
	owned i2c.BusCloser
	model Model
	addr  uint16
	mu    syncutil.Mutex
}

// Open initializes the host and opens the EEPROM on the named bus.
func Open(busName string, addr uint16, model Model) (*EEPROM, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	e, err := New(bus, addr, model)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	e.owned = bus
	return e, nil
}

// New wraps an open bus.
func New(bus i2c.Bus, addr uint16, model Model) (*EEPROM, error) {
	if model.Size <= 0 || model.AddrBytes < 1 || model.AddrBytes > 2 {
		return nil, fmt.Errorf("%w: model %+v", snaplink.ErrInvalidParameter, model)
	}
	if model.AddrBytes == 1 && model.Size > 2048 {
		return nil, fmt.Errorf("%w: %s too large for one address byte", snaplink.ErrInvalidParameter, model.Name)
	}
	return &EEPROM{bus: bus, addr: addr, model: model}, nil
}

// Size implements blob.Reader
func (e *EEPROM) Size() int64 { return e.model.Size }

// Name is the default transfer name for a full dump
func (e *EEPROM) Name() string {
	return fmt.Sprintf("%s_%02X.bin", e.model.Name, e.addr)
}

// ReadAt implements io.ReaderAt with random reads: a dummy write sets the
// address counter, then a repeated start clocks data out.
func (e *EEPROM) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", blob.ErrOutOfRange, off)
	}
	if off >= e.model.Size {
		return 0, io.EOF
	}
	want := len(p)
	if int64(want) > e.model.Size-off {
		p = p[:e.model.Size-off]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	done := 0
	for done < len(p) {
		n := min(len(p)-done, maxRead)
		pos := off + int64(done)
		dev, w := e.address(pos)
		if err := e.bus.Tx(dev, w, p[done:done+n]); err != nil {
			return done, fmt.Errorf("I2C EEPROM read at %#04x failed: %w", pos, err)
		}
		done += n
	}

	if done < want {
		return done, io.EOF
	}
	return done, nil
}

// address returns the device address and word address bytes for pos
func (e *EEPROM) address(pos int64) (uint16, []byte) {
	if e.model.AddrBytes == 2 {
		return e.addr, []byte{byte(pos >> 8), byte(pos)}
	}
	// Block select bits A8..A10 ride in the device address
	return e.addr | uint16(pos>>8)&0x07, []byte{byte(pos)}
}

// Close releases the bus when the EEPROM was opened by name
func (e *EEPROM) Close() error {
	if e.owned == nil {
		return nil
	}
	err := e.owned.Close()
	e.owned = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

var _ blob.Reader = (*EEPROM)(nil)
