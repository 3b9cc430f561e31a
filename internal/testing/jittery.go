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


package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of JitteryLink.
type JitterConfig struct {
	MaxLatency       time.Duration
	FragmentMinBytes int
	StallAfterBytes  int
	StallDuration    time.Duration
	Seed             uint64
	FragmentReads    bool
	USBBoundary      bool
}

// DefaultJitterConfig returns a configuration resembling a CH340 or FTDI
// USB-UART bridge under load.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryLink wraps an io.ReadWriter and delivers reads late and in
// fragments, the way USB-UART bridges hand serial data to the host. Data
// read from the backend is buffered so fragmentation never loses bytes.
type JitteryLink struct {
	backend  io.ReadWriter
	rng      *rand.Rand
	pending  []byte
	config   JitterConfig
	returned int
	stalled  bool
}

// NewJitteryLink wraps backend with the given jitter settings.
func NewJitteryLink(backend io.ReadWriter, config JitterConfig) *JitteryLink {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryLink{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x5EED)), //nolint:gosec // Test code, not crypto
	}
}

// Write passes through unchanged; only the receive path jitters.
func (j *JitteryLink) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns some prefix of the buffered backend data after a random delay.
func (j *JitteryLink) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.pending) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		j.pending = append(j.pending, tmp[:n]...)
	}
	if len(j.pending) == 0 {
		return 0, nil
	}

	n := min(len(j.pending), len(buf))
	n = j.limitForStall(n)
	if j.config.USBBoundary {
		// USB full-speed bulk packets carry at most 64 bytes
		if until := 64 - j.returned%64; until < n {
			n = until
		}
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	j.returned += n
	return n, nil
}

func (j *JitteryLink) limitForStall(n int) int {
	if j.config.StallAfterBytes <= 0 || j.stalled {
		return n
	}
	if j.returned >= j.config.StallAfterBytes {
		j.stalled = true
		time.Sleep(j.config.StallDuration)
		return n
	}
	return min(n, j.config.StallAfterBytes-j.returned)
}

// Reset forgets buffered data and re-arms the stall.
func (j *JitteryLink) Reset() {
	j.pending = j.pending[:0]
	j.returned = 0
	j.stalled = false
}
