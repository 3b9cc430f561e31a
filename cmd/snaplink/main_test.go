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


package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/camera"
	"github.com/ZaparooProject/go-snaplink/receiver"
	"github.com/ZaparooProject/go-snaplink/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reassemble(t *testing.T, frames [][]byte) []receiver.Transfer {
	t.Helper()
	var got []receiver.Transfer
	r := receiver.NewReassembler(func(tr receiver.Transfer) { got = append(got, tr) })
	for _, f := range frames {
		require.NoError(t, r.Feed(f))
	}
	return got
}

func TestRunSend(t *testing.T) {
	t.Parallel()
	data := bytes.Repeat([]byte("snaplink"), 16)
	path := filepath.Join(t.TempDir(), "log.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	mock := snaplink.NewMockTransport(snaplink.DefaultMTU)
	m := transfer.NewManager(mock, transfer.DefaultConfig())
	cfg := &config{sendSpec: path, offset: 8, length: 32}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runSend(ctx, m, cfg))

	res, ok := m.LastResult()
	require.True(t, ok)
	assert.Equal(t, transfer.OutcomeCompleted, res.Outcome)
	assert.Equal(t, "log.bin", res.Name)

	got := reassemble(t, mock.Frames())
	require.Len(t, got, 1)
	assert.Equal(t, "log.bin", got[0].Name)
	assert.Equal(t, data[8:40], got[0].Data)
}

func TestRunSend_MissingFile(t *testing.T) {
	t.Parallel()
	m := transfer.NewManager(snaplink.NewMockTransport(snaplink.DefaultMTU), nil)
	cfg := &config{sendSpec: filepath.Join(t.TempDir(), "missing.bin")}

	err := runSend(context.Background(), m, cfg)
	require.Error(t, err)
	assert.False(t, m.Active())
}

func TestRunCapture(t *testing.T) {
	t.Parallel()
	mock := snaplink.NewMockTransport(snaplink.MaxMTU)
	m := transfer.NewManager(mock, transfer.DefaultConfig())
	cfg := &config{captureSpec: "gradient", name: "shot.jpg", width: 32, height: 16}

	require.NoError(t, runCapture(context.Background(), m, cfg))

	got := reassemble(t, mock.Frames())
	require.Len(t, got, 1)
	assert.Equal(t, "shot.jpg", got[0].Name)
	assert.True(t, bytes.HasPrefix(got[0].Data, []byte{0xFF, 0xD8}), "missing SOI")
	assert.True(t, bytes.HasSuffix(got[0].Data, []byte{0xFF, 0xD9}), "missing EOI")
}

func TestRunCapture_Stream(t *testing.T) {
	t.Parallel()
	mock := snaplink.NewMockTransport(snaplink.MaxMTU)
	cfg := &config{captureSpec: "flat", name: "CAM", width: 16, height: 16, stream: 3, nameBase: "IMG"}
	m := transfer.NewManager(mock, transferConfig(cfg))

	require.NoError(t, runCapture(context.Background(), m, cfg))

	res, ok := m.LastResult()
	require.True(t, ok)
	assert.Equal(t, transfer.OutcomeCompleted, res.Outcome)
	assert.Equal(t, int64(3), res.Images)
	assert.Len(t, reassemble(t, mock.Frames()), 3)
}

func TestParseSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		width   int
		height  int
		wantErr bool
	}{
		{name: "qvga", input: "320x240", width: 320, height: 240},
		{name: "upper case", input: "64X48", width: 64, height: 48},
		{name: "no separator", input: "320", wantErr: true},
		{name: "zero width", input: "0x240", wantErr: true},
		{name: "bad height", input: "320xabc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, h, err := parseSize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.width, w)
			assert.Equal(t, tt.height, h)
		})
	}
}

func TestOpenBlob_InvalidSpecs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		spec string
	}{
		{name: "flash missing fields", spec: "flash:SPI0.0:0x1000"},
		{name: "flash bad base", spec: "flash:SPI0.0:zz:16"},
		{name: "flash bad size", spec: "flash:SPI0.0:0:zz"},
		{name: "eeprom missing model", spec: "eeprom:1"},
		{name: "eeprom unknown model", spec: "eeprom:1:24C1024"},
		{name: "eeprom bad address", spec: "eeprom:1:24C32:0x80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := openBlob(tt.spec)
			require.Error(t, err)
		})
	}
}

func TestOpenSource(t *testing.T) {
	t.Parallel()

	flat, err := openSource("flat", 8, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, flat.Format().Width)

	gradient, err := openSource("gradient", 8, 4)
	require.NoError(t, err)
	assert.Equal(t, camera.RGB888, gradient.Format().Channels)

	_, err = openSource(filepath.Join(t.TempDir(), "missing.png"), 8, 4)
	require.Error(t, err)
}

func TestTransferConfig(t *testing.T) {
	t.Parallel()
	tc := transferConfig(&config{nameBase: "IMG_ABC123", quality: 40, stream: -1, interval: time.Second})
	assert.Equal(t, "IMG_ABC123", tc.NameBase)
	assert.Equal(t, 40, tc.Quality)
	assert.Equal(t, time.Second, tc.StreamInterval)
	assert.Zero(t, tc.MaxStreamImages, "negative stream count streams until stopped")
}

func TestDefaultNameBase(t *testing.T) {
	t.Parallel()
	base := defaultNameBase()
	assert.True(t, base == "IMG" || (strings.HasPrefix(base, "IMG_") && len(base) == 10), base)
}

func TestFailureReport(t *testing.T) {
	t.Parallel()
	trace := snaplink.NewTraceBuffer("uart", "abc", 4)
	trace.RecordTX([]byte{0x01, 0xAA}, "")
	trace.RecordRX([]byte{0x03}, "busy")

	res := transfer.Result{
		Err:       trace.WrapError(snaplink.NewBusyError("Notify", "/dev/ttyUSB0")),
		SessionID: "abc",
		Name:      "IMG_0001.jpg",
		Outcome:   transfer.OutcomeFailed,
		Frames:    7,
	}

	path, err := writeFailureReport(t.TempDir(), res)
	require.NoError(t, err)

	raw, err := os.ReadFile(path) //nolint:gosec // test file path
	require.NoError(t, err)
	var report FailureReport
	require.NoError(t, json.Unmarshal(raw, &report))

	assert.Equal(t, "failed", report.Outcome)
	assert.Equal(t, "uart", report.Transport)
	assert.True(t, report.Retryable)
	assert.Equal(t, int64(7), report.Frames)
	require.Len(t, report.Trace, 2)
	assert.Equal(t, "01aa", report.Trace[0].DataHex)
	assert.Equal(t, "RX", report.Trace[1].Direction)
	assert.Equal(t, "busy", report.Trace[1].Note)
}

func TestFailureReport_PlainError(t *testing.T) {
	t.Parallel()
	report := newFailureReport(transfer.Result{Err: errors.New("boom"), Outcome: transfer.OutcomeFailed})
	assert.Equal(t, "boom", report.Error)
	assert.Empty(t, report.Trace)
	assert.False(t, report.Retryable)
}
