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


package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPorts replaces the enumerator and prober for one test.
// Tests using it must not run in parallel.
func stubPorts(t *testing.T, ports []Port, answering map[string]int) *[]string {
	t.Helper()
	var probed []string

	oldList, oldProbe := listPorts, probePort
	listPorts = func() ([]Port, error) { return ports, nil }
	probePort = func(_ context.Context, path string) (int, error) {
		probed = append(probed, path)
		if mtu, ok := answering[path]; ok {
			return mtu, nil
		}
		return 0, errors.New("no reply")
	}
	t.Cleanup(func() {
		listPorts, probePort = oldList, oldProbe
	})
	return &probed
}

var testPorts = []Port{
	{Path: "/dev/ttyS0"},
	{Path: "/dev/ttyUSB0", VIDPID: "10C4:EA60", Product: "CP2102 USB to UART", SerialNumber: "0001"},
	{Path: "/dev/ttyACM0", VIDPID: "2341:0043", Product: "Arduino Uno"},
	{Path: "/dev/ttyACM1", VIDPID: "303A:1001", Product: "USB JTAG/serial debug unit"},
}

func TestDetect_Passive(t *testing.T) {
	probed := stubPorts(t, testPorts, nil)

	opts := DefaultOptions()
	opts.Mode = Passive
	devices, err := Detect(context.Background(), &opts)
	require.NoError(t, err)

	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, "/dev/ttyACM1", devices[1].Path)
	for _, d := range devices {
		assert.Equal(t, Medium, d.Confidence)
		assert.Zero(t, d.MTU)
	}
	assert.Empty(t, *probed, "passive mode must not open ports")
	assert.Equal(t, "10C4:EA60", devices[0].Metadata["vidpid"])
	assert.Equal(t, "0001", devices[0].Metadata["serial"])
}

func TestDetect_Safe(t *testing.T) {
	probed := stubPorts(t, testPorts, map[string]int{"/dev/ttyACM1": 247})

	devices, err := Detect(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyACM1", devices[0].Path)
	assert.Equal(t, High, devices[0].Confidence)
	assert.Equal(t, 247, devices[0].MTU)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyACM1"}, *probed)
}

func TestDetect_FullOrdersByConfidence(t *testing.T) {
	probed := stubPorts(t, testPorts, map[string]int{"/dev/ttyS0": 23})

	opts := DefaultOptions()
	opts.Mode = Full
	opts.IgnorePaths = []string{"/dev/ttyACM1"}
	devices, err := Detect(context.Background(), &opts)
	require.NoError(t, err)

	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyS0", devices[0].Path)
	assert.Equal(t, High, devices[0].Confidence)
	assert.NotContains(t, *probed, "/dev/ttyACM0", "blocked port was probed")
	assert.NotContains(t, *probed, "/dev/ttyACM1", "ignored port was probed")
}

func TestDetect_NoDevices(t *testing.T) {
	stubPorts(t, []Port{{Path: "/dev/ttyS0"}}, nil)

	_, err := Detect(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetect_Cancelled(t *testing.T) {
	stubPorts(t, testPorts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Detect(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProbeBridge_ContextExpires(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err := probeBridge(ctx, "/nonexistent/port")
	require.Error(t, err)
}

func TestDeviceInfo_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		want   string
		device DeviceInfo
	}{
		{
			name:   "probed",
			device: DeviceInfo{Path: "/dev/ttyUSB0", MTU: 247, Confidence: High},
			want:   "bridge at /dev/ttyUSB0 (mtu 247, confidence: high)",
		},
		{
			name:   "descriptor only",
			device: DeviceInfo{Path: "COM3", Confidence: Medium},
			want:   "bridge at COM3 (confidence: medium)",
		},
		{
			name:   "unknown confidence",
			device: DeviceInfo{Path: "COM4", Confidence: Confidence(9)},
			want:   "bridge at COM4 (confidence: unknown)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.device.String())
		})
	}
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()
	blocklist := []string{"2341:0043", " abcd:ef01 "}

	assert.True(t, IsBlocked("2341:0043", blocklist))
	assert.True(t, IsBlocked("ABCD:EF01", blocklist))
	assert.False(t, IsBlocked("10C4:EA60", blocklist))
	assert.False(t, IsBlocked("", blocklist))
}

func TestFormatVIDPID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "10C4:EA60", FormatVIDPID("10c4", "ea60"))
	assert.Empty(t, FormatVIDPID("", "ea60"))
}

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		path    string
		ignored []string
		want    bool
	}{
		{name: "exact match", path: "/dev/ttyUSB0", ignored: []string{"/dev/ttyUSB0"}, want: true},
		{name: "unclean path", path: "/dev/ttyUSB0", ignored: []string{"/dev/../dev/ttyUSB0"}, want: true},
		{name: "windows case", path: "COM3", ignored: []string{"com3"}, want: true},
		{name: "no match", path: "/dev/ttyUSB1", ignored: []string{"/dev/ttyUSB0"}, want: false},
		{name: "empty entries", path: "/dev/ttyUSB0", ignored: []string{""}, want: false},
		{name: "empty path", path: "", ignored: []string{"/dev/ttyUSB0"}, want: false},
		{name: "no list", path: "/dev/ttyUSB0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, tt.ignored))
		})
	}
}

func TestIsLikelyBridge(t *testing.T) {
	t.Parallel()
	assert.True(t, isLikelyBridge(&Port{VIDPID: "1a86:7523"}))
	assert.True(t, isLikelyBridge(&Port{Product: "nRF52 BLE Bridge"}))
	assert.False(t, isLikelyBridge(&Port{VIDPID: "2341:0043", Product: "Arduino Uno"}))
}
