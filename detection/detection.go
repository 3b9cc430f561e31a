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


// Package detection finds serial ports with a BLE bridge attached.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/transport/uart"
	"go.bug.st/serial/enumerator"
)

// Mode represents the level of invasiveness for bridge detection
type Mode int

const (
	// Passive mode only checks USB descriptors without opening the port
	Passive Mode = iota
	// Safe mode probes ports whose descriptors look like a bridge
	Safe
	// Full mode probes every port that is not blocked
	Full
)

// Confidence represents the confidence level of a detection
type Confidence int

const (
	// Low confidence: an unknown serial port
	Low Confidence = iota
	// Medium confidence: the USB descriptor matches a known bridge adapter
	Medium
	// High confidence: the port answered an MTU query
	High
)

// DeviceInfo represents a detected bridge port
type DeviceInfo struct {
	// Additional metadata (vidpid, product, serial)
	Metadata map[string]string
	// Connection path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// Human-readable product string, if the OS provides one
	Name string
	// MTU reported by the bridge; zero unless probed
	MTU int
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	confidence := "unknown"
	switch d.Confidence {
	case Low:
		confidence = "low"
	case Medium:
		confidence = "medium"
	case High:
		confidence = "high"
	}
	if d.MTU > 0 {
		return fmt.Sprintf("bridge at %s (mtu %d, confidence: %s)", d.Path, d.MTU, confidence)
	}
	return fmt.Sprintf("bridge at %s (confidence: %s)", d.Path, confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678"])
	Blocklist []string
	// Port paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Maximum time to wait for a single probe
	ProbeTimeout time.Duration
	// Detection invasiveness level
	Mode Mode
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		ProbeTimeout: 2 * time.Second,
		Blocklist:    DefaultBlocklist(),
	}
}

// ErrNoDevicesFound indicates no bridge was detected
var ErrNoDevicesFound = errors.New("no bridge devices found")

// knownBridges are USB-serial parts commonly used by BLE bridge boards
var knownBridges = []string{
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
	"1A86:55D4", // QinHeng CH9102
	"0403:6001", // FTDI FT232
	"303A:1001", // Espressif USB JTAG/serial
	"1915:520F", // Nordic nRF52 USB CDC
}

var bridgeKeywords = []string{"ble", "bridge", "esp32", "nrf52", "cp210", "ch340"}

// Port is a serial port as reported by the OS enumerator
type Port struct {
	Path         string
	Product      string
	VIDPID       string
	SerialNumber string
}

// listPorts and probePort are swapped out in tests
var (
	listPorts = enumeratePorts
	probePort = probeBridge
)

func enumeratePorts() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]Port, 0, len(details))
	for _, d := range details {
		port := Port{Path: d.Name}
		if d.IsUSB {
			port.VIDPID = FormatVIDPID(d.VID, d.PID)
			port.Product = d.Product
			port.SerialNumber = d.SerialNumber
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// probeBridge opens the port, which performs an MTU query.
//
// A single attempt per port: auto-detection must not hammer unrelated
// devices, so retries belong to the transfer layer.
func probeBridge(ctx context.Context, path string) (int, error) {
	type result struct {
		err error
		mtu int
	}
	done := make(chan result, 1)
	go func() {
		t, err := uart.New(path)
		if err != nil {
			done <- result{err: err}
			return
		}
		mtu := t.MTU()
		_ = t.Close()
		done <- result{mtu: mtu}
	}()

	select {
	case r := <-done:
		return r.mtu, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// isLikelyBridge checks the USB descriptor against known bridge adapters
func isLikelyBridge(port *Port) bool {
	upper := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if upper == known {
			return true
		}
	}

	product := strings.ToLower(port.Product)
	for _, keyword := range bridgeKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// Detect lists serial ports that look like, or answer as, a BLE bridge.
// Results are ordered by confidence, highest first.
func Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	ports, err := listPorts()
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for i := range ports {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if device, ok := processPort(ctx, &ports[i], opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}

func processPort(ctx context.Context, port *Port, opts *Options) (DeviceInfo, bool) {
	if IsBlocked(port.VIDPID, opts.Blocklist) || IsPathIgnored(port.Path, opts.IgnorePaths) {
		return DeviceInfo{}, false
	}

	likely := isLikelyBridge(port)
	device := DeviceInfo{
		Path:     port.Path,
		Name:     port.Product,
		Metadata: make(map[string]string),
	}
	addPortMetadata(&device, port)

	shouldProbe := false
	switch opts.Mode {
	case Passive:
		if !likely {
			return DeviceInfo{}, false
		}
		device.Confidence = Medium
	case Safe:
		if !likely {
			return DeviceInfo{}, false
		}
		device.Confidence = Medium
		shouldProbe = true
	case Full:
		device.Confidence = Low
		if likely {
			device.Confidence = Medium
		}
		shouldProbe = true
	}

	if !shouldProbe {
		return device, true
	}

	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().ProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mtu, err := probePort(probeCtx, port.Path)
	if err != nil {
		snaplink.Debugf("detection: %s did not answer: %v", port.Path, err)
		return DeviceInfo{}, false
	}
	device.MTU = mtu
	device.Confidence = High
	return device, true
}

func addPortMetadata(device *DeviceInfo, port *Port) {
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
}
