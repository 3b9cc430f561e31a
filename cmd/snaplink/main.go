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


// Command snaplink sends camera captures and stored blobs to a phone over
// a BLE notify link.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/blob"
	"github.com/ZaparooProject/go-snaplink/blob/eeprom"
	"github.com/ZaparooProject/go-snaplink/blob/spiflash"
	"github.com/ZaparooProject/go-snaplink/camera"
	"github.com/ZaparooProject/go-snaplink/camera/spicam"
	"github.com/ZaparooProject/go-snaplink/detection"
	"github.com/ZaparooProject/go-snaplink/transfer"
	"github.com/ZaparooProject/go-snaplink/transport/mqtt"
	"github.com/ZaparooProject/go-snaplink/transport/uart"
	"github.com/denisbrodbeck/machineid"
)

type config struct {
	portPath    string
	brokerURL   string
	sendSpec    string
	captureSpec string
	nameBase    string
	name        string
	logDir      string
	reportDir   string
	interval    time.Duration
	tick        time.Duration
	offset      int64
	length      int64
	width       int
	height      int
	quality     int
	stream      int
	mtu         int
	debug       bool
	interactive bool
}

// Package-level flag variables
var (
	flagPortPath    string
	flagBrokerURL   string
	flagSend        string
	flagCapture     string
	flagName        string
	flagNameBase    string
	flagLogDir      string
	flagReportDir   string
	flagSize        string
	flagInterval    time.Duration
	flagTick        time.Duration
	flagOffset      int64
	flagLength      int64
	flagQuality     int
	flagStream      int
	flagMTU         int
	flagDebug       bool
	flagInteractive bool
)

func init() {
	flag.StringVar(&flagPortPath, "port", "", "Serial port of the BLE bridge (auto-detect if empty)")
	flag.StringVar(&flagBrokerURL, "broker", "", "MQTT broker URL, e.g. tcp://host:1883/snaplink (replaces -port)")
	flag.IntVar(&flagMTU, "mtu", snaplink.DefaultMTU, "Link MTU assumed for MQTT until the peer publishes one")
	flag.StringVar(&flagSend, "send", "",
		"Blob to send: a file path, flash:<spi>:<base>:<size> or eeprom:<i2c>:<model>[:<addr>]")
	flag.Int64Var(&flagOffset, "offset", 0, "Byte offset into the blob")
	flag.Int64Var(&flagLength, "length", 0, "Bytes of the blob to send (0 = to the end)")
	flag.StringVar(&flagCapture, "capture", "", "Capture source: an image file, flat, gradient or spi:<port>")
	flag.StringVar(&flagSize, "size", "320x240", "Frame size for flat, gradient and spi sources")
	flag.IntVar(&flagStream, "stream", 0, "Stream this many captures (-1 = until interrupted)")
	flag.DurationVar(&flagInterval, "interval", 0, "Pause between streamed captures")
	flag.IntVar(&flagQuality, "quality", 75, "JPEG quality, 0-100")
	flag.StringVar(&flagName, "name", "", "Name sent in the header (generated if empty)")
	flag.StringVar(&flagNameBase, "base", "", "Base for generated names (derived from the machine ID if empty)")
	flag.DurationVar(&flagTick, "tick", 0, "Delay between blob frames")
	flag.StringVar(&flagLogDir, "log", "", "Write a session log to this directory")
	flag.StringVar(&flagReportDir, "report", "", "Write a JSON failure report to this directory")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagInteractive, "i", false, "Start an interactive shell")
}

func parseConfig() (*config, error) {
	cfg := &config{
		portPath:    flagPortPath,
		brokerURL:   flagBrokerURL,
		mtu:         flagMTU,
		sendSpec:    flagSend,
		offset:      flagOffset,
		length:      flagLength,
		captureSpec: flagCapture,
		stream:      flagStream,
		interval:    flagInterval,
		quality:     flagQuality,
		name:        flagName,
		nameBase:    flagNameBase,
		tick:        flagTick,
		logDir:      flagLogDir,
		reportDir:   flagReportDir,
		debug:       flagDebug,
		interactive: flagInteractive,
	}

	var err error
	cfg.width, cfg.height, err = parseSize(flagSize)
	if err != nil {
		return nil, err
	}
	if cfg.quality < 0 || cfg.quality > 100 {
		return nil, fmt.Errorf("quality %d out of range 0-100", cfg.quality)
	}
	if cfg.sendSpec != "" && cfg.captureSpec != "" {
		return nil, errors.New("-send and -capture are mutually exclusive")
	}
	if !cfg.interactive && cfg.sendSpec == "" && cfg.captureSpec == "" {
		return nil, errors.New("nothing to do: use -send, -capture or -i")
	}
	if cfg.nameBase == "" {
		cfg.nameBase = defaultNameBase()
	}

	if cfg.debug {
		snaplink.SetDebugEnabled(true)
	}
	return cfg, nil
}

// defaultNameBase tags generated names with a stable per-device suffix so
// images from several wearables do not collide on the phone.
func defaultNameBase() string {
	id, err := machineid.ProtectedID("snaplink")
	if err != nil || len(id) < 6 {
		return "IMG"
	}
	return "IMG_" + strings.ToUpper(id[:6])
}

func parseSize(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q: want WIDTHxHEIGHT", s)
	}
	width, err = strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	height, err = strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return width, height, nil
}

// openTransport connects to the broker or the bridge port, detecting the
// bridge when no port is given.
func openTransport(ctx context.Context, cfg *config) (snaplink.Transport, error) {
	if cfg.brokerURL != "" {
		t, err := mqtt.New(mqtt.Options{BrokerURL: cfg.brokerURL, MTU: cfg.mtu})
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT transport: %w", err)
		}
		return t, nil
	}

	path := cfg.portPath
	if path == "" {
		opts := detection.DefaultOptions()
		devices, err := detection.Detect(ctx, &opts)
		if err != nil {
			return nil, fmt.Errorf("failed to detect a bridge: %w", err)
		}
		path = devices[0].Path
		if cfg.debug {
			_, _ = fmt.Printf("Using %s\n", devices[0])
		}
	}

	t, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return t, nil
}

// closer is implemented by hardware-backed sources
type closer interface {
	Close() error
}

func closeIfCloser(v any) {
	if c, ok := v.(closer); ok {
		_ = c.Close()
	}
}

// openBlob resolves a -send argument
func openBlob(spec string) (blob.Reader, error) {
	switch {
	case strings.HasPrefix(spec, "flash:"):
		parts := strings.Split(strings.TrimPrefix(spec, "flash:"), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid flash source %q: want flash:<spi>:<base>:<size>", spec)
		}
		base, err := strconv.ParseInt(parts[1], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid flash base %q: %w", parts[1], err)
		}
		size, err := strconv.ParseInt(parts[2], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid flash size %q: %w", parts[2], err)
		}
		return spiflash.Open(parts[0], base, size)

	case strings.HasPrefix(spec, "eeprom:"):
		parts := strings.Split(strings.TrimPrefix(spec, "eeprom:"), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid eeprom source %q: want eeprom:<i2c>:<model>[:<addr>]", spec)
		}
		model, err := eeprom.LookupModel(parts[1])
		if err != nil {
			return nil, err
		}
		addr := uint64(eeprom.DefaultAddr)
		if len(parts) == 3 {
			if addr, err = strconv.ParseUint(parts[2], 0, 7); err != nil {
				return nil, fmt.Errorf("invalid eeprom address %q: %w", parts[2], err)
			}
		}
		return eeprom.Open(parts[0], uint16(addr), model)

	default:
		return blob.OpenFile(spec)
	}
}

// openSource resolves a -capture argument
func openSource(spec string, width, height int) (camera.RowSource, error) {
	switch {
	case spec == "flat":
		return camera.NewFlatSource(width, height, 0x80, 0x80, 0x80)
	case spec == "gradient":
		return camera.NewGradientSource(width, height), nil
	case strings.HasPrefix(spec, "spi:"):
		return spicam.Open(strings.TrimPrefix(spec, "spi:"), width, height)
	default:
		return camera.LoadImage(spec)
	}
}

func transferConfig(cfg *config) *transfer.Config {
	tc := transfer.DefaultConfig()
	tc.NameBase = cfg.nameBase
	tc.Quality = cfg.quality
	tc.StreamInterval = cfg.interval
	if cfg.stream > 0 {
		tc.MaxStreamImages = cfg.stream
	}
	return tc
}

func runSend(ctx context.Context, m *transfer.Manager, cfg *config) error {
	r, err := openBlob(cfg.sendSpec)
	if err != nil {
		return err
	}
	defer closeIfCloser(r)

	req := transfer.BlobRequest(r, cfg.name)
	req.Offset = cfg.offset
	if cfg.length > 0 {
		req.Length = cfg.length
	} else {
		req.Length = r.Size() - cfg.offset
	}

	if err := m.StartTransfer(ctx, req); err != nil {
		return err
	}
	_, _ = fmt.Printf("Sending %s (%d bytes)...\n", m.Status().Name, req.Length)
	return m.Drain(ctx, cfg.tick)
}

func runCapture(ctx context.Context, m *transfer.Manager, cfg *config) error {
	src, err := openSource(cfg.captureSpec, cfg.width, cfg.height)
	if err != nil {
		return err
	}
	defer closeIfCloser(src)

	req := transfer.CaptureRequest(src, cfg.name)
	if cfg.stream != 0 {
		req = transfer.StreamRequest(src, cfg.name)
		_, _ = fmt.Println("Streaming captures. Press Ctrl+C to stop...")
	}
	return m.StartTransfer(ctx, req)
}

func printResult(res transfer.Result) {
	_, _ = fmt.Printf("%s %s: %d frames, %d bytes", res.Outcome, res.Name, res.Frames, res.BytesSent)
	if res.Images > 1 {
		_, _ = fmt.Printf(", %d images", res.Images)
	}
	_, _ = fmt.Println()
}

func run(ctx context.Context, cfg *config) error {
	t, err := openTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close transport: %v\n", err)
		}
	}()

	m := transfer.NewManager(t, transferConfig(cfg))
	if cfg.debug {
		_, _ = fmt.Printf("Link MTU %d, frame capacity %d\n", t.MTU(), snaplink.FrameCapacity(t.MTU()))
	}

	if cfg.interactive {
		return runShell(ctx, m, cfg)
	}

	// Interrupting a capture cancels the session rather than the process
	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()

	if cfg.sendSpec != "" {
		err = runSend(ctx, m, cfg)
	} else {
		err = runCapture(ctx, m, cfg)
	}

	if res, ok := m.LastResult(); ok {
		printResult(res)
		if res.Outcome == transfer.OutcomeFailed && cfg.reportDir != "" {
			if path, reportErr := writeFailureReport(cfg.reportDir, res); reportErr == nil {
				_, _ = fmt.Printf("Failure report: %s\n", path)
			} else {
				_, _ = fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", reportErr)
			}
		}
	}
	return err
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		return 2
	}

	if cfg.logDir != "" {
		path, err := snaplink.InitSessionLog(cfg.logDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Printf("Session log: %s\n", path)
		defer func() { _ = snaplink.CloseSessionLog() }()
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nStopping transfer...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
