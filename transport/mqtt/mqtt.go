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


// Package mqtt publishes notify frames to an MQTT broker, one message per
// frame on <prefix>/notify. It stands in for the radio on a bench: a host
// subscribed to the topic sees exactly what a BLE central would.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/internal/syncutil"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Topic suffixes below the prefix
const (
	NotifyTopic = "notify"
	MTUTopic    = "mtu"
)

// DefaultTimeout bounds connect and each publish
const DefaultTimeout = 5 * time.Second

// Publisher is the part of paho.Client the transport needs
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Options configure the transport
type Options struct {
	// BrokerURL is mqtt://[user:pass@]host:port/prefix?client-id=...
	BrokerURL string
	// MTU is the link MTU to emulate. A retained integer on <prefix>/mtu
	// overrides it at runtime.
	MTU int
	// QoS for notify publishes
	QoS byte
	// Timeout bounds connect and each publish
	Timeout time.Duration
}

// Transport implements snaplink.Transport over MQTT
type Transport struct {
	client  Publisher
	prefix  string
	timeout time.Duration
	mtu     atomic.Int32
	mu      syncutil.Mutex
	qos     byte
	closed  bool
}

// ClientOptionsFromURL builds paho options and the topic prefix from a
// broker URL. The URL path becomes the prefix.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse broker URL: %w", err)
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}

	return opts, strings.Trim(u.Path, "/"), nil
}

// New connects to the broker and follows the MTU topic.
func New(o Options) (*Transport, error) {
	opts, prefix, err := ClientOptionsFromURL(o.BrokerURL)
	if err != nil {
		return nil, err
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	var t *Transport
	opts.SetOnConnectHandler(func(c paho.Client) {
		snaplink.Debugf("mqtt: connected to %s", o.BrokerURL)
		c.Subscribe(topic(prefix, MTUTopic), 0, func(_ paho.Client, msg paho.Message) {
			t.handleMTU(msg.Payload())
		})
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		snaplink.Debugf("mqtt: connection lost: %v", err)
	})

	client := paho.NewClient(opts)
	t = NewWithClient(client, prefix, o.MTU, o.QoS)
	t.timeout = o.Timeout

	tok := client.Connect()
	if !tok.WaitTimeout(o.Timeout) {
		client.Disconnect(0)
		return nil, snaplink.NewTimeoutError("Connect", o.BrokerURL)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", o.BrokerURL, err)
	}
	return t, nil
}

// NewWithClient wraps an existing publisher
func NewWithClient(client Publisher, prefix string, mtu int, qos byte) *Transport {
	if mtu <= 0 {
		mtu = snaplink.DefaultMTU
	}
	t := &Transport{
		client:  client,
		prefix:  prefix,
		qos:     qos,
		timeout: DefaultTimeout,
	}
	t.mtu.Store(int32(min(mtu, snaplink.MaxMTU))) //nolint:gosec // clamped to MaxMTU
	return t
}

func topic(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

// handleMTU applies an MTU published by the bench; junk is ignored.
func (t *Transport) handleMTU(payload []byte) {
	mtu, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil || mtu < snaplink.DefaultMTU || mtu > snaplink.MaxMTU {
		snaplink.Debugf("mqtt: ignoring MTU update %q", payload)
		return
	}
	t.mtu.Store(int32(mtu)) //nolint:gosec // bounded by MaxMTU above
	snaplink.Debugf("mqtt: MTU now %d", mtu)
}

// Notify publishes one frame and waits for the broker to take it.
func (t *Transport) Notify(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return snaplink.NewTransportError("Notify", t.prefix, snaplink.ErrTransportClosed, snaplink.ErrorTypePermanent)
	}
	if !t.client.IsConnected() {
		return snaplink.NewNotConnectedError("Notify", t.prefix)
	}
	if capacity := snaplink.FrameCapacity(t.MTU()); len(data) > capacity {
		return fmt.Errorf("frame of %d bytes exceeds capacity %d: %w", len(data), capacity, snaplink.ErrInvalidParameter)
	}

	payload := make([]byte, len(data))
	copy(payload, data)
	tok := t.client.Publish(topic(t.prefix, NotifyTopic), t.qos, false, payload)
	if !waitToken(ctx, tok, t.timeout) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		// The message may still be delivered, so this is not retried
		return snaplink.NewTransportError("Notify", t.prefix, snaplink.ErrTransportTimeout, snaplink.ErrorTypePermanent)
	}
	if err := tok.Error(); err != nil {
		if errors.Is(err, paho.ErrNotConnected) {
			return snaplink.NewNotConnectedError("Notify", t.prefix)
		}
		return snaplink.NewTransportError("Notify", t.prefix, fmt.Errorf("%w: %w", snaplink.ErrTransportWrite, err), snaplink.ErrorTypePermanent)
	}
	return nil
}

// waitToken waits for tok in short slices so ctx can interrupt it.
func waitToken(ctx context.Context, tok paho.Token, timeout time.Duration) bool {
	const slice = 20 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		if tok.WaitTimeout(min(slice, time.Until(deadline))) {
			return true
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return false
		}
	}
}

// MTU returns the emulated MTU
func (t *Transport) MTU() int {
	return int(t.mtu.Load())
}

// IsConnected reports the broker connection state
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.client.IsConnected()
}

// Close disconnects from the broker
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.client.Disconnect(250)
	return nil
}

// Type returns the transport type
func (*Transport) Type() snaplink.TransportType {
	return snaplink.TransportMQTT
}

var _ snaplink.Transport = (*Transport)(nil)
