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

package snaplink

import "time"

// Notify retry constants control how long a busy link is retried before the
// session gives up. BLE connection intervals range 7.5ms..4s; the defaults
// assume a phone-class central at 15-30ms.
const (
	// NotifyBusyRetries is the number of notify attempts while the TX queue is full.
	NotifyBusyRetries = 50
	// NotifyInitialBackoff is roughly one connection interval.
	NotifyInitialBackoff = 15 * time.Millisecond
	// NotifyMaxBackoff caps the wait between attempts.
	NotifyMaxBackoff = 250 * time.Millisecond
	// NotifyBackoffMultiplier is the exponential backoff multiplier.
	NotifyBackoffMultiplier = 1.5
	// NotifyJitter is the random jitter factor (0.0-1.0).
	NotifyJitter = 0.1
	// NotifyRetryTimeout bounds the busy-retry of a single frame.
	NotifyRetryTimeout = 10 * time.Second
)

// Link sizing constants for the notify channel.
const (
	// DefaultMTU is the ATT MTU before any exchange.
	DefaultMTU = 23
	// MaxMTU is the largest ATT MTU a peer may negotiate.
	MaxMTU = 517
	// NotifyOverhead is the ATT opcode + handle prefix of a notification.
	NotifyOverhead = 3
)

// Bridge timing constants for serial-attached radio co-processors.
const (
	// BridgeReplyTimeout is the maximum time to wait for a status reply.
	BridgeReplyTimeout = 500 * time.Millisecond
	// BridgeDrainRetries is the number of attempts to drain stale bytes.
	BridgeDrainRetries = 3
)
