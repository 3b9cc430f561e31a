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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRetryConstants_NotifyValues keeps the busy-retry window inside what a
// BLE central tolerates between notifications.
func TestRetryConstants_NotifyValues(t *testing.T) {
	t.Parallel()

	assert.GreaterOrEqual(t, NotifyBusyRetries, 2)
	assert.GreaterOrEqual(t, NotifyInitialBackoff, 7500*time.Microsecond,
		"initial backoff should cover the shortest connection interval")
	assert.Greater(t, NotifyMaxBackoff, NotifyInitialBackoff)
	assert.GreaterOrEqual(t, NotifyBackoffMultiplier, 1.0)
	assert.LessOrEqual(t, NotifyBackoffMultiplier, 3.0)
	assert.GreaterOrEqual(t, NotifyJitter, 0.0)
	assert.LessOrEqual(t, NotifyJitter, 0.5)
	assert.Greater(t, NotifyRetryTimeout, NotifyMaxBackoff)
}

func TestRetryConstants_LinkSizing(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 23, DefaultMTU)
	assert.Equal(t, 517, MaxMTU)
	assert.Equal(t, 3, NotifyOverhead)
	assert.Equal(t, 20, FrameCapacity(DefaultMTU))
	assert.Equal(t, 514, FrameCapacity(MaxMTU))
}

func TestRetryConstants_BridgeTiming(t *testing.T) {
	t.Parallel()

	assert.Greater(t, BridgeReplyTimeout, NotifyInitialBackoff)
	assert.LessOrEqual(t, BridgeReplyTimeout, NotifyRetryTimeout)
	assert.GreaterOrEqual(t, BridgeDrainRetries, 1)
}
