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

package transfer

import (
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
)

// Config holds transfer session options
type Config struct {
	// Retry bounds busy retries on each notify. Nil selects
	// snaplink.NotifyRetryConfig.
	Retry *snaplink.RetryConfig
	// NameBase prefixes generated names: IMG gives IMG_0001.jpg
	NameBase string
	// Quality is the encoder quality for captures, 0-100
	Quality int
	// StreamInterval is the pause between images of a continuous stream
	StreamInterval time.Duration
	// MaxStreamImages stops a continuous stream after this many images.
	// 0 streams until stopped.
	MaxStreamImages int
	// TraceDepth is the number of frames kept for failure diagnostics
	TraceDepth int
}

// DefaultConfig returns the default transfer configuration
func DefaultConfig() *Config {
	return &Config{
		Retry:           snaplink.NotifyRetryConfig(),
		NameBase:        "IMG",
		Quality:         75,
		StreamInterval:  0,
		MaxStreamImages: 0,
		TraceDepth:      8,
	}
}
