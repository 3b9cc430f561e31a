//go:build !deadlock

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


// Package syncutil provides the mutex types used across the module. Plain
// builds use sync; build with -tags=deadlock to swap in go-deadlock, which
// reports lock-order inversions and locks held past LockTimeout.
package syncutil

import (
	"sync"
	"time"
)

// LockTimeout bounds how long a lock may be held before the deadlock build
// reports it. A capture holds the session lock across a full notify retry
// window, so this sits well above it.
const LockTimeout = 30 * time.Second

// Mutex wraps sync.Mutex.
//
//nolint:gocritic // embedding exposes Lock and Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex.
//
//nolint:gocritic // embedding exposes the full RWMutex method set
type RWMutex struct {
	sync.RWMutex
}
