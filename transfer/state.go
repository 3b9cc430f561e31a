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

// State is the transfer session state machine:
// IDLE -> FETCH_METADATA -> SMALL_SEND | CHUNK_SEND -> IDLE
//
// Blob sessions pick SMALL_SEND from the known length. Captures do not know
// the encoded size up front, so they always run in CHUNK_SEND, even when the
// packetizer finishes with a single SMALL frame.
type State int32

const (
	StateIdle State = iota
	StateFetchMetadata
	StateSmallSend
	StateChunkSend
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetchMetadata:
		return "FETCH_METADATA"
	case StateSmallSend:
		return "SMALL_SEND"
	case StateChunkSend:
		return "CHUNK_SEND"
	default:
		return "UNKNOWN"
	}
}

// Kind selects what a session sends
type Kind int

const (
	// KindCaptureOnce encodes one frame from the camera
	KindCaptureOnce Kind = iota
	// KindContinuousStream encodes frames until stopped
	KindContinuousStream
	// KindBufferedBlob copies a stored payload, one frame per Tick
	KindBufferedBlob
)

func (k Kind) String() string {
	switch k {
	case KindCaptureOnce:
		return "capture"
	case KindContinuousStream:
		return "stream"
	case KindBufferedBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Outcome is how a session ended
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
