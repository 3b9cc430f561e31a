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
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mtuFor returns the MTU that yields the given frame capacity
func mtuFor(capacity int) int {
	return capacity + snaplink.NotifyOverhead
}

func flagsOf(frames [][]byte) []frame.Flag {
	out := make([]frame.Flag, len(frames))
	for i, f := range frames {
		out[i] = frame.Flag(f[0])
	}
	return out
}

func TestPacketizer_SmallScenario(t *testing.T) {
	t.Parallel()

	mock := snaplink.NewMockTransport(mtuFor(64))
	p, err := NewPacketizer(context.Background(), mock, 64)
	require.NoError(t, err)

	payload := []byte("0123456789")
	require.NoError(t, p.WriteHeader(uint32(len(payload)), "a.bin"))
	require.NoError(t, p.Emit(payload))
	require.NoError(t, p.Finalize())

	frames := mock.Frames()
	require.Len(t, frames, 1)
	want := append([]byte{0x00, 0x0A, 0x00, 0x00, 0x00, 0x05, 'a', '.', 'b', 'i', 'n'}, payload...)
	assert.Equal(t, want, frames[0])
	assert.Len(t, frames[0], 21)
	assert.Equal(t, int64(10), p.BytesSent())
}

func TestPacketizer_FrameSequence(t *testing.T) {
	t.Parallel()

	const capacity = 20
	tests := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "exactly one frame", size: capacity - 7},
		{name: "one byte over", size: capacity - 6},
		{name: "exact multiple", size: 3*(capacity-1) - 6},
		{name: "many frames", size: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := snaplink.NewMockTransport(mtuFor(capacity))
			p, err := NewPacketizer(context.Background(), mock, capacity)
			require.NoError(t, err)

			payload := bytes.Repeat([]byte{0x5A}, tt.size)
			require.NoError(t, p.WriteHeader(uint32(tt.size), "x"))
			// Odd-sized writes exercise the lazy flush
			for rest := payload; len(rest) > 0; {
				n := min(len(rest), 7)
				require.NoError(t, p.Emit(rest[:n]))
				rest = rest[n:]
			}
			require.NoError(t, p.Finalize())

			frames := mock.Frames()
			require.Len(t, frames, int(frame.PayloadFrames(capacity, "x", int64(tt.size))))
			flags := flagsOf(frames)
			if len(frames) == 1 {
				assert.Equal(t, []frame.Flag{frame.FlagSmall}, flags)
			} else {
				assert.Equal(t, frame.FlagStart, flags[0])
				for _, f := range flags[1 : len(flags)-1] {
					assert.Equal(t, frame.FlagMiddle, f)
				}
				assert.Equal(t, frame.FlagEnd, flags[len(flags)-1])
			}

			var wire []byte
			for i, f := range frames {
				assert.LessOrEqual(t, len(f), capacity)
				if i < len(frames)-1 {
					assert.Len(t, f, capacity, "only the last frame may be short")
				}
				wire = append(wire, f[1:]...)
			}
			_, name, n, err := frame.ParseHeader(wire)
			require.NoError(t, err)
			assert.Equal(t, "x", name)
			assert.Equal(t, payload, wire[n:])
			assert.Equal(t, int64(tt.size), p.BytesSent())
			assert.Equal(t, int64(len(frames)), p.Frames())
		})
	}
}

func TestPacketizer_SizeUnknown(t *testing.T) {
	t.Parallel()

	t.Run("single frame is back-patched", func(t *testing.T) {
		t.Parallel()
		mock := snaplink.NewMockTransport(mtuFor(32))
		p, err := NewPacketizer(context.Background(), mock, 32)
		require.NoError(t, err)
		require.NoError(t, p.WriteHeader(frame.SizeUnknown, "i.jpg"))
		require.NoError(t, p.Emit([]byte{1, 2, 3}))
		require.NoError(t, p.Finalize())

		frames := mock.Frames()
		require.Len(t, frames, 1)
		assert.Equal(t, frame.FlagSmall, frame.Flag(frames[0][0]))
		size, _, _, err := frame.ParseHeader(frames[0][1:])
		require.NoError(t, err)
		assert.Equal(t, uint32(3), size)
	})

	t.Run("multi frame keeps marker", func(t *testing.T) {
		t.Parallel()
		mock := snaplink.NewMockTransport(mtuFor(16))
		p, err := NewPacketizer(context.Background(), mock, 16)
		require.NoError(t, err)
		require.NoError(t, p.WriteHeader(frame.SizeUnknown, "i.jpg"))
		require.NoError(t, p.Emit(make([]byte, 40)))
		require.NoError(t, p.Finalize())

		frames := mock.Frames()
		require.Greater(t, len(frames), 1)
		size, _, _, err := frame.ParseHeader(frames[0][1:])
		require.NoError(t, err)
		assert.Equal(t, frame.SizeUnknown, size)
	})
}

func TestPacketizer_StageHeader(t *testing.T) {
	t.Parallel()

	mock := snaplink.NewMockTransport(mtuFor(16))
	p, err := NewPacketizer(context.Background(), mock, 16)
	require.NoError(t, err)

	hdr, err := p.StageHeader(3, "staged.bin")
	require.NoError(t, err)
	assert.Len(t, hdr, frame.HeaderLen("staged.bin"))
	assert.Empty(t, mock.Frames(), "staging sends nothing")
	_, err = p.StageHeader(3, "again")
	require.ErrorIs(t, err, snaplink.ErrInvalidParameter)

	require.NoError(t, p.Emit(hdr))
	require.NoError(t, p.Emit([]byte{7, 8, 9}))
	require.NoError(t, p.Finalize())
	assert.Equal(t, []frame.Flag{frame.FlagStart, frame.FlagEnd}, flagsOf(mock.Frames()))
	assert.Equal(t, int64(3), p.BytesSent())
}

func TestPacketizer_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewPacketizer(context.Background(), snaplink.NewMockTransport(0), 1)
	require.ErrorIs(t, err, snaplink.ErrMTUTooSmall)

	mock := snaplink.NewMockTransport(mtuFor(16))
	p, err := NewPacketizer(context.Background(), mock, 16)
	require.NoError(t, err)
	require.ErrorIs(t, p.WriteHeader(1, strings.Repeat("n", 256)), snaplink.ErrNameTooLong)

	require.NoError(t, p.Emit([]byte{1}))
	require.ErrorIs(t, p.WriteHeader(1, "late"), snaplink.ErrInvalidParameter)

	require.NoError(t, p.Finalize())
	assert.True(t, p.Finalized())
	require.ErrorIs(t, p.Emit([]byte{2}), snaplink.ErrSinkFinalized)
	require.ErrorIs(t, p.Finalize(), snaplink.ErrSinkFinalized)
}

func TestPacketizer_TransportErrorIsSticky(t *testing.T) {
	t.Parallel()

	boom := errors.New("radio fault")
	mock := snaplink.NewMockTransport(mtuFor(8))
	mock.SetError(boom)
	p, err := NewPacketizer(context.Background(), mock, 8)
	require.NoError(t, err)

	require.ErrorIs(t, p.Emit(make([]byte, 20)), boom)
	mock.SetError(nil)
	require.ErrorIs(t, p.Emit([]byte{1}), boom)
	require.ErrorIs(t, p.Finalize(), boom)
	assert.Empty(t, mock.Frames())
}
