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

package receiver

import (
	"testing"

	"github.com/ZaparooProject/go-snaplink/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect() (*Reassembler, *[]Transfer) {
	var got []Transfer
	return NewReassembler(func(t Transfer) { got = append(got, t) }), &got
}

func TestParseFrame(t *testing.T) {
	t.Parallel()

	flag, payload, err := ParseFrame([]byte{0x02, 0xAA})
	require.NoError(t, err)
	assert.Equal(t, frame.FlagMiddle, flag)
	assert.Equal(t, []byte{0xAA}, payload)

	_, _, err = ParseFrame(nil)
	require.ErrorIs(t, err, ErrEmptyFrame)
	_, _, err = ParseFrame([]byte{0x04})
	require.ErrorIs(t, err, ErrInvalidFlag)
}

func TestReassembler_Small(t *testing.T) {
	t.Parallel()

	r, got := collect()
	require.NoError(t, r.Feed([]byte{0x00, 0x02, 0, 0, 0, 0x01, 'a', 'h', 'i'}))
	require.Len(t, *got, 1)
	assert.Equal(t, Transfer{Name: "a", Data: []byte("hi"), Size: 2, Frames: 1, Complete: true}, (*got)[0])
	assert.False(t, r.InProgress())
}

func TestReassembler_HeaderSpansFrames(t *testing.T) {
	t.Parallel()

	r, got := collect()
	require.NoError(t, r.Feed([]byte{0x01, 0x03, 0x00}))
	require.NoError(t, r.Feed([]byte{0x02, 0x00, 0x00, 0x02, 'o'}))
	require.NoError(t, r.Feed([]byte{0x02, 'k', 'x'}))
	require.NoError(t, r.Feed([]byte{0x03, 'y', 'z'}))
	require.Len(t, *got, 1)
	assert.Equal(t, "ok", (*got)[0].Name)
	assert.Equal(t, []byte("xyz"), (*got)[0].Data)
	assert.Equal(t, 4, (*got)[0].Frames)
}

func TestReassembler_UnknownSize(t *testing.T) {
	t.Parallel()

	r, got := collect()
	require.NoError(t, r.Feed([]byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 1, 2}))
	require.NoError(t, r.Feed([]byte{0x03, 3}))
	require.Len(t, *got, 1)
	assert.Equal(t, frame.SizeUnknown, (*got)[0].Size)
	assert.Equal(t, []byte{1, 2, 3}, (*got)[0].Data)
}

func TestReassembler_Truncation(t *testing.T) {
	t.Parallel()

	r, got := collect()
	require.NoError(t, r.Feed([]byte{0x01, 0x09, 0, 0, 0, 0x00, 1, 2}))
	require.NoError(t, r.Feed([]byte{0x00, 0x01, 0, 0, 0, 0x00, 7}))
	require.Len(t, *got, 2)
	assert.False(t, (*got)[0].Complete)
	assert.Equal(t, []byte{1, 2}, (*got)[0].Data)
	assert.True(t, (*got)[1].Complete)

	require.NoError(t, r.Feed([]byte{0x01, 0x09, 0, 0, 0, 0x00, 1}))
	r.Abort()
	require.Len(t, *got, 3)
	assert.False(t, (*got)[2].Complete)
}

func TestReassembler_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		frames  [][]byte
	}{
		{name: "middle without start", frames: [][]byte{{0x02, 1}}, wantErr: ErrUnexpectedFrame},
		{name: "end without start", frames: [][]byte{{0x03}}, wantErr: ErrUnexpectedFrame},
		{name: "small shorter than declared", frames: [][]byte{{0x00, 0x05, 0, 0, 0, 0x00, 1}}, wantErr: ErrSizeMismatch},
		{name: "overrun", frames: [][]byte{{0x01, 0x01, 0, 0, 0, 0x00, 1, 2}}, wantErr: ErrSizeMismatch},
		{name: "header cut off", frames: [][]byte{{0x01, 0x01}, {0x03, 0x00}}, wantErr: frame.ErrShortHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, _ := collect()
			var err error
			for _, f := range tt.frames {
				if err = r.Feed(f); err != nil {
					break
				}
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
