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

package blob

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWindow(t *testing.T) {
	t.Parallel()

	r := NewMemory(make([]byte, 10))
	tests := []struct {
		name    string
		off     int64
		length  int64
		wantErr bool
	}{
		{name: "whole", off: 0, length: 10},
		{name: "empty at end", off: 10, length: 0},
		{name: "tail", off: 7, length: 3},
		{name: "past end", off: 7, length: 4, wantErr: true},
		{name: "offset past end", off: 11, length: 0, wantErr: true},
		{name: "negative offset", off: -1, length: 1, wantErr: true},
		{name: "negative length", off: 0, length: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckWindow(r, tt.off, tt.length)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrOutOfRange)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello blob"), 0o600))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, int64(10), f.Size())
	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "blob", string(buf))

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
