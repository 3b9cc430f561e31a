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

//nolint:paralleltest // Tests mutate package-level logger state
package snaplink

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swapSessionLog(t *testing.T, w io.Writer) {
	t.Helper()
	origEnabled := debugEnabled
	logMu.Lock()
	orig := sessionLog
	sessionLog = w
	logMu.Unlock()
	t.Cleanup(func() {
		debugEnabled = origEnabled
		logMu.Lock()
		sessionLog = orig
		logMu.Unlock()
	})
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	var buf bytes.Buffer
	swapSessionLog(t, &buf)
	debugEnabled = false

	Debugf("session %s sent %d frames", "abc", 42)

	assert.Contains(t, buf.String(), "DEBUG: session abc sent 42 frames\n")
	assert.Regexp(t, `^\d{2}:\d{2}:\d{2}\.\d{3} DEBUG:`, buf.String())
}

func TestDebugln_WritesToSessionLog(t *testing.T) {
	var buf bytes.Buffer
	swapSessionLog(t, &buf)
	debugEnabled = false

	Debugln("frame", 3)

	assert.Contains(t, buf.String(), "DEBUG: frame3")
}

func TestDebugf_NoSessionLog(t *testing.T) {
	swapSessionLog(t, nil)
	debugEnabled = false

	assert.NotPanics(t, func() { Debugf("dropped %d", 1) })
}

func TestSetDebugEnabled(t *testing.T) {
	orig := debugEnabled
	t.Cleanup(func() { debugEnabled = orig })

	SetDebugEnabled(true)
	assert.True(t, debugEnabled)
	SetDebugEnabled(false)
	assert.False(t, debugEnabled)
}

func TestSessionLog_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { _ = CloseSessionLog() })

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, path, GetSessionLogPath())

	matched, err := regexp.MatchString(`^snaplink_\d{8}_\d{6}\.log$`, filepath.Base(path))
	require.NoError(t, err)
	assert.True(t, matched, "unexpected log name %s", path)

	Debugf("capture %s started", "IMG_0001.jpg")
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "=== snaplink Debug Session Log ===")
	assert.Contains(t, text, "PID:")
	assert.Contains(t, text, "capture IMG_0001.jpg started")
	assert.Contains(t, text, "=== Session ended ===")
}

func TestCloseSessionLog_Idempotent(t *testing.T) {
	require.NoError(t, CloseSessionLog())
	require.NoError(t, CloseSessionLog())
}

func TestInitSessionLog_BadDirectory(t *testing.T) {
	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
}
