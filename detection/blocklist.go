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


package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB adapters that must never be probed.
// Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno resets on port open
		"1366:0105", // SEGGER J-Link VCOM
	}
}

// IsBlocked reports whether vidpid is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" || vidpid == ":" {
		return false
	}

	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// FormatVIDPID joins a vendor and product ID as VID:PID.
func FormatVIDPID(vid, pid string) string {
	if vid == "" || pid == "" {
		return ""
	}
	return strings.ToUpper(vid) + ":" + strings.ToUpper(pid)
}

// IsPathIgnored checks if a port path should be skipped.
// Supports exact path matching and normalized path comparison.
func IsPathIgnored(portPath string, ignorePaths []string) bool {
	if portPath == "" || len(ignorePaths) == 0 {
		return false
	}

	normalized := normalizedPath(portPath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if portPath == ignorePath || normalized == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

// normalizedPath cleans a path and folds case for Windows COM names
func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
