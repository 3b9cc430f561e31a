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


package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/transfer"
)

// FailureReport contains everything needed to debug a failed transfer.
type FailureReport struct {
	Timestamp time.Time  `json:"timestamp"`
	SessionID string     `json:"session_id"`
	Name      string     `json:"name"`
	Outcome   string     `json:"outcome"`
	Error     string     `json:"error"`
	Transport string     `json:"transport,omitempty"`
	Trace     []LogEntry `json:"trace,omitempty"`
	BytesSent int64      `json:"bytes_sent"`
	Frames    int64      `json:"frames"`
	Images    int64      `json:"images"`
	Retryable bool       `json:"retryable"`
}

// LogEntry is one traced frame or reply.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Direction string    `json:"direction"`
	DataHex   string    `json:"data_hex,omitempty"`
	Note      string    `json:"note,omitempty"`
}

func newFailureReport(res transfer.Result) *FailureReport {
	report := &FailureReport{
		Timestamp: time.Now(),
		SessionID: res.SessionID,
		Name:      res.Name,
		Outcome:   res.Outcome.String(),
		BytesSent: res.BytesSent,
		Frames:    res.Frames,
		Images:    res.Images,
	}
	if res.Err == nil {
		return report
	}

	report.Error = res.Err.Error()
	report.Retryable = snaplink.IsRetryable(res.Err)

	var te *snaplink.TraceableError
	if errors.As(res.Err, &te) {
		report.Transport = te.Transport
		for _, entry := range te.Trace {
			report.Trace = append(report.Trace, LogEntry{
				Timestamp: entry.Timestamp,
				Direction: string(entry.Direction),
				DataHex:   hex.EncodeToString(entry.Data),
				Note:      entry.Note,
			})
		}
	}
	return report
}

// writeFailureReport saves res as JSON in dir and returns the file path.
func writeFailureReport(dir string, res transfer.Result) (string, error) {
	data, err := json.MarshalIndent(newFailureReport(res), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("snaplink_failure_%s.json", time.Now().Format("20060102_150405")))
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return filename, nil
}
