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
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures how a busy link is retried
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (0 = single attempt, no retry)
	MaxAttempts int
	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff grows
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the backoff as random delay
	Jitter float64
	// RetryTimeout bounds all attempts together (0 = bounded by MaxAttempts only)
	RetryTimeout time.Duration
}

// NotifyRetryConfig returns the configuration used for notify frames.
// A busy link clears as soon as the radio drains one connection event, so
// the backoff starts at one connection interval and stays short.
func NotifyRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       NotifyBusyRetries,
		InitialBackoff:    NotifyInitialBackoff,
		MaxBackoff:        NotifyMaxBackoff,
		BackoffMultiplier: NotifyBackoffMultiplier,
		Jitter:            NotifyJitter,
		RetryTimeout:      NotifyRetryTimeout,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// RetryWithConfig executes retryFunc until it succeeds, returns a
// non-retryable error, runs out of attempts, or ctx is done.
func RetryWithConfig(ctx context.Context, config *RetryConfig, retryFunc RetryableFunc) error {
	if config == nil {
		config = NotifyRetryConfig()
	}

	if config.MaxAttempts <= 0 {
		return retryFunc()
	}

	retryCtx, cancel := setupRetryContext(ctx, config)
	defer cancel()
	return executeWithRetry(retryCtx, config, retryFunc)
}

func setupRetryContext(ctx context.Context, config *RetryConfig) (context.Context, context.CancelFunc) {
	if config.RetryTimeout > 0 {
		return context.WithTimeout(ctx, config.RetryTimeout)
	}
	return ctx, func() {}
}

func executeWithRetry(ctx context.Context, config *RetryConfig, retryFunc RetryableFunc) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := range config.MaxAttempts {
		if err := checkContextCancellation(ctx, lastErr); err != nil {
			return err
		}

		err := retryFunc()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt < config.MaxAttempts-1 {
			if attempt == 0 {
				Debugf("retrying after transient error: %v", err)
			}
			sleep := calculateJitteredSleep(backoff, config.Jitter)
			if err := sleepWithContext(ctx, sleep, lastErr); err != nil {
				return err
			}
			backoff = calculateNextBackoff(backoff, config)
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", config.MaxAttempts, lastErr)
}

func checkContextCancellation(ctx context.Context, lastErr error) error {
	select {
	case <-ctx.Done():
		if lastErr != nil {
			return fmt.Errorf("%w (retry stopped: %w)", lastErr, ctx.Err())
		}
		return fmt.Errorf("retry context cancelled: %w", ctx.Err())
	default:
		return nil
	}
}

func sleepWithContext(ctx context.Context, sleep time.Duration, lastErr error) error {
	timer := time.NewTimer(sleep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w (retry stopped: %w)", lastErr, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func calculateNextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	next := time.Duration(float64(backoff) * config.BackoffMultiplier)
	if next > config.MaxBackoff {
		return config.MaxBackoff
	}
	return next
}

// calculateJitteredSleep adds up to jitterFactor*baseSleep of random delay
func calculateJitteredSleep(baseSleep time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || baseSleep <= 0 {
		return baseSleep
	}
	jitter := float64(baseSleep) * jitterFactor
	return baseSleep + time.Duration(rand.Float64()*jitter) //nolint:gosec // Jitter, not crypto
}
