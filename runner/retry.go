//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of envetl.
//
// envetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// envetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with envetl. If not, see https://www.gnu.org/licenses/.

package runner

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/aaronlmathis/envetl/config"
	"github.com/aaronlmathis/envetl/core"
)

// BackoffStrategy computes the wait before the retry after a failed attempt.
// attempt counts from 0 for the first retry.
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles BaseDelay with every attempt up to MaxDelay.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (eb ExponentialBackoff) Delay(attempt int) time.Duration {
	delay := eb.BaseDelay
	for i := 0; i < attempt && delay > 0; i++ {
		if eb.MaxDelay > 0 && delay >= eb.MaxDelay {
			break
		}
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
	}
	if eb.MaxDelay > 0 && delay > eb.MaxDelay {
		delay = eb.MaxDelay
	}
	return delay
}

// FixedBackoff waits the same time before every retry.
type FixedBackoff struct {
	FixedDelay time.Duration
}

func (fb FixedBackoff) Delay(int) time.Duration {
	return fb.FixedDelay
}

// PermanentError marks a failure that no retry can fix, such as missing
// credentials.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// RetryConfig defines how a dataset job is retried.
type RetryConfig struct {
	MaxAttempts int // total attempts, including the first
	Strategy    BackoffStrategy
	// RetryInvalidInput re-runs a job that failed on its input data, in case
	// a fresh download is different.
	RetryInvalidInput bool
}

// NewRetryConfig builds the retry policy of a run from its configuration.
func NewRetryConfig(rt config.RuntimeConfig) RetryConfig {
	var strategy BackoffStrategy = ExponentialBackoff{BaseDelay: rt.Retry.InitialDelay, MaxDelay: rt.Retry.MaxDelay}
	if rt.Retry.Backoff == "fixed" {
		strategy = FixedBackoff{FixedDelay: rt.Retry.InitialDelay}
	}
	return RetryConfig{
		MaxAttempts:       rt.Retry.MaxAttempts,
		Strategy:          strategy,
		RetryInvalidInput: rt.RetryInvalidInput,
	}
}

func (rc RetryConfig) shouldRetry(err error) bool {
	var perm *PermanentError
	switch {
	case errors.As(err, &perm):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case core.IsInputError(err):
		return rc.RetryInvalidInput
	}
	return true
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts,
// and returns the number of attempts made with the last error.
func (rc RetryConfig) Do(ctx context.Context, logger *slog.Logger, fn func(ctx context.Context) error) (int, error) {
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt + 1, nil
		}
		if attempt == attempts-1 || !rc.shouldRetry(err) {
			return attempt + 1, err
		}

		var delay time.Duration
		if rc.Strategy != nil {
			delay = rc.Strategy.Delay(attempt)
		}
		logger.Warn("attempt failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return attempts, err
}
