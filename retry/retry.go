// Copyright 2026 Blink Labs Software
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

// Package retry runs operations under a bounded exponential backoff
// policy. Deciding whether a particular failure is worth retrying is the
// caller's responsibility; any error returned by the operation counts
// against the retry budget.
package retry

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Policy controls how failed operations are retried. MaxRetries bounds
// the number of retries after the initial attempt. The delay before
// retry n is BackoffUnit multiplied by BackoffFactor to the power of
// n-1, capped at MaxBackoff. A MaxBackoff of zero disables the cap.
type Policy struct {
	MaxRetries    uint
	BackoffUnit   time.Duration
	BackoffFactor uint
	MaxBackoff    time.Duration
}

// DefaultPolicy returns the chain sync retry defaults: up to fifty
// retries with exponential backoff starting at one second and capped at
// one minute.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    50,
		BackoffUnit:   time.Second,
		BackoffFactor: 2,
		MaxBackoff:    60 * time.Second,
	}
}

// backoffDelay computes the delay before the given retry, counted from
// one.
func (p Policy) backoffDelay(retry uint) time.Duration {
	delay := p.BackoffUnit
	for i := uint(1); i < retry; i++ {
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			break
		}
		delay *= time.Duration(p.BackoffFactor)
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// Do runs op until it succeeds, the retry budget is exhausted, or the
// context is canceled. The backoff delay between attempts blocks, so
// attempts never overlap. When the budget runs out the last operation
// error is returned; cancellation returns the context's error.
func Do(
	ctx context.Context,
	policy Policy,
	logger *slog.Logger,
	op func() error,
) error {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var retries uint
	for {
		err := op()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if retries >= policy.MaxRetries {
			return err
		}
		retries++
		delay := policy.backoffDelay(retries)
		logger.Warn(
			"retryable operation error",
			"error", err,
			"attempt", retries,
			"max_attempts", policy.MaxRetries,
			"backoff", delay,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
