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

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelaySequence(t *testing.T) {
	policy := Policy{
		MaxRetries:    3,
		BackoffUnit:   time.Second,
		BackoffFactor: 2,
		MaxBackoff:    60 * time.Second,
	}
	require.Equal(t, 1*time.Second, policy.backoffDelay(1))
	require.Equal(t, 2*time.Second, policy.backoffDelay(2))
	require.Equal(t, 4*time.Second, policy.backoffDelay(3))
	require.Equal(t, 8*time.Second, policy.backoffDelay(4))
}

func TestBackoffDelayCapped(t *testing.T) {
	policy := Policy{
		MaxRetries:    10,
		BackoffUnit:   10 * time.Second,
		BackoffFactor: 3,
		MaxBackoff:    25 * time.Second,
	}
	require.Equal(t, 10*time.Second, policy.backoffDelay(1))
	require.Equal(t, 25*time.Second, policy.backoffDelay(2))
	require.Equal(t, 25*time.Second, policy.backoffDelay(3))
	require.Equal(t, 25*time.Second, policy.backoffDelay(9))
}

func TestBackoffDelayUncapped(t *testing.T) {
	policy := Policy{
		MaxRetries:    5,
		BackoffUnit:   time.Second,
		BackoffFactor: 2,
	}
	require.Equal(t, 16*time.Second, policy.backoffDelay(5))
}

func TestDoSuccessFirstAttempt(t *testing.T) {
	var attempts int
	err := Do(
		context.Background(),
		DefaultPolicy(),
		nil,
		func() error {
			attempts++
			return nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}

func TestDoRetriesExhausted(t *testing.T) {
	opErr := errors.New("connection refused")
	policy := Policy{
		MaxRetries:    3,
		BackoffUnit:   time.Millisecond,
		BackoffFactor: 2,
		MaxBackoff:    10 * time.Millisecond,
	}
	var attempts int
	err := Do(
		context.Background(),
		policy,
		nil,
		func() error {
			attempts++
			return opErr
		},
	)
	require.ErrorIs(t, err, opErr)
	// Initial attempt plus three retries
	require.Equal(t, 4, attempts)
}

func TestDoEventualSuccess(t *testing.T) {
	opErr := errors.New("connection refused")
	policy := Policy{
		MaxRetries:    5,
		BackoffUnit:   time.Millisecond,
		BackoffFactor: 2,
		MaxBackoff:    10 * time.Millisecond,
	}
	var attempts int
	err := Do(
		context.Background(),
		policy,
		nil,
		func() error {
			attempts++
			if attempts < 3 {
				return opErr
			}
			return nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDoNoRetryBudget(t *testing.T) {
	opErr := errors.New("connection refused")
	policy := Policy{
		BackoffUnit:   time.Millisecond,
		BackoffFactor: 2,
	}
	var attempts int
	err := Do(
		context.Background(),
		policy,
		nil,
		func() error {
			attempts++
			return opErr
		},
	)
	require.ErrorIs(t, err, opErr)
	require.Equal(t, 1, attempts)
}

func TestDoContextCanceledDuringBackoff(t *testing.T) {
	opErr := errors.New("connection refused")
	policy := Policy{
		MaxRetries:    3,
		BackoffUnit:   time.Minute,
		BackoffFactor: 2,
	}
	ctx, cancel := context.WithTimeout(
		context.Background(),
		50*time.Millisecond,
	)
	defer cancel()
	start := time.Now()
	err := Do(ctx, policy, nil, func() error {
		return opErr
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestDoContextCanceledDuringOp(t *testing.T) {
	opErr := errors.New("interrupted")
	ctx, cancel := context.WithCancel(context.Background())
	var attempts int
	err := Do(ctx, DefaultPolicy(), nil, func() error {
		attempts++
		cancel()
		return opErr
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}
