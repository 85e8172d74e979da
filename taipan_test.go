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

package taipan

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	ochainsync "github.com/blinklabs-io/gouroboros/protocol/chainsync"
	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/blinklabs-io/taipan/chainsync"
	"github.com/blinklabs-io/taipan/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBlockUpdate builds a roll forward update whose block bytes encode
// the point understood by testDecodePoint.
func testBlockUpdate(slot uint64, hash string) chainsync.NextUpdate {
	return chainsync.NextUpdate{
		Kind:      chainsync.NextUpdateRollForward,
		BlockCbor: fmt.Appendf(nil, "%d:%s", slot, hash),
		Tip: ochainsync.Tip{
			Point:       ocommon.NewPoint(9999, []byte("tip")),
			BlockNumber: 9999,
		},
	}
}

func testDecodePoint(blockCbor []byte) (ocommon.Point, error) {
	slotStr, hash, ok := strings.Cut(string(blockCbor), ":")
	if !ok {
		return ocommon.Point{}, fmt.Errorf(
			"malformed test block: %q",
			blockCbor,
		)
	}
	slot, err := strconv.ParseUint(slotStr, 10, 64)
	if err != nil {
		return ocommon.Point{}, err
	}
	return ocommon.NewPoint(slot, []byte(hash)), nil
}

// fakeClient plays back scripted chain updates and then reports an idle
// chain until closed.
type fakeClient struct {
	updates      []chainsync.NextUpdate
	intersected  [][]ocommon.Point
	handshakeErr error
	closed       chan struct{}
	closeOnce    sync.Once
	mu           sync.Mutex
	idx          int
}

func newFakeClient(updates ...chainsync.NextUpdate) *fakeClient {
	return &fakeClient{
		updates: updates,
		closed:  make(chan struct{}),
	}
}

func (f *fakeClient) Handshake() error {
	return f.handshakeErr
}

func (f *fakeClient) Intersect(
	points []ocommon.Point,
) (*ochainsync.Tip, error) {
	f.mu.Lock()
	f.intersected = append(f.intersected, points)
	f.mu.Unlock()
	return &ochainsync.Tip{
		Point:       ocommon.NewPoint(9999, []byte("tip")),
		BlockNumber: 9999,
	}, nil
}

func (f *fakeClient) RequestNext() (*chainsync.NextUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx < len(f.updates) {
		update := f.updates[f.idx]
		f.idx++
		return &update, nil
	}
	return &chainsync.NextUpdate{Kind: chainsync.NextUpdateAwait}, nil
}

func (f *fakeClient) AwaitNext() (*chainsync.NextUpdate, error) {
	<-f.closed
	return nil, errors.New("connection closed")
}

func (f *fakeClient) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
	return nil
}

func (f *fakeClient) intersectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intersected)
}

func TestFollowerFinalizeRun(t *testing.T) {
	client := newFakeClient(
		testBlockUpdate(1000, "hash1"),
		testBlockUpdate(1010, "hash2"),
		testBlockUpdate(1020, "hash3"),
	)
	cfg := NewConfig(
		WithNetworkMagic(42),
		WithClientFunc(func() (chainsync.Client, error) {
			return client, nil
		}),
		WithFinalize(&chainsync.FinalizeConfig{MaxBlocks: 3}),
	)
	cfg.decodePoint = testDecodePoint
	f, err := New(cfg)
	require.NoError(t, err)
	_, blockCh := f.EventBus().Subscribe(chainsync.BlockEventType)
	err = f.Run(context.Background())
	require.NoError(t, err)
	var slots []uint64
	for range 3 {
		select {
		case evt := <-blockCh:
			blockEvt, ok := evt.Data.(chainsync.BlockEvent)
			require.True(t, ok)
			slots = append(slots, blockEvt.Point.Slot)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for block event")
		}
	}
	assert.Equal(t, []uint64{1000, 1010, 1020}, slots)
	// Sync starts from origin when no intersect points are configured
	require.Len(t, client.intersected, 1)
	require.Len(t, client.intersected[0], 1)
	assert.Equal(t, uint64(0), client.intersected[0][0].Slot)
	require.NoError(t, f.Stop())
}

func TestFollowerIntersectPoints(t *testing.T) {
	client := newFakeClient(
		testBlockUpdate(1000, "hash1"),
	)
	point := ocommon.NewPoint(990, []byte("hash0"))
	cfg := NewConfig(
		WithNetworkMagic(42),
		WithClientFunc(func() (chainsync.Client, error) {
			return client, nil
		}),
		WithFinalize(&chainsync.FinalizeConfig{MaxBlocks: 1}),
		WithIntersectPoints([]ocommon.Point{point}),
	)
	cfg.decodePoint = testDecodePoint
	f, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, f.Run(context.Background()))
	require.Len(t, client.intersected, 1)
	assert.Equal(t, []ocommon.Point{point}, client.intersected[0])
	require.NoError(t, f.Stop())
}

func TestFollowerFatalHandshake(t *testing.T) {
	var factoryCalls int
	cfg := NewConfig(
		WithNetworkMagic(42),
		WithClientFunc(func() (chainsync.Client, error) {
			factoryCalls++
			client := newFakeClient()
			client.handshakeErr = chainsync.ErrHandshakeRefused
			return client, nil
		}),
	)
	f, err := New(cfg)
	require.NoError(t, err)
	// A fatal protocol error ends the run cleanly without retries
	err = f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, factoryCalls)
	require.NoError(t, f.Stop())
}

func TestFollowerRecoverableRetries(t *testing.T) {
	var factoryCalls int
	cfg := NewConfig(
		WithNetworkMagic(42),
		WithClientFunc(func() (chainsync.Client, error) {
			factoryCalls++
			client := newFakeClient()
			client.handshakeErr = chainsync.NewRecoverableError(
				errors.New("dial failed"),
			)
			return client, nil
		}),
		WithRetryPolicy(retry.Policy{
			MaxRetries:    2,
			BackoffUnit:   time.Millisecond,
			BackoffFactor: 2,
			MaxBackoff:    10 * time.Millisecond,
		}),
	)
	f, err := New(cfg)
	require.NoError(t, err)
	err = f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, chainsync.IsRecoverable(err))
	// Initial attempt plus two retries
	assert.Equal(t, 3, factoryCalls)
	require.NoError(t, f.Stop())
}

func TestFollowerStopCancelsRun(t *testing.T) {
	client := newFakeClient()
	cfg := NewConfig(
		WithNetworkMagic(42),
		WithClientFunc(func() (chainsync.Client, error) {
			return client, nil
		}),
	)
	f, err := New(cfg)
	require.NoError(t, err)
	runResult := make(chan error, 1)
	go func() {
		runResult <- f.Run(context.Background())
	}()
	// Wait for the session to become established before stopping
	require.Eventually(t, func() bool {
		return client.intersectCalls() > 0
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.Stop())
	select {
	case runErr := <-runResult:
		require.NoError(t, runErr)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to return")
	}
}

func TestFollowerParentContextCancel(t *testing.T) {
	client := newFakeClient()
	cfg := NewConfig(
		WithNetworkMagic(42),
		WithClientFunc(func() (chainsync.Client, error) {
			return client, nil
		}),
	)
	f, err := New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runResult := make(chan error, 1)
	go func() {
		runResult <- f.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return client.intersectCalls() > 0
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case runErr := <-runResult:
		// Cancellation from the caller is reported, unlike Stop
		require.ErrorIs(t, runErr, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to return")
	}
	require.NoError(t, f.Stop())
}

func TestFollowerCursorUpdated(t *testing.T) {
	client := newFakeClient(
		testBlockUpdate(1000, "hash1"),
		testBlockUpdate(1010, "hash2"),
	)
	cfg := NewConfig(
		WithNetworkMagic(42),
		WithClientFunc(func() (chainsync.Client, error) {
			return client, nil
		}),
		WithFinalize(&chainsync.FinalizeConfig{MaxBlocks: 2}),
		WithCursor(""),
	)
	cfg.decodePoint = testDecodePoint
	f, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, f.Run(context.Background()))
	// Cursor updates are applied by an event handler goroutine, so allow
	// it time to catch up
	require.Eventually(t, func() bool {
		point, ok, loadErr := f.cursor.Load()
		return loadErr == nil && ok && point.Slot == 1010
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.Stop())
}
