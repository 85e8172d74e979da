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
	"testing"
	"time"

	ouroboros "github.com/blinklabs-io/gouroboros"
	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/blinklabs-io/taipan/chainsync"
	"github.com/blinklabs-io/taipan/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, "mainnet", cfg.network)
	assert.Equal(t, retry.DefaultPolicy(), cfg.retryPolicy)
	assert.Equal(t, 0, cfg.minDepth)
	assert.False(t, cfg.cursorEnabled)
	assert.False(t, cfg.intersectTip)
}

func TestWithNetworkMagic(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, uint32(0), cfg.networkMagic)
	WithNetworkMagic(42)(cfg)
	assert.Equal(t, uint32(42), cfg.networkMagic)
}

func TestWithIntersectPoints(t *testing.T) {
	cfg := &Config{}
	points := []ocommon.Point{
		ocommon.NewPoint(1234, []byte("hash1")),
		ocommon.NewPoint(2345, []byte("hash2")),
	}
	WithIntersectPoints(points)(cfg)
	assert.Equal(t, points, cfg.intersectPoints)
}

func TestWithSincePointAppends(t *testing.T) {
	cfg := &Config{}
	WithSincePoint(ocommon.NewPoint(1234, []byte("hash1")))(cfg)
	WithSincePoint(ocommon.NewPoint(2345, []byte("hash2")))(cfg)
	require.Len(t, cfg.intersectPoints, 2)
	assert.Equal(t, uint64(1234), cfg.intersectPoints[0].Slot)
	assert.Equal(t, uint64(2345), cfg.intersectPoints[1].Slot)
}

func TestWithCursor(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.cursorEnabled)
	WithCursor("/tmp/data")(cfg)
	assert.True(t, cfg.cursorEnabled)
	assert.Equal(t, "/tmp/data", cfg.cursorDataDir)
}

func TestWithFinalize(t *testing.T) {
	cfg := &Config{}
	WithFinalize(&chainsync.FinalizeConfig{MaxBlocks: 3})(cfg)
	require.NotNil(t, cfg.finalize)
	assert.Equal(t, uint64(3), cfg.finalize.MaxBlocks)
}

func TestWithRetryPolicy(t *testing.T) {
	cfg := &Config{}
	policy := retry.Policy{
		MaxRetries:    5,
		BackoffUnit:   time.Second,
		BackoffFactor: 2,
		MaxBackoff:    10 * time.Second,
	}
	WithRetryPolicy(policy)(cfg)
	assert.Equal(t, policy, cfg.retryPolicy)
}

func TestNewPopulatesNetworkMagic(t *testing.T) {
	cfg := NewConfig(
		WithNetwork("preview"),
		WithAddress("localhost:3001"),
	)
	f, err := New(cfg)
	require.NoError(t, err)
	network, ok := ouroboros.NetworkByName("preview")
	require.True(t, ok)
	assert.Equal(t, network.NetworkMagic, f.config.networkMagic)
}

func TestNewExplicitNetworkMagic(t *testing.T) {
	// An explicit magic value skips the network name lookup
	cfg := NewConfig(
		WithNetwork("bogus"),
		WithNetworkMagic(42),
		WithAddress("localhost:3001"),
	)
	f, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), f.config.networkMagic)
}

func TestNewUnknownNetwork(t *testing.T) {
	cfg := NewConfig(
		WithNetwork("bogus"),
		WithAddress("localhost:3001"),
	)
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown network name: bogus")
}

func TestNewNoAddress(t *testing.T) {
	cfg := NewConfig(
		WithNetworkMagic(42),
	)
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no node address or socket path defined")
}

func TestNewDefaultEventBus(t *testing.T) {
	cfg := NewConfig(
		WithNetworkMagic(42),
		WithAddress("localhost:3001"),
	)
	f, err := New(cfg)
	require.NoError(t, err)
	assert.NotNil(t, f.EventBus())
	assert.True(t, f.ownsEventBus)
}
