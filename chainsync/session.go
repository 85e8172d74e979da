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

package chainsync

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/blinklabs-io/taipan/event"

	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
	"github.com/prometheus/client_golang/prometheus"
)

// PointSource supplies a previously recorded chain position used to
// resume synchronization ahead of the configured intersect points. The
// second return value is false when no position has been recorded.
type PointSource interface {
	Load() (ocommon.Point, bool, error)
}

type SessionConfig struct {
	Logger          *slog.Logger
	EventBus        *event.EventBus
	NewClient       func() (Client, error)
	DecodePoint     DecodePointFunc
	PointSource     PointSource
	Finalize        *FinalizeConfig
	PromRegistry    prometheus.Registerer
	IntersectPoints []ocommon.Point
	MinDepth        int
	IntersectTip    bool
}

// Session drives chain sync attempts against an upstream node. Each call
// to Run creates a fresh client and observer, performs the protocol
// handshake, resolves the starting intersection, and then processes
// chain updates until the attempt ends. The session itself persists
// across attempts and carries the shared metrics.
type Session struct {
	config  SessionConfig
	metrics *syncMetrics
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "chainsync")
	return &Session{
		config:  cfg,
		metrics: newSyncMetrics(cfg.PromRegistry),
	}
}

// Run performs a single sync attempt. A nil return means the attempt
// ended cleanly via the finalize condition. Errors wrapped in
// RecoverableError indicate transient transport failures that the
// caller may retry; any other error is fatal.
func (s *Session) Run(ctx context.Context) error {
	if s.config.NewClient == nil {
		return errors.New("no client configured")
	}
	client, err := s.config.NewClient()
	if err != nil {
		return err
	}
	defer client.Close()
	// Unblock any pending transport reads when the context is canceled
	stopClose := context.AfterFunc(ctx, func() {
		client.Close()
	})
	defer stopClose()
	if err := client.Handshake(); err != nil {
		return err
	}
	points, err := s.intersectPoints()
	if err != nil {
		return NewRecoverableError(err)
	}
	tip, err := client.Intersect(points)
	if err != nil {
		return err
	}
	s.config.Logger.Info(
		"starting chain sync",
		"tip_slot", tip.Point.Slot,
		"tip_block_number", tip.BlockNumber,
	)
	observer := NewObserver(ObserverConfig{
		Logger:      s.config.Logger,
		EventBus:    s.config.EventBus,
		DecodePoint: s.config.DecodePoint,
		Finalize:    s.config.Finalize,
		MinDepth:    s.config.MinDepth,
	})
	observer.metrics = s.metrics
	return observer.Run(ctx, client)
}

// intersectPoints assembles the candidate starting points for an
// attempt: the point source's recorded position first, then the
// configured intersect points. When nothing is configured the origin
// point is used, unless the session is configured to start from the
// node's current tip, in which case the empty list is passed through
// and resolved by the client.
func (s *Session) intersectPoints() ([]ocommon.Point, error) {
	var points []ocommon.Point
	if s.config.PointSource != nil {
		point, ok, err := s.config.PointSource.Load()
		if err != nil {
			return nil, err
		}
		if ok {
			points = append(points, point)
		}
	}
	points = append(points, s.config.IntersectPoints...)
	if len(points) == 0 && !s.config.IntersectTip {
		points = append(points, ocommon.NewPoint(0, nil))
	}
	return points, nil
}
