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
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/taipan/event"

	ochainsync "github.com/blinklabs-io/gouroboros/protocol/chainsync"
	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
)

// Continuation signals whether the session loop should keep processing
// chain updates or stop cleanly.
type Continuation int

const (
	ContinuationProceed Continuation = iota + 1
	ContinuationDropOut
)

// pointKey is a comparable form of ocommon.Point used as the block store
// key.
type pointKey struct {
	hash string
	slot uint64
}

func newPointKey(point ocommon.Point) pointKey {
	return pointKey{
		hash: string(point.Hash),
		slot: point.Slot,
	}
}

type ObserverConfig struct {
	Logger      *slog.Logger
	EventBus    *event.EventBus
	DecodePoint DecodePointFunc
	Finalize    *FinalizeConfig
	MinDepth    int
}

// Observer converts chain updates into rollback buffer mutations and
// confirmed block events. It owns the raw block bytes for every buffered
// point until the point is either confirmed or discarded by a rollback.
// An Observer is used by a single sync attempt and is not safe for
// concurrent use.
type Observer struct {
	config     ObserverConfig
	buffer     *RollbackBuffer
	blocks     map[pointKey][]byte
	metrics    *syncMetrics
	blockCount uint64
}

func NewObserver(cfg ObserverConfig) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.DecodePoint == nil {
		cfg.DecodePoint = DecodeBlockPoint
	}
	return &Observer{
		config: cfg,
		buffer: NewRollbackBuffer(),
		blocks: make(map[pointKey][]byte),
	}
}

// handleRollForward stores a newly announced block, tracks its point in
// the rollback buffer, and emits any blocks that have now reached the
// confirmation depth. Returns ContinuationDropOut when the finalize
// condition is satisfied by an emitted block.
func (o *Observer) handleRollForward(
	blockCbor []byte,
	tip ochainsync.Tip,
) (Continuation, error) {
	// Extract the chain point occupied by the block
	point, err := o.config.DecodePoint(blockCbor)
	if err != nil {
		return ContinuationProceed, err
	}
	key := newPointKey(point)
	if _, ok := o.blocks[key]; ok {
		return ContinuationProceed, fmt.Errorf(
			"%w: slot %d, hash %s",
			ErrDuplicateBlock,
			point.Slot,
			hex.EncodeToString(point.Hash),
		)
	}
	// Store the block for later retrieval
	o.blocks[key] = blockCbor
	// Track the new point in the rollback buffer
	o.config.Logger.Info(
		"rolling forward",
		"slot", point.Slot,
		"hash", hex.EncodeToString(point.Hash),
	)
	o.buffer.RollForward(point)
	// Collect points that have reached the confirmation depth
	ready := o.buffer.PopWithDepth(o.config.MinDepth)
	o.config.Logger.Debug(
		"found points with required min depth",
		"count", len(ready),
	)
	// Emit confirmed blocks downstream, oldest first
	for _, readyPoint := range ready {
		readyKey := newPointKey(readyPoint)
		blockBytes, ok := o.blocks[readyKey]
		if !ok {
			return ContinuationProceed, fmt.Errorf(
				"%w: slot %d, hash %s",
				ErrBlockMissing,
				readyPoint.Slot,
				hex.EncodeToString(readyPoint.Hash),
			)
		}
		delete(o.blocks, readyKey)
		if o.config.EventBus != nil {
			o.config.EventBus.Publish(
				BlockEventType,
				event.NewEvent(
					BlockEventType,
					BlockEvent{
						Point: readyPoint,
						Cbor:  blockBytes,
					},
				),
			)
		}
		o.blockCount++
		if o.metrics != nil {
			o.metrics.blocksConfirmed.Inc()
		}
		// Stop cleanly once the finalize condition is satisfied. Any
		// remaining ready points in this batch are never emitted.
		if o.config.Finalize.reached(readyPoint, o.blockCount) {
			return ContinuationDropOut, nil
		}
	}
	o.logBufferState()
	// Report the upstream chain tip
	if o.metrics != nil {
		o.metrics.tipSlot.Set(float64(tip.Point.Slot))
		o.metrics.tipBlockNumber.Set(float64(tip.BlockNumber))
	}
	return ContinuationProceed, nil
}

// handleRollBackward truncates the rollback buffer at the given point
// and discards any stored blocks that the rollback orphaned. A rollback
// reaching beyond the buffer is announced downstream, since consumers
// may have already received confirmed blocks past the rollback point.
func (o *Observer) handleRollBackward(point ocommon.Point) {
	o.config.Logger.Info(
		"rolling back",
		"slot", point.Slot,
		"hash", hex.EncodeToString(point.Hash),
	)
	if o.metrics != nil {
		o.metrics.rollbacks.Inc()
	}
	switch o.buffer.RollBack(point) {
	case RollbackHandled:
		o.config.Logger.Debug(
			"handled rollback within buffer",
			"slot", point.Slot,
		)
		// Discard stored blocks newer than the rollback point
		for key := range o.blocks {
			if key.slot > point.Slot {
				delete(o.blocks, key)
			}
		}
	case RollbackOutOfScope:
		o.config.Logger.Debug(
			"rollback out of buffer scope, sending event downstream",
			"slot", point.Slot,
		)
		// All buffered blocks are orphaned
		clear(o.blocks)
		if o.metrics != nil {
			o.metrics.rollbacksOutOfScope.Inc()
		}
		if o.config.EventBus != nil {
			o.config.EventBus.Publish(
				RollbackEventType,
				event.NewEvent(
					RollbackEventType,
					RollbackEvent{
						Point: point,
					},
				),
			)
		}
	}
	o.logBufferState()
}

// handleNext dispatches a single chain update. Await updates block on
// the client until a genuine update arrives. This loops rather than
// recursing so that long idle periods at the chain tip cannot grow the
// call stack.
func (o *Observer) handleNext(
	client Client,
	update *NextUpdate,
) (Continuation, error) {
	for {
		switch update.Kind {
		case NextUpdateRollForward:
			return o.handleRollForward(update.BlockCbor, update.Tip)
		case NextUpdateRollBackward:
			o.handleRollBackward(update.Point)
			return ContinuationProceed, nil
		case NextUpdateAwait:
			next, err := client.AwaitNext()
			if err != nil {
				return ContinuationProceed, NewRecoverableError(err)
			}
			update = next
		default:
			return ContinuationProceed, fmt.Errorf(
				"unexpected chain update kind: %d",
				update.Kind,
			)
		}
	}
}

// Run drives the session loop, requesting and dispatching chain updates
// until the finalize condition stops the session cleanly, the context is
// canceled, or an error ends the attempt.
func (o *Observer) Run(ctx context.Context, client Client) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		update, err := client.RequestNext()
		if err != nil {
			return NewRecoverableError(err)
		}
		c, err := o.handleNext(client, update)
		if err != nil {
			return err
		}
		if c == ContinuationDropOut {
			return nil
		}
	}
}

func (o *Observer) logBufferState() {
	attrs := []any{
		"size", o.buffer.Size(),
	}
	if oldest, ok := o.buffer.Oldest(); ok {
		attrs = append(attrs, "oldest_slot", oldest.Slot)
	}
	if latest, ok := o.buffer.Latest(); ok {
		attrs = append(attrs, "latest_slot", latest.Slot)
	}
	o.config.Logger.Info("rollback buffer state", attrs...)
	if o.metrics != nil {
		o.metrics.bufferSize.Set(float64(o.buffer.Size()))
	}
}
