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
	"fmt"

	gledger "github.com/blinklabs-io/gouroboros/ledger"
	ochainsync "github.com/blinklabs-io/gouroboros/protocol/chainsync"
	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
)

// NextUpdateKind identifies the type of chain update delivered by the
// upstream node.
type NextUpdateKind int

const (
	// NextUpdateRollForward carries a new block extending the chain.
	NextUpdateRollForward NextUpdateKind = iota + 1

	// NextUpdateRollBackward announces that the chain has reverted to an
	// earlier point, invalidating any newer points.
	NextUpdateRollBackward

	// NextUpdateAwait signals that no new update is immediately
	// available and the client should block until the node has one.
	NextUpdateAwait
)

func (k NextUpdateKind) String() string {
	switch k {
	case NextUpdateRollForward:
		return "roll_forward"
	case NextUpdateRollBackward:
		return "roll_backward"
	case NextUpdateAwait:
		return "await"
	default:
		return "unknown"
	}
}

// NextUpdate is a single chain update received from the upstream node.
// BlockCbor is populated for roll forward updates, Point for roll
// backward updates, and Tip for both.
type NextUpdate struct {
	BlockCbor []byte
	Point     ocommon.Point
	Tip       ochainsync.Tip
	Kind      NextUpdateKind
}

// Client is the transport that a sync session drives. Implementations
// bridge the node-to-client wire protocol; the session logic itself
// never touches the wire.
type Client interface {
	// Handshake establishes the connection and negotiates a protocol
	// version with the upstream node. A version refusal returns
	// ErrHandshakeRefused, while transport failures return a
	// RecoverableError.
	Handshake() error
	// Intersect positions the session at the first of the given points
	// present on the node's chain and returns the node's current tip.
	// An empty point list starts from the node's current tip. Returns
	// ErrIntersectNotFound when no requested point is on the chain.
	Intersect(points []ocommon.Point) (*ochainsync.Tip, error)
	// RequestNext returns the next chain update without blocking. When
	// no update is immediately available, it returns an update with
	// Kind NextUpdateAwait.
	RequestNext() (*NextUpdate, error)
	// AwaitNext blocks until the node delivers the next chain update.
	AwaitNext() (*NextUpdate, error)
	// Close shuts down the transport. Close is safe to call multiple
	// times.
	Close() error
}

// DecodePointFunc extracts the chain point occupied by a raw block.
type DecodePointFunc func(blockCbor []byte) (ocommon.Point, error)

// DecodeBlockPoint is the default DecodePointFunc. It parses the block
// era from the raw CBOR and decodes enough of the block to extract its
// slot and hash.
func DecodeBlockPoint(blockCbor []byte) (ocommon.Point, error) {
	blockType, err := gledger.DetermineBlockType(blockCbor)
	if err != nil {
		return ocommon.Point{}, fmt.Errorf(
			"failed to determine block type: %w",
			err,
		)
	}
	block, err := gledger.NewBlockFromCbor(blockType, blockCbor)
	if err != nil {
		return ocommon.Point{}, fmt.Errorf(
			"failed to decode block: %w",
			err,
		)
	}
	return ocommon.NewPoint(block.SlotNumber(), block.Hash().Bytes()), nil
}
