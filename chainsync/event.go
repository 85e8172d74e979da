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
	"github.com/blinklabs-io/taipan/event"

	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
)

const (
	// BlockEventType is emitted when a block reaches the configured
	// confirmation depth and leaves the rollback buffer.
	BlockEventType event.EventType = "chainsync.block"

	// RollbackEventType is emitted when the chain rolls back beyond the
	// oldest point in the rollback buffer. Downstream consumers that
	// have already received confirmed blocks past the rollback point
	// must roll back themselves.
	RollbackEventType event.EventType = "chainsync.rollback"
)

// BlockEvent contains a confirmed block and the chain point it occupies.
type BlockEvent struct {
	Point ocommon.Point
	Cbor  []byte
}

// RollbackEvent contains the chain point that the chain rolled back to.
type RollbackEvent struct {
	Point ocommon.Point
}
