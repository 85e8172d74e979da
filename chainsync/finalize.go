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
	"bytes"

	ocommon "github.com/blinklabs-io/gouroboros/protocol/common"
)

// FinalizeConfig describes a condition that deliberately stops a sync
// session after a specific confirmed block. When UntilHash is set, the
// session stops once the block with that hash is confirmed and MaxBlocks
// is ignored. Otherwise the session stops once MaxBlocks blocks have
// been confirmed. A nil FinalizeConfig never stops the session.
type FinalizeConfig struct {
	UntilHash []byte
	MaxBlocks uint64
}

// reached returns true when the given confirmed point or running block
// count satisfies the finalize condition.
func (f *FinalizeConfig) reached(point ocommon.Point, blockCount uint64) bool {
	if f == nil {
		return false
	}
	if len(f.UntilHash) > 0 {
		return bytes.Equal(point.Hash, f.UntilHash)
	}
	if f.MaxBlocks > 0 {
		return blockCount >= f.MaxBlocks
	}
	return false
}
