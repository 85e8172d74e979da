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

// RollbackEffect describes the outcome of applying a rollback to a
// RollbackBuffer.
type RollbackEffect int

const (
	// RollbackHandled indicates that the rollback point was found within
	// the buffer and all newer points were discarded.
	RollbackHandled RollbackEffect = iota + 1

	// RollbackOutOfScope indicates that the rollback point precedes the
	// oldest buffered point. The buffer is emptied, and the caller must
	// notify downstream consumers explicitly, since the in-memory window
	// alone cannot absorb a rollback this deep.
	RollbackOutOfScope
)

// RollbackBuffer tracks the unconfirmed tail of the chain as an ordered
// sequence of points, oldest first. Points are appended as the chain
// extends and leave the buffer either by reaching the confirmation depth
// or by being discarded during a rollback.
type RollbackBuffer struct {
	points []ocommon.Point
}

func NewRollbackBuffer() *RollbackBuffer {
	return &RollbackBuffer{}
}

// RollForward appends a point as the newest entry in the buffer.
func (b *RollbackBuffer) RollForward(point ocommon.Point) {
	b.points = append(b.points, point)
}

// RollBack truncates the buffer at the given point. If the point is
// present in the buffer, all newer points are discarded and
// RollbackHandled is returned. Otherwise the buffer is emptied and
// RollbackOutOfScope is returned.
func (b *RollbackBuffer) RollBack(point ocommon.Point) RollbackEffect {
	for idx, tmpPoint := range b.points {
		if pointsEqual(tmpPoint, point) {
			b.points = b.points[:idx+1]
			return RollbackHandled
		}
	}
	b.points = nil
	return RollbackOutOfScope
}

// PopWithDepth removes and returns all points whose depth reaches
// minDepth, oldest first. The newest point has depth zero, so a point
// qualifies once at least minDepth newer points have been buffered above
// it. Returns nil when no point has sufficient depth.
func (b *RollbackBuffer) PopWithDepth(minDepth int) []ocommon.Point {
	if minDepth < 0 {
		minDepth = 0
	}
	ready := len(b.points) - minDepth
	if ready <= 0 {
		return nil
	}
	popped := make([]ocommon.Point, ready)
	copy(popped, b.points)
	b.points = b.points[ready:]
	return popped
}

// Size returns the number of unconfirmed points currently buffered.
func (b *RollbackBuffer) Size() int {
	return len(b.points)
}

// Oldest returns the oldest buffered point, or false if the buffer is
// empty.
func (b *RollbackBuffer) Oldest() (ocommon.Point, bool) {
	if len(b.points) == 0 {
		return ocommon.Point{}, false
	}
	return b.points[0], true
}

// Latest returns the newest buffered point, or false if the buffer is
// empty.
func (b *RollbackBuffer) Latest() (ocommon.Point, bool) {
	if len(b.points) == 0 {
		return ocommon.Point{}, false
	}
	return b.points[len(b.points)-1], true
}

// pointsEqual returns true when two points identify the same chain
// position. Points at the same slot with different hashes are competing
// forks and never considered equal.
func pointsEqual(a ocommon.Point, b ocommon.Point) bool {
	return a.Slot == b.Slot && bytes.Equal(a.Hash, b.Hash)
}
