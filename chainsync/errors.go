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

import "errors"

var (
	// ErrHandshakeRefused is returned when the upstream node rejects all
	// of our proposed protocol versions. Retrying cannot fix this.
	ErrHandshakeRefused = errors.New("could not agree on handshake version")

	// ErrIntersectNotFound is returned when the upstream node's chain has
	// no intersection with any of the requested starting points.
	ErrIntersectNotFound = errors.New("cannot find chain intersection point")

	// ErrBlockMissing is returned when a point reaches confirmation depth
	// but its block bytes are no longer present in the block store. This
	// indicates an internal invariant violation.
	ErrBlockMissing = errors.New("required block not found in memory")

	// ErrDuplicateBlock is returned when the upstream node announces a
	// forward point that is already present in the block store. A valid
	// chain never re-announces the same forward point.
	ErrDuplicateBlock = errors.New("duplicate block announced for point")
)

// RecoverableError wraps a transport-level failure that is expected to be
// transient, such as a connection reset or read error. The retry loop
// restarts the sync session when an attempt fails with a recoverable
// error. Any error not wrapped in RecoverableError is considered fatal
// and deliberately stops the sync session without further retries.
type RecoverableError struct {
	Err error
}

func NewRecoverableError(err error) RecoverableError {
	return RecoverableError{Err: err}
}

func (e RecoverableError) Error() string {
	return e.Err.Error()
}

func (e RecoverableError) Unwrap() error {
	return e.Err
}

// IsRecoverable returns true if any error in the chain is a
// RecoverableError.
func IsRecoverable(err error) bool {
	var recoverableErr RecoverableError
	return errors.As(err, &recoverableErr)
}
