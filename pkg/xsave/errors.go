// Copyright 2026 The gVisor Authors.
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

package xsave

import (
	"errors"
	"fmt"

	"gvisor.dev/xstate/pkg/xstate"
)

// ErrCompactionFlagUnset is returned when compacted decoding is requested,
// or implied by component bits in XCOMP_BV, but XCOMP_BV bit 63 is clear.
var ErrCompactionFlagUnset = errors.New("XCOMP_BV compaction flag (bit 63) is not set")

// ConsistencyFault is returned when the header references a state
// component that the sizing table cannot describe. This means the area was
// written by a different processor, or is corrupt.
type ConsistencyFault struct {
	// Component is the offending component.
	Component xstate.StateComponent

	// Reason describes the inconsistency.
	Reason string
}

// Error implements error.Error.
func (e *ConsistencyFault) Error() string {
	return fmt.Sprintf("state component %v: %s", e.Component, e.Reason)
}

// BoundsViolation is returned when a region of the area would extend past
// the end of the buffer.
type BoundsViolation struct {
	// Component is the component whose region does not fit. It is X87
	// when the buffer cannot hold the legacy region and header.
	Component xstate.StateComponent

	// Offset and Size describe the region.
	Offset uint
	Size   uint

	// Len is the length of the buffer.
	Len int
}

// Error implements error.Error.
func (e *BoundsViolation) Error() string {
	return fmt.Sprintf("state component %v at [%d, %d) exceeds buffer of %d bytes", e.Component, e.Offset, e.Offset+e.Size, e.Len)
}
