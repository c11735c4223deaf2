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
	"fmt"

	"gvisor.dev/xstate/pkg/xstate"
)

// Header is the XSAVE header at offset 512.
type Header struct {
	// Present is XSTATE_BV: the components that are not in their initial
	// configuration.
	Present xstate.StateComponentBitmap

	// Compaction is XCOMP_BV.
	Compaction xstate.CompactionIndicator
}

// DecodeHeader reads the header of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < ExtendedRegionOffset {
		return Header{}, &BoundsViolation{Component: xstate.X87, Size: ExtendedRegionOffset, Len: len(buf)}
	}
	raw := byteOrder.Uint64(buf[xstateBVOffset:])
	if raw&(1<<63) != 0 {
		return Header{}, fmt.Errorf("XSTATE_BV %#x has bit 63 set", raw)
	}
	return Header{
		Present:    xstate.BitmapFromRaw(raw),
		Compaction: xstate.CompactionIndicator(byteOrder.Uint64(buf[xcompBVOffset:])),
	}, nil
}

// Encode writes h into the header of buf. Reserved bytes are not touched.
func (h Header) Encode(buf []byte) error {
	if len(buf) < ExtendedRegionOffset {
		return &BoundsViolation{Component: xstate.X87, Size: ExtendedRegionOffset, Len: len(buf)}
	}
	byteOrder.PutUint64(buf[xstateBVOffset:], h.Present.Raw())
	byteOrder.PutUint64(buf[xcompBVOffset:], h.Compaction.Raw())
	return nil
}

// String implements fmt.Stringer.
func (h Header) String() string {
	return fmt.Sprintf("XSTATE_BV=%v XCOMP_BV=%v", h.Present, h.Compaction)
}
