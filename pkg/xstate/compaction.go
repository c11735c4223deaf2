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

package xstate

import (
	"fmt"

	"gvisor.dev/xstate/pkg/bits"
)

// CompactionBit is a bit of the XCOMP_BV header field. Bits 0-62 mirror
// state components; bit 63 is CompactedFormat.
type CompactionBit uint8

// CompactedFormat is set in XCOMP_BV when the area uses the compacted
// format.
const CompactedFormat CompactionBit = 63

// CompactionBitOf returns the indicator bit that corresponds to c.
func CompactionBitOf(c StateComponent) CompactionBit {
	return CompactionBit(c)
}

// Component returns the component that b stands for. It returns false for
// CompactedFormat.
func (b CompactionBit) Component() (StateComponent, bool) {
	if b >= CompactedFormat {
		return 0, false
	}
	return StateComponent(b), true
}

// String implements fmt.Stringer.
func (b CompactionBit) String() string {
	if c, ok := b.Component(); ok {
		return c.String()
	}
	if b == CompactedFormat {
		return "compacted"
	}
	return fmt.Sprintf("CompactionBit(%d)", uint8(b))
}

// CompactionIndicator is the raw XCOMP_BV field of an XSAVE header.
//
// When bit 63 is set the extended region is compacted and bits 0-62 name
// the components that the compacting instruction laid out, which is not
// necessarily the same set as XSTATE_BV. Bit 63 is never exposed as a
// component.
type CompactionIndicator uint64

// NewCompactionIndicator returns an indicator for a compacted area holding
// components.
func NewCompactionIndicator(components StateComponentBitmap) CompactionIndicator {
	return CompactionIndicator(uint64(components)&componentMask | uint64(1)<<CompactedFormat)
}

// IsSet returns true if bit b is set.
func (ci CompactionIndicator) IsSet(b CompactionBit) bool {
	return b <= CompactedFormat && bits.IsOn64(uint64(ci), uint64(1)<<b)
}

// IsCompacted returns true if bit 63 is set.
func (ci CompactionIndicator) IsCompacted() bool {
	return ci.IsSet(CompactedFormat)
}

// Contains returns true if the indicator includes c.
func (ci CompactionIndicator) Contains(c StateComponent) bool {
	return c.Valid() && ci.IsSet(CompactionBitOf(c))
}

// Components returns the component bits, without bit 63.
func (ci CompactionIndicator) Components() StateComponentBitmap {
	return BitmapFromRaw(uint64(ci))
}

// Raw returns the header encoding of ci.
func (ci CompactionIndicator) Raw() uint64 {
	return uint64(ci)
}

// String implements fmt.Stringer.
func (ci CompactionIndicator) String() string {
	if ci.IsCompacted() {
		return "compacted" + ci.Components().String()
	}
	return "standard" + ci.Components().String()
}

// MarshalText implements encoding.TextMarshaler.
func (ci CompactionIndicator) MarshalText() ([]byte, error) {
	return []byte(ci.String()), nil
}
