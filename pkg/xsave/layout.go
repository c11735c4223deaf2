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
	"strings"

	"gvisor.dev/xstate/pkg/bits"
	"gvisor.dev/xstate/pkg/xstate"
)

// Region is a byte range of a save area.
type Region struct {
	Offset uint `json:"offset" yaml:"offset"`
	Size   uint `json:"size" yaml:"size"`
}

// End returns the first byte after r.
func (r Region) End() uint {
	return r.Offset + r.Size
}

// String implements fmt.Stringer.
func (r Region) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.End())
}

// The fixed parts of the legacy region. x87 and SSE state are each split
// in two, with SSE part 1 (MXCSR and its mask) in the middle of the x87
// fields.
var (
	X87Part1 = Region{Offset: 0, Size: 24}
	SSEPart1 = Region{Offset: 24, Size: 8}
	X87Part2 = Region{Offset: 32, Size: 128}
	SSEPart2 = Region{Offset: 160, Size: 256}
)

// LegacyParts returns the two regions holding a legacy component.
//
// Precondition: c.IsLegacy().
func LegacyParts(c xstate.StateComponent) (part1, part2 Region) {
	switch c {
	case xstate.X87:
		return X87Part1, X87Part2
	case xstate.SSE:
		return SSEPart1, SSEPart2
	default:
		panic(fmt.Sprintf("state component %v is not a legacy component", c))
	}
}

// Layout is the location of every component present in a save area. It is
// derived from a Header and a sizing table and is never stored in the area.
type Layout struct {
	header  Header
	present xstate.StateComponentBitmap
	regions [xstate.MaxStateComponent + 1]Region
}

// Header returns the header the layout was decoded from.
func (l *Layout) Header() Header {
	return l.header
}

// IsCompacted returns true if the layout uses the compacted format.
func (l *Layout) IsCompacted() bool {
	return l.header.Compaction.IsCompacted()
}

// Components returns the components with a region: every component in
// XSTATE_BV.
func (l *Layout) Components() xstate.StateComponentBitmap {
	return l.present
}

// Lookup returns the region of c, and false if c is not present.
//
// For x87 and SSE the region is part 1 of the legacy state, see
// LegacyParts.
func (l *Layout) Lookup(c xstate.StateComponent) (Region, bool) {
	if !l.present.Contains(c) {
		return Region{}, false
	}
	return l.regions[c], true
}

// ForEach calls fn for each present component in ascending bit order.
func (l *Layout) ForEach(fn func(c xstate.StateComponent, r Region)) {
	l.present.ForEach(func(c xstate.StateComponent) {
		fn(c, l.regions[c])
	})
}

// End returns the first byte after the last present component, and at
// least ExtendedRegionOffset.
func (l *Layout) End() uint {
	end := uint(ExtendedRegionOffset)
	l.ForEach(func(_ xstate.StateComponent, r Region) {
		if r.End() > end {
			end = r.End()
		}
	})
	return end
}

// String implements fmt.Stringer.
func (l *Layout) String() string {
	var sb strings.Builder
	format := "standard"
	if l.IsCompacted() {
		format = "compacted"
	}
	fmt.Fprintf(&sb, "%s layout of %v:", format, l.present)
	l.ForEach(func(c xstate.StateComponent, r Region) {
		fmt.Fprintf(&sb, " %v%v", c, r)
	})
	return sb.String()
}

// Decode computes the layout of an area with header h.
//
// The format is selected by XCOMP_BV bit 63. Component bits in XCOMP_BV
// without bit 63 are rejected with ErrCompactionFlagUnset. Present
// extended components without an entry in table are a *ConsistencyFault.
func Decode(h Header, table *xstate.SizingTable) (Layout, error) {
	if h.Compaction.IsCompacted() {
		return decodeCompacted(h, table)
	}
	if !h.Compaction.Components().IsEmpty() {
		return Layout{}, fmt.Errorf("XCOMP_BV %#x has component bits: %w", h.Compaction.Raw(), ErrCompactionFlagUnset)
	}
	return decodeStandard(h, table)
}

// DecodeCompacted is like Decode but requires the compacted format.
func DecodeCompacted(h Header, table *xstate.SizingTable) (Layout, error) {
	if !h.Compaction.IsCompacted() {
		return Layout{}, ErrCompactionFlagUnset
	}
	return decodeCompacted(h, table)
}

func newLayout(h Header) Layout {
	l := Layout{header: h}
	if h.Present.Contains(xstate.X87) {
		l.present.Add(xstate.X87)
		l.regions[xstate.X87] = X87Part1
	}
	if h.Present.Contains(xstate.SSE) {
		l.present.Add(xstate.SSE)
		l.regions[xstate.SSE] = SSEPart1
	}
	return l
}

// decodeStandard places each component at the offset CPUID reports.
func decodeStandard(h Header, table *xstate.SizingTable) (Layout, error) {
	l := newLayout(h)
	var err error
	h.Present.Extended().ForEach(func(c xstate.StateComponent) {
		if err != nil {
			return
		}
		s, ok := table.Lookup(c)
		if !ok {
			err = &ConsistencyFault{Component: c, Reason: "present but not enumerated"}
			return
		}
		if s.Owner == xstate.Supervisor {
			err = &ConsistencyFault{Component: c, Reason: "supervisor state in a standard format area"}
			return
		}
		l.present.Add(c)
		l.regions[c] = Region{Offset: s.UncompactedOffset, Size: s.Size}
	})
	if err != nil {
		return Layout{}, err
	}
	return l, nil
}

// walkCompacted calls fn with the offset of each extended component in
// components, packed in ascending bit order from ExtendedRegionOffset. A
// component with AlignedWhenCompacted rounds the running offset up to a
// multiple of 64 after its own bytes. It returns the end of the walk.
func walkCompacted(table *xstate.SizingTable, components xstate.StateComponentBitmap, fn func(c xstate.StateComponent, r Region)) (uint, error) {
	offset := uint(ExtendedRegionOffset)
	var err error
	components.Extended().ForEach(func(c xstate.StateComponent) {
		if err != nil {
			return
		}
		s, ok := table.Lookup(c)
		if !ok {
			err = &ConsistencyFault{Component: c, Reason: "compacted but not enumerated"}
			return
		}
		fn(c, Region{Offset: offset, Size: s.Size})
		offset += s.Size
		if s.AlignedWhenCompacted {
			offset = bits.AlignUp(offset, Alignment)
		}
	})
	return offset, err
}

// decodeCompacted walks XCOMP_BV, which is authoritative for the packing,
// and keeps the components that are also in XSTATE_BV. Indicator bits above
// the highest present component do not move anything present, so they are
// not walked and need no sizing.
func decodeCompacted(h Header, table *xstate.SizingTable) (Layout, error) {
	l := newLayout(h)
	var walked [xstate.MaxStateComponent + 1]Region
	present := h.Present.Extended()
	limit := xstate.StateComponentBitmap(0)
	if !present.IsEmpty() {
		limit = xstate.BitmapFromRaw(bits.LowMask64(bits.MostSignificantOne64(present.Raw()) + 1))
	}
	if _, err := walkCompacted(table, h.Compaction.Components().Intersect(limit), func(c xstate.StateComponent, r Region) {
		walked[c] = r
	}); err != nil {
		return Layout{}, err
	}
	var err error
	h.Present.Extended().ForEach(func(c xstate.StateComponent) {
		if err != nil {
			return
		}
		if !h.Compaction.Contains(c) {
			err = &ConsistencyFault{Component: c, Reason: "present but not in XCOMP_BV"}
			return
		}
		l.present.Add(c)
		l.regions[c] = walked[c]
	})
	if err != nil {
		return Layout{}, err
	}
	return l, nil
}

// CompactedSize returns the size of a compacted area holding components.
func CompactedSize(table *xstate.SizingTable, components xstate.StateComponentBitmap) (uint, error) {
	return walkCompacted(table, components, func(xstate.StateComponent, Region) {})
}
