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
	"strings"
)

// ComponentSizing is the CPUID leaf 0xD description of one extended state
// component.
type ComponentSizing struct {
	// Size is the size of the component's state in bytes.
	Size uint

	// UncompactedOffset is the offset of the component from the start of
	// a standard format save area. It is zero for supervisor components,
	// which only exist in compacted areas.
	UncompactedOffset uint

	// AlignedWhenCompacted is set when the component is placed at a
	// 64-byte boundary in the compacted format.
	AlignedWhenCompacted bool

	// Owner is the register that enables the component.
	Owner Owner
}

// End returns the first byte after the component in a standard area.
func (s ComponentSizing) End() uint {
	return s.UncompactedOffset + s.Size
}

// SizingTable maps extended components to their sizing. The zero value is
// an empty table.
//
// A SizingTable is a value: copies do not share storage, so a table built
// once can be handed to concurrent readers. A nil *SizingTable reads as
// an empty table.
type SizingTable struct {
	entries [MaxStateComponent + 1]ComponentSizing
	present StateComponentBitmap
}

// NewSizingTable returns a table holding entries.
func NewSizingTable(entries map[StateComponent]ComponentSizing) SizingTable {
	var t SizingTable
	for c, s := range entries {
		t.Set(c, s)
	}
	return t
}

// Set records the sizing of c.
//
// Precondition: c.IsExtended() and s.Size != 0.
func (t *SizingTable) Set(c StateComponent, s ComponentSizing) {
	c.AssertExtended()
	if s.Size == 0 {
		panic(fmt.Sprintf("zero size for state component %v", c))
	}
	t.entries[c] = s
	t.present.Add(c)
}

// Lookup returns the sizing of c, if known.
//
// Precondition: c.IsExtended().
func (t *SizingTable) Lookup(c StateComponent) (ComponentSizing, bool) {
	c.AssertExtended()
	if t == nil || !t.present.Contains(c) {
		return ComponentSizing{}, false
	}
	return t.entries[c], true
}

// Components returns the set of components with an entry.
func (t *SizingTable) Components() StateComponentBitmap {
	if t == nil {
		return 0
	}
	return t.present
}

// Len returns the number of entries.
func (t *SizingTable) Len() int {
	return t.Components().Len()
}

// Equal returns true if t and o hold the same entries.
func (t *SizingTable) Equal(o *SizingTable) bool {
	return len(t.Mismatches(o)) == 0
}

// Mismatches returns the components whose entries differ between t and o,
// including components present in only one table.
func (t *SizingTable) Mismatches(o *SizingTable) []StateComponent {
	var diff []StateComponent
	t.present.Union(o.present).ForEach(func(c StateComponent) {
		if !t.present.Contains(c) || !o.present.Contains(c) || t.entries[c] != o.entries[c] {
			diff = append(diff, c)
		}
	})
	return diff
}

// String implements fmt.Stringer.
func (t *SizingTable) String() string {
	var sb strings.Builder
	t.present.ForEach(func(c StateComponent) {
		s := t.entries[c]
		fmt.Fprintf(&sb, "%v: size=%d offset=%d aligned=%t owner=%v\n", c, s.Size, s.UncompactedOffset, s.AlignedWhenCompacted, s.Owner)
	})
	return sb.String()
}
