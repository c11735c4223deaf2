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
	"strings"

	"gvisor.dev/xstate/pkg/bits"
)

// componentMask covers the bits that can name components.
const componentMask = uint64(1)<<63 - 1

// legacyMask covers x87 and SSE.
const legacyMask = uint64(1)<<X87 | uint64(1)<<SSE

// StateComponentBitmap is a set of state components, stored the way XCR0,
// IA32_XSS and XSTATE_BV store them. Bit 63 is never set through this API.
type StateComponentBitmap uint64

// BitmapOf returns the set holding cs.
func BitmapOf(cs ...StateComponent) StateComponentBitmap {
	var b StateComponentBitmap
	for _, c := range cs {
		b.Add(c)
	}
	return b
}

// BitmapFromRaw converts a raw register value, discarding bit 63.
func BitmapFromRaw(raw uint64) StateComponentBitmap {
	return StateComponentBitmap(raw & componentMask)
}

// Contains returns true if c is in the set.
func (b StateComponentBitmap) Contains(c StateComponent) bool {
	return c.Valid() && bits.IsOn64(uint64(b), uint64(1)<<c)
}

// Add inserts c.
//
// Precondition: c.Valid().
func (b *StateComponentBitmap) Add(c StateComponent) {
	*b |= StateComponentBitmap(c.Mask())
}

// Remove deletes c.
func (b *StateComponentBitmap) Remove(c StateComponent) {
	if c.Valid() {
		*b &^= StateComponentBitmap(c.Mask())
	}
}

// Union returns b | o.
func (b StateComponentBitmap) Union(o StateComponentBitmap) StateComponentBitmap {
	return b | o
}

// Intersect returns b & o.
func (b StateComponentBitmap) Intersect(o StateComponentBitmap) StateComponentBitmap {
	return b & o
}

// Without returns b &^ o.
func (b StateComponentBitmap) Without(o StateComponentBitmap) StateComponentBitmap {
	return b &^ o
}

// Legacy returns the x87 and SSE members of b.
func (b StateComponentBitmap) Legacy() StateComponentBitmap {
	return b & StateComponentBitmap(legacyMask)
}

// Extended returns the members of b in 2-62.
func (b StateComponentBitmap) Extended() StateComponentBitmap {
	return b & StateComponentBitmap(componentMask&^legacyMask)
}

// IsEmpty returns true if b has no members.
func (b StateComponentBitmap) IsEmpty() bool {
	return b&StateComponentBitmap(componentMask) == 0
}

// Len returns the number of members.
func (b StateComponentBitmap) Len() int {
	n := 0
	b.ForEach(func(StateComponent) { n++ })
	return n
}

// ForEach calls fn for each member in ascending bit order.
func (b StateComponentBitmap) ForEach(fn func(c StateComponent)) {
	bits.ForEachSetBit64(uint64(b)&componentMask, func(i int) {
		fn(StateComponent(i))
	})
}

// Components returns the members in ascending bit order.
func (b StateComponentBitmap) Components() []StateComponent {
	var cs []StateComponent
	b.ForEach(func(c StateComponent) { cs = append(cs, c) })
	return cs
}

// Raw returns the register encoding of b.
func (b StateComponentBitmap) Raw() uint64 {
	return uint64(b)
}

// String implements fmt.Stringer.
func (b StateComponentBitmap) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	b.ForEach(func(c StateComponent) {
		if sb.Len() > 1 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	})
	sb.WriteByte('}')
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (b StateComponentBitmap) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UserEnabled is the value of XCR0: the user state components the operating
// system has enabled for XSAVE.
type UserEnabled uint64

// Bitmap converts e to a component set.
func (e UserEnabled) Bitmap() StateComponentBitmap {
	return BitmapFromRaw(uint64(e))
}

// String implements fmt.Stringer.
func (e UserEnabled) String() string {
	return "XCR0" + e.Bitmap().String()
}

// MarshalText implements encoding.TextMarshaler.
func (e UserEnabled) MarshalText() ([]byte, error) {
	return e.Bitmap().MarshalText()
}

// SupervisorEnabled is the value of IA32_XSS: the supervisor state
// components enabled for XSAVES.
type SupervisorEnabled uint64

// Bitmap converts e to a component set.
func (e SupervisorEnabled) Bitmap() StateComponentBitmap {
	return BitmapFromRaw(uint64(e))
}

// String implements fmt.Stringer.
func (e SupervisorEnabled) String() string {
	return "XSS" + e.Bitmap().String()
}

// MarshalText implements encoding.TextMarshaler.
func (e SupervisorEnabled) MarshalText() ([]byte, error) {
	return e.Bitmap().MarshalText()
}
