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

// Package xstate describes the processor state components that the XSAVE
// feature set manages, and the bitmaps that select them.
//
// A state component is identified by its bit index in the XCR0/IA32_XSS
// registers and in the XSAVE header. Components 0 (x87) and 1 (SSE) live in
// the fixed legacy region of the save area; components 2 through 62 are
// extended components whose size and location are enumerated by CPUID leaf
// 0xD. Bit 63 of the header's XCOMP_BV field marks the compacted format and
// is never a component, see CompactionBit.
package xstate

import (
	"fmt"
	"sort"
)

// StateComponent is the bit index of an XSAVE state component.
//
// Valid values are 0 through 62. Use NewStateComponent to convert an
// untrusted bit index.
type StateComponent uint8

// Known state components.
const (
	// X87 is the legacy x87 FPU and MMX state.
	X87 StateComponent = 0

	// SSE is the legacy MXCSR and XMM register state.
	SSE StateComponent = 1

	// AVX is the upper halves of YMM0-YMM15.
	AVX StateComponent = 2

	// BNDREGS is the MPX bound registers BND0-BND3.
	BNDREGS StateComponent = 3

	// BNDCSR is the MPX configuration and status registers.
	BNDCSR StateComponent = 4

	// Opmask is the AVX-512 opmask registers k0-k7.
	Opmask StateComponent = 5

	// ZMMHi256 is the upper halves of ZMM0-ZMM15.
	ZMMHi256 StateComponent = 6

	// Hi16ZMM is ZMM16-ZMM31.
	Hi16ZMM StateComponent = 7

	// PT is the processor trace state. Supervisor.
	PT StateComponent = 8

	// PKRU is the protection key rights register.
	PKRU StateComponent = 9

	// HDC is the hardware duty cycling state. Supervisor.
	HDC StateComponent = 13

	// TILECFG is the AMX tile configuration.
	TILECFG StateComponent = 17

	// TILEDATA is the AMX tile data.
	TILEDATA StateComponent = 18

	// MaxStateComponent is the highest bit that can name a component.
	MaxStateComponent StateComponent = 62

	// FirstExtended is the first component outside the legacy region.
	FirstExtended StateComponent = 2
)

// Owner is the register that enables a state component.
type Owner uint8

// Owners.
const (
	// User components are enabled in XCR0.
	User Owner = iota

	// Supervisor components are enabled in IA32_XSS.
	Supervisor
)

// String implements fmt.Stringer.
func (o Owner) String() string {
	switch o {
	case User:
		return "user"
	case Supervisor:
		return "supervisor"
	default:
		return fmt.Sprintf("Owner(%d)", uint8(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Owner) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// ErrInvalidComponent is returned for bit indexes that cannot name a state
// component.
type ErrInvalidComponent struct {
	Bit uint
}

// Error implements error.Error.
func (e *ErrInvalidComponent) Error() string {
	return fmt.Sprintf("bit %d is not a state component (valid range is 0-%d)", e.Bit, MaxStateComponent)
}

// NewStateComponent returns the component at the given bit index.
func NewStateComponent(bit uint) (StateComponent, error) {
	if bit > uint(MaxStateComponent) {
		return 0, &ErrInvalidComponent{Bit: bit}
	}
	return StateComponent(bit), nil
}

// Valid returns true if c is in 0-62.
func (c StateComponent) Valid() bool {
	return c <= MaxStateComponent
}

// Bit returns the bit index of c.
func (c StateComponent) Bit() uint {
	return uint(c)
}

// Mask returns the single bit mask for c.
//
// Precondition: c.Valid().
func (c StateComponent) Mask() uint64 {
	if !c.Valid() {
		panic(fmt.Sprintf("invalid state component %d", uint8(c)))
	}
	return 1 << c
}

// IsLegacy returns true for x87 and SSE, whose state lives in the legacy
// region at fixed offsets.
func (c StateComponent) IsLegacy() bool {
	return c < FirstExtended
}

// IsExtended returns true for components 2-62.
func (c StateComponent) IsExtended() bool {
	return c >= FirstExtended && c <= MaxStateComponent
}

// AssertExtended panics if c is not an extended component. Passing x87, SSE
// or bit 63 where an extended component is required is a programming error.
func (c StateComponent) AssertExtended() {
	if !c.IsExtended() {
		panic(fmt.Sprintf("state component %v is not an extended component", c))
	}
}

type componentInfo struct {
	name  string
	owner Owner
	desc  string
}

// catalog holds the architecturally defined components that this package
// knows by name.
var catalog = map[StateComponent]componentInfo{
	X87:      {"x87", User, "x87 FPU/MMX state"},
	SSE:      {"sse", User, "MXCSR and XMM0-XMM15"},
	AVX:      {"avx", User, "upper 128 bits of YMM0-YMM15"},
	BNDREGS:  {"bndregs", User, "MPX bound registers"},
	BNDCSR:   {"bndcsr", User, "MPX BNDCFGU and BNDSTATUS"},
	Opmask:   {"opmask", User, "AVX-512 opmask registers k0-k7"},
	ZMMHi256: {"zmm_hi256", User, "upper 256 bits of ZMM0-ZMM15"},
	Hi16ZMM:  {"hi16_zmm", User, "ZMM16-ZMM31"},
	PT:       {"pt", Supervisor, "processor trace"},
	PKRU:     {"pkru", User, "protection key rights register"},
	HDC:      {"hdc", Supervisor, "hardware duty cycling"},
	TILECFG:  {"tilecfg", User, "AMX tile configuration"},
	TILEDATA: {"tiledata", User, "AMX tile data"},
}

// String implements fmt.Stringer.
func (c StateComponent) String() string {
	if info, ok := catalog[c]; ok {
		return info.name
	}
	return fmt.Sprintf("component%d", uint8(c))
}

// Description returns a human readable description of a known component, or
// the empty string.
func (c StateComponent) Description() string {
	return catalog[c].desc
}

// Owner returns the architectural owner of a known component. Components
// that are not in the catalog report User; CPUID is authoritative for them,
// see ComponentSizing.Owner.
func (c StateComponent) Owner() Owner {
	return catalog[c].owner
}

// MarshalText implements encoding.TextMarshaler.
func (c StateComponent) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Catalog returns every named component in ascending bit order.
func Catalog() []StateComponent {
	cs := make([]StateComponent, 0, len(catalog))
	for c := range catalog {
		cs = append(cs, c)
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i] < cs[j] })
	return cs
}

// ComponentFromString returns the component with the given name. Names of
// the form "componentN" are accepted for any valid N.
func ComponentFromString(name string) (StateComponent, bool) {
	for c, info := range catalog {
		if info.name == name {
			return c, true
		}
	}
	var n uint
	if _, err := fmt.Sscanf(name, "component%d", &n); err == nil {
		if c, err := NewStateComponent(n); err == nil {
			return c, true
		}
	}
	return 0, false
}
