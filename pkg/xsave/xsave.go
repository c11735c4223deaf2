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

// Package xsave decodes the memory layout written by the XSAVE family of
// instructions (and by FXSAVE, for the legacy region).
//
// An XSAVE area has three parts:
//
//	[0, 512)    legacy region, the FXSAVE image of x87 and SSE state
//	[512, 576)  XSAVE header: XSTATE_BV, XCOMP_BV and reserved bytes
//	[576, ...)  extended region, one block per extended state component
//
// In the standard format every extended component lives at the fixed
// offset reported by CPUID. In the compacted format (XCOMP_BV bit 63 set)
// components are packed in ascending bit order, and a component's offset
// depends on which lower components the area holds. Decode computes both
// into a Layout; View exposes bounds checked slices of a buffer.
package xsave

import (
	"encoding/binary"
)

const (
	// LegacyRegionSize is the size of the FXSAVE compatible region.
	LegacyRegionSize = 512

	// HeaderOffset is the offset of the XSAVE header.
	HeaderOffset = LegacyRegionSize

	// HeaderSize is the size of the XSAVE header.
	HeaderSize = 64

	// ExtendedRegionOffset is the offset of the first extended component
	// in the compacted format, and the minimum size of an XSAVE area.
	ExtendedRegionOffset = HeaderOffset + HeaderSize

	// Alignment is the required alignment of an XSAVE area, and of
	// compacted components that ask for it.
	Alignment = 64
)

const (
	// xstateBVOffset is the offset in bytes of the XSTATE_BV field in an x86
	// XSAVE area.
	xstateBVOffset = HeaderOffset

	// xcompBVOffset is the offset of the XCOMP_BV field.
	xcompBVOffset = HeaderOffset + 8

	// headerKeySize is the number of header bytes that determine the
	// layout.
	headerKeySize = 16

	// xsaveHeaderZeroedOffset and xsaveHeaderZeroedBytes indicate parts of the
	// XSAVE header that we coerce to zero: "Bytes 15:8 of the XSAVE header is
	// a state-component bitmap called XCOMP_BV. ... Bytes 63:16 of the XSAVE
	// header are reserved." - Intel SDM Vol. 1, Section 13.4.2 "XSAVE Header".
	xsaveHeaderZeroedOffset = HeaderOffset + 8
	xsaveHeaderZeroedBytes  = HeaderSize - 8
)

// byteOrder is the byte order of every field in the save area.
var byteOrder = binary.LittleEndian
