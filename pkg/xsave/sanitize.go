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
	"gvisor.dev/xstate/pkg/xstate"
)

const (
	// mxcsrOffset is the offset in bytes of the MXCSR field from the start of
	// the FXSAVE area. (Intel SDM Vol. 1, Table 10-2 "Format of an FXSAVE
	// Area")
	mxcsrOffset = 24

	// mxcsrMaskOffset is the offset in bytes of the MXCSR_MASK field from the
	// start of the FXSAVE area.
	mxcsrMaskOffset = 28
)

// DefaultMXCSRMask is the MXCSR_MASK to assume when the saved one is zero.
//
// "If the value of the MXCSR_MASK field is 00000000H, then the MXCSR_MASK
// value is the default value of 0000FFBFH." - Intel SDM Vol. 1, Section
// 11.6.6 "Guidelines for Writing to the MXCSR Register"
const DefaultMXCSRMask MXCSR = 0xffbf

// Sanitize makes the area safe to restore with XRSTOR, using the
// MXCSR_MASK saved in the area.
func (v *View) Sanitize(valid xstate.UserEnabled) error {
	mask := MXCSR(byteOrder.Uint32(v.buf[mxcsrMaskOffset:]))
	return v.SanitizeWithMask(valid, mask)
}

// SanitizeWithMask is Sanitize with the given MXCSR_MASK. The layout is
// decoded again afterwards.
func (v *View) SanitizeWithMask(valid xstate.UserEnabled, mxcsrMask MXCSR) error {
	if err := SanitizeArea(v.buf, valid, mxcsrMask); err != nil {
		return err
	}
	return v.Refresh()
}

// SanitizeArea makes the area in f safe to restore with XRSTOR:
//   - reserved MXCSR bits are cleared using mxcsrMask;
//   - XSTATE_BV is clamped to the valid user bits;
//   - for standard format areas XCOMP_BV and the reserved header bytes are
//     zeroed, for compacted areas only the reserved bytes are.
//
// Unlike NewView it does not require a consistent header, so it can repair
// areas supplied by users.
func SanitizeArea(f []byte, valid xstate.UserEnabled, mxcsrMask MXCSR) error {
	if len(f) < ExtendedRegionOffset {
		return &BoundsViolation{Component: xstate.X87, Size: ExtendedRegionOffset, Len: len(f)}
	}

	// Force reserved bits in MXCSR to 0. This is consistent with Linux.
	if mxcsrMask == 0 {
		mxcsrMask = DefaultMXCSRMask
	}
	mxcsr := byteOrder.Uint32(f[mxcsrOffset:])
	mxcsr &= uint32(mxcsrMask)
	byteOrder.PutUint32(f[mxcsrOffset:], mxcsr)

	// Users can't enable *more* XCR0 bits than what the CPU supports.
	xstateBV := byteOrder.Uint64(f[xstateBVOffset:])
	xstateBV &= valid.Bitmap().Raw()
	byteOrder.PutUint64(f[xstateBVOffset:], xstateBV)

	zeroed := f[xsaveHeaderZeroedOffset : xsaveHeaderZeroedOffset+xsaveHeaderZeroedBytes]
	if xstate.CompactionIndicator(byteOrder.Uint64(f[xcompBVOffset:])).IsCompacted() {
		// Keep XCOMP_BV, it determines the layout.
		zeroed = zeroed[8:]
	}
	for i := range zeroed {
		zeroed[i] = 0
	}
	return nil
}
