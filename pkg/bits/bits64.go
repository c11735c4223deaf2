// Copyright 2018 The gVisor Authors.
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

// Package bits includes all bit related types and operations.
package bits

import (
	mathbits "math/bits"
)

// IsOn64 returns true if *all* bits set in 'bits' are set in 'mask'.
func IsOn64(mask, bits uint64) bool {
	return mask&bits == bits
}

// IsAnyOn64 returns true if *any* bit set in 'bits' is set in 'mask'.
func IsAnyOn64(mask, bits uint64) bool {
	return mask&bits != 0
}

// Mask64 returns a uint64 with all of the given bits set.
func Mask64(is ...int) uint64 {
	ret := uint64(0)
	for _, i := range is {
		ret |= MaskOf64(i)
	}
	return ret
}

// MaskOf64 is like Mask64, but sets only a single bit (more efficiently).
func MaskOf64(i int) uint64 {
	return uint64(1) << uint64(i)
}

// LowMask64 returns a mask with bits [0, n) set. n must be in [0, 64].
func LowMask64(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return MaskOf64(n) - 1
}

// TrailingZeros64 returns the number of bits before the least significant 1
// bit in x; in other words, it returns the index of the least significant 1
// bit in x. If x is 0, TrailingZeros64 returns 64.
func TrailingZeros64(x uint64) int {
	return mathbits.TrailingZeros64(x)
}

// MostSignificantOne64 returns the index of the most significant 1 bit in
// x. If x is 0, MostSignificantOne64 returns 64.
func MostSignificantOne64(x uint64) int {
	if x == 0 {
		return 64
	}
	return 63 - mathbits.LeadingZeros64(x)
}

// ForEachSetBit64 calls f once for each set bit in x, with argument i equal to
// the set bit's index, in ascending order.
func ForEachSetBit64(x uint64, f func(i int)) {
	for x != 0 {
		i := TrailingZeros64(x)
		f(i)
		x &^= MaskOf64(i)
	}
}

// AlignUp rounds v up to the next multiple of align, which must be a power of
// two.
func AlignUp(v, align uint) uint {
	return (v + align - 1) &^ (align - 1)
}

// IsAligned returns true if v is a multiple of align, which must be a power
// of two.
func IsAligned(v, align uint) bool {
	return v&(align-1) == 0
}
