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
)

// RoundingControl is the rounding mode field of the x87 control word and
// of MXCSR.
type RoundingControl uint8

// Rounding modes.
const (
	RoundToNearest RoundingControl = iota
	RoundDown
	RoundUp
	RoundTowardZero
)

// String implements fmt.Stringer.
func (r RoundingControl) String() string {
	switch r {
	case RoundToNearest:
		return "nearest"
	case RoundDown:
		return "down"
	case RoundUp:
		return "up"
	case RoundTowardZero:
		return "zero"
	default:
		return fmt.Sprintf("RoundingControl(%d)", uint8(r))
	}
}

// PrecisionControl is the precision field of the x87 control word.
type PrecisionControl uint8

// Precisions.
const (
	SinglePrecision         PrecisionControl = 0
	reservedPrecision       PrecisionControl = 1
	DoublePrecision         PrecisionControl = 2
	DoubleExtendedPrecision PrecisionControl = 3
)

// String implements fmt.Stringer.
func (p PrecisionControl) String() string {
	switch p {
	case SinglePrecision:
		return "single"
	case reservedPrecision:
		return "reserved"
	case DoublePrecision:
		return "double"
	case DoubleExtendedPrecision:
		return "extended"
	default:
		return fmt.Sprintf("PrecisionControl(%d)", uint8(p))
	}
}

// Exception flag and mask bits, shared by the x87 status and control words
// and, at different positions, by MXCSR.
const (
	ExceptionInvalid   = 1 << 0
	ExceptionDenormal  = 1 << 1
	ExceptionZeroDiv   = 1 << 2
	ExceptionOverflow  = 1 << 3
	ExceptionUnderflow = 1 << 4
	ExceptionPrecision = 1 << 5

	exceptionMask = 0x3f
)

// ControlWord is the x87 FPU control word (FCW).
type ControlWord uint16

// DefaultControlWord is the value after FNINIT.
const DefaultControlWord ControlWord = 0x037f

// ExceptionMasks returns the masked exceptions, as Exception* bits.
func (w ControlWord) ExceptionMasks() uint8 {
	return uint8(w) & exceptionMask
}

// Precision returns the precision control field.
func (w ControlWord) Precision() PrecisionControl {
	return PrecisionControl((w >> 8) & 0x3)
}

// Rounding returns the rounding control field.
func (w ControlWord) Rounding() RoundingControl {
	return RoundingControl((w >> 10) & 0x3)
}

// InfinityControl returns the (obsolete) infinity control bit.
func (w ControlWord) InfinityControl() bool {
	return w&(1<<12) != 0
}

// StatusWord is the x87 FPU status word (FSW).
type StatusWord uint16

// Exceptions returns the pending exception flags, as Exception* bits.
func (w StatusWord) Exceptions() uint8 {
	return uint8(w) & exceptionMask
}

// StackFault returns the SF bit.
func (w StatusWord) StackFault() bool {
	return w&(1<<6) != 0
}

// ErrorSummary returns the ES bit.
func (w StatusWord) ErrorSummary() bool {
	return w&(1<<7) != 0
}

// ConditionCodes returns C0, C1, C2 and C3.
func (w StatusWord) ConditionCodes() (c0, c1, c2, c3 bool) {
	return w&(1<<8) != 0, w&(1<<9) != 0, w&(1<<10) != 0, w&(1<<14) != 0
}

// Top returns the index of the register at the top of the stack.
func (w StatusWord) Top() uint8 {
	return uint8((w >> 11) & 0x7)
}

// Busy returns the B bit.
func (w StatusWord) Busy() bool {
	return w&(1<<15) != 0
}

// AbridgedTagWord is the FXSAVE form of the x87 tag word: one bit per
// physical register, set when the register is valid.
type AbridgedTagWord uint8

// Empty returns true if physical register i is empty.
func (w AbridgedTagWord) Empty(i int) bool {
	if i < 0 || i > 7 {
		panic(fmt.Sprintf("x87 register %d out of range", i))
	}
	return w&(1<<i) == 0
}

// Opcode is the last non-control x87 instruction opcode (FOP): the low
// three bits of the first opcode byte, then the second byte.
type Opcode uint16

// Bytes returns the two opcode bytes. The upper five bits of the first
// byte are always 11011b.
func (o Opcode) Bytes() (first, second byte) {
	return 0xd8 | byte((o>>8)&0x7), byte(o)
}

// MXCSR is the SSE control and status register.
type MXCSR uint32

// DefaultMXCSR is the value after reset.
const DefaultMXCSR MXCSR = 0x1f80

// Exceptions returns the sticky exception flags, as Exception* bits.
func (m MXCSR) Exceptions() uint8 {
	return uint8(m) & exceptionMask
}

// DenormalsAreZero returns the DAZ bit.
func (m MXCSR) DenormalsAreZero() bool {
	return m&(1<<6) != 0
}

// ExceptionMasks returns the masked exceptions, as Exception* bits.
func (m MXCSR) ExceptionMasks() uint8 {
	return uint8(m>>7) & exceptionMask
}

// Rounding returns the rounding control field.
func (m MXCSR) Rounding() RoundingControl {
	return RoundingControl((m >> 13) & 0x3)
}

// FlushToZero returns the FZ bit.
func (m MXCSR) FlushToZero() bool {
	return m&(1<<15) != 0
}
