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

// PointerMode selects the encoding of the x87 instruction and data
// pointers, which depends on the operand size FXSAVE/XSAVE ran with.
type PointerMode uint8

// Pointer encodings.
const (
	// Pointer16 is the 16-bit encoding: a 16-bit offset and a selector.
	Pointer16 PointerMode = iota

	// Pointer32 is the 32-bit encoding, also used by 64-bit code without
	// REX.W: a 32-bit offset and a selector.
	Pointer32

	// Pointer64 is the 64-bit REX.W encoding: a 64-bit offset and no
	// selector. This is what the 64-bit instructions in package fpu write.
	Pointer64
)

// String implements fmt.Stringer.
func (m PointerMode) String() string {
	switch m {
	case Pointer16:
		return "16"
	case Pointer32:
		return "32"
	case Pointer64:
		return "64"
	default:
		return fmt.Sprintf("PointerMode(%d)", uint8(m))
	}
}

// FPUPointer is an x87 instruction pointer (FIP/FCS) or data pointer
// (FDP/FDS) in one of its encodings.
type FPUPointer struct {
	// Mode is the encoding the pointer was decoded with.
	Mode PointerMode

	// Offset is the pointer offset. Only the low 16 or 32 bits are
	// meaningful in the narrower modes.
	Offset uint64

	// Selector is the segment selector. It is zero in Pointer64 mode.
	Selector uint16
}

// decodeFPUPointer reads the 8 byte pointer field b.
func decodeFPUPointer(b []byte, mode PointerMode) FPUPointer {
	switch mode {
	case Pointer16:
		return FPUPointer{Mode: mode, Offset: uint64(byteOrder.Uint16(b[0:])), Selector: byteOrder.Uint16(b[4:])}
	case Pointer32:
		return FPUPointer{Mode: mode, Offset: uint64(byteOrder.Uint32(b[0:])), Selector: byteOrder.Uint16(b[4:])}
	case Pointer64:
		return FPUPointer{Mode: mode, Offset: byteOrder.Uint64(b[0:])}
	default:
		panic(fmt.Sprintf("unknown pointer mode %d", mode))
	}
}

// encode writes p into the 8 byte pointer field b. Reserved bytes are
// zeroed.
func (p FPUPointer) encode(b []byte) {
	for i := range b[:8] {
		b[i] = 0
	}
	switch p.Mode {
	case Pointer16:
		byteOrder.PutUint16(b[0:], uint16(p.Offset))
		byteOrder.PutUint16(b[4:], p.Selector)
	case Pointer32:
		byteOrder.PutUint32(b[0:], uint32(p.Offset))
		byteOrder.PutUint16(b[4:], p.Selector)
	case Pointer64:
		byteOrder.PutUint64(b[0:], p.Offset)
	default:
		panic(fmt.Sprintf("unknown pointer mode %d", p.Mode))
	}
}

// X87StatePart1 is bytes 0-23 of the legacy region.
type X87StatePart1 struct {
	Control     ControlWord
	Status      StatusWord
	Tag         AbridgedTagWord
	Opcode      Opcode
	Instruction FPUPointer
	Data        FPUPointer
}

// DecodeX87StatePart1 decodes b, which must be at least 24 bytes, using the
// given pointer encoding.
func DecodeX87StatePart1(b []byte, mode PointerMode) X87StatePart1 {
	_ = b[X87Part1.Size-1]
	return X87StatePart1{
		Control:     ControlWord(byteOrder.Uint16(b[0:])),
		Status:      StatusWord(byteOrder.Uint16(b[2:])),
		Tag:         AbridgedTagWord(b[4]),
		Opcode:      Opcode(byteOrder.Uint16(b[6:])),
		Instruction: decodeFPUPointer(b[8:16], mode),
		Data:        decodeFPUPointer(b[16:24], mode),
	}
}

// Encode writes s into b, which must be at least 24 bytes. The
// instruction and data pointers must use the same mode.
func (s *X87StatePart1) Encode(b []byte) {
	_ = b[X87Part1.Size-1]
	if s.Instruction.Mode != s.Data.Mode {
		panic(fmt.Sprintf("mismatched pointer modes %v and %v", s.Instruction.Mode, s.Data.Mode))
	}
	byteOrder.PutUint16(b[0:], uint16(s.Control))
	byteOrder.PutUint16(b[2:], uint16(s.Status))
	b[4] = byte(s.Tag)
	b[5] = 0
	byteOrder.PutUint16(b[6:], uint16(s.Opcode))
	s.Instruction.encode(b[8:16])
	s.Data.encode(b[16:24])
}

// X87Register is an 80-bit x87 register (ST0-ST7) or, in its low 64 bits,
// an MMX register.
type X87Register [10]byte

// MMX returns the MMX view of r.
func (r X87Register) MMX() uint64 {
	return byteOrder.Uint64(r[:8])
}

// x87RegisterStride is the spacing of registers in part 2.
const x87RegisterStride = 16

// X87StatePart2 is bytes 32-159 of the legacy region.
type X87StatePart2 struct {
	Registers [8]X87Register
}

// DecodeX87StatePart2 decodes b, which must be at least 128 bytes.
func DecodeX87StatePart2(b []byte) X87StatePart2 {
	_ = b[X87Part2.Size-1]
	var s X87StatePart2
	for i := range s.Registers {
		copy(s.Registers[i][:], b[i*x87RegisterStride:])
	}
	return s
}

// Encode writes s into b, which must be at least 128 bytes.
func (s *X87StatePart2) Encode(b []byte) {
	_ = b[X87Part2.Size-1]
	for i := range s.Registers {
		r := b[i*x87RegisterStride : (i+1)*x87RegisterStride]
		n := copy(r, s.Registers[i][:])
		for j := n; j < len(r); j++ {
			r[j] = 0
		}
	}
}

// SSEStatePart1 is bytes 24-31 of the legacy region.
type SSEStatePart1 struct {
	MXCSR     MXCSR
	MXCSRMask MXCSR
}

// DecodeSSEStatePart1 decodes b, which must be at least 8 bytes.
func DecodeSSEStatePart1(b []byte) SSEStatePart1 {
	_ = b[SSEPart1.Size-1]
	return SSEStatePart1{
		MXCSR:     MXCSR(byteOrder.Uint32(b[0:])),
		MXCSRMask: MXCSR(byteOrder.Uint32(b[4:])),
	}
}

// Encode writes s into b, which must be at least 8 bytes.
func (s *SSEStatePart1) Encode(b []byte) {
	byteOrder.PutUint32(b[0:], uint32(s.MXCSR))
	byteOrder.PutUint32(b[4:], uint32(s.MXCSRMask))
}

// XMMRegister is a 128-bit SSE register.
type XMMRegister [16]byte

// SSEStatePart2 is bytes 160-415 of the legacy region.
type SSEStatePart2 struct {
	XMM [16]XMMRegister
}

// DecodeSSEStatePart2 decodes b, which must be at least 256 bytes.
func DecodeSSEStatePart2(b []byte) SSEStatePart2 {
	_ = b[SSEPart2.Size-1]
	var s SSEStatePart2
	for i := range s.XMM {
		copy(s.XMM[i][:], b[i*len(XMMRegister{}):])
	}
	return s
}

// Encode writes s into b, which must be at least 256 bytes.
func (s *SSEStatePart2) Encode(b []byte) {
	_ = b[SSEPart2.Size-1]
	for i := range s.XMM {
		copy(b[i*len(XMMRegister{}):], s.XMM[i][:])
	}
}

// X87State is the complete x87 state of the legacy region.
type X87State struct {
	Part1 X87StatePart1
	Part2 X87StatePart2
}

// SSEState is the complete SSE state of the legacy region.
type SSEState struct {
	Part1 SSEStatePart1
	Part2 SSEStatePart2
}
