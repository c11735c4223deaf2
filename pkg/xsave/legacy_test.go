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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFPUPointerModes(t *testing.T) {
	for _, tc := range []struct {
		p    FPUPointer
		want []byte
	}{
		{FPUPointer{Mode: Pointer16, Offset: 0x1234, Selector: 0x1b}, []byte{0x34, 0x12, 0, 0, 0x1b, 0, 0, 0}},
		{FPUPointer{Mode: Pointer32, Offset: 0x89abcdef, Selector: 0x33}, []byte{0xef, 0xcd, 0xab, 0x89, 0x33, 0, 0, 0}},
		{FPUPointer{Mode: Pointer64, Offset: 0x0102030405060708}, []byte{8, 7, 6, 5, 4, 3, 2, 1}},
	} {
		b := make([]byte, 8)
		for i := range b {
			b[i] = 0xee
		}
		tc.p.encode(b)
		if !cmp.Equal(b, tc.want) {
			t.Errorf("encode(%+v) = %x, want %x", tc.p, b, tc.want)
		}
		if got := decodeFPUPointer(b, tc.p.Mode); got != tc.p {
			t.Errorf("decodeFPUPointer(%x, %v) = %+v, want %+v", b, tc.p.Mode, got, tc.p)
		}
	}
}

func TestX87StatePart1Layout(t *testing.T) {
	b := []byte{
		0x7f, 0x03, // FCW
		0x00, 0x38, // FSW
		0x81,       // FTW
		0x00,       // reserved
		0xe9, 0x05, // FOP
		0x10, 0x00, 0x00, 0x00, 0x23, 0x00, 0x00, 0x00, // FIP, FCS
		0x20, 0x00, 0x00, 0x00, 0x2b, 0x00, 0x00, 0x00, // FDP, FDS
	}
	got := DecodeX87StatePart1(b, Pointer32)
	want := X87StatePart1{
		Control:     0x037f,
		Status:      0x3800,
		Tag:         0x81,
		Opcode:      0x05e9,
		Instruction: FPUPointer{Mode: Pointer32, Offset: 0x10, Selector: 0x23},
		Data:        FPUPointer{Mode: Pointer32, Offset: 0x20, Selector: 0x2b},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeX87StatePart1 mismatch (-want +got):\n%s", diff)
	}

	out := make([]byte, 24)
	got.Encode(out)
	if !cmp.Equal(out, b) {
		t.Errorf("Encode() = %x, want %x", out, b)
	}

	mixed := want
	mixed.Data.Mode = Pointer64
	defer func() {
		if recover() == nil {
			t.Errorf("Encode with mixed pointer modes did not panic")
		}
	}()
	mixed.Encode(out)
}

func TestControlWord(t *testing.T) {
	w := DefaultControlWord
	if got := w.ExceptionMasks(); got != 0x3f {
		t.Errorf("ExceptionMasks() = %#x, want 0x3f", got)
	}
	if got := w.Precision(); got != DoubleExtendedPrecision {
		t.Errorf("Precision() = %v, want extended", got)
	}
	if got := w.Rounding(); got != RoundToNearest {
		t.Errorf("Rounding() = %v, want nearest", got)
	}
	if got := ControlWord(0x0c00).Rounding(); got != RoundTowardZero {
		t.Errorf("Rounding() = %v, want zero", got)
	}
}

func TestStatusWord(t *testing.T) {
	w := StatusWord(1<<15 | 5<<11 | 1<<14 | 1<<8 | ExceptionZeroDiv | 1<<7)
	if got := w.Top(); got != 5 {
		t.Errorf("Top() = %d, want 5", got)
	}
	c0, c1, c2, c3 := w.ConditionCodes()
	if !c0 || c1 || c2 || !c3 {
		t.Errorf("ConditionCodes() = %t %t %t %t", c0, c1, c2, c3)
	}
	if !w.Busy() || !w.ErrorSummary() || w.StackFault() {
		t.Errorf("Busy/ErrorSummary/StackFault mismatch for %#x", uint16(w))
	}
	if got := w.Exceptions(); got != ExceptionZeroDiv {
		t.Errorf("Exceptions() = %#x, want %#x", got, ExceptionZeroDiv)
	}
}

func TestTagWordAndOpcode(t *testing.T) {
	tag := AbridgedTagWord(0x81)
	for i := 0; i < 8; i++ {
		if want := i != 0 && i != 7; tag.Empty(i) != want {
			t.Errorf("Empty(%d) = %t, want %t", i, tag.Empty(i), want)
		}
	}
	first, second := Opcode(0x05e9).Bytes()
	if first != 0xdd || second != 0xe9 {
		t.Errorf("Bytes() = %#x %#x, want 0xdd 0xe9", first, second)
	}
}

func TestMXCSR(t *testing.T) {
	m := DefaultMXCSR
	if got := m.ExceptionMasks(); got != 0x3f {
		t.Errorf("ExceptionMasks() = %#x, want 0x3f", got)
	}
	if m.FlushToZero() || m.DenormalsAreZero() || m.Exceptions() != 0 {
		t.Errorf("unexpected flags in %#x", uint32(m))
	}
	m |= 3<<13 | 1<<15 | 1<<6
	if m.Rounding() != RoundTowardZero || !m.FlushToZero() || !m.DenormalsAreZero() {
		t.Errorf("flags of %#x decoded wrong", uint32(m))
	}
}
