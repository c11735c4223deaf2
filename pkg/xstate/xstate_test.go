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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewStateComponent(t *testing.T) {
	for bit := uint(0); bit <= 62; bit++ {
		c, err := NewStateComponent(bit)
		if err != nil {
			t.Fatalf("NewStateComponent(%d) failed: %v", bit, err)
		}
		if c.Bit() != bit {
			t.Errorf("NewStateComponent(%d).Bit() = %d", bit, c.Bit())
		}
	}
	for _, bit := range []uint{63, 64, 1000} {
		_, err := NewStateComponent(bit)
		var e *ErrInvalidComponent
		if !errors.As(err, &e) || e.Bit != bit {
			t.Errorf("NewStateComponent(%d) = %v, want ErrInvalidComponent", bit, err)
		}
	}
}

func TestClassification(t *testing.T) {
	for _, tc := range []struct {
		c        StateComponent
		legacy   bool
		extended bool
	}{
		{X87, true, false},
		{SSE, true, false},
		{AVX, false, true},
		{PKRU, false, true},
		{MaxStateComponent, false, true},
		{63, false, false},
	} {
		if got := tc.c.IsLegacy(); got != tc.legacy {
			t.Errorf("%v.IsLegacy() = %t, want %t", tc.c, got, tc.legacy)
		}
		if got := tc.c.IsExtended(); got != tc.extended {
			t.Errorf("%v.IsExtended() = %t, want %t", tc.c, got, tc.extended)
		}
	}
}

func TestAssertExtended(t *testing.T) {
	for _, c := range []StateComponent{X87, SSE, 63} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("AssertExtended(%d) did not panic", c)
				}
			}()
			c.AssertExtended()
		}()
	}
	AVX.AssertExtended()
}

func TestCatalog(t *testing.T) {
	cs := Catalog()
	for i := 1; i < len(cs); i++ {
		if cs[i-1] >= cs[i] {
			t.Fatalf("Catalog() not sorted: %v", cs)
		}
	}
	for _, c := range cs {
		got, ok := ComponentFromString(c.String())
		if !ok || got != c {
			t.Errorf("ComponentFromString(%q) = %v, %t, want %v", c.String(), got, ok, c)
		}
	}
	if got := PT.Owner(); got != Supervisor {
		t.Errorf("PT.Owner() = %v, want supervisor", got)
	}
	if got := PKRU.Owner(); got != User {
		t.Errorf("PKRU.Owner() = %v, want user", got)
	}
	if c, ok := ComponentFromString("component10"); !ok || c != 10 {
		t.Errorf("ComponentFromString(component10) = %v, %t", c, ok)
	}
	if _, ok := ComponentFromString("component63"); ok {
		t.Errorf("ComponentFromString(component63) succeeded")
	}
	if _, ok := ComponentFromString("bogus"); ok {
		t.Errorf("ComponentFromString(bogus) succeeded")
	}
}

func TestBitmap(t *testing.T) {
	b := BitmapOf(X87, SSE, AVX)
	if !b.Contains(AVX) || b.Contains(PKRU) {
		t.Errorf("Contains mismatch for %v", b)
	}
	b.Add(PKRU)
	if got, want := b.Components(), []StateComponent{X87, SSE, AVX, PKRU}; !cmp.Equal(got, want) {
		t.Errorf("Components() = %v, want %v", got, want)
	}
	if got := b.Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
	if got, want := b.Legacy(), BitmapOf(X87, SSE); got != want {
		t.Errorf("Legacy() = %v, want %v", got, want)
	}
	if got, want := b.Extended(), BitmapOf(AVX, PKRU); got != want {
		t.Errorf("Extended() = %v, want %v", got, want)
	}
	if got, want := b.Without(BitmapOf(SSE)), BitmapOf(X87, AVX, PKRU); got != want {
		t.Errorf("Without() = %v, want %v", got, want)
	}
	if got, want := b.Intersect(BitmapOf(AVX, Opmask)), BitmapOf(AVX); got != want {
		t.Errorf("Intersect() = %v, want %v", got, want)
	}
	if got, want := BitmapOf(AVX).Union(BitmapOf(PKRU)), BitmapOf(AVX, PKRU); got != want {
		t.Errorf("Union() = %v, want %v", got, want)
	}
	b.Remove(PKRU)
	if b.Contains(PKRU) {
		t.Errorf("Remove(PKRU) left PKRU in %v", b)
	}
	if got, want := b.String(), "{x87, sse, avx}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBitmapNeverHoldsBit63(t *testing.T) {
	b := BitmapFromRaw(^uint64(0))
	if b.Contains(63) {
		t.Errorf("bitmap from raw all-ones contains bit 63")
	}
	if got := b.Len(); got != 63 {
		t.Errorf("Len() = %d, want 63", got)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("Add(63) did not panic")
		}
	}()
	b.Add(63)
}

func TestEnabledRegisters(t *testing.T) {
	xcr0 := UserEnabled(0x207)
	if got, want := xcr0.Bitmap(), BitmapOf(X87, SSE, AVX, PKRU); got != want {
		t.Errorf("UserEnabled.Bitmap() = %v, want %v", got, want)
	}
	xss := SupervisorEnabled(1 << PT)
	if got, want := xss.Bitmap(), BitmapOf(PT); got != want {
		t.Errorf("SupervisorEnabled.Bitmap() = %v, want %v", got, want)
	}
}

func TestCompactionIndicator(t *testing.T) {
	ci := NewCompactionIndicator(BitmapOf(AVX, PKRU))
	if !ci.IsCompacted() {
		t.Errorf("%v is not compacted", ci)
	}
	if got, want := ci.Raw(), uint64(1<<63|1<<9|1<<2); got != want {
		t.Errorf("Raw() = %#x, want %#x", got, want)
	}
	if got, want := ci.Components(), BitmapOf(AVX, PKRU); got != want {
		t.Errorf("Components() = %v, want %v", got, want)
	}
	if ci.Contains(63) {
		t.Errorf("Contains(63) = true")
	}
	if CompactionIndicator(1 << AVX).IsCompacted() {
		t.Errorf("indicator without bit 63 reports compacted")
	}
}

func TestCompactionBit(t *testing.T) {
	for c := StateComponent(0); c <= MaxStateComponent; c++ {
		got, ok := CompactionBitOf(c).Component()
		if !ok || got != c {
			t.Errorf("CompactionBitOf(%d).Component() = %v, %t", c, got, ok)
		}
	}
	if _, ok := CompactedFormat.Component(); ok {
		t.Errorf("CompactedFormat.Component() returned a component")
	}
}

func TestSizingTable(t *testing.T) {
	avx := ComponentSizing{Size: 256, UncompactedOffset: 576}
	pkru := ComponentSizing{Size: 8, UncompactedOffset: 2688, AlignedWhenCompacted: true}
	table := NewSizingTable(map[StateComponent]ComponentSizing{AVX: avx, PKRU: pkru})

	if got, ok := table.Lookup(AVX); !ok || got != avx {
		t.Errorf("Lookup(AVX) = %+v, %t", got, ok)
	}
	if _, ok := table.Lookup(10); ok {
		t.Errorf("Lookup(10) succeeded")
	}
	if got, want := table.Components(), BitmapOf(AVX, PKRU); got != want {
		t.Errorf("Components() = %v, want %v", got, want)
	}

	other := table
	other.Set(PKRU, ComponentSizing{Size: 8, UncompactedOffset: 2696})
	if _, ok := other.Lookup(PKRU); !ok || table.Equal(&other) {
		t.Errorf("copy of table shares storage or compares equal")
	}
	if got, want := table.Mismatches(&other), []StateComponent{PKRU}; !cmp.Equal(got, want) {
		t.Errorf("Mismatches() = %v, want %v", got, want)
	}
	if orig, _ := table.Lookup(PKRU); orig != pkru {
		t.Errorf("Set on copy modified original: %+v", orig)
	}

	for _, c := range []StateComponent{X87, SSE, 63} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Lookup(%d) did not panic", c)
				}
			}()
			table.Lookup(c)
		}()
	}
}

func TestNilSizingTable(t *testing.T) {
	var table *SizingTable
	if s, ok := table.Lookup(AVX); ok {
		t.Errorf("Lookup(AVX) = %+v on a nil table", s)
	}
	if got := table.Components(); !got.IsEmpty() {
		t.Errorf("Components() = %v on a nil table", got)
	}
	if got := table.Len(); got != 0 {
		t.Errorf("Len() = %d on a nil table", got)
	}
}
