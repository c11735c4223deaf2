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

//go:build linux && amd64
// +build linux,amd64

package fpu

import (
	"errors"
	"testing"

	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/xsave"
	"gvisor.dev/xstate/pkg/xstate"
)

// mxcsrExceptionFlags are the MXCSR exception flag bits.
const mxcsrExceptionFlags xsave.MXCSR = 0x3f

func lockHostThread(t *testing.T, form Form) (*Thread, cpuid.FeatureSet) {
	t.Helper()
	fs := cpuid.HostFeatureSet()
	th, err := LockThread(fs, form)
	if errors.Is(err, cpuid.ErrUnsupported) {
		t.Skipf("%v save is not supported: %v", form, err)
	}
	if err != nil {
		t.Fatalf("LockThread(%v) failed: %v", form, err)
	}
	t.Cleanup(th.Unlock)
	return th, fs
}

func TestSaveRestore(t *testing.T) {
	for _, form := range []Form{Standard, Optimized, Compacted, FXSAVE} {
		t.Run(form.String(), func(t *testing.T) {
			th, fs := lockHostThread(t, form)
			b, err := NewHostBuffer(HeapAllocator{})
			if err != nil {
				t.Fatalf("NewHostBuffer failed: %v", err)
			}
			defer b.Close()

			mask := SaveMask(fs)
			if err := th.Save(b, mask); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			table := cpuid.HostSizingTable()
			v, err := b.View(&table)
			if err != nil {
				t.Fatalf("View failed: %v", err)
			}
			l, err := v.Layout()
			if err != nil {
				t.Fatalf("Layout failed: %v", err)
			}
			if got, want := l.IsCompacted(), form == Compacted; got != want {
				t.Errorf("IsCompacted() = %t, want %t", got, want)
			}
			if !l.Components().Without(mask).IsEmpty() {
				t.Errorf("saved components %v outside of %v", l.Components(), mask)
			}

			// The Go runtime runs with the default control registers.
			if got := v.X87(xsave.Pointer64).Part1.Control; got != xsave.DefaultControlWord {
				t.Errorf("control word = %#x, want %#x", uint16(got), uint16(xsave.DefaultControlWord))
			}
			// The exception flags are sticky and the runtime's own floating
			// point work may have raised some.
			if got := v.SSE().Part1.MXCSR; got&^mxcsrExceptionFlags != xsave.DefaultMXCSR {
				t.Errorf("MXCSR = %#x, want %#x ignoring exception flags", uint32(got), uint32(xsave.DefaultMXCSR))
			}

			if err := th.Restore(b, mask); err != nil {
				t.Errorf("Restore failed: %v", err)
			}
		})
	}
}

func TestStandardSaveAfterCompacted(t *testing.T) {
	compacted, fs := lockHostThread(t, Compacted)
	b, err := NewHostBuffer(HeapAllocator{})
	if err != nil {
		t.Fatalf("NewHostBuffer failed: %v", err)
	}
	defer b.Close()
	mask := SaveMask(fs)
	if err := compacted.Save(b, mask); err != nil {
		t.Fatalf("compacted Save failed: %v", err)
	}

	// Both Threads are on the test goroutine's thread.
	standard, err := LockThread(fs, Standard)
	if err != nil {
		t.Fatalf("LockThread(Standard) failed: %v", err)
	}
	defer standard.Unlock()
	if err := standard.Save(b, mask); err != nil {
		t.Fatalf("standard Save failed: %v", err)
	}
	h, err := xsave.DecodeHeader(b.Bytes())
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	if h.Compaction != 0 {
		t.Errorf("XCOMP_BV = %v after a standard save, want 0", h.Compaction)
	}
}

func TestSaveBufferTooSmall(t *testing.T) {
	th, fs := lockHostThread(t, Standard)
	mask := SaveMask(fs)
	need := AreaSize(fs, Standard, mask)
	if need <= xsave.ExtendedRegionOffset {
		t.Skipf("host has no extended state enabled")
	}
	b, err := Allocate(HeapAllocator{}, xsave.ExtendedRegionOffset)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	defer b.Close()
	if err := th.Save(b, mask); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("Save() = %v, want ErrBufferTooSmall", err)
	}
}

func TestRestoreRejects(t *testing.T) {
	th, fs := lockHostThread(t, Standard)
	enabled := SaveMask(fs)
	var unsupported xstate.StateComponent
	for c := xstate.StateComponent(xstate.MaxStateComponent); c >= xstate.FirstExtended; c-- {
		if !enabled.Contains(c) {
			unsupported = c
			break
		}
	}
	if unsupported == 0 {
		t.Skipf("every component is enabled")
	}

	for _, tc := range []struct {
		name   string
		modify func(f []byte)
	}{
		{"unsupported component", func(f []byte) {
			xsave.Header{Present: xstate.BitmapOf(xstate.X87, unsupported)}.Encode(f)
		}},
		{"reserved header bytes", func(f []byte) { f[xsave.HeaderOffset+32] = 1 }},
		{"reserved MXCSR bits", func(f []byte) { f[27] = 0x80 }},
		{"XCOMP_BV without compaction", func(f []byte) { f[xsave.HeaderOffset+8] = 1 }},
	} {
		// Subtests run on their own goroutines, and th is bound to this one.
		func() {
			b, err := NewHostBuffer(HeapAllocator{})
			if err != nil {
				t.Fatalf("NewHostBuffer failed: %v", err)
			}
			defer b.Close()
			tc.modify(b.Bytes())
			if err := th.Restore(b, enabled); err == nil {
				t.Errorf("%s: Restore() succeeded", tc.name)
			}
		}()
	}

	// The unmodified area restores.
	b, err := NewHostBuffer(HeapAllocator{})
	if err != nil {
		t.Fatalf("NewHostBuffer failed: %v", err)
	}
	defer b.Close()
	if err := th.Restore(b, enabled); err != nil {
		t.Errorf("Restore() of a reset area = %v", err)
	}
}

func TestWrongThread(t *testing.T) {
	th, _ := lockHostThread(t, Standard)
	b, err := NewHostBuffer(HeapAllocator{})
	if err != nil {
		t.Fatalf("NewHostBuffer failed: %v", err)
	}
	defer b.Close()

	// The test goroutine's thread is locked to it, so another goroutine
	// runs on a different thread.
	done := make(chan any)
	go func() {
		defer func() { done <- recover() }()
		th.Save(b, xstate.BitmapOf(xstate.X87))
	}()
	if got := <-done; got != ErrWrongThread {
		t.Errorf("Save() from another thread panicked with %v, want ErrWrongThread", got)
	}
}

func TestUnlockedThread(t *testing.T) {
	fs := cpuid.HostFeatureSet()
	th, err := LockThread(fs, FXSAVE)
	if err != nil {
		t.Skipf("LockThread failed: %v", err)
	}
	th.Unlock()
	defer func() {
		if got := recover(); got != ErrWrongThread {
			t.Errorf("Unlock() twice panicked with %v, want ErrWrongThread", got)
		}
	}()
	th.Unlock()
}
