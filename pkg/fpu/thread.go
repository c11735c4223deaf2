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

package fpu

import (
	"errors"
	"fmt"
	"runtime"

	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/pkg/xsave"
	"gvisor.dev/xstate/pkg/xstate"
)

// ErrWrongThread is the panic value when a Thread is used from an OS thread
// other than the one that locked it, or after Unlock.
var ErrWrongThread = errors.New("save area used from the wrong thread")

// ErrBufferTooSmall is returned when a buffer cannot hold the requested
// components in the chosen form.
var ErrBufferTooSmall = errors.New("save area buffer too small")

// XSTATE_BV does not exist if FXSAVE is used, but FXSAVE implicitly saves x87
// and SSE state, so this is the equivalent XSTATE_BV value.
var fxsaveBV = xstate.BitmapOf(xstate.X87, xstate.SSE)

// noCopy may be embedded in structs that must not be copied after first
// use; go vet's copylocks check reports copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Thread saves and restores the extended state of the OS thread that
// created it. LockThread wires the calling goroutine to its thread until
// Unlock; every method panics with ErrWrongThread if called from another
// thread.
type Thread struct {
	_ noCopy

	tid      int
	unlocked bool
	fs       cpuid.FeatureSet
	enabled  xstate.UserEnabled
	ins      Instructions
}

// LockThread locks the calling goroutine to its OS thread and returns a
// Thread using the instructions of the given form.
func LockThread(fs cpuid.FeatureSet, form Form) (*Thread, error) {
	ins, err := SelectInstructions(fs, form)
	if err != nil {
		return nil, err
	}
	runtime.LockOSThread()
	tid, ok := threadID()
	if !ok {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("thread identity: %w", cpuid.ErrUnsupported)
	}
	t := &Thread{
		tid:     tid,
		fs:      fs,
		enabled: fs.EnabledXCR0(),
		ins:     ins,
	}
	log.Debugf("Locked thread %d for %v save and restore", tid, form)
	return t, nil
}

func (t *Thread) check() {
	if t.unlocked {
		panic(ErrWrongThread)
	}
	if tid, _ := threadID(); tid != t.tid {
		panic(ErrWrongThread)
	}
}

// Form returns the form of the thread's instructions.
func (t *Thread) Form() Form {
	return t.ins.Form
}

// Save saves the components in mask that are enabled in XCR0 into b.
//
// A FXSAVE save stores x87 and SSE state and marks them present in the
// header, so that the area decodes like an XSAVE area.
func (t *Thread) Save(b *Buffer, mask xstate.StateComponentBitmap) error {
	t.check()
	if b.Closed() {
		return ErrClosed
	}
	need := AreaSize(t.fs, t.ins.Form, mask)
	if uint(b.Len()) < need {
		return fmt.Errorf("%w: saving %v needs %d bytes, have %d", ErrBufferTooSmall, mask, need, b.Len())
	}
	if t.ins.Form == Standard || t.ins.Form == Optimized {
		// XSAVE and XSAVEOPT leave XCOMP_BV alone, a previous XSAVEC may
		// have set it.
		clear(b.mem[xsave.HeaderOffset+8 : xsave.ExtendedRegionOffset])
	}
	t.ins.Save(&b.mem[0], mask.Raw())
	if t.ins.Form == FXSAVE {
		if err := (xsave.Header{Present: fxsaveBV}).Encode(b.mem); err != nil {
			return err
		}
	}
	return nil
}

// Restore loads the components in mask from b. Components in mask that b
// does not mark present are put in their initial configuration.
//
// The area is checked first, since XRSTOR faults on areas it cannot load;
// call Buffer.Sanitize on areas from untrusted sources.
func (t *Thread) Restore(b *Buffer, mask xstate.StateComponentBitmap) error {
	t.check()
	if b.Closed() {
		return ErrClosed
	}
	if err := t.checkRestorable(b.mem); err != nil {
		return err
	}
	t.ins.Restore(&b.mem[0], mask.Raw())
	return nil
}

func (t *Thread) checkRestorable(f []byte) error {
	sse := xsave.DecodeSSEStatePart1(f[xsave.SSEPart1.Offset:xsave.SSEPart1.End()])
	if reserved := sse.MXCSR &^ hostMXCSRMask(); reserved != 0 {
		return fmt.Errorf("MXCSR %#x sets reserved bits %#x", uint32(sse.MXCSR), uint32(reserved))
	}
	if t.ins.Form == FXSAVE {
		return nil
	}

	h, err := xsave.DecodeHeader(f)
	if err != nil {
		return err
	}
	supported := t.enabled.Bitmap()
	if saved := h.Present; !saved.Without(supported).IsEmpty() {
		return ErrLoadingState{supportedFeatures: supported, savedFeatures: saved}
	}
	if h.Compaction.IsCompacted() {
		if !t.fs.UseXsavec() {
			return fmt.Errorf("compacted area: %w", cpuid.ErrUnsupported)
		}
	} else if h.Compaction.Raw() != 0 {
		return fmt.Errorf("standard format area has XCOMP_BV %v", h.Compaction)
	}
	for _, v := range f[xsave.HeaderOffset+16 : xsave.ExtendedRegionOffset] {
		if v != 0 {
			return fmt.Errorf("reserved header bytes are not zero")
		}
	}
	return nil
}

// Unlock unlocks the goroutine from its OS thread. The Thread may not be
// used afterwards.
func (t *Thread) Unlock() {
	t.check()
	t.unlocked = true
	runtime.UnlockOSThread()
}
