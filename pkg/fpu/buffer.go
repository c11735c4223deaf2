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
	"io"

	"gvisor.dev/xstate/pkg/cleanup"
	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/pkg/xsave"
	"gvisor.dev/xstate/pkg/xstate"
)

const (
	// userXstateXCR0Offset is the offset in bytes of the USER_XSTATE_XCR0_WORD
	// field in Linux's struct user_xstateregs, which is the type manipulated
	// by ptrace(PTRACE_GET/SETREGSET, NT_X86_XSTATE). Equivalently,
	// userXstateXCR0Offset is GDB's I386_LINUX_XSAVE_XCR0_OFFSET.
	userXstateXCR0Offset = 464

	// minAllocation is the smallest area the KVM platform ever hands out.
	// Heap buffers are never smaller, so a host sized buffer can be reused
	// for any save form.
	minAllocation = 4096
)

// ErrClosed is returned when a closed buffer is used.
var ErrClosed = errors.New("save area buffer is closed")

// Buffer is save area memory: at least the legacy region and header, and
// aligned to 64 bytes as XSAVE and XRSTOR require.
//
// A standard format save needs the largest end offset of the requested
// components (see cpuid.FeatureSet.MaxUncompactedSize). Callers that only
// use the compacted form may allocate less, as long as the buffer holds the
// compacted size of every component they save.
//
// A Buffer is not safe for concurrent use. Callers must Close it.
type Buffer struct {
	mem   []byte
	alloc Allocator

	// raw is the memory as returned by alloc.
	raw []byte
}

// Allocate returns a zeroed buffer of size bytes from a.
func Allocate(a Allocator, size uint) (*Buffer, error) {
	if size < xsave.ExtendedRegionOffset {
		return nil, &AllocationError{Size: size, Align: xsave.Alignment, Err: fmt.Errorf("smaller than the %d byte legacy region and header", xsave.ExtendedRegionOffset)}
	}
	mem, err := allocate(a, size, xsave.Alignment)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(func() { a.Free(mem) })
	defer cu.Clean()
	if err := checkMemory(mem, size, xsave.Alignment); err != nil {
		return nil, err
	}

	b := &Buffer{mem: mem[:size:size], alloc: a, raw: mem}
	b.Reset()
	cu.Release()
	log.Debugf("Allocated %d byte save area at %p", size, &mem[0])
	return b, nil
}

// NewHostBuffer returns a buffer large enough for a standard format save
// of every component the host has enabled in XCR0.
func NewHostBuffer(a Allocator) (*Buffer, error) {
	fs := cpuid.HostFeatureSet()
	size, _ := fs.ExtendedStateSize()
	if size < xsave.ExtendedRegionOffset {
		// FXSAVE only: the header is still needed to decode the area.
		size = xsave.ExtendedRegionOffset
	}
	if _, ok := a.(HeapAllocator); ok && size < minAllocation {
		size = minAllocation
	}
	return Allocate(a, size)
}

// Bytes returns the buffer memory. The slice is only valid until Close.
func (b *Buffer) Bytes() []byte {
	return b.mem
}

// Len returns the size of the buffer, or 0 after Close.
func (b *Buffer) Len() int {
	return len(b.mem)
}

// Closed returns true if Close has been called.
func (b *Buffer) Closed() bool {
	return b.mem == nil
}

// View returns a view of the buffer using the given sizing table.
func (b *Buffer) View(table *xstate.SizingTable) (*xsave.View, error) {
	if b.Closed() {
		return nil, ErrClosed
	}
	return xsave.NewView(b.mem, table)
}

// Reset puts the buffer in the initial state: everything zero except the
// default control registers. Restoring it with XRSTOR puts every component
// in its initial configuration since XSTATE_BV is zero.
func (b *Buffer) Reset() {
	f := b.mem
	for i := range f {
		f[i] = 0
	}
	x87 := xsave.X87StatePart1{Control: xsave.DefaultControlWord, Instruction: xsave.FPUPointer{Mode: xsave.Pointer64}, Data: xsave.FPUPointer{Mode: xsave.Pointer64}}
	x87.Encode(f[xsave.X87Part1.Offset:xsave.X87Part1.End()])
	sse := xsave.SSEStatePart1{MXCSR: xsave.DefaultMXCSR, MXCSRMask: hostMXCSRMask()}
	sse.Encode(f[xsave.SSEPart1.Offset:xsave.SSEPart1.End()])
}

// Fork returns a copy of b in a new buffer from the same allocator.
func (b *Buffer) Fork() (*Buffer, error) {
	if b.Closed() {
		return nil, ErrClosed
	}
	n, err := Allocate(b.alloc, uint(len(b.mem)))
	if err != nil {
		return nil, err
	}
	copy(n.mem, b.mem)
	return n, nil
}

// Sanitize makes the buffer safe to restore: XSTATE_BV is limited to
// valid, reserved header bytes are cleared and reserved MXCSR bits are
// cleared using the host's MXCSR_MASK.
func (b *Buffer) Sanitize(valid xstate.UserEnabled) error {
	if b.Closed() {
		return ErrClosed
	}
	return xsave.SanitizeArea(b.mem, valid, hostMXCSRMask())
}

// WriteXstate writes the buffer to dst in the format of ptrace(PTRACE_GETREGSET,
// NT_X86_XSTATE) and returns the number of bytes written, which is at most
// maxlen. The format is the save area with the enabled XCR0 bits stored in
// the unused bytes of the legacy region, where GDB looks for them.
func (b *Buffer) WriteXstate(dst io.Writer, maxlen int, enabled xstate.UserEnabled) (int, error) {
	if b.Closed() {
		return 0, ErrClosed
	}
	f := make([]byte, len(b.mem))
	copy(f, b.mem)
	// "The XSAVE feature set does not use bytes 511:416; bytes 463:416 are
	// reserved." - Intel SDM Vol 1., Section 13.4.1 "Legacy Region of an XSAVE
	// Area". Linux uses the first 8 bytes of this area to store the OS XSTATE
	// mask. GDB relies on this: see
	// gdb/x86-linux-nat.c:x86_linux_read_description().
	byteOrder.PutUint64(f[userXstateXCR0Offset:], uint64(enabled))
	if len(f) > maxlen {
		f = f[:maxlen]
	}
	return dst.Write(f)
}

// ReadXstate reads an area written by WriteXstate (or by Linux) from src
// into the buffer and sanitizes it. It returns the number of bytes read.
//
// Areas smaller than the buffer are accepted as long as they hold the
// legacy region and header; bytes past the end of the buffer are ignored.
func (b *Buffer) ReadXstate(src io.Reader, valid xstate.UserEnabled) (int, error) {
	if b.Closed() {
		return 0, ErrClosed
	}
	f, err := io.ReadAll(io.LimitReader(src, int64(len(b.mem))))
	if err != nil {
		return 0, err
	}
	if len(f) < xsave.ExtendedRegionOffset {
		return 0, &xsave.BoundsViolation{Component: xstate.X87, Size: xsave.ExtendedRegionOffset, Len: len(f)}
	}
	n := copy(b.mem, f)
	for i := n; i < len(b.mem); i++ {
		b.mem[i] = 0
	}
	return n, b.Sanitize(valid)
}

// Close releases the memory. Subsequent calls do nothing.
func (b *Buffer) Close() error {
	if b.mem == nil {
		return nil
	}
	log.Debugf("Releasing %d byte save area at %p", len(b.mem), &b.mem[0])
	raw := b.raw
	b.mem, b.raw = nil, nil
	return b.alloc.Free(raw)
}
