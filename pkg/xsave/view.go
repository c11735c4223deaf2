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
	"bytes"
	"sync"
	"time"

	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/pkg/xstate"
)

var (
	warningsOnce sync.Once
	warnings     log.Logger
)

// warn logs decode failures at most once per second. The logger is built
// on first use so that it picks up the target configured by the program.
func warn(format string, v ...any) {
	warningsOnce.Do(func() {
		warnings = log.BasicRateLimitedLogger(time.Second)
	})
	warnings.Warningf(format, v...)
}

// View is a bounds checked view of a save area.
//
// The view does not own buf. The layout is decoded from the header and
// cached; it is decoded again whenever the 16 header bytes that determine
// it (XSTATE_BV and XCOMP_BV) change, e.g. after a new XSAVE into buf.
//
// A View is not safe for concurrent use.
type View struct {
	buf   []byte
	table *xstate.SizingTable

	// key is the header the cached layout was decoded from.
	key [headerKeySize]byte

	// layout is valid iff err is nil.
	layout Layout
	err    error
}

// NewView returns a view of buf. table must outlive the view and must not
// be modified while the view is in use. A nil table has no entries, so only
// legacy state can be viewed through it.
//
// buf must hold at least the legacy region and header, and every region
// described by its header.
func NewView(buf []byte, table *xstate.SizingTable) (*View, error) {
	if len(buf) < ExtendedRegionOffset {
		return nil, &BoundsViolation{Component: xstate.X87, Size: ExtendedRegionOffset, Len: len(buf)}
	}
	v := &View{
		buf:   buf[:len(buf):len(buf)],
		table: table,
	}
	if err := v.Refresh(); err != nil {
		return nil, err
	}
	return v, nil
}

// Bytes returns the underlying buffer.
func (v *View) Bytes() []byte {
	return v.buf
}

// Refresh decodes the header and layout again.
func (v *View) Refresh() error {
	copy(v.key[:], v.buf[xstateBVOffset:])
	v.layout, v.err = v.decode()
	if v.err != nil {
		warn("Save area layout: %v", v.err)
	}
	return v.err
}

func (v *View) decode() (Layout, error) {
	h, err := DecodeHeader(v.buf)
	if err != nil {
		return Layout{}, err
	}
	l, err := Decode(h, v.table)
	if err != nil {
		return Layout{}, err
	}
	var bv *BoundsViolation
	l.ForEach(func(c xstate.StateComponent, r Region) {
		if bv == nil && r.End() > uint(len(v.buf)) {
			bv = &BoundsViolation{Component: c, Offset: r.Offset, Size: r.Size, Len: len(v.buf)}
		}
	})
	if bv != nil {
		return Layout{}, bv
	}
	return l, nil
}

// current returns the layout for the current header.
func (v *View) current() (*Layout, error) {
	if !bytes.Equal(v.key[:], v.buf[xstateBVOffset:xstateBVOffset+headerKeySize]) {
		v.Refresh()
	}
	if v.err != nil {
		return nil, v.err
	}
	return &v.layout, nil
}

// Layout returns the layout for the current header.
func (v *View) Layout() (Layout, error) {
	l, err := v.current()
	if err != nil {
		return Layout{}, err
	}
	return *l, nil
}

// Header returns the current header.
func (v *View) Header() (Header, error) {
	return DecodeHeader(v.buf)
}

// slice returns the bytes of r, with capacity limited to r.
func (v *View) slice(r Region) []byte {
	return v.buf[r.Offset:r.End():r.End()]
}

// LegacyFloatingPointPart1 returns bytes 0-23: x87 control, status and tag
// words, opcode and pointers.
func (v *View) LegacyFloatingPointPart1() []byte {
	return v.slice(X87Part1)
}

// LegacyFloatingPointPart2 returns bytes 32-159: ST0-ST7 or MM0-MM7.
func (v *View) LegacyFloatingPointPart2() []byte {
	return v.slice(X87Part2)
}

// LegacySSEPart1 returns bytes 24-31: MXCSR and MXCSR_MASK.
func (v *View) LegacySSEPart1() []byte {
	return v.slice(SSEPart1)
}

// LegacySSEPart2 returns bytes 160-415: XMM0-XMM15.
func (v *View) LegacySSEPart2() []byte {
	return v.slice(SSEPart2)
}

// X87 decodes the x87 state with the given pointer encoding.
//
// The legacy region is always readable, whether or not XSTATE_BV marks
// x87 state as present; see Layout.Components.
func (v *View) X87(mode PointerMode) X87State {
	return X87State{
		Part1: DecodeX87StatePart1(v.LegacyFloatingPointPart1(), mode),
		Part2: DecodeX87StatePart2(v.LegacyFloatingPointPart2()),
	}
}

// SetX87 encodes s into the legacy region.
func (v *View) SetX87(s *X87State) {
	s.Part1.Encode(v.LegacyFloatingPointPart1())
	s.Part2.Encode(v.LegacyFloatingPointPart2())
}

// SSE decodes the SSE state.
func (v *View) SSE() SSEState {
	return SSEState{
		Part1: DecodeSSEStatePart1(v.LegacySSEPart1()),
		Part2: DecodeSSEStatePart2(v.LegacySSEPart2()),
	}
}

// SetSSE encodes s into the legacy region.
func (v *View) SetSSE(s *SSEState) {
	s.Part1.Encode(v.LegacySSEPart1())
	s.Part2.Encode(v.LegacySSEPart2())
}

// SetMXCSR sets the MXCSR field.
func (v *View) SetMXCSR(mxcsr MXCSR) {
	byteOrder.PutUint32(v.buf[mxcsrOffset:], uint32(mxcsr))
}

// ExtendedComponent returns the bytes of c, exactly the region the layout
// assigns to it. It returns false if c is not present in XSTATE_BV or the
// header cannot be decoded (see Layout for the error).
//
// Precondition: c.IsExtended().
func (v *View) ExtendedComponent(c xstate.StateComponent) ([]byte, bool) {
	c.AssertExtended()
	l, err := v.current()
	if err != nil {
		return nil, false
	}
	r, ok := l.Lookup(c)
	if !ok {
		return nil, false
	}
	return v.slice(r), true
}

// AVX returns the upper halves of YMM0-YMM15.
func (v *View) AVX() ([]byte, bool) {
	return v.ExtendedComponent(xstate.AVX)
}

// BNDREGS returns the MPX bound registers.
func (v *View) BNDREGS() ([]byte, bool) {
	return v.ExtendedComponent(xstate.BNDREGS)
}

// BNDCSR returns the MPX configuration and status registers.
func (v *View) BNDCSR() ([]byte, bool) {
	return v.ExtendedComponent(xstate.BNDCSR)
}

// Opmask returns the AVX-512 opmask registers.
func (v *View) Opmask() ([]byte, bool) {
	return v.ExtendedComponent(xstate.Opmask)
}

// ZMMHi256 returns the upper halves of ZMM0-ZMM15.
func (v *View) ZMMHi256() ([]byte, bool) {
	return v.ExtendedComponent(xstate.ZMMHi256)
}

// Hi16ZMM returns ZMM16-ZMM31.
func (v *View) Hi16ZMM() ([]byte, bool) {
	return v.ExtendedComponent(xstate.Hi16ZMM)
}

// PKRU returns the value of the protection key rights register.
func (v *View) PKRU() (uint32, bool) {
	b, ok := v.ExtendedComponent(xstate.PKRU)
	if !ok || len(b) < 4 {
		return 0, false
	}
	return byteOrder.Uint32(b), true
}
