// Copyright 2019 The gVisor Authors.
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

package cpuid

import (
	"fmt"

	"gvisor.dev/xstate/pkg/xsave"
	"gvisor.dev/xstate/pkg/xstate"
)

const (
	// XCR0AMXMask are the bits that enable xsave to operate on AMX TILECFG
	// and TILEDATA.
	//
	// Note: TILECFG and TILEDATA are always either both enabled or both
	//       disabled.
	//
	// See Intel® 64 and IA-32 Architectures Software Developer’s Manual Vol.1
	// section 13.3 for details.
	XCR0AMXMask = uint64((1 << xstate.TILECFG) | (1 << xstate.TILEDATA))
)

// Sub-leaf i >= 2 of xSaveInfo describes state component i: eax is the
// size, ebx the offset in the standard format, ecx bit 0 is set for
// supervisor components and ecx bit 1 is set for components aligned to 64
// bytes in the compacted format.
const (
	xSaveComponentSupervisor = 1 << 0
	xSaveComponentAligned    = 1 << 1
)

// ExtendedStateInfo is the content of xSaveInfo sub-leaves 0 and 1.
type ExtendedStateInfo struct {
	// SupportedXCR0 are the bits that may be set in XCR0.
	SupportedXCR0 xstate.StateComponentBitmap `json:"supported_xcr0" yaml:"supported_xcr0"`

	// SupportedXSS are the bits that may be set in IA32_XSS.
	SupportedXSS xstate.StateComponentBitmap `json:"supported_xss" yaml:"supported_xss"`

	// EnabledSize is the size of a standard area holding every component
	// currently enabled in XCR0.
	EnabledSize uint `json:"enabled_size" yaml:"enabled_size"`

	// MaxSize is the size of a standard area holding every supported
	// user component.
	MaxSize uint `json:"max_size" yaml:"max_size"`

	// CompactedSize is the size of a compacted area holding every
	// component enabled in XCR0 | IA32_XSS.
	CompactedSize uint `json:"compacted_size" yaml:"compacted_size"`

	XSAVEOPT bool `json:"xsaveopt" yaml:"xsaveopt"`
	XSAVEC   bool `json:"xsavec" yaml:"xsavec"`
	XGETBV1  bool `json:"xgetbv1" yaml:"xgetbv1"`
	XSAVES   bool `json:"xsaves" yaml:"xsaves"`
}

// ExtendedStateInfo returns sub-leaves 0 and 1 of the extended state
// enumeration, or ErrUnsupported.
func (fs FeatureSet) ExtendedStateInfo() (ExtendedStateInfo, error) {
	if !fs.Supported() {
		return ExtendedStateInfo{}, ErrUnsupported
	}
	ax, bx, cx, dx := fs.query(xSaveInfo)
	sax, sbx, scx, sdx := fs.query(xSaveInfoSub)
	return ExtendedStateInfo{
		SupportedXCR0: xstate.BitmapFromRaw(uint64(dx)<<32 | uint64(ax)),
		SupportedXSS:  xstate.BitmapFromRaw(uint64(sdx)<<32 | uint64(scx)),
		EnabledSize:   uint(bx),
		MaxSize:       uint(cx),
		CompactedSize: uint(sbx),
		XSAVEOPT:      sax&(1<<0) != 0,
		XSAVEC:        sax&(1<<1) != 0,
		XGETBV1:       sax&(1<<2) != 0,
		XSAVES:        sax&(1<<3) != 0,
	}, nil
}

// ValidXCR0Mask returns the valid bits in control register XCR0.
func (fs FeatureSet) ValidXCR0Mask() uint64 {
	if !fs.Supported() {
		return 0
	}
	ax, _, _, dx := fs.query(xSaveInfo)
	return xstate.BitmapFromRaw(uint64(dx)<<32 | uint64(ax)).Raw()
}

// ValidXSSMask returns the valid bits in the IA32_XSS MSR.
func (fs FeatureSet) ValidXSSMask() uint64 {
	if !fs.Supported() {
		return 0
	}
	_, _, cx, dx := fs.query(xSaveInfoSub)
	return xstate.BitmapFromRaw(uint64(dx)<<32 | uint64(cx)).Raw()
}

// EnabledXCR0 returns the user components the operating system has
// enabled. The register is read with XGETBV when the underlying Function
// implements ExtendedControl; otherwise every valid bit is assumed enabled.
func (fs FeatureSet) EnabledXCR0() xstate.UserEnabled {
	if !fs.Supported() {
		return 0
	}
	if ec, ok := fs.Function.(ExtendedControl); ok {
		if xcr0, ok := ec.XGETBV(0); ok {
			return xstate.UserEnabled(xcr0 & fs.ValidXCR0Mask())
		}
	}
	return xstate.UserEnabled(fs.ValidXCR0Mask())
}

// EnabledXSS returns the supervisor components that may be enabled.
//
// IA32_XSS can only be read at CPL 0, so this is the valid mask.
func (fs FeatureSet) EnabledXSS() xstate.SupervisorEnabled {
	return xstate.SupervisorEnabled(fs.ValidXSSMask())
}

// ComponentSizing returns the size and location of the given extended
// component, and false if the processor does not implement it.
//
// Precondition: c.IsExtended().
func (fs FeatureSet) ComponentSizing(c xstate.StateComponent) (xstate.ComponentSizing, bool) {
	c.AssertExtended()
	if !fs.Supported() {
		return xstate.ComponentSizing{}, false
	}
	out := fs.Query(In{Eax: xSaveInfo.eax(), Ecx: uint32(c)})
	if out.Eax == 0 {
		return xstate.ComponentSizing{}, false
	}
	owner := xstate.User
	if out.Ecx&xSaveComponentSupervisor != 0 {
		owner = xstate.Supervisor
	}
	return xstate.ComponentSizing{
		Size:                 uint(out.Eax),
		UncompactedOffset:    uint(out.Ebx),
		AlignedWhenCompacted: out.Ecx&xSaveComponentAligned != 0,
		Owner:                owner,
	}, true
}

// SizingTable returns the sizing of every extended component that is valid
// in XCR0 or IA32_XSS.
func (fs FeatureSet) SizingTable() xstate.SizingTable {
	var t xstate.SizingTable
	valid := xstate.BitmapFromRaw(fs.ValidXCR0Mask() | fs.ValidXSSMask())
	valid.Extended().ForEach(func(c xstate.StateComponent) {
		if s, ok := fs.ComponentSizing(c); ok {
			t.Set(c, s)
		}
	})
	return t
}

// MaxUncompactedSize returns the size of a standard format area that can
// hold every user component in enabled.
func (fs FeatureSet) MaxUncompactedSize(enabled xstate.StateComponentBitmap) uint {
	table := fs.SizingTable()
	return maxUncompactedSize(&table, enabled)
}

func maxUncompactedSize(table *xstate.SizingTable, enabled xstate.StateComponentBitmap) uint {
	size := uint(xsave.ExtendedRegionOffset)
	enabled.Extended().Intersect(table.Components()).ForEach(func(c xstate.StateComponent) {
		s, _ := table.Lookup(c)
		if s.Owner != xstate.User {
			return
		}
		if end := s.End(); end > size {
			size = end
		}
	})
	return size
}

// MaxCompactedSize returns the size of a compacted area that holds every
// component in enabled.
func (fs FeatureSet) MaxCompactedSize(enabled xstate.StateComponentBitmap) uint {
	table := fs.SizingTable()
	size, err := xsave.CompactedSize(&table, enabled.Extended().Intersect(table.Components()))
	if err != nil {
		// Not possible: every component has an entry.
		panic(fmt.Sprintf("compacted size of %v: %v", enabled, err))
	}
	return size
}

// ExtendedStateSize returns the number of bytes needed to save the "extended
// state" for the enabled features and the boundary it must be aligned to.
// Extended state includes floating point registers, and other cpu state that's
// not associated with the normal task context.
func (fs FeatureSet) ExtendedStateSize() (size, align uint) {
	if fs.Supported() {
		_, bx, _, _ := fs.query(xSaveInfo)
		if bx != 0 {
			return uint(bx), xsave.Alignment
		}
		return fs.MaxUncompactedSize(fs.EnabledXCR0().Bitmap()), xsave.Alignment
	}

	// If we don't support xsave, we fall back to fxsave, which requires
	// 512 bytes aligned to 16 bytes.
	return xsave.LegacyRegionSize, 16
}

// MaxExtendedStateSize returns the size of a standard area holding every
// supported user component.
func (fs FeatureSet) MaxExtendedStateSize() uint {
	if fs.Supported() {
		_, _, cx, _ := fs.query(xSaveInfo)
		if cx != 0 {
			return uint(cx)
		}
		return fs.MaxUncompactedSize(xstate.BitmapFromRaw(fs.ValidXCR0Mask()))
	}
	return xsave.LegacyRegionSize
}

// AMXExtendedStateSize returns the number of bytes within the "extended state"
// area that is used for AMX.
func (fs FeatureSet) AMXExtendedStateSize() uint {
	if uint64(fs.EnabledXCR0())&XCR0AMXMask == 0 {
		return 0
	}
	var size uint
	for _, c := range []xstate.StateComponent{xstate.TILECFG, xstate.TILEDATA} {
		if s, ok := fs.ComponentSizing(c); ok {
			size += s.Size
		}
	}
	return size
}

// CheckCompatible returns an error if a save area written on a processor
// described by other cannot be decoded with the sizing reported by fs.
// Components that only fs implements are ignored.
func (fs FeatureSet) CheckCompatible(other FeatureSet) error {
	if !other.Supported() {
		return nil
	}
	if !fs.Supported() {
		return &ErrIncompatible{reason: "XSAVE is not supported"}
	}
	mine, theirs := fs.SizingTable(), other.SizingTable()
	for _, c := range mine.Mismatches(&theirs) {
		m, ok := mine.Lookup(c)
		if !ok {
			return &ErrIncompatible{reason: fmt.Sprintf("state component %v is not implemented", c)}
		}
		t, ok := theirs.Lookup(c)
		if !ok {
			continue
		}
		return &ErrIncompatible{
			reason: fmt.Sprintf("state component %v sizing %+v incompatible with %+v", c, t, m),
		}
	}
	return nil
}
