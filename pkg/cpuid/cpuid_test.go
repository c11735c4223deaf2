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

package cpuid

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/xstate/pkg/xstate"
)

var genuineIntel = [12]byte{'G', 'e', 'n', 'u', 'i', 'n', 'e', 'I', 'n', 't', 'e', 'l'}

// testStatic returns a processor with x87, SSE, AVX and PKRU user state and
// processor trace supervisor state. PKRU is aligned in the compacted format.
func testStatic() Static {
	bx, cx, dx := regsFromVendorID(genuineIntel)
	return Static{
		{Eax: 0x0}:         {Eax: 0xd, Ebx: bx, Ecx: cx, Edx: dx},
		{Eax: 0x1}:         {Eax: 0x000506e3, Ecx: 1<<26 | 1<<27 | 1<<28, Edx: 1<<0 | 1<<24 | 1<<25},
		{Eax: 0x7}:         {Ecx: 1<<3 | 1<<4},
		{Eax: 0xd, Ecx: 0}: {Eax: 0x207, Ebx: 2696, Ecx: 2696},
		{Eax: 0xd, Ecx: 1}: {Eax: 0xf, Ebx: 960, Ecx: 1 << 8},
		{Eax: 0xd, Ecx: 2}: {Eax: 256, Ebx: 576},
		{Eax: 0xd, Ecx: 8}: {Eax: 72, Ecx: xSaveComponentSupervisor},
		{Eax: 0xd, Ecx: 9}: {Eax: 8, Ebx: 2688, Ecx: xSaveComponentAligned},
		{Eax: 0x80000000}:  {Eax: 0x80000001},
		{Eax: 0x80000001}:  {Ecx: 1},
	}
}

func testFeatureSet() FeatureSet {
	return testStatic().ToFeatureSet()
}

func TestVendorID(t *testing.T) {
	if got := testFeatureSet().VendorID(); got != genuineIntel {
		t.Errorf("VendorID() = %q, want %q", got, genuineIntel)
	}
}

func TestSignature(t *testing.T) {
	fs := testFeatureSet()
	if got := fs.Family(); got != 6 {
		t.Errorf("Family() = %d, want 6", got)
	}
	if got := fs.Model(); got != 0x5e {
		t.Errorf("Model() = %#x, want 0x5e", got)
	}
	if got := fs.SteppingID(); got != 3 {
		t.Errorf("SteppingID() = %d, want 3", got)
	}
}

func TestHasFeature(t *testing.T) {
	fs := testFeatureSet()
	for _, f := range []Feature{X86FeatureXSAVE, X86FeatureOSXSAVE, X86FeatureAVX, X86FeatureFXSR, X86FeaturePKU, X86FeatureXSAVEOPT, X86FeatureXSAVEC, X86FeatureXGETBV1, X86FeatureXSAVES} {
		if !fs.HasFeature(f) {
			t.Errorf("HasFeature(%v) = false, want true", f)
		}
	}
	for _, f := range []Feature{X86FeatureAVX512F, X86FeatureMPX} {
		if fs.HasFeature(f) {
			t.Errorf("HasFeature(%v) = true, want false", f)
		}
	}
}

func TestAddRemove(t *testing.T) {
	s := testStatic()
	s.Remove(X86FeatureXSAVEC)
	fs := s.ToFeatureSet()
	if fs.HasFeature(X86FeatureXSAVEC) || fs.UseXsavec() {
		t.Errorf("XSAVEC still present after Remove")
	}
	if !fs.UseXsaveopt() {
		t.Errorf("Remove(XSAVEC) cleared XSAVEOPT")
	}
	s.Add(X86FeatureAVX512F)
	if !s.ToFeatureSet().HasFeature(X86FeatureAVX512F) {
		t.Errorf("AVX512F missing after Add")
	}
}

func TestFeatureFromString(t *testing.T) {
	for _, f := range AllFeatures() {
		got, ok := FeatureFromString(f.String())
		if !ok || got != f {
			t.Errorf("FeatureFromString(%q) = %v, %t, want %v", f.String(), got, ok, f)
		}
	}
	if _, ok := FeatureFromString("bogus"); ok {
		t.Errorf("FeatureFromString(bogus) succeeded")
	}
}

func TestSupported(t *testing.T) {
	if !testFeatureSet().Supported() {
		t.Fatalf("Supported() = false, want true")
	}

	noOS := testStatic().Remove(X86FeatureOSXSAVE).ToFeatureSet()
	if noOS.Supported() {
		t.Errorf("Supported() = true without OSXSAVE")
	}

	oldLeaf := testStatic()
	oldLeaf[In{Eax: 0}] = Out{Eax: 0x7}
	if oldLeaf.ToFeatureSet().Supported() {
		t.Errorf("Supported() = true with max leaf 0x7")
	}

	empty := FeatureSet{Static{}}
	if empty.Supported() {
		t.Errorf("Supported() = true for an empty function")
	}
	if _, err := empty.ExtendedStateInfo(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ExtendedStateInfo() = %v, want ErrUnsupported", err)
	}
	if _, ok := empty.ComponentSizing(xstate.AVX); ok {
		t.Errorf("ComponentSizing(AVX) succeeded on an empty function")
	}
}

func TestExtendedStateInfo(t *testing.T) {
	got, err := testFeatureSet().ExtendedStateInfo()
	if err != nil {
		t.Fatalf("ExtendedStateInfo() failed: %v", err)
	}
	want := ExtendedStateInfo{
		SupportedXCR0: xstate.BitmapOf(xstate.X87, xstate.SSE, xstate.AVX, xstate.PKRU),
		SupportedXSS:  xstate.BitmapOf(xstate.PT),
		EnabledSize:   2696,
		MaxSize:       2696,
		CompactedSize: 960,
		XSAVEOPT:      true,
		XSAVEC:        true,
		XGETBV1:       true,
		XSAVES:        true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtendedStateInfo() mismatch (-want +got):\n%s", diff)
	}
}

func TestComponentSizing(t *testing.T) {
	fs := testFeatureSet()
	for _, tc := range []struct {
		c    xstate.StateComponent
		want xstate.ComponentSizing
		ok   bool
	}{
		{xstate.AVX, xstate.ComponentSizing{Size: 256, UncompactedOffset: 576}, true},
		{xstate.PT, xstate.ComponentSizing{Size: 72, Owner: xstate.Supervisor}, true},
		{xstate.PKRU, xstate.ComponentSizing{Size: 8, UncompactedOffset: 2688, AlignedWhenCompacted: true}, true},
		{xstate.BNDREGS, xstate.ComponentSizing{}, false},
		{10, xstate.ComponentSizing{}, false},
	} {
		got, ok := fs.ComponentSizing(tc.c)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ComponentSizing(%v) = %+v, %t, want %+v, %t", tc.c, got, ok, tc.want, tc.ok)
		}
	}

	for _, c := range []xstate.StateComponent{xstate.X87, xstate.SSE, 63} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("ComponentSizing(%d) did not panic", c)
				}
			}()
			fs.ComponentSizing(c)
		}()
	}
}

func TestSizingTable(t *testing.T) {
	table := testFeatureSet().SizingTable()
	if got, want := table.Components(), xstate.BitmapOf(xstate.AVX, xstate.PT, xstate.PKRU); got != want {
		t.Errorf("SizingTable().Components() = %v, want %v", got, want)
	}
}

func TestMasks(t *testing.T) {
	fs := testFeatureSet()
	if got, want := fs.ValidXCR0Mask(), uint64(0x207); got != want {
		t.Errorf("ValidXCR0Mask() = %#x, want %#x", got, want)
	}
	if got, want := fs.ValidXSSMask(), uint64(1<<8); got != want {
		t.Errorf("ValidXSSMask() = %#x, want %#x", got, want)
	}
	if got, want := fs.EnabledXCR0(), xstate.UserEnabled(0x207); got != want {
		t.Errorf("EnabledXCR0() = %v, want %v", got, want)
	}
	if got, want := fs.EnabledXSS(), xstate.SupervisorEnabled(1<<8); got != want {
		t.Errorf("EnabledXSS() = %v, want %v", got, want)
	}

	snap := Snapshot{Static: testStatic(), XCR0: 0x7}.ToFeatureSet()
	if got, want := snap.EnabledXCR0(), xstate.UserEnabled(0x7); got != want {
		t.Errorf("snapshot EnabledXCR0() = %v, want %v", got, want)
	}
}

func TestMaxSizes(t *testing.T) {
	fs := testFeatureSet()
	for _, tc := range []struct {
		enabled     xstate.StateComponentBitmap
		uncompacted uint
		compacted   uint
	}{
		{xstate.BitmapOf(xstate.X87, xstate.SSE), 576, 576},
		{xstate.BitmapOf(xstate.X87, xstate.SSE, xstate.AVX), 832, 832},
		// PKRU is aligned: 576+256+8 rounds up to 896.
		{xstate.BitmapOf(xstate.X87, xstate.SSE, xstate.AVX, xstate.PKRU), 2696, 896},
		// PT is supervisor state and never in a standard area.
		{xstate.BitmapOf(xstate.X87, xstate.SSE, xstate.AVX, xstate.PT, xstate.PKRU), 2696, 960},
		// Bits without sizing are ignored.
		{xstate.BitmapOf(xstate.AVX, xstate.BNDREGS), 832, 832},
	} {
		if got := fs.MaxUncompactedSize(tc.enabled); got != tc.uncompacted {
			t.Errorf("MaxUncompactedSize(%v) = %d, want %d", tc.enabled, got, tc.uncompacted)
		}
		if got := fs.MaxCompactedSize(tc.enabled); got != tc.compacted {
			t.Errorf("MaxCompactedSize(%v) = %d, want %d", tc.enabled, got, tc.compacted)
		}
	}
}

func TestExtendedStateSize(t *testing.T) {
	size, align := testFeatureSet().ExtendedStateSize()
	if size != 2696 || align != 64 {
		t.Errorf("ExtendedStateSize() = %d, %d, want 2696, 64", size, align)
	}
	if got := testFeatureSet().MaxExtendedStateSize(); got != 2696 {
		t.Errorf("MaxExtendedStateSize() = %d, want 2696", got)
	}

	fxsaveOnly := testStatic().Remove(X86FeatureXSAVE).ToFeatureSet()
	size, align = fxsaveOnly.ExtendedStateSize()
	if size != 512 || align != 16 {
		t.Errorf("ExtendedStateSize() without XSAVE = %d, %d, want 512, 16", size, align)
	}
	if got := fxsaveOnly.MaxExtendedStateSize(); got != 512 {
		t.Errorf("MaxExtendedStateSize() without XSAVE = %d, want 512", got)
	}
}

func TestCheckCompatible(t *testing.T) {
	fs := testFeatureSet()
	if err := fs.CheckCompatible(testFeatureSet()); err != nil {
		t.Errorf("CheckCompatible(self) = %v", err)
	}

	moved := testStatic()
	moved[In{Eax: 0xd, Ecx: 9}] = Out{Eax: 8, Ebx: 2696, Ecx: xSaveComponentAligned}
	var incompatible *ErrIncompatible
	if err := fs.CheckCompatible(moved.ToFeatureSet()); !errors.As(err, &incompatible) {
		t.Errorf("CheckCompatible(moved PKRU) = %v, want ErrIncompatible", err)
	}

	extra := testStatic()
	extra[In{Eax: 0xd, Ecx: 0}] = Out{Eax: 0x20f, Ebx: 2696, Ecx: 2696}
	extra[In{Eax: 0xd, Ecx: 3}] = Out{Eax: 64, Ebx: 960}
	if err := fs.CheckCompatible(extra.ToFeatureSet()); !errors.As(err, &incompatible) {
		t.Errorf("CheckCompatible(extra BNDREGS) = %v, want ErrIncompatible", err)
	}
	// The reverse direction is fine: the origin simply never used BNDREGS.
	if err := extra.ToFeatureSet().CheckCompatible(fs); err != nil {
		t.Errorf("CheckCompatible(subset) = %v", err)
	}
}

func TestFixed(t *testing.T) {
	fs := testFeatureSet()
	fixed := fs.Fixed()
	for in := range testStatic() {
		if got, want := fixed.Query(in), fs.Query(in); got != want {
			t.Errorf("Fixed().Query(%+v) = %+v, want %+v", in, got, want)
		}
	}
}

func TestProfile(t *testing.T) {
	fs := Snapshot{Static: testStatic(), XCR0: 0x7}.ToFeatureSet()
	p := NewProfile(fs)
	if p.Vendor != "GenuineIntel" {
		t.Errorf("Vendor = %q, want GenuineIntel", p.Vendor)
	}

	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := DecodeProfile(&buf)
	if err != nil {
		t.Fatalf("DecodeProfile failed: %v", err)
	}
	if diff := cmp.Diff(&p, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}

	loaded := got.FeatureSet()
	if got, want := loaded.EnabledXCR0(), xstate.UserEnabled(0x7); got != want {
		t.Errorf("EnabledXCR0() = %v, want %v", got, want)
	}
	want, have := fs.SizingTable(), loaded.SizingTable()
	if !want.Equal(&have) {
		t.Errorf("SizingTable mismatch: want\n%v\ngot\n%v", &want, &have)
	}
}

func TestDecodeProfileUnknownKey(t *testing.T) {
	_, err := DecodeProfile(strings.NewReader("vendor = \"x\"\nbogus = 1\n"))
	if err == nil {
		t.Errorf("DecodeProfile accepted an unknown key")
	}
}

func TestHostFeatureSet(t *testing.T) {
	fs := HostFeatureSet()
	if !fs.Supported() {
		t.Skip("XSAVE not supported on this host")
	}
	xcr0 := fs.EnabledXCR0().Bitmap()
	if !xcr0.Contains(xstate.X87) || !xcr0.Contains(xstate.SSE) {
		t.Errorf("EnabledXCR0() = %v, want x87 and sse", xcr0)
	}
	if xcr0.Raw()&^fs.ValidXCR0Mask() != 0 {
		t.Errorf("EnabledXCR0() = %v is not a subset of %#x", xcr0, fs.ValidXCR0Mask())
	}

	table := HostSizingTable()
	table.Components().ForEach(func(c xstate.StateComponent) {
		s, _ := table.Lookup(c)
		if s.Owner == xstate.User && s.UncompactedOffset < 576 {
			t.Errorf("component %v at offset %d overlaps the legacy region", c, s.UncompactedOffset)
		}
	})
	if size := fs.MaxUncompactedSize(xcr0); size < 576 {
		t.Errorf("MaxUncompactedSize() = %d", size)
	}
}
