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

// FeatureSet defines features in terms of CPUID leaves and bits.
//
// Common references:
//
// Intel:
//   - Intel SDM Volume 1, Chapter 13 "Managing State Using the XSAVE
//     Feature Set"
//   - Intel SDM Volume 2, Chapter 3.2 "CPUID" (more up-to-date)
//
// AMD:
//   - AMD64 APM Volume 3, Appendix 3 "Obtaining Processor Information ..."
type FeatureSet struct {
	// Function is the underlying CPUID Function.
	//
	// This is exported to allow direct calls of the underlying CPUID
	// function, where required.
	Function
}

// query is a internal wrapper.
func (fs FeatureSet) query(fn cpuidFunction) (uint32, uint32, uint32, uint32) {
	out := fs.Query(In{Eax: fn.eax(), Ecx: fn.ecx()})
	return out.Eax, out.Ebx, out.Ecx, out.Edx
}

// maxBasicLeaf returns the largest standard function.
func (fs FeatureSet) maxBasicLeaf() uint32 {
	ax, _, _, _ := fs.query(vendorID)
	return ax
}

// Helper to convert 3 regs into 12-byte vendor ID.
func vendorIDFromRegs(bx, cx, dx uint32) (r [12]byte) {
	for i := uint(0); i < 4; i++ {
		b := byte(bx >> (i * 8))
		r[i] = b
	}

	for i := uint(0); i < 4; i++ {
		b := byte(dx >> (i * 8))
		r[4+i] = b
	}

	for i := uint(0); i < 4; i++ {
		b := byte(cx >> (i * 8))
		r[8+i] = b
	}

	return r
}

// Helper to merge a 12-byte vendor ID back to registers.
//
// Used by profiles.
func regsFromVendorID(r [12]byte) (bx, cx, dx uint32) {
	bx |= uint32(r[0])
	bx |= uint32(r[1]) << 8
	bx |= uint32(r[2]) << 16
	bx |= uint32(r[3]) << 24
	dx |= uint32(r[4])
	dx |= uint32(r[5]) << 8
	dx |= uint32(r[6]) << 16
	dx |= uint32(r[7]) << 24
	cx |= uint32(r[8])
	cx |= uint32(r[9]) << 8
	cx |= uint32(r[10]) << 16
	cx |= uint32(r[11]) << 24
	return
}

// VendorID is the 12-char string returned in ebx:edx:ecx for eax=0.
func (fs FeatureSet) VendorID() [12]byte {
	_, bx, cx, dx := fs.query(vendorID)
	return vendorIDFromRegs(bx, cx, dx)
}

// Helper to deconstruct signature dword.
func signatureSplit(v uint32) (ef, em, pt, f, m, sid uint8) {
	sid = uint8(v & 0xf)
	m = uint8(v>>4) & 0xf
	f = uint8(v>>8) & 0xf
	pt = uint8(v>>12) & 0x3
	em = uint8(v>>16) & 0xf
	ef = uint8(v >> 20)
	return
}

// Family returns the display family, combining the base and extended
// family fields as /proc/cpuinfo does.
func (fs FeatureSet) Family() uint8 {
	ax, _, _, _ := fs.query(featureInfo)
	ef, _, _, f, _, _ := signatureSplit(ax)
	return ((ef << 4) & 0xff) | f
}

// Model returns the display model, combining the base and extended model
// fields as /proc/cpuinfo does.
func (fs FeatureSet) Model() uint8 {
	ax, _, _, _ := fs.query(featureInfo)
	_, em, _, _, m, _ := signatureSplit(ax)
	return ((em << 4) & 0xff) | m
}

// SteppingID is part of the processor signature.
func (fs FeatureSet) SteppingID() uint8 {
	ax, _, _, _ := fs.query(featureInfo)
	_, _, _, _, _, sid := signatureSplit(ax)
	return sid
}

// HasFeature tests whether or not a feature is in the given feature set.
func (fs FeatureSet) HasFeature(feature Feature) bool {
	return feature.check(fs)
}

// Features returns the known features present in fs.
func (fs FeatureSet) Features() []Feature {
	var present []Feature
	for _, f := range AllFeatures() {
		if fs.HasFeature(f) {
			present = append(present, f)
		}
	}
	return present
}

// Supported returns true if the XSAVE feature set can be used: the
// processor implements leaf 0xD and XSAVE, and the operating system has
// enabled it (OSXSAVE).
func (fs FeatureSet) Supported() bool {
	return fs.maxBasicLeaf() >= xSaveInfo.eax() && fs.UseXsave()
}

// UseXsave returns the choice of fp state saving instruction.
func (fs FeatureSet) UseXsave() bool {
	return fs.HasFeature(X86FeatureXSAVE) && fs.HasFeature(X86FeatureOSXSAVE)
}

// UseXsaveopt returns true if 'fs' supports the "xsaveopt" instruction.
func (fs FeatureSet) UseXsaveopt() bool {
	return fs.UseXsave() && fs.HasFeature(X86FeatureXSAVEOPT)
}

// UseXsavec returns true if 'fs' supports the "xsavec" instruction.
func (fs FeatureSet) UseXsavec() bool {
	return fs.UseXsave() && fs.HasFeature(X86FeatureXSAVEC)
}

// UseXsaves returns true if 'fs' supports the "xsaves" instruction.
//
// XSAVES is privileged; this only reports processor support.
func (fs FeatureSet) UseXsaves() bool {
	return fs.UseXsave() && fs.HasFeature(X86FeatureXSAVES)
}

// UseFxsave returns true if 'fs' supports the legacy "fxsave" instruction.
func (fs FeatureSet) UseFxsave() bool {
	return fs.HasFeature(X86FeatureFXSR)
}
