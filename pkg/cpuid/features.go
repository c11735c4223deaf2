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
	"sort"
)

// Feature is a unique identifier for a particular cpu feature.
//
// Features are numbered according to "blocks". Each block is 32 bits, and
// feature bits from the same source (cpuid leaf/level) are in the same block.
type Feature int

// block is a collection of 32 Feature bits.
type block int

const blockSize = 32

// Feature bits are numbered according to "blocks". Each block is 32 bits, and
// feature bits from the same source (cpuid leaf/level) are in the same block.
func featureID(b block, bit int) Feature {
	return Feature(blockSize*int(b) + bit)
}

// Block 0 constants are all of the "basic" feature bits returned by a cpuid in
// ecx with eax=1.
var (
	X86FeatureSSE3    Feature = featureID(0, 0)
	X86FeatureFMA     Feature = featureID(0, 12)
	X86FeatureXSAVE   Feature = featureID(0, 26)
	X86FeatureOSXSAVE Feature = featureID(0, 27)
	X86FeatureAVX     Feature = featureID(0, 28)
)

// Block 1 constants are all of the "basic" feature bits returned by a cpuid in
// edx with eax=1.
var (
	X86FeatureFPU  Feature = featureID(1, 0)
	X86FeatureMMX  Feature = featureID(1, 23)
	X86FeatureFXSR Feature = featureID(1, 24)
	X86FeatureSSE  Feature = featureID(1, 25)
	X86FeatureSSE2 Feature = featureID(1, 26)
)

// Block 2 bits are the "structured extended" features returned in ebx for
// eax=7, ecx=0.
var (
	X86FeatureAVX2    Feature = featureID(2, 5)
	X86FeatureMPX     Feature = featureID(2, 14)
	X86FeatureAVX512F Feature = featureID(2, 16)
)

// Block 3 bits are the "extended" features returned in ecx for eax=7, ecx=0.
var (
	X86FeaturePKU   Feature = featureID(3, 3)
	X86FeatureOSPKE Feature = featureID(3, 4)
)

// Block 4 constants are for xsave capabilities in CPUID.(EAX=0DH,ECX=01H):EAX.
var (
	X86FeatureXSAVEOPT Feature = featureID(4, 0)
	X86FeatureXSAVEC   Feature = featureID(4, 1)
	X86FeatureXGETBV1  Feature = featureID(4, 2)
	X86FeatureXSAVES   Feature = featureID(4, 3)
)

// allFeatureInfo describes a Feature.
type allFeatureInfo struct {
	// displayName is the name used in /proc/cpuinfo.
	displayName string
}

// allFeatures is the set of allFeatures.
var allFeatures = map[Feature]allFeatureInfo{
	X86FeatureSSE3:     {"pni"},
	X86FeatureFMA:      {"fma"},
	X86FeatureXSAVE:    {"xsave"},
	X86FeatureOSXSAVE:  {"osxsave"},
	X86FeatureAVX:      {"avx"},
	X86FeatureFPU:      {"fpu"},
	X86FeatureMMX:      {"mmx"},
	X86FeatureFXSR:     {"fxsr"},
	X86FeatureSSE:      {"sse"},
	X86FeatureSSE2:     {"sse2"},
	X86FeatureAVX2:     {"avx2"},
	X86FeatureMPX:      {"mpx"},
	X86FeatureAVX512F:  {"avx512f"},
	X86FeaturePKU:      {"pku"},
	X86FeatureOSPKE:    {"ospke"},
	X86FeatureXSAVEOPT: {"xsaveopt"},
	X86FeatureXSAVEC:   {"xsavec"},
	X86FeatureXGETBV1:  {"xgetbv1"},
	X86FeatureXSAVES:   {"xsaves"},
}

// String returns the display name of the feature.
func (f Feature) String() string {
	if info, ok := allFeatures[f]; ok {
		return info.displayName
	}
	return fmt.Sprintf("[0x%x?]", int(f))
}

// FeatureFromString returns the Feature associated with the given feature
// string plus a bool to indicate if it could find the feature.
func FeatureFromString(s string) (Feature, bool) {
	for feature, info := range allFeatures {
		if info.displayName == s {
			return feature, true
		}
	}
	return 0, false
}

// AllFeatures returns the known features in ascending order.
func AllFeatures() []Feature {
	fs := make([]Feature, 0, len(allFeatures))
	for f := range allFeatures {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}

// source returns the function and register that hold f.
func (f Feature) source() (fn cpuidFunction, reg int, bit uint) {
	bit = uint(f) % blockSize
	switch block(int(f) / blockSize) {
	case 0:
		return featureInfo, 2, bit
	case 1:
		return featureInfo, 3, bit
	case 2:
		return extendedFeatureInfo, 1, bit
	case 3:
		return extendedFeatureInfo, 2, bit
	case 4:
		return xSaveInfoSub, 0, bit
	default:
		panic(fmt.Sprintf("unknown feature block for %v", f))
	}
}

// reg returns a pointer to register r of out.
func (out *Out) reg(r int) *uint32 {
	switch r {
	case 0:
		return &out.Eax
	case 1:
		return &out.Ebx
	case 2:
		return &out.Ecx
	default:
		return &out.Edx
	}
}

// check checks for the presence of a feature in the given FeatureSet.
func (f Feature) check(fs FeatureSet) bool {
	fn, r, bit := f.source()
	if fn != featureInfo && fs.maxBasicLeaf() < fn.eax() {
		return false
	}
	out := fs.Query(In{Eax: fn.eax(), Ecx: fn.ecx()})
	return (*out.reg(r)>>bit)&1 != 0
}

// set sets or clears the feature in the given Static function.
func (f Feature) set(s Static, on bool) {
	fn, r, bit := f.source()
	in := In{Eax: fn.eax(), Ecx: fn.ecx()}
	out := s[in]
	if on {
		*out.reg(r) |= 1 << bit
	} else {
		*out.reg(r) &^= 1 << bit
	}
	s[in] = out
}
