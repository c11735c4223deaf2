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

//go:build amd64
// +build amd64

package cpuid

import (
	"golang.org/x/sys/cpu"
)

// Native is a native Function.
//
// This implements Function and ExtendedControl.
type Native struct{}

// native is the native Query function.
func native(in In) (out Out)

// xgetbv reads the given extended control register.
func xgetbv(reg uint32) uint64

// maxBasicLeaf is the largest standard function the host implements.
var maxBasicLeaf = native(In{Eax: uint32(vendorID)}).Eax

// maxExtendedLeaf is the largest extended function the host implements.
var maxExtendedLeaf = native(In{Eax: uint32(extendedFunctionInfo)}).Eax

// Query executes CPUID natively.
//
// Functions outside the allowed set, or beyond the range reported by the
// processor, return all zeros.
//
// This implements Function.
func (*Native) Query(in In) Out {
	if !in.allowed() {
		return Out{} // All zeros.
	}
	if in.Eax >= uint32(extendedStart) {
		if in.Eax > maxExtendedLeaf {
			return Out{}
		}
	} else if in.Eax > maxBasicLeaf {
		return Out{}
	}
	return native(in)
}

// XGETBV implements ExtendedControl.XGETBV.
//
// XGETBV raises #UD unless CR4.OSXSAVE is set, so the instruction is only
// executed when the operating system reports OSXSAVE.
func (*Native) XGETBV(reg uint32) (uint64, bool) {
	if !cpu.X86.HasOSXSAVE {
		return 0, false
	}
	if reg == 1 && !(FeatureSet{&Native{}}).HasFeature(X86FeatureXGETBV1) {
		return 0, false
	}
	return xgetbv(reg), true
}
