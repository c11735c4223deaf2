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

// Package cpuid provides the CPUID queries that describe the XSAVE feature
// set: which state components the processor implements, how large they are,
// where they live in a save area and which instruction forms are available.
//
// To use FeatureSets, one should start with an existing FeatureSet (either
// HostFeatureSet(), or a Static definition loaded from a profile) and then
// query it as desired.
//
// For example: test for hardware extended state saving, and if we don't
// have it, fall back to fxsave.
//
//	if !HostFeatureSet().UseXsave() {
//		inst = fpu.FXSAVEInstructions()
//	}
//
// Absence is never a fault: queries for leaves or sub-leaves the processor
// does not implement return zero values.
package cpuid

import (
	"errors"
	"fmt"
)

// cpuidFunction is a useful type wrapper. The format is eax | (ecx << 32).
type cpuidFunction uint64

func (f cpuidFunction) eax() uint32 {
	return uint32(f)
}

func (f cpuidFunction) ecx() uint32 {
	return uint32(f >> 32)
}

// The constants below are the lower or "standard" cpuid functions, ordered as
// defined by the hardware. Only some are executed by Native.Query, see
// allowedBasicFunctions.
const (
	vendorID            cpuidFunction = 0x0               // Returns vendor ID and largest standard function.
	featureInfo         cpuidFunction = 0x1               // Returns basic feature bits and processor signature.
	extendedFeatureInfo cpuidFunction = 0x7               // Returns extended feature bits.
	xSaveInfo           cpuidFunction = 0xd               // Returns information about extended state management.
	xSaveInfoSub        cpuidFunction = 0xd | (0x1 << 32) // Returns information about extended state management (Sub-leaf).
)

const xSaveInfoNumLeaves = 64 // Maximum number of xSaveInfo leaves.

// The "extended" functions.
const (
	extendedStart        cpuidFunction = 0x80000000
	extendedFunctionInfo cpuidFunction = extendedStart + 0 // Returns highest available extended function in eax.
	extendedFeatures                   = extendedStart + 1 // Returns some extended feature bits in edx and ecx.
)

var allowedBasicFunctions = [...]bool{
	vendorID:            true,
	featureInfo:         true,
	extendedFeatureInfo: true,
	xSaveInfo:           true,
}

var allowedExtendedFunctions = [...]bool{
	extendedFunctionInfo - extendedStart: true,
	extendedFeatures - extendedStart:     true,
}

// Function executes a CPUID function.
//
// This is typically the native function or a Static definition.
type Function interface {
	Query(In) Out
}

// ExtendedControl is implemented by Functions that can also read extended
// control registers, i.e. execute XGETBV.
type ExtendedControl interface {
	// XGETBV returns the value of the given extended control register,
	// and false if it cannot be read.
	XGETBV(reg uint32) (uint64, bool)
}

// In is input to the Query function.
type In struct {
	Eax uint32
	Ecx uint32
}

// normalize drops irrelevant Ecx values.
func (i *In) normalize() {
	switch cpuidFunction(i.Eax) {
	case vendorID, featureInfo, extendedFunctionInfo, extendedFeatures:
		i.Ecx = 0 // Ignore.
	case extendedFeatureInfo, xSaveInfo:
		// Preserve i.Ecx.
	}
}

// Out is output from the Query function.
type Out struct {
	Eax uint32
	Ebx uint32
	Ecx uint32
	Edx uint32
}

// allowed returns true if in names a function that Native may execute.
func (i In) allowed() bool {
	if int(i.Eax) < len(allowedBasicFunctions) {
		return allowedBasicFunctions[i.Eax]
	}
	if i.Eax >= uint32(extendedStart) {
		l := int(i.Eax - uint32(extendedStart))
		return l < len(allowedExtendedFunctions) && allowedExtendedFunctions[l]
	}
	return false
}

// ErrUnsupported is returned when the processor, or the operating system,
// does not support the XSAVE feature set.
var ErrUnsupported = errors.New("XSAVE is not supported")

// ErrIncompatible is returned by FeatureSet.CheckCompatible if the save area
// layouts described by two feature sets disagree.
type ErrIncompatible struct {
	reason string
}

// Error implements error.
func (e *ErrIncompatible) Error() string {
	return fmt.Sprintf("incompatible FeatureSet: %v", e.reason)
}
