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

// Package fpu owns save area memory and moves processor extended state in
// and out of it with the XSAVE family of instructions.
//
// Save and restore act on the registers of the calling OS thread, so they
// are only available through a Thread, which pins the goroutine to its
// thread for as long as it is held.
package fpu

import (
	"encoding/binary"
	"fmt"
	"strings"

	"gvisor.dev/xstate/pkg/xstate"
)

var byteOrder = binary.LittleEndian

// Form is a save instruction form.
type Form uint8

// Save forms.
const (
	// Standard is XSAVE: every requested component at its fixed offset.
	Standard Form = iota

	// Optimized is XSAVEOPT: the standard format, skipping components the
	// processor knows are unmodified since the last XRSTOR.
	Optimized

	// Compacted is XSAVEC: the compacted format with XCOMP_BV set.
	Compacted

	// FXSAVE saves only the 512 byte legacy region and writes no header.
	FXSAVE
)

var formNames = [...]string{
	Standard:  "standard",
	Optimized: "optimized",
	Compacted: "compacted",
	FXSAVE:    "fxsave",
}

// String implements fmt.Stringer.
func (f Form) String() string {
	if int(f) < len(formNames) {
		return formNames[f]
	}
	return fmt.Sprintf("Form(%d)", uint8(f))
}

// FormFromString returns the form with the given name.
func FormFromString(s string) (Form, error) {
	for f, name := range formNames {
		if strings.EqualFold(s, name) {
			return Form(f), nil
		}
	}
	return 0, fmt.Errorf("unknown save form %q", s)
}

// ErrLoadingState indicates a failed restore due to unusable floating point
// state.
type ErrLoadingState struct {
	// supported is the supported floating point state.
	supportedFeatures xstate.StateComponentBitmap

	// saved is the saved floating point state.
	savedFeatures xstate.StateComponentBitmap
}

// Error returns a sensible description of the restore error.
func (e ErrLoadingState) Error() string {
	return fmt.Sprintf("floating point state contains unsupported features; supported: %v saved: %v", e.supportedFeatures, e.savedFeatures)
}

// AllocationError is returned when save area memory cannot be obtained or
// does not meet the size and alignment requirements.
type AllocationError struct {
	Size  uint
	Align uint
	Err   error
}

// Error implements error.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocating %d bytes aligned to %d: %v", e.Size, e.Align, e.Err)
}

// Unwrap returns the underlying error.
func (e *AllocationError) Unwrap() error {
	return e.Err
}
