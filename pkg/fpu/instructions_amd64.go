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

//go:build amd64
// +build amd64

package fpu

// xsave64 uses xsave to save floating point state.
//
//go:noescape
func xsave64(addr *byte, mask uint64)

// xsaveopt64 uses xsaveopt to save floating point state.
//
//go:noescape
func xsaveopt64(addr *byte, mask uint64)

// xsavec64 uses xsavec to save floating point state in compacted format.
//
//go:noescape
func xsavec64(addr *byte, mask uint64)

// xrstor64 uses xrstor to load floating point state.
//
//go:noescape
func xrstor64(addr *byte, mask uint64)

// fxsave64 uses fxsave64 to save floating point state.
//
//go:noescape
func fxsave64(addr *byte, mask uint64)

// fxrstor64 uses fxrstor64 to load floating point state.
//
//go:noescape
func fxrstor64(addr *byte, mask uint64)

func nativeInstructions(form Form) (Instructions, bool) {
	switch form {
	case Standard:
		return Instructions{Form: form, Save: xsave64, Restore: xrstor64}, true
	case Optimized:
		return Instructions{Form: form, Save: xsaveopt64, Restore: xrstor64}, true
	case Compacted:
		return Instructions{Form: form, Save: xsavec64, Restore: xrstor64}, true
	case FXSAVE:
		return Instructions{Form: form, Save: fxsave64, Restore: fxrstor64}, true
	default:
		return Instructions{}, false
	}
}
