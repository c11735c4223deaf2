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
	"sync"

	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/pkg/xsave"
)

// mxcsrMaskOffset is the offset in bytes of the MXCSR_MASK field from the
// start of the FXSAVE area.
const mxcsrMaskOffset = 28

var (
	mxcsrMask     xsave.MXCSR
	initMXCSRMask sync.Once
)

// hostMXCSRMask returns the MXCSR bits the host processor supports.
// ("FXRSTOR generates a general-protection fault (#GP) in response to an
// attempt to set any of the reserved bits of the MXCSR register." - Intel
// SDM Vol. 1, Section 10.5.1.2 "SSE State")
func hostMXCSRMask() xsave.MXCSR {
	initMXCSRMask.Do(func() {
		if ins, err := SelectInstructions(cpuid.HostFeatureSet(), FXSAVE); err == nil {
			temp := alignedBytes(xsave.LegacyRegionSize, 16)
			ins.Save(&temp[0], 0)
			mxcsrMask = xsave.MXCSR(byteOrder.Uint32(temp[mxcsrMaskOffset:]))
		}
		if mxcsrMask == 0 {
			// "If the value of the MXCSR_MASK field is 00000000H, then the
			// MXCSR_MASK value is the default value of 0000FFBFH." - Intel SDM
			// Vol. 1, Section 11.6.6 "Guidelines for Writing to the MXCSR
			// Register"
			mxcsrMask = xsave.DefaultMXCSRMask
		}
		log.Debugf("Host MXCSR_MASK is %#x", uint32(mxcsrMask))
	})
	return mxcsrMask
}
