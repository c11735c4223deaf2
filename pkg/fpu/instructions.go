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
	"fmt"

	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/pkg/xsave"
	"gvisor.dev/xstate/pkg/xstate"
)

// Instructions are the save and restore instructions of one form. Both take
// the address of the area and the requested-feature bitmap, which is ANDed
// with XCR0 by the processor. The FXSAVE form ignores the bitmap.
type Instructions struct {
	Form    Form
	Save    func(addr *byte, mask uint64)
	Restore func(addr *byte, mask uint64)
}

// supports returns true if fs supports form.
func supports(fs cpuid.FeatureSet, form Form) bool {
	switch form {
	case Standard:
		return fs.Supported()
	case Optimized:
		return fs.Supported() && fs.UseXsaveopt()
	case Compacted:
		return fs.Supported() && fs.UseXsavec()
	case FXSAVE:
		return fs.UseFxsave()
	default:
		return false
	}
}

// SupportedForms returns the forms fs supports, most preferred first.
func SupportedForms(fs cpuid.FeatureSet) []Form {
	var forms []Form
	for _, f := range []Form{Optimized, Standard, Compacted, FXSAVE} {
		if supports(fs, f) {
			forms = append(forms, f)
		}
	}
	return forms
}

// BestForm returns the most efficient standard format form: XSAVEOPT, then
// XSAVE, then FXSAVE.
func BestForm(fs cpuid.FeatureSet) (Form, error) {
	for _, f := range []Form{Optimized, Standard, FXSAVE} {
		if supports(fs, f) {
			return f, nil
		}
	}
	return 0, cpuid.ErrUnsupported
}

// SelectInstructions returns the instructions of the given form. It fails
// if fs does not support the form or they are not available on this
// architecture.
func SelectInstructions(fs cpuid.FeatureSet, form Form) (Instructions, error) {
	if !supports(fs, form) {
		return Instructions{}, fmt.Errorf("%v save: %w", form, cpuid.ErrUnsupported)
	}
	ins, ok := nativeInstructions(form)
	if !ok {
		return Instructions{}, fmt.Errorf("%v save on this architecture: %w", form, cpuid.ErrUnsupported)
	}
	log.Debugf("Using %v save instructions", form)
	return ins, nil
}

// AreaSize returns the number of bytes a save of mask with the given form
// writes at most on fs.
func AreaSize(fs cpuid.FeatureSet, form Form, mask xstate.StateComponentBitmap) uint {
	enabled := mask.Intersect(fs.EnabledXCR0().Bitmap())
	switch form {
	case Compacted:
		return fs.MaxCompactedSize(enabled)
	case FXSAVE:
		return xsave.LegacyRegionSize
	default:
		return fs.MaxUncompactedSize(enabled)
	}
}

// SaveMask returns the components to save and restore by default: those
// enabled in XCR0, except the AMX tile state that Linux only arms for
// processes that request it.
func SaveMask(fs cpuid.FeatureSet) xstate.StateComponentBitmap {
	return fs.EnabledXCR0().Bitmap().Without(xstate.BitmapFromRaw(cpuid.XCR0AMXMask))
}
