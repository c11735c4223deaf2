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

// Static is a static CPUID function.
type Static map[In]Out

// Fixed converts the FeatureSet to a fixed set.
func (fs FeatureSet) Fixed() FeatureSet {
	return fs.ToStatic().ToFeatureSet()
}

// ToStatic converts a FeatureSet to a Static function.
//
// You can create a new static feature set as:
//
//	fs := otherFeatureSet.ToStatic().ToFeatureSet()
func (fs FeatureSet) ToStatic() Static {
	s := make(Static)

	// Save all allowed top-level functions.
	for fn, allowed := range allowedBasicFunctions {
		if allowed {
			in := In{Eax: uint32(fn)}
			s[in] = fs.Query(in)
		}
	}

	// Save all allowed extended functions.
	for fn, allowed := range allowedExtendedFunctions {
		if allowed {
			in := In{Eax: uint32(fn) + uint32(extendedStart)}
			s[in] = fs.Query(in)
		}
	}

	// Processor Extended State Enumeration.
	for i := uint32(0); i < xSaveInfoNumLeaves; i++ {
		in := In{Eax: uint32(xSaveInfo), Ecx: i}
		s[in] = fs.Query(in)
	}

	// Drop leaves that carry no information.
	for in, out := range s {
		if out == (Out{}) {
			delete(s, in)
		}
	}
	return s
}

// ToFeatureSet converts a static specification to a FeatureSet.
func (s Static) ToFeatureSet() FeatureSet {
	// Make a copy.
	ns := make(Static)
	for k, v := range s {
		ns[k] = v
	}
	ns.normalize()
	return FeatureSet{ns}
}

// normalize drops Ecx from keys of functions without sub-leaves.
func (s Static) normalize() {
	for in, out := range s {
		n := in
		n.normalize()
		if n != in {
			delete(s, in)
			s[n] = out
		}
	}
}

// Add adds a feature.
func (s Static) Add(feature Feature) Static {
	feature.set(s, true)
	return s
}

// Remove removes a feature.
func (s Static) Remove(feature Feature) Static {
	feature.set(s, false)
	return s
}

// Set sets the output of the given function.
func (s Static) Set(in In, out Out) {
	s[in] = out
}

// Query implements Function.Query.
func (s Static) Query(in In) Out {
	in.normalize()
	return s[in]
}

// Snapshot is a Static function captured together with the extended
// control register values of the processor it was captured on.
//
// This implements Function and ExtendedControl.
type Snapshot struct {
	Static

	// XCR0 is the value of XCR0 at capture time.
	XCR0 uint64
}

// XGETBV implements ExtendedControl.XGETBV.
func (s Snapshot) XGETBV(reg uint32) (uint64, bool) {
	if reg != 0 {
		return 0, false
	}
	return s.XCR0, true
}

// ToFeatureSet converts the snapshot to a FeatureSet.
func (s Snapshot) ToFeatureSet() FeatureSet {
	st := s.Static.ToFeatureSet().Function.(Static)
	return FeatureSet{Snapshot{Static: st, XCR0: s.XCR0}}
}

// TakeSnapshot captures fs, including XCR0 when fs can read it.
func (fs FeatureSet) TakeSnapshot() Snapshot {
	return Snapshot{
		Static: fs.ToStatic(),
		XCR0:   uint64(fs.EnabledXCR0()),
	}
}
