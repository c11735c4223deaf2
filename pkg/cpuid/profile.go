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

package cpuid

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Profile is the on-disk form of a Snapshot. It lets save areas captured on
// one machine be decoded on another with the sizing of the original
// processor.
type Profile struct {
	// Vendor is the vendor ID, informational only.
	Vendor string `toml:"vendor"`

	// XCR0 is the value of XCR0 on the profiled machine.
	XCR0 uint64 `toml:"xcr0"`

	// Leaves are the captured CPUID functions.
	Leaves []ProfileLeaf `toml:"leaf"`
}

// ProfileLeaf is one CPUID function and its output.
type ProfileLeaf struct {
	Function uint32 `toml:"function"`
	Index    uint32 `toml:"index"`
	Eax      uint32 `toml:"eax"`
	Ebx      uint32 `toml:"ebx"`
	Ecx      uint32 `toml:"ecx"`
	Edx      uint32 `toml:"edx"`
}

// NewProfile captures fs as a Profile.
func NewProfile(fs FeatureSet) Profile {
	snap := fs.TakeSnapshot()
	vendor := fs.VendorID()
	p := Profile{
		Vendor: strings.TrimRight(string(vendor[:]), "\x00"),
		XCR0:   snap.XCR0,
	}
	for in, out := range snap.Static {
		p.Leaves = append(p.Leaves, ProfileLeaf{
			Function: in.Eax,
			Index:    in.Ecx,
			Eax:      out.Eax,
			Ebx:      out.Ebx,
			Ecx:      out.Ecx,
			Edx:      out.Edx,
		})
	}
	sort.Slice(p.Leaves, func(i, j int) bool {
		if p.Leaves[i].Function != p.Leaves[j].Function {
			return p.Leaves[i].Function < p.Leaves[j].Function
		}
		return p.Leaves[i].Index < p.Leaves[j].Index
	})
	return p
}

// Snapshot converts the profile to a Snapshot.
func (p *Profile) Snapshot() Snapshot {
	s := make(Static, len(p.Leaves))
	for _, l := range p.Leaves {
		s[In{Eax: l.Function, Ecx: l.Index}] = Out{Eax: l.Eax, Ebx: l.Ebx, Ecx: l.Ecx, Edx: l.Edx}
	}
	s.normalize()
	return Snapshot{Static: s, XCR0: p.XCR0}
}

// FeatureSet returns a FeatureSet backed by the profile.
func (p *Profile) FeatureSet() FeatureSet {
	return FeatureSet{p.Snapshot()}
}

// Write encodes the profile as TOML.
func (p *Profile) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(p)
}

// DecodeProfile reads a TOML profile. Unknown keys are an error.
func DecodeProfile(r io.Reader) (*Profile, error) {
	var p Profile
	md, err := toml.NewDecoder(r).Decode(&p)
	if err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown profile keys: %v", undecoded)
	}
	return &p, nil
}

// LoadProfile reads a TOML profile from path.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := DecodeProfile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
