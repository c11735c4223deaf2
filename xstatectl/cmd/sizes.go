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

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/fpu"
	"gvisor.dev/xstate/pkg/xstate"
	"gvisor.dev/xstate/xstatectl/cmd/util"
	"gvisor.dev/xstate/xstatectl/config"
)

// Sizes implements subcommands.Command for the "sizes" command.
type Sizes struct{}

// Name implements subcommands.Command.
func (*Sizes) Name() string {
	return "sizes"
}

// Synopsis implements subcommands.Command.
func (*Sizes) Synopsis() string {
	return "shows the state components and save area sizes of the processor"
}

// Usage implements subcommands.Command.
func (*Sizes) Usage() string {
	return `sizes [flags] - print the sizing of every state component.

Uses the host processor, or the processor described by -profile.
`
}

// SetFlags implements subcommands.Command.
func (*Sizes) SetFlags(*flag.FlagSet) {}

// sizesReport is the output of the sizes command.
type sizesReport struct {
	Vendor             string                   `json:"vendor" yaml:"vendor"`
	Features           []string                 `json:"features" yaml:"features"`
	Info               *cpuid.ExtendedStateInfo `json:"xsave,omitempty" yaml:"xsave,omitempty"`
	EnabledXCR0        xstate.UserEnabled       `json:"xcr0" yaml:"xcr0"`
	ValidXSS           xstate.SupervisorEnabled `json:"xss" yaml:"xss"`
	Components         []componentRow           `json:"components" yaml:"components"`
	MaxUncompactedSize uint                     `json:"max_uncompacted_size" yaml:"max_uncompacted_size"`
	MaxCompactedSize   uint                     `json:"max_compacted_size" yaml:"max_compacted_size"`
	AMXSize            uint                     `json:"amx_size,omitempty" yaml:"amx_size,omitempty"`
	Forms              []string                 `json:"forms" yaml:"forms"`
}

func newSizesReport(fs cpuid.FeatureSet) (*sizesReport, error) {
	vendor := fs.VendorID()
	r := &sizesReport{
		Vendor:      strings.TrimRight(string(vendor[:]), "\x00"),
		EnabledXCR0: fs.EnabledXCR0(),
		ValidXSS:    fs.EnabledXSS(),
		AMXSize:     fs.AMXExtendedStateSize(),
	}
	for _, f := range fs.Features() {
		r.Features = append(r.Features, f.String())
	}
	info, err := fs.ExtendedStateInfo()
	switch {
	case err == nil:
		r.Info = &info
	case errors.Is(err, cpuid.ErrUnsupported):
	default:
		return nil, err
	}
	table := fs.SizingTable()
	enabled := r.EnabledXCR0.Bitmap()
	r.Components = componentRows(&table, enabled)
	r.MaxUncompactedSize = fs.MaxUncompactedSize(enabled)
	r.MaxCompactedSize = fs.MaxCompactedSize(enabled)
	for _, f := range fpu.SupportedForms(fs) {
		r.Forms = append(r.Forms, f.String())
	}
	return r, nil
}

func (r *sizesReport) writeText(tw *tabwriter.Writer) error {
	fmt.Fprintf(tw, "vendor:\t%s\n", r.Vendor)
	fmt.Fprintf(tw, "features:\t%s\n", strings.Join(r.Features, " "))
	if r.Info == nil {
		fmt.Fprintf(tw, "XSAVE:\tnot supported\n")
	} else {
		fmt.Fprintf(tw, "XCR0:\t%v\n", r.EnabledXCR0.Bitmap())
		fmt.Fprintf(tw, "IA32_XSS:\t%v\n", r.ValidXSS.Bitmap())
		fmt.Fprintf(tw, "CPUID enabled size:\t%d\n", r.Info.EnabledSize)
		fmt.Fprintf(tw, "CPUID max size:\t%d\n", r.Info.MaxSize)
		fmt.Fprintf(tw, "CPUID compacted size:\t%d\n", r.Info.CompactedSize)
	}
	fmt.Fprintf(tw, "max uncompacted size:\t%d\n", r.MaxUncompactedSize)
	fmt.Fprintf(tw, "max compacted size:\t%d\n", r.MaxCompactedSize)
	if r.AMXSize != 0 {
		fmt.Fprintf(tw, "AMX size:\t%d\n", r.AMXSize)
	}
	fmt.Fprintf(tw, "save forms:\t%s\n\n", strings.Join(r.Forms, " "))
	return writeComponentRows(tw, r.Components)
}

func (r *sizesReport) write(w io.Writer, format config.OutputFormat) error {
	return output(w, format, r, r.writeText)
}

// Execute implements subcommands.Command.Execute.
func (*Sizes) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	fs, err := featureSet(conf)
	if err != nil {
		return util.Errorf("loading processor: %v", err)
	}
	r, err := newSizesReport(fs)
	if err != nil {
		return util.Errorf("reading extended state info: %v", err)
	}
	if err := r.write(os.Stdout, conf.Format); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}
