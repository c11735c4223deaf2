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
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/fpu"
	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/pkg/xsave"
	"gvisor.dev/xstate/pkg/xstate"
	"gvisor.dev/xstate/xstatectl/cmd/util"
	"gvisor.dev/xstate/xstatectl/config"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct {
	form       string
	components string
	output     string
	mmap       bool
}

// Name implements subcommands.Command.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.
func (*Dump) Synopsis() string {
	return "saves the extended state of the current thread and decodes it"
}

// Usage implements subcommands.Command.
func (*Dump) Usage() string {
	return `dump [flags] - save this thread's extended state and print its layout.

-output writes the area in the ptrace NT_X86_XSTATE format, which the decode
command and GDB read.
`
}

// SetFlags implements subcommands.Command.
func (d *Dump) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.form, "form", "", "save instruction: standard, optimized, compacted or fxsave. Default is the best standard format form.")
	f.StringVar(&d.components, "components", "", "comma-separated list of components to save. Default is every enabled component except AMX.")
	f.StringVar(&d.output, "output", "", "file to write the raw area to.")
	f.BoolVar(&d.mmap, "mmap", false, "allocate the area with mmap instead of on the heap.")
}

// parseComponents parses a comma-separated list of component names.
func parseComponents(s string) (xstate.StateComponentBitmap, error) {
	var b xstate.StateComponentBitmap
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c, ok := xstate.ComponentFromString(name)
		if !ok {
			return 0, fmt.Errorf("unknown state component %q", name)
		}
		b.Add(c)
	}
	return b, nil
}

// dump saves the calling thread's state with the given form.
func dump(fs cpuid.FeatureSet, form fpu.Form, mask xstate.StateComponentBitmap, alloc fpu.Allocator) (*fpu.Buffer, error) {
	t, err := fpu.LockThread(fs, form)
	if err != nil {
		return nil, err
	}
	defer t.Unlock()

	b, err := fpu.NewHostBuffer(alloc)
	if err != nil {
		return nil, err
	}
	if err := t.Save(b, mask); err != nil {
		b.Close()
		return nil, err
	}
	log.Infof("Saved %v with %v into %d bytes", mask, form, b.Len())
	return b, nil
}

// Execute implements subcommands.Command.Execute.
func (d *Dump) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if conf.Profile != "" {
		return util.Errorf("dump saves the host's state, -profile is not supported")
	}
	fs := cpuid.HostFeatureSet()

	form, err := fpu.BestForm(fs)
	if d.form != "" {
		form, err = fpu.FormFromString(d.form)
	}
	if err != nil {
		return util.Errorf("save form: %v", err)
	}
	mask := fpu.SaveMask(fs)
	if d.components != "" {
		if mask, err = parseComponents(d.components); err != nil {
			return util.Errorf("%v", err)
		}
	}
	var alloc fpu.Allocator = fpu.HeapAllocator{}
	if d.mmap {
		alloc = mmapAllocator()
	}

	b, err := dump(fs, form, mask, alloc)
	if err != nil {
		return util.Errorf("saving state: %v", err)
	}
	defer b.Close()

	if d.output != "" {
		out, err := os.OpenFile(d.output, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
		if err != nil {
			return util.Errorf("error opening output: %v", err)
		}
		_, err = b.WriteXstate(out, b.Len(), fs.EnabledXCR0())
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return util.Errorf("writing %s: %v", d.output, err)
		}
		log.Infof("Wrote %d byte area to %s", b.Len(), d.output)
	}

	table := cpuid.HostSizingTable()
	v, err := b.View(&table)
	if err != nil {
		return util.Errorf("decoding saved state: %v", err)
	}
	r, err := newLayoutReport(v, xsave.Pointer64)
	if err != nil {
		return util.Errorf("decoding saved state: %v", err)
	}
	if err := output(os.Stdout, conf.Format, r, func(tw *tabwriter.Writer) error { return writeLayoutReport(tw, r) }); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}
