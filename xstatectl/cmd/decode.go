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
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"golang.org/x/term"
	"gvisor.dev/xstate/pkg/xsave"
	"gvisor.dev/xstate/pkg/xstate"
	"gvisor.dev/xstate/xstatectl/cmd/util"
	"gvisor.dev/xstate/xstatectl/config"
)

// Decode implements subcommands.Command for the "decode" command.
type Decode struct {
	pointers pointerModeFlag
}

// Name implements subcommands.Command.
func (*Decode) Name() string {
	return "decode"
}

// Synopsis implements subcommands.Command.
func (*Decode) Synopsis() string {
	return "decodes a raw save area"
}

// Usage implements subcommands.Command.
func (*Decode) Usage() string {
	return `decode [flags] <file> - print the layout and control registers of a save area.

The area is decoded with the sizing of the host processor, or of the
processor described by -profile. Use "-" to read standard input.
`
}

// SetFlags implements subcommands.Command.
func (d *Decode) SetFlags(f *flag.FlagSet) {
	d.pointers = pointerModeFlag(xsave.Pointer64)
	f.Var(&d.pointers, "pointers", "encoding of the x87 instruction and data pointers: 16, 32 or 64.")
}

// decodeArea describes the area in data using table.
func decodeArea(data []byte, table *xstate.SizingTable, mode xsave.PointerMode) (*layoutReport, error) {
	v, err := xsave.NewView(data, table)
	if err != nil {
		return nil, err
	}
	return newLayoutReport(v, mode)
}

// Execute implements subcommands.Command.Execute.
func (d *Decode) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	fs, err := featureSet(conf)
	if err != nil {
		return util.Errorf("loading processor: %v", err)
	}

	var input io.Reader = os.Stdin
	if name := f.Arg(0); name == "-" {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return util.Errorf("refusing to read a raw save area from a terminal")
		}
	} else {
		file, err := os.Open(name)
		if err != nil {
			return util.Errorf("error opening input: %v", err)
		}
		defer file.Close()
		input = file
	}
	data, err := io.ReadAll(input)
	if err != nil {
		return util.Errorf("error reading input: %v", err)
	}

	table := fs.SizingTable()
	r, err := decodeArea(data, &table, xsave.PointerMode(d.pointers))
	if err != nil {
		return util.Errorf("decoding %s: %v", f.Arg(0), err)
	}
	if err := output(os.Stdout, conf.Format, r, func(tw *tabwriter.Writer) error { return writeLayoutReport(tw, r) }); err != nil {
		return util.Errorf("writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// pointerModeFlag is a flag.Value for xsave.PointerMode.
type pointerModeFlag xsave.PointerMode

// String implements flag.Value.
func (p *pointerModeFlag) String() string {
	return xsave.PointerMode(*p).String()
}

// Set implements flag.Value.
func (p *pointerModeFlag) Set(v string) error {
	for _, m := range []xsave.PointerMode{xsave.Pointer16, xsave.Pointer32, xsave.Pointer64} {
		if m.String() == v {
			*p = pointerModeFlag(m)
			return nil
		}
	}
	return fmt.Errorf("invalid pointer size %q", v)
}
