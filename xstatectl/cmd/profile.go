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
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/xstatectl/cmd/util"
	"gvisor.dev/xstate/xstatectl/config"
)

// Profile implements subcommands.Command for the "profile" command.
type Profile struct {
	output string
}

// Name implements subcommands.Command.
func (*Profile) Name() string {
	return "profile"
}

// Synopsis implements subcommands.Command.
func (*Profile) Synopsis() string {
	return "writes the CPUID leaves describing the processor as a TOML profile"
}

// Usage implements subcommands.Command.
func (*Profile) Usage() string {
	return `profile [flags] - capture the processor for use with -profile.

The profile holds the CPUID leaves that describe extended state and XCR0, so
that areas saved on this machine can be decoded elsewhere.
`
}

// SetFlags implements subcommands.Command.
func (p *Profile) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.output, "output", "", "file to write the profile to, default is stdout.")
}

func writeProfile(w io.Writer, fs cpuid.FeatureSet) error {
	p := cpuid.NewProfile(fs)
	return p.Write(w)
}

// Execute implements subcommands.Command.Execute.
func (p *Profile) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	fs, err := featureSet(conf)
	if err != nil {
		return util.Errorf("loading processor: %v", err)
	}

	// Setup output.
	var output = os.Stdout // Default.
	if p.output != "" {
		f, err := os.OpenFile(p.output, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
		if err != nil {
			return util.Errorf("error opening output: %v", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				util.Fatalf("error flushing output: %v", err)
			}
		}()
		output = f
	}
	if err := writeProfile(output, fs); err != nil {
		return util.Errorf("writing profile: %v", err)
	}
	if p.output != "" {
		util.Infof("Wrote profile to %s", p.output)
	}
	return subcommands.ExitSuccess
}
