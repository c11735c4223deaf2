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
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/xstate"
	"gvisor.dev/xstate/xstatectl/cmd/util"
	"gvisor.dev/xstate/xstatectl/config"
)

// Check implements subcommands.Command for the "check" command.
type Check struct {
	parallel int
}

// Name implements subcommands.Command.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.
func (*Check) Synopsis() string {
	return "checks that every CPU reports the same extended state sizing"
}

// Usage implements subcommands.Command.
func (*Check) Usage() string {
	return `check [flags] - compare the extended state of every CPU this process may run on.

A save area can only move between CPUs with the same sizing. Hybrid and
misconfigured machines may differ.
`
}

// SetFlags implements subcommands.Command.
func (c *Check) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.parallel, "parallel", 0, "number of CPUs to query at once, 0 means GOMAXPROCS.")
}

// cpuSnapshot is the CPUID state captured on one CPU.
type cpuSnapshot struct {
	CPU      int
	Snapshot cpuid.Snapshot
}

// cpuRow is the result for one CPU.
type cpuRow struct {
	CPU        int                `json:"cpu" yaml:"cpu"`
	XCR0       xstate.UserEnabled `json:"xcr0" yaml:"xcr0"`
	Components int                `json:"components" yaml:"components"`
	Size       uint               `json:"size" yaml:"size"`
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// compareSnapshots compares every snapshot with the first one. It returns
// one row per CPU and the number of CPUs that differ.
func compareSnapshots(snaps []cpuSnapshot) ([]cpuRow, int) {
	var (
		rows     []cpuRow
		failures int
		ref      cpuid.FeatureSet
	)
	for i, s := range snaps {
		fs := s.Snapshot.ToFeatureSet()
		table := fs.SizingTable()
		row := cpuRow{
			CPU:        s.CPU,
			XCR0:       fs.EnabledXCR0(),
			Components: table.Len(),
		}
		row.Size, _ = fs.ExtendedStateSize()
		if i == 0 {
			ref = fs
		} else if err := checkSame(ref, fs); err != nil {
			row.Error = err.Error()
			failures++
		}
		rows = append(rows, row)
	}
	return rows, failures
}

// checkSame returns an error if areas cannot move between a and b.
func checkSame(a, b cpuid.FeatureSet) error {
	if x, y := a.EnabledXCR0(), b.EnabledXCR0(); x != y {
		return fmt.Errorf("%v differs from %v", y, x)
	}
	if err := a.CheckCompatible(b); err != nil {
		return err
	}
	return b.CheckCompatible(a)
}

// Execute implements subcommands.Command.Execute.
func (c *Check) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if conf.Profile != "" {
		return util.Errorf("check queries the host's CPUs, -profile is not supported")
	}
	snaps, err := snapshotCPUs(ctx, c.parallel)
	if err != nil {
		return util.Errorf("querying CPUs: %v", err)
	}
	rows, failures := compareSnapshots(snaps)
	err = output(os.Stdout, conf.Format, rows, func(tw *tabwriter.Writer) error {
		fmt.Fprintf(tw, "CPU\tXCR0\tCOMPONENTS\tSIZE\tERROR\n")
		for _, r := range rows {
			if _, err := fmt.Fprintf(tw, "%d\t%v\t%d\t%d\t%s\n", r.CPU, r.XCR0.Bitmap(), r.Components, r.Size, r.Error); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return util.Errorf("writing output: %v", err)
	}
	if failures > 0 {
		return util.Errorf("%d of %d CPUs differ from CPU %d", failures, len(rows), rows[0].CPU)
	}
	return subcommands.ExitSuccess
}
