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

// Package cmd holds implementations of the xstatectl commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v2"
	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/pkg/xsave"
	"gvisor.dev/xstate/pkg/xstate"
	"gvisor.dev/xstate/xstatectl/config"
)

// featureSet returns the processor the command describes: the -profile
// if one is given, the host otherwise.
func featureSet(conf *config.Config) (cpuid.FeatureSet, error) {
	if conf.Profile == "" {
		return cpuid.HostFeatureSet(), nil
	}
	p, err := cpuid.LoadProfile(conf.Profile)
	if err != nil {
		return cpuid.FeatureSet{}, err
	}
	log.Infof("Using CPUID profile %q of a %s processor", conf.Profile, p.Vendor)
	return p.FeatureSet(), nil
}

// output writes v in the configured format. Text output is produced by
// text, which writes to a tabwriter flushed afterwards.
func output(w io.Writer, format config.OutputFormat, v any, text func(tw *tabwriter.Writer) error) error {
	switch format {
	case config.OutputJSON:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(v)
	case config.OutputYAML:
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if err := text(tw); err != nil {
			return err
		}
		return tw.Flush()
	}
}

// componentRow describes one state component.
type componentRow struct {
	Component   xstate.StateComponent `json:"component" yaml:"component"`
	Bit         uint                  `json:"bit" yaml:"bit"`
	Description string                `json:"description,omitempty" yaml:"description,omitempty"`
	Owner       xstate.Owner          `json:"owner" yaml:"owner"`
	Enabled     bool                  `json:"enabled" yaml:"enabled"`
	Size        uint                  `json:"size" yaml:"size"`
	Offset      uint                  `json:"offset" yaml:"offset"`
	Aligned     bool                  `json:"aligned" yaml:"aligned"`
}

// componentRows returns the legacy components and every component in
// table, marking those in enabled.
func componentRows(table *xstate.SizingTable, enabled xstate.StateComponentBitmap) []componentRow {
	var rows []componentRow
	for _, c := range []xstate.StateComponent{xstate.X87, xstate.SSE} {
		part1, part2 := xsave.LegacyParts(c)
		rows = append(rows, componentRow{
			Component:   c,
			Bit:         c.Bit(),
			Description: c.Description(),
			Owner:       xstate.User,
			Enabled:     enabled.Contains(c),
			Size:        part1.Size + part2.Size,
			Offset:      part1.Offset,
		})
	}
	table.Components().ForEach(func(c xstate.StateComponent) {
		s, _ := table.Lookup(c)
		rows = append(rows, componentRow{
			Component:   c,
			Bit:         c.Bit(),
			Description: c.Description(),
			Owner:       s.Owner,
			Enabled:     enabled.Contains(c),
			Size:        s.Size,
			Offset:      s.UncompactedOffset,
			Aligned:     s.AlignedWhenCompacted,
		})
	})
	return rows
}

func writeComponentRows(tw *tabwriter.Writer, rows []componentRow) error {
	if _, err := fmt.Fprintf(tw, "BIT\tCOMPONENT\tOWNER\tENABLED\tOFFSET\tSIZE\tALIGNED\tDESCRIPTION\n"); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%d\t%v\t%v\t%t\t%d\t%d\t%t\t%s\n", r.Bit, r.Component, r.Owner, r.Enabled, r.Offset, r.Size, r.Aligned, r.Description); err != nil {
			return err
		}
	}
	return nil
}

// regionRow is the location of a component in a decoded area.
type regionRow struct {
	Component xstate.StateComponent `json:"component" yaml:"component"`
	Offset    uint                  `json:"offset" yaml:"offset"`
	Size      uint                  `json:"size" yaml:"size"`
}

// layoutReport is a decoded save area.
type layoutReport struct {
	Format     string                      `json:"format" yaml:"format"`
	Present    xstate.StateComponentBitmap `json:"xstate_bv" yaml:"xstate_bv"`
	Compaction xstate.CompactionIndicator  `json:"xcomp_bv" yaml:"xcomp_bv"`
	Size       uint                        `json:"size" yaml:"size"`
	Regions    []regionRow                 `json:"regions" yaml:"regions"`
	Control    string                      `json:"fcw" yaml:"fcw"`
	Status     string                      `json:"fsw" yaml:"fsw"`
	Tag        string                      `json:"ftw" yaml:"ftw"`
	MXCSR      string                      `json:"mxcsr" yaml:"mxcsr"`
	PKRU       *uint32                     `json:"pkru,omitempty" yaml:"pkru,omitempty"`
}

// newLayoutReport describes the area seen by v.
func newLayoutReport(v *xsave.View, mode xsave.PointerMode) (*layoutReport, error) {
	l, err := v.Layout()
	if err != nil {
		return nil, err
	}
	h := l.Header()
	r := &layoutReport{
		Format:     "standard",
		Present:    h.Present,
		Compaction: h.Compaction,
		Size:       l.End(),
	}
	if l.IsCompacted() {
		r.Format = "compacted"
	}
	l.ForEach(func(c xstate.StateComponent, reg xsave.Region) {
		r.Regions = append(r.Regions, regionRow{Component: c, Offset: reg.Offset, Size: reg.Size})
	})
	x87 := v.X87(mode)
	r.Control = fmt.Sprintf("%#04x", uint16(x87.Part1.Control))
	r.Status = fmt.Sprintf("%#04x", uint16(x87.Part1.Status))
	r.Tag = fmt.Sprintf("%#02x", uint8(x87.Part1.Tag))
	r.MXCSR = fmt.Sprintf("%#08x", uint32(v.SSE().Part1.MXCSR))
	if pkru, ok := v.PKRU(); ok {
		r.PKRU = &pkru
	}
	return r, nil
}

func writeLayoutReport(tw *tabwriter.Writer, r *layoutReport) error {
	fmt.Fprintf(tw, "format:\t%s\n", r.Format)
	fmt.Fprintf(tw, "XSTATE_BV:\t%v\n", r.Present)
	fmt.Fprintf(tw, "XCOMP_BV:\t%v\n", r.Compaction)
	fmt.Fprintf(tw, "size:\t%d\n", r.Size)
	fmt.Fprintf(tw, "FCW FSW FTW:\t%s %s %s\n", r.Control, r.Status, r.Tag)
	fmt.Fprintf(tw, "MXCSR:\t%s\n", r.MXCSR)
	if r.PKRU != nil {
		fmt.Fprintf(tw, "PKRU:\t%#08x\n", *r.PKRU)
	}
	fmt.Fprintf(tw, "\nCOMPONENT\tOFFSET\tSIZE\n")
	for _, reg := range r.Regions {
		if _, err := fmt.Fprintf(tw, "%v\t%d\t%d\n", reg.Component, reg.Offset, reg.Size); err != nil {
			return err
		}
	}
	return nil
}
