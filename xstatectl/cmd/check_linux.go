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

//go:build linux
// +build linux

package cmd

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"gvisor.dev/xstate/pkg/cpuid"
	"gvisor.dev/xstate/pkg/log"
)

// snapshotCPUs captures CPUID on every CPU in the affinity mask.
func snapshotCPUs(ctx context.Context, parallel int) ([]cpuSnapshot, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, err
	}
	var cpus []int
	for cpu := 0; cpu < len(set)*64; cpu++ {
		if set.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	log.Infof("Checking %d CPUs", len(cpus))

	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}
	snaps := make([]cpuSnapshot, len(cpus))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, cpu := range cpus {
		i, cpu := i, cpu
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := snapshotOn(cpu)
			if err != nil {
				return err
			}
			snaps[i] = cpuSnapshot{CPU: cpu, Snapshot: s}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snaps, nil
}

// snapshotOn captures CPUID on the given CPU.
//
// The thread is left locked: when the goroutine exits the runtime
// terminates it, and its affinity with it.
func snapshotOn(cpu int) (cpuid.Snapshot, error) {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return cpuid.Snapshot{}, err
	}
	s := cpuid.FeatureSet{Function: &cpuid.Native{}}.TakeSnapshot()
	log.Debugf("CPU %d: %v", cpu, s.ToFeatureSet().EnabledXCR0())
	return s, nil
}
