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

import (
	"sync"

	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/pkg/xstate"
)

var (
	hostOnce        sync.Once
	hostFeatureSet  FeatureSet
	hostSizingTable xstate.SizingTable
)

func initHost() {
	hostFeatureSet = FeatureSet{&Native{}}
	hostSizingTable = hostFeatureSet.SizingTable()
	if !hostFeatureSet.Supported() {
		log.Infof("XSAVE is not supported, using FXSAVE only")
		return
	}
	log.Debugf("Host %v, %d extended state components", hostFeatureSet.EnabledXCR0(), hostSizingTable.Len())
	if log.IsLogging(log.Debug) {
		hostSizingTable.Components().ForEach(func(c xstate.StateComponent) {
			s, _ := hostSizingTable.Lookup(c)
			log.Debugf("State component %v: size=%d offset=%d aligned=%t owner=%v", c, s.Size, s.UncompactedOffset, s.AlignedWhenCompacted, s.Owner)
		})
	}
}

// HostFeatureSet returns a FeatureSet that queries the host processor.
func HostFeatureSet() FeatureSet {
	hostOnce.Do(initHost)
	return hostFeatureSet
}

// HostSizingTable returns the host's sizing table. It is computed once; the
// returned value is a copy and may be used concurrently.
func HostSizingTable() xstate.SizingTable {
	hostOnce.Do(initHost)
	return hostSizingTable
}
