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

package fpu

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/xstate/pkg/bits"
)

// MmapAllocator allocates save areas as anonymous private mappings. The
// memory is page aligned, so any alignment up to the page size is met.
type MmapAllocator struct{}

// Allocate implements Allocator.Allocate.
func (MmapAllocator) Allocate(size, align uint) ([]byte, error) {
	length := bits.AlignUp(size, uint(unix.Getpagesize()))
	mem, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return mem[:size], nil
}

// Free implements Allocator.Free.
func (MmapAllocator) Free(mem []byte) error {
	return unix.Munmap(mem[:cap(mem)])
}
