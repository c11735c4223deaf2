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

package fpu

import (
	"errors"
	"fmt"
)

// Allocator provides memory for save areas.
type Allocator interface {
	// Allocate returns size bytes. The memory should start at a multiple
	// of align; Allocate checks and rejects memory that does not.
	Allocate(size, align uint) ([]byte, error)

	// Free releases memory returned by Allocate.
	Free(mem []byte) error
}

var errMisaligned = errors.New("memory is not aligned")

// HeapAllocator allocates save areas on the Go heap.
type HeapAllocator struct{}

// Allocate implements Allocator.Allocate.
func (HeapAllocator) Allocate(size, align uint) ([]byte, error) {
	return alignedBytes(size, align), nil
}

// Free implements Allocator.Free. The memory is left to the garbage
// collector.
func (HeapAllocator) Free([]byte) error {
	return nil
}

// allocate obtains memory from a.
func allocate(a Allocator, size, align uint) ([]byte, error) {
	mem, err := a.Allocate(size, align)
	if err != nil {
		return nil, &AllocationError{Size: size, Align: align, Err: err}
	}
	return mem, nil
}

// checkMemory rejects memory that is too short or misaligned for a save
// area of size bytes.
func checkMemory(mem []byte, size, align uint) error {
	if uint(len(mem)) < size {
		return &AllocationError{Size: size, Align: align, Err: fmt.Errorf("got %d bytes", len(mem))}
	}
	if !isAligned(mem, align) {
		return &AllocationError{Size: size, Align: align, Err: errMisaligned}
	}
	return nil
}
