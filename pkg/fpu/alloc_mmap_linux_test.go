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
	"testing"

	"gvisor.dev/xstate/pkg/xsave"
)

func TestMmapAllocator(t *testing.T) {
	for _, size := range []uint{576, 4096, 10000} {
		b, err := Allocate(MmapAllocator{}, size)
		if err != nil {
			t.Fatalf("Allocate(%d) failed: %v", size, err)
		}
		if uint(b.Len()) != size || !isAligned(b.Bytes(), xsave.Alignment) {
			t.Errorf("Allocate(%d) returned %d bytes, aligned %t", size, b.Len(), isAligned(b.Bytes(), xsave.Alignment))
		}
		b.Bytes()[size-1] = 1
		if err := b.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
		if err := b.Close(); err != nil {
			t.Errorf("second Close() = %v", err)
		}
	}
}
