// Copyright 2024 The Guestkit Authors.
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

package memspace

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/guestkit/guestkit/pkg/engine/enginetest"
)

const (
	brkBase  = 0x10000000
	mmapBase = 0x7ffff0000000
)

func newSpace() (*Space, *enginetest.CPU) {
	cpu := enginetest.New()
	return New(cpu, brkBase, mmapBase), cpu
}

func TestMmapCursorAdvance(t *testing.T) {
	s, cpu := newSpace()

	base, err := s.Mmap(0, 0x2fff, nil, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if base != mmapBase {
		t.Fatalf("first mmap at %#x, want %#x", base, uint64(mmapBase))
	}
	if got := s.MmapCursor(); got != mmapBase+0x3000 {
		t.Fatalf("cursor = %#x, want %#x", got, uint64(mmapBase+0x3000))
	}

	// The region is mapped and zero-filled.
	data, err := cpu.MemRead(base, 0x3000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, make([]byte, 0x3000)) {
		t.Fatal("region not zero-filled")
	}

	next, err := s.Mmap(0, 0x1000, nil, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if next != mmapBase+0x3000 {
		t.Fatalf("second mmap at %#x, want %#x", next, uint64(mmapBase+0x3000))
	}
}

func TestMmapFixedBelowCursorSkipsMap(t *testing.T) {
	s, cpu := newSpace()
	base, err := s.Mmap(0, 0x1000, nil, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	// Remapping inside the existing allocation must not re-map pages.
	again, err := s.Mmap(base, 0x1000, nil, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if again != base {
		t.Fatalf("fixed mmap at %#x, want %#x", again, base)
	}
	if !cpu.Mapped(base) {
		t.Fatal("region vanished")
	}
}

func TestMmapFileBacked(t *testing.T) {
	s, cpu := newSpace()
	backing := &fakeBacking{data: []byte("ELF-ish contents here")}

	base, err := s.Mmap(0, uint64(len(backing.data)), backing, 4, "/bin/app")
	if err != nil {
		t.Fatal(err)
	}
	got, err := cpu.MemRead(base, uint64(len(backing.data)-4))
	if err != nil {
		t.Fatal(err)
	}
	want := backing.data[4:]
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("file-backed contents mismatch (-want +got):\n%s", diff)
	}

	regions := s.Regions()
	if len(regions) != 1 || regions[0].Label != "/bin/app" {
		t.Fatalf("regions = %+v", regions)
	}
}

func TestBrk(t *testing.T) {
	s, cpu := newSpace()

	if got := s.Brk(0); got != brkBase {
		t.Fatalf("brk(0) = %#x, want %#x", got, uint64(brkBase))
	}
	if got := s.Brk(brkBase + 0x1234); got != brkBase+0x2000 {
		t.Fatalf("brk grow = %#x, want %#x", got, uint64(brkBase+0x2000))
	}
	if got := s.Brk(0); got != brkBase+0x2000 {
		t.Fatalf("brk(0) after grow = %#x", got)
	}
	// Shrinks are ignored.
	if got := s.Brk(brkBase); got != brkBase+0x2000 {
		t.Fatalf("brk shrink = %#x, want unchanged", got)
	}
	if !cpu.Mapped(brkBase) || !cpu.Mapped(brkBase+0x1000) {
		t.Fatal("heap pages not mapped")
	}
}

func TestMunmap(t *testing.T) {
	s, cpu := newSpace()
	base, err := s.Mmap(0, 0x2000, nil, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Munmap(base, 0x1234); err != nil {
		t.Fatal(err)
	}
	if cpu.Mapped(base) || cpu.Mapped(base+0x1000) {
		t.Fatal("pages still mapped after munmap")
	}
	if len(s.Regions()) != 0 {
		t.Fatalf("regions = %+v after munmap", s.Regions())
	}
}

type fakeBacking struct {
	data []byte
	off  int64
}

func (f *fakeBacking) Seek(offset int64, whence int) (int64, error) {
	f.off = offset
	return offset, nil
}

func (f *fakeBacking) Read(p []byte) (int, error) {
	n := copy(p, f.data[f.off:])
	f.off += int64(n)
	return n, nil
}
