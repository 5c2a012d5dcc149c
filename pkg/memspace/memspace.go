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

// Package memspace tracks the guest virtual address space: the program
// break, the mmap arena cursor, and the ordered set of mapped regions.
// Page-aligned map and unmap operations are forwarded to the CPU engine;
// the two views are kept in step by construction.
package memspace

import (
	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
)

// Region is one mapped range. End is exclusive. Label names the backing
// file for file mappings and is empty for anonymous ones.
type Region struct {
	Start uint64
	End   uint64
	Label string
}

// Less orders regions by start address for the btree.
func (r Region) Less(other btree.Item) bool {
	return r.Start < other.(Region).Start
}

// Backing supplies bytes for file-backed mappings. fdtable descriptors
// satisfy it.
type Backing interface {
	Seek(offset int64, whence int) (int64, error)
	Read(p []byte) (int, error)
}

// Space is the guest address space bookkeeping. Mutated only by the
// emulation goroutine.
type Space struct {
	cpu engine.CPU

	brk     uint64
	brkBase uint64

	// cursor is the next address handed out for addr==0 mmaps. It only
	// moves forward.
	cursor uint64

	regions *btree.BTree
}

// New returns a Space with the break at brkBase and the mmap arena
// starting at mmapBase. Both must be page-aligned.
func New(cpu engine.CPU, brkBase, mmapBase uint64) *Space {
	return &Space{
		cpu:     cpu,
		brk:     brkBase,
		brkBase: brkBase,
		cursor:  mmapBase,
		regions: btree.New(8),
	}
}

// BrkAddress returns the current program break.
func (s *Space) BrkAddress() uint64 { return s.brk }

// MmapCursor returns the next anonymous allocation address.
func (s *Space) MmapCursor() uint64 { return s.cursor }

// Brk implements brk(2): 0 queries, a larger value grows the break to the
// page-aligned target, anything else is ignored. Returns the resulting
// break.
func (s *Space) Brk(newBrk uint64) uint64 {
	if newBrk == 0 {
		return s.brk
	}
	if newBrk > s.brk {
		aligned := abi.PageRoundUp(newBrk)
		if err := s.cpu.MemMap(s.brk, aligned-s.brk); err == nil {
			s.record(Region{Start: s.brk, End: aligned, Label: "[heap]"})
			s.brk = aligned
		}
	}
	return s.brk
}

// Mmap implements the shared core of mmap and mmap2. off is a byte
// offset; mmap2 callers scale their page count before calling. backing
// is nil for anonymous mappings. Returns the mapped base.
func (s *Space) Mmap(addr, length uint64, backing Backing, off uint64, label string) (uint64, error) {
	alen := abi.PageRoundUp(length)
	base := addr
	needMap := true

	// A fixed address below the cursor is assumed already mapped by a
	// prior allocation; the region is reused in place.
	if addr != 0 && addr < s.cursor {
		needMap = false
	}
	if addr == 0 {
		base = s.cursor
		s.cursor = base + alen
	}

	if needMap {
		if err := s.cpu.MemMap(base, alen); err != nil {
			return 0, errors.Wrapf(err, "mapping %#x+%#x", base, alen)
		}
	}
	if err := s.cpu.MemWrite(base, make([]byte, alen)); err != nil {
		return 0, errors.Wrapf(err, "zero-filling %#x+%#x", base, alen)
	}

	if backing != nil {
		if _, err := backing.Seek(int64(off), abi.SeekSet); err == nil {
			data := make([]byte, length)
			n, _ := backing.Read(data)
			if n > 0 {
				if err := s.cpu.MemWrite(base, data[:n]); err != nil {
					return 0, errors.Wrapf(err, "loading %s into %#x", label, base)
				}
			}
		}
	}

	s.record(Region{Start: base, End: base + alen, Label: label})
	return base, nil
}

// Munmap removes [addr, addr+length) from the engine and drops any
// region record starting at addr.
func (s *Space) Munmap(addr, length uint64) error {
	alen := abi.PageRoundUp(length)
	if err := s.cpu.MemUnmap(addr, alen); err != nil {
		return err
	}
	s.regions.Delete(Region{Start: addr})
	return nil
}

// Regions returns the recorded regions in address order.
func (s *Space) Regions() []Region {
	out := make([]Region, 0, s.regions.Len())
	s.regions.Ascend(func(it btree.Item) bool {
		out = append(out, it.(Region))
		return true
	})
	return out
}

// Reset drops all region records and rewinds the break and cursor to
// their bases. Used when execve rebuilds the process.
func (s *Space) Reset(brkBase, mmapBase uint64) {
	s.regions.Clear(false)
	s.brk = brkBase
	s.brkBase = brkBase
	s.cursor = mmapBase
}

func (s *Space) record(r Region) {
	s.regions.ReplaceOrInsert(r)
}
