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

// Package fdtable implements the guest's file descriptor table: a fixed
// 256-slot array of I/O objects with lowest-free allocation, and the
// File/Socket/Pipe/Stream variants that live in it.
package fdtable

import "io"

// MaxFDs is the size of the descriptor table.
const MaxFDs = 256

// StatInfo carries the fields the stat family packs into guest memory.
type StatInfo struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint32
	Size    int64
	Blksize uint32
	Blocks  int64
	Atime   int64
	Mtime   int64
	Ctime   int64
}

// IO is the capability set common to every descriptor variant. Socket
// extensions live on *Socket only; handlers dispatch on the concrete
// type.
type IO interface {
	io.Reader
	io.Writer
	io.Closer

	// Seek repositions the descriptor offset. Variants without an
	// offset (sockets, pipes, streams) return an error.
	Seek(offset int64, whence int) (int64, error)

	// Dup returns a descriptor sharing this one's underlying object.
	Dup() (IO, error)

	// Stat describes the underlying object.
	Stat() (StatInfo, error)

	// Name is the label used in logs and mmap region records.
	Name() string
}

// Table is the per-process descriptor table. It is mutated only by the
// single goroutine driving the emulation; see guest.Process.
type Table struct {
	slots [MaxFDs]IO
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// NewStdioTable returns a table with slots 0, 1 and 2 wired to the given
// streams.
func NewStdioTable(stdin io.Reader, stdout, stderr io.Writer) *Table {
	t := NewTable()
	t.slots[0] = NewReadStream("stdin", stdin)
	t.slots[1] = NewWriteStream("stdout", stdout)
	t.slots[2] = NewWriteStream("stderr", stderr)
	return t
}

// Get returns the object at fd, or nil if fd is out of range or the slot
// is empty.
func (t *Table) Get(fd int) IO {
	if fd < 0 || fd >= MaxFDs {
		return nil
	}
	return t.slots[fd]
}

// Install places obj in the lowest empty slot and returns its index, or
// -1 if the table is full.
func (t *Table) Install(obj IO) int {
	for i := range t.slots {
		if t.slots[i] == nil {
			t.slots[i] = obj
			return i
		}
	}
	return -1
}

// InstallAt places obj at fd, replacing any previous occupant without
// closing it.
func (t *Table) InstallAt(fd int, obj IO) {
	if fd >= 0 && fd < MaxFDs {
		t.slots[fd] = obj
	}
}

// Remove empties slot fd. The object is not closed.
func (t *Table) Remove(fd int) {
	if fd >= 0 && fd < MaxFDs {
		t.slots[fd] = nil
	}
}

// Close closes and removes fd. Returns false if the slot was empty.
func (t *Table) Close(fd int) bool {
	obj := t.Get(fd)
	if obj == nil {
		return false
	}
	obj.Close()
	t.slots[fd] = nil
	return true
}

// CloseAll closes every open descriptor. Used on execve teardown.
func (t *Table) CloseAll() {
	for i := range t.slots {
		if t.slots[i] != nil {
			t.slots[i].Close()
			t.slots[i] = nil
		}
	}
}
