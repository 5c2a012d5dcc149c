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

package posix

import (
	"encoding/binary"
	"testing"

	"github.com/guestkit/guestkit/pkg/fdtable"
)

func TestStatLayouts(t *testing.T) {
	st := fdtable.StatInfo{
		Dev:   7,
		Ino:   42,
		Mode:  0o100644,
		Nlink: 1,
		UID:   1000,
		GID:   1000,
		Size:  512,
		Atime: 111,
		Mtime: 222,
		Ctime: 333,
	}

	common := packStat64(st)
	if len(common) != 0x60 {
		t.Fatalf("stat64 layout is %#x bytes, want 0x60", len(common))
	}
	if dev := binary.LittleEndian.Uint64(common[0:8]); dev != 7 {
		t.Fatalf("dev = %d, want 7", dev)
	}
	if pad := binary.LittleEndian.Uint64(common[8:16]); pad != 0x0000000300c30000 {
		t.Fatalf("pad = %#x", pad)
	}
	if mode := binary.LittleEndian.Uint32(common[16:20]); mode != 0o100644 {
		t.Fatalf("mode = %#o", mode)
	}
	if rdev := binary.LittleEndian.Uint64(common[32:40]); rdev != 0x8800 {
		t.Fatalf("rdev = %#x", rdev)
	}
	if size := binary.LittleEndian.Uint64(common[44:52]); size != 512 {
		t.Fatalf("size = %d", size)
	}
	if blksize := binary.LittleEndian.Uint32(common[52:56]); blksize != 0x400 {
		t.Fatalf("blksize = %#x", blksize)
	}
	if ino := binary.LittleEndian.Uint64(common[88:96]); ino != 42 {
		t.Fatalf("ino = %d", ino)
	}

	mips := packStatMIPS(st)
	if len(mips) != 0x90 {
		t.Fatalf("MIPS stat layout is %#x bytes, want 0x90", len(mips))
	}
	if dev := binary.LittleEndian.Uint32(mips[0:4]); dev != 7 {
		t.Fatalf("MIPS dev = %d", dev)
	}
	if ino := binary.LittleEndian.Uint32(mips[16:20]); ino != 42 {
		t.Fatalf("MIPS ino = %d", ino)
	}
	if mode := binary.LittleEndian.Uint32(mips[20:24]); mode != 0o100644 {
		t.Fatalf("MIPS mode = %#o", mode)
	}
}
