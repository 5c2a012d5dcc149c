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
	"bytes"
	"encoding/binary"
	"os"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/fdtable"
	"github.com/guestkit/guestkit/pkg/guest"
)

// packStat64 lays out the common stat64 struct. Field order and the
// fixed pad/rdev/blksize values match what the emulated C libraries
// expect; see the layout table in the docs.
func packStat64(st fdtable.StatInfo) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&b, le, st.Dev)
	binary.Write(&b, le, uint64(0x0000000300c30000))
	binary.Write(&b, le, st.Mode)
	binary.Write(&b, le, st.Nlink)
	binary.Write(&b, le, st.UID)
	binary.Write(&b, le, st.GID)
	binary.Write(&b, le, uint64(0x8800))
	binary.Write(&b, le, uint32(0xffffd257))
	binary.Write(&b, le, uint64(st.Size))
	binary.Write(&b, le, uint32(0x400))
	binary.Write(&b, le, uint64(0))
	binary.Write(&b, le, uint64(st.Atime))
	binary.Write(&b, le, uint64(st.Mtime))
	binary.Write(&b, le, uint64(st.Ctime))
	binary.Write(&b, le, st.Ino)
	return b.Bytes()
}

// packStatMIPS lays out the distinct 0x90-byte MIPS o32 stat struct.
func packStatMIPS(st fdtable.StatInfo) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&b, le, uint32(st.Dev))
	binary.Write(&b, le, [3]uint32{})
	binary.Write(&b, le, uint32(st.Ino))
	binary.Write(&b, le, st.Mode)
	binary.Write(&b, le, st.Nlink)
	binary.Write(&b, le, st.UID)
	binary.Write(&b, le, st.GID)
	binary.Write(&b, le, st.Rdev)
	binary.Write(&b, le, [2]uint32{})
	binary.Write(&b, le, uint32(st.Size))
	binary.Write(&b, le, uint32(0))
	binary.Write(&b, le, uint32(st.Atime))
	binary.Write(&b, le, uint32(0))
	binary.Write(&b, le, uint32(st.Mtime))
	binary.Write(&b, le, uint32(0))
	binary.Write(&b, le, uint32(st.Ctime))
	binary.Write(&b, le, uint32(0))
	binary.Write(&b, le, st.Blksize)
	binary.Write(&b, le, uint32(st.Blocks))
	out := b.Bytes()
	padded := make([]byte, 0x90)
	copy(padded, out)
	return padded
}

// packStat64MIPS is the stat64 variant of the MIPS layout: 64-bit inode,
// size and times at their o32 stat64 offsets.
func packStat64MIPS(st fdtable.StatInfo) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&b, le, uint32(st.Dev))
	binary.Write(&b, le, [3]uint32{})
	binary.Write(&b, le, st.Ino)
	binary.Write(&b, le, st.Mode)
	binary.Write(&b, le, st.Nlink)
	binary.Write(&b, le, st.UID)
	binary.Write(&b, le, st.GID)
	binary.Write(&b, le, st.Rdev)
	binary.Write(&b, le, [3]uint32{})
	binary.Write(&b, le, uint64(st.Size))
	binary.Write(&b, le, uint64(st.Atime))
	binary.Write(&b, le, uint64(st.Mtime))
	binary.Write(&b, le, uint64(st.Ctime))
	binary.Write(&b, le, st.Blksize)
	binary.Write(&b, le, uint32(0))
	binary.Write(&b, le, uint64(st.Blocks))
	return b.Bytes()
}

// packStat32 is the legacy 32-bit stat layout used by the non-MIPS stat
// entry point.
func packStat32(st fdtable.StatInfo) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&b, le, st.Mode)
	binary.Write(&b, le, uint32(st.Ino))
	binary.Write(&b, le, uint32(st.Dev))
	binary.Write(&b, le, st.Rdev)
	binary.Write(&b, le, st.Nlink)
	binary.Write(&b, le, uint32(st.Size))
	binary.Write(&b, le, uint32(st.Size))
	binary.Write(&b, le, uint32(st.Size))
	binary.Write(&b, le, uint32(st.Atime))
	binary.Write(&b, le, uint32(st.Mtime))
	binary.Write(&b, le, uint32(st.Ctime))
	binary.Write(&b, le, st.Blksize)
	binary.Write(&b, le, uint32(st.Blocks))
	return b.Bytes()
}

// sysFstat implements fstat(2) with the arch-appropriate layout.
func sysFstat(p *guest.Process, args [6]uint64) {
	fd, addr := fdArg(args[0]), args[1]
	rv := int64(-1)
	if obj := p.Files.Get(fd); obj != nil {
		if st, err := obj.Stat(); err == nil {
			var buf []byte
			if p.Arch == abi.MIPS32EL {
				buf = packStatMIPS(st)
			} else {
				buf = packStat64(st)
			}
			if p.CPU.MemWrite(addr, buf) == nil {
				rv = 0
			}
		}
	}
	p.Log.Infof("fstat(%d, %#x) = %d", fd, addr, rv)
	if rv == 0 {
		p.Log.Debugf("|--->>> fstat write completed")
	} else {
		p.Log.Debugf("|---!!! fstat read/write fail")
	}
	ret(p, rv)
}

// sysFstat64 implements fstat64(2) with the common wide layout.
func sysFstat64(p *guest.Process, args [6]uint64) {
	fd, addr := fdArg(args[0]), args[1]
	rv := int64(-1)
	if obj := p.Files.Get(fd); obj != nil {
		if st, err := obj.Stat(); err == nil {
			if p.CPU.MemWrite(addr, packStat64(st)) == nil {
				rv = 0
			}
		}
	}
	p.Log.Infof("fstat64(%d, %#x) = %d", fd, addr, rv)
	if rv == 0 {
		p.Log.Debugf("|--->>> fstat64 write completed")
	} else {
		p.Log.Debugf("|---!!! fstat64 read/write fail")
	}
	ret(p, rv)
}

// sysStat implements stat(2).
func sysStat(p *guest.Process, args [6]uint64) {
	host, rel, err := resolve(p, args[0])
	addr := args[1]
	rv := int64(-1)
	if err == nil {
		if st, statErr := fdtable.StatPath(host); statErr == nil {
			var buf []byte
			if p.Arch == abi.MIPS32EL {
				buf = packStatMIPS(st)
			} else {
				buf = packStat32(st)
			}
			if p.CPU.MemWrite(addr, buf) == nil {
				rv = 0
			}
		}
	}
	p.Log.Infof("stat(%s, %#x) = %d", rel, addr, rv)
	if rv == 0 {
		p.Log.Debugf("|--->>> stat() write completed")
	} else {
		p.Log.Debugf("|--!!! stat() read/write fail")
	}
	ret(p, rv)
}

// sysStat64 implements stat64(2).
func sysStat64(p *guest.Process, args [6]uint64) {
	host, rel, err := resolve(p, args[0])
	addr := args[1]
	rv := int64(-1)
	if err == nil {
		if st, statErr := fdtable.StatPath(host); statErr == nil {
			var buf []byte
			if p.Arch == abi.MIPS32EL {
				st.UID = 1000
				st.GID = 1000
				buf = packStat64MIPS(st)
			} else {
				buf = packStat64(st)
			}
			if p.CPU.MemWrite(addr, buf) == nil {
				rv = 0
			}
		}
	}
	p.Log.Infof("stat64(%s, %#x) = %d", rel, addr, rv)
	if rv == 0 {
		p.Log.Debugf("|--->>> stat64 write completed")
	} else {
		p.Log.Debugf("|--!!! stat64 read/write fail")
	}
	ret(p, rv)
}

// sysFstatat64 probes existence and reports failure either way; guests
// fall back to the stat64 path, which does fill the struct.
func sysFstatat64(p *guest.Process, args [6]uint64) {
	host, rel, err := resolve(p, args[1])
	rv := int64(-1)
	if err == nil {
		if _, statErr := os.Stat(host); statErr == nil {
			p.Log.Debugf("|--->>> Directory Found: %s", rel)
		} else {
			p.Log.Debugf("|---!!! Directory Not Found: %s", rel)
		}
	}
	p.Log.Infof("fstatat64(%#x, %s) = %d", args[0], rel, rv)
	ret(p, rv)
}
