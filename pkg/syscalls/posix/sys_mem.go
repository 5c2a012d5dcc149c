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
	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/fdtable"
	"github.com/guestkit/guestkit/pkg/guest"
	"github.com/guestkit/guestkit/pkg/memspace"
)

// fsMSR is the IA32_FS_BASE model-specific register arch_prctl writes.
const fsMSR = 0xC0000100

// sysBrk implements brk(2).
func sysBrk(p *guest.Process, args [6]uint64) {
	target := args[0]
	p.Log.Infof("brk(%#x)", target)
	rv := p.Mem.Brk(target)
	p.Log.Debugf("|--->>> brk return(%#x)", rv)
	ret(p, int64(rv))
}

// sysMprotect accepts and ignores protection changes.
func sysMprotect(p *guest.Process, args [6]uint64) {
	p.Log.Infof("mprotect(%#x, %#x, %#x) = 0", args[0], args[1], args[2])
	ret(p, 0)
}

// sysMadvise accepts and ignores advice.
func sysMadvise(p *guest.Process, args [6]uint64) {
	p.Log.Infof("madvise() = 0")
	ret(p, 0)
}

// sysMunmap implements munmap(2).
func sysMunmap(p *guest.Process, args [6]uint64) {
	addr, length := args[0], abi.PageRoundUp(args[1])
	rv := int64(0)
	if err := p.Mem.Munmap(addr, length); err != nil {
		rv = -1
	}
	p.Log.Infof("munmap(%#x, %#x) = %d", addr, length, rv)
	ret(p, rv)
}

// mmapCommon services mmap and mmap2. On MIPS, for both calls, the
// descriptor and the offset are read indirectly through the argument
// registers; mmap2 arrives with a page-count offset.
func mmapCommon(p *guest.Process, name string, args [6]uint64, pageOffset bool) {
	addr, length, prot, flags := args[0], args[1], args[2], args[3]
	fdRaw, off := args[4], args[5]

	var fd int
	switch p.Arch {
	case abi.AMD64, abi.ARM64:
		fd = int(int64(fdRaw))
	case abi.MIPS32EL:
		if v, err := p.ReadU32(fdRaw); err == nil {
			fd = int(int32(v))
		} else {
			fd = -1
		}
		if v, err := p.ReadU32(off); err == nil {
			off = uint64(v)
		} else {
			off = 0
		}
	default:
		fd = int(int32(uint32(fdRaw)))
	}
	if pageOffset {
		off *= abi.PageSize
	}

	var backing memspace.Backing
	label := ""
	if flags&abi.MapAnonymous(p.Arch) == 0 {
		if obj := p.Files.Get(fd); obj != nil {
			backing = obj
			label = obj.Name()
			p.Log.Debugf("|--->>> log mem mmap to %s", label)
		}
	}

	p.Log.Debugf("%s(%#x, %d, %#x, %#x, %d, %d)", name, addr, length, prot, flags, fd, off)
	base, err := p.Mem.Mmap(addr, length, backing, off, label)
	if err != nil {
		p.Log.Errorf("%s failed: %v", name, err)
		ret(p, -1)
		return
	}
	p.Log.Debugf("|--->>> log %s addr range is : %#x - %#x", name, base, base+abi.PageRoundUp(length))
	if p.Output == guest.OutputDefault {
		p.Log.Infof("%s(%#x, %d, %#x, %#x, %d, %d) = %#x", name, addr, length, prot, flags, fd, off, base)
	}
	ret(p, int64(base))
}

// sysMmap implements mmap(2); the offset is in bytes.
func sysMmap(p *guest.Process, args [6]uint64) {
	mmapCommon(p, "mmap", args, false)
}

// sysMmap2 implements mmap2(2); the offset is in pages.
func sysMmap2(p *guest.Process, args [6]uint64) {
	mmapCommon(p, "mmap2", args, true)
}

// sysArchPrctl implements the ARCH_SET_FS case of arch_prctl(2) by
// writing the FS base MSR.
func sysArchPrctl(p *guest.Process, args [6]uint64) {
	base := args[1]
	rv := int64(0)
	if err := p.CPU.MsrWrite(fsMSR, base); err != nil {
		rv = -1
	}
	p.Log.Infof("arch_prctl(%#x) = %d", base, rv)
	ret(p, rv)
}

var _ memspace.Backing = (fdtable.IO)(nil)
