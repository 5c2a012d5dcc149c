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
	"os"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/fdtable"
	"github.com/guestkit/guestkit/pkg/guest"
)

// sysOpen implements open(2). Guest flags are rewritten to the platform
// encoding before the host open.
func sysOpen(p *guest.Process, args [6]uint64) {
	host, rel, err := resolve(p, args[0])
	if err != nil {
		ret(p, -1)
		return
	}
	flags := abi.TranslateOpenFlags(args[1], p.GuestOS, p.Platform)
	mode := uint32(args[2])
	if p.Arch == abi.ARM {
		mode = 0
	}

	rv := int64(-1)
	f, err := fdtable.OpenFile(host, rel, int(flags), mode)
	if err == nil {
		if idx := p.Files.Install(f); idx >= 0 {
			rv = int64(idx)
		} else {
			f.Close()
		}
	}
	p.Log.Infof("open(%s, %#x, %#o) = %d", rel, flags, mode, rv)
	found(p, rv >= 0, rel)
	ret(p, rv)
}

// sysOpenat implements openat(2). dirfd is accepted but paths resolve
// against the working directory, matching the original.
func sysOpenat(p *guest.Process, args [6]uint64) {
	dirfd := fdArg(args[0])
	host, rel, err := resolve(p, args[1])
	if err != nil {
		ret(p, -1)
		return
	}
	rv := int64(-1)
	if _, statErr := os.Stat(host); statErr != nil {
		p.Log.Infof("openat(%d, %s, %#x, %#o) = %d", dirfd, rel, args[2], args[3], rv)
		found(p, false, rel)
		ret(p, rv)
		return
	}
	flags := abi.TranslateOpenFlags(args[2], p.GuestOS, p.Platform)
	f, err := fdtable.OpenFile(host, rel, int(flags), uint32(args[3]))
	if err == nil {
		if idx := p.Files.Install(f); idx >= 0 {
			rv = int64(idx)
		} else {
			f.Close()
		}
	}
	p.Log.Infof("openat(%d, %s, %#x, %#o) = %d", dirfd, rel, flags, args[3], rv)
	found(p, rv >= 0, rel)
	ret(p, rv)
}

// sysRead implements read(2).
func sysRead(p *guest.Process, args [6]uint64) {
	fd, buf, n := fdArg(args[0]), args[1], args[2]
	obj := p.Files.Get(fd)
	rv := int64(-1)
	if obj != nil {
		data := make([]byte, n)
		cnt, err := obj.Read(data)
		if err == nil || cnt > 0 {
			if cnt > 0 {
				if werr := p.CPU.MemWrite(buf, data[:cnt]); werr != nil {
					cnt = -1
				}
			}
			rv = int64(cnt)
		}
		if rv > 0 {
			p.Log.Debugf("|--->>> read() CONTENT: %q", data[:rv])
		}
	}
	p.Log.Infof("read(%d, %#x, %#x) = %d", fd, buf, n, rv)
	ret(p, rv)
}

// sysWrite implements write(2).
func sysWrite(p *guest.Process, args [6]uint64) {
	fd, buf, n := fdArg(args[0]), args[1], args[2]
	rv := int64(-1)
	obj := p.Files.Get(fd)
	if obj != nil {
		data, err := p.CPU.MemRead(buf, n)
		if err == nil {
			if _, werr := obj.Write(data); werr == nil {
				rv = int64(n)
				p.Log.Debugf("|--->>> write() CONTENT: %q", data)
			}
		}
	}
	p.Log.Infof("write(%d, %#x, %d) = %d", fd, buf, n, rv)
	ret(p, rv)
}

// sysWritev implements writev(2), returning the byte total.
func sysWritev(p *guest.Process, args [6]uint64) {
	fd, iov, iovcnt := fdArg(args[0]), args[1], args[2]
	step := uint64(p.Arch.PointerSize())
	obj := p.Files.Get(fd)
	rv := int64(-1)
	if obj != nil {
		rv = 0
		p.Log.Infof("writev(%#x, %#x, %#x)", args[0], iov, iovcnt)
		for i := uint64(0); i < iovcnt; i++ {
			base, err := p.ReadPtr(iov + i*2*step)
			if err != nil {
				rv = -1
				break
			}
			length, err := p.ReadPtr(iov + i*2*step + step)
			if err != nil {
				rv = -1
				break
			}
			if length == 0 {
				continue
			}
			data, err := p.CPU.MemRead(base, length)
			if err != nil {
				rv = -1
				break
			}
			p.Log.Debugf("|--->>> writev() CONTENT: %q", data)
			n, err := obj.Write(data)
			rv += int64(n)
			if err != nil {
				break
			}
		}
	}
	p.Log.Infof("writev(%d, %#x, %d) = %d", fd, iov, iovcnt, rv)
	ret(p, rv)
}

// sysLseek implements lseek(2).
func sysLseek(p *guest.Process, args [6]uint64) {
	fd, off, whence := fdArg(args[0]), int64(args[1]), int(args[2])
	rv := int64(-1)
	if obj := p.Files.Get(fd); obj != nil {
		if pos, err := obj.Seek(off, whence); err == nil {
			rv = pos
		}
	}
	p.Log.Infof("lseek(%d, %#x, %#x) = %d", fd, off, whence, rv)
	ret(p, rv)
}

// sysClose implements close(2); the slot empties even when the host
// close fails.
func sysClose(p *guest.Process, args [6]uint64) {
	fd := fdArg(args[0])
	rv := int64(-1)
	if p.Files.Close(fd) {
		rv = 0
	}
	p.Log.Infof("close(%d) = %d", fd, rv)
	ret(p, rv)
}

// sysDup2 implements dup2(2): the destination slot is closed first, then
// receives a duplicate.
func sysDup2(p *guest.Process, args [6]uint64) {
	oldfd, newfd := fdArg(args[0]), fdArg(args[1])
	rv := int64(-1)
	if oldfd >= 0 && oldfd < fdtable.MaxFDs && newfd >= 0 && newfd < fdtable.MaxFDs {
		if obj := p.Files.Get(oldfd); obj != nil {
			if dup, err := obj.Dup(); err == nil {
				p.Files.Close(newfd)
				p.Files.InstallAt(newfd, dup)
				rv = int64(newfd)
			}
		}
	}
	p.Log.Infof("dup2(%d, %d) = %d", oldfd, newfd, rv)
	ret(p, rv)
}

// sysDup3 implements dup3(2) like dup2, except that equal descriptors
// fail; the flag argument is ignored.
func sysDup3(p *guest.Process, args [6]uint64) {
	oldfd, newfd := fdArg(args[0]), fdArg(args[1])
	rv := int64(-1)
	if oldfd != newfd && oldfd >= 0 && oldfd < fdtable.MaxFDs && newfd >= 0 && newfd < fdtable.MaxFDs {
		if obj := p.Files.Get(oldfd); obj != nil {
			if dup, err := obj.Dup(); err == nil {
				p.Files.Close(newfd)
				p.Files.InstallAt(newfd, dup)
				rv = int64(newfd)
			}
		}
	}
	p.Log.Infof("dup3(%d, %d, %#x) = %d", oldfd, newfd, args[2], rv)
	ret(p, rv)
}

// sysFcntl implements the narrow fcntl surface guests rely on: F_GETFL
// and F_GETFD report 2, the setters succeed, everything else succeeds
// silently.
func sysFcntl(p *guest.Process, args [6]uint64) {
	fd, cmd := fdArg(args[0]), args[1]
	var rv int64
	switch cmd {
	case abi.FcntlGetFL, abi.FcntlGetFD:
		rv = 2
	default:
		rv = 0
	}
	p.Log.Infof("fcntl(%d, %d) = %d", fd, cmd, rv)
	ret(p, rv)
}

// sysFcntl64 mirrors sysFcntl for the 32-bit fcntl64 entry point.
func sysFcntl64(p *guest.Process, args [6]uint64) {
	fd, cmd := fdArg(args[0]), args[1]
	var rv int64
	switch cmd {
	case abi.FcntlGetFL, abi.FcntlGetFD:
		rv = 2
	default:
		rv = 0
	}
	p.Log.Infof("fcntl64(%d, %d, %d) = %d", fd, cmd, args[2], rv)
	ret(p, rv)
}

// sysAccess implements access(2) as an existence check.
func sysAccess(p *guest.Process, args [6]uint64) {
	host, rel, err := resolve(p, args[0])
	rv := int64(-1)
	if err == nil {
		if _, statErr := os.Stat(host); statErr == nil {
			rv = 0
		}
	}
	p.Log.Infof("access(%s, %#x) = %d", rel, args[1], rv)
	if rv == 0 {
		p.Log.Debugf("|--->>> File: %s", rel)
	} else {
		p.Log.Debugf("|---!!! No such file or directory")
	}
	ret(p, rv)
}

// sysFaccessat checks existence but always fails, matching the original;
// the log line carries the real answer for the operator.
func sysFaccessat(p *guest.Process, args [6]uint64) {
	dirfd := fdArg(args[0])
	host, rel, err := resolve(p, args[1])
	rv := int64(-1)
	if err == nil {
		if _, statErr := os.Stat(host); statErr == nil {
			p.Log.Debugf("|--->>> Found and Skip, return -1: %s", rel)
		} else {
			p.Log.Debugf("|---!!! File Not Found: %s", rel)
		}
	}
	p.Log.Infof("faccessat(%d, %#x, %#x) = %d", dirfd, args[1], args[2], rv)
	ret(p, rv)
}

// sysReadlink implements readlink(2). /proc/self/exe answers with the
// binary's host absolute path.
func sysReadlink(p *guest.Process, args [6]uint64) {
	pathAddr, buf, bufsize := args[0], args[1], args[2]
	path, err := p.ReadString(pathAddr)
	if err != nil {
		ret(p, -1)
		return
	}
	rel := p.Sandbox.ToRelative(p.Cwd(), path)
	rv := readlinkInto(p, path, rel, buf)
	p.Log.Infof("readlink(%s, %#x, %#x) = %d", rel, buf, bufsize, rv)
	ret(p, rv)
}

// sysReadlinkat implements readlinkat(2); dirfd is ignored like openat's.
func sysReadlinkat(p *guest.Process, args [6]uint64) {
	path, err := p.ReadString(args[1])
	if err != nil {
		ret(p, -1)
		return
	}
	rel := p.Sandbox.ToRelative(p.Cwd(), path)
	rv := readlinkInto(p, path, rel, args[2])
	p.Log.Infof("readlinkat(%#x, %#x, %#x, %#x) = %d", args[0], args[1], args[2], args[3], rv)
	ret(p, rv)
}

func readlinkInto(p *guest.Process, path, rel string, buf uint64) int64 {
	// ToRelative already rewrote /proc/self/exe to the binary's guest
	// path when one is loaded.
	isExe := path == "/proc/self/exe" || (p.Sandbox.Exe() != "" && rel == p.Sandbox.Exe())
	if isExe {
		target := append([]byte(p.HostPath), 0)
		if err := p.CPU.MemWrite(buf, target); err != nil {
			return -1
		}
		return int64(len(target) - 1)
	}
	if _, err := os.Lstat(p.Sandbox.ToLink(p.Cwd(), path)); err != nil {
		return -1
	}
	return 0
}

// sysGetcwd implements getcwd(2).
func sysGetcwd(p *guest.Process, args [6]uint64) {
	buf, size := args[0], args[1]
	cwd := p.Sandbox.ToRelative(p.Cwd(), ".")
	out := append([]byte(cwd), 0)
	rv := int64(-1)
	if err := p.CPU.MemWrite(buf, out); err == nil {
		rv = int64(len(out))
	}
	p.Log.Infof("getcwd(%s, %#x) = %d", cwd, size, rv)
	ret(p, rv)
}

// sysChdir implements chdir(2) against the calling thread's current
// path.
func sysChdir(p *guest.Process, args [6]uint64) {
	host, rel, err := resolve(p, args[0])
	rv := int64(-1)
	if err == nil {
		if fi, statErr := os.Stat(host); statErr == nil && fi.IsDir() {
			p.SetCwd(rel)
			rv = 0
		}
	}
	if rv == 0 {
		p.Log.Infof("chdir(%s) = %d", rel, rv)
	} else {
		p.Log.Infof("chdir(%s) = %d : Not Found", rel, rv)
	}
	ret(p, rv)
}

// sysPipe implements pipe(2). MIPS returns the two descriptors in V0/V1;
// everyone else gets them written to the pipefd array.
func sysPipe(p *guest.Process, args [6]uint64) {
	pipefd := args[0]
	r, w := fdtable.NewPipe()
	rfd := p.Files.Install(r)
	wfd := -1
	if rfd >= 0 {
		wfd = p.Files.Install(w)
	}
	rv := int64(-1)
	if rfd >= 0 && wfd >= 0 {
		if p.Arch == abi.MIPS32EL {
			// V1 carries the write end; SetReturn below writes V0.
			p.CPU.RegWrite(mipsSecondReturnReg, uint64(wfd))
			rv = int64(rfd)
		} else {
			if err := p.WriteU32(pipefd, uint32(rfd)); err == nil {
				if err := p.WriteU32(pipefd+4, uint32(wfd)); err == nil {
					rv = 0
				}
			}
		}
	} else if rfd >= 0 {
		p.Files.Close(rfd)
	}
	p.Log.Infof("pipe(%#x, [%d, %d]) = %d", pipefd, rfd, wfd, rv)
	ret(p, rv)
}

// sysSendfile64 implements sendfile64(2) by seeking the source and
// copying through the table.
func sysSendfile64(p *guest.Process, args [6]uint64) {
	outfd, infd, offPtr, count := fdArg(args[0]), fdArg(args[1]), args[2], args[3]
	rv := int64(-1)
	out := p.Files.Get(outfd)
	in := p.Files.Get(infd)
	if out != nil && in != nil {
		off, err := p.ReadU32(offPtr)
		if err == nil {
			if _, err := in.Seek(int64(off), abi.SeekSet); err == nil {
				data := make([]byte, count)
				n, _ := in.Read(data)
				if n >= 0 {
					written, werr := out.Write(data[:n])
					if werr == nil {
						rv = int64(written)
					}
				}
			}
		}
	}
	p.Log.Infof("sendfile64(%d, %d, %#x, %d) = %d", outfd, infd, offPtr, count, rv)
	ret(p, rv)
}
