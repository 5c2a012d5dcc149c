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
	"github.com/guestkit/guestkit/pkg/guest"
)

// bsdClass is the syscall-class prefix macOS puts on BSD calls.
const bsdClass = 0x2000000

// darwinCalls is the BSD numbering for macOS guests, unprefixed. The
// POSIX handlers are reused; open-flag translation bridges the encoding
// gap. 64-bit guests trap with the class prefix, 32-bit ones without.
var darwinCalls = map[uint64]guest.Syscall{
	1:   sup("exit", sysExitGroup),
	3:   sup("read", sysRead),
	4:   sup("write", sysWrite),
	5:   sup("open", sysOpen),
	6:   sup("close", sysClose),
	7:   sup("wait4", sysWait4),
	12:  sup("chdir", sysChdir),
	20:  sup("getpid", sysGetpid),
	23:  sup("setuid", sysSetuid),
	24:  sup("getuid", sysGetuid),
	25:  sup("geteuid", sysGeteuid),
	30:  sup("accept", sysAccept),
	33:  sup("access", sysAccess),
	39:  sup("getppid", sysGetppid),
	42:  sup("pipe", sysPipe),
	43:  sup("getegid", sysGetegid),
	47:  sup("getgid", sysGetgid),
	54:  sup("ioctl", sysIoctl),
	58:  sup("readlink", sysReadlink),
	59:  sup("execve", sysExecve),
	73:  sup("munmap", sysMunmap),
	74:  sup("mprotect", sysMprotect),
	90:  sup("dup2", sysDup2),
	92:  sup("fcntl", sysFcntl),
	93:  sup("_newselect", sysNewselect),
	97:  sup("socket", sysSocket),
	98:  sup("connect", sysConnect),
	104: sup("bind", sysBind),
	105: sup("setsockopt", sysSetsockopt),
	106: sup("listen", sysListen),
	116: sup("gettimeofday", sysGettimeofday),
	181: sup("setgid", sysSetgid),
	197: sup("mmap", sysMmap),
	199: sup("lseek", sysLseek),
	202: sup("sysctl", sysSysctl),
	327: sup("issetugid", sysIssetugid),
	338: sup("stat64", sysStat64),
	339: sup("fstat64", sysFstat64),
}

func init() {
	classed := make(map[uint64]guest.Syscall, len(darwinCalls))
	for num, sc := range darwinCalls {
		classed[bsdClass|num] = sc
	}
	guest.RegisterTable(&guest.SyscallTable{OS: abi.MacOS, Arch: abi.AMD64, Calls: classed})
	guest.RegisterTable(&guest.SyscallTable{OS: abi.MacOS, Arch: abi.X86, Calls: darwinCalls})
}
