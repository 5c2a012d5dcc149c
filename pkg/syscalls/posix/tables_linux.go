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

// sup builds a table entry for a supported call.
func sup(name string, fn guest.HandlerFn) guest.Syscall {
	return guest.Syscall{Name: name, Fn: fn}
}

// amd64LinuxCalls is the x86-64 Linux numbering.
var amd64LinuxCalls = map[uint64]guest.Syscall{
	0:   sup("read", sysRead),
	1:   sup("write", sysWrite),
	2:   sup("open", sysOpen),
	3:   sup("close", sysClose),
	4:   sup("stat", sysStat),
	5:   sup("fstat", sysFstat),
	8:   sup("lseek", sysLseek),
	9:   sup("mmap", sysMmap),
	10:  sup("mprotect", sysMprotect),
	11:  sup("munmap", sysMunmap),
	12:  sup("brk", sysBrk),
	13:  sup("rt_sigaction", sysRtSigaction),
	14:  sup("rt_sigprocmask", sysRtSigprocmask),
	16:  sup("ioctl", sysIoctl),
	20:  sup("writev", sysWritev),
	21:  sup("access", sysAccess),
	22:  sup("pipe", sysPipe),
	23:  sup("_newselect", sysNewselect),
	28:  sup("madvise", sysMadvise),
	33:  sup("dup2", sysDup2),
	35:  sup("nanosleep", sysNanosleep),
	37:  sup("alarm", sysAlarm),
	38:  sup("setitimer", sysSetitimer),
	39:  sup("getpid", sysGetpid),
	40:  sup("sendfile", sysSendfile64),
	41:  sup("socket", sysSocket),
	42:  sup("connect", sysConnect),
	43:  sup("accept", sysAccept),
	44:  sup("send", sysSend),
	45:  sup("recv", sysRecv),
	48:  sup("shutdown", sysShutdown),
	49:  sup("bind", sysBind),
	50:  sup("listen", sysListen),
	54:  sup("setsockopt", sysSetsockopt),
	56:  sup("clone", sysClone),
	58:  sup("vfork", sysVfork),
	59:  sup("execve", sysExecve),
	60:  sup("exit", sysExit),
	61:  sup("wait4", sysWait4),
	63:  sup("uname", sysUname),
	72:  sup("fcntl", sysFcntl),
	79:  sup("getcwd", sysGetcwd),
	80:  sup("chdir", sysChdir),
	89:  sup("readlink", sysReadlink),
	96:  sup("gettimeofday", sysGettimeofday),
	97:  sup("getrlimit", sysUgetrlimit),
	99:  sup("sysinfo", sysSysinfo),
	100: sup("times", sysTimes),
	102: sup("getuid", sysGetuid),
	104: sup("getgid", sysGetgid),
	105: sup("setuid", sysSetuid),
	106: sup("setgid", sysSetgid),
	107: sup("geteuid", sysGeteuid),
	108: sup("getegid", sysGetegid),
	110: sup("getppid", sysGetppid),
	112: sup("setsid", sysSetsid),
	116: sup("setgroups", sysSetgroups),
	140: sup("getpriority", sysGetpriority),
	156: sup("_sysctl", sysSysctl),
	158: sup("arch_prctl", sysArchPrctl),
	160: sup("setrlimit", sysSetrlimit),
	186: sup("gettid", sysGettid),
	201: sup("time", sysTime),
	202: sup("futex", sysFutex),
	218: sup("set_tid_address", sysSetTidAddress),
	231: sup("exit_group", sysExitGroup),
	257: sup("openat", sysOpenat),
	267: sup("readlinkat", sysReadlinkat),
	269: sup("faccessat", sysFaccessat),
	273: sup("set_robust_list", sysSetRobustList),
	292: sup("dup3", sysDup3),
}

// x86LinuxCalls is the i386 numbering; sockets multiplex through
// socketcall.
var x86LinuxCalls = map[uint64]guest.Syscall{
	1:   sup("exit", sysExit),
	3:   sup("read", sysRead),
	4:   sup("write", sysWrite),
	5:   sup("open", sysOpen),
	6:   sup("close", sysClose),
	11:  sup("execve", sysExecve),
	12:  sup("chdir", sysChdir),
	13:  sup("time", sysTime),
	19:  sup("lseek", sysLseek),
	20:  sup("getpid", sysGetpid),
	23:  sup("setuid", sysSetuid),
	24:  sup("getuid", sysGetuid),
	27:  sup("alarm", sysAlarm),
	33:  sup("access", sysAccess),
	34:  sup("nice", sysNice),
	42:  sup("pipe", sysPipe),
	43:  sup("times", sysTimes),
	45:  sup("brk", sysBrk),
	46:  sup("setgid", sysSetgid),
	47:  sup("getgid", sysGetgid),
	49:  sup("geteuid", sysGeteuid),
	50:  sup("getegid", sysGetegid),
	54:  sup("ioctl", sysIoctl),
	55:  sup("fcntl", sysFcntl),
	63:  sup("dup2", sysDup2),
	64:  sup("getppid", sysGetppid),
	66:  sup("setsid", sysSetsid),
	75:  sup("setrlimit", sysSetrlimit),
	78:  sup("gettimeofday", sysGettimeofday),
	85:  sup("readlink", sysReadlink),
	90:  sup("mmap", sysMmap),
	91:  sup("munmap", sysMunmap),
	96:  sup("getpriority", sysGetpriority),
	102: sup("socketcall", sysSocketcall),
	104: sup("setitimer", sysSetitimer),
	106: sup("stat", sysStat),
	108: sup("fstat", sysFstat),
	114: sup("wait4", sysWait4),
	116: sup("sysinfo", sysSysinfo),
	120: sup("clone", sysClone),
	122: sup("uname", sysUname),
	125: sup("mprotect", sysMprotect),
	142: sup("_newselect", sysNewselect),
	146: sup("writev", sysWritev),
	149: sup("_sysctl", sysSysctl),
	162: sup("nanosleep", sysNanosleep),
	174: sup("rt_sigaction", sysRtSigaction),
	175: sup("rt_sigprocmask", sysRtSigprocmask),
	183: sup("getcwd", sysGetcwd),
	190: sup("vfork", sysVfork),
	191: sup("ugetrlimit", sysUgetrlimit),
	192: sup("mmap2", sysMmap2),
	195: sup("stat64", sysStat64),
	197: sup("fstat64", sysFstat64),
	206: sup("setgroups", sysSetgroups),
	219: sup("madvise", sysMadvise),
	221: sup("fcntl64", sysFcntl64),
	224: sup("gettid", sysGettid),
	239: sup("sendfile64", sysSendfile64),
	240: sup("futex", sysFutex),
	252: sup("exit_group", sysExitGroup),
	258: sup("set_tid_address", sysSetTidAddress),
	295: sup("openat", sysOpenat),
	300: sup("fstatat64", sysFstatat64),
	305: sup("readlinkat", sysReadlinkat),
	307: sup("faccessat", sysFaccessat),
	311: sup("set_robust_list", sysSetRobustList),
	330: sup("dup3", sysDup3),
}

// armLinuxCalls is the ARM EABI numbering.
var armLinuxCalls = map[uint64]guest.Syscall{
	1:   sup("exit", sysExit),
	3:   sup("read", sysRead),
	4:   sup("write", sysWrite),
	5:   sup("open", sysOpen),
	6:   sup("close", sysClose),
	11:  sup("execve", sysExecve),
	12:  sup("chdir", sysChdir),
	13:  sup("time", sysTime),
	19:  sup("lseek", sysLseek),
	20:  sup("getpid", sysGetpid),
	23:  sup("setuid", sysSetuid),
	24:  sup("getuid", sysGetuid),
	27:  sup("alarm", sysAlarm),
	33:  sup("access", sysAccess),
	34:  sup("nice", sysNice),
	42:  sup("pipe", sysPipe),
	43:  sup("times", sysTimes),
	45:  sup("brk", sysBrk),
	46:  sup("setgid", sysSetgid),
	47:  sup("getgid", sysGetgid),
	49:  sup("geteuid", sysGeteuid),
	50:  sup("getegid", sysGetegid),
	54:  sup("ioctl", sysIoctl),
	55:  sup("fcntl", sysFcntl),
	63:  sup("dup2", sysDup2),
	64:  sup("getppid", sysGetppid),
	66:  sup("setsid", sysSetsid),
	75:  sup("setrlimit", sysSetrlimit),
	78:  sup("gettimeofday", sysGettimeofday),
	85:  sup("readlink", sysReadlink),
	91:  sup("munmap", sysMunmap),
	96:  sup("getpriority", sysGetpriority),
	104: sup("setitimer", sysSetitimer),
	106: sup("stat", sysStat),
	108: sup("fstat", sysFstat),
	114: sup("wait4", sysWait4),
	116: sup("sysinfo", sysSysinfo),
	120: sup("clone", sysClone),
	122: sup("uname", sysUname),
	125: sup("mprotect", sysMprotect),
	142: sup("_newselect", sysNewselect),
	146: sup("writev", sysWritev),
	162: sup("nanosleep", sysNanosleep),
	174: sup("rt_sigaction", sysRtSigaction),
	175: sup("rt_sigprocmask", sysRtSigprocmask),
	183: sup("getcwd", sysGetcwd),
	190: sup("vfork", sysVfork),
	191: sup("ugetrlimit", sysUgetrlimit),
	192: sup("mmap2", sysMmap2),
	195: sup("stat64", sysStat64),
	197: sup("fstat64", sysFstat64),
	206: sup("setgroups", sysSetgroups),
	220: sup("madvise", sysMadvise),
	221: sup("fcntl64", sysFcntl64),
	224: sup("gettid", sysGettid),
	239: sup("sendfile64", sysSendfile64),
	240: sup("futex", sysFutex),
	248: sup("exit_group", sysExitGroup),
	256: sup("set_tid_address", sysSetTidAddress),
	281: sup("socket", sysSocket),
	282: sup("bind", sysBind),
	283: sup("connect", sysConnect),
	284: sup("listen", sysListen),
	285: sup("accept", sysAccept),
	289: sup("send", sysSend),
	291: sup("recv", sysRecv),
	293: sup("shutdown", sysShutdown),
	294: sup("setsockopt", sysSetsockopt),
	322: sup("openat", sysOpenat),
	327: sup("fstatat64", sysFstatat64),
	332: sup("readlinkat", sysReadlinkat),
	334: sup("faccessat", sysFaccessat),
	338: sup("set_robust_list", sysSetRobustList),
	358: sup("dup3", sysDup3),
}

// arm64LinuxCalls is the aarch64 generic numbering.
var arm64LinuxCalls = map[uint64]guest.Syscall{
	17:  sup("getcwd", sysGetcwd),
	24:  sup("dup3", sysDup3),
	25:  sup("fcntl", sysFcntl),
	29:  sup("ioctl", sysIoctl),
	48:  sup("faccessat", sysFaccessat),
	49:  sup("chdir", sysChdir),
	56:  sup("openat", sysOpenat),
	57:  sup("close", sysClose),
	62:  sup("lseek", sysLseek),
	63:  sup("read", sysRead),
	64:  sup("write", sysWrite),
	66:  sup("writev", sysWritev),
	71:  sup("sendfile", sysSendfile64),
	78:  sup("readlinkat", sysReadlinkat),
	80:  sup("fstat", sysFstat64),
	93:  sup("exit", sysExit),
	94:  sup("exit_group", sysExitGroup),
	96:  sup("set_tid_address", sysSetTidAddress),
	98:  sup("futex", sysFutex),
	99:  sup("set_robust_list", sysSetRobustList),
	101: sup("nanosleep", sysNanosleep),
	103: sup("setitimer", sysSetitimer),
	134: sup("rt_sigaction", sysRtSigaction),
	135: sup("rt_sigprocmask", sysRtSigprocmask),
	141: sup("getpriority", sysGetpriority),
	144: sup("setgid", sysSetgid),
	146: sup("setuid", sysSetuid),
	153: sup("times", sysTimes),
	157: sup("setsid", sysSetsid),
	159: sup("setgroups", sysSetgroups),
	160: sup("uname", sysUname),
	164: sup("setrlimit", sysSetrlimit),
	163: sup("getrlimit", sysUgetrlimit),
	169: sup("gettimeofday", sysGettimeofday),
	172: sup("getpid", sysGetpid),
	173: sup("getppid", sysGetppid),
	174: sup("getuid", sysGetuid),
	175: sup("geteuid", sysGeteuid),
	176: sup("getgid", sysGetgid),
	177: sup("getegid", sysGetegid),
	178: sup("gettid", sysGettid),
	179: sup("sysinfo", sysSysinfo),
	198: sup("socket", sysSocket),
	200: sup("bind", sysBind),
	201: sup("listen", sysListen),
	202: sup("accept", sysAccept),
	203: sup("connect", sysConnect),
	206: sup("send", sysSend),
	207: sup("recv", sysRecv),
	208: sup("setsockopt", sysSetsockopt),
	210: sup("shutdown", sysShutdown),
	214: sup("brk", sysBrk),
	215: sup("munmap", sysMunmap),
	220: sup("clone", sysClone),
	221: sup("execve", sysExecve),
	222: sup("mmap", sysMmap),
	226: sup("mprotect", sysMprotect),
	233: sup("madvise", sysMadvise),
	260: sup("wait4", sysWait4),
}

// mipsLinuxCalls is the o32 numbering (4000 base).
var mipsLinuxCalls = map[uint64]guest.Syscall{
	4001: sup("exit", sysExit),
	4003: sup("read", sysRead),
	4004: sup("write", sysWrite),
	4005: sup("open", sysOpen),
	4006: sup("close", sysClose),
	4011: sup("execve", sysExecve),
	4012: sup("chdir", sysChdir),
	4013: sup("time", sysTime),
	4019: sup("lseek", sysLseek),
	4020: sup("getpid", sysGetpid),
	4023: sup("setuid", sysSetuid),
	4024: sup("getuid", sysGetuid),
	4027: sup("alarm", sysAlarm),
	4033: sup("access", sysAccess),
	4034: sup("nice", sysNice),
	4042: sup("pipe", sysPipe),
	4043: sup("times", sysTimes),
	4045: sup("brk", sysBrk),
	4046: sup("setgid", sysSetgid),
	4047: sup("getgid", sysGetgid),
	4049: sup("geteuid", sysGeteuid),
	4050: sup("getegid", sysGetegid),
	4054: sup("ioctl", sysIoctl),
	4055: sup("fcntl", sysFcntl),
	4063: sup("dup2", sysDup2),
	4064: sup("getppid", sysGetppid),
	4066: sup("setsid", sysSetsid),
	4075: sup("setrlimit", sysSetrlimit),
	4076: sup("getrlimit", sysUgetrlimit),
	4078: sup("gettimeofday", sysGettimeofday),
	4081: sup("setgroups", sysSetgroups),
	4085: sup("readlink", sysReadlink),
	4090: sup("mmap", sysMmap),
	4091: sup("munmap", sysMunmap),
	4096: sup("getpriority", sysGetpriority),
	4104: sup("setitimer", sysSetitimer),
	4106: sup("stat", sysStat),
	4108: sup("fstat", sysFstat),
	4114: sup("wait4", sysWait4),
	4116: sup("sysinfo", sysSysinfo),
	4120: sup("clone", sysClone),
	4122: sup("uname", sysUname),
	4125: sup("mprotect", sysMprotect),
	4142: sup("_newselect", sysNewselect),
	4146: sup("writev", sysWritev),
	4153: sup("_sysctl", sysSysctl),
	4166: sup("nanosleep", sysNanosleep),
	4168: sup("accept", sysAccept),
	4169: sup("bind", sysBind),
	4170: sup("connect", sysConnect),
	4174: sup("listen", sysListen),
	4175: sup("recv", sysRecv),
	4178: sup("send", sysSend),
	4181: sup("setsockopt", sysSetsockopt),
	4182: sup("shutdown", sysShutdown),
	4183: sup("socket", sysSocket),
	4194: sup("rt_sigaction", sysRtSigaction),
	4195: sup("rt_sigprocmask", sysRtSigprocmask),
	4203: sup("getcwd", sysGetcwd),
	4210: sup("mmap2", sysMmap2),
	4213: sup("stat64", sysStat64),
	4215: sup("fstat64", sysFstat64),
	4218: sup("madvise", sysMadvise),
	4220: sup("fcntl64", sysFcntl64),
	4222: sup("gettid", sysGettid),
	4237: sup("sendfile64", sysSendfile64),
	4238: sup("futex", sysFutex),
	4246: sup("exit_group", sysExitGroup),
	4252: sup("set_tid_address", sysSetTidAddress),
	4288: sup("openat", sysOpenat),
	4293: sup("fstatat64", sysFstatat64),
	4298: sup("readlinkat", sysReadlinkat),
	4300: sup("faccessat", sysFaccessat),
	4309: sup("set_robust_list", sysSetRobustList),
	4327: sup("dup3", sysDup3),
}

func init() {
	guest.RegisterTable(&guest.SyscallTable{OS: abi.Linux, Arch: abi.AMD64, Calls: amd64LinuxCalls})
	guest.RegisterTable(&guest.SyscallTable{OS: abi.Linux, Arch: abi.X86, Calls: x86LinuxCalls})
	guest.RegisterTable(&guest.SyscallTable{OS: abi.Linux, Arch: abi.ARM, Calls: armLinuxCalls})
	guest.RegisterTable(&guest.SyscallTable{OS: abi.Linux, Arch: abi.ARM64, Calls: arm64LinuxCalls})
	guest.RegisterTable(&guest.SyscallTable{OS: abi.Linux, Arch: abi.MIPS32EL, Calls: mipsLinuxCalls})
}
