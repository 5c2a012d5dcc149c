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

	"golang.org/x/sys/unix"

	"github.com/guestkit/guestkit/pkg/guest"
)

// Synthetic process identifiers the guest sees.
const (
	guestPID  = 0x512
	guestPPID = 0x1024
)

// sysExit implements exit(2).
func sysExit(p *guest.Process, args [6]uint64) {
	p.Log.Infof("exit()")
	p.HostExitIfChild()
	if p.Sched != nil {
		if t := p.Sched.Current(); t != nil {
			t.Stop(guest.EventExit)
		}
		p.StopEngine()
		return
	}
	// exit does not change the recorded exit code; only exit_group
	// does.
	p.Exit(p.ExitCode)
}

// sysExitGroup implements exit_group(2): the whole process is done.
func sysExitGroup(p *guest.Process, args [6]uint64) {
	code := int(args[0])
	p.Log.Infof("exit_group(%d)", code)
	p.HostExitIfChild()
	p.ExitCode = code
	if p.Sched != nil {
		if t := p.Sched.Current(); t != nil {
			t.Stop(guest.EventExitGroup)
		}
	}
	p.Exit(code)
}

// sysVfork spawns a host child running the same image. Go cannot fork
// mid-flight, so the embedding layer supplies a respawn hook.
func sysVfork(p *guest.Process, args [6]uint64) {
	rv := int64(-1)
	if p.Respawn != nil {
		if pid, err := p.Respawn(); err == nil {
			rv = int64(pid)
		}
	}
	if p.Sched != nil {
		p.StopEngine()
	}
	p.Log.Infof("vfork() = %d", rv)
	ret(p, rv)
}

// sysWait4 implements wait4(2) against the host, where fork children
// actually live.
func sysWait4(p *guest.Process, args [6]uint64) {
	pid, statusAddr, options := int(int32(uint32(args[0]))), args[1], int(args[2])
	rv := int64(-1)
	var status unix.WaitStatus
	spid, err := unix.Wait4(pid, &status, options, nil)
	if err == nil {
		if statusAddr != 0 {
			p.WriteU32(statusAddr, uint32(status))
		}
		rv = int64(spid)
	}
	p.Log.Infof("wait4(%d, %d) = %d", pid, options, rv)
	ret(p, rv)
}

// sysExecve implements execve(2): the run loop rebuilds the process
// around the new image.
func sysExecve(p *guest.Process, args [6]uint64) {
	host, rel, err := resolve(p, args[0])
	if err != nil {
		ret(p, -1)
		return
	}
	argv, err := p.ReadPtrVector(args[1])
	if err != nil {
		ret(p, -1)
		return
	}
	env, err := p.ReadPtrVector(args[2])
	if err != nil {
		ret(p, -1)
		return
	}
	p.Log.Infof("execve(%s, %v, %v)", rel, argv, env)
	p.RequestExec(host, rel, argv, env)
}

// sysSetsid reports the host pid as the new session id.
func sysSetsid(p *guest.Process, args [6]uint64) {
	rv := int64(os.Getpid())
	p.Log.Infof("setsid() = %d", rv)
	ret(p, rv)
}

// sysGetpid returns the fixed guest pid.
func sysGetpid(p *guest.Process, args [6]uint64) {
	p.Log.Infof("getpid() = %d", guestPID)
	ret(p, guestPID)
}

// sysGetppid returns the fixed guest parent pid.
func sysGetppid(p *guest.Process, args [6]uint64) {
	p.Log.Infof("getppid() = %d", guestPPID)
	ret(p, guestPPID)
}

// sysGettid returns the scheduled thread's id, or the main tid when
// single-threaded.
func sysGettid(p *guest.Process, args [6]uint64) {
	rv := int64(1)
	if p.Sched != nil {
		if t := p.Sched.Current(); t != nil {
			rv = int64(t.ID)
		}
	}
	p.Log.Infof("gettid() = %d", rv)
	ret(p, rv)
}

// sysSetTidAddress records the clear-child-tid address and returns the
// tid.
func sysSetTidAddress(p *guest.Process, args [6]uint64) {
	rv := int64(1)
	if p.Sched != nil {
		if t := p.Sched.Current(); t != nil {
			t.ClearChildTID = args[0]
			rv = int64(t.ID)
		}
	}
	p.Log.Infof("set_tid_address(%#x) = %d", args[0], rv)
	ret(p, rv)
}

// sysSetRobustList records the robust futex list head.
func sysSetRobustList(p *guest.Process, args [6]uint64) {
	if p.Sched != nil {
		if t := p.Sched.Current(); t != nil {
			t.RobustListHead = args[0]
			t.RobustListLen = args[1]
		}
	}
	p.Log.Infof("set_robust_list(%#x, %#x) = 0", args[0], args[1])
	ret(p, 0)
}

// sysNice accepts and ignores priority changes.
func sysNice(p *guest.Process, args [6]uint64) {
	p.Log.Infof("nice(%d) = 0", int(int32(uint32(args[0]))))
	ret(p, 0)
}

// sysGetpriority proxies to the host.
func sysGetpriority(p *guest.Process, args [6]uint64) {
	which, who := int(args[0]), int(args[1])
	rv := int64(-1)
	if prio, err := unix.Getpriority(which, who); err == nil {
		rv = int64(prio)
	}
	p.Log.Infof("getpriority(%#x, %#x) = %d", which, who, rv)
	ret(p, rv)
}

// identity returns the uid/gid the guest sees: 0 when emulating root,
// 1000 otherwise.
func identity(p *guest.Process) int64 {
	if !p.Root {
		return 0
	}
	return 1000
}

// sysGetuid and friends: the identity calls all answer from the root
// flag.
func sysGetuid(p *guest.Process, args [6]uint64) {
	rv := identity(p)
	p.Log.Infof("getuid(%d)", rv)
	ret(p, rv)
}

func sysGeteuid(p *guest.Process, args [6]uint64) {
	rv := identity(p)
	p.Log.Infof("geteuid(%d)", rv)
	ret(p, rv)
}

func sysGetgid(p *guest.Process, args [6]uint64) {
	rv := identity(p)
	p.Log.Infof("getgid(%d)", rv)
	ret(p, rv)
}

func sysGetegid(p *guest.Process, args [6]uint64) {
	rv := identity(p)
	p.Log.Infof("getegid(%d)", rv)
	ret(p, rv)
}

func sysSetuid(p *guest.Process, args [6]uint64) {
	rv := identity(p)
	p.Log.Infof("setuid(%d)", rv)
	ret(p, rv)
}

func sysSetgid(p *guest.Process, args [6]uint64) {
	rv := identity(p)
	p.Log.Infof("setgid(%d)", rv)
	ret(p, rv)
}

func sysIssetugid(p *guest.Process, args [6]uint64) {
	rv := identity(p)
	p.Log.Infof("issetugid(%d)", rv)
	ret(p, rv)
}

func sysSetgroups(p *guest.Process, args [6]uint64) {
	rv := identity(p)
	p.Log.Infof("setgroups(%#x, %#x) = %d", args[0], args[1], rv)
	ret(p, rv)
}
