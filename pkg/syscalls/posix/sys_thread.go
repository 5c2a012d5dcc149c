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

// sysClone implements clone(2). Without CLONE_VM it forks a host
// process; with it, a new guest thread is built from the caller's
// context and handed to the scheduler.
func sysClone(p *guest.Process, args [6]uint64) {
	flags, childStack, ptid, newtls, ctid := args[0], args[1], args[2], args[3], args[4]

	logClone := func(rv int64) {
		p.Log.Infof("clone(new_stack = %#x, flags = %#x, tls = %#x, ptidptr = %#x, ctidptr = %#x) = %d",
			childStack, flags, newtls, ptid, ctid, rv)
	}

	if flags&abi.CloneVM == 0 {
		// Separate address space: a real host child.
		rv := int64(-1)
		if p.Respawn != nil {
			if pid, err := p.Respawn(); err == nil {
				rv = int64(pid)
			}
		}
		logClone(rv)
		ret(p, rv)
		if p.Sched != nil {
			p.StopEngine()
		}
		return
	}

	if p.Sched == nil {
		// A threaded clone without a scheduler has nowhere to run.
		logClone(-1)
		ret(p, -1)
		return
	}

	parent := p.Sched.Current()
	child := p.Sched.NewThread()
	child.CurrentPath = parent.CurrentPath
	child.Budget = parent.Budget
	// Seed from the parent's last snapshot; SaveContext below overlays
	// the live registers.
	child.Context = parent.ForkContext()

	if flags&abi.CloneSettls != 0 {
		if p.Arch == abi.X86 {
			// x86 passes a 12-byte user_desc; everyone else a raw
			// pointer.
			if blob, err := p.CPU.MemRead(newtls, 12); err == nil {
				child.TLS = blob
			}
		} else {
			child.TLS = newtls
		}
	}
	if flags&abi.CloneChildCleartid != 0 {
		child.ClearChildTID = ctid
	}

	// The child wakes with return value 0 on its own stack: write those
	// into the live registers, snapshot them as the child's context,
	// then restore the parent's view.
	parentSP, err := p.Regs.StackPointer(p.CPU)
	if err != nil {
		ret(p, -1)
		return
	}
	p.SetReturn(0)
	p.Regs.SetStackPointer(p.CPU, childStack)
	if err := child.SaveContext(p); err != nil {
		p.Regs.SetStackPointer(p.CPU, parentSP)
		ret(p, -1)
		return
	}
	if flags&abi.CloneParentSettid != 0 && ptid != 0 {
		p.WriteU32(ptid, uint32(child.ID))
	}

	p.Regs.SetStackPointer(p.CPU, parentSP)
	logClone(int64(child.ID))
	ret(p, int64(child.ID))

	parent.Event = guest.EventCreateThread
	parent.NewThread = child
	p.StopEngine()
}

// sysFutex implements the WAIT and WAKE operations. WAIT parks the
// calling thread on a predicate over the futex word; WAKE is a no-op
// because waiters re-check on the next scheduling round.
func sysFutex(p *guest.Process, args [6]uint64) {
	uaddr, op, val := args[0], args[1], args[2]

	switch op &^ abi.FutexPrivateFlag {
	case abi.FutexWait:
		if p.Sched != nil {
			cur := p.Sched.Current()
			watch, want := uaddr, uint32(val)
			cur.Block(func(p *guest.Process, t *guest.Thread) bool {
				now, err := p.ReadU32(watch)
				if err != nil {
					return false
				}
				return now == want
			})
			p.StopEngine()
		}
		p.Log.Infof("futex(%#x, %d, %d, %#x) = 0", uaddr, op, val, args[3])
		ret(p, 0)
	case abi.FutexWake:
		p.Log.Infof("futex(%#x, %d, %d) = 0", uaddr, op, val)
		ret(p, 0)
	default:
		// Unsupported futex ops tear the thread down; no guest the
		// layer targets reaches them.
		p.Log.Infof("futex(%#x, %d, %d) = ?", uaddr, op, val)
		if p.Sched != nil {
			if t := p.Sched.Current(); t != nil {
				t.Stop(guest.EventExitGroup)
			}
		}
		p.StopEngine()
		ret(p, 0)
	}
}
