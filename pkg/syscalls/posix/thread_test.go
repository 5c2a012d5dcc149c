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
	"testing"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
	"github.com/guestkit/guestkit/pkg/engine/enginetest"
	"github.com/guestkit/guestkit/pkg/guest"
)

// TestCloneFutexRendezvous drives the full §"clone+futex" flow through
// the scheduler: the parent clones a CLONE_VM thread, blocks on a futex
// word, and the child releases it.
//
// The scripted engine stands in for guest code. Program counters select
// the basic block to "execute"; each block loads syscall registers,
// advances the PC past the trap, and fires the syscall hook, exactly as
// a real CPU would.
func TestCloneFutexRendezvous(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, true)
	cpu, p := tp.cpu, tp.p

	const (
		pcStart     = 0x100 // parent: clone
		pcAfterSys  = 0x104 // both: returned from clone
		pcParentRun = 0x108 // parent: returned from futex wait
		pcChildRun  = 0x10c // child: after wake, exits
		pcDone      = 0x110

		futexWord  = scratchBase + 0x800
		childStack = scratchBase + 0xf000
	)

	// The futex word starts at 1; the parent waits for it to change.
	if err := p.WriteU32(futexWord, 1); err != nil {
		t.Fatal(err)
	}

	var parentFutexRet = int64(-2)
	var childSawZero bool

	setArgs := func(c *enginetest.CPU, num uint64, args ...uint64) {
		c.RegWrite(engine.AMD64RegRAX, num)
		regs := []engine.Reg{
			engine.AMD64RegRDI, engine.AMD64RegRSI, engine.AMD64RegRDX,
			engine.AMD64RegR10, engine.AMD64RegR8, engine.AMD64RegR9,
		}
		for i, a := range args {
			c.RegWrite(regs[i], a)
		}
	}

	cpu.Run = func(c *enginetest.CPU, pc, count uint64) error {
		for !c.Stopped() {
			switch pc {
			case pcStart:
				setArgs(c, nrClone, abi.CloneVM, childStack)
				c.RegWrite(engine.AMD64RegRIP, pcAfterSys)
				c.Syscall()
				pc = pcAfterSys
			case pcAfterSys:
				rax, _ := c.RegRead(engine.AMD64RegRAX)
				if rax == 0 {
					// Child: release the futex and wake.
					childSawZero = true
					p.WriteU32(futexWord, 0)
					setArgs(c, nrFutex, futexWord, abi.FutexWake, 1)
					c.RegWrite(engine.AMD64RegRIP, pcChildRun)
					c.Syscall()
					pc = pcChildRun
				} else {
					// Parent: wait for the word to leave 1.
					setArgs(c, nrFutex, futexWord, abi.FutexWait, 1)
					c.RegWrite(engine.AMD64RegRIP, pcParentRun)
					c.Syscall()
					pc = pcParentRun
				}
			case pcParentRun:
				rax, _ := c.RegRead(engine.AMD64RegRAX)
				parentFutexRet = int64(rax)
				setArgs(c, nrExit)
				c.RegWrite(engine.AMD64RegRIP, pcDone)
				c.Syscall()
				pc = pcDone
			case pcChildRun:
				setArgs(c, nrExit)
				c.RegWrite(engine.AMD64RegRIP, pcDone)
				c.Syscall()
				pc = pcDone
			default:
				return nil
			}
		}
		return nil
	}

	if err := p.Sched.Run(p, guest.Entry{PC: pcStart, SP: scratchBase + 0xe000}); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}
	if !childSawZero {
		t.Fatal("child never observed clone() == 0")
	}
	if parentFutexRet != 0 {
		t.Fatalf("parent futex(WAIT) returned %d, want 0", parentFutexRet)
	}
}

// TestCloneRecordsChild checks the bookkeeping clone leaves behind:
// distinct tid, child stack, inherited working directory.
func TestCloneRecordsChild(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, true)
	cpu, p := tp.cpu, tp.p

	const childStack = scratchBase + 0xf000
	done := false
	cpu.Run = func(c *enginetest.CPU, pc, count uint64) error {
		if done {
			return nil
		}
		done = true
		c.RegWrite(engine.AMD64RegRAX, nrClone)
		c.RegWrite(engine.AMD64RegRDI, abi.CloneVM|abi.CloneChildCleartid)
		c.RegWrite(engine.AMD64RegRSI, childStack)
		c.RegWrite(engine.AMD64RegR8, scratchBase+0x20) // ctid
		c.RegWrite(engine.AMD64RegRIP, 0x200)
		c.Syscall()
		return nil
	}

	// One slice: the clone happens, then the run loop is starved by
	// making every later slice a no-op that exits the threads.
	exited := false
	origRun := cpu.Run
	cpu.Run = func(c *enginetest.CPU, pc, count uint64) error {
		if !done {
			return origRun(c, pc, count)
		}
		if !exited {
			// Verify state mid-flight, then shut both threads down.
			threads := p.Sched.Threads()
			if len(threads) != 2 {
				t.Fatalf("thread count = %d, want 2", len(threads))
			}
			child := threads[1]
			if child.ID == threads[0].ID {
				t.Fatal("child shares parent tid")
			}
			if child.Context[engine.AMD64RegRSP] != childStack {
				t.Fatalf("child SP = %#x, want %#x", child.Context[engine.AMD64RegRSP], uint64(childStack))
			}
			if child.Context[engine.AMD64RegRAX] != 0 {
				t.Fatalf("child return = %d, want 0", child.Context[engine.AMD64RegRAX])
			}
			if child.ClearChildTID != scratchBase+0x20 {
				t.Fatalf("clear_child_tid = %#x", child.ClearChildTID)
			}
			if child.CurrentPath != threads[0].CurrentPath {
				t.Fatal("child did not inherit working directory")
			}
			exited = true
		}
		c.RegWrite(engine.AMD64RegRAX, nrExit)
		c.Syscall()
		return nil
	}

	if err := p.Sched.Run(p, guest.Entry{PC: 0x100, SP: scratchBase + 0xe000}); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}
}
