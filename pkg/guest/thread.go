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

package guest

import (
	"github.com/mohae/deepcopy"

	"github.com/guestkit/guestkit/pkg/engine"
)

// ThreadState is a thread's scheduling state.
type ThreadState int

const (
	// ThreadReady means runnable.
	ThreadReady ThreadState = iota
	// ThreadRunning means currently on the CPU.
	ThreadRunning
	// ThreadBlocked means waiting on a predicate.
	ThreadBlocked
	// ThreadStopped means terminated.
	ThreadStopped
)

// Event is what a thread's CPU slice reports back to the scheduler.
type Event int

const (
	// EventNone: the slice expired normally.
	EventNone Event = iota
	// EventExit: the thread called exit.
	EventExit
	// EventExitGroup: the thread called exit_group; the whole process
	// is done.
	EventExitGroup
	// EventCreateThread: the thread cloned; NewThread carries the
	// child.
	EventCreateThread
)

// Predicate reports whether a blocked thread must remain blocked. It is
// re-evaluated on every scheduling decision.
type Predicate func(p *Process, t *Thread) bool

// Thread is one guest thread: a register snapshot plus the per-thread
// POSIX state clone manipulates.
type Thread struct {
	ID int

	// Context is the saved register file, restored when the thread is
	// scheduled in.
	Context map[engine.Reg]uint64

	State ThreadState

	// blocked holds the wake-up condition while State is ThreadBlocked.
	blocked Predicate

	// Event and NewThread describe why the last slice stopped.
	Event     Event
	NewThread *Thread

	// CurrentPath is this thread's working directory.
	CurrentPath string

	// ClearChildTID is the address zeroed on thread exit
	// (set_tid_address / CLONE_CHILD_CLEARTID).
	ClearChildTID uint64

	// TLS is the thread-local-storage blob: a raw pointer value, or the
	// 12-byte descriptor x86 guests pass.
	TLS interface{}

	// Robust-list head as registered by set_robust_list.
	RobustListHead uint64
	RobustListLen  uint64

	// Budget is the instruction count of each of this thread's slices;
	// zero means the scheduler's Slice. It is not decremented.
	Budget uint64
}

// Block marks t blocked on pred.
func (t *Thread) Block(pred Predicate) {
	t.State = ThreadBlocked
	t.blocked = pred
}

// Stop marks t terminated with the given event.
func (t *Thread) Stop(ev Event) {
	t.State = ThreadStopped
	t.Event = ev
}

// SaveContext snapshots the register file from the CPU.
func (t *Thread) SaveContext(p *Process) error {
	if t.Context == nil {
		t.Context = make(map[engine.Reg]uint64)
	}
	for _, r := range p.Regs.ContextRegs() {
		v, err := p.CPU.RegRead(r)
		if err != nil {
			return err
		}
		t.Context[r] = v
	}
	return nil
}

// RestoreContext writes the snapshot back into the CPU.
func (t *Thread) RestoreContext(p *Process) error {
	for r, v := range t.Context {
		if err := p.CPU.RegWrite(r, v); err != nil {
			return err
		}
	}
	return nil
}

// ForkContext returns a deep copy of the saved context, for seeding a
// cloned thread from its parent.
func (t *Thread) ForkContext() map[engine.Reg]uint64 {
	if t.Context == nil {
		return make(map[engine.Reg]uint64)
	}
	return deepcopy.Copy(t.Context).(map[engine.Reg]uint64)
}
