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
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

// DefaultSlice is the instruction budget a thread gets per scheduling
// round. One instruction counts as one microsecond of emulated time for
// timeout predicates.
const DefaultSlice = 30000

// Scheduler is the cooperative round-robin scheduler over guest threads.
// It owns no goroutines: Run drives the one CPU engine, and everything
// else happens in syscall hooks on the same goroutine.
type Scheduler struct {
	threads []*Thread
	cur     *Thread
	nextTID int

	// runningTime is emulated microseconds since Run started. Timeout
	// predicates compare against it.
	runningTime uint64

	Slice uint64
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{nextTID: 1, Slice: DefaultSlice}
}

// Current returns the thread now on the CPU, nil before Run starts.
func (s *Scheduler) Current() *Thread { return s.cur }

// RunningTime returns emulated microseconds since Run started.
func (s *Scheduler) RunningTime() uint64 { return s.runningTime }

// NewThread allocates a thread record with the next tid.
func (s *Scheduler) NewThread() *Thread {
	t := &Thread{
		ID:          s.nextTID,
		State:       ThreadReady,
		CurrentPath: "/",
		Budget:      DefaultSlice,
	}
	s.nextTID++
	return t
}

// Add registers t for scheduling.
func (s *Scheduler) Add(t *Thread) {
	s.threads = append(s.threads, t)
}

// Threads returns the live thread records.
func (s *Scheduler) Threads() []*Thread { return s.threads }

// wake re-evaluates blocked predicates and readies any thread whose
// predicate no longer holds.
func (s *Scheduler) wake(p *Process) {
	for _, t := range s.threads {
		if t.State != ThreadBlocked {
			continue
		}
		if t.blocked == nil || !t.blocked(p, t) {
			t.State = ThreadReady
			t.blocked = nil
		}
	}
}

// pick chooses the next runnable thread after the current one,
// round-robin. Returns nil if nothing is runnable.
func (s *Scheduler) pick() *Thread {
	if len(s.threads) == 0 {
		return nil
	}
	start := 0
	for i, t := range s.threads {
		if t == s.cur {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(s.threads); i++ {
		t := s.threads[(start+i)%len(s.threads)]
		if t.State == ThreadReady {
			return t
		}
	}
	return nil
}

// reap drops stopped threads, zeroing their clear-child-tid word first so
// joiners see the exit.
func (s *Scheduler) reap(p *Process) {
	live := s.threads[:0]
	for _, t := range s.threads {
		if t.State != ThreadStopped {
			live = append(live, t)
			continue
		}
		if t.ClearChildTID != 0 {
			p.WriteU32(t.ClearChildTID, 0)
		}
	}
	s.threads = live
}

// Run drives the process until every thread exits, exit_group is called,
// or a fatal error surfaces. entry seeds the main thread.
func (s *Scheduler) Run(p *Process, entry Entry) error {
	main := s.NewThread()
	main.CurrentPath = p.CurrentPath
	s.Add(main)

	if err := p.Regs.SetStackPointer(p.CPU, entry.SP); err != nil {
		return err
	}
	s.cur = main
	if err := main.SaveContext(p); err != nil {
		return err
	}
	s.setPC(p, main, entry.PC)

	idle := backoff.NewConstantBackOff(100 * time.Microsecond)
	for {
		s.wake(p)
		s.reap(p)
		if len(s.threads) == 0 {
			return p.fatalErr
		}

		next := s.pick()
		if next == nil {
			// Everything is blocked. Predicates depending on host
			// state (pipes, sockets) may flip without the guest
			// running, so retry rather than declare deadlock.
			time.Sleep(idle.NextBackOff())
			s.runningTime += s.Slice
			continue
		}
		idle.Reset()

		if err := s.runSlice(p, next); err != nil {
			return err
		}
		if p.fatalErr != nil {
			return p.fatalErr
		}
		if p.exec != nil {
			// execve rebuilds the process; the run loop re-enters with
			// a fresh scheduler.
			return nil
		}
		if p.exited && s.cur != nil && s.cur.Event == EventExitGroup {
			return nil
		}
		if p.exited && len(s.threads) <= 1 {
			return nil
		}
	}
}

// runSlice puts t on the CPU for one slice and files the outcome.
func (s *Scheduler) runSlice(p *Process, t *Thread) error {
	if s.cur != nil && s.cur != t && s.cur.State == ThreadRunning {
		s.cur.State = ThreadReady
	}
	s.cur = t
	t.Event = EventNone
	t.NewThread = nil

	if err := t.RestoreContext(p); err != nil {
		return err
	}
	if p.InstallTLS != nil && t.TLS != nil {
		if err := p.InstallTLS(p, t); err != nil {
			return err
		}
	}
	pc, err := p.Regs.PC(p.CPU)
	if err != nil {
		return err
	}

	slice := s.Slice
	if t.Budget != 0 {
		slice = t.Budget
	}
	t.State = ThreadRunning
	if err := p.CPU.Start(pc, slice); err != nil {
		return errors.Wrapf(err, "engine fault in tid %d at %#x", t.ID, pc)
	}
	s.runningTime += slice

	if err := t.SaveContext(p); err != nil {
		return err
	}

	switch t.Event {
	case EventExit:
		t.Stop(EventExit)
	case EventExitGroup:
		t.Stop(EventExitGroup)
		p.exited = true
		for _, other := range s.threads {
			if other != t {
				other.Stop(EventExitGroup)
			}
		}
	case EventCreateThread:
		if t.NewThread != nil {
			s.Add(t.NewThread)
		}
		if t.State == ThreadRunning {
			t.State = ThreadReady
		}
	default:
		if t.State == ThreadRunning {
			t.State = ThreadReady
		}
	}
	return nil
}

// setPC stores pc into t's saved context.
func (s *Scheduler) setPC(p *Process, t *Thread, pc uint64) {
	t.Context[p.Regs.PCReg()] = pc
}
