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
	"encoding/binary"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
	"github.com/guestkit/guestkit/pkg/engine/enginetest"
	"github.com/guestkit/guestkit/pkg/sandbox"
)

func newProc(t *testing.T, threaded bool, table *SyscallTable) (*Process, *enginetest.CPU) {
	t.Helper()
	cpu := enginetest.New()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if table == nil {
		table = &SyscallTable{OS: abi.Linux, Arch: abi.AMD64, Calls: map[uint64]Syscall{}}
	}
	p, err := NewProcess(Params{
		CPU:      cpu,
		Arch:     abi.AMD64,
		GuestOS:  abi.Linux,
		Platform: abi.Linux,
		Sandbox:  sandbox.New(t.TempDir(), nil),
		Table:    table,
		Log:      logrus.NewEntry(logger),
		Threaded: threaded,
	})
	if err != nil {
		t.Fatal(err)
	}
	p.InitMem(0x10000000, 0x7ffff0000000)
	return p, cpu
}

func TestDispatchInvokesHandler(t *testing.T) {
	var got [6]uint64
	table := &SyscallTable{
		OS:   abi.Linux,
		Arch: abi.AMD64,
		Calls: map[uint64]Syscall{
			7: {Name: "probe", Fn: func(p *Process, args [6]uint64) {
				got = args
				p.SetReturn(123)
			}},
		},
	}
	p, cpu := newProc(t, false, table)
	_ = p

	cpu.RegWrite(engine.AMD64RegRAX, 7)
	cpu.RegWrite(engine.AMD64RegRDI, 10)
	cpu.RegWrite(engine.AMD64RegR9, 60)
	cpu.Syscall()

	if got[0] != 10 || got[5] != 60 {
		t.Fatalf("handler args = %v", got)
	}
	if v, _ := cpu.RegRead(engine.AMD64RegRAX); v != 123 {
		t.Fatalf("return = %d, want 123", v)
	}
}

func TestReadPtrVector(t *testing.T) {
	p, cpu := newProc(t, false, nil)
	cpu.MemMap(0x1000, 0x1000)

	cpu.MemWrite(0x1100, append([]byte("one"), 0))
	cpu.MemWrite(0x1110, append([]byte("two"), 0))
	var w [8]byte
	binary.LittleEndian.PutUint64(w[:], 0x1100)
	cpu.MemWrite(0x1000, w[:])
	binary.LittleEndian.PutUint64(w[:], 0x1110)
	cpu.MemWrite(0x1008, w[:])
	binary.LittleEndian.PutUint64(w[:], 0)
	cpu.MemWrite(0x1010, w[:])

	vec, err := p.ReadPtrVector(0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 2 || vec[0] != "one" || vec[1] != "two" {
		t.Fatalf("vector = %v", vec)
	}
}

func TestSigactionRoundTrip(t *testing.T) {
	p, _ := newProc(t, false, nil)
	rec := [abi.SigactionWords]uint32{1, 2, 3, 4, 5}
	p.SetSigaction(17, rec)
	got := p.SigactionEntry(17)
	if got == nil || *got != rec {
		t.Fatalf("sigaction entry = %v", got)
	}
	if p.SigactionEntry(16) != nil {
		t.Fatal("unset signal has an entry")
	}
	if p.SigactionEntry(abi.NumSignals+1) != nil {
		t.Fatal("out-of-range signal has an entry")
	}
}

func TestSchedulerWakesOnPredicate(t *testing.T) {
	p, cpu := newProc(t, true, nil)
	cpu.MemMap(0x2000, 0x1000)
	p.WriteU32(0x2000, 1)

	s := p.Sched
	t1 := s.NewThread()
	s.Add(t1)
	t1.Block(func(p *Process, t *Thread) bool {
		v, err := p.ReadU32(0x2000)
		return err == nil && v == 1
	})

	s.wake(p)
	if t1.State != ThreadBlocked {
		t.Fatal("thread woke while predicate holds")
	}

	p.WriteU32(0x2000, 0)
	s.wake(p)
	if t1.State != ThreadReady {
		t.Fatal("thread still blocked after predicate cleared")
	}
}

func TestSchedulerRoundRobin(t *testing.T) {
	p, _ := newProc(t, true, nil)
	s := p.Sched
	a, b, c := s.NewThread(), s.NewThread(), s.NewThread()
	s.Add(a)
	s.Add(b)
	s.Add(c)

	s.cur = a
	if got := s.pick(); got != b {
		t.Fatalf("pick after a = tid %d, want %d", got.ID, b.ID)
	}
	s.cur = c
	if got := s.pick(); got != a {
		t.Fatalf("pick wraps to tid %d, want %d", got.ID, a.ID)
	}

	b.Block(func(*Process, *Thread) bool { return true })
	s.cur = a
	if got := s.pick(); got != c {
		t.Fatalf("pick skips blocked, got tid %d, want %d", got.ID, c.ID)
	}
}

func TestThreadContextSaveRestore(t *testing.T) {
	p, cpu := newProc(t, true, nil)
	th := p.Sched.NewThread()

	cpu.RegWrite(engine.AMD64RegRAX, 42)
	cpu.RegWrite(engine.AMD64RegRSP, 0x9000)
	if err := th.SaveContext(p); err != nil {
		t.Fatal(err)
	}

	cpu.RegWrite(engine.AMD64RegRAX, 0)
	cpu.RegWrite(engine.AMD64RegRSP, 0)
	if err := th.RestoreContext(p); err != nil {
		t.Fatal(err)
	}
	if v, _ := cpu.RegRead(engine.AMD64RegRAX); v != 42 {
		t.Fatalf("RAX after restore = %d", v)
	}
	if v, _ := cpu.RegRead(engine.AMD64RegRSP); v != 0x9000 {
		t.Fatalf("RSP after restore = %#x", v)
	}

	fork := th.ForkContext()
	fork[engine.AMD64RegRAX] = 7
	if th.Context[engine.AMD64RegRAX] != 42 {
		t.Fatal("fork context aliases the original")
	}
}
