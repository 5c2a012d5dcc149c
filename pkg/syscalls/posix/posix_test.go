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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
	"github.com/guestkit/guestkit/pkg/engine/enginetest"
	"github.com/guestkit/guestkit/pkg/fdtable"
	"github.com/guestkit/guestkit/pkg/guest"
	"github.com/guestkit/guestkit/pkg/sandbox"
)

// scratchBase is guest memory the tests use for buffers and strings.
const scratchBase = 0x1000

// testProc bundles a process over the in-memory engine.
type testProc struct {
	p      *guest.Process
	cpu    *enginetest.CPU
	stdout *bytes.Buffer
	rootfs string
}

func newTestProc(t *testing.T, arch abi.Arch, guestOS abi.OS, threaded bool) *testProc {
	t.Helper()
	cpu := enginetest.New()
	rootfs := t.TempDir()
	box := sandbox.New(rootfs, nil)

	stdout := &bytes.Buffer{}
	files := fdtable.NewStdioTable(strings.NewReader(""), stdout, io.Discard)

	table, err := guest.LookupTable(guestOS, arch)
	if err != nil {
		t.Fatalf("LookupTable(%v, %v): %v", guestOS, arch, err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, err := guest.NewProcess(guest.Params{
		CPU:      cpu,
		Arch:     arch,
		GuestOS:  guestOS,
		Platform: guestOS,
		Sandbox:  box,
		Files:    files,
		Table:    table,
		Log:      logrus.NewEntry(logger),
		Output:   guest.OutputDefault,
		Threaded: threaded,
	})
	if err != nil {
		t.Fatalf("NewProcess: %v", err)
	}
	p.InitMem(0x10000000, 0x7ffff0000000)

	if err := cpu.MemMap(scratchBase, 0x10000); err != nil {
		t.Fatalf("mapping scratch: %v", err)
	}
	return &testProc{p: p, cpu: cpu, stdout: stdout, rootfs: rootfs}
}

// writeString places a NUL-terminated string in scratch memory and
// returns its address.
func (tp *testProc) writeString(t *testing.T, off uint64, s string) uint64 {
	t.Helper()
	addr := scratchBase + off
	if err := tp.cpu.MemWrite(addr, append([]byte(s), 0)); err != nil {
		t.Fatalf("writing string: %v", err)
	}
	return addr
}

// syscall loads an amd64 syscall into the registers and fires the
// dispatcher, returning RAX.
func (tp *testProc) syscall(t *testing.T, num uint64, args ...uint64) int64 {
	t.Helper()
	tp.cpu.RegWrite(engine.AMD64RegRAX, num)
	regs := []engine.Reg{
		engine.AMD64RegRDI, engine.AMD64RegRSI, engine.AMD64RegRDX,
		engine.AMD64RegR10, engine.AMD64RegR8, engine.AMD64RegR9,
	}
	for i, a := range args {
		tp.cpu.RegWrite(regs[i], a)
	}
	tp.cpu.Syscall()
	rv, err := tp.cpu.RegRead(engine.AMD64RegRAX)
	if err != nil {
		t.Fatalf("reading return: %v", err)
	}
	return int64(rv)
}

// amd64 Linux numbers used by the scenarios.
const (
	nrRead      = 0
	nrWrite     = 1
	nrOpen      = 2
	nrClose     = 3
	nrMmap      = 9
	nrBrk       = 12
	nrPipe      = 22
	nrGetpid    = 39
	nrBind      = 49
	nrSocket    = 41
	nrClone     = 56
	nrExit      = 60
	nrUname     = 63
	nrTimeofday = 96
	nrFutex     = 202
	nrExitGroup = 231
)

func TestHelloWrite(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	buf := tp.writeString(t, 0, "hello\n")

	if rv := tp.syscall(t, nrWrite, 1, buf, 6); rv != 6 {
		t.Fatalf("write returned %d, want 6", rv)
	}
	if got := tp.stdout.String(); got != "hello\n" {
		t.Fatalf("stdout = %q, want %q", got, "hello\n")
	}
}

func TestSandboxRead(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	hostDir := filepath.Join(tp.rootfs, "etc")
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		t.Fatal(err)
	}
	content := "127.0.0.1 localhost\n"
	if err := os.WriteFile(filepath.Join(hostDir, "hosts"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	path := tp.writeString(t, 0x100, "/etc/hosts")
	fd := tp.syscall(t, nrOpen, path, 0, 0)
	if fd != 3 {
		t.Fatalf("open returned %d, want 3", fd)
	}

	buf := uint64(scratchBase + 0x200)
	n := tp.syscall(t, nrRead, uint64(fd), buf, 128)
	if n != int64(len(content)) {
		t.Fatalf("read returned %d, want %d", n, len(content))
	}
	data, err := tp.cpu.MemRead(buf, uint64(n))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Fatalf("read %q, want %q", data, content)
	}

	if rv := tp.syscall(t, nrClose, uint64(fd)); rv != 0 {
		t.Fatalf("close returned %d, want 0", rv)
	}
	if tp.p.Files.Get(3) != nil {
		t.Fatal("slot 3 still occupied after close")
	}
}

func TestMmapAnonymous(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	const (
		base = 0x7ffff0000000
		anon = 0x20
		priv = 0x2
	)
	rv := tp.syscall(t, nrMmap, 0, 0x3000, 3, anon|priv, ^uint64(0), 0)
	if uint64(rv) != base {
		t.Fatalf("mmap returned %#x, want %#x", rv, uint64(base))
	}
	if got := tp.p.Mem.MmapCursor(); got != base+0x3000 {
		t.Fatalf("cursor = %#x, want %#x", got, uint64(base+0x3000))
	}
	data, err := tp.cpu.MemRead(base, 0x3000)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want zero fill", i, b)
		}
	}
}

func TestBrkGrow(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	if rv := tp.syscall(t, nrBrk, 0); rv != 0x10000000 {
		t.Fatalf("brk(0) = %#x, want 0x10000000", rv)
	}
	if rv := tp.syscall(t, nrBrk, 0x10001234); rv != 0x10002000 {
		t.Fatalf("brk(0x10001234) = %#x, want 0x10002000", rv)
	}
	if rv := tp.syscall(t, nrBrk, 0); rv != 0x10002000 {
		t.Fatalf("brk(0) = %#x, want 0x10002000", rv)
	}
}

func TestPipeFIFO(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	fds := uint64(scratchBase + 0x300)
	if rv := tp.syscall(t, nrPipe, fds); rv != 0 {
		t.Fatalf("pipe returned %d, want 0", rv)
	}
	rfd, _ := tp.p.ReadU32(fds)
	wfd, _ := tp.p.ReadU32(fds + 4)
	if rfd == wfd {
		t.Fatalf("pipe returned identical fds %d", rfd)
	}

	msg := tp.writeString(t, 0x400, "ab")
	if rv := tp.syscall(t, nrWrite, uint64(wfd), msg, 2); rv != 2 {
		t.Fatalf("write to pipe returned %d", rv)
	}
	msg2 := tp.writeString(t, 0x420, "cd")
	if rv := tp.syscall(t, nrWrite, uint64(wfd), msg2, 2); rv != 2 {
		t.Fatalf("write to pipe returned %d", rv)
	}

	buf := uint64(scratchBase + 0x440)
	if rv := tp.syscall(t, nrRead, uint64(rfd), buf, 4); rv != 4 {
		t.Fatalf("read from pipe returned %d", rv)
	}
	data, _ := tp.cpu.MemRead(buf, 4)
	if string(data) != "abcd" {
		t.Fatalf("pipe read %q, want abcd", data)
	}
}

func TestGettimeofdayMonotonic(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	tv := uint64(scratchBase + 0x500)

	read := func() (uint32, uint32) {
		if rv := tp.syscall(t, nrTimeofday, tv, 0); rv != 0 {
			t.Fatalf("gettimeofday returned %d", rv)
		}
		sec, _ := tp.p.ReadU32(tv)
		usec, _ := tp.p.ReadU32(tv + 4)
		return sec, usec
	}
	s1, u1 := read()
	s2, u2 := read()
	if s2 < s1 || (s2 == s1 && u2 < u1) {
		t.Fatalf("time went backwards: %d.%06d then %d.%06d", s1, u1, s2, u2)
	}
}

func TestGetpidConstant(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	if rv := tp.syscall(t, nrGetpid); rv != 0x512 {
		t.Fatalf("getpid = %#x, want 0x512", rv)
	}
}

func TestUnameSynthetic(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	addr := uint64(scratchBase + 0x600)
	if rv := tp.syscall(t, nrUname, addr); rv != 0 {
		t.Fatalf("uname returned %d", rv)
	}
	sysname, err := tp.cpu.MemRead(addr, 8)
	if err != nil {
		t.Fatal(err)
	}
	if string(sysname) != "QilingOS" {
		t.Fatalf("sysname = %q, want QilingOS", sysname)
	}
	release, _ := tp.cpu.MemRead(addr+2*65, 12)
	if string(release) != "99.0-RELEASE" {
		t.Fatalf("release = %q", release)
	}
}

func TestExitGroupSetsCode(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	tp.syscall(t, nrExitGroup, 7)
	if !tp.cpu.Stopped() {
		t.Fatal("exit_group did not stop the engine")
	}
	if tp.p.ExitCode != 7 {
		t.Fatalf("exit code = %d, want 7", tp.p.ExitCode)
	}
}

func TestUnknownSyscallStops(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	tp.cpu.RegWrite(engine.AMD64RegRAX, 9999)
	tp.cpu.Syscall()
	if !tp.cpu.Stopped() {
		t.Fatal("unknown syscall did not stop the engine")
	}
}
