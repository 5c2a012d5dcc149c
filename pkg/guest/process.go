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

// Package guest holds the emulated process: its address space, descriptor
// table, sandbox view, thread scheduler and sigaction table, plus the
// syscall dispatch loop that ties them to the CPU engine.
//
// Everything in this package is single-runner: exactly one goroutine
// drives the engine, and every mutation of process state happens on it,
// either directly or from an engine hook. Nothing here takes a lock, and
// nothing here may be touched from another goroutine.
package guest

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
	"github.com/guestkit/guestkit/pkg/fdtable"
	"github.com/guestkit/guestkit/pkg/memspace"
	"github.com/guestkit/guestkit/pkg/regabi"
	"github.com/guestkit/guestkit/pkg/sandbox"
)

// OutputMode selects how chatty the emulator is.
type OutputMode int

const (
	// OutputOff silences syscall tracing.
	OutputOff OutputMode = iota
	// OutputDefault traces each syscall in name(args) = ret form.
	OutputDefault
	// OutputDebug adds per-handler detail lines.
	OutputDebug
	// OutputDump adds a basic-block trace; no register or memory
	// contents are printed.
	OutputDump
	// OutputDisasm adds a per-instruction trace.
	OutputDisasm
)

// String implements fmt.Stringer.
func (m OutputMode) String() string {
	switch m {
	case OutputOff:
		return "off"
	case OutputDefault:
		return "default"
	case OutputDebug:
		return "debug"
	case OutputDump:
		return "dump"
	case OutputDisasm:
		return "disasm"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

// Entry is what the loader hands back: initial program counter and stack
// pointer.
type Entry struct {
	PC uint64
	SP uint64
}

// Loader prepares the address space and initial stack for a binary. The
// concrete loaders (ELF, Mach-O, PE) live outside this layer.
type Loader interface {
	Load(p *Process) (Entry, error)
}

// execRequest carries execve state between the handler and the run loop.
type execRequest struct {
	hostPath  string
	guestPath string
	argv      []string
	env       []string
}

// Params configures a new Process.
type Params struct {
	CPU      engine.CPU
	Arch     abi.Arch
	GuestOS  abi.OS
	Platform abi.OS // host flag encoding; copied as given, so unset means Linux
	Root     bool
	Sandbox  *sandbox.Sandbox
	Files    *fdtable.Table
	Table    *SyscallTable
	Loader   Loader
	Log      *logrus.Entry
	Output   OutputMode
	Threaded bool
	Argv     []string
	Env      []string
}

// Process is the root aggregate for one emulated program.
type Process struct {
	CPU     engine.CPU
	Regs    regabi.ABI
	Mem     *memspace.Space
	Files   *fdtable.Table
	Sandbox *sandbox.Sandbox
	Sched   *Scheduler // nil in single-thread mode
	Table   *SyscallTable
	Loader  Loader

	Arch     abi.Arch
	GuestOS  abi.OS
	Platform abi.OS
	Root     bool

	// CurrentPath is the working directory when no scheduler exists;
	// threaded processes keep it per thread.
	CurrentPath string

	Argv     []string
	Env      []string
	Path     string // guest path of the loaded binary
	HostPath string // host path of the loaded binary
	ExitCode int

	// Sigaction is the per-signal 5-word record table; nil entries are
	// unset.
	Sigaction [abi.NumSignals]*[abi.SigactionWords]uint32

	// Port is the port claimed by bind, 0 if unbound.
	Port uint16

	// ChildProcess marks a forked host child; exit handlers terminate
	// the host process instead of just the emulation.
	ChildProcess bool

	// Respawn starts a fresh host process emulating the same binary and
	// returns its pid. Installed by the embedding layer; nil means fork
	// is unavailable.
	Respawn func() (int, error)

	// InstallTLS applies a thread's TLS blob when it is scheduled in.
	// Installed by the loader for architectures that need it.
	InstallTLS func(p *Process, t *Thread) error

	Log     *logrus.Entry
	LogPath string
	Output  OutputMode

	exited   bool
	fatalErr error
	exec     *execRequest
}

// NewProcess wires a Process from params. The memory space is created by
// InitMem once the loader knows the layout.
func NewProcess(params Params) (*Process, error) {
	if params.CPU == nil {
		return nil, errors.New("guest: no CPU engine")
	}
	regs, err := regabi.For(params.Arch, params.GuestOS)
	if err != nil {
		return nil, err
	}
	log := params.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Process{
		CPU:         params.CPU,
		Regs:        regs,
		Files:       params.Files,
		Sandbox:     params.Sandbox,
		Table:       params.Table,
		Loader:      params.Loader,
		Arch:        params.Arch,
		GuestOS:     params.GuestOS,
		Platform:    params.Platform,
		Root:        params.Root,
		CurrentPath: "/",
		Argv:        params.Argv,
		Env:         params.Env,
		Log:         log.WithFields(logrus.Fields{"os": params.GuestOS.String(), "arch": params.Arch.String()}),
		Output:      params.Output,
	}
	if p.Files == nil {
		p.Files = fdtable.NewTable()
	}
	if params.Threaded {
		p.Sched = NewScheduler()
	}
	p.CPU.HookSyscall(p.dispatch)
	return p, nil
}

// InitMem creates the address space bookkeeping. Called by the loader.
func (p *Process) InitMem(brkBase, mmapBase uint64) {
	p.Mem = memspace.New(p.CPU, brkBase, mmapBase)
}

// Cwd returns the working directory of the calling context: the current
// thread's when scheduled, the process's otherwise.
func (p *Process) Cwd() string {
	if p.Sched != nil && p.Sched.Current() != nil {
		return p.Sched.Current().CurrentPath
	}
	return p.CurrentPath
}

// SetCwd updates the working directory of the calling context.
func (p *Process) SetCwd(path string) {
	if p.Sched != nil && p.Sched.Current() != nil {
		p.Sched.Current().CurrentPath = path
		return
	}
	p.CurrentPath = path
}

// SetReturn writes the syscall return value through the register ABI.
func (p *Process) SetReturn(value int64) {
	if err := p.Regs.SetReturn(p.CPU, value); err != nil {
		p.Fatal(errors.Wrap(err, "writing syscall return"))
	}
}

// Exit stops the emulation and records code as the process exit status.
func (p *Process) Exit(code int) {
	p.ExitCode = code
	p.exited = true
	p.CPU.Stop()
}

// StopEngine halts the current Start call without ending the process.
// Used by handlers that hand control back to the scheduler.
func (p *Process) StopEngine() {
	p.CPU.Stop()
}

// Fatal records err and stops the engine; Run returns the error.
func (p *Process) Fatal(err error) {
	if p.fatalErr == nil {
		p.fatalErr = err
	}
	p.CPU.Stop()
}

// RequestExec records an execve and stops the engine; the run loop
// rebuilds the process around the new image.
func (p *Process) RequestExec(hostPath, guestPath string, argv, env []string) {
	p.exec = &execRequest{hostPath: hostPath, guestPath: guestPath, argv: argv, env: env}
	p.CPU.Stop()
}

// SigactionEntry returns the stored record for signum, or nil.
func (p *Process) SigactionEntry(signum uint64) *[abi.SigactionWords]uint32 {
	if signum >= abi.NumSignals {
		return nil
	}
	return p.Sigaction[signum]
}

// SetSigaction stores a record for signum.
func (p *Process) SetSigaction(signum uint64, rec [abi.SigactionWords]uint32) {
	if signum < abi.NumSignals {
		p.Sigaction[signum] = &rec
	}
}
