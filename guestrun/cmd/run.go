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

// Package cmd implements the guestrun subcommands.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/guestkit/guestkit/guestrun/config"
	"github.com/guestkit/guestkit/pkg/engine"
	"github.com/guestkit/guestkit/pkg/engine/ucengine"
	"github.com/guestkit/guestkit/pkg/fdtable"
	"github.com/guestkit/guestkit/pkg/guest"
	"github.com/guestkit/guestkit/pkg/loader"
	"github.com/guestkit/guestkit/pkg/sandbox"

	// Handler tables register themselves for LookupTable.
	_ "github.com/guestkit/guestkit/pkg/syscalls/posix"
)

// traceLimit caps disasm-mode trace output.
var traceLimit = rate.NewLimiter(rate.Limit(2000), 2000)

// Run emulates a guest binary inside the sandbox.
type Run struct {
	conf *config.Config
}

// NewRun returns the run command bound to conf.
func NewRun(conf *config.Config) *Run { return &Run{conf: conf} }

// Name implements subcommands.Command.
func (*Run) Name() string { return "run" }

// Synopsis implements subcommands.Command.
func (*Run) Synopsis() string { return "run a guest binary" }

// Usage implements subcommands.Command.
func (*Run) Usage() string {
	return `run <guest-path> [guest args...] - emulate a binary from the rootfs
`
}

// SetFlags implements subcommands.Command.
func (*Run) SetFlags(fs *flag.FlagSet) {}

// Execute implements subcommands.Command.
func (r *Run) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, r.Usage())
		return subcommands.ExitUsageError
	}
	guestPath := fs.Arg(0)
	guestArgs := fs.Args()

	proc, err := r.build(guestPath, guestArgs)
	if err != nil {
		logrus.Errorf("setting up guest: %v", err)
		return subcommands.ExitFailure
	}
	if err := runLocked(r.conf, proc); err != nil {
		proc.Log.Errorf("emulation failed: %v", err)
		return subcommands.ExitFailure
	}
	os.Exit(proc.ExitCode)
	return subcommands.ExitSuccess
}

// build assembles the engine, sandbox, fd table and process from the
// config.
func (r *Run) build(guestPath string, guestArgs []string) (*guest.Process, error) {
	conf := r.conf
	arch, err := conf.GuestArch()
	if err != nil {
		return nil, err
	}
	guestOS, err := conf.GuestOS()
	if err != nil {
		return nil, err
	}
	platform, err := conf.PlatformOS()
	if err != nil {
		return nil, err
	}
	output, err := conf.OutputMode()
	if err != nil {
		return nil, err
	}
	mounts, err := conf.MountList()
	if err != nil {
		return nil, err
	}

	cpu, err := ucengine.New(arch)
	if err != nil {
		return nil, err
	}

	box := sandbox.New(conf.Rootfs, mounts)
	box.SetExe(box.ToRelative("/", guestPath))

	table, err := guest.LookupTable(guestOS, arch)
	if err != nil {
		return nil, err
	}

	files := fdtable.NewStdioTable(os.Stdin, os.Stdout, os.Stderr)

	proc, err := guest.NewProcess(guest.Params{
		CPU:      cpu,
		Arch:     arch,
		GuestOS:  guestOS,
		Platform: platform,
		Root:     conf.Root,
		Sandbox:  box,
		Files:    files,
		Table:    table,
		Loader:   &loader.Flat{},
		Log:      logrus.NewEntry(logrus.StandardLogger()),
		Output:   output,
		Threaded: conf.Threaded,
		Argv:     guestArgs,
		Env:      os.Environ(),
	})
	if err != nil {
		return nil, err
	}
	proc.Path = box.ToRelative("/", guestPath)
	hostPath, err := box.ToReal("/", guestPath)
	if err != nil {
		return nil, err
	}
	proc.HostPath = hostPath
	proc.LogPath = conf.LogFile
	proc.Respawn = respawnFunc()
	proc.ChildProcess = os.Getenv("GUESTKIT_CHILD") != ""

	if output >= guest.OutputDump {
		installTrace(proc, cpu)
	}
	return proc, nil
}

// runLocked wraps Run with the library-cache lock when enabled.
func runLocked(conf *config.Config, proc *guest.Process) error {
	if conf.LibCache {
		lock := flock.New(filepath.Join(conf.Rootfs, ".libcache.lock"))
		if err := lock.Lock(); err == nil {
			defer lock.Unlock()
		}
	}
	return proc.Run()
}

// installTrace wires the dump/disasm hooks: rate-limited instruction
// trace with raw bytes, block boundaries at debug level.
func installTrace(p *guest.Process, cpu engine.CPU) {
	cpu.HookBlock(func(addr uint64, size uint32) {
		p.Log.Debugf(">>> Tracing basic block at %#x", addr)
	})
	if p.Output == guest.OutputDisasm {
		cpu.HookCode(func(addr uint64, size uint32) {
			if !traceLimit.Allow() {
				return
			}
			raw, err := cpu.MemRead(addr, uint64(size))
			if err != nil {
				return
			}
			p.Log.Debugf(">>> %#x\t% x", addr, raw)
		})
	}
}

// respawnFunc re-executes this binary with identical arguments to stand
// in for fork(2): the child emulates the same image from scratch.
func respawnFunc() func() (int, error) {
	return func() (int, error) {
		exe, err := os.Executable()
		if err != nil {
			return -1, err
		}
		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = append(os.Environ(), "GUESTKIT_CHILD=1")
		if err := cmd.Start(); err != nil {
			return -1, err
		}
		return cmd.Process.Pid, nil
	}
}
