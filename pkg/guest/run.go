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
	"os"

	"github.com/pkg/errors"
)

// Run loads the binary and drives the emulation to completion. It
// returns the first engine fault or dispatch error; a clean guest exit
// returns nil with ExitCode set.
func (p *Process) Run() error {
	if p.Loader == nil {
		return errors.New("guest: no loader")
	}
	entry, err := p.Loader.Load(p)
	if err != nil {
		return errors.Wrapf(err, "loading %s", p.Path)
	}
	for {
		if p.Sched != nil {
			err = p.Sched.Run(p, entry)
		} else {
			err = p.runSingle(entry)
		}
		if err != nil {
			return err
		}
		if p.exec == nil {
			return nil
		}
		entry, err = p.applyExec()
		if err != nil {
			return err
		}
	}
}

// runSingle drives the process without a scheduler: one Start call per
// stop, resuming at the saved PC until the guest exits.
func (p *Process) runSingle(entry Entry) error {
	if err := p.Regs.SetStackPointer(p.CPU, entry.SP); err != nil {
		return err
	}
	pc := entry.PC
	for {
		if err := p.CPU.Start(pc, 0); err != nil {
			return errors.Wrapf(err, "engine fault at %#x", pc)
		}
		if p.fatalErr != nil {
			return p.fatalErr
		}
		if p.exited || p.exec != nil {
			return nil
		}
		next, err := p.Regs.PC(p.CPU)
		if err != nil {
			return err
		}
		if next == pc {
			// The engine stopped without making progress and no
			// handler asked for it; treat as a hang.
			return errors.Errorf("emulation stalled at %#x", pc)
		}
		pc = next
	}
}

// applyExec tears the process down to what execve keeps and re-enters the
// loader.
func (p *Process) applyExec() (Entry, error) {
	req := p.exec
	p.exec = nil
	p.exited = false

	p.Log.Infof("execve(%s)", req.guestPath)

	p.Argv = req.argv
	p.Env = req.env
	p.Path = req.guestPath
	p.HostPath = req.hostPath
	p.Sandbox.SetExe(req.guestPath)
	// The loader rebuilds the address space (InitMem) and stack; only
	// the scheduler needs an explicit reset here.
	if p.Sched != nil {
		p.Sched = NewScheduler()
	}

	entry, err := p.Loader.Load(p)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "execve reload of %s", req.guestPath)
	}
	return entry, nil
}

// HostExitIfChild terminates the host process when running as a forked
// child, the way the original emulator's children do.
func (p *Process) HostExitIfChild() {
	if p.ChildProcess {
		os.Exit(0)
	}
}
