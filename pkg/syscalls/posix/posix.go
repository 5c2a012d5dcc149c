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

// Package posix implements the POSIX-family syscall handlers and the
// per-(OS, architecture) number tables that dispatch to them.
//
// Every handler follows the same contract: recover locally, write the
// return value (or -1) through the register ABI, log the call in
// name(args) = ret form, and never unwind into the dispatcher. Only an
// unknown syscall or an engine fault stops the emulation.
package posix

import (
	"github.com/guestkit/guestkit/pkg/engine"
	"github.com/guestkit/guestkit/pkg/guest"
)

// mipsSecondReturnReg is V1, the second return register on MIPS o32.
// pipe(2) hands the write end back in it.
const mipsSecondReturnReg = engine.MIPSRegV1

// ret writes v as the syscall return value.
func ret(p *guest.Process, v int64) {
	p.SetReturn(v)
}

// fdArg narrows a register value to a descriptor index.
func fdArg(v uint64) int {
	return int(int32(uint32(v)))
}

// found logs the operator-facing found/not-found distinction for path
// calls.
func found(p *guest.Process, ok bool, rel string) {
	if ok {
		p.Log.Debugf("|--->>> Found: %s", rel)
	} else {
		p.Log.Debugf("|---!!! File Not Found: %s", rel)
	}
}

// resolve maps a guest path argument through the sandbox, returning the
// host path and the normalized guest view.
func resolve(p *guest.Process, addr uint64) (host, rel string, err error) {
	path, err := p.ReadString(addr)
	if err != nil {
		return "", "", err
	}
	rel = p.Sandbox.ToRelative(p.Cwd(), path)
	host, err = p.Sandbox.ToReal(p.Cwd(), path)
	return host, rel, err
}
