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

// Package regabi abstracts the per-architecture syscall calling
// convention: where the number lives, where the six arguments live, and
// how the return value is written back.
package regabi

import (
	"fmt"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
)

// ABI reads and writes the syscall convention of one architecture on a
// CPU. Implementations hold no state of their own; all state lives in the
// engine's register file and memory.
type ABI interface {
	// Arch returns the architecture this ABI binds.
	Arch() abi.Arch

	// SyscallNo returns the syscall number register.
	SyscallNo(cpu engine.CPU) (uint64, error)

	// Arg returns syscall argument i, for i in 0..5. On architectures
	// that pass trailing arguments on the stack this reads guest
	// memory.
	Arg(cpu engine.CPU, i int) (uint64, error)

	// SetReturn writes the syscall return value, truncated to the
	// native register width. On MIPS it additionally maintains the A3
	// error flag.
	SetReturn(cpu engine.CPU, value int64) error

	// StackPointer returns the current stack pointer.
	StackPointer(cpu engine.CPU) (uint64, error)

	// SetStackPointer moves the stack pointer.
	SetStackPointer(cpu engine.CPU, sp uint64) error

	// PC returns the current program counter.
	PC(cpu engine.CPU) (uint64, error)

	// PCReg identifies the program counter register, for patching a
	// saved context.
	PCReg() engine.Reg

	// ContextRegs lists every register that must be saved and restored
	// when the scheduler switches threads.
	ContextRegs() []engine.Reg
}

// For returns the ABI binding for arch under guestOS. guestOS matters
// only on x86, where macOS passes arguments on the stack.
func For(arch abi.Arch, guestOS abi.OS) (ABI, error) {
	switch arch {
	case abi.ARM:
		return armABI{}, nil
	case abi.ARM64:
		return arm64ABI{}, nil
	case abi.X86:
		if guestOS == abi.MacOS {
			return x86DarwinABI{}, nil
		}
		return x86ABI{}, nil
	case abi.AMD64:
		return amd64ABI{}, nil
	case abi.MIPS32EL:
		return mipsABI{}, nil
	default:
		return nil, fmt.Errorf("no syscall ABI for %v", arch)
	}
}

func regArg(cpu engine.CPU, regs []engine.Reg, i int) (uint64, error) {
	if i < 0 || i >= len(regs) {
		return 0, fmt.Errorf("syscall argument %d out of range", i)
	}
	return cpu.RegRead(regs[i])
}
