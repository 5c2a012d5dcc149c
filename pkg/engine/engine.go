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

// Package engine defines the CPU emulation surface the rest of the system
// is written against. A CPU steps exactly one guest thread at a time; all
// state mutation above it happens on the goroutine that called Start.
package engine

// Reg identifies a guest register. The set is the union of the registers
// the syscall layer touches across the supported architectures; engine
// adapters map them to their native identifiers.
type Reg int

const (
	RegInvalid Reg = iota

	// ARM.
	ARMRegR0
	ARMRegR1
	ARMRegR2
	ARMRegR3
	ARMRegR4
	ARMRegR5
	ARMRegR6
	ARMRegR7
	ARMRegSP
	ARMRegLR
	ARMRegPC
	ARMRegCPSR

	// ARM64.
	ARM64RegX0
	ARM64RegX1
	ARM64RegX2
	ARM64RegX3
	ARM64RegX4
	ARM64RegX5
	ARM64RegX6
	ARM64RegX7
	ARM64RegX8
	ARM64RegSP
	ARM64RegLR
	ARM64RegPC

	// x86.
	X86RegEAX
	X86RegEBX
	X86RegECX
	X86RegEDX
	X86RegESI
	X86RegEDI
	X86RegEBP
	X86RegESP
	X86RegEIP

	// x86-64.
	AMD64RegRAX
	AMD64RegRBX
	AMD64RegRCX
	AMD64RegRDX
	AMD64RegRSI
	AMD64RegRDI
	AMD64RegRBP
	AMD64RegRSP
	AMD64RegR8
	AMD64RegR9
	AMD64RegR10
	AMD64RegR11
	AMD64RegR12
	AMD64RegR13
	AMD64RegR14
	AMD64RegR15
	AMD64RegRIP

	// MIPS32 (o32, little endian).
	MIPSRegV0
	MIPSRegV1
	MIPSRegA0
	MIPSRegA1
	MIPSRegA2
	MIPSRegA3
	MIPSRegT9
	MIPSRegSP
	MIPSRegRA
	MIPSRegPC

	regMax
)

// NumRegs is the number of defined register identifiers.
const NumRegs = int(regMax)

// HookFn is invoked for code and block hooks with the address and size of
// the instruction or block.
type HookFn func(addr uint64, size uint32)

// CPU is the instruction emulator consumed by the syscall layer.
//
// Implementations are not required to be safe for concurrent use. Start
// blocks until the emulation stops (Stop called, instruction budget
// exhausted, or an engine fault); hook callbacks run on the same
// goroutine, so callbacks may freely mutate guest state.
type CPU interface {
	// MemMap makes [addr, addr+length) accessible. Both must be
	// page-aligned.
	MemMap(addr, length uint64) error

	// MemUnmap removes the mapping for [addr, addr+length).
	MemUnmap(addr, length uint64) error

	// MemRead returns length bytes at addr.
	MemRead(addr, length uint64) ([]byte, error)

	// MemWrite stores data at addr.
	MemWrite(addr uint64, data []byte) error

	// RegRead returns the value of reg.
	RegRead(reg Reg) (uint64, error)

	// RegWrite sets reg to value.
	RegWrite(reg Reg, value uint64) error

	// Start runs from pc until Stop is called or count instructions have
	// executed. count == 0 means no instruction limit.
	Start(pc uint64, count uint64) error

	// Stop requests that the current Start call return. Callable only
	// from a hook callback.
	Stop() error

	// HookCode registers fn to run before every instruction.
	HookCode(fn HookFn)

	// HookBlock registers fn to run at every basic-block entry.
	HookBlock(fn HookFn)

	// HookSyscall registers fn to run when the guest executes its
	// syscall instruction (svc/syscall/int 0x80/sysenter per arch).
	HookSyscall(fn func())

	// MsrWrite writes a model-specific register. The Unicorn adapter
	// accepts it on x86 and x86-64 and returns an error on other
	// architectures.
	MsrWrite(id uint64, value uint64) error
}
