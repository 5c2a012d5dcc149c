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

package regabi

import (
	"encoding/binary"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
)

// x86ABI is the Linux int-0x80 convention: number in EAX, arguments in
// EBX, ECX, EDX, ESI, EDI, EBP, return in EAX.
type x86ABI struct{}

var x86ArgRegs = []engine.Reg{
	engine.X86RegEBX, engine.X86RegECX, engine.X86RegEDX,
	engine.X86RegESI, engine.X86RegEDI, engine.X86RegEBP,
}

func (x86ABI) Arch() abi.Arch { return abi.X86 }

func (x86ABI) SyscallNo(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.X86RegEAX)
}

func (x86ABI) Arg(cpu engine.CPU, i int) (uint64, error) {
	return regArg(cpu, x86ArgRegs, i)
}

func (x86ABI) SetReturn(cpu engine.CPU, value int64) error {
	return cpu.RegWrite(engine.X86RegEAX, uint64(uint32(value)))
}

func (x86ABI) StackPointer(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.X86RegESP)
}

func (x86ABI) SetStackPointer(cpu engine.CPU, sp uint64) error {
	return cpu.RegWrite(engine.X86RegESP, sp)
}

func (x86ABI) PC(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.X86RegEIP)
}

func x86ContextRegs() []engine.Reg {
	return []engine.Reg{
		engine.X86RegEAX, engine.X86RegEBX, engine.X86RegECX,
		engine.X86RegEDX, engine.X86RegESI, engine.X86RegEDI,
		engine.X86RegEBP, engine.X86RegESP, engine.X86RegEIP,
	}
}

func (x86ABI) PCReg() engine.Reg { return engine.X86RegEIP }

func (x86ABI) ContextRegs() []engine.Reg { return x86ContextRegs() }

// x86DarwinABI is the BSD convention: number in EAX, arguments pushed on
// the stack above the return address.
type x86DarwinABI struct{}

func (x86DarwinABI) Arch() abi.Arch { return abi.X86 }

func (x86DarwinABI) SyscallNo(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.X86RegEAX)
}

func (x86DarwinABI) Arg(cpu engine.CPU, i int) (uint64, error) {
	sp, err := cpu.RegRead(engine.X86RegESP)
	if err != nil {
		return 0, err
	}
	raw, err := cpu.MemRead(sp+4*uint64(i+1), 4)
	if err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(raw)), nil
}

func (x86DarwinABI) SetReturn(cpu engine.CPU, value int64) error {
	return cpu.RegWrite(engine.X86RegEAX, uint64(uint32(value)))
}

func (x86DarwinABI) StackPointer(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.X86RegESP)
}

func (x86DarwinABI) SetStackPointer(cpu engine.CPU, sp uint64) error {
	return cpu.RegWrite(engine.X86RegESP, sp)
}

func (x86DarwinABI) PC(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.X86RegEIP)
}

func (x86DarwinABI) PCReg() engine.Reg { return engine.X86RegEIP }

func (x86DarwinABI) ContextRegs() []engine.Reg { return x86ContextRegs() }

// amd64ABI: number in RAX, arguments in RDI, RSI, RDX, R10, R8, R9,
// return in RAX.
type amd64ABI struct{}

var amd64ArgRegs = []engine.Reg{
	engine.AMD64RegRDI, engine.AMD64RegRSI, engine.AMD64RegRDX,
	engine.AMD64RegR10, engine.AMD64RegR8, engine.AMD64RegR9,
}

func (amd64ABI) Arch() abi.Arch { return abi.AMD64 }

func (amd64ABI) SyscallNo(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.AMD64RegRAX)
}

func (amd64ABI) Arg(cpu engine.CPU, i int) (uint64, error) {
	return regArg(cpu, amd64ArgRegs, i)
}

func (amd64ABI) SetReturn(cpu engine.CPU, value int64) error {
	return cpu.RegWrite(engine.AMD64RegRAX, uint64(value))
}

func (amd64ABI) StackPointer(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.AMD64RegRSP)
}

func (amd64ABI) SetStackPointer(cpu engine.CPU, sp uint64) error {
	return cpu.RegWrite(engine.AMD64RegRSP, sp)
}

func (amd64ABI) PC(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.AMD64RegRIP)
}

func (amd64ABI) PCReg() engine.Reg { return engine.AMD64RegRIP }

func (amd64ABI) ContextRegs() []engine.Reg {
	return []engine.Reg{
		engine.AMD64RegRAX, engine.AMD64RegRBX, engine.AMD64RegRCX,
		engine.AMD64RegRDX, engine.AMD64RegRSI, engine.AMD64RegRDI,
		engine.AMD64RegRBP, engine.AMD64RegRSP, engine.AMD64RegR8,
		engine.AMD64RegR9, engine.AMD64RegR10, engine.AMD64RegR11,
		engine.AMD64RegR12, engine.AMD64RegR13, engine.AMD64RegR14,
		engine.AMD64RegR15, engine.AMD64RegRIP,
	}
}
