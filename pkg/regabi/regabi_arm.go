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
	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
)

// armABI: number in R7, arguments in R0..R5, return in R0.
type armABI struct{}

var armArgRegs = []engine.Reg{
	engine.ARMRegR0, engine.ARMRegR1, engine.ARMRegR2,
	engine.ARMRegR3, engine.ARMRegR4, engine.ARMRegR5,
}

func (armABI) Arch() abi.Arch { return abi.ARM }

func (armABI) SyscallNo(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.ARMRegR7)
}

func (armABI) Arg(cpu engine.CPU, i int) (uint64, error) {
	return regArg(cpu, armArgRegs, i)
}

func (armABI) SetReturn(cpu engine.CPU, value int64) error {
	return cpu.RegWrite(engine.ARMRegR0, uint64(uint32(value)))
}

func (armABI) StackPointer(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.ARMRegSP)
}

func (armABI) SetStackPointer(cpu engine.CPU, sp uint64) error {
	return cpu.RegWrite(engine.ARMRegSP, sp)
}

func (armABI) PC(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.ARMRegPC)
}

func (armABI) PCReg() engine.Reg { return engine.ARMRegPC }

func (armABI) ContextRegs() []engine.Reg {
	return []engine.Reg{
		engine.ARMRegR0, engine.ARMRegR1, engine.ARMRegR2,
		engine.ARMRegR3, engine.ARMRegR4, engine.ARMRegR5,
		engine.ARMRegR6, engine.ARMRegR7, engine.ARMRegSP,
		engine.ARMRegLR, engine.ARMRegPC, engine.ARMRegCPSR,
	}
}

// arm64ABI: number in X8, arguments in X0..X5, return in X0.
type arm64ABI struct{}

var arm64ArgRegs = []engine.Reg{
	engine.ARM64RegX0, engine.ARM64RegX1, engine.ARM64RegX2,
	engine.ARM64RegX3, engine.ARM64RegX4, engine.ARM64RegX5,
}

func (arm64ABI) Arch() abi.Arch { return abi.ARM64 }

func (arm64ABI) SyscallNo(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.ARM64RegX8)
}

func (arm64ABI) Arg(cpu engine.CPU, i int) (uint64, error) {
	return regArg(cpu, arm64ArgRegs, i)
}

func (arm64ABI) SetReturn(cpu engine.CPU, value int64) error {
	return cpu.RegWrite(engine.ARM64RegX0, uint64(value))
}

func (arm64ABI) StackPointer(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.ARM64RegSP)
}

func (arm64ABI) SetStackPointer(cpu engine.CPU, sp uint64) error {
	return cpu.RegWrite(engine.ARM64RegSP, sp)
}

func (arm64ABI) PC(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.ARM64RegPC)
}

func (arm64ABI) PCReg() engine.Reg { return engine.ARM64RegPC }

func (arm64ABI) ContextRegs() []engine.Reg {
	return []engine.Reg{
		engine.ARM64RegX0, engine.ARM64RegX1, engine.ARM64RegX2,
		engine.ARM64RegX3, engine.ARM64RegX4, engine.ARM64RegX5,
		engine.ARM64RegX6, engine.ARM64RegX7, engine.ARM64RegX8,
		engine.ARM64RegSP, engine.ARM64RegLR, engine.ARM64RegPC,
	}
}
