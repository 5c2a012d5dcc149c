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

// mipsABI is the o32 convention: number in V0, arguments in A0..A3 with
// arguments 5 and 6 at SP+0x10 and SP+0x14, return in V0 with the error
// flag in A3.
type mipsABI struct{}

var mipsArgRegs = []engine.Reg{
	engine.MIPSRegA0, engine.MIPSRegA1, engine.MIPSRegA2, engine.MIPSRegA3,
}

func (mipsABI) Arch() abi.Arch { return abi.MIPS32EL }

func (mipsABI) SyscallNo(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.MIPSRegV0)
}

func (mipsABI) Arg(cpu engine.CPU, i int) (uint64, error) {
	if i < 4 {
		return regArg(cpu, mipsArgRegs, i)
	}
	sp, err := cpu.RegRead(engine.MIPSRegSP)
	if err != nil {
		return 0, err
	}
	raw, err := cpu.MemRead(sp+0x10+4*uint64(i-4), 4)
	if err != nil {
		return 0, err
	}
	return uint64(binary.LittleEndian.Uint32(raw)), nil
}

// SetReturn writes V0 and keeps A3 in step: A3 is 1 for a failed call.
// The original also flags value 2, which guests produced only on error
// paths of the calls it emulated.
func (mipsABI) SetReturn(cpu engine.CPU, value int64) error {
	var a3 uint64
	if value == -1 || value == 2 {
		a3 = 1
	}
	if err := cpu.RegWrite(engine.MIPSRegV0, uint64(uint32(value))); err != nil {
		return err
	}
	return cpu.RegWrite(engine.MIPSRegA3, a3)
}

func (mipsABI) StackPointer(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.MIPSRegSP)
}

func (mipsABI) SetStackPointer(cpu engine.CPU, sp uint64) error {
	return cpu.RegWrite(engine.MIPSRegSP, sp)
}

func (mipsABI) PC(cpu engine.CPU) (uint64, error) {
	return cpu.RegRead(engine.MIPSRegPC)
}

func (mipsABI) PCReg() engine.Reg { return engine.MIPSRegPC }

func (mipsABI) ContextRegs() []engine.Reg {
	return []engine.Reg{
		engine.MIPSRegV0, engine.MIPSRegV1, engine.MIPSRegA0,
		engine.MIPSRegA1, engine.MIPSRegA2, engine.MIPSRegA3,
		engine.MIPSRegT9, engine.MIPSRegSP, engine.MIPSRegRA,
		engine.MIPSRegPC,
	}
}
