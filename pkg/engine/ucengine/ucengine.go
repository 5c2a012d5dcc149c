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

// Package ucengine adapts the Unicorn emulator to the engine.CPU
// surface. One adapter instance wraps one Unicorn handle for one guest
// architecture.
package ucengine

import (
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
)

// CPU is a Unicorn-backed engine.
type CPU struct {
	mu   uc.Unicorn
	arch abi.Arch
	regs map[engine.Reg]int
}

// New creates a Unicorn instance for arch in the mode the syscall layer
// expects (little-endian, 32 or 64 bit).
func New(arch abi.Arch) (*CPU, error) {
	var ucArch, ucMode int
	switch arch {
	case abi.X86:
		ucArch, ucMode = uc.ARCH_X86, uc.MODE_32
	case abi.AMD64:
		ucArch, ucMode = uc.ARCH_X86, uc.MODE_64
	case abi.ARM:
		ucArch, ucMode = uc.ARCH_ARM, uc.MODE_ARM
	case abi.ARM64:
		ucArch, ucMode = uc.ARCH_ARM64, uc.MODE_ARM
	case abi.MIPS32EL:
		ucArch, ucMode = uc.ARCH_MIPS, uc.MODE_MIPS32|uc.MODE_LITTLE_ENDIAN
	default:
		return nil, errors.Errorf("no unicorn mode for %v", arch)
	}
	mu, err := uc.NewUnicorn(ucArch, ucMode)
	if err != nil {
		return nil, errors.Wrap(err, "creating unicorn")
	}
	return &CPU{mu: mu, arch: arch, regs: regMap(arch)}, nil
}

// regMap binds the layer's register identifiers to Unicorn constants for
// arch.
func regMap(arch abi.Arch) map[engine.Reg]int {
	switch arch {
	case abi.ARM:
		return map[engine.Reg]int{
			engine.ARMRegR0: uc.ARM_REG_R0, engine.ARMRegR1: uc.ARM_REG_R1,
			engine.ARMRegR2: uc.ARM_REG_R2, engine.ARMRegR3: uc.ARM_REG_R3,
			engine.ARMRegR4: uc.ARM_REG_R4, engine.ARMRegR5: uc.ARM_REG_R5,
			engine.ARMRegR6: uc.ARM_REG_R6, engine.ARMRegR7: uc.ARM_REG_R7,
			engine.ARMRegSP: uc.ARM_REG_SP, engine.ARMRegLR: uc.ARM_REG_LR,
			engine.ARMRegPC: uc.ARM_REG_PC, engine.ARMRegCPSR: uc.ARM_REG_CPSR,
		}
	case abi.ARM64:
		return map[engine.Reg]int{
			engine.ARM64RegX0: uc.ARM64_REG_X0, engine.ARM64RegX1: uc.ARM64_REG_X1,
			engine.ARM64RegX2: uc.ARM64_REG_X2, engine.ARM64RegX3: uc.ARM64_REG_X3,
			engine.ARM64RegX4: uc.ARM64_REG_X4, engine.ARM64RegX5: uc.ARM64_REG_X5,
			engine.ARM64RegX6: uc.ARM64_REG_X6, engine.ARM64RegX7: uc.ARM64_REG_X7,
			engine.ARM64RegX8: uc.ARM64_REG_X8, engine.ARM64RegSP: uc.ARM64_REG_SP,
			engine.ARM64RegLR: uc.ARM64_REG_LR, engine.ARM64RegPC: uc.ARM64_REG_PC,
		}
	case abi.X86:
		return map[engine.Reg]int{
			engine.X86RegEAX: uc.X86_REG_EAX, engine.X86RegEBX: uc.X86_REG_EBX,
			engine.X86RegECX: uc.X86_REG_ECX, engine.X86RegEDX: uc.X86_REG_EDX,
			engine.X86RegESI: uc.X86_REG_ESI, engine.X86RegEDI: uc.X86_REG_EDI,
			engine.X86RegEBP: uc.X86_REG_EBP, engine.X86RegESP: uc.X86_REG_ESP,
			engine.X86RegEIP: uc.X86_REG_EIP,
		}
	case abi.AMD64:
		return map[engine.Reg]int{
			engine.AMD64RegRAX: uc.X86_REG_RAX, engine.AMD64RegRBX: uc.X86_REG_RBX,
			engine.AMD64RegRCX: uc.X86_REG_RCX, engine.AMD64RegRDX: uc.X86_REG_RDX,
			engine.AMD64RegRSI: uc.X86_REG_RSI, engine.AMD64RegRDI: uc.X86_REG_RDI,
			engine.AMD64RegRBP: uc.X86_REG_RBP, engine.AMD64RegRSP: uc.X86_REG_RSP,
			engine.AMD64RegR8: uc.X86_REG_R8, engine.AMD64RegR9: uc.X86_REG_R9,
			engine.AMD64RegR10: uc.X86_REG_R10, engine.AMD64RegR11: uc.X86_REG_R11,
			engine.AMD64RegR12: uc.X86_REG_R12, engine.AMD64RegR13: uc.X86_REG_R13,
			engine.AMD64RegR14: uc.X86_REG_R14, engine.AMD64RegR15: uc.X86_REG_R15,
			engine.AMD64RegRIP: uc.X86_REG_RIP,
		}
	case abi.MIPS32EL:
		return map[engine.Reg]int{
			engine.MIPSRegV0: uc.MIPS_REG_V0, engine.MIPSRegV1: uc.MIPS_REG_V1,
			engine.MIPSRegA0: uc.MIPS_REG_A0, engine.MIPSRegA1: uc.MIPS_REG_A1,
			engine.MIPSRegA2: uc.MIPS_REG_A2, engine.MIPSRegA3: uc.MIPS_REG_A3,
			engine.MIPSRegT9: uc.MIPS_REG_T9, engine.MIPSRegSP: uc.MIPS_REG_SP,
			engine.MIPSRegRA: uc.MIPS_REG_RA, engine.MIPSRegPC: uc.MIPS_REG_PC,
		}
	default:
		return nil
	}
}

func (c *CPU) reg(r engine.Reg) (int, error) {
	id, ok := c.regs[r]
	if !ok {
		return 0, errors.Errorf("register %d not mapped on %v", r, c.arch)
	}
	return id, nil
}

// MemMap implements engine.CPU.
func (c *CPU) MemMap(addr, length uint64) error {
	return c.mu.MemMap(addr, length)
}

// MemUnmap implements engine.CPU.
func (c *CPU) MemUnmap(addr, length uint64) error {
	return c.mu.MemUnmap(addr, length)
}

// MemRead implements engine.CPU.
func (c *CPU) MemRead(addr, length uint64) ([]byte, error) {
	return c.mu.MemRead(addr, length)
}

// MemWrite implements engine.CPU.
func (c *CPU) MemWrite(addr uint64, data []byte) error {
	return c.mu.MemWrite(addr, data)
}

// RegRead implements engine.CPU.
func (c *CPU) RegRead(r engine.Reg) (uint64, error) {
	id, err := c.reg(r)
	if err != nil {
		return 0, err
	}
	return c.mu.RegRead(id)
}

// RegWrite implements engine.CPU.
func (c *CPU) RegWrite(r engine.Reg, value uint64) error {
	id, err := c.reg(r)
	if err != nil {
		return err
	}
	return c.mu.RegWrite(id, value)
}

// Start implements engine.CPU. Unicorn's count 0 also means unbounded.
func (c *CPU) Start(pc, count uint64) error {
	return c.mu.StartWithOptions(pc, 0, &uc.UcOptions{Timeout: 0, Count: count})
}

// Stop implements engine.CPU.
func (c *CPU) Stop() error { return c.mu.Stop() }

// HookCode implements engine.CPU.
func (c *CPU) HookCode(fn engine.HookFn) {
	c.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		fn(addr, size)
	}, 1, 0)
}

// HookBlock implements engine.CPU.
func (c *CPU) HookBlock(fn engine.HookFn) {
	c.mu.HookAdd(uc.HOOK_BLOCK, func(mu uc.Unicorn, addr uint64, size uint32) {
		fn(addr, size)
	}, 1, 0)
}

// HookSyscall implements engine.CPU: the trap differs per architecture.
// x86-64 raises the dedicated syscall-instruction hook; everything else
// arrives as an interrupt (svc #0, int 0x80, syscall on MIPS).
func (c *CPU) HookSyscall(fn func()) {
	if c.arch == abi.AMD64 {
		c.mu.HookAdd(uc.HOOK_INSN, func(mu uc.Unicorn) {
			fn()
		}, 1, 0, uc.X86_INS_SYSCALL)
		return
	}
	c.mu.HookAdd(uc.HOOK_INTR, func(mu uc.Unicorn, intno uint32) {
		fn()
	}, 1, 0)
}

// MsrWrite implements engine.CPU. Only meaningful on x86 variants.
func (c *CPU) MsrWrite(id, value uint64) error {
	if c.arch != abi.AMD64 && c.arch != abi.X86 {
		return errors.Errorf("msr write on %v", c.arch)
	}
	return c.mu.RegWriteX86Msr(id, value)
}
