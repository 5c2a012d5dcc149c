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

// Package enginetest provides a pure-Go engine.CPU for package tests: a
// page-granular memory map, a flat register file, and a pluggable Start
// body standing in for instruction execution. Tests script guest
// behavior by setting registers and firing the syscall hook.
package enginetest

import (
	"github.com/pkg/errors"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
)

// StartFn simulates the instruction stream for one Start call. It may
// fire syscalls, move registers, and must return when done. A Stop
// request only sets the flag that Stopped reports; the body checks it
// to end early.
type StartFn func(c *CPU, pc, count uint64) error

// CPU is the in-memory engine.
type CPU struct {
	pages map[uint64][]byte
	regs  [engine.NumRegs]uint64
	msrs  map[uint64]uint64

	codeHooks    []engine.HookFn
	blockHooks   []engine.HookFn
	syscallHooks []func()

	// Run is invoked by Start; nil means Start returns immediately.
	Run StartFn

	stopped bool

	// Starts counts Start invocations, for scheduler tests.
	Starts int
}

// New returns an empty CPU.
func New() *CPU {
	return &CPU{
		pages: make(map[uint64][]byte),
		msrs:  make(map[uint64]uint64),
	}
}

func pageOf(addr uint64) uint64 { return addr &^ (abi.PageSize - 1) }

// MemMap implements engine.CPU.
func (c *CPU) MemMap(addr, length uint64) error {
	if addr%abi.PageSize != 0 || length%abi.PageSize != 0 {
		return errors.Errorf("unaligned map %#x+%#x", addr, length)
	}
	for off := uint64(0); off < length; off += abi.PageSize {
		page := addr + off
		if _, ok := c.pages[page]; !ok {
			c.pages[page] = make([]byte, abi.PageSize)
		}
	}
	return nil
}

// MemUnmap implements engine.CPU.
func (c *CPU) MemUnmap(addr, length uint64) error {
	for off := uint64(0); off < length; off += abi.PageSize {
		delete(c.pages, pageOf(addr+off))
	}
	return nil
}

// MemRead implements engine.CPU.
func (c *CPU) MemRead(addr, length uint64) ([]byte, error) {
	out := make([]byte, length)
	for i := uint64(0); i < length; {
		page, ok := c.pages[pageOf(addr+i)]
		if !ok {
			return nil, errors.Errorf("read of unmapped address %#x", addr+i)
		}
		off := (addr + i) % abi.PageSize
		n := copy(out[i:], page[off:])
		i += uint64(n)
	}
	return out, nil
}

// MemWrite implements engine.CPU.
func (c *CPU) MemWrite(addr uint64, data []byte) error {
	for i := 0; i < len(data); {
		page, ok := c.pages[pageOf(addr+uint64(i))]
		if !ok {
			return errors.Errorf("write to unmapped address %#x", addr+uint64(i))
		}
		off := (addr + uint64(i)) % abi.PageSize
		n := copy(page[off:], data[i:])
		i += n
	}
	return nil
}

// RegRead implements engine.CPU.
func (c *CPU) RegRead(reg engine.Reg) (uint64, error) {
	if int(reg) <= 0 || int(reg) >= engine.NumRegs {
		return 0, errors.Errorf("bad register %d", reg)
	}
	return c.regs[reg], nil
}

// RegWrite implements engine.CPU.
func (c *CPU) RegWrite(reg engine.Reg, value uint64) error {
	if int(reg) <= 0 || int(reg) >= engine.NumRegs {
		return errors.Errorf("bad register %d", reg)
	}
	c.regs[reg] = value
	return nil
}

// Start implements engine.CPU by handing control to the scripted Run
// body.
func (c *CPU) Start(pc, count uint64) error {
	c.Starts++
	c.stopped = false
	if c.Run == nil {
		return nil
	}
	return c.Run(c, pc, count)
}

// Stop implements engine.CPU.
func (c *CPU) Stop() error {
	c.stopped = true
	return nil
}

// Stopped reports whether Stop was requested during this Start.
func (c *CPU) Stopped() bool { return c.stopped }

// HookCode implements engine.CPU.
func (c *CPU) HookCode(fn engine.HookFn) { c.codeHooks = append(c.codeHooks, fn) }

// HookBlock implements engine.CPU.
func (c *CPU) HookBlock(fn engine.HookFn) { c.blockHooks = append(c.blockHooks, fn) }

// HookSyscall implements engine.CPU.
func (c *CPU) HookSyscall(fn func()) { c.syscallHooks = append(c.syscallHooks, fn) }

// Syscall fires the registered syscall hooks, as if the guest executed
// its trap instruction.
func (c *CPU) Syscall() {
	for _, fn := range c.syscallHooks {
		fn()
	}
}

// Step fires the code hooks for one fake instruction.
func (c *CPU) Step(addr uint64, size uint32) {
	for _, fn := range c.codeHooks {
		fn(addr, size)
	}
}

// MsrWrite implements engine.CPU.
func (c *CPU) MsrWrite(id, value uint64) error {
	c.msrs[id] = value
	return nil
}

// Msr returns the last value written to id.
func (c *CPU) Msr(id uint64) uint64 { return c.msrs[id] }

// Mapped reports whether addr falls in a mapped page.
func (c *CPU) Mapped(addr uint64) bool {
	_, ok := c.pages[pageOf(addr)]
	return ok
}
