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
	"testing"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/engine"
	"github.com/guestkit/guestkit/pkg/engine/enginetest"
)

func mustABI(t *testing.T, arch abi.Arch, os abi.OS) ABI {
	t.Helper()
	a, err := For(arch, os)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAMD64Convention(t *testing.T) {
	cpu := enginetest.New()
	a := mustABI(t, abi.AMD64, abi.Linux)

	cpu.RegWrite(engine.AMD64RegRAX, 60)
	cpu.RegWrite(engine.AMD64RegRDI, 11)
	cpu.RegWrite(engine.AMD64RegR10, 44)
	cpu.RegWrite(engine.AMD64RegR9, 66)

	if num, _ := a.SyscallNo(cpu); num != 60 {
		t.Fatalf("num = %d", num)
	}
	if v, _ := a.Arg(cpu, 0); v != 11 {
		t.Fatalf("arg0 = %d", v)
	}
	if v, _ := a.Arg(cpu, 3); v != 44 {
		t.Fatalf("arg3 = %d", v)
	}
	if v, _ := a.Arg(cpu, 5); v != 66 {
		t.Fatalf("arg5 = %d", v)
	}

	a.SetReturn(cpu, -1)
	if v, _ := cpu.RegRead(engine.AMD64RegRAX); v != ^uint64(0) {
		t.Fatalf("return = %#x, want all-ones", v)
	}
}

func TestARMConvention(t *testing.T) {
	cpu := enginetest.New()
	a := mustABI(t, abi.ARM, abi.Linux)

	cpu.RegWrite(engine.ARMRegR7, 4)
	cpu.RegWrite(engine.ARMRegR0, 1)
	cpu.RegWrite(engine.ARMRegR5, 99)

	if num, _ := a.SyscallNo(cpu); num != 4 {
		t.Fatalf("num = %d", num)
	}
	if v, _ := a.Arg(cpu, 5); v != 99 {
		t.Fatalf("arg5 = %d", v)
	}
	a.SetReturn(cpu, -1)
	if v, _ := cpu.RegRead(engine.ARMRegR0); v != 0xffffffff {
		t.Fatalf("return = %#x, want 32-bit all-ones", v)
	}
}

func TestMIPSStackArgsAndA3(t *testing.T) {
	cpu := enginetest.New()
	a := mustABI(t, abi.MIPS32EL, abi.Linux)

	cpu.MemMap(0x7000, 0x1000)
	cpu.RegWrite(engine.MIPSRegSP, 0x7800)
	var w [4]byte
	binary.LittleEndian.PutUint32(w[:], 0x1234)
	cpu.MemWrite(0x7810, w[:])
	binary.LittleEndian.PutUint32(w[:], 0x5678)
	cpu.MemWrite(0x7814, w[:])

	if v, _ := a.Arg(cpu, 4); v != 0x1234 {
		t.Fatalf("arg4 = %#x, want 0x1234", v)
	}
	if v, _ := a.Arg(cpu, 5); v != 0x5678 {
		t.Fatalf("arg5 = %#x, want 0x5678", v)
	}

	// Failure sets A3.
	a.SetReturn(cpu, -1)
	if v, _ := cpu.RegRead(engine.MIPSRegV0); v != 0xffffffff {
		t.Fatalf("V0 = %#x", v)
	}
	if v, _ := cpu.RegRead(engine.MIPSRegA3); v != 1 {
		t.Fatalf("A3 = %d, want 1 on error", v)
	}

	// Success clears it.
	a.SetReturn(cpu, 5)
	if v, _ := cpu.RegRead(engine.MIPSRegA3); v != 0 {
		t.Fatalf("A3 = %d, want 0 on success", v)
	}

	// Value 2 is flagged too, preserving the original's quirk.
	a.SetReturn(cpu, 2)
	if v, _ := cpu.RegRead(engine.MIPSRegA3); v != 1 {
		t.Fatalf("A3 = %d, want 1 for value 2", v)
	}
}

func TestX86DarwinStackArgs(t *testing.T) {
	cpu := enginetest.New()
	a := mustABI(t, abi.X86, abi.MacOS)

	cpu.MemMap(0x6000, 0x1000)
	cpu.RegWrite(engine.X86RegESP, 0x6800)
	var w [4]byte
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint32(w[:], uint32(100+i))
		cpu.MemWrite(0x6800+4*uint64(i+1), w[:])
	}
	for i := 0; i < 6; i++ {
		if v, _ := a.Arg(cpu, i); v != uint64(100+i) {
			t.Fatalf("arg%d = %d, want %d", i, v, 100+i)
		}
	}
}

func TestX86LinuxRegisterArgs(t *testing.T) {
	cpu := enginetest.New()
	a := mustABI(t, abi.X86, abi.Linux)
	cpu.RegWrite(engine.X86RegEBX, 7)
	cpu.RegWrite(engine.X86RegEBP, 13)
	if v, _ := a.Arg(cpu, 0); v != 7 {
		t.Fatalf("arg0 = %d", v)
	}
	if v, _ := a.Arg(cpu, 5); v != 13 {
		t.Fatalf("arg5 = %d", v)
	}
}

func TestContextRegsIncludePC(t *testing.T) {
	for _, tc := range []struct {
		arch abi.Arch
		os   abi.OS
	}{
		{abi.X86, abi.Linux}, {abi.AMD64, abi.Linux}, {abi.ARM, abi.Linux},
		{abi.ARM64, abi.Linux}, {abi.MIPS32EL, abi.Linux},
	} {
		a := mustABI(t, tc.arch, tc.os)
		found := false
		for _, r := range a.ContextRegs() {
			if r == a.PCReg() {
				found = true
			}
		}
		if !found {
			t.Errorf("%v: PC register missing from context set", tc.arch)
		}
	}
}
