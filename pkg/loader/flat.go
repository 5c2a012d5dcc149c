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

// Package loader holds the built-in flat-image loader. Format-aware
// loaders (ELF, Mach-O, PE) plug the same guest.Loader interface from
// outside this module.
package loader

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/guest"
)

// Default guest memory layout for flat images.
const (
	FlatBase      = 0x00400000
	DefaultBrk    = 0x10000000
	DefaultMmap   = 0x7ffff0000000
	DefaultMmap32 = 0x70000000
	StackTop      = 0x7ff0000
	StackSize     = 0x30000
)

// Flat maps a raw binary image at a fixed base and builds an argv/env
// stack. It is enough for flat firmware blobs, shellcode images, and
// tests.
type Flat struct {
	// Base overrides FlatBase when non-zero.
	Base uint64
}

// Load implements guest.Loader.
func (l *Flat) Load(p *guest.Process) (guest.Entry, error) {
	image, err := os.ReadFile(p.HostPath)
	if err != nil {
		return guest.Entry{}, errors.Wrapf(err, "reading image %s", p.Path)
	}

	base := l.Base
	if base == 0 {
		base = FlatBase
	}
	mmapBase := uint64(DefaultMmap)
	if p.Arch.PointerSize() == 4 {
		mmapBase = DefaultMmap32
	}
	p.InitMem(DefaultBrk, mmapBase)

	if err := p.CPU.MemMap(base, abi.PageRoundUp(uint64(len(image)))); err != nil {
		return guest.Entry{}, errors.Wrap(err, "mapping image")
	}
	if err := p.CPU.MemWrite(base, image); err != nil {
		return guest.Entry{}, errors.Wrap(err, "writing image")
	}

	stackBase := uint64(StackTop - StackSize)
	if err := p.CPU.MemMap(stackBase, StackSize); err != nil {
		return guest.Entry{}, errors.Wrap(err, "mapping stack")
	}
	sp, err := l.buildStack(p, uint64(StackTop))
	if err != nil {
		return guest.Entry{}, err
	}
	return guest.Entry{PC: base, SP: sp}, nil
}

// buildStack lays out the C startup contract: strings at the top, then
// envp and argv pointer vectors, then argc at the final stack pointer.
func (l *Flat) buildStack(p *guest.Process, top uint64) (uint64, error) {
	ptr := p.Arch.PointerSize()
	sp := top

	push := func(s string) (uint64, error) {
		data := append([]byte(s), 0)
		sp -= uint64(len(data))
		if err := p.CPU.MemWrite(sp, data); err != nil {
			return 0, err
		}
		return sp, nil
	}

	argvPtrs := make([]uint64, 0, len(p.Argv))
	for _, a := range p.Argv {
		addr, err := push(a)
		if err != nil {
			return 0, err
		}
		argvPtrs = append(argvPtrs, addr)
	}
	envPtrs := make([]uint64, 0, len(p.Env))
	for _, e := range p.Env {
		addr, err := push(e)
		if err != nil {
			return 0, err
		}
		envPtrs = append(envPtrs, addr)
	}
	sp &^= uint64(ptr - 1)

	word := make([]byte, ptr)
	pushWord := func(v uint64) error {
		sp -= uint64(ptr)
		if ptr == 8 {
			binary.LittleEndian.PutUint64(word, v)
		} else {
			binary.LittleEndian.PutUint32(word, uint32(v))
		}
		return p.CPU.MemWrite(sp, word)
	}

	// envp, NULL-terminated, then argv, then argc.
	if err := pushWord(0); err != nil {
		return 0, err
	}
	for i := len(envPtrs) - 1; i >= 0; i-- {
		if err := pushWord(envPtrs[i]); err != nil {
			return 0, err
		}
	}
	if err := pushWord(0); err != nil {
		return 0, err
	}
	for i := len(argvPtrs) - 1; i >= 0; i-- {
		if err := pushWord(argvPtrs[i]); err != nil {
			return 0, err
		}
	}
	if err := pushWord(uint64(len(argvPtrs))); err != nil {
		return 0, err
	}
	return sp, nil
}
