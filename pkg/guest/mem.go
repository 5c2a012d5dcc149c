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

package guest

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// maxCStr caps C-string reads from guest memory.
const maxCStr = 4096

// ReadString reads a NUL-terminated string at addr.
func (p *Process) ReadString(addr uint64) (string, error) {
	var out []byte
	for len(out) < maxCStr {
		b, err := p.CPU.MemRead(addr+uint64(len(out)), 1)
		if err != nil {
			return "", errors.Wrapf(err, "reading string at %#x", addr)
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
	}
	return string(out), nil
}

// ReadU32 reads a little-endian 32-bit word.
func (p *Process) ReadU32(addr uint64) (uint32, error) {
	b, err := p.CPU.MemRead(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian 64-bit word.
func (p *Process) ReadU64(addr uint64) (uint64, error) {
	b, err := p.CPU.MemRead(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadPtr reads a pointer-sized word at addr.
func (p *Process) ReadPtr(addr uint64) (uint64, error) {
	if p.Arch.PointerSize() == 8 {
		return p.ReadU64(addr)
	}
	v, err := p.ReadU32(addr)
	return uint64(v), err
}

// WriteU32 stores a little-endian 32-bit word.
func (p *Process) WriteU32(addr uint64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return p.CPU.MemWrite(addr, b[:])
}

// WriteU64 stores a little-endian 64-bit word.
func (p *Process) WriteU64(addr uint64, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return p.CPU.MemWrite(addr, b[:])
}

// ReadPtrVector walks a NUL-terminated vector of string pointers, the
// shape of execve's argv and envp.
func (p *Process) ReadPtrVector(addr uint64) ([]string, error) {
	if addr == 0 {
		return nil, nil
	}
	var out []string
	step := uint64(p.Arch.PointerSize())
	for {
		ptr, err := p.ReadPtr(addr)
		if err != nil {
			return nil, err
		}
		if ptr == 0 {
			return out, nil
		}
		s, err := p.ReadString(ptr)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
		addr += step
	}
}
