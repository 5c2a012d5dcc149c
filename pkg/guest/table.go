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
	"sort"

	"github.com/pkg/errors"

	"github.com/guestkit/guestkit/pkg/abi"
)

// HandlerFn services one syscall. The handler reads arguments from args,
// mutates process state, and writes its own return value through
// p.SetReturn. Errors never propagate: failure is a -1 return.
type HandlerFn func(p *Process, args [6]uint64)

// Syscall pairs a handler with its name for tracing.
type Syscall struct {
	Name string
	Fn   HandlerFn
}

// SyscallTable maps the numbers of one (guest OS, architecture) pair to
// handlers.
type SyscallTable struct {
	OS    abi.OS
	Arch  abi.Arch
	Calls map[uint64]Syscall
}

// Lookup returns the syscall registered under num.
func (t *SyscallTable) Lookup(num uint64) (Syscall, bool) {
	sc, ok := t.Calls[num]
	return sc, ok
}

// Names returns the registered syscall names, sorted, for coverage
// listings.
func (t *SyscallTable) Names() []string {
	out := make([]string, 0, len(t.Calls))
	for _, sc := range t.Calls {
		out = append(out, sc.Name)
	}
	sort.Strings(out)
	return out
}

// tableKey identifies a registered table.
type tableKey struct {
	os   abi.OS
	arch abi.Arch
}

var registry = map[tableKey]*SyscallTable{}

// RegisterTable publishes a table for (os, arch). Called from init
// functions of the handler packages; composing the per-OS tables at
// startup is just a lookup.
func RegisterTable(t *SyscallTable) {
	registry[tableKey{t.OS, t.Arch}] = t
}

// LookupTable returns the table registered for (os, arch).
func LookupTable(os abi.OS, arch abi.Arch) (*SyscallTable, error) {
	t, ok := registry[tableKey{os, arch}]
	if !ok {
		return nil, errors.Errorf("no syscall table for %v/%v", os, arch)
	}
	return t, nil
}

// dispatch runs on every guest syscall instruction. It reads the number
// and six arguments through the register ABI, finds the handler, and
// invokes it; an unknown number is fatal.
func (p *Process) dispatch() {
	num, err := p.Regs.SyscallNo(p.CPU)
	if err != nil {
		p.Fatal(errors.Wrap(err, "reading syscall number"))
		return
	}
	var args [6]uint64
	for i := 0; i < 6; i++ {
		v, err := p.Regs.Arg(p.CPU, i)
		if err != nil {
			p.Fatal(errors.Wrapf(err, "reading syscall argument %d", i))
			return
		}
		args[i] = v
	}
	sc, ok := p.Table.Lookup(num)
	if !ok {
		p.Log.Errorf("unknown syscall %d", num)
		p.Fatal(errors.Errorf("unknown syscall %d", num))
		return
	}
	sc.Fn(p, args)
}
