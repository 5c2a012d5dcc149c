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

package posix

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/guestkit/guestkit/pkg/guest"
)

// utsField pads s to the fixed 65-byte utsname slot.
func utsField(s string) []byte {
	out := make([]byte, 65)
	copy(out, s)
	return out
}

// sysUname writes the synthetic utsname identifying the emulated
// system.
func sysUname(p *guest.Process, args [6]uint64) {
	addr := args[0]
	var buf bytes.Buffer
	buf.Write(utsField("QilingOS"))
	buf.Write(utsField("ql_vm"))
	buf.Write(utsField("99.0-RELEASE"))
	buf.Write(utsField("QilingOS 99.0-RELEASE r1"))
	buf.Write(utsField("ql_processor"))
	buf.Write(utsField(""))

	rv := int64(0)
	if err := p.CPU.MemWrite(addr, buf.Bytes()); err != nil {
		rv = -1
	}
	p.Log.Infof("uname(%#x) = %d", addr, rv)
	ret(p, rv)
}

// sysSysinfo writes a fixed sysinfo struct: modest uptime and load, a
// quarter gigabyte of free memory, one process.
func sysSysinfo(p *guest.Process, args [6]uint64) {
	addr := args[0]
	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, uint64(0x1234))     // uptime
	binary.Write(&buf, le, uint64(0x2000))     // load 1 min
	binary.Write(&buf, le, uint64(0x2000))     // load 5 min
	binary.Write(&buf, le, uint64(0x2000))     // load 15 min
	binary.Write(&buf, le, uint64(0x10000000)) // total ram
	binary.Write(&buf, le, uint64(0x10000000)) // free ram
	binary.Write(&buf, le, uint64(0x10000000)) // shared memory
	binary.Write(&buf, le, uint64(0))          // buffer memory
	binary.Write(&buf, le, uint64(0))          // total swap
	binary.Write(&buf, le, uint64(0))          // free swap
	binary.Write(&buf, le, uint16(1))          // procs
	binary.Write(&buf, le, uint64(0))          // total high
	binary.Write(&buf, le, uint64(0))          // avail high
	binary.Write(&buf, le, uint32(1))          // mem unit

	rv := int64(0)
	if err := p.CPU.MemWrite(addr, buf.Bytes()); err != nil {
		rv = -1
	}
	p.Log.Infof("sysinfo(%#x) = %d", addr, rv)
	ret(p, rv)
}

// sysSysctl accepts and ignores the query.
func sysSysctl(p *guest.Process, args [6]uint64) {
	p.Log.Infof("sysctl(%#x) = 0", args[0])
	ret(p, 0)
}

// sysUgetrlimit proxies getrlimit to the host, packed as two 32-bit
// words.
func sysUgetrlimit(p *guest.Process, args [6]uint64) {
	res, addr := int(args[0]), args[1]
	rv := int64(-1)
	var lim unix.Rlimit
	if err := unix.Getrlimit(res, &lim); err == nil {
		p.WriteU32(addr, uint32(lim.Cur))
		p.WriteU32(addr+4, uint32(lim.Max))
		rv = 0
	}
	p.Log.Infof("ugetrlimit(%d, %#x) = %d", res, addr, rv)
	ret(p, rv)
}

// sysSetrlimit proxies setrlimit to the host.
func sysSetrlimit(p *guest.Process, args [6]uint64) {
	res, addr := int(args[0]), args[1]
	rv := int64(-1)
	cur, err1 := p.ReadU32(addr)
	max, err2 := p.ReadU32(addr + 4)
	if err1 == nil && err2 == nil {
		lim := unix.Rlimit{Cur: uint64(int32(cur)), Max: uint64(int32(max))}
		if err := unix.Setrlimit(res, &lim); err == nil {
			rv = 0
		}
	}
	p.Log.Infof("setrlimit(%d, %#x) = %d", res, addr, rv)
	ret(p, rv)
}
