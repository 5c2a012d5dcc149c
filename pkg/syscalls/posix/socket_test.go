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
	"encoding/binary"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/guestkit/guestkit/pkg/abi"
)

// TestBindPortRemap covers the privileged-port shift: with the root
// flag clear, a guest bind to a low port lands 8000 above it on
// loopback.
func TestBindPortRemap(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)

	fd := tp.syscall(t, nrSocket, unix.AF_INET, unix.SOCK_STREAM, 0)
	if fd < 0 {
		t.Skipf("cannot create host socket (fd=%d)", fd)
	}

	// Guest asks for port 521; expect 8521.
	const guestPort = 521
	sa := make([]byte, 16)
	binary.LittleEndian.PutUint16(sa[0:2], abi.AFInet)
	binary.BigEndian.PutUint16(sa[2:4], guestPort)
	sa[4], sa[5], sa[6], sa[7] = 127, 0, 0, 1
	addr := uint64(scratchBase + 0x900)
	if err := tp.cpu.MemWrite(addr, sa); err != nil {
		t.Fatal(err)
	}

	rv := tp.syscall(t, nrBind, uint64(fd), addr, 16)
	if rv != 0 {
		t.Skipf("bind failed (%d); host refuses loopback binds", rv)
	}
	if tp.p.Port != guestPort+8000 {
		t.Fatalf("claimed port = %d, want %d", tp.p.Port, guestPort+8000)
	}
	tp.syscall(t, nrClose, uint64(fd))
}

// TestSocketLowestSlot checks socket descriptors share the table's
// lowest-free policy.
func TestSocketLowestSlot(t *testing.T) {
	tp := newTestProc(t, abi.AMD64, abi.Linux, false)
	fd := tp.syscall(t, nrSocket, unix.AF_INET, unix.SOCK_DGRAM, 0)
	if fd < 0 {
		t.Skipf("cannot create host socket")
	}
	if fd != 3 {
		t.Fatalf("socket landed in slot %d, want 3", fd)
	}
	tp.syscall(t, nrClose, uint64(fd))
}
