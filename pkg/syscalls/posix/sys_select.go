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
	"time"

	"golang.org/x/sys/unix"

	"github.com/guestkit/guestkit/pkg/fdtable"
	"github.com/guestkit/guestkit/pkg/guest"
)

// guestFdSet is a parsed guest fd_set: host descriptors plus the mapping
// back to guest slots.
type guestFdSet struct {
	addr    uint64
	hostFds []int
	toGuest map[int]int
}

// parseFdSet walks the guest bitmap, collecting host sockets for every
// set guest descriptor.
func parseFdSet(p *guest.Process, nfds uint64, addr uint64) guestFdSet {
	out := guestFdSet{addr: addr, toGuest: map[int]int{}}
	if addr == 0 {
		return out
	}
	var word uint32
	for i := uint64(0); i < nfds; i++ {
		if i%32 == 0 {
			w, err := p.ReadU32(addr + i/8)
			if err != nil {
				return out
			}
			word = w
		}
		if word&1 != 0 {
			if sock, ok := p.Files.Get(int(i)).(*fdtable.Socket); ok {
				out.hostFds = append(out.hostFds, sock.HostFD())
				out.toGuest[sock.HostFD()] = int(i)
			}
		}
		word >>= 1
	}
	return out
}

// writeFdSet writes the result bitmap for the host descriptors still set
// in ready.
func writeFdSet(p *guest.Process, nfds uint64, set guestFdSet, ready *unix.FdSet) int {
	if set.addr == 0 {
		return 0
	}
	buf := make([]byte, nfds/8+1)
	count := 0
	for _, hostFd := range set.hostFds {
		if ready.IsSet(hostFd) {
			guestFd := set.toGuest[hostFd]
			buf[guestFd/8] |= 1 << (guestFd % 8)
			count++
		}
	}
	p.CPU.MemWrite(set.addr, buf)
	return count
}

// sysNewselect implements _newselect(2): guest bitmaps are translated to
// host socket sets, the host selects, and the surviving bits are written
// back.
func sysNewselect(p *guest.Process, args [6]uint64) {
	nfds, rAddr, wAddr, eAddr, tAddr := args[0], args[1], args[2], args[3], args[4]

	rSet := parseFdSet(p, nfds, rAddr)
	wSet := parseFdSet(p, nfds, wAddr)
	eSet := parseFdSet(p, nfds, eAddr)

	var timeout *unix.Timeval
	if tAddr != 0 {
		if sec, err := p.ReadU32(tAddr); err == nil {
			timeout = &unix.Timeval{Sec: int64(sec)}
		}
	}

	fill := func(fds []int) (*unix.FdSet, int) {
		set := &unix.FdSet{}
		maxFd := 0
		for _, fd := range fds {
			set.Set(fd)
			if fd > maxFd {
				maxFd = fd
			}
		}
		return set, maxFd
	}
	hostR, maxR := fill(rSet.hostFds)
	hostW, maxW := fill(wSet.hostFds)
	hostE, maxE := fill(eSet.hostFds)
	maxFd := maxR
	if maxW > maxFd {
		maxFd = maxW
	}
	if maxE > maxFd {
		maxFd = maxE
	}

	rv := int64(-1)
	start := time.Now()
	if _, err := unix.Select(maxFd+1, hostR, hostW, hostE, timeout); err == nil {
		n := writeFdSet(p, nfds, rSet, hostR)
		n += writeFdSet(p, nfds, wSet, hostW)
		n += writeFdSet(p, nfds, eSet, hostE)
		rv = int64(n)
	}
	p.Log.Debugf("|--->>> select took %v", time.Since(start))
	p.Log.Infof("_newselect(%d, %#x, %#x, %#x, %#x) = %d", nfds, rAddr, wAddr, eAddr, tAddr, rv)
	ret(p, rv)
}
