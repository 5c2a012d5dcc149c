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

package fdtable

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Socket is a descriptor backed by a host socket.
type Socket struct {
	fd     int
	family int
	typ    int
	proto  int
	label  string
}

// OpenSocket creates a host socket of the given family, type and
// protocol.
func OpenSocket(family, typ, proto int) (*Socket, error) {
	fd, err := unix.Socket(family, typ, proto)
	if err != nil {
		return nil, errors.Wrap(err, "opening host socket")
	}
	return &Socket{
		fd:     fd,
		family: family,
		typ:    typ,
		proto:  proto,
		label:  fmt.Sprintf("socket(%d, %d, %d)", family, typ, proto),
	}, nil
}

// HostFD exposes the host descriptor for select(2) plumbing.
func (s *Socket) HostFD() int { return s.fd }

// Family returns the socket's address family.
func (s *Socket) Family() int { return s.family }

// Read implements IO.Read.
func (s *Socket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

// Write implements IO.Write.
func (s *Socket) Write(p []byte) (int, error) {
	return unix.Write(s.fd, p)
}

// Seek implements IO.Seek. Sockets have no offset.
func (s *Socket) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("seek on socket")
}

// Close implements IO.Close.
func (s *Socket) Close() error { return unix.Close(s.fd) }

// Dup implements IO.Dup.
func (s *Socket) Dup() (IO, error) {
	nfd, err := unix.Dup(s.fd)
	if err != nil {
		return nil, err
	}
	dup := *s
	dup.fd = nfd
	return &dup, nil
}

// Stat implements IO.Stat.
func (s *Socket) Stat() (StatInfo, error) {
	var st unix.Stat_t
	if err := unix.Fstat(s.fd, &st); err != nil {
		return StatInfo{}, err
	}
	return StatInfo{
		Dev:     uint64(st.Dev),
		Ino:     uint64(st.Ino),
		Mode:    uint32(st.Mode),
		Nlink:   uint32(st.Nlink),
		UID:     st.Uid,
		GID:     st.Gid,
		Size:    st.Size,
		Blksize: uint32(st.Blksize),
		Blocks:  st.Blocks,
		Atime:   st.Atim.Sec,
		Mtime:   st.Mtim.Sec,
		Ctime:   st.Ctim.Sec,
	}, nil
}

// Name implements IO.Name.
func (s *Socket) Name() string { return s.label }

// Bind binds the host socket.
func (s *Socket) Bind(sa unix.Sockaddr) error { return unix.Bind(s.fd, sa) }

// Listen marks the socket passive.
func (s *Socket) Listen(backlog int) error { return unix.Listen(s.fd, backlog) }

// Connect connects the host socket.
func (s *Socket) Connect(sa unix.Sockaddr) error { return unix.Connect(s.fd, sa) }

// Accept takes the next pending connection, returning a new Socket and
// the peer address.
func (s *Socket) Accept() (*Socket, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept(s.fd)
	if err != nil {
		return nil, nil, err
	}
	return &Socket{
		fd:     nfd,
		family: s.family,
		typ:    s.typ,
		proto:  s.proto,
		label:  "socket(accepted)",
	}, sa, nil
}

// Recv receives up to len(p) bytes with flags.
func (s *Socket) Recv(p []byte, flags int) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, p, flags)
	if n < 0 {
		n = 0
	}
	return n, err
}

// Send transmits p with flags.
func (s *Socket) Send(p []byte, flags int) (int, error) {
	if err := unix.Sendto(s.fd, p, flags, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Shutdown shuts down the host socket.
func (s *Socket) Shutdown(how int) error { return unix.Shutdown(s.fd, how) }

// Ioctl forwards an interface query (SIOCGIFADDR and friends) to the
// host socket: arg is the raw ifreq buffer, returned updated.
func (s *Socket) Ioctl(cmd uint64, arg []byte) ([]byte, error) {
	buf := make([]byte, len(arg))
	copy(buf, arg)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), uintptr(cmd), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return nil, errno
	}
	return buf, nil
}
