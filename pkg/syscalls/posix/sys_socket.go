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
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/fdtable"
	"github.com/guestkit/guestkit/pkg/guest"
)

// unprivPortShift moves privileged ports into user range when not
// emulating root: guest port 80 binds host port 8080.
const unprivPortShift = 8000

// sysSocket implements socket(2). MIPS o32 guests number SOCK_STREAM 2,
// so both 1 and 2 fold to the host's stream type there.
func sysSocket(p *guest.Process, args [6]uint64) {
	domain, typ, proto := int(args[0]), int(args[1]), int(args[2])
	if p.Arch == abi.MIPS32EL && (typ == 1 || typ == 2) {
		typ = 1
	}
	rv := int64(-1)
	if s, err := fdtable.OpenSocket(domain, typ, proto); err == nil {
		if idx := p.Files.Install(s); idx >= 0 {
			rv = int64(idx)
		} else {
			s.Close()
		}
	}
	p.Log.Infof("socket(%d, %d, %d) = %d", domain, typ, proto, rv)
	ret(p, rv)
}

// parseInetAddr unpacks the family, port and IPv4 host from a guest
// sockaddr: family little-endian at 0, port big-endian at 2, address
// big-endian at 4.
func parseInetAddr(raw []byte) (family int, port int, host uint32) {
	if len(raw) < 8 {
		return 0, 0, 0
	}
	family = int(int16(binary.LittleEndian.Uint16(raw[0:2])))
	port = int(binary.BigEndian.Uint16(raw[2:4]))
	host = binary.BigEndian.Uint32(raw[4:8])
	return family, port, host
}

func ipv4String(host uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", host>>24&0xff, host>>16&0xff, host>>8&0xff, host&0xff)
}

// sysBind implements bind(2). Binds land on loopback; privileged guest
// ports are shifted up for unprivileged hosts, and the effective port is
// claimed on the process.
func sysBind(p *guest.Process, args [6]uint64) {
	fd, addr, addrlen := fdArg(args[0]), args[1], args[2]

	readLen := addrlen
	if p.Arch == abi.AMD64 {
		readLen = 8
	}
	raw, err := p.CPU.MemRead(addr, readLen)
	if err != nil {
		ret(p, -1)
		return
	}
	family, port, host := parseInetAddr(raw)
	hostStr := ipv4String(host)
	if family == abi.AFInet6 {
		hostStr = "::"
	}
	if !p.Root && port <= 1024 {
		port += unprivPortShift
	}

	rv := int64(0)
	sock, _ := p.Files.Get(fd).(*fdtable.Socket)
	switch {
	case sock == nil:
		rv = -1
	case port != 0 && family == abi.AFInet:
		sa := &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}
		if err := sock.Bind(sa); err != nil {
			rv = -1
		} else {
			p.Port = uint16(port)
		}
	case p.Port != 0 && family == abi.AFInet6 && int(p.Port) != port:
		sa := &unix.SockaddrInet6{Port: port}
		sa.Addr[15] = 1 // ::1
		if err := sock.Bind(sa); err != nil {
			rv = -1
		}
	default:
		rv = -1
	}
	p.Log.Infof("bind(%d,%s:%d,%d) = %d", fd, hostStr, port, addrlen, rv)
	ret(p, rv)
}

// sysListen implements listen(2).
func sysListen(p *guest.Process, args [6]uint64) {
	fd, backlog := fdArg(args[0]), int(args[1])
	rv := int64(-1)
	if sock, ok := p.Files.Get(fd).(*fdtable.Socket); ok {
		if err := sock.Listen(backlog); err == nil {
			rv = 0
		}
	}
	p.Log.Infof("listen(%d, %d) = %d", fd, backlog, rv)
	ret(p, rv)
}

// sysAccept implements accept(2), installing the connection in a fresh
// slot and writing the packed peer address back.
func sysAccept(p *guest.Process, args [6]uint64) {
	fd, addrPtr, lenPtr := fdArg(args[0]), args[1], args[2]
	rv := int64(-1)
	if sock, ok := p.Files.Get(fd).(*fdtable.Socket); ok {
		conn, sa, err := sock.Accept()
		if err == nil {
			idx := p.Files.Install(conn)
			if idx < 0 {
				conn.Close()
			} else {
				rv = int64(idx)
				if addrPtr != 0 {
					if inet, ok := sa.(*unix.SockaddrInet4); ok {
						buf := make([]byte, 16)
						binary.LittleEndian.PutUint16(buf[0:2], uint16(conn.Family()))
						binary.LittleEndian.PutUint16(buf[2:4], uint16(inet.Port))
						// inet_addr byte order: low octet first.
						buf[4], buf[5], buf[6], buf[7] = inet.Addr[3], inet.Addr[2], inet.Addr[1], inet.Addr[0]
						p.CPU.MemWrite(addrPtr, buf)
						p.WriteU32(lenPtr, 16)
					}
				}
			}
		}
	}
	p.Log.Infof("accept(%d, %#x, %#x) = %d", fd, addrPtr, lenPtr, rv)
	ret(p, rv)
}

// sysConnect implements connect(2). AF_UNIX paths are rooted in the
// sandbox; AF_INET goes where the guest asked.
func sysConnect(p *guest.Process, args [6]uint64) {
	fd, addrPtr, addrlen := fdArg(args[0]), args[1], args[2]
	raw, err := p.CPU.MemRead(addrPtr, addrlen)
	if err != nil || len(raw) < 2 {
		ret(p, -1)
		return
	}
	family := int(int16(binary.LittleEndian.Uint16(raw[0:2])))
	rv := int64(-1)

	sock, _ := p.Files.Get(fd).(*fdtable.Socket)
	switch {
	case sock == nil || sock.Family() != family:
		rv = -1
		p.Log.Infof("connect() = %d", rv)
	case family == abi.AFUnix:
		sun := raw[2:]
		if i := bytes.IndexByte(sun, 0); i >= 0 {
			sun = sun[:i]
		}
		path := filepath.Join(p.Sandbox.Rootfs(), string(sun))
		if err := sock.Connect(&unix.SockaddrUnix{Name: path}); err == nil {
			rv = 0
		}
		p.Log.Infof("connect(%s) = %d", path, rv)
	case family == abi.AFInet:
		_, port, host := parseInetAddr(raw)
		sa := &unix.SockaddrInet4{Port: port}
		binary.BigEndian.PutUint32(sa.Addr[:], host)
		if err := sock.Connect(sa); err == nil {
			rv = 0
		}
		p.Log.Infof("connect(%s, %d) = %d", ipv4String(host), port, rv)
	default:
		p.Log.Infof("connect() = %d", rv)
	}
	ret(p, rv)
}

// sysSetsockopt accepts and ignores socket options.
func sysSetsockopt(p *guest.Process, args [6]uint64) {
	p.Log.Infof("setsockopt() = 0")
	ret(p, 0)
}

// sysShutdown implements shutdown(2).
func sysShutdown(p *guest.Process, args [6]uint64) {
	fd, how := fdArg(args[0]), int(args[1])
	p.Log.Infof("shutdown(%d, %d)", fd, how)
	rv := int64(-1)
	if sock, ok := p.Files.Get(fd).(*fdtable.Socket); ok {
		if err := sock.Shutdown(how); err == nil {
			rv = 0
		}
	}
	ret(p, rv)
}

// sysRecv implements recv(2).
func sysRecv(p *guest.Process, args [6]uint64) {
	fd, buf, length, flags := fdArg(args[0]), args[1], args[2], int(args[3])
	rv := int64(-1)
	if sock, ok := p.Files.Get(fd).(*fdtable.Socket); ok {
		data := make([]byte, length)
		if n, err := sock.Recv(data, flags); err == nil {
			if n > 0 {
				if werr := p.CPU.MemWrite(buf, data[:n]); werr != nil {
					n = -1
				}
			}
			rv = int64(n)
		}
	}
	p.Log.Infof("recv(%d, %#x, %d, %#x) = %d", fd, buf, length, flags, rv)
	ret(p, rv)
}

// sysSend implements send(2).
func sysSend(p *guest.Process, args [6]uint64) {
	fd, buf, length, flags := fdArg(args[0]), args[1], args[2], int(args[3])
	rv := int64(-1)
	if sock, ok := p.Files.Get(fd).(*fdtable.Socket); ok {
		data, err := p.CPU.MemRead(buf, length)
		if err == nil {
			p.Log.Debugf("|--->>> send() CONTENT: %q", data)
			if n, serr := sock.Send(data, flags); serr == nil {
				rv = int64(n)
			}
		}
	}
	p.Log.Infof("send(%d, %#x, %d, %#x) = %d", fd, buf, length, flags, rv)
	ret(p, rv)
}

// sysIoctl services the small whitelist the layer understands: terminal
// queries on stdio and interface queries on sockets.
func sysIoctl(p *guest.Process, args [6]uint64) {
	fd, cmd, arg := fdArg(args[0]), args[1], args[2]
	rv := int64(-1)

	if sock, ok := p.Files.Get(fd).(*fdtable.Socket); ok && (cmd == abi.IoctlSIOCGIFADDR || cmd == abi.IoctlSIOCGIFNETMASK) {
		if raw, err := p.CPU.MemRead(arg, 64); err == nil {
			p.Log.Debugf("|--->>> Query network card : %q", raw)
			if data, ierr := sock.Ioctl(cmd, raw); ierr == nil {
				if p.CPU.MemWrite(arg, data) == nil {
					rv = 0
				}
			}
		}
	} else {
		switch cmd {
		case abi.IoctlTCGETS:
			// Terminal attributes on stdin/stdout only, zeros.
			if fd == 0 || fd == 1 {
				if p.CPU.MemWrite(arg, make([]byte, 4)) == nil {
					rv = 0
				}
			}
		case abi.IoctlTIOCGWINSZ:
			if fd == 0 || fd == 1 {
				buf := make([]byte, 8)
				binary.LittleEndian.PutUint16(buf[0:2], 1000)
				binary.LittleEndian.PutUint16(buf[2:4], 360)
				binary.LittleEndian.PutUint16(buf[4:6], 1000)
				binary.LittleEndian.PutUint16(buf[6:8], 1000)
				if p.CPU.MemWrite(arg, buf) == nil {
					rv = 0
				}
			}
		case abi.IoctlTIOCSWINSZ:
			if fd == 0 || fd == 1 {
				rv = 0
			}
		}
	}
	p.Log.Infof("ioctl(%#x, %#x, %#x) = %d", fd, cmd, arg, rv)
	ret(p, rv)
}

// sysSocketcall is the x86 socket multiplexer: the real arguments live
// in guest memory at args[1].
func sysSocketcall(p *guest.Process, args [6]uint64) {
	call, argp := args[0], args[1]
	p.Log.Infof("socketcall(%d, %#x)", call, argp)

	word := uint64(p.Arch.PointerSize())
	load := func(i uint64) uint64 {
		v, err := p.ReadPtr(argp + i*word)
		if err != nil {
			return 0
		}
		return v
	}

	switch call {
	case abi.SocketcallSocket:
		sysSocket(p, [6]uint64{load(0), load(1), load(2)})
	case abi.SocketcallBind:
		sysBind(p, [6]uint64{load(0), load(1), load(2)})
	case abi.SocketcallConnect:
		sysConnect(p, [6]uint64{load(0), load(1), load(2)})
	case abi.SocketcallListen:
		sysListen(p, [6]uint64{load(0), load(1)})
	case abi.SocketcallAccept:
		sysAccept(p, [6]uint64{load(0), load(1), load(2)})
	case abi.SocketcallSend:
		sysSend(p, [6]uint64{load(0), load(1), load(2), load(3)})
	case abi.SocketcallRecv:
		sysRecv(p, [6]uint64{load(0), load(1), load(2), load(3)})
	default:
		p.Log.Errorf("socketcall: unsupported call %d", call)
		p.StopEngine()
	}
}
