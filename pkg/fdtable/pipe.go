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
	"bytes"

	"github.com/pkg/errors"
)

// pipeBuffer is the store shared by both ends of a guest pipe. No lock:
// only one guest thread runs at a time.
type pipeBuffer struct {
	buf    bytes.Buffer
	closed int
}

// Pipe is one end of an in-memory guest pipe.
type Pipe struct {
	shared *pipeBuffer
	writer bool
}

// NewPipe returns the read and write ends of a fresh pipe.
func NewPipe() (r, w *Pipe) {
	shared := &pipeBuffer{}
	return &Pipe{shared: shared}, &Pipe{shared: shared, writer: true}
}

// Read drains buffered bytes in FIFO order. An empty pipe reads as zero
// bytes rather than blocking; blocking semantics belong to the scheduler.
func (p *Pipe) Read(b []byte) (int, error) {
	if p.writer {
		return 0, errors.New("read on pipe write end")
	}
	if p.shared.buf.Len() == 0 {
		return 0, nil
	}
	return p.shared.buf.Read(b)
}

// Write appends to the shared buffer.
func (p *Pipe) Write(b []byte) (int, error) {
	if !p.writer {
		return 0, errors.New("write on pipe read end")
	}
	return p.shared.buf.Write(b)
}

// Seek implements IO.Seek. Pipes have no offset.
func (p *Pipe) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("seek on pipe")
}

// Close implements IO.Close.
func (p *Pipe) Close() error {
	p.shared.closed++
	return nil
}

// Dup implements IO.Dup; the duplicate shares the buffer.
func (p *Pipe) Dup() (IO, error) {
	dup := *p
	return &dup, nil
}

// Stat implements IO.Stat.
func (p *Pipe) Stat() (StatInfo, error) {
	return StatInfo{Mode: 0x1000, Size: int64(p.shared.buf.Len())}, nil
}

// Name implements IO.Name.
func (p *Pipe) Name() string {
	if p.writer {
		return "pipe:[w]"
	}
	return "pipe:[r]"
}

// Buffered returns the number of unread bytes in the pipe.
func (p *Pipe) Buffered() int { return p.shared.buf.Len() }
