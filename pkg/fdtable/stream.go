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
	"io"

	"github.com/pkg/errors"
)

// Stream wraps a host reader or writer as a guest descriptor. It backs
// stdio, whether that is the real tty or an in-memory buffer under test.
type Stream struct {
	name string
	r    io.Reader
	w    io.Writer
}

// NewReadStream wraps r as a read-only descriptor.
func NewReadStream(name string, r io.Reader) *Stream {
	return &Stream{name: name, r: r}
}

// NewWriteStream wraps w as a write-only descriptor.
func NewWriteStream(name string, w io.Writer) *Stream {
	return &Stream{name: name, w: w}
}

// Read implements IO.Read.
func (s *Stream) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, errors.Errorf("%s is not readable", s.name)
	}
	return s.r.Read(p)
}

// Write implements IO.Write.
func (s *Stream) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, errors.Errorf("%s is not writable", s.name)
	}
	return s.w.Write(p)
}

// Seek implements IO.Seek. Streams have no offset.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.Errorf("seek on %s", s.name)
}

// Close implements IO.Close. The underlying host stream stays open; the
// guest only gives up its descriptor.
func (s *Stream) Close() error { return nil }

// Dup implements IO.Dup.
func (s *Stream) Dup() (IO, error) { return s, nil }

// Stat implements IO.Stat. Character device, the way a tty stats.
func (s *Stream) Stat() (StatInfo, error) {
	return StatInfo{Mode: 0x2000 | 0o620, Nlink: 1, Rdev: 0x8800, Blksize: 1024}, nil
}

// Name implements IO.Name.
func (s *Stream) Name() string { return s.name }
