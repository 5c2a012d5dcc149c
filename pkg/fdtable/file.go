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
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// File is a descriptor backed by a host file.
type File struct {
	host  *os.File
	path  string
	flags int
}

// OpenFile opens hostPath with already-translated host flags and installs
// nothing; the caller owns slot placement. guestPath is the label the
// guest sees in logs.
func OpenFile(hostPath, guestPath string, flags int, mode uint32) (*File, error) {
	f, err := os.OpenFile(hostPath, flags, os.FileMode(mode))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", guestPath)
	}
	return &File{host: f, path: guestPath, flags: flags}, nil
}

// Read implements IO.Read.
func (f *File) Read(p []byte) (int, error) { return f.host.Read(p) }

// Write implements IO.Write.
func (f *File) Write(p []byte) (int, error) { return f.host.Write(p) }

// Seek implements IO.Seek.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.host.Seek(offset, whence)
}

// Close implements IO.Close.
func (f *File) Close() error { return f.host.Close() }

// Dup implements IO.Dup. Both descriptors share the host file and its
// offset, matching dup(2).
func (f *File) Dup() (IO, error) {
	return &File{host: f.host, path: f.path, flags: f.flags}, nil
}

// Name implements IO.Name.
func (f *File) Name() string { return f.path }

// Flags returns the host open flags the file was opened with.
func (f *File) Flags() int { return f.flags }

// Stat implements IO.Stat.
func (f *File) Stat() (StatInfo, error) {
	fi, err := f.host.Stat()
	if err != nil {
		return StatInfo{}, err
	}
	return statFromFileInfo(fi), nil
}

// StatPath stats a host path directly, for the path-based stat calls.
func StatPath(hostPath string) (StatInfo, error) {
	fi, err := os.Stat(hostPath)
	if err != nil {
		return StatInfo{}, err
	}
	return statFromFileInfo(fi), nil
}

func statFromFileInfo(fi os.FileInfo) StatInfo {
	st := StatInfo{
		Mode:  uint32(fi.Mode().Perm()),
		Nlink: 1,
		Size:  fi.Size(),
		Mtime: fi.ModTime().Unix(),
		Atime: fi.ModTime().Unix(),
		Ctime: fi.ModTime().Unix(),
	}
	if fi.IsDir() {
		st.Mode |= syscall.S_IFDIR
	} else {
		st.Mode |= syscall.S_IFREG
	}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		st.Dev = uint64(sys.Dev)
		st.Ino = uint64(sys.Ino)
		st.Mode = uint32(sys.Mode)
		st.Nlink = uint32(sys.Nlink)
		st.UID = sys.Uid
		st.GID = sys.Gid
		st.Rdev = uint32(sys.Rdev)
		st.Blksize = uint32(sys.Blksize)
		st.Blocks = sys.Blocks
		st.Atime = sys.Atim.Sec
		st.Mtime = sys.Mtim.Sec
		st.Ctime = sys.Ctim.Sec
	}
	return st
}
