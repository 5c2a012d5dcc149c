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

// Package sandbox maps guest paths onto the host filesystem through a
// rootfs directory and an ordered list of mount overrides. Symlinks are
// chased through the same mapping, so a link target can never escape the
// sandbox.
package sandbox

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// maxLinkDepth bounds symlink chains, matching the kernel's ELOOP limit.
const maxLinkDepth = 40

// Mount redirects a guest path prefix to a host directory.
type Mount struct {
	// Guest is the guest-absolute prefix.
	Guest string

	// Host is the host directory it maps to.
	Host string
}

// Sandbox resolves guest paths. The zero value is unusable; use New.
type Sandbox struct {
	rootfs string
	mounts []Mount

	// exe is the guest-absolute path of the loaded binary, used to
	// answer /proc/self/exe.
	exe string
}

// New returns a sandbox rooted at rootfs with the given overrides. The
// mount list keeps caller order; resolution picks the longest matching
// guest prefix.
func New(rootfs string, mounts []Mount) *Sandbox {
	return &Sandbox{rootfs: rootfs, mounts: mounts}
}

// Rootfs returns the host directory serving as the guest root.
func (s *Sandbox) Rootfs() string { return s.rootfs }

// SetExe records the guest path of the loaded binary.
func (s *Sandbox) SetExe(guestPath string) { s.exe = guestPath }

// Exe returns the guest path of the loaded binary.
func (s *Sandbox) Exe() string { return s.exe }

// ToRelative normalizes p to guest-absolute form, resolving relative
// paths against cwd (the calling thread's current path).
func (s *Sandbox) ToRelative(cwd, p string) string {
	if p == "/proc/self/exe" && s.exe != "" {
		return s.exe
	}
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	if cwd == "" {
		cwd = "/"
	}
	return path.Clean(path.Join(cwd, p))
}

// ToLink maps p to a host path without following a final symlink. Used by
// readlink and readlinkat.
func (s *Sandbox) ToLink(cwd, p string) string {
	return s.mapToHost(s.ToRelative(cwd, p))
}

// ToReal maps p to a host path, chasing symlinks through the sandbox
// mapping.
func (s *Sandbox) ToReal(cwd, p string) (string, error) {
	return s.resolve(s.ToRelative(cwd, p), 0)
}

func (s *Sandbox) resolve(guestPath string, depth int) (string, error) {
	if depth > maxLinkDepth {
		return "", errors.Errorf("too many levels of symbolic links resolving %s", guestPath)
	}
	hostPath := s.mapToHost(guestPath)

	fi, err := os.Lstat(hostPath)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		// Missing paths still resolve; callers decide what a missing
		// file means.
		return hostPath, nil
	}
	target, err := os.Readlink(hostPath)
	if err != nil {
		return "", errors.Wrapf(err, "reading link %s", hostPath)
	}
	if path.IsAbs(target) {
		return s.resolve(path.Clean(target), depth+1)
	}
	return s.resolve(path.Clean(path.Join(path.Dir(guestPath), target)), depth+1)
}

// mapToHost applies the longest matching mount override, falling back to
// the rootfs.
func (s *Sandbox) mapToHost(guestPath string) string {
	var best *Mount
	for i := range s.mounts {
		m := &s.mounts[i]
		if !strings.HasPrefix(guestPath, m.Guest) {
			continue
		}
		// Prefix must end at a path boundary.
		if len(guestPath) > len(m.Guest) && m.Guest != "/" && guestPath[len(m.Guest)] != '/' {
			continue
		}
		if best == nil || len(m.Guest) > len(best.Guest) {
			best = m
		}
	}
	if best != nil {
		return filepath.Join(best.Host, strings.TrimPrefix(guestPath, best.Guest))
	}
	return filepath.Join(s.rootfs, guestPath)
}
