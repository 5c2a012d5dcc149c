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

package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestToRelative(t *testing.T) {
	s := New("/tmp/rootfs", nil)
	cases := []struct {
		cwd, in, want string
	}{
		{"/", "/etc/hosts", "/etc/hosts"},
		{"/", "etc/hosts", "/etc/hosts"},
		{"/usr", "lib/libc.so", "/usr/lib/libc.so"},
		{"/usr", "../etc/passwd", "/etc/passwd"},
		{"/", "../../..", "/"},
		{"/a/b", ".", "/a/b"},
	}
	for _, tc := range cases {
		if got := s.ToRelative(tc.cwd, tc.in); got != tc.want {
			t.Errorf("ToRelative(%q, %q) = %q, want %q", tc.cwd, tc.in, got, tc.want)
		}
	}
}

func TestToRealRootfs(t *testing.T) {
	rootfs := t.TempDir()
	s := New(rootfs, nil)
	got, err := s.ToReal("/", "/etc/hosts")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(rootfs, "etc/hosts"); got != want {
		t.Fatalf("ToReal = %q, want %q", got, want)
	}
}

// Resolving a normalized guest path again must be stable:
// ToReal(ToRelative(p)) == ToReal(p).
func TestToRealIdempotent(t *testing.T) {
	rootfs := t.TempDir()
	s := New(rootfs, nil)
	for _, p := range []string{"/etc/hosts", "usr/../etc/hosts", "./bin/sh"} {
		direct, err := s.ToReal("/", p)
		if err != nil {
			t.Fatal(err)
		}
		via, err := s.ToReal("/", s.ToRelative("/", p))
		if err != nil {
			t.Fatal(err)
		}
		if direct != via {
			t.Errorf("path %q: direct %q != via relative %q", p, direct, via)
		}
	}
}

func TestMountOverride(t *testing.T) {
	rootfs := t.TempDir()
	alt := t.TempDir()
	altNested := t.TempDir()
	s := New(rootfs, []Mount{
		{Guest: "/opt", Host: alt},
		{Guest: "/opt/deep", Host: altNested},
	})

	got, err := s.ToReal("/", "/opt/file")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(alt, "file"); got != want {
		t.Fatalf("override = %q, want %q", got, want)
	}

	// Longest prefix wins.
	got, err = s.ToReal("/", "/opt/deep/file")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(altNested, "file"); got != want {
		t.Fatalf("nested override = %q, want %q", got, want)
	}

	// A prefix match must stop at a path boundary.
	got, err = s.ToReal("/", "/optimal")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(rootfs, "optimal"); got != want {
		t.Fatalf("boundary = %q, want %q", got, want)
	}
}

// A symlink with an absolute target resolves through the sandbox, never
// to the host root.
func TestSymlinkStaysInside(t *testing.T) {
	rootfs := t.TempDir()
	if err := os.MkdirAll(filepath.Join(rootfs, "etc"), 0755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(rootfs, "etc", "real.conf")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	// /etc/link.conf -> /etc/real.conf (guest-absolute target).
	if err := os.Symlink("/etc/real.conf", filepath.Join(rootfs, "etc", "link.conf")); err != nil {
		t.Fatal(err)
	}

	s := New(rootfs, nil)
	got, err := s.ToReal("/", "/etc/link.conf")
	if err != nil {
		t.Fatal(err)
	}
	if got != target {
		t.Fatalf("symlink resolved to %q, want %q", got, target)
	}

	// ToLink must not chase the final link.
	link := s.ToLink("/", "/etc/link.conf")
	if want := filepath.Join(rootfs, "etc", "link.conf"); link != want {
		t.Fatalf("ToLink = %q, want %q", link, want)
	}
}

func TestProcSelfExe(t *testing.T) {
	s := New(t.TempDir(), nil)
	s.SetExe("/bin/busybox")
	if got := s.ToRelative("/", "/proc/self/exe"); got != "/bin/busybox" {
		t.Fatalf("/proc/self/exe = %q, want /bin/busybox", got)
	}
}
