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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/guest"
)

func TestFlagsToTags(t *testing.T) {
	c := &Config{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs, c)
	if err := fs.Parse([]string{
		"-rootfs", "/tmp/r", "-os", "macos", "-arch", "mips32el",
		"-output", "debug", "-mount", "/var:/tmp/var",
	}); err != nil {
		t.Fatal(err)
	}

	if os, err := c.GuestOS(); err != nil || os != abi.MacOS {
		t.Fatalf("GuestOS = %v, %v", os, err)
	}
	if arch, err := c.GuestArch(); err != nil || arch != abi.MIPS32EL {
		t.Fatalf("GuestArch = %v, %v", arch, err)
	}
	if mode, err := c.OutputMode(); err != nil || mode != guest.OutputDebug {
		t.Fatalf("OutputMode = %v, %v", mode, err)
	}
	mounts, err := c.MountList()
	if err != nil {
		t.Fatal(err)
	}
	if len(mounts) != 1 || mounts[0].Guest != "/var" || mounts[0].Host != "/tmp/var" {
		t.Fatalf("mounts = %+v", mounts)
	}
}

func TestProfileDefaults(t *testing.T) {
	dir := t.TempDir()
	profile := filepath.Join(dir, "mips.toml")
	err := os.WriteFile(profile, []byte(`
rootfs = "/srv/rootfs"
os = "linux"
arch = "mipsel"
output = "off"
multithread = true
mounts = ["/dev:/tmp/dev"]
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	c := &Config{}
	if err := c.LoadProfile(profile); err != nil {
		t.Fatal(err)
	}
	if c.Rootfs != "/srv/rootfs" || !c.Threaded {
		t.Fatalf("profile config = %+v", c)
	}
	if arch, err := c.GuestArch(); err != nil || arch != abi.MIPS32EL {
		t.Fatalf("GuestArch = %v, %v", arch, err)
	}
	if mode, err := c.OutputMode(); err != nil || mode != guest.OutputOff {
		t.Fatalf("OutputMode = %v, %v", mode, err)
	}
}

func TestPlatformOverride(t *testing.T) {
	c := &Config{OS: "macos", Platform: "linux"}
	guestOS, err := c.GuestOS()
	if err != nil || guestOS != abi.MacOS {
		t.Fatalf("GuestOS = %v, %v", guestOS, err)
	}
	platform, err := c.PlatformOS()
	if err != nil || platform != abi.Linux {
		t.Fatalf("PlatformOS = %v, %v", platform, err)
	}
	// The override must not clobber the guest OS.
	if guestOS, _ = c.GuestOS(); guestOS != abi.MacOS {
		t.Fatal("PlatformOS mutated the guest OS")
	}
}

func TestBadMount(t *testing.T) {
	c := &Config{Mounts: mountList{"nocolon"}}
	if _, err := c.MountList(); err == nil {
		t.Fatal("malformed mount accepted")
	}
}
