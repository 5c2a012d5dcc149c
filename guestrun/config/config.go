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

// Package config holds the emulator options and their mapping from
// flags and TOML profiles. Flags win over the profile; the profile wins
// over defaults.
package config

import (
	"flag"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/guest"
	"github.com/guestkit/guestkit/pkg/sandbox"
)

// Config are the user-selectable emulator options.
type Config struct {
	// Rootfs is the host directory serving as the guest root.
	Rootfs string `toml:"rootfs"`

	// Output selects the trace verbosity: off, default, debug, dump or
	// disasm.
	Output string `toml:"output"`

	// LogFile receives the log stream instead of stderr when set.
	LogFile string `toml:"log_file"`

	// OS is the guest operating system: linux, macos, windows or
	// freebsd.
	OS string `toml:"os"`

	// Arch is the guest architecture: x86, x86-64, arm, arm64 or
	// mips32el.
	Arch string `toml:"arch"`

	// Platform overrides the OS whose flag encodings the host side
	// uses; empty means same as OS.
	Platform string `toml:"platform"`

	// Root emulates a root user when false (uid 0) and an unprivileged
	// one when true, mirroring the original's inverted flag.
	Root bool `toml:"root"`

	// LibCache enables the shared loader cache, guarded by a file
	// lock.
	LibCache bool `toml:"libcache"`

	// Threaded enables the cooperative scheduler.
	Threaded bool `toml:"multithread"`

	// Mounts are guest:host path overrides.
	Mounts mountList `toml:"mounts"`

	// Profile is the TOML file these defaults were loaded from.
	Profile string `toml:"-"`
}

type mountList []string

func (m *mountList) String() string { return strings.Join(*m, ",") }

func (m *mountList) Set(v string) error {
	if !strings.Contains(v, ":") {
		return errors.Errorf("mount %q is not guest:host", v)
	}
	*m = append(*m, v)
	return nil
}

// RegisterFlags declares every option on fs.
func RegisterFlags(fs *flag.FlagSet, c *Config) {
	fs.StringVar(&c.Rootfs, "rootfs", c.Rootfs, "host directory serving as the guest root")
	fs.StringVar(&c.Output, "output", "default", "trace verbosity: off|default|debug|dump|disasm")
	fs.StringVar(&c.LogFile, "log-file", "", "write the log stream to this file")
	fs.StringVar(&c.OS, "os", "linux", "guest OS: linux|macos|windows|freebsd")
	fs.StringVar(&c.Arch, "arch", "x86-64", "guest architecture: x86|x86-64|arm|arm64|mips32el")
	fs.StringVar(&c.Platform, "platform", "", "flag-encoding platform override (defaults to the guest OS)")
	fs.BoolVar(&c.Root, "root", false, "emulate an unprivileged user instead of root")
	fs.BoolVar(&c.LibCache, "libcache", false, "enable the shared library cache")
	fs.BoolVar(&c.Threaded, "multithread", false, "enable the cooperative thread scheduler")
	fs.Var(&c.Mounts, "mount", "guest:host path override, repeatable")
	fs.StringVar(&c.Profile, "profile", "", "TOML profile supplying defaults for these flags")
}

// LoadProfile merges the TOML profile over the current values. The CLI
// calls it after a first flag parse and then parses the flags again, so
// explicit flags still win.
func (c *Config) LoadProfile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return errors.Wrapf(err, "reading profile %s", path)
	}
	return nil
}

// GuestOS maps the OS string to its tag.
func (c *Config) GuestOS() (abi.OS, error) {
	switch c.OS {
	case "linux", "":
		return abi.Linux, nil
	case "macos":
		return abi.MacOS, nil
	case "windows":
		return abi.Windows, nil
	case "freebsd":
		return abi.FreeBSD, nil
	default:
		return 0, errors.Errorf("unknown OS %q", c.OS)
	}
}

// GuestArch maps the Arch string to its tag.
func (c *Config) GuestArch() (abi.Arch, error) {
	switch c.Arch {
	case "x86":
		return abi.X86, nil
	case "x86-64", "x8664", "amd64", "":
		return abi.AMD64, nil
	case "arm":
		return abi.ARM, nil
	case "arm64", "aarch64":
		return abi.ARM64, nil
	case "mips32el", "mipsel":
		return abi.MIPS32EL, nil
	default:
		return 0, errors.Errorf("unknown architecture %q", c.Arch)
	}
}

// PlatformOS maps the Platform override, falling back to the guest OS.
func (c *Config) PlatformOS() (abi.OS, error) {
	if c.Platform == "" {
		return c.GuestOS()
	}
	saved := c.OS
	c.OS = c.Platform
	defer func() { c.OS = saved }()
	return c.GuestOS()
}

// OutputMode maps the Output string to its mode.
func (c *Config) OutputMode() (guest.OutputMode, error) {
	switch c.Output {
	case "off":
		return guest.OutputOff, nil
	case "default", "":
		return guest.OutputDefault, nil
	case "debug":
		return guest.OutputDebug, nil
	case "dump":
		return guest.OutputDump, nil
	case "disasm":
		return guest.OutputDisasm, nil
	default:
		return 0, errors.Errorf("unknown output mode %q", c.Output)
	}
}

// MountList converts the guest:host pairs into sandbox mounts.
func (c *Config) MountList() ([]sandbox.Mount, error) {
	out := make([]sandbox.Mount, 0, len(c.Mounts))
	for _, m := range c.Mounts {
		parts := strings.SplitN(m, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("mount %q is not guest:host", m)
		}
		out = append(out, sandbox.Mount{Guest: parts[0], Host: parts[1]})
	}
	return out, nil
}
