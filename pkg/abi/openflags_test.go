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

package abi

import "testing"

func TestTranslateOpenFlags(t *testing.T) {
	cases := []struct {
		name  string
		flags uint64
		from  OS
		to    OS
		want  uint64
	}{
		{"same OS passthrough", 0xdeadbeef, Linux, Linux, 0xdeadbeef},
		{"creat mac to linux", 0x200, MacOS, Linux, 0x40},
		{"creat linux to mac", 0x40, Linux, MacOS, 0x200},
		{"wronly|creat|trunc mac to linux", 0x1 | 0x200 | 0x400, MacOS, Linux, 0x1 | 0x40 | 0x200},
		{"nonblock linux to mac", 0x800, Linux, MacOS, 0x4},
		{"directory mac to linux", 0x100000, MacOS, Linux, 0x10000},
	}
	for _, tc := range cases {
		if got := TranslateOpenFlags(tc.flags, tc.from, tc.to); got != tc.want {
			t.Errorf("%s: got %#x, want %#x", tc.name, got, tc.want)
		}
	}
}

// TestOpenFlagRoundTrip: translating every table flag macOS→Linux→macOS
// preserves the recognized set.
func TestOpenFlagRoundTrip(t *testing.T) {
	for _, f := range openFlags {
		if f.macos == 0 {
			continue
		}
		linux := TranslateOpenFlags(f.macos, MacOS, Linux)
		back := TranslateOpenFlags(linux, Linux, MacOS)
		if back != f.macos {
			t.Errorf("%s: %#x -> %#x -> %#x", f.name, f.macos, linux, back)
		}
	}
}

func TestPageRoundUp(t *testing.T) {
	cases := map[uint64]uint64{
		0:      0,
		1:      0x1000,
		0x1000: 0x1000,
		0x1001: 0x2000,
		0x2fff: 0x3000,
	}
	for in, want := range cases {
		if got := PageRoundUp(in); got != want {
			t.Errorf("PageRoundUp(%#x) = %#x, want %#x", in, got, want)
		}
	}
}

func TestMapAnonymous(t *testing.T) {
	if MapAnonymous(MIPS32EL) != 0x800 {
		t.Error("MIPS MAP_ANONYMOUS must be 0x800")
	}
	for _, a := range []Arch{X86, AMD64, ARM, ARM64} {
		if MapAnonymous(a) != 0x20 {
			t.Errorf("%v MAP_ANONYMOUS must be 0x20", a)
		}
	}
}
