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

// openFlag is one row of the open(2) flag translation table.
type openFlag struct {
	name  string
	macos uint64
	linux uint64
}

// openFlags is ordered; translation walks it in order and ORs the
// matching target bits.
var openFlags = []openFlag{
	{"O_RDONLY", 0x0, 0x0},
	{"O_WRONLY", 0x1, 0x1},
	{"O_RDWR", 0x2, 0x2},
	{"O_NONBLOCK", 0x4, 0x800},
	{"O_APPEND", 0x8, 0x400},
	{"O_ASYNC", 0x40, 0x2000},
	{"O_SYNC", 0x80, 0x101000},
	{"O_NOFOLLOW", 0x100, 0x20000},
	{"O_CREAT", 0x200, 0x40},
	{"O_TRUNC", 0x400, 0x200},
	{"O_EXCL", 0x800, 0x80},
	{"O_NOCTTY", 0x20000, 0x100},
	{"O_DIRECTORY", 0x100000, 0x10000},
}

// TranslateOpenFlags rewrites open(2) flags from the guest OS encoding to
// the platform encoding. When the two match the flags pass through
// untouched, including bits outside the table.
func TranslateOpenFlags(flags uint64, guest, platform OS) uint64 {
	if guest == platform {
		return flags
	}
	from, to := flagColumns(guest, platform)
	var out uint64
	for i := range openFlags {
		if from[i] != 0 && flags&from[i] == from[i] {
			out |= to[i]
		}
	}
	return out
}

func flagColumns(from, to OS) (src, dst []uint64) {
	col := func(o OS) []uint64 {
		vals := make([]uint64, len(openFlags))
		for i, f := range openFlags {
			if o == MacOS {
				vals[i] = f.macos
			} else {
				vals[i] = f.linux
			}
		}
		return vals
	}
	return col(from), col(to)
}
