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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/guest"
)

// Syscalls prints handler coverage per guest OS and architecture.
type Syscalls struct {
	osFlag   string
	archFlag string
}

// Name implements subcommands.Command.
func (*Syscalls) Name() string { return "syscalls" }

// Synopsis implements subcommands.Command.
func (*Syscalls) Synopsis() string { return "list implemented syscalls" }

// Usage implements subcommands.Command.
func (*Syscalls) Usage() string {
	return `syscalls [-os linux] [-arch x86-64] - list the implemented syscalls
`
}

// SetFlags implements subcommands.Command.
func (s *Syscalls) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&s.osFlag, "os", "linux", "guest OS")
	fs.StringVar(&s.archFlag, "arch", "x86-64", "guest architecture")
}

// Execute implements subcommands.Command.
func (s *Syscalls) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	pairs := []struct {
		os   abi.OS
		arch abi.Arch
	}{
		{abi.Linux, abi.X86}, {abi.Linux, abi.AMD64}, {abi.Linux, abi.ARM},
		{abi.Linux, abi.ARM64}, {abi.Linux, abi.MIPS32EL},
		{abi.MacOS, abi.X86}, {abi.MacOS, abi.AMD64},
	}
	for _, pair := range pairs {
		if s.osFlag != "" && pair.os.String() != s.osFlag {
			continue
		}
		if s.archFlag != "" && pair.arch.String() != s.archFlag {
			continue
		}
		table, err := guest.LookupTable(pair.os, pair.arch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s/%s: %d syscalls\n", pair.os, pair.arch, len(table.Calls))
		for _, name := range table.Names() {
			fmt.Printf("  %s\n", name)
		}
	}
	return subcommands.ExitSuccess
}
