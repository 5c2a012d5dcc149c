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

// Package cli is the main entrypoint for guestrun.
package cli

import (
	"context"
	"flag"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/guestkit/guestkit/guestrun/cmd"
	"github.com/guestkit/guestkit/guestrun/config"
)

// Main is the main entrypoint.
func Main() {
	conf := &config.Config{}
	config.RegisterFlags(flag.CommandLine, conf)

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(cmd.NewRun(conf), "")
	subcommands.Register(new(cmd.Syscalls), "")

	// A profile named early on the command line supplies defaults; the
	// second parse lets explicit flags override it.
	flag.Parse()
	if conf.Profile != "" {
		if err := conf.LoadProfile(conf.Profile); err != nil {
			logrus.Fatalf("%v", err)
		}
		flag.CommandLine.Parse(os.Args[1:])
	}

	setupLogging(conf)

	logrus.Debugf("***************************")
	logrus.Debugf("Args: %s", os.Args)
	logrus.Debugf("GOOS: %s, GOARCH: %s", runtime.GOOS, runtime.GOARCH)
	logrus.Debugf("PID: %d", os.Getpid())
	logrus.Debugf("Rootfs: %s", conf.Rootfs)
	logrus.Debugf("Guest: %s/%s, output: %s", conf.OS, conf.Arch, conf.Output)
	logrus.Debugf("***************************")

	os.Exit(int(subcommands.Execute(context.Background())))
}

// setupLogging points logrus at the configured sink and verbosity.
// Children of a fork get their own log file next to the parent's.
func setupLogging(conf *config.Config) {
	switch conf.Output {
	case "off":
		logrus.SetLevel(logrus.ErrorLevel)
	case "debug", "dump", "disasm":
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors:    !isatty.IsTerminal(os.Stderr.Fd()),
		DisableTimestamp: true,
	})

	if conf.LogFile == "" {
		return
	}
	path := conf.LogFile
	if os.Getenv("GUESTKIT_CHILD") != "" {
		path = logChildPath(path)
	}
	// Append rather than truncate: fork children and re-runs share the
	// file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		logrus.Warnf("cannot open log file %q: %v", path, err)
		return
	}
	logrus.SetOutput(f)
}
