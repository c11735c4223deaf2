// Copyright 2026 The gVisor Authors.
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

// Package cli is the main entrypoint for xstatectl.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/xstate/pkg/log"
	"gvisor.dev/xstate/xstatectl/cmd"
	"gvisor.dev/xstate/xstatectl/cmd/util"
	"gvisor.dev/xstate/xstatectl/config"
)

// versionFlagName is the name of a flag that triggers printing the version.
const versionFlagName = "version"

// version is set at link time with -X.
var version = "unknown"

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	if flag.Lookup(versionFlagName) == nil {
		flag.Bool(versionFlagName, false, "show version and exit.")
	}

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if flag.Lookup(versionFlagName).Value.(flag.Getter).Get().(bool) {
		fmt.Fprintf(os.Stdout, "xstatectl version %s\n", version)
		os.Exit(0)
	}

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	var errorLogger io.Writer
	if conf.LogFilename != "" {
		errorLogger, err = os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
	}
	util.ErrorLogger = errorLogger
	util.ErrorLogFormat = conf.LogFormat

	subcommand := flag.CommandLine.Arg(0)

	if conf.Debug {
		log.SetLevel(log.Debug)
	}

	var emitters log.MultiEmitter
	if len(conf.DebugLog) > 0 {
		f, err := log.OpenFile(conf.DebugLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, debugLogPattern(subcommand, time.Now()))
		if err != nil {
			util.Fatalf("error opening debug log file in %q: %v", conf.DebugLog, err)
		}
		emitters = append(emitters, newEmitter(conf.DebugLogFormat, f))
	}
	if conf.AlsoLogToStderr {
		emitters = append(emitters, newEmitter(conf.DebugLogFormat, os.Stderr))
	}

	switch len(emitters) {
	case 0:
		// Stdout carries command output, discard the logs if no debug
		// log is specified.
		log.SetTarget(newEmitter("text", io.Discard))
	case 1:
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}

	log.Infof("Version %s, %s, %s, %d CPUs, %s, PID %d", version, runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	if subcmdCode == subcommands.ExitSuccess {
		os.Exit(0)
	}
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// xstatectl.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	cb(new(cmd.Sizes), "")
	cb(new(cmd.Decode), "")
	cb(new(cmd.Profile), "")

	const hostGroup = "host"
	cb(new(cmd.Dump), hostGroup)
	cb(new(cmd.Check), hostGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	util.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}

// debugLogPattern expands %TIMESTAMP% and %COMMAND% in the debug log path.
// A path ending in "/" is a directory and gets a default file name.
func debugLogPattern(command string, timestamp time.Time) log.PathPattern {
	return log.PathPattern{
		DefaultName: "xstatectl.log.%TIMESTAMP%.%COMMAND%.txt",
		Vars: map[string]string{
			"TIMESTAMP": timestamp.Format("20060102-150405.000000"),
			"COMMAND":   command,
		},
	}
}
