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

// Package config provides basic infrastructure to set configuration settings
// for xstatectl. Each setting is a flag, and may also be given in a TOML
// file passed with -config; flags on the command line take precedence.
package config

import (
	"fmt"

	"gvisor.dev/xstate/pkg/log"
)

// Config holds configuration that is not part of a single command.
type Config struct {
	// ConfigFile is the TOML file the other settings were read from, if
	// any.
	ConfigFile string `flag:"config"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if not empty. The
	// variables %TIMESTAMP% and %COMMAND% are expanded.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// Profile is a CPUID profile to use instead of the host processor.
	Profile string `flag:"profile"`

	// Format is the output format of commands.
	Format OutputFormat `flag:"format"`
}

func (c *Config) validate() error {
	for _, f := range []string{c.LogFormat, c.DebugLogFormat} {
		switch f {
		case "text", "json":
		default:
			return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", f)
		}
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.ToFlags() {
		log.Infof("\t%s", f)
	}
}

// OutputFormat is the format commands print results in.
type OutputFormat int

const (
	// OutputText is human readable text.
	OutputText OutputFormat = iota

	// OutputJSON is JSON, one document per command.
	OutputJSON

	// OutputYAML is YAML.
	OutputYAML
)

func outputFormatPtr(v OutputFormat) *OutputFormat {
	return &v
}

// Set implements flag.Value.
func (f *OutputFormat) Set(v string) error {
	switch v {
	case "text":
		*f = OutputText
	case "json":
		*f = OutputJSON
	case "yaml":
		*f = OutputYAML
	default:
		return fmt.Errorf("invalid output format %q", v)
	}
	return nil
}

// Get implements flag.Getter.
func (f *OutputFormat) Get() any {
	return *f
}

// String implements flag.Value.
func (f OutputFormat) String() string {
	switch f {
	case OutputText:
		return "text"
	case OutputJSON:
		return "json"
	case OutputYAML:
		return "yaml"
	}
	panic(fmt.Sprintf("Invalid output format %d", f))
}
