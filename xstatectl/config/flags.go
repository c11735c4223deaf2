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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"

	"github.com/BurntSushi/toml"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "TOML file with default values for these flags, keyed by flag name.")

	// Debugging flags.
	flagSet.String("log", "", "file path where errors are written in addition to stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log", "", "file path where internal debug information is written. The following variables are available: %TIMESTAMP%, %COMMAND%.")
	flagSet.String("debug-log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("alsologtostderr", false, "send log messages to stderr.")

	// Flags shared by commands.
	flagSet.String("profile", "", "CPUID profile to use instead of the host processor, see the profile command.")
	flagSet.Var(outputFormatPtr(OutputText), "format", "output format: text (default), json or yaml.")
}

// get returns the value of a flag.
func get(v flag.Value) any {
	return v.(flag.Getter).Get()
}

// NewFromFlags creates a new Config with values coming from command line flags
// and, for flags not given on the command line, the -config file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	if err := applyConfigFile(flagSet); err != nil {
		return nil, err
	}

	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(get(fl.Value))
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// applyConfigFile sets the flags that were not given on the command line
// from the file named by the "config" flag.
func applyConfigFile(flagSet *flag.FlagSet) error {
	path := flagSet.Lookup("config").Value.String()
	if path == "" {
		return nil
	}
	var values map[string]any
	if _, err := toml.DecodeFile(path, &values); err != nil {
		return fmt.Errorf("error reading config file %q: %w", path, err)
	}

	set := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	for name, v := range values {
		fl := flagSet.Lookup(name)
		if fl == nil || name == "config" {
			return fmt.Errorf("config file %q: unknown setting %q", path, name)
		}
		if set[name] {
			continue
		}
		if err := fl.Value.Set(fmt.Sprint(v)); err != nil {
			return fmt.Errorf("config file %q: error setting %s=%v: %w", path, name, v, err)
		}
	}
	return nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
