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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse(args); err != nil {
		t.Fatalf("Parse(%q) failed: %v", args, err)
	}
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if c.Format != OutputText {
		t.Errorf("Format=%v, want: %v", c.Format, OutputText)
	}
}

func TestFromFlags(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t, "-debug", "-format=yaml", "-profile=skylake.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if want := true; c.Debug != want {
		t.Errorf("Debug=%v, want: %v", c.Debug, want)
	}
	if want := OutputYAML; c.Format != want {
		t.Errorf("Format=%v, want: %v", c.Format, want)
	}
	if want := "skylake.toml"; c.Profile != want {
		t.Errorf("Profile=%v, want: %v", c.Profile, want)
	}
	want := []string{"--debug=true", "--profile=skylake.toml", "--format=yaml"}
	if diff := cmp.Diff(want, c.ToFlags()); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalid(t *testing.T) {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	testFlags.SetOutput(&strings.Builder{})
	if err := testFlags.Parse([]string{"-format=xml"}); err == nil {
		t.Errorf("Parse(-format=xml) succeeded")
	}

	if _, err := NewFromFlags(newFlagSet(t, "-log-format=json-k8s")); err == nil {
		t.Errorf("NewFromFlags(-log-format=json-k8s) succeeded")
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xstatectl.toml")
	const contents = `
debug = true
format = "json"
profile = "from-file.toml"
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	// Flags given on the command line win over the file.
	c, err := NewFromFlags(newFlagSet(t, "-config="+path, "-profile=from-flag.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Debug || c.Format != OutputJSON || c.Profile != "from-flag.toml" || c.ConfigFile != path {
		t.Errorf("NewFromFlags() = %+v", c)
	}
}

func TestConfigFileErrors(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{"unknown", `colour = "red"`},
		{"invalid value", `format = "xml"`},
		{"syntax", `debug = `},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".toml")
			if err := os.WriteFile(path, []byte(tc.contents), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewFromFlags(newFlagSet(t, "-config="+path)); err == nil {
				t.Errorf("NewFromFlags(%q) succeeded", tc.contents)
			}
		})
	}
	if _, err := NewFromFlags(newFlagSet(t, "-config="+filepath.Join(dir, "missing.toml"))); err == nil {
		t.Errorf("NewFromFlags(missing file) succeeded")
	}
}
