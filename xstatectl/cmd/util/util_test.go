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

package util

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/subcommands"
)

func TestErrorfLogFormats(t *testing.T) {
	defer func(f string) { ErrorLogFormat = f }(ErrorLogFormat)
	var buf bytes.Buffer
	ErrorLogger = &buf
	defer func() { ErrorLogger = nil }()

	ErrorLogFormat = "json"
	if got := Errorf("bad %s", "area"); got != subcommands.ExitFailure {
		t.Errorf("Errorf() = %v, want ExitFailure", got)
	}
	var j struct {
		Msg   string `json:"msg"`
		Level string `json:"level"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &j); err != nil {
		t.Fatalf("error log is not JSON: %v: %q", err, buf.String())
	}
	if j.Msg != "bad area" || j.Level != "error" {
		t.Errorf("error log = %+v", j)
	}

	buf.Reset()
	ErrorLogFormat = "text"
	Errorf("bad %s", "header")
	if got := buf.String(); !strings.HasSuffix(got, " error: bad header\n") {
		t.Errorf("error log = %q", got)
	}
}
