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


package log

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// jsonLog is one line of JSONEmitter output.
type jsonLog struct {
	Msg   string    `json:"msg"`
	Level Level     `json:"level"`
	Time  time.Time `json:"time"`
	File  string    `json:"file,omitempty"`
	Line  int       `json:"line,omitempty"`
}

// MarshalText implements encoding.TextMarshaler. Levels are written as
// their lower case names.
func (l Level) MarshalText() ([]byte, error) {
	if !l.valid() {
		return nil, fmt.Errorf("unknown level %d", uint32(l))
	}
	return []byte(strings.ToLower(l.String())), nil
}

// UnmarshalJSON implements json.Unmarshaler. It accepts a level name in any
// case or the level's number.
func (l *Level) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		lv, err := ParseLevel(name)
		if err != nil {
			return err
		}
		*l = lv
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil || !Level(n).valid() {
		return fmt.Errorf("unknown level %s", b)
	}
	*l = Level(n)
	return nil
}

// JSONEmitter logs one JSON object per line. The caller is reported in the
// file and line fields rather than in the message.
type JSONEmitter struct {
	*Writer
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	file, line := caller(depth + 1)
	b, err := json.Marshal(jsonLog{
		Msg:   fmt.Sprintf(format, v...),
		Level: level,
		Time:  timestamp,
		File:  file,
		Line:  line,
	})
	if err != nil {
		panic(err)
	}
	e.Writer.Write(append(b, '\n'))
}
