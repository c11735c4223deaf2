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
	"fmt"
	"os"
	"strconv"
	"time"
)

// GoogleEmitter emits lines in the format of github.com/golang/glog:
//
//	Lmmdd hh:mm:ss.uuuuuu pid file:line] msg
//
// L is the first letter of the level. The pid is padded to seven columns as
// glog pads its thread ID.
type GoogleEmitter struct {
	*Writer
}

// glogTime is the time layout of the header.
const glogTime = "0102 15:04:05.000000"

var pid = os.Getpid()

// Emit implements Emitter.Emit.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	b := make([]byte, 0, 256)
	b = append(b, level.letter())
	b = timestamp.AppendFormat(b, glogTime)
	b = fmt.Appendf(b, " %7d ", pid)

	file, line := caller(depth + 1)
	b = append(b, file...)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(line), 10)
	b = append(b, "] "...)

	b = fmt.Appendf(b, format, args...)
	b = append(b, '\n')
	g.Writer.Write(b)
}
