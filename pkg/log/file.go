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
	"path/filepath"
	"strings"
)

// FileOpts turns a log path pattern into a path.
type FileOpts interface {
	// Build returns the path for logPattern.
	Build(logPattern string) string
}

// PathPattern is a FileOpts that replaces each %NAME% in the pattern with
// Vars[NAME]. A pattern ending in "/" names a directory; DefaultName is
// appended to it before the replacement.
type PathPattern struct {
	DefaultName string
	Vars        map[string]string
}

// Build implements FileOpts.Build.
func (p PathPattern) Build(logPattern string) string {
	if strings.HasSuffix(logPattern, "/") {
		logPattern += p.DefaultName
	}
	oldnew := make([]string, 0, 2*len(p.Vars))
	for name, value := range p.Vars {
		oldnew = append(oldnew, "%"+name+"%", value)
	}
	return strings.NewReplacer(oldnew...).Replace(logPattern)
}

// OpenFile opens the log file that opts builds from logPattern, creating its
// directory if needed. An empty pattern means no log file: both results are
// nil.
func OpenFile(logPattern string, flags int, opts FileOpts) (*os.File, error) {
	if logPattern == "" {
		return nil, nil
	}
	path := opts.Build(logPattern)
	if err := os.MkdirAll(filepath.Dir(path), 0o775); err != nil {
		return nil, fmt.Errorf("creating log directory for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, flags, 0o664)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
