// Copyright (c) 2026 John Earle
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

// Package prompt loads the instruction text sent to the vision model.
package prompt

import (
	"log/slog"
	"os"
	"strings"
)

// Default is the built-in instruction used when no prompt file exists.
const Default = "Please identify the plastic material in the image and provide the corresponding plastic code."

// Loader reads the prompt from a file on every call so that operators
// can edit it without restarting the process.
type Loader struct {
	path string
}

// NewLoader creates a prompt loader for the given file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load returns the trimmed contents of the prompt file, or Default if
// the file cannot be read. A missing file is not an error.
func (l *Loader) Load() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		slog.Warn("prompt file not found, using default prompt",
			"path", l.path,
			"error", err,
		)
		return Default
	}
	return strings.TrimSpace(string(data))
}
