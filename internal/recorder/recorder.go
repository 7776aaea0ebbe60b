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

// Package recorder persists classification results as timestamped JSON
// files in the results directory.
package recorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/plastiscan/relay/internal/models"
)

// StorageError wraps an I/O failure while writing a result record.
// Callers detect it with errors.As.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("write result %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Recorder writes one file per classification. Filenames are keyed by
// the current time truncated to whole seconds, so two results recorded
// within the same second collide and the later write wins. There is no
// locking and no uniqueness suffix.
type Recorder struct {
	resultsDir string
	now        func() time.Time
}

// New creates a recorder targeting the given results directory.
func New(resultsDir string) *Recorder {
	return &Recorder{
		resultsDir: resultsDir,
		now:        time.Now,
	}
}

// NewWithClock creates a recorder with an injected clock. Used by tests
// to pin the timestamp.
func NewWithClock(resultsDir string, now func() time.Time) *Recorder {
	return &Recorder{
		resultsDir: resultsDir,
		now:        now,
	}
}

// Record serialises {timestamp, image_path, plastic_code} to a new file
// under the results directory and returns the path written.
func (r *Recorder) Record(imagePath, resultText string) (string, error) {
	now := r.now()

	record := models.ClassificationRecord{
		Timestamp:   now.Format(time.RFC3339),
		ImagePath:   imagePath,
		PlasticCode: resultText,
	}

	filename := fmt.Sprintf("plastic_result_%s.json", now.Format("20060102_150405"))
	path := filepath.Join(r.resultsDir, filename)

	// Human-readable indentation, non-ASCII preserved as-is.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(record); err != nil {
		return "", &StorageError{Path: path, Err: err}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", &StorageError{Path: path, Err: err}
	}

	slog.Info("result saved", "path", path)
	return path, nil
}
