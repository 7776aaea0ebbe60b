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

// Package backfill indexes historical classification result files into
// the Postgres history store. Intended for seeding the store on
// deployments that ran before the database was introduced.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/plastiscan/relay/internal/history"
	"github.com/plastiscan/relay/internal/models"
)

// resultFilePrefix matches the recorder's filename scheme.
const resultFilePrefix = "plastic_result_"

// Inserter is the subset of the history store the runner needs.
type Inserter interface {
	Insert(ctx context.Context, r history.Row) (bool, error)
}

// Request defines the scope of a backfill run.
type Request struct {
	ResultsDir string
	Since      time.Duration // zero means no age cutoff
}

// Result summarises a completed backfill run.
type Result struct {
	Indexed int
	Skipped int
	Errors  int
	Elapsed time.Duration
}

// Runner walks the results directory and indexes records.
type Runner struct {
	store Inserter
}

// NewRunner creates a backfill runner.
func NewRunner(store Inserter) *Runner {
	return &Runner{store: store}
}

// Run indexes every plastic_result_*.json file in the results directory
// whose timestamp falls within the lookback window. Files that fail to
// parse are counted and skipped; the run continues.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	var cutoff time.Time
	if req.Since > 0 {
		cutoff = start.Add(-req.Since)
	}

	slog.Info("starting result backfill",
		"results_dir", req.ResultsDir,
		"since", req.Since,
	)

	entries, err := os.ReadDir(req.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("read results dir %s: %w", req.ResultsDir, err)
	}

	result := &Result{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !isResultFile(entry) {
			continue
		}

		path := filepath.Join(req.ResultsDir, entry.Name())
		row, err := parseResultFile(path)
		if err != nil {
			slog.Warn("skipping unparseable result file",
				"path", path,
				"error", err,
			)
			result.Errors++
			continue
		}

		if !cutoff.IsZero() && row.RecordedAt.Before(cutoff) {
			result.Skipped++
			continue
		}

		inserted, err := r.store.Insert(ctx, row)
		if err != nil {
			slog.Warn("backfill insert failed",
				"path", path,
				"error", err,
			)
			result.Errors++
			continue
		}

		if inserted {
			result.Indexed++
		} else {
			// Already indexed on a previous run.
			result.Skipped++
		}
	}

	result.Elapsed = time.Since(start)

	slog.Info("result backfill complete",
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

// isResultFile reports whether a directory entry looks like a recorder
// output file.
func isResultFile(entry fs.DirEntry) bool {
	if entry.IsDir() {
		return false
	}
	name := entry.Name()
	return strings.HasPrefix(name, resultFilePrefix) && strings.HasSuffix(name, ".json")
}

// parseResultFile loads one classification record and converts it into
// a history row.
func parseResultFile(path string) (history.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return history.Row{}, fmt.Errorf("read: %w", err)
	}

	var record models.ClassificationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return history.Row{}, fmt.Errorf("decode: %w", err)
	}

	recordedAt, err := time.Parse(time.RFC3339, record.Timestamp)
	if err != nil {
		return history.Row{}, fmt.Errorf("parse timestamp %q: %w", record.Timestamp, err)
	}

	return history.Row{
		ImagePath:   record.ImagePath,
		ResultPath:  path,
		PlasticCode: record.PlasticCode,
		RecordedAt:  recordedAt,
	}, nil
}
