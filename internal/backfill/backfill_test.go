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

package backfill

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/plastiscan/relay/internal/history"
	"github.com/plastiscan/relay/internal/models"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	rows map[string]history.Row // keyed by result_path
	err  error
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[string]history.Row)}
}

func (m *mockStore) Insert(_ context.Context, r history.Row) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.rows[r.ResultPath]; ok {
		return false, nil
	}
	m.rows[r.ResultPath] = r
	return true, nil
}

// --- Helpers ---

func writeResultFile(t *testing.T, dir, name string, record models.ClassificationRecord) {
	t.Helper()
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write result file: %v", err)
	}
}

// --- Tests ---

func TestRun_IndexesResultFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)

	writeResultFile(t, dir, "plastic_result_20260314_092653.json", models.ClassificationRecord{
		Timestamp:   now.Format(time.RFC3339),
		ImagePath:   "uploaded_images/msg1.jpg",
		PlasticCode: "PET (1)",
	})
	writeResultFile(t, dir, "plastic_result_20260314_092701.json", models.ClassificationRecord{
		Timestamp:   now.Add(8 * time.Second).Format(time.RFC3339),
		ImagePath:   "uploaded_images/msg2.jpg",
		PlasticCode: "HDPE (2)",
	})
	// Files outside the recorder's naming scheme are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	store := newMockStore()
	runner := NewRunner(store)

	result, err := runner.Run(context.Background(), Request{ResultsDir: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Indexed != 2 {
		t.Errorf("indexed = %d, want 2", result.Indexed)
	}
	if result.Errors != 0 {
		t.Errorf("errors = %d, want 0", result.Errors)
	}

	path := filepath.Join(dir, "plastic_result_20260314_092653.json")
	row, ok := store.rows[path]
	if !ok {
		t.Fatalf("row for %s not indexed", path)
	}
	if row.PlasticCode != "PET (1)" || row.ImagePath != "uploaded_images/msg1.jpg" {
		t.Errorf("row = %+v", row)
	}
	if !row.RecordedAt.Equal(now) {
		t.Errorf("recorded_at = %v, want %v", row.RecordedAt, now)
	}
}

// TestRun_SecondRunSkipsIndexed verifies re-running is idempotent: rows
// already present count as skipped.
func TestRun_SecondRunSkipsIndexed(t *testing.T) {
	dir := t.TempDir()
	writeResultFile(t, dir, "plastic_result_20260314_092653.json", models.ClassificationRecord{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ImagePath:   "img.jpg",
		PlasticCode: "PP (5)",
	})

	store := newMockStore()
	runner := NewRunner(store)

	if _, err := runner.Run(context.Background(), Request{ResultsDir: dir}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := runner.Run(context.Background(), Request{ResultsDir: dir})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if result.Indexed != 0 || result.Skipped != 1 {
		t.Errorf("second run indexed=%d skipped=%d, want 0/1", result.Indexed, result.Skipped)
	}
}

func TestRun_SinceCutoff(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	writeResultFile(t, dir, "plastic_result_recent.json", models.ClassificationRecord{
		Timestamp:   now.Add(-time.Hour).Format(time.RFC3339),
		ImagePath:   "recent.jpg",
		PlasticCode: "PET (1)",
	})
	writeResultFile(t, dir, "plastic_result_old.json", models.ClassificationRecord{
		Timestamp:   now.Add(-30 * 24 * time.Hour).Format(time.RFC3339),
		ImagePath:   "old.jpg",
		PlasticCode: "PS (6)",
	})

	store := newMockStore()
	result, err := NewRunner(store).Run(context.Background(), Request{
		ResultsDir: dir,
		Since:      24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Indexed != 1 || result.Skipped != 1 {
		t.Errorf("indexed=%d skipped=%d, want 1/1", result.Indexed, result.Skipped)
	}
	if _, ok := store.rows[filepath.Join(dir, "plastic_result_old.json")]; ok {
		t.Error("old record should not be indexed")
	}
}

// TestRun_UnparseableFilesCounted verifies a corrupt file is counted as
// an error and does not stop the run.
func TestRun_UnparseableFilesCounted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plastic_result_bad.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}
	writeResultFile(t, dir, "plastic_result_good.json", models.ClassificationRecord{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		ImagePath:   "good.jpg",
		PlasticCode: "PET (1)",
	})

	store := newMockStore()
	result, err := NewRunner(store).Run(context.Background(), Request{ResultsDir: dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Errors != 1 || result.Indexed != 1 {
		t.Errorf("errors=%d indexed=%d, want 1/1", result.Errors, result.Indexed)
	}
}

func TestRun_MissingDirectory(t *testing.T) {
	store := newMockStore()
	_, err := NewRunner(store).Run(context.Background(), Request{
		ResultsDir: filepath.Join(t.TempDir(), "nope"),
	})
	if err == nil {
		t.Fatal("expected error for missing results dir")
	}
}
