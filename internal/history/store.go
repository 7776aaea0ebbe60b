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

// Package history provides an optional Postgres-backed index of
// classification results. The JSON files in the results directory remain
// the canonical record; this store exists so operators can query results
// without walking the filesystem.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Row represents one classification persisted in Postgres.
type Row struct {
	ID          int64
	MessageID   string
	ImagePath   string
	ResultPath  string
	PlasticCode string
	RecordedAt  time.Time
}

// Store provides insert and query operations for classification rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a history store backed by the given Postgres pool.
// It ensures the classifications table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure classifications schema: %w", err)
	}
	slog.Info("classification history store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS classifications (
			id           BIGSERIAL PRIMARY KEY,
			message_id   TEXT DEFAULT '',
			image_path   TEXT NOT NULL,
			result_path  TEXT NOT NULL UNIQUE,
			plastic_code TEXT NOT NULL,
			recorded_at  TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_class_message ON classifications(message_id);
		CREATE INDEX IF NOT EXISTS idx_class_recorded ON classifications(recorded_at);
	`)
	return err
}

// Insert adds a classification row keyed on result_path. A same-second
// filename collision in the recorder reuses a result path, so the
// insert is a no-op for an already-indexed path. Returns whether a row
// was written.
func (s *Store) Insert(ctx context.Context, r Row) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO classifications
			(message_id, image_path, result_path, plastic_code, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (result_path) DO NOTHING
	`, r.MessageID, r.ImagePath, r.ResultPath, r.PlasticCode, r.RecordedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListRecent returns the newest classifications, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, image_path, result_path, plastic_code, recorded_at
		FROM classifications
		ORDER BY recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.MessageID, &r.ImagePath, &r.ResultPath,
			&r.PlasticCode, &r.RecordedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
