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

// Plastiscan Relay — Result Backfill Command
//
// Standalone CLI tool that indexes existing classification result files
// into the Postgres history store. Intended for deployments that
// accumulated results before the database was configured.
//
// Usage:
//
//	go run ./cmd/backfill/ [--results-dir analysis_results] [--since 720h]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plastiscan/relay/internal/backfill"
	"github.com/plastiscan/relay/internal/config"
	"github.com/plastiscan/relay/internal/history"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	resultsFlag := flag.String("results-dir", "", "Results directory to index (default: configured results dir)")
	sinceFlag := flag.String("since", "", "Only index records newer than this lookback (e.g. 720h); empty = all")
	flag.Parse()

	var since time.Duration
	if *sinceFlag != "" {
		d, err := time.ParseDuration(*sinceFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
			os.Exit(1)
		}
		since = d
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required — backfill targets the Postgres history store")
		os.Exit(1)
	}

	resultsDir := *resultsFlag
	if resultsDir == "" {
		resultsDir = cfg.ResultsDir
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	store, err := history.NewStore(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise history store", "error", err)
		os.Exit(1)
	}

	// --- Run Backfill ---
	runner := backfill.NewRunner(store)
	result, err := runner.Run(ctx, backfill.Request{
		ResultsDir: resultsDir,
		Since:      since,
	})
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	slog.Info("backfill complete",
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
}
