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

// Plastiscan Relay — Webhook Server
//
// Entry point for the relay service. It:
//  1. Loads configuration from config.yaml / environment variables
//  2. Optionally connects to PostgreSQL (history) and Redis (events)
//  3. Builds an authenticated LINE client and the vision classifier
//  4. Serves POST /callback for LINE webhook deliveries
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/plastiscan/relay/internal/config"
	"github.com/plastiscan/relay/internal/history"
	"github.com/plastiscan/relay/internal/line"
	"github.com/plastiscan/relay/internal/prompt"
	"github.com/plastiscan/relay/internal/queue"
	"github.com/plastiscan/relay/internal/recorder"
	"github.com/plastiscan/relay/internal/vision"
	"github.com/plastiscan/relay/internal/webhook"
)

// lineTokenURL issues short-lived channel access tokens via the OAuth2
// client_credentials grant when no static token is configured.
const lineTokenURL = "https://api.line.me/v2/oauth/accessToken"

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging to stdout and a size-bounded rotating file.
	logWriter := io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	logger := slog.New(slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting plastiscan relay service")
	slog.Info("configuration loaded",
		"upload_dir", cfg.UploadDir,
		"results_dir", cfg.ResultsDir,
		"vision_endpoint_set", cfg.Vision.Endpoint != "",
		"vision_key_set", cfg.Vision.APIKey != "",
		"vision_deployment_set", cfg.Vision.Deployment != "",
		"history_enabled", cfg.DatabaseURL != "",
		"events_enabled", cfg.RedisURL != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Optional: PostgreSQL history store ---
	var (
		pgPool *pgxpool.Pool
		store  *history.Store
	)
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}

		store, err = history.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise history store", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")
	}

	// --- Optional: Redis event publisher ---
	var (
		rdb       *redis.Client
		publisher *queue.Publisher
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)

		publisher = queue.NewPublisher(rdb, cfg.ClassificationsQueue)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
	}

	// --- LINE client ---
	// No timeout on the underlying client: a slow platform call blocks
	// the handling goroutine until it completes.
	lineClient := line.NewClient(lineHTTPClient(ctx, cfg.Line))

	// --- Vision classifier ---
	classifier := vision.NewClient(&http.Client{}, vision.Options{
		Endpoint:   cfg.Vision.Endpoint,
		APIKey:     cfg.Vision.APIKey,
		Deployment: cfg.Vision.Deployment,
		MaxTokens:  cfg.Vision.MaxTokens,
	})

	// --- Webhook handler ---
	handlerCfg := webhook.HandlerConfig{
		ChannelSecret: cfg.Line.ChannelSecret,
		UploadDir:     cfg.UploadDir,
		Fetcher:       lineClient,
		Prompts:       prompt.NewLoader(cfg.PromptPath),
		Classifier:    classifier,
		Recorder:      recorder.New(cfg.ResultsDir),
		Replier:       lineClient,
	}
	// Assign only when constructed so the handler's nil checks see a nil
	// interface, not a typed nil.
	if store != nil {
		handlerCfg.History = store
	}
	if publisher != nil {
		handlerCfg.Publisher = publisher
	}
	handler := webhook.NewHandler(handlerCfg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /callback", handler.ServeCallback)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if publisher != nil {
			if err := publisher.Ping(r.Context()); err != nil {
				http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		if pgPool != nil {
			if err := pgPool.Ping(r.Context()); err != nil {
				http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	// No read/write timeouts: the callback handler blocks on external
	// calls for as long as they take.
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		if rdb != nil {
			rdb.Close()
		}
		if pgPool != nil {
			pgPool.Close()
		}
	}()

	slog.Info("relay service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("relay service stopped")
}

// lineHTTPClient builds the authenticated HTTP client for the LINE API.
// A static channel access token wins; otherwise tokens are issued via
// the OAuth2 client_credentials grant using the channel ID and secret.
// Neither path is validated here — a missing credential fails on the
// first API call.
func lineHTTPClient(ctx context.Context, cfg config.LineConfig) *http.Client {
	if cfg.ChannelAccessToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.ChannelAccessToken})
		return oauth2.NewClient(ctx, src)
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ChannelID,
		ClientSecret: cfg.ChannelSecret,
		TokenURL:     lineTokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return creds.Client(ctx)
}
