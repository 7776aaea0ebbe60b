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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LineConfig holds credentials for the LINE Messaging API channel.
type LineConfig struct {
	ChannelSecret      string
	ChannelAccessToken string
	// ChannelID enables OAuth2 client_credentials token issuance when no
	// static access token is configured.
	ChannelID string
}

// VisionConfig holds the Azure OpenAI deployment settings.
type VisionConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	MaxTokens  int
}

// Config holds all configuration for the relay service.
type Config struct {
	Line   LineConfig
	Vision VisionConfig

	// Filesystem layout
	UploadDir  string
	ResultsDir string
	PromptPath string

	// Optional sinks — empty means disabled
	DatabaseURL          string
	RedisURL             string
	ClassificationsQueue string

	// Process log
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Line struct {
		ChannelSecret      string `yaml:"channel_secret"`
		ChannelAccessToken string `yaml:"channel_access_token"`
		ChannelID          string `yaml:"channel_id"`
	} `yaml:"line"`
	Vision struct {
		Endpoint   string `yaml:"endpoint"`
		APIKey     string `yaml:"api_key"`
		Deployment string `yaml:"deployment"`
		MaxTokens  int    `yaml:"max_tokens"`
	} `yaml:"vision"`
	Storage struct {
		UploadDir  string `yaml:"upload_dir"`
		ResultsDir string `yaml:"results_dir"`
		PromptPath string `yaml:"prompt_path"`
	} `yaml:"storage"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Classifications string `yaml:"classifications"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables. The config file is optional. Missing credentials
// are NOT rejected here — the corresponding external call fails lazily
// when first attempted.
func Load() (*Config, error) {
	var raw rawConfig

	configPath := envOrDefault("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg := &Config{
		Line: LineConfig{
			ChannelSecret:      firstNonEmpty(raw.Line.ChannelSecret, os.Getenv("LINE_CHANNEL_SECRET")),
			ChannelAccessToken: firstNonEmpty(raw.Line.ChannelAccessToken, os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")),
			ChannelID:          firstNonEmpty(raw.Line.ChannelID, os.Getenv("LINE_CHANNEL_ID")),
		},
		Vision: VisionConfig{
			Endpoint:   firstNonEmpty(raw.Vision.Endpoint, os.Getenv("AZURE_OPENAI_ENDPOINT")),
			APIKey:     firstNonEmpty(raw.Vision.APIKey, os.Getenv("AZURE_OPENAI_KEY")),
			Deployment: firstNonEmpty(raw.Vision.Deployment, os.Getenv("AZURE_OPENAI_DEPLOYMENT_NAME")),
			MaxTokens:  firstNonZero(raw.Vision.MaxTokens, envOrDefaultInt("VISION_MAX_TOKENS", 300)),
		},
		UploadDir:            firstNonEmpty(raw.Storage.UploadDir, envOrDefault("UPLOAD_DIR", "uploaded_images")),
		ResultsDir:           firstNonEmpty(raw.Storage.ResultsDir, envOrDefault("RESULTS_DIR", "analysis_results")),
		PromptPath:           firstNonEmpty(raw.Storage.PromptPath, envOrDefault("PROMPT_PATH", "prompt.txt")),
		DatabaseURL:          firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:             firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		ClassificationsQueue: firstNonEmpty(raw.Redis.Queues.Classifications, envOrDefault("CLASSIFICATIONS_QUEUE", "classifications")),
		LogFile:              firstNonEmpty(raw.Log.File, envOrDefault("LOG_FILE", "app.log")),
		LogMaxSizeMB:         firstNonZero(raw.Log.MaxSizeMB, envOrDefaultInt("LOG_MAX_SIZE_MB", 5)),
		LogMaxBackups:        firstNonZero(raw.Log.MaxBackups, envOrDefaultInt("LOG_MAX_BACKUPS", 3)),
		Port:                 envOrDefaultInt("PORT", 5001),
	}

	// The upload and results directories are append-only destinations that
	// must exist before the first request arrives.
	for _, dir := range []string{cfg.UploadDir, cfg.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
