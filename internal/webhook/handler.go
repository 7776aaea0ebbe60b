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

// Package webhook handles incoming LINE Messaging API callbacks. When a
// user sends an image to the bot, LINE POSTs a signed event envelope to
// /callback. This handler verifies the signature, downloads the image,
// classifies it through the vision deployment, records the result, and
// replies to the sender with the classification text.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/plastiscan/relay/internal/history"
	"github.com/plastiscan/relay/internal/line"
	"github.com/plastiscan/relay/internal/models"
)

// ErrInvalidSignature tags a webhook whose X-Line-Signature does not
// match the channel secret. It is recovered at the HTTP boundary as a
// 400 response and never crashes the process.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event represents a single event from the LINE webhook envelope.
type Event struct {
	Type       string  `json:"type"`
	ReplyToken string  `json:"replyToken"`
	Timestamp  int64   `json:"timestamp"`
	Message    Message `json:"message"`
}

// Message is the message payload of a message event.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Envelope is the wrapper LINE sends.
type Envelope struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// ContentFetcher retrieves the binary content of an inbound message.
type ContentFetcher interface {
	MessageContent(ctx context.Context, messageID string) (io.ReadCloser, error)
}

// Classifier sends an image and prompt to the inference service.
type Classifier interface {
	Classify(ctx context.Context, imagePath, prompt string) (string, error)
}

// Recorder persists one classification result.
type Recorder interface {
	Record(imagePath, resultText string) (string, error)
}

// Replier sends a text reply keyed by a one-time reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// PromptLoader produces the instruction text for the classifier.
type PromptLoader interface {
	Load() string
}

// HistorySink indexes classification rows; optional.
type HistorySink interface {
	Insert(ctx context.Context, r history.Row) (bool, error)
}

// EventPublisher publishes classification events; optional.
type EventPublisher interface {
	PublishClassification(ctx context.Context, event *models.ClassificationEvent) error
}

// Handler processes LINE webhook deliveries.
type Handler struct {
	channelSecret []byte
	uploadDir     string

	fetcher    ContentFetcher
	prompts    PromptLoader
	classifier Classifier
	recorder   Recorder
	replier    Replier

	// Optional sinks — nil disables them. Their failures are logged and
	// never abort the pipeline.
	history   HistorySink
	publisher EventPublisher
}

// HandlerConfig holds dependencies for the webhook handler.
type HandlerConfig struct {
	ChannelSecret string
	UploadDir     string
	Fetcher       ContentFetcher
	Prompts       PromptLoader
	Classifier    Classifier
	Recorder      Recorder
	Replier       Replier
	History       HistorySink
	Publisher     EventPublisher
}

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		channelSecret: []byte(cfg.ChannelSecret),
		uploadDir:     cfg.UploadDir,
		fetcher:       cfg.Fetcher,
		prompts:       cfg.Prompts,
		classifier:    cfg.Classifier,
		recorder:      cfg.Recorder,
		replier:       cfg.Replier,
		history:       cfg.History,
		publisher:     cfg.Publisher,
	}
}

// ServeCallback handles POST /callback.
//
// Flow:
//   - log the raw body (audit trail, before verification)
//   - verify X-Line-Signature; mismatch → 400, nothing else happens
//   - process image message events synchronously, in envelope order
//   - any per-event failure → 500, remaining events in the delivery are
//     not processed
//   - all events handled → 200 "OK"
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read webhook body", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("webhook request received", "body", string(body))

	signature := r.Header.Get("X-Line-Signature")
	if !line.ValidateSignature(h.channelSecret, body, signature) {
		slog.Warn("webhook signature mismatch", "error", ErrInvalidSignature)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		slog.Error("failed to parse webhook envelope", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	for _, ev := range envelope.Events {
		// Only image messages trigger the pipeline; everything else in
		// the envelope is ignored.
		if ev.Type != "message" || ev.Message.Type != "image" {
			continue
		}

		if err := h.handleImageMessage(r.Context(), ev); err != nil {
			slog.Error("image message handling failed",
				"message_id", ev.Message.ID,
				"error", err,
			)
			// No isolation between events in one delivery: the failure
			// aborts the rest of the envelope and the sender gets no reply.
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleImageMessage runs the per-message pipeline. Each step is a
// potential failure point with no compensation: a failure leaves earlier
// artifacts (downloaded image, result file) on disk and sends no reply.
func (h *Handler) handleImageMessage(ctx context.Context, ev Event) error {
	content, err := h.fetcher.MessageContent(ctx, ev.Message.ID)
	if err != nil {
		return fmt.Errorf("fetch content: %w", err)
	}

	imagePath := filepath.Join(h.uploadDir, ev.Message.ID+".jpg")
	if err := storeImage(imagePath, content); err != nil {
		return err
	}

	promptText := h.prompts.Load()

	result, err := h.classifier.Classify(ctx, imagePath, promptText)
	if err != nil {
		return err
	}

	resultPath, err := h.recorder.Record(imagePath, result)
	if err != nil {
		return err
	}

	recordedAt := time.Now()
	if h.history != nil {
		if _, err := h.history.Insert(ctx, history.Row{
			MessageID:   ev.Message.ID,
			ImagePath:   imagePath,
			ResultPath:  resultPath,
			PlasticCode: result,
			RecordedAt:  recordedAt,
		}); err != nil {
			slog.Warn("history insert failed",
				"result_path", resultPath,
				"error", err,
			)
		}
	}

	if h.publisher != nil {
		if err := h.publisher.PublishClassification(ctx, &models.ClassificationEvent{
			MessageID:   ev.Message.ID,
			ImagePath:   imagePath,
			ResultPath:  resultPath,
			PlasticCode: result,
			Timestamp:   recordedAt.Format(time.RFC3339),
		}); err != nil {
			slog.Warn("classification publish failed",
				"message_id", ev.Message.ID,
				"error", err,
			)
		}
	}

	return h.replier.Reply(ctx, ev.ReplyToken, result)
}

// storeImage streams message content to the upload path. Images
// accumulate indefinitely; there is no deduplication or cleanup.
func storeImage(path string, content io.ReadCloser) error {
	defer content.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}

	_, copyErr := io.Copy(f, content)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("store image %s: %w", path, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("store image %s: %w", path, closeErr)
	}

	return nil
}
