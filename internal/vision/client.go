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

// Package vision classifies images by calling an Azure OpenAI
// chat-completions deployment with a text prompt and the image encoded
// as a base64 data URL.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

const (
	// DefaultAPIVersion is the Azure OpenAI REST api-version.
	DefaultAPIVersion = "2023-05-15"
	// DefaultMaxTokens bounds the completion length.
	DefaultMaxTokens = 300
)

// InferenceError wraps any failure to obtain a classification from the
// inference service: file read, transport, authentication, service-side
// errors, or an empty completion. Callers detect it with errors.As.
type InferenceError struct {
	Status int    // HTTP status from the service, 0 if the call never completed
	Detail string // response body or local failure description
	Err    error
}

func (e *InferenceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("inference failed: HTTP %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Client calls a single Azure OpenAI vision-capable deployment.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	maxTokens  int
}

// Options configures a vision client.
type Options struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string // defaults to DefaultAPIVersion
	MaxTokens  int    // defaults to DefaultMaxTokens
}

// NewClient creates a classifier client. Credentials are not validated
// here — a missing key or endpoint surfaces when Classify is called.
func NewClient(httpClient *http.Client, opts Options) *Client {
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		apiKey:     opts.APIKey,
		deployment: opts.Deployment,
		apiVersion: opts.APIVersion,
		maxTokens:  opts.MaxTokens,
	}
}

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatResponse holds the fields we need from the completion response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify reads the image at imagePath, sends it with the prompt to the
// deployment, and returns the trimmed text of the first completion
// choice. One synchronous request — no retries, no streaming, no
// partial results. The MIME type in the data URL is always image/jpeg
// regardless of the actual source format.
func (c *Client) Classify(ctx context.Context, imagePath, prompt string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", &InferenceError{Detail: "read image", Err: err}
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{
						URL: "data:image/jpeg;base64," + encoded,
					}},
				},
			},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", &InferenceError{Detail: "marshal request", Err: err}
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, c.deployment, c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &InferenceError{Detail: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("inference request failed", "error", err)
		return "", &InferenceError{Detail: "send request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		slog.Error("inference service error",
			"status", resp.StatusCode,
			"body", string(detail),
		)
		return "", &InferenceError{Status: resp.StatusCode, Detail: string(detail)}
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", &InferenceError{Detail: "decode response", Err: err}
	}

	if len(completion.Choices) == 0 {
		return "", &InferenceError{Status: resp.StatusCode, Detail: "no completion choices"}
	}

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
