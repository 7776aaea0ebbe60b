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

// Package line implements a minimal client for the LINE Messaging API:
// fetching inbound message content and sending reply messages. Webhook
// signature validation also lives here because it is part of the
// platform's wire contract.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const (
	// DefaultAPIBaseURL serves the reply (and other bot) endpoints.
	DefaultAPIBaseURL = "https://api.line.me"
	// DefaultDataBaseURL serves binary message content.
	DefaultDataBaseURL = "https://api-data.line.me"
)

// Client talks to the LINE Messaging API. The httpClient must already
// handle authentication (e.g. via an oauth2 token source carrying the
// channel access token).
type Client struct {
	httpClient  *http.Client
	apiBaseURL  string
	dataBaseURL string
}

// NewClient creates a LINE Messaging API client.
func NewClient(httpClient *http.Client) *Client {
	return &Client{
		httpClient:  httpClient,
		apiBaseURL:  DefaultAPIBaseURL,
		dataBaseURL: DefaultDataBaseURL,
	}
}

// NewClientWithBaseURLs creates a client against non-default endpoints.
// Used by tests to point at a local server.
func NewClientWithBaseURLs(httpClient *http.Client, apiBaseURL, dataBaseURL string) *Client {
	return &Client{
		httpClient:  httpClient,
		apiBaseURL:  apiBaseURL,
		dataBaseURL: dataBaseURL,
	}
}

// MessageContent retrieves the binary content of an inbound message.
// The caller owns the returned stream and must close it.
func (c *Client) MessageContent(ctx context.Context, messageID string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataBaseURL, messageID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message content: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("content API returned HTTP %d for message %s: %s",
			resp.StatusCode, messageID, string(body))
	}

	return resp.Body, nil
}

// replyRequest is the JSON body of the reply endpoint.
type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply sends a single text message keyed by a one-time reply token.
// The token permits exactly one reply; a reused token is rejected by the
// platform.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	payload, err := json.Marshal(replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	url := c.apiBaseURL + "/v2/bot/message/reply"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reply API returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	slog.Info("reply sent", "reply_token", replyToken)
	return nil
}
