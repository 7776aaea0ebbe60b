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

package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestImage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.jpg")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestClassify(t *testing.T) {
	imagePath := writeTestImage(t, "fakejpegdata")

	var gotRequest chatRequest
	var gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAPIKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  PET (1)\n"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Options{
		Endpoint:   srv.URL,
		APIKey:     "secret-key",
		Deployment: "gpt-4v",
	})

	result, err := c.Classify(context.Background(), imagePath, "identify the plastic")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result != "PET (1)" {
		t.Errorf("result = %q, want trimmed first choice", result)
	}

	if gotPath != "/openai/deployments/gpt-4v/chat/completions?api-version="+DefaultAPIVersion {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAPIKey != "secret-key" {
		t.Errorf("api-key header = %q", gotAPIKey)
	}
	if gotRequest.MaxTokens != DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", gotRequest.MaxTokens, DefaultMaxTokens)
	}

	if len(gotRequest.Messages) != 1 || len(gotRequest.Messages[0].Content) != 2 {
		t.Fatalf("unexpected message shape: %+v", gotRequest.Messages)
	}
	parts := gotRequest.Messages[0].Content
	if parts[0].Type != "text" || parts[0].Text != "identify the plastic" {
		t.Errorf("text part = %+v", parts[0])
	}
	wantURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fakejpegdata"))
	if parts[1].Type != "image_url" || parts[1].ImageURL == nil || parts[1].ImageURL.URL != wantURL {
		t.Errorf("image part does not carry the jpeg data URL")
	}
}

// TestClassify_AlwaysJPEGMimeType verifies the MIME type is fixed
// regardless of the actual image format.
func TestClassify_AlwaysJPEGMimeType(t *testing.T) {
	// PNG magic bytes, but the data URL must still say image/jpeg.
	imagePath := writeTestImage(t, "\x89PNG\r\n")

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotBody = req.Messages[0].Content[1].ImageURL.URL
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "x"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Options{Endpoint: srv.URL, Deployment: "d"})
	if _, err := c.Classify(context.Background(), imagePath, "p"); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.HasPrefix(gotBody, "data:image/jpeg;base64,") {
		t.Errorf("data URL = %q, want image/jpeg prefix", gotBody)
	}
}

func TestClassify_ServiceError(t *testing.T) {
	imagePath := writeTestImage(t, "x")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Options{Endpoint: srv.URL, Deployment: "d"})
	_, err := c.Classify(context.Background(), imagePath, "p")
	if err == nil {
		t.Fatal("expected error from service failure")
	}

	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("error = %T, want *InferenceError", err)
	}
	if infErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", infErr.Status, http.StatusTooManyRequests)
	}
	if !strings.Contains(infErr.Detail, "quota exceeded") {
		t.Errorf("detail = %q, want service error body", infErr.Detail)
	}
}

func TestClassify_MissingImage(t *testing.T) {
	c := NewClient(&http.Client{}, Options{Endpoint: "http://unused", Deployment: "d"})

	_, err := c.Classify(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), "p")
	if err == nil {
		t.Fatal("expected error for missing image")
	}
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Errorf("error = %T, want *InferenceError", err)
	}
}

func TestClassify_EmptyChoices(t *testing.T) {
	imagePath := writeTestImage(t, "x")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Options{Endpoint: srv.URL, Deployment: "d"})
	_, err := c.Classify(context.Background(), imagePath, "p")

	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("error = %T, want *InferenceError", err)
	}
}
