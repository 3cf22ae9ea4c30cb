package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tablechat/tablechat/internal/config"
)

func fakeProvider(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode provider request: %v", err)
		}
		if len(req.Messages) != 1 {
			t.Errorf("expected exactly one message, got %d", len(req.Messages))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func gatewayFor(t *testing.T, baseURL string) *OpenAIGateway {
	t.Helper()
	gateway, err := NewOpenAIGateway(config.CompletionConfig{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		DefaultModel: "gpt-4o-mini",
		MaxTokens:    256,
		Timeout:      5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenAIGateway: %v", err)
	}
	return gateway
}

func TestCompleteReturnsTrimmedContent(t *testing.T) {
	server := fakeProvider(t, "  SELECT 1  ")
	defer server.Close()

	got, err := gatewayFor(t, server.URL).Complete(context.Background(), "prompt", RoleUser, "")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "SELECT 1" {
		t.Fatalf("expected trimmed content, got %q", got)
	}
}

func TestCompleteFailsOnEmptyContent(t *testing.T) {
	server := fakeProvider(t, "   ")
	defer server.Close()

	_, err := gatewayFor(t, server.URL).Complete(context.Background(), "prompt", RoleUser, "")
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestCompleteRequiresPrompt(t *testing.T) {
	server := fakeProvider(t, "unused")
	defer server.Close()

	if _, err := gatewayFor(t, server.URL).Complete(context.Background(), "   ", RoleUser, ""); err == nil {
		t.Fatal("expected error for blank prompt")
	}
}

func TestNewOpenAIGatewayValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.CompletionConfig
	}{
		{"missing api key", config.CompletionConfig{DefaultModel: "gpt-4o-mini", MaxTokens: 10}},
		{"missing model", config.CompletionConfig{APIKey: "k", MaxTokens: 10}},
		{"non-positive max tokens", config.CompletionConfig{APIKey: "k", DefaultModel: "gpt-4o-mini"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewOpenAIGateway(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}
