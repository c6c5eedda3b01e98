// ABOUTME: Tests for the SDK-backed text backends against local HTTP servers
// ABOUTME: Checks request routing, reply extraction, and that failures surface as errors

package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/deckbot/internal/config"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestAnthropicBackend(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(t, w, map[string]any{
			"id":            "msg_01",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content": []map[string]any{
				{"type": "text", "text": deckJSON(3)},
			},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	defer srv.Close()

	backend := NewAnthropicBackend("test-key", "claude-test", srv.URL)
	assert.Equal(t, "anthropic", backend.Name())

	text, err := backend.Complete(context.Background(), "salom", 1200)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(gotPath, "/messages"), "path %q", gotPath)
	assert.Equal(t, "claude-test", gotBody["model"])
	assert.EqualValues(t, 1200, gotBody["max_tokens"])

	deck, err := ParseSlides(text)
	require.NoError(t, err)
	assert.Len(t, deck.Slides, 3)
}

func TestOpenAIBackend(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeJSON(t, w, map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": deckJSON(2)},
			}},
		})
	}))
	defer srv.Close()

	backend := NewOpenAIBackend("test-key", "gpt-test", srv.URL)
	text, err := backend.Complete(context.Background(), "salom", 1024)
	require.NoError(t, err)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Contains(t, text, "Sahifa 2")
}

func TestOllamaBackend(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(t, w, map[string]any{
			"model":      "llama-test",
			"created_at": "2026-05-01T09:00:00Z",
			"message":    map[string]any{"role": "assistant", "content": deckJSON(3)},
			"done":       true,
		})
	}))
	defer srv.Close()

	backend, err := NewOllamaBackend(srv.URL, "llama-test")
	require.NoError(t, err)

	text, err := backend.Complete(context.Background(), "salom", 900)
	require.NoError(t, err)
	assert.Contains(t, text, "Sahifa 3")
	assert.Equal(t, "llama-test", gotBody["model"])
	assert.Equal(t, false, gotBody["stream"])
}

func TestBackendServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	ollama, err := NewOllamaBackend(srv.URL, "m")
	require.NoError(t, err)

	backends := []Backend{
		NewAnthropicBackend("k", "m", srv.URL),
		NewOpenAIBackend("k", "m", srv.URL),
		ollama,
	}
	for _, b := range backends {
		t.Run(b.Name(), func(t *testing.T) {
			_, err := b.Complete(context.Background(), "salom", 1024)
			assert.Error(t, err)
		})
	}
}

func TestProvider_GeminiUnreachableFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := &fakeMetrics{}
	p := NewProvider(NewGeminiBackend("k", "gemini-test", srv.URL), Options{Timeout: 5 * time.Second, Metrics: m}, nil)

	deck := p.Generate(context.Background(), Request{Topic: "Astronomiya", Pages: 4})
	assertContiguous(t, deck, 4)
	assert.Equal(t, "Kirish: Astronomiya", deck.Slides[0].Title)
	assert.Equal(t, []recordedResult{{"gemini", "fallback"}}, m.content)
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ContentConfig
		wantName string
		wantErr  bool
	}{
		{name: "none", cfg: config.ContentConfig{Provider: config.ProviderNone}},
		{name: "anthropic without key", cfg: config.ContentConfig{Provider: config.ProviderAnthropic}},
		{
			name:     "anthropic",
			cfg:      config.ContentConfig{Provider: config.ProviderAnthropic, Anthropic: config.AnthropicConfig{APIKey: "k", Model: "m"}},
			wantName: "anthropic",
		},
		{
			name:     "openai",
			cfg:      config.ContentConfig{Provider: config.ProviderOpenAI, OpenAI: config.OpenAIConfig{APIKey: "k", Model: "m"}},
			wantName: "openai",
		},
		{
			name:     "gemini",
			cfg:      config.ContentConfig{Provider: config.ProviderGemini, Gemini: config.GeminiConfig{APIKey: "k", Model: "m"}},
			wantName: "gemini",
		},
		{
			name:     "ollama",
			cfg:      config.ContentConfig{Provider: config.ProviderOllama, Ollama: config.OllamaConfig{Host: "http://localhost:11434", Model: "m"}},
			wantName: "ollama",
		},
		{name: "unknown", cfg: config.ContentConfig{Provider: "bard"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := NewBackend(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantName == "" {
				assert.Nil(t, backend)
				return
			}
			require.NotNil(t, backend)
			assert.Equal(t, tt.wantName, backend.Name())
		})
	}
}
