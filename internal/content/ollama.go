// ABOUTME: Ollama text backend for locally hosted models
// ABOUTME: Uses the non-streaming chat endpoint with num_predict as the output budget

package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaBackend calls an Ollama server.
type OllamaBackend struct {
	client *api.Client
	model  string
}

// NewOllamaBackend creates a backend for the server at host.
func NewOllamaBackend(host, model string) (*OllamaBackend, error) {
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama host %q: %w", host, err)
	}
	return &OllamaBackend{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}, nil
}

// Name implements Backend.
func (b *OllamaBackend) Name() string { return "ollama" }

// Complete implements Backend.
func (b *OllamaBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    b.model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
		Options: map[string]any{
			"num_predict": maxTokens,
		},
	}

	var response api.ChatResponse
	err := b.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if response.Message.Content == "" {
		return "", errors.New("ollama returned an empty message")
	}
	return response.Message.Content, nil
}
