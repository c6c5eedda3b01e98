// ABOUTME: Google Gemini text backend using the genai SDK
// ABOUTME: The client is created lazily on first use because construction needs a context

package content

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiBackend calls Gemini models over the Gemini API.
type GeminiBackend struct {
	apiKey  string
	model   string
	baseURL string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiBackend creates a backend. baseURL is optional.
func NewGeminiBackend(apiKey, model, baseURL string) *GeminiBackend {
	return &GeminiBackend{apiKey: apiKey, model: model, baseURL: baseURL}
}

// Name implements Backend.
func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) getClient(ctx context.Context) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  b.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if b.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: b.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	b.client = client
	return client, nil
}

// Complete implements Backend.
func (b *GeminiBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	//nolint:gosec // maxTokens is capped by Budget
	config := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}

	result, err := client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}
