// ABOUTME: Builds the configured text backend from the content config section
// ABOUTME: Provider "none" yields no backend, which makes the Provider use fallback content only

package content

import (
	"fmt"

	"github.com/2389/deckbot/internal/config"
)

// NewBackend returns the backend selected by cfg.Provider, or nil for "none".
// A selected provider without credentials also yields nil so the bot still runs.
func NewBackend(cfg config.ContentConfig) (Backend, error) {
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderAnthropic:
		if cfg.Anthropic.APIKey == "" {
			return nil, nil
		}
		return NewAnthropicBackend(cfg.Anthropic.APIKey, cfg.Anthropic.Model, ""), nil
	case config.ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, nil
		}
		return NewOpenAIBackend(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL), nil
	case config.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, nil
		}
		return NewGeminiBackend(cfg.Gemini.APIKey, cfg.Gemini.Model, ""), nil
	case config.ProviderOllama:
		backend, err := NewOllamaBackend(cfg.Ollama.Host, cfg.Ollama.Model)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown content provider %q", cfg.Provider)
	}
}
