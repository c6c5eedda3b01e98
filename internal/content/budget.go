// ABOUTME: Token budgeting for text generation calls using tiktoken
// ABOUTME: Sizes max output tokens from the page count and counts prompt tokens for logging

package content

import (
	"github.com/tiktoken-go/tokenizer"
)

const (
	tokensPerSlide    = 220
	tokensOverhead    = 256
	minOutputTokens   = 1024
	defaultMaxOutputs = 4096
)

// Budget decides how many output tokens to ask a backend for.
type Budget struct {
	codec     tokenizer.Codec
	maxOutput int
}

// NewBudget creates a Budget capped at maxOutput tokens.
// Counting uses the GPT-4 encoding for every backend, which is close enough for sizing.
func NewBudget(maxOutput int) *Budget {
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutputs
	}
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		codec = nil
	}
	return &Budget{codec: codec, maxOutput: maxOutput}
}

// PromptTokens counts tokens in prompt, estimating 4 bytes per token if the codec is unavailable.
func (b *Budget) PromptTokens(prompt string) int {
	if b.codec == nil {
		return len(prompt) / 4
	}
	n, err := b.codec.Count(prompt)
	if err != nil {
		return len(prompt) / 4
	}
	return n
}

// OutputTokens is the completion budget for a deck of pages slides.
func (b *Budget) OutputTokens(pages int) int {
	n := pages*tokensPerSlide + tokensOverhead
	if n < minOutputTokens {
		n = minOutputTokens
	}
	if n > b.maxOutput {
		n = b.maxOutput
	}
	return n
}
