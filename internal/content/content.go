// ABOUTME: ContentProvider turning a topic and page count into slide content
// ABOUTME: Calls one configured text backend and falls back to deterministic content on any failure

package content

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/deckbot/internal/metrics"
)

// Slide is one page of generated content. Number is 1-based.
type Slide struct {
	Number       int
	Title        string
	Bullets      []string
	SpeakerNotes string
	ImageQuery   string
}

// SlideContent is a full deck. Slides are numbered 1..len(Slides) without gaps.
type SlideContent struct {
	Title  string
	Slides []Slide
}

// Request describes what to generate.
type Request struct {
	Topic      string
	Pages      int
	University string
	Direction  string
	Group      string
	Language   string
}

// Backend is one text generation service.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Provider generates slide content. Generate never fails: every backend
// problem ends in Fallback content.
type Provider struct {
	backend  Backend
	timeout  time.Duration
	language string
	budget   *Budget
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// Options configure a Provider.
type Options struct {
	Timeout   time.Duration
	Language  string
	MaxTokens int
	Metrics   metrics.Recorder
}

// NewProvider creates a Provider. A nil backend always uses Fallback.
func NewProvider(backend Backend, opts Options, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	return &Provider{
		backend:  backend,
		timeout:  opts.Timeout,
		language: opts.Language,
		budget:   NewBudget(opts.MaxTokens),
		metrics:  opts.Metrics,
		logger:   logger.With("component", "content"),
	}
}

// Generate returns exactly req.Pages slides.
func (p *Provider) Generate(ctx context.Context, req Request) *SlideContent {
	if req.Language == "" {
		req.Language = p.language
	}
	if p.backend == nil {
		p.metrics.ContentResult("none", "fallback", 0)
		return Fallback(req.Topic, req.Pages)
	}

	start := time.Now()
	result, err := p.generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Warn("text backend failed, using fallback content",
			"backend", p.backend.Name(),
			"topic", req.Topic,
			"duration", elapsed,
			"error", err)
		p.metrics.ContentResult(p.backend.Name(), "fallback", elapsed)
		return Fallback(req.Topic, req.Pages)
	}

	p.metrics.ContentResult(p.backend.Name(), "ok", elapsed)
	p.logger.Info("content generated",
		"backend", p.backend.Name(),
		"slides", len(result.Slides),
		"duration", elapsed)
	return result
}

func (p *Provider) generate(ctx context.Context, req Request) (*SlideContent, error) {
	prompt := BuildPrompt(req)
	maxTokens := p.budget.OutputTokens(req.Pages)
	p.logger.Debug("calling text backend",
		"backend", p.backend.Name(),
		"prompt_tokens", p.budget.PromptTokens(prompt),
		"max_tokens", maxTokens)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.backend.Complete(callCtx, prompt, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", p.backend.Name(), err)
	}

	parsed, err := ParseSlides(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", p.backend.Name(), err)
	}
	return Conform(parsed, req.Topic, req.Pages), nil
}

// Conform renumbers slides in order and pads or trims to exactly pages slides.
// Missing positions are filled from Fallback so the intro and conclusion roles hold.
func Conform(c *SlideContent, topic string, pages int) *SlideContent {
	if pages < 1 {
		pages = 1
	}
	out := &SlideContent{Title: c.Title, Slides: make([]Slide, 0, pages)}
	if out.Title == "" {
		out.Title = topic
	}
	for i := 0; i < pages; i++ {
		var s Slide
		if i < len(c.Slides) {
			s = c.Slides[i]
		} else {
			s = fallbackSlide(topic, i+1, pages)
		}
		s.Number = i + 1
		if s.ImageQuery == "" {
			s.ImageQuery = topic
		}
		out.Slides = append(out.Slides, s)
	}
	return out
}
