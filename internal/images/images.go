// ABOUTME: ImageProvider resolving one background image per slide
// ABOUTME: Searches one configured backend, downloads with a size cap, and falls back to a gradient

package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/2389/deckbot/internal/metrics"
)

// ErrNoResults is returned by a Searcher when the query matched nothing.
var ErrNoResults = errors.New("no images found")

// SourceGradient marks a Result that was synthesized locally.
const SourceGradient = "gradient"

// Photo is the first search hit of a backend.
type Photo struct {
	URL       string
	Author    string
	AuthorURL string
}

// Searcher is one image search service.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) (*Photo, error)
}

// Result is the image chosen for one slide. Path is always set.
type Result struct {
	SlideNumber int
	Path        string
	URL         string
	Author      string
	AuthorURL   string
	Source      string
}

// Fallback reports whether the image is a generated gradient.
func (r Result) Fallback() bool { return r.Source == SourceGradient }

// Options configure a Provider.
type Options struct {
	Dir      string
	MaxBytes int64
	Timeout  time.Duration
	Palette  [][]string
	Metrics  metrics.Recorder
}

// Provider fetches slide images. Fetch never fails outward.
type Provider struct {
	searcher   Searcher
	downloader *downloader
	dir        string
	timeout    time.Duration
	palette    []gradientColors
	metrics    metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewProvider creates a Provider writing images under opts.Dir.
// A nil searcher always produces gradients.
func NewProvider(searcher Searcher, opts Options, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 5 * 1024 * 1024
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	palette, err := parsePalette(opts.Palette)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return &Provider{
		searcher:   searcher,
		downloader: newDownloader(opts.MaxBytes),
		dir:        opts.Dir,
		timeout:    opts.Timeout,
		palette:    palette,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "images"),
		now:        time.Now,
	}, nil
}

// Fetch returns an image for slideNumber. Any search or download problem
// yields a gradient instead; only a failure to write the gradient itself
// leaves Path pointing at a file that may not exist, and that is logged.
func (p *Provider) Fetch(ctx context.Context, query string, slideNumber int) Result {
	if p.searcher != nil && query != "" {
		result, err := p.fetchRemote(ctx, query, slideNumber)
		if err == nil {
			p.metrics.ImageResult(p.searcher.Name(), "ok")
			return result
		}
		p.logger.Warn("image fetch failed, using gradient",
			"backend", p.searcher.Name(),
			"query", query,
			"slide", slideNumber,
			"error", err)
		p.metrics.ImageResult(p.searcher.Name(), "fallback")
	} else {
		p.metrics.ImageResult("none", "fallback")
	}
	return p.gradient(slideNumber)
}

// FetchAll fetches one image per slide number, in slide order.
func (p *Provider) FetchAll(ctx context.Context, queries map[int]string) map[int]Result {
	numbers := make([]int, 0, len(queries))
	for n := range queries {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	results := make(map[int]Result, len(queries))
	for _, n := range numbers {
		results[n] = p.Fetch(ctx, queries[n], n)
	}
	return results
}

func (p *Provider) fetchRemote(ctx context.Context, query string, slideNumber int) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	photo, err := p.searcher.Search(callCtx, query)
	if err != nil {
		return Result{}, fmt.Errorf("searching: %w", err)
	}

	name := fmt.Sprintf("slide_%d_%d.jpg", slideNumber, p.now().UnixNano())
	path := filepath.Join(p.dir, name)
	if err := p.downloader.download(callCtx, photo.URL, path); err != nil {
		return Result{}, fmt.Errorf("downloading: %w", err)
	}

	return Result{
		SlideNumber: slideNumber,
		Path:        path,
		URL:         photo.URL,
		Author:      photo.Author,
		AuthorURL:   photo.AuthorURL,
		Source:      p.searcher.Name(),
	}, nil
}

func (p *Provider) gradient(slideNumber int) Result {
	colors := p.palette[paletteIndex(slideNumber, len(p.palette))]
	name := fmt.Sprintf("gradient_slide_%d_%d.jpg", slideNumber, p.now().UnixNano())
	path := filepath.Join(p.dir, name)
	if err := writeGradient(path, colors); err != nil {
		p.logger.Error("writing gradient image", "slide", slideNumber, "path", path, "error", err)
	}
	return Result{SlideNumber: slideNumber, Path: path, Source: SourceGradient}
}

func paletteIndex(slideNumber, size int) int {
	i := slideNumber % size
	if i < 0 {
		i += size
	}
	return i
}
