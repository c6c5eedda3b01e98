// ABOUTME: DocumentAssembler dispatching a laid-out document to the renderer for its format
// ABOUTME: Writes to a temporary file and renames it so exactly one finished file ever appears

package render

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/2389/deckbot/internal/content"
	"github.com/2389/deckbot/internal/images"
)

// ErrUnsupportedFormat is returned for a format without a renderer.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Renderer writes one container format.
type Renderer interface {
	Render(doc *Document, w io.Writer) error
}

// Output describes a rendered file.
type Output struct {
	Path string
	Size int64
}

// Options configure an Assembler.
type Options struct {
	Labels  Labels
	Palette [][]string
	PDFFont string
}

// Assembler renders documents in any supported format.
type Assembler struct {
	renderers map[Format]Renderer
	labels    Labels
	logger    *slog.Logger
}

// NewAssembler creates an Assembler with the pptx, docx and pdf renderers.
func NewAssembler(opts Options, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{
		renderers: map[Format]Renderer{
			FormatPPTX: &PPTXRenderer{Palette: opts.Palette},
			FormatDOCX: &DOCXRenderer{},
			FormatPDF:  &PDFRenderer{FontPath: opts.PDFFont},
		},
		labels: opts.Labels,
		logger: logger.With("component", "render"),
	}
	if opts.PDFFont == "" {
		a.logger.Warn("output.pdf_font is not set; PDF text falls back to cp1252 and drops Cyrillic and ʻ characters")
	}
	return a
}

// Register replaces the renderer for a format.
func (a *Assembler) Register(format Format, r Renderer) {
	a.renderers[format] = r
}

// Render lays out deck and writes it to outputPath in the given format.
func (a *Assembler) Render(format Format, deck *content.SlideContent, imgs map[int]images.Result, meta Metadata, outputPath string) (*Output, error) {
	renderer, ok := a.renderers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	doc := Layout(deck, imgs, meta, a.labels)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := renderer.Render(doc, tmp); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("rendering %s: %w", format, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing temporary file: %w", err)
	}

	if format == FormatPDF {
		if err := verifyPDF(tmpPath, len(doc.Pages)); err != nil {
			return nil, err
		}
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, fmt.Errorf("moving rendered file into place: %w", err)
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("stat rendered file: %w", err)
	}

	a.logger.Info("document rendered",
		"format", format,
		"pages", len(doc.Pages),
		"path", outputPath,
		"size", info.Size())
	return &Output{Path: outputPath, Size: info.Size()}, nil
}
