// ABOUTME: Word (docx) renderer built on the godocx document model
// ABOUTME: One page per document page: picture banner, heading, bullet list, page marker and notes

package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"
)

const (
	bannerMaxWidth  int64 = 6 * emuPerInch
	bannerMaxHeight int64 = 3 * emuPerInch

	styleBullet = "List Bullet"
	markerColor = "95A5A6"
	markerSize  = 10
)

// DOCXRenderer writes Word documents.
type DOCXRenderer struct{}

// Render implements Renderer.
func (r *DOCXRenderer) Render(doc *Document, w io.Writer) error {
	document, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}

	for i, page := range doc.Pages {
		if i > 0 {
			document.AddPageBreak()
		}
		if page.Kind == PageInfo {
			if err := writeInfoPage(document, page); err != nil {
				return err
			}
			continue
		}
		if pic := loadPicture(page.Image); pic != nil {
			cx, cy := fitWithin(pic.width, pic.height, bannerMaxWidth, bannerMaxHeight)
			if _, err := document.AddPicture(page.Image.Path, emuToInch(cx), emuToInch(cy)); err != nil {
				return fmt.Errorf("embedding picture for page %d: %w", i+1, err)
			}
		}
		if err := writeContentPage(document, page); err != nil {
			return err
		}
	}

	return saveDocument(document, w)
}

func writeInfoPage(document *docx.RootDoc, page Page) error {
	document.AddParagraph("")
	if _, err := document.AddHeading(page.Title, 0); err != nil {
		return fmt.Errorf("adding title: %w", err)
	}
	for _, line := range page.Lines {
		addRuns(document.AddParagraph(""), line)
	}
	if page.Marker != "" {
		addMarker(document.AddParagraph(""), page.Marker)
	}
	return nil
}

func writeContentPage(document *docx.RootDoc, page Page) error {
	if _, err := document.AddHeading(page.Title, 1); err != nil {
		return fmt.Errorf("adding heading: %w", err)
	}
	for _, line := range page.Lines {
		p := document.AddParagraph("")
		p.Style(styleBullet)
		addRuns(p, line)
	}
	if page.Marker != "" {
		addMarker(document.AddParagraph(""), page.Marker)
	}
	for _, line := range strings.Split(page.Notes, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		document.AddParagraph("").AddText(line).Italic(true)
	}
	return nil
}

func addRuns(p *docx.Paragraph, line Line) {
	for _, span := range line {
		run := p.AddText(span.Text)
		if span.Bold {
			run.Bold(true)
		}
		if span.Italic {
			run.Italic(true)
		}
	}
}

func addMarker(p *docx.Paragraph, text string) {
	p.AddText(text).Color(markerColor).Size(markerSize)
}

func emuToInch(emu int64) units.Inch {
	return units.Inch(float64(emu) / emuPerInch)
}

// saveDocument streams the finished package into w. godocx saves to a path,
// so the package goes through a scratch file first.
func saveDocument(document *docx.RootDoc, w io.Writer) error {
	dir, err := os.MkdirTemp("", "deckbot-docx-")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "document.docx")
	if err := document.SaveTo(path); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopening document: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copying document: %w", err)
	}
	return nil
}
