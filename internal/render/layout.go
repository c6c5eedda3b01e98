// ABOUTME: Format-independent document layout shared by every renderer
// ABOUTME: Orders content pages and places the student info page first or last

package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/2389/deckbot/internal/content"
	"github.com/2389/deckbot/internal/images"
	"github.com/2389/deckbot/internal/messages"
)

// Format is an output container.
type Format string

// Supported formats.
const (
	FormatPPTX Format = "pptx"
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPPTX, FormatDOCX, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Extension is the file extension without the dot.
func (f Format) Extension() string { return string(f) }

// Info placement values.
const (
	PlacementFirst = "first"
	PlacementLast  = "last"
)

// Metadata is the student information printed on the info page.
type Metadata struct {
	University  string
	Direction   string
	Group       string
	StudentName string
	Placement   string
}

// Labels are the fixed texts printed in documents.
type Labels struct {
	InfoTitle      string
	University     string
	Direction      string
	Group          string
	Student        string
	Notes          string
	PageTemplate   string
	CreditTemplate string
}

// LabelsFromCatalog reads document labels from a message catalog.
func LabelsFromCatalog(c *messages.Catalog) Labels {
	return Labels{
		InfoTitle:      c.Get(messages.InfoTitle),
		University:     c.Get(messages.UniversityLabel),
		Direction:      c.Get(messages.DirectionLabel),
		Group:          c.Get(messages.GroupLabel),
		Student:        c.Get(messages.StudentLabel),
		Notes:          c.Get(messages.NotesLabel),
		PageTemplate:   c.Get(messages.PageLabel),
		CreditTemplate: c.Get(messages.ImageCredit),
	}
}

// Page returns the page marker for slide n.
func (l Labels) Page(n int) string {
	return strings.ReplaceAll(l.PageTemplate, "{n}", strconv.Itoa(n))
}

// Credit returns the attribution line for an image.
func (l Labels) Credit(author, source string) string {
	return strings.NewReplacer("{author}", author, "{source}", source).Replace(l.CreditTemplate)
}

// PageKind distinguishes the info page from content pages.
type PageKind int

const (
	PageContent PageKind = iota
	PageInfo
)

// Page is one slide or document page.
type Page struct {
	Kind   PageKind
	Number int
	Title  string
	Lines  []Line
	Marker string
	Notes  string
	Image  *images.Result
}

// Document is the logical document every renderer writes.
type Document struct {
	Title string
	Pages []Page
}

// Layout builds the Document for a deck. Content pages follow slide order;
// the info page goes before them unless meta.Placement is "last".
func Layout(deck *content.SlideContent, imgs map[int]images.Result, meta Metadata, labels Labels) *Document {
	doc := &Document{Title: deck.Title}
	info := infoPage(deck.Title, meta, labels)

	if meta.Placement != PlacementLast {
		doc.Pages = append(doc.Pages, info)
	}
	for _, slide := range deck.Slides {
		page := Page{
			Kind:   PageContent,
			Number: slide.Number,
			Title:  slide.Title,
			Marker: labels.Page(slide.Number),
		}
		for _, b := range slide.Bullets {
			if line := ParseInline(b); len(line) > 0 {
				page.Lines = append(page.Lines, line)
			}
		}

		var notes []string
		if slide.SpeakerNotes != "" {
			notes = append(notes, slide.SpeakerNotes)
		}
		if img, ok := imgs[slide.Number]; ok {
			img := img
			page.Image = &img
			if img.Author != "" {
				notes = append(notes, labels.Credit(img.Author, img.Source))
			}
		}
		page.Notes = strings.Join(notes, "\n")
		doc.Pages = append(doc.Pages, page)
	}
	if meta.Placement == PlacementLast {
		doc.Pages = append(doc.Pages, info)
	}
	return doc
}

func infoPage(title string, meta Metadata, labels Labels) Page {
	field := func(label, value string) Line {
		return Line{{Text: label + ": ", Bold: true}, {Text: value}}
	}
	lines := []Line{
		field(labels.University, meta.University),
		field(labels.Direction, meta.Direction),
		field(labels.Group, meta.Group),
	}
	if meta.StudentName != "" {
		lines = append(lines, field(labels.Student, meta.StudentName))
	}
	return Page{
		Kind:   PageInfo,
		Title:  title,
		Lines:  lines,
		Marker: labels.InfoTitle,
	}
}
