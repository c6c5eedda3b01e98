// ABOUTME: PDF renderer built on fpdf, A4 portrait with one page per document page
// ABOUTME: The written file is read back to check it parses and has every page

package render

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	lpdf "github.com/ledongthuc/pdf"
)

const (
	pdfMargin     = 20.0
	pdfLineHeight = 6.0
	pdfFontFamily = "deck"
)

// PDFRenderer writes PDF documents. Core fonts only cover cp1252; set FontPath
// to a TrueType font for full Unicode text.
type PDFRenderer struct {
	FontPath string
}

type pdfWriter struct {
	f      *fpdf.Fpdf
	family string
	tr     func(string) string
}

// Render implements Renderer.
func (r *PDFRenderer) Render(doc *Document, w io.Writer) error {
	f := fpdf.New("P", "mm", "A4", "")
	f.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	f.SetAutoPageBreak(true, pdfMargin)
	f.SetTitle(doc.Title, true)
	f.SetCreator("deckbot", false)

	pw := &pdfWriter{f: f, family: "Helvetica", tr: func(s string) string { return s }}
	if r.FontPath != "" {
		for _, style := range []string{"", "B", "I", "BI"} {
			f.AddUTF8Font(pdfFontFamily, style, r.FontPath)
		}
		pw.family = pdfFontFamily
	} else {
		pw.tr = f.UnicodeTranslatorFromDescriptor("")
	}

	for _, page := range doc.Pages {
		if page.Kind == PageInfo {
			pw.infoPage(page)
		} else {
			pw.contentPage(page)
		}
	}

	if err := f.Error(); err != nil {
		return fmt.Errorf("building pdf: %w", err)
	}
	return f.Output(w)
}

func (pw *pdfWriter) infoPage(page Page) {
	f := pw.f
	f.AddPage()
	f.SetTextColor(0x2c, 0x3e, 0x50)

	f.SetY(70)
	f.SetFont(pw.family, "B", 24)
	f.MultiCell(0, 11, pw.tr(page.Title), "", "C", false)
	f.Ln(18)

	f.SetFont(pw.family, "", 14)
	for _, line := range page.Lines {
		f.CellFormat(0, 10, pw.tr(line.Plain()), "", 1, "C", false, 0, "")
	}
}

func (pw *pdfWriter) contentPage(page Page) {
	f := pw.f
	f.AddPage()
	left, _, right, _ := f.GetMargins()
	width, _ := f.GetPageSize()

	f.SetTextColor(0x2c, 0x3e, 0x50)
	f.SetFont(pw.family, "B", 18)
	f.MultiCell(0, 9, pw.tr(page.Title), "", "L", false)

	y := f.GetY() + 1.5
	f.SetDrawColor(0x34, 0x98, 0xdb)
	f.SetLineWidth(0.6)
	f.Line(left, y, width-right, y)
	f.Ln(8)

	for _, line := range page.Lines {
		f.SetX(left + 4)
		f.SetFont(pw.family, "", 12)
		f.Write(pdfLineHeight, pw.tr("• "))
		f.SetLeftMargin(left + 9)
		for _, span := range line {
			f.SetFont(pw.family, spanStyle(span), 12)
			f.Write(pdfLineHeight, pw.tr(span.Text))
		}
		f.SetLeftMargin(left)
		f.Ln(pdfLineHeight + 3)
	}

	f.SetAutoPageBreak(false, 0)
	f.SetY(-pdfMargin - 2)
	f.SetFont(pw.family, "", 10)
	f.SetTextColor(0x95, 0xa5, 0xa6)
	f.CellFormat(0, pdfLineHeight, pw.tr(page.Marker), "", 0, "R", false, 0, "")
	f.SetAutoPageBreak(true, pdfMargin)
}

func spanStyle(s Span) string {
	switch {
	case s.Bold && s.Italic:
		return "BI"
	case s.Bold:
		return "B"
	case s.Italic:
		return "I"
	default:
		return ""
	}
}

// verifyPDF parses the file at path and checks it has at least minPages pages.
func verifyPDF(path string, minPages int) error {
	file, reader, err := lpdf.Open(path)
	if err != nil {
		return fmt.Errorf("reading back pdf: %w", err)
	}
	defer file.Close()

	if n := reader.NumPage(); n < minPages {
		return fmt.Errorf("pdf has %d pages, expected at least %d", n, minPages)
	}
	return nil
}
