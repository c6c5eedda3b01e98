// ABOUTME: Parses markdown-style emphasis inside bullet text into styled spans
// ABOUTME: Backends often emit **bold** and *italic*; the markup is stripped and kept as styling

package render

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Span is a run of text with one style.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
}

// Line is one paragraph of styled text.
type Line []Span

// Plain returns the text of l without styling.
func (l Line) Plain() string {
	var b strings.Builder
	for _, s := range l {
		b.WriteString(s.Text)
	}
	return b.String()
}

var markdown = goldmark.New()

// ParseInline converts s into spans. Block structure (headings, list markers)
// is dropped and adjacent runs with the same style are merged.
func ParseInline(s string) Line {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	src := []byte(s)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var (
		line       Line
		bold, ital int
	)
	emit := func(t string) {
		if t == "" {
			return
		}
		style := Span{Bold: bold > 0, Italic: ital > 0}
		if n := len(line); n > 0 && line[n-1].Bold == style.Bold && line[n-1].Italic == style.Italic {
			line[n-1].Text += t
			return
		}
		style.Text = t
		line = append(line, style)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Emphasis:
			delta := 1
			if !entering {
				delta = -1
			}
			if node.Level >= 2 {
				bold += delta
			} else {
				ital += delta
			}
		case *ast.Text:
			if entering {
				emit(string(node.Segment.Value(src)))
				if node.SoftLineBreak() || node.HardLineBreak() {
					emit(" ")
				}
			}
		case *ast.String:
			if entering {
				emit(string(node.Value))
			}
		case *ast.AutoLink:
			if entering {
				emit(string(node.Label(src)))
			}
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		default:
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && !entering && n.NextSibling() != nil {
				emit(" ")
			}
		}
		return ast.WalkContinue, nil
	})

	if len(line) == 0 {
		return Line{{Text: s}}
	}
	line[len(line)-1].Text = strings.TrimRight(line[len(line)-1].Text, " ")
	return line
}
