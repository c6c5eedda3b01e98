// ABOUTME: Helpers for writing Office Open XML packages part by part (pptx)
// ABOUTME: Zip part writing, content types, XML escaping and picture loading shared with docx

package render

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for embedded pictures
	_ "image/png"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/2389/deckbot/internal/images"
)

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

	nsRelationships = "http://schemas.openxmlformats.org/package/2006/relationships"
	relOfficeDoc    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relCoreProps    = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relExtProps     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/extended-properties"
	relImage        = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
	relTheme        = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme"

	ctRelationships = "application/vnd.openxmlformats-package.relationships+xml"
	ctCoreProps     = "application/vnd.openxmlformats-package.core-properties+xml"
	ctExtProps      = "application/vnd.openxmlformats-officedocument.extended-properties+xml"
	ctTheme         = "application/vnd.openxmlformats-officedocument.theme+xml"

	emuPerInch = 914400
)

// esc escapes s for XML character data and attribute values.
func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

type relationship struct {
	id, typ, target string
}

func relsXML(rels []relationship) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<Relationships xmlns="%s">`, nsRelationships)
	for _, r := range rels {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, r.typ, esc(r.target))
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

// opcPackage accumulates parts and their content types.
type opcPackage struct {
	zw        *zip.Writer
	defaults  map[string]string
	overrides map[string]string
	parts     []string
}

func newPackage(w io.Writer) *opcPackage {
	return &opcPackage{
		zw: zip.NewWriter(w),
		defaults: map[string]string{
			"rels": ctRelationships,
			"xml":  "application/xml",
		},
		overrides: map[string]string{},
	}
}

func (p *opcPackage) add(name, contentType string, data []byte) error {
	if contentType != "" {
		p.overrides["/"+name] = contentType
	}
	p.parts = append(p.parts, name)
	fw, err := p.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("creating part %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("writing part %s: %w", name, err)
	}
	return nil
}

func (p *opcPackage) addString(name, contentType, data string) error {
	return p.add(name, contentType, []byte(data))
}

func (p *opcPackage) addDefault(ext, contentType string) {
	p.defaults[ext] = contentType
}

// close writes [Content_Types].xml and finishes the archive.
func (p *opcPackage) close() error {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	exts := make([]string, 0, len(p.defaults))
	for ext := range p.defaults {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		fmt.Fprintf(&b, `<Default Extension="%s" ContentType="%s"/>`, ext, p.defaults[ext])
	}
	names := make([]string, 0, len(p.overrides))
	for name := range p.overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, `<Override PartName="%s" ContentType="%s"/>`, name, p.overrides[name])
	}
	b.WriteString(`</Types>`)

	fw, err := p.zw.Create("[Content_Types].xml")
	if err != nil {
		return fmt.Errorf("creating content types: %w", err)
	}
	if _, err := io.WriteString(fw, b.String()); err != nil {
		return fmt.Errorf("writing content types: %w", err)
	}
	return p.zw.Close()
}

func (p *opcPackage) addDocProps(title string, app string, extra string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	core := xmlHeader +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + esc(title) + `</dc:title>` +
		`<dc:subject>` + esc(title) + `</dc:subject>` +
		`<dc:creator>deckbot</dc:creator>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + now + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + now + `</dcterms:modified>` +
		`</cp:coreProperties>`
	if err := p.addString("docProps/core.xml", ctCoreProps, core); err != nil {
		return err
	}
	ext := xmlHeader +
		`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties" ` +
		`xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes">` +
		`<Application>` + esc(app) + `</Application>` + extra +
		`</Properties>`
	return p.addString("docProps/app.xml", ctExtProps, ext)
}

func rootRels(mainPart string) string {
	return relsXML([]relationship{
		{"rId1", relOfficeDoc, mainPart},
		{"rId2", relCoreProps, "docProps/core.xml"},
		{"rId3", relExtProps, "docProps/app.xml"},
	})
}

// picture is an image loaded for embedding.
type picture struct {
	data          []byte
	ext           string
	contentType   string
	width, height int
	gradient      bool
}

// loadPicture reads an image result from disk. It returns nil when the file
// is missing or not a decodable JPEG or PNG.
func loadPicture(img *images.Result) *picture {
	if img == nil || img.Path == "" {
		return nil
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return nil
	}
	pic := &picture{data: data, width: cfg.Width, height: cfg.Height, gradient: img.Fallback()}
	switch format {
	case "jpeg":
		pic.ext, pic.contentType = "jpeg", "image/jpeg"
	case "png":
		pic.ext, pic.contentType = "png", "image/png"
	default:
		return nil
	}
	return pic
}

// fitWithin scales w x h to fit maxW x maxH (EMU), keeping the aspect ratio.
func fitWithin(w, h int, maxW, maxH int64) (int64, int64) {
	cx := maxW
	cy := maxW * int64(h) / int64(w)
	if cy > maxH {
		cy = maxH
		cx = maxH * int64(w) / int64(h)
	}
	return cx, cy
}
