// ABOUTME: PowerPoint (pptx) renderer writing PresentationML directly into a zip package
// ABOUTME: Each page gets a full-bleed background, title, bullets, page marker and speaker notes

package render

import (
	"fmt"
	"io"
	"strings"
)

const (
	nsA = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP = "http://schemas.openxmlformats.org/presentationml/2006/main"

	relSlide       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	relSlideLayout = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout"
	relSlideMaster = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster"
	relNotesMaster = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesMaster"
	relNotesSlide  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"

	ctPresentation = "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"
	ctSlide        = "application/vnd.openxmlformats-officedocument.presentationml.slide+xml"
	ctSlideLayout  = "application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"
	ctSlideMaster  = "application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"
	ctNotesMaster  = "application/vnd.openxmlformats-officedocument.presentationml.notesMaster+xml"
	ctNotesSlide   = "application/vnd.openxmlformats-officedocument.presentationml.notesSlide+xml"

	slideWidth  int64 = 12192000
	slideHeight int64 = 6858000
	slideMargin int64 = 457200
)

const emptyGroup = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

const clrMap = `<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" ` +
	`accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>`

const pmlRoot = `xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `"`

// PPTXRenderer writes 16:9 slide decks. Palette colors fill pages whose image is unusable.
type PPTXRenderer struct {
	Palette [][]string
}

// Render implements Renderer.
func (r *PPTXRenderer) Render(doc *Document, w io.Writer) error {
	pkg := newPackage(w)

	if err := pkg.addString("_rels/.rels", "", rootRels("ppt/presentation.xml")); err != nil {
		return err
	}
	extra := fmt.Sprintf(`<Slides>%d</Slides>`, len(doc.Pages))
	if err := pkg.addDocProps(doc.Title, "deckbot", extra); err != nil {
		return err
	}

	presRels := []relationship{
		{"rId1", relSlideMaster, "slideMasters/slideMaster1.xml"},
		{"rId2", relNotesMaster, "notesMasters/notesMaster1.xml"},
		{"rId3", relTheme, "theme/theme1.xml"},
	}
	var sldIDs strings.Builder
	for i := range doc.Pages {
		rid := fmt.Sprintf("rId%d", 10+i)
		presRels = append(presRels, relationship{rid, relSlide, fmt.Sprintf("slides/slide%d.xml", i+1)})
		fmt.Fprintf(&sldIDs, `<p:sldId id="%d" r:id="%s"/>`, 256+i, rid)
	}

	presentation := xmlHeader + `<p:presentation ` + pmlRoot + ` saveSubsetFonts="1">` +
		`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>` +
		`<p:notesMasterIdLst><p:notesMasterId r:id="rId2"/></p:notesMasterIdLst>` +
		`<p:sldIdLst>` + sldIDs.String() + `</p:sldIdLst>` +
		fmt.Sprintf(`<p:sldSz cx="%d" cy="%d"/>`, slideWidth, slideHeight) +
		`<p:notesSz cx="6858000" cy="9144000"/>` +
		`</p:presentation>`

	fixed := []struct {
		name, ct, body string
	}{
		{"ppt/presentation.xml", ctPresentation, presentation},
		{"ppt/_rels/presentation.xml.rels", "", relsXML(presRels)},
		{"ppt/theme/theme1.xml", ctTheme, themeXML},
		{"ppt/theme/theme2.xml", ctTheme, themeXML},
		{"ppt/slideMasters/slideMaster1.xml", ctSlideMaster, slideMasterXML},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", "", relsXML([]relationship{
			{"rId1", relSlideLayout, "../slideLayouts/slideLayout1.xml"},
			{"rId2", relTheme, "../theme/theme1.xml"},
		})},
		{"ppt/slideLayouts/slideLayout1.xml", ctSlideLayout, slideLayoutXML},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", "", relsXML([]relationship{
			{"rId1", relSlideMaster, "../slideMasters/slideMaster1.xml"},
		})},
		{"ppt/notesMasters/notesMaster1.xml", ctNotesMaster, notesMasterXML},
		{"ppt/notesMasters/_rels/notesMaster1.xml.rels", "", relsXML([]relationship{
			{"rId1", relTheme, "../theme/theme2.xml"},
		})},
	}
	for _, part := range fixed {
		if err := pkg.addString(part.name, part.ct, part.body); err != nil {
			return err
		}
	}

	for i, page := range doc.Pages {
		if err := r.writeSlide(pkg, i+1, page); err != nil {
			return err
		}
	}
	return pkg.close()
}

func (r *PPTXRenderer) writeSlide(pkg *opcPackage, n int, page Page) error {
	rels := []relationship{{"rId1", relSlideLayout, "../slideLayouts/slideLayout1.xml"}}

	var bg string
	var shapes strings.Builder
	nextID := 2

	pic := loadPicture(page.Image)
	if pic != nil {
		media := fmt.Sprintf("ppt/media/image%d.%s", n, pic.ext)
		pkg.addDefault(pic.ext, pic.contentType)
		if err := pkg.add(media, "", pic.data); err != nil {
			return err
		}
		rels = append(rels, relationship{"rId2", relImage, fmt.Sprintf("../media/image%d.%s", n, pic.ext)})
		shapes.WriteString(backgroundPicture(nextID, pic))
		nextID++
		if !pic.gradient {
			shapes.WriteString(overlayShape(nextID))
			nextID++
		}
	} else {
		bg = r.gradientBackground(page)
	}

	switch page.Kind {
	case PageInfo:
		shapes.WriteString(textShape(nextID, "Title", slideMargin, 1600200, slideWidth-2*slideMargin, 1143000, "ctr",
			[]string{runsXML(Line{{Text: page.Title}}, 4000, true)}))
		nextID++
		paras := make([]string, 0, len(page.Lines))
		for _, line := range page.Lines {
			paras = append(paras, runsXML(line, 2400, false))
		}
		shapes.WriteString(textShape(nextID, "Info", slideMargin, 3048000, slideWidth-2*slideMargin, 2743200, "ctr", paras))
		nextID++
	default:
		shapes.WriteString(textShape(nextID, "Title", slideMargin, 381000, slideWidth-2*slideMargin, 1143000, "l",
			[]string{runsXML(Line{{Text: page.Title}}, 3600, true)}))
		nextID++
		if len(page.Lines) > 0 {
			shapes.WriteString(bulletShape(nextID, page.Lines))
			nextID++
		}
	}

	if page.Marker != "" {
		shapes.WriteString(textShape(nextID, "Page", slideWidth-slideMargin-3048000, slideHeight-685800, 3048000, 457200, "r",
			[]string{markerRun(page.Marker)}))
	}

	if page.Notes != "" {
		notesName := fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n)
		if err := pkg.addString(notesName, ctNotesSlide, notesSlideXML(page.Notes)); err != nil {
			return err
		}
		if err := pkg.addString(fmt.Sprintf("ppt/notesSlides/_rels/notesSlide%d.xml.rels", n), "", relsXML([]relationship{
			{"rId1", relNotesMaster, "../notesMasters/notesMaster1.xml"},
			{"rId2", relSlide, fmt.Sprintf("../slides/slide%d.xml", n)},
		})); err != nil {
			return err
		}
		rels = append(rels, relationship{"rId3", relNotesSlide, fmt.Sprintf("../notesSlides/notesSlide%d.xml", n)})
	}

	slide := xmlHeader + `<p:sld ` + pmlRoot + `><p:cSld>` + bg +
		`<p:spTree>` + emptyGroup + shapes.String() + `</p:spTree></p:cSld>` +
		`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`

	if err := pkg.addString(fmt.Sprintf("ppt/slides/slide%d.xml", n), ctSlide, slide); err != nil {
		return err
	}
	return pkg.addString(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), "", relsXML(rels))
}

func (r *PPTXRenderer) gradientBackground(page Page) string {
	top, bottom := "2C3E50", "3498DB"
	if len(r.Palette) > 0 {
		pair := r.Palette[paletteSlot(page.Number, len(r.Palette))]
		if len(pair) == 2 {
			top = strings.ToUpper(strings.TrimPrefix(pair[0], "#"))
			bottom = strings.ToUpper(strings.TrimPrefix(pair[1], "#"))
		}
	}
	return `<p:bg><p:bgPr><a:gradFill rotWithShape="1"><a:gsLst>` +
		`<a:gs pos="0"><a:srgbClr val="` + esc(top) + `"/></a:gs>` +
		`<a:gs pos="100000"><a:srgbClr val="` + esc(bottom) + `"/></a:gs>` +
		`</a:gsLst><a:lin ang="2700000" scaled="0"/></a:gradFill><a:effectLst/></p:bgPr></p:bg>`
}

func paletteSlot(n, size int) int {
	i := n % size
	if i < 0 {
		i += size
	}
	return i
}

// backgroundPicture stretches pic over the slide, cropping it to 16:9.
func backgroundPicture(id int, pic *picture) string {
	var crop string
	imgRatio := float64(pic.width) / float64(pic.height)
	slideRatio := float64(slideWidth) / float64(slideHeight)
	switch {
	case imgRatio > slideRatio:
		side := int((1 - slideRatio/imgRatio) / 2 * 100000)
		crop = fmt.Sprintf(`<a:srcRect l="%d" r="%d"/>`, side, side)
	case imgRatio < slideRatio:
		side := int((1 - imgRatio/slideRatio) / 2 * 100000)
		crop = fmt.Sprintf(`<a:srcRect t="%d" b="%d"/>`, side, side)
	}
	return fmt.Sprintf(`<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Background"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`+
		`<p:blipFill><a:blip r:embed="rId2"/>%s<a:stretch><a:fillRect/></a:stretch></p:blipFill>`+
		`<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`,
		id, crop, slideWidth, slideHeight)
}

func overlayShape(id int) string {
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Overlay"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>`+
		`<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom>`+
		`<a:solidFill><a:srgbClr val="000000"><a:alpha val="50000"/></a:srgbClr></a:solidFill><a:ln><a:noFill/></a:ln></p:spPr></p:sp>`,
		id, slideWidth, slideHeight)
}

func textShape(id int, name string, x, y, cx, cy int64, align string, paras []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, name)
	fmt.Fprintf(&b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`, x, y, cx, cy)
	b.WriteString(`<p:txBody><a:bodyPr wrap="square" anchor="t"><a:normAutofit/></a:bodyPr><a:lstStyle/>`)
	for _, p := range paras {
		fmt.Fprintf(&b, `<a:p><a:pPr algn="%s"/>%s</a:p>`, align, p)
	}
	b.WriteString(`</p:txBody></p:sp>`)
	return b.String()
}

func bulletShape(id int, lines []Line) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Content"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id)
	fmt.Fprintf(&b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`,
		slideMargin, 1676400, slideWidth-2*slideMargin, 4419600)
	b.WriteString(`<p:txBody><a:bodyPr wrap="square" anchor="t"><a:normAutofit/></a:bodyPr><a:lstStyle/>`)
	for _, line := range lines {
		b.WriteString(`<a:p><a:pPr marL="342900" indent="-342900"><a:spcAft><a:spcPts val="1200"/></a:spcAft>` +
			`<a:buFont typeface="Arial"/><a:buChar char="&#8226;"/></a:pPr>`)
		b.WriteString(runsXML(line, 2400, false))
		b.WriteString(`</a:p>`)
	}
	b.WriteString(`</p:txBody></p:sp>`)
	return b.String()
}

// runsXML renders spans as DrawingML runs in white text.
func runsXML(line Line, size int, bold bool) string {
	var b strings.Builder
	for _, span := range line {
		attrs := fmt.Sprintf(`lang="uz-UZ" sz="%d"`, size)
		if bold || span.Bold {
			attrs += ` b="1"`
		}
		if span.Italic {
			attrs += ` i="1"`
		}
		fmt.Fprintf(&b, `<a:r><a:rPr %s dirty="0"><a:solidFill><a:srgbClr val="FFFFFF"/></a:solidFill></a:rPr><a:t>%s</a:t></a:r>`,
			attrs, esc(span.Text))
	}
	return b.String()
}

func markerRun(text string) string {
	return `<a:r><a:rPr lang="uz-UZ" sz="1400" dirty="0"><a:solidFill><a:srgbClr val="FFFFFF"><a:alpha val="80000"/></a:srgbClr></a:solidFill></a:rPr>` +
		`<a:t>` + esc(text) + `</a:t></a:r>`
}

func notesSlideXML(notes string) string {
	var paras strings.Builder
	for _, line := range strings.Split(notes, "\n") {
		fmt.Fprintf(&paras, `<a:p><a:r><a:rPr lang="uz-UZ" dirty="0"/><a:t>%s</a:t></a:r></a:p>`, esc(line))
	}
	return xmlHeader + `<p:notes ` + pmlRoot + `><p:cSld><p:spTree>` + emptyGroup +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Notes"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr>` +
		`<p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/>` + paras.String() + `</p:txBody></p:sp>` +
		`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:notes>`
}

var slideMasterXML = xmlHeader + `<p:sldMaster ` + pmlRoot + `><p:cSld>` +
	`<p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg>` +
	`<p:spTree>` + emptyGroup + `</p:spTree></p:cSld>` + clrMap +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`<p:txStyles><p:titleStyle/><p:bodyStyle/><p:otherStyle/></p:txStyles>` +
	`</p:sldMaster>`

var slideLayoutXML = xmlHeader + `<p:sldLayout ` + pmlRoot + ` type="blank" preserve="1">` +
	`<p:cSld name="Blank"><p:spTree>` + emptyGroup + `</p:spTree></p:cSld>` +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

var notesMasterXML = xmlHeader + `<p:notesMaster ` + pmlRoot + `><p:cSld>` +
	`<p:spTree>` + emptyGroup + `</p:spTree></p:cSld>` + clrMap + `</p:notesMaster>`
