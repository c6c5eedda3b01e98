// ABOUTME: Prompt text sent to every text backend
// ABOUTME: Embeds the student context, topic, slide count and the exact JSON shape expected back

package content

import (
	"fmt"
	"strings"
)

const jsonShape = `{
  "title": "Prezentatsiya umumiy sarlavhasi",
  "slides": [
    {
      "slide_number": 1,
      "title": "Sahifa sarlavhasi",
      "content": ["Birinchi nuqta", "Ikkinchi nuqta", "Uchinchi nuqta"],
      "speaker_notes": "Ma'ruzachi uchun qisqa izoh",
      "image_query": "short english image search keywords"
    }
  ]
}`

// BuildPrompt renders the generation prompt for req.
func BuildPrompt(req Request) string {
	language := req.Language
	if language == "" {
		language = "uzbek"
	}

	var b strings.Builder
	b.WriteString("Prezentatsiya uchun professional kontent yarating.\n\n")

	b.WriteString("TALABA MA'LUMOTLARI:\n")
	fmt.Fprintf(&b, "- Universitet: %s\n", req.University)
	fmt.Fprintf(&b, "- Yo'nalish: %s\n", req.Direction)
	fmt.Fprintf(&b, "- Guruh: %s\n\n", req.Group)

	b.WriteString("PREZENTATSIYA TALABLARI:\n")
	fmt.Fprintf(&b, "- Mavzu: %s\n", req.Topic)
	fmt.Fprintf(&b, "- Sahifalar soni: %d\n\n", req.Pages)

	b.WriteString("KONTENT TALABLARI:\n")
	b.WriteString("1. Birinchi sahifa: Mavzu bilan tanishish va umumiy ko'rinish\n")
	b.WriteString("2. Oxirgi sahifa: Xulosa, asosiy xulosalar va tavsiyalar\n")
	b.WriteString("3. O'rtadagi sahifalar: Mavzuni ketma-ket va mantiqiy yoritish\n")
	b.WriteString("4. Har bir sahifada 3-5 qisqa bullet point\n")
	b.WriteString("5. Oddiy, tushunarli va akademik til\n")
	fmt.Fprintf(&b, "6. Til: %s\n", language)
	b.WriteString("7. image_query ingliz tilida, 2-4 so'z\n")
	fmt.Fprintf(&b, "8. Aynan %d ta sahifa, slide_number 1 dan %d gacha\n\n", req.Pages, req.Pages)

	b.WriteString("MUHIM: Faqat JSON formatda javob bering, boshqa hech narsa yozmang!\n\n")
	b.WriteString("JSON FORMAT:\n")
	b.WriteString(jsonShape)
	return b.String()
}
