// ABOUTME: Filesystem-safe slugs for output file names
// ABOUTME: Lowercases, transliterates Uzbek Cyrillic and joins words with hyphens

package pipeline

import (
	"strings"
	"unicode"
)

const maxSlugLength = 60

var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo", 'ж': "j",
	'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m", 'н': "n", 'о': "o",
	'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f", 'х': "x", 'ц': "ts",
	'ч': "ch", 'ш': "sh", 'щ': "sh", 'ъ': "", 'ы': "i", 'ь': "", 'э': "e", 'ю': "yu",
	'я': "ya", 'ў': "o", 'қ': "q", 'ғ': "g", 'ҳ': "h",
}

// Slugify turns a topic into a lowercase, hyphen-separated ASCII name.
// Apostrophes vanish so "o'zbek" becomes "ozbek". An empty result becomes "presentation".
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	write := func(part string) {
		if part == "" {
			return
		}
		if pendingDash && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingDash = false
		b.WriteString(part)
	}

	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			write(string(r))
		case r == '\'' || r == '`' || r == '‘' || r == '’' || r == 'ʻ' || r == 'ʼ':
		default:
			if t, ok := cyrillic[r]; ok {
				write(t)
				continue
			}
			pendingDash = true
		}
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "presentation"
	}
	return slug
}
