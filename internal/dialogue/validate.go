// ABOUTME: Input validators for each free-text dialogue step
// ABOUTME: Length limits count characters, not bytes, so Cyrillic and Latin input behave the same

package dialogue

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	minNameLength  = 2
	minTopicLength = 5
	maxTopicLength = 200
)

func normalize(text string) string {
	return strings.TrimSpace(text)
}

// validName accepts university, direction and group names.
func validName(text string) bool {
	return utf8.RuneCountInString(text) >= minNameLength
}

// topicLength reports -1 when the topic is too short, 1 when too long, 0 when fine.
func topicLength(text string) int {
	n := utf8.RuneCountInString(text)
	switch {
	case n < minTopicLength:
		return -1
	case n > maxTopicLength:
		return 1
	default:
		return 0
	}
}

// parsePages accepts a plain decimal integer within [min, max].
func parsePages(text string, min, max int) (int, bool) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	if n < min || n > max {
		return 0, false
	}
	return n, true
}
