// ABOUTME: Pulls a JSON payload out of free-form model output and decodes it into slides
// ABOUTME: Tries ```json fences, then bare fences, then deck-shaped bracket spans, then the raw text

package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	anyFence  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
)

// ExtractJSON returns the first well-formed JSON document found in text.
// Candidates are tried in a fixed order: a ```json fence, any ``` fence, a
// balanced {...} or [...] span, and finally the whole trimmed text. Among
// spans, objects and arrays of objects win over earlier scalar arrays, so a
// citation like "[1]" in the preamble does not shadow the deck.
// ok is false when none of them is valid JSON; the trimmed text is returned then.
func ExtractJSON(text string) (payload string, ok bool) {
	if m := jsonFence.FindStringSubmatch(text); m != nil && json.Valid([]byte(m[1])) {
		return m[1], true
	}
	if m := anyFence.FindStringSubmatch(text); m != nil && json.Valid([]byte(m[1])) {
		return m[1], true
	}
	if span, found := balancedSpan(text, deckShaped); found {
		return span, true
	}
	if span, found := balancedSpan(text, nil); found {
		return span, true
	}
	trimmed := strings.TrimSpace(text)
	return trimmed, json.Valid([]byte(trimmed))
}

// deckShaped accepts any object and arrays whose elements are all objects.
func deckShaped(candidate string) bool {
	if candidate[0] == '{' {
		return true
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &items); err != nil || len(items) == 0 {
		return false
	}
	for _, item := range items {
		if trimmed := strings.TrimSpace(string(item)); !strings.HasPrefix(trimmed, "{") {
			return false
		}
	}
	return true
}

// balancedSpan finds the first {...} or [...] span whose brackets balance
// (ignoring brackets inside JSON strings), which parses as JSON and which
// accept, when non-nil, admits.
func balancedSpan(text string, accept func(string) bool) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		end := matchBracket(text, start)
		if end < 0 {
			continue
		}
		candidate := text[start : end+1]
		if !json.Valid([]byte(candidate)) {
			continue
		}
		if accept == nil || accept(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// matchBracket returns the index of the bracket closing the one at start, or -1.
func matchBracket(text string, start int) int {
	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// ErrNoSlides is returned when a response holds JSON but no usable slides.
var ErrNoSlides = errors.New("response contains no slides")

// stringList accepts either ["a", "b"] or "a".
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one != "" {
		*s = []string{one}
	}
	return nil
}

type wireSlide struct {
	SlideNumber  int        `json:"slide_number"`
	Title        string     `json:"title"`
	Content      stringList `json:"content"`
	SpeakerNotes string     `json:"speaker_notes"`
	ImageQuery   string     `json:"image_query"`
}

type wireDeck struct {
	Title  string      `json:"title"`
	Slides []wireSlide `json:"slides"`
}

// ParseSlides extracts and decodes a model response. Both {"title", "slides": [...]}
// and a bare [...] array of slides are accepted.
func ParseSlides(text string) (*SlideContent, error) {
	payload, ok := ExtractJSON(text)
	if !ok {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var deck wireDeck
	if strings.HasPrefix(strings.TrimSpace(payload), "[") {
		if err := json.Unmarshal([]byte(payload), &deck.Slides); err != nil {
			return nil, fmt.Errorf("decoding slide array: %w", err)
		}
	} else if err := json.Unmarshal([]byte(payload), &deck); err != nil {
		return nil, fmt.Errorf("decoding slide object: %w", err)
	}

	result := &SlideContent{Title: strings.TrimSpace(deck.Title)}
	for _, ws := range deck.Slides {
		title := strings.TrimSpace(ws.Title)
		var bullets []string
		for _, b := range ws.Content {
			if b = strings.TrimSpace(b); b != "" {
				bullets = append(bullets, b)
			}
		}
		if title == "" && len(bullets) == 0 {
			continue
		}
		result.Slides = append(result.Slides, Slide{
			Number:       ws.SlideNumber,
			Title:        title,
			Bullets:      bullets,
			SpeakerNotes: strings.TrimSpace(ws.SpeakerNotes),
			ImageQuery:   strings.TrimSpace(ws.ImageQuery),
		})
	}
	if len(result.Slides) == 0 {
		return nil, ErrNoSlides
	}
	return result, nil
}
