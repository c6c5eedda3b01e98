// ABOUTME: Frontend-neutral inbound event produced by every transport
// ABOUTME: Carries the sender profile, the conversation and either text or a button token

package bot

import "strings"

// Kind classifies an inbound event.
type Kind string

const (
	KindText   Kind = "text"
	KindChoice Kind = "choice"
)

// Sender is the profile a frontend reports for the author of an event.
type Sender struct {
	ID           string // frontend-qualified, e.g. "telegram:42"
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// Event is one inbound message or button press.
type Event struct {
	// ID identifies the delivery for redelivery dedupe, e.g. "telegram:update:991".
	// Events without an ID are never deduplicated.
	ID             string
	Frontend       string
	ConversationID string
	Sender         Sender
	Kind           Kind
	Text           string
	ChoiceToken    string
}

// Command splits "/create@deckbot arg" into "create". ok is false for plain text.
func (e Event) Command() (name string, ok bool) {
	if e.Kind != KindText {
		return "", false
	}
	text := strings.TrimSpace(e.Text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word, _, _ := strings.Cut(text[1:], " ")
	word, _, _ = strings.Cut(word, "@")
	if word == "" {
		return "", false
	}
	return strings.ToLower(word), true
}
