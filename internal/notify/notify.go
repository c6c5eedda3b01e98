// ABOUTME: Outbound notification contract shared by the dialogue and the pipeline
// ABOUTME: A Router picks the frontend Notifier from the conversation ID prefix

package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownFrontend is returned when no Notifier is registered for a conversation ID.
var ErrUnknownFrontend = errors.New("no notifier for conversation")

// Choice is one button of a choice prompt. Token is what comes back when it is picked.
type Choice struct {
	Label string
	Token string
}

// Activity is a transient indicator shown while the bot works.
type Activity string

const (
	ActivityTyping         Activity = "typing"
	ActivityUploadDocument Activity = "upload_document"
)

// Notifier delivers messages to one frontend.
// Conversation IDs are frontend-qualified, e.g. "telegram:12345" or "matrix:!room:example.org".
type Notifier interface {
	SendText(ctx context.Context, conversationID, text string) error
	SendChoicePrompt(ctx context.Context, conversationID, text string, rows [][]Choice) error
	SendFile(ctx context.Context, conversationID, filePath, caption string) error
}

// ActivityNotifier is implemented by frontends that can show a typing or upload indicator.
type ActivityNotifier interface {
	SendActivity(ctx context.Context, conversationID string, activity Activity) error
}

// ConversationID joins a frontend name and its native chat identifier.
func ConversationID(frontend, native string) string {
	return frontend + ":" + native
}

// SplitConversationID returns the frontend name and native identifier.
func SplitConversationID(conversationID string) (frontend, native string, ok bool) {
	frontend, native, ok = strings.Cut(conversationID, ":")
	if !ok || frontend == "" || native == "" {
		return "", "", false
	}
	return frontend, native, true
}

// Router implements Notifier by dispatching on the frontend prefix.
type Router struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{notifiers: make(map[string]Notifier)}
}

// Register binds a frontend name to its Notifier, replacing any previous one.
func (r *Router) Register(frontend string, n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers[frontend] = n
}

func (r *Router) lookup(conversationID string) (Notifier, error) {
	frontend, _, ok := SplitConversationID(conversationID)
	if !ok {
		return nil, fmt.Errorf("%w: malformed id %q", ErrUnknownFrontend, conversationID)
	}
	r.mu.RLock()
	n, found := r.notifiers[frontend]
	r.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFrontend, frontend)
	}
	return n, nil
}

// SendText delivers text through the matching frontend.
func (r *Router) SendText(ctx context.Context, conversationID, text string) error {
	n, err := r.lookup(conversationID)
	if err != nil {
		return err
	}
	return n.SendText(ctx, conversationID, text)
}

// SendChoicePrompt delivers a prompt with buttons through the matching frontend.
func (r *Router) SendChoicePrompt(ctx context.Context, conversationID, text string, rows [][]Choice) error {
	n, err := r.lookup(conversationID)
	if err != nil {
		return err
	}
	return n.SendChoicePrompt(ctx, conversationID, text, rows)
}

// SendFile delivers a file through the matching frontend.
func (r *Router) SendFile(ctx context.Context, conversationID, filePath, caption string) error {
	n, err := r.lookup(conversationID)
	if err != nil {
		return err
	}
	return n.SendFile(ctx, conversationID, filePath, caption)
}

// SendActivity shows an indicator when the frontend supports one and is a no-op otherwise.
func (r *Router) SendActivity(ctx context.Context, conversationID string, activity Activity) error {
	n, err := r.lookup(conversationID)
	if err != nil {
		return err
	}
	if an, ok := n.(ActivityNotifier); ok {
		return an.SendActivity(ctx, conversationID, activity)
	}
	return nil
}

var (
	_ Notifier         = (*Router)(nil)
	_ ActivityNotifier = (*Router)(nil)
)
