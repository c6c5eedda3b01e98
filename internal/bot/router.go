// ABOUTME: Inbound router shared by all frontends
// ABOUTME: Drops redeliveries, refreshes the user profile, answers commands and feeds the dialogue

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/deckbot/internal/messages"
	"github.com/2389/deckbot/internal/metrics"
	"github.com/2389/deckbot/internal/notify"
	"github.com/2389/deckbot/internal/store"
)

// Dialogue is the conversation state machine the router feeds.
type Dialogue interface {
	Start(ctx context.Context, userID, conversationID string) error
	Cancel(ctx context.Context, userID, conversationID string) error
	HandleText(ctx context.Context, userID, conversationID, text string) error
	HandleChoice(ctx context.Context, userID, conversationID, token string) error
}

// UserStore keeps user profiles.
type UserStore interface {
	UpsertUser(ctx context.Context, user *store.User) error
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// Deduper remembers event IDs. Claim returns false for an ID seen before.
type Deduper interface {
	Claim(id string) bool
}

// Deps are the collaborators of a Router.
type Deps struct {
	Dialogue Dialogue
	Users    UserStore
	Dedupe   Deduper
	Notifier notify.Notifier
	Catalog  *messages.Catalog
	Metrics  metrics.Recorder
}

// Router turns inbound events into dialogue calls and command replies.
type Router struct {
	deps   Deps
	logger *slog.Logger
}

// NewRouter creates a Router. Dedupe may be nil.
func NewRouter(deps Deps, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = messages.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Router{deps: deps, logger: logger.With("component", "bot")}
}

// Handle processes one event. Redelivered events and events from blocked
// users are dropped without a reply.
func (r *Router) Handle(ctx context.Context, evt Event) error {
	if evt.Sender.ID == "" || evt.ConversationID == "" {
		return fmt.Errorf("event %q has no sender or conversation", evt.ID)
	}
	if evt.ID != "" && r.deps.Dedupe != nil && !r.deps.Dedupe.Claim(evt.ID) {
		r.logger.Debug("dropping redelivered event", "event_id", evt.ID)
		r.deps.Metrics.InboundEvent(evt.Frontend, "duplicate")
		return nil
	}

	user, err := r.touchUser(ctx, evt.Sender)
	if err != nil {
		return err
	}
	if user.IsBlocked {
		r.logger.Info("ignoring blocked user", "user_id", user.ID)
		r.deps.Metrics.InboundEvent(evt.Frontend, "blocked")
		return nil
	}

	userID, convID := evt.Sender.ID, evt.ConversationID

	if evt.Kind == KindChoice {
		r.deps.Metrics.InboundEvent(evt.Frontend, "choice")
		return r.deps.Dialogue.HandleChoice(ctx, userID, convID, evt.ChoiceToken)
	}

	if name, ok := evt.Command(); ok {
		r.deps.Metrics.InboundEvent(evt.Frontend, "command")
		return r.command(ctx, name, user, evt)
	}

	r.deps.Metrics.InboundEvent(evt.Frontend, "text")
	return r.deps.Dialogue.HandleText(ctx, userID, convID, evt.Text)
}

func (r *Router) command(ctx context.Context, name string, user *store.User, evt Event) error {
	userID, convID := evt.Sender.ID, evt.ConversationID
	r.logger.Info("command received", "command", name, "user_id", userID)

	switch name {
	case "start":
		first := user.FirstName
		if first == "" {
			first = r.deps.Catalog.Get(messages.WelcomeDefaultName)
		}
		return r.say(ctx, convID, r.deps.Catalog.Format(messages.Welcome, messages.Args{"name": first}))
	case "create":
		return r.deps.Dialogue.Start(ctx, userID, convID)
	case "cancel":
		return r.deps.Dialogue.Cancel(ctx, userID, convID)
	case "help":
		return r.say(ctx, convID, r.deps.Catalog.Get(messages.Help))
	default:
		return r.say(ctx, convID, r.deps.Catalog.Get(messages.UnknownCommand))
	}
}

// touchUser refreshes the profile and returns the stored record, which
// carries the blocked flag.
func (r *Router) touchUser(ctx context.Context, s Sender) (*store.User, error) {
	err := r.deps.Users.UpsertUser(ctx, &store.User{
		ID:           s.ID,
		Username:     s.Username,
		FirstName:    s.FirstName,
		LastName:     s.LastName,
		LanguageCode: s.LanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("saving user %s: %w", s.ID, err)
	}
	user, err := r.deps.Users.GetUser(ctx, s.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.User{ID: s.ID, FirstName: s.FirstName}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", s.ID, err)
	}
	return user, nil
}

func (r *Router) say(ctx context.Context, conversationID, text string) error {
	if err := r.deps.Notifier.SendText(ctx, conversationID, text); err != nil {
		return fmt.Errorf("replying to %s: %w", conversationID, err)
	}
	return nil
}
