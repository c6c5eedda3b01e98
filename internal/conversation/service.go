// ABOUTME: Service is the single access path to a user's persisted dialogue state
// ABOUTME: Implements the sliding-window expiry contract on top of the store's atomic mutations

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/deckbot/internal/store"
)

// State is one step of the dialogue.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingUniversity State = "awaiting_university"
	StateAwaitingDirection  State = "awaiting_direction"
	StateAwaitingGroup      State = "awaiting_group"
	StateAwaitingPlacement  State = "awaiting_placement"
	StateAwaitingTopic      State = "awaiting_topic"
	StateAwaitingPages      State = "awaiting_pages"
	StateAwaitingFormat     State = "awaiting_format"
)

// DefaultTTL is the sliding session window used when none is configured.
const DefaultTTL = 15 * time.Minute

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	GetConversation(ctx context.Context, userID string) (*store.ConversationState, error)
	UpsertConversation(ctx context.Context, state *store.ConversationState) error
	SetConversationField(ctx context.Context, userID, key, value string) error
	SetConversationState(ctx context.Context, userID, state string) error
	SetConversationExpiry(ctx context.Context, userID string, expiresAt time.Time) error
	ClearConversation(ctx context.Context, userID, idleState string) error
	DeleteExpiredConversations(ctx context.Context, now time.Time) (int64, error)
}

// Conversation is a read snapshot of one user's dialogue.
type Conversation struct {
	UserID    string
	State     State
	Data      map[string]string
	ExpiresAt *time.Time
}

// Active reports whether the conversation is mid-dialogue.
func (c *Conversation) Active() bool {
	return c != nil && c.State != StateIdle && c.State != ""
}

// Expired reports whether the session window closed before now.
func (c *Conversation) Expired(now time.Time) bool {
	return c != nil && c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Service wraps the store with the conversation contract.
// Each method maps to exactly one store statement.
type Service struct {
	store  ConversationStore
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// New creates a conversation Service. A zero ttl uses DefaultTTL.
func New(s ConversationStore, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:  s,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "conversation"),
	}
}

// TTL returns the sliding window length.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// SetClock replaces the clock. Used by tests to step past the window.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Get loads the conversation for a user. Returns nil, nil when none exists.
func (s *Service) Get(ctx context.Context, userID string) (*Conversation, error) {
	state, err := s.store.GetConversation(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}
	return &Conversation{
		UserID:    state.UserID,
		State:     State(state.State),
		Data:      data,
		ExpiresAt: state.ExpiresAt,
	}, nil
}

// Upsert replaces the whole conversation and opens a fresh session window.
func (s *Service) Upsert(ctx context.Context, userID string, state State, data map[string]string) error {
	expiresAt := s.now().Add(s.ttl)
	if data == nil {
		data = map[string]string{}
	}
	err := s.store.UpsertConversation(ctx, &store.ConversationState{
		UserID:    userID,
		State:     string(state),
		Data:      data,
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	s.logger.Debug("conversation started", "user_id", userID, "state", state)
	return nil
}

// SetField stores one collected value.
func (s *Service) SetField(ctx context.Context, userID, key, value string) error {
	if err := s.store.SetConversationField(ctx, userID, key, value); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Advance moves the conversation to the next state.
func (s *Service) Advance(ctx context.Context, userID string, next State) error {
	if err := s.store.SetConversationState(ctx, userID, string(next)); err != nil {
		return fmt.Errorf("advancing to %s: %w", next, err)
	}
	s.logger.Debug("conversation advanced", "user_id", userID, "state", next)
	return nil
}

// TouchExpiry slides the session window to now + ttl.
func (s *Service) TouchExpiry(ctx context.Context, userID string) error {
	if err := s.store.SetConversationExpiry(ctx, userID, s.now().Add(s.ttl)); err != nil {
		return fmt.Errorf("extending session: %w", err)
	}
	return nil
}

// Clear resets the conversation to idle with no data and no expiry.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.ClearConversation(ctx, userID, string(StateIdle)); err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	s.logger.Debug("conversation cleared", "user_id", userID)
	return nil
}

// Sweep deletes conversations whose window has closed and returns how many went.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredConversations(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweeping conversations: %w", err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
// Lazy expiry in the dialogue stays authoritative; this only reclaims rows.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("conversation sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn("sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("swept expired conversations", "count", n)
			}
		}
	}
}
