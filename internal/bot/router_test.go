// ABOUTME: Tests for the inbound router
// ABOUTME: Covers commands, dedupe, blocked users and handoff to the dialogue

package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/deckbot/internal/dedupe"
	"github.com/2389/deckbot/internal/messages"
	"github.com/2389/deckbot/internal/notify"
	"github.com/2389/deckbot/internal/store"
)

type fakeDialogue struct {
	calls []string
}

func (f *fakeDialogue) Start(ctx context.Context, userID, conversationID string) error {
	f.calls = append(f.calls, "start:"+userID)
	return nil
}

func (f *fakeDialogue) Cancel(ctx context.Context, userID, conversationID string) error {
	f.calls = append(f.calls, "cancel:"+userID)
	return nil
}

func (f *fakeDialogue) HandleText(ctx context.Context, userID, conversationID, text string) error {
	f.calls = append(f.calls, "text:"+text)
	return nil
}

func (f *fakeDialogue) HandleChoice(ctx context.Context, userID, conversationID, token string) error {
	f.calls = append(f.calls, "choice:"+token)
	return nil
}

type routerEnv struct {
	router   *Router
	dialogue *fakeDialogue
	store    *store.MockStore
	notifier *notify.Recorder
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()
	cache := dedupe.New(time.Minute, 100)
	t.Cleanup(cache.Close)

	env := &routerEnv{
		dialogue: &fakeDialogue{},
		store:    store.NewMockStore(),
		notifier: notify.NewRecorder(),
	}
	env.router = NewRouter(Deps{
		Dialogue: env.dialogue,
		Users:    env.store,
		Dedupe:   cache,
		Notifier: env.notifier,
		Catalog:  messages.Default(),
	}, nil)
	return env
}

func textEvent(id, text string) Event {
	return Event{
		ID:             id,
		Frontend:       "telegram",
		ConversationID: "telegram:42",
		Sender:         Sender{ID: "telegram:42", Username: "aziza", FirstName: "Aziza"},
		Kind:           KindText,
		Text:           text,
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		text   string
		name   string
		wantOK bool
	}{
		{"/start", "start", true},
		{"/create@deckbot", "create", true},
		{"  /HELP extra words", "help", true},
		{"/", "", false},
		{"hello", "", false},
		{"/@bot", "", false},
	}
	for _, tt := range tests {
		name, ok := Event{Kind: KindText, Text: tt.text}.Command()
		if name != tt.name || ok != tt.wantOK {
			t.Errorf("Command(%q) = (%q, %v), want (%q, %v)", tt.text, name, ok, tt.name, tt.wantOK)
		}
	}

	_, ok := Event{Kind: KindChoice, Text: "/start"}.Command()
	assert.False(t, ok)
}

func TestHandle_StartGreetsByName(t *testing.T) {
	env := newRouterEnv(t)
	require.NoError(t, env.router.Handle(context.Background(), textEvent("e1", "/start")))

	last := env.notifier.Last()
	assert.Contains(t, last.Text, "Aziza")
	assert.Empty(t, env.dialogue.calls)

	user, err := env.store.GetUser(context.Background(), "telegram:42")
	require.NoError(t, err)
	assert.Equal(t, "aziza", user.Username)
}

func TestHandle_StartWithoutFirstName(t *testing.T) {
	env := newRouterEnv(t)
	evt := textEvent("e1", "/start")
	evt.Sender.FirstName = ""
	require.NoError(t, env.router.Handle(context.Background(), evt))

	assert.Contains(t, env.notifier.Last().Text, messages.Default().Get(messages.WelcomeDefaultName))
}

func TestHandle_Commands(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	require.NoError(t, env.router.Handle(ctx, textEvent("e1", "/create")))
	require.NoError(t, env.router.Handle(ctx, textEvent("e2", "/cancel@deckbot")))
	assert.Equal(t, []string{"start:telegram:42", "cancel:telegram:42"}, env.dialogue.calls)

	require.NoError(t, env.router.Handle(ctx, textEvent("e3", "/help")))
	assert.Equal(t, messages.Default().Get(messages.Help), env.notifier.Last().Text)

	require.NoError(t, env.router.Handle(ctx, textEvent("e4", "/frobnicate")))
	assert.Equal(t, messages.Default().Get(messages.UnknownCommand), env.notifier.Last().Text)
}

func TestHandle_TextAndChoiceGoToDialogue(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	require.NoError(t, env.router.Handle(ctx, textEvent("e1", "TATU")))
	choice := textEvent("e2", "")
	choice.Kind = KindChoice
	choice.ChoiceToken = "placement_first"
	require.NoError(t, env.router.Handle(ctx, choice))

	assert.Equal(t, []string{"text:TATU", "choice:placement_first"}, env.dialogue.calls)
}

func TestHandle_DropsRedelivery(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	require.NoError(t, env.router.Handle(ctx, textEvent("e1", "TATU")))
	require.NoError(t, env.router.Handle(ctx, textEvent("e1", "TATU")))
	assert.Len(t, env.dialogue.calls, 1)

	// Events without an ID are always handled.
	require.NoError(t, env.router.Handle(ctx, textEvent("", "again")))
	require.NoError(t, env.router.Handle(ctx, textEvent("", "again")))
	assert.Len(t, env.dialogue.calls, 3)
}

func TestHandle_BlockedUserIgnored(t *testing.T) {
	env := newRouterEnv(t)
	ctx := context.Background()

	require.NoError(t, env.router.Handle(ctx, textEvent("e1", "/start")))
	require.NoError(t, env.store.SetUserBlocked(ctx, "telegram:42", true))
	env.notifier.Reset()

	require.NoError(t, env.router.Handle(ctx, textEvent("e2", "/create")))
	require.NoError(t, env.router.Handle(ctx, textEvent("e3", "TATU")))
	assert.Empty(t, env.dialogue.calls)
	assert.Empty(t, env.notifier.Sent())
}

func TestHandle_RejectsAnonymousEvent(t *testing.T) {
	env := newRouterEnv(t)
	err := env.router.Handle(context.Background(), Event{ID: "x", Kind: KindText, Text: "hi"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no sender"))
}
