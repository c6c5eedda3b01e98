// ABOUTME: Tests for the dialogue engine state machine
// ABOUTME: Walks complete dialogues, validation boundaries, expiry and stale button presses

package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/deckbot/internal/conversation"
	"github.com/2389/deckbot/internal/messages"
	"github.com/2389/deckbot/internal/notify"
	"github.com/2389/deckbot/internal/store"
)

const (
	testUser = "telegram:100"
	testChat = "telegram:100"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (f *fakeDispatcher) Enqueue(ctx context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, requestID)
	return nil
}

type testEnv struct {
	engine     *Engine
	store      *store.MockStore
	conv       *conversation.Service
	notifier   *notify.Recorder
	dispatcher *fakeDispatcher
	now        time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      store.NewMockStore(),
		notifier:   notify.NewRecorder(),
		dispatcher: &fakeDispatcher{},
		now:        time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	env.conv = conversation.New(env.store, 15*time.Minute, nil)
	env.conv.SetClock(func() time.Time { return env.now })

	require.NoError(t, env.store.UpsertUser(context.Background(), &store.User{ID: testUser, FirstName: "Aziza"}))

	env.engine = New(Deps{
		Conversations: env.conv,
		Requests:      env.store,
		Users:         env.store,
		Dispatcher:    env.dispatcher,
		Notifier:      env.notifier,
	}, 3, 50, nil)
	return env
}

func (env *testEnv) state(t *testing.T) *conversation.Conversation {
	t.Helper()
	conv, err := env.conv.Get(context.Background(), testUser)
	require.NoError(t, err)
	return conv
}

func (env *testEnv) text(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, env.engine.HandleText(context.Background(), testUser, testChat, text))
}

func (env *testEnv) choose(t *testing.T, token string) {
	t.Helper()
	require.NoError(t, env.engine.HandleChoice(context.Background(), testUser, testChat, token))
}

func (env *testEnv) start(t *testing.T) {
	t.Helper()
	require.NoError(t, env.engine.Start(context.Background(), testUser, testChat))
}

// walkTo drives a fresh dialogue up to (not including) the given state.
func (env *testEnv) walkTo(t *testing.T, target conversation.State) {
	t.Helper()
	env.start(t)
	steps := []struct {
		state conversation.State
		do    func()
	}{
		{conversation.StateAwaitingUniversity, func() { env.text(t, "TATU") }},
		{conversation.StateAwaitingDirection, func() { env.text(t, "Dasturlash") }},
		{conversation.StateAwaitingGroup, func() { env.text(t, "AI-21") }},
		{conversation.StateAwaitingPlacement, func() { env.choose(t, "placement_first") }},
		{conversation.StateAwaitingTopic, func() { env.text(t, "Python asoslari") }},
		{conversation.StateAwaitingPages, func() { env.text(t, "5") }},
	}
	for _, step := range steps {
		if step.state == target {
			return
		}
		step.do()
	}
}

func TestCompleteDialogueQueuesRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.walkTo(t, conversation.StateAwaitingFormat)
	require.Equal(t, conversation.StateAwaitingFormat, env.state(t).State)
	assert.Equal(t, "choice", env.notifier.Last().Kind)

	env.choose(t, "format_pptx")

	// conversation reset
	conv := env.state(t)
	assert.Equal(t, conversation.StateIdle, conv.State)
	assert.Empty(t, conv.Data)
	assert.Nil(t, conv.ExpiresAt)

	// request recorded and queued
	require.Len(t, env.dispatcher.enqueued, 1)
	req, err := env.store.GetRequest(ctx, env.dispatcher.enqueued[0])
	require.NoError(t, err)
	assert.Equal(t, store.RequestPending, req.Status)
	assert.Equal(t, "TATU", req.University)
	assert.Equal(t, "Dasturlash", req.Direction)
	assert.Equal(t, "AI-21", req.GroupName)
	assert.Equal(t, "first", req.InfoPlacement)
	assert.Equal(t, "Python asoslari", req.Topic)
	assert.Equal(t, 5, req.PagesCount)
	assert.Equal(t, "pptx", req.Format)
	assert.Equal(t, "Aziza", req.StudentName)
	assert.Equal(t, testChat, req.ConversationID)

	summary := env.notifier.Last()
	assert.Equal(t, "text", summary.Kind)
	assert.Contains(t, summary.Text, "Ma'lumotlar qabul qilindi")
	assert.Contains(t, summary.Text, "Format: PowerPoint")
	assert.Contains(t, summary.Text, "Sahifalar: 5")
}

func TestTextWithoutSessionPromptsStart(t *testing.T) {
	env := newTestEnv(t)

	env.text(t, "salom")

	sent := env.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, messages.Default().Get(messages.NoSession), sent[0].Text)
	assert.Nil(t, env.state(t), "no conversation should be created")
}

func TestShortTopicRejected(t *testing.T) {
	env := newTestEnv(t)

	env.walkTo(t, conversation.StateAwaitingTopic)
	env.text(t, "abc")

	conv := env.state(t)
	assert.Equal(t, conversation.StateAwaitingTopic, conv.State)
	_, stored := conv.Data[KeyTopic]
	assert.False(t, stored)
	assert.Equal(t, "❌ Mavzu juda qisqa.\n\nKamida 5 ta belgi kiriting:", env.notifier.Last().Text)
}

func TestTopicTooLong(t *testing.T) {
	env := newTestEnv(t)

	env.walkTo(t, conversation.StateAwaitingTopic)
	env.text(t, strings.Repeat("a", 201))
	assert.Equal(t, conversation.StateAwaitingTopic, env.state(t).State)
	assert.Contains(t, env.notifier.Last().Text, "maksimal 200 belgi")

	env.text(t, strings.Repeat("ş", 200))
	assert.Equal(t, conversation.StateAwaitingPages, env.state(t).State, "200 characters is the limit, not 200 bytes")
}

func TestPagesBoundaries(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"2", false},
		{"3", true},
		{"50", true},
		{"51", false},
		{"abc", false},
		{"5.5", false},
		{" 7 ", true},
		{"-3", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			env := newTestEnv(t)
			env.walkTo(t, conversation.StateAwaitingPages)
			env.text(t, tt.input)

			conv := env.state(t)
			if tt.ok {
				assert.Equal(t, conversation.StateAwaitingFormat, conv.State)
				assert.Equal(t, strings.TrimSpace(tt.input), conv.Data[KeyPages])
			} else {
				assert.Equal(t, conversation.StateAwaitingPages, conv.State)
				assert.NotContains(t, conv.Data, KeyPages)
				assert.Equal(t, "❌ Noto'g'ri qiymat!\n\n3 dan 50 gacha raqam kiriting:", env.notifier.Last().Text)
			}
		})
	}
}

func TestNameFieldsRequireTwoCharacters(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)

	env.text(t, "T")
	assert.Equal(t, conversation.StateAwaitingUniversity, env.state(t).State)
	assert.Contains(t, env.notifier.Last().Text, "Universitet nomi juda qisqa")

	env.text(t, "   ")
	assert.Equal(t, conversation.StateAwaitingUniversity, env.state(t).State)

	env.text(t, "TA")
	assert.Equal(t, conversation.StateAwaitingDirection, env.state(t).State)
	assert.Equal(t, "TA", env.state(t).Data[KeyUniversity])

	env.text(t, "x")
	assert.Contains(t, env.notifier.Last().Text, "Yo'nalish nomi juda qisqa")
	env.text(t, "IT")
	env.text(t, "A")
	assert.Contains(t, env.notifier.Last().Text, "Guruh nomi juda qisqa")
	assert.Equal(t, conversation.StateAwaitingGroup, env.state(t).State)
}

func TestStartIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	env.walkTo(t, conversation.StateAwaitingTopic)
	env.start(t)
	first := env.state(t)
	env.start(t)
	second := env.state(t)

	for _, conv := range []*conversation.Conversation{first, second} {
		assert.Equal(t, conversation.StateAwaitingUniversity, conv.State)
		assert.Empty(t, conv.Data)
		assert.NotNil(t, conv.ExpiresAt)
	}
	assert.Equal(t, messages.Default().Get(messages.AskUniversity), env.notifier.Last().Text)
}

func TestExpiredSessionResets(t *testing.T) {
	env := newTestEnv(t)

	env.walkTo(t, conversation.StateAwaitingGroup)
	env.now = env.now.Add(16 * time.Minute)
	env.text(t, "AI-21")

	conv := env.state(t)
	assert.Equal(t, conversation.StateIdle, conv.State)
	assert.Empty(t, conv.Data)
	assert.Equal(t, "⏰ Vaqt tugadi (15 daqiqa).\n\nQaytadan boshlang: /create", env.notifier.Last().Text)

	// the next message sees no session
	env.text(t, "AI-21")
	assert.Equal(t, messages.Default().Get(messages.NoSession), env.notifier.Last().Text)
}

func TestSlidingWindow(t *testing.T) {
	env := newTestEnv(t)

	env.start(t)
	env.now = env.now.Add(10 * time.Minute)
	env.text(t, "TATU")
	env.now = env.now.Add(10 * time.Minute)
	env.text(t, "Dasturlash")

	assert.Equal(t, conversation.StateAwaitingGroup, env.state(t).State, "each message extends the window")
}

func TestStaleChoicesIgnored(t *testing.T) {
	env := newTestEnv(t)

	// no session at all
	env.choose(t, "format_pdf")
	assert.Empty(t, env.notifier.Sent())

	env.walkTo(t, conversation.StateAwaitingTopic)
	before := len(env.notifier.Sent())

	// placement pressed again after it was answered
	env.choose(t, "placement_last")
	// format pressed before it was asked
	env.choose(t, "format_pdf")
	// unknown token
	env.choose(t, "something_else")

	conv := env.state(t)
	assert.Equal(t, conversation.StateAwaitingTopic, conv.State)
	assert.Equal(t, "first", conv.Data[KeyInfoPlacement])
	assert.Len(t, env.notifier.Sent(), before)
	assert.Empty(t, env.dispatcher.enqueued)
}

func TestInvalidChoiceValueIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.walkTo(t, conversation.StateAwaitingPlacement)
	env.choose(t, "placement_middle")
	assert.Equal(t, conversation.StateAwaitingPlacement, env.state(t).State)

	env.choose(t, "placement_last")
	conv := env.state(t)
	assert.Equal(t, conversation.StateAwaitingTopic, conv.State)
	assert.Equal(t, "last", conv.Data[KeyInfoPlacement])
	assert.True(t, strings.HasPrefix(env.notifier.Last().Text, "✅ Tanlandi: Oxirgi sahifa"))
}

func TestTextDuringChoiceStepRepromptsButtons(t *testing.T) {
	env := newTestEnv(t)

	env.walkTo(t, conversation.StateAwaitingPlacement)
	env.text(t, "birinchi")

	last := env.notifier.Last()
	assert.Equal(t, "choice", last.Kind)
	require.Len(t, last.Rows, 1)
	assert.Equal(t, "placement_first", last.Rows[0][0].Token)
	assert.Equal(t, conversation.StateAwaitingPlacement, env.state(t).State)
}

func TestFormatRowsOnePerRow(t *testing.T) {
	rows := FormatRows(messages.Default())
	require.Len(t, rows, 3)
	tokens := []string{rows[0][0].Token, rows[1][0].Token, rows[2][0].Token}
	assert.Equal(t, []string{"format_pptx", "format_docx", "format_pdf"}, tokens)
	assert.Equal(t, "📊 PowerPoint (PPTX)", rows[0][0].Label)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.Cancel(ctx, testUser, testChat))
	assert.Contains(t, env.notifier.Last().Text, "Hech qanday faol jarayon yo'q")

	env.walkTo(t, conversation.StateAwaitingTopic)
	require.NoError(t, env.engine.Cancel(ctx, testUser, testChat))
	assert.Contains(t, env.notifier.Last().Text, "Jarayon bekor qilindi")

	conv := env.state(t)
	assert.Equal(t, conversation.StateIdle, conv.State)
	assert.Empty(t, conv.Data)
}

func TestEnqueueFailureMarksRequestFailed(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.err = errors.New("queue closed")

	env.walkTo(t, conversation.StateAwaitingFormat)
	err := env.engine.HandleChoice(context.Background(), testUser, testChat, "format_docx")
	require.Error(t, err)

	reqs, listErr := env.store.ListRequests(context.Background(), testUser, 10)
	require.NoError(t, listErr)
	require.Len(t, reqs, 1)
	assert.Equal(t, store.RequestFailed, reqs[0].Status)
	assert.Contains(t, env.notifier.Last().Text, "Xatolik yuz berdi")
	assert.Equal(t, conversation.StateIdle, env.state(t).State)
}

// cancelAfterCreate drops the inbound context once the request row exists,
// the way a closed webhook connection would.
type cancelAfterCreate struct {
	*store.MockStore
	cancel context.CancelFunc
}

func (c *cancelAfterCreate) CreateRequest(ctx context.Context, req *store.GenerationRequest) error {
	err := c.MockStore.CreateRequest(ctx, req)
	c.cancel()
	return err
}

// ctxDispatcher refuses work on a cancelled context like the job queue does.
type ctxDispatcher struct {
	fakeDispatcher
}

func (d *ctxDispatcher) Enqueue(ctx context.Context, requestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.fakeDispatcher.Enqueue(ctx, requestID)
}

func TestFinishSurvivesCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	env.walkTo(t, conversation.StateAwaitingFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher := &ctxDispatcher{}
	env.engine.requests = &cancelAfterCreate{MockStore: env.store, cancel: cancel}
	env.engine.dispatcher = dispatcher

	require.NoError(t, env.engine.HandleChoice(ctx, testUser, testChat, "format_docx"))
	require.Error(t, ctx.Err())

	assert.Equal(t, conversation.StateIdle, env.state(t).State)
	require.Len(t, dispatcher.enqueued, 1, "request must reach the queue")
	req, err := env.store.GetRequest(context.Background(), dispatcher.enqueued[0])
	require.NoError(t, err)
	assert.Equal(t, store.RequestPending, req.Status)
	assert.Equal(t, "text", env.notifier.Last().Kind)
	assert.Contains(t, env.notifier.Last().Text, "Ma'lumotlar qabul qilindi")
}

func TestRedeliveredFormatChoiceCreatesOneRequest(t *testing.T) {
	env := newTestEnv(t)

	env.walkTo(t, conversation.StateAwaitingFormat)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = env.engine.HandleChoice(context.Background(), testUser, testChat, "format_pdf")
		}()
	}
	wg.Wait()

	assert.Len(t, env.dispatcher.enqueued, 1)
	assert.Equal(t, 0, env.engine.locks.size())
}

func TestUsersAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		user := fmt.Sprintf("telegram:%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.engine.Start(ctx, user, user))
			assert.NoError(t, env.engine.HandleText(ctx, user, user, "TATU"))
		}()
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		conv, err := env.conv.Get(ctx, fmt.Sprintf("telegram:%d", i))
		require.NoError(t, err)
		assert.Equal(t, conversation.StateAwaitingDirection, conv.State)
		assert.Equal(t, "TATU", conv.Data[KeyUniversity])
	}
}
