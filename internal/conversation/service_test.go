// ABOUTME: Tests for the conversation Service
// ABOUTME: Verifies the sliding window, clear semantics and the sweeper against real SQLite

package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/deckbot/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc := New(createTestStore(t), 15*time.Minute, nil)
	svc.SetClock(clock.Now)
	return svc, clock
}

func TestService_GetMissing(t *testing.T) {
	svc, _ := newTestService(t)

	conv, err := svc.Get(context.Background(), "telegram:1")
	require.NoError(t, err)
	assert.Nil(t, conv)
	assert.False(t, conv.Active())
}

func TestService_UpsertOpensWindow(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, "telegram:1", StateAwaitingUniversity, nil))

	conv, err := svc.Get(ctx, "telegram:1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, StateAwaitingUniversity, conv.State)
	assert.Empty(t, conv.Data)
	require.NotNil(t, conv.ExpiresAt)
	assert.True(t, conv.ExpiresAt.Equal(clock.now.Add(15*time.Minute)))
	assert.True(t, conv.Active())
	assert.False(t, conv.Expired(clock.now))
	assert.True(t, conv.Expired(clock.now.Add(15*time.Minute)))
}

func TestService_TouchExpirySlides(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, "telegram:1", StateAwaitingUniversity, nil))

	clock.now = clock.now.Add(10 * time.Minute)
	require.NoError(t, svc.TouchExpiry(ctx, "telegram:1"))

	conv, err := svc.Get(ctx, "telegram:1")
	require.NoError(t, err)
	assert.True(t, conv.ExpiresAt.Equal(clock.now.Add(15*time.Minute)))
	assert.False(t, conv.Expired(clock.now.Add(14*time.Minute)))
}

func TestService_FieldsAndAdvance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, "telegram:1", StateAwaitingUniversity, nil))
	require.NoError(t, svc.SetField(ctx, "telegram:1", "university", "TATU"))
	require.NoError(t, svc.Advance(ctx, "telegram:1", StateAwaitingDirection))

	conv, err := svc.Get(ctx, "telegram:1")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingDirection, conv.State)
	assert.Equal(t, map[string]string{"university": "TATU"}, conv.Data)
}

func TestService_ClearResetsEverything(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, "telegram:1", StateAwaitingTopic, map[string]string{"university": "TATU"}))
	require.NoError(t, svc.Clear(ctx, "telegram:1"))

	conv, err := svc.Get(ctx, "telegram:1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, StateIdle, conv.State)
	assert.Empty(t, conv.Data)
	assert.Nil(t, conv.ExpiresAt)
	assert.False(t, conv.Active())
}

func TestService_Sweep(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, "telegram:old", StateAwaitingGroup, nil))
	clock.now = clock.now.Add(10 * time.Minute)
	require.NoError(t, svc.Upsert(ctx, "telegram:new", StateAwaitingGroup, nil))

	clock.now = clock.now.Add(6 * time.Minute)
	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := svc.Get(ctx, "telegram:old")
	require.NoError(t, err)
	assert.Nil(t, old)

	fresh, err := svc.Get(ctx, "telegram:new")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestService_RunSweeperStopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.RunSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
