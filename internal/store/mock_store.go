// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite while keeping the same transition rules

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User
	conversations map[string]*ConversationState
	requests      map[string]*GenerationRequest
	requestOrder  []string
	jobs          map[string]*Job
	jobOrder      []string
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		conversations: make(map[string]*ConversationState),
		requests:      make(map[string]*GenerationRequest),
		jobs:          make(map[string]*Job),
	}
}

// UpsertUser inserts or refreshes a user, preserving the blocked flag.
func (m *MockStore) UpsertUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	u := *user
	if u.LastActiveAt.IsZero() {
		u.LastActiveAt = now
	}
	if existing, ok := m.users[u.ID]; ok {
		u.IsBlocked = existing.IsBlocked
		u.CreatedAt = existing.CreatedAt
	} else {
		u.IsBlocked = false
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
	}
	m.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// SetUserBlocked sets or clears the blocked flag.
func (m *MockStore) SetUserBlocked(ctx context.Context, id string, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsBlocked = blocked
	return nil
}

func copyConversation(c *ConversationState) *ConversationState {
	result := *c
	result.Data = make(map[string]string, len(c.Data))
	for k, v := range c.Data {
		result.Data[k] = v
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		result.ExpiresAt = &t
	}
	return &result
}

// GetConversation retrieves the conversation state for a user.
func (m *MockStore) GetConversation(ctx context.Context, userID string) (*ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(c), nil
}

// UpsertConversation replaces the conversation record for a user.
func (m *MockStore) UpsertConversation(ctx context.Context, state *ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := copyConversation(state)
	c.UpdatedAt = time.Now().UTC()
	m.conversations[c.UserID] = c
	return nil
}

// SetConversationField stores one collected value.
func (m *MockStore) SetConversationField(ctx context.Context, userID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[userID]
	if !ok {
		return ErrNotFound
	}
	c.Data[key] = value
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetConversationState moves the conversation to a new dialogue state.
func (m *MockStore) SetConversationState(ctx context.Context, userID, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[userID]
	if !ok {
		return ErrNotFound
	}
	c.State = state
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetConversationExpiry sets the absolute expiry of the conversation.
func (m *MockStore) SetConversationExpiry(ctx context.Context, userID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[userID]
	if !ok {
		return ErrNotFound
	}
	t := expiresAt.UTC()
	c.ExpiresAt = &t
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ClearConversation resets the conversation to idleState.
func (m *MockStore) ClearConversation(ctx context.Context, userID, idleState string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[userID]
	if !ok {
		return nil
	}
	c.State = idleState
	c.Data = make(map[string]string)
	c.ExpiresAt = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteExpiredConversations removes conversations whose expiry has passed.
func (m *MockStore) DeleteExpiredConversations(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, c := range m.conversations {
		if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
			delete(m.conversations, id)
			deleted++
		}
	}
	return deleted, nil
}

// CreateRequest stores a new generation request.
func (m *MockStore) CreateRequest(ctx context.Context, req *GenerationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.requests[req.ID]; exists {
		return fmt.Errorf("inserting request %s: duplicate id", req.ID)
	}
	if req.Status == "" {
		req.Status = RequestPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	req.UpdatedAt = req.CreatedAt

	r := *req
	m.requests[r.ID] = &r
	m.requestOrder = append(m.requestOrder, r.ID)
	return nil
}

func copyRequest(r *GenerationRequest) *GenerationRequest {
	result := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		result.CompletedAt = &t
	}
	return &result
}

// GetRequest retrieves a generation request by ID.
func (m *MockStore) GetRequest(ctx context.Context, id string) (*GenerationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRequest(r), nil
}

// ListRequests returns requests newest first, optionally filtered by user.
func (m *MockStore) ListRequests(ctx context.Context, userID string, limit int) ([]*GenerationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	type indexed struct {
		req *GenerationRequest
		pos int
	}
	var matched []indexed
	for pos, id := range m.requestOrder {
		r := m.requests[id]
		if userID != "" && r.UserID != userID {
			continue
		}
		matched = append(matched, indexed{req: r, pos: pos})
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].req.CreatedAt.Equal(matched[j].req.CreatedAt) {
			return matched[i].req.CreatedAt.After(matched[j].req.CreatedAt)
		}
		return matched[i].pos > matched[j].pos
	})

	var result []*GenerationRequest
	for i, item := range matched {
		if i >= limit {
			break
		}
		result = append(result, copyRequest(item.req))
	}
	return result, nil
}

func (m *MockStore) transition(id string, to RequestStatus, apply func(r *GenerationRequest)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	if apply != nil {
		apply(r)
	}
	return nil
}

// MarkRequestGenerating moves a pending request to generating.
func (m *MockStore) MarkRequestGenerating(ctx context.Context, id string) error {
	return m.transition(id, RequestGenerating, nil)
}

// MarkRequestCompleted records the output file of a generating request.
func (m *MockStore) MarkRequestCompleted(ctx context.Context, id, filePath string, fileSize int64) error {
	return m.transition(id, RequestCompleted, func(r *GenerationRequest) {
		now := time.Now().UTC()
		r.FilePath = filePath
		r.FileSize = fileSize
		r.CompletedAt = &now
	})
}

// MarkRequestFailed records the error of a pending or generating request.
func (m *MockStore) MarkRequestFailed(ctx context.Context, id, message string) error {
	return m.transition(id, RequestFailed, func(r *GenerationRequest) {
		r.ErrorMessage = message
	})
}

// EnqueueJob stores a queued job.
func (m *MockStore) EnqueueJob(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = JobQueued
	}
	if job.AvailableAt.IsZero() {
		job.AvailableAt = now
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	j := *job
	m.jobs[j.ID] = &j
	m.jobOrder = append(m.jobOrder, j.ID)
	return nil
}

// GetJob retrieves a job by ID.
func (m *MockStore) GetJob(ctx context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *j
	return &result, nil
}

// ClaimJob marks the oldest available queued job as running and returns it.
func (m *MockStore) ClaimJob(ctx context.Context, now time.Time) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Job
	for _, id := range m.jobOrder {
		j := m.jobs[id]
		if j.Status != JobQueued || j.AvailableAt.After(now) {
			continue
		}
		if best == nil || j.AvailableAt.Before(best.AvailableAt) {
			best = j
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}

	best.Status = JobRunning
	best.Attempts++
	best.UpdatedAt = now
	result := *best
	return &result, nil
}

func (m *MockStore) finishJob(id string, status JobStatus, lastError string, availableAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.Status != JobRunning {
		return ErrNotFound
	}
	j.Status = status
	j.LastError = lastError
	j.UpdatedAt = time.Now().UTC()
	if availableAt != nil {
		j.AvailableAt = *availableAt
	}
	return nil
}

// CompleteJob marks a running job as succeeded.
func (m *MockStore) CompleteJob(ctx context.Context, id string) error {
	return m.finishJob(id, JobSucceeded, "", nil)
}

// RetryJob puts a running job back in the queue.
func (m *MockStore) RetryJob(ctx context.Context, id, lastError string, availableAt time.Time) error {
	return m.finishJob(id, JobQueued, lastError, &availableAt)
}

// FailJob marks a running job as permanently failed.
func (m *MockStore) FailJob(ctx context.Context, id, lastError string) error {
	return m.finishJob(id, JobFailed, lastError, nil)
}

// RequeueRunningJobs returns running jobs to the queue.
func (m *MockStore) RequeueRunningJobs(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, j := range m.jobs {
		if j.Status == JobRunning {
			j.Status = JobQueued
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
