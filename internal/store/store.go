// ABOUTME: Store interface and data types for deckbot persistence
// ABOUTME: Defines users, conversation states, generation requests and queue jobs

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a status change would leave a terminal
// state or skip a step.
var ErrInvalidTransition = errors.New("invalid status transition")

// User is the profile of an end user as last seen on a frontend.
// ID is frontend-qualified, e.g. "telegram:12345".
type User struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsBlocked    bool
	LastActiveAt time.Time
	CreatedAt    time.Time
}

// ConversationState is the persisted dialogue record for one user.
// At most one exists per user ID.
type ConversationState struct {
	UserID    string
	State     string
	Data      map[string]string
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

// RequestStatus is the lifecycle status of a GenerationRequest
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestGenerating RequestStatus = "generating"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestCompleted || s == RequestFailed
}

// GenerationRequest is the durable record of one document to produce.
type GenerationRequest struct {
	ID             string
	UserID         string
	ConversationID string
	University     string
	Direction      string
	GroupName      string
	InfoPlacement  string // "first" or "last"
	Topic          string
	PagesCount     int
	Format         string // "pptx", "docx" or "pdf"
	StudentName    string
	Status         RequestStatus
	FilePath       string
	FileSize       int64
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// JobStatus is the status of a queued unit of background work
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one entry of the durable work queue. Attempts counts claims.
type Job struct {
	ID          string
	RequestID   string
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	AvailableAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store defines the interface for deckbot persistence
type Store interface {
	// Users
	UpsertUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	SetUserBlocked(ctx context.Context, id string, blocked bool) error

	// Conversation states. Every mutation is a single statement.
	GetConversation(ctx context.Context, userID string) (*ConversationState, error)
	UpsertConversation(ctx context.Context, state *ConversationState) error
	SetConversationField(ctx context.Context, userID, key, value string) error
	SetConversationState(ctx context.Context, userID, state string) error
	SetConversationExpiry(ctx context.Context, userID string, expiresAt time.Time) error
	ClearConversation(ctx context.Context, userID, idleState string) error
	DeleteExpiredConversations(ctx context.Context, now time.Time) (int64, error)

	// Generation requests
	CreateRequest(ctx context.Context, req *GenerationRequest) error
	GetRequest(ctx context.Context, id string) (*GenerationRequest, error)
	ListRequests(ctx context.Context, userID string, limit int) ([]*GenerationRequest, error)
	MarkRequestGenerating(ctx context.Context, id string) error
	MarkRequestCompleted(ctx context.Context, id, filePath string, fileSize int64) error
	MarkRequestFailed(ctx context.Context, id, message string) error

	// Work queue
	EnqueueJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ClaimJob(ctx context.Context, now time.Time) (*Job, error)
	CompleteJob(ctx context.Context, id string) error
	RetryJob(ctx context.Context, id, lastError string, availableAt time.Time) error
	FailJob(ctx context.Context, id, lastError string) error
	RequeueRunningJobs(ctx context.Context) (int64, error)

	Close() error
}

// allowedFrom lists the statuses a request may move out of to reach the key status.
var allowedFrom = map[RequestStatus][]RequestStatus{
	RequestGenerating: {RequestPending},
	RequestCompleted:  {RequestGenerating},
	RequestFailed:     {RequestPending, RequestGenerating},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to RequestStatus) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}
