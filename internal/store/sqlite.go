// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides users, conversation state, request and job persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// busy_timeout is per connection, so it goes in the DSN rather than a one-off PRAGMA
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			user_id        TEXT PRIMARY KEY,
			username       TEXT,
			first_name     TEXT,
			last_name      TEXT,
			language_code  TEXT,
			is_blocked     INTEGER NOT NULL DEFAULT 0,
			last_active_at TEXT NOT NULL,
			created_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_states (
			user_id       TEXT PRIMARY KEY,
			current_state TEXT NOT NULL,
			data          TEXT NOT NULL DEFAULT '{}',
			expires_at    TEXT,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversation_states_expires
			ON conversation_states(expires_at);

		CREATE TABLE IF NOT EXISTS generation_requests (
			request_id      TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			university      TEXT NOT NULL,
			direction       TEXT NOT NULL,
			group_name      TEXT NOT NULL,
			info_placement  TEXT NOT NULL,
			topic           TEXT NOT NULL,
			pages_count     INTEGER NOT NULL,
			format          TEXT NOT NULL,
			student_name    TEXT,
			status          TEXT NOT NULL,
			file_path       TEXT,
			file_size       INTEGER NOT NULL DEFAULT 0,
			error_message   TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			completed_at    TEXT,

			CHECK (info_placement IN ('first', 'last')),
			CHECK (status IN ('pending', 'generating', 'completed', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_generation_requests_user
			ON generation_requests(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS jobs (
			job_id       TEXT PRIMARY KEY,
			request_id   TEXT NOT NULL,
			status       TEXT NOT NULL,
			attempts     INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL,
			last_error   TEXT,
			available_at TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			FOREIGN KEY (request_id) REFERENCES generation_requests(request_id),
			CHECK (status IN ('queued', 'running', 'succeeded', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_claim
			ON jobs(status, available_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "users",
			column: "language_code",
			apply:  `ALTER TABLE users ADD COLUMN language_code TEXT`,
		},
		{
			table:  "generation_requests",
			column: "student_name",
			apply:  `ALTER TABLE generation_requests ADD COLUMN student_name TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		check := fmt.Sprintf(`SELECT 1 FROM pragma_table_info('%s') WHERE name = ?`, m.table)
		if err := s.db.QueryRow(check, m.column).Scan(&exists); err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", column, err)
	}
	return t, nil
}

func parseNullTime(column string, value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(column, value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isConstraintViolation checks if the error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "constraint failed")
}

// UpsertUser inserts a user or refreshes the profile fields and last activity.
// The blocked flag and creation time are preserved on update.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *User) error {
	now := time.Now()
	if user.LastActiveAt.IsZero() {
		user.LastActiveAt = now
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name, language_code, is_blocked, last_active_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			language_code = excluded.language_code,
			last_active_at = excluded.last_active_at
	`,
		user.ID,
		nullString(user.Username),
		nullString(user.FirstName),
		nullString(user.LastName),
		nullString(user.LanguageCode),
		formatTime(user.LastActiveAt),
		formatTime(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	var username, firstName, lastName, languageCode sql.NullString
	var blocked int
	var lastActiveStr, createdStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, first_name, last_name, language_code, is_blocked, last_active_at, created_at
		FROM users WHERE user_id = ?
	`, id).Scan(&user.ID, &username, &firstName, &lastName, &languageCode, &blocked, &lastActiveStr, &createdStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.Username = username.String
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.LanguageCode = languageCode.String
	user.IsBlocked = blocked != 0

	if user.LastActiveAt, err = parseTime("last_active_at", lastActiveStr); err != nil {
		return nil, err
	}
	if user.CreatedAt, err = parseTime("created_at", createdStr); err != nil {
		return nil, err
	}
	return &user, nil
}

// SetUserBlocked sets or clears the blocked flag.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) SetUserBlocked(ctx context.Context, id string, blocked bool) error {
	value := 0
	if blocked {
		value = 1
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_blocked = ? WHERE user_id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetConversation retrieves the conversation state for a user.
// Returns ErrNotFound if the user has never started a conversation.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID string) (*ConversationState, error) {
	var state ConversationState
	var dataStr, updatedStr string
	var expiresAt sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, current_state, data, expires_at, updated_at
		FROM conversation_states WHERE user_id = ?
	`, userID).Scan(&state.UserID, &state.State, &dataStr, &expiresAt, &updatedStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	state.Data = make(map[string]string)
	if err := json.Unmarshal([]byte(dataStr), &state.Data); err != nil {
		return nil, fmt.Errorf("decoding conversation data: %w", err)
	}
	if state.ExpiresAt, err = parseNullTime("expires_at", expiresAt); err != nil {
		return nil, err
	}
	if state.UpdatedAt, err = parseTime("updated_at", updatedStr); err != nil {
		return nil, err
	}
	return &state, nil
}

// UpsertConversation replaces the whole conversation record for a user in one statement.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, state *ConversationState) error {
	data := state.Data
	if data == nil {
		data = map[string]string{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding conversation data: %w", err)
	}

	var expiresAt any
	if state.ExpiresAt != nil {
		expiresAt = formatTime(*state.ExpiresAt)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_states (user_id, current_state, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			current_state = excluded.current_state,
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, state.UserID, state.State, string(dataJSON), expiresAt, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}
	return nil
}

// SetConversationField stores one collected value without touching the others.
// json_set keeps the read-modify-write inside a single statement.
func (s *SQLiteStore) SetConversationField(ctx context.Context, userID, key, value string) error {
	path := `$."` + strings.ReplaceAll(key, `"`, ``) + `"`
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversation_states
		SET data = json_set(data, ?, ?), updated_at = ?
		WHERE user_id = ?
	`, path, value, formatTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("setting conversation field %s: %w", key, err)
	}
	return requireRow(result)
}

// SetConversationState moves the conversation to a new dialogue state.
func (s *SQLiteStore) SetConversationState(ctx context.Context, userID, state string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversation_states SET current_state = ?, updated_at = ? WHERE user_id = ?
	`, state, formatTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("advancing conversation: %w", err)
	}
	return requireRow(result)
}

// SetConversationExpiry sets the absolute expiry of the conversation.
func (s *SQLiteStore) SetConversationExpiry(ctx context.Context, userID string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversation_states SET expires_at = ?, updated_at = ? WHERE user_id = ?
	`, formatTime(expiresAt), formatTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("updating conversation expiry: %w", err)
	}
	return requireRow(result)
}

// ClearConversation resets the conversation to idleState with no data and no expiry.
// Clearing a user without a conversation is a no-op.
func (s *SQLiteStore) ClearConversation(ctx context.Context, userID, idleState string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_states
		SET current_state = ?, data = '{}', expires_at = NULL, updated_at = ?
		WHERE user_id = ?
	`, idleState, formatTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	return nil
}

// DeleteExpiredConversations removes conversations whose expiry has passed.
func (s *SQLiteStore) DeleteExpiredConversations(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_states WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired conversations: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired conversations", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// CreateRequest inserts a new generation request. The status defaults to pending.
func (s *SQLiteStore) CreateRequest(ctx context.Context, req *GenerationRequest) error {
	now := time.Now()
	if req.Status == "" {
		req.Status = RequestPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_requests (
			request_id, user_id, conversation_id, university, direction, group_name,
			info_placement, topic, pages_count, format, student_name, status,
			file_size, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`,
		req.ID, req.UserID, req.ConversationID, req.University, req.Direction, req.GroupName,
		req.InfoPlacement, req.Topic, req.PagesCount, req.Format, nullString(req.StudentName), string(req.Status),
		formatTime(req.CreatedAt), formatTime(req.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("inserting request %s: %w", req.ID, err)
		}
		return fmt.Errorf("inserting request: %w", err)
	}

	s.logger.Debug("created generation request", "id", req.ID, "user_id", req.UserID, "format", req.Format)
	return nil
}

const requestColumns = `
	request_id, user_id, conversation_id, university, direction, group_name,
	info_placement, topic, pages_count, format, student_name, status,
	file_path, file_size, error_message, created_at, updated_at, completed_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*GenerationRequest, error) {
	var req GenerationRequest
	var studentName, filePath, errorMessage, completedAt sql.NullString
	var status, createdStr, updatedStr string

	err := row.Scan(
		&req.ID, &req.UserID, &req.ConversationID, &req.University, &req.Direction, &req.GroupName,
		&req.InfoPlacement, &req.Topic, &req.PagesCount, &req.Format, &studentName, &status,
		&filePath, &req.FileSize, &errorMessage, &createdStr, &updatedStr, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	req.StudentName = studentName.String
	req.Status = RequestStatus(status)
	req.FilePath = filePath.String
	req.ErrorMessage = errorMessage.String

	if req.CreatedAt, err = parseTime("created_at", createdStr); err != nil {
		return nil, err
	}
	if req.UpdatedAt, err = parseTime("updated_at", updatedStr); err != nil {
		return nil, err
	}
	if req.CompletedAt, err = parseNullTime("completed_at", completedAt); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequest retrieves a generation request by ID.
// Returns ErrNotFound if the request doesn't exist.
func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*GenerationRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM generation_requests WHERE request_id = ?`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying request: %w", err)
	}
	return req, nil
}

// ListRequests returns the most recent requests, newest first.
// An empty userID lists requests of all users.
func (s *SQLiteStore) ListRequests(ctx context.Context, userID string, limit int) ([]*GenerationRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + requestColumns + ` FROM generation_requests`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}
	defer rows.Close()

	var requests []*GenerationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// transitionRequest applies an UPDATE guarded by the allowed source statuses and
// distinguishes a missing request from a rejected transition.
func (s *SQLiteStore) transitionRequest(ctx context.Context, id string, to RequestStatus, set string, args ...any) error {
	from := allowedFrom[to]
	placeholders := make([]string, len(from))
	query := `UPDATE generation_requests SET status = ?, updated_at = ?` + set + ` WHERE request_id = ? AND status IN (`
	full := []any{string(to), formatTime(time.Now())}
	full = append(full, args...)
	full = append(full, id)
	for i, st := range from {
		placeholders[i] = "?"
		full = append(full, string(st))
	}
	query += strings.Join(placeholders, ", ") + `)`

	result, err := s.db.ExecContext(ctx, query, full...)
	if err != nil {
		return fmt.Errorf("updating request status to %s: %w", to, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	current, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
}

// MarkRequestGenerating moves a pending request to generating.
func (s *SQLiteStore) MarkRequestGenerating(ctx context.Context, id string) error {
	return s.transitionRequest(ctx, id, RequestGenerating, "")
}

// MarkRequestCompleted records the output file of a generating request.
func (s *SQLiteStore) MarkRequestCompleted(ctx context.Context, id, filePath string, fileSize int64) error {
	return s.transitionRequest(ctx, id, RequestCompleted,
		`, file_path = ?, file_size = ?, completed_at = ?`,
		filePath, fileSize, formatTime(time.Now()))
}

// MarkRequestFailed records the error of a pending or generating request.
func (s *SQLiteStore) MarkRequestFailed(ctx context.Context, id, message string) error {
	return s.transitionRequest(ctx, id, RequestFailed, `, error_message = ?`, message)
}

// EnqueueJob inserts a queued job.
func (s *SQLiteStore) EnqueueJob(ctx context.Context, job *Job) error {
	now := time.Now()
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, request_id, status, attempts, max_attempts, available_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.RequestID, string(job.Status), job.Attempts, job.MaxAttempts,
		formatTime(job.AvailableAt), formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

const jobColumns = `job_id, request_id, status, attempts, max_attempts, last_error, available_at, created_at, updated_at`

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status, availableStr, createdStr, updatedStr string
	var lastError sql.NullString

	if err := row.Scan(&job.ID, &job.RequestID, &status, &job.Attempts, &job.MaxAttempts,
		&lastError, &availableStr, &createdStr, &updatedStr); err != nil {
		return nil, err
	}

	job.Status = JobStatus(status)
	job.LastError = lastError.String

	var err error
	if job.AvailableAt, err = parseTime("available_at", availableStr); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = parseTime("created_at", createdStr); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime("updated_at", updatedStr); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return job, nil
}

// ClaimJob atomically marks the oldest available queued job as running and returns it.
// Returns ErrNotFound when nothing is ready.
func (s *SQLiteStore) ClaimJob(ctx context.Context, now time.Time) (*Job, error) {
	nowStr := formatTime(now)
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'running', attempts = attempts + 1, updated_at = ?
		WHERE job_id = (
			SELECT job_id FROM jobs
			WHERE status = 'queued' AND available_at <= ?
			ORDER BY available_at, created_at, rowid
			LIMIT 1
		) AND status = 'queued'
		RETURNING `+jobColumns, nowStr, nowStr)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	return job, nil
}

func (s *SQLiteStore) finishJob(ctx context.Context, id string, status JobStatus, lastError string, availableAt *time.Time) error {
	query := `UPDATE jobs SET status = ?, last_error = ?, updated_at = ?`
	args := []any{string(status), nullString(lastError), formatTime(time.Now())}
	if availableAt != nil {
		query += `, available_at = ?`
		args = append(args, formatTime(*availableAt))
	}
	query += ` WHERE job_id = ? AND status = 'running'`
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job to %s: %w", status, err)
	}
	return requireRow(result)
}

// CompleteJob marks a running job as succeeded.
func (s *SQLiteStore) CompleteJob(ctx context.Context, id string) error {
	return s.finishJob(ctx, id, JobSucceeded, "", nil)
}

// RetryJob puts a running job back in the queue, available again at availableAt.
func (s *SQLiteStore) RetryJob(ctx context.Context, id, lastError string, availableAt time.Time) error {
	return s.finishJob(ctx, id, JobQueued, lastError, &availableAt)
}

// FailJob marks a running job as permanently failed.
func (s *SQLiteStore) FailJob(ctx context.Context, id, lastError string) error {
	return s.finishJob(ctx, id, JobFailed, lastError, nil)
}

// RequeueRunningJobs returns jobs interrupted by a crash to the queue.
// Only safe to call before any worker has started.
func (s *SQLiteStore) RequeueRunningJobs(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'queued', updated_at = ? WHERE status = 'running'
	`, formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("requeueing running jobs: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		s.logger.Info("requeued interrupted jobs", "count", n)
	}
	return n, nil
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
