// ABOUTME: HTTP handlers for health checks and the token-protected request status API
// ABOUTME: Status responses mirror the generation_requests record without the local file path

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/2389/deckbot/internal/auth"
	"github.com/2389/deckbot/internal/store"
)

const maxListLimit = 200

// RequestResponse is the JSON shape of one generation request.
type RequestResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	University    string     `json:"university"`
	Direction     string     `json:"direction"`
	GroupName     string     `json:"group_name"`
	InfoPlacement string     `json:"info_placement"`
	Topic         string     `json:"topic"`
	PagesCount    int        `json:"pages_count"`
	Format        string     `json:"format"`
	StudentName   string     `json:"student_name,omitempty"`
	Status        string     `json:"status"`
	FileName      string     `json:"file_name,omitempty"`
	FileSize      int64      `json:"file_size,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ListRequestsResponse wraps a page of requests.
type ListRequestsResponse struct {
	Requests []RequestResponse `json:"requests"`
}

func toRequestResponse(r *store.GenerationRequest) RequestResponse {
	resp := RequestResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		University:    r.University,
		Direction:     r.Direction,
		GroupName:     r.GroupName,
		InfoPlacement: r.InfoPlacement,
		Topic:         r.Topic,
		PagesCount:    r.PagesCount,
		Format:        r.Format,
		StudentName:   r.StudentName,
		Status:        string(r.Status),
		FileSize:      r.FileSize,
		ErrorMessage:  r.ErrorMessage,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		CompletedAt:   r.CompletedAt,
	}
	if r.FilePath != "" {
		resp.FileName = filepath.Base(r.FilePath)
	}
	return resp
}

// handleHealth is the liveness check.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports whether the database answers and which frontends are enabled.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	frontends := []string{}
	if g.telegram != nil {
		frontends = append(frontends, "telegram")
	}
	if g.matrix != nil {
		frontends = append(frontends, "matrix")
	}

	status := "ready"
	code := http.StatusOK
	if _, err := g.store.ListRequests(ctx, "", 1); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		status = "database unavailable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"frontends": frontends,
	})
}

// handleGetRequest serves GET /api/requests/{id}.
func (g *Gateway) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := g.store.GetRequest(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, "request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		g.logger.Error("failed to load request", "request_id", id, "error", err)
		g.sendJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	g.logRead(r, "request", id)
	g.sendJSON(w, toRequestResponse(req))
}

// handleListRequests serves GET /api/requests?user_id=&limit=, newest first.
func (g *Gateway) handleListRequests(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			g.sendJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}
	userID := r.URL.Query().Get("user_id")

	reqs, err := g.store.ListRequests(r.Context(), userID, limit)
	if err != nil {
		g.logger.Error("failed to list requests", "user_id", userID, "error", err)
		g.sendJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := ListRequestsResponse{Requests: make([]RequestResponse, 0, len(reqs))}
	for _, req := range reqs {
		resp.Requests = append(resp.Requests, toRequestResponse(req))
	}
	g.logRead(r, "requests", userID)
	g.sendJSON(w, resp)
}

func (g *Gateway) logRead(r *http.Request, what, key string) {
	if caller := auth.FromContext(r.Context()); caller != nil {
		g.logger.Debug("status API read", "what", what, "key", key, "caller", caller.Subject)
	}
}

func (g *Gateway) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes {"error": msg} with the given status code.
func (g *Gateway) sendJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
