// ABOUTME: Tests for the token-protected request status API
// ABOUTME: Covers auth, lookups, listing limits and the disabled-without-secret case

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/deckbot/internal/auth"
	"github.com/2389/deckbot/internal/store"
)

func newAPIGateway(t *testing.T) (*Gateway, *store.MockStore, string) {
	t.Helper()
	ms := store.NewMockStore()
	cfg := testConfig(t, "auth:\n  jwt_secret: \""+testSecret+"\"\n")
	gw := newTestGateway(t, cfg, WithStore(ms))

	token, err := auth.NewJWTVerifier([]byte(testSecret)).Generate("ops", time.Hour)
	require.NoError(t, err)
	return gw, ms, token
}

func apiGet(gw *Gateway, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func seedRequests(t *testing.T, ms *store.MockStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 9, 14, 0, 0, 0, time.UTC)
	for i, r := range []*store.GenerationRequest{
		{ID: "req-a", UserID: "telegram:1", Topic: "Fizika", PagesCount: 5, Format: "pdf"},
		{ID: "req-b", UserID: "telegram:2", Topic: "Kimyo", PagesCount: 8, Format: "docx"},
		{ID: "req-c", UserID: "telegram:1", Topic: "Tarix", PagesCount: 10, Format: "pptx"},
	} {
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, ms.CreateRequest(ctx, r))
	}
	require.NoError(t, ms.MarkRequestGenerating(ctx, "req-a"))
	require.NoError(t, ms.MarkRequestCompleted(ctx, "req-a", "/var/lib/deckbot/presentations/fizika.pdf", 2048))
}

func TestStatusAPI_DisabledWithoutSecret(t *testing.T) {
	gw := newTestGateway(t, testConfig(t, ""), WithStore(store.NewMockStore()))

	rec := apiGet(gw, "/api/requests", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAPI_RequiresToken(t *testing.T) {
	gw, _, _ := newAPIGateway(t)

	rec := apiGet(gw, "/api/requests/req-a", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := auth.NewJWTVerifier([]byte("ffffffffffffffffffffffffffffffff")).Generate("ops", time.Hour)
	require.NoError(t, err)
	rec = apiGet(gw, "/api/requests/req-a", other)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusAPI_GetRequest(t *testing.T) {
	gw, ms, token := newAPIGateway(t)
	seedRequests(t, ms)

	rec := apiGet(gw, "/api/requests/req-a", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got RequestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "req-a", got.ID)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "fizika.pdf", got.FileName)
	assert.Equal(t, int64(2048), got.FileSize)
	assert.NotNil(t, got.CompletedAt)
	assert.NotContains(t, rec.Body.String(), "/var/lib/deckbot", "local paths must not leak")
}

func TestStatusAPI_GetRequestNotFound(t *testing.T) {
	gw, _, token := newAPIGateway(t)

	rec := apiGet(gw, "/api/requests/missing", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"request not found"}`, rec.Body.String())
}

func TestStatusAPI_ListRequests(t *testing.T) {
	gw, ms, token := newAPIGateway(t)
	seedRequests(t, ms)

	tests := []struct {
		name string
		path string
		want []string
	}{
		{"all newest first", "/api/requests", []string{"req-c", "req-b", "req-a"}},
		{"by user", "/api/requests?user_id=telegram:1", []string{"req-c", "req-a"}},
		{"limited", "/api/requests?limit=1", []string{"req-c"}},
		{"unknown user", "/api/requests?user_id=matrix:@x:example.org", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := apiGet(gw, tt.path, token)
			require.Equal(t, http.StatusOK, rec.Code)

			var got ListRequestsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			ids := []string{}
			for _, r := range got.Requests {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStatusAPI_ListRequestsBadLimit(t *testing.T) {
	gw, _, token := newAPIGateway(t)

	for _, limit := range []string{"0", "-3", "ten"} {
		rec := apiGet(gw, "/api/requests?limit="+limit, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}
