package datasources

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/store/memory"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() http.Handler {
	r := chi.NewRouter()
	h := NewHandler(NewService(memory.New()))
	h.RegisterRoutes(r)
	r.Route("/admin", h.RegisterAdminRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Lifecycle(t *testing.T) {
	h := newTestRouter()

	rec := do(t, h, http.MethodPost, "/admin/data-sources",
		`{"name":"atlassian","type":"statuspage","base_url":"https://status.atlassian.com","api_key":"secret"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	var created struct {
		Data domain.DataSource `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.True(t, created.Data.IsActive)
	assert.Zero(t, created.Data.RetryCount)

	rec = do(t, h, http.MethodPatch, "/admin/data-sources/"+created.Data.ID, `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/data-sources/"+created.Data.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Data domain.DataSource `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.False(t, got.Data.IsActive)

	rec = do(t, h, http.MethodGet, "/data-sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []domain.DataSource `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Data, 1)
}

func TestHandler_Errors(t *testing.T) {
	h := newTestRouter()

	ok := do(t, h, http.MethodPost, "/admin/data-sources",
		`{"name":"dup","type":"cachet","base_url":"https://status.example.com"}`)
	require.Equal(t, http.StatusCreated, ok.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown type", http.MethodPost, "/admin/data-sources", `{"name":"x","type":"pingdom","base_url":"https://x.example.com"}`, http.StatusBadRequest},
		{"bad url", http.MethodPost, "/admin/data-sources", `{"name":"x","type":"gcp","base_url":"ftp://x"}`, http.StatusBadRequest},
		{"missing name", http.MethodPost, "/admin/data-sources", `{"type":"gcp","base_url":"https://x.example.com"}`, http.StatusBadRequest},
		{"invalid json", http.MethodPost, "/admin/data-sources", `{`, http.StatusBadRequest},
		{"duplicate name", http.MethodPost, "/admin/data-sources", `{"name":"dup","type":"gcp","base_url":"https://x.example.com"}`, http.StatusConflict},
		{"update unknown", http.MethodPatch, "/admin/data-sources/missing", `{"is_active":true}`, http.StatusNotFound},
		{"get unknown", http.MethodGet, "/data-sources/missing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
