package signhub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/esign-tools/renotify/internal/domain/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc, pageSize int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cl := New(Config{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
		PageSize: pageSize,
	}, zap.NewNop())
	return cl, srv
}

func TestListPending_Paginates(t *testing.T) {
	pages := map[string][]apiDocument{
		"1": {{ID: "doc-1"}, {ID: "doc-2"}},
		"2": {{ID: "doc-3"}, {ID: "doc-4"}},
		"3": {{ID: "doc-5"}},
	}
	var gotAuth string
	cl, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/v1/documents", r.URL.Path)
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		json.NewEncoder(w).Encode(listResponse{Documents: pages[r.URL.Query().Get("page")]})
	}, 2)

	docs, err := cl.ListPending(context.Background())
	require.NoError(t, err)

	require.Len(t, docs, 5)
	assert.Equal(t, "doc-5", docs[4].ID)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestListPending_EmptyFirstPage(t *testing.T) {
	cl, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listResponse{})
	}, 50)

	docs, err := cl.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestGetByID(t *testing.T) {
	cl, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/documents/doc-1", r.URL.Path)
		json.NewEncoder(w).Encode(apiDocument{
			ID:    "doc-1",
			Title: "NDA",
			Recipients: []apiRecipient{
				{ID: "r1", Email: "a@example.com", Status: "pending"},
				{ID: "r2", Email: "b@example.com", Status: "signed"},
			},
		})
	}, 50)

	doc, err := cl.GetByID(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.Equal(t, "NDA", doc.Title)
	require.Len(t, doc.Recipients, 2)
	assert.Equal(t, document.StatusPending, doc.Recipients[0].Status)
	assert.Equal(t, []string{"r1"}, recipientIDs(doc.PendingRecipients()))
}

func TestGetByID_NotFound(t *testing.T) {
	cl, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 50)

	_, err := cl.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestSendReminder(t *testing.T) {
	var gotBody struct {
		RecipientIDs []string `json:"recipient_ids"`
	}
	cl, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/documents/doc-1/remind", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}, 50)

	err := cl.SendReminder(context.Background(), "doc-1", []string{"r1", "r2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, gotBody.RecipientIDs)
}

func TestSendReminder_ServerErrorIsDispatchError(t *testing.T) {
	cl, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}, 50)

	err := cl.SendReminder(context.Background(), "doc-1", []string{"r1"})

	var de *document.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Detail, "429")
	assert.Contains(t, de.Detail, "rate limited")
}

func TestSendReminder_GoneDocument(t *testing.T) {
	cl, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 50)

	err := cl.SendReminder(context.Background(), "doc-1", []string{"r1"})
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestHealthCheck(t *testing.T) {
	cases := []struct {
		name    string
		code    int
		wantErr string
	}{
		{"ok", http.StatusOK, ""},
		{"bad key", http.StatusUnauthorized, "provider.api_key"},
		{"degraded", http.StatusServiceUnavailable, "retry later"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cl, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/health", r.URL.Path)
				w.WriteHeader(tc.code)
			}, 50)

			err := cl.HealthCheck(context.Background())
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestHealthCheck_Unreachable(t *testing.T) {
	cl, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, 50)
	srv.Close()

	err := cl.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network reachability")
}

func recipientIDs(rs []document.Recipient) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
