// ABOUTME: Tests for the history HTTP client against a stub gateway.
// ABOUTME: Covers auth header, entry mapping, kind fallback, and error statuses.

package history

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-client/internal/msglog"
)

func TestFetch_MapsEntries(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"h1","role":"user","content":"hello","timestamp":"2026-01-02T10:00:00Z","kind":"message"},
			{"id":"h2","role":"assistant","content":"ls -la","timestamp":"2026-01-02T10:00:05Z","kind":"tool_use","tool_id":"t1","tool_name":"bash","tool_input":"ls -la"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token")
	entries, err := c.Fetch(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "/api/sessions/sess-1/history", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)

	require.Len(t, entries, 2)
	assert.Equal(t, "h1", entries[0].ID)
	assert.Equal(t, msglog.KindMessage, entries[0].Kind)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), entries[0].Timestamp)
	assert.Equal(t, msglog.KindToolUse, entries[1].Kind)
	assert.Equal(t, "bash", entries[1].ToolName)
}

func TestFetch_UnknownKindFallsBackToMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"h1","role":"user","content":"x","kind":"hologram"}]`))
	}))
	defer srv.Close()

	entries, err := NewClient(srv.URL, "").Fetch(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, msglog.KindMessage, entries[0].Kind)
}

func TestFetch_NoTokenOmitsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Fetch(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestFetch_EmptyHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	entries, err := NewClient(srv.URL, "").Fetch(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Fetch(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "session not found")
}

func TestFetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Fetch(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding history")
}
