package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebeat/auth"
	"sitebeat/models"
)

// fakeAPI serves the query surface with a single valid access token that can
// be rotated through /auth/refresh.
type fakeAPI struct {
	t            *testing.T
	validAccess  string
	validRefresh string
	refreshCalls int
	statsCalls   int
	rejectAll    bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if req["password"] != "hunter2hunter2" {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		f.writeTokens(w)
	})

	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls++
		var req map[string]string
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if req["refresh_token"] != f.validRefresh {
			http.Error(w, "invalid or expired refresh token", http.StatusUnauthorized)
			return
		}
		f.validAccess = f.validAccess + "+rotated"
		f.writeTokens(w)
	})

	mux.HandleFunc("/api/analytics/stats", func(w http.ResponseWriter, r *http.Request) {
		f.statsCalls++
		if f.rejectAll || r.Header.Get("Authorization") != "Bearer "+f.validAccess {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.SiteStats{
			SiteID:      r.URL.Query().Get("site_id"),
			TotalEvents: 42,
		})
	})

	mux.HandleFunc("/api/analytics/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.validAccess {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.SessionList{
			SiteID:   r.URL.Query().Get("site_id"),
			Sessions: []models.SessionMeta{{SessionID: "sess-1"}},
		})
	})

	return mux
}

func (f *fakeAPI) writeTokens(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(auth.TokenPair{
		AccessToken:  f.validAccess,
		RefreshToken: f.validRefresh,
		TokenType:    "bearer",
		ExpiresIn:    900,
	})
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{t: t, validAccess: "access-1", validRefresh: "refresh-1"}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return api, srv
}

func TestLoginAndStats(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := New(srv.URL)

	require.NoError(t, c.Login(context.Background(), "dev@example.com", "hunter2hunter2"))

	stats, err := c.Stats(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, "site-1", stats.SiteID)
	assert.Equal(t, 42, stats.TotalEvents)
	assert.Equal(t, 0, api.refreshCalls)
}

func TestLoginBadPassword(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := New(srv.URL)
	assert.Error(t, c.Login(context.Background(), "dev@example.com", "wrong"))
}

func TestStaleAccessTokenRefreshesOnce(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := New(srv.URL)
	c.SetTokens("stale-token", api.validRefresh)

	stats, err := c.Stats(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, 42, stats.TotalEvents)
	assert.Equal(t, 1, api.refreshCalls)
	assert.Equal(t, 2, api.statsCalls, "the original request is retried exactly once")
}

func TestRefreshFailureSurfaces(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := New(srv.URL)
	c.SetTokens("stale-token", "stale-refresh")

	_, err := c.Stats(context.Background(), "site-1")
	assert.Error(t, err)
	assert.Equal(t, 1, api.refreshCalls)
	assert.Equal(t, 1, api.statsCalls, "no retry without a fresh token")
}

func TestNoRefreshLoopOnPersistent401(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := New(srv.URL)
	// The refresh succeeds but the endpoint keeps answering 401; the client
	// must give up after one retry instead of looping.
	c.SetTokens("stale-token", api.validRefresh)
	api.rejectAll = true

	_, err := c.Stats(context.Background(), "site-1")
	assert.Error(t, err)
	assert.Equal(t, 1, api.refreshCalls)
	assert.Equal(t, 2, api.statsCalls)
}

func TestSessions(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := New(srv.URL)
	c.SetTokens(api.validAccess, api.validRefresh)

	list, err := c.Sessions(context.Background(), "site-1", "active", 10)
	require.NoError(t, err)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "sess-1", list.Sessions[0].SessionID)
}
