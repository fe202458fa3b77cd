package collector

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebeat/auth"
	"sitebeat/models"
	"sitebeat/sites"
	"sitebeat/store"
)

type collectorEnv struct {
	collector *Collector
	manager   *sites.Manager
	store     *store.Store
	site      *sites.Site
	router    chi.Router
}

func newCollectorEnv(t *testing.T) *collectorEnv {
	t.Helper()
	dir := t.TempDir()

	manager, err := sites.NewManager(filepath.Join(dir, "sites.json"))
	require.NoError(t, err)
	site, err := manager.CreateSite("owner-1", "Example", "example.com", nil)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	coll := New(manager, st, zerolog.Nop())

	r := chi.NewRouter()
	r.Post("/api/analytics", coll.Collect)
	r.Group(func(r chi.Router) {
		r.Use(asUser("owner-1"))
		r.Get("/api/analytics/stats", coll.Stats)
		r.Get("/api/analytics/sessions", coll.Sessions)
		r.Get("/api/analytics/sessions/{sessionID}", coll.Session)
		r.Get("/api/analytics/heatmap/{sessionID}", coll.SessionHeatmap)
	})
	r.Group(func(r chi.Router) {
		r.Use(asUser("intruder"))
		r.Get("/intruder/stats", coll.Stats)
	})

	return &collectorEnv{collector: coll, manager: manager, store: st, site: site, router: r}
}

func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUserID(r.Context(), userID)))
		})
	}
}

func testPayloadEvent(eventType, sessionID string, fields map[string]any) models.Event {
	return models.Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
		VisitorID: "visitor-1",
		Page: models.Page{
			URL:   "https://example.com/",
			Path:  "/",
			Title: "Home",
		},
		Viewport: models.Viewport{Width: 1280, Height: 720},
		Fields:   fields,
	}
}

func (e *collectorEnv) post(t *testing.T, siteIDHeader string, payload models.Payload) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/analytics", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if siteIDHeader != "" {
		req.Header.Set("X-Site-ID", siteIDHeader)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *collectorEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type collectResponse struct {
	Status             string `json:"status"`
	EventsStored       int    `json:"events_stored"`
	MouseEventsSampled int    `json:"mouse_events_sampled"`
}

func TestCollectStoresBatch(t *testing.T) {
	env := newCollectorEnv(t)

	rec := env.post(t, env.site.ID, models.Payload{
		Events: []models.Event{
			testPayloadEvent("pageview", "sess-1", map[string]any{"isNewVisitor": true, "pageViewNumber": 1}),
			testPayloadEvent("click", "sess-1", map[string]any{
				"element":  map[string]any{"tag": "button", "path": "#cta"},
				"position": map[string]any{"x": 10, "y": 20},
			}),
		},
		Meta: models.Meta{UserAgent: "test-agent", Language: "en-US"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp collectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 2, resp.EventsStored)
	assert.Equal(t, 0, resp.MouseEventsSampled)

	detail, err := env.store.SessionDetail(env.site.ID, "sess-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, detail.TotalEvents)
	assert.Equal(t, 2, detail.EventCount)
	assert.Equal(t, "test-agent", detail.UserAgent)
	assert.Equal(t, models.SessionStatusActive, detail.Status)

	// The click's shaped payload keeps only its type-specific fields.
	var clickData map[string]any
	for _, ev := range detail.Events {
		if ev.EventType == "click" {
			require.NoError(t, json.Unmarshal([]byte(ev.EventData), &clickData))
		}
	}
	assert.Contains(t, clickData, "element")
	assert.Contains(t, clickData, "position")
}

func TestCollectSiteIDFromBody(t *testing.T) {
	env := newCollectorEnv(t)

	rec := env.post(t, "", models.Payload{
		SiteID: env.site.ID,
		Events: []models.Event{testPayloadEvent("pageview", "sess-1", nil)},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp collectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.EventsStored)
}

func TestCollectRejectsMissingSiteID(t *testing.T) {
	env := newCollectorEnv(t)
	rec := env.post(t, "", models.Payload{
		Events: []models.Event{testPayloadEvent("pageview", "sess-1", nil)},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollectRejectsUnknownSite(t *testing.T) {
	env := newCollectorEnv(t)
	rec := env.post(t, "not-a-site", models.Payload{
		Events: []models.Event{testPayloadEvent("pageview", "sess-1", nil)},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectRejectsBadJSON(t *testing.T) {
	env := newCollectorEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/analytics", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollectSamplesMouseMoves(t *testing.T) {
	env := newCollectorEnv(t)

	var events []models.Event
	for i := 1; i <= 10; i++ {
		events = append(events, testPayloadEvent("mousemove", "sess-1", map[string]any{
			"position": map[string]any{"x": i * 10, "y": i * 20},
		}))
	}
	rec := env.post(t, env.site.ID, models.Payload{Events: events})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp collectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.EventsStored, "mousemoves are never stored as events")
	assert.Equal(t, 2, resp.MouseEventsSampled, "every 5th sample is kept")

	hm, err := env.store.Heatmap(env.site.ID, "sess-1", "", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, hm.TotalPoints)
}

func TestCollectMouseSamplingSpansBatches(t *testing.T) {
	env := newCollectorEnv(t)

	move := func() models.Event {
		return testPayloadEvent("mousemove", "sess-1", map[string]any{
			"position": map[string]any{"x": 1, "y": 2},
		})
	}
	// 3 in the first batch, 2 in the second: the counter carries over, so the
	// 5th overall is the one sampled.
	env.post(t, env.site.ID, models.Payload{Events: []models.Event{move(), move(), move()}})
	rec := env.post(t, env.site.ID, models.Payload{Events: []models.Event{move(), move()}})

	var resp collectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.MouseEventsSampled)
}

func TestCollectMouseMoveWithoutPositionStoresNothing(t *testing.T) {
	env := newCollectorEnv(t)

	var events []models.Event
	for i := 0; i < 5; i++ {
		events = append(events, testPayloadEvent("mousemove", "sess-1", nil))
	}
	rec := env.post(t, env.site.ID, models.Payload{Events: events})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp collectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.MouseEventsSampled, "no coordinates, no heatmap point")

	hm, err := env.store.Heatmap(env.site.ID, "sess-1", "", 10)
	require.NoError(t, err)
	assert.Zero(t, hm.TotalPoints)

	// The counter still advanced: the 10th move overall is the next sample.
	events = nil
	for i := 0; i < 5; i++ {
		events = append(events, testPayloadEvent("mousemove", "sess-1", map[string]any{
			"position": map[string]any{"x": 42, "y": 24},
		}))
	}
	rec = env.post(t, env.site.ID, models.Payload{Events: events})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.MouseEventsSampled)
}

func TestCollectResolvesSiteFromAPIKey(t *testing.T) {
	env := newCollectorEnv(t)

	body, err := json.Marshal(models.Payload{
		Events: []models.Event{testPayloadEvent("pageview", "sess-1", nil)},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/analytics", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", env.site.APIKey)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	detail, err := env.store.SessionDetail(env.site.ID, "sess-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, detail.TotalEvents)
}

func TestCollectRejectsUnknownAPIKey(t *testing.T) {
	env := newCollectorEnv(t)

	body, err := json.Marshal(models.Payload{
		Events: []models.Event{testPayloadEvent("pageview", "sess-1", nil)},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/analytics", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "bogus-key")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectPageExitEndsSession(t *testing.T) {
	env := newCollectorEnv(t)

	rec := env.post(t, env.site.ID, models.Payload{
		Events: []models.Event{
			testPayloadEvent("pageview", "sess-1", nil),
			testPayloadEvent("page_exit", "sess-1", map[string]any{
				"timeOnPage":     45000,
				"engagementTime": 30000,
				"scrollDepth":    75,
			}),
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	detail, err := env.store.SessionDetail(env.site.ID, "sess-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, detail.Status)
	assert.Equal(t, int64(45000), detail.DurationMS)
	assert.Equal(t, int64(30000), detail.EngagementTimeMS)
	assert.Equal(t, 75, detail.FinalScrollDepth)
}

func TestCollectClampsStaleTimestamps(t *testing.T) {
	env := newCollectorEnv(t)

	ev := testPayloadEvent("pageview", "sess-1", nil)
	ev.Timestamp = time.Now().Add(-2 * time.Hour).UnixMilli()
	rec := env.post(t, env.site.ID, models.Payload{Events: []models.Event{ev}})
	require.Equal(t, http.StatusOK, rec.Code)

	detail, err := env.store.SessionDetail(env.site.ID, "sess-1", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, detail.Events, 1)
	assert.WithinDuration(t, time.Now().UTC(), detail.Events[0].Timestamp, time.Minute)
}

func TestStatsEndpoint(t *testing.T) {
	env := newCollectorEnv(t)

	env.post(t, env.site.ID, models.Payload{
		Events: []models.Event{
			testPayloadEvent("pageview", "sess-1", nil),
			testPayloadEvent("click", "sess-1", nil),
		},
	})

	rec := env.get(t, "/api/analytics/stats?site_id="+env.site.ID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stats models.SiteStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 2, stats.LiveEvents, "fresh events show up in the live count")
}

func TestStatsRequiresSiteID(t *testing.T) {
	env := newCollectorEnv(t)
	rec := env.get(t, "/api/analytics/stats")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsHidesForeignSites(t *testing.T) {
	env := newCollectorEnv(t)
	rec := env.get(t, "/intruder/stats?site_id="+env.site.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsEndpoint(t *testing.T) {
	env := newCollectorEnv(t)
	env.post(t, env.site.ID, models.Payload{
		Events: []models.Event{testPayloadEvent("pageview", "sess-1", nil)},
	})

	rec := env.get(t, "/api/analytics/sessions?site_id="+env.site.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var list models.SessionList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, env.site.ID, list.SiteID)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "sess-1", list.Sessions[0].SessionID)
}

func TestSessionEndpointNotFound(t *testing.T) {
	env := newCollectorEnv(t)
	rec := env.get(t, "/api/analytics/sessions/missing?site_id="+env.site.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeatmapEndpoint(t *testing.T) {
	env := newCollectorEnv(t)

	var events []models.Event
	for i := 0; i < 5; i++ {
		events = append(events, testPayloadEvent("mousemove", "sess-1", map[string]any{
			"position": map[string]any{"x": 12, "y": 24},
		}))
	}
	env.post(t, env.site.ID, models.Payload{Events: events})

	rec := env.get(t, "/api/analytics/heatmap/sess-1?site_id="+env.site.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var hm models.Heatmap
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hm))
	assert.Equal(t, 1, hm.TotalPoints)
	require.Len(t, hm.Points, 1)
	assert.Equal(t, 10, hm.Points[0].X, "points are snapped to the grid")
	assert.Equal(t, 20, hm.Points[0].Y)
}

func TestEventDataShaping(t *testing.T) {
	cases := []struct {
		name     string
		ev       models.Event
		wantKeys []string
	}{
		{
			name: "error keeps diagnostics",
			ev: models.Event{Type: "error", Fields: map[string]any{
				"message": "boom", "source": "app.js", "line": 1, "column": 2, "stack": "at x",
				"unrelated": true,
			}},
			wantKeys: []string{"message", "source", "line", "column", "stack"},
		},
		{
			name: "custom event gets its name",
			ev: models.Event{Type: "custom:signup", Fields: map[string]any{
				"custom": map[string]any{"plan": "pro"},
			}},
			wantKeys: []string{"custom", "eventName"},
		},
		{
			name:     "custom event without data still gets its name",
			ev:       models.Event{Type: "custom:ping"},
			wantKeys: []string{"eventName"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := eventData(&tc.ev)
			require.NotEmpty(t, raw)
			var data map[string]any
			require.NoError(t, json.Unmarshal([]byte(raw), &data))
			assert.Len(t, data, len(tc.wantKeys))
			for _, k := range tc.wantKeys {
				assert.Contains(t, data, k)
			}
		})
	}

	assert.Empty(t, eventData(&models.Event{Type: "pageview"}), "no fields, no payload")
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", extractClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", extractClientIP(req))
}
