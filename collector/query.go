package collector

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sitebeat/auth"
	"sitebeat/sites"
	"sitebeat/store"
)

// liveWindowMinutes is how far back the in-memory cache is consulted for the
// live event count on the stats endpoint.
const liveWindowMinutes = 30

// Stats handles GET /api/analytics/stats?site_id=...
func (c *Collector) Stats(w http.ResponseWriter, r *http.Request) {
	siteID, ok := c.authorizedSite(w, r)
	if !ok {
		return
	}

	stats, err := c.store.SiteStats(siteID)
	if err != nil {
		c.log.Error().Err(err).Str("site_id", siteID).Msg("stats query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	since := sites.MinutesSinceEpoch(time.Now().Add(-liveWindowMinutes * time.Minute))
	stats.LiveEvents = c.sites.LiveEventCount(siteID, since)

	respondJSON(w, http.StatusOK, stats)
}

// Sessions handles GET /api/analytics/sessions?site_id=...&status=...&limit=...
func (c *Collector) Sessions(w http.ResponseWriter, r *http.Request) {
	siteID, ok := c.authorizedSite(w, r)
	if !ok {
		return
	}

	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := c.store.ListSessions(siteID, status, limit, time.Now().UTC())
	if err != nil {
		c.log.Error().Err(err).Str("site_id", siteID).Msg("session list query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"site_id":  siteID,
		"sessions": sessions,
	})
}

// Session handles GET /api/analytics/sessions/{sessionID}?site_id=...
func (c *Collector) Session(w http.ResponseWriter, r *http.Request) {
	siteID, ok := c.authorizedSite(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	detail, err := c.store.SessionDetail(siteID, sessionID, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("session detail query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// SessionHeatmap handles GET /api/analytics/heatmap/{sessionID}?site_id=...&page_url=...
func (c *Collector) SessionHeatmap(w http.ResponseWriter, r *http.Request) {
	siteID, ok := c.authorizedSite(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	pageURL := r.URL.Query().Get("page_url")
	bucket, _ := strconv.Atoi(r.URL.Query().Get("bucket"))

	hm, err := c.store.Heatmap(siteID, sessionID, pageURL, bucket)
	if err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("heatmap query failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, hm)
}

// authorizedSite resolves the site_id query parameter and checks that the
// authenticated user owns the site.
func (c *Collector) authorizedSite(w http.ResponseWriter, r *http.Request) (string, bool) {
	siteID := r.URL.Query().Get("site_id")
	if siteID == "" {
		http.Error(w, "site_id query parameter is required", http.StatusBadRequest)
		return "", false
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if !c.sites.Owns(userID, siteID) {
		// 404 rather than 403 so site ids cannot be probed.
		http.Error(w, "Website not found", http.StatusNotFound)
		return "", false
	}
	return siteID, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
