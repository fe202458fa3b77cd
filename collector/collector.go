// Package collector ingests batched analytics payloads from the tracking
// script and serves the aggregate query endpoints behind the dashboard.
package collector

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sitebeat/models"
	"sitebeat/sites"
	"sitebeat/store"
)

const (
	// MaxTimestampDrift is the maximum allowed difference between event
	// timestamp and server time. Events outside this range are corrected to
	// server time.
	MaxTimestampDrift = 5 * time.Minute

	// MouseSampleRate keeps every Nth mousemove per session for the heatmap
	// and discards the rest.
	MouseSampleRate = 5
)

type Collector struct {
	sites *sites.Manager
	store *store.Store
	log   zerolog.Logger

	mu             sync.Mutex
	sampleCounters map[string]int // per-session mousemove counters
}

func New(siteMgr *sites.Manager, st *store.Store, log zerolog.Logger) *Collector {
	return &Collector{
		sites:          siteMgr,
		store:          st,
		log:            log.With().Str("component", "collector").Logger(),
		sampleCounters: make(map[string]int),
	}
}

// Collect handles POST /api/analytics: one batched payload from the tracking
// script. The site id comes from the X-Site-ID header or the payload body.
func (c *Collector) Collect(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	var payload models.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		c.log.Warn().Err(err).Str("remote", clientIP).Msg("collect: failed to decode payload")
		http.Error(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	siteID := r.Header.Get("X-Site-ID")
	if siteID == "" {
		siteID = payload.SiteID
	}
	if siteID == "" {
		// The API key is the server-to-server credential; it resolves the
		// site when no site id accompanies the batch.
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			site, err := c.sites.GetSiteByAPIKey(apiKey)
			if err != nil {
				c.log.Warn().Str("remote", clientIP).Msg("collect: invalid API key")
				http.Error(w, "Invalid API key", http.StatusNotFound)
				return
			}
			siteID = site.ID
		}
	}
	if siteID == "" {
		http.Error(w, "site_id is required. Pass as X-Site-ID header, in payload, or via X-API-Key.", http.StatusBadRequest)
		return
	}
	if _, err := c.sites.GetSite(siteID); err != nil {
		c.log.Warn().Str("site_id", siteID).Str("remote", clientIP).Msg("collect: unknown site id")
		http.Error(w, "Invalid site_id", http.StatusNotFound)
		return
	}

	meta := payload.Meta
	if meta.UserAgent == "" {
		meta.UserAgent = r.UserAgent()
	}

	now := time.Now().UTC()
	var records []store.EventRecord
	var heatmap []store.HeatmapRecord
	sessionCounts := make(map[string]int)
	sessionVisitors := make(map[string]string)
	mouseSampled := 0

	for _, ev := range payload.Events {
		sessionVisitors[ev.SessionID] = ev.VisitorID

		if ev.Type == models.EventTypeMouseMove {
			if point, ok := c.sampleMouseMove(siteID, &ev, now); ok {
				heatmap = append(heatmap, point)
				mouseSampled++
			}
			continue
		}

		records = append(records, store.EventRecord{
			EventID:        uuid.Must(uuid.NewV7()).String(),
			SiteID:         siteID,
			SessionID:      ev.SessionID,
			VisitorID:      ev.VisitorID,
			EventType:      ev.Type,
			Timestamp:      clampTimestamp(ev.Timestamp, now, c.log),
			PageURL:        ev.Page.URL,
			PagePath:       ev.Page.Path,
			PageTitle:      ev.Page.Title,
			PageReferrer:   ev.Page.Referrer,
			ViewportWidth:  ev.Viewport.Width,
			ViewportHeight: ev.Viewport.Height,
			EventData:      eventData(&ev),
		})
		sessionCounts[ev.SessionID]++
		c.sites.AddEvent(siteID, &ev)
	}

	for sessionID, count := range sessionCounts {
		err := c.store.TouchSession(models.SessionMeta{
			SiteID:           siteID,
			SessionID:        sessionID,
			VisitorID:        sessionVisitors[sessionID],
			UserAgent:        meta.UserAgent,
			Language:         meta.Language,
			Platform:         meta.Platform,
			ScreenResolution: meta.ScreenResolution,
			FirstSeen:        now,
			LastSeen:         now,
			EventCount:       count,
		})
		if err != nil {
			c.log.Error().Err(err).Str("site_id", siteID).Str("session_id", sessionID).
				Msg("collect: session upsert failed")
			http.Error(w, "Failed to store events", http.StatusInternalServerError)
			return
		}
	}

	if err := c.store.InsertEvents(records); err != nil {
		c.log.Error().Err(err).Str("site_id", siteID).Msg("collect: event insert failed")
		http.Error(w, "Failed to store events", http.StatusInternalServerError)
		return
	}
	if err := c.store.InsertHeatmapPoints(heatmap); err != nil {
		c.log.Error().Err(err).Str("site_id", siteID).Msg("collect: heatmap insert failed")
		http.Error(w, "Failed to store events", http.StatusInternalServerError)
		return
	}

	// page_exit closes the session with its final numbers.
	for _, ev := range payload.Events {
		if ev.Type != models.EventTypePageExit {
			continue
		}
		err := c.store.EndSession(siteID, ev.SessionID,
			fieldInt64(ev.Fields, "timeOnPage"),
			fieldInt64(ev.Fields, "engagementTime"),
			int(fieldInt64(ev.Fields, "scrollDepth")))
		if err != nil {
			c.log.Error().Err(err).Str("session_id", ev.SessionID).Msg("collect: end session failed")
		}
	}

	c.log.Info().Str("site_id", siteID).Str("remote", clientIP).
		Int("events_stored", len(records)).Int("mouse_events_sampled", mouseSampled).
		Msg("batch collected")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":               "success",
		"events_stored":        len(records),
		"mouse_events_sampled": mouseSampled,
	})
}

// sampleMouseMove keeps every MouseSampleRate-th mousemove of a session as a
// heatmap point; all others are dropped. A sampled move without coordinates
// still advances the counter but stores nothing.
func (c *Collector) sampleMouseMove(siteID string, ev *models.Event, now time.Time) (store.HeatmapRecord, bool) {
	c.mu.Lock()
	c.sampleCounters[ev.SessionID]++
	keep := c.sampleCounters[ev.SessionID]%MouseSampleRate == 0
	c.mu.Unlock()
	if !keep {
		return store.HeatmapRecord{}, false
	}

	position, ok := ev.Fields["position"].(map[string]any)
	if !ok {
		return store.HeatmapRecord{}, false
	}
	return store.HeatmapRecord{
		SiteID:    siteID,
		SessionID: ev.SessionID,
		PageURL:   ev.Page.URL,
		X:         int(fieldInt64(position, "x")),
		Y:         int(fieldInt64(position, "y")),
		Count:     1,
		CreatedAt: now,
	}, true
}

// clampTimestamp corrects unreasonable client timestamps to server time.
func clampTimestamp(timestampMS int64, serverNow time.Time, log zerolog.Logger) time.Time {
	if timestampMS == 0 {
		return serverNow
	}
	ts := time.UnixMilli(timestampMS).UTC()
	drift := ts.Sub(serverNow)
	if drift > MaxTimestampDrift || drift < -MaxTimestampDrift {
		log.Debug().Dur("drift", drift).Time("original", ts).
			Msg("collect: timestamp out of range, corrected to server time")
		return serverNow
	}
	return ts
}

// eventData shapes the type-specific payload persisted alongside the event.
func eventData(ev *models.Event) string {
	var data map[string]any
	switch {
	case ev.Type == models.EventTypeClick:
		data = pick(ev.Fields, "element", "position")
	case ev.Type == models.EventTypeScroll:
		data = pick(ev.Fields, "depth", "position")
	case ev.Type == models.EventTypeFormInteraction:
		data = pick(ev.Fields, "eventType", "element")
	case ev.Type == models.EventTypeVisibility:
		data = pick(ev.Fields, "state", "hidden")
	case ev.Type == models.EventTypeError:
		data = pick(ev.Fields, "message", "source", "line", "column", "stack")
	case ev.Type == models.EventTypePageExit:
		data = pick(ev.Fields, "timeOnPage", "engagementTime", "scrollDepth")
	case ev.Type == models.EventTypeIdentify:
		data = pick(ev.Fields, "userId", "traits")
	case ev.Type == models.EventTypePageView:
		data = pick(ev.Fields, "isNewVisitor", "pageViewNumber")
	case strings.HasPrefix(ev.Type, models.CustomEventPrefix):
		data = pick(ev.Fields, "custom")
		if data == nil {
			data = make(map[string]any)
		}
		data["eventName"] = strings.TrimPrefix(ev.Type, models.CustomEventPrefix)
	}
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(raw)
}

func pick(fields map[string]any, keys ...string) map[string]any {
	var out map[string]any
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if out == nil {
				out = make(map[string]any, len(keys))
			}
			out[k] = v
		}
	}
	return out
}

func fieldInt64(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

func extractClientIP(r *http.Request) string {
	// Check X-Forwarded-For
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
