package models

import "time"

// Session status values as reported by the query endpoints. "expired" is
// derived at read time from last_seen, never stored.
const (
	SessionStatusActive  = "active"
	SessionStatusEnded   = "ended"
	SessionStatusExpired = "expired"
)

// SessionMeta is the per-session aggregate row kept by the collector.
type SessionMeta struct {
	SiteID           string    `json:"site_id"`
	SessionID        string    `json:"session_id"`
	VisitorID        string    `json:"visitor_id"`
	UserAgent        string    `json:"user_agent,omitempty"`
	Language         string    `json:"language,omitempty"`
	Platform         string    `json:"platform,omitempty"`
	ScreenResolution string    `json:"screen_resolution,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	Status           string    `json:"status"`
	DurationMS       int64     `json:"duration_ms"`
	EngagementTimeMS int64     `json:"engagement_time_ms"`
	FinalScrollDepth int       `json:"final_scroll_depth"`
	EventCount       int       `json:"event_count"`
}

// StoredEvent is an event as persisted and returned by the session detail
// endpoint. EventData is the type-specific payload serialized as JSON.
type StoredEvent struct {
	EventID   string    `json:"event_id"`
	SiteID    string    `json:"site_id"`
	SessionID string    `json:"session_id"`
	VisitorID string    `json:"visitor_id"`
	EventType string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	PageURL   string    `json:"page_url"`
	PagePath  string    `json:"page_path"`
	PageTitle string    `json:"page_title,omitempty"`
	EventData string    `json:"data,omitempty"`
}

// SiteStats is the aggregate statistics response for one site.
type SiteStats struct {
	SiteID               string         `json:"site_id"`
	TotalEvents          int            `json:"total_events"`
	TotalSessions        int            `json:"total_sessions"`
	ActiveSessions       int            `json:"active_sessions"`
	EndedSessions        int            `json:"ended_sessions"`
	HeatmapPoints        int            `json:"heatmap_points"`
	AvgSessionDurationMS *int64         `json:"avg_session_duration_ms"`
	EventsByType         map[string]int `json:"events_by_type"`
	LiveEvents           int            `json:"live_events"`
}

// SessionList is the response of the session listing endpoint.
type SessionList struct {
	SiteID   string        `json:"site_id"`
	Sessions []SessionMeta `json:"sessions"`
}

// SessionDetail is one session's full record with derived fields.
type SessionDetail struct {
	SessionMeta
	TotalEvents   int            `json:"total_events"`
	HeatmapPoints int            `json:"heatmap_points"`
	EventsByType  map[string]int `json:"events_by_type"`
	PagesVisited  []string       `json:"pages_visited"`
	Events        []StoredEvent  `json:"events"`
}

// HeatmapPoint is one aggregated grid cell of mouse activity.
type HeatmapPoint struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Count int `json:"count"`
}

// Heatmap is the pre-aggregated heatmap response for a session.
type Heatmap struct {
	SessionID   string         `json:"session_id"`
	SiteID      string         `json:"site_id"`
	PageURL     string         `json:"page_url,omitempty"`
	TotalPoints int            `json:"total_points"`
	Points      []HeatmapPoint `json:"heatmap"`
}

// User is a dashboard account.
type User struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
