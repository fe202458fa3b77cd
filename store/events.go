package store

import (
	"fmt"
	"time"

	"sitebeat/models"
)

// EventRecord is one enriched event ready for insertion.
type EventRecord struct {
	EventID        string
	SiteID         string
	SessionID      string
	VisitorID      string
	EventType      string
	Timestamp      time.Time
	PageURL        string
	PagePath       string
	PageTitle      string
	PageReferrer   string
	ViewportWidth  int
	ViewportHeight int
	EventData      string
}

// HeatmapRecord is one raw mouse position sample.
type HeatmapRecord struct {
	SiteID    string
	SessionID string
	PageURL   string
	X         int
	Y         int
	Count     int
	CreatedAt time.Time
}

func (r EventRecord) validate() error {
	if r.SiteID == "" {
		return fmt.Errorf("site_id cannot be empty")
	}
	if r.SessionID == "" {
		return fmt.Errorf("session_id cannot be empty")
	}
	if r.EventType == "" {
		return fmt.Errorf("event_type cannot be empty")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp must be set")
	}
	return nil
}

func (s *Store) InsertEvents(events []EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO analytics_events(
		event_id, site_id, session_id, visitor_id, event_type, timestamp,
		page_url, page_path, page_title, page_referrer,
		viewport_width, viewport_height, event_data, created_at
	) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for _, ev := range events {
		if err := ev.validate(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("invalid event: %w", err)
		}
		if _, err := stmt.Exec(
			ev.EventID, ev.SiteID, ev.SessionID, ev.VisitorID, ev.EventType, ev.Timestamp.UnixMilli(),
			ev.PageURL, ev.PagePath, ev.PageTitle, ev.PageReferrer,
			ev.ViewportWidth, ev.ViewportHeight, ev.EventData, now,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TouchSession creates the session aggregate on first sight and refreshes it
// on every later batch: last_seen advances and the event count accumulates.
func (s *Store) TouchSession(meta models.SessionMeta) error {
	_, err := s.db.Exec(`INSERT INTO session_meta(
		site_id, session_id, visitor_id, user_agent, language, platform,
		screen_resolution, first_seen, last_seen, status, duration_ms,
		engagement_time_ms, final_scroll_depth, event_count
	) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(site_id, session_id) DO UPDATE SET
		last_seen   = MAX(session_meta.last_seen, excluded.last_seen),
		event_count = session_meta.event_count + excluded.event_count`,
		meta.SiteID, meta.SessionID, meta.VisitorID, meta.UserAgent, meta.Language,
		meta.Platform, meta.ScreenResolution, meta.FirstSeen.UnixMilli(),
		meta.LastSeen.UnixMilli(), models.SessionStatusActive, meta.DurationMS,
		meta.EngagementTimeMS, meta.FinalScrollDepth, meta.EventCount,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// EndSession marks a session ended with the final numbers carried by its
// page_exit event.
func (s *Store) EndSession(siteID, sessionID string, durationMS, engagementMS int64, finalScrollDepth int) error {
	_, err := s.db.Exec(`UPDATE session_meta SET
		status = ?, duration_ms = ?, engagement_time_ms = ?, final_scroll_depth = ?
	WHERE site_id = ? AND session_id = ?`,
		models.SessionStatusEnded, durationMS, engagementMS, finalScrollDepth, siteID, sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (s *Store) InsertHeatmapPoints(points []HeatmapRecord) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO mouse_heatmap(
		site_id, session_id, page_url, x, y, count, created_at
	) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		count := p.Count
		if count <= 0 {
			count = 1
		}
		if _, err := stmt.Exec(p.SiteID, p.SessionID, p.PageURL, p.X, p.Y, count, p.CreatedAt.UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert heatmap point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
