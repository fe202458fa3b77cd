package store

import (
	"database/sql"
	"fmt"
	"time"

	"sitebeat/models"
)

// sessionExpiry is how long a session may stay quiet before it reads back as
// expired. Expiry is derived at query time, never written.
const sessionExpiry = 30 * time.Minute

func deriveStatus(status string, lastSeen, now time.Time) string {
	if status == models.SessionStatusActive && now.Sub(lastSeen) > sessionExpiry {
		return models.SessionStatusExpired
	}
	return status
}

func (s *Store) SiteStats(siteID string) (*models.SiteStats, error) {
	stats := &models.SiteStats{
		SiteID:       siteID,
		EventsByType: make(map[string]int),
	}

	row := s.db.QueryRow(`SELECT COUNT(*) FROM analytics_events WHERE site_id = ?`, siteID)
	if err := row.Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	row = s.db.QueryRow(`SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'ended' THEN 1 ELSE 0 END), 0)
	FROM session_meta WHERE site_id = ?`, siteID)
	if err := row.Scan(&stats.TotalSessions, &stats.ActiveSessions, &stats.EndedSessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	row = s.db.QueryRow(`SELECT COUNT(*) FROM mouse_heatmap WHERE site_id = ?`, siteID)
	if err := row.Scan(&stats.HeatmapPoints); err != nil {
		return nil, fmt.Errorf("count heatmap points: %w", err)
	}

	var avg sql.NullFloat64
	row = s.db.QueryRow(`SELECT AVG(duration_ms) FROM session_meta
		WHERE site_id = ? AND status = 'ended' AND duration_ms > 0`, siteID)
	if err := row.Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		v := int64(avg.Float64)
		stats.AvgSessionDurationMS = &v
	}

	rows, err := s.db.Query(`SELECT event_type, COUNT(*) FROM analytics_events
		WHERE site_id = ? GROUP BY event_type`, siteID)
	if err != nil {
		return nil, fmt.Errorf("events by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event type count: %w", err)
		}
		stats.EventsByType[eventType] = count
	}
	return stats, rows.Err()
}

// ListSessions returns sessions most recent first. A status filter matches
// the derived status, so "expired" selects quiet active sessions and
// "active" excludes them. The filter is part of the query, so the limit
// applies to matching sessions, not to the most recent rows overall.
func (s *Store) ListSessions(siteID, status string, limit int, now time.Time) ([]models.SessionMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT
		session_id, visitor_id, user_agent, language, platform, screen_resolution,
		first_seen, last_seen, status, duration_ms, engagement_time_ms,
		final_scroll_depth, event_count
	FROM session_meta WHERE site_id = ?`
	args := []any{siteID}

	cutoff := now.Add(-sessionExpiry).UnixMilli()
	switch status {
	case "":
	case models.SessionStatusActive:
		query += ` AND status = ? AND last_seen > ?`
		args = append(args, models.SessionStatusActive, cutoff)
	case models.SessionStatusExpired:
		query += ` AND status = ? AND last_seen <= ?`
		args = append(args, models.SessionStatusActive, cutoff)
	default:
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY last_seen DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.SessionMeta, 0)
	for rows.Next() {
		meta, err := scanSessionMeta(rows, siteID, now)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, meta)
	}
	return sessions, rows.Err()
}

func scanSessionMeta(rows *sql.Rows, siteID string, now time.Time) (models.SessionMeta, error) {
	var meta models.SessionMeta
	var firstSeen, lastSeen int64
	if err := rows.Scan(
		&meta.SessionID, &meta.VisitorID, &meta.UserAgent, &meta.Language,
		&meta.Platform, &meta.ScreenResolution, &firstSeen, &lastSeen,
		&meta.Status, &meta.DurationMS, &meta.EngagementTimeMS,
		&meta.FinalScrollDepth, &meta.EventCount,
	); err != nil {
		return meta, fmt.Errorf("scan session: %w", err)
	}
	meta.SiteID = siteID
	meta.FirstSeen = time.UnixMilli(firstSeen).UTC()
	meta.LastSeen = time.UnixMilli(lastSeen).UTC()
	meta.Status = deriveStatus(meta.Status, meta.LastSeen, now)
	return meta, nil
}

func (s *Store) SessionDetail(siteID, sessionID string, now time.Time) (*models.SessionDetail, error) {
	row := s.db.QueryRow(`SELECT
		visitor_id, user_agent, language, platform, screen_resolution,
		first_seen, last_seen, status, duration_ms, engagement_time_ms,
		final_scroll_depth, event_count
	FROM session_meta WHERE site_id = ? AND session_id = ?`, siteID, sessionID)

	detail := &models.SessionDetail{}
	var firstSeen, lastSeen int64
	err := row.Scan(
		&detail.VisitorID, &detail.UserAgent, &detail.Language, &detail.Platform,
		&detail.ScreenResolution, &firstSeen, &lastSeen, &detail.Status,
		&detail.DurationMS, &detail.EngagementTimeMS, &detail.FinalScrollDepth,
		&detail.EventCount,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	detail.SiteID = siteID
	detail.SessionID = sessionID
	detail.FirstSeen = time.UnixMilli(firstSeen).UTC()
	detail.LastSeen = time.UnixMilli(lastSeen).UTC()
	detail.Status = deriveStatus(detail.Status, detail.LastSeen, now)
	detail.EventsByType = make(map[string]int)
	detail.PagesVisited = make([]string, 0)
	detail.Events = make([]models.StoredEvent, 0)

	rows, err := s.db.Query(`SELECT event_id, visitor_id, event_type, timestamp,
		page_url, page_path, page_title, event_data
	FROM analytics_events WHERE site_id = ? AND session_id = ?
	ORDER BY timestamp ASC`, siteID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session events: %w", err)
	}
	defer rows.Close()

	pagesSeen := make(map[string]bool)
	for rows.Next() {
		var ev models.StoredEvent
		var ts int64
		if err := rows.Scan(&ev.EventID, &ev.VisitorID, &ev.EventType, &ts,
			&ev.PageURL, &ev.PagePath, &ev.PageTitle, &ev.EventData); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.SiteID = siteID
		ev.SessionID = sessionID
		ev.Timestamp = time.UnixMilli(ts).UTC()
		detail.Events = append(detail.Events, ev)
		detail.EventsByType[ev.EventType]++
		if !pagesSeen[ev.PageURL] {
			pagesSeen[ev.PageURL] = true
			detail.PagesVisited = append(detail.PagesVisited, ev.PageURL)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	detail.TotalEvents = len(detail.Events)

	row = s.db.QueryRow(`SELECT COUNT(*) FROM mouse_heatmap
		WHERE site_id = ? AND session_id = ?`, siteID, sessionID)
	if err := row.Scan(&detail.HeatmapPoints); err != nil {
		return nil, fmt.Errorf("count heatmap points: %w", err)
	}
	return detail, nil
}

// Heatmap aggregates a session's raw mouse samples into a grid of bucketSize
// pixels per cell.
func (s *Store) Heatmap(siteID, sessionID, pageURL string, bucketSize int) (*models.Heatmap, error) {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	query := `SELECT x, y, count FROM mouse_heatmap WHERE site_id = ? AND session_id = ?`
	args := []any{siteID, sessionID}
	if pageURL != "" {
		query += ` AND page_url = ?`
		args = append(args, pageURL)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load heatmap points: %w", err)
	}
	defer rows.Close()

	type cell struct{ x, y int }
	aggregated := make(map[cell]int)
	total := 0
	for rows.Next() {
		var x, y, count int
		if err := rows.Scan(&x, &y, &count); err != nil {
			return nil, fmt.Errorf("scan heatmap point: %w", err)
		}
		total++
		c := cell{x: (x / bucketSize) * bucketSize, y: (y / bucketSize) * bucketSize}
		aggregated[c] += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hm := &models.Heatmap{
		SessionID:   sessionID,
		SiteID:      siteID,
		PageURL:     pageURL,
		TotalPoints: total,
		Points:      make([]models.HeatmapPoint, 0, len(aggregated)),
	}
	for c, count := range aggregated {
		hm.Points = append(hm.Points, models.HeatmapPoint{X: c.x, Y: c.y, Count: count})
	}
	return hm, nil
}
