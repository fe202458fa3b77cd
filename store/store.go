// Package store persists analytics events, session aggregates, heatmap
// points and dashboard users in an embedded SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(databasePath string) (*Store, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS analytics_events(
	  id              INTEGER PRIMARY KEY,
	  event_id        TEXT    NOT NULL,
	  site_id         TEXT    NOT NULL,
	  session_id      TEXT    NOT NULL,
	  visitor_id      TEXT    NOT NULL,
	  event_type      TEXT    NOT NULL,
	  timestamp       INTEGER NOT NULL,
	  page_url        TEXT    NOT NULL,
	  page_path       TEXT    NOT NULL,
	  page_title      TEXT    NOT NULL DEFAULT '',
	  page_referrer   TEXT    NOT NULL DEFAULT '',
	  viewport_width  INTEGER NOT NULL DEFAULT 0,
	  viewport_height INTEGER NOT NULL DEFAULT 0,
	  event_data      TEXT    NOT NULL DEFAULT '',
	  created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_site_ts ON analytics_events(site_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_session ON analytics_events(site_id, session_id);

	CREATE TABLE IF NOT EXISTS session_meta(
	  site_id            TEXT    NOT NULL,
	  session_id         TEXT    NOT NULL,
	  visitor_id         TEXT    NOT NULL,
	  user_agent         TEXT    NOT NULL DEFAULT '',
	  language           TEXT    NOT NULL DEFAULT '',
	  platform           TEXT    NOT NULL DEFAULT '',
	  screen_resolution  TEXT    NOT NULL DEFAULT '',
	  first_seen         INTEGER NOT NULL,
	  last_seen          INTEGER NOT NULL,
	  status             TEXT    NOT NULL DEFAULT 'active',
	  duration_ms        INTEGER NOT NULL DEFAULT 0,
	  engagement_time_ms INTEGER NOT NULL DEFAULT 0,
	  final_scroll_depth INTEGER NOT NULL DEFAULT 0,
	  event_count        INTEGER NOT NULL DEFAULT 0,
	  PRIMARY KEY (site_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON session_meta(site_id, last_seen);

	CREATE TABLE IF NOT EXISTS mouse_heatmap(
	  id         INTEGER PRIMARY KEY,
	  site_id    TEXT    NOT NULL,
	  session_id TEXT    NOT NULL,
	  page_url   TEXT    NOT NULL,
	  x          INTEGER NOT NULL,
	  y          INTEGER NOT NULL,
	  count      INTEGER NOT NULL DEFAULT 1,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_heatmap_session ON mouse_heatmap(site_id, session_id);

	CREATE TABLE IF NOT EXISTS users(
	  user_id       TEXT    PRIMARY KEY,
	  email         TEXT    NOT NULL UNIQUE,
	  name          TEXT    NOT NULL DEFAULT '',
	  password_hash TEXT    NOT NULL,
	  created_at    INTEGER NOT NULL
	);
	`)
	if err != nil {
		return fmt.Errorf("create database tables: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
