package tracker

import (
	"encoding/json"
	"math/rand"
	"time"
)

// Session is the durable visitor/session record. IsNew is true only for the
// page load that created the session and is never persisted as true: a
// session written to the store and reloaded always comes back IsNew=false.
type Session struct {
	SessionID  string         `json:"sessionId"`
	VisitorID  string         `json:"visitorId"`
	StartedAt  int64          `json:"startedAt"`  // ms since epoch
	LastActive int64          `json:"lastActive"` // ms since epoch
	PageViews  int            `json:"pageViews"`
	UserID     string         `json:"userId,omitempty"`
	Traits     map[string]any `json:"traits,omitempty"`

	IsNew bool `json:"-"`
}

// loadOrCreate reads the session from the cookie store, synthesizing a fresh
// one when the value is absent, unparsable or structurally invalid. In all
// cases the page-view counter is incremented, the activity timestamp
// refreshed and the record written back, which also slides the expiry window.
func loadOrCreate(store CookieStore, name string, maxAge time.Duration, clock Clock, rng *rand.Rand) *Session {
	now := clock.Now().UnixMilli()
	s := readSession(store, name)
	if s == nil {
		s = &Session{
			SessionID: newToken(rng),
			VisitorID: newToken(rng),
			StartedAt: now,
			IsNew:     true,
		}
	}
	s.PageViews++
	s.LastActive = now
	persistSession(store, name, maxAge, s)
	return s
}

// readSession treats any corruption exactly like absence. It never fails.
func readSession(store CookieStore, name string) *Session {
	raw, ok := store.Get(name)
	if !ok || raw == "" {
		return nil
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil
	}
	if s.SessionID == "" || s.VisitorID == "" {
		return nil
	}
	return &s
}

func persistSession(store CookieStore, name string, maxAge time.Duration, s *Session) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	store.Set(name, string(raw), int(maxAge/time.Second))
}

const hexDigits = "0123456789abcdef"

// newToken generates a 36-character v4-UUID-shaped identifier. The randomness
// does not need to be cryptographically secure; these are correlation tokens,
// not secrets.
func newToken(rng *rand.Rand) string {
	b := make([]byte, 36)
	for i := range b {
		switch i {
		case 8, 13, 18, 23:
			b[i] = '-'
		case 14:
			b[i] = '4'
		case 19:
			// variant nibble: one of 8, 9, a, b
			b[i] = hexDigits[8+rng.Intn(4)]
		default:
			b[i] = hexDigits[rng.Intn(16)]
		}
	}
	return string(b)
}
