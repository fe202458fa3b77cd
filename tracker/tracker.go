// Package tracker implements the client-side event capture, batching and
// session-continuity engine behind the tracking script: a durable
// cookie-backed identity store, an in-memory event queue, capture listeners
// that normalize raw page signals, and a flush controller that drains the
// queue on size, timer and page-lifecycle triggers.
//
// The engine never propagates failure to the host page. Missing
// configuration, corrupt cookies, listener panics and transport failures are
// all absorbed; debug logging is the only surfaced channel.
package tracker

import (
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sitebeat/models"
)

const engagementTick = time.Second

// Tracker is the composition root owning all engine state. Construct one per
// page context; there is no teardown path, listeners and timers live for the
// lifetime of the page.
type Tracker struct {
	page      Page
	cookies   CookieStore
	transport Transport
	clock     Clock
	rng       *rand.Rand
	log       zerolog.Logger

	mouseGate  *Throttle
	scrollWait *Debouncer

	mu        sync.Mutex
	cfg       Config
	activated bool
	session   *Session
	queue     []models.Event

	maxScrollDepth int
	engagedMS      int64
	lastTick       time.Time
	loadedAt       time.Time

	flushTimer  Timer
	engageTimer Timer
}

// New wires the engine against its environment. A clock of nil selects the
// system clock. If cfg carries a site id the engine activates immediately
// (the declarative path); otherwise it stays dormant until SetSiteID.
func New(cfg Config, page Page, cookies CookieStore, transport Transport, clock Clock) *Tracker {
	cfg.applyDefaults()
	if clock == nil {
		clock = SystemClock
	}
	t := &Tracker{
		page:      page,
		cookies:   cookies,
		transport: transport,
		clock:     clock,
		rng:       rand.New(rand.NewSource(clock.Now().UnixNano())),
		cfg:       cfg,
	}
	t.log = newLogger(cfg.Debug)
	t.mouseGate = NewThrottle(cfg.MouseSampleInterval, clock)
	t.scrollWait = NewDebouncer(cfg.ScrollSettleDelay, clock, t.scrollSettled)

	t.mu.Lock()
	if t.cfg.SiteID != "" {
		t.activateLocked()
	}
	t.mu.Unlock()
	return t
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.Disabled
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("component", "tracker").Logger().Level(level)
}

// activateLocked performs the one-time uninitialized -> active transition:
// load the session, start the periodic flush and engagement timers, record
// the initial page view. Guarded so later SetSiteID calls cannot re-attach.
func (t *Tracker) activateLocked() {
	if t.activated || t.cfg.SiteID == "" {
		return
	}
	t.activated = true
	t.session = loadOrCreate(t.cookies, t.cfg.CookieName, t.cfg.CookieMaxAge, t.clock, t.rng)
	now := t.clock.Now()
	t.loadedAt = now
	t.lastTick = now
	t.flushTimer = t.clock.AfterFunc(t.cfg.FlushInterval, t.flushTick)
	t.engageTimer = t.clock.AfterFunc(engagementTick, t.engageTick)

	t.log.Debug().
		Str("site_id", t.cfg.SiteID).
		Str("session_id", t.session.SessionID).
		Bool("is_new", t.session.IsNew).
		Msg("activated")

	t.enqueueLocked(models.EventTypePageView, map[string]any{
		"isNewVisitor":   t.session.IsNew,
		"pageViewNumber": t.session.PageViews,
	})
}

func (t *Tracker) flushTick() {
	t.mu.Lock()
	t.flushLocked()
	t.flushTimer = t.clock.AfterFunc(t.cfg.FlushInterval, t.flushTick)
	t.mu.Unlock()
}

// engageTick accumulates engaged time once per second, counting the delta
// since the previous tick only while the document is visible.
func (t *Tracker) engageTick() {
	t.mu.Lock()
	now := t.clock.Now()
	if t.page.VisibilityState() == VisibilityVisible {
		t.engagedMS += now.Sub(t.lastTick).Milliseconds()
	}
	t.lastTick = now
	t.engageTimer = t.clock.AfterFunc(engagementTick, t.engageTick)
	t.mu.Unlock()
}

// Active reports whether the engine has completed activation.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activated
}

// Session returns a read-only snapshot of the current session, or a zero
// value before activation.
func (t *Tracker) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return Session{}
	}
	snap := *t.session
	if t.session.Traits != nil {
		snap.Traits = make(map[string]any, len(t.session.Traits))
		for k, v := range t.session.Traits {
			snap.Traits[k] = v
		}
	}
	return snap
}

// SetSiteID sets the tenant identifier, activating the engine if it has not
// activated yet.
func (t *Tracker) SetSiteID(siteID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.SiteID = siteID
	t.activateLocked()
}

func (t *Tracker) SiteID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.SiteID
}

// SetEndpoint overrides the collection endpoint at runtime.
func (t *Tracker) SetEndpoint(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if endpoint != "" {
		t.cfg.Endpoint = endpoint
	}
}

// SetDebug toggles diagnostic logging.
func (t *Tracker) SetDebug(debug bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Debug = debug
	t.log = newLogger(debug)
}
