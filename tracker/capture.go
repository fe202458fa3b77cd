package tracker

import (
	"strings"

	"sitebeat/models"
)

const maxStackTraceLen = 500

// recoverCapture absorbs a panic in one listener so it cannot disable the
// others or destabilize the host page.
func (t *Tracker) recoverCapture(listener string) {
	if r := recover(); r != nil {
		t.log.Debug().Str("listener", listener).Any("panic", r).Msg("capture recovered")
	}
}

// Click records a click with a structural descriptor of the element and
// pointer coordinates in viewport-relative (x, y) and document-relative
// (pageX, pageY) forms.
func (t *Tracker) Click(el Element, x, y, pageX, pageY int) {
	defer t.recoverCapture("click")
	desc := describeElement(el)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueueLocked(models.EventTypeClick, map[string]any{
		"element": desc,
		"position": map[string]any{
			"x": x, "y": y,
			"pageX": pageX, "pageY": pageY,
		},
	})
}

// MouseMove records a sampled pointer position. Signals arriving inside the
// sample interval are dropped entirely.
func (t *Tracker) MouseMove(x, y int) {
	defer t.recoverCapture("mousemove")
	if !t.mouseGate.Allow() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueueLocked(models.EventTypeMouseMove, map[string]any{
		"position": map[string]any{"x": x, "y": y},
	})
}

// Scroll notes a scroll signal. Depth is computed only after the configured
// settle delay with no further signal, and an event is recorded only when the
// new depth exceeds the running maximum by more than the margin, yielding a
// sparse monotonic trail of milestones.
func (t *Tracker) Scroll() {
	defer t.recoverCapture("scroll")
	t.scrollWait.Signal()
}

func (t *Tracker) scrollSettled() {
	defer t.recoverCapture("scroll")
	depth := scrollDepth(t.page.ScrollTop(), t.page.DocumentHeight(), t.viewportHeight())
	t.mu.Lock()
	defer t.mu.Unlock()
	if depth <= t.maxScrollDepth+t.cfg.ScrollDepthMargin {
		return
	}
	t.maxScrollDepth = depth
	t.enqueueLocked(models.EventTypeScroll, map[string]any{
		"depth": depth,
		"position": map[string]any{
			"scrollTop": t.page.ScrollTop(),
		},
	})
}

func (t *Tracker) viewportHeight() int {
	_, h := t.page.ViewportSize()
	return h
}

// scrollDepth returns the percentage of the scrollable distance covered, 0
// when the page does not scroll.
func scrollDepth(scrollTop, documentHeight, viewportHeight int) int {
	scrollable := documentHeight - viewportHeight
	if scrollable <= 0 {
		return 0
	}
	depth := scrollTop * 100 / scrollable
	if depth < 0 {
		return 0
	}
	if depth > 100 {
		return 100
	}
	return depth
}

var formTags = map[string]bool{"input": true, "textarea": true, "select": true}

// FormInteraction records a focus, blur or change signal on a form control.
// Other elements are ignored.
func (t *Tracker) FormInteraction(eventType string, el Element) {
	defer t.recoverCapture("form_interaction")
	if !formTags[strings.ToLower(el.TagName())] {
		return
	}
	desc := describeFormElement(el)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueueLocked(models.EventTypeFormInteraction, map[string]any{
		"eventType": eventType,
		"element":   desc,
	})
}

// VisibilityChange records the document's current visibility state. A
// transition to hidden also triggers a flush, the last reliable moment before
// a potential tab close.
func (t *Tracker) VisibilityChange() {
	defer t.recoverCapture("visibility")
	state := t.page.VisibilityState()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueueLocked(models.EventTypeVisibility, map[string]any{
		"state":  state,
		"hidden": state == VisibilityHidden,
	})
	if state == VisibilityHidden {
		t.flushLocked()
	}
}

// CaptureError records an uncaught host-page error. It must never raise and
// must not interfere with the page's own error handling.
func (t *Tracker) CaptureError(message, source string, line, column int, stack string) {
	defer t.recoverCapture("error")
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueueLocked(models.EventTypeError, map[string]any{
		"message": message,
		"source":  source,
		"line":    line,
		"column":  column,
		"stack":   truncate(stack, maxStackTraceLen),
	})
}

// Track records a host-page-defined event as custom:<name>.
func (t *Tracker) Track(name string, data map[string]any) {
	defer t.recoverCapture("custom")
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueueLocked(models.CustomEventPrefix+name, map[string]any{
		"custom": data,
	})
}

// Identify attaches a user identity to the session, persists it immediately,
// and records an identify event.
func (t *Tracker) Identify(userID string, traits map[string]any) {
	defer t.recoverCapture("identify")
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return
	}
	t.session.UserID = userID
	t.session.Traits = traits
	persistSession(t.cookies, t.cfg.CookieName, t.cfg.CookieMaxAge, t.session)
	t.enqueueLocked(models.EventTypeIdentify, map[string]any{
		"userId": userID,
		"traits": traits,
	})
}

// Unload handles page teardown: it synthesizes a final page_exit event with
// total time on page, accumulated engagement time and the last recorded
// scroll depth, then flushes whatever is queued.
func (t *Tracker) Unload() {
	defer t.recoverCapture("page_exit")
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.activated {
		return
	}
	now := t.clock.Now()
	t.enqueueLocked(models.EventTypePageExit, map[string]any{
		"timeOnPage":     now.Sub(t.loadedAt).Milliseconds(),
		"engagementTime": t.engagedMS,
		"scrollDepth":    t.maxScrollDepth,
	})
	t.flushLocked()
}
