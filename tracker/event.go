package tracker

import "sitebeat/models"

// newEventLocked builds a canonical event, or returns nil when no site id is
// configured. This is the single gate that disables the whole pipeline before
// activation. Page context is re-read here, never cached. Caller holds t.mu.
func (t *Tracker) newEventLocked(eventType string, extra map[string]any) *models.Event {
	if t.cfg.SiteID == "" || t.session == nil {
		t.log.Debug().Str("type", eventType).Msg("event dropped: no site id configured")
		return nil
	}
	w, h := t.page.ViewportSize()
	ev := models.Event{
		Type:      eventType,
		Timestamp: t.clock.Now().UnixMilli(),
		SessionID: t.session.SessionID,
		VisitorID: t.session.VisitorID,
		Page: models.Page{
			URL:      t.page.URL(),
			Path:     t.page.Path(),
			Title:    t.page.Title(),
			Referrer: t.page.Referrer(),
		},
		Viewport: models.Viewport{Width: w, Height: h},
	}
	if len(extra) > 0 {
		ev.Fields = make(map[string]any, len(extra))
		for k, v := range extra {
			ev.Fields[k] = v
		}
	}
	return &ev
}

// enqueueLocked appends an event and, when the queue reaches the batch size,
// triggers a flush synchronously before any further event is accepted.
func (t *Tracker) enqueueLocked(eventType string, extra map[string]any) {
	ev := t.newEventLocked(eventType, extra)
	if ev == nil {
		return
	}
	t.queue = append(t.queue, *ev)
	if len(t.queue) >= t.cfg.BatchSize {
		t.flushLocked()
	}
}
