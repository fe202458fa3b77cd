package tracker

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"sitebeat/models"
)

// Transport is the send-and-forget boundary. A batch handed to it is
// considered sent; delivery is never confirmed and failures are swallowed by
// the engine.
type Transport interface {
	// Beacon attempts the fire-and-forget hand-off the platform guarantees to
	// deliver even during page teardown. It returns false when that mechanism
	// is unavailable, in which case the engine falls back to Post.
	Beacon(endpoint string, body []byte) bool
	// Post performs a keep-alive-style asynchronous request. Errors are
	// informational only; the engine never retries.
	Post(endpoint, siteID string, body []byte) error
}

// HTTPTransport delivers batches over plain HTTP. There is no beacon facility
// outside a browser, so Beacon always declines and Post carries the batch.
type HTTPTransport struct {
	Client *http.Client
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (t *HTTPTransport) Beacon(endpoint string, body []byte) bool {
	return false
}

func (t *HTTPTransport) Post(endpoint, siteID string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Site-ID", siteID)
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// flushLocked drains the queue and hands the batch to the transport. It is a
// guaranteed no-op on an empty queue, which makes concurrent trigger sources
// (size threshold, timer, page-hide, unload) mutually exclusive in effect:
// whichever runs first detaches the events, the rest see nothing to send.
// Callers must hold t.mu.
func (t *Tracker) flushLocked() {
	if len(t.queue) == 0 || t.cfg.SiteID == "" {
		return
	}
	events := t.queue
	t.queue = nil

	payload := models.Payload{
		Events: events,
		SiteID: t.cfg.SiteID,
		Meta:   t.page.Meta(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.log.Debug().Err(err).Msg("flush: marshal failed, batch dropped")
		return
	}
	t.log.Debug().Int("events", len(events)).Msg("flush: dispatching batch")

	if t.transport.Beacon(t.cfg.Endpoint, body) {
		return
	}
	endpoint, siteID := t.cfg.Endpoint, t.cfg.SiteID
	transport, log := t.transport, t.log
	go func() {
		if err := transport.Post(endpoint, siteID, body); err != nil {
			log.Debug().Err(err).Msg("flush: post failed, batch dropped")
		}
	}()
}

// Flush forces an immediate drain of any queued events.
func (t *Tracker) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
}
