package models

import (
	"encoding/json"
)

// Event type constants. Custom events carry a "custom:" prefix followed by the
// host-page-supplied name.
const (
	EventTypePageView        = "pageview"
	EventTypeClick           = "click"
	EventTypeMouseMove       = "mousemove"
	EventTypeScroll          = "scroll"
	EventTypeFormInteraction = "form_interaction"
	EventTypeVisibility      = "visibility"
	EventTypeError           = "error"
	EventTypePageExit        = "page_exit"
	EventTypeIdentify        = "identify"

	CustomEventPrefix = "custom:"
)

// Page is the page context snapshot taken at capture time.
type Page struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

// Viewport holds the visible dimensions at capture time.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Meta is the client metadata attached once per batch, not per event.
type Meta struct {
	UserAgent        string `json:"userAgent"`
	Language         string `json:"language"`
	Platform         string `json:"platform"`
	ScreenResolution string `json:"screenResolution"`
}

// Event is one captured occurrence. Type-specific payload fields (element,
// position, depth, ...) live in Fields and are flattened to the top level on
// the wire, matching what the collection endpoint expects.
type Event struct {
	Type      string   `json:"type"`
	Timestamp int64    `json:"timestamp"` // milliseconds since epoch
	SessionID string   `json:"sessionId"`
	VisitorID string   `json:"visitorId"`
	Page      Page     `json:"page"`
	Viewport  Viewport `json:"viewport"`

	Fields map[string]any `json:"-"`
}

// eventAlias avoids MarshalJSON recursion.
type eventAlias Event

func (e Event) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(eventAlias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Fields) == 0 {
		return base, nil
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	// Caller-supplied fields win on key collision.
	for k, v := range e.Fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var alias eventAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range []string{"type", "timestamp", "sessionId", "visitorId", "page", "viewport"} {
		delete(raw, known)
	}
	*e = Event(alias)
	if len(raw) > 0 {
		e.Fields = raw
	}
	return nil
}

// Payload is the batch body posted to the collection endpoint.
type Payload struct {
	Events []Event `json:"events"`
	SiteID string  `json:"site_id,omitempty"`
	Meta   Meta    `json:"meta"`
}
