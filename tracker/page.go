package tracker

import "sitebeat/models"

// Document visibility states.
const (
	VisibilityVisible = "visible"
	VisibilityHidden  = "hidden"
)

// Page is the engine's view of the host page. Page context is re-read on
// every capture, never cached, so navigation within a page lifetime is
// reflected in subsequent events.
type Page interface {
	URL() string
	Path() string
	Title() string
	Referrer() string
	ViewportSize() (width, height int)
	VisibilityState() string
	// ScrollTop is the vertical scroll offset in pixels.
	ScrollTop() int
	// DocumentHeight is the full scrollable height of the document in pixels.
	DocumentHeight() int
	Meta() models.Meta
}

// CookieStore persists the visitor/session record across page loads. Set
// applies path "/" and a lax cross-site policy; expiry is enforced by the
// store via maxAge, not by the engine.
type CookieStore interface {
	Get(name string) (value string, ok bool)
	Set(name, value string, maxAge int) // maxAge in seconds
}
