package tracker

import (
	"strconv"
	"time"
)

// Defaults for the engine's policy knobs. The scroll margin and mouse sample
// interval are configurable but keep the product defaults.
const (
	DefaultEndpoint            = "/api/analytics"
	DefaultBatchSize           = 10
	DefaultFlushInterval       = 5 * time.Second
	DefaultCookieName          = "_sb_session"
	DefaultCookieMaxAge        = 30 * 24 * time.Hour
	DefaultMouseSampleInterval = 100 * time.Millisecond
	DefaultScrollSettleDelay   = 150 * time.Millisecond
	DefaultScrollDepthMargin   = 10 // percentage points
)

// Config holds the engine-lifetime settings. An empty SiteID leaves the
// engine dormant: no events are created until SetSiteID activates it.
type Config struct {
	SiteID              string
	Endpoint            string
	BatchSize           int
	FlushInterval       time.Duration
	CookieName          string
	CookieMaxAge        time.Duration
	MouseSampleInterval time.Duration
	ScrollSettleDelay   time.Duration
	ScrollDepthMargin   int
	Debug               bool
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.CookieMaxAge <= 0 {
		c.CookieMaxAge = DefaultCookieMaxAge
	}
	if c.MouseSampleInterval <= 0 {
		c.MouseSampleInterval = DefaultMouseSampleInterval
	}
	if c.ScrollSettleDelay <= 0 {
		c.ScrollSettleDelay = DefaultScrollSettleDelay
	}
	if c.ScrollDepthMargin <= 0 {
		c.ScrollDepthMargin = DefaultScrollDepthMargin
	}
}

// ConfigFromAttributes builds a Config from script-tag attributes, the
// declarative activation path. Recognized keys: data-site-id, data-endpoint,
// data-debug ("true"), data-batch-size.
func ConfigFromAttributes(attrs map[string]string) Config {
	cfg := Config{
		SiteID:   attrs["data-site-id"],
		Endpoint: attrs["data-endpoint"],
		Debug:    attrs["data-debug"] == "true",
	}
	if v := attrs["data-batch-size"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	return cfg
}
