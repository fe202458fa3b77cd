package sites

import (
	"sync"
	"time"

	"sitebeat/models"
)

const (
	CacheWindowMinutes = 30
)

// EventCache stores events in a m-minute circular buffer, with each bucket
// for one minute. It backs the live counters on the stats endpoint.
type EventCache struct {
	buckets      [CacheWindowMinutes][]models.Event
	currentIndex int
	lastMinute   time.Time
	mu           sync.RWMutex
}

// NewEventCache creates a new EventCache with advance routine.
func NewEventCache() *EventCache {
	now := time.Now().UTC().Truncate(time.Minute)
	cache := &EventCache{
		buckets:      [CacheWindowMinutes][]models.Event{},
		currentIndex: 0,
		lastMinute:   now,
	}
	go cache.advance()
	return cache
}

// Add adds an event to the appropriate minute bucket. Event timestamps are
// milliseconds since epoch.
func (c *EventCache) Add(event *models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	eventTime := time.UnixMilli(event.Timestamp).UTC().Truncate(time.Minute)
	if eventTime.Before(c.lastMinute.Add(-(CacheWindowMinutes - 1) * time.Minute)) {
		// Too old, discard
		return
	}
	if eventTime.After(c.lastMinute) {
		// Future event, add to current bucket
		eventTime = c.lastMinute
	}

	diffMinutes := int(c.lastMinute.Sub(eventTime) / time.Minute)
	index := (c.currentIndex - diffMinutes + CacheWindowMinutes) % CacheWindowMinutes
	c.buckets[index] = append(c.buckets[index], *event)
}

// EventsSince returns the cached events with timestamps at or after
// startMinutes (minutes since epoch).
func (c *EventCache) EventsSince(startMinutes int64) []models.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var events []models.Event
	cacheLastMinutes := toMinutesSinceEpoch(c.lastMinute)

	for i := 0; i < CacheWindowMinutes; i++ {
		bucketIndex := (c.currentIndex - i + CacheWindowMinutes) % CacheWindowMinutes
		bucketMinutes := cacheLastMinutes - int64(i)
		if bucketMinutes < startMinutes {
			continue
		}
		for _, event := range c.buckets[bucketIndex] {
			if event.Timestamp/60000 >= startMinutes {
				events = append(events, event)
			}
		}
	}
	return events
}

// CountSince counts cached events at or after startMinutes.
func (c *EventCache) CountSince(startMinutes int64) int {
	return len(c.EventsSince(startMinutes))
}

// advance shifts the buffer every minute to evict old data.
func (c *EventCache) advance() {
	for range time.Tick(time.Minute) {
		c.mu.Lock()
		c.currentIndex = (c.currentIndex + 1) % CacheWindowMinutes
		c.buckets[c.currentIndex] = []models.Event{}
		c.lastMinute = c.lastMinute.Add(time.Minute)
		c.mu.Unlock()
	}
}

func toMinutesSinceEpoch(t time.Time) int64 {
	return t.Unix() / 60
}

// MinutesSinceEpoch exposes the minute bucketing used by the cache window.
func MinutesSinceEpoch(t time.Time) int64 {
	return toMinutesSinceEpoch(t)
}
