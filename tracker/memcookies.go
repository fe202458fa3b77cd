package tracker

import "sync"

// MemoryCookieStore is a CookieStore for embedded and test use. Expiry is
// honored lazily: values past their max-age read back as absent.
type MemoryCookieStore struct {
	Clock Clock

	mu      sync.Mutex
	values  map[string]string
	expires map[string]int64 // unix seconds, 0 = no expiry
}

func NewMemoryCookieStore(clock Clock) *MemoryCookieStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryCookieStore{
		Clock:   clock,
		values:  make(map[string]string),
		expires: make(map[string]int64),
	}
}

func (m *MemoryCookieStore) Get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	if !ok {
		return "", false
	}
	if exp := m.expires[name]; exp != 0 && m.Clock.Now().Unix() >= exp {
		delete(m.values, name)
		delete(m.expires, name)
		return "", false
	}
	return v, true
}

func (m *MemoryCookieStore) Set(name, value string, maxAge int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	if maxAge > 0 {
		m.expires[name] = m.Clock.Now().Unix() + int64(maxAge)
	} else {
		m.expires[name] = 0
	}
}
