// Package sites manages the registry of tracked websites: site ids, API
// keys, allowed origins and ownership, backed by a JSON metadata file. It
// also keeps a short live cache of recently collected events per site.
package sites

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitebeat/models"
)

type Manager struct {
	path     string
	data     *Data
	caches   map[string]*EventCache // per-site live caches
	dataMu   sync.RWMutex           // protects data
	cachesMu sync.RWMutex           // protects caches
}

type Data struct {
	Sites map[string]*Site `json:"sites"`
}

type Site struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	APIKey         string    `json:"api_key"`
	AllowedOrigins []string  `json:"allowed_origins,omitempty"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path: path,
		data: &Data{
			Sites: make(map[string]*Site),
		},
		caches: make(map[string]*EventCache),
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			if err := m.save(); err != nil {
				return nil, fmt.Errorf("create new sites file: %w", err)
			}
		} else {
			return nil, fmt.Errorf("load sites metadata: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &m.data)
}

func (m *Manager) save() error {
	// Accessed under dataMu by every mutating caller.
	data, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sites: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("write sites: %w", err)
	}
	return nil
}

// CreateSite registers a website for an owner. The site id is derived from
// the owner and domain so re-registering the same domain is rejected instead
// of silently duplicated.
func (m *Manager) CreateSite(ownerID, name, domain string, allowedOrigins []string) (*Site, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()

	hash := sha256.Sum256([]byte(ownerID + ":" + domain))
	id := fmt.Sprintf("%x", hash)[:12]

	if _, exists := m.data.Sites[id]; exists {
		return nil, fmt.Errorf("site for domain %s already exists (ID: %s)", domain, id)
	}

	apiKey, err := GenerateUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("unable to create API key: %w", err)
	}

	site := &Site{
		ID:             id,
		Name:           name,
		Domain:         domain,
		APIKey:         apiKey,
		AllowedOrigins: allowedOrigins,
		OwnerID:        ownerID,
		CreatedAt:      time.Now().UTC(),
	}
	m.data.Sites[id] = site

	if err := m.save(); err != nil {
		delete(m.data.Sites, id) // rollback on save failure
		return nil, fmt.Errorf("save site: %w", err)
	}
	return site, nil
}

func (m *Manager) GetSite(siteID string) (*Site, error) {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()

	site, exists := m.data.Sites[siteID]
	if !exists {
		return nil, fmt.Errorf("unknown site ID")
	}
	return site, nil
}

func (m *Manager) GetSiteByAPIKey(apiKey string) (*Site, error) {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()

	for _, site := range m.data.Sites {
		if site.APIKey == apiKey {
			return site, nil
		}
	}
	return nil, fmt.Errorf("invalid API key")
}

// ListSites returns the sites owned by ownerID.
func (m *Manager) ListSites(ownerID string) []*Site {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()

	sites := make([]*Site, 0)
	for _, site := range m.data.Sites {
		if site.OwnerID == ownerID {
			sites = append(sites, site)
		}
	}
	return sites
}

func (m *Manager) DeleteSite(ownerID, siteID string) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()

	site, exists := m.data.Sites[siteID]
	if !exists || site.OwnerID != ownerID {
		return fmt.Errorf("site not found")
	}
	delete(m.data.Sites, siteID)
	if err := m.save(); err != nil {
		m.data.Sites[siteID] = site // rollback on save failure
		return fmt.Errorf("save sites: %w", err)
	}
	return nil
}

// Owns reports whether ownerID owns siteID.
func (m *Manager) Owns(ownerID, siteID string) bool {
	m.dataMu.RLock()
	defer m.dataMu.RUnlock()

	site, exists := m.data.Sites[siteID]
	return exists && site.OwnerID == ownerID
}

// AddEvent feeds one collected event into the site's live cache.
func (m *Manager) AddEvent(siteID string, event *models.Event) {
	m.cachesMu.Lock()
	defer m.cachesMu.Unlock()

	if _, exists := m.caches[siteID]; !exists {
		m.caches[siteID] = NewEventCache()
	}
	m.caches[siteID].Add(event)
}

// LiveEventCount returns how many events the site received within the cache
// window starting at startMinutes (minutes since epoch).
func (m *Manager) LiveEventCount(siteID string, startMinutes int64) int {
	m.cachesMu.RLock()
	cache, exists := m.caches[siteID]
	m.cachesMu.RUnlock()

	if !exists {
		return 0
	}
	return cache.CountSince(startMinutes)
}

func GenerateUUIDv7() (string, error) {
	uuid, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return uuid.String(), nil
}
