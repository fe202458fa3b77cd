package sites

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebeat/models"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.json")
	m, err := NewManager(path)
	require.NoError(t, err)
	return m, path
}

func TestCreateAndGetSite(t *testing.T) {
	m, _ := newTestManager(t)

	site, err := m.CreateSite("owner-1", "Example", "example.com", []string{"https://example.com"})
	require.NoError(t, err)
	assert.Len(t, site.ID, 12)
	assert.NotEmpty(t, site.APIKey)
	assert.Equal(t, "owner-1", site.OwnerID)

	got, err := m.GetSite(site.ID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", got.Domain)

	_, err = m.GetSite("nope")
	assert.Error(t, err)
}

func TestCreateSiteRejectsDuplicateDomain(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateSite("owner-1", "Example", "example.com", nil)
	require.NoError(t, err)

	_, err = m.CreateSite("owner-1", "Example again", "example.com", nil)
	assert.ErrorContains(t, err, "already exists")

	// A different owner may register the same domain.
	_, err = m.CreateSite("owner-2", "Example", "example.com", nil)
	assert.NoError(t, err)
}

func TestGetSiteByAPIKey(t *testing.T) {
	m, _ := newTestManager(t)
	site, err := m.CreateSite("owner-1", "Example", "example.com", nil)
	require.NoError(t, err)

	got, err := m.GetSiteByAPIKey(site.APIKey)
	require.NoError(t, err)
	assert.Equal(t, site.ID, got.ID)

	_, err = m.GetSiteByAPIKey("bogus")
	assert.Error(t, err)
}

func TestListSitesByOwner(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateSite("owner-1", "A", "a.com", nil)
	require.NoError(t, err)
	_, err = m.CreateSite("owner-1", "B", "b.com", nil)
	require.NoError(t, err)
	_, err = m.CreateSite("owner-2", "C", "c.com", nil)
	require.NoError(t, err)

	assert.Len(t, m.ListSites("owner-1"), 2)
	assert.Len(t, m.ListSites("owner-2"), 1)
	assert.Empty(t, m.ListSites("owner-3"))
}

func TestDeleteSiteChecksOwnership(t *testing.T) {
	m, _ := newTestManager(t)
	site, err := m.CreateSite("owner-1", "Example", "example.com", nil)
	require.NoError(t, err)

	assert.Error(t, m.DeleteSite("owner-2", site.ID), "only the owner may delete")
	require.NoError(t, m.DeleteSite("owner-1", site.ID))

	_, err = m.GetSite(site.ID)
	assert.Error(t, err)
}

func TestOwns(t *testing.T) {
	m, _ := newTestManager(t)
	site, err := m.CreateSite("owner-1", "Example", "example.com", nil)
	require.NoError(t, err)

	assert.True(t, m.Owns("owner-1", site.ID))
	assert.False(t, m.Owns("owner-2", site.ID))
	assert.False(t, m.Owns("owner-1", "missing"))
}

func TestManagerPersistsAcrossReload(t *testing.T) {
	m, path := newTestManager(t)
	site, err := m.CreateSite("owner-1", "Example", "example.com", []string{"https://example.com"})
	require.NoError(t, err)

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	got, err := reloaded.GetSite(site.ID)
	require.NoError(t, err)
	assert.Equal(t, site.APIKey, got.APIKey)
	assert.Equal(t, []string{"https://example.com"}, got.AllowedOrigins)
}

func TestLiveEventCount(t *testing.T) {
	m, _ := newTestManager(t)
	site, err := m.CreateSite("owner-1", "Example", "example.com", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		m.AddEvent(site.ID, &models.Event{Type: "pageview", Timestamp: now.UnixMilli()})
	}

	since := MinutesSinceEpoch(now.Add(-30 * time.Minute))
	assert.Equal(t, 3, m.LiveEventCount(site.ID, since))
	assert.Equal(t, 0, m.LiveEventCount("other-site", since))
}

func TestGenerateUUIDv7(t *testing.T) {
	a, err := GenerateUUIDv7()
	require.NoError(t, err)
	b, err := GenerateUUIDv7()
	require.NoError(t, err)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
