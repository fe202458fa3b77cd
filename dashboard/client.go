// Package dashboard is a typed HTTP client for the analytics query API. It
// holds the bearer token pair and refreshes the access token transparently
// when a request comes back 401.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sitebeat/auth"
	"sitebeat/models"
)

type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	access  string
	refresh string
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetTokens installs a token pair obtained out of band, e.g. from a stored
// session.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	c.access = access
	c.refresh = refresh
	c.mu.Unlock()
}

// Login exchanges credentials for a token pair and installs it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	var pair auth.TokenPair
	if err := c.postJSON(ctx, "/auth/login", body, &pair); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.SetTokens(pair.AccessToken, pair.RefreshToken)
	return nil
}

func (c *Client) Stats(ctx context.Context, siteID string) (*models.SiteStats, error) {
	q := url.Values{"site_id": {siteID}}
	var stats models.SiteStats
	if err := c.getJSON(ctx, "/api/analytics/stats", q, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) Sessions(ctx context.Context, siteID, status string, limit int) (*models.SessionList, error) {
	q := url.Values{"site_id": {siteID}}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var list models.SessionList
	if err := c.getJSON(ctx, "/api/analytics/sessions", q, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) Session(ctx context.Context, siteID, sessionID string) (*models.SessionDetail, error) {
	q := url.Values{"site_id": {siteID}}
	var detail models.SessionDetail
	if err := c.getJSON(ctx, "/api/analytics/sessions/"+url.PathEscape(sessionID), q, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) Heatmap(ctx context.Context, siteID, sessionID, pageURL string) (*models.Heatmap, error) {
	q := url.Values{"site_id": {siteID}}
	if pageURL != "" {
		q.Set("page_url", pageURL)
	}
	var hm models.Heatmap
	if err := c.getJSON(ctx, "/api/analytics/heatmap/"+url.PathEscape(sessionID), q, &hm); err != nil {
		return nil, err
	}
	return &hm, nil
}

// getJSON performs an authenticated GET. On a 401 it refreshes the access
// token and retries exactly once.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	status, err := c.doGet(ctx, path, query, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := c.refreshTokens(ctx); err != nil {
			return err
		}
		status, err = c.doGet(ctx, path, query, out)
		if err != nil {
			return err
		}
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, status)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, out any) (int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	c.mu.Lock()
	access := c.access
	c.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) refreshTokens(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()
	if refresh == "" {
		return fmt.Errorf("not authenticated")
	}

	var pair auth.TokenPair
	if err := c.postJSON(ctx, "/auth/refresh", map[string]string{"refresh_token": refresh}, &pair); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	c.SetTokens(pair.AccessToken, pair.RefreshToken)
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(raw)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("POST %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
