package forecast

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "epdweather/internal/log"
	"epdweather/internal/model"
)

// DefaultURL is the weatherapi.com forecast endpoint.
const DefaultURL = "https://api.weatherapi.com/v1/forecast.json"

// MaxBody caps how much of a response is read.
const MaxBody = 64 << 10

// cacheEntry holds HTTP cache metadata for the last good response.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Client fetches forecasts. The zero value is not usable; fill APIKey and
// Location at least.
type Client struct {
	URL      string
	APIKey   string
	Location string
	// Day is copied into every forecast; the response is not consulted.
	Day bool
	// CacheDir, if set, keeps the last good response on disk. It is sent
	// back with ETag/Last-Modified and reused when the service is down.
	CacheDir string
	HTTP     *http.Client
}

// NewClient returns a Client with a 15 second HTTP timeout.
func NewClient(apiKey, location string, day bool) *Client {
	return &Client{
		URL:      DefaultURL,
		APIKey:   apiKey,
		Location: location,
		Day:      day,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) requestURL() (string, error) {
	base := c.URL
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("forecast: bad url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.APIKey)
	q.Set("q", c.Location)
	q.Set("days", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch retrieves and decodes today's forecast.
func (c *Client) Fetch(ctx context.Context) (model.Forecast, error) {
	body, fromCache, err := c.fetchBody(ctx)
	if err != nil {
		return model.Forecast{}, err
	}
	f, err := Decode(bytes.NewReader(body), c.Day)
	if err != nil {
		return model.Forecast{}, err
	}
	f.FetchedAt = time.Now().UTC()
	if f.Location == "" {
		f.Location = c.Location
	}
	appLog.Info("forecast fetched", "code", f.Code, "min", f.TempMin, "max", f.TempMax, "from_cache", fromCache)
	return f, nil
}

func (c *Client) fetchBody(ctx context.Context) ([]byte, bool, error) {
	reqURL, err := c.requestURL()
	if err != nil {
		return nil, false, err
	}

	var meta cacheEntry
	var cachedBody []byte
	if c.CacheDir != "" {
		meta, _ = c.loadCacheMeta()
		cachedBody, _ = c.loadCacheBody()
		if meta.URL != redactURL(reqURL) {
			meta, cachedBody = cacheEntry{}, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", "epdweather/1.0")
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("forecast fetch start", "url", redactURL(reqURL))

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("forecast fetch network error, using cached body", err, "url", redactURL(reqURL))
			return cachedBody, true, nil
		}
		return nil, false, fmt.Errorf("forecast: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBody))
		if err != nil {
			return nil, false, fmt.Errorf("forecast: read body: %w", err)
		}
		if c.CacheDir != "" {
			newMeta := cacheEntry{
				URL:          redactURL(reqURL),
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := c.saveCache(newMeta, body); err != nil {
				appLog.Error("forecast cache save failed", err)
			}
		}
		return body, false, nil

	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return nil, false, errors.New("forecast: 304 Not Modified without a cached body")
		}
		appLog.Debug("forecast not modified; using cache")
		return cachedBody, true, nil

	default:
		if len(cachedBody) > 0 && resp.StatusCode >= 500 {
			appLog.Error("forecast fetch non-OK, using cached body", errors.New(resp.Status), "status", resp.StatusCode)
			return cachedBody, true, nil
		}
		return nil, false, fmt.Errorf("forecast: unexpected status %s", resp.Status)
	}
}

func (c *Client) loadCacheMeta() (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(c.CacheDir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (c *Client) loadCacheBody() ([]byte, error) {
	return os.ReadFile(filepath.Join(c.CacheDir, "body.json"))
}

func (c *Client) saveCache(meta cacheEntry, body []byte) error {
	if err := os.MkdirAll(c.CacheDir, 0o700); err != nil {
		return err
	}
	// Body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(c.CacheDir, "body.json"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.CacheDir, "meta.json"), data, 0o600)
}

// redactURL drops the query string, which carries the API key, and replaces
// it with a short hash so different locations stay distinguishable.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "(unparseable url)"
	}
	if parsed.RawQuery == "" {
		return parsed.String()
	}
	sum := sha256.Sum256([]byte(parsed.RawQuery))
	parsed.RawQuery = "q=" + hex.EncodeToString(sum[:4])
	return parsed.String()
}
