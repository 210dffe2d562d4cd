// Package geocode resolves free text addresses to WGS84 coordinates through a
// nominatim style search endpoint, caching results per canonicalized query
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OpenTransitTools/fleetsim/foundation/httpclient"
)

// DefaultBaseURL is the public nominatim instance
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// ErrNoMatch indicates the geocoder returned no result for a query
var ErrNoMatch = errors.New("no geocoding match for query")

// Result is a resolved address
type Result struct {
	Lat         float64
	Lon         float64
	DisplayName string
}

// Config holds geocoder settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client looks up addresses, serving repeat queries from an in memory cache.
// Queries are canonicalized (case and whitespace folded) before caching so
// trivially different spellings share an entry. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	cache map[string]Result
}

// MakeClient builds a geocoding client. Empty config fields fall back to the
// public nominatim instance and a 30 second timeout.
func MakeClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httpclient.DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		cache:   map[string]Result{},
	}
}

//nominatim returns lat and lon as strings
type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Locate resolves query to a coordinate, consulting the cache first
func (c *Client) Locate(ctx context.Context, query string) (Result, error) {
	key := canonicalize(query)
	if key == "" {
		return Result{}, errors.New("empty geocoding query")
	}

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	requestURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	var results []searchResult
	if err := httpclient.GetJson(ctx, c.http, requestURL, &results); err != nil {
		return Result{}, fmt.Errorf("requesting geocode: %w", err)
	}
	if len(results) == 0 {
		return Result{}, fmt.Errorf("%w: %q", ErrNoMatch, query)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parsing geocode latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parsing geocode longitude %q: %w", results[0].Lon, err)
	}

	result := Result{Lat: lat, Lon: lon, DisplayName: results[0].DisplayName}
	c.mu.Lock()
	c.cache[key] = result
	c.mu.Unlock()
	return result, nil
}

// CacheSize returns the number of cached queries
func (c *Client) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

//canonicalize folds case and collapses interior whitespace
func canonicalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
