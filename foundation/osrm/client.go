package osrm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OpenTransitTools/fleetsim/foundation/httpclient"
)

// DefaultBaseURL is the public OSRM demo server
const DefaultBaseURL = "https://router.project-osrm.org"

// ErrNoRoute indicates the directions service could not produce a driveable
// route between the requested waypoints
var ErrNoRoute = errors.New("no route between waypoints")

// Coordinate is a WGS84 position handed to the directions service
type Coordinate struct {
	Lat float64
	Lon float64
}

// Config holds directions service settings
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client requests driving directions from an OSRM compatible service
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// MakeClient builds a directions client. Empty config fields fall back to the
// public demo server and a 30 second timeout.
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
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Route requests driving directions visiting coords in order, with full
// geometry, steps and per segment annotations
func (c *Client) Route(ctx context.Context, coords []Coordinate) (*Directions, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("routing requires at least 2 coordinates, got %d", len(coords))
	}

	var path strings.Builder
	for i, coord := range coords {
		if i > 0 {
			path.WriteByte(';')
		}
		fmt.Fprintf(&path, "%.6f,%.6f", coord.Lon, coord.Lat)
	}

	query := url.Values{}
	query.Set("alternatives", "false")
	query.Set("annotations", "true")
	query.Set("geometries", "geojson")
	query.Set("overview", "full")
	query.Set("steps", "true")
	if c.apiKey != "" {
		query.Set("api_key", c.apiKey)
	}

	requestURL := fmt.Sprintf("%s/route/v1/driving/%s?%s", c.baseURL, path.String(), query.Encode())

	var directions Directions
	if err := httpclient.GetJson(ctx, c.http, requestURL, &directions); err != nil {
		return nil, fmt.Errorf("requesting directions: %w", err)
	}
	if directions.Code != "Ok" {
		return nil, fmt.Errorf("%w: directions service code %q %s", ErrNoRoute, directions.Code, directions.Message)
	}
	if !directions.HasRoute() {
		return nil, ErrNoRoute
	}
	return &directions, nil
}
