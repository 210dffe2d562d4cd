// Package httpclient provides basic http functions
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds upstream requests made without a caller supplied client
const DefaultTimeout = 30 * time.Second

const userAgent = "fleetsim/1.0"

//cap response reads so a misbehaving upstream cannot exhaust memory
const maxResponseBytes = 8 << 20

// GetJson performs a GET against url and decodes the JSON response body into out.
// A nil client uses a default with DefaultTimeout. Non-2xx responses produce an
// error carrying the status and the start of the body.
func GetJson(ctx context.Context, client *http.Client, url string, out interface{}) error {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", url, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, url, bodySnippet(body))
	}
	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

func bodySnippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
