// Package fetch reads raw JSON from the rate-limited external sources.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Client is a JSON-over-HTTP source reader with a bounded request timeout.
type Client struct {
	client    *http.Client
	userAgent string
	logger    zerolog.Logger
}

// NewClient constructs a Client.
func NewClient(timeout time.Duration, userAgent string, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "chainstats/1.0"
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger.With().Str("component", "fetch").Logger(),
	}
}

// GetJSON performs a GET and returns the body, which must be valid JSON.
func (c *Client) GetJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(url, resp.StatusCode, payload)
	}

	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("fetch %s: response is not valid JSON", url)
	}

	return payload, nil
}

func httpError(url string, status int, payload []byte) error {
	if msg := gjson.GetBytes(payload, "error").String(); msg != "" {
		return fmt.Errorf("fetch %s: status %d: %s", url, status, msg)
	}
	if len(payload) > 0 {
		trimmed := strings.TrimSpace(string(payload))
		if len(trimmed) > 200 {
			trimmed = trimmed[:200]
		}
		return fmt.Errorf("fetch %s: status %d: %s", url, status, trimmed)
	}
	return fmt.Errorf("fetch %s: status %d", url, status)
}
