// Package feed fetches and parses the external scoreboard.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// userAgent identifies the sync server to the upstream feed
	userAgent = "pigeonpool-sync/1.0"

	// maxResponseSize caps a scoreboard body (5MB)
	maxResponseSize = 5 * 1024 * 1024

	// maxFetchAttempts bounds retries on transient feed failures
	maxFetchAttempts = 4

	// seasonTypeRegular selects regular-season weeks on the feed
	seasonTypeRegular = 2
)

// Client fetches the scoreboard for one season week.
type Client interface {
	Scoreboard(ctx context.Context, season, week int) (*Snapshot, error)
}

// HTTPClient is the default Client implementation. It retries
// transient failures with exponential backoff and treats upstream 4xx
// responses as permanent.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates a scoreboard client for the given endpoint.
func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Scoreboard fetches and parses the feed for season/week.
func (c *HTTPClient) Scoreboard(ctx context.Context, season, week int) (*Snapshot, error) {
	requestURL, err := c.buildURL(season, week)
	if err != nil {
		return nil, err
	}

	operation := func() ([]byte, error) {
		return c.fetch(ctx, requestURL)
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxFetchAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scoreboard for season %d week %d: %w", season, week, err)
	}

	return parseSnapshot(body, season, week, func(eventID string, parseErr error) {
		slog.Warn("skipping malformed feed event",
			"event_id", eventID,
			"season", season,
			"week", week,
			"error", parseErr,
		)
	})
}

func (c *HTTPClient) buildURL(season, week int) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid feed endpoint %q: %w", c.endpoint, err)
	}

	q := u.Query()
	q.Set("year", strconv.Itoa(season))
	q.Set("week", strconv.Itoa(week))
	q.Set("seasontype", strconv.Itoa(seasonTypeRegular))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *HTTPClient) fetch(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("feed returned %s", resp.Status)
		// Client errors will not heal on retry; server errors might.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > maxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response exceeds %d bytes", maxResponseSize))
	}

	return body, nil
}
