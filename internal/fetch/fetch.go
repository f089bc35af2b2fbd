// Package fetch downloads asset bytes from signed CDN URLs. The fetch is
// bounded by a hard deadline and distinguishes a slow upstream (timeout)
// from a broken one (transport or status failure) so the HTTP layer can map
// them to 504 and 502 respectively.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrUpstreamTimeout indicates the download exceeded the deadline.
	ErrUpstreamTimeout = errors.New("fetch: upstream timed out")

	// ErrUpstreamStatus indicates the upstream answered with a
	// non-success status.
	ErrUpstreamStatus = errors.New("fetch: upstream returned non-success status")
)

// Some CDNs fronting signed URLs reject clients without a recognisable
// browser User-Agent, so the proxy presents one.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const defaultTimeout = 10 * time.Second

// Result is a downloaded asset.
type Result struct {
	Body []byte

	// ContentType is taken from the upstream response, defaulting to
	// image/jpeg when the header is absent.
	ContentType string
}

// Fetcher downloads assets with browser-like request headers.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Fetcher. A non-positive timeout falls back to 10 seconds.
func New(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{client: client, timeout: timeout}
}

// Fetch downloads url within the configured deadline.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeoutError(err) {
			return nil, fmt.Errorf("%w: %s", ErrUpstreamTimeout, url)
		}
		return nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeoutError(err) {
			return nil, fmt.Errorf("%w: %s", ErrUpstreamTimeout, url)
		}
		return nil, fmt.Errorf("fetch: failed to read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return &Result{Body: body, ContentType: contentType}, nil
}

// isTimeoutError reports whether err stems from a context deadline or
// cancellation, distinguishing a slow upstream from a hard failure such as
// a DNS error.
func isTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
