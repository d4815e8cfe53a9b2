package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// maxFeedBodySize caps how much of a feed response is read
const maxFeedBodySize = 10 << 20

// Fetcher retrieves raw feed documents over HTTP. A single Fetcher is shared
// across all feeds; per-fetch timeouts come from the caller's context.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewFetcher creates a new feed fetcher
func NewFetcher(httpClient *http.Client, userAgent string) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Fetch retrieves one feed document. When etag or lastModified from a
// previous fetch are provided they are sent as conditional headers, and an
// upstream 304 yields a result with NotModified set and no data.
func (f *Fetcher) Fetch(ctx context.Context, feedID, url, etag, lastModified string, timeout time.Duration) (*FetchResult, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, &FetchError{FeedID: feedID, Type: ErrorTypeNetwork,
			Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		errType := ErrorTypeNetwork
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			errType = ErrorTypeTimeout
		}
		return nil, &FetchError{FeedID: feedID, Type: errType,
			Err: fmt.Errorf("failed to fetch feed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true, StatusCode: resp.StatusCode}, nil
	}

	if resp.StatusCode != http.StatusOK {
		status := resp.StatusCode
		return nil, &FetchError{FeedID: feedID, Type: ErrorTypeHTTP, HTTPStatus: &status,
			Err: fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodySize))
	if err != nil {
		return nil, &FetchError{FeedID: feedID, Type: ErrorTypeNetwork,
			Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &FetchResult{
		Data:         data,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		StatusCode:   resp.StatusCode,
	}, nil
}
