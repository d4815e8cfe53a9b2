package feed

import (
	"fmt"
	"time"
)

// Candidate is one headline extracted from a fetched feed, before it is
// classified and stored
type Candidate struct {
	Title       string
	Summary     string
	URL         string
	PublishedAt *time.Time
}

// FetchResult carries the raw body of a successful fetch plus the
// conditional-request headers to persist for the next cycle
type FetchResult struct {
	Data         []byte
	NotModified  bool
	ETag         string
	LastModified string
	StatusCode   int
}

// Error types recorded per feed failure
const (
	ErrorTypeHTTP    = "http"
	ErrorTypeTimeout = "timeout"
	ErrorTypeNetwork = "network"
	ErrorTypeParse   = "parse"
)

// FetchError describes a per-feed fetch or parse failure with enough detail
// to record it against a run
type FetchError struct {
	FeedID     string
	Type       string
	HTTPStatus *int
	Err        error
}

func (e *FetchError) Error() string {
	if e.HTTPStatus != nil {
		return fmt.Sprintf("feed %s: %s error (HTTP %d): %v", e.FeedID, e.Type, *e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("feed %s: %s error: %v", e.FeedID, e.Type, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
