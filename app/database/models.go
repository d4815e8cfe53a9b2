package database

import (
	"time"
)

// Feed mirrors one configured feed source into the store, plus the
// conditional-request metadata collected from successful fetches.
type Feed struct {
	ID            string
	Name          string
	URL           string
	Category      string
	Language      string
	Enabled       bool
	ETag          string
	LastModified  string
	LastFetchedAt *time.Time
}

// Item is one stored headline. The (FeedID, URL) pair is the unique key and
// never changes after insert; re-ingestion refreshes the mutable fields and
// FetchedAt.
type Item struct {
	ID          string
	FeedID      string
	Title       string
	Summary     string
	URL         string
	PublishedAt *time.Time
	Category    string
	FetchedAt   time.Time

	// FeedName is joined in by queries, not a column of items
	FeedName string
}

// Run is the durable record of one ingestion cycle
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         string
	TotalFeeds     int
	FeedsSucceeded int
	FeedsFailed    int
	ItemsInserted  int
	ItemsUpdated   int
}

// Run statuses
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// FeedRunError records one per-feed failure within a run
type FeedRunError struct {
	ID           string
	RunID        string
	FeedID       string
	ErrorType    string
	ErrorMessage string
	HTTPStatus   *int
	CreatedAt    time.Time
}

// RateLimitDecision is the outcome of one count-then-append reservation
type RateLimitDecision struct {
	Allowed bool
	Count   int
	// OldestInWindow is set when the reservation is denied, so callers can
	// compute when the window frees up again.
	OldestInWindow *time.Time
}
