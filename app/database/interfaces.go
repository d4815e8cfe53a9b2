package database

import (
	"context"
	"time"
)

type FeedRepository interface {
	UpsertFeed(ctx context.Context, feed Feed) error
	GetFeed(ctx context.Context, feedID string) (*Feed, error)
	UpdateFetchMetadata(ctx context.Context, feedID, etag, lastModified string) error
	PruneFeedsNotIn(ctx context.Context, keepIDs []string) (int64, error)
	GetFeedCount(ctx context.Context) (int, error)
}

type ItemRepository interface {
	// UpsertItem inserts a new item or refreshes the mutable fields of the
	// existing row with the same (feed_id, url). Returns true when a new row
	// was created.
	UpsertItem(ctx context.Context, item Item) (bool, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	QueryToday(ctx context.Context, loc *time.Location, limit int) ([]Item, error)
	GetItemCount(ctx context.Context) (int, error)
	SweepOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

type RunRepository interface {
	// StartRun records a new running cycle. Returns ErrRunActive while
	// another run is still marked running and is younger than the stale
	// threshold.
	StartRun(ctx context.Context, totalFeeds int) (string, error)
	FinishRun(ctx context.Context, run Run) error
	RecordFeedError(ctx context.Context, runID string, fe FeedRunError) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	SweepRunsOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
	SweepErrorsOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

type RateLimitRepository interface {
	// ReserveSlot counts the client's records since windowStart and, when the
	// count is below limit, appends a new record. Both happen within one
	// immediate transaction so concurrent reservations cannot both observe
	// the same count.
	ReserveSlot(ctx context.Context, ipAddress, endpoint string, windowStart time.Time, limit int) (RateLimitDecision, error)
	SweepOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}
