package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

var _ FeedRepository = (*FeedRepositoryImpl)(nil)

// FeedRepositoryImpl handles database operations for feed sources
type FeedRepositoryImpl struct {
	db *DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *DB) *FeedRepositoryImpl {
	return &FeedRepositoryImpl{db: db}
}

// UpsertFeed mirrors a configured source into the feeds table. Configuration
// wins over stored values for everything except fetch metadata.
func (r *FeedRepositoryImpl) UpsertFeed(ctx context.Context, feed Feed) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feeds (id, name, url, category, language, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			category = excluded.category,
			language = excluded.language,
			enabled = excluded.enabled
	`, feed.ID, feed.Name, feed.URL, feed.Category, feed.Language, feed.Enabled)

	if err != nil {
		return fmt.Errorf("failed to upsert feed %s: %w", feed.ID, err)
	}

	return nil
}

// GetFeed retrieves a feed by its configured ID
func (r *FeedRepositoryImpl) GetFeed(ctx context.Context, feedID string) (*Feed, error) {
	var feed Feed
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, url, COALESCE(category, ''), COALESCE(language, ''), enabled,
		       COALESCE(etag, ''), COALESCE(last_modified, ''), last_fetched_at
		FROM feeds
		WHERE id = ?
	`, feedID).Scan(
		&feed.ID, &feed.Name, &feed.URL, &feed.Category, &feed.Language, &feed.Enabled,
		&feed.ETag, &feed.LastModified, &feed.LastFetchedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed %s: %w", feedID, err)
	}

	return &feed, nil
}

// UpdateFetchMetadata stores the conditional-request headers returned by a
// successful fetch and touches last_fetched_at
func (r *FeedRepositoryImpl) UpdateFetchMetadata(ctx context.Context, feedID, etag, lastModified string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET etag = ?, last_modified = ?, last_fetched_at = ?
		WHERE id = ?
	`, etag, lastModified, time.Now().UTC(), feedID)

	if err != nil {
		return fmt.Errorf("failed to update fetch metadata for feed %s: %w", feedID, err)
	}

	return nil
}

// PruneFeedsNotIn deletes feeds (and, via cascade, their items) that are no
// longer present in the configuration
func (r *FeedRepositoryImpl) PruneFeedsNotIn(ctx context.Context, keepIDs []string) (int64, error) {
	if len(keepIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keepIDs)), ",")
	args := make([]interface{}, len(keepIDs))
	for i, id := range keepIDs {
		args[i] = id
	}

	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM feeds WHERE id NOT IN (%s)", placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune feeds: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned feeds: %w", err)
	}

	return deleted, nil
}

// GetFeedCount returns the total number of feeds
func (r *FeedRepositoryImpl) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}
